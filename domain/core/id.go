package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	TransactionID ID
	SweepID       ID
)

func (id TransactionID) String() string { return ID(id).String() }
func (id SweepID) String() string       { return ID(id).String() }

// NewTransactionID returns a fresh identifier for an edit transaction.
func NewTransactionID() TransactionID { return TransactionID(NewID()) }

// NewSweepID returns a fresh identifier for an adstock sweep.
func NewSweepID() SweepID { return SweepID(NewID()) }

// ParseTransactionID parses a string into TransactionID
func ParseTransactionID(s string) (TransactionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("transaction ID cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("transaction ID %q is not a UUID: %w", s, err)
	}
	return TransactionID(s), nil
}
