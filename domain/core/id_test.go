package core

import (
	"errors"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	if !ID("").IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}
	if ID("not-empty").IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

func TestParseTransactionID(t *testing.T) {
	fresh := NewTransactionID()
	parsed, err := ParseTransactionID(fresh.String())
	if err != nil {
		t.Fatalf("ParseTransactionID(%q) failed: %v", fresh, err)
	}
	if parsed != fresh {
		t.Errorf("Expected %s, got %s", fresh, parsed)
	}

	for _, bad := range []string{"", "   ", "not-a-uuid"} {
		if _, err := ParseTransactionID(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestIsValidationError(t *testing.T) {
	wrapped := errors.Join(ErrEmptySelection, errors.New("context"))
	if !IsValidationError(wrapped) {
		t.Error("Expected wrapped ErrEmptySelection to be a validation error")
	}
	if IsValidationError(ErrEngineBusy) {
		t.Error("ErrEngineBusy is a concurrency conflict, not a validation error")
	}
	if !IsNotFoundError(NewNotFoundError("model", "base")) {
		t.Error("Expected NewNotFoundError to wrap ErrNotFound")
	}
}
