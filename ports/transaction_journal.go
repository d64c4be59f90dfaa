package ports

import (
	"context"

	"mmmstudio/domain/edit"
)

// TransactionJournal records closed edit transactions
type TransactionJournal interface {
	// Record stores one closed transaction
	Record(ctx context.Context, entry edit.JournalEntry) error

	// History returns the most recent entries for a model, newest first
	History(ctx context.Context, model string, limit int) ([]edit.JournalEntry, error)
}
