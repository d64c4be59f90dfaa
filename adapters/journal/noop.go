package journal

import (
	"context"

	"mmmstudio/domain/edit"
)

// NoopJournal discards entries. It is used when no database is configured.
type NoopJournal struct{}

func NewNoopJournal() *NoopJournal { return &NoopJournal{} }

func (NoopJournal) Record(_ context.Context, _ edit.JournalEntry) error { return nil }

func (NoopJournal) History(_ context.Context, _ string, _ int) ([]edit.JournalEntry, error) {
	return nil, nil
}
