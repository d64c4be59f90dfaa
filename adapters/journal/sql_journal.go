package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"mmmstudio/domain/core"
	"mmmstudio/domain/edit"
	"mmmstudio/internal/errors"
	"mmmstudio/ports"
)

// DefaultHistoryLimit caps History when the caller passes no limit
const DefaultHistoryLimit = 50

// Open connects to the journal database. SQLite goes through the modernc
// driver (registered as "sqlite") but is wrapped under the "sqlite3" name so
// sqlx rebinds queries with '?' placeholders.
func Open(ctx context.Context, driver, url string) (*sqlx.DB, error) {
	switch driver {
	case "postgres":
		db, err := sqlx.ConnectContext(ctx, "postgres", url)
		if err != nil {
			return nil, errors.DatabaseError("failed to connect to postgres", err)
		}
		return db, nil
	case "sqlite":
		raw, err := sql.Open("sqlite", url)
		if err != nil {
			return nil, errors.DatabaseError("failed to open sqlite", err)
		}
		// One connection keeps ":memory:" databases shared and serializes writers.
		raw.SetMaxOpenConns(1)
		db := sqlx.NewDb(raw, "sqlite3")
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, errors.DatabaseError("failed to ping sqlite", err)
		}
		return db, nil
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unsupported journal driver %q", driver))
	}
}

// entryRow is the table shape of a journal entry
type entryRow struct {
	ID           string `db:"id"`
	Model        string `db:"model_name"`
	Mode         string `db:"mode"`
	Variables    string `db:"variables"`
	Outcome      string `db:"outcome"`
	ErrorMessage string `db:"error_message"`
	DraftRows    int    `db:"draft_rows"`
	OpenedAt     int64  `db:"opened_at"`
	ClosedAt     int64  `db:"closed_at"`
}

func toRow(e edit.JournalEntry) (entryRow, error) {
	vars, err := json.Marshal(e.Variables)
	if err != nil {
		return entryRow{}, err
	}
	return entryRow{
		ID:           e.ID.String(),
		Model:        e.Model,
		Mode:         e.Mode,
		Variables:    string(vars),
		Outcome:      string(e.Outcome),
		ErrorMessage: e.Error,
		DraftRows:    e.DraftRows,
		OpenedAt:     e.OpenedAt.UnixMilli(),
		ClosedAt:     e.ClosedAt.UnixMilli(),
	}, nil
}

func (r entryRow) toEntry() (edit.JournalEntry, error) {
	var vars []string
	if err := json.Unmarshal([]byte(r.Variables), &vars); err != nil {
		return edit.JournalEntry{}, err
	}
	return edit.JournalEntry{
		ID:        core.TransactionID(r.ID),
		Model:     r.Model,
		Mode:      r.Mode,
		Variables: vars,
		Outcome:   edit.Outcome(r.Outcome),
		Error:     r.ErrorMessage,
		DraftRows: r.DraftRows,
		OpenedAt:  time.UnixMilli(r.OpenedAt).UTC(),
		ClosedAt:  time.UnixMilli(r.ClosedAt).UTC(),
	}, nil
}

// SQLJournal implements ports.TransactionJournal on PostgreSQL or SQLite
type SQLJournal struct {
	db *sqlx.DB
}

var _ ports.TransactionJournal = (*SQLJournal)(nil)

// NewSQLJournal creates a journal on an open, migrated database
func NewSQLJournal(db *sqlx.DB) *SQLJournal {
	return &SQLJournal{db: db}
}

// Record stores one closed transaction
func (j *SQLJournal) Record(ctx context.Context, entry edit.JournalEntry) error {
	row, err := toRow(entry)
	if err != nil {
		return errors.DatabaseError("failed to encode journal entry", err)
	}
	_, err = j.db.NamedExecContext(ctx, `
		INSERT INTO edit_transactions (id, model_name, mode, variables, outcome, error_message, draft_rows, opened_at, closed_at)
		VALUES (:id, :model_name, :mode, :variables, :outcome, :error_message, :draft_rows, :opened_at, :closed_at)
	`, row)
	if err != nil {
		return errors.DatabaseError("failed to record transaction", err)
	}
	return nil
}

// History returns the newest entries for model
func (j *SQLJournal) History(ctx context.Context, model string, limit int) ([]edit.JournalEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var rows []entryRow
	err := j.db.SelectContext(ctx, &rows, j.db.Rebind(`
		SELECT id, model_name, mode, variables, outcome, error_message, draft_rows, opened_at, closed_at
		FROM edit_transactions
		WHERE model_name = ?
		ORDER BY closed_at DESC, id DESC
		LIMIT ?
	`), model, limit)
	if err != nil {
		return nil, errors.DatabaseError("failed to read transaction history", err)
	}

	entries := make([]edit.JournalEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, errors.DatabaseError("failed to decode journal entry", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
