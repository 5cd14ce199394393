// Package interval implements the generic open/close primitive that every
// dimension tracker builds on. An interval is a row with an open timestamp
// and a nullable close timestamp; for a given key at most one row may be
// open at any instant (enforced per table via UniqueOpenColumns).
package interval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRange reports a close timestamp earlier than the matched
	// row's open timestamp. The write is rejected and nothing is persisted.
	ErrInvalidRange = errors.New("interval: close timestamp precedes open timestamp")

	// ErrConflict reports an attempt to open a second interval for a key
	// that already has an open row.
	ErrConflict = errors.New("interval: open interval already exists for key")
)

// Field is one (column, value) pair used for inserts and row matching.
type Field struct {
	Name  string
	Value any
}

// F is shorthand for constructing a Field.
func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// Table describes one interval-carrying table. Column names come from code
// constants, never from user input.
type Table struct {
	Name        string
	OpenColumn  string
	CloseColumn string
	// Columns lists all key and payload columns in insert order, excluding
	// id and the open/close timestamps.
	Columns []string
	// UniqueOpenColumns is the subset of Columns that may have at most one
	// open row at a time. Empty disables the open-row uniqueness check.
	UniqueOpenColumns []string
}

// Row is a generic view of one interval row.
type Row struct {
	ID       uuid.UUID
	Values   map[string]any
	OpenedAt time.Time
	ClosedAt time.Time
}

// Open reports whether the row has no close timestamp yet.
func (r Row) Open() bool {
	return r.ClosedAt.IsZero()
}

// Int64 returns the named column as int64, or 0 when absent.
func (r Row) Int64(col string) int64 {
	switch v := r.Values[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// String returns the named column as string, or "" when absent.
func (r Row) String(col string) string {
	if v, ok := r.Values[col].(string); ok {
		return v
	}
	return ""
}

// Bool returns the named column as bool, or false when absent.
func (r Row) Bool(col string) bool {
	if v, ok := r.Values[col].(bool); ok {
		return v
	}
	return false
}

// UUID returns the named column as uuid.UUID, or uuid.Nil when absent.
// PostgreSQL scans uuid columns as [16]byte; the in-memory ledger stores
// uuid.UUID directly.
func (r Row) UUID(col string) uuid.UUID {
	switch v := r.Values[col].(type) {
	case uuid.UUID:
		return v
	case [16]byte:
		return uuid.UUID(v)
	}
	return uuid.Nil
}

// Ledger is the storage primitive shared by all dimension trackers.
//
// CloseLatest and CloseAll are idempotent: closing when nothing is open is
// not an error. A logical transition (close-then-open, a voice move, a full
// teardown) must run inside a single WithinTx call so a failure midway
// leaves no partial state behind.
type Ledger interface {
	// Open inserts a new open row. Returns ErrConflict when the table's
	// open-row uniqueness would be violated.
	Open(ctx context.Context, t Table, id uuid.UUID, fields []Field, at time.Time) error

	// CloseLatest closes the most recently opened row matching match.
	// Returns the closed row's ID and false when no open row matched.
	// Returns ErrInvalidRange when at precedes the matched row's open time.
	CloseLatest(ctx context.Context, t Table, match []Field, at time.Time) (uuid.UUID, bool, error)

	// CloseAll closes every open row matching match whose open time is not
	// after at, returning the number of rows closed.
	CloseAll(ctx context.Context, t Table, match []Field, at time.Time) (int64, error)

	// Exists reports whether any row (open or closed) matches match.
	Exists(ctx context.Context, t Table, match []Field) (bool, error)

	// OpenRows returns all open rows matching match, newest first.
	OpenRows(ctx context.Context, t Table, match []Field) ([]Row, error)

	// RowsBetween returns rows matching match whose interval overlaps
	// [from, to], oldest first. This is the query surface downstream
	// consumers rely on.
	RowsBetween(ctx context.Context, t Table, match []Field, from, to time.Time) ([]Row, error)

	// WithinTx runs fn with a ledger bound to a single transaction,
	// committing on nil and rolling back on error.
	WithinTx(ctx context.Context, fn func(Ledger) error) error
}
