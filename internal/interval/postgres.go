package interval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guildtrace/guildtrace/internal/db"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGLedger is the PostgreSQL implementation of Ledger.
type PGLedger struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPGLedger creates a ledger over the given connection pool.
func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool, q: pool}
}

func (l *PGLedger) Open(ctx context.Context, t Table, id uuid.UUID, fields []Field, at time.Time) error {
	cols := make([]string, 0, len(fields)+2)
	args := make([]any, 0, len(fields)+2)
	cols = append(cols, "id")
	args = append(args, db.PgUUID(id))
	for _, f := range fields {
		cols = append(cols, f.Name)
		args = append(args, pgValue(f.Value))
	}
	cols = append(cols, t.OpenColumn)
	args = append(args, at)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		t.Name, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)
	if _, err := l.q.Exec(ctx, sql, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%s: %w", t.Name, ErrConflict)
		}
		return fmt.Errorf("open %s: %w", t.Name, err)
	}
	return nil
}

func (l *PGLedger) CloseLatest(ctx context.Context, t Table, match []Field, at time.Time) (uuid.UUID, bool, error) {
	where, args := matchClause(match, 1)
	sql := fmt.Sprintf(
		"SELECT id, %s FROM %s WHERE %s AND %s IS NULL ORDER BY %s DESC LIMIT 1 FOR UPDATE",
		t.OpenColumn, t.Name, where, t.CloseColumn, t.OpenColumn,
	)

	var pgID pgtype.UUID
	var opened pgtype.Timestamptz
	err := l.q.QueryRow(ctx, sql, args...).Scan(&pgID, &opened)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("close %s: %w", t.Name, err)
	}
	if at.Before(opened.Time) {
		return uuid.Nil, false, fmt.Errorf("%s: %w", t.Name, ErrInvalidRange)
	}

	update := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE id = $2", t.Name, t.CloseColumn)
	if _, err := l.q.Exec(ctx, update, at, pgID); err != nil {
		return uuid.Nil, false, fmt.Errorf("close %s: %w", t.Name, err)
	}
	return db.UUIDFromPg(pgID), true, nil
}

func (l *PGLedger) CloseAll(ctx context.Context, t Table, match []Field, at time.Time) (int64, error) {
	where, args := matchClause(match, 2)
	sql := fmt.Sprintf(
		"UPDATE %s SET %s = $1 WHERE %s AND %s IS NULL AND %s <= $1",
		t.Name, t.CloseColumn, where, t.CloseColumn, t.OpenColumn,
	)
	tag, err := l.q.Exec(ctx, sql, append([]any{at}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("close all %s: %w", t.Name, err)
	}
	return tag.RowsAffected(), nil
}

func (l *PGLedger) Exists(ctx context.Context, t Table, match []Field) (bool, error) {
	where, args := matchClause(match, 1)
	sql := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s)", t.Name, where)
	var exists bool
	if err := l.q.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists %s: %w", t.Name, err)
	}
	return exists, nil
}

func (l *PGLedger) OpenRows(ctx context.Context, t Table, match []Field) ([]Row, error) {
	where, args := matchClause(match, 1)
	sql := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s AND %s IS NULL ORDER BY %s DESC",
		selectColumns(t), t.Name, where, t.CloseColumn, t.OpenColumn,
	)
	return l.queryRows(ctx, t, sql, args)
}

func (l *PGLedger) RowsBetween(ctx context.Context, t Table, match []Field, from, to time.Time) ([]Row, error) {
	where, args := matchClause(match, 3)
	sql := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s AND %s <= $2 AND (%s IS NULL OR %s >= $1) ORDER BY %s ASC",
		selectColumns(t), t.Name, where, t.OpenColumn, t.CloseColumn, t.CloseColumn, t.OpenColumn,
	)
	return l.queryRows(ctx, t, sql, append([]any{from, to}, args...))
}

func (l *PGLedger) WithinTx(ctx context.Context, fn func(Ledger) error) error {
	if l.pool == nil {
		// Already transaction-bound; run in the enclosing transaction.
		return fn(l)
	}
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin interval tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PGLedger{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit interval tx: %w", err)
	}
	return nil
}

func (l *PGLedger) queryRows(ctx context.Context, t Table, sql string, args []any) ([]Row, error) {
	rows, err := l.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.Name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var pgID pgtype.UUID
		var opened, closed pgtype.Timestamptz
		values := make([]any, len(t.Columns))
		dest := make([]any, 0, len(t.Columns)+3)
		dest = append(dest, &pgID, &opened, &closed)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		row := Row{
			ID:       db.UUIDFromPg(pgID),
			Values:   make(map[string]any, len(t.Columns)),
			OpenedAt: db.TimeFromPg(opened),
			ClosedAt: db.TimeFromPg(closed),
		}
		for i, col := range t.Columns {
			row.Values[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.Name, err)
	}
	return out, nil
}

func selectColumns(t Table) string {
	cols := append([]string{"id", t.OpenColumn, t.CloseColumn}, t.Columns...)
	return strings.Join(cols, ", ")
}

// matchClause renders match as an AND-joined WHERE fragment with
// placeholders starting at startIdx.
func matchClause(match []Field, startIdx int) (string, []any) {
	if len(match) == 0 {
		return "TRUE", nil
	}
	parts := make([]string, len(match))
	args := make([]any, len(match))
	for i, f := range match {
		parts[i] = f.Name + " = $" + strconv.Itoa(startIdx+i)
		args[i] = pgValue(f.Value)
	}
	return strings.Join(parts, " AND "), args
}

// pgValue converts field values pgx has no native codec for.
func pgValue(v any) any {
	if id, ok := v.(uuid.UUID); ok {
		return db.PgUUID(id)
	}
	return v
}
