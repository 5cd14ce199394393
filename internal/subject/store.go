package subject

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guildtrace/guildtrace/internal/db"
)

// ErrNotFound is returned when no subject row exists for the ID.
var ErrNotFound = errors.New("subject not found")

// Store persists subject rows.
type Store interface {
	Get(ctx context.Context, id int64) (Subject, error)
	Upsert(ctx context.Context, s Subject) error
	EnsureExists(ctx context.Context, id int64, at time.Time) error
}

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres subject store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (p *PGStore) Get(ctx context.Context, id int64) (Subject, error) {
	var s Subject
	row := p.pool.QueryRow(ctx,
		`SELECT subject_id, username, display_name, global_name, first_seen, last_updated
		 FROM subjects WHERE subject_id = $1`, id)
	err := row.Scan(&s.ID, &s.Username, &s.DisplayName, &s.GlobalName, &s.FirstSeen, &s.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subject{}, ErrNotFound
	}
	if err != nil {
		return Subject{}, fmt.Errorf("get subject: %w", err)
	}
	return s, nil
}

// Upsert inserts the subject or refreshes its names. first_seen is only
// written on insert.
func (p *PGStore) Upsert(ctx context.Context, s Subject) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO subjects (subject_id, username, display_name, global_name, first_seen, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (subject_id) DO UPDATE SET
		   username = EXCLUDED.username,
		   display_name = EXCLUDED.display_name,
		   global_name = EXCLUDED.global_name,
		   last_updated = EXCLUDED.last_updated`,
		s.ID, s.Username, s.DisplayName, s.GlobalName, db.PgTime(s.LastUpdated))
	if err != nil {
		return fmt.Errorf("upsert subject: %w", err)
	}
	return nil
}

// EnsureExists inserts a bare subject row when none exists yet. Names stay
// empty until a richer event fills them in; an existing row is untouched.
func (p *PGStore) EnsureExists(ctx context.Context, id int64, at time.Time) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO subjects (subject_id, first_seen, last_updated)
		 VALUES ($1, $2, $2)
		 ON CONFLICT (subject_id) DO NOTHING`,
		id, db.PgTime(at))
	if err != nil {
		return fmt.Errorf("ensure subject: %w", err)
	}
	return nil
}
