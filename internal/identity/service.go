// Package identity tracks name snapshots per subject with
// effective_from/effective_until validity ranges.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guildtrace/guildtrace/internal/interval"
)

// Table describes the name history storage.
var Table = interval.Table{
	Name:              "name_history",
	OpenColumn:        "effective_from",
	CloseColumn:       "effective_until",
	Columns:           []string{"subject_id", "username", "display_name", "global_name"},
	UniqueOpenColumns: []string{"subject_id"},
}

// Names is the tracked triple. A change in any field retires the whole
// snapshot.
type Names struct {
	Username    string
	DisplayName string
	GlobalName  string
}

// Snapshot is one persisted name history row.
type Snapshot struct {
	SubjectID      int64
	Names          Names
	EffectiveFrom  time.Time
	EffectiveUntil time.Time
}

// Current reports whether the snapshot is still in effect.
func (s Snapshot) Current() bool { return s.EffectiveUntil.IsZero() }

// Service maintains the name history.
type Service struct {
	ledger interval.Ledger
	logger *slog.Logger
}

// NewService creates an identity tracker.
func NewService(log *slog.Logger, ledger interval.Ledger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger: ledger,
		logger: log.With(slog.String("service", "identity")),
	}
}

// Record retires the currently-effective snapshot and inserts a new row
// carrying the full triple, both at the same timestamp so consecutive rows
// stay contiguous. Unchanged fields are stored again in the new row.
func (s *Service) Record(ctx context.Context, subjectID int64, names Names, at time.Time) error {
	return s.ledger.WithinTx(ctx, func(l interval.Ledger) error {
		closed, err := l.CloseAll(ctx, Table, subjectKey(subjectID), at)
		if err != nil {
			return fmt.Errorf("retire name snapshot: %w", err)
		}
		if closed == 0 {
			s.logger.Debug("first name snapshot for subject", slog.Int64("subject_id", subjectID))
		}
		if err := l.Open(ctx, Table, uuid.New(), snapshotFields(subjectID, names), at); err != nil {
			return fmt.Errorf("insert name snapshot: %w", err)
		}
		return nil
	})
}

// EnsureCurrent records a snapshot only when it differs from the
// currently-effective one (or none exists yet). Used when a subject is
// first observed, so repeated sightings stay write-free.
func (s *Service) EnsureCurrent(ctx context.Context, subjectID int64, names Names, at time.Time) error {
	return s.ledger.WithinTx(ctx, func(l interval.Ledger) error {
		rows, err := l.OpenRows(ctx, Table, subjectKey(subjectID))
		if err != nil {
			return fmt.Errorf("load current name snapshot: %w", err)
		}
		if len(rows) > 0 && rowNames(rows[0]) == names {
			return nil
		}
		if _, err := l.CloseAll(ctx, Table, subjectKey(subjectID), at); err != nil {
			return fmt.Errorf("retire name snapshot: %w", err)
		}
		if err := l.Open(ctx, Table, uuid.New(), snapshotFields(subjectID, names), at); err != nil {
			return fmt.Errorf("insert name snapshot: %w", err)
		}
		return nil
	})
}

// ListBySubject returns name snapshots overlapping [from, to].
func (s *Service) ListBySubject(ctx context.Context, subjectID int64, from, to time.Time) ([]Snapshot, error) {
	rows, err := s.ledger.RowsBetween(ctx, Table, subjectKey(subjectID), from, to)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, Snapshot{
			SubjectID:      row.Int64("subject_id"),
			Names:          rowNames(row),
			EffectiveFrom:  row.OpenedAt,
			EffectiveUntil: row.ClosedAt,
		})
	}
	return out, nil
}

func rowNames(row interval.Row) Names {
	return Names{
		Username:    row.String("username"),
		DisplayName: row.String("display_name"),
		GlobalName:  row.String("global_name"),
	}
}

func snapshotFields(subjectID int64, names Names) []interval.Field {
	return []interval.Field{
		interval.F("subject_id", subjectID),
		interval.F("username", names.Username),
		interval.F("display_name", names.DisplayName),
		interval.F("global_name", names.GlobalName),
	}
}

func subjectKey(subjectID int64) []interval.Field {
	return []interval.Field{interval.F("subject_id", subjectID)}
}
