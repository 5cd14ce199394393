// Package activity tracks concurrent activity intervals per subject,
// keyed by (type, name).
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guildtrace/guildtrace/internal/interval"
)

// Table describes the activity interval storage.
var Table = interval.Table{
	Name:              "activity_intervals",
	OpenColumn:        "opened_at",
	CloseColumn:       "closed_at",
	Columns:           []string{"subject_id", "activity_type", "activity_name"},
	UniqueOpenColumns: []string{"subject_id", "activity_type", "activity_name"},
}

// Service diffs activity sets and records the transitions.
type Service struct {
	ledger interval.Ledger
	logger *slog.Logger
}

// NewService creates an activity tracker.
func NewService(log *slog.Logger, ledger interval.Ledger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger: ledger,
		logger: log.With(slog.String("service", "activity")),
	}
}

// Update reconciles the stored open set with the observed set. Activities
// only in the old set are closed, activities only in the new set are
// opened, and activities in both are left running. An activity that was
// stopped and restarted between snapshots appears unchanged here and keeps
// its original interval.
func (s *Service) Update(ctx context.Context, subjectID int64, before, after []Pair, at time.Time) error {
	beforeSet := toSet(before)
	afterSet := toSet(after)

	return s.ledger.WithinTx(ctx, func(l interval.Ledger) error {
		for pair := range beforeSet {
			if afterSet[pair] {
				continue
			}
			_, ok, err := l.CloseLatest(ctx, Table, pairKey(subjectID, pair), at)
			if err != nil {
				return fmt.Errorf("close activity %s/%s: %w", pair.Type, pair.Name, err)
			}
			if !ok {
				s.logger.Debug("activity ended without an open interval",
					slog.Int64("subject_id", subjectID),
					slog.String("type", pair.Type), slog.String("name", pair.Name))
			}
		}
		for pair := range afterSet {
			if beforeSet[pair] {
				continue
			}
			// A lost before-state (process restart) presents a still-running
			// activity as new; keep its original interval rather than trip
			// the open-row uniqueness guard.
			open, err := l.OpenRows(ctx, Table, pairKey(subjectID, pair))
			if err != nil {
				return fmt.Errorf("check activity %s/%s: %w", pair.Type, pair.Name, err)
			}
			if len(open) > 0 {
				s.logger.Debug("activity already open",
					slog.Int64("subject_id", subjectID),
					slog.String("type", pair.Type), slog.String("name", pair.Name))
				continue
			}
			fields := []interval.Field{
				interval.F("subject_id", subjectID),
				interval.F("activity_type", pair.Type),
				interval.F("activity_name", pair.Name),
			}
			if err := l.Open(ctx, Table, uuid.New(), fields, at); err != nil {
				return fmt.Errorf("open activity %s/%s: %w", pair.Type, pair.Name, err)
			}
		}
		return nil
	})
}

// CloseOpen closes every open activity interval for the subject. Used by
// teardown; runs inside the caller's transaction.
func (s *Service) CloseOpen(ctx context.Context, l interval.Ledger, subjectID int64, at time.Time) error {
	closed, err := l.CloseAll(ctx, Table, subjectKey(subjectID), at)
	if err != nil {
		return fmt.Errorf("close activities: %w", err)
	}
	if closed == 0 {
		s.logger.Debug("no open activities to close", slog.Int64("subject_id", subjectID))
	}
	return nil
}

// ListBySubject returns activity intervals overlapping [from, to].
func (s *Service) ListBySubject(ctx context.Context, subjectID int64, from, to time.Time) ([]Interval, error) {
	rows, err := s.ledger.RowsBetween(ctx, Table, subjectKey(subjectID), from, to)
	if err != nil {
		return nil, err
	}
	out := make([]Interval, 0, len(rows))
	for _, row := range rows {
		out = append(out, Interval{
			SubjectID: row.Int64("subject_id"),
			Type:      row.String("activity_type"),
			Name:      row.String("activity_name"),
			OpenedAt:  row.OpenedAt,
			ClosedAt:  row.ClosedAt,
		})
	}
	return out, nil
}

func toSet(pairs []Pair) map[Pair]bool {
	set := make(map[Pair]bool, len(pairs))
	for _, p := range pairs {
		set[p] = true
	}
	return set
}

func subjectKey(subjectID int64) []interval.Field {
	return []interval.Field{interval.F("subject_id", subjectID)}
}

func pairKey(subjectID int64, pair Pair) []interval.Field {
	return []interval.Field{
		interval.F("subject_id", subjectID),
		interval.F("activity_type", pair.Type),
		interval.F("activity_name", pair.Name),
	}
}
