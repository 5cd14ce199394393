// Package presence tracks presence status intervals per subject.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guildtrace/guildtrace/internal/interval"
)

// Table describes the presence interval storage.
var Table = interval.Table{
	Name:              "presence_intervals",
	OpenColumn:        "opened_at",
	CloseColumn:       "closed_at",
	Columns:           []string{"subject_id", "status"},
	UniqueOpenColumns: []string{"subject_id"},
}

// Service applies the presence close-all-then-open policy.
type Service struct {
	ledger interval.Ledger
	logger *slog.Logger
}

// NewService creates a presence tracker.
func NewService(log *slog.Logger, ledger interval.Ledger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger: ledger,
		logger: log.With(slog.String("service", "presence")),
	}
}

// Transition closes every open presence row for the subject, then opens one
// new row with the given status, as a single atomic unit. Closing all rows
// rather than the latest defends against stray duplicates left by earlier
// faults.
func (s *Service) Transition(ctx context.Context, subjectID int64, status Status, at time.Time) error {
	return s.ledger.WithinTx(ctx, func(l interval.Ledger) error {
		closed, err := l.CloseAll(ctx, Table, subjectKey(subjectID), at)
		if err != nil {
			return fmt.Errorf("close presence: %w", err)
		}
		if closed > 1 {
			s.logger.Warn("closed stray open presence rows",
				slog.Int64("subject_id", subjectID), slog.Int64("count", closed))
		}
		if closed == 0 {
			s.logger.Debug("no open presence row to close", slog.Int64("subject_id", subjectID))
		}
		fields := []interval.Field{
			interval.F("subject_id", subjectID),
			interval.F("status", string(status)),
		}
		if err := l.Open(ctx, Table, uuid.New(), fields, at); err != nil {
			return fmt.Errorf("open presence: %w", err)
		}
		return nil
	})
}

// CloseOpen closes any open presence rows for the subject. Used by teardown;
// runs inside the caller's transaction.
func (s *Service) CloseOpen(ctx context.Context, l interval.Ledger, subjectID int64, at time.Time) error {
	closed, err := l.CloseAll(ctx, Table, subjectKey(subjectID), at)
	if err != nil {
		return fmt.Errorf("close presence: %w", err)
	}
	if closed == 0 {
		s.logger.Debug("no open presence row to close", slog.Int64("subject_id", subjectID))
	}
	return nil
}

// ListBySubject returns presence intervals overlapping [from, to].
func (s *Service) ListBySubject(ctx context.Context, subjectID int64, from, to time.Time) ([]Interval, error) {
	rows, err := s.ledger.RowsBetween(ctx, Table, subjectKey(subjectID), from, to)
	if err != nil {
		return nil, err
	}
	out := make([]Interval, 0, len(rows))
	for _, row := range rows {
		out = append(out, Interval{
			SubjectID: row.Int64("subject_id"),
			Status:    Status(row.String("status")),
			OpenedAt:  row.OpenedAt,
			ClosedAt:  row.ClosedAt,
		})
	}
	return out, nil
}

func subjectKey(subjectID int64) []interval.Field {
	return []interval.Field{interval.F("subject_id", subjectID)}
}
