// Package status records custom status values per subject.
//
// Custom status rows are fire-and-forget markers rather than true
// intervals: clearing the status writes nothing, and a value that already
// appeared anywhere in the subject's history is never re-inserted.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guildtrace/guildtrace/internal/interval"
)

// Table describes the custom status storage. There is no uniqueness guard
// on open rows; dedup is by value across all history instead.
var Table = interval.Table{
	Name:        "custom_statuses",
	OpenColumn:  "opened_at",
	CloseColumn: "closed_at",
	Columns:     []string{"subject_id", "status_text", "emoji"},
}

// Value is one observed custom status. Text and emoji together identify it.
type Value struct {
	Text  string
	Emoji string
}

// Record is one persisted custom status row.
type Record struct {
	SubjectID int64
	Text      string
	Emoji     string
	OpenedAt  time.Time
	ClosedAt  time.Time
}

// Service applies the custom status dedup policy.
type Service struct {
	ledger interval.Ledger
	logger *slog.Logger
}

// NewService creates a custom status tracker.
func NewService(log *slog.Logger, ledger interval.Ledger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger: ledger,
		logger: log.With(slog.String("service", "status")),
	}
}

// Set records an observed custom status change. A cleared status (after is
// nil) writes nothing, and a value already present anywhere in the
// subject's history is silently skipped.
func (s *Service) Set(ctx context.Context, subjectID int64, before, after *Value, at time.Time) error {
	if after == nil {
		return nil
	}
	if before != nil && *before == *after {
		return nil
	}
	return s.ledger.WithinTx(ctx, func(l interval.Ledger) error {
		match := valueKey(subjectID, *after)
		seen, err := l.Exists(ctx, Table, match)
		if err != nil {
			return fmt.Errorf("check custom status: %w", err)
		}
		if seen {
			s.logger.Debug("custom status already recorded",
				slog.Int64("subject_id", subjectID), slog.String("text", after.Text))
			return nil
		}
		if err := l.Open(ctx, Table, uuid.New(), match, at); err != nil {
			return fmt.Errorf("record custom status: %w", err)
		}
		return nil
	})
}

// ListBySubject returns recorded statuses overlapping [from, to].
func (s *Service) ListBySubject(ctx context.Context, subjectID int64, from, to time.Time) ([]Record, error) {
	rows, err := s.ledger.RowsBetween(ctx, Table, subjectKey(subjectID), from, to)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, Record{
			SubjectID: row.Int64("subject_id"),
			Text:      row.String("status_text"),
			Emoji:     row.String("emoji"),
			OpenedAt:  row.OpenedAt,
			ClosedAt:  row.ClosedAt,
		})
	}
	return out, nil
}

func subjectKey(subjectID int64) []interval.Field {
	return []interval.Field{interval.F("subject_id", subjectID)}
}

func valueKey(subjectID int64, v Value) []interval.Field {
	return []interval.Field{
		interval.F("subject_id", subjectID),
		interval.F("status_text", v.Text),
		interval.F("emoji", v.Emoji),
	}
}
