// Package voice tracks voice channel sessions and the sub-state intervals
// (mute, deafen, stream, video) that hang off each session.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guildtrace/guildtrace/internal/interval"
)

// SessionTable describes voice session storage.
var SessionTable = interval.Table{
	Name:              "voice_sessions",
	OpenColumn:        "opened_at",
	CloseColumn:       "closed_at",
	Columns:           []string{"subject_id", "channel_id"},
	UniqueOpenColumns: []string{"subject_id"},
}

// StateTable describes sub-state storage. Rows are keyed by session, not
// subject: a new session starts its sub-states from scratch.
var StateTable = interval.Table{
	Name:              "voice_states",
	OpenColumn:        "opened_at",
	CloseColumn:       "closed_at",
	Columns:           []string{"session_id", "flag"},
	UniqueOpenColumns: []string{"session_id", "flag"},
}

// Service applies the voice session and sub-state transition rules.
type Service struct {
	ledger interval.Ledger
	logger *slog.Logger
}

// NewService creates a voice tracker.
func NewService(log *slog.Logger, ledger interval.Ledger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger: ledger,
		logger: log.With(slog.String("service", "voice")),
	}
}

// Join opens a new session and one sub-state row for each flag already set
// in the initial snapshot.
func (s *Service) Join(ctx context.Context, subjectID, channelID int64, flags Flags, at time.Time) error {
	return s.ledger.WithinTx(ctx, func(l interval.Ledger) error {
		return s.join(ctx, l, subjectID, channelID, flags, at)
	})
}

// Leave closes the session for (subject, channel) and cascade-closes every
// open sub-state row tied to that session.
func (s *Service) Leave(ctx context.Context, subjectID, channelID int64, at time.Time) error {
	return s.ledger.WithinTx(ctx, func(l interval.Ledger) error {
		return s.leave(ctx, l, subjectID, channelID, at)
	})
}

// Move closes the old channel's session and opens a session in the new
// channel, both anchored at the same timestamp, as one atomic unit.
func (s *Service) Move(ctx context.Context, subjectID, oldChannelID, newChannelID int64, flags Flags, at time.Time) error {
	return s.ledger.WithinTx(ctx, func(l interval.Ledger) error {
		if err := s.leave(ctx, l, subjectID, oldChannelID, at); err != nil {
			return err
		}
		return s.join(ctx, l, subjectID, newChannelID, flags, at)
	})
}

// UpdateFlags applies an in-place sub-state change within the same channel:
// flags that flipped get their old row closed and/or a new row opened;
// untouched flags are left alone.
func (s *Service) UpdateFlags(ctx context.Context, subjectID, channelID int64, before, after Flags, at time.Time) error {
	return s.ledger.WithinTx(ctx, func(l interval.Ledger) error {
		sessions, err := l.OpenRows(ctx, SessionTable, sessionKey(subjectID, channelID))
		if err != nil {
			return fmt.Errorf("find voice session: %w", err)
		}
		if len(sessions) == 0 {
			s.logger.Debug("sub-state change without an open session",
				slog.Int64("subject_id", subjectID), slog.Int64("channel_id", channelID))
			return nil
		}
		sessionID := sessions[0].ID

		for _, spec := range flagSpecs {
			was, is := spec.get(before), spec.get(after)
			if was == is {
				continue
			}
			if was {
				if _, _, err := l.CloseLatest(ctx, StateTable, stateKey(sessionID, spec.name), at); err != nil {
					return fmt.Errorf("close %s: %w", spec.name, err)
				}
			}
			if is {
				if err := s.openState(ctx, l, sessionID, spec.name, at); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// TeardownSubject closes every open sub-state of every open session of the
// subject, then the sessions themselves. Runs inside the caller's
// transaction; sub-states strictly before sessions.
func (s *Service) TeardownSubject(ctx context.Context, l interval.Ledger, subjectID int64, at time.Time) error {
	sessions, err := l.OpenRows(ctx, SessionTable, subjectKey(subjectID))
	if err != nil {
		return fmt.Errorf("find voice sessions: %w", err)
	}
	for _, session := range sessions {
		if _, err := l.CloseAll(ctx, StateTable, sessionIDKey(session.ID), at); err != nil {
			return fmt.Errorf("close voice states: %w", err)
		}
	}
	if _, err := l.CloseAll(ctx, SessionTable, subjectKey(subjectID), at); err != nil {
		return fmt.Errorf("close voice sessions: %w", err)
	}
	return nil
}

// ListSessions returns sessions overlapping [from, to] for the subject.
func (s *Service) ListSessions(ctx context.Context, subjectID int64, from, to time.Time) ([]Session, error) {
	rows, err := s.ledger.RowsBetween(ctx, SessionTable, subjectKey(subjectID), from, to)
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, Session{
			ID:        row.ID,
			SubjectID: row.Int64("subject_id"),
			ChannelID: row.Int64("channel_id"),
			OpenedAt:  row.OpenedAt,
			ClosedAt:  row.ClosedAt,
		})
	}
	return out, nil
}

// ListStates returns the sub-state intervals of one session, oldest first.
func (s *Service) ListStates(ctx context.Context, sessionID uuid.UUID, from, to time.Time) ([]StateInterval, error) {
	rows, err := s.ledger.RowsBetween(ctx, StateTable, sessionIDKey(sessionID), from, to)
	if err != nil {
		return nil, err
	}
	out := make([]StateInterval, 0, len(rows))
	for _, row := range rows {
		out = append(out, StateInterval{
			SessionID: row.UUID("session_id"),
			Flag:      row.String("flag"),
			OpenedAt:  row.OpenedAt,
			ClosedAt:  row.ClosedAt,
		})
	}
	return out, nil
}

func (s *Service) join(ctx context.Context, l interval.Ledger, subjectID, channelID int64, flags Flags, at time.Time) error {
	sessionID := uuid.New()
	fields := []interval.Field{
		interval.F("subject_id", subjectID),
		interval.F("channel_id", channelID),
	}
	if err := l.Open(ctx, SessionTable, sessionID, fields, at); err != nil {
		return fmt.Errorf("open voice session: %w", err)
	}
	for _, spec := range flagSpecs {
		if !spec.get(flags) {
			continue
		}
		if err := s.openState(ctx, l, sessionID, spec.name, at); err != nil {
			return err
		}
	}
	s.logger.Info("voice session opened",
		slog.Int64("subject_id", subjectID), slog.Int64("channel_id", channelID))
	return nil
}

func (s *Service) leave(ctx context.Context, l interval.Ledger, subjectID, channelID int64, at time.Time) error {
	sessionID, ok, err := l.CloseLatest(ctx, SessionTable, sessionKey(subjectID, channelID), at)
	if err != nil {
		return fmt.Errorf("close voice session: %w", err)
	}
	if !ok {
		s.logger.Debug("voice leave without an open session",
			slog.Int64("subject_id", subjectID), slog.Int64("channel_id", channelID))
		return nil
	}
	if _, err := l.CloseAll(ctx, StateTable, sessionIDKey(sessionID), at); err != nil {
		return fmt.Errorf("close voice states: %w", err)
	}
	s.logger.Info("voice session closed",
		slog.Int64("subject_id", subjectID), slog.Int64("channel_id", channelID))
	return nil
}

func (s *Service) openState(ctx context.Context, l interval.Ledger, sessionID uuid.UUID, flag string, at time.Time) error {
	fields := []interval.Field{
		interval.F("session_id", sessionID),
		interval.F("flag", flag),
	}
	if err := l.Open(ctx, StateTable, uuid.New(), fields, at); err != nil {
		return fmt.Errorf("open %s: %w", flag, err)
	}
	return nil
}

func subjectKey(subjectID int64) []interval.Field {
	return []interval.Field{interval.F("subject_id", subjectID)}
}

func sessionKey(subjectID, channelID int64) []interval.Field {
	return []interval.Field{
		interval.F("subject_id", subjectID),
		interval.F("channel_id", channelID),
	}
}

func sessionIDKey(sessionID uuid.UUID) []interval.Field {
	return []interval.Field{interval.F("session_id", sessionID)}
}

func stateKey(sessionID uuid.UUID, flag string) []interval.Field {
	return []interval.Field{
		interval.F("session_id", sessionID),
		interval.F("flag", flag),
	}
}
