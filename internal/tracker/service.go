// Package tracker dispatches normalized events to the dimension trackers
// and coordinates subject teardown.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guildtrace/guildtrace/internal/activity"
	"github.com/guildtrace/guildtrace/internal/identity"
	"github.com/guildtrace/guildtrace/internal/interval"
	"github.com/guildtrace/guildtrace/internal/message"
	"github.com/guildtrace/guildtrace/internal/presence"
	"github.com/guildtrace/guildtrace/internal/status"
	"github.com/guildtrace/guildtrace/internal/subject"
	"github.com/guildtrace/guildtrace/internal/voice"
)

// Service routes events to the trackers. Events sharing a key are
// serialized through a per-key mutex so transitions for one subject never
// interleave.
type Service struct {
	ledger interval.Ledger
	logger *slog.Logger

	subjects   *subject.Service
	presence   *presence.Service
	voice      *voice.Service
	activities *activity.Service
	statuses   *status.Service
	identities *identity.Service
	messages   *message.Service

	locks sync.Map // int64 -> *sync.Mutex
}

// NewService wires the dispatcher.
func NewService(
	log *slog.Logger,
	ledger interval.Ledger,
	subjects *subject.Service,
	pres *presence.Service,
	vc *voice.Service,
	act *activity.Service,
	st *status.Service,
	id *identity.Service,
	msg *message.Service,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger:     ledger,
		logger:     log.With(slog.String("service", "tracker")),
		subjects:   subjects,
		presence:   pres,
		voice:      vc,
		activities: act,
		statuses:   st,
		identities: id,
		messages:   msg,
	}
}

// Handle processes one event. Failures are logged and swallowed so one bad
// event never stalls the stream; the error is also returned for callers
// that want it.
func (s *Service) Handle(ctx context.Context, ev Event) error {
	unlock := s.lock(ev.key())
	defer unlock()

	if err := s.dispatch(ctx, ev); err != nil {
		s.logger.Error("event dropped",
			slog.String("event", fmt.Sprintf("%T", ev)),
			slog.Int64("key", ev.key()),
			slog.String("error", err.Error()))
		return err
	}

	// Departure is the last event for a subject; release its mutex. A late
	// straggler simply allocates a fresh one.
	if _, removed := ev.(MemberRemoved); removed {
		s.locks.Delete(ev.key())
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case UserObserved:
		if err := s.subjects.Ensure(ctx, e.Subject, e.Names.Username, e.Names.DisplayName, e.Names.GlobalName, e.At); err != nil {
			return err
		}
		return s.identities.EnsureCurrent(ctx, e.Subject, e.Names, e.At)

	case PresenceChanged:
		if err := s.subjects.EnsureExists(ctx, e.Subject, e.At); err != nil {
			return err
		}
		if e.BeforeStatus != e.AfterStatus {
			if err := s.presence.Transition(ctx, e.Subject, e.AfterStatus, e.At); err != nil {
				return err
			}
		}
		if err := s.activities.Update(ctx, e.Subject, e.BeforeActivities, e.AfterActivities, e.At); err != nil {
			return err
		}
		return s.statuses.Set(ctx, e.Subject, e.BeforeCustom, e.AfterCustom, e.At)

	case VoiceStateChanged:
		if err := s.subjects.EnsureExists(ctx, e.Subject, e.At); err != nil {
			return err
		}
		return s.handleVoice(ctx, e)

	case IdentityChanged:
		if err := s.subjects.Ensure(ctx, e.Subject, e.Names.Username, e.Names.DisplayName, e.Names.GlobalName, e.At); err != nil {
			return err
		}
		return s.identities.Record(ctx, e.Subject, e.Names, e.At)

	case MessageSent:
		if err := s.subjects.EnsureExists(ctx, e.Fact.SubjectID, e.Fact.SentAt); err != nil {
			return err
		}
		return s.messages.Record(ctx, e.Fact)

	case MessageEdited:
		return s.messages.UpdateMetadata(ctx, e.MessageID, e.Metadata)

	case MessageDeleted:
		return s.messages.Delete(ctx, e.MessageID)

	case MemberRemoved:
		return s.Teardown(ctx, e.Subject, e.At)

	default:
		s.logger.Warn("unknown event", slog.String("event", fmt.Sprintf("%T", ev)))
		return nil
	}
}

func (s *Service) handleVoice(ctx context.Context, e VoiceStateChanged) error {
	switch {
	case e.BeforeChannel == 0 && e.AfterChannel != 0:
		return s.voice.Join(ctx, e.Subject, e.AfterChannel, e.AfterFlags, e.At)
	case e.BeforeChannel != 0 && e.AfterChannel == 0:
		return s.voice.Leave(ctx, e.Subject, e.BeforeChannel, e.At)
	case e.BeforeChannel != e.AfterChannel:
		return s.voice.Move(ctx, e.Subject, e.BeforeChannel, e.AfterChannel, e.AfterFlags, e.At)
	case e.BeforeChannel != 0:
		return s.voice.UpdateFlags(ctx, e.Subject, e.AfterChannel, e.BeforeFlags, e.AfterFlags, e.At)
	default:
		return nil
	}
}

// Teardown closes every open interval of a departed subject in one
// transaction at one shared timestamp: voice sub-states, then voice
// sessions, then presence, then activities. Custom status rows are left
// alone.
func (s *Service) Teardown(ctx context.Context, subjectID int64, at time.Time) error {
	return s.ledger.WithinTx(ctx, func(l interval.Ledger) error {
		if err := s.voice.TeardownSubject(ctx, l, subjectID, at); err != nil {
			return fmt.Errorf("teardown voice: %w", err)
		}
		if err := s.presence.CloseOpen(ctx, l, subjectID, at); err != nil {
			return fmt.Errorf("teardown presence: %w", err)
		}
		if err := s.activities.CloseOpen(ctx, l, subjectID, at); err != nil {
			return fmt.Errorf("teardown activities: %w", err)
		}
		s.logger.Info("subject torn down", slog.Int64("subject_id", subjectID))
		return nil
	})
}

func (s *Service) lock(key int64) func() {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
