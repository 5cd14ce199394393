package tracker

import (
	"context"
	"testing"
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

type fakeSubjectStore struct {
	rows map[int64]subject.Subject
}

func (f *fakeSubjectStore) Get(_ context.Context, id int64) (subject.Subject, error) {
	s, ok := f.rows[id]
	if !ok {
		return subject.Subject{}, subject.ErrNotFound
	}
	return s, nil
}

func (f *fakeSubjectStore) Upsert(_ context.Context, s subject.Subject) error {
	if existing, ok := f.rows[s.ID]; ok {
		s.FirstSeen = existing.FirstSeen
	}
	f.rows[s.ID] = s
	return nil
}

func (f *fakeSubjectStore) EnsureExists(_ context.Context, id int64, at time.Time) error {
	if _, ok := f.rows[id]; !ok {
		f.rows[id] = subject.Subject{ID: id, FirstSeen: at, LastUpdated: at}
	}
	return nil
}

type fakeMessageStore struct {
	facts map[int64]message.Fact
}

func (f *fakeMessageStore) Insert(_ context.Context, fact message.Fact) error {
	if _, ok := f.facts[fact.MessageID]; ok {
		return message.ErrDuplicate
	}
	f.facts[fact.MessageID] = fact
	return nil
}

func (f *fakeMessageStore) UpdateMetadata(_ context.Context, id int64, m message.Metadata) (bool, error) {
	fact, ok := f.facts[id]
	if !ok {
		return false, nil
	}
	fact.CharCount = m.CharCount
	fact.HasAttachments = m.HasAttachments
	fact.HasEmbeds = m.HasEmbeds
	f.facts[id] = fact
	return true, nil
}

type harness struct {
	svc      *Service
	ledger   *interval.MemLedger
	subjects *fakeSubjectStore
	messages *fakeMessageStore
}

func newHarness() *harness {
	m := interval.NewMemLedger()
	subjects := &fakeSubjectStore{rows: map[int64]subject.Subject{}}
	messages := &fakeMessageStore{facts: map[int64]message.Fact{}}
	svc := NewService(
		nil,
		m,
		subject.NewService(nil, subjects),
		presence.NewService(nil, m),
		voice.NewService(nil, m),
		activity.NewService(nil, m),
		status.NewService(nil, m),
		identity.NewService(nil, m),
		message.NewService(nil, messages),
	)
	return &harness{svc: svc, ledger: m, subjects: subjects, messages: messages}
}

func countOpen(m *interval.MemLedger, t interval.Table) int {
	n := 0
	for _, row := range m.Rows(t) {
		if row.Open() {
			n++
		}
	}
	return n
}

func TestHandleUserObserved(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ev := UserObserved{Subject: 1, Names: identity.Names{Username: "alice"}, At: at}
	if err := h.svc.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if _, ok := h.subjects.rows[1]; !ok {
		t.Error("subject not registered")
	}
	if n := countOpen(h.ledger, identity.Table); n != 1 {
		t.Errorf("open name snapshots = %d, want 1", n)
	}

	// Repeat sighting with the same names writes nothing new.
	_ = h.svc.Handle(ctx, ev)
	if n := len(h.ledger.Rows(identity.Table)); n != 1 {
		t.Errorf("snapshots = %d, want 1", n)
	}
}

func TestHandlePresenceChanged(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	err := h.svc.Handle(ctx, PresenceChanged{
		Subject:         1,
		BeforeStatus:    presence.StatusOffline,
		AfterStatus:     presence.StatusOnline,
		AfterActivities: []activity.Pair{{Type: activity.TypePlaying, Name: "Factorio"}},
		AfterCustom:     &status.Value{Text: "hi"},
		At:              at,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if n := countOpen(h.ledger, presence.Table); n != 1 {
		t.Errorf("open presence = %d, want 1", n)
	}
	if n := countOpen(h.ledger, activity.Table); n != 1 {
		t.Errorf("open activities = %d, want 1", n)
	}
	if n := len(h.ledger.Rows(status.Table)); n != 1 {
		t.Errorf("custom statuses = %d, want 1", n)
	}
}

func TestHandlePresenceSameStatusSkipsTransition(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_ = h.svc.Handle(ctx, PresenceChanged{
		Subject: 1, BeforeStatus: presence.StatusOffline, AfterStatus: presence.StatusOnline, At: at,
	})
	// Activity-only update; status unchanged, so no new presence row.
	_ = h.svc.Handle(ctx, PresenceChanged{
		Subject:         1,
		BeforeStatus:    presence.StatusOnline,
		AfterStatus:     presence.StatusOnline,
		AfterActivities: []activity.Pair{{Type: activity.TypePlaying, Name: "Factorio"}},
		At:              at.Add(time.Minute),
	})

	if n := len(h.ledger.Rows(presence.Table)); n != 1 {
		t.Errorf("presence rows = %d, want 1", n)
	}
	if n := countOpen(h.ledger, activity.Table); n != 1 {
		t.Errorf("open activities = %d, want 1", n)
	}
}

func TestHandleVoiceLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_ = h.svc.Handle(ctx, VoiceStateChanged{
		Subject: 1, AfterChannel: 100, AfterFlags: voice.Flags{SelfMute: true}, At: base,
	})
	if n := countOpen(h.ledger, voice.SessionTable); n != 1 {
		t.Fatalf("open sessions = %d, want 1", n)
	}

	_ = h.svc.Handle(ctx, VoiceStateChanged{
		Subject: 1, BeforeChannel: 100, AfterChannel: 200,
		BeforeFlags: voice.Flags{SelfMute: true}, AfterFlags: voice.Flags{SelfMute: true},
		At: base.Add(time.Minute),
	})
	if n := len(h.ledger.Rows(voice.SessionTable)); n != 2 {
		t.Fatalf("sessions = %d, want 2 after move", n)
	}

	_ = h.svc.Handle(ctx, VoiceStateChanged{
		Subject: 1, BeforeChannel: 200, AfterChannel: 0,
		BeforeFlags: voice.Flags{SelfMute: true},
		At:          base.Add(2 * time.Minute),
	})
	if n := countOpen(h.ledger, voice.SessionTable); n != 0 {
		t.Errorf("open sessions = %d, want 0 after leave", n)
	}
	if n := countOpen(h.ledger, voice.StateTable); n != 0 {
		t.Errorf("open states = %d, want 0 after leave", n)
	}
}

func TestHandleMessageLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fact := message.Fact{MessageID: 1001, SubjectID: 1, ChannelID: 50, CharCount: 10, SentAt: at}
	_ = h.svc.Handle(ctx, MessageSent{Fact: fact})
	_ = h.svc.Handle(ctx, MessageEdited{MessageID: 1001, Metadata: message.Metadata{CharCount: 25}})
	_ = h.svc.Handle(ctx, MessageDeleted{MessageID: 1001})

	got, ok := h.messages.facts[1001]
	if !ok {
		t.Fatal("fact missing after delete; must be retained")
	}
	if got.CharCount != 25 {
		t.Errorf("char count = %d, want 25", got.CharCount)
	}
}

func TestTeardownCascade(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_ = h.svc.Handle(ctx, VoiceStateChanged{
		Subject: 1, AfterChannel: 100,
		AfterFlags: voice.Flags{SelfMute: true, SelfDeaf: true}, At: base,
	})
	_ = h.svc.Handle(ctx, PresenceChanged{
		Subject:         1,
		BeforeStatus:    presence.StatusOffline,
		AfterStatus:     presence.StatusOnline,
		AfterActivities: []activity.Pair{{Type: activity.TypePlaying, Name: "Factorio"}},
		AfterCustom:     &status.Value{Text: "in voice"},
		At:              base,
	})

	if err := h.svc.Handle(ctx, MemberRemoved{Subject: 1, At: base.Add(time.Hour)}); err != nil {
		t.Fatalf("Handle MemberRemoved: %v", err)
	}

	if n := countOpen(h.ledger, voice.StateTable); n != 0 {
		t.Errorf("open sub-states = %d, want 0", n)
	}
	if n := countOpen(h.ledger, voice.SessionTable); n != 0 {
		t.Errorf("open sessions = %d, want 0", n)
	}
	if n := countOpen(h.ledger, presence.Table); n != 0 {
		t.Errorf("open presence = %d, want 0", n)
	}
	if n := countOpen(h.ledger, activity.Table); n != 0 {
		t.Errorf("open activities = %d, want 0", n)
	}
	if n := countOpen(h.ledger, status.Table); n != 1 {
		t.Errorf("open custom statuses = %d, want 1 (teardown leaves them alone)", n)
	}
}

func TestMemberRemovedReleasesSubjectLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_ = h.svc.Handle(ctx, PresenceChanged{
		Subject: 1, BeforeStatus: presence.StatusOffline, AfterStatus: presence.StatusOnline, At: base,
	})
	if _, ok := h.svc.locks.Load(int64(1)); !ok {
		t.Fatal("expected a mutex for the active subject")
	}

	_ = h.svc.Handle(ctx, MemberRemoved{Subject: 1, At: base.Add(time.Hour)})
	if _, ok := h.svc.locks.Load(int64(1)); ok {
		t.Error("departed subject's mutex should be released")
	}
}

func TestTeardownSharesOneTimestamp(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gone := base.Add(time.Hour)

	_ = h.svc.Handle(ctx, VoiceStateChanged{Subject: 1, AfterChannel: 100, AfterFlags: voice.Flags{SelfMute: true}, At: base})
	_ = h.svc.Handle(ctx, PresenceChanged{Subject: 1, BeforeStatus: presence.StatusOffline, AfterStatus: presence.StatusOnline, At: base})
	_ = h.svc.Handle(ctx, MemberRemoved{Subject: 1, At: gone})

	for _, table := range []interval.Table{voice.StateTable, voice.SessionTable, presence.Table} {
		for _, row := range h.ledger.Rows(table) {
			if !row.ClosedAt.Equal(gone) {
				t.Errorf("%s row closed at %v, want %v", table.Name, row.ClosedAt, gone)
			}
		}
	}
}
