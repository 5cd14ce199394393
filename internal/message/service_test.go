package message

import (
	"context"
	"testing"
	"time"
)

type fakeStore struct {
	facts map[int64]Fact
}

func newFakeStore() *fakeStore {
	return &fakeStore{facts: map[int64]Fact{}}
}

func (f *fakeStore) Insert(_ context.Context, fact Fact) error {
	if _, ok := f.facts[fact.MessageID]; ok {
		return ErrDuplicate
	}
	f.facts[fact.MessageID] = fact
	return nil
}

func (f *fakeStore) UpdateMetadata(_ context.Context, messageID int64, m Metadata) (bool, error) {
	fact, ok := f.facts[messageID]
	if !ok {
		return false, nil
	}
	fact.CharCount = m.CharCount
	fact.HasAttachments = m.HasAttachments
	fact.HasEmbeds = m.HasEmbeds
	f.facts[messageID] = fact
	return true, nil
}

func sampleFact() Fact {
	return Fact{
		MessageID: 1001,
		SubjectID: 1,
		ChannelID: 50,
		CharCount: 24,
		SentAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(nil, store)

	if err := svc.Record(ctx, sampleFact()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(store.facts) != 1 {
		t.Fatalf("facts = %d, want 1", len(store.facts))
	}
}

func TestRecordDuplicateIsBenign(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(nil, store)

	fact := sampleFact()
	_ = svc.Record(ctx, fact)
	fact.CharCount = 999
	if err := svc.Record(ctx, fact); err != nil {
		t.Fatalf("duplicate Record: %v", err)
	}
	if store.facts[fact.MessageID].CharCount != 24 {
		t.Error("duplicate must not overwrite the original fact")
	}
}

func TestUpdateMetadata(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(nil, store)

	fact := sampleFact()
	_ = svc.Record(ctx, fact)

	err := svc.UpdateMetadata(ctx, fact.MessageID, Metadata{CharCount: 40, HasEmbeds: true})
	if err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	got := store.facts[fact.MessageID]
	if got.CharCount != 40 || !got.HasEmbeds {
		t.Errorf("fact = %+v", got)
	}
	if !got.SentAt.Equal(fact.SentAt) {
		t.Error("sent_at must be immutable")
	}
}

func TestUpdateMetadataMissingIsNoOp(t *testing.T) {
	svc := NewService(nil, newFakeStore())
	if err := svc.UpdateMetadata(context.Background(), 9999, Metadata{CharCount: 1}); err != nil {
		t.Fatalf("UpdateMetadata for untracked message: %v", err)
	}
}

func TestDeleteKeepsFact(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(nil, store)

	fact := sampleFact()
	_ = svc.Record(ctx, fact)
	if err := svc.Delete(ctx, fact.MessageID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := store.facts[fact.MessageID]; !ok {
		t.Error("deleted message must keep its fact row")
	}
}
