package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guildtrace/guildtrace/internal/db"
)

// ErrDuplicate is returned when a fact with the same message ID already
// exists.
var ErrDuplicate = errors.New("message fact already recorded")

// Fact is one recorded message. The key and sent_at are immutable; the
// metadata fields may be rewritten on edit.
type Fact struct {
	MessageID      int64
	SubjectID      int64
	ChannelID      int64
	MessageType    string
	HasAttachments bool
	HasEmbeds      bool
	CharCount      int
	SentAt         time.Time
}

// Metadata is the edit-mutable slice of a fact.
type Metadata struct {
	CharCount      int
	HasAttachments bool
	HasEmbeds      bool
}

// Store persists message facts.
type Store interface {
	Insert(ctx context.Context, f Fact) error
	UpdateMetadata(ctx context.Context, messageID int64, m Metadata) (bool, error)
}

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres message fact store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (p *PGStore) Insert(ctx context.Context, f Fact) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO message_facts
		   (message_id, subject_id, channel_id, message_type, has_attachments, has_embeds, char_count, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.MessageID, f.SubjectID, f.ChannelID, f.MessageType,
		f.HasAttachments, f.HasEmbeds, f.CharCount, db.PgTime(f.SentAt))
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert message fact: %w", err)
	}
	return nil
}

func (p *PGStore) UpdateMetadata(ctx context.Context, messageID int64, m Metadata) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE message_facts
		 SET char_count = $2, has_attachments = $3, has_embeds = $4
		 WHERE message_id = $1`,
		messageID, m.CharCount, m.HasAttachments, m.HasEmbeds)
	if err != nil {
		return false, fmt.Errorf("update message fact: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
