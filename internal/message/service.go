// Package message records per-message metadata facts. Facts have no
// open/close semantics: the key and sent_at never change, the metadata may
// be rewritten on edit, and deleted messages keep their row as an audit
// trail.
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Service applies the fact recording rules.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a fact recorder.
func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "message")),
	}
}

// Record inserts a new fact. A duplicate message ID is a benign skip, not
// an error; gateway redelivery makes duplicates routine.
func (s *Service) Record(ctx context.Context, f Fact) error {
	err := s.store.Insert(ctx, f)
	if errors.Is(err, ErrDuplicate) {
		s.logger.Debug("duplicate message fact skipped", slog.Int64("message_id", f.MessageID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("record message %d: %w", f.MessageID, err)
	}
	return nil
}

// UpdateMetadata rewrites the mutable fields of an existing fact. An edit
// for an untracked message is a no-op.
func (s *Service) UpdateMetadata(ctx context.Context, messageID int64, m Metadata) error {
	found, err := s.store.UpdateMetadata(ctx, messageID, m)
	if err != nil {
		return fmt.Errorf("update message %d: %w", messageID, err)
	}
	if !found {
		s.logger.Debug("edit for untracked message ignored", slog.Int64("message_id", messageID))
	}
	return nil
}

// Delete observes a deletion without mutating the row; the fact stays as
// an audit trail.
func (s *Service) Delete(ctx context.Context, messageID int64) error {
	s.logger.Debug("message deleted", slog.Int64("message_id", messageID))
	return nil
}
