// Package subject maintains the registry of observed users.
package subject

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Subject is one registered user.
type Subject struct {
	ID          int64
	Username    string
	DisplayName string
	GlobalName  string
	FirstSeen   time.Time
	LastUpdated time.Time
}

// Service keeps the registry current.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a subject registry.
func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "subject")),
	}
}

// Ensure registers the subject or refreshes its stored names, stamping
// last_updated with the observation time.
func (s *Service) Ensure(ctx context.Context, id int64, username, displayName, globalName string, at time.Time) error {
	err := s.store.Upsert(ctx, Subject{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		GlobalName:  globalName,
		FirstSeen:   at,
		LastUpdated: at,
	})
	if err != nil {
		return fmt.Errorf("ensure subject %d: %w", id, err)
	}
	return nil
}

// EnsureExists registers a bare subject row when the subject has never
// been seen. Interval rows reference subjects, so trackers call this
// before their first write for an unknown subject.
func (s *Service) EnsureExists(ctx context.Context, id int64, at time.Time) error {
	if err := s.store.EnsureExists(ctx, id, at); err != nil {
		return fmt.Errorf("ensure subject %d: %w", id, err)
	}
	return nil
}

// Get returns the registered subject.
func (s *Service) Get(ctx context.Context, id int64) (Subject, error) {
	return s.store.Get(ctx, id)
}
