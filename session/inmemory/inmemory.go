// Package inmemory keeps session history in process memory with TTL
// expiry. Suitable for single-instance deployments and tests.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowpilot-ai/flowpilot/session/session_models"
)

type record struct {
	turns     []session_models.Turn
	updatedAt time.Time
	expiresAt time.Time
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*record
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates an empty in-memory store. A zero ttl disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*record),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *Store) Append(ctx context.Context, sessionID string, turns ...session_models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.sessions[sessionID]
	if !ok || s.expired(rec, now) {
		rec = &record{}
		s.sessions[sessionID] = rec
	}
	rec.turns = append(rec.turns, turns...)
	rec.updatedAt = now
	if s.ttl > 0 {
		rec.expiresAt = now.Add(s.ttl)
	}
	return nil
}

func (s *Store) History(ctx context.Context, sessionID string) ([]session_models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok || s.expired(rec, s.now()) {
		return nil, session_models.ErrNotFound
	}
	out := make([]session_models.Turn, len(rec.turns))
	copy(out, rec.turns)
	return out, nil
}

func (s *Store) List(ctx context.Context) ([]session_models.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var out []session_models.Summary
	for id, rec := range s.sessions {
		if s.expired(rec, now) {
			continue
		}
		out = append(out, session_models.Summary{ID: id, Turns: len(rec.turns), UpdatedAt: rec.updatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return session_models.ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *Store) expired(rec *record, now time.Time) bool {
	return !rec.expiresAt.IsZero() && now.After(rec.expiresAt)
}
