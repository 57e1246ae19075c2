// Package session persists conversation history per session id, with
// pluggable backends.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowpilot-ai/flowpilot/config"
	"github.com/flowpilot-ai/flowpilot/session/inmemory"
	"github.com/flowpilot-ai/flowpilot/session/redisstore"
	"github.com/flowpilot-ai/flowpilot/session/session_models"
)

// ErrNotFound reports a session id with no stored history.
var ErrNotFound = session_models.ErrNotFound

// Store persists ordered conversation turns per session.
type Store interface {
	Append(ctx context.Context, sessionID string, turns ...session_models.Turn) error
	History(ctx context.Context, sessionID string) ([]session_models.Turn, error)
	List(ctx context.Context) ([]session_models.Summary, error)
	Delete(ctx context.Context, sessionID string) error
}

type StoreType string

const (
	InMemoryStore StoreType = "inmemory"
	RedisStore    StoreType = "redis"
)

// NewStore builds the configured backend. The redis backend is pinged
// before it is handed out so an unreachable server fails startup
// instead of the first chat request.
func NewStore(cfg config.SessionConfig) (Store, error) {
	switch StoreType(cfg.Store) {
	case InMemoryStore:
		return inmemory.NewStore(cfg.TTL), nil
	case RedisStore:
		if err := cfg.Redis.Validate(); err != nil {
			return nil, err
		}
		store := redisstore.NewStore(redisstore.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.TTL,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported session store type: %s", cfg.Store)
	}
}

// Clip returns the most recent n turns for prompt replay.
func Clip(turns []session_models.Turn, n int) []session_models.Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// NewTurn builds a timestamped turn with a fresh id.
func NewTurn(role, content, state string) session_models.Turn {
	return session_models.Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}
}
