// Package redisstore keeps session history in Redis so multiple
// assistant instances can share conversations.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowpilot-ai/flowpilot/session/session_models"
)

const keyPrefix = "flowpilot:session:"

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(opts Options) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		ttl: opts.TTL,
	}
}

func key(sessionID string) string { return keyPrefix + sessionID }

func (s *Store) Append(ctx context.Context, sessionID string, turns ...session_models.Turn) error {
	pipe := s.client.TxPipeline()
	for _, turn := range turns {
		raw, err := json.Marshal(turn)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, key(sessionID), raw)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key(sessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending session turns: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, sessionID string) ([]session_models.Turn, error) {
	raw, err := s.client.LRange(ctx, key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	if len(raw) == 0 {
		return nil, session_models.ErrNotFound
	}
	turns := make([]session_models.Turn, 0, len(raw))
	for _, item := range raw {
		var turn session_models.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("corrupt session turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *Store) List(ctx context.Context) ([]session_models.Summary, error) {
	var (
		out    []session_models.Summary
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning sessions: %w", err)
		}
		for _, k := range keys {
			count, err := s.client.LLen(ctx, k).Result()
			if err != nil {
				return nil, err
			}
			summary := session_models.Summary{
				ID:    strings.TrimPrefix(k, keyPrefix),
				Turns: int(count),
			}
			// Last turn carries the freshest timestamp.
			if last, err := s.client.LIndex(ctx, k, -1).Result(); err == nil {
				var turn session_models.Turn
				if json.Unmarshal([]byte(last), &turn) == nil {
					summary.UpdatedAt = turn.CreatedAt
				}
			}
			out = append(out, summary)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	removed, err := s.client.Del(ctx, key(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if removed == 0 {
		return session_models.ErrNotFound
	}
	return nil
}

// Ping verifies connectivity, used at startup when redis is selected.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
