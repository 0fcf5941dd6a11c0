// Package redistasks stores assist tasks in Redis so results survive restarts
// and can be polled from any replica.
package redistasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linnemanlabs/triagedesk/internal/assist"
)

// DefaultPrefix namespaces task keys.
const DefaultPrefix = "triagedesk:assist:"

// Store implements assist.TaskStore with one JSON value per task and a TTL.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New wraps rdb. Every Put resets the key's TTL.
func New(rdb redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{rdb: rdb, prefix: DefaultPrefix, ttl: ttl}
}

// Open parses url, pings the server and returns a Store with its client.
func Open(ctx context.Context, url string, ttl time.Duration) (*Store, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, ttl), rdb, nil
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// Put writes t with SET EX.
func (s *Store) Put(ctx context.Context, t *assist.Task) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(t.ID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", t.ID, err)
	}
	return nil
}

// Get reads the task with id. Expired and unknown ids return ok=false.
func (s *Store) Get(ctx context.Context, id string) (*assist.Task, bool, error) {
	b, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", id, err)
	}
	var t assist.Task
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, false, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, true, nil
}

// Delete removes the task with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", id, err)
	}
	return nil
}
