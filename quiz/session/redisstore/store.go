// Package redisstore is a Redis-backed session.Store. Each attempt is a JSON
// value under its own key, updated with WATCH/MULTI and expired by key TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/quiz/session"
)

const (
	defaultPrefix     = "quiz:attempt:"
	defaultMaxRetries = 10
)

// Options configures New.
type Options struct {
	// KeyPrefix namespaces attempt keys.
	KeyPrefix string
	// TTL expires untouched attempts server-side; zero disables expiry.
	TTL time.Duration
	// MaxRetries bounds optimistic transaction retries per Update.
	MaxRetries int
	// Now overrides the clock used to stamp UpdatedAt.
	Now func() time.Time
}

// Store implements session.Store on top of a go-redis client.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	maxRetries int
	now        func() time.Time
}

// New wraps client.
func New(client redis.UniversalClient, opts Options) *Store {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultPrefix
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		client:     client,
		prefix:     opts.KeyPrefix,
		ttl:        opts.TTL,
		maxRetries: opts.MaxRetries,
		now:        opts.Now,
	}
}

func (s *Store) key(userID string) string {
	return s.prefix + userID
}

// Get returns the stored attempt or nil.
func (s *Store) Get(ctx context.Context, userID string) (*session.Attempt, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, session.ErrEmptyKey
	}
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decode(raw)
}

// Update runs fn inside a WATCH transaction on the user's key and retries
// when another writer touched the key first.
func (s *Store) Update(ctx context.Context, userID string, fn session.UpdateFunc) (*session.Attempt, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, session.ErrEmptyKey
	}
	key := s.key(userID)

	var result *session.Attempt
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis get: %w", err)
		}
		var current *session.Attempt
		if err == nil {
			if current, err = decode(raw); err != nil {
				return s.reset(ctx, tx, key, err)
			}
		}

		next, err := fn(current.Clone())
		if errors.Is(err, session.ErrSkip) {
			result = current
			return nil
		}
		if err != nil {
			return err
		}

		var data []byte
		if next != nil {
			next = next.Clone()
			next.UpdatedAt = s.now().UTC()
			if data, err = json.Marshal(next); err != nil {
				return fmt.Errorf("encode attempt: %w", err)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result.Clone(), nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		logger.Debug(ctx, "quiz.store", "redis.retry",
			slog.String("session", userID),
			slog.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("%w: %s", session.ErrConflict, userID)
}

// reset drops an undecodable value inside the watch so a concurrent writer
// still fails the transaction instead of being overwritten.
func (s *Store) reset(ctx context.Context, tx *redis.Tx, key string, cause error) error {
	if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	}); err != nil {
		return err
	}
	logger.Warn(ctx, "quiz.store", "redis.reset",
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(cause.Error(), 256)),
	)
	return fmt.Errorf("%w: %w", session.ErrCorrupt, cause)
}

// Keys scans every attempt key and returns user ids.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 256).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, s.prefix))
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// Len counts attempt keys.
func (s *Store) Len(ctx context.Context) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func decode(raw []byte) (*session.Attempt, error) {
	var a session.Attempt
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode attempt: %w", err)
	}
	if a.Answers == nil {
		a.Answers = []string{}
	}
	return &a, nil
}
