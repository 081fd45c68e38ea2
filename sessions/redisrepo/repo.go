// Package redisrepo provides a Redis-backed sessions.Repo. Sessions are
// stored as JSON values keyed by session ID with a TTL matching the hard
// session expiry, so expired sessions clean themselves up.
package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/printhaus/storeauth/internal/errors"
	"github.com/printhaus/storeauth/sessions"
)

const keyPrefix = "session:"

var _ sessions.Repo = (*Repo)(nil)

type Repo struct {
	rc *redis.Client
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// Connect creates a Redis client and verifies it with a ping.
func Connect(ctx context.Context, opts Options) (*Repo, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis: address is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &Repo{rc: client}, nil
}

// NewRepo wraps an existing Redis client.
func NewRepo(rc *redis.Client) *Repo {
	return &Repo{rc: rc}
}

func (r *Repo) Close() error {
	return r.rc.Close()
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

func (r *Repo) Upsert(ctx context.Context, session *sessions.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis: marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.ErrSessionExpired
	}

	if err := r.rc.Set(ctx, key(session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set session: %w", err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, sessionID string) (*sessions.Session, error) {
	data, err := r.rc.Get(ctx, key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get session: %w", err)
	}

	var session sessions.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("redis: unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *Repo) Delete(ctx context.Context, sessionID string) error {
	if err := r.rc.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis: delete session: %w", err)
	}
	return nil
}

func (r *Repo) Touch(ctx context.Context, sessionID string, at time.Time) error {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.LastActivity = at
	return r.Upsert(ctx, session)
}

// DeleteExpired is a no-op for Redis; key TTLs already enforce expiry.
func (r *Repo) DeleteExpired(context.Context, time.Time) error {
	return nil
}
