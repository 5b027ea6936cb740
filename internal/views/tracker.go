// Package views de-duplicates view counting. The counter itself lives in
// Postgres; Redis only remembers which (prompt, actor) pairs were counted
// recently so a page refresh does not inflate the number.
package views

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Tracker struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewTracker connects to Redis and verifies the connection.
func NewTracker(redisURL string, window time.Duration) (*Tracker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewTrackerWithClient(client, window), nil
}

// NewTrackerWithClient wraps an existing Redis client.
func NewTrackerWithClient(client *redis.Client, window time.Duration) *Tracker {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &Tracker{
		client: client,
		window: window,
		prefix: "view:",
	}
}

func (t *Tracker) key(promptID, actorID string) string {
	return t.prefix + promptID + ":" + actorID
}

// ShouldCount reports whether this actor's view of the prompt should be
// counted. The first call within the window wins; repeats return false
// until the key expires.
func (t *Tracker) ShouldCount(ctx context.Context, promptID, actorID string) (bool, error) {
	set, err := t.client.SetNX(ctx, t.key(promptID, actorID), 1, t.window).Result()
	if err != nil {
		return false, fmt.Errorf("mark view: %w", err)
	}
	return set, nil
}

func (t *Tracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *Tracker) Close() error {
	return t.client.Close()
}
