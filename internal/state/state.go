// Package state tracks each user's last successful digest cycle, so the
// Orchestrator can window episode selection from "since you were last
// caught up" instead of a fixed daily/weekly lookback once a user has run
// at least once.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DigestState is the per-user cursor persisted between cycles.
type DigestState struct {
	LastRunAt time.Time `json:"lastRunAt"`
}

// Manager reads and writes DigestState in Redis alongside the queue.
type Manager struct {
	client *redis.Client
}

// NewManager connects to addr and returns a ready Manager.
func NewManager(ctx context.Context, addr string) (*Manager, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Manager{client: client}, nil
}

func key(userID string) string { return "sifter:digest-state:" + userID }

// Get returns the user's last recorded cycle, or nil if they've never run.
func (m *Manager) Get(ctx context.Context, userID string) (*DigestState, error) {
	raw, err := m.client.Get(ctx, key(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get digest state for %s: %w", userID, err)
	}
	var s DigestState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("unmarshal digest state for %s: %w", userID, err)
	}
	return &s, nil
}

// Save records ranAt as userID's most recent successful cycle.
func (m *Manager) Save(ctx context.Context, userID string, ranAt time.Time) error {
	body, err := json.Marshal(DigestState{LastRunAt: ranAt})
	if err != nil {
		return fmt.Errorf("marshal digest state: %w", err)
	}
	if err := m.client.Set(ctx, key(userID), body, 0).Err(); err != nil {
		return fmt.Errorf("save digest state for %s: %w", userID, err)
	}
	return nil
}
