package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LeaderLock provides Redis-based leadership election so only one daemon
// instance drains executions against a shared store at a time.
type LeaderLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// AcquireLeaderLock attempts to take leadership. Returns the lock on
// success, nil when another instance already holds it.
func AcquireLeaderLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*LeaderLock, error) {
	token := uuid.New().String()

	acquired, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire leader lock: %w", err)
	}

	if !acquired {
		return nil, nil
	}

	return &LeaderLock{
		client: client,
		key:    key,
		token:  token,
		ttl:    ttl,
	}, nil
}

// Release gives up leadership. The Lua script ensures we only delete the
// key while we still own it.
func (l *LeaderLock) Release(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`

	_, err := l.client.Eval(ctx, script, []string{l.key}, l.token).Result()
	return err
}

// Extend renews the leadership TTL. Returns an error if leadership was lost
// in the meantime.
func (l *LeaderLock) Extend(ctx context.Context, ttl time.Duration) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`

	result, err := l.client.Eval(ctx, script, []string{l.key}, l.token, ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}

	if result == int64(0) {
		return fmt.Errorf("leader lock no longer owned by this instance")
	}

	l.ttl = ttl
	return nil
}

// Key returns the Redis key for this lock.
func (l *LeaderLock) Key() string {
	return l.key
}

// Token returns the lock's fencing token.
func (l *LeaderLock) Token() string {
	return l.token
}

// TTL returns the current lock time-to-live.
func (l *LeaderLock) TTL() time.Duration {
	return l.ttl
}
