// Package store persists scheduler state in Redis so executions survive
// daemon restarts and can be inspected by external tooling.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/muaviaUsmani/restock/internal/logger"
	"github.com/muaviaUsmani/restock/internal/order"
	"github.com/muaviaUsmani/restock/internal/serialization"
)

// RedisStore mirrors recurring orders and executions into Redis. Execution
// records live under per-ID keys; each warehouse additionally keeps a sorted
// set of pending execution IDs scored by scheduled time, and terminally
// failed executions land on a dead letter list.
type RedisStore struct {
	client *redis.Client
	codec  *serialization.Codec
	log    logger.Logger

	keyPrefix string
	// Pre-computed keys to avoid per-call string allocations
	deadLetterKey  string
	pendingKeys    map[order.Warehouse]string
	executionsKey  string
	ordersIndexKey string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing Redis client. The caller keeps
// ownership of the client's lifecycle when using this constructor directly.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	prefix := "restock:"

	pendingKeys := make(map[order.Warehouse]string, len(order.Warehouses()))
	for _, w := range order.Warehouses() {
		pendingKeys[w] = prefix + "pending:" + string(w)
	}

	return &RedisStore{
		client:         client,
		codec:          serialization.NewJSONCodec(),
		log:            logger.Default().WithComponent(logger.ComponentStore),
		keyPrefix:      prefix,
		deadLetterKey:  prefix + "deadletter",
		pendingKeys:    pendingKeys,
		executionsKey:  prefix + "executions",
		ordersIndexKey: prefix + "orders",
	}
}

// Key generation helpers
func (s *RedisStore) executionKey(id string) string {
	var b strings.Builder
	b.Grow(len(s.keyPrefix) + 10 + len(id)) // "execution:" = 10 chars
	b.WriteString(s.keyPrefix)
	b.WriteString("execution:")
	b.WriteString(id)
	return b.String()
}

func (s *RedisStore) orderKey(id string) string {
	var b strings.Builder
	b.Grow(len(s.keyPrefix) + 6 + len(id)) // "order:" = 6 chars
	b.WriteString(s.keyPrefix)
	b.WriteString("order:")
	b.WriteString(id)
	return b.String()
}

func (s *RedisStore) pendingKey(w order.Warehouse) string {
	if key, ok := s.pendingKeys[w]; ok {
		return key
	}
	return s.keyPrefix + "pending:" + string(w)
}

// SaveExecution writes an execution record and maintains the warehouse's
// pending index: pending executions are scored by scheduled time, every
// other status removes the ID from the index.
func (s *RedisStore) SaveExecution(ctx context.Context, e *order.ScheduledExecution) error {
	data, err := s.codec.Encode(e)
	if err != nil {
		return fmt.Errorf("failed to encode execution: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.executionKey(e.ID), data, 0)
	pipe.SAdd(ctx, s.executionsKey, e.ID)

	if e.Status == order.StatusPending {
		pipe.ZAdd(ctx, s.pendingKey(e.Warehouse), redis.Z{
			Score:  float64(e.ScheduledAt.Unix()),
			Member: e.ID,
		})
	} else {
		pipe.ZRem(ctx, s.pendingKey(e.Warehouse), e.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	s.log.DebugContext(ctx, "Saved execution",
		"execution_id", e.ID,
		"status", string(e.Status))
	return nil
}

// GetExecution retrieves an execution record by ID.
func (s *RedisStore) GetExecution(ctx context.Context, id string) (*order.ScheduledExecution, error) {
	data, err := s.client.Get(ctx, s.executionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("execution not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	var e order.ScheduledExecution
	if err := s.codec.Decode(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode execution: %w", err)
	}

	return &e, nil
}

// PendingExecutions returns the IDs of a warehouse's pending executions
// scheduled at or before the given instant, in scheduled-time order.
func (s *RedisStore) PendingExecutions(ctx context.Context, w order.Warehouse, until time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.pendingKey(w), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", until.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending executions: %w", err)
	}
	return ids, nil
}

// SaveOrder writes a recurring order record.
func (s *RedisStore) SaveOrder(ctx context.Context, o *order.RecurringOrder) error {
	data, err := s.codec.Encode(o)
	if err != nil {
		return fmt.Errorf("failed to encode recurring order: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.orderKey(o.ID), data, 0)
	pipe.SAdd(ctx, s.ordersIndexKey, o.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save recurring order: %w", err)
	}
	return nil
}

// GetOrder retrieves a recurring order record by ID.
func (s *RedisStore) GetOrder(ctx context.Context, id string) (*order.RecurringOrder, error) {
	data, err := s.client.Get(ctx, s.orderKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("recurring order not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recurring order: %w", err)
	}

	var o order.RecurringOrder
	if err := s.codec.Decode(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode recurring order: %w", err)
	}

	return &o, nil
}

// ListOrders returns the IDs of all stored recurring orders.
func (s *RedisStore) ListOrders(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.ordersIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring orders: %w", err)
	}
	return ids, nil
}

// DeadLetter records a terminally failed execution on the dead letter list
// and drops it from its warehouse's pending index.
func (s *RedisStore) DeadLetter(ctx context.Context, e *order.ScheduledExecution) error {
	data, err := s.codec.Encode(e)
	if err != nil {
		return fmt.Errorf("failed to encode execution: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.executionKey(e.ID), data, 0)
	pipe.LPush(ctx, s.deadLetterKey, e.ID)
	pipe.ZRem(ctx, s.pendingKey(e.Warehouse), e.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to dead-letter execution: %w", err)
	}

	s.log.WarnContext(ctx, "Execution dead-lettered",
		"execution_id", e.ID,
		"warehouse", string(e.Warehouse),
		"error", e.Error)
	return nil
}

// DeadLetters returns up to limit of the most recently dead-lettered
// execution IDs, newest first.
func (s *RedisStore) DeadLetters(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.client.LRange(ctx, s.deadLetterKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return ids, nil
}

// Client exposes the underlying Redis client for collaborators that share
// the connection, such as the leader lock.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	return nil
}
