// Package client provides a simple API for submitting recurring orders and
// inspecting their scheduled executions.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/muaviaUsmani/restock/internal/order"
	"github.com/muaviaUsmani/restock/internal/recurrence"
	"github.com/muaviaUsmani/restock/internal/store"
)

// Client talks to the shared Redis store used by the scheduler daemon.
type Client struct {
	store *store.RedisStore
	ctx   context.Context
}

// NewClient creates a new client connected to Redis.
func NewClient(redisURL string) (*Client, error) {
	st, err := store.NewRedisStore(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		store: st,
		ctx:   context.Background(),
	}, nil
}

// SubmitRecurringOrder validates and stores a recurring order for the daemon
// to pick up. An ID is assigned when the order doesn't carry one.
// Returns the order ID on success.
func (c *Client) SubmitRecurringOrder(o *order.RecurringOrder) (string, error) {
	if o == nil {
		return "", fmt.Errorf("recurring order is required")
	}

	if err := recurrence.Validate(o); err != nil {
		return "", err
	}

	if o.ID == "" {
		o.ID = uuid.New().String()
	}

	if err := c.store.SaveOrder(c.ctx, o); err != nil {
		return "", fmt.Errorf("failed to submit recurring order: %w", err)
	}

	return o.ID, nil
}

// GetRecurringOrder retrieves a recurring order by its ID.
func (c *Client) GetRecurringOrder(id string) (*order.RecurringOrder, error) {
	o, err := c.store.GetOrder(c.ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get recurring order: %w", err)
	}
	return o, nil
}

// GetExecution retrieves a scheduled execution by its ID.
func (c *Client) GetExecution(id string) (*order.ScheduledExecution, error) {
	e, err := c.store.GetExecution(c.ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return e, nil
}

// PendingExecutions returns a warehouse's pending executions scheduled at or
// before the given instant, earliest first.
func (c *Client) PendingExecutions(w order.Warehouse, until time.Time) ([]*order.ScheduledExecution, error) {
	ids, err := c.store.PendingExecutions(c.ctx, w, until)
	if err != nil {
		return nil, err
	}

	executions := make([]*order.ScheduledExecution, 0, len(ids))
	for _, id := range ids {
		e, err := c.store.GetExecution(c.ctx, id)
		if err != nil {
			// Index entries can outlive their records; skip the stale ID.
			continue
		}
		executions = append(executions, e)
	}
	return executions, nil
}

// DeadLetteredExecutions returns up to limit of the most recently
// dead-lettered executions, newest first.
func (c *Client) DeadLetteredExecutions(limit int64) ([]*order.ScheduledExecution, error) {
	ids, err := c.store.DeadLetters(c.ctx, limit)
	if err != nil {
		return nil, err
	}

	executions := make([]*order.ScheduledExecution, 0, len(ids))
	for _, id := range ids {
		e, err := c.store.GetExecution(c.ctx, id)
		if err != nil {
			continue
		}
		executions = append(executions, e)
	}
	return executions, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
