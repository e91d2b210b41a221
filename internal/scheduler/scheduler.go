// Package scheduler implements the recurring-order scheduler core: the
// timezone scheduling engine, per-warehouse resource allocation, the
// execution retry state machine, and the priority-ordered dispatcher.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muaviaUsmani/restock/internal/calendar"
	"github.com/muaviaUsmani/restock/internal/health"
	"github.com/muaviaUsmani/restock/internal/logger"
	"github.com/muaviaUsmani/restock/internal/metrics"
	"github.com/muaviaUsmani/restock/internal/order"
	"github.com/muaviaUsmani/restock/internal/recurrence"
)

// Executor is the downstream order-placement collaborator invoked when an
// execution transitions to running.
type Executor interface {
	ExecuteOrder(ctx context.Context, e *order.ScheduledExecution, o *order.RecurringOrder) error
}

// Notifier receives terminal-outcome signals per notification settings.
type Notifier interface {
	ExecutionSucceeded(e *order.ScheduledExecution)
	RetriesExhausted(e *order.ScheduledExecution)
}

// Store mirrors execution records into durable storage. Persistence is
// best-effort from the core's perspective; failures are logged, never
// propagated into scheduling.
type Store interface {
	SaveExecution(ctx context.Context, e *order.ScheduledExecution) error
	DeadLetter(ctx context.Context, e *order.ScheduledExecution) error
}

// shard holds one warehouse's live state behind its own lock so warehouses
// never block each other.
type shard struct {
	mu         sync.RWMutex
	executions map[string]*order.ScheduledExecution
	orders     map[string]*order.RecurringOrder
}

// maxResolvedRetained caps how many terminal executions each warehouse keeps
// in memory. Health rates are computed over this rolling window; evicted
// records remain readable through the store.
const maxResolvedRetained = 256

// pruneResolved evicts the oldest terminal executions beyond the per-shard
// retention cap. Callers must hold sh.mu.
func (s *Scheduler) pruneResolved(sh *shard) {
	var resolved []*order.ScheduledExecution
	for _, e := range sh.executions {
		if e.IsTerminal() {
			resolved = append(resolved, e)
		}
	}
	if len(resolved) <= maxResolvedRetained {
		return
	}

	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].UpdatedAt.Before(resolved[j].UpdatedAt)
	})
	for _, e := range resolved[:len(resolved)-maxResolvedRetained] {
		delete(sh.executions, e.ID)
	}
}

// Scheduler is the public facade over the scheduling core.
type Scheduler struct {
	engine    *Engine
	allocator *Allocator
	retries   *RetryController
	executor  Executor
	notifier  Notifier
	store     Store
	collector *metrics.Collector
	log       logger.Logger

	drainInterval time.Duration
	shards        map[order.Warehouse]*shard

	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	shuttingDown atomic.Bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithNotifier attaches the notification collaborator.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithStore attaches the persistence projection.
func WithStore(st Store) Option {
	return func(s *Scheduler) { s.store = st }
}

// WithDrainInterval overrides how often the dispatcher checks for due
// executions (default 1s).
func WithDrainInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.drainInterval = d }
}

// WithMetrics overrides the metrics collector (fresh collectors in tests).
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Scheduler) { s.collector = c }
}

// WithLogger overrides the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New creates a scheduler with one state shard per supported warehouse.
// capacityOverrides replaces the calendar's default concurrency ceilings.
func New(executor Executor, capacityOverrides map[order.Warehouse]int, opts ...Option) (*Scheduler, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	allocator, err := NewAllocator(capacityOverrides)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		engine:        NewEngine(),
		allocator:     allocator,
		retries:       NewRetryController(),
		executor:      executor,
		collector:     metrics.Default(),
		log:           logger.Default().WithComponent(logger.ComponentScheduler),
		drainInterval: time.Second,
		shards:        make(map[order.Warehouse]*shard, len(order.Warehouses())),
		stopChan:      make(chan struct{}),
	}

	for _, w := range order.Warehouses() {
		s.shards[w] = &shard{
			executions: make(map[string]*order.ScheduledExecution),
			orders:     make(map[string]*order.RecurringOrder),
		}
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// ScheduleRecurringOrder turns a recurring order into a concrete pending
// execution in the target warehouse's next valid window. Safe for concurrent
// use; scheduling against different warehouses never contends. Capacity
// saturation never rejects scheduling; it is reported on the returned
// execution's allocation snapshot.
func (s *Scheduler) ScheduleRecurringOrder(ctx context.Context, o *order.RecurringOrder) (*order.ScheduledExecution, error) {
	if o == nil {
		return nil, fmt.Errorf("recurring order is required")
	}
	if s.shuttingDown.Load() {
		return nil, fmt.Errorf("scheduler is shut down")
	}

	candidate, err := recurrence.NextCandidate(o)
	if err != nil {
		return nil, err
	}

	rec, err := calendar.Resolve(o.Warehouse)
	if err != nil {
		return nil, err
	}

	resolved, err := s.engine.Resolve(candidate, rec)
	if err != nil {
		return nil, err
	}

	alloc, err := s.allocator.Reserve(o.Warehouse, o.Template)
	if err != nil {
		return nil, err
	}

	e := order.NewScheduledExecution(o, resolved, s.engine.BuildContext(o, rec, alloc))

	sh := s.shards[o.Warehouse]
	sh.mu.Lock()
	sh.executions[e.ID] = e
	sh.orders[o.ID] = o
	sh.mu.Unlock()

	s.collector.RecordScheduled(e.Priority)
	s.persist(ctx, e)

	s.log.InfoContext(ctx, "Execution scheduled",
		"execution_id", e.ID,
		"recurring_order_id", o.ID,
		"warehouse", string(o.Warehouse),
		"scheduled_at", e.ScheduledAt.Format(time.RFC3339),
		"priority", string(e.Priority))

	if alloc.Saturated {
		s.log.WarnContext(ctx, "Warehouse capacity saturated, execution will queue",
			"warehouse", string(o.Warehouse),
			"current", alloc.CurrentExecutions,
			"max", alloc.MaxConcurrentExecutions)
	}

	return e.Clone(), nil
}

// CancelExecution cancels a non-terminal execution and releases its
// capacity slot.
func (s *Scheduler) CancelExecution(id string) error {
	for _, w := range order.Warehouses() {
		sh := s.shards[w]

		sh.mu.Lock()
		e, ok := sh.executions[id]
		if !ok {
			sh.mu.Unlock()
			continue
		}

		prev := e.Status
		if err := s.retries.Cancel(e); err != nil {
			sh.mu.Unlock()
			return err
		}
		s.pruneResolved(sh)
		sh.mu.Unlock()

		s.collector.RecordCancelled(prev)
		s.allocator.Release(w)
		s.persist(context.Background(), e)

		s.log.Info("Execution cancelled", "execution_id", id, "warehouse", string(w))
		return nil
	}

	return fmt.Errorf("execution not found: %s", id)
}

// Execution returns a copy of the execution with the given ID.
func (s *Scheduler) Execution(id string) (*order.ScheduledExecution, bool) {
	for _, w := range order.Warehouses() {
		sh := s.shards[w]

		sh.mu.RLock()
		e, ok := sh.executions[id]
		if ok {
			clone := e.Clone()
			sh.mu.RUnlock()
			return clone, true
		}
		sh.mu.RUnlock()
	}
	return nil, false
}

// GlobalScheduleHealth computes the cross-warehouse health rollup. Each
// warehouse's snapshot is read under that warehouse's lock, so the per-
// warehouse numbers are internally consistent. Always returns one entry per
// supported warehouse.
func (s *Scheduler) GlobalScheduleHealth() *health.GlobalScheduleMetrics {
	now := time.Now().UTC()
	snapshots := make(map[order.Warehouse]*health.WarehouseSnapshot, len(s.shards))

	for _, w := range order.Warehouses() {
		sh := s.shards[w]
		rec, err := calendar.Resolve(w)
		location := ""
		if err == nil {
			location = rec.Location
		}

		sh.mu.RLock()
		executions := make([]*order.ScheduledExecution, 0, len(sh.executions))
		activeOrders := make(map[string]bool)
		for _, e := range sh.executions {
			executions = append(executions, e.Clone())
			if !e.IsTerminal() {
				activeOrders[e.RecurringOrderID] = true
			}
		}
		recurringOrders := len(sh.orders)
		sh.mu.RUnlock()

		snapshots[w] = &health.WarehouseSnapshot{
			Warehouse:         w,
			Location:          location,
			Executions:        executions,
			RecurringOrders:   recurringOrders,
			ActiveSchedules:   len(activeOrders),
			Allocation:        s.allocator.Snapshot(w),
			Load:              s.allocator.Load(w),
			AvgProcessingTime: s.collector.AvgProcessingTime(w),
		}
	}

	return health.Aggregate(snapshots, now)
}

// Shutdown stops the background dispatcher. Idempotent and bounded: it never
// waits on the downstream executor beyond a fixed grace period, and in-flight
// running executions are left untouched.
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() {
		s.shuttingDown.Store(true)
		close(s.stopChan)

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			s.log.Info("Scheduler stopped")
		case <-time.After(5 * time.Second):
			s.log.Warn("Scheduler shutdown timed out waiting for dispatcher")
		}
	})
}

// persist mirrors an execution into the store when one is attached.
func (s *Scheduler) persist(ctx context.Context, e *order.ScheduledExecution) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveExecution(ctx, e.Clone()); err != nil {
		s.log.WarnContext(ctx, "Failed to persist execution",
			"execution_id", e.ID,
			"error", err)
	}
}

// deadLetter records a terminally failed execution in the store's dead
// letter list when one is attached.
func (s *Scheduler) deadLetter(ctx context.Context, e *order.ScheduledExecution) {
	if s.store == nil {
		return
	}
	if err := s.store.DeadLetter(ctx, e.Clone()); err != nil {
		s.log.WarnContext(ctx, "Failed to dead-letter execution",
			"execution_id", e.ID,
			"error", err)
	}
}
