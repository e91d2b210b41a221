package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/muaviaUsmani/restock/internal/calendar"
	resterrors "github.com/muaviaUsmani/restock/internal/errors"
	"github.com/muaviaUsmani/restock/internal/logger"
	"github.com/muaviaUsmani/restock/internal/order"
)

// Start launches the background dispatcher that drains due executions on
// every tick. It returns immediately; Shutdown (or ctx cancellation) stops
// the loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log := s.log.WithComponent(logger.ComponentDispatcher)
		log.Info("Dispatcher started", "interval", s.drainInterval)

		ticker := time.NewTicker(s.drainInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				log.Info("Dispatcher stopping")
				return
			case <-ctx.Done():
				log.Info("Dispatcher stopping due to context cancellation")
				return
			case <-ticker.C:
				if count := s.drain(ctx, time.Now().UTC()); count > 0 {
					log.Debug("Drained due executions", "count", count)
				}
			}
		}
	}()
}

// drain dispatches every due pending execution, warehouse by warehouse.
// Within a warehouse higher priority drains first; ties go to the earlier
// scheduled instant, then the higher estimated value. Warehouses are
// independent: no ordering holds across them. Returns the dispatch count.
func (s *Scheduler) drain(ctx context.Context, now time.Time) int {
	var dispatched int
	for _, w := range order.Warehouses() {
		if s.shuttingDown.Load() {
			break
		}
		dispatched += s.drainWarehouse(ctx, w, now)
	}
	return dispatched
}

// drainWarehouse dispatches the due pending executions of one warehouse.
func (s *Scheduler) drainWarehouse(ctx context.Context, w order.Warehouse, now time.Time) int {
	sh := s.shards[w]

	type dispatchItem struct {
		execution *order.ScheduledExecution
		recurring *order.RecurringOrder
	}

	sh.mu.Lock()
	var due []dispatchItem
	for _, e := range sh.executions {
		if e.Status == order.StatusPending && !e.ScheduledAt.After(now) {
			due = append(due, dispatchItem{execution: e, recurring: sh.orders[e.RecurringOrderID]})
		}
	}

	sort.Slice(due, func(i, j int) bool {
		a, b := due[i].execution, due[j].execution
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		return a.EstimatedValue > b.EstimatedValue
	})

	for _, item := range due {
		// Begin cannot fail here; the status was checked under this lock.
		if err := s.retries.Begin(item.execution); err != nil {
			s.log.Error("Failed to begin execution",
				"execution_id", item.execution.ID,
				"error", err)
		}
	}
	sh.mu.Unlock()

	for _, item := range due {
		if s.shuttingDown.Load() {
			// Roll the not-yet-dispatched execution back to pending so the
			// next daemon run picks it up. A concurrent cancel is terminal
			// and stays that way.
			sh.mu.Lock()
			if item.execution.Status == order.StatusRunning {
				item.execution.UpdateStatus(order.StatusPending)
			}
			sh.mu.Unlock()
			continue
		}
		s.collector.RecordDispatched()
		s.runExecution(ctx, w, item.execution, item.recurring)
	}

	return len(due)
}

// runExecution invokes the downstream executor for one running execution and
// applies the outcome to the retry state machine.
func (s *Scheduler) runExecution(ctx context.Context, w order.Warehouse, e *order.ScheduledExecution, o *order.RecurringOrder) {
	sh := s.shards[w]

	execCtx := context.WithValue(ctx, logger.ContextKeyExecutionID, e.ID)
	execCtx = context.WithValue(execCtx, logger.ContextKeyWarehouse, string(w))

	execLog := s.log.WithComponent(logger.ComponentDispatcher).WithSource(logger.LogSourceExecution)
	execLog.InfoContext(execCtx, "Executing order",
		"execution_id", e.ID,
		"recurring_order_id", e.RecurringOrderID,
		"priority", string(e.Priority))

	start := time.Now()
	err := s.invokeExecutor(execCtx, e, o)
	duration := time.Since(start)
	now := time.Now().UTC()

	sh.mu.Lock()
	if e.Status != order.StatusRunning {
		// A cancel landed while the executor was in flight. The cancel path
		// already released the capacity slot and persisted the terminal
		// record, so the outcome is discarded.
		status := e.Status
		sh.mu.Unlock()
		execLog.InfoContext(execCtx, "Execution no longer running, outcome discarded",
			"execution_id", e.ID,
			"status", string(status))
		return
	}

	if err == nil {
		s.retries.Succeed(e)
		if o != nil {
			executedAt := e.ScheduledAt
			o.LastExecutedAt = &executedAt
			o.RecordOutcome(true, e.EstimatedValue)
		}
		s.pruneResolved(sh)
		sh.mu.Unlock()

		s.allocator.Release(w)
		s.collector.RecordSucceeded(w, duration)
		s.persist(ctx, e)

		if s.notifier != nil && o != nil && o.Notifications.NotifyOnSuccess {
			s.notifier.ExecutionSucceeded(e.Clone())
		}

		execLog.InfoContext(execCtx, "Execution succeeded",
			"execution_id", e.ID,
			"duration", duration)

		s.scheduleNext(ctx, o)
		return
	}

	retrying := s.retries.HandleFailure(e, err.Error(), now)
	var retryResolveErr error
	if retrying {
		// The backoff instant must still land in a valid window.
		e.ScheduledAt, retryResolveErr = s.resolveRetryInstant(w, *e.NextRetry)
	} else {
		if o != nil {
			o.RecordOutcome(false, 0)
		}
		s.pruneResolved(sh)
	}
	sh.mu.Unlock()

	if retrying {
		if retryResolveErr != nil {
			execLog.WarnContext(execCtx, "Failed to resolve retry window, using raw backoff instant",
				"execution_id", e.ID,
				"error", retryResolveErr)
		}
		s.collector.RecordRetry()
		s.persist(ctx, e)
		execLog.WarnContext(execCtx, "Execution failed, retry scheduled",
			"execution_id", e.ID,
			"attempt", e.RetryCount,
			"max_retries", e.MaxRetries,
			"next_retry", e.ScheduledAt.Format(time.RFC3339),
			"error", err)
		return
	}

	s.allocator.Release(w)
	s.collector.RecordFailed(w, duration)
	s.persist(ctx, e)
	s.deadLetter(ctx, e)

	if s.notifier != nil && (o == nil || o.Notifications.NotifyOnFailure) {
		s.notifier.RetriesExhausted(e.Clone())
	}

	execLog.ErrorContext(execCtx, "Execution failed terminally, retries exhausted",
		"execution_id", e.ID,
		"attempts", e.RetryCount,
		"error", err)
}

// resolveRetryInstant places a retry instant into the warehouse's next valid
// execution window. When resolution fails the raw backoff instant is returned
// alongside the error so the retry still honors its delay.
func (s *Scheduler) resolveRetryInstant(w order.Warehouse, at time.Time) (time.Time, error) {
	rec, err := calendar.Resolve(w)
	if err != nil {
		return at, err
	}
	resolved, err := s.engine.Resolve(at, rec)
	if err != nil {
		return at, err
	}
	return resolved, nil
}

// invokeExecutor calls the downstream collaborator, converting panics into
// errors so a broken handler cannot take the dispatcher down.
func (s *Scheduler) invokeExecutor(ctx context.Context, e *order.ScheduledExecution, o *order.RecurringOrder) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := resterrors.FromPanic(r)
			s.log.ErrorContext(ctx, "Executor panicked",
				"execution_id", e.ID,
				"panic_value", r,
				"stack_trace", perr.Stacktrace)
			err = perr
		}
	}()

	return s.executor.ExecuteOrder(ctx, e.Clone(), o)
}

// scheduleNext creates the next occurrence of a recurring order after a
// successful execution, keeping the schedule rolling without caller action.
func (s *Scheduler) scheduleNext(ctx context.Context, o *order.RecurringOrder) {
	if o == nil || s.shuttingDown.Load() {
		return
	}

	next, err := s.ScheduleRecurringOrder(ctx, o)
	if err != nil {
		s.log.WarnContext(ctx, "Failed to schedule next occurrence",
			"recurring_order_id", o.ID,
			"error", err)
		return
	}

	s.log.DebugContext(ctx, "Next occurrence scheduled",
		"recurring_order_id", o.ID,
		"execution_id", next.ID,
		"scheduled_at", next.ScheduledAt.Format(time.RFC3339))
}
