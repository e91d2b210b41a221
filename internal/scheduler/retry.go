package scheduler

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/muaviaUsmani/restock/internal/order"
)

// RetryController owns the execution state machine: PENDING -> RUNNING ->
// {SUCCEEDED, FAILED, CANCELLED}, with failed attempts cycling back to
// PENDING until the retry budget is spent.
type RetryController struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRetryController creates a retry controller.
func NewRetryController() *RetryController {
	return &RetryController{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Backoff returns the delay before the given retry attempt (1-based):
// 2^attempt seconds plus jitter up to half the base, so simultaneous
// failures don't retry in lockstep.
func (rc *RetryController) Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second

	rc.mu.Lock()
	jitter := time.Duration(rc.rng.Int63n(int64(base/2) + 1))
	rc.mu.Unlock()

	return base + jitter
}

// Begin transitions a pending execution to running.
func (rc *RetryController) Begin(e *order.ScheduledExecution) error {
	if e.Status != order.StatusPending {
		return fmt.Errorf("cannot begin execution %s in status %s", e.ID, e.Status)
	}
	e.UpdateStatus(order.StatusRunning)
	return nil
}

// Succeed transitions a running execution to its terminal succeeded state.
func (rc *RetryController) Succeed(e *order.ScheduledExecution) {
	e.Error = ""
	e.UpdateStatus(order.StatusSucceeded)
}

// HandleFailure applies failure bookkeeping to a running execution. When the
// retry budget allows, the execution goes back to pending with NextRetry set
// from the backoff and the function returns true; the caller re-resolves the
// retry instant through the scheduling engine. When the budget is spent the
// execution becomes terminal failed and the function returns false.
func (rc *RetryController) HandleFailure(e *order.ScheduledExecution, errMsg string, now time.Time) bool {
	e.Error = errMsg

	if e.RetryCount < e.MaxRetries {
		e.RetryCount++
		next := now.Add(rc.Backoff(e.RetryCount))
		e.NextRetry = &next
		e.UpdateStatus(order.StatusPending)
		return true
	}

	e.UpdateStatus(order.StatusFailed)
	return false
}

// Cancel transitions a non-terminal execution to cancelled.
func (rc *RetryController) Cancel(e *order.ScheduledExecution) error {
	if e.IsTerminal() {
		return fmt.Errorf("cannot cancel execution %s in terminal status %s", e.ID, e.Status)
	}
	e.UpdateStatus(order.StatusCancelled)
	return nil
}
