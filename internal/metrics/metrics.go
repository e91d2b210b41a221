// Package metrics tracks in-memory scheduling and dispatch metrics.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/muaviaUsmani/restock/internal/order"
)

// Collector is the global metrics collector instance
var (
	globalCollector *Collector
	once            sync.Once
)

// Collector tracks system-wide scheduling metrics in memory
type Collector struct {
	// Counters (atomic for thread-safety)
	totalScheduled atomic.Int64
	totalSucceeded atomic.Int64
	totalFailed    atomic.Int64
	totalRetries   atomic.Int64

	// Per-dimension tracking (protected by mutex)
	mu                  sync.RWMutex
	executionsByStatus  map[order.ExecutionStatus]int64
	scheduledByPriority map[order.Priority]int64
	durationByWarehouse map[order.Warehouse]time.Duration
	resolvedByWarehouse map[order.Warehouse]int64
	startTime           time.Time
}

// Metrics represents a snapshot of current scheduling metrics
type Metrics struct {
	TotalScheduled      int64                             `json:"total_scheduled"`
	TotalSucceeded      int64                             `json:"total_succeeded"`
	TotalFailed         int64                             `json:"total_failed"`
	TotalRetries        int64                             `json:"total_retries"`
	ExecutionsByStatus  map[order.ExecutionStatus]int64   `json:"executions_by_status"`
	ScheduledByPriority map[order.Priority]int64          `json:"scheduled_by_priority"`
	AvgProcessingTime   map[order.Warehouse]time.Duration `json:"avg_processing_time"`
	Uptime              time.Duration                     `json:"uptime"`
}

// Default returns the global metrics collector instance
func Default() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		executionsByStatus:  make(map[order.ExecutionStatus]int64),
		scheduledByPriority: make(map[order.Priority]int64),
		durationByWarehouse: make(map[order.Warehouse]time.Duration),
		resolvedByWarehouse: make(map[order.Warehouse]int64),
		startTime:           time.Now(),
	}
}

// RecordScheduled records a newly created pending execution
func (c *Collector) RecordScheduled(priority order.Priority) {
	c.totalScheduled.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduledByPriority[priority]++
	c.executionsByStatus[order.StatusPending]++
}

// RecordDispatched records a pending execution entering the running state
func (c *Collector) RecordDispatched() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executionsByStatus[order.StatusPending]--
	c.executionsByStatus[order.StatusRunning]++
}

// RecordSucceeded records a successfully completed execution
func (c *Collector) RecordSucceeded(w order.Warehouse, duration time.Duration) {
	c.totalSucceeded.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.executionsByStatus[order.StatusRunning]--
	c.executionsByStatus[order.StatusSucceeded]++
	c.durationByWarehouse[w] += duration
	c.resolvedByWarehouse[w]++
}

// RecordFailed records a terminally failed execution (retries exhausted)
func (c *Collector) RecordFailed(w order.Warehouse, duration time.Duration) {
	c.totalFailed.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.executionsByStatus[order.StatusRunning]--
	c.executionsByStatus[order.StatusFailed]++
	c.durationByWarehouse[w] += duration
	c.resolvedByWarehouse[w]++
}

// RecordRetry records a failed attempt that was rescheduled
func (c *Collector) RecordRetry() {
	c.totalRetries.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.executionsByStatus[order.StatusRunning]--
	c.executionsByStatus[order.StatusPending]++
}

// RecordCancelled records an explicitly cancelled execution
func (c *Collector) RecordCancelled(from order.ExecutionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executionsByStatus[from]--
	c.executionsByStatus[order.StatusCancelled]++
}

// AvgProcessingTime returns the average resolved-execution duration for a
// warehouse, zero when nothing has resolved yet.
func (c *Collector) AvgProcessingTime(w order.Warehouse) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	resolved := c.resolvedByWarehouse[w]
	if resolved == 0 {
		return 0
	}
	return c.durationByWarehouse[w] / time.Duration(resolved)
}

// GetMetrics returns a snapshot of current metrics
func (c *Collector) GetMetrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byStatus := make(map[order.ExecutionStatus]int64, len(c.executionsByStatus))
	for k, v := range c.executionsByStatus {
		byStatus[k] = v
	}

	byPriority := make(map[order.Priority]int64, len(c.scheduledByPriority))
	for k, v := range c.scheduledByPriority {
		byPriority[k] = v
	}

	avg := make(map[order.Warehouse]time.Duration, len(c.durationByWarehouse))
	for w, total := range c.durationByWarehouse {
		if resolved := c.resolvedByWarehouse[w]; resolved > 0 {
			avg[w] = total / time.Duration(resolved)
		}
	}

	return Metrics{
		TotalScheduled:      c.totalScheduled.Load(),
		TotalSucceeded:      c.totalSucceeded.Load(),
		TotalFailed:         c.totalFailed.Load(),
		TotalRetries:        c.totalRetries.Load(),
		ExecutionsByStatus:  byStatus,
		ScheduledByPriority: byPriority,
		AvgProcessingTime:   avg,
		Uptime:              time.Since(c.startTime),
	}
}

// Reset clears all metrics (useful for testing)
func (c *Collector) Reset() {
	c.totalScheduled.Store(0)
	c.totalSucceeded.Store(0)
	c.totalFailed.Store(0)
	c.totalRetries.Store(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.executionsByStatus = make(map[order.ExecutionStatus]int64)
	c.scheduledByPriority = make(map[order.Priority]int64)
	c.durationByWarehouse = make(map[order.Warehouse]time.Duration)
	c.resolvedByWarehouse = make(map[order.Warehouse]int64)
	c.startTime = time.Now()
}
