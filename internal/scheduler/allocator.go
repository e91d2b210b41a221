package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/muaviaUsmani/restock/internal/calendar"
	"github.com/muaviaUsmani/restock/internal/order"
)

// Processing-time estimation bounds. Estimates grow with template size and
// total quantity and are capped to keep health math sane.
const (
	baseProcessingTime    = 2 * time.Minute
	perLineProcessingTime = 30 * time.Second
	perUnitProcessingTime = 5 * time.Second
	maxProcessingTime     = 30 * time.Minute
)

// Allocator tracks per-warehouse execution capacity. Each warehouse has its
// own lock so reservations against different warehouses never contend.
type Allocator struct {
	warehouses map[order.Warehouse]*capacityEntry
}

// capacityEntry is one warehouse's capacity counter. current never exceeds
// max and never goes negative; executions reserved beyond the ceiling are
// accounted in overflow and drain into current as releases free slots.
type capacityEntry struct {
	mu       sync.Mutex
	max      int
	current  int
	overflow int
}

// NewAllocator creates an allocator with one entry per supported warehouse.
// Ceilings come from the warehouse calendar, overridable per warehouse.
func NewAllocator(overrides map[order.Warehouse]int) (*Allocator, error) {
	warehouses := make(map[order.Warehouse]*capacityEntry, len(order.Warehouses()))
	for _, w := range order.Warehouses() {
		rec, err := calendar.Resolve(w)
		if err != nil {
			return nil, err
		}
		ceiling := rec.MaxConcurrentExecutions
		if override, ok := overrides[w]; ok {
			ceiling = override
		}
		warehouses[w] = &capacityEntry{max: ceiling}
	}
	return &Allocator{warehouses: warehouses}, nil
}

// Reserve claims a capacity slot for a new execution and returns the
// allocation snapshot. Reservation never fails on capacity: past the
// ceiling the snapshot reports saturation and the execution queues.
func (a *Allocator) Reserve(w order.Warehouse, tmpl order.OrderTemplate) (order.ResourceAllocation, error) {
	entry, ok := a.warehouses[w]
	if !ok {
		return order.ResourceAllocation{}, fmt.Errorf("%w: %q", calendar.ErrUnknownWarehouse, w)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.current < entry.max {
		entry.current++
	} else {
		entry.overflow++
	}

	return order.ResourceAllocation{
		MaxConcurrentExecutions: entry.max,
		CurrentExecutions:       entry.current,
		EstimatedProcessingTime: EstimateProcessingTime(tmpl),
		Saturated:               entry.current+entry.overflow >= entry.max,
	}, nil
}

// Release frees a capacity slot when an execution reaches a terminal state.
func (a *Allocator) Release(w order.Warehouse) {
	entry, ok := a.warehouses[w]
	if !ok {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.overflow > 0 {
		entry.overflow--
	} else if entry.current > 0 {
		entry.current--
	}
}

// Snapshot returns the current allocation state without reserving.
func (a *Allocator) Snapshot(w order.Warehouse) order.ResourceAllocation {
	entry, ok := a.warehouses[w]
	if !ok {
		return order.ResourceAllocation{}
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return order.ResourceAllocation{
		MaxConcurrentExecutions: entry.max,
		CurrentExecutions:       entry.current,
		Saturated:               entry.current+entry.overflow >= entry.max,
	}
}

// Load returns the warehouse's demand as a percentage of its ceiling,
// counting queued overflow, so a backed-up warehouse reads above 100 before
// clamping in the health layer.
func (a *Allocator) Load(w order.Warehouse) float64 {
	entry, ok := a.warehouses[w]
	if !ok || entry.max == 0 {
		return 0
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return float64(entry.current+entry.overflow) / float64(entry.max) * 100
}

// EstimateProcessingTime derives an execution-time estimate from the order
// template's size and total quantity.
func EstimateProcessingTime(tmpl order.OrderTemplate) time.Duration {
	var units int
	for _, item := range tmpl.Items {
		units += item.Quantity
	}

	estimate := baseProcessingTime +
		time.Duration(len(tmpl.Items))*perLineProcessingTime +
		time.Duration(units)*perUnitProcessingTime

	if estimate > maxProcessingTime {
		return maxProcessingTime
	}
	return estimate
}
