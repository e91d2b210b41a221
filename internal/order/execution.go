package order

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus represents the current status of a scheduled execution.
type ExecutionStatus string

const (
	// StatusPending indicates the execution is waiting for its window
	StatusPending ExecutionStatus = "pending"
	// StatusRunning indicates the downstream collaborator is processing it
	StatusRunning ExecutionStatus = "running"
	// StatusSucceeded indicates the order was placed successfully (terminal)
	StatusSucceeded ExecutionStatus = "succeeded"
	// StatusFailed indicates the execution failed with retries exhausted (terminal)
	StatusFailed ExecutionStatus = "failed"
	// StatusCancelled indicates the execution was cancelled (terminal)
	StatusCancelled ExecutionStatus = "cancelled"
)

// Priority represents the dispatch priority tier of an execution.
type Priority string

const (
	// PriorityUrgent executions are dispatched before all others
	PriorityUrgent Priority = "urgent"
	// PriorityHigh indicates high-value orders
	PriorityHigh Priority = "high"
	// PriorityNormal is the default tier
	PriorityNormal Priority = "normal"
	// PriorityLow indicates low-value orders that can wait
	PriorityLow Priority = "low"
)

// Rank maps a priority to its dispatch rank; lower rank drains first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// DefaultMaxRetries is the fixed retry budget for every execution.
const DefaultMaxRetries = 3

// BusinessHours is a single weekday's open/close range in "HH:MM" 24-hour
// warehouse-local time.
type BusinessHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// ExecutionWindow bounds the warehouse-local time of day during which
// executions may run.
type ExecutionWindow struct {
	// StartTime and EndTime are "HH:MM" 24-hour local times
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	// AllowWeekends permits execution on Saturday/Sunday
	AllowWeekends bool `json:"allow_weekends"`
	// AllowHolidays permits execution on warehouse holidays
	AllowHolidays bool `json:"allow_holidays"`
	// BufferMinutes is the safety margin kept from both window edges
	BufferMinutes int `json:"buffer_minutes"`
}

// ResourceAllocation is a capacity snapshot captured when an execution is
// scheduled. CurrentExecutions <= MaxConcurrentExecutions at capture time.
type ResourceAllocation struct {
	MaxConcurrentExecutions int `json:"max_concurrent_executions"`
	CurrentExecutions       int `json:"current_executions"`
	// EstimatedProcessingTime is derived from template size and quantities
	EstimatedProcessingTime time.Duration `json:"estimated_processing_time"`
	// Saturated is set when the warehouse is at its concurrency ceiling.
	// Informational only: scheduling is never rejected on capacity.
	Saturated bool `json:"saturated"`
}

// ExecutionContext is the immutable scheduling snapshot embedded in a
// ScheduledExecution.
type ExecutionContext struct {
	SupplierID        string `json:"supplier_id"`
	WarehouseLocation string `json:"warehouse_location"`
	TimezoneName      string `json:"timezone_name"`
	// BusinessHours maps lowercase weekday names to open/close ranges
	BusinessHours map[string]BusinessHours `json:"business_hours"`
	// CutoffTime is the local "HH:MM" after which same-day execution is
	// no longer attempted
	CutoffTime string             `json:"cutoff_time"`
	Window     ExecutionWindow    `json:"execution_window"`
	Allocation ResourceAllocation `json:"resource_allocation"`
}

// ScheduledExecution is one concrete, time-bound attempt to realize a
// recurring order.
type ScheduledExecution struct {
	// ID is the unique identifier for this execution
	ID string `json:"id"`
	// RecurringOrderID references the recurring order (back-reference,
	// not ownership)
	RecurringOrderID string `json:"recurring_order_id"`
	// Warehouse is the target warehouse code
	Warehouse Warehouse `json:"warehouse"`
	// Status is the current lifecycle state
	Status ExecutionStatus `json:"status"`
	// ScheduledAt is the resolved execution instant in UTC
	ScheduledAt time.Time `json:"scheduled_at"`
	// WarehouseTimezone is the IANA timezone of the target warehouse
	WarehouseTimezone string `json:"warehouse_timezone"`
	// Priority determines dispatch order under contention
	Priority Priority `json:"priority"`
	// EstimatedValue is the scored template value, used to break dispatch
	// ties within a priority tier
	EstimatedValue float64 `json:"estimated_value"`
	// RetryCount never exceeds MaxRetries
	RetryCount int `json:"retry_count"`
	// MaxRetries is fixed at DefaultMaxRetries for all executions
	MaxRetries int `json:"max_retries"`
	// NextRetry is set only after at least one failed attempt
	NextRetry *time.Time `json:"next_retry,omitempty"`
	// Context is the immutable scheduling snapshot
	Context ExecutionContext `json:"execution_context"`
	// Error holds the most recent failure message, if any
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewScheduledExecution creates a pending execution for the given recurring
// order at the resolved UTC instant.
func NewScheduledExecution(o *RecurringOrder, scheduledAt time.Time, ctx ExecutionContext) *ScheduledExecution {
	now := time.Now().UTC()
	return &ScheduledExecution{
		ID:                uuid.New().String(),
		RecurringOrderID:  o.ID,
		Warehouse:         o.Warehouse,
		Status:            StatusPending,
		ScheduledAt:       scheduledAt.UTC(),
		WarehouseTimezone: ctx.TimezoneName,
		Priority:          AssignPriority(o),
		EstimatedValue:    EstimatedValue(o),
		RetryCount:        0,
		MaxRetries:        DefaultMaxRetries,
		Context:           ctx,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Clone returns a deep copy safe to hand to callers while the scheduler
// keeps mutating the original.
func (e *ScheduledExecution) Clone() *ScheduledExecution {
	clone := *e
	if e.NextRetry != nil {
		next := *e.NextRetry
		clone.NextRetry = &next
	}
	if e.Context.BusinessHours != nil {
		hours := make(map[string]BusinessHours, len(e.Context.BusinessHours))
		for k, v := range e.Context.BusinessHours {
			hours[k] = v
		}
		clone.Context.BusinessHours = hours
	}
	return &clone
}

// UpdateStatus updates the execution's status and UpdatedAt timestamp.
func (e *ScheduledExecution) UpdateStatus(status ExecutionStatus) {
	e.Status = status
	e.UpdatedAt = time.Now().UTC()
}

// IsTerminal reports whether no further transitions can occur.
func (e *ScheduledExecution) IsTerminal() bool {
	switch e.Status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
