// Package order defines the recurring-order domain model shared by the
// scheduler core: recurring order contracts, scheduled executions, and
// priority assignment.
package order

import (
	"encoding/json"
	"time"
)

// Warehouse identifies one of the supported fulfillment warehouses.
type Warehouse string

const (
	// WarehouseUS is the United States warehouse (Eastern time)
	WarehouseUS Warehouse = "US"
	// WarehouseJP is the Japan warehouse (Tokyo time)
	WarehouseJP Warehouse = "JP"
	// WarehouseEU is the European warehouse (Berlin time)
	WarehouseEU Warehouse = "EU"
	// WarehouseAU is the Australian warehouse (Sydney time)
	WarehouseAU Warehouse = "AU"
)

// Warehouses lists every supported warehouse code. Health reporting emits
// one entry per element even when a warehouse has no executions.
func Warehouses() []Warehouse {
	return []Warehouse{WarehouseUS, WarehouseJP, WarehouseEU, WarehouseAU}
}

// Frequency represents how often a recurring order repeats.
type Frequency string

const (
	// FrequencyDaily advances by Interval days
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly advances by Interval weeks
	FrequencyWeekly Frequency = "weekly"
	// FrequencyMonthly advances by Interval calendar months
	FrequencyMonthly Frequency = "monthly"
	// FrequencyQuarterly advances by Interval quarters (3 months each)
	FrequencyQuarterly Frequency = "quarterly"
)

// OrderItem is one line of an order template.
type OrderItem struct {
	// SKU identifies the product
	SKU string `json:"sku"`
	// Name is an optional human-readable product name
	Name string `json:"name,omitempty"`
	// Quantity is the number of units ordered (validated non-negative upstream)
	Quantity int `json:"quantity"`
	// UnitPrice is the per-unit price (validated non-negative upstream)
	UnitPrice float64 `json:"unit_price"`
}

// OrderTemplate is the order payload realized on each execution. The
// scheduler only reads item quantities and prices for priority scoring;
// shipping and payment details pass through opaquely.
type OrderTemplate struct {
	Items    []OrderItem     `json:"items"`
	Shipping json.RawMessage `json:"shipping,omitempty"`
	Payment  json.RawMessage `json:"payment,omitempty"`
}

// NotificationSettings controls which terminal outcomes are reported to the
// notification dispatcher.
type NotificationSettings struct {
	NotifyOnSuccess bool   `json:"notify_on_success"`
	NotifyOnFailure bool   `json:"notify_on_failure"`
	Email           string `json:"email,omitempty"`
}

// RecurringOrder is the recurrence contract consumed by the scheduler. It is
// created and maintained by the order-management collaborator; the scheduler
// reads it to produce executions and writes back the rolling statistics
// after an execution resolves.
type RecurringOrder struct {
	// ID is the unique identifier for the recurring order
	ID string `json:"id"`
	// SupplierID identifies the owning supplier
	SupplierID string `json:"supplier_id"`
	// Warehouse is the target warehouse code
	Warehouse Warehouse `json:"warehouse"`
	// Frequency is how often the order repeats
	Frequency Frequency `json:"frequency"`
	// Interval is the multiplier applied to Frequency (must be >= 1)
	Interval int `json:"interval"`
	// StartDate anchors the recurrence
	StartDate time.Time `json:"start_date"`
	// NextExecutionDate, when set by the caller, overrides the computed
	// first candidate
	NextExecutionDate *time.Time `json:"next_execution_date,omitempty"`
	// LastExecutedAt is the instant of the most recent execution, if any
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
	// Template is the order payload realized on each execution
	Template OrderTemplate `json:"template"`

	// Approval settings
	AutoApprove       bool    `json:"auto_approve"`
	RequiresApproval  bool    `json:"requires_approval"`
	ApprovalThreshold float64 `json:"approval_threshold,omitempty"`

	// Notifications configures terminal-outcome reporting
	Notifications NotificationSettings `json:"notifications"`

	// Rolling statistics, updated by the scheduler after executions resolve
	TotalOrders       int64   `json:"total_orders"`
	TotalValue        float64 `json:"total_value"`
	SuccessRate       float64 `json:"success_rate"`
	AverageOrderValue float64 `json:"average_order_value"`
}

// RecordOutcome folds one resolved execution into the order's rolling
// statistics. succeeded executions contribute their estimated value.
func (o *RecurringOrder) RecordOutcome(succeeded bool, value float64) {
	o.TotalOrders++
	if succeeded {
		o.TotalValue += value
	}
	// Success rate over all resolved executions, 0-100.
	successes := o.SuccessRate / 100 * float64(o.TotalOrders-1)
	if succeeded {
		successes++
	}
	o.SuccessRate = successes / float64(o.TotalOrders) * 100
	if o.TotalOrders > 0 {
		o.AverageOrderValue = o.TotalValue / float64(o.TotalOrders)
	}
}
