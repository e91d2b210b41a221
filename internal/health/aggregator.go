// Package health derives per-warehouse and global schedule health snapshots
// from the live execution set.
package health

import (
	"fmt"
	"time"

	"github.com/muaviaUsmani/restock/internal/order"
)

// Alert thresholds. Success rates below the warning threshold produce a
// warning, below the critical threshold a critical issue; utilization works
// the same way at its own thresholds.
const (
	successRateWarning  = 80.0
	successRateCritical = 50.0
	utilizationWarning  = 80.0
	utilizationCritical = 100.0
	// retryClusterMin is the minimum pending retry count before retry
	// clustering is flagged
	retryClusterMin = 3
)

// WarehouseSnapshot is the per-warehouse input to aggregation: a consistent
// copy of one warehouse's executions plus its capacity state.
type WarehouseSnapshot struct {
	Warehouse order.Warehouse
	Location  string
	// Executions are clones; aggregation never mutates scheduler state
	Executions      []*order.ScheduledExecution
	RecurringOrders int
	ActiveSchedules int
	Allocation      order.ResourceAllocation
	// Load is demand over ceiling in percent, queued overflow included,
	// so it may exceed 100 before clamping
	Load              float64
	AvgProcessingTime time.Duration
}

// ScheduleHealth is the derived health snapshot for one warehouse.
type ScheduleHealth struct {
	WarehouseID         string        `json:"warehouse_id"`
	WarehouseLocation   string        `json:"warehouse_location"`
	TotalScheduled      int           `json:"total_scheduled"`
	PendingExecutions   int           `json:"pending_executions"`
	RunningExecutions   int           `json:"running_executions"`
	FailedExecutions    int           `json:"failed_executions"`
	SuccessRate         float64       `json:"success_rate"`
	AvgProcessingTime   time.Duration `json:"avg_processing_time"`
	SystemLoad          float64       `json:"system_load"`
	ResourceUtilization float64       `json:"resource_utilization"`
	UpcomingExecutions  int           `json:"upcoming_executions"`
	CriticalIssues      []string      `json:"critical_issues"`
	Warnings            []string      `json:"warnings"`
}

// SystemCapacity is the cross-warehouse capacity rollup.
type SystemCapacity struct {
	Current               int     `json:"current"`
	Maximum               int     `json:"maximum"`
	UtilizationPercentage float64 `json:"utilization_percentage"`
}

// GlobalScheduleMetrics is the cross-warehouse health rollup. WarehouseMetrics
// always carries exactly one entry per supported warehouse.
type GlobalScheduleMetrics struct {
	TotalRecurringOrders int                                 `json:"total_recurring_orders"`
	ActiveSchedules      int                                 `json:"active_schedules"`
	ExecutionsToday      int                                 `json:"executions_today"`
	ExecutionsThisWeek   int                                 `json:"executions_this_week"`
	GlobalSuccessRate    float64                             `json:"global_success_rate"`
	WarehouseMetrics     map[order.Warehouse]*ScheduleHealth `json:"warehouse_metrics"`
	SystemCapacity       SystemCapacity                      `json:"system_capacity"`
	AlertCount           int                                 `json:"alert_count"`
}

// Aggregate computes the global health rollup from per-warehouse snapshots.
// Warehouses missing from the input get an all-zero entry so the rollup
// always covers the full warehouse set.
func Aggregate(snapshots map[order.Warehouse]*WarehouseSnapshot, now time.Time) *GlobalScheduleMetrics {
	global := &GlobalScheduleMetrics{
		WarehouseMetrics: make(map[order.Warehouse]*ScheduleHealth, len(order.Warehouses())),
	}

	var totalSucceeded, totalResolved int

	for _, w := range order.Warehouses() {
		snap, ok := snapshots[w]
		if !ok {
			global.WarehouseMetrics[w] = &ScheduleHealth{
				WarehouseID:    string(w),
				CriticalIssues: []string{},
				Warnings:       []string{},
			}
			continue
		}

		sh := aggregateWarehouse(snap, now)
		global.WarehouseMetrics[w] = sh

		global.TotalRecurringOrders += snap.RecurringOrders
		global.ActiveSchedules += snap.ActiveSchedules
		global.AlertCount += len(sh.CriticalIssues) + len(sh.Warnings)

		global.SystemCapacity.Current += snap.Allocation.CurrentExecutions
		global.SystemCapacity.Maximum += snap.Allocation.MaxConcurrentExecutions

		dayStart := now.UTC().Truncate(24 * time.Hour)
		weekStart := startOfWeek(now.UTC())
		for _, e := range snap.Executions {
			if !e.ScheduledAt.Before(dayStart) && e.ScheduledAt.Before(dayStart.Add(24*time.Hour)) {
				global.ExecutionsToday++
			}
			if !e.ScheduledAt.Before(weekStart) && e.ScheduledAt.Before(weekStart.Add(7*24*time.Hour)) {
				global.ExecutionsThisWeek++
			}
			switch e.Status {
			case order.StatusSucceeded:
				totalSucceeded++
				totalResolved++
			case order.StatusFailed:
				totalResolved++
			}
		}
	}

	if totalResolved > 0 {
		global.GlobalSuccessRate = clampRate(float64(totalSucceeded) / float64(totalResolved) * 100)
	} else {
		global.GlobalSuccessRate = 100
	}

	if global.SystemCapacity.Maximum > 0 {
		global.SystemCapacity.UtilizationPercentage = clampRate(
			float64(global.SystemCapacity.Current) / float64(global.SystemCapacity.Maximum) * 100)
	}

	return global
}

// aggregateWarehouse computes one warehouse's health from its snapshot.
func aggregateWarehouse(snap *WarehouseSnapshot, now time.Time) *ScheduleHealth {
	sh := &ScheduleHealth{
		WarehouseID:       string(snap.Warehouse),
		WarehouseLocation: snap.Location,
		TotalScheduled:    len(snap.Executions),
		AvgProcessingTime: snap.AvgProcessingTime,
		CriticalIssues:    []string{},
		Warnings:          []string{},
	}

	var succeeded, pendingRetries int
	for _, e := range snap.Executions {
		switch e.Status {
		case order.StatusPending:
			sh.PendingExecutions++
			if e.ScheduledAt.After(now) {
				sh.UpcomingExecutions++
			}
			if e.RetryCount > 0 {
				pendingRetries++
			}
		case order.StatusRunning:
			sh.RunningExecutions++
		case order.StatusSucceeded:
			succeeded++
		case order.StatusFailed:
			sh.FailedExecutions++
		}
	}

	resolved := succeeded + sh.FailedExecutions
	if resolved > 0 {
		sh.SuccessRate = clampRate(float64(succeeded) / float64(resolved) * 100)
	} else {
		// Nothing has resolved yet; report healthy rather than alarming.
		sh.SuccessRate = 100
	}

	sh.SystemLoad = clampRate(snap.Load)
	if snap.Allocation.MaxConcurrentExecutions > 0 {
		sh.ResourceUtilization = clampRate(
			float64(snap.Allocation.CurrentExecutions) / float64(snap.Allocation.MaxConcurrentExecutions) * 100)
	}

	if resolved > 0 {
		switch {
		case sh.SuccessRate < successRateCritical:
			sh.CriticalIssues = append(sh.CriticalIssues,
				fmt.Sprintf("success rate critically low: %.1f%%", sh.SuccessRate))
		case sh.SuccessRate < successRateWarning:
			sh.Warnings = append(sh.Warnings,
				fmt.Sprintf("success rate degraded: %.1f%%", sh.SuccessRate))
		}
	}

	switch {
	case snap.Load >= utilizationCritical:
		sh.CriticalIssues = append(sh.CriticalIssues, "execution capacity saturated")
	case snap.Load >= utilizationWarning:
		sh.Warnings = append(sh.Warnings,
			fmt.Sprintf("execution capacity nearly saturated: %.0f%%", sh.SystemLoad))
	}

	if pendingRetries >= retryClusterMin && pendingRetries*2 > sh.PendingExecutions {
		sh.Warnings = append(sh.Warnings,
			fmt.Sprintf("retries clustering: %d of %d pending executions are retries", pendingRetries, sh.PendingExecutions))
	}

	return sh
}

// startOfWeek returns the Monday 00:00 UTC of t's week.
func startOfWeek(t time.Time) time.Time {
	day := t.Truncate(24 * time.Hour)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func clampRate(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
