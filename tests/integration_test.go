package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/muaviaUsmani/restock/internal/metrics"
	"github.com/muaviaUsmani/restock/internal/order"
	"github.com/muaviaUsmani/restock/internal/scheduler"
	"github.com/muaviaUsmani/restock/internal/store"
	"github.com/muaviaUsmani/restock/pkg/client"
)

// routingExecutor succeeds or fails by supplier so one test run can observe
// both outcomes.
type routingExecutor struct{}

func (routingExecutor) ExecuteOrder(ctx context.Context, e *order.ScheduledExecution, o *order.RecurringOrder) error {
	if e.Context.SupplierID == "flaky-supplier" {
		return errors.New("supplier unavailable")
	}
	return nil
}

func submitOrder(t *testing.T, c *client.Client, supplierID string, w order.Warehouse, due time.Time) *order.RecurringOrder {
	t.Helper()

	o := &order.RecurringOrder{
		SupplierID:        supplierID,
		Warehouse:         w,
		Frequency:         order.FrequencyDaily,
		Interval:          1,
		StartDate:         due.AddDate(0, 0, -7),
		NextExecutionDate: &due,
		Template: order.OrderTemplate{
			Items: []order.OrderItem{{SKU: "SKU-1", Quantity: 10, UnitPrice: 25}},
		},
	}

	if _, err := c.SubmitRecurringOrder(o); err != nil {
		t.Fatalf("failed to submit recurring order: %v", err)
	}
	return o
}

func awaitStatus(t *testing.T, c *client.Client, id string, pred func(*order.ScheduledExecution) bool, msg string) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		e, err := c.GetExecution(id)
		if err == nil && pred(e) {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting: %s (last: %+v, err: %v)", msg, e, err)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestScheduleDispatchRetryHealth_EndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := client.NewClient("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	st, err := store.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	// Fixed past instants inside each warehouse's execution window, so the
	// executions are due immediately.
	usDue := time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC) // Tue 14:00 in New York
	jpDue := time.Date(2025, 6, 10, 2, 0, 0, 0, time.UTC)  // Tue 11:00 in Tokyo

	good := submitOrder(t, c, "steady-supplier", order.WarehouseUS, usDue)
	bad := submitOrder(t, c, "flaky-supplier", order.WarehouseJP, jpDue)

	sched, err := scheduler.New(routingExecutor{}, nil,
		scheduler.WithStore(st),
		scheduler.WithMetrics(metrics.NewCollector()),
		scheduler.WithDrainInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	defer sched.Shutdown()

	ctx := context.Background()

	// The daemon recovers submitted orders from the shared store.
	ids, err := st.ListOrders(ctx)
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 stored orders, got %d", len(ids))
	}

	goodExec, err := sched.ScheduleRecurringOrder(ctx, good)
	if err != nil {
		t.Fatalf("failed to schedule: %v", err)
	}
	if !goodExec.ScheduledAt.Equal(usDue) {
		t.Errorf("expected in-window candidate kept, got %v", goodExec.ScheduledAt)
	}

	badExec, err := sched.ScheduleRecurringOrder(ctx, bad)
	if err != nil {
		t.Fatalf("failed to schedule: %v", err)
	}

	sched.Start(ctx)

	// The healthy order executes and its record lands in the store.
	awaitStatus(t, c, goodExec.ID, func(e *order.ScheduledExecution) bool {
		return e.Status == order.StatusSucceeded
	}, "steady supplier execution to succeed")

	// The flaky order fails and cycles back to pending with a retry.
	awaitStatus(t, c, badExec.ID, func(e *order.ScheduledExecution) bool {
		return e.RetryCount >= 1 && e.Error != ""
	}, "flaky supplier execution to record a retry")

	health := sched.GlobalScheduleHealth()
	if len(health.WarehouseMetrics) != 4 {
		t.Fatalf("expected 4 warehouse entries, got %d", len(health.WarehouseMetrics))
	}
	us := health.WarehouseMetrics[order.WarehouseUS]
	if us.SuccessRate != 100 {
		t.Errorf("expected US success rate 100, got %f", us.SuccessRate)
	}
	if health.TotalRecurringOrders < 2 {
		t.Errorf("expected at least 2 recurring orders, got %d", health.TotalRecurringOrders)
	}

	sched.Shutdown()

	// Shutdown is idempotent and scheduling afterwards is refused.
	sched.Shutdown()
	if _, err := sched.ScheduleRecurringOrder(ctx, good); err == nil {
		t.Error("expected scheduling to fail after shutdown")
	}
}

func TestCancelExecution_EndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)

	st, err := store.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	sched, err := scheduler.New(routingExecutor{}, nil,
		scheduler.WithStore(st),
		scheduler.WithMetrics(metrics.NewCollector()))
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	defer sched.Shutdown()

	ctx := context.Background()
	future := time.Now().UTC().Add(30 * 24 * time.Hour)
	o := &order.RecurringOrder{
		ID:         "ro-cancel",
		SupplierID: "steady-supplier",
		Warehouse:  order.WarehouseEU,
		Frequency:  order.FrequencyMonthly,
		Interval:   1,
		StartDate:  future,
		Template: order.OrderTemplate{
			Items: []order.OrderItem{{SKU: "SKU-2", Quantity: 1, UnitPrice: 10}},
		},
	}

	e, err := sched.ScheduleRecurringOrder(ctx, o)
	if err != nil {
		t.Fatalf("failed to schedule: %v", err)
	}

	if err := sched.CancelExecution(e.ID); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}

	stored, err := st.GetExecution(ctx, e.ID)
	if err != nil {
		t.Fatalf("expected cancelled record in store: %v", err)
	}
	if stored.Status != order.StatusCancelled {
		t.Errorf("expected cancelled, got %s", stored.Status)
	}

	// Cancelled executions leave the pending index.
	pending, err := st.PendingExecutions(ctx, order.WarehouseEU, future.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected empty pending index, got %v", pending)
	}
}
