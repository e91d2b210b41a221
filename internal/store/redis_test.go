package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/muaviaUsmani/restock/internal/order"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	st, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	return st, mr
}

func testExecution(id string, w order.Warehouse, status order.ExecutionStatus, scheduledAt time.Time) *order.ScheduledExecution {
	return &order.ScheduledExecution{
		ID:          id,
		Warehouse:   w,
		Status:      status,
		ScheduledAt: scheduledAt,
		MaxRetries:  order.DefaultMaxRetries,
	}
}

func TestNewRedisStore_Success(t *testing.T) {
	mr := miniredis.RunT(t)

	st, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer st.Close()

	if st.keyPrefix != "restock:" {
		t.Errorf("expected keyPrefix 'restock:', got %q", st.keyPrefix)
	}
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	if _, err := NewRedisStore("invalid://url"); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestNewRedisStore_ConnectionFailure(t *testing.T) {
	if _, err := NewRedisStore("redis://localhost:1"); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestSaveExecution_RoundTrip(t *testing.T) {
	st, _ := setupTestStore(t)
	defer st.Close()
	ctx := context.Background()

	e := testExecution("exec-1", order.WarehouseUS, order.StatusPending,
		time.Date(2025, 6, 10, 13, 30, 0, 0, time.UTC))
	e.Priority = order.PriorityHigh

	if err := st.SaveExecution(ctx, e); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := st.GetExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != e.ID || got.Warehouse != e.Warehouse || got.Priority != e.Priority {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.ScheduledAt.Equal(e.ScheduledAt) {
		t.Errorf("expected scheduled at %v, got %v", e.ScheduledAt, got.ScheduledAt)
	}
}

func TestGetExecution_NotFound(t *testing.T) {
	st, _ := setupTestStore(t)
	defer st.Close()

	if _, err := st.GetExecution(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing execution")
	}
}

func TestSaveExecution_MaintainsPendingIndex(t *testing.T) {
	st, _ := setupTestStore(t)
	defer st.Close()
	ctx := context.Background()

	early := testExecution("exec-early", order.WarehouseJP, order.StatusPending,
		time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC))
	late := testExecution("exec-late", order.WarehouseJP, order.StatusPending,
		time.Date(2025, 6, 10, 5, 0, 0, 0, time.UTC))
	future := testExecution("exec-future", order.WarehouseJP, order.StatusPending,
		time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	other := testExecution("exec-other", order.WarehouseEU, order.StatusPending,
		time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC))

	for _, e := range []*order.ScheduledExecution{late, early, future, other} {
		if err := st.SaveExecution(ctx, e); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	ids, err := st.PendingExecutions(ctx, order.WarehouseJP, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(ids) != 2 {
		t.Fatalf("expected 2 due JP executions, got %d: %v", len(ids), ids)
	}
	if ids[0] != "exec-early" || ids[1] != "exec-late" {
		t.Errorf("expected scheduled-time order, got %v", ids)
	}
}

func TestSaveExecution_TerminalLeavesPendingIndex(t *testing.T) {
	st, _ := setupTestStore(t)
	defer st.Close()
	ctx := context.Background()

	e := testExecution("exec-1", order.WarehouseUS, order.StatusPending,
		time.Date(2025, 6, 10, 13, 30, 0, 0, time.UTC))
	if err := st.SaveExecution(ctx, e); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	e.Status = order.StatusSucceeded
	if err := st.SaveExecution(ctx, e); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	ids, err := st.PendingExecutions(ctx, order.WarehouseUS, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected terminal execution out of the pending index, got %v", ids)
	}
}

func TestDeadLetter(t *testing.T) {
	st, _ := setupTestStore(t)
	defer st.Close()
	ctx := context.Background()

	first := testExecution("exec-1", order.WarehouseAU, order.StatusFailed, time.Now().UTC())
	first.Error = "supplier timeout"
	second := testExecution("exec-2", order.WarehouseAU, order.StatusFailed, time.Now().UTC())

	if err := st.DeadLetter(ctx, first); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := st.DeadLetter(ctx, second); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	ids, err := st.DeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 dead letters, got %d", len(ids))
	}
	// Newest first.
	if ids[0] != "exec-2" || ids[1] != "exec-1" {
		t.Errorf("expected newest-first order, got %v", ids)
	}

	got, err := st.GetExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("expected dead-lettered record readable, got %v", err)
	}
	if got.Error != "supplier timeout" {
		t.Errorf("expected failure message persisted, got %q", got.Error)
	}
}

func TestDeadLetters_LimitDefaults(t *testing.T) {
	st, _ := setupTestStore(t)
	defer st.Close()

	ids, err := st.DeadLetters(context.Background(), 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected empty dead letter list, got %v", ids)
	}
}

func TestSaveOrder_RoundTripAndList(t *testing.T) {
	st, _ := setupTestStore(t)
	defer st.Close()
	ctx := context.Background()

	o := &order.RecurringOrder{
		ID:         "ro-1",
		SupplierID: "sup-1",
		Warehouse:  order.WarehouseEU,
		Frequency:  order.FrequencyWeekly,
		Interval:   2,
		StartDate:  time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}

	if err := st.SaveOrder(ctx, o); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := st.GetOrder(ctx, "ro-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.SupplierID != "sup-1" || got.Frequency != order.FrequencyWeekly || got.Interval != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	ids, err := st.ListOrders(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ids) != 1 || ids[0] != "ro-1" {
		t.Errorf("expected [ro-1], got %v", ids)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	st, _ := setupTestStore(t)
	defer st.Close()

	if _, err := st.GetOrder(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing order")
	}
}
