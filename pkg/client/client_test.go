package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/muaviaUsmani/restock/internal/order"
	"github.com/muaviaUsmani/restock/internal/recurrence"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	c, err := NewClient("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	return c, mr
}

func validRecurringOrder() *order.RecurringOrder {
	return &order.RecurringOrder{
		SupplierID: "sup-1",
		Warehouse:  order.WarehouseUS,
		Frequency:  order.FrequencyDaily,
		Interval:   1,
		StartDate:  time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		Template: order.OrderTemplate{
			Items: []order.OrderItem{{SKU: "SKU-1", Quantity: 5, UnitPrice: 20}},
		},
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient("invalid://url"); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestSubmitRecurringOrder_AssignsID(t *testing.T) {
	c, _ := setupTestClient(t)
	defer c.Close()

	id, err := c.SubmitRecurringOrder(validRecurringOrder())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id == "" {
		t.Fatal("expected assigned order ID")
	}

	got, err := c.GetRecurringOrder(id)
	if err != nil {
		t.Fatalf("expected stored order readable, got %v", err)
	}
	if got.SupplierID != "sup-1" {
		t.Errorf("expected supplier sup-1, got %s", got.SupplierID)
	}
}

func TestSubmitRecurringOrder_KeepsCallerID(t *testing.T) {
	c, _ := setupTestClient(t)
	defer c.Close()

	o := validRecurringOrder()
	o.ID = "ro-fixed"

	id, err := c.SubmitRecurringOrder(o)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id != "ro-fixed" {
		t.Errorf("expected caller ID kept, got %s", id)
	}
}

func TestSubmitRecurringOrder_RejectsInvalid(t *testing.T) {
	c, _ := setupTestClient(t)
	defer c.Close()

	o := validRecurringOrder()
	o.Interval = 0

	_, err := c.SubmitRecurringOrder(o)
	if !errors.Is(err, recurrence.ErrInvalidRecurrence) {
		t.Fatalf("expected ErrInvalidRecurrence, got %v", err)
	}

	if _, err := c.SubmitRecurringOrder(nil); err == nil {
		t.Error("expected error for nil order")
	}
}

func TestGetExecution_RoundTrip(t *testing.T) {
	c, _ := setupTestClient(t)
	defer c.Close()
	ctx := context.Background()

	e := &order.ScheduledExecution{
		ID:          "exec-1",
		Warehouse:   order.WarehouseJP,
		Status:      order.StatusPending,
		ScheduledAt: time.Date(2025, 6, 10, 2, 0, 0, 0, time.UTC),
	}
	if err := c.store.SaveExecution(ctx, e); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := c.GetExecution("exec-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Warehouse != order.WarehouseJP {
		t.Errorf("expected warehouse JP, got %s", got.Warehouse)
	}
}

func TestPendingExecutions_SkipsStaleIndexEntries(t *testing.T) {
	c, mr := setupTestClient(t)
	defer c.Close()
	ctx := context.Background()

	live := &order.ScheduledExecution{
		ID:          "exec-live",
		Warehouse:   order.WarehouseEU,
		Status:      order.StatusPending,
		ScheduledAt: time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC),
	}
	stale := &order.ScheduledExecution{
		ID:          "exec-stale",
		Warehouse:   order.WarehouseEU,
		Status:      order.StatusPending,
		ScheduledAt: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
	}
	if err := c.store.SaveExecution(ctx, live); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := c.store.SaveExecution(ctx, stale); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Drop the stale record but leave its index entry behind.
	mr.Del("restock:execution:exec-stale")

	got, err := c.PendingExecutions(order.WarehouseEU, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 1 || got[0].ID != "exec-live" {
		t.Errorf("expected only the live execution, got %+v", got)
	}
}

func TestDeadLetteredExecutions(t *testing.T) {
	c, _ := setupTestClient(t)
	defer c.Close()
	ctx := context.Background()

	e := &order.ScheduledExecution{
		ID:        "exec-dead",
		Warehouse: order.WarehouseAU,
		Status:    order.StatusFailed,
		Error:     "retries exhausted",
	}
	if err := c.store.DeadLetter(ctx, e); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := c.DeadLetteredExecutions(10)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 1 || got[0].ID != "exec-dead" {
		t.Fatalf("expected the dead-lettered execution, got %+v", got)
	}
	if got[0].Error != "retries exhausted" {
		t.Errorf("expected failure message, got %q", got[0].Error)
	}
}
