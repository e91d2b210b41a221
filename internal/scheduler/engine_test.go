package scheduler

import (
	"testing"
	"time"

	"github.com/muaviaUsmani/restock/internal/calendar"
	"github.com/muaviaUsmani/restock/internal/order"
)

func usRecord(t *testing.T) *calendar.Record {
	t.Helper()
	rec, err := calendar.Resolve(order.WarehouseUS)
	if err != nil {
		t.Fatalf("failed to resolve US warehouse: %v", err)
	}
	return rec
}

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("failed to load location %s: %v", name, err)
	}
	return loc
}

// US window is 09:00-17:00 with a 30 minute buffer and a 16:00 cutoff, so
// the effective local window is [09:30, 16:00].

func TestResolve_WithinWindowUnchanged(t *testing.T) {
	engine := NewEngine()
	rec := usRecord(t)
	ny := mustLoc(t, "America/New_York")

	// Tuesday 14:00 local
	candidate := time.Date(2025, 6, 10, 14, 0, 0, 0, ny)

	got, err := engine.Resolve(candidate.UTC(), rec)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !got.Equal(candidate) {
		t.Errorf("expected candidate unchanged, got %v", got.In(ny))
	}
	if got.Location() != time.UTC {
		t.Error("expected resolved instant in UTC")
	}
}

func TestResolve_BeforeWindowSnapsToStart(t *testing.T) {
	engine := NewEngine()
	rec := usRecord(t)
	ny := mustLoc(t, "America/New_York")

	// Tuesday 04:00 local, well before opening
	candidate := time.Date(2025, 6, 10, 4, 0, 0, 0, ny)

	got, err := engine.Resolve(candidate.UTC(), rec)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	expected := time.Date(2025, 6, 10, 9, 30, 0, 0, ny)
	if !got.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, got.In(ny))
	}
}

func TestResolve_AfterCutoffRollsToNextDay(t *testing.T) {
	engine := NewEngine()
	rec := usRecord(t)
	ny := mustLoc(t, "America/New_York")

	// Tuesday 16:30 local, past the 16:00 cutoff
	candidate := time.Date(2025, 6, 10, 16, 30, 0, 0, ny)

	got, err := engine.Resolve(candidate.UTC(), rec)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	expected := time.Date(2025, 6, 11, 9, 30, 0, 0, ny)
	if !got.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, got.In(ny))
	}
}

func TestResolve_SkipsWeekend(t *testing.T) {
	engine := NewEngine()
	rec := usRecord(t)
	ny := mustLoc(t, "America/New_York")

	// Saturday noon local
	candidate := time.Date(2025, 6, 14, 12, 0, 0, 0, ny)

	got, err := engine.Resolve(candidate.UTC(), rec)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	expected := time.Date(2025, 6, 16, 9, 30, 0, 0, ny) // Monday
	if !got.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, got.In(ny))
	}
}

func TestResolve_SkipsHoliday(t *testing.T) {
	engine := NewEngine()
	rec := usRecord(t)
	ny := mustLoc(t, "America/New_York")

	// Friday 2025-07-04 is Independence Day; the weekend follows.
	candidate := time.Date(2025, 7, 4, 10, 0, 0, 0, ny)

	got, err := engine.Resolve(candidate.UTC(), rec)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	expected := time.Date(2025, 7, 7, 9, 30, 0, 0, ny) // Monday after
	if !got.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, got.In(ny))
	}
}

func TestResolve_DSTOffsetMatchesResolvedDate(t *testing.T) {
	engine := NewEngine()
	rec := usRecord(t)

	// Same local wall clock resolves to different UTC instants across the
	// spring-forward boundary (2025-03-09 in America/New_York).
	winter := time.Date(2025, 1, 6, 5, 0, 0, 0, time.UTC) // Monday 00:00 EST
	summer := time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC) // Monday 01:00 EDT

	gotWinter, err := engine.Resolve(winter, rec)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	gotSummer, err := engine.Resolve(summer, rec)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// 09:30 EST = 14:30 UTC; 09:30 EDT = 13:30 UTC.
	if gotWinter.Hour() != 14 || gotWinter.Minute() != 30 {
		t.Errorf("expected winter resolution at 14:30 UTC, got %v", gotWinter)
	}
	if gotSummer.Hour() != 13 || gotSummer.Minute() != 30 {
		t.Errorf("expected summer resolution at 13:30 UTC, got %v", gotSummer)
	}
}

func TestResolve_WeekendAllowed(t *testing.T) {
	engine := NewEngine()
	rec := &calendar.Record{
		Warehouse: order.WarehouseUS,
		Timezone:  "UTC",
		BusinessHours: map[time.Weekday]order.BusinessHours{
			time.Monday: {Open: "08:00", Close: "18:00"},
		},
		Holidays:   map[string]bool{},
		Window:     order.ExecutionWindow{StartTime: "09:00", EndTime: "17:00", AllowWeekends: true},
		CutoffTime: "16:00",
	}

	// Saturday noon stays on Saturday when weekends are allowed.
	candidate := time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)

	got, err := engine.Resolve(candidate, rec)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !got.Equal(candidate) {
		t.Errorf("expected Saturday execution to be allowed, got %v", got)
	}
}

func TestResolve_HolidayAllowed(t *testing.T) {
	engine := NewEngine()
	rec := &calendar.Record{
		Warehouse: order.WarehouseUS,
		Timezone:  "UTC",
		BusinessHours: map[time.Weekday]order.BusinessHours{
			time.Friday: {Open: "08:00", Close: "18:00"},
		},
		Holidays:   map[string]bool{"2025-07-04": true},
		Window:     order.ExecutionWindow{StartTime: "09:00", EndTime: "17:00", AllowHolidays: true},
		CutoffTime: "16:00",
	}

	candidate := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)

	got, err := engine.Resolve(candidate, rec)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !got.Equal(candidate) {
		t.Errorf("expected holiday execution to be allowed, got %v", got)
	}
}

func TestResolve_ResultInsideLocalWindow(t *testing.T) {
	engine := NewEngine()

	for _, w := range order.Warehouses() {
		rec, err := calendar.Resolve(w)
		if err != nil {
			t.Fatalf("failed to resolve warehouse: %v", err)
		}
		loc, err := rec.Loc()
		if err != nil {
			t.Fatalf("failed to load location: %v", err)
		}

		candidate := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 14; i++ {
			got, err := engine.Resolve(candidate, rec)
			if err != nil {
				t.Fatalf("warehouse %s: %v", w, err)
			}

			local := got.In(loc)
			start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).
				Add(time.Duration(rec.Window.BufferMinutes) * time.Minute)
			startH, startM, _ := parseClock(rec.Window.StartTime)
			start = start.Add(time.Duration(startH)*time.Hour + time.Duration(startM)*time.Minute)
			if local.Before(start) {
				t.Errorf("warehouse %s: %v before local window start %v", w, local, start)
			}

			candidate = candidate.Add(17 * time.Hour)
		}
	}
}

func TestBuildContext_CapturesSnapshot(t *testing.T) {
	engine := NewEngine()
	rec := usRecord(t)

	o := &order.RecurringOrder{
		SupplierID: "sup-7",
		Warehouse:  order.WarehouseUS,
	}
	alloc := order.ResourceAllocation{MaxConcurrentExecutions: 10, CurrentExecutions: 3}

	ctx := engine.BuildContext(o, rec, alloc)

	if ctx.SupplierID != "sup-7" {
		t.Errorf("expected supplier sup-7, got %s", ctx.SupplierID)
	}
	if ctx.TimezoneName != "America/New_York" {
		t.Errorf("expected timezone America/New_York, got %s", ctx.TimezoneName)
	}
	if ctx.CutoffTime != "16:00" {
		t.Errorf("expected cutoff 16:00, got %s", ctx.CutoffTime)
	}
	if len(ctx.BusinessHours) != 5 {
		t.Errorf("expected 5 business-hours entries, got %d", len(ctx.BusinessHours))
	}
	if ctx.Allocation.CurrentExecutions != 3 {
		t.Errorf("expected allocation snapshot carried over, got %+v", ctx.Allocation)
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := parseClock("09:30")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if h != 9 || m != 30 {
		t.Errorf("expected 9:30, got %d:%d", h, m)
	}

	if _, _, err := parseClock("25:00"); err == nil {
		t.Error("expected error for invalid hour")
	}
	if _, _, err := parseClock("not-a-time"); err == nil {
		t.Error("expected error for garbage input")
	}
}
