package scheduler

import (
	"fmt"
	"time"

	"github.com/muaviaUsmani/restock/internal/calendar"
	"github.com/muaviaUsmani/restock/internal/order"
)

// maxWindowScanDays bounds the search for a valid execution window. A year
// of consecutive closed days means the calendar itself is broken.
const maxWindowScanDays = 366

// Engine snaps candidate UTC instants into valid warehouse-local execution
// windows. It is stateless and safe for concurrent use.
type Engine struct{}

// NewEngine creates a timezone scheduling engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Resolve converts a candidate UTC instant into the nearest instant that
// falls inside the warehouse's execution window on an allowed day, applying
// the configured buffer from both window edges. The result is returned in
// UTC; converted back to warehouse-local time it lies within
// [window start + buffer, window end - buffer].
//
// Local instants are constructed in the warehouse location at the resolved
// date, so DST offsets are the ones in force on that date. A candidate
// landing in a spring-forward gap normalizes to the first valid instant
// after the gap.
func (e *Engine) Resolve(candidate time.Time, rec *calendar.Record) (time.Time, error) {
	loc, err := rec.Loc()
	if err != nil {
		return time.Time{}, err
	}

	startH, startM, err := parseClock(rec.Window.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("warehouse %s window start: %w", rec.Warehouse, err)
	}
	endH, endM, err := parseClock(rec.Window.EndTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("warehouse %s window end: %w", rec.Warehouse, err)
	}
	cutH, cutM, err := parseClock(rec.CutoffTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("warehouse %s cutoff: %w", rec.Warehouse, err)
	}

	buffer := time.Duration(rec.Window.BufferMinutes) * time.Minute
	local := candidate.In(loc)

	for i := 0; i < maxWindowScanDays; i++ {
		if e.dayAllowed(rec, local) {
			year, month, day := local.Date()

			windowStart := time.Date(year, month, day, startH, startM, 0, 0, loc).Add(buffer)
			windowEnd := time.Date(year, month, day, endH, endM, 0, 0, loc).Add(-buffer)
			cutoff := time.Date(year, month, day, cutH, cutM, 0, 0, loc)
			if cutoff.Before(windowEnd) {
				windowEnd = cutoff
			}

			if local.Before(windowStart) {
				return windowStart.UTC(), nil
			}
			if !local.After(windowEnd) {
				return local.UTC(), nil
			}
			// Past today's window; fall through to the next day.
		}

		year, month, day := local.Date()
		local = time.Date(year, month, day+1, 0, 0, 0, 0, loc)
	}

	return time.Time{}, fmt.Errorf("no valid execution window for warehouse %s within %d days of %s",
		rec.Warehouse, maxWindowScanDays, candidate.UTC().Format(time.RFC3339))
}

// dayAllowed reports whether the warehouse permits execution on the given
// local day.
func (e *Engine) dayAllowed(rec *calendar.Record, local time.Time) bool {
	weekday := local.Weekday()
	if weekday == time.Saturday || weekday == time.Sunday {
		if !rec.Window.AllowWeekends {
			return false
		}
	} else if _, open := rec.HoursFor(local); !open {
		return false
	}

	if rec.IsHoliday(local) && !rec.Window.AllowHolidays {
		return false
	}
	return true
}

// BuildContext assembles the immutable execution context captured at
// scheduling time.
func (e *Engine) BuildContext(o *order.RecurringOrder, rec *calendar.Record, alloc order.ResourceAllocation) order.ExecutionContext {
	return order.ExecutionContext{
		SupplierID:        o.SupplierID,
		WarehouseLocation: rec.Location,
		TimezoneName:      rec.Timezone,
		BusinessHours:     rec.BusinessHoursByName(),
		CutoffTime:        rec.CutoffTime,
		Window:            rec.Window,
		Allocation:        alloc,
	}
}

// parseClock parses an "HH:MM" 24-hour clock string.
func parseClock(s string) (hour, minute int, err error) {
	if _, err := time.Parse("15:04", s); err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	fmt.Sscanf(s, "%d:%d", &hour, &minute)
	return hour, minute, nil
}
