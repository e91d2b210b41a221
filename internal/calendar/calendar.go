// Package calendar holds the static per-warehouse scheduling configuration:
// timezone, business hours, holidays, and execution window defaults.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/muaviaUsmani/restock/internal/order"
)

// ErrUnknownWarehouse is returned for a warehouse code outside the closed
// enum. Given the enum this is an assertion failure, not an expected path.
var ErrUnknownWarehouse = errors.New("unknown warehouse")

// Record is the scheduling calendar for one warehouse.
type Record struct {
	// Warehouse is the owning warehouse code
	Warehouse order.Warehouse
	// Location is a human-readable site name
	Location string
	// Timezone is the IANA timezone name
	Timezone string
	// BusinessHours maps weekdays to local open/close ranges. Missing
	// weekdays (weekends by default) are closed.
	BusinessHours map[time.Weekday]order.BusinessHours
	// Holidays is the set of closed dates in "YYYY-MM-DD" local form
	Holidays map[string]bool
	// Window is the default execution window for the warehouse
	Window order.ExecutionWindow
	// CutoffTime is the local "HH:MM" after which same-day scheduling is
	// not attempted
	CutoffTime string
	// MaxConcurrentExecutions is the default capacity ceiling
	MaxConcurrentExecutions int
}

// Loc loads the record's IANA timezone.
func (r *Record) Loc() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q for warehouse %s: %w", r.Timezone, r.Warehouse, err)
	}
	return loc, nil
}

// IsHoliday reports whether the given local date is a warehouse holiday.
func (r *Record) IsHoliday(local time.Time) bool {
	return r.Holidays[local.Format("2006-01-02")]
}

// HoursFor returns the business hours for the weekday of the given local
// time; ok is false when the warehouse is closed that day.
func (r *Record) HoursFor(local time.Time) (order.BusinessHours, bool) {
	hours, ok := r.BusinessHours[local.Weekday()]
	return hours, ok
}

// BusinessHoursByName returns the business-hours table keyed by lowercase
// weekday name, the form embedded in execution contexts.
func (r *Record) BusinessHoursByName() map[string]order.BusinessHours {
	out := make(map[string]order.BusinessHours, len(r.BusinessHours))
	for day, hours := range r.BusinessHours {
		out[weekdayName(day)] = hours
	}
	return out
}

func weekdayName(d time.Weekday) string {
	switch d {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	default:
		return "sunday"
	}
}

// weekdayHours builds a Monday-Friday business-hours table.
func weekdayHours(open, close string) map[time.Weekday]order.BusinessHours {
	hours := order.BusinessHours{Open: open, Close: close}
	return map[time.Weekday]order.BusinessHours{
		time.Monday:    hours,
		time.Tuesday:   hours,
		time.Wednesday: hours,
		time.Thursday:  hours,
		time.Friday:    hours,
	}
}

// records is the closed warehouse calendar table. Execution windows sit
// inside business hours so the buffer never pushes past closing.
var records = map[order.Warehouse]*Record{
	order.WarehouseUS: {
		Warehouse:     order.WarehouseUS,
		Location:      "Newark, NJ",
		Timezone:      "America/New_York",
		BusinessHours: weekdayHours("08:00", "18:00"),
		Holidays: map[string]bool{
			"2024-07-04": true, // Independence Day
			"2024-11-28": true, // Thanksgiving
			"2024-12-25": true,
			"2025-01-01": true,
			"2025-07-04": true,
			"2025-12-25": true,
			"2026-01-01": true,
		},
		Window:                  order.ExecutionWindow{StartTime: "09:00", EndTime: "17:00", BufferMinutes: 30},
		CutoffTime:              "16:00",
		MaxConcurrentExecutions: 10,
	},
	order.WarehouseJP: {
		Warehouse:     order.WarehouseJP,
		Location:      "Osaka",
		Timezone:      "Asia/Tokyo",
		BusinessHours: weekdayHours("09:00", "19:00"),
		Holidays: map[string]bool{
			"2024-01-01": true, // Ganjitsu
			"2024-05-03": true, // Golden Week
			"2024-05-06": true,
			"2025-01-01": true,
			"2025-05-05": true,
			"2026-01-01": true,
		},
		Window:                  order.ExecutionWindow{StartTime: "10:00", EndTime: "18:00", BufferMinutes: 30},
		CutoffTime:              "17:00",
		MaxConcurrentExecutions: 8,
	},
	order.WarehouseEU: {
		Warehouse:     order.WarehouseEU,
		Location:      "Hamburg",
		Timezone:      "Europe/Berlin",
		BusinessHours: weekdayHours("08:00", "17:00"),
		Holidays: map[string]bool{
			"2024-12-25": true,
			"2024-12-26": true, // Zweiter Weihnachtstag
			"2025-01-01": true,
			"2025-12-25": true,
			"2025-12-26": true,
			"2026-01-01": true,
		},
		Window:                  order.ExecutionWindow{StartTime: "09:00", EndTime: "16:00", BufferMinutes: 30},
		CutoffTime:              "15:00",
		MaxConcurrentExecutions: 10,
	},
	order.WarehouseAU: {
		Warehouse:     order.WarehouseAU,
		Location:      "Sydney",
		Timezone:      "Australia/Sydney",
		BusinessHours: weekdayHours("08:30", "17:30"),
		Holidays: map[string]bool{
			"2024-01-26": true, // Australia Day
			"2024-12-25": true,
			"2024-12-26": true, // Boxing Day
			"2025-01-27": true,
			"2025-12-25": true,
			"2025-12-26": true,
			"2026-01-01": true,
		},
		Window:                  order.ExecutionWindow{StartTime: "09:00", EndTime: "17:00", BufferMinutes: 30},
		CutoffTime:              "16:00",
		MaxConcurrentExecutions: 6,
	},
}

// Resolve returns the calendar record for a warehouse code.
func Resolve(w order.Warehouse) (*Record, error) {
	record, ok := records[w]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWarehouse, w)
	}
	return record, nil
}
