// Package recurrence translates recurrence rules into candidate execution
// instants. All functions are pure and deterministic.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/muaviaUsmani/restock/internal/order"
)

// ErrInvalidRecurrence is returned when a frequency/interval/startDate triple
// is inconsistent. Orders rejected with it are never stored.
var ErrInvalidRecurrence = errors.New("invalid recurrence rule")

// Validate checks a recurring order's recurrence rule.
func Validate(o *order.RecurringOrder) error {
	if o.Interval < 1 {
		return fmt.Errorf("%w: interval must be >= 1, got %d", ErrInvalidRecurrence, o.Interval)
	}
	if o.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidRecurrence)
	}
	switch o.Frequency {
	case order.FrequencyDaily, order.FrequencyWeekly, order.FrequencyMonthly, order.FrequencyQuarterly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrence, o.Frequency)
	}
	return nil
}

// NextCandidate computes the next candidate execution instant in UTC.
//
// With no prior execution the candidate is the caller-supplied
// NextExecutionDate if present, otherwise StartDate. With a prior execution,
// daily advances by Interval days, weekly by Interval*7 days, monthly by
// Interval calendar months and quarterly by Interval*3 calendar months,
// clamping the day of month to the last valid day on overflow.
func NextCandidate(o *order.RecurringOrder) (time.Time, error) {
	if err := Validate(o); err != nil {
		return time.Time{}, err
	}

	if o.LastExecutedAt == nil {
		if o.NextExecutionDate != nil {
			return o.NextExecutionDate.UTC(), nil
		}
		return o.StartDate.UTC(), nil
	}

	last := o.LastExecutedAt.UTC()
	switch o.Frequency {
	case order.FrequencyDaily:
		return last.AddDate(0, 0, o.Interval), nil
	case order.FrequencyWeekly:
		return last.AddDate(0, 0, o.Interval*7), nil
	case order.FrequencyMonthly:
		return addMonthsClamped(last, o.Interval), nil
	case order.FrequencyQuarterly:
		return addMonthsClamped(last, o.Interval*3), nil
	}
	// Unreachable after Validate.
	return time.Time{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrence, o.Frequency)
}

// addMonthsClamped advances t by the given number of calendar months,
// clamping the day of month to the last valid day of the target month
// (Jan 31 + 1 month = Feb 28/29, never Mar 2/3).
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	// First of the target month, then clamp the day.
	first := time.Date(year, month+time.Month(months), 1, hour, minute, sec, t.Nanosecond(), t.Location())
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
