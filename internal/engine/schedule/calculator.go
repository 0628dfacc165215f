// Package schedule computes occurrence dates from recurrence rules. The
// calculator has no side effects and is deterministic for the same inputs,
// which the occurrence generator relies on for idempotent replays.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"followup-engine/internal/common/errors"
	"followup-engine/internal/models"
)

// Evaluator resolves "custom" frequency rules. The day-rule string is opaque
// to the calculator; the evaluator owns its syntax.
type Evaluator interface {
	Next(rule models.ScheduleRule, after time.Time) (time.Time, error)
}

type Calculator struct {
	custom Evaluator
}

func NewCalculator(custom Evaluator) *Calculator {
	return &Calculator{custom: custom}
}

// NextOccurrence returns the next occurrence date strictly after `after`.
// ok is false when the rule is exhausted (next date would fall past end_date).
func (c *Calculator) NextOccurrence(rule models.ScheduleRule, after time.Time) (time.Time, bool, error) {
	if !rule.IsRecurring() {
		return time.Time{}, false, errors.NewInvalidScheduleError("rule has no frequency; one-time work is not scheduled")
	}
	if rule.EndDate != nil && rule.StartDate.After(*rule.EndDate) {
		return time.Time{}, false, errors.NewInvalidScheduleError(
			fmt.Sprintf("start_date %s is after end_date %s",
				rule.StartDate.Format("2006-01-02"), rule.EndDate.Format("2006-01-02")))
	}

	var next time.Time
	var err error

	switch rule.Frequency {
	case models.FrequencyDaily:
		next = maxDay(day(after).AddDate(0, 0, 1), day(rule.StartDate))
	case models.FrequencyWeekly:
		next, err = c.nextWeekly(rule, after)
	case models.FrequencyMonthly:
		next, err = c.nextByMonth(rule, after, 1)
	case models.FrequencyQuarterly:
		next, err = c.nextByMonth(rule, after, 3)
	case models.FrequencyYearly:
		next, err = c.nextByMonth(rule, after, 12)
	case models.FrequencyCustom:
		next, err = c.nextCustom(rule, after)
	default:
		return time.Time{}, false, errors.NewInvalidScheduleError(fmt.Sprintf("unknown frequency %q", rule.Frequency))
	}
	if err != nil {
		return time.Time{}, false, err
	}

	if rule.EndDate != nil && next.After(day(*rule.EndDate)) {
		return time.Time{}, false, nil
	}
	return next, true, nil
}

func (c *Calculator) nextWeekly(rule models.ScheduleRule, after time.Time) (time.Time, error) {
	anchor := day(rule.StartDate).Weekday()
	candidate := maxDay(day(after).AddDate(0, 0, 1), day(rule.StartDate))
	for candidate.Weekday() != anchor {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

// nextByMonth walks month steps from the rule's start month until it finds an
// occurrence strictly after `after`. step is 1 (monthly), 3 (quarterly) or
// 12 (yearly).
func (c *Calculator) nextByMonth(rule models.ScheduleRule, after time.Time, step int) (time.Time, error) {
	start := day(rule.StartDate)
	anchor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)

	for i := 0; ; i++ {
		monthStart := anchor.AddDate(0, i*step, 0)
		occ, err := occurrenceInMonth(monthStart.Year(), monthStart.Month(), rule, start)
		if err != nil {
			return time.Time{}, err
		}
		// Terminates: months only advance, so occ eventually passes `after`.
		// The end-date bound is applied by the caller.
		if occ.After(day(after)) && !occ.Before(start) {
			return occ, nil
		}
	}
}

func (c *Calculator) nextCustom(rule models.ScheduleRule, after time.Time) (time.Time, error) {
	if c.custom == nil {
		return time.Time{}, errors.NewInvalidScheduleError("custom frequency requires a rule evaluator")
	}
	next, err := c.custom.Next(rule, after)
	if err != nil {
		return time.Time{}, errors.NewInvalidScheduleError(fmt.Sprintf("custom rule evaluation failed: %s", err))
	}
	next = day(next)
	if !next.After(day(after)) {
		return time.Time{}, errors.NewInvalidScheduleError(
			fmt.Sprintf("custom rule returned %s, not after %s",
				next.Format("2006-01-02"), after.Format("2006-01-02")))
	}
	return next, nil
}

// occurrenceInMonth resolves the day-rule within one month, clamping to the
// month's length.
func occurrenceInMonth(year int, month time.Month, rule models.ScheduleRule, start time.Time) (time.Time, error) {
	last := daysIn(year, month)

	dayRule := strings.ToLower(strings.TrimSpace(rule.DayRule))
	switch dayRule {
	case "":
		d := start.Day()
		if d > last {
			d = last
		}
		return time.Date(year, month, d, 0, 0, 0, 0, time.UTC), nil
	case "last", "last day":
		return time.Date(year, month, last, 0, 0, 0, 0, time.UTC), nil
	case "last business day":
		d := time.Date(year, month, last, 0, 0, 0, 0, time.UTC)
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, -1)
		}
		return d, nil
	}

	// Ordinal day rules: "1st", "15th", "22nd" ...
	digits := strings.TrimRight(dayRule, "stndrdth")
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > 31 {
		return time.Time{}, errors.NewInvalidScheduleError(fmt.Sprintf("unrecognized day rule %q", rule.DayRule))
	}
	if n > last {
		n = last
	}
	return time.Date(year, month, n, 0, 0, 0, 0, time.UTC), nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func maxDay(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
