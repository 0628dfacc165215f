package schedule

import (
	"fmt"
	"testing"
	"time"

	"followup-engine/internal/common/errors"
	"followup-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dp(s string) *time.Time {
	t := d(s)
	return &t
}

func rule(freq models.Frequency, dayRule, start string, end *time.Time) models.ScheduleRule {
	return models.ScheduleRule{
		Frequency: freq,
		DayRule:   dayRule,
		StartDate: d(start),
		EndDate:   end,
	}
}

type stubEvaluator struct {
	next time.Time
	err  error
}

func (s *stubEvaluator) Next(models.ScheduleRule, time.Time) (time.Time, error) {
	return s.next, s.err
}

// ==========================
// Core Functionality Tests
// ==========================

func TestCalculator_NextOccurrence(t *testing.T) {
	tests := []struct {
		name     string
		rule     models.ScheduleRule
		after    string
		expected string
	}{
		{
			name:     "daily advances one day",
			rule:     rule(models.FrequencyDaily, "", "2024-01-01", nil),
			after:    "2024-03-10",
			expected: "2024-03-11",
		},
		{
			name:     "daily before start snaps to start",
			rule:     rule(models.FrequencyDaily, "", "2024-06-01", nil),
			after:    "2024-01-15",
			expected: "2024-06-01",
		},
		{
			name:     "weekly keeps the anchor weekday",
			rule:     rule(models.FrequencyWeekly, "", "2024-01-01", nil), // a Monday
			after:    "2024-01-03",
			expected: "2024-01-08",
		},
		{
			name:     "weekly from the occurrence itself moves a full week",
			rule:     rule(models.FrequencyWeekly, "", "2024-01-01", nil),
			after:    "2024-01-08",
			expected: "2024-01-15",
		},
		{
			name:     "monthly 1st",
			rule:     rule(models.FrequencyMonthly, "1st", "2024-01-01", nil),
			after:    "2024-01-01",
			expected: "2024-02-01",
		},
		{
			name:     "monthly 15th",
			rule:     rule(models.FrequencyMonthly, "15th", "2024-01-01", nil),
			after:    "2024-01-20",
			expected: "2024-02-15",
		},
		{
			name:     "monthly 31st clamps to short months",
			rule:     rule(models.FrequencyMonthly, "31st", "2024-01-01", nil),
			after:    "2024-01-31",
			expected: "2024-02-29", // 2024 is a leap year
		},
		{
			name:     "monthly last day",
			rule:     rule(models.FrequencyMonthly, "last", "2024-01-01", nil),
			after:    "2024-01-31",
			expected: "2024-02-29",
		},
		{
			name:     "monthly last business day backs off the weekend",
			rule:     rule(models.FrequencyMonthly, "last business day", "2024-01-01", nil),
			after:    "2024-03-01",
			expected: "2024-03-29", // 2024-03-31 is a Sunday
		},
		{
			name:     "monthly without day rule uses the start date's day",
			rule:     rule(models.FrequencyMonthly, "", "2024-01-10", nil),
			after:    "2024-01-10",
			expected: "2024-02-10",
		},
		{
			name:     "quarterly steps three months",
			rule:     rule(models.FrequencyQuarterly, "1st", "2024-01-01", nil),
			after:    "2024-01-01",
			expected: "2024-04-01",
		},
		{
			name:     "yearly steps one year",
			rule:     rule(models.FrequencyYearly, "", "2024-03-15", nil),
			after:    "2024-03-15",
			expected: "2025-03-15",
		},
	}

	calc := NewCalculator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok, err := calc.NextOccurrence(tt.rule, d(tt.after))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, d(tt.expected), next)
		})
	}
}

func TestCalculator_EndDateBound(t *testing.T) {
	calc := NewCalculator(nil)

	r := rule(models.FrequencyMonthly, "1st", "2024-01-01", dp("2024-03-01"))

	next, ok, err := calc.NextOccurrence(r, d("2024-01-01"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d("2024-02-01"), next)

	next, ok, err = calc.NextOccurrence(r, next)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d("2024-03-01"), next)

	// Rule is exhausted past the end date.
	_, ok, err = calc.NextOccurrence(r, next)
	require.NoError(t, err)
	assert.False(t, ok)
}

// Walking any bounded rule forward never yields a date past end_date and
// always terminates with exhaustion.
func TestCalculator_NeverExceedsEndDate(t *testing.T) {
	calc := NewCalculator(nil)

	rules := []models.ScheduleRule{
		rule(models.FrequencyDaily, "", "2024-01-01", dp("2024-01-20")),
		rule(models.FrequencyWeekly, "", "2024-01-01", dp("2024-03-01")),
		rule(models.FrequencyMonthly, "last business day", "2024-01-01", dp("2024-12-31")),
		rule(models.FrequencyQuarterly, "15th", "2024-01-01", dp("2025-06-30")),
	}

	for i, r := range rules {
		t.Run(fmt.Sprintf("rule_%d", i), func(t *testing.T) {
			after := r.StartDate
			for steps := 0; steps < 500; steps++ {
				next, ok, err := calc.NextOccurrence(r, after)
				require.NoError(t, err)
				if !ok {
					return
				}
				assert.False(t, next.After(*r.EndDate), "occurrence %s past end date %s", next, r.EndDate)
				assert.True(t, next.After(after), "occurrences must be strictly increasing")
				after = next
			}
			t.Fatal("rule never exhausted")
		})
	}
}

func TestCalculator_Deterministic(t *testing.T) {
	calc := NewCalculator(nil)
	r := rule(models.FrequencyMonthly, "last business day", "2024-01-01", nil)

	first, ok, err := calc.NextOccurrence(r, d("2024-05-10"))
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 10; i++ {
		again, ok, err := calc.NextOccurrence(r, d("2024-05-10"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, first, again)
	}
}

// ==========================
// Error Handling Tests
// ==========================

func TestCalculator_InvalidRules(t *testing.T) {
	calc := NewCalculator(nil)

	tests := []struct {
		name string
		rule models.ScheduleRule
	}{
		{
			name: "missing frequency",
			rule: models.ScheduleRule{StartDate: d("2024-01-01")},
		},
		{
			name: "start after end",
			rule: rule(models.FrequencyDaily, "", "2024-06-01", dp("2024-01-01")),
		},
		{
			name: "unknown day rule",
			rule: rule(models.FrequencyMonthly, "whenever", "2024-01-01", nil),
		},
		{
			name: "custom without evaluator",
			rule: rule(models.FrequencyCustom, "cron:0 0 1 * *", "2024-01-01", nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := calc.NextOccurrence(tt.rule, d("2024-01-05"))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidSchedule))
		})
	}
}

func TestCalculator_CustomEvaluator(t *testing.T) {
	t.Run("delegates and enforces end date", func(t *testing.T) {
		calc := NewCalculator(&stubEvaluator{next: d("2024-07-01")})
		r := rule(models.FrequencyCustom, "opaque", "2024-01-01", dp("2024-06-01"))

		_, ok, err := calc.NextOccurrence(r, d("2024-05-01"))
		require.NoError(t, err)
		assert.False(t, ok, "evaluator result past end date must exhaust the rule")
	})

	t.Run("rejects non-monotonic evaluator results", func(t *testing.T) {
		calc := NewCalculator(&stubEvaluator{next: d("2024-01-01")})
		r := rule(models.FrequencyCustom, "opaque", "2024-01-01", nil)

		_, _, err := calc.NextOccurrence(r, d("2024-05-01"))
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidSchedule))
	})

	t.Run("accepts valid evaluator results", func(t *testing.T) {
		calc := NewCalculator(&stubEvaluator{next: d("2024-05-20")})
		r := rule(models.FrequencyCustom, "opaque", "2024-01-01", nil)

		next, ok, err := calc.NextOccurrence(r, d("2024-05-01"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, d("2024-05-20"), next)
	})
}
