// Package recurrence decides on which calendar days a task repeats.
package recurrence

import (
	"fmt"
	"time"

	"teamtasks/internal/apperr"
)

// Frequency tags how a task repeats.
type Frequency string

const (
	Once    Frequency = "ONCE"
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
)

var labels = map[Frequency]string{
	Once:    "One time",
	Daily:   "Every day",
	Weekly:  "Weekly on days",
	Monthly: "Monthly on day",
}

// FormatLabel renders the human label for a frequency tag.
func FormatLabel(f Frequency) (string, error) {
	label, ok := labels[f]
	if !ok {
		return "", fmt.Errorf("unknown frequency %q", f)
	}
	return label, nil
}

// ParseLabel is the inverse of FormatLabel. The label set is closed; an
// unrecognized label is an error, never a default.
func ParseLabel(label string) (Frequency, error) {
	for f, l := range labels {
		if l == label {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown frequency label %q", label)
}

// ParseFrequency validates a wire-level frequency tag.
func ParseFrequency(raw string) (Frequency, error) {
	switch f := Frequency(raw); f {
	case Once, Daily, Weekly, Monthly:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency %q", raw)
}

// Rule describes when a task occurs. StartDate bounds every frequency;
// WeekDays is meaningful only for Weekly, MonthDay only for Monthly.
type Rule struct {
	Frequency Frequency
	StartDate time.Time
	WeekDays  []time.Weekday
	MonthDay  int
}

// NewRule validates and builds a rule. Malformed input fails with a
// ValidationError rather than defaulting.
func NewRule(f Frequency, start time.Time, weekDays []time.Weekday, monthDay int) (Rule, error) {
	if _, ok := labels[f]; !ok {
		return Rule{}, &apperr.ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown tag %q", f)}
	}
	if start.IsZero() {
		return Rule{}, &apperr.ValidationError{Field: "startDate", Reason: "required"}
	}

	rule := Rule{Frequency: f, StartDate: start}
	switch f {
	case Weekly:
		if len(weekDays) == 0 {
			return Rule{}, &apperr.ValidationError{Field: "weekDays", Reason: "weekly rule needs at least one weekday"}
		}
		for _, d := range weekDays {
			if d < time.Sunday || d > time.Saturday {
				return Rule{}, &apperr.ValidationError{Field: "weekDays", Reason: fmt.Sprintf("weekday %d out of range", d)}
			}
		}
		rule.WeekDays = append([]time.Weekday(nil), weekDays...)
	case Monthly:
		if monthDay < 1 || monthDay > 31 {
			return Rule{}, &apperr.ValidationError{Field: "monthDay", Reason: "day of month must be 1..31"}
		}
		rule.MonthDay = monthDay
	}
	return rule, nil
}

// IsOccurrence reports whether the rule produces an occurrence on the given
// calendar day. Time of day is ignored. A monthly day past the end of a
// short month yields no occurrence in that month; it does not clamp.
func (r Rule) IsOccurrence(day time.Time) bool {
	day = truncateDay(day)
	start := truncateDay(r.StartDate)

	switch r.Frequency {
	case Once:
		return day.Equal(start)
	case Daily:
		return !day.Before(start)
	case Weekly:
		if day.Before(start) {
			return false
		}
		for _, wd := range r.WeekDays {
			if day.Weekday() == wd {
				return true
			}
		}
		return false
	case Monthly:
		return !day.Before(start) && day.Day() == r.MonthDay
	}
	return false
}

// NextOccurrence returns the first occurrence on or after from, or false if
// none exists within the search horizon. The horizon only matters for rules
// that can never fire again (a past Once rule, a monthly day 31 streak of
// short months resolves well inside it).
func (r Rule) NextOccurrence(from time.Time) (time.Time, bool) {
	day := truncateDay(from)
	if start := truncateDay(r.StartDate); day.Before(start) {
		day = start
	}
	for i := 0; i < 366; i++ {
		if r.IsOccurrence(day) {
			return day, true
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports calendar-day equality regardless of time of day.
func SameDay(a, b time.Time) bool {
	return truncateDay(a).Equal(truncateDay(b))
}
