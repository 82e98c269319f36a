package recurrence

import (
	"testing"
	"time"

	"teamtasks/internal/apperr"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustRule(t *testing.T, f Frequency, start time.Time, days []time.Weekday, monthDay int) Rule {
	t.Helper()
	rule, err := NewRule(f, start, days, monthDay)
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	return rule
}

func TestOnceRule(t *testing.T) {
	rule := mustRule(t, Once, date(2024, time.March, 15), nil, 0)

	if !rule.IsOccurrence(date(2024, time.March, 15)) {
		t.Error("expected occurrence on the start date")
	}
	// Time of day must not matter.
	noon := time.Date(2024, time.March, 15, 12, 30, 0, 0, time.UTC)
	if !rule.IsOccurrence(noon) {
		t.Error("expected occurrence regardless of time of day")
	}
	if rule.IsOccurrence(date(2024, time.March, 16)) {
		t.Error("unexpected occurrence the day after")
	}
	if rule.IsOccurrence(date(2024, time.March, 14)) {
		t.Error("unexpected occurrence the day before")
	}
}

func TestDailyRule(t *testing.T) {
	rule := mustRule(t, Daily, date(2024, time.March, 15), nil, 0)

	if rule.IsOccurrence(date(2024, time.March, 14)) {
		t.Error("unexpected occurrence before start")
	}
	for _, d := range []time.Time{
		date(2024, time.March, 15),
		date(2024, time.March, 16),
		date(2025, time.January, 1),
	} {
		if !rule.IsOccurrence(d) {
			t.Errorf("expected occurrence on %s", d.Format("2006-01-02"))
		}
	}
}

func TestWeeklyRule(t *testing.T) {
	// 2024-03-15 is a Friday.
	rule := mustRule(t, Weekly, date(2024, time.March, 15), []time.Weekday{time.Monday, time.Friday}, 0)

	if !rule.IsOccurrence(date(2024, time.March, 15)) {
		t.Error("expected occurrence on the starting Friday")
	}
	if !rule.IsOccurrence(date(2024, time.March, 18)) {
		t.Error("expected occurrence on the following Monday")
	}
	if rule.IsOccurrence(date(2024, time.March, 19)) {
		t.Error("unexpected occurrence on a Tuesday")
	}
}

func TestWeeklyRuleNeverFiresBeforeStart(t *testing.T) {
	rule := mustRule(t, Weekly, date(2024, time.March, 15), []time.Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	}, 0)

	for d := date(2024, time.February, 1); d.Before(date(2024, time.March, 15)); d = d.AddDate(0, 0, 1) {
		if rule.IsOccurrence(d) {
			t.Fatalf("occurrence on %s precedes the start date", d.Format("2006-01-02"))
		}
	}
}

func TestMonthlyRule(t *testing.T) {
	rule := mustRule(t, Monthly, date(2024, time.January, 1), nil, 31)

	if !rule.IsOccurrence(date(2024, time.January, 31)) {
		t.Error("expected occurrence on Jan 31")
	}
	// April has 30 days: no occurrence, no clamping to the 30th.
	if rule.IsOccurrence(date(2024, time.April, 30)) {
		t.Error("day 31 must not clamp to April 30")
	}
	for d := date(2024, time.April, 1); d.Month() == time.April; d = d.AddDate(0, 0, 1) {
		if rule.IsOccurrence(d) {
			t.Fatalf("unexpected occurrence on %s", d.Format("2006-01-02"))
		}
	}
	if !rule.IsOccurrence(date(2024, time.May, 31)) {
		t.Error("expected occurrence on May 31")
	}
}

func TestMonthlyRuleBeforeStart(t *testing.T) {
	rule := mustRule(t, Monthly, date(2024, time.June, 1), nil, 15)
	if rule.IsOccurrence(date(2024, time.May, 15)) {
		t.Error("unexpected occurrence before start")
	}
}

func TestNewRuleValidation(t *testing.T) {
	start := date(2024, time.January, 1)

	tests := []struct {
		name     string
		f        Frequency
		days     []time.Weekday
		monthDay int
	}{
		{name: "weekly without weekdays", f: Weekly},
		{name: "weekly with out-of-range weekday", f: Weekly, days: []time.Weekday{7}},
		{name: "monthly day zero", f: Monthly, monthDay: 0},
		{name: "monthly day 32", f: Monthly, monthDay: 32},
		{name: "unknown frequency", f: Frequency("YEARLY")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRule(tt.f, start, tt.days, tt.monthDay)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !apperr.IsValidation(err) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
		})
	}

	if _, err := NewRule(Daily, time.Time{}, nil, 0); err == nil {
		t.Error("expected zero start date to be rejected")
	}
}

func TestLabelRoundTrip(t *testing.T) {
	for _, f := range []Frequency{Once, Daily, Weekly, Monthly} {
		label, err := FormatLabel(f)
		if err != nil {
			t.Fatalf("FormatLabel(%s): %v", f, err)
		}
		back, err := ParseLabel(label)
		if err != nil {
			t.Fatalf("ParseLabel(%q): %v", label, err)
		}
		if back != f {
			t.Errorf("round trip %s -> %q -> %s", f, label, back)
		}
	}
}

func TestUnknownLabelFailsLoudly(t *testing.T) {
	if _, err := ParseLabel("fortnightly"); err == nil {
		t.Error("expected unknown label to fail")
	}
	if _, err := FormatLabel(Frequency("YEARLY")); err == nil {
		t.Error("expected unknown frequency to fail")
	}
	if _, err := ParseFrequency("yearly"); err == nil {
		t.Error("expected unknown wire tag to fail")
	}
}

func TestNextOccurrence(t *testing.T) {
	rule := mustRule(t, Monthly, date(2024, time.January, 1), nil, 31)

	next, ok := rule.NextOccurrence(date(2024, time.April, 1))
	if !ok {
		t.Fatal("expected a next occurrence")
	}
	// April has no day 31; the next one is May 31.
	if want := date(2024, time.May, 31); !next.Equal(want) {
		t.Errorf("next = %s, want %s", next.Format("2006-01-02"), want.Format("2006-01-02"))
	}

	past := mustRule(t, Once, date(2020, time.January, 1), nil, 0)
	if _, ok := past.NextOccurrence(date(2024, time.January, 1)); ok {
		t.Error("a past one-time rule has no next occurrence")
	}
}
