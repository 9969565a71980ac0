/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"testing"
	"time"
)

func TestDateWeekday(t *testing.T) {
	tests := []struct {
		date Date
		want int
	}{
		{Date{2026, time.August, 24}, 1}, // Monday
		{Date{2026, time.August, 26}, 3}, // Wednesday
		{Date{2026, time.August, 30}, 7}, // Sunday
	}
	for _, tt := range tests {
		if got := tt.date.Weekday(); got != tt.want {
			t.Errorf("%s: weekday = %d, want %d", tt.date, got, tt.want)
		}
	}
}

func TestDateAddDays(t *testing.T) {
	d := Date{2026, time.February, 28}
	if got := d.AddDays(1); got != (Date{2026, time.March, 1}) {
		t.Errorf("Feb 28 + 1 = %s", got)
	}
	if got := d.AddDays(-59); got != (Date{2025, time.December, 31}) {
		t.Errorf("Feb 28 - 59 = %s", got)
	}
	leap := Date{2024, time.February, 28}
	if got := leap.AddDays(1); got != (Date{2024, time.February, 29}) {
		t.Errorf("leap Feb 28 + 1 = %s", got)
	}
}

func TestDateSpecResolveInvalidDay(t *testing.T) {
	// 2018 has no Feb 29: a start bound rolls forward, an end bound
	// retreats to the last valid day.
	spec := DateSpec{Year: 2018, Month: 2, Day: 29}
	now := Date{2018, time.February, 10}

	if got := spec.ResolveStart(now); got != (Date{2018, time.March, 1}) {
		t.Errorf("ResolveStart = %s, want 2018-03-01", got)
	}
	if got := spec.ResolveEnd(now); got != (Date{2018, time.February, 28}) {
		t.Errorf("ResolveEnd = %s, want 2018-02-28", got)
	}
}

func TestDateSpecPartialFieldsFromNow(t *testing.T) {
	now := Date{2026, time.August, 26}

	spec := DateSpec{Day: 15}
	if got := spec.ResolveStart(now); got != (Date{2026, time.August, 15}) {
		t.Errorf("ResolveStart = %s, want 2026-08-15", got)
	}

	spec = DateSpec{Month: 2, Day: 31}
	if got := spec.ResolveEnd(now); got != (Date{2026, time.February, 28}) {
		t.Errorf("ResolveEnd = %s, want 2026-02-28", got)
	}
}

func TestDateSpecValidate(t *testing.T) {
	valid := []DateSpec{{}, {Year: 2026}, {Month: 12, Day: 31}, {Year: 1970, Month: 1, Day: 1}}
	for _, spec := range valid {
		if err := spec.Validate(); err != nil {
			t.Errorf("%+v should validate: %v", spec, err)
		}
	}
	invalid := []DateSpec{{Year: 1969}, {Year: 2100}, {Month: 13}, {Day: 32}}
	for _, spec := range invalid {
		if err := spec.Validate(); err == nil {
			t.Errorf("%+v should not validate", spec)
		}
	}
}

func TestConstraintsSatisfied(t *testing.T) {
	mustRange := func(spec string, min, max int) *RangeSpec {
		parsed, err := ParseRangeSpec(spec, min, max)
		if err != nil {
			t.Fatalf("ParseRangeSpec(%q): %v", spec, err)
		}
		return parsed
	}

	wednesday := Date{2026, time.August, 26}
	saturday := Date{2026, time.August, 29}

	weekdayOnly := Constraints{Weekdays: mustRange("1-5", MinWeekday, MaxWeekday)}
	if !weekdayOnly.satisfied(wednesday) {
		t.Error("1-5 should match Wednesday")
	}
	if weekdayOnly.satisfied(saturday) {
		t.Error("1-5 should not match Saturday")
	}

	notMarch := Constraints{Months: mustRange("!3", MinMonth, MaxMonth)}
	if !notMarch.satisfied(wednesday) {
		t.Error("!3 should match August")
	}
	if notMarch.satisfied(Date{2026, time.March, 10}) {
		t.Error("!3 should not match March")
	}

	bounded := Constraints{
		StartDate: &DateSpec{Year: 2026, Month: 8, Day: 20},
		EndDate:   &DateSpec{Year: 2026, Month: 8, Day: 28},
	}
	if !bounded.satisfied(wednesday) {
		t.Error("date inside bounds should satisfy")
	}
	if bounded.satisfied(saturday) {
		t.Error("date past end bound should not satisfy")
	}
	if bounded.satisfied(Date{2026, time.August, 19}) {
		t.Error("date before start bound should not satisfy")
	}
}
