/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"fmt"
	"time"
)

// Date is a plain calendar date without a time-of-day component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf extracts the calendar date of an instant in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// AddDays returns the date shifted by the given number of days.
func (d Date) AddDays(days int) Date {
	t := time.Date(d.Year, d.Month, d.Day+days, 0, 0, 0, 0, time.UTC)
	return DateOf(t)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// ISOWeek returns the ISO 8601 year and week number of the date.
func (d Date) ISOWeek() (year, week int) {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).ISOWeek()
}

// Weekday returns the ISO weekday of the date, Monday=1 .. Sunday=7.
func (d Date) Weekday() int {
	wd := int(time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DateSpec is a partial calendar date used by start_date/end_date
// constraints. Zero fields are filled from the date being checked against.
type DateSpec struct {
	Year  int
	Month int
	Day   int
}

// IsZero reports whether no field of the spec is set.
func (s DateSpec) IsZero() bool {
	return s.Year == 0 && s.Month == 0 && s.Day == 0
}

// ResolveStart builds the start boundary date, defaulting missing fields
// from now. If the combination is not a valid calendar date, the next valid
// date is returned, so start bounds never retreat.
func (s DateSpec) ResolveStart(now Date) Date {
	y, m, d := s.fill(now)
	if last := daysInMonth(y, m); d > last {
		// roll forward to the first of the following month
		return DateOf(time.Date(y, time.Month(m)+1, 1, 0, 0, 0, 0, time.UTC))
	}
	return Date{Year: y, Month: time.Month(m), Day: d}
}

// ResolveEnd builds the end boundary date, defaulting missing fields from
// now. If the combination is not a valid calendar date, the nearest prior
// valid date is returned, so end bounds never advance past an invalid target.
func (s DateSpec) ResolveEnd(now Date) Date {
	y, m, d := s.fill(now)
	if last := daysInMonth(y, m); d > last {
		d = last
	}
	return Date{Year: y, Month: time.Month(m), Day: d}
}

func (s DateSpec) fill(now Date) (y, m, d int) {
	y, m, d = s.Year, s.Month, s.Day
	if y == 0 {
		y = now.Year
	}
	if m == 0 {
		m = int(now.Month)
	}
	if d == 0 {
		d = now.Day
	}
	return y, m, d
}

// Validate rejects field values outside the calendar domain. Whether the
// combination names an existing date is decided at resolution time.
func (s DateSpec) Validate() error {
	if s.Year != 0 && (s.Year < 1970 || s.Year > 2099) {
		return constraintSyntaxError("date year %d out of range 1970..2099", s.Year)
	}
	if s.Month != 0 && (s.Month < 1 || s.Month > 12) {
		return constraintSyntaxError("date month %d out of range 1..12", s.Month)
	}
	if s.Day != 0 && (s.Day < 1 || s.Day > 31) {
		return constraintSyntaxError("date day %d out of range 1..31", s.Day)
	}
	return nil
}

func daysInMonth(year, month int) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
