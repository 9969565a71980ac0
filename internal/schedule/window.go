/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DayTime is a time of day with second precision.
type DayTime struct {
	Hour   int
	Minute int
	Second int
}

func (t DayTime) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t DayTime) String() string {
	if t.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

var timeOfDayPattern = regexp.MustCompile(
	`^\s*([01]?\d|2[0-3])\s*:\s*([0-5]\d)\s*(?::\s*([0-5]\d))?\s*(?:([+-])\s*(\d+)\s*d)?\s*$`,
)

// ParseTimeOfDay parses "HH:MM[:SS][±Nd]" into a time of day and a day
// shift. shiftSet reports whether a shift suffix was present.
func ParseTimeOfDay(s string) (t DayTime, shift int, shiftSet bool, err error) {
	m := timeOfDayPattern.FindStringSubmatch(s)
	if m == nil {
		return DayTime{}, 0, false, constraintSyntaxError("invalid time %q", s)
	}
	t.Hour, _ = strconv.Atoi(m[1])
	t.Minute, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		t.Second, _ = strconv.Atoi(m[3])
	}
	if m[5] != "" {
		shift, _ = strconv.Atoi(m[5])
		if m[4] == "-" {
			shift = -shift
		}
		shiftSet = true
	}
	return t, shift, shiftSet, nil
}

// TimeWindow holds the optional start/end times and day shifts of a rule.
// Unset fields are resolved from the nearest enclosing rule that sets them;
// see resolveWindow.
type TimeWindow struct {
	Start      *DayTime
	StartShift *int
	End        *DayTime
	EndShift   *int
}

// IsZero reports whether the rule sets no window field of its own.
func (w TimeWindow) IsZero() bool {
	return w.Start == nil && w.StartShift == nil && w.End == nil && w.EndShift == nil
}

// window is a fully resolved time window. endShift counts days from the
// candidate date, like startShift does.
type window struct {
	start      DayTime
	startShift int
	end        DayTime
	endShift   int
}

// resolveWindow computes the effective window for the rightmost rule of a
// path. Each field is taken from the nearest rule (leaf first) that sets it.
// A missing time defaults to midnight. A missing end shift defaults to the
// start shift, plus one day when the window would otherwise be empty or
// reversed (end <= start).
func resolveWindow(path []*Rule) window {
	var w window
	startSet, startShiftSet, endSet, endShiftSet := false, false, false, false
	for i := len(path) - 1; i >= 0; i-- {
		tw := path[i].Window
		if !startSet && tw.Start != nil {
			w.start, startSet = *tw.Start, true
		}
		if !startShiftSet && tw.StartShift != nil {
			w.startShift, startShiftSet = *tw.StartShift, true
		}
		if !endSet && tw.End != nil {
			w.end, endSet = *tw.End, true
		}
		if !endShiftSet && tw.EndShift != nil {
			w.endShift, endShiftSet = *tw.EndShift, true
		}
	}
	if !endShiftSet {
		w.endShift = w.startShift
		if w.end.seconds() <= w.start.seconds() {
			w.endShift++
		}
	}
	return w
}

// span is the number of days between the window's start day and end day.
func (w window) span() int {
	return w.endShift - w.startShift
}

// covers reports whether the window, anchored at the given candidate start
// date, contains the instant. The interval is half-open:
// start <= instant < end.
func (w window) covers(candidate Date, instant time.Time) bool {
	loc := instant.Location()
	start := time.Date(candidate.Year, candidate.Month, candidate.Day+w.startShift,
		w.start.Hour, w.start.Minute, w.start.Second, 0, loc)
	end := time.Date(candidate.Year, candidate.Month, candidate.Day+w.endShift,
		w.end.Hour, w.end.Minute, w.end.Second, 0, loc)
	return !instant.Before(start) && instant.Before(end)
}

// candidateStartDates returns the dates, most recent first, on which the
// window could have started while still covering the instant. These are the
// dates rule constraints are checked against, letting a day-shifted window
// target dates its constraints could not express directly.
func (w window) candidateStartDates(instant time.Time) []Date {
	today := DateOf(instant)
	var dates []Date
	for back := 0; back <= w.span(); back++ {
		candidate := today.AddDays(-back - w.startShift)
		if w.covers(candidate, instant) {
			dates = append(dates, candidate)
		}
	}
	return dates
}
