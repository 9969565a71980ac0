/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Calendar domains for the range constraint kinds.
const (
	MinYear, MaxYear       = 1970, 2099
	MinMonth, MaxMonth     = 1, 12
	MinDay, MaxDay         = 1, 31
	MinWeek, MaxWeek       = 1, 53
	MinWeekday, MaxWeekday = 1, 7
)

// Constraints is the set of calendar predicates a rule's activation depends
// on. Nil specs are always-true; present specs are combined with AND.
type Constraints struct {
	Years     *RangeSpec
	Months    *RangeSpec
	Days      *RangeSpec
	Weeks     *RangeSpec
	Weekdays  *RangeSpec
	StartDate *DateSpec
	EndDate   *DateSpec
}

// IsZero reports whether no constraint is present.
func (c Constraints) IsZero() bool {
	return c.Years == nil && c.Months == nil && c.Days == nil &&
		c.Weeks == nil && c.Weekdays == nil && c.StartDate == nil && c.EndDate == nil
}

// satisfied checks all present constraints against the given date.
func (c Constraints) satisfied(date Date) bool {
	if c.Years != nil || c.Weeks != nil {
		isoYear, isoWeek := date.ISOWeek()
		if c.Years != nil && !c.Years.Matches(isoYear) {
			return false
		}
		if c.Weeks != nil && !c.Weeks.Matches(isoWeek) {
			return false
		}
	}
	if c.Months != nil && !c.Months.Matches(int(date.Month)) {
		return false
	}
	if c.Days != nil && !c.Days.Matches(date.Day) {
		return false
	}
	if c.Weekdays != nil && !c.Weekdays.Matches(date.Weekday()) {
		return false
	}
	if c.StartDate != nil && date.Before(c.StartDate.ResolveStart(date)) {
		return false
	}
	if c.EndDate != nil && c.EndDate.ResolveEnd(date).Before(date) {
		return false
	}
	return true
}

// Expression is a compiled rule expression. Implementations are supplied by
// the expression package; the walker only needs to run them for an instant
// and to identify them for per-evaluation caching.
type Expression interface {
	// Source returns the raw fragment text, for logging.
	Source() string
	// Evaluate runs the fragment and classifies its result into an Outcome.
	Evaluate(instant time.Time) (Outcome, error)
}

// Rule is one entry of a schedule: constraints plus a time window, and
// either a terminal assignment (value or expression), a sub-schedule, or
// both (in which case the assignment only serves as an inheritance source
// for the children). Rules are built at configuration load time and never
// mutated afterwards.
type Rule struct {
	Name        string
	Value       any
	Expr        Expression
	Constraints Constraints
	Window      TimeWindow
	Sub         *Schedule
}

// HasAssignment reports whether the rule carries its own value or
// expression.
func (r *Rule) HasAssignment() bool {
	return r.Value != nil || r.Expr != nil
}

func (r *Rule) String() string {
	var tokens []string
	if r.Sub != nil {
		tokens = append(tokens, fmt.Sprintf("with sub %s", r.Sub))
	}
	if !r.Window.IsZero() {
		tokens = append(tokens, fmt.Sprintf("from %s to %s",
			formatBound(r.Window.Start, r.Window.StartShift),
			formatBound(r.Window.End, r.Window.EndShift)))
	}
	if r.Expr != nil {
		src := r.Expr.Source()
		if len(src) > 40 {
			src = src[:40] + "..."
		}
		tokens = append(tokens, fmt.Sprintf("x=%q", src))
	}
	if r.Value != nil {
		tokens = append(tokens, fmt.Sprintf("v=%v", r.Value))
	}
	if r.Name != "" {
		return fmt.Sprintf("<Rule %q %s>", r.Name, strings.Join(tokens, ", "))
	}
	return fmt.Sprintf("<Rule %s>", strings.Join(tokens, ", "))
}

func formatBound(t *DayTime, shift *int) string {
	repr := "??:??"
	if t != nil {
		repr = t.String()
	}
	if shift != nil {
		repr = fmt.Sprintf("%s%+dd", repr, *shift)
	}
	return repr
}

// Schedule is an ordered sequence of rules, shared and read-only once
// loaded. Named schedules act as snippets referenced by IncludeSchedule.
type Schedule struct {
	Name  string
	Rules []*Rule
}

func (s *Schedule) String() string {
	if s == nil {
		return "<nil schedule>"
	}
	if s.Name != "" {
		return fmt.Sprintf("<Schedule %q>", s.Name)
	}
	return fmt.Sprintf("<Schedule of %d rules>", len(s.Rules))
}

// pathActive reports whether the rule path (root first, leaf last) is active
// at the instant: some candidate start date of the leaf's resolved window
// must satisfy the constraints of every rule along the path.
func pathActive(path []*Rule, instant time.Time) bool {
	w := resolveWindow(path)
candidates:
	for _, date := range w.candidateStartDates(instant) {
		for _, rule := range path {
			if !rule.Constraints.satisfied(date) {
				continue candidates
			}
		}
		return true
	}
	return false
}

// SchedulingTimes returns the distinct window boundary times of the whole
// rule forest, resolved per leaf path so a child inheriting its window from
// an ancestor contributes the ancestor's times rather than midnight. The
// evaluation result can only change at one of these times (or on external
// state changes).
func (s *Schedule) SchedulingTimes() []DayTime {
	seen := make(map[int]DayTime)
	s.collectTimes(nil, seen)
	times := make([]DayTime, 0, len(seen))
	for _, t := range seen {
		times = append(times, t)
	}
	return times
}

func (s *Schedule) collectTimes(path []*Rule, seen map[int]DayTime) {
	if s == nil {
		return
	}
	for _, rule := range s.Rules {
		sub := append(path, rule)
		if rule.Sub != nil {
			rule.Sub.collectTimes(sub, seen)
			continue
		}
		w := resolveWindow(sub)
		seen[w.start.seconds()] = w.start
		seen[w.end.seconds()] = w.end
	}
}

// NextSchedulingTime returns the next instant at which the schedule's result
// may change due to a window boundary. The zero time is returned for a
// schedule without rules.
func (s *Schedule) NextSchedulingTime(now time.Time) time.Time {
	times := s.SchedulingTimes()
	if len(times) == 0 {
		return time.Time{}
	}
	var next time.Time
	for _, t := range times {
		y, m, d := now.Date()
		at := time.Date(y, m, d, t.Hour, t.Minute, t.Second, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	return next
}
