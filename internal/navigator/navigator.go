// Package navigator tracks which day of a live trip is in view.
package navigator

import (
	"time"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/plan"
)

// Navigator holds the current day index. The day itself is always derived
// from the plan passed in, never cached, so it cannot go stale after the
// plan is mutated.
type Navigator struct {
	current int
}

// New returns a Navigator positioned on the first day.
func New() *Navigator {
	return &Navigator{}
}

// Current returns the current day index, clamped to the plan's days.
func (n *Navigator) Current(p *plan.Plan) int {
	count := p.DayCount()
	switch {
	case count == 0:
		return 0
	case n.current >= count:
		return count - 1
	default:
		return n.current
	}
}

// CurrentDay returns the day in view.
func (n *Navigator) CurrentDay(p *plan.Plan) (int, plan.Day, bool) {
	idx := n.Current(p)
	day, ok := p.Day(idx)
	return idx, day, ok
}

// NavigateTo moves to index when it is a valid day and reports whether it
// moved. Out-of-range requests are ignored.
func (n *Navigator) NavigateTo(p *plan.Plan, index int) bool {
	if index < 0 || index >= p.DayCount() {
		return false
	}
	n.current = index
	return true
}

// Next moves forward one day if possible.
func (n *Navigator) Next(p *plan.Plan) bool {
	return n.NavigateTo(p, n.Current(p)+1)
}

// Prev moves back one day if possible.
func (n *Navigator) Prev(p *plan.Plan) bool {
	return n.NavigateTo(p, n.Current(p)-1)
}

// StartOn positions the navigator on the day whose date is today, counting
// from the trip's start date. Without a match it stays on the first day.
func (n *Navigator) StartOn(p *plan.Plan, startDate string, today time.Time) {
	n.current = 0
	if startDate == "" {
		return
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return
	}
	todayStr := today.Format("2006-01-02")
	for i := 0; i < p.DayCount(); i++ {
		if start.AddDate(0, 0, i).Format("2006-01-02") == todayStr {
			n.current = i
			return
		}
	}
}
