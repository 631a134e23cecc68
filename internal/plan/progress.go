package plan

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
)

// Progress counts completed activities.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Percent returns completion as a whole percentage; an empty set is 0.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return p.Completed * 100 / p.Total
}

// DayProgress returns the progress of one day.
func (p *Plan) DayProgress(dayIndex int) Progress {
	day, ok := p.Day(dayIndex)
	if !ok {
		return Progress{}
	}
	return Progress{
		Completed: lo.CountBy(day.Activities, func(a Activity) bool { return a.IsCompleted }),
		Total:     len(day.Activities),
	}
}

// TripProgress returns the progress across all days.
func (p *Plan) TripProgress() Progress {
	var total Progress
	for d := range p.Days {
		dp := p.DayProgress(d)
		total.Completed += dp.Completed
		total.Total += dp.Total
	}
	return total
}

// Upcoming picks the activity to highlight on a day: the earliest
// non-completed activity whose time is at or after now, falling back to
// the earliest non-completed one. Activities without a time sort last.
// It returns "" when everything is done.
func (p *Plan) Upcoming(dayIndex int, now time.Time) string {
	day, ok := p.Day(dayIndex)
	if !ok {
		return ""
	}
	pending := lo.Filter(day.Activities, func(a Activity, _ int) bool { return !a.IsCompleted })
	if len(pending) == 0 {
		return ""
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return clockMinutes(pending[i].Time) < clockMinutes(pending[j].Time)
	})

	nowMinutes := now.Hour()*60 + now.Minute()
	for _, a := range pending {
		if m := clockMinutes(a.Time); m != noTime && m >= nowMinutes {
			return a.ID
		}
	}
	return pending[0].ID
}

const noTime = 24 * 60

// clockMinutes parses "HH:MM" into minutes after midnight.
func clockMinutes(s string) int {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return noTime
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return noTime
	}
	return h*60 + m
}

// MapsURL builds the map search link for an activity's place. The city and
// country come from the destination info, falling back to the trip's
// "City, Country" destination string.
func MapsURL(placeName string, info *DestinationInfo, tripDestination string) (string, error) {
	placeName = strings.TrimSpace(placeName)
	if placeName == "" {
		return "", fmt.Errorf("location not specified for this activity: %w", errors.ErrNotFound)
	}
	var city, country string
	if info != nil {
		city, country = info.City, info.Country
	}
	parts := strings.Split(tripDestination, ",")
	if city == "" {
		city = strings.TrimSpace(parts[0])
	}
	if country == "" && len(parts) > 1 {
		country = strings.TrimSpace(parts[1])
	}
	query := strings.Join(lo.Compact([]string{placeName, city, country}), " ")
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(query), nil
}
