package livetrip

import (
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/notes"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/plan"
)

// TripSummary is the trip header shown in live mode.
type TripSummary struct {
	ID          int64  `json:"id"`
	Title       string `json:"title,omitempty"`
	Destination string `json:"destination"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

// View is everything the live page renders, taken from one plan snapshot.
type View struct {
	Trip                  TripSummary           `json:"trip"`
	CurrentDayIndex       int                   `json:"current_day_index"`
	DayCount              int                   `json:"day_count"`
	CurrentDay            plan.Day              `json:"current_day"`
	DayProgress           plan.Progress         `json:"day_progress"`
	TripProgress          plan.Progress         `json:"trip_progress"`
	HighlightedActivityID string                `json:"highlighted_activity_id,omitempty"`
	Notes                 map[string]notes.Note `json:"notes"`
	DestinationInfo       *plan.DestinationInfo `json:"destination_info,omitempty"`
}

// View builds the current view.
func (s *Session) View() View {
	s.mu.RLock()
	p := s.plan
	idx, day, _ := s.nav.CurrentDay(p)
	s.mu.RUnlock()

	return View{
		Trip: TripSummary{
			ID:          s.trip.ID,
			Title:       s.trip.Title,
			Destination: s.trip.Destination,
			StartDate:   s.trip.StartDate,
			EndDate:     s.trip.EndDate,
			Summary:     p.Summary,
		},
		CurrentDayIndex:       idx,
		DayCount:              p.DayCount(),
		CurrentDay:            day,
		DayProgress:           p.DayProgress(idx),
		TripProgress:          p.TripProgress(),
		HighlightedActivityID: p.Upcoming(idx, s.now()),
		Notes:                 s.notesFor(p),
		DestinationInfo:       p.DestinationInfo,
	}
}
