package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/plan"
)

// TripRecord is a saved trip as returned by /api/my-trips/{id}/.
type TripRecord struct {
	ID                   int64           `json:"id"`
	Title                string          `json:"title,omitempty"`
	Destination          string          `json:"destination"`
	StartDate            string          `json:"start_date,omitempty"`
	EndDate              string          `json:"end_date,omitempty"`
	PlanJSON             json.RawMessage `json:"plan_json"`
	SavedAt              string          `json:"saved_at,omitempty"`
	DestinationImageURLs []string        `json:"destination_image_urls,omitempty"`
}

// Clone returns a deep copy so cached records never share plan bytes.
func (r TripRecord) Clone() TripRecord {
	out := r
	out.PlanJSON = append(json.RawMessage(nil), r.PlanJSON...)
	out.DestinationImageURLs = append([]string(nil), r.DestinationImageURLs...)
	return out
}

// NoteRecord is one stored activity note.
type NoteRecord struct {
	ID            int64  `json:"id,omitempty"`
	Trip          int64  `json:"trip,omitempty"`
	DayIndex      int    `json:"day_index"`
	ActivityIndex int    `json:"activity_index"`
	Note          string `json:"note"`
	IsDone        bool   `json:"is_done"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// SaveNoteRequest is the body of POST /api/activity-note/. Nil fields are
// left out so the store keeps their current value.
type SaveNoteRequest struct {
	Trip          int64   `json:"trip"`
	DayIndex      int     `json:"day_index"`
	ActivityIndex int     `json:"activity_index"`
	Note          *string `json:"note,omitempty"`
	IsDone        *bool   `json:"is_done,omitempty"`
}

// ActivitySummary is the context form of a same-day activity.
type ActivitySummary struct {
	Description string `json:"description"`
	Time        string `json:"time,omitempty"`
}

// TripPreferences are the planning preferences forwarded to the suggestion service.
type TripPreferences struct {
	Interests          []string `json:"interests"`
	Pace               string   `json:"pace"`
	Budget             string   `json:"budget"`
	TripStyle          []string `json:"tripStyle"`
	TransportationMode string   `json:"transportationMode"`
}

// Preference defaults used when the trip was saved without them.
const (
	DefaultPace      = "moderate"
	DefaultBudget    = "Mid-range"
	DefaultTransport = "Walking & Public Transit"
)

// PreferencesFrom fills TripPreferences from a plan's original request.
func PreferencesFrom(req *plan.OriginalRequest) TripPreferences {
	prefs := TripPreferences{
		Interests:          []string{},
		Pace:               DefaultPace,
		Budget:             DefaultBudget,
		TripStyle:          []string{},
		TransportationMode: DefaultTransport,
	}
	if req == nil {
		return prefs
	}
	if len(req.Interests) > 0 {
		prefs.Interests = req.Interests
	}
	if req.Pace != "" {
		prefs.Pace = req.Pace
	}
	if req.Budget != "" {
		prefs.Budget = req.Budget
	}
	if len(req.TripStyle) > 0 {
		prefs.TripStyle = req.TripStyle
	}
	if req.TransportationMode != "" {
		prefs.TransportationMode = req.TransportationMode
	}
	return prefs
}

// AddActivityRequest is the body of POST /api/chat-add-activity/.
type AddActivityRequest struct {
	UserQuery                      string            `json:"user_query"`
	Destination                    string            `json:"destination"`
	CurrentDayTitle                string            `json:"current_day_title"`
	ExistingActivitiesToday        []ActivitySummary `json:"existing_activities_today"`
	InsertAfterActivityDescription *string           `json:"insert_after_activity_description"`
	NextActivityDescription        *string           `json:"next_activity_description"`
	OriginalTripPreferences        TripPreferences   `json:"original_trip_preferences"`
	Plan                           *plan.Plan        `json:"plan"`
}

// ReplaceActivityRequest is the body of POST /api/chat-replace-activity/.
type ReplaceActivityRequest struct {
	Message          string         `json:"message"`
	DayIndex         int            `json:"dayIndex"`
	ActivityIndex    int            `json:"activityIndex"`
	Plan             *plan.Plan     `json:"plan"`
	PreviousActivity *plan.Activity `json:"previousActivity,omitempty"`
	NextActivity     *plan.Activity `json:"nextActivity,omitempty"`
}

// SuggestionResponse accepts both reply shapes of the suggestion endpoints:
// {"activity": {...}} and {"activities": {...} | [...]}.
type SuggestionResponse struct {
	Activity   json.RawMessage `json:"activity,omitempty"`
	Activities json.RawMessage `json:"activities,omitempty"`
}

// Candidates flattens the response into a list.
func (r SuggestionResponse) Candidates() ([]plan.Activity, error) {
	var out []plan.Activity
	for _, raw := range []json.RawMessage{r.Activities, r.Activity} {
		acts, err := DecodeActivities(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, acts...)
	}
	return out, nil
}

// DecodeActivities decodes either a single activity object or an array.
func DecodeActivities(raw json.RawMessage) ([]plan.Activity, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var acts []plan.Activity
		if err := json.Unmarshal(raw, &acts); err != nil {
			return nil, fmt.Errorf("decode activities: %w", err)
		}
		return acts, nil
	}
	var act plan.Activity
	if err := json.Unmarshal(raw, &act); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}
	return []plan.Activity{act}, nil
}

// tokenPair is the body and reply of POST /api/token/refresh/.
type tokenPair struct {
	Access  string `json:"access,omitempty"`
	Refresh string `json:"refresh,omitempty"`
}
