// Package plan holds the itinerary tree of a trip in live mode
// (plan → days → activities) and the pure operations that evolve it.
//
// A *Plan is treated as immutable: every operation returns a new *Plan that
// shares untouched days with its input and never writes through to it.
package plan

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
)

// DefaultCurrency is assumed when a cost estimate carries none.
const DefaultCurrency = "USD"

// ========== Data model ==========

// CostEstimate is a min/max price range.
type CostEstimate struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency,omitempty"`
}

// PlaceDetails is the short place summary attached to an activity.
type PlaceDetails struct {
	Name       string `json:"name,omitempty"`
	Category   string `json:"category,omitempty"`
	PriceLevel *int   `json:"price_level,omitempty"`
}

// Activity is a single itinerary entry.
type Activity struct {
	ID             string        `json:"id,omitempty"`
	Time           string        `json:"time,omitempty"`
	Description    string        `json:"description"`
	PlaceLookupKey string        `json:"place_name_for_lookup,omitempty"`
	PlaceDetails   *PlaceDetails `json:"place_details,omitempty"`
	CostEstimate   *CostEstimate `json:"cost_estimate,omitempty"`
	TicketURL      string        `json:"ticket_url,omitempty"`
	IsCompleted    bool          `json:"is_completed"`
}

// Day is one day of the itinerary; activity order is the itinerary order.
type Day struct {
	Title           string        `json:"title,omitempty"`
	DayCostEstimate *CostEstimate `json:"day_cost_estimate,omitempty"`
	Activities      []Activity    `json:"activities"`
}

// RangeEstimate is a min/max pair inside the total cost breakdown.
type RangeEstimate struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// TotalCostEstimate is the trip-level cost with its category breakdown.
type TotalCostEstimate struct {
	Min            float64        `json:"min"`
	Max            float64        `json:"max"`
	Currency       string         `json:"currency,omitempty"`
	Accommodations *RangeEstimate `json:"accommodations,omitempty"`
	Food           *RangeEstimate `json:"food,omitempty"`
	Attractions    *RangeEstimate `json:"attractions,omitempty"`
	Transportation *RangeEstimate `json:"transportation,omitempty"`
	Other          *RangeEstimate `json:"other,omitempty"`
}

// TransportOption describes a way of getting around the destination.
type TransportOption struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	CostRange   string `json:"cost_range,omitempty"`
	AppName     string `json:"app_name,omitempty"`
	AppLink     string `json:"app_link,omitempty"`
}

// DiscountOption describes a pass or discount card.
type DiscountOption struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	Link        string `json:"link,omitempty"`
}

// EmergencyInfo holds local emergency numbers.
type EmergencyInfo struct {
	Police        string `json:"police,omitempty"`
	Ambulance     string `json:"ambulance,omitempty"`
	TouristPolice string `json:"tourist_police,omitempty"`
}

// DestinationInfo is the practical information about the destination.
type DestinationInfo struct {
	Country               string            `json:"country,omitempty"`
	City                  string            `json:"city,omitempty"`
	Language              string            `json:"language,omitempty"`
	Currency              string            `json:"currency,omitempty"`
	ExchangeRate          float64           `json:"exchange_rate,omitempty"`
	BudgetTips            []string          `json:"budget_tips,omitempty"`
	TransportationOptions []TransportOption `json:"transportation_options,omitempty"`
	DiscountOptions       []DiscountOption  `json:"discount_options,omitempty"`
	EmergencyInfo         *EmergencyInfo    `json:"emergency_info,omitempty"`
}

// OriginalRequest is the planning form the trip was generated from.
type OriginalRequest struct {
	Interests          []string `json:"interests,omitempty"`
	Pace               string   `json:"pace,omitempty"`
	Budget             string   `json:"budget,omitempty"`
	TripStyle          []string `json:"tripStyle,omitempty"`
	TransportationMode string   `json:"transportationMode,omitempty"`
}

// Plan is the root of the itinerary tree.
type Plan struct {
	Summary           string             `json:"summary,omitempty"`
	Days              []Day              `json:"days"`
	DestinationInfo   *DestinationInfo   `json:"destination_info,omitempty"`
	TotalCostEstimate *TotalCostEstimate `json:"total_cost_estimate,omitempty"`
	OriginalRequest   *OriginalRequest   `json:"original_request,omitempty"`
}

// NewID generates identifiers for activities created during a session.
// Tests may replace it.
var NewID = func() string {
	return "live-" + uuid.NewString()
}

// ========== Initialization ==========

// Initialize decodes a saved plan and prepares it for live mode: every
// activity receives the load-time id "{dayIndex}-{activityIndex}" and starts
// not completed. A plan without days is a LoadError.
func Initialize(raw []byte) (*Plan, error) {
	if len(raw) == 0 {
		return nil, errors.NewLoadError("", "trip plan data is missing", nil)
	}
	var p Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.NewLoadError("", "trip plan data is malformed", err)
	}
	if len(p.Days) == 0 {
		return nil, errors.NewLoadError("", "trip plan data is incomplete", nil)
	}
	for d := range p.Days {
		acts := make([]Activity, len(p.Days[d].Activities))
		for a, act := range p.Days[d].Activities {
			act.ID = LoadID(d, a)
			act.IsCompleted = false
			acts[a] = act
		}
		p.Days[d].Activities = acts
	}
	return &p, nil
}

// LoadID returns the id assigned at load time to the activity at (day, activity).
func LoadID(dayIndex, activityIndex int) string {
	return strconv.Itoa(dayIndex) + "-" + strconv.Itoa(activityIndex)
}

// ========== Queries ==========

// DayCount returns the number of days.
func (p *Plan) DayCount() int {
	if p == nil {
		return 0
	}
	return len(p.Days)
}

// Day returns the day at index.
func (p *Plan) Day(index int) (Day, bool) {
	if p == nil || index < 0 || index >= len(p.Days) {
		return Day{}, false
	}
	return p.Days[index], true
}

// DayTitle returns the day's title or "Day N" when it has none.
func (p *Plan) DayTitle(index int) string {
	if day, ok := p.Day(index); ok && day.Title != "" {
		return day.Title
	}
	return fmt.Sprintf("Day %d", index+1)
}

// Find locates an activity by id across the whole plan.
func (p *Plan) Find(id string) (dayIndex, activityIndex int, ok bool) {
	if p == nil || id == "" {
		return -1, -1, false
	}
	for d, day := range p.Days {
		if _, a, found := lo.FindIndexOf(day.Activities, func(act Activity) bool { return act.ID == id }); found {
			return d, a, true
		}
	}
	return -1, -1, false
}

// Activity returns the activity with the given id.
func (p *Plan) Activity(id string) (Activity, bool) {
	d, a, ok := p.Find(id)
	if !ok {
		return Activity{}, false
	}
	return p.Days[d].Activities[a], true
}

// HasID reports whether any activity in the plan carries id.
func (p *Plan) HasID(id string) bool {
	_, _, ok := p.Find(id)
	return ok
}

// ========== Mutations ==========

// ToggleComplete flips IsCompleted on the activity with the given id.
// Unknown ids return the plan unchanged.
func (p *Plan) ToggleComplete(id string) *Plan {
	d, a, ok := p.Find(id)
	if !ok {
		return p
	}
	next := p.withDay(d)
	acts := cloneActivities(next.Days[d].Activities)
	acts[a].IsCompleted = !acts[a].IsCompleted
	next.Days[d].Activities = acts
	return next
}

// SetCompleted sets IsCompleted on the activity. The plan is returned
// unchanged when the id is unknown or the flag already matches.
func (p *Plan) SetCompleted(id string, done bool) *Plan {
	if act, ok := p.Activity(id); !ok || act.IsCompleted == done {
		return p
	}
	return p.ToggleComplete(id)
}

// InsertActivity inserts act into day dayIndex. An empty anchorID puts it
// first; otherwise it goes immediately after the anchor, or at the end of
// the day when the anchor no longer exists. The inserted activity always
// gets a fresh id. It returns the new plan and the position used.
func (p *Plan) InsertActivity(dayIndex int, anchorID string, act Activity) (*Plan, int, error) {
	if _, ok := p.Day(dayIndex); !ok {
		return p, -1, fmt.Errorf("insert activity into day %d: %w", dayIndex, errors.ErrNotFound)
	}
	next := p.withDay(dayIndex)
	day := &next.Days[dayIndex]

	pos := len(day.Activities)
	if anchorID == "" {
		pos = 0
	} else if _, i, found := lo.FindIndexOf(day.Activities, func(a Activity) bool { return a.ID == anchorID }); found {
		pos = i + 1
	}

	act.ID = p.uniqueID()
	act.IsCompleted = false
	act.CostEstimate = normalizeCost(act.CostEstimate)

	acts := make([]Activity, 0, len(day.Activities)+1)
	acts = append(acts, day.Activities[:pos]...)
	acts = append(acts, act)
	acts = append(acts, day.Activities[pos:]...)
	day.Activities = acts

	next.adjustCosts(dayIndex, nil, act.CostEstimate)
	return next, pos, nil
}

// ReplaceActivity swaps the activity at (dayIndex, activityIndex) for act,
// keeping its position. Sibling activities keep their ids.
func (p *Plan) ReplaceActivity(dayIndex, activityIndex int, act Activity) (*Plan, error) {
	day, ok := p.Day(dayIndex)
	if !ok || activityIndex < 0 || activityIndex >= len(day.Activities) {
		return p, fmt.Errorf("replace activity %d of day %d: %w", activityIndex, dayIndex, errors.ErrNotFound)
	}
	old := day.Activities[activityIndex]

	next := p.withDay(dayIndex)
	act.ID = p.uniqueID()
	act.IsCompleted = false
	act.CostEstimate = normalizeCost(act.CostEstimate)

	acts := cloneActivities(next.Days[dayIndex].Activities)
	acts[activityIndex] = act
	next.Days[dayIndex].Activities = acts

	next.adjustCosts(dayIndex, old.CostEstimate, act.CostEstimate)
	return next, nil
}

// RemoveActivity deletes the activity with id from day dayIndex.
func (p *Plan) RemoveActivity(dayIndex int, id string) (*Plan, error) {
	day, ok := p.Day(dayIndex)
	if !ok {
		return p, fmt.Errorf("remove activity from day %d: %w", dayIndex, errors.ErrNotFound)
	}
	_, idx, found := lo.FindIndexOf(day.Activities, func(a Activity) bool { return a.ID == id })
	if !found {
		return p, fmt.Errorf("remove activity %q: %w", id, errors.ErrNotFound)
	}
	old := day.Activities[idx]

	next := p.withDay(dayIndex)
	acts := make([]Activity, 0, len(day.Activities)-1)
	acts = append(acts, day.Activities[:idx]...)
	acts = append(acts, day.Activities[idx+1:]...)
	next.Days[dayIndex].Activities = acts

	next.adjustCosts(dayIndex, old.CostEstimate, nil)
	return next, nil
}

// withDay returns a shallow copy of p whose days slice, and the day at
// index, may be modified without affecting p.
func (p *Plan) withDay(index int) *Plan {
	next := *p
	next.Days = make([]Day, len(p.Days))
	copy(next.Days, p.Days)
	if p.TotalCostEstimate != nil {
		total := *p.TotalCostEstimate
		next.TotalCostEstimate = &total
	}
	if cost := p.Days[index].DayCostEstimate; cost != nil {
		c := *cost
		next.Days[index].DayCostEstimate = &c
	}
	return &next
}

// uniqueID draws ids until one is unused in p.
func (p *Plan) uniqueID() string {
	for {
		id := NewID()
		if id != "" && !p.HasID(id) {
			return id
		}
	}
}

// adjustCosts moves the day and trip estimates by (added - removed),
// never letting them drop below zero. p must already own the day and total.
func (p *Plan) adjustCosts(dayIndex int, removed, added *CostEstimate) {
	if removed == nil && added == nil {
		return
	}
	var dMin, dMax float64
	if added != nil {
		dMin += added.Min
		dMax += added.Max
	}
	if removed != nil {
		dMin -= removed.Min
		dMax -= removed.Max
	}

	day := &p.Days[dayIndex]
	switch {
	case day.DayCostEstimate != nil:
		day.DayCostEstimate.Min = clampZero(day.DayCostEstimate.Min + dMin)
		day.DayCostEstimate.Max = clampZero(day.DayCostEstimate.Max + dMax)
		if day.DayCostEstimate.Currency == "" {
			day.DayCostEstimate.Currency = DefaultCurrency
		}
	case added != nil:
		c := *added
		day.DayCostEstimate = &c
	}

	if p.TotalCostEstimate != nil {
		p.TotalCostEstimate.Min = clampZero(p.TotalCostEstimate.Min + dMin)
		p.TotalCostEstimate.Max = clampZero(p.TotalCostEstimate.Max + dMax)
	}
}

func normalizeCost(c *CostEstimate) *CostEstimate {
	if c == nil {
		return nil
	}
	out := *c
	out.Min = clampZero(out.Min)
	out.Max = clampZero(out.Max)
	if out.Currency == "" {
		out.Currency = DefaultCurrency
	}
	return &out
}

func clampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func cloneActivities(acts []Activity) []Activity {
	out := make([]Activity, len(acts))
	copy(out, acts)
	return out
}

// Truncate shortens s to n runes, appending "..." when it was cut.
func Truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
