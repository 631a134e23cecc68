package navigator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/plan"
)

func threeDays(t *testing.T) *plan.Plan {
	t.Helper()
	p, err := plan.Initialize([]byte(`{"days":[
		{"title":"Arrival","activities":[{"description":"Check in"}]},
		{"title":"Old Town","activities":[]},
		{"title":"Departure","activities":[{"description":"Airport"}]}]}`))
	require.NoError(t, err)
	return p
}

func TestNavigateToStaysInBounds(t *testing.T) {
	p := threeDays(t)
	n := New()

	for _, idx := range []int{-100, -1, 3, 4, 1 << 30} {
		assert.False(t, n.NavigateTo(p, idx), "index %d", idx)
		assert.Equal(t, 0, n.Current(p))
	}

	assert.True(t, n.NavigateTo(p, 2))
	assert.Equal(t, 2, n.Current(p))
	assert.False(t, n.NavigateTo(p, 3))
	assert.Equal(t, 2, n.Current(p))
}

func TestNextPrev(t *testing.T) {
	p := threeDays(t)
	n := New()

	assert.False(t, n.Prev(p))
	assert.True(t, n.Next(p))
	assert.True(t, n.Next(p))
	assert.False(t, n.Next(p))
	assert.Equal(t, 2, n.Current(p))
	assert.True(t, n.Prev(p))
	assert.Equal(t, 1, n.Current(p))
}

func TestCurrentDayIsDerivedFromPlan(t *testing.T) {
	p := threeDays(t)
	n := New()
	require.True(t, n.NavigateTo(p, 1))

	next, _, err := p.InsertActivity(1, "", plan.Activity{Description: "Walking tour"})
	require.NoError(t, err)

	idx, day, ok := n.CurrentDay(next)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "Walking tour", day.Activities[0].Description)

	shorter := &plan.Plan{Days: next.Days[:1]}
	idx, day, ok = n.CurrentDay(shorter)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "Arrival", day.Title)
}

func TestStartOn(t *testing.T) {
	p := threeDays(t)
	n := New()

	n.StartOn(p, "2026-05-01", time.Date(2026, 5, 2, 15, 0, 0, 0, time.Local))
	assert.Equal(t, 1, n.Current(p))

	n.StartOn(p, "2026-05-01", time.Date(2026, 6, 2, 15, 0, 0, 0, time.Local))
	assert.Equal(t, 0, n.Current(p))

	n.StartOn(p, "not a date", time.Now())
	assert.Equal(t, 0, n.Current(p))
}
