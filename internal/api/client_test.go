package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/plan"
)

type staticAuth string

func (s staticAuth) Do(ctx context.Context, call func(context.Context, string) error) error {
	return call(ctx, string(s))
}

func fakeRemote(t *testing.T, register func(r *gin.Engine)) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetTrip(t *testing.T) {
	srv := fakeRemote(t, func(r *gin.Engine) {
		r.GET("/api/my-trips/:id/", func(c *gin.Context) {
			assert.Equal(t, "Bearer tok", c.GetHeader("Authorization"))
			c.JSON(http.StatusOK, gin.H{
				"id":          7,
				"destination": "Rome, Italy",
				"start_date":  nil,
				"plan_json":   gin.H{"days": []gin.H{{"title": "Day 1"}}},
			})
		})
	})

	rec, err := NewClient(srv.URL, srv.Client(), staticAuth("tok")).GetTrip(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, "Rome, Italy", rec.Destination)
	assert.Empty(t, rec.StartDate)
	assert.JSONEq(t, `{"days":[{"title":"Day 1"}]}`, string(rec.PlanJSON))
}

func TestHTTPErrorDetail(t *testing.T) {
	srv := fakeRemote(t, func(r *gin.Engine) {
		r.GET("/api/my-trips/:id/", func(c *gin.Context) {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Given token not valid for any token type"})
		})
		r.GET("/api/activity-notes/:id/", func(c *gin.Context) {
			c.String(http.StatusInternalServerError, "boom")
		})
	})
	client := NewClient(srv.URL, srv.Client(), staticAuth("tok"))

	_, err := client.GetTrip(context.Background(), 1)
	var httpErr *errors.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.True(t, httpErr.Unauthorized())
	assert.Equal(t, "Given token not valid for any token type", httpErr.Detail)

	_, err = client.ListNotes(context.Background(), 1)
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)
	assert.Equal(t, "boom", httpErr.Detail)
}

func TestHTTPErrorDetailKeepsRunesWhole(t *testing.T) {
	body := strings.Repeat("é", 300)
	srv := fakeRemote(t, func(r *gin.Engine) {
		r.GET("/api/my-trips/:id/", func(c *gin.Context) {
			c.String(http.StatusBadGateway, body)
		})
	})

	_, err := NewClient(srv.URL, srv.Client(), staticAuth("tok")).GetTrip(context.Background(), 1)
	var httpErr *errors.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.True(t, utf8.ValidString(httpErr.Detail))
	assert.Equal(t, strings.Repeat("é", 200)+"...", httpErr.Detail)
}

func TestNetworkError(t *testing.T) {
	srv := fakeRemote(t, func(*gin.Engine) {})
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, nil, staticAuth("tok")).ListNotes(context.Background(), 1)
	assert.ErrorIs(t, err, errors.ErrNetwork)
}

func TestSaveNoteOmitsUnsetFields(t *testing.T) {
	srv := fakeRemote(t, func(r *gin.Engine) {
		r.POST("/api/activity-note/", func(c *gin.Context) {
			var body map[string]any
			assert.NoError(t, c.ShouldBindJSON(&body))
			assert.Equal(t, map[string]any{"trip": 7.0, "day_index": 0.0, "activity_index": 1.0, "note": "bring sunscreen"}, body)
			c.JSON(http.StatusOK, gin.H{"id": 3, "trip": 7, "day_index": 0, "activity_index": 1, "note": "bring sunscreen", "is_done": false})
		})
	})

	note := "bring sunscreen"
	rec, err := NewClient(srv.URL, nil, staticAuth("tok")).SaveNote(context.Background(), SaveNoteRequest{Trip: 7, DayIndex: 0, ActivityIndex: 1, Note: &note})
	require.NoError(t, err)
	assert.Equal(t, "bring sunscreen", rec.Note)
	assert.Equal(t, 1, rec.ActivityIndex)
}

func TestSuggestResponseShapes(t *testing.T) {
	replies := map[string]string{
		"single activity":   `{"activity": {"time": "15:00", "description": "Gelato"}}`,
		"activities object": `{"activities": {"time": "15:00", "description": "Gelato"}}`,
		"activities array":  `{"activities": [{"time": "15:00", "description": "Gelato"}, {"description": "Espresso"}]}`,
	}
	want := map[string]int{"single activity": 1, "activities object": 1, "activities array": 2}

	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			srv := fakeRemote(t, func(r *gin.Engine) {
				r.POST("/api/chat-add-activity/", func(c *gin.Context) {
					var req AddActivityRequest
					assert.NoError(t, c.ShouldBindJSON(&req))
					assert.Equal(t, "coffee", req.UserQuery)
					c.Data(http.StatusOK, "application/json", []byte(reply))
				})
			})
			acts, err := NewClient(srv.URL, nil, staticAuth("tok")).SuggestAdditions(context.Background(), AddActivityRequest{UserQuery: "coffee"})
			require.NoError(t, err)
			assert.Len(t, acts, want[name])
			assert.Equal(t, "Gelato", acts[0].Description)
		})
	}
}

func TestSuggestEmpty(t *testing.T) {
	srv := fakeRemote(t, func(r *gin.Engine) {
		r.POST("/api/chat-replace-activity/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"activities": []gin.H{}})
		})
	})
	_, err := NewClient(srv.URL, nil, staticAuth("tok")).SuggestReplacement(context.Background(), ReplaceActivityRequest{Message: "x"})
	assert.ErrorIs(t, err, errors.ErrSuggestionEmpty)
}

func TestAddActivityRequestWireShape(t *testing.T) {
	after := "Colosseum"
	req := AddActivityRequest{
		UserQuery:                      "gelato",
		Destination:                    "Rome, Italy",
		CurrentDayTitle:                "Day 1",
		ExistingActivitiesToday:        []ActivitySummary{{Description: "Colosseum", Time: "09:00"}},
		InsertAfterActivityDescription: &after,
		OriginalTripPreferences:        PreferencesFrom(nil),
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "Colosseum", wire["insert_after_activity_description"])
	assert.Nil(t, wire["next_activity_description"])
	assert.Contains(t, wire, "next_activity_description")
	prefs := wire["original_trip_preferences"].(map[string]any)
	assert.Equal(t, "moderate", prefs["pace"])
	assert.Equal(t, "Mid-range", prefs["budget"])
	assert.Equal(t, "Walking & Public Transit", prefs["transportationMode"])
}

func TestPreferencesFrom(t *testing.T) {
	prefs := PreferencesFrom(&plan.OriginalRequest{Pace: "relaxed", Interests: []string{"food"}})
	assert.Equal(t, "relaxed", prefs.Pace)
	assert.Equal(t, []string{"food"}, prefs.Interests)
	assert.Equal(t, DefaultBudget, prefs.Budget)
	assert.Equal(t, []string{}, prefs.TripStyle)
}

func TestRefresher(t *testing.T) {
	srv := fakeRemote(t, func(r *gin.Engine) {
		r.POST("/api/token/refresh/", func(c *gin.Context) {
			var body tokenPair
			assert.NoError(t, c.ShouldBindJSON(&body))
			assert.Empty(t, c.GetHeader("Authorization"))
			if body.Refresh != "good" {
				c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"access": "new-access"})
		})
	})
	refresher := NewRefresher(srv.URL, nil)

	access, refresh, err := refresher.Refresh(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "new-access", access)
	assert.Empty(t, refresh)

	_, _, err = refresher.Refresh(context.Background(), "bad")
	assert.True(t, errors.IsUnauthorized(err))
}
