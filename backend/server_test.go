package backend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/api"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/chat"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/config"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/livetrip"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/logging"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/plan"
)

const tokyoPlan = `{"summary":"Tokyo","days":[
  {"title":"Day 1: Asakusa","activities":[
    {"time":"09:00","description":"Senso-ji","place_name_for_lookup":"Senso-ji"},
    {"time":"12:00","description":"Ramen lunch"}]},
  {"title":"Day 2: Shibuya","activities":[{"time":"10:00","description":"Meiji Shrine"}]}],
  "destination_info":{"city":"Tokyo","country":"Japan"}}`

// fakeAPI is the remote trip planner API.
type fakeAPI struct {
	mu        sync.Mutex
	notes     []api.SaveNoteRequest
	records   []api.NoteRecord
	addBodies []map[string]any
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fakeAPI{records: []api.NoteRecord{{ID: 1, Trip: 7, DayIndex: 1, ActivityIndex: 0, Note: "buy omamori"}}}
	r := gin.New()

	authed := func(c *gin.Context) bool {
		if c.GetHeader("Authorization") != "Bearer good" {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Given token not valid"})
			return false
		}
		return true
	}

	r.POST("/api/token/refresh/", func(c *gin.Context) {
		var body map[string]string
		assert.NoError(t, c.ShouldBindJSON(&body))
		if body["refresh"] != "refresh-ok" {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"access": "good"})
	})
	r.GET("/api/my-trips/:id/", func(c *gin.Context) {
		if !authed(c) {
			return
		}
		switch c.Param("id") {
		case "7":
			c.JSON(http.StatusOK, gin.H{
				"id": 7, "title": "Tokyo spring", "destination": "Tokyo, Japan",
				"start_date": "2020-04-01", "plan_json": json.RawMessage(tokyoPlan),
			})
		case "8":
			c.JSON(http.StatusOK, gin.H{"id": 8, "destination": "Nowhere", "plan_json": json.RawMessage(`{"days":[]}`)})
		default:
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		}
	})
	r.GET("/api/activity-notes/:id/", func(c *gin.Context) {
		if !authed(c) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		out := []api.NoteRecord{}
		for _, rec := range f.records {
			if strconv.FormatInt(rec.Trip, 10) == c.Param("id") {
				out = append(out, rec)
			}
		}
		c.JSON(http.StatusOK, out)
	})
	r.POST("/api/activity-note/", func(c *gin.Context) {
		if !authed(c) {
			return
		}
		var req api.SaveNoteRequest
		assert.NoError(t, c.ShouldBindJSON(&req))
		f.mu.Lock()
		defer f.mu.Unlock()
		f.notes = append(f.notes, req)
		i := slices.IndexFunc(f.records, func(r api.NoteRecord) bool {
			return r.Trip == req.Trip && r.DayIndex == req.DayIndex && r.ActivityIndex == req.ActivityIndex
		})
		if i < 0 {
			f.records = append(f.records, api.NoteRecord{ID: int64(len(f.records) + 1), Trip: req.Trip, DayIndex: req.DayIndex, ActivityIndex: req.ActivityIndex})
			i = len(f.records) - 1
		}
		if req.Note != nil {
			f.records[i].Note = *req.Note
		}
		if req.IsDone != nil {
			f.records[i].IsDone = *req.IsDone
		}
		c.JSON(http.StatusOK, f.records[i])
	})
	r.POST("/api/chat-add-activity/", func(c *gin.Context) {
		if !authed(c) {
			return
		}
		var body map[string]any
		assert.NoError(t, c.ShouldBindJSON(&body))
		f.mu.Lock()
		f.addBodies = append(f.addBodies, body)
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"activities": []gin.H{
			{"time": "15:00", "description": "Matcha tasting", "cost_estimate": gin.H{"min": 10, "max": 20, "currency": "USD"}},
		}})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestServer(t *testing.T) (*Server, *fakeAPI) {
	t.Helper()
	f, remote := newFakeAPI(t)
	cfg := config.Default()
	cfg.API.BaseURL = remote.URL
	reg := NewRegistry(RegistryConfig{
		APIBaseURL: remote.URL,
		HTTPClient: remote.Client(),
		Session:    sessionConfig(cfg),
		IdleTTL:    cfg.Session.IdleTTL,
		Logger:     logging.NopLogger(),
	})
	t.Cleanup(reg.Close)
	return newServer(cfg, logging.NopLogger(), reg), f
}

func request(t *testing.T, s *Server, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func openTrip(t *testing.T, s *Server, tripID int64) (string, livetrip.View) {
	t.Helper()
	w := request(t, s, http.MethodPost, "/api/live/sessions", gin.H{"trip_id": tripID},
		"Authorization", "Bearer good", "X-Refresh-Token", "refresh-ok")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[sessionResponse](t, w)
	require.NotEmpty(t, res.SessionID)
	return res.SessionID, res.View
}

type chatBody struct {
	State    string         `json:"state"`
	Context  *chat.Context  `json:"context"`
	Messages []chat.Message `json:"messages"`
	Error    string         `json:"error"`
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := request(t, s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, w)["status"])
}

func TestOpenSession(t *testing.T) {
	s, _ := newTestServer(t)
	_, view := openTrip(t, s, 7)

	assert.Equal(t, int64(7), view.Trip.ID)
	assert.Equal(t, 2, view.DayCount)
	assert.Equal(t, 0, view.CurrentDayIndex)
	assert.Equal(t, "Day 1: Asakusa", view.CurrentDay.Title)
	assert.Equal(t, "buy omamori", view.Notes["1-0"].Note)
}

func TestOpenSessionErrors(t *testing.T) {
	s, _ := newTestServer(t)

	w := request(t, s, http.MethodPost, "/api/live/sessions", gin.H{"trip_id": 8}, "Authorization", "Bearer good")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "/mytrips", decode[errorResponse](t, w).Redirect)

	w = request(t, s, http.MethodPost, "/api/live/sessions", gin.H{"trip_id": 404}, "Authorization", "Bearer good")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = request(t, s, http.MethodPost, "/api/live/sessions", gin.H{"trip_id": 7},
		"Authorization", "Bearer stale", "X-Refresh-Token", "refresh-revoked")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "/signin", decode[errorResponse](t, w).Redirect)

	w = request(t, s, http.MethodPost, "/api/live/sessions", gin.H{"trip_id": 7})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(t, s, http.MethodPost, "/api/live/sessions", gin.H{}, "Authorization", "Bearer good")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpenSessionRefreshesStaleToken(t *testing.T) {
	s, _ := newTestServer(t)
	w := request(t, s, http.MethodPost, "/api/live/sessions", gin.H{"trip_id": 7},
		"Authorization", "Bearer stale", "X-Refresh-Token", "refresh-ok")
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestUnknownSession(t *testing.T) {
	s, _ := newTestServer(t)
	w := request(t, s, http.MethodGet, "/api/live/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestToggleAndNavigate(t *testing.T) {
	s, _ := newTestServer(t)
	sid, _ := openTrip(t, s, 7)
	base := "/api/live/sessions/" + sid

	w := request(t, s, http.MethodPost, base+"/activities/0-0/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[viewResponse](t, w)
	assert.Equal(t, plan.Progress{Completed: 1, Total: 2}, view.DayProgress)
	assert.Equal(t, plan.Progress{Completed: 1, Total: 3}, view.TripProgress)

	w = request(t, s, http.MethodPost, base+"/activities/9-9/toggle", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = request(t, s, http.MethodPost, base+"/navigate", gin.H{"direction": "next"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[viewResponse](t, w).CurrentDayIndex)

	w = request(t, s, http.MethodPost, base+"/navigate", gin.H{"day_index": 5})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[viewResponse](t, w).CurrentDayIndex, "out of range is ignored")

	w = request(t, s, http.MethodPost, base+"/navigate", gin.H{"day_index": 0})
	assert.Equal(t, 0, decode[viewResponse](t, w).CurrentDayIndex)

	w = request(t, s, http.MethodPost, base+"/navigate", gin.H{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveNote(t *testing.T) {
	s, f := newTestServer(t)
	sid, _ := openTrip(t, s, 7)

	w := request(t, s, http.MethodPost, "/api/live/sessions/"+sid+"/notes",
		gin.H{"activity_id": "0-1", "note": "try the tsukemen", "is_done": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	f.mu.Lock()
	require.Len(t, f.notes, 1)
	got := f.notes[0]
	f.mu.Unlock()
	assert.Equal(t, int64(7), got.Trip)
	assert.Equal(t, 0, got.DayIndex)
	assert.Equal(t, 1, got.ActivityIndex)
	require.NotNil(t, got.Note)
	assert.Equal(t, "try the tsukemen", *got.Note)

	view := decode[viewResponse](t, request(t, s, http.MethodGet, "/api/live/sessions/"+sid, nil))
	assert.Equal(t, "try the tsukemen", view.Notes["0-1"].Note)
	assert.True(t, view.Notes["0-1"].IsDone)
	assert.Equal(t, plan.Progress{Completed: 1, Total: 2}, view.DayProgress)

	w = request(t, s, http.MethodPost, "/api/live/sessions/"+sid+"/notes",
		gin.H{"activity_id": "0-1", "note": "closed on mondays"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.mu.Lock()
	assert.Nil(t, f.notes[1].IsDone, "text-only save leaves is_done out of the request")
	f.mu.Unlock()
	view = decode[viewResponse](t, request(t, s, http.MethodGet, "/api/live/sessions/"+sid, nil))
	assert.True(t, view.Notes["0-1"].IsDone)

	w = request(t, s, http.MethodPost, "/api/live/sessions/"+sid+"/notes", gin.H{"activity_id": "0-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToggleWritesThroughToNotes(t *testing.T) {
	s, f := newTestServer(t)
	sid, _ := openTrip(t, s, 7)

	w := request(t, s, http.MethodPost, "/api/live/sessions/"+sid+"/activities/0-0/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	f.mu.Lock()
	require.Len(t, f.notes, 1)
	got := f.notes[0]
	f.mu.Unlock()
	assert.Equal(t, 0, got.DayIndex)
	assert.Equal(t, 0, got.ActivityIndex)
	assert.Nil(t, got.Note)
	require.NotNil(t, got.IsDone)
	assert.True(t, *got.IsDone)

	_, view := openTrip(t, s, 7)
	assert.Equal(t, plan.Progress{Completed: 1, Total: 2}, view.DayProgress, "completion survives a reopen")
	assert.True(t, view.Notes["0-0"].IsDone)
}

func TestNavigateLink(t *testing.T) {
	s, _ := newTestServer(t)
	sid, _ := openTrip(t, s, 7)

	w := request(t, s, http.MethodGet, "/api/live/sessions/"+sid+"/navigate-link/0-0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://www.google.com/maps/search/?api=1&query=Senso-ji+Tokyo+Japan", decode[map[string]string](t, w)["url"])

	w = request(t, s, http.MethodGet, "/api/live/sessions/"+sid+"/navigate-link/0-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatAddFlow(t *testing.T) {
	s, f := newTestServer(t)
	sid, _ := openTrip(t, s, 7)
	base := "/api/live/sessions/" + sid + "/chat"

	w := request(t, s, http.MethodPost, base, gin.H{"day_index": 0, "after_activity_id": "0-0"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	conv := decode[chatBody](t, w)
	assert.Equal(t, "context_set", conv.State)
	require.Len(t, conv.Messages, 1)

	w = request(t, s, http.MethodPost, base+"/accept", gin.H{"candidate_id": "temp-x"})
	assert.Equal(t, http.StatusConflict, w.Code, "nothing to accept yet")

	w = request(t, s, http.MethodPost, base+"/messages", gin.H{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(t, s, http.MethodPost, base+"/messages", gin.H{"text": "something with tea"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	conv = decode[chatBody](t, w)
	assert.Equal(t, "suggestion_ready", conv.State)
	last := conv.Messages[len(conv.Messages)-1]
	require.Len(t, last.SuggestedActivities, 1)

	f.mu.Lock()
	require.Len(t, f.addBodies, 1)
	assert.Equal(t, "Senso-ji", f.addBodies[0]["insert_after_activity_description"])
	assert.Equal(t, "Ramen lunch", f.addBodies[0]["next_activity_description"])
	f.mu.Unlock()

	w = request(t, s, http.MethodPost, base+"/accept", gin.H{"candidate_id": last.SuggestedActivities[0].ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	accepted := decode[struct {
		View          livetrip.View           `json:"view"`
		Notifications []livetrip.Notification `json:"notifications"`
	}](t, w)
	acts := accepted.View.CurrentDay.Activities
	require.Len(t, acts, 3)
	assert.Equal(t, "Matcha tasting", acts[1].Description)
	require.NotEmpty(t, accepted.Notifications)
	assert.Equal(t, `Activity "Matcha tasting" added!`, accepted.Notifications[0].Message)

	conv = decode[chatBody](t, request(t, s, http.MethodGet, base, nil))
	assert.Equal(t, "closed", conv.State)
}

func TestChatRejectAll(t *testing.T) {
	s, _ := newTestServer(t)
	sid, _ := openTrip(t, s, 7)
	base := "/api/live/sessions/" + sid + "/chat"

	request(t, s, http.MethodPost, base, gin.H{"day_index": 1, "after_activity_id": nil})
	conv := decode[chatBody](t, request(t, s, http.MethodPost, base+"/messages", gin.H{"text": "tea"}))
	ai := conv.Messages[len(conv.Messages)-1]

	w := request(t, s, http.MethodPost, base+"/reject", gin.H{"message_id": ai.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	conv = decode[chatBody](t, w)
	assert.Equal(t, "context_set", conv.State)

	w = request(t, s, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "closed", decode[chatBody](t, request(t, s, http.MethodGet, base, nil)).State)
}

func TestRemoveActivityAndCloseSession(t *testing.T) {
	s, _ := newTestServer(t)
	sid, _ := openTrip(t, s, 7)

	w := request(t, s, http.MethodDelete, "/api/live/sessions/"+sid+"/activities/0-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[viewResponse](t, w).CurrentDay.Activities, 1)

	w = request(t, s, http.MethodDelete, "/api/live/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = request(t, s, http.MethodGet, "/api/live/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken(""))
}
