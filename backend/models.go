package backend

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/chat"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/livetrip"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/plan"
)

// ========== Stored documents ==========

// LivePlanDoc is one trip's persisted live plan. The plan is stored as its
// JSON text so ids and completion flags round-trip exactly.
type LivePlanDoc struct {
	MongoID   primitive.ObjectID `bson:"_id,omitempty"`
	TripID    int64              `bson:"trip_id"`
	PlanJSON  string             `bson:"plan_json"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func (d LivePlanDoc) decode() (*plan.Plan, error) {
	var p plan.Plan
	if err := json.Unmarshal([]byte(d.PlanJSON), &p); err != nil {
		return nil, fmt.Errorf("decode live plan for trip %d: %w", d.TripID, err)
	}
	return &p, nil
}

// ========== Requests ==========

type openSessionRequest struct {
	TripID int64 `json:"trip_id" binding:"required"`
}

type navigateRequest struct {
	DayIndex  *int   `json:"day_index"`
	Direction string `json:"direction"`
}

// saveNoteRequest is a partial update; absent fields are left unchanged.
type saveNoteRequest struct {
	ActivityID string  `json:"activity_id" binding:"required"`
	Note       *string `json:"note"`
	IsDone     *bool   `json:"is_done"`
}

type openChatRequest struct {
	Mode            string  `json:"mode"`
	DayIndex        int     `json:"day_index"`
	AfterActivityID *string `json:"after_activity_id"`
	ActivityIndex   *int    `json:"activity_index"`
}

type chatMessageRequest struct {
	Text string `json:"text"`
}

type acceptRequest struct {
	CandidateID string `json:"candidate_id"`
	MessageID   string `json:"message_id"`
}

type rejectRequest struct {
	MessageID   string `json:"message_id" binding:"required"`
	CandidateID string `json:"candidate_id"`
}

// ========== Responses ==========

type sessionResponse struct {
	SessionID     string                  `json:"session_id"`
	View          livetrip.View           `json:"view"`
	Notifications []livetrip.Notification `json:"notifications,omitempty"`
}

type viewResponse struct {
	livetrip.View
	Notifications []livetrip.Notification `json:"notifications,omitempty"`
}

type chatResponse struct {
	chat.View
	Error         string                  `json:"error,omitempty"`
	Notifications []livetrip.Notification `json:"notifications,omitempty"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}
