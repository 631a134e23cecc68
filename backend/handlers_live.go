package backend

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/chat"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/livetrip"
)

// ========== Live sessions ==========

func (s *Server) openSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	access := bearerToken(c.GetHeader("Authorization"))
	refresh := c.GetHeader("X-Refresh-Token")

	id, live, err := s.registry.Open(c.Request.Context(), access, refresh, req.TripID)
	if err != nil {
		s.fail(c, "", err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{
		SessionID:     id,
		View:          live.View(),
		Notifications: live.Notifications(),
	})
}

func (s *Server) getSession(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	s.respondView(c, live)
}

func (s *Server) closeSession(c *gin.Context) {
	s.registry.Drop(c.Param("sid"))
	c.Status(http.StatusNoContent)
}

func (s *Server) navigate(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	switch {
	case req.DayIndex != nil:
		live.NavigateTo(*req.DayIndex)
	case req.Direction == "next":
		live.Next()
	case req.Direction == "prev":
		live.Prev()
	default:
		badRequest(c, errors.New("day_index or direction (next|prev) is required"))
		return
	}
	s.respondView(c, live)
}

// ========== Activities ==========

func (s *Server) toggleActivity(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	if err := live.ToggleComplete(c.Request.Context(), c.Param("aid")); err != nil {
		s.fail(c, c.Param("sid"), err)
		return
	}
	s.respondView(c, live)
}

func (s *Server) removeActivity(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	if err := live.RemoveActivity(c.Param("aid")); err != nil {
		s.fail(c, c.Param("sid"), err)
		return
	}
	s.respondView(c, live)
}

func (s *Server) navigateLink(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	link, err := live.MapsLink(c.Param("aid"))
	if err != nil {
		s.fail(c, c.Param("sid"), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link})
}

func (s *Server) saveNote(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	var req saveNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Note == nil && req.IsDone == nil {
		badRequest(c, errors.New("note or is_done is required"))
		return
	}
	note, err := live.SaveNote(c.Request.Context(), req.ActivityID, req.Note, req.IsDone)
	if err != nil {
		s.fail(c, c.Param("sid"), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"activity_id":   req.ActivityID,
		"note":          note,
		"notifications": live.Notifications(),
	})
}

func (s *Server) notifications(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": live.Notifications()})
}

// ========== Chat ==========

func (s *Server) openChat(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	var req openChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var err error
	switch chat.Mode(req.Mode) {
	case chat.ModeReplace:
		if req.ActivityIndex == nil {
			badRequest(c, errors.New("activity_index is required in replace mode"))
			return
		}
		err = live.Chat().OpenReplace(req.DayIndex, *req.ActivityIndex)
	case chat.ModeAdd, "":
		after := ""
		if req.AfterActivityID != nil {
			after = *req.AfterActivityID
		}
		err = live.Chat().Open(req.DayIndex, after)
	default:
		badRequest(c, errors.New("mode must be add or replace"))
		return
	}
	if err != nil {
		s.fail(c, c.Param("sid"), err)
		return
	}
	s.respondChat(c, http.StatusOK, live, "")
}

func (s *Server) getChat(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	s.respondChat(c, http.StatusOK, live, "")
}

func (s *Server) chatMessage(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	_, err := live.SubmitChat(c.Request.Context(), req.Text)
	switch {
	case err == nil:
		s.respondChat(c, http.StatusOK, live, "")
	case statusFor(err) == http.StatusBadGateway:
		// The failure is part of the conversation; the browser renders it.
		s.logger.Warn("chat suggestion failed", "session_id", c.Param("sid"), "error", err)
		s.respondChat(c, http.StatusBadGateway, live, err.Error())
	default:
		s.fail(c, c.Param("sid"), err)
	}
}

func (s *Server) acceptSuggestion(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.CandidateID == "" && req.MessageID == "" {
		badRequest(c, errors.New("candidate_id or message_id is required"))
		return
	}
	res, err := live.AcceptSuggestion(req.CandidateID, req.MessageID)
	if err != nil {
		s.fail(c, c.Param("sid"), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accepted":      res,
		"view":          live.View(),
		"notifications": live.Notifications(),
	})
}

func (s *Server) rejectSuggestion(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var err error
	if req.CandidateID != "" {
		err = live.Chat().RejectOne(req.CandidateID, req.MessageID)
	} else {
		err = live.Chat().RejectAll(req.MessageID)
	}
	if err != nil {
		s.fail(c, c.Param("sid"), err)
		return
	}
	s.respondChat(c, http.StatusOK, live, "")
}

func (s *Server) closeChat(c *gin.Context) {
	live, ok := s.live(c)
	if !ok {
		return
	}
	live.Chat().Close()
	c.Status(http.StatusNoContent)
}

// ========== Responses ==========

func (s *Server) live(c *gin.Context) (*livetrip.Session, bool) {
	live, err := s.registry.Get(c.Param("sid"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "live session not found"})
		return nil, false
	}
	return live, true
}

func (s *Server) respondView(c *gin.Context, live *livetrip.Session) {
	c.JSON(http.StatusOK, viewResponse{View: live.View(), Notifications: live.Notifications()})
}

func (s *Server) respondChat(c *gin.Context, status int, live *livetrip.Session, errText string) {
	c.JSON(status, chatResponse{View: live.Chat().Snapshot(), Error: errText, Notifications: live.Notifications()})
}

// fail writes err. An expired sign-in also drops the live session, since
// nothing it holds can be used any more.
func (s *Server) fail(c *gin.Context, sid string, err error) {
	status := statusFor(err)
	if status == http.StatusUnauthorized && sid != "" {
		s.registry.Drop(sid)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, errorResponse{Error: err.Error(), Redirect: errors.RedirectFor(err)})
}
