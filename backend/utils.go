package backend

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/chat"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/config"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/notes"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/session"
)

// ========== Helpers ==========

// bearerToken extracts the token from an "Authorization: Bearer x" header.
func bearerToken(header string) string {
	token, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// statusFor maps an engine error onto the HTTP status returned to the browser.
func statusFor(err error) int {
	var httpErr *errors.HTTPError
	switch {
	case errors.Is(err, errors.ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrInvalidTransition), errors.Is(err, errors.ErrStaleResponse):
		return http.StatusConflict
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, notes.ErrEmptyUpdate):
		return http.StatusBadRequest
	case errors.As(err, &httpErr),
		errors.Is(err, errors.ErrNetwork),
		errors.Is(err, errors.ErrRemoteWriteFailed),
		errors.Is(err, errors.ErrSuggestionEmpty),
		errors.Is(err, ErrBadAIResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		AccessTTL:    cfg.Auth.AccessTTL,
		RefreshTTL:   cfg.Auth.RefreshTTL,
		TripCacheTTL: cfg.Session.TripCacheTTL,
	}
}
