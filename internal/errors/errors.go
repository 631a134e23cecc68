// Package errors defines the error taxonomy of the live trip engine.
//
// Sentinels name the failure classes every caller branches on:
//   - ErrLoad: the saved plan is missing or malformed (fatal for the session)
//   - ErrAuthExpired: a 401 survived one token refresh (fatal for the operation)
//   - ErrSuggestionEmpty: the suggestion service returned no candidates
//   - ErrRemoteWriteFailed: a note or plan write was rejected
//   - ErrNetwork: the transport failed before any HTTP status was seen
//
// Typed errors carry the context: HTTPError for any non-2xx remote reply,
// LoadError for plan initialization, TransitionError for chat state misuse.
// Use IsFatal / IsRecoverable / RedirectFor to decide how far an error
// propagates.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions so callers only import this package.
var (
	Is   = errors.Is
	As   = errors.As
	New  = errors.New
	Join = errors.Join
)

var (
	// ErrLoad indicates the plan could not be initialized.
	ErrLoad = New("trip plan could not be loaded")
	// ErrAuthExpired indicates the session must sign in again.
	ErrAuthExpired = New("session expired, please sign in again")
	// ErrSuggestionEmpty indicates the suggestion service had nothing to offer.
	ErrSuggestionEmpty = New("no new activity suggestions received from AI")
	// ErrRemoteWriteFailed indicates a remote write was rejected.
	ErrRemoteWriteFailed = New("remote write failed")
	// ErrNetwork indicates a transport-level failure.
	ErrNetwork = New("network failure")
	// ErrInvalidTransition indicates an operation not allowed in the current chat state.
	ErrInvalidTransition = New("invalid chat transition")
	// ErrStaleResponse indicates a suggestion arrived for a conversation that moved on.
	ErrStaleResponse = New("stale suggestion response discarded")
	// ErrNotFound indicates a day, activity, message or session does not exist.
	ErrNotFound = New("not found")
)

// Redirect targets for fatal errors.
const (
	RedirectSignIn   = "/signin"
	RedirectTripList = "/mytrips"
)

// HTTPError is returned for every non-2xx response from the remote API.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Detail string
}

// Error returns the formatted error message.
func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.Status, http.StatusText(e.Status), e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
}

// Unauthorized reports whether the response was a 401.
func (e *HTTPError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// IsUnauthorized reports whether err wraps a 401 HTTPError.
func IsUnauthorized(err error) bool {
	var httpErr *HTTPError
	return As(err, &httpErr) && httpErr.Unauthorized()
}

// LoadError describes why a trip could not enter live mode.
type LoadError struct {
	TripID string
	Reason string
	Err    error
}

// NewLoadError creates a LoadError for the trip.
func NewLoadError(tripID, reason string, cause error) *LoadError {
	return &LoadError{TripID: tripID, Reason: reason, Err: cause}
}

// Error returns the formatted error message.
func (e *LoadError) Error() string {
	prefix := "load error"
	if e.TripID != "" {
		prefix = fmt.Sprintf("load error [trip=%s]", e.TripID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Reason)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error { return e.Err }

// Is makes every LoadError match ErrLoad.
func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// TransitionError reports an event that the chat state machine rejected.
type TransitionError struct {
	From  string
	Event string
}

// Error returns the formatted error message.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid chat transition: %s in state %s", e.Event, e.From)
}

// Is makes every TransitionError match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// IsFatal reports whether err must escape to the page-level error boundary.
func IsFatal(err error) bool {
	return Is(err, ErrLoad) || Is(err, ErrAuthExpired)
}

// IsRecoverable reports whether err can be handled in place with a notification.
func IsRecoverable(err error) bool {
	return err != nil && !IsFatal(err)
}

// RedirectFor returns where the user should be sent for a fatal error.
func RedirectFor(err error) string {
	switch {
	case Is(err, ErrAuthExpired):
		return RedirectSignIn
	case Is(err, ErrLoad):
		return RedirectTripList
	default:
		return ""
	}
}
