package chat

import "github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"

// State is the conversation state.
type State int

const (
	Closed State = iota
	ContextSet
	AwaitingSuggestion
	SuggestionReady
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case ContextSet:
		return "context_set"
	case AwaitingSuggestion:
		return "awaiting_suggestion"
	case SuggestionReady:
		return "suggestion_ready"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON views.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type event string

const (
	evOpen        event = "open"
	evSubmit      event = "submit"
	evSuggestions event = "suggestions"
	evFailure     event = "failure"
	evFallback    event = "fallback"
	evAccept      event = "accept"
	evRejectOne   event = "reject_one"
	evRejectAll   event = "reject_all"
	evClose       event = "close"
)

// transitions is the only place state changes are defined. A failed
// request falls back to SuggestionReady while earlier candidates are still
// on offer.
var transitions = map[State]map[event]State{
	Closed: {
		evOpen:  ContextSet,
		evClose: Closed,
	},
	ContextSet: {
		evSubmit: AwaitingSuggestion,
		evClose:  Closed,
	},
	AwaitingSuggestion: {
		evSuggestions: SuggestionReady,
		evFailure:     ContextSet,
		evFallback:    SuggestionReady,
		evClose:       Closed,
	},
	SuggestionReady: {
		evSubmit:    AwaitingSuggestion,
		evAccept:    Closed,
		evRejectOne: SuggestionReady,
		evRejectAll: ContextSet,
		evClose:     Closed,
	},
}

// next returns the state after ev, or a TransitionError.
func next(from State, ev event) (State, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, &errors.TransitionError{From: from.String(), Event: string(ev)}
	}
	return to, nil
}
