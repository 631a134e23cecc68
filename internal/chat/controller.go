// Package chat implements the conversation that asks the suggestion service
// for a new or replacement activity and splices the accepted candidate into
// the live plan.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/api"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/logging"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/plan"
)

// ErrEmptyMessage is returned by Submit for blank input.
var ErrEmptyMessage = errors.New("chat message is empty")

// Mode selects between adding and replacing an activity.
type Mode string

const (
	ModeAdd     Mode = "add"
	ModeReplace Mode = "replace"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

// Context is what the conversation is about. For ModeAdd, an empty
// AfterActivityID means "first activity of the day". For ModeReplace,
// TargetID is the activity being replaced.
type Context struct {
	Mode            Mode   `json:"mode"`
	DayIndex        int    `json:"day_index"`
	AfterActivityID string `json:"after_activity_id,omitempty"`
	TargetID        string `json:"target_id,omitempty"`
}

// Message is one entry of the conversation.
type Message struct {
	ID                  string          `json:"id"`
	Text                string          `json:"text"`
	Sender              Sender          `json:"sender"`
	Timestamp           time.Time       `json:"timestamp"`
	SuggestedActivities []plan.Activity `json:"suggested_activities,omitempty"`
}

// View is a copy of the conversation for rendering.
type View struct {
	State    State     `json:"state"`
	Context  *Context  `json:"context,omitempty"`
	Messages []Message `json:"messages"`
}

// Suggester is the suggestion service.
type Suggester interface {
	SuggestAdditions(ctx context.Context, req api.AddActivityRequest) ([]plan.Activity, error)
	SuggestReplacement(ctx context.Context, req api.ReplaceActivityRequest) ([]plan.Activity, error)
}

// Host owns the plan the conversation edits. Apply must run fn atomically
// with respect to other plan mutations.
type Host interface {
	Plan() *plan.Plan
	Destination() string
	Apply(fn func(*plan.Plan) (*plan.Plan, error)) error
}

// Accepted describes the activities an accept placed into the plan.
type Accepted struct {
	Mode       Mode            `json:"mode"`
	DayIndex   int             `json:"day_index"`
	Activities []plan.Activity `json:"activities"`
}

// Controller drives one conversation at a time.
type Controller struct {
	host      Host
	suggester Suggester
	logger    *logging.Logger
	now       func() time.Time

	mu         sync.Mutex
	state      State
	context    *Context
	messages   []Message
	generation uint64
}

// NewController creates a closed Controller.
func NewController(host Host, suggester Suggester, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Controller{
		host:      host,
		suggester: suggester,
		logger:    logger.WithComponent("chat"),
		now:       time.Now,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the conversation.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{State: c.state, Messages: make([]Message, len(c.messages))}
	for i, m := range c.messages {
		m.SuggestedActivities = append([]plan.Activity(nil), m.SuggestedActivities...)
		v.Messages[i] = m
	}
	if c.context != nil {
		cc := *c.context
		v.Context = &cc
	}
	return v
}

// ========== Open / Close ==========

// Open starts an add conversation for a day. afterActivityID "" means the
// new activity goes first.
func (c *Controller) Open(dayIndex int, afterActivityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	to, err := next(c.state, evOpen)
	if err != nil {
		return err
	}
	p := c.host.Plan()
	day, ok := p.Day(dayIndex)
	if !ok {
		return fmt.Errorf("cannot open chat for day %d: %w", dayIndex, errors.ErrNotFound)
	}

	text := fmt.Sprintf("Adding a new activity for %s.", p.DayTitle(dayIndex))
	if afterActivityID == "" {
		text += "\nThis will be the first activity of the day."
	} else if prev, found := lo.Find(day.Activities, func(a plan.Activity) bool { return a.ID == afterActivityID }); found {
		text += fmt.Sprintf("\nThis will be after %q.", plan.Truncate(prev.Description, 30))
	}
	text += "\nWhat would you like to add?"

	c.begin(to, &Context{Mode: ModeAdd, DayIndex: dayIndex, AfterActivityID: afterActivityID}, text)
	return nil
}

// OpenReplace starts a replace conversation for one activity.
func (c *Controller) OpenReplace(dayIndex, activityIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	to, err := next(c.state, evOpen)
	if err != nil {
		return err
	}
	p := c.host.Plan()
	day, ok := p.Day(dayIndex)
	if !ok || activityIndex < 0 || activityIndex >= len(day.Activities) {
		return fmt.Errorf("cannot open chat for activity %d of day %d: %w", activityIndex, dayIndex, errors.ErrNotFound)
	}
	target := day.Activities[activityIndex]

	text := fmt.Sprintf("Replacing %q on %s.\nWhat would you like to do instead?",
		plan.Truncate(target.Description, 30), p.DayTitle(dayIndex))

	c.begin(to, &Context{Mode: ModeReplace, DayIndex: dayIndex, TargetID: target.ID}, text)
	return nil
}

func (c *Controller) begin(to State, cc *Context, text string) {
	c.state = to
	c.generation++
	c.context = cc
	c.messages = []Message{c.message("system", SenderSystem, text, nil)}
	c.logger.Debug("chat opened", "mode", cc.Mode, "day", cc.DayIndex)
}

// Close discards the context and the whole conversation. It is valid in
// every state; an in-flight suggestion will be dropped when it returns.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state, _ = next(c.state, evClose)
	c.reset()
}

func (c *Controller) reset() {
	c.generation++
	c.context = nil
	c.messages = nil
}

// ========== Submit ==========

// Submit sends the user's request to the suggestion service. On success
// the assistant message carrying the candidates is returned. Failures are
// also recorded in the conversation as a system message. A response that
// arrives after the conversation moved on is dropped with ErrStaleResponse.
func (c *Controller) Submit(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	c.mu.Lock()
	to, err := next(c.state, evSubmit)
	if err != nil {
		c.mu.Unlock()
		return Message{}, err
	}
	cc := *c.context
	p := c.host.Plan()
	call, hasNeighbor, err := c.prepare(cc, p, text)
	if err != nil {
		c.mu.Unlock()
		return Message{}, err
	}
	c.state = to
	c.generation++
	gen := c.generation
	c.messages = append(c.messages, c.message("user", SenderUser, text, nil))
	c.mu.Unlock()

	candidates, err := call(ctx)
	if err == nil && len(candidates) == 0 {
		err = errors.ErrSuggestionEmpty
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || c.state != AwaitingSuggestion {
		c.logger.Warn("discarding stale suggestion response", "mode", cc.Mode, "day", cc.DayIndex)
		return Message{}, errors.ErrStaleResponse
	}

	if err != nil {
		c.logger.Warn("suggestion request failed", "mode", cc.Mode, "day", cc.DayIndex, "error", err)
		c.messages = append(c.messages, c.message("error", SenderSystem, failureText(err, cc.Mode), nil))
		ev := evFailure
		if c.hasCandidates() {
			ev = evFallback
		}
		c.state, _ = next(c.state, ev)
		return Message{}, err
	}

	for i := range candidates {
		candidates[i].ID = "temp-" + uuid.NewString()
		candidates[i].IsCompleted = false
	}
	intro := "Okay, how about this idea"
	if hasNeighbor {
		intro += " based on the current plan"
	}
	intro += ":"
	msg := c.message("ai", SenderAssistant, intro, candidates)
	c.messages = append(c.messages, msg)
	c.state, _ = next(c.state, evSuggestions)
	return msg, nil
}

type suggestCall func(ctx context.Context) ([]plan.Activity, error)

// prepare builds the suggestion request from the plan as it is now.
func (c *Controller) prepare(cc Context, p *plan.Plan, text string) (suggestCall, bool, error) {
	day, ok := p.Day(cc.DayIndex)
	if !ok {
		return nil, false, fmt.Errorf("day %d: %w", cc.DayIndex, errors.ErrNotFound)
	}
	acts := day.Activities

	if cc.Mode == ModeReplace {
		_, idx, found := lo.FindIndexOf(acts, func(a plan.Activity) bool { return a.ID == cc.TargetID })
		if !found {
			return nil, false, fmt.Errorf("activity to replace: %w", errors.ErrNotFound)
		}
		req := api.ReplaceActivityRequest{Message: text, DayIndex: cc.DayIndex, ActivityIndex: idx, Plan: p}
		if idx > 0 {
			req.PreviousActivity = &acts[idx-1]
		}
		if idx+1 < len(acts) {
			req.NextActivity = &acts[idx+1]
		}
		call := func(ctx context.Context) ([]plan.Activity, error) { return c.suggester.SuggestReplacement(ctx, req) }
		return call, req.PreviousActivity != nil || req.NextActivity != nil, nil
	}

	var prev, after *plan.Activity
	if cc.AfterActivityID == "" {
		if len(acts) > 0 {
			after = &acts[0]
		}
	} else if _, i, found := lo.FindIndexOf(acts, func(a plan.Activity) bool { return a.ID == cc.AfterActivityID }); found {
		prev = &acts[i]
		if i+1 < len(acts) {
			after = &acts[i+1]
		}
	}

	req := api.AddActivityRequest{
		UserQuery:       text,
		Destination:     c.host.Destination(),
		CurrentDayTitle: p.DayTitle(cc.DayIndex),
		ExistingActivitiesToday: lo.Map(acts, func(a plan.Activity, _ int) api.ActivitySummary {
			return api.ActivitySummary{Description: a.Description, Time: a.Time}
		}),
		InsertAfterActivityDescription: descriptionOf(prev),
		NextActivityDescription:        descriptionOf(after),
		OriginalTripPreferences:        api.PreferencesFrom(p.OriginalRequest),
		Plan:                           p,
	}
	call := func(ctx context.Context) ([]plan.Activity, error) { return c.suggester.SuggestAdditions(ctx, req) }
	return call, prev != nil || after != nil, nil
}

func descriptionOf(a *plan.Activity) *string {
	if a == nil || a.Description == "" {
		return nil
	}
	d := a.Description
	return &d
}

func failureText(err error, mode Mode) string {
	var httpErr *errors.HTTPError
	switch {
	case errors.Is(err, errors.ErrSuggestionEmpty):
		return "No new activity suggestions received from AI."
	case errors.Is(err, errors.ErrAuthExpired):
		return "Your session has expired. Please sign in again."
	case errors.As(err, &httpErr) && httpErr.Detail != "":
		return httpErr.Detail
	case mode == ModeReplace:
		return "Could not get a replacement suggestion."
	default:
		return "Could not get suggestion for adding activity."
	}
}

// ========== Accept / Reject ==========

// Accept places one candidate into the plan and closes the conversation.
// In add mode it goes after the context's anchor (end of day if the anchor
// is gone); in replace mode it takes the target's place.
func (c *Controller) Accept(candidateID string) (Accepted, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := next(c.state, evAccept); err != nil {
		return Accepted{}, err
	}
	_, cand, found := c.findCandidate(candidateID)
	if !found {
		return Accepted{}, fmt.Errorf("candidate %q: %w", candidateID, errors.ErrNotFound)
	}
	return c.accept([]plan.Activity{cand})
}

// AcceptMessage places every candidate of one assistant message, in order,
// as a sequence: the first goes where Accept would put it and each next one
// follows the previous.
func (c *Controller) AcceptMessage(messageID string) (Accepted, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := next(c.state, evAccept); err != nil {
		return Accepted{}, err
	}
	_, idx, found := lo.FindIndexOf(c.messages, func(m Message) bool { return m.ID == messageID })
	if !found || len(c.messages[idx].SuggestedActivities) == 0 {
		return Accepted{}, fmt.Errorf("message %q: %w", messageID, errors.ErrNotFound)
	}
	return c.accept(c.messages[idx].SuggestedActivities)
}

func (c *Controller) accept(candidates []plan.Activity) (Accepted, error) {
	cc := *c.context
	result := Accepted{Mode: cc.Mode, DayIndex: cc.DayIndex}

	err := c.host.Apply(func(p *plan.Plan) (*plan.Plan, error) {
		result.Activities = result.Activities[:0]
		anchor := cc.AfterActivityID
		rest := candidates

		if cc.Mode == ModeReplace {
			_, idx, ok := p.Find(cc.TargetID)
			if !ok {
				return p, fmt.Errorf("activity to replace: %w", errors.ErrNotFound)
			}
			replaced, err := p.ReplaceActivity(cc.DayIndex, idx, candidates[0])
			if err != nil {
				return p, err
			}
			p = replaced
			placed := p.Days[cc.DayIndex].Activities[idx]
			result.Activities = append(result.Activities, placed)
			anchor, rest = placed.ID, candidates[1:]
		}

		for _, cand := range rest {
			inserted, pos, err := p.InsertActivity(cc.DayIndex, anchor, cand)
			if err != nil {
				return p, err
			}
			p = inserted
			placed := p.Days[cc.DayIndex].Activities[pos]
			result.Activities = append(result.Activities, placed)
			anchor = placed.ID
		}
		return p, nil
	})
	if err != nil {
		return Accepted{}, err
	}

	c.state, _ = next(c.state, evAccept)
	c.reset()
	c.logger.Info("suggestion accepted", "mode", result.Mode, "day", result.DayIndex, "count", len(result.Activities))
	return result, nil
}

// RejectOne drops one candidate from a message. A message left with no
// candidates is removed.
func (c *Controller) RejectOne(candidateID, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	to, err := next(c.state, evRejectOne)
	if err != nil {
		return err
	}
	_, idx, found := lo.FindIndexOf(c.messages, func(m Message) bool { return m.ID == messageID })
	if !found {
		return fmt.Errorf("message %q: %w", messageID, errors.ErrNotFound)
	}
	msg := c.messages[idx]
	kept := lo.Reject(msg.SuggestedActivities, func(a plan.Activity, _ int) bool { return a.ID == candidateID })
	if len(kept) == len(msg.SuggestedActivities) {
		return fmt.Errorf("candidate %q: %w", candidateID, errors.ErrNotFound)
	}

	if len(kept) == 0 {
		c.messages = append(c.messages[:idx:idx], c.messages[idx+1:]...)
	} else {
		c.messages[idx].SuggestedActivities = kept
	}
	c.state = to
	return nil
}

// RejectAll declines a message's suggestions and asks the user for a
// different request.
func (c *Controller) RejectAll(messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	to, err := next(c.state, evRejectAll)
	if err != nil {
		return err
	}
	if messageID != "" {
		_, idx, found := lo.FindIndexOf(c.messages, func(m Message) bool { return m.ID == messageID })
		if !found {
			return fmt.Errorf("message %q: %w", messageID, errors.ErrNotFound)
		}
		c.messages[idx].SuggestedActivities = nil
	}
	c.messages = append(c.messages, c.message("system", SenderSystem,
		"Okay, let's try something else. What specific changes or new ideas do you have?", nil))
	c.state = to
	return nil
}

func (c *Controller) hasCandidates() bool {
	return lo.SomeBy(c.messages, func(m Message) bool { return len(m.SuggestedActivities) > 0 })
}

func (c *Controller) findCandidate(id string) (int, plan.Activity, bool) {
	for i, m := range c.messages {
		if a, ok := lo.Find(m.SuggestedActivities, func(a plan.Activity) bool { return a.ID == id }); ok {
			return i, a, true
		}
	}
	return -1, plan.Activity{}, false
}

func (c *Controller) message(kind string, sender Sender, text string, suggested []plan.Activity) Message {
	return Message{
		ID:                  kind + "-" + uuid.NewString(),
		Text:                text,
		Sender:              sender,
		Timestamp:           c.now(),
		SuggestedActivities: suggested,
	}
}
