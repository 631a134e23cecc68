// Package livetrip runs a trip in live mode: it owns the plan tree and
// wires the day navigator, note synchronizer and chat controller around it.
//
// Plan mutations are serialized and applied locally first; the resulting
// snapshot is then persisted to the PlanStore in the background, latest
// snapshot wins. Notes are write-through (see package notes).
package livetrip

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/api"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/chat"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/logging"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/navigator"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/notes"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/plan"
)

const persistTimeout = 10 * time.Second

// TripSource fetches saved trips.
type TripSource interface {
	GetTrip(ctx context.Context, tripID int64) (api.TripRecord, error)
}

// TripCache holds the last-loaded trip snapshot.
type TripCache interface {
	CachedTrip(tripID int64) (api.TripRecord, bool)
	CacheTrip(rec api.TripRecord)
}

// PlanStore persists the live plan between sessions.
type PlanStore interface {
	LoadPlan(ctx context.Context, tripID int64) (*plan.Plan, bool, error)
	SavePlan(ctx context.Context, tripID int64, p *plan.Plan) error
}

// Deps are the collaborators of a Session. Cache and Plans are optional.
type Deps struct {
	Trips     TripSource
	Cache     TripCache
	Notes     notes.Store
	Suggester chat.Suggester
	Plans     PlanStore
	Logger    *logging.Logger
	Now       func() time.Time
}

// Session is one trip in live mode. It is safe for concurrent use; plan
// mutations never interleave.
type Session struct {
	tripID int64
	trip   api.TripRecord
	plans  PlanStore
	logger *logging.Logger
	now    func() time.Time

	mu   sync.RWMutex
	plan *plan.Plan
	nav  *navigator.Navigator

	notes *notes.Synchronizer
	chat  *chat.Controller

	persistMu   sync.Mutex
	persistIdle *sync.Cond
	pending     *plan.Plan
	persisting  bool
	closed      bool

	notifications notifier
}

// Open loads a trip into live mode. The trip record and its notes are
// fetched concurrently. A missing or malformed plan is a LoadError; a note
// load failure only produces a notification.
func Open(ctx context.Context, tripID int64, deps Deps) (*Session, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := &Session{
		tripID: tripID,
		plans:  deps.Plans,
		logger: logger.WithComponent("livetrip").WithTrip(strconv.FormatInt(tripID, 10)),
		now:    now,
		nav:    navigator.New(),
		notes:  notes.NewSynchronizer(deps.Notes, logger),
	}
	s.notifications.now = now
	s.persistIdle = sync.NewCond(&s.persistMu)

	var notesErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := fetchTrip(gctx, tripID, deps)
		s.trip = rec
		return err
	})
	g.Go(func() error {
		notesErr = s.notes.Load(gctx, tripID)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("failed to open live trip", "error", err)
		return nil, err
	}
	if notesErr != nil {
		s.notifications.push(LevelError, "Could not load your notes for this trip.")
	}

	p, err := s.restorePlan(ctx)
	if err != nil {
		s.logger.Error("failed to initialize plan", "error", err)
		return nil, err
	}
	p = s.withNoteCompletion(p)
	s.plan = p
	s.nav.StartOn(p, s.trip.StartDate, now())
	s.chat = chat.NewController(s, deps.Suggester, s.logger)

	s.logger.Info("live trip opened", "days", p.DayCount(), "day", s.nav.Current(p))
	return s, nil
}

func fetchTrip(ctx context.Context, tripID int64, deps Deps) (api.TripRecord, error) {
	id := strconv.FormatInt(tripID, 10)
	if deps.Cache != nil {
		if rec, ok := deps.Cache.CachedTrip(tripID); ok {
			return rec, nil
		}
	}
	rec, err := deps.Trips.GetTrip(ctx, tripID)
	if err != nil {
		var httpErr *errors.HTTPError
		switch {
		case errors.Is(err, errors.ErrAuthExpired):
			return api.TripRecord{}, err
		case errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound:
			return api.TripRecord{}, errors.NewLoadError(id, "trip not found", err)
		default:
			return api.TripRecord{}, errors.NewLoadError(id, "failed to fetch trip", err)
		}
	}
	if deps.Cache != nil {
		deps.Cache.CacheTrip(rec)
	}
	return rec, nil
}

// restorePlan prefers a persisted live plan over the saved trip's plan.
func (s *Session) restorePlan(ctx context.Context) (*plan.Plan, error) {
	if s.plans != nil {
		p, ok, err := s.plans.LoadPlan(ctx, s.tripID)
		switch {
		case err != nil:
			s.logger.Warn("failed to restore live plan, starting from saved trip", "error", err)
		case ok && p.DayCount() > 0:
			s.logger.Debug("restored live plan")
			return p, nil
		}
	}
	p, err := plan.Initialize(s.trip.PlanJSON)
	if err != nil {
		var loadErr *errors.LoadError
		if errors.As(err, &loadErr) {
			loadErr.TripID = strconv.FormatInt(s.tripID, 10)
		}
		return nil, err
	}
	return p, nil
}

// withNoteCompletion takes completion from the note store's done flags,
// which outlive the session even without a PlanStore.
func (s *Session) withNoteCompletion(p *plan.Plan) *plan.Plan {
	for d, day := range p.Days {
		for a, act := range day.Activities {
			if n, ok := s.notes.Get(notes.Key{Day: d, Activity: a}); ok {
				p = p.SetCompleted(act.ID, n.IsDone)
			}
		}
	}
	return p
}

// ========== Accessors ==========

// Destination returns the trip's "City, Country" destination.
func (s *Session) Destination() string { return s.trip.Destination }

// Plan returns the current plan. Callers must not modify it.
func (s *Session) Plan() *plan.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan
}

// Chat returns the session's chat controller.
func (s *Session) Chat() *chat.Controller { return s.chat }

// ========== Mutations ==========

// Apply replaces the plan with fn's result and schedules persistence. On
// error the plan is left as it was.
func (s *Session) Apply(fn func(*plan.Plan) (*plan.Plan, error)) error {
	s.mu.Lock()
	next, err := fn(s.plan)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.plan = next
	s.mu.Unlock()

	s.schedulePersist(next)
	return nil
}

// ToggleComplete flips an activity's completion and writes the new done
// flag to the note at the activity's position. The local change stands
// even if that write fails; only an expired sign-in is returned.
func (s *Session) ToggleComplete(ctx context.Context, activityID string) error {
	var (
		key  notes.Key
		done bool
	)
	err := s.Apply(func(p *plan.Plan) (*plan.Plan, error) {
		d, a, ok := p.Find(activityID)
		if !ok {
			return p, fmt.Errorf("activity %q: %w", activityID, errors.ErrNotFound)
		}
		next := p.ToggleComplete(activityID)
		key, done = notes.Key{Day: d, Activity: a}, next.Days[d].Activities[a].IsCompleted
		return next, nil
	})
	if err != nil {
		return err
	}

	if _, err := s.notes.Save(ctx, s.tripID, key, nil, &done); err != nil {
		if errors.IsFatal(err) {
			return err
		}
		s.notifications.push(LevelError, "Could not save completion status. It is kept on this device.")
	}
	return nil
}

// RemoveActivity deletes an activity from its day.
func (s *Session) RemoveActivity(activityID string) error {
	return s.Apply(func(p *plan.Plan) (*plan.Plan, error) {
		d, _, ok := p.Find(activityID)
		if !ok {
			return p, fmt.Errorf("activity %q: %w", activityID, errors.ErrNotFound)
		}
		return p.RemoveActivity(d, activityID)
	})
}

// ========== Navigation ==========

// CurrentDay returns the day in view.
func (s *Session) CurrentDay() (int, plan.Day, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nav.CurrentDay(s.plan)
}

// NavigateTo moves to a day; out-of-range indexes are ignored.
func (s *Session) NavigateTo(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.NavigateTo(s.plan, index)
}

// Next moves to the following day.
func (s *Session) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Next(s.plan)
}

// Prev moves to the previous day.
func (s *Session) Prev() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Prev(s.plan)
}

// Highlighted returns the id of the upcoming activity of the day in view.
func (s *Session) Highlighted() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan.Upcoming(s.nav.Current(s.plan), s.now())
}

// MapsLink returns the map search URL for an activity's place.
func (s *Session) MapsLink(activityID string) (string, error) {
	p := s.Plan()
	act, ok := p.Activity(activityID)
	if !ok {
		return "", fmt.Errorf("activity %q: %w", activityID, errors.ErrNotFound)
	}
	name := act.PlaceLookupKey
	if name == "" && act.PlaceDetails != nil {
		name = act.PlaceDetails.Name
	}
	return plan.MapsURL(name, p.DestinationInfo, s.trip.Destination)
}

// ========== Notes ==========

// SaveNote stores the set fields of an activity's note at its current
// position. A saved done flag also becomes the activity's completion.
func (s *Session) SaveNote(ctx context.Context, activityID string, note *string, isDone *bool) (notes.Note, error) {
	key, ok := s.noteKey(activityID)
	if !ok {
		return notes.Note{}, fmt.Errorf("activity %q: %w", activityID, errors.ErrNotFound)
	}
	saved, err := s.notes.Save(ctx, s.tripID, key, note, isDone)
	if err != nil {
		if errors.IsRecoverable(err) && !errors.Is(err, notes.ErrEmptyUpdate) {
			s.notifications.push(LevelError, "Failed to save note.")
		}
		return notes.Note{}, err
	}
	if isDone != nil {
		_ = s.Apply(func(p *plan.Plan) (*plan.Plan, error) {
			return p.SetCompleted(activityID, saved.IsDone), nil
		})
	}
	s.notifications.push(LevelSuccess, "Note saved.")
	return saved, nil
}

// Note returns the note of an activity.
func (s *Session) Note(activityID string) (notes.Note, bool) {
	key, ok := s.noteKey(activityID)
	if !ok {
		return notes.Note{}, false
	}
	return s.notes.Get(key)
}

// Notes returns every note that maps to an activity of the current plan,
// keyed by activity id.
func (s *Session) Notes() map[string]notes.Note {
	return s.notesFor(s.Plan())
}

func (s *Session) notesFor(p *plan.Plan) map[string]notes.Note {
	out := map[string]notes.Note{}
	for d, day := range p.Days {
		for a, act := range day.Activities {
			if n, ok := s.notes.Get(notes.Key{Day: d, Activity: a}); ok {
				out[act.ID] = n
			}
		}
	}
	return out
}

func (s *Session) noteKey(activityID string) (notes.Key, bool) {
	d, a, ok := s.Plan().Find(activityID)
	return notes.Key{Day: d, Activity: a}, ok
}

// ========== Chat ==========

// SubmitChat forwards the user's request to the chat controller and turns
// a recoverable failure into a notification.
func (s *Session) SubmitChat(ctx context.Context, text string) (chat.Message, error) {
	msg, err := s.chat.Submit(ctx, text)
	if err != nil && !errors.Is(err, errors.ErrStaleResponse) && !errors.Is(err, errors.ErrInvalidTransition) && errors.IsRecoverable(err) {
		s.notifications.push(LevelError, "Could not get suggestion.")
	}
	return msg, err
}

// AcceptSuggestion accepts one candidate, or every candidate of messageID
// when candidateID is empty.
func (s *Session) AcceptSuggestion(candidateID, messageID string) (chat.Accepted, error) {
	var (
		res chat.Accepted
		err error
	)
	if candidateID != "" {
		res, err = s.chat.Accept(candidateID)
	} else {
		res, err = s.chat.AcceptMessage(messageID)
	}
	if err != nil {
		return res, err
	}
	for _, act := range res.Activities {
		verb := "added"
		if res.Mode == chat.ModeReplace {
			verb = "updated"
		}
		s.notifications.push(LevelSuccess, fmt.Sprintf("Activity %q %s!", plan.Truncate(act.Description, 30), verb))
	}
	return res, nil
}

// ========== Lifecycle ==========

// Flush waits for pending plan persistence.
func (s *Session) Flush() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	for s.persisting {
		s.persistIdle.Wait()
	}
}

// Close discards the conversation and waits for pending persistence. Plan
// changes made after Close are no longer persisted.
func (s *Session) Close() {
	s.persistMu.Lock()
	s.closed = true
	s.persistMu.Unlock()

	s.chat.Close()
	s.Flush()
	s.logger.Debug("live trip closed")
}

func (s *Session) schedulePersist(p *plan.Plan) {
	if s.plans == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if s.closed {
		return
	}
	s.pending = p
	if s.persisting {
		return
	}
	s.persisting = true
	go s.persistLoop()
}

// persistLoop writes the latest pending snapshot until none is left.
func (s *Session) persistLoop() {
	for {
		s.persistMu.Lock()
		p := s.pending
		s.pending = nil
		if p == nil {
			s.persisting = false
			s.persistIdle.Broadcast()
			s.persistMu.Unlock()
			return
		}
		s.persistMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := s.plans.SavePlan(ctx, s.tripID, p)
		cancel()
		if err != nil {
			s.logger.Warn("failed to persist live plan", "error", errors.Join(errors.ErrRemoteWriteFailed, err))
			s.notifications.push(LevelError, "Could not save your trip progress. Your changes are kept on this device.")
		}
	}
}
