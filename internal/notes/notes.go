// Package notes keeps the per-activity notes of a trip in sync with the
// remote note store.
package notes

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/api"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/logging"
)

// Key is the positional address of a note.
type Key struct {
	Day      int
	Activity int
}

// String returns the "day-activity" form.
func (k Key) String() string {
	return strconv.Itoa(k.Day) + "-" + strconv.Itoa(k.Activity)
}

// Note is the text and done flag at a position.
type Note struct {
	Note   string `json:"note"`
	IsDone bool   `json:"is_done"`
}

// Store is the remote note store.
type Store interface {
	ListNotes(ctx context.Context, tripID int64) ([]api.NoteRecord, error)
	SaveNote(ctx context.Context, req api.SaveNoteRequest) (api.NoteRecord, error)
}

// Synchronizer mirrors one trip's notes. Local state only changes after the
// remote store accepted a write.
type Synchronizer struct {
	store  Store
	logger *logging.Logger

	mu     sync.RWMutex
	tripID int64
	loaded bool
	notes  map[Key]Note
}

// NewSynchronizer creates an empty Synchronizer.
func NewSynchronizer(store Store, logger *logging.Logger) *Synchronizer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Synchronizer{
		store:  store,
		logger: logger.WithComponent("notes"),
		notes:  map[Key]Note{},
	}
}

// Load fetches the trip's notes once. Loading another trip starts over.
// On failure the map stays empty and the error is returned for the caller
// to report; it is not fatal to the session.
func (s *Synchronizer) Load(ctx context.Context, tripID int64) error {
	s.mu.Lock()
	if s.loaded && s.tripID == tripID {
		s.mu.Unlock()
		return nil
	}
	s.tripID, s.loaded, s.notes = tripID, false, map[Key]Note{}
	s.mu.Unlock()

	records, err := s.store.ListNotes(ctx, tripID)
	if err != nil {
		s.logger.Warn("failed to load notes", "trip", tripID, "error", err)
		return fmt.Errorf("load notes: %w", err)
	}

	loaded := make(map[Key]Note, len(records))
	for _, r := range records {
		loaded[Key{Day: r.DayIndex, Activity: r.ActivityIndex}] = Note{Note: r.Note, IsDone: r.IsDone}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tripID != tripID {
		return nil
	}
	s.notes, s.loaded = loaded, true
	s.logger.Debug("notes loaded", "trip", tripID, "count", len(loaded))
	return nil
}

// ErrEmptyUpdate is returned by Save when neither field is set.
var ErrEmptyUpdate = errors.New("note update has no fields")

// Save writes the fields that are set remotely, then records what the
// store returned. A nil field is left as the store has it.
func (s *Synchronizer) Save(ctx context.Context, tripID int64, key Key, note *string, isDone *bool) (Note, error) {
	if note == nil && isDone == nil {
		return Note{}, ErrEmptyUpdate
	}
	rec, err := s.store.SaveNote(ctx, api.SaveNoteRequest{
		Trip:          tripID,
		DayIndex:      key.Day,
		ActivityIndex: key.Activity,
		Note:          note,
		IsDone:        isDone,
	})
	if err != nil {
		s.logger.Warn("failed to save note", "trip", tripID, "key", key.String(), "error", err)
		if errors.Is(err, errors.ErrAuthExpired) {
			return Note{}, err
		}
		return Note{}, fmt.Errorf("save note %s: %w", key, errors.Join(errors.ErrRemoteWriteFailed, err))
	}

	saved := Note{Note: rec.Note, IsDone: rec.IsDone}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tripID == tripID {
		s.notes[key] = saved
	}
	return saved, nil
}

// Get returns the note at key.
func (s *Synchronizer) Get(key Key) (Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[key]
	return n, ok
}

// All returns a copy of every note, keyed by "day-activity".
func (s *Synchronizer) All() map[string]Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Note, len(s.notes))
	for k, n := range s.notes {
		out[k.String()] = n
	}
	return out
}

// Loaded reports whether notes for tripID were fetched successfully.
func (s *Synchronizer) Loaded(tripID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded && s.tripID == tripID
}
