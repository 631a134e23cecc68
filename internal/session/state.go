// Package session holds per-user client state: the access and refresh
// tokens with their lifetimes, and the last-loaded trip snapshot.
package session

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/api"
)

// Default lifetimes.
const (
	DefaultAccessTTL    = 7 * 24 * time.Hour
	DefaultRefreshTTL   = 30 * 24 * time.Hour
	DefaultTripCacheTTL = 5 * time.Minute
)

const tripKey = "liveTripData"

// Config sets token and cache lifetimes. Zero values use the defaults.
type Config struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	TripCacheTTL time.Duration
}

// State is safe for concurrent use.
type State struct {
	mu  sync.RWMutex
	cfg Config
	now func() time.Time

	access, refresh       string
	accessExp, refreshExp time.Time

	trips *cache.Cache
}

// New creates an empty State.
func New(cfg Config) *State {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.TripCacheTTL <= 0 {
		cfg.TripCacheTTL = DefaultTripCacheTTL
	}
	return &State{
		cfg:   cfg,
		now:   time.Now,
		trips: cache.New(cfg.TripCacheTTL, 2*cfg.TripCacheTTL),
	}
}

// Init stores the tokens obtained at sign-in.
func (s *State) Init(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.access, s.accessExp = access, now.Add(s.cfg.AccessTTL)
	s.refresh, s.refreshExp = refresh, now.Add(s.cfg.RefreshTTL)
}

// AccessToken returns the access token, or "" once it expired.
func (s *State) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.access == "" || !s.now().Before(s.accessExp) {
		return ""
	}
	return s.access
}

// RefreshToken returns the refresh token, or "" once it expired.
func (s *State) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.refresh == "" || !s.now().Before(s.refreshExp) {
		return ""
	}
	return s.refresh
}

// SetTokens stores refreshed tokens. The refresh token lifetime restarts
// only when it was rotated.
func (s *State) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.access, s.accessExp = access, now.Add(s.cfg.AccessTTL)
	if refresh != "" && refresh != s.refresh {
		s.refresh, s.refreshExp = refresh, now.Add(s.cfg.RefreshTTL)
	}
}

// Clear forgets the tokens and the cached trip.
func (s *State) Clear() {
	s.mu.Lock()
	s.access, s.refresh = "", ""
	s.accessExp, s.refreshExp = time.Time{}, time.Time{}
	s.mu.Unlock()
	s.trips.Flush()
}

// Authenticated reports whether any usable token is held.
func (s *State) Authenticated() bool {
	return s.AccessToken() != "" || s.RefreshToken() != ""
}

// CacheTrip replaces the cached trip snapshot.
func (s *State) CacheTrip(rec api.TripRecord) {
	s.trips.Set(tripKey, rec.Clone(), cache.DefaultExpiration)
}

// CachedTrip returns the cached snapshot if it is for tripID and not expired.
func (s *State) CachedTrip(tripID int64) (api.TripRecord, bool) {
	v, ok := s.trips.Get(tripKey)
	if !ok {
		return api.TripRecord{}, false
	}
	rec := v.(api.TripRecord)
	if rec.ID != tripID {
		return api.TripRecord{}, false
	}
	return rec.Clone(), true
}
