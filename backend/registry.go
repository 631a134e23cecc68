package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/api"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/authguard"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/chat"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/livetrip"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/logging"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/session"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	APIBaseURL string
	HTTPClient *http.Client
	Session    session.Config
	IdleTTL    time.Duration
	// Plans persists live plans; nil disables persistence.
	Plans livetrip.PlanStore
	// Suggester overrides the per-user remote suggestion service.
	Suggester chat.Suggester
	Logger    *logging.Logger
}

// user is one signed-in browser: its tokens, trip cache and API client.
type user struct {
	key    string
	state  *session.State
	client *api.Client
}

type liveEntry struct {
	user *user
	live *livetrip.Session
}

// Registry owns the live sessions and the users they belong to. Both
// expire after IdleTTL without use; an evicted live session is closed.
type Registry struct {
	cfg       RegistryConfig
	refresher *api.Refresher
	logger    *logging.Logger

	users    *cache.Cache
	sessions *cache.Cache
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 2 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	r := &Registry{
		cfg:       cfg,
		refresher: api.NewRefresher(cfg.APIBaseURL, cfg.HTTPClient),
		logger:    cfg.Logger.WithComponent("backend"),
		users:     cache.New(cfg.IdleTTL, cfg.IdleTTL/2),
		sessions:  cache.New(cfg.IdleTTL, cfg.IdleTTL/2),
	}
	// Close waits for pending plan writes, which must not hold up the janitor.
	r.sessions.OnEvicted(func(id string, v any) {
		go func() {
			v.(*liveEntry).live.Close()
			r.logger.WithSession(id).Debug("live session closed")
		}()
	})
	return r
}

// Open starts a live session for the trip on behalf of the token holder.
func (r *Registry) Open(ctx context.Context, access, refresh string, tripID int64) (string, *livetrip.Session, error) {
	if access == "" && refresh == "" {
		return "", nil, errors.ErrAuthExpired
	}
	u := r.userFor(access, refresh)

	deps := livetrip.Deps{
		Trips:     u.client,
		Cache:     u.state,
		Notes:     u.client,
		Suggester: u.client,
		Logger:    r.cfg.Logger,
	}
	if r.cfg.Suggester != nil {
		deps.Suggester = r.cfg.Suggester
	}
	if r.cfg.Plans != nil {
		deps.Plans = r.cfg.Plans
	}

	live, err := livetrip.Open(ctx, tripID, deps)
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()
	r.sessions.SetDefault(id, &liveEntry{user: u, live: live})
	r.logger.WithSession(id).Info("live session opened", "trip_id", tripID)
	return id, live, nil
}

// userFor returns the user holding these tokens. A known user keeps its
// own tokens, which may have been rotated since the browser last saw them.
func (r *Registry) userFor(access, refresh string) *user {
	key := tokenKey(access, refresh)
	if v, ok := r.users.Get(key); ok {
		u := v.(*user)
		if u.state.Authenticated() {
			r.users.SetDefault(key, u)
			return u
		}
	}

	state := session.New(r.cfg.Session)
	state.Init(access, refresh)
	u := &user{key: key, state: state}
	guard := authguard.New(state, r.refresher,
		authguard.WithLogger(r.cfg.Logger),
		authguard.OnLogout(func(error) { r.users.Delete(key) }),
	)
	u.client = api.NewClient(r.cfg.APIBaseURL, r.cfg.HTTPClient, guard)
	r.users.SetDefault(key, u)
	return u
}

// Get returns a live session and extends its lifetime.
func (r *Registry) Get(id string) (*livetrip.Session, error) {
	v, ok := r.sessions.Get(id)
	if !ok {
		return nil, errors.ErrNotFound
	}
	e := v.(*liveEntry)
	r.sessions.SetDefault(id, e)
	return e.live, nil
}

// Drop closes a live session. Unknown ids are ignored.
func (r *Registry) Drop(id string) {
	r.sessions.Delete(id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.ItemCount()
}

// Close closes every live session, waiting for pending persistence.
func (r *Registry) Close() {
	items := r.sessions.Items()
	r.sessions.Flush()
	for id, item := range items {
		item.Object.(*liveEntry).live.Close()
		r.logger.WithSession(id).Debug("live session closed")
	}
	r.users.Flush()
}

func tokenKey(access, refresh string) string {
	secret := refresh
	if secret == "" {
		secret = access
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
