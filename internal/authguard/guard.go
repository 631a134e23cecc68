// Package authguard retries authenticated calls once after refreshing an
// expired access token, and forces a logout when that is not enough.
package authguard

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/errors"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/logging"
)

// TokenStore holds the session's tokens.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(access, refresh string)
	Clear()
}

// Refresher exchanges a refresh token. An empty returned refresh token
// means the old one stays valid.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (access, refresh string, err error)
}

// Guard wraps authenticated calls.
type Guard struct {
	tokens    TokenStore
	refresher Refresher
	logger    *logging.Logger
	onLogout  func(cause error)
	flight    singleflight.Group
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Guard) { g.logger = l.WithComponent("authguard") }
}

// OnLogout registers a callback run after the session is cleared.
func OnLogout(fn func(cause error)) Option {
	return func(g *Guard) { g.onLogout = fn }
}

// New creates a Guard.
func New(tokens TokenStore, refresher Refresher, opts ...Option) *Guard {
	g := &Guard{tokens: tokens, refresher: refresher, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do runs call with the current access token. On a 401 (or with no access
// token at all) it refreshes once and retries once. A refresh failure or a
// second 401 clears the session and returns ErrAuthExpired. Other errors
// are returned unchanged.
func (g *Guard) Do(ctx context.Context, call func(ctx context.Context, token string) error) error {
	token := g.tokens.AccessToken()
	if token != "" {
		err := call(ctx, token)
		if !errors.IsUnauthorized(err) {
			return err
		}
		g.logger.Debug("access token rejected, refreshing")
	}

	fresh, err := g.refresh(ctx, token)
	if err != nil {
		return g.logout(fmt.Errorf("refresh: %w", err))
	}

	err = call(ctx, fresh)
	if errors.IsUnauthorized(err) {
		return g.logout(err)
	}
	return err
}

// refresh shares one in-flight refresh between concurrent callers. If
// another caller already replaced the failed token, its result is reused.
func (g *Guard) refresh(ctx context.Context, failed string) (string, error) {
	v, err, shared := g.flight.Do("refresh", func() (any, error) {
		if cur := g.tokens.AccessToken(); cur != "" && cur != failed {
			return cur, nil
		}
		refreshToken := g.tokens.RefreshToken()
		if refreshToken == "" {
			return "", errors.New("no refresh token")
		}
		access, rotated, err := g.refresher.Refresh(ctx, refreshToken)
		if err != nil {
			return "", err
		}
		if rotated == "" {
			rotated = refreshToken
		}
		g.tokens.SetTokens(access, rotated)
		return access, nil
	})
	if shared {
		g.logger.Debug("joined in-flight token refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *Guard) logout(cause error) error {
	g.tokens.Clear()
	g.logger.Warn("forcing logout", "reason", cause.Error())
	if g.onLogout != nil {
		g.onLogout(cause)
	}
	return fmt.Errorf("%w (%v)", errors.ErrAuthExpired, cause)
}
