// Package session holds the signed-in state: the bearer token and the
// profile it belongs to.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rescale/drivectl/internal/events"
	"github.com/rescale/drivectl/internal/logging"
	"github.com/rescale/drivectl/internal/models"
)

var (
	// ErrNotAuthenticated wraps the cause of a failed profile fetch.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrTokenExpired is the cause when a JWT's exp claim is in the past.
	ErrTokenExpired = errors.New("token expired")
)

// State is where the session stands.
type State int

const (
	Anonymous State = iota
	TokenOnly
	Authenticated
)

func (s State) String() string {
	switch s {
	case TokenOnly:
		return "token-only"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// ProfileFetcher resolves a token to its profile. api.Client implements it.
type ProfileFetcher interface {
	GetUser(ctx context.Context, token string) (*models.UserProfile, error)
}

// Holder is the single owner of the token and profile for a process.
type Holder struct {
	mu    sync.RWMutex
	token string
	user  *models.UserProfile

	store   Store
	fetcher ProfileFetcher
	bus     *events.EventBus
	logger  *logging.Logger
	now     func() time.Time
}

// NewHolder creates an empty holder. Call Restore to load the persisted session.
func NewHolder(store Store, fetcher ProfileFetcher, bus *events.EventBus, logger *logging.Logger) *Holder {
	if store == nil {
		store = &MemoryStore{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Holder{store: store, fetcher: fetcher, bus: bus, logger: logger, now: time.Now}
}

// Token returns the bearer token, "" when signed out.
func (h *Holder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// User returns a copy of the profile, nil when unknown.
func (h *Holder) User() *models.UserProfile {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.user == nil {
		return nil
	}
	u := *h.user
	return &u
}

// State derives the session state from token and profile.
func (h *Holder) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stateLocked()
}

func (h *Holder) stateLocked() State {
	switch {
	case h.token == "":
		return Anonymous
	case h.user == nil:
		return TokenOnly
	default:
		return Authenticated
	}
}

// SetToken stores the token in memory and on disk. An empty token clears
// both. No profile fetch is made.
func (h *Holder) SetToken(token string) error {
	token = strings.TrimSpace(token)

	h.mu.Lock()
	h.token = token
	if token == "" {
		// a profile never outlives its token
		h.user = nil
	}
	h.mu.Unlock()

	var err error
	if token == "" {
		err = errors.Join(h.store.ClearToken(), h.store.ClearProfile())
	} else {
		err = h.store.SaveToken(token)
	}
	h.publish()
	if err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	return nil
}

// SetUser stores or clears the profile snapshot.
func (h *Holder) SetUser(user *models.UserProfile) error {
	h.mu.Lock()
	if user == nil {
		h.user = nil
	} else {
		u := *user
		h.user = &u
	}
	h.mu.Unlock()

	var err error
	if user == nil {
		err = h.store.ClearProfile()
	} else {
		err = h.store.SaveProfile(user)
	}
	h.publish()
	if err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}
	return nil
}

// Restore loads the persisted token and profile without a network call.
// A profile stored without a token is discarded.
func (h *Holder) Restore() error {
	token, err := h.store.LoadToken()
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	profile, err := h.store.LoadProfile()
	if err != nil {
		h.logger.Warn().Err(err).Msg("ignoring unreadable profile snapshot")
		profile = nil
	}
	if token == "" && profile != nil {
		_ = h.store.ClearProfile()
		profile = nil
	}

	h.mu.Lock()
	h.token = token
	h.user = profile
	h.mu.Unlock()
	h.publish()
	return nil
}

// FetchUser validates the token against the auth service.
//
// With no token at all the user is cleared and nil is returned without a
// network call. A JWT whose exp is past fails without a network call. Any
// failure clears token and profile, in memory and on disk, and returns an
// error wrapping ErrNotAuthenticated and the cause.
func (h *Holder) FetchUser(ctx context.Context) error {
	token := h.Token()
	if token == "" {
		stored, err := h.store.LoadToken()
		if err != nil {
			h.logger.Warn().Err(err).Msg("could not read stored token")
		}
		token = stored
		if token != "" {
			h.mu.Lock()
			h.token = token
			h.mu.Unlock()
		}
	}
	if token == "" {
		return h.SetUser(nil)
	}

	if expired(token, h.now()) {
		return h.fail(token, ErrTokenExpired)
	}
	if h.fetcher == nil {
		return h.fail(token, errors.New("no profile fetcher configured"))
	}

	profile, err := h.fetcher.GetUser(ctx, token)
	if err != nil {
		return h.fail(token, err)
	}

	// a newer token replaced this one while the fetch was in flight
	if h.Token() != token {
		h.logger.Debug().Msg("discarding profile for a replaced token")
		return nil
	}
	return h.SetUser(profile)
}

func (h *Holder) fail(token string, cause error) error {
	h.logger.Warn().Err(cause).Msg("session token rejected, signing out")
	if h.Token() == token {
		if err := h.SetToken(""); err != nil {
			h.logger.Error().Err(err).Msg("failed to clear persisted session")
		}
	}
	return fmt.Errorf("%w: %w", ErrNotAuthenticated, cause)
}

// Logout clears profile and token.
func (h *Holder) Logout() error {
	return errors.Join(h.SetUser(nil), h.SetToken(""))
}

// ConsumeRedirect takes the token query parameter out of an OAuth redirect
// URL, stores it and returns the URL without it. A URL without a token is
// returned unchanged.
func (h *Holder) ConsumeRedirect(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, fmt.Errorf("parse redirect: %w", err)
	}
	q := u.Query()
	token := q.Get("token")
	if token == "" {
		return rawURL, nil
	}
	if err := h.SetToken(token); err != nil {
		return rawURL, err
	}
	q.Del("token")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (h *Holder) publish() {
	h.mu.RLock()
	ev := &events.SessionChangedEvent{
		BaseEvent: events.NewBase(events.EventSessionChanged),
		State:     h.stateLocked().String(),
	}
	if h.user != nil {
		ev.Email = h.user.Email
	}
	h.mu.RUnlock()
	h.bus.Publish(ev)
}

// expired reports whether token is a JWT with an exp claim before now.
// Opaque tokens and JWTs without exp are never expired here; the server decides.
func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
