package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rescale/drivectl/internal/api"
	"github.com/rescale/drivectl/internal/logging"
	"github.com/rescale/drivectl/internal/models"
	"github.com/rescale/drivectl/internal/session"
)

type profileFetcher struct {
	calls   int
	profile *models.UserProfile
	err     error
}

func (f *profileFetcher) GetUser(ctx context.Context, token string) (*models.UserProfile, error) {
	f.calls++
	return f.profile, f.err
}

func jwtExpiring(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// restoredApp installs a process app whose session was restored from files
// holding token and a cached profile.
func restoredApp(t *testing.T, token string, fetcher session.ProfileFetcher) (*App, *session.FileStore) {
	t.Helper()
	dir := t.TempDir()
	store := &session.FileStore{
		TokenPath:   filepath.Join(dir, "token"),
		ProfilePath: filepath.Join(dir, "profile.json"),
	}
	if err := store.SaveToken(token); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveProfile(&models.UserProfile{ID: 7, Email: "ada@example.com"}); err != nil {
		t.Fatal(err)
	}

	holder := session.NewHolder(store, fetcher, nil, nil)
	if err := holder.Restore(); err != nil {
		t.Fatal(err)
	}
	if holder.State() != session.Authenticated {
		t.Fatalf("restored state = %s, want authenticated", holder.State())
	}

	a := &App{Logger: logging.NewNopLogger(), Session: holder}
	old := app
	app = a
	t.Cleanup(func() { app = old })
	return a, store
}

func TestRequireAppRejectsExpiredRestoredSession(t *testing.T) {
	fetcher := &profileFetcher{profile: &models.UserProfile{ID: 7}}
	a, store := restoredApp(t, jwtExpiring(t, time.Now().Add(-time.Hour)), fetcher)

	if _, err := requireApp(context.Background()); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("requireApp error = %v, want errNotLoggedIn", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("expired token reached the auth service %d time(s)", fetcher.calls)
	}
	if a.Session.State() != session.Anonymous {
		t.Errorf("state = %s, want anonymous", a.Session.State())
	}
	for _, p := range []string{store.TokenPath, store.ProfilePath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still present (stat err %v)", filepath.Base(p), err)
		}
	}
}

func TestRequireAppRevalidatesRestoredSession(t *testing.T) {
	fetcher := &profileFetcher{err: api.ErrUnauthorized}
	a, store := restoredApp(t, "opaque-revoked-token", fetcher)

	if _, err := requireApp(context.Background()); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("requireApp error = %v, want errNotLoggedIn", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls)
	}
	if a.Session.Token() != "" {
		t.Error("revoked token kept in memory")
	}
	if _, err := os.Stat(store.TokenPath); !os.IsNotExist(err) {
		t.Error("revoked token kept on disk")
	}
}

func TestRequireAppKeepsValidSession(t *testing.T) {
	fetcher := &profileFetcher{profile: &models.UserProfile{ID: 7, Email: "ada@example.com"}}
	restoredApp(t, jwtExpiring(t, time.Now().Add(time.Hour)), fetcher)

	a, err := requireApp(context.Background())
	if err != nil {
		t.Fatalf("requireApp: %v", err)
	}
	if fetcher.calls != 1 || a.Session.State() != session.Authenticated {
		t.Errorf("calls = %d, state = %s", fetcher.calls, a.Session.State())
	}
}

func TestSignOutOnUnauthorized(t *testing.T) {
	fetcher := &profileFetcher{}
	a, store := restoredApp(t, "opaque-token", fetcher)

	other := errors.New("503 service unavailable")
	if got := a.signOutOnUnauthorized(other); got != other {
		t.Errorf("unrelated error rewritten to %v", got)
	}
	if a.Session.State() != session.Authenticated {
		t.Fatal("unrelated error signed the user out")
	}

	err := a.signOutOnUnauthorized(fmt.Errorf("load my-drive: %w", api.ErrUnauthorized))
	if !errors.Is(err, errNotLoggedIn) {
		t.Errorf("error = %v, want errNotLoggedIn", err)
	}
	if a.Session.State() != session.Anonymous {
		t.Errorf("state = %s, want anonymous", a.Session.State())
	}
	if _, err := os.Stat(store.ProfilePath); !os.IsNotExist(err) {
		t.Error("profile snapshot kept after the token was rejected")
	}
}
