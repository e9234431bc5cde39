// Package oauth runs the browser login: a loopback callback server receives
// the redirect carrying the session token.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/rescale/drivectl/internal/constants"
	"github.com/rescale/drivectl/internal/logging"
)

// CallbackPath is the loopback route the auth service redirects to.
const CallbackPath = "/callback"

var (
	// ErrTimeout is returned when no redirect arrives in time.
	ErrTimeout = errors.New("timed out waiting for browser login")
	// ErrNoToken is returned when the redirect carries no token.
	ErrNoToken = errors.New("login redirect carried no token")
)

// TokenConsumer stores the token from a redirect URL and returns the URL
// stripped of it. session.Holder.ConsumeRedirect satisfies it.
type TokenConsumer func(redirectURL string) (string, error)

// URLBuilder returns the login URL for a redirect URI.
type URLBuilder func(redirectURI string) string

// Flow is one browser login attempt.
type Flow struct {
	loginURL URLBuilder
	consume  TokenConsumer
	logger   *logging.Logger
	timeout  time.Duration

	// OpenBrowser opens url. Replaced in tests and by --no-browser.
	OpenBrowser func(url string) error
	// OnURL is told the login URL, so it can be printed for manual use.
	OnURL func(url string)
}

// NewFlow creates a login flow with the default timeout.
func NewFlow(loginURL URLBuilder, consume TokenConsumer, logger *logging.Logger) *Flow {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Flow{
		loginURL:    loginURL,
		consume:     consume,
		logger:      logger,
		timeout:     constants.LoginTimeout,
		OpenBrowser: OpenBrowser,
	}
}

// SetTimeout overrides how long Run waits for the redirect.
func (f *Flow) SetTimeout(d time.Duration) {
	f.timeout = d
}

type result struct {
	err error
}

// Run listens on a random loopback port, sends the user to the login page
// and waits for the first callback with a token. Later callbacks are
// answered but ignored.
func (f *Flow) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("start callback listener: %w", err)
	}
	redirectURI := "http://" + ln.Addr().String() + CallbackPath

	done := make(chan result, 1)
	var once sync.Once

	r := mux.NewRouter()
	r.HandleFunc(CallbackPath, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("token") == "" {
			http.Error(w, "Login failed: no token in redirect.", http.StatusBadRequest)
			once.Do(func() { done <- result{err: ErrNoToken} })
			return
		}

		consumed := false
		var err error
		once.Do(func() {
			consumed = true
			_, err = f.consume(redirectURI + "?" + req.URL.RawQuery)
			done <- result{err: err}
		})
		if !consumed {
			http.Error(w, "Login already completed.", http.StatusGone)
			return
		}
		if err != nil {
			http.Error(w, "Login failed: could not store the session.", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>Signed in to "+constants.ApplicationName+". You can close this window.</p></body></html>")
	}).Methods(http.MethodGet)

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Warn().Err(err).Msg("callback server stopped")
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	loginURL := f.loginURL(redirectURI)
	f.logger.Debug().Str("redirect_uri", redirectURI).Msg("waiting for login callback")
	if f.OnURL != nil {
		f.OnURL(loginURL)
	}
	if f.OpenBrowser != nil {
		if err := f.OpenBrowser(loginURL); err != nil {
			f.logger.Warn().Err(err).Msg("could not open browser; open the URL manually")
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	select {
	case res := <-done:
		return res.err
	case <-waitCtx.Done():
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrTimeout
		}
		return waitCtx.Err()
	}
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
