package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rescale/drivectl/internal/api"
	"github.com/rescale/drivectl/internal/config"
	"github.com/rescale/drivectl/internal/constants"
	"github.com/rescale/drivectl/internal/events"
	"github.com/rescale/drivectl/internal/logging"
	"github.com/rescale/drivectl/internal/notify"
	"github.com/rescale/drivectl/internal/session"
	"github.com/rescale/drivectl/internal/state"
	"github.com/rescale/drivectl/internal/transfer"
)

// errNotLoggedIn is returned by commands that need a session.
var errNotLoggedIn = errors.New("not logged in: run 'drivectl login' first")

// App is everything a command needs, built once per process.
type App struct {
	Config   *config.Config
	Logger   *logging.Logger
	Bus      *events.EventBus
	Client   *api.Client
	Session  *session.Holder
	Store    *state.Store
	Notifier *notify.Notifier
	Queue    *transfer.Queue
}

var app *App

// getApp loads the configuration and wires the client, session and store.
// The persisted session is restored without a network call.
func getApp() (*App, error) {
	if app != nil {
		return app, nil
	}

	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyOverrides(overrides())
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	logger = logging.NewLogger(logging.Options{File: cfg.LogFile, EventBus: bus})

	var holder *session.Holder
	client, err := api.NewClient(cfg, func() string { return holder.Token() }, logger.Component("api"))
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	holder = session.NewHolder(session.NewFileStore(cfg), client, bus, logger.Component("session"))
	if err := holder.Restore(); err != nil {
		logger.Warn().Err(err).Msg("could not restore session")
	}

	notifier := notify.NewNotifier(&notify.Config{Desktop: cfg.DesktopNotifications}, bus, logger.Component("notify"))

	app = &App{
		Config:   cfg,
		Logger:   logger,
		Bus:      bus,
		Client:   client,
		Session:  holder,
		Store:    state.NewStore(client, bus, notifier, logger),
		Notifier: notifier,
		Queue:    transfer.NewQueue(bus),
	}
	return app, nil
}

// closeApp releases the app's resources. Safe to call more than once.
func closeApp() {
	if app == nil {
		return
	}
	app.Queue.Close()
	app.Bus.Close()
	_ = app.Logger.Close()
	app = nil
}

// requireApp returns the app with a session the auth service has just
// confirmed. A restored profile is not trusted on its own: an expired or
// revoked token is cleared here along with the profile.
func requireApp(ctx context.Context) (*App, error) {
	a, err := getApp()
	if err != nil {
		return nil, err
	}
	if a.Session.State() == session.Anonymous {
		return nil, errNotLoggedIn
	}
	if err := a.Session.FetchUser(ctx); err != nil {
		return nil, fmt.Errorf("%w (%v)", errNotLoggedIn, err)
	}
	return a, nil
}

// signOutOnUnauthorized clears the session when err says the services
// rejected the token, so the next command asks for a new login.
func (a *App) signOutOnUnauthorized(err error) error {
	if a == nil || !api.IsUnauthorized(err) {
		return err
	}
	a.Logger.Warn().Err(err).Msg("session rejected by the service, signing out")
	if lerr := a.Session.Logout(); lerr != nil {
		a.Logger.Error().Err(lerr).Msg("failed to clear session")
	}
	return fmt.Errorf("%w (%v)", errNotLoggedIn, err)
}
