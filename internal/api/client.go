package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rescale/drivectl/internal/config"
	"github.com/rescale/drivectl/internal/constants"
	"github.com/rescale/drivectl/internal/http"
	"github.com/rescale/drivectl/internal/logging"
	"github.com/rescale/drivectl/internal/version"
)

// Service names one of the Drive backends.
type Service string

const (
	ServiceAuth    Service = "auth"
	ServiceSearch  Service = "search"
	ServiceFile    Service = "file"
	ServiceProcess Service = "process"
	ServicePayment Service = "payment"
)

var allServices = []Service{ServiceAuth, ServiceSearch, ServiceFile, ServiceProcess, ServicePayment}

// TokenFunc returns the current bearer token, or "" when signed out.
type TokenFunc func() string

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg("retry: " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("retry: " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg("retry: " + msg)
}

// Client talks to the five Drive services. All services share one rate
// limiter; each has its own circuit breaker.
type Client struct {
	config   *config.Config
	baseURLs map[Service]string
	token    TokenFunc
	logger   *logging.Logger

	reads     *nethttp.Client // retries 5xx, 429 and connection errors
	writes    *nethttp.Client // retries only failures before a request was sent
	transfers *nethttp.Client // streaming bodies, never retried

	limiter  *rate.Limiter
	breakers map[Service]*gobreaker.CircuitBreaker
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, token TokenFunc, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if token == nil {
		token = func() string { return "" }
	}

	baseURLs := map[Service]string{
		ServiceAuth:    cfg.AuthURL,
		ServiceSearch:  cfg.SearchURL,
		ServiceFile:    cfg.FileURL,
		ServiceProcess: cfg.ProcessURL,
		ServicePayment: cfg.PaymentURL,
	}
	for svc, u := range baseURLs {
		u = strings.TrimSuffix(strings.TrimSpace(u), "/")
		if u == "" {
			return nil, fmt.Errorf("%s service base URL is empty", svc)
		}
		baseURLs[svc] = u
	}

	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	transferClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure transfer client: %w", err)
	}

	rl := &retryLogger{logger: logger}

	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RequestBurst
	if burst <= 0 {
		burst = 1
	}

	reads := newRetryClient(cfg, httpClient, rl, logger)
	reads.CheckRetry = retryablehttp.DefaultRetryPolicy

	writes := newRetryClient(cfg, httpClient, rl, logger)
	writes.CheckRetry = retryBeforeSend

	c := &Client{
		config:    cfg,
		baseURLs:  baseURLs,
		token:     token,
		logger:    logger,
		reads:     reads.StandardClient(),
		writes:    writes.StandardClient(),
		transfers: transferClient,
		limiter:   rate.NewLimiter(limit, burst),
		breakers:  make(map[Service]*gobreaker.CircuitBreaker, len(allServices)),
	}
	for _, svc := range allServices {
		c.breakers[svc] = newBreaker(svc, logger)
	}
	return c, nil
}

func newRetryClient(cfg *config.Config, base *nethttp.Client, rl *retryLogger, logger *logging.Logger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = rl
	// hand the last response back so status codes map to typed errors
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.ResponseLogHook = func(_ retryablehttp.Logger, resp *nethttp.Response) {
		if resp.StatusCode != nethttp.StatusTooManyRequests {
			return
		}
		ev := logger.Warn().Str("url", resp.Request.URL.Path)
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			ev = ev.Str("retry_after", retryAfter)
		}
		ev.Msg("throttled by server")
	}
	return rc
}

// retryBeforeSend is the policy for non-idempotent calls: only a failed dial
// is retried, since the server cannot have seen the request.
func retryBeforeSend(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true, nil
	}
	return false, nil
}

func newBreaker(svc Service, logger *logging.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(svc),
		MaxRequests: 1,
		Interval:    constants.BreakerInterval,
		Timeout:     constants.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < constants.BreakerMinRequests {
				return false
			}
			failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRate >= constants.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("service", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

// GetConfig returns the configuration used by this API client
func (c *Client) GetConfig() *config.Config {
	return c.config
}

// TransferClient returns the streaming HTTP client, shared with the archive sinks.
func (c *Client) TransferClient() *nethttp.Client {
	return c.transfers
}

type callKind int

const (
	callRead callKind = iota
	callWrite
	callTransfer
)

// request describes one API call.
type request struct {
	service Service
	op      string
	method  string
	path    string
	query   url.Values
	kind    callKind

	// body is JSON encoded unless raw is set
	body        interface{}
	raw         io.Reader
	contentType string

	// token overrides the session token when non-empty
	token string
}

// do performs an HTTP request with authentication, rate limiting and the
// service's circuit breaker. Only 2xx responses are returned; everything else
// becomes an error.
func (c *Client) do(ctx context.Context, r request) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	var reqBody io.Reader
	contentType := r.contentType
	switch {
	case r.raw != nil:
		reqBody = r.raw
	case r.body != nil:
		jsonData, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
		contentType = "application/json"
	}

	u := c.baseURLs[r.service] + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := nethttp.NewRequestWithContext(ctx, r.method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	token := r.token
	if token == "" {
		token = c.token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	hc := c.reads
	switch r.kind {
	case callWrite:
		hc = c.writes
	case callTransfer:
		hc = c.transfers
	}

	start := time.Now()
	out, err := c.breakers[r.service].Execute(func() (interface{}, error) {
		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		// only server side failures count against the breaker
		if resp.StatusCode >= 500 {
			return nil, readStatusError(r.op, resp)
		}
		return resp, nil
	})
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) {
			c.logger.Debug().Err(err).Str("op", r.op).Str("url", u).Msg("request failed")
			if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
				err = fmt.Errorf("%s: request failed: %w", r.op, err)
			}
		}
		return nil, breakerError(string(r.service), err)
	}

	resp := out.(*nethttp.Response)
	c.logger.Debug().Str("op", r.op).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readStatusError(r.op, resp)
	}
	return resp, nil
}

func readStatusError(op string, resp *nethttp.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return statusError(op, resp.StatusCode, body)
}

// decodeJSON decodes a 2xx body into v and closes it.
func decodeJSON(resp *nethttp.Response, endpoint string, v interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

// decodeArray decodes a JSON array, rejecting null and non-array bodies.
func decodeArray(resp *nethttp.Response, endpoint string, v interface{}) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", endpoint, err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return &DecodeError{Endpoint: endpoint, Err: errors.New("expected a JSON array")}
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

// drain discards and closes a body the caller does not need.
func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
