package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/rescale/drivectl/internal/constants"
)

// ErrorType represents different classes of errors for retry strategy
type ErrorType int

const (
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential is an expired or rejected S3 credential or SAS token
	ErrorTypeCredential
	// ErrorTypeNetwork covers timeouts, resets and refused connections
	ErrorTypeNetwork
	// ErrorTypeRetryable covers server side errors and throttling
	ErrorTypeRetryable
	// ErrorTypeFatal must not be retried
	ErrorTypeFatal
)

// RetryConfig holds retry parameters for ExecuteWithRetry.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// CredentialRefresh is called before every attempt when set
	CredentialRefresh func(context.Context) error
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, errorType ErrorType)
}

// DefaultRetryConfig returns the settings used for archive sink uploads.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   constants.MaxRetries,
		InitialDelay: constants.RetryInitialDelay,
		MaxDelay:     constants.RetryMaxDelay,
	}
}

var (
	credentialMarkers = []string{
		"expiredtoken", "expired token", "invalid token", "403", "unauthorized",
		"authenticationfailed", "authentication failed", "invalid sas",
		"signature not valid", "authorization failure",
	}
	networkMarkers = []string{
		"tls handshake timeout", "connection reset", "i/o timeout", "eof",
		"connection refused", "broken pipe", "timeout",
	}
	retryableMarkers = []string{
		"requesttimeout", "internalerror", "serviceunavailable", "slowdown",
		"throttl", "serverbusy", "server busy", "operationtimeout",
		"429", "500", "502", "503", "504",
	}
)

// ClassifyError determines the error type for retry strategy.
// Unknown errors are fatal so an unexpected failure is never retried forever.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, credentialMarkers):
		return ErrorTypeCredential
	case containsAny(msg, networkMarkers):
		return ErrorTypeNetwork
	case containsAny(msg, retryableMarkers):
		return ErrorTypeRetryable
	}
	return ErrorTypeFatal
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// CalculateBackoff returns exponential backoff with full jitter:
// random(0, min(maxDelay, initialDelay * 2^attempt)).
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}

	base := time.Duration(1<<uint(attempt)) * initialDelay
	if base > maxDelay || base <= 0 {
		base = maxDelay
	}
	return time.Duration(rand.Int63n(int64(base)))
}

// ExecuteWithRetry runs an idempotent operation with retries.
//
// Credential errors retry after a short pause (the refresh hook runs first),
// network and server errors back off with jitter, fatal errors return at once.
// Waits end early when ctx is done.
func ExecuteWithRetry(ctx context.Context, cfg RetryConfig, operation func() error) error {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		if cfg.CredentialRefresh != nil {
			if err := cfg.CredentialRefresh(ctx); err != nil {
				return fmt.Errorf("credential refresh failed: %w", err)
			}
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		errType := ClassifyError(err)
		if errType == ErrorTypeFatal {
			return err
		}
		if attempt == cfg.MaxRetries-1 {
			break
		}

		wait := time.Second
		if errType != ErrorTypeCredential {
			wait = CalculateBackoff(attempt, cfg.InitialDelay, cfg.MaxDelay)
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return fmt.Errorf("deadline too short for retry backoff: %w", err)
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, errType)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxRetries, lastErr)
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
