package constants

import (
	"time"
)

// ApplicationName is shown in notification titles and the shell prompt
const ApplicationName = "drivectl"

// Upload queue
const (
	// CompletedTaskTTL - how long a completed upload stays visible in the queue
	CompletedTaskTTL = 300 * time.Millisecond

	// FailedTaskTTL - how long a rejected or failed upload stays visible (4 seconds)
	// Long enough to read the rejection reason
	FailedTaskTTL = 4 * time.Second

	// DefaultUploadConcurrency - concurrent multipart uploads per batch
	DefaultUploadConcurrency = 4

	// MaxUploadConcurrency caps user supplied concurrency
	MaxUploadConcurrency = 16

	// UploadFormField is the multipart field name the processing service reads
	UploadFormField = "file"

	// DefaultRejectionReason is shown when the server rejects without a reason
	DefaultRejectionReason = "File rejected by server policy."
)

// Download archive
const (
	// DefaultArchiveName - file name used when no destination is given
	DefaultArchiveName = "files.zip"

	// DiskSpaceBufferPercent - additional space to require beyond the archive size (15%)
	DiskSpaceBufferPercent = 0.15
)

// Retry configuration
const (
	// MaxRetries - maximum number of retries for idempotent requests
	MaxRetries = 5

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	// Exponential backoff with jitter caps at this value
	RetryMaxDelay = 15 * time.Second
)

// Client side rate limiting, shared by all services
const (
	// DefaultRequestsPerSecond - steady state request rate
	DefaultRequestsPerSecond = 10.0

	// DefaultRequestBurst - burst capacity on top of the steady rate
	DefaultRequestBurst = 20
)

// Circuit breaker
const (
	// BreakerMinRequests - requests observed before the breaker may trip
	BreakerMinRequests = 10

	// BreakerFailureRatio - failure ratio that opens the breaker
	BreakerFailureRatio = 0.6

	// BreakerOpenTimeout - how long an open breaker rejects calls
	BreakerOpenTimeout = 30 * time.Second

	// BreakerInterval - rolling window for the failure counts
	BreakerInterval = 60 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// UI Updates
const (
	// ProgressUpdateInterval - interval for progress bar updates (250ms)
	ProgressUpdateInterval = 250 * time.Millisecond

	// ProgressEmitStep - minimum percent change before a progress event is published
	ProgressEmitStep = 1
)

// Timeouts
const (
	// APIContextTimeout - default timeout for a single JSON API call
	APIContextTimeout = 30 * time.Second

	// TransferTimeout - timeout for uploads and archive downloads
	TransferTimeout = 2 * time.Hour

	// LoginTimeout - how long `login` waits for the browser redirect
	LoginTimeout = 5 * time.Minute
)

// HTTP transport
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPClientTimeout - overall timeout for non-transfer clients
	HTTPClientTimeout = 300 * time.Second
)
