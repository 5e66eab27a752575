package skap

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/cache"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/store"
)

const (
	defaultBaseURL     = "http://localhost:8080"
	defaultTimeout     = 30 * time.Second
	defaultConcurrency = 8
	defaultNamespace   = "skap"
)

// Store is the persistent key-value store behind the local cache.
type Store = store.Store

// NewMemoryStore returns a Store that lives only in memory.
func NewMemoryStore() Store {
	return store.NewMemory()
}

// OpenStore opens or creates an on-disk Store in dir.
func OpenStore(dir string) (Store, error) {
	return store.OpenLevelDB(dir)
}

// clientConfig holds configuration for the client.
type clientConfig struct {
	baseURL       string
	httpClient    *http.Client
	timeout       time.Duration
	retries       int
	retryOn       []int
	rateLimit     rate.Limit
	burst         int
	logger        *slog.Logger
	store         Store
	storeDir      string
	cacheTTL      time.Duration
	clock         func() time.Time
	meterProvider metric.MeterProvider
	namespace     string
	concurrency   int
	strict        bool
	watchInterval time.Duration
	watchMax      time.Duration
}

// Option configures the client.
type Option func(*clientConfig)

// WithBaseURL sets the credential service base URL.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithRetries sets the number of retries for idempotent API calls. Login
// signatures, uploads and shares are never repeated.
// Default: 0, transport failures are reported to the caller.
func WithRetries(count int) Option {
	return func(c *clientConfig) {
		c.retries = count
	}
}

// WithRetryOn sets the HTTP status codes that trigger a retry.
// Default: [408, 429, 500, 502, 503, 504]
func WithRetryOn(statusCodes []int) Option {
	return func(c *clientConfig) {
		c.retryOn = statusCodes
	}
}

// WithRateLimit paces outgoing requests to rps requests per second with
// the given burst. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *clientConfig) {
		c.rateLimit = rate.Limit(rps)
		c.burst = burst
	}
}

// WithLogger sets the logger. Sensitive attributes are redacted before they
// reach its handler. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithStore sets the store behind the local cache. The client does not
// close a store passed this way.
func WithStore(s Store) Option {
	return func(c *clientConfig) {
		c.store = s
	}
}

// WithStoreDir opens an on-disk store in dir. The client closes it on Close.
// Ignored when WithStore is also given.
func WithStoreDir(dir string) Option {
	return func(c *clientConfig) {
		c.storeDir = dir
	}
}

// WithCacheTTL sets the lifetime of the local cache key, its entries, the
// cached session token and the in-memory account window.
// Default: 1 hour
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.cacheTTL = ttl
	}
}

// WithClock replaces time.Now for cache and session expiry.
func WithClock(now func() time.Time) Option {
	return func(c *clientConfig) {
		c.clock = now
	}
}

// WithMeterProvider records operation metrics on mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *clientConfig) {
		c.meterProvider = mp
	}
}

// WithMetricsNamespace sets the prefix of every metric name.
// Default: "skap"
func WithMetricsNamespace(namespace string) Option {
	return func(c *clientConfig) {
		c.namespace = namespace
	}
}

// WithConcurrency bounds how many records are decrypted in parallel.
// Default: 8
func WithConcurrency(n int) Option {
	return func(c *clientConfig) {
		c.concurrency = n
	}
}

// WithStrictDecoding makes LoadAccount require every key length field to
// match its key size and reject trailing bytes.
func WithStrictDecoding(strict bool) Option {
	return func(c *clientConfig) {
		c.strict = strict
	}
}

// WithWatchInterval sets the first and the largest wait between two polls
// of WatchShares.
// Default: 2s growing to 30s while nothing new arrives
func WithWatchInterval(initial, max time.Duration) Option {
	return func(c *clientConfig) {
		c.watchInterval = initial
		c.watchMax = max
	}
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		baseURL:     defaultBaseURL,
		timeout:     defaultTimeout,
		cacheTTL:    cache.DefaultTTL,
		clock:       time.Now,
		namespace:   defaultNamespace,
		concurrency: defaultConcurrency,
	}
}
