package skap

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/api"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/cache"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/codec"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/delivery"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/metrics"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/privacylog"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/store"
)

// Client talks to the credential service on behalf of one or more accounts
// and owns the local encrypted cache. It is safe for concurrent use.
type Client struct {
	apiClient   *api.Client
	cache       *cache.Cache
	store       Store
	ownsStore   bool
	accounts    *ttlcache.Cache[string, *Account]
	logger      *slog.Logger
	metrics     metrics.Recorder
	now         func() time.Time
	ttl         time.Duration
	concurrency int
	decodeMode  codec.Mode
	watchOpts   []delivery.Option

	mu     sync.RWMutex
	closed bool
}

// buildAPIClient creates and configures an API client from the given config.
func buildAPIClient(cfg *clientConfig, recorder metrics.Recorder) (*api.Client, error) {
	return api.NewClient(api.Config{
		BaseURL:    cfg.baseURL,
		HTTPClient: cfg.httpClient,
		Timeout:    cfg.timeout,
		MaxRetries: cfg.retries,
		RetryOn:    cfg.retryOn,
		RateLimit:  cfg.rateLimit,
		Burst:      cfg.burst,
		Observer:   metrics.APIObserver(recorder),
	})
}

// openStore returns the configured store and whether the client owns it.
func openStore(cfg *clientConfig) (Store, bool, error) {
	switch {
	case cfg.store != nil:
		return cfg.store, false, nil
	case cfg.storeDir != "":
		s, err := store.OpenLevelDB(cfg.storeDir)
		if err != nil {
			return nil, false, err
		}
		return s, true, nil
	default:
		return store.NewMemory(), true, nil
	}
}

// New creates a client. No request is sent until an account is used.
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.cacheTTL <= 0 {
		cfg.cacheTTL = cache.DefaultTTL
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = defaultConcurrency
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.logger != nil {
		logger = privacylog.Wrap(cfg.logger)
	}

	recorder, err := metrics.New(cfg.meterProvider, cfg.namespace)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	apiClient, err := buildAPIClient(cfg, recorder)
	if err != nil {
		return nil, err
	}

	s, ownsStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	accounts := ttlcache.New[string, *Account](
		ttlcache.WithTTL[string, *Account](cfg.cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *Account](),
	)
	recordCache := metrics.CacheObserver(recorder)
	localCache := cache.New(s,
		cache.WithTTL(cfg.cacheTTL),
		cache.WithClock(cfg.clock),
		cache.WithLogger(logger),
		cache.WithObserver(func(event string) {
			recordCache(event)
			// Remembered accounts never outlive the cache key.
			if event == cache.EventWipe {
				accounts.DeleteAll()
			}
		}),
	)
	if err := localCache.Start(); err != nil {
		_ = localCache.Close()
		if ownsStore {
			_ = s.Close()
		}
		return nil, fmt.Errorf("start cache: %w", err)
	}

	decodeMode := codec.Lenient
	if cfg.strict {
		decodeMode = codec.Strict
	}

	return &Client{
		apiClient: apiClient,
		cache:     localCache,
		store:     s,
		ownsStore: ownsStore,
		accounts:    accounts,
		logger:      logger,
		metrics:     recorder,
		now:         cfg.clock,
		ttl:         cfg.cacheTTL,
		concurrency: cfg.concurrency,
		decodeMode:  decodeMode,
		watchOpts: []delivery.Option{
			delivery.WithInterval(cfg.watchInterval, cfg.watchMax),
		},
	}, nil
}

// checkClosed returns ErrClientClosed if the client has been closed.
func (c *Client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// Close stops the cache wipe timer, forgets remembered accounts and closes
// the store if the client opened it. The persisted cache is kept.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.accounts.DeleteAll()
	if err := c.cache.Close(); err != nil {
		return err //coverage:ignore
	}
	if c.ownsStore {
		return c.store.Close()
	}
	return nil
}
