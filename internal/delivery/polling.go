package delivery

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	PollingInitialInterval   = 2 * time.Second
	PollingMaxBackoff        = 30 * time.Second
	PollingBackoffMultiplier = 1.5
	PollingJitterFactor      = 0.3
)

// Fetcher returns the items currently visible on the server.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// Handler is called once for every new item. A non-nil error stops the
// poller and is returned by Run.
type Handler[T any] func(ctx context.Context, item T) error

// ErrorHandler is told about fetch errors. Polling continues when it
// returns nil; any other error stops the poller and is returned by Run.
type ErrorHandler func(err error) error

// Poller reports items that appear between two fetches.
type Poller[T any] struct {
	fetch   Fetcher[T]
	key     func(T) string
	onError ErrorHandler

	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	random     func() float64

	seen     map[string]struct{}
	interval time.Duration
}

// Option configures a Poller.
type Option func(*pollerConfig)

type pollerConfig struct {
	initial time.Duration
	max     time.Duration
	jitter  float64
	onError ErrorHandler
	random  func() float64
}

// WithInterval sets the first and the largest wait between polls.
// Non-positive values keep the defaults.
func WithInterval(initial, max time.Duration) Option {
	return func(c *pollerConfig) {
		if initial > 0 {
			c.initial = initial
		}
		if max > 0 {
			c.max = max
		}
	}
}

// WithJitter sets the largest fraction of the wait added as jitter.
func WithJitter(factor float64) Option {
	return func(c *pollerConfig) {
		if factor >= 0 {
			c.jitter = factor
		}
	}
}

// WithErrorHandler sets the function told about fetch errors.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(c *pollerConfig) {
		c.onError = fn
	}
}

// withRandom replaces the jitter source.
func withRandom(fn func() float64) Option {
	return func(c *pollerConfig) {
		c.random = fn
	}
}

// NewPoller creates a poller over fetch. key identifies an item across
// polls.
func NewPoller[T any](fetch Fetcher[T], key func(T) string, opts ...Option) *Poller[T] {
	cfg := pollerConfig{
		initial: PollingInitialInterval,
		max:     PollingMaxBackoff,
		jitter:  PollingJitterFactor,
		random:  rand.Float64,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.max < cfg.initial {
		cfg.max = cfg.initial
	}

	return &Poller[T]{
		fetch:      fetch,
		key:        key,
		onError:    cfg.onError,
		initial:    cfg.initial,
		max:        cfg.max,
		multiplier: PollingBackoffMultiplier,
		jitter:     cfg.jitter,
		random:     cfg.random,
		seen:       make(map[string]struct{}),
		interval:   cfg.initial,
	}
}

// Run polls until ctx ends or handler fails. The first poll happens
// immediately. Run is not safe to call concurrently on the same Poller.
func (p *Poller[T]) Run(ctx context.Context, handler Handler[T]) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := p.poll(ctx, handler); err != nil {
			return err
		}

		timer := time.NewTimer(p.wait())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// poll fetches once, calls handler for new items and adjusts the interval.
func (p *Poller[T]) poll(ctx context.Context, handler Handler[T]) error {
	items, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.onError != nil {
			if err := p.onError(err); err != nil {
				return err
			}
		}
		p.backoff()
		return nil
	}

	current := make(map[string]struct{}, len(items))
	fresh := false
	for _, item := range items {
		k := p.key(item)
		current[k] = struct{}{}
		if _, ok := p.seen[k]; ok {
			continue
		}
		p.seen[k] = struct{}{}
		fresh = true
		if err := handler(ctx, item); err != nil {
			return err
		}
	}

	// Forget keys that disappeared so that a reappearing item is reported
	// again.
	for k := range p.seen {
		if _, ok := current[k]; !ok {
			delete(p.seen, k)
		}
	}

	if fresh {
		p.interval = p.initial
	} else {
		p.backoff()
	}
	return nil
}

func (p *Poller[T]) backoff() {
	next := time.Duration(float64(p.interval) * p.multiplier)
	if next > p.max {
		next = p.max
	}
	p.interval = next
}

// wait returns the current interval plus jitter.
func (p *Poller[T]) wait() time.Duration {
	jitter := time.Duration(p.random() * p.jitter * float64(p.interval))
	return p.interval + jitter
}
