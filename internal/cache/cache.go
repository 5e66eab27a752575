// Package cache implements the encrypted local cache. Values are serialized
// to JSON and sealed with AES-256-GCM under a single cache key that lives for
// at most the configured TTL.
//
// The cache key is persisted in the backing store without further wrapping,
// so the cache protects against casual reads of the store, not against an
// attacker with access to the same store.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/codec"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/crypto"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/store"
)

const (
	// DefaultTTL is the lifetime of a cache key and of every entry.
	DefaultTTL = time.Hour
	// MaxWipeDelay caps the wipe timer armed by Start and Idle.
	MaxWipeDelay = time.Hour
	// EntryVersion is written into every entry.
	EntryVersion = 1

	keyName     = "cache_key"
	entryPrefix = "entry:"
)

// Event names passed to an Observer.
const (
	EventHit   = "hit"
	EventMiss  = "miss"
	EventHeal  = "heal"
	EventWipe  = "wipe"
	EventRekey = "rekey"
)

// ErrClosed is returned by operations on a closed Cache.
var ErrClosed = errors.New("cache: closed")

// errCorrupt marks an entry that must be dropped. It never leaves the package.
var errCorrupt = errors.New("cache: corrupt entry")

// Observer receives cache events, e.g. for metrics.
type Observer func(event string)

type persistedKey struct {
	Bytes codec.Bytes `json:"bytes"`
	TS    int64       `json:"ts"`
}

type entry struct {
	IV      codec.Bytes `json:"iv"`
	CT      codec.Bytes `json:"ct"`
	TS      int64       `json:"ts"`
	Version uint8       `json:"version"`
}

// Cache is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	store      store.Store
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger
	observer   Observer
	key        []byte
	keyCreated time.Time
	// epoch counts adopted keys; a wipe timer only fires for its own key.
	epoch      uint64
	timer      *time.Timer
	closed     bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the key and entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// New returns a cache over s. The cache does not own s; Close leaves it open.
func New(s store.Store, opts ...Option) *Cache {
	c := &Cache{
		store:  s,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) emit(event string) {
	if c.observer != nil {
		c.observer(event)
	}
}

func (c *Cache) expired(ts time.Time) bool {
	return c.now().Sub(ts) > c.ttl
}

// EnsureKey returns the active cache key, loading the persisted key or
// generating and persisting a new one when needed. A valid key is never
// replaced.
func (c *Cache) EnsureKey() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	key, err := c.keyLocked(true)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), key...), nil
}

// keyLocked returns the active key. With generate false it returns nil when
// no valid key exists.
func (c *Cache) keyLocked(generate bool) ([]byte, error) {
	if c.key != nil {
		if !c.expired(c.keyCreated) {
			return c.key, nil
		}
		c.dropKeyLocked()
	}

	if err := c.loadKeyLocked(); err != nil {
		return nil, err
	}
	if c.key != nil {
		c.armLocked()
		return c.key, nil
	}
	if !generate {
		return nil, nil
	}

	key, err := crypto.NewKey()
	if err != nil {
		return nil, err
	}
	created := c.now()
	data, err := json.Marshal(persistedKey{Bytes: key, TS: created.UnixMilli()})
	if err != nil {
		return nil, err
	}
	if err := c.store.Put(keyName, data); err != nil {
		return nil, fmt.Errorf("persist cache key: %w", err)
	}
	c.key, c.keyCreated = key, created
	c.epoch++
	c.armLocked()
	c.emit(EventRekey)
	c.logger.Debug("cache key generated")
	return c.key, nil
}

// loadKeyLocked adopts the persisted key if it is well formed and within
// TTL, deleting it otherwise.
func (c *Cache) loadKeyLocked() error {
	data, err := c.store.Get(keyName)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load cache key: %w", err)
	}

	var pk persistedKey
	if err := json.Unmarshal(data, &pk); err != nil || len(pk.Bytes) != crypto.AESKeySize {
		c.logger.Warn("discarding malformed cache key")
		return c.deletePersistedKey()
	}
	created := time.UnixMilli(pk.TS)
	if c.expired(created) {
		c.logger.Debug("discarding expired cache key", slog.Time("created", created))
		return c.deletePersistedKey()
	}
	c.key, c.keyCreated = []byte(pk.Bytes), created
	c.epoch++
	return nil
}

func (c *Cache) deletePersistedKey() error {
	if err := c.store.Delete(keyName); err != nil {
		return fmt.Errorf("delete cache key: %w", err)
	}
	return nil
}

func (c *Cache) dropKeyLocked() {
	crypto.Zero(c.key)
	c.key = nil
	c.keyCreated = time.Time{}
}

// Set serializes value to JSON and stores it encrypted under name.
func (c *Cache) Set(name string, value any) error {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", name, err)
	}
	defer crypto.Zero(plaintext)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	key, err := c.keyLocked(true)
	if err != nil {
		return err
	}
	iv, err := crypto.NewIV()
	if err != nil {
		return err
	}
	ct, err := crypto.EncryptAESGCM(key, iv, plaintext)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry{IV: iv, CT: ct, TS: c.now().UnixMilli(), Version: EntryVersion})
	if err != nil {
		return err
	}
	if err := c.store.Put(entryPrefix+name, data); err != nil {
		return fmt.Errorf("cache set %s: %w", name, err)
	}
	return nil
}

// Get decrypts the entry stored under name into out and reports whether it
// was found. Malformed, expired, undecryptable or undecodable entries are
// deleted and reported as absent; only store failures return an error.
func (c *Cache) Get(name string, out any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}

	data, err := c.store.Get(entryPrefix + name)
	if errors.Is(err, store.ErrNotFound) {
		c.emit(EventMiss)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", name, err)
	}

	err = c.openLocked(data, out)
	if errors.Is(err, errCorrupt) {
		c.logger.Debug("dropping cache entry", slog.String("name", name), slog.String("reason", err.Error()))
		c.emit(EventHeal)
		if derr := c.store.Delete(entryPrefix + name); derr != nil {
			return false, fmt.Errorf("cache get %s: %w", name, derr)
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.emit(EventHit)
	return true, nil
}

func (c *Cache) openLocked(data []byte, out any) error {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("%w: %v", errCorrupt, err)
	}
	if e.Version != EntryVersion || len(e.IV) != crypto.AESNonceSize {
		return fmt.Errorf("%w: bad header", errCorrupt)
	}
	if c.expired(time.UnixMilli(e.TS)) {
		return fmt.Errorf("%w: expired", errCorrupt)
	}

	key, err := c.keyLocked(false)
	if err != nil {
		return err
	}
	if key == nil {
		return fmt.Errorf("%w: no cache key", errCorrupt)
	}

	plaintext, err := crypto.DecryptAESGCM(key, e.IV, e.CT)
	if err != nil {
		return fmt.Errorf("%w: %v", errCorrupt, err)
	}
	defer crypto.Zero(plaintext)

	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("%w: %v", errCorrupt, err)
	}
	return nil
}

// Remove deletes the entry stored under name.
func (c *Cache) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.store.Delete(entryPrefix + name)
}

// Wipe zeroes and forgets the in-memory key and deletes the persisted key.
// Existing entries become unreadable and are dropped on their next Get.
func (c *Cache) Wipe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.wipeLocked()
}

func (c *Cache) wipeLocked() error {
	c.dropKeyLocked()
	c.emit(EventWipe)
	c.logger.Debug("cache key wiped")
	return c.deletePersistedKey()
}

// Start enforces the TTL on the persisted key and arms a one-shot timer that
// wipes the key when it expires. Keys generated or loaded later arm their
// own timer.
func (c *Cache) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.scheduleLocked()
}

// Idle re-evaluates the key lifetime and re-arms the wipe timer.
func (c *Cache) Idle() error {
	return c.Start()
}

func (c *Cache) scheduleLocked() error {
	key, err := c.keyLocked(false)
	if err != nil {
		return err
	}
	if key == nil {
		c.stopTimerLocked()
		return nil
	}
	c.armLocked()
	return nil
}

// armLocked replaces the wipe timer with one that fires when the active key
// expires, or after MaxWipeDelay if that comes first.
func (c *Cache) armLocked() {
	c.stopTimerLocked()
	remaining := c.ttl - c.now().Sub(c.keyCreated)
	if remaining > MaxWipeDelay {
		remaining = MaxWipeDelay
	}
	if remaining < 0 {
		remaining = 0
	}
	epoch := c.epoch
	c.timer = time.AfterFunc(remaining, func() { c.expire(epoch) })
}

func (c *Cache) expire(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.key == nil || c.epoch != epoch {
		return
	}
	c.timer = nil
	if err := c.wipeLocked(); err != nil {
		c.logger.Warn("scheduled cache wipe failed", slog.String("error", err.Error()))
	}
}

func (c *Cache) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Lock wipes the key immediately and cancels any pending timer.
func (c *Cache) Lock() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.stopTimerLocked()
	return c.wipeLocked()
}

// Close stops the wipe timer and zeroes the in-memory key. The persisted key
// and entries are left in place.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	c.dropKeyLocked()
	return nil
}

// KeyCreated reports when the active key was created, or the zero time if no
// key is loaded.
func (c *Cache) KeyCreated() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyCreated
}
