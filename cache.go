package skap

import (
	"fmt"
	"time"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/codec"
)

const (
	sessionTokenPrefix = "session_token:"
	accountEntry       = "account"
)

// sessionRecord is the cached form of a session token. Times are Unix
// milliseconds.
type sessionRecord struct {
	Token     string `json:"token"`
	TS        int64  `json:"ts"`
	ExpiresAt int64  `json:"expires_at"`
}

// CacheSet stores value, serialized as JSON, in the encrypted local cache.
func (c *Client) CacheSet(name string, value any) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	return c.cache.Set(name, value)
}

// CacheGet decodes the cached value stored under name into out and reports
// whether it was present. Expired or corrupted entries are dropped and
// reported as absent.
func (c *Client) CacheGet(name string, out any) (bool, error) {
	if err := c.checkClosed(); err != nil {
		return false, err
	}
	return c.cache.Get(name, out)
}

// CacheRemove deletes the cached value stored under name.
func (c *Client) CacheRemove(name string) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	return c.cache.Remove(name)
}

// Lock wipes the cache key, making every cached value unreadable, and
// forgets remembered accounts.
func (c *Client) Lock() error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	c.accounts.DeleteAll()
	return c.cache.Lock()
}

// Idle re-checks the cache key lifetime and re-arms its wipe timer.
func (c *Client) Idle() error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	return c.cache.Idle()
}

// SessionToken returns the cached session token for the user id uid, if
// one exists and has not expired.
func (c *Client) SessionToken(uid string) (string, bool, error) {
	if err := c.checkClosed(); err != nil {
		return "", false, err
	}

	var rec sessionRecord
	found, err := c.cache.Get(sessionTokenPrefix+uid, &rec)
	if err != nil || !found {
		return "", false, err
	}
	if rec.Token == "" || c.now().UnixMilli() >= rec.ExpiresAt {
		c.dropSessionToken(uid)
		return "", false, nil
	}
	return rec.Token, true, nil
}

func (c *Client) setSessionToken(uid, token string) error {
	now := c.now()
	rec := sessionRecord{
		Token:     token,
		TS:        now.UnixMilli(),
		ExpiresAt: now.Add(c.ttl).UnixMilli(),
	}
	if err := c.cache.Set(sessionTokenPrefix+uid, rec); err != nil {
		return fmt.Errorf("cache session token: %w", err)
	}
	return nil
}

func (c *Client) dropSessionToken(uid string) {
	_ = c.cache.Remove(sessionTokenPrefix + uid)
}

// RememberAccount keeps acct available to RecallAccount for as long as the
// cache key lives.
// The encoded account, without its session secret, is also written to the
// encrypted local cache so that a new client can recall it.
func (c *Client) RememberAccount(acct *Account) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	data, err := acct.MarshalBinary()
	if err != nil {
		return err
	}
	if err := c.cache.Set(accountEntry, codec.Bytes(data)); err != nil {
		return err
	}
	c.accounts.Set(accountEntry, acct, c.remainingTTL())
	return nil
}

// RecallAccount returns the remembered account, if any. An account that
// only survives in the local cache is decoded again; it starts without a
// session.
func (c *Client) RecallAccount() (*Account, bool, error) {
	if err := c.checkClosed(); err != nil {
		return nil, false, err
	}
	if item := c.accounts.Get(accountEntry); item != nil {
		if c.cacheKeyLive() {
			return item.Value(), true, nil
		}
		c.accounts.Delete(accountEntry)
	}

	var data codec.Bytes
	found, err := c.cache.Get(accountEntry, &data)
	if err != nil || !found {
		return nil, false, err
	}
	acct, err := decodeAccount(data, c.decodeMode)
	if err != nil {
		_ = c.cache.Remove(accountEntry)
		return nil, false, nil
	}
	c.accounts.Set(accountEntry, acct, c.remainingTTL())
	return acct, true, nil
}

// cacheKeyLive reports whether the cache key exists and is within TTL by the
// client clock.
func (c *Client) cacheKeyLive() bool {
	created := c.cache.KeyCreated()
	return !created.IsZero() && c.now().Sub(created) <= c.ttl
}

// remainingTTL is the time left before the cache key expires.
func (c *Client) remainingTTL() time.Duration {
	created := c.cache.KeyCreated()
	if created.IsZero() {
		return c.ttl
	}
	remaining := c.ttl - c.now().Sub(created)
	if remaining <= 0 {
		return time.Millisecond
	}
	return remaining
}

// ForgetAccount drops the remembered account from memory and from the cache.
func (c *Client) ForgetAccount() error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	c.accounts.Delete(accountEntry)
	return c.cache.Remove(accountEntry)
}
