package skap

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/api"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/crypto"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/metrics"
)

// ShareStatus is the recipient's decision on a shared credential.
type ShareStatus = crypto.ShareStatus

// Share statuses.
const (
	SharePending  = crypto.SharePending
	ShareAccepted = crypto.ShareAccepted
	ShareRejected = crypto.ShareRejected
)

// OwnedCredential is a decrypted record owned by the account.
type OwnedCredential struct {
	ID         string
	Credential Credential
}

// SharedCredential is a decrypted record shared with the account.
type SharedCredential struct {
	ID         string
	Owner      string
	Credential Credential
}

// ShareInfo describes a shared record without decrypting it.
type ShareInfo struct {
	ID     string
	Owner  string
	Status ShareStatus
}

// CredentialList is the result of FetchAllCredentials. Owned and Shared
// keep the server order. Shares lists every shared record, whatever its
// status; only accepted ones appear in Shared.
type CredentialList struct {
	Owned  []OwnedCredential
	Shared []SharedCredential
	Shares []ShareInfo

	// Skipped counts records that could not be decrypted or decoded.
	Skipped int
	// Partial is set when the context ended before every record was
	// processed.
	Partial bool
}

// FetchAllCredentials lists and decrypts every record visible to acct.
// Records that fail to decrypt are logged and skipped. When ctx ends while
// records are being decrypted, the records done so far are returned with
// Partial set, together with the context error.
func (c *Client) FetchAllCredentials(ctx context.Context, acct *Account) (list *CredentialList, err error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.Observe(ctx, c.metrics, metrics.DomainCredentials, "fetch_all", start, err)
	}()

	kemSK, err := acct.kemSecretKey()
	if err != nil {
		return nil, err
	}

	var (
		resp *api.ListResponse
		ss   []byte
	)
	err = c.withSession(ctx, acct, func(token string, sessionSecret []byte) error {
		var ferr error
		resp, ferr = c.apiClient.SendAll(ctx, token, acct.ID())
		crypto.Zero(ss)
		ss = sessionSecret
		return ferr
	})
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(ss)

	list = c.decryptAll(ctx, resp, kemSK, ss)
	if list.Partial {
		return list, ctx.Err()
	}
	return list, nil
}

type decrypted struct {
	done bool
	cred *Credential
}

// decryptAll decrypts owned and accepted shared records in parallel,
// bounded by the client concurrency.
func (c *Client) decryptAll(ctx context.Context, resp *api.ListResponse, kemSK, ss []byte) *CredentialList {
	owned := make([]decrypted, len(resp.Passwords))
	shared := make([]decrypted, len(resp.Shared))
	var skipped atomic.Int64

	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for i := range resp.Passwords {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			rec := &resp.Passwords[i]
			cred, err := crypto.OpenOwned(&rec.Envelope, kemSK, ss)
			owned[i].done = true
			if err != nil {
				skipped.Add(1)
				c.logger.Warn("skipping owned record", slog.String("record_id", rec.ID), slog.Any("error", &DecryptionError{RecordID: rec.ID, Err: err}))
				return nil
			}
			owned[i].cred = cred
			return nil
		})
	}

	for i := range resp.Shared {
		if ctx.Err() != nil {
			break
		}
		if resp.Shared[i].Shared.Status != crypto.ShareAccepted {
			shared[i].done = true
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			rec := &resp.Shared[i]
			cred, err := crypto.OpenShared(&rec.Shared, kemSK)
			shared[i].done = true
			if err != nil {
				skipped.Add(1)
				c.logger.Warn("skipping shared record", slog.String("record_id", rec.ID), slog.Any("error", &DecryptionError{RecordID: rec.ID, Shared: true, Err: err}))
				return nil
			}
			shared[i].cred = cred
			return nil
		})
	}
	_ = g.Wait()

	list := &CredentialList{
		Owned:  make([]OwnedCredential, 0, len(owned)),
		Shared: make([]SharedCredential, 0, len(shared)),
		Shares: make([]ShareInfo, 0, len(resp.Shared)),
	}
	for i, d := range owned {
		if !d.done {
			list.Partial = true
			continue
		}
		if d.cred != nil {
			list.Owned = append(list.Owned, OwnedCredential{ID: resp.Passwords[i].ID, Credential: *d.cred})
		}
	}
	for i, d := range shared {
		rec := resp.Shared[i]
		list.Shares = append(list.Shares, ShareInfo{ID: rec.ID, Owner: rec.Owner, Status: rec.Shared.Status})
		if !d.done {
			list.Partial = true
			continue
		}
		if d.cred != nil {
			list.Shared = append(list.Shared, SharedCredential{ID: rec.ID, Owner: rec.Owner, Credential: *d.cred})
		}
	}
	list.Skipped = int(skipped.Load())

	c.logger.Debug("fetched credentials",
		slog.Int("owned", len(list.Owned)),
		slog.Int("shared", len(list.Shared)),
		slog.Int("skipped", list.Skipped),
		slog.Bool("partial", list.Partial),
	)
	return list
}

// StoreCredential encrypts cred for acct and uploads it.
func (c *Client) StoreCredential(ctx context.Context, acct *Account, cred *Credential) (err error) {
	if err := c.checkClosed(); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.Observe(ctx, c.metrics, metrics.DomainCredentials, "store", start, err)
	}()

	kemSK, err := acct.kemSecretKey()
	if err != nil {
		return err
	}
	return c.withSession(ctx, acct, func(token string, ss []byte) error {
		defer crypto.Zero(ss)
		env, err := crypto.SealOwned(cred, kemSK, ss)
		if err != nil {
			return err
		}
		id, err := c.apiClient.CreatePass(ctx, token, acct.ID(), env)
		if err != nil {
			return err
		}
		c.logger.Debug("stored credential", slog.String("record_id", id))
		return nil
	})
}

// UpdateCredential replaces the record id with cred.
func (c *Client) UpdateCredential(ctx context.Context, acct *Account, id string, cred *Credential) (err error) {
	if err := c.checkClosed(); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.Observe(ctx, c.metrics, metrics.DomainCredentials, "update", start, err)
	}()

	kemSK, err := acct.kemSecretKey()
	if err != nil {
		return err
	}
	return c.withSession(ctx, acct, func(token string, ss []byte) error {
		defer crypto.Zero(ss)
		env, err := crypto.SealOwned(cred, kemSK, ss)
		if err != nil {
			return err
		}
		return c.apiClient.UpdatePass(ctx, token, acct.ID(), id, env)
	})
}

// DeleteCredential removes the record id.
func (c *Client) DeleteCredential(ctx context.Context, acct *Account, id string) (err error) {
	if err := c.checkClosed(); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.Observe(ctx, c.metrics, metrics.DomainCredentials, "delete", start, err)
	}()

	return c.withSession(ctx, acct, func(token string, ss []byte) error {
		crypto.Zero(ss)
		return c.apiClient.DeletePass(ctx, token, acct.ID(), id)
	})
}

// ShareCredential encrypts cred to the KEM public key of recipient and
// offers it as the record id. The recipient sees it once accepted.
func (c *Client) ShareCredential(ctx context.Context, acct *Account, id, recipient string, cred *Credential) (err error) {
	if err := c.checkClosed(); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.Observe(ctx, c.metrics, metrics.DomainCredentials, "share", start, err)
	}()

	return c.withSession(ctx, acct, func(token string, ss []byte) error {
		crypto.Zero(ss)
		pk, err := c.apiClient.PublicKey(ctx, token, recipient)
		if err != nil {
			return err
		}
		shared, err := crypto.SealShared(cred, pk)
		if err != nil {
			return err
		}
		return c.apiClient.SharePass(ctx, token, acct.ID(), id, recipient, shared)
	})
}

// AcceptShared accepts the shared record id.
func (c *Client) AcceptShared(ctx context.Context, acct *Account, id string) error {
	return c.decideShare(ctx, acct, id, ShareAccepted)
}

// RejectShared rejects the shared record id.
func (c *Client) RejectShared(ctx context.Context, acct *Account, id string) error {
	return c.decideShare(ctx, acct, id, ShareRejected)
}

func (c *Client) decideShare(ctx context.Context, acct *Account, id string, status ShareStatus) (err error) {
	if err := c.checkClosed(); err != nil {
		return err
	}
	op := "accept_share"
	if status == ShareRejected {
		op = "reject_share"
	}
	start := time.Now()
	defer func() {
		metrics.Observe(ctx, c.metrics, metrics.DomainCredentials, op, start, err)
	}()

	return c.withSession(ctx, acct, func(token string, ss []byte) error {
		crypto.Zero(ss)
		if status == ShareAccepted {
			return c.apiClient.AcceptShare(ctx, token, acct.ID(), id)
		}
		return c.apiClient.RejectShare(ctx, token, acct.ID(), id)
	})
}
