package skap

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/crypto"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/delivery"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/metrics"
)

// ShareHandler is called by WatchShares for every newly offered share.
// Returning an error stops the watch.
type ShareHandler func(ctx context.Context, share ShareInfo) error

// WatchShares polls the service for credentials shared with acct and calls
// fn once for each pending share it has not reported yet. A share that is
// withdrawn and offered again is reported again. Transport failures are
// logged and retried with backoff; errors that retrying cannot fix, such as
// ErrUserNotFound or ErrKeySizeMismatch, end the watch.
//
// WatchShares blocks until ctx ends, in which case it returns the context
// error, or until fn returns an error, which it returns unchanged.
func (c *Client) WatchShares(ctx context.Context, acct *Account, fn ShareHandler) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	if acct == nil {
		return ErrNoAccount
	}

	opts := append([]delivery.Option{
		delivery.WithErrorHandler(func(err error) error {
			if permanentWatchError(err) {
				return err
			}
			c.logger.Warn("share poll failed", slog.String("user_id", acct.ID()), slog.Any("error", err))
			return nil
		}),
	}, c.watchOpts...)

	p := delivery.NewPoller(func(ctx context.Context) ([]ShareInfo, error) {
		return c.pendingShares(ctx, acct)
	}, func(s ShareInfo) string { return s.ID }, opts...)

	return p.Run(ctx, func(ctx context.Context, s ShareInfo) error {
		c.logger.Debug("share offered", slog.String("record_id", s.ID), slog.String("owner", s.Owner))
		return fn(ctx, s)
	})
}

// pendingShares lists the shares acct has neither accepted nor rejected.
func (c *Client) pendingShares(ctx context.Context, acct *Account) (shares []ShareInfo, err error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.Observe(ctx, c.metrics, metrics.DomainCredentials, "poll_shares", start, err)
	}()

	err = c.withSession(ctx, acct, func(token string, ss []byte) error {
		crypto.Zero(ss)
		resp, err := c.apiClient.SendAll(ctx, token, acct.ID())
		if err != nil {
			return err
		}
		shares = shares[:0]
		for _, rec := range resp.Shared {
			if rec.Shared.Status == crypto.SharePending {
				shares = append(shares, ShareInfo{ID: rec.ID, Owner: rec.Owner, Status: rec.Shared.Status})
			}
		}
		return nil
	})
	return shares, err
}

func permanentWatchError(err error) bool {
	return errors.Is(err, ErrClientClosed) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrKeySizeMismatch) ||
		errors.Is(err, ErrAccountWiped)
}
