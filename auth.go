package skap

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/crypto"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/metrics"
)

// AuthState is a step of the challenge-response handshake.
type AuthState int

const (
	AuthIdle AuthState = iota
	AuthChallengeRequested
	AuthSignatureSubmitted
	AuthSynced
	AuthFailed
)

func (s AuthState) String() string {
	switch s {
	case AuthIdle:
		return "idle"
	case AuthChallengeRequested:
		return "challenge requested"
	case AuthSignatureSubmitted:
		return "signature submitted"
	case AuthSynced:
		return "synced"
	case AuthFailed:
		return "failed"
	}
	return "unknown"
}

// AuthResult is the terminal state of one authentication attempt. Err is
// set, as an *AuthError, exactly when State is AuthFailed.
type AuthResult struct {
	State AuthState
	Err   error
}

// OK reports whether the attempt reached AuthSynced.
func (r AuthResult) OK() bool {
	return r.State == AuthSynced
}

func failed(step AuthState, err error) AuthResult {
	return AuthResult{State: AuthFailed, Err: &AuthError{Step: step, Err: err}}
}

// Authenticate runs challenge, signature and key agreement against the
// service and installs the new session secret in acct. Every call runs the
// whole handshake; concurrent calls for the same account are serialized.
//
// The signature secret key size is checked before any request is sent.
func (c *Client) Authenticate(ctx context.Context, acct *Account) AuthResult {
	if err := c.checkClosed(); err != nil {
		return failed(AuthIdle, err)
	}
	if acct == nil {
		return failed(AuthIdle, ErrNoAccount)
	}

	acct.authMu.Lock()
	defer acct.authMu.Unlock()
	return c.authenticateLocked(ctx, acct)
}

// authenticateLocked runs the handshake. The caller holds acct.authMu.
func (c *Client) authenticateLocked(ctx context.Context, acct *Account) AuthResult {
	start := time.Now()
	result := c.authenticate(ctx, acct)
	metrics.Observe(ctx, c.metrics, metrics.DomainAuth, "authenticate", start, result.Err)

	if result.OK() {
		c.logger.Debug("authenticated", slog.String("user_id", acct.ID()))
	} else {
		c.logger.Warn("authentication failed", slog.String("user_id", acct.ID()), slog.Any("error", result.Err))
	}
	return result
}

func (c *Client) authenticate(ctx context.Context, acct *Account) AuthResult {
	uid := acct.ID()

	acct.mu.RLock()
	sigSK := acct.keys.SignatureSecretKey
	kemSK := acct.keys.KEMSecretKey
	wiped := acct.wiped
	acct.mu.RUnlock()

	if wiped {
		return failed(AuthIdle, ErrAccountWiped)
	}

	if len(sigSK) != crypto.MLDSASecretKeySize {
		return failed(AuthIdle, &crypto.KeySizeError{
			Name: "signature secret key",
			Got:  len(sigSK),
			Want: crypto.MLDSASecretKeySize,
		})
	}

	challenge, err := c.apiClient.Challenge(ctx, uid)
	if err != nil {
		return failed(AuthIdle, err)
	}

	sig, err := crypto.Sign(sigSK, challenge)
	if err != nil {
		return failed(AuthChallengeRequested, err)
	}
	token, err := c.apiClient.Verify(ctx, uid, sig)
	if err != nil {
		return failed(AuthChallengeRequested, err)
	}
	// The old secret must not be paired with the new token.
	acct.clearSession()
	if err := c.setSessionToken(uid, token); err != nil {
		return failed(AuthSignatureSubmitted, err)
	}

	ct, err := c.apiClient.Sync(ctx, token, uid)
	if err != nil {
		c.dropSessionToken(uid)
		return failed(AuthSignatureSubmitted, err)
	}
	ss, err := crypto.Decapsulate(kemSK, ct)
	if err != nil {
		c.dropSessionToken(uid)
		return failed(AuthSignatureSubmitted, err)
	}
	acct.setSessionSecret(ss)
	return AuthResult{State: AuthSynced}
}

// currentSession returns the cached token and session secret for acct, or
// ok false when either is missing.
func (c *Client) currentSession(acct *Account) (token string, ss []byte, ok bool, err error) {
	token, ok, err = c.SessionToken(acct.ID())
	if err != nil || !ok {
		return "", nil, false, err
	}
	if ss = acct.sessionSecret(); ss == nil {
		return "", nil, false, nil
	}
	return token, ss, true, nil
}

// session returns a valid token and session secret for acct, authenticating
// first when either is missing. A non-empty rejected is a token the service
// refused; a session still holding it is replaced. The session is checked
// again under acct.authMu, so concurrent callers share one handshake.
func (c *Client) session(ctx context.Context, acct *Account, rejected string) (string, []byte, error) {
	if rejected == "" {
		token, ss, ok, err := c.currentSession(acct)
		if err != nil || ok {
			return token, ss, err
		}
	}

	acct.authMu.Lock()
	defer acct.authMu.Unlock()

	token, ss, ok, err := c.currentSession(acct)
	if err != nil {
		return "", nil, err
	}
	if ok && (rejected == "" || token != rejected) {
		return token, ss, nil
	}
	crypto.Zero(ss)
	if ok {
		c.dropSessionToken(acct.ID())
		acct.clearSession()
	}

	if result := c.authenticateLocked(ctx, acct); !result.OK() {
		return "", nil, result.Err
	}
	token, ss, ok, err = c.currentSession(acct)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrNotAuthenticated
	}
	return token, ss, nil
}

// withSession runs fn with a session, re-authenticating once if the
// service rejects the session token.
func (c *Client) withSession(ctx context.Context, acct *Account, fn func(token string, ss []byte) error) error {
	token, ss, err := c.session(ctx, acct, "")
	if err != nil {
		return err
	}
	err = fn(token, ss)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	c.logger.Debug("session rejected, re-authenticating", slog.String("user_id", acct.ID()))
	token, ss, err = c.session(ctx, acct, token)
	if err != nil {
		return err
	}
	return fn(token, ss)
}
