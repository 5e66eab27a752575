package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/apierrors"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/codec"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/crypto"
)

// ErrEmptyToken is returned when verify succeeds without a session token.
var ErrEmptyToken = errors.New("server returned an empty session token")

func userPath(prefix, uid string, rest ...string) string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(prefix)
	b.WriteString("/")
	b.WriteString(url.PathEscape(uid))
	for _, r := range rest {
		b.WriteString("/")
		b.WriteString(url.PathEscape(r))
	}
	return b.String()
}

// Challenge fetches a fresh authentication challenge for uid.
func (c *Client) Challenge(ctx context.Context, uid string) ([]byte, error) {
	var challenge codec.Bytes
	err := c.doJSON(ctx, request{
		route:      "challenge",
		idempotent: true,
		method:     http.MethodGet,
		path:       userPath("challenge", uid),
	}, &challenge)
	if err != nil {
		return nil, apierrors.WithResourceType(err, apierrors.ResourceUser)
	}
	return challenge, nil
}

// Verify submits the challenge signature and returns the session token. The
// token may arrive as plain text or as a JSON string.
func (c *Client) Verify(ctx context.Context, uid string, signature []byte) (string, error) {
	data, err := c.do(ctx, request{
		route:  "verify",
		method: http.MethodPost,
		path:   userPath("verify", uid),
		body:   codec.Bytes(signature),
	})
	if err != nil {
		return "", apierrors.WithResourceType(err, apierrors.ResourceUser)
	}

	data = bytes.TrimSpace(data)
	token := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &token); err != nil {
			return "", fmt.Errorf("failed to decode verify response: %w", err)
		}
	}
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// Sync fetches the KEM ciphertext carrying the new session secret.
func (c *Client) Sync(ctx context.Context, token, uid string) ([]byte, error) {
	var ct codec.Bytes
	err := c.doJSON(ctx, request{
		route:      "sync",
		idempotent: true,
		method:     http.MethodGet,
		path:       userPath("sync", uid),
		token:      token,
	}, &ct)
	if err != nil {
		return nil, err
	}
	return ct, nil
}

// CreatePass uploads a new owned envelope. The returned id is empty when the
// server does not report one.
func (c *Client) CreatePass(ctx context.Context, token, uid string, env *crypto.Envelope) (string, error) {
	data, err := c.do(ctx, request{
		route:  "create_pass",
		method: http.MethodPost,
		path:   userPath("create_pass", uid),
		token:  token,
		body:   env,
	})
	if err != nil {
		return "", err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", nil
	}
	if data[0] == '{' {
		var resp createResponse
		if err := json.Unmarshal(data, &resp); err != nil || len(resp.ID) == 0 {
			return "", nil
		}
		id, _ := decodeID(resp.ID)
		return id, nil
	}
	id, _ := decodeID(data)
	return id, nil
}

// UpdatePass replaces the envelope stored under id.
func (c *Client) UpdatePass(ctx context.Context, token, uid, id string, env *crypto.Envelope) error {
	_, err := c.do(ctx, request{
		route:      "update_pass",
		idempotent: true,
		method:     http.MethodPost,
		path:       userPath("update_pass", uid, id),
		token:      token,
		body:       env,
	})
	return apierrors.WithResourceType(err, apierrors.ResourceCredential)
}

// DeletePass removes the record stored under id.
func (c *Client) DeletePass(ctx context.Context, token, uid, id string) error {
	_, err := c.do(ctx, request{
		route:  "delete_pass",
		method: http.MethodPost,
		path:   userPath("delete_pass", uid, id),
		token:  token,
	})
	return apierrors.WithResourceType(err, apierrors.ResourceCredential)
}

// SendAll lists every owned and shared record visible to uid.
func (c *Client) SendAll(ctx context.Context, token, uid string) (*ListResponse, error) {
	var result ListResponse
	err := c.doJSON(ctx, request{
		route:      "send_all",
		idempotent: true,
		method:     http.MethodGet,
		path:       userPath("send_all", uid),
		token:      token,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// PublicKey fetches the KEM public key of another user.
func (c *Client) PublicKey(ctx context.Context, token, uid string) ([]byte, error) {
	var pk codec.Bytes
	err := c.doJSON(ctx, request{
		route:      "public_key",
		idempotent: true,
		method:     http.MethodGet,
		path:       userPath("public_key", uid),
		token:      token,
	}, &pk)
	if err != nil {
		return nil, apierrors.WithResourceType(err, apierrors.ResourceUser)
	}
	return pk, nil
}

// SharePass offers the record id to recipient.
func (c *Client) SharePass(ctx context.Context, token, uid, id, recipient string, shared *crypto.SharedEnvelope) error {
	_, err := c.do(ctx, request{
		route:  "share_pass",
		method: http.MethodPost,
		path:   userPath("share_pass", uid, id, recipient),
		token:  token,
		body:   shared,
	})
	return err
}

// AcceptShare marks the shared record id as accepted.
func (c *Client) AcceptShare(ctx context.Context, token, uid, id string) error {
	_, err := c.do(ctx, request{
		route:      "accept_share",
		idempotent: true,
		method:     http.MethodPost,
		path:       userPath("accept_share", uid, id),
		token:      token,
	})
	return apierrors.WithResourceType(err, apierrors.ResourceCredential)
}

// RejectShare marks the shared record id as rejected.
func (c *Client) RejectShare(ctx context.Context, token, uid, id string) error {
	_, err := c.do(ctx, request{
		route:      "reject_share",
		idempotent: true,
		method:     http.MethodPost,
		path:       userPath("reject_share", uid, id),
		token:      token,
	})
	return apierrors.WithResourceType(err, apierrors.ResourceCredential)
}
