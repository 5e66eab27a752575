package fakeserver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/api"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/apierrors"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/codec"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/crypto"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/metrics"
)

type fixture struct {
	server *Server
	client *api.Client
	keys   *codec.KeyMaterial
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := New()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := api.New(api.WithBaseURL(ts.URL))
	require.NoError(t, err)

	keys, err := crypto.GenerateKeyMaterial()
	require.NoError(t, err)
	srv.Register("alice", keys.SignaturePublicKey, keys.KEMPublicKey)

	return &fixture{server: srv, client: client, keys: keys}
}

// login runs challenge, verify and sync and returns the token and the
// session secret.
func (f *fixture) login(t *testing.T, uid string, keys *codec.KeyMaterial) (string, []byte) {
	t.Helper()
	ctx := context.Background()

	challenge, err := f.client.Challenge(ctx, uid)
	require.NoError(t, err)
	require.Len(t, challenge, ChallengeSize)

	sig, err := crypto.Sign(keys.SignatureSecretKey, challenge)
	require.NoError(t, err)
	token, err := f.client.Verify(ctx, uid, sig)
	require.NoError(t, err)

	ct, err := f.client.Sync(ctx, token, uid)
	require.NoError(t, err)
	ss, err := crypto.Decapsulate(keys.KEMSecretKey, ct)
	require.NoError(t, err)
	return token, ss
}

func TestLoginAndOwnedRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, ss := f.login(t, "alice", f.keys)

	cred := &codec.Credential{Password: "p", Username: "u", URL: codec.Opt("https://x")}
	env, err := crypto.SealOwned(cred, f.keys.KEMSecretKey, ss)
	require.NoError(t, err)

	id, err := f.client.CreatePass(ctx, token, "alice", env)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, f.server.RecordCount("alice"))

	list, err := f.client.SendAll(ctx, token, "alice")
	require.NoError(t, err)
	require.Len(t, list.Passwords, 1)
	assert.Equal(t, id, list.Passwords[0].ID)

	got, err := crypto.OpenOwned(&list.Passwords[0].Envelope, f.keys.KEMSecretKey, ss)
	require.NoError(t, err)
	assert.True(t, cred.Equal(got))
}

func TestSendAll_RewrapsWithCurrentSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, ss1 := f.login(t, "alice", f.keys)

	env, err := crypto.SealOwned(&codec.Credential{Password: "p", Username: "u"}, f.keys.KEMSecretKey, ss1)
	require.NoError(t, err)
	_, err = f.client.CreatePass(ctx, token, "alice", env)
	require.NoError(t, err)

	token2, ss2 := f.login(t, "alice", f.keys)
	require.NotEqual(t, ss1, ss2)

	list, err := f.client.SendAll(ctx, token2, "alice")
	require.NoError(t, err)
	require.Len(t, list.Passwords, 1)

	_, err = crypto.OpenOwned(&list.Passwords[0].Envelope, f.keys.KEMSecretKey, ss1)
	assert.ErrorIs(t, err, crypto.ErrCryptoFailure)
	_, err = crypto.OpenOwned(&list.Passwords[0].Envelope, f.keys.KEMSecretKey, ss2)
	assert.NoError(t, err)
}

func TestVerify_RejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	challenge, err := f.client.Challenge(ctx, "alice")
	require.NoError(t, err)
	sig, err := crypto.Sign(f.keys.SignatureSecretKey, append(challenge, 0))
	require.NoError(t, err)

	_, err = f.client.Verify(ctx, "alice", sig)
	assert.ErrorIs(t, err, apierrors.ErrUnauthorized)
}

func TestChallenge_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Challenge(context.Background(), "mallory")
	assert.ErrorIs(t, err, apierrors.ErrUserNotFound)
}

func TestAuthenticatedRoutes_RequireToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, _ := f.login(t, "alice", f.keys)

	_, err := f.client.SendAll(ctx, "", "alice")
	assert.ErrorIs(t, err, apierrors.ErrUnauthorized)

	f.server.RevokeTokens()
	_, err = f.client.SendAll(ctx, token, "alice")
	assert.ErrorIs(t, err, apierrors.ErrUnauthorized)
}

func TestTokenIsBoundToUser(t *testing.T) {
	f := newFixture(t)
	bob, err := crypto.GenerateKeyMaterial()
	require.NoError(t, err)
	f.server.Register("bob", bob.SignaturePublicKey, bob.KEMPublicKey)

	aliceToken, _ := f.login(t, "alice", f.keys)
	_, err = f.client.SendAll(context.Background(), aliceToken, "bob")
	assert.ErrorIs(t, err, apierrors.ErrUnauthorized)

	pk, err := f.client.PublicKey(context.Background(), aliceToken, "bob")
	require.NoError(t, err)
	assert.Equal(t, bob.KEMPublicKey, pk)
}

func TestShareFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob, err := crypto.GenerateKeyMaterial()
	require.NoError(t, err)
	f.server.Register("bob", bob.SignaturePublicKey, bob.KEMPublicKey)

	aliceToken, _ := f.login(t, "alice", f.keys)
	shared, err := crypto.SealShared(&codec.Credential{Password: "s", Username: "u"}, bob.KEMPublicKey)
	require.NoError(t, err)
	shared.Status = crypto.ShareAccepted
	require.NoError(t, f.client.SharePass(ctx, aliceToken, "alice", "1", "bob", shared))

	bobToken, _ := f.login(t, "bob", bob)
	list, err := f.client.SendAll(ctx, bobToken, "bob")
	require.NoError(t, err)
	require.Len(t, list.Shared, 1)
	rec := list.Shared[0]
	assert.Equal(t, "alice", rec.Owner)
	assert.Equal(t, crypto.SharePending, rec.Shared.Status, "server resets status on share")

	require.NoError(t, f.client.AcceptShare(ctx, bobToken, "bob", rec.ID))
	list, err = f.client.SendAll(ctx, bobToken, "bob")
	require.NoError(t, err)
	assert.Equal(t, crypto.ShareAccepted, list.Shared[0].Shared.Status)

	require.NoError(t, f.client.RejectShare(ctx, bobToken, "bob", rec.ID))
	list, err = f.client.SendAll(ctx, bobToken, "bob")
	require.NoError(t, err)
	assert.Equal(t, crypto.ShareRejected, list.Shared[0].Shared.Status)

	err = f.client.AcceptShare(ctx, bobToken, "bob", "nope")
	assert.ErrorIs(t, err, apierrors.ErrCredentialNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, ss := f.login(t, "alice", f.keys)

	env, err := crypto.SealOwned(&codec.Credential{Password: "old", Username: "u"}, f.keys.KEMSecretKey, ss)
	require.NoError(t, err)
	id, err := f.client.CreatePass(ctx, token, "alice", env)
	require.NoError(t, err)

	env, err = crypto.SealOwned(&codec.Credential{Password: "new", Username: "u"}, f.keys.KEMSecretKey, ss)
	require.NoError(t, err)
	require.NoError(t, f.client.UpdatePass(ctx, token, "alice", id, env))

	list, err := f.client.SendAll(ctx, token, "alice")
	require.NoError(t, err)
	got, err := crypto.OpenOwned(&list.Passwords[0].Envelope, f.keys.KEMSecretKey, ss)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Password)

	require.NoError(t, f.client.DeletePass(ctx, token, "alice", id))
	assert.Equal(t, 0, f.server.RecordCount("alice"))
	assert.ErrorIs(t, f.client.DeletePass(ctx, token, "alice", id), apierrors.ErrCredentialNotFound)
}

func TestFailNextAndRequests(t *testing.T) {
	f := newFixture(t)
	f.server.FailNext("challenge", http.StatusServiceUnavailable)

	_, err := f.client.Challenge(context.Background(), "alice")
	assert.ErrorIs(t, err, apierrors.ErrTransportFailure)

	_, err = f.client.Challenge(context.Background(), "alice")
	assert.NoError(t, err)
	assert.Equal(t, 2, f.server.Requests())
}

func TestCreate_RejectsWrongSession(t *testing.T) {
	f := newFixture(t)
	token, _ := f.login(t, "alice", f.keys)

	wrong := bytes.Repeat([]byte{7}, crypto.MLKEMSharedKeySize)
	env, err := crypto.SealOwned(&codec.Credential{Password: "p"}, f.keys.KEMSecretKey, wrong)
	require.NoError(t, err)

	_, err = f.client.CreatePass(context.Background(), token, "alice", env)
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	provider, err := metrics.NewProvider()
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	recorder, err := metrics.New(provider.MeterProvider(), "skap_server")
	require.NoError(t, err)

	srv := New(WithRecorder(recorder), WithMetricsHandler(provider.Handler()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/challenge/nobody")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), `operation="/challenge/:uid"`)
	assert.NotContains(t, body.String(), "nobody")
	assert.Equal(t, 1, srv.Requests(), "metrics scrapes are not counted")
}
