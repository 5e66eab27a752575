package skap

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/fakeserver"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

type testEnv struct {
	server *fakeserver.Server
	url    string
	client *Client
	clock  *fakeClock
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	return newWrappedTestEnv(t, nil, opts...)
}

// newWrappedTestEnv serves the fake server through wrap, when set.
func newWrappedTestEnv(t *testing.T, wrap func(http.Handler) http.Handler, opts ...Option) *testEnv {
	t.Helper()
	srv := fakeserver.New()
	h := srv.Handler()
	if wrap != nil {
		h = wrap(h)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	clock := newFakeClock()
	client, err := New(append([]Option{WithBaseURL(ts.URL), WithClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return &testEnv{server: srv, url: ts.URL, client: client, clock: clock}
}

// newAccount generates an account and registers it with the server.
func (e *testEnv) newAccount(t *testing.T, email string) *Account {
	t.Helper()
	uid := uuid.New()
	acct, err := GenerateAccount(email, &uid)
	if err != nil {
		t.Fatalf("GenerateAccount() error = %v", err)
	}
	id := acct.Identity()
	e.server.Register(acct.ID(), id.SignaturePublicKey, id.KEMPublicKey)
	return acct
}
