package cache

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/codec"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
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

type sample struct {
	Token   string      `json:"token"`
	Raw     []byte      `json:"raw"`
	Numeric codec.Bytes `json:"numeric"`
}

func newTestCache(t *testing.T, opts ...Option) (*Cache, *store.Memory, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	s := store.NewMemory()
	c := New(s, append([]Option{WithClock(clock.Now)}, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c, s, clock
}

func TestEnsureKey_Stable(t *testing.T) {
	c, s, clock := newTestCache(t)

	k1, err := c.EnsureKey()
	require.NoError(t, err)
	assert.Len(t, k1, 32)

	clock.Advance(30 * time.Minute)
	k2, err := c.EnsureKey()
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	_, err = s.Get(keyName)
	assert.NoError(t, err, "key should be persisted")
}

func TestEnsureKey_LoadsPersistedKey(t *testing.T) {
	c, s, clock := newTestCache(t)
	k1, err := c.EnsureKey()
	require.NoError(t, err)

	other := New(s, WithClock(clock.Now))
	defer other.Close()

	k2, err := other.EnsureKey()
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestEnsureKey_ExpiredKeyReplaced(t *testing.T) {
	var events []string
	c, _, clock := newTestCache(t, WithObserver(func(e string) { events = append(events, e) }))

	k1, err := c.EnsureKey()
	require.NoError(t, err)

	clock.Advance(61 * time.Minute)
	k2, err := c.EnsureKey()
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, []string{EventRekey, EventRekey}, events)
}

func TestEnsureKey_MalformedPersistedKey(t *testing.T) {
	c, s, _ := newTestCache(t)
	require.NoError(t, s.Put(keyName, []byte(`{"bytes":[1,2,3],"ts":0}`)))

	key, err := c.EnsureKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestSetGet_RoundTrip(t *testing.T) {
	c, _, _ := newTestCache(t)

	in := sample{Token: "t", Raw: []byte{0, 1, 255}, Numeric: codec.Bytes{9, 8, 7}}
	require.NoError(t, c.Set("sample", in))

	var out sample
	found, err := c.Get("sample", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestGet_Missing(t *testing.T) {
	c, _, _ := newTestCache(t)

	var out sample
	found, err := c.Get("nothing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGet_TTL(t *testing.T) {
	c, s, clock := newTestCache(t)
	require.NoError(t, c.Set("v", "hello"))

	clock.Advance(59 * time.Minute)
	var out string
	found, err := c.Get("v", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", out)

	clock.Advance(2 * time.Minute)
	found, err = c.Get("v", &out)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.Get(entryPrefix + "v")
	assert.ErrorIs(t, err, store.ErrNotFound, "expired entry should be deleted")
}

func TestGet_SelfHealsCorruption(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, data []byte) []byte
	}{
		{"flipped ciphertext byte", func(t *testing.T, data []byte) []byte {
			var e entry
			require.NoError(t, json.Unmarshal(data, &e))
			e.CT[0] ^= 0x01
			out, err := json.Marshal(e)
			require.NoError(t, err)
			return out
		}},
		{"flipped iv byte", func(t *testing.T, data []byte) []byte {
			var e entry
			require.NoError(t, json.Unmarshal(data, &e))
			e.IV[0] ^= 0x01
			out, err := json.Marshal(e)
			require.NoError(t, err)
			return out
		}},
		{"truncated by one byte", func(t *testing.T, data []byte) []byte {
			return data[:len(data)-1]
		}},
		{"wrong version", func(t *testing.T, data []byte) []byte {
			var e entry
			require.NoError(t, json.Unmarshal(data, &e))
			e.Version = 2
			out, err := json.Marshal(e)
			require.NoError(t, err)
			return out
		}},
		{"not json", func(t *testing.T, data []byte) []byte {
			return []byte("garbage")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var heals int
			c, s, _ := newTestCache(t, WithObserver(func(e string) {
				if e == EventHeal {
					heals++
				}
			}))
			require.NoError(t, c.Set("v", "secret"))

			data, err := s.Get(entryPrefix + "v")
			require.NoError(t, err)
			require.NoError(t, s.Put(entryPrefix+"v", tt.corrupt(t, data)))

			var out string
			found, err := c.Get("v", &out)
			assert.NoError(t, err)
			assert.False(t, found)
			assert.Equal(t, 1, heals)

			_, err = s.Get(entryPrefix + "v")
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestGet_UnmarshalFailureHeals(t *testing.T) {
	c, s, _ := newTestCache(t)
	require.NoError(t, c.Set("v", "a string"))

	var out sample
	found, err := c.Get("v", &out)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.Get(entryPrefix + "v")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWipe_EntriesBecomeAbsent(t *testing.T) {
	c, s, _ := newTestCache(t)
	require.NoError(t, c.Set("v", "x"))

	require.NoError(t, c.Wipe())
	_, err := s.Get(keyName)
	assert.ErrorIs(t, err, store.ErrNotFound)

	var out string
	found, err := c.Get("v", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWipe_NewKeyAfterWipe(t *testing.T) {
	c, _, _ := newTestCache(t)
	k1, err := c.EnsureKey()
	require.NoError(t, err)

	require.NoError(t, c.Wipe())
	k2, err := c.EnsureKey()
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestRemove(t *testing.T) {
	c, _, _ := newTestCache(t)
	require.NoError(t, c.Set("v", "x"))
	require.NoError(t, c.Remove("v"))

	var out string
	found, err := c.Get("v", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLock_WipesImmediately(t *testing.T) {
	c, s, _ := newTestCache(t)
	_, err := c.EnsureKey()
	require.NoError(t, err)
	require.NoError(t, c.Start())

	require.NoError(t, c.Lock())
	assert.True(t, c.KeyCreated().IsZero())
	_, err = s.Get(keyName)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStart_ExpiredPersistedKeyIsPurged(t *testing.T) {
	c, s, clock := newTestCache(t)
	_, err := c.EnsureKey()
	require.NoError(t, err)

	clock.Advance(61 * time.Minute)
	require.NoError(t, c.Start())

	_, err = s.Get(keyName)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStart_TimerWipesKey(t *testing.T) {
	c := New(store.NewMemory(), WithTTL(50*time.Millisecond))
	defer c.Close()

	_, err := c.EnsureKey()
	require.NoError(t, err)
	require.NoError(t, c.Start())

	require.Eventually(t, func() bool {
		return c.KeyCreated().IsZero()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSet_GeneratedKeyArmsTimer(t *testing.T) {
	s := store.NewMemory()
	c := New(s, WithTTL(50*time.Millisecond))
	defer c.Close()

	require.NoError(t, c.Set("v", "x"))
	require.False(t, c.KeyCreated().IsZero())

	require.Eventually(t, func() bool {
		return c.KeyCreated().IsZero()
	}, 2*time.Second, 10*time.Millisecond)
	_, err := s.Get(keyName)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWipe_RegeneratedKeyGetsNewTimer(t *testing.T) {
	c := New(store.NewMemory(), WithTTL(50*time.Millisecond))
	defer c.Close()

	require.NoError(t, c.Start())
	_, err := c.EnsureKey()
	require.NoError(t, err)
	require.NoError(t, c.Wipe())
	_, err = c.EnsureKey()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.KeyCreated().IsZero()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIdle_ReschedulesWithoutReplacingKey(t *testing.T) {
	c, _, clock := newTestCache(t)
	k1, err := c.EnsureKey()
	require.NoError(t, err)
	require.NoError(t, c.Start())

	clock.Advance(10 * time.Minute)
	require.NoError(t, c.Idle())

	k2, err := c.EnsureKey()
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestClose(t *testing.T) {
	c, s, _ := newTestCache(t)
	require.NoError(t, c.Set("v", "x"))
	require.NoError(t, c.Start())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "Close is idempotent")

	assert.ErrorIs(t, c.Set("v", "y"), ErrClosed)
	_, err := c.Get("v", new(string))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Lock(), ErrClosed)

	_, err = s.Get(keyName)
	assert.NoError(t, err, "Close keeps the persisted key")
}

func TestConcurrentEnsureKey(t *testing.T) {
	c, _, _ := newTestCache(t)

	var wg sync.WaitGroup
	keys := make([][]byte, 16)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := c.EnsureKey()
			assert.NoError(t, err)
			keys[i] = k
		}(i)
	}
	wg.Wait()

	for _, k := range keys[1:] {
		assert.Equal(t, keys[0], k)
	}
}
