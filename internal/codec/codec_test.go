package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func testKeys(withSession bool) KeyMaterial {
	k := KeyMaterial{
		KEMPublicKey:       filled(KEMPublicKeySize, 1),
		KEMSecretKey:       filled(KEMSecretKeySize, 2),
		SignaturePublicKey: filled(SignaturePublicKeySize, 3),
		SignatureSecretKey: filled(SignatureSecretKeySize, 4),
	}
	if withSession {
		k.SessionSecret = filled(SessionSecretSize, 5)
	}
	return k
}

func testAccount(t *testing.T, email string, withUser, withSession bool) *Account {
	t.Helper()
	keys := testKeys(withSession)
	id := Identity{
		Email:              email,
		KEMPublicKey:       keys.KEMPublicKey,
		SignaturePublicKey: keys.SignaturePublicKey,
	}
	if withUser {
		u := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
		id.UserID = &u
	}
	return &Account{Keys: keys, Identity: id}
}

func TestCredential_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cred Credential
	}{
		{"required only", Credential{Password: "p", Username: "u"}},
		{"empty strings", Credential{Password: "", Username: "", AppID: Opt("")}},
		{"url only", Credential{Password: "p", Username: "u", URL: Opt("https://x")}},
		{"all fields", Credential{
			Password:    "hunter2",
			Username:    "alice@example.com",
			AppID:       Opt("com.example.app"),
			Description: Opt("work account ✓"),
			URL:         Opt("https://example.com/login"),
			OTP:         Opt("otpauth://totp/x?secret=JBSWY3DPEHPK3PXP"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCredential(EncodeCredential(&tt.cred))
			require.NoError(t, err)
			assert.True(t, tt.cred.Equal(got), "got %+v", got)
		})
	}
}

func TestCredential_FieldOrder(t *testing.T) {
	data := EncodeCredential(&Credential{Password: "p", Username: "u", URL: Opt("x")})

	want := []byte{}
	want = binary.LittleEndian.AppendUint64(want, 1)
	want = append(want, 'p')
	want = append(want, 0) // appId absent
	want = binary.LittleEndian.AppendUint64(want, 1)
	want = append(want, 'u')
	want = append(want, 0) // description absent
	want = append(want, 1)
	want = binary.LittleEndian.AppendUint64(want, 1)
	want = append(want, 'x')
	want = append(want, 0) // otp absent

	assert.Equal(t, want, data)
}

func TestCredential_TruncationNeverPanics(t *testing.T) {
	data := EncodeCredential(&Credential{
		Password:    "password",
		Username:    "username",
		Description: Opt("desc"),
		OTP:         Opt("otp"),
	})

	for n := 0; n < len(data); n++ {
		got, err := DecodeCredential(data[:n])
		require.Error(t, err, "prefix %d", n)
		assert.Nil(t, got)
		assert.True(t, errors.Is(err, ErrMalformedData) || errors.Is(err, ErrEndOfStream), "prefix %d: %v", n, err)
	}
}

func TestCredential_BadPresenceByte(t *testing.T) {
	data := EncodeCredential(&Credential{Password: "p", Username: "u"})
	// The appId presence byte follows the 9-byte password field.
	data[9] = 2

	_, err := DecodeCredential(data)
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestCredential_LengthOverrun(t *testing.T) {
	data := EncodeCredential(&Credential{Password: "p", Username: "u"})
	binary.LittleEndian.PutUint64(data[:8], 1<<40)

	_, err := DecodeCredential(data)
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestCredential_Equal(t *testing.T) {
	a := &Credential{Password: "p", Username: "u", URL: Opt("https://x")}
	b := &Credential{Password: "p", Username: "u", URL: Opt("https://x")}
	assert.True(t, a.Equal(b))

	b.URL = nil
	assert.False(t, a.Equal(b))

	b.URL = Opt("https://y")
	assert.False(t, a.Equal(b))

	var nilCred *Credential
	assert.True(t, nilCred.Equal(nil))
	assert.False(t, a.Equal(nil))
}

func TestAccount_RoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		withUser    bool
		withSession bool
	}{
		{"bare", false, false},
		{"with user id", true, false},
		{"with session secret", false, true},
		{"full", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := testAccount(t, "alice@example.com", tt.withUser, tt.withSession)
			data, err := EncodeAccount(acct)
			require.NoError(t, err)

			for _, mode := range []Mode{Lenient, Strict} {
				got, err := DecodeAccountMode(data, mode)
				require.NoError(t, err)
				assert.Equal(t, acct, got)
			}
		})
	}
}

func TestAccount_FieldSizes(t *testing.T) {
	acct := testAccount(t, "a", false, false)
	data, err := EncodeAccount(acct)
	require.NoError(t, err)

	got, err := DecodeAccount(data)
	require.NoError(t, err)
	assert.Len(t, got.Keys.KEMPublicKey, 1568)
	assert.Len(t, got.Keys.KEMSecretKey, 3168)
	assert.Len(t, got.Keys.SignaturePublicKey, 2592)
	assert.Len(t, got.Keys.SignatureSecretKey, 4896)
	assert.Nil(t, got.Keys.SessionSecret)
	assert.Nil(t, got.Identity.UserID)
}

func TestAccount_SizeBounds(t *testing.T) {
	for _, n := range []int{0, 1, 3, MaxAccountFileSize + 1} {
		_, err := DecodeAccount(make([]byte, n))
		assert.ErrorIs(t, err, ErrSizeViolation, "size %d", n)
	}

	// Four zero bytes pass the size gate and fail structurally.
	_, err := DecodeAccount(make([]byte, 4))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSizeViolation)
}

func TestAccount_TruncationAborts(t *testing.T) {
	acct := testAccount(t, "bob@example.com", true, true)
	data, err := EncodeAccount(acct)
	require.NoError(t, err)

	// Every boundary plus a stride through the blobs.
	for n := MinAccountFileSize; n < len(data); n += 97 {
		got, err := DecodeAccount(data[:n])
		require.Error(t, err, "prefix %d", n)
		assert.Nil(t, got)
		assert.True(t, errors.Is(err, ErrMalformedData) || errors.Is(err, ErrEndOfStream), "prefix %d: %v", n, err)
	}
	_, err = DecodeAccount(data[:len(data)-1])
	assert.Error(t, err)
}

func TestAccount_LenientIgnoresLengthFields(t *testing.T) {
	acct := testAccount(t, "c", false, false)
	data, err := EncodeAccount(acct)
	require.NoError(t, err)

	// Zero out the first key blob length field, as older writers did.
	binary.LittleEndian.PutUint64(data[:8], 0)

	got, err := DecodeAccount(data)
	require.NoError(t, err)
	assert.Equal(t, acct.Keys.KEMPublicKey, got.Keys.KEMPublicKey)

	_, err = DecodeAccountStrict(data)
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestAccount_NegativeLengthRejected(t *testing.T) {
	acct := testAccount(t, "c", false, false)
	data, err := EncodeAccount(acct)
	require.NoError(t, err)
	binary.LittleEndian.PutUint64(data[:8], 1<<63)

	_, err = DecodeAccount(data)
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestAccount_StrictRejectsTrailingBytes(t *testing.T) {
	acct := testAccount(t, "c", false, false)
	data, err := EncodeAccount(acct)
	require.NoError(t, err)
	data = append(data, 0xff)

	_, err = DecodeAccount(data)
	assert.NoError(t, err)

	_, err = DecodeAccountStrict(data)
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestEncodeAccount_RejectsWrongSizes(t *testing.T) {
	acct := testAccount(t, "c", false, false)
	acct.Keys.SignatureSecretKey = acct.Keys.SignatureSecretKey[:4895]

	_, err := EncodeAccount(acct)
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}

func TestKeyMaterialAndIdentity_RoundTrip(t *testing.T) {
	acct := testAccount(t, "d@example.com", true, true)

	kdata, err := EncodeKeyMaterial(&acct.Keys)
	require.NoError(t, err)
	keys, err := DecodeKeyMaterial(kdata)
	require.NoError(t, err)
	assert.Equal(t, acct.Keys, *keys)

	idata, err := EncodeIdentity(&acct.Identity)
	require.NoError(t, err)
	id, err := DecodeIdentity(idata)
	require.NoError(t, err)
	assert.Equal(t, acct.Identity, *id)
}

func TestBytes_JSON(t *testing.T) {
	type wrapper struct {
		B Bytes `json:"b"`
	}

	data, err := json.Marshal(wrapper{B: Bytes{0, 1, 255}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":[0,1,255]}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal(data, &w))
	assert.Equal(t, Bytes{0, 1, 255}, w.B)

	require.NoError(t, json.Unmarshal([]byte(`{"b":"AAH/"}`), &w))
	assert.Equal(t, Bytes{0, 1, 255}, w.B)

	require.NoError(t, json.Unmarshal([]byte(`{"b":null}`), &w))
	assert.Nil(t, w.B)

	assert.Error(t, json.Unmarshal([]byte(`{"b":[256]}`), &w))
	assert.Error(t, json.Unmarshal([]byte(`{"b":[-1]}`), &w))
}
