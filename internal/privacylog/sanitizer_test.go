package privacylog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(WrapHandler(slog.NewJSONHandler(buf, nil)))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestHandler_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf)

	logger.Info("auth",
		slog.String("session_token", "tok-123"),
		slog.String("password", "hunter2"),
		slog.String("OTP", "otpauth://x"),
		slog.String("route", "verify"),
	)

	line := decodeLine(t, &buf)
	assert.Equal(t, redactedValue, line["session_token"])
	assert.Equal(t, redactedValue, line["password"])
	assert.Equal(t, redactedValue, line["OTP"])
	assert.Equal(t, "verify", line["route"])
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestHandler_FingerprintsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf)

	logger.Info("fetch", slog.String("user_id", "u-1"), slog.Int("record_id", 42))

	line := decodeLine(t, &buf)
	assert.NotContains(t, line, "user_id")
	assert.Equal(t, FingerprintID("u-1"), line["user_id_fp"])
	assert.Equal(t, FingerprintID("42"), line["record_id_fp"])
	assert.NotContains(t, buf.String(), "u-1")
}

func TestHandler_WithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf).With(slog.String("secret", "s"))

	logger.Info("nested", slog.Group("req", slog.String("token", "t"), slog.String("method", "GET")))

	line := decodeLine(t, &buf)
	assert.Equal(t, redactedValue, line["secret"])
	req, ok := line["req"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, redactedValue, req["token"])
	assert.Equal(t, "GET", req["method"])
}

func TestFingerprintID(t *testing.T) {
	assert.Empty(t, FingerprintID("  "))
	assert.Equal(t, FingerprintID("abc"), FingerprintID(" abc "))
	assert.NotEqual(t, FingerprintID("abc"), FingerprintID("abd"))
	assert.Regexp(t, `^fp_[0-9a-f]{16}$`, FingerprintID("abc"))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil))
	assert.Nil(t, WrapHandler(nil))

	h := WrapHandler(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, h, WrapHandler(h), "wrapping twice is a no-op")
}
