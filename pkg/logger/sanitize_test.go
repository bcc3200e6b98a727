package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizedEmail(t *testing.T) {
	tests := map[string]string{
		"user@example.com":     "u***@*******.com",
		"a@mail.example.co.uk": "a@****.*******.**.uk",
		"no-at-sign":           "[invalid-email]",
		"a@b@c":                "[invalid-email]",
		"bob@localhost":        "b**@localhost",
	}

	for in, want := range tests {
		assert.Equal(t, want, SanitizedEmail(in), in)
	}
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("code=abc&exp=123"))
	assert.True(t, SanitizeQueryString("Token=xyz"))
	assert.False(t, SanitizeQueryString("page=2&limit=10"))
	assert.False(t, SanitizeQueryString(""))
}

func TestRedactedAttr(t *testing.T) {
	assert.Equal(t, "[REDACTED]", RedactedAttr("url", "https://x", "production").Value.String())
	assert.Equal(t, "https://x", RedactedAttr("url", "https://x", "development").Value.String())
	assert.Equal(t, slog.KindString, RedactedAttr("url", "v", "test").Value.Kind())
}
