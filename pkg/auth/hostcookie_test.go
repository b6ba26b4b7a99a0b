package auth

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHostSecret = "test-secret-test-secret-test-secret"

func TestHostToken_RoundTrip(t *testing.T) {
	token := HostToken(testHostSecret, "sess-1")
	assert.True(t, strings.HasPrefix(token, "sess-1."))
	assert.True(t, VerifyHostToken(testHostSecret, token, "sess-1"))
}

func TestVerifyHostToken_TamperedMAC(t *testing.T) {
	token := HostToken(testHostSecret, "sess-1")

	// Flip the last character of the MAC portion.
	last := token[len(token)-1]
	flip := byte('A')
	if last == 'A' {
		flip = 'B'
	}
	tampered := token[:len(token)-1] + string(flip)
	assert.False(t, VerifyHostToken(testHostSecret, tampered, "sess-1"))
}

func TestVerifyHostToken_WrongQueue(t *testing.T) {
	// A valid token for one queue must not authorize another.
	token := HostToken(testHostSecret, "sess-1")
	assert.False(t, VerifyHostToken(testHostSecret, token, "sess-2"))

	// Splicing another session's id onto a valid MAC fails too.
	mac := token[strings.LastIndexByte(token, '.'):]
	assert.False(t, VerifyHostToken(testHostSecret, "sess-2"+mac, "sess-2"))
}

func TestVerifyHostToken_WrongSecret(t *testing.T) {
	token := HostToken(testHostSecret, "sess-1")
	assert.False(t, VerifyHostToken("another-secret-another-secret-xx", token, "sess-1"))
}

func TestVerifyHostToken_Malformed(t *testing.T) {
	for _, token := range []string{"", "sess-1", ".", "sess-1.", ".mac"} {
		assert.False(t, VerifyHostToken(testHostSecret, token, "sess-1"), "token %q", token)
	}
}

func TestNewHostCookie_Attributes(t *testing.T) {
	c := NewHostCookie("sess-1.mac", 24*time.Hour)
	require.Equal(t, HostCookieName, c.Name)
	assert.Equal(t, 86400, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
}
