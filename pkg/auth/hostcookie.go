// Package auth implements the two independent authorities of the service:
// the device-local host cookie giving mutation rights over one queue, and
// OAuth-derived user sessions with hash-stored tokens and one-shot
// exchange handoffs.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

// HostCookieName is the cookie carrying device-level host authority.
const HostCookieName = "queue_host_auth"

// HostAuthHeader carries the same token for native clients and
// cross-origin flows where cookies don't travel.
const HostAuthHeader = "x-host-auth"

// HostToken mints the host authority value for a queue:
// sessionId.base64url(HMAC-SHA256(secret, sessionId)).
func HostToken(secret, sessionID string) string {
	return sessionID + "." + hostMAC(secret, sessionID)
}

// VerifyHostToken checks a presented token against the queue it claims.
// The MAC compare is constant time; the sessionId match is part of the
// verification, not a shortcut around it.
func VerifyHostToken(secret, token, sessionID string) bool {
	dot := strings.LastIndexByte(token, '.')
	if dot < 0 {
		return false
	}
	claimed, mac := token[:dot], token[dot+1:]

	want := hostMAC(secret, claimed)
	macOK := subtle.ConstantTimeCompare([]byte(mac), []byte(want)) == 1
	idOK := subtle.ConstantTimeCompare([]byte(claimed), []byte(sessionID)) == 1
	return macOK && idOK
}

// NewHostCookie wraps a host token in its transport cookie.
func NewHostCookie(token string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     HostCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func hostMAC(secret, sessionID string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(sessionID))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
