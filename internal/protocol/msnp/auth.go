package msnp

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// AuthScheme is the challenge/response scheme tag carried on USR commands.
// "AUTH" is the canonical tag; the legacy "MD5" tag is accepted as an alias
// by pre-MSNP8 clients.
const (
	AuthScheme       = "AUTH"
	AuthSchemeLegacy = "MD5"
)

// NewNonce returns a fresh 32-character printable challenge nonce.
func NewNonce() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// ChallengeResponse computes the expected hash for a credential and nonce:
// the hex MD5 of the hex MD5 of the credential, concatenated with the nonce.
// MD5 is retained for compatibility with the historical dialects only.
func ChallengeResponse(credential, nonce string) string {
	inner := md5.Sum([]byte(credential))
	outer := md5.Sum([]byte(hex.EncodeToString(inner[:]) + nonce))
	return hex.EncodeToString(outer[:])
}

// ValidHashFormat reports whether h looks like a hex MD5 digest. Responses
// failing this check are rejected with code 928 before any comparison.
func ValidHashFormat(h string) bool {
	if len(h) != 32 {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// VerifyResponse compares a client hash against the expected response for
// the stored credential and issued nonce. Comparison is case-insensitive
// and constant-time.
func VerifyResponse(credential, nonce, clientHash string) bool {
	expected := ChallengeResponse(credential, nonce)
	got := strings.ToLower(clientHash)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// NormalizeIdentity lowercases an identity for comparison and map keys.
// The as-received form is preserved separately for display.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// ValidIdentity reports whether identity is an email-shaped account name:
// a non-empty local part and domain separated by a single '@'.
func ValidIdentity(identity string) bool {
	at := strings.IndexByte(identity, '@')
	if at <= 0 || at != strings.LastIndexByte(identity, '@') {
		return false
	}
	local, domain := identity[:at], identity[at+1:]
	if local == "" || domain == "" {
		return false
	}
	return !strings.ContainsAny(identity, " \r\n\t")
}
