package msnp

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNonce(t *testing.T) {
	n1 := NewNonce()
	n2 := NewNonce()
	assert.Len(t, n1, 32)
	assert.NotEqual(t, n1, n2)
	assert.True(t, ValidHashFormat(n1), "nonce should be printable hex")
}

func TestChallengeResponse(t *testing.T) {
	// Spelled out against the definition: MD5(MD5("p") + "N"), hex at each step.
	inner := md5.Sum([]byte("p"))
	outer := md5.Sum([]byte(hex.EncodeToString(inner[:]) + "N"))
	want := hex.EncodeToString(outer[:])

	assert.Equal(t, want, ChallengeResponse("p", "N"))
}

func TestVerifyResponse(t *testing.T) {
	nonce := NewNonce()
	hash := ChallengeResponse("secret", nonce)

	assert.True(t, VerifyResponse("secret", nonce, hash))
	assert.True(t, VerifyResponse("secret", nonce, strings.ToUpper(hash)), "comparison is case-insensitive")
	assert.False(t, VerifyResponse("wrong", nonce, hash))
	assert.False(t, VerifyResponse("secret", "othernonce", hash))
}

func TestValidHashFormat(t *testing.T) {
	assert.True(t, ValidHashFormat("d41d8cd98f00b204e9800998ecf8427e"))
	assert.True(t, ValidHashFormat("D41D8CD98F00B204E9800998ECF8427E"))
	assert.False(t, ValidHashFormat("short"))
	assert.False(t, ValidHashFormat("g41d8cd98f00b204e9800998ecf8427e"))
	assert.False(t, ValidHashFormat(""))
}

func TestIdentityHelpers(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeIdentity("  A@X.COM "))

	assert.True(t, ValidIdentity("alice@example.com"))
	assert.False(t, ValidIdentity("alice"))
	assert.False(t, ValidIdentity("@example.com"))
	assert.False(t, ValidIdentity("alice@"))
	assert.False(t, ValidIdentity("a@b@c"))
	assert.False(t, ValidIdentity("a b@c.com"))
}
