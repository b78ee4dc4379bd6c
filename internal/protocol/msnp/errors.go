package msnp

import "fmt"

// Numeric error codes surfaced to clients. Every failed transaction emits
// exactly one code line carrying the originating transaction id.
const (
	ErrCodeInvalidParameter = 201 // malformed argument
	ErrCodeInvalidIdentity  = 205 // identity does not parse or exist
	ErrCodeAlreadyLoggedIn  = 207 // pre-displacement duplicate login
	ErrCodeInvalidAddressee = 208 // addressee identity invalid
	ErrCodeInternal         = 500 // internal server error
	ErrCodeNotExpected      = 715 // command not valid in current state
	ErrCodeAuthFailed       = 911 // authentication failure
	ErrCodeNotAllowed       = 913 // feature disabled
	ErrCodeBadHashFormat    = 928 // credential hash not a valid digest
)

// ErrorLine renders the single-line wire form of a failed transaction.
func ErrorLine(code int, tid uint32) string {
	return fmt.Sprintf("%d %d\r\n", code, tid)
}
