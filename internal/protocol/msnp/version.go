package msnp

import (
	"strconv"
	"strings"
)

// DefaultSupportedVersions is the server's dialect set in preference order,
// greatest first. MSNP2 through MSNP21 are recognized; the default
// configuration advertises the subset the notification core fully speaks.
var DefaultSupportedVersions = []string{
	"MSNP21", "MSNP20", "MSNP19", "MSNP18", "MSNP15",
	"MSNP12", "MSNP11", "MSNP10", "MSNP9", "MSNP8",
}

// ValidDialect reports whether tag names a protocol revision this server
// recognizes, i.e. MSNP<n> with n in [2, 21].
func ValidDialect(tag string) bool {
	n, ok := dialectNumber(tag)
	return ok && n >= 2 && n <= 21
}

func dialectNumber(tag string) (int, bool) {
	rest, found := strings.CutPrefix(tag, "MSNP")
	if !found || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Negotiate selects the dialect for a connection: the first entry of the
// server's ordered supported set that the client offered. Returns ok=false
// when the intersection is empty, in which case the server answers
// "VER t 0" and closes.
func Negotiate(supported, offered []string) (string, bool) {
	offer := make(map[string]bool, len(offered))
	for _, v := range offered {
		offer[v] = true
	}
	for _, v := range supported {
		if offer[v] {
			return v, true
		}
	}
	return "", false
}
