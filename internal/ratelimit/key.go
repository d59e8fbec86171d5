package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ipHashLength is the number of hex characters kept from the hashed IP.
const ipHashLength = 16

// ClientKey resolves the limiter identity for a request. An authenticated
// caller id takes precedence; otherwise the source IP is hashed so raw
// addresses are never stored in the counter backend.
func ClientKey(callerID, clientIP string) string {
	if id := strings.TrimSpace(callerID); id != "" {
		return "user:" + id
	}
	ip := strings.TrimSpace(clientIP)
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return "ip:" + hex.EncodeToString(sum[:])[:ipHashLength]
}
