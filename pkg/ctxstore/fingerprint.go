package ctxstore

import (
	"crypto/sha256"
	"encoding/hex"
)

// keyPrefix namespaces fingerprint keys in the shared Redis keyspace.
const keyPrefix = "tracecore:ctx:"

// Fingerprint computes a 256-bit cryptographic hash of the full bearer
// token — the cache key is never the token itself.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}
