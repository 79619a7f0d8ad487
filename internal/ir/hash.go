package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainResolutionContext = "graphres/resolution-context/v1"
	DomainComponent         = "graphres/component/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContextKey computes the cache key of one resolution context.
// The same inputs always produce the same key, across processes and builds.
func ContextKey(inputs Object) (string, error) {
	canonical, err := MarshalCanonical(inputs)
	if err != nil {
		return "", fmt.Errorf("ContextKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainResolutionContext, canonical), nil
}

// ComponentFingerprint hashes the published shape of a target component so
// that a cached entry goes stale when the component's metadata changes.
func ComponentFingerprint(shape Object) (string, error) {
	canonical, err := MarshalCanonical(shape)
	if err != nil {
		return "", fmt.Errorf("ComponentFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainComponent, canonical), nil
}

// EntryDir derives the directory identifier of a cache entry from its key.
// Entries fan out over 256 two-hex-digit buckets.
func EntryDir(key string) string {
	if len(key) < 2 {
		return key
	}
	return key[:2] + "/" + key
}

// MustContextKey is like ContextKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustContextKey(inputs Object) string {
	key, err := ContextKey(inputs)
	if err != nil {
		panic(err)
	}
	return key
}
