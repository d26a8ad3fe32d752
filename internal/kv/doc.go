// Package kv defines the key-value backend contract the auth state store
// persists through, plus its Redis and in-memory implementations.
//
// The interface covers plain string values with TTLs and hashes with
// per-field access. Implementations translate their driver errors into the
// package sentinels ErrNotFound and ErrUnavailable so callers can tell an
// absent key from a backend outage.
package kv
