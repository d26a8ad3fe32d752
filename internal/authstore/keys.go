// ABOUTME: Session-bound accessor for signal key material (pre-keys, sender keys, etc.)
// ABOUTME: Entries live in one hash per session, keyed by "{keyType}:{keyId}"

package authstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chatwire/wa-gateway/internal/kv"
)

// ErrDecode is returned (wrapped) when a stored entry is neither a tagged
// envelope, valid JSON, nor valid base64. Batch reads treat such entries as
// absent rather than failing.
var ErrDecode = errors.New("undecodable key entry")

// KeyEntry is one unit of key material. Exactly one of JSON or Bytes is set:
// JSON for structured entries, Bytes for opaque binary material.
type KeyEntry struct {
	JSON  json.RawMessage
	Bytes []byte
}

// JSONEntry builds a structured entry from raw JSON.
func JSONEntry(raw json.RawMessage) KeyEntry {
	return KeyEntry{JSON: raw}
}

// BinaryEntry builds an opaque binary entry.
func BinaryEntry(b []byte) KeyEntry {
	return KeyEntry{Bytes: b}
}

// IsBinary reports whether the entry holds opaque bytes.
func (e KeyEntry) IsBinary() bool {
	return e.Bytes != nil
}

// envelope is the tagged wire form of a KeyEntry. Storing the tag removes
// the ambiguity of inferring the format from decode success, where a binary
// blob could accidentally parse as valid JSON.
type envelope struct {
	Tag   string          `json:"t"`
	Value json.RawMessage `json:"v"`
}

const (
	tagJSON = "json"
	tagRaw  = "raw"
)

// Keys reads and writes one session's key material. Obtained from
// Store.Load; never constructed directly.
type Keys struct {
	store     *Store
	sessionID string
}

// SessionID returns the session this accessor is bound to.
func (k *Keys) SessionID() string {
	return k.sessionID
}

// Get fetches entries of one key type by id. Ids that are absent, stored in
// an undecodable form, or unreadable because the backend dropped the request
// are omitted from the result; the batch itself never fails. This keeps one
// bad key from blocking protocol resumption.
func (k *Keys) Get(ctx context.Context, keyType string, ids []string) (map[string]KeyEntry, error) {
	hashKey := keysKeyPrefix + k.sessionID
	result := make(map[string]KeyEntry, len(ids))

	for _, id := range ids {
		raw, err := k.store.kv.HGet(ctx, hashKey, keyType+":"+id)
		switch {
		case errors.Is(err, kv.ErrNotFound):
			continue
		case err != nil:
			k.store.logger.Warn("key entry unavailable, omitting from batch",
				"session_id", k.sessionID,
				"key_type", keyType,
				"key_id", id,
				"error", err,
			)
			continue
		}

		entry, err := decodeEntry(raw)
		if err != nil {
			k.store.logger.Warn("dropping undecodable key entry",
				"session_id", k.sessionID,
				"key_type", keyType,
				"key_id", id,
				"error", err,
			)
			continue
		}
		result[id] = entry
	}

	return result, nil
}

// Set upserts entries grouped by key type. Writes fan out best-effort: a
// failed field does not abort the remaining writes, and the joined error of
// every individual failure is returned so the caller knows the batch was
// incomplete.
func (k *Keys) Set(ctx context.Context, entries map[string]map[string]KeyEntry) error {
	hashKey := keysKeyPrefix + k.sessionID

	var errs []error
	for keyType, byID := range entries {
		for id, entry := range byID {
			encoded, err := encodeEntry(entry)
			if err != nil {
				errs = append(errs, fmt.Errorf("encoding %s:%s: %w", keyType, id, err))
				continue
			}
			if err := k.store.kv.HSet(ctx, hashKey, keyType+":"+id, encoded); err != nil {
				errs = append(errs, fmt.Errorf("writing %s:%s: %w", keyType, id, err))
			}
		}
	}

	// Keep the hash on the same sliding retention as the credentials blob.
	if err := k.store.kv.ExpireIn(ctx, hashKey, k.store.retention); err != nil {
		k.store.logger.Warn("refreshing key hash TTL failed",
			"session_id", k.sessionID,
			"error", err,
		)
	}

	return errors.Join(errs...)
}

// encodeEntry serializes a KeyEntry into its tagged envelope form.
func encodeEntry(e KeyEntry) (string, error) {
	env := envelope{}
	if e.IsBinary() {
		env.Tag = tagRaw
		quoted, err := json.Marshal(base64.StdEncoding.EncodeToString(e.Bytes))
		if err != nil {
			return "", err
		}
		env.Value = quoted
	} else {
		if !json.Valid(e.JSON) {
			return "", fmt.Errorf("structured entry is not valid JSON")
		}
		env.Tag = tagJSON
		env.Value = e.JSON
	}

	out, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// decodeEntry parses a stored entry. Tagged envelopes are authoritative;
// anything else is a legacy entry decoded by inference: valid JSON first,
// then base64 binary. Entries that fit neither form yield ErrDecode.
func decodeEntry(raw string) (KeyEntry, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err == nil {
		switch env.Tag {
		case tagJSON:
			if len(env.Value) > 0 {
				return JSONEntry(env.Value), nil
			}
		case tagRaw:
			var b64 string
			if err := json.Unmarshal(env.Value, &b64); err == nil {
				decoded, err := base64.StdEncoding.DecodeString(b64)
				if err == nil {
					return BinaryEntry(decoded), nil
				}
			}
			return KeyEntry{}, fmt.Errorf("%w: bad raw envelope payload", ErrDecode)
		}
	}

	// Legacy entry written before the tagged envelope existed.
	if json.Valid([]byte(raw)) {
		return JSONEntry(json.RawMessage(raw)), nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return BinaryEntry(decoded), nil
	}
	return KeyEntry{}, ErrDecode
}
