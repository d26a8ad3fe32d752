// Package authstore persists per-session protocol authentication state.
//
// # Data Model
//
// Each session owns two backend keys:
//
//   - auth:creds:{sessionId} — the opaque credential blob, stored as a
//     plain value with the retention TTL
//   - auth:keys:{sessionId}  — a hash of signal key material, fields named
//     {keyType}:{keyId}
//
// Key entries are either structured JSON or raw binary; both are stored in
// a tagged envelope so readers never have to guess the format:
//
//	{"t":"json","v":{...}}
//	{"t":"raw","v":"<base64>"}
//
// Untagged legacy values are still decoded on read.
//
// # Retention
//
// Every credential save refreshes the TTL on both keys, so state expires
// only after the session has been inactive for the full retention period
// (7 days by default). Expiry is the backend's job; this package never
// deletes state on its own.
//
// # Error Handling
//
// Absent state is not an error: loading an unknown session returns empty
// credentials, and key reads omit ids that are missing or undecodable.
// Backend unavailability always surfaces to the caller, who owns retry
// policy.
package authstore
