// Package registry tracks the lifecycle state of every session the gateway
// knows about: connecting, connected, or disconnected, plus the current
// pairing challenge while one is outstanding.
//
// The registry is in-memory and synchronous. Reads return snapshots by
// value; invalid transitions are ignored rather than rejected, since stale
// protocol events arriving after a state change are routine.
package registry
