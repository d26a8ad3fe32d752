// Package httpapi exposes session lifecycle operations over HTTP: list,
// start, inspect, fetch the pairing challenge, and delete, plus delivery
// history when the ledger is enabled. Routes other than the health probe
// can be gated behind HS256 bearer tokens.
package httpapi
