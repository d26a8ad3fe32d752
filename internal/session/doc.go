// Package session coordinates the pieces of a running session: the protocol
// client, the auth state store, the lifecycle registry, and the webhook
// pipeline.
//
// The Manager runs one event-loop goroutine per session. All store writes
// for a session happen on its loop, which keeps them in submission order;
// webhook deliveries fan out to their own goroutines and may complete out
// of order.
package session
