// Package dedupe provides inbound message deduplication using a time-based
// cache to prevent forwarding the same message twice within a configurable
// window.
package dedupe
