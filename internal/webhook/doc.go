// Package webhook turns raw inbound protocol events into normalized
// webhook messages and delivers them to the configured consumer endpoint.
//
// # Pipeline
//
// Normalize suppresses own-echoes and broadcast traffic, extracts the best
// available text in a fixed precedence order (plain conversation, extended
// text, media captions, contact name, location comment), and resolves media
// references through the injected MediaExtractor. Normalization never
// fails: a message that cannot be enriched goes out with null fields
// instead of being dropped.
//
// # Delivery
//
// The Dispatcher posts JSON payloads with a signed bearer token and retries
// transport failures and 5xx responses with linear backoff. 4xx responses
// fail fast; the consumer rejected the payload and a retry cannot fix that.
package webhook
