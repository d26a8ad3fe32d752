// Package protocol connects the gateway to the chat-network bridge process.
//
// The bridge owns the actual wire protocol: handshake, encryption, media
// decryption. This package dials its per-session websocket streams,
// translates the JSON frames it emits into session events, and resolves
// media references through its HTTP endpoint.
package protocol
