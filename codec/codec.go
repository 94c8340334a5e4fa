// Package codec provides the serialization layer for conversation
// payloads. The core treats every payload as opaque bytes (out of scope
// per the design); codec exists purely for the sample conversations in
// package conversation to turn those bytes into typed event data.
package codec

// Codec serializes and deserializes conversation payloads. Implementing
// this interface allows adding new payload formats without touching the
// framing or dispatch layers.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSON is the default codec: human-readable and easy to debug against a
// real server, at the cost of being slower than a packed binary format.
var JSON Codec = jsonCodec{}
