// Package rlpx implements the post-handshake RLPx peer session: Hello
// capability negotiation, message-id multiplexing across negotiated
// subprotocols, and the reserved Disconnect/Ping/Pong control messages.
//
// The ECIES handshake and the encrypted framing beneath it are not part of
// this package. Callers supply a Transport that already speaks an
// authenticated, length-prefixed duplex byte stream.
package rlpx

// Transport is the opaque, already-authenticated duplex frame stream that
// PeerStream is built on top of. An implementation typically wraps an ECIES
// session and the low-level RLPx frame header (MAC, padding, chunking); none
// of that is this package's concern.
type Transport interface {
	// ReadFrame blocks until the next frame payload is available and
	// returns it. The returned slice is the frame's full wire payload,
	// i.e. RLP(message_id) ‖ snappy_raw(data), not yet decoded.
	ReadFrame() ([]byte, error)

	// WriteFrame writes one frame payload, as produced by EncodeFrame.
	WriteFrame(payload []byte) error

	// Close tears down the underlying connection.
	Close() error
}
