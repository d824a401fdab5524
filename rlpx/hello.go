package rlpx

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Reserved control message ids. 0x00 is Hello, sent exactly once before any
// other traffic; 0x01-0x03 are Disconnect/Ping/Pong; the rest of the
// 0x00-0x0f range is reserved for future control messages and is a protocol
// breach to receive today.
const (
	HelloID       = 0x00
	DisconnectID  = 0x01
	PingID        = 0x02
	PongID        = 0x03
	reservedFloor = 0x10
)

// baseProtocolVersion is the RLPx base protocol version this package speaks.
const baseProtocolVersion = 5

// DisconnectReason is the wire reason code carried in a Disconnect message.
// The numbering mirrors the standard RLPx reason taxonomy; it is
// reimplemented here rather than imported so that this package has no
// dependency on any particular p2p.Server/p2p.Peer implementation.
type DisconnectReason uint64

const (
	DisconnectRequested DisconnectReason = iota
	DisconnectNetworkError
	DisconnectProtocolError
	DisconnectUselessPeer
	DisconnectTooManyPeers
	DisconnectAlreadyConnected
	DisconnectIncompatibleVersion
	DisconnectInvalidIdentity
	DisconnectQuitting
	DisconnectUnexpectedIdentity
	DisconnectSelf
	DisconnectReadTimeout
	DisconnectSubprotocolError DisconnectReason = 0x10
)

var disconnectReasonNames = map[DisconnectReason]string{
	DisconnectRequested:           "disconnect requested",
	DisconnectNetworkError:        "network error",
	DisconnectProtocolError:       "breach of protocol",
	DisconnectUselessPeer:         "useless peer",
	DisconnectTooManyPeers:        "too many peers",
	DisconnectAlreadyConnected:    "already connected",
	DisconnectIncompatibleVersion: "incompatible p2p protocol version",
	DisconnectInvalidIdentity:     "invalid node identity",
	DisconnectQuitting:            "client quitting",
	DisconnectUnexpectedIdentity:  "unexpected identity",
	DisconnectSelf:                "connected to self",
	DisconnectReadTimeout:         "read timeout",
	DisconnectSubprotocolError:    "subprotocol error",
}

func (d DisconnectReason) String() string {
	if name, ok := disconnectReasonNames[d]; ok {
		return name
	}
	return fmt.Sprintf("unknown disconnect reason %d", uint64(d))
}

// disconnectPayload is the RLP shape of a Disconnect message: a one-element
// list, per the RLPx base protocol spec.
type disconnectPayload struct {
	Reason DisconnectReason
}

// helloPayload is the RLP shape of the Hello message. Fields after NodeID
// are kept as raw tail entries so that forward-compatible senders appending
// extra list items does not break decoding.
type helloPayload struct {
	Version    uint64
	ClientID   string
	Caps       []CapabilityMessage
	ListenPort uint64
	NodeID     []byte
	Rest       []rlp.RawValue `rlp:"tail"`
}

// HelloInfo is the local identity and capability set advertised in this
// node's Hello message.
type HelloInfo struct {
	ClientID   string
	ListenPort uint64
	NodeID     []byte
	Caps       Capabilities
}

func (h HelloInfo) encode() helloPayload {
	caps := make([]CapabilityMessage, len(h.Caps))
	for i, c := range h.Caps {
		caps[i] = c.message()
	}
	return helloPayload{
		Version:    baseProtocolVersion,
		ClientID:   h.ClientID,
		Caps:       caps,
		ListenPort: h.ListenPort,
		NodeID:     h.NodeID,
	}
}

// RemoteHello is what the peer told us about itself in its Hello message.
type RemoteHello struct {
	Version    uint64
	ClientID   string
	Caps       []CapabilityMessage
	ListenPort uint64
	NodeID     []byte
}

// encodeHello serializes a Hello message body (message id excluded; the
// caller is responsible for the RLP(message_id) prefix per the frame
// format).
func encodeHello(local HelloInfo) ([]byte, error) {
	return rlp.EncodeToBytes(local.encode())
}

// decodeHello parses a received Hello message body.
func decodeHello(body []byte) (RemoteHello, error) {
	var p helloPayload
	if err := rlp.DecodeBytes(body, &p); err != nil {
		return RemoteHello{}, fmt.Errorf("rlpx: malformed hello: %w", err)
	}
	return RemoteHello{
		Version:    p.Version,
		ClientID:   p.ClientID,
		Caps:       p.Caps,
		ListenPort: p.ListenPort,
		NodeID:     p.NodeID,
	}, nil
}

// encodeDisconnect serializes a Disconnect message body.
func encodeDisconnect(reason DisconnectReason) ([]byte, error) {
	return rlp.EncodeToBytes(disconnectPayload{Reason: reason})
}

// decodeDisconnect parses a received Disconnect message body. Per spec, a
// body that fails to decode as the one-element list is itself treated as a
// protocol breach, not merely an unreadable reason.
func decodeDisconnect(body []byte) (DisconnectReason, error) {
	var p disconnectPayload
	if err := rlp.DecodeBytes(body, &p); err != nil {
		return 0, fmt.Errorf("rlpx: malformed disconnect: %w", err)
	}
	return p.Reason, nil
}
