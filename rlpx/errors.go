package rlpx

import "errors"

var (
	// ErrNoSharedCapabilities is returned by Handshake when the local and
	// remote capability sets share nothing after negotiation. Handshake has
	// already sent Disconnect(DisconnectUselessPeer) on a best-effort basis;
	// the caller still closes the transport.
	ErrNoSharedCapabilities = errors.New("rlpx: no shared capabilities with peer")

	// ErrPeerDisconnected is returned once the session's disconnect latch
	// has been set, either because the peer sent Disconnect or because the
	// local side initiated one.
	ErrPeerDisconnected = errors.New("rlpx: peer session disconnected")

	// ErrReservedMessageID is returned when a frame arrives carrying a
	// control id (0x04-0x0f) this package does not define.
	ErrReservedMessageID = errors.New("rlpx: received undefined reserved message id")

	// ErrUnknownCapability describes a send on a capability that was not
	// part of the negotiated shared set. PeerStream.Send does not return
	// it: such a send is dropped silently and Send returns nil.
	ErrUnknownCapability = errors.New("rlpx: capability not negotiated with this peer")

	// ErrMessageIDOutOfRange describes a send whose subprotocol-local id
	// does not fit within the capability's reserved id range.
	// PeerStream.Send does not return it: such a send is dropped silently
	// and Send returns nil.
	ErrMessageIDOutOfRange = errors.New("rlpx: message id out of range for capability")
)

// ProtocolBreachError wraps an underlying decode failure that the RLPx base
// protocol treats as cause for immediate disconnect with
// DisconnectProtocolError, rather than a recoverable condition.
type ProtocolBreachError struct {
	Err error
}

func (e *ProtocolBreachError) Error() string {
	return "rlpx: protocol breach: " + e.Err.Error()
}

func (e *ProtocolBreachError) Unwrap() error { return e.Err }
