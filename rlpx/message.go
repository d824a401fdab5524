package rlpx

// PeerMessage is what PeerStream.Next yields for every inbound subprotocol
// message. The message id has already been shifted back into the
// subprotocol's own local numbering (0, 1, 2, ... as that subprotocol
// defines them), so callers never see the wire-level 0x10+ offset.
type PeerMessage struct {
	Capability CapabilityName
	ID         uint64
	Payload    []byte
}

// OutboundMessage is one subprotocol message queued for sending. Like
// PeerMessage, ID is the subprotocol-local id; PeerStream.Send computes the
// wire id from the negotiated capability partition.
type OutboundMessage struct {
	Capability CapabilityName
	ID         uint64
	Payload    []byte
}
