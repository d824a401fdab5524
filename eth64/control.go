package eth64

// InboundMessage is a subprotocol message forwarded to the external control
// sink verbatim, without being decoded any further than the message id.
// BlockHeaders, BlockBodies, NewBlock and NewBlockHashes all flow through
// this path; interpreting the payload (e.g. updating a BlockTracker from a
// NewBlockHashes announcement) is the control sink's job, not this
// package's.
type InboundMessage struct {
	Peer    PeerID
	ID      uint64
	Payload []byte
}

// Control is the external collaborator this package forwards gossip to and
// asks for status on the refresh loop. It typically fronts a chain sync
// manager or mempool that lives outside this module's scope.
type Control interface {
	// ForwardInboundMessage hands off one verbatim subprotocol message.
	// Any error the sink encounters is its own business; it is never
	// surfaced back to the peer.
	ForwardInboundMessage(msg InboundMessage)

	// GetStatus returns the status to advertise to peers. An error here
	// causes the status refresh loop to fall back to the DataProvider.
	GetStatus() (*StatusMessage, error)
}
