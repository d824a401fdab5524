// Package eth64 implements the eth/64 capability: the Status handshake,
// fork-compatibility gating, block header/body request handling, and gossip
// forwarding. It sits on top of the negotiated rlpx.PeerStream and never
// executes a block or validates a header itself - that belongs to a chain
// backend supplied through the DataProvider interface.
package eth64

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/forkid"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/ethsentry/sentry/rlpx"
)

// Name and Version identify this capability in the Hello message; Length is
// the count of message ids it reserves starting at rlpx's base offset. Only
// ids 0-7 are defined below; the remaining ids 8-16 are reserved for
// future eth subprotocol messages and must still be carved out of the id
// space by convention so a later version can add messages without shifting
// every other capability's base id.
const (
	Name    rlpx.CapabilityName = "eth"
	Version                     = 64
	Length                      = 17
)

// Capability returns the rlpx.CapabilityInfo for eth/64, for use in a
// node's advertised Hello capability list.
func Capability() rlpx.CapabilityInfo {
	return rlpx.CapabilityInfo{Name: Name, Version: Version, Length: Length}
}

// Subprotocol-local message ids, 0-7 within eth/64's reserved range.
const (
	StatusMsg = iota
	NewBlockHashesMsg
	TransactionsMsg
	GetBlockHeadersMsg
	BlockHeadersMsg
	GetBlockBodiesMsg
	BlockBodiesMsg
	NewBlockMsg
)

// StatusMessage is the handshake message exchanged as the very first
// subprotocol message on an eth/64 connection, before anything else is
// allowed to cross the wire for this capability.
type StatusMessage struct {
	ProtocolVersion uint32
	NetworkID       uint64
	TD              *uint256.Int
	Head            common.Hash
	Genesis         common.Hash
	ForkID          forkid.ID
}

// HashOrNumber is the wire union used to identify a chain origin: either a
// 32-byte hash or a scalar number, distinguished on the wire by the length
// of the RLP string (32 bytes means hash).
type HashOrNumber struct {
	Hash   common.Hash
	Number uint64
}

// EncodeRLP implements rlp.Encoder.
func (hn *HashOrNumber) EncodeRLP(w io.Writer) error {
	if hn.Hash == (common.Hash{}) {
		return rlp.Encode(w, hn.Number)
	}
	if hn.Number != 0 {
		return fmt.Errorf("eth64: both origin hash and number set")
	}
	return rlp.Encode(w, hn.Hash)
}

// DecodeRLP implements rlp.Decoder.
func (hn *HashOrNumber) DecodeRLP(s *rlp.Stream) error {
	_, size, err := s.Kind()
	switch {
	case err != nil:
		return err
	case size == 32:
		hn.Number = 0
		return s.Decode(&hn.Hash)
	default:
		hn.Hash = common.Hash{}
		return s.Decode(&hn.Number)
	}
}

// GetBlockHeadersRequest asks the peer for a run of headers starting at
// Origin, Amount long, skipping Skip headers between each kept one, walking
// toward lower numbers if Reverse is set.
type GetBlockHeadersRequest struct {
	Origin  HashOrNumber
	Amount  uint64
	Skip    uint64
	Reverse bool
}

// BlockHeadersResponse carries raw RLP-encoded headers exactly as supplied
// by the DataProvider; this layer never decodes them.
type BlockHeadersResponse struct {
	Headers []rlp.RawValue
}

// GetBlockBodiesRequest asks for the bodies belonging to Hashes, in order.
type GetBlockBodiesRequest struct {
	Hashes []common.Hash
}

// BlockBodiesResponse carries raw RLP-encoded bodies in the order of the
// request's Hashes. A hash the provider does not have is simply omitted,
// same as upstream eth, so positions line up with the request only when
// every body was found.
type BlockBodiesResponse struct {
	Bodies []rlp.RawValue
}

// NewBlockHashItem announces one block by hash and number, without its
// content.
type NewBlockHashItem struct {
	Hash   common.Hash
	Number uint64
}

// NewBlockHashesMessage is unsolicited gossip announcing new chain heads.
type NewBlockHashesMessage struct {
	Items []NewBlockHashItem
}

// TransactionsMessage carries raw RLP-encoded transactions; this layer
// forwards them without decoding or validating.
type TransactionsMessage struct {
	Transactions []rlp.RawValue
}

// NewBlockMessage announces a full block with its total difficulty.
type NewBlockMessage struct {
	Block rlp.RawValue
	TD    *uint256.Int
}
