package eth64

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ethsentry/sentry/rlpx"
)

func outbound(id uint64, v interface{}) (rlpx.OutboundMessage, error) {
	body, err := rlp.EncodeToBytes(v)
	if err != nil {
		return rlpx.OutboundMessage{}, err
	}
	return rlpx.OutboundMessage{Capability: Name, ID: id, Payload: body}, nil
}

// EncodeStatus builds the outbound Status message.
func EncodeStatus(s StatusMessage) (rlpx.OutboundMessage, error) {
	return outbound(StatusMsg, &s)
}

// DecodeStatus parses an inbound Status message payload.
func DecodeStatus(payload []byte) (StatusMessage, error) {
	var s StatusMessage
	err := rlp.DecodeBytes(payload, &s)
	return s, err
}

// EncodeGetBlockHeaders builds the outbound GetBlockHeaders request.
func EncodeGetBlockHeaders(r GetBlockHeadersRequest) (rlpx.OutboundMessage, error) {
	return outbound(GetBlockHeadersMsg, &r)
}

// DecodeGetBlockHeaders parses an inbound GetBlockHeaders request.
func DecodeGetBlockHeaders(payload []byte) (GetBlockHeadersRequest, error) {
	var r GetBlockHeadersRequest
	err := rlp.DecodeBytes(payload, &r)
	return r, err
}

// EncodeBlockHeaders builds the outbound BlockHeaders response.
func EncodeBlockHeaders(r BlockHeadersResponse) (rlpx.OutboundMessage, error) {
	return outbound(BlockHeadersMsg, &r)
}

// DecodeBlockHeaders parses an inbound BlockHeaders response.
func DecodeBlockHeaders(payload []byte) (BlockHeadersResponse, error) {
	var r BlockHeadersResponse
	err := rlp.DecodeBytes(payload, &r)
	return r, err
}

// EncodeGetBlockBodies builds the outbound GetBlockBodies request.
func EncodeGetBlockBodies(r GetBlockBodiesRequest) (rlpx.OutboundMessage, error) {
	return outbound(GetBlockBodiesMsg, &r)
}

// DecodeGetBlockBodies parses an inbound GetBlockBodies request.
func DecodeGetBlockBodies(payload []byte) (GetBlockBodiesRequest, error) {
	var r GetBlockBodiesRequest
	err := rlp.DecodeBytes(payload, &r)
	return r, err
}

// EncodeBlockBodies builds the outbound BlockBodies response.
func EncodeBlockBodies(r BlockBodiesResponse) (rlpx.OutboundMessage, error) {
	return outbound(BlockBodiesMsg, &r)
}

// DecodeBlockBodies parses an inbound BlockBodies response.
func DecodeBlockBodies(payload []byte) (BlockBodiesResponse, error) {
	var r BlockBodiesResponse
	err := rlp.DecodeBytes(payload, &r)
	return r, err
}

// EncodeNewBlockHashes builds the outbound NewBlockHashes announcement.
func EncodeNewBlockHashes(m NewBlockHashesMessage) (rlpx.OutboundMessage, error) {
	return outbound(NewBlockHashesMsg, &m)
}

// DecodeNewBlockHashes parses an inbound NewBlockHashes announcement.
func DecodeNewBlockHashes(payload []byte) (NewBlockHashesMessage, error) {
	var m NewBlockHashesMessage
	err := rlp.DecodeBytes(payload, &m)
	return m, err
}

// EncodeTransactions builds the outbound Transactions message.
func EncodeTransactions(m TransactionsMessage) (rlpx.OutboundMessage, error) {
	return outbound(TransactionsMsg, &m)
}

// DecodeTransactions parses an inbound Transactions message.
func DecodeTransactions(payload []byte) (TransactionsMessage, error) {
	var m TransactionsMessage
	err := rlp.DecodeBytes(payload, &m)
	return m, err
}

// EncodeNewBlock builds the outbound NewBlock announcement.
func EncodeNewBlock(m NewBlockMessage) (rlpx.OutboundMessage, error) {
	return outbound(NewBlockMsg, &m)
}

// DecodeNewBlock parses an inbound NewBlock announcement.
func DecodeNewBlock(payload []byte) (NewBlockMessage, error) {
	var m NewBlockMessage
	err := rlp.DecodeBytes(payload, &m)
	return m, err
}
