package rlpx

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
)

// maxUncompressedPayload is the 16 MiB cap on a single message's decompressed
// size. It is enforced against the length snappy's block format declares in
// its header, before any decompression buffer is allocated.
const maxUncompressedPayload = 16 * 1024 * 1024

// FrameTooLargeError is returned by DecodeFrame when the peer's declared
// uncompressed length exceeds maxUncompressedPayload.
type FrameTooLargeError struct {
	Declared int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("rlpx: frame declares %d bytes uncompressed, exceeds %d byte cap", e.Declared, maxUncompressedPayload)
}

// Message is a decoded frame: a message id and its (already decompressed)
// payload.
type Message struct {
	ID      uint64
	Payload []byte
}

// EncodeFrame serializes id and payload as RLP(id) || snappy(payload), the
// full wire payload of one RLPx frame above the header/MAC/padding layer
// that Transport owns.
func EncodeFrame(id uint64, payload []byte) ([]byte, error) {
	idBytes, err := rlp.EncodeToBytes(id)
	if err != nil {
		return nil, err
	}
	compressed := snappy.Encode(nil, payload)
	out := make([]byte, 0, len(idBytes)+len(compressed))
	out = append(out, idBytes...)
	out = append(out, compressed...)
	return out, nil
}

// DecodeFrame splits a raw frame payload into its message id and decompressed
// data, rejecting any message whose declared uncompressed size exceeds
// maxUncompressedPayload before allocating a decompression buffer.
func DecodeFrame(raw []byte) (Message, error) {
	var id uint64
	rest, err := rlpSplitUint(raw, &id)
	if err != nil {
		return Message{}, fmt.Errorf("rlpx: malformed message id: %w", err)
	}

	declared, err := snappy.DecodedLen(rest)
	if err != nil {
		return Message{}, fmt.Errorf("rlpx: malformed snappy block: %w", err)
	}
	if declared > maxUncompressedPayload {
		return Message{}, &FrameTooLargeError{Declared: declared}
	}

	payload, err := snappy.Decode(nil, rest)
	if err != nil {
		return Message{}, fmt.Errorf("rlpx: snappy decompression failed: %w", err)
	}
	return Message{ID: id, Payload: payload}, nil
}

// rlpSplitUint decodes a single RLP uint from the front of raw and returns
// the remaining bytes untouched, so the snappy block that follows is never
// copied or re-parsed as RLP.
func rlpSplitUint(raw []byte, id *uint64) ([]byte, error) {
	kind, content, rest, err := rlp.Split(raw)
	if err != nil {
		return nil, err
	}
	if kind == rlp.List {
		return nil, fmt.Errorf("message id must not be a list")
	}
	var v uint64
	for _, b := range content {
		v = v<<8 | uint64(b)
	}
	*id = v
	return rest, nil
}
