package rlpx

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
)

// PeerStream is one negotiated RLPx session: Hello has already been
// exchanged and a non-empty shared capability set established. Next decodes
// and routes inbound frames; Send multiplexes outbound subprotocol messages
// onto the negotiated id partition. Ping/Pong and Disconnect are handled
// internally and never surfaced through Next, except that a received
// Disconnect ends the stream.
type PeerStream struct {
	transport Transport
	local     HelloInfo
	Remote    RemoteHello
	shared    Capabilities

	mu           sync.Mutex
	disconnected bool
}

// Handshake performs the Hello exchange described in spec §4.2: send our
// Hello, read the peer's, and compute the shared capability set. If nothing
// is shared, a Disconnect(DisconnectUselessPeer) is sent on a best-effort
// basis and ErrNoSharedCapabilities is returned; the caller should still
// close the transport.
func Handshake(transport Transport, local HelloInfo) (*PeerStream, error) {
	body, err := encodeHello(local)
	if err != nil {
		return nil, fmt.Errorf("rlpx: encoding local hello: %w", err)
	}
	frame, err := EncodeFrame(HelloID, body)
	if err != nil {
		return nil, fmt.Errorf("rlpx: framing local hello: %w", err)
	}
	if err := transport.WriteFrame(frame); err != nil {
		return nil, err
	}

	raw, err := transport.ReadFrame()
	if err != nil {
		return nil, err
	}
	msg, err := DecodeFrame(raw)
	if err != nil {
		return nil, &ProtocolBreachError{Err: err}
	}
	if msg.ID != HelloID {
		return nil, &ProtocolBreachError{Err: fmt.Errorf("expected hello (id 0), got id %d", msg.ID)}
	}
	remote, err := decodeHello(msg.Payload)
	if err != nil {
		return nil, &ProtocolBreachError{Err: err}
	}

	shared := sharedCapabilities(local.Caps, remote.Caps)
	p := &PeerStream{transport: transport, local: local, Remote: remote, shared: shared}

	if len(shared) == 0 {
		log.Debug("rlpx: no shared capabilities, disconnecting", "remote", remote.ClientID)
		_ = p.sendControl(DisconnectID, DisconnectUselessPeer)
		p.setDisconnected()
		return nil, ErrNoSharedCapabilities
	}
	log.Debug("rlpx: hello exchanged", "remote", remote.ClientID, "shared", len(shared))
	return p, nil
}

// SharedCapabilities returns the negotiated capability set, sorted by name,
// as computed during Handshake.
func (p *PeerStream) SharedCapabilities() Capabilities {
	return p.shared
}

// Next blocks until the next subprotocol message arrives, or returns an
// error once the session ends (peer Disconnect, transport error, or a
// protocol breach). Ping is answered with Pong transparently; Pong is
// discarded; neither is ever returned to the caller.
func (p *PeerStream) Next() (PeerMessage, error) {
	for {
		if p.IsDisconnected() {
			return PeerMessage{}, ErrPeerDisconnected
		}

		raw, err := p.transport.ReadFrame()
		if err != nil {
			p.setDisconnected()
			return PeerMessage{}, err
		}
		msg, err := DecodeFrame(raw)
		if err != nil {
			p.setDisconnected()
			return PeerMessage{}, &ProtocolBreachError{Err: err}
		}

		switch {
		case msg.ID == HelloID:
			p.setDisconnected()
			return PeerMessage{}, &ProtocolBreachError{Err: errors.New("received a second hello")}

		case msg.ID == DisconnectID:
			reason, derr := decodeDisconnect(msg.Payload)
			p.setDisconnected()
			if derr != nil {
				return PeerMessage{}, &ProtocolBreachError{Err: derr}
			}
			log.Debug("rlpx: peer sent disconnect", "reason", reason)
			return PeerMessage{}, ErrPeerDisconnected

		case msg.ID == PingID:
			if err := p.sendControl(PongID, nil); err != nil {
				p.setDisconnected()
				return PeerMessage{}, err
			}
			continue

		case msg.ID == PongID:
			continue

		case msg.ID < reservedFloor:
			p.setDisconnected()
			return PeerMessage{}, ErrReservedMessageID

		default:
			cap, localID, ok := p.shared.resolve(msg.ID)
			if !ok {
				p.setDisconnected()
				return PeerMessage{}, &ProtocolBreachError{Err: fmt.Errorf("message id %d outside every negotiated capability range", msg.ID)}
			}
			return PeerMessage{Capability: cap.Name, ID: localID, Payload: msg.Payload}, nil
		}
	}
}

// Send encodes and writes one subprotocol message. Sending on a capability
// that was not negotiated, or with an id outside that capability's
// reserved range, is silently dropped rather than returned as an error,
// matching the permissive behavior of a plain outbound sink: a caller
// racing ahead of a capability's availability should not crash the whole
// session over it.
func (p *PeerStream) Send(msg OutboundMessage) error {
	if p.IsDisconnected() {
		return ErrPeerDisconnected
	}
	cap, ok := p.shared.find(msg.Capability)
	if !ok {
		log.Debug("rlpx: dropping send on unnegotiated capability", "cap", msg.Capability)
		return nil
	}
	if msg.ID >= cap.Length {
		log.Debug("rlpx: dropping send with out-of-range id", "cap", msg.Capability, "id", msg.ID, "length", cap.Length)
		return nil
	}
	wireID := p.shared.wireID(msg.Capability, msg.ID)
	return p.writeFrame(wireID, msg.Payload)
}

// Ping writes a Ping control message.
func (p *PeerStream) Ping() error {
	if p.IsDisconnected() {
		return ErrPeerDisconnected
	}
	return p.sendControl(PingID, nil)
}

// Disconnect sends Disconnect(reason) and latches the session closed. It is
// idempotent: calling it again after the latch is set is a no-op.
func (p *PeerStream) Disconnect(reason DisconnectReason) error {
	if p.setDisconnected() {
		return nil
	}
	return p.sendControl(DisconnectID, reason)
}

// Close tears down the underlying transport without sending a Disconnect
// message first.
func (p *PeerStream) Close() error {
	p.setDisconnected()
	return p.transport.Close()
}

// emptyListPayload is the RLP encoding of an empty list (0xc0), the
// uncompressed body of a Ping or Pong message.
func emptyListPayload() ([]byte, error) {
	return rlp.EncodeToBytes([]interface{}{})
}

func (p *PeerStream) sendControl(id uint64, reason interface{}) error {
	var body []byte
	var err error
	switch id {
	case DisconnectID:
		body, err = encodeDisconnect(reason.(DisconnectReason))
	default:
		body, err = emptyListPayload()
	}
	if err != nil {
		return err
	}
	return p.writeFrame(id, body)
}

func (p *PeerStream) writeFrame(id uint64, payload []byte) error {
	frame, err := EncodeFrame(id, payload)
	if err != nil {
		return err
	}
	return p.transport.WriteFrame(frame)
}

// IsDisconnected reports whether the session's disconnect latch has been
// set, by either direction.
func (p *PeerStream) IsDisconnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnected
}

// setDisconnected sets the latch and reports whether it was already set.
func (p *PeerStream) setDisconnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	was := p.disconnected
	p.disconnected = true
	return was
}
