// Package sentry wires a negotiated rlpx.PeerStream to the eth64 capability
// server: one goroutine pumps inbound frames into the state machine, another
// drains the peer's Mailbox and writes outbound frames, and an HTTP/WS
// control surface exposes peer introspection and inbound message injection
// to an out-of-process controller.
package sentry

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethsentry/sentry/eth64"
	"github.com/ethsentry/sentry/rlpx"
)

// Manager owns every live peer session and the shared eth64.CapabilityServer
// behind them. It is the Go-idiomatic analogue of the Swarm driving a set of
// per-peer I/O tasks.
type Manager struct {
	server *eth64.CapabilityServer
	local  rlpx.HelloInfo

	mu      sync.RWMutex
	streams map[eth64.PeerID]*rlpx.PeerStream

	broadcaster *Broadcaster
}

// NewManager builds a Manager around an already constructed capability
// server and the local Hello identity to present to every peer.
func NewManager(server *eth64.CapabilityServer, local rlpx.HelloInfo) *Manager {
	return &Manager{
		server:      server,
		local:       local,
		streams:     make(map[eth64.PeerID]*rlpx.PeerStream),
		broadcaster: NewBroadcaster(),
	}
}

// AddPeer negotiates Hello over transport and, on success, launches the
// read and write pumps for the session. It returns once negotiation
// completes (either a usable session was registered, or the peer was
// rejected); the pumps continue running in the background afterward.
func (m *Manager) AddPeer(id eth64.PeerID, transport rlpx.Transport) error {
	stream, err := rlpx.Handshake(transport, m.local)
	if err != nil {
		log.Debug("sentry: handshake failed", "peer", id, "err", err)
		return err
	}

	mailbox, err := m.server.OnPeerConnect(id, stream)
	if err != nil {
		stream.Close()
		return fmt.Errorf("sentry: building prelude for %s: %w", id, err)
	}

	m.mu.Lock()
	m.streams[id] = stream
	m.mu.Unlock()

	go m.writePump(id, stream, mailbox)
	go m.readPump(id, stream)
	return nil
}

// readPump decodes inbound frames until the session ends, handing every
// subprotocol message to the capability server and disconnecting the peer
// if it responds with a protocol-level error.
func (m *Manager) readPump(id eth64.PeerID, stream *rlpx.PeerStream) {
	defer m.removePeer(id, stream)
	for {
		msg, err := stream.Next()
		if err != nil {
			log.Debug("sentry: peer session ended", "peer", id, "err", err)
			return
		}
		if err := m.server.HandleInbound(id, msg); err != nil {
			reason := eth64.DisconnectReasonFor(err)
			log.Debug("sentry: disconnecting peer for admission failure", "peer", id, "err", err, "reason", reason)
			stream.Disconnect(reason)
			return
		}
	}
}

// writePump drains the peer's mailbox (prelude, then further queued items)
// and writes each one to the transport, stopping on the first write error.
// A closed mailbox is reported to the peer as Disconnect(DisconnectRequested).
func (m *Manager) writePump(id eth64.PeerID, stream *rlpx.PeerStream, mailbox *eth64.Mailbox) {
	for {
		item, ok := mailbox.Next()
		if !ok {
			stream.Disconnect(rlpx.DisconnectRequested)
			return
		}
		switch {
		case item.Disconnect != nil:
			stream.Disconnect(*item.Disconnect)
			return
		case item.Message != nil:
			if err := stream.Send(*item.Message); err != nil {
				log.Debug("sentry: write pump send failed", "peer", id, "err", err)
				return
			}
			m.broadcaster.Publish(OutboundEvent{Peer: string(id), Capability: string(item.Message.Capability), ID: item.Message.ID})
		}
	}
}

func (m *Manager) removePeer(id eth64.PeerID, stream *rlpx.PeerStream) {
	stream.Close()
	m.server.OnPeerDisconnect(id)
	m.mu.Lock()
	delete(m.streams, id)
	m.mu.Unlock()
}

// Send enqueues an outbound subprotocol message for delivery to peer,
// blocking while the peer's single mailbox slot is occupied. It returns
// false if the peer is unknown or its mailbox has been closed.
func (m *Manager) Send(peer eth64.PeerID, msg rlpx.OutboundMessage) bool {
	m.mu.RLock()
	_, ok := m.streams[peer]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return m.server.SendTo(peer, msg)
}

// Broadcaster returns the shared outbound-event broadcaster used by the
// websocket event stream.
func (m *Manager) Broadcaster() *Broadcaster {
	return m.broadcaster
}

// Server returns the underlying capability server, for the HTTP control
// surface's peer introspection endpoints.
func (m *Manager) Server() *eth64.CapabilityServer {
	return m.server
}
