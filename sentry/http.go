package sentry

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/ethsentry/sentry/eth64"
	"github.com/ethsentry/sentry/rlpx"
)

func peerMessageFrom(req inboundInjectionRequest) rlpx.PeerMessage {
	return rlpx.PeerMessage{
		Capability: rlpx.CapabilityName(req.Capability),
		ID:         req.ID,
		Payload:    req.Payload,
	}
}

// HTTPControlServer is the control-plane surface a driving process (a sync
// manager, a test harness, an operator's curl command) uses to inspect and
// steer this sentry: peer listing over plain HTTP, and an event feed over
// websocket.
type HTTPControlServer struct {
	manager     *Manager
	broadcaster *Broadcaster
	handler     http.Handler
}

// NewHTTPControlServer builds the router and middleware chain for manager.
// CORS is wide open by default since this surface is meant to be reached
// from a localhost control process, not a browser origin that needs
// restricting.
func NewHTTPControlServer(manager *Manager) *HTTPControlServer {
	s := &HTTPControlServer{manager: manager, broadcaster: manager.Broadcaster()}

	router := httprouter.New()
	router.GET("/peers", s.handlePeers)
	router.POST("/control/inbound", s.handleInboundInjection)
	router.GET("/peers/events", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.ServeEvents(w, r)
	})

	s.handler = cors.Default().Handler(router)
	return s
}

// ServeHTTP implements http.Handler, so callers can mount this directly on
// an http.Server or httptest.Server.
func (s *HTTPControlServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type peerSummary struct {
	ID    string `json:"id"`
	Valid bool   `json:"valid"`
}

// handlePeers lists every registered peer and whether it has completed a
// valid Status handshake.
func (s *HTTPControlServer) handlePeers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	server := s.manager.Server()
	valid := make(map[eth64.PeerID]bool)
	for _, id := range server.ConnectedPeers() {
		valid[id] = true
	}

	out := make([]peerSummary, 0, len(server.AllPeers()))
	for _, id := range server.AllPeers() {
		out = append(out, peerSummary{ID: string(id), Valid: valid[id]})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Warn("sentry: encoding /peers response failed", "err", err)
	}
}

type inboundInjectionRequest struct {
	Peer       string `json:"peer"`
	Capability string `json:"capability"`
	ID         uint64 `json:"id"`
	Payload    []byte `json:"payload"`
}

// handleInboundInjection lets a control process hand the capability server
// a message as though it had arrived on the wire from Peer. This mirrors the
// original implementation's DummyControl harness, generalized into a real
// control surface rather than a test stub.
func (s *HTTPControlServer) handleInboundInjection(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req inboundInjectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := s.manager.Server().HandleInbound(eth64.PeerID(req.Peer), peerMessageFrom(req))
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
