package sentry

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/forkid"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethsentry/sentry/eth64"
	"github.com/ethsentry/sentry/rlpx"
)

type chanTransport struct {
	in  <-chan []byte
	out chan<- []byte
}

func newTransportPair() (*chanTransport, *chanTransport) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	return &chanTransport{in: ba, out: ab}, &chanTransport{in: ab, out: ba}
}

func (t *chanTransport) ReadFrame() ([]byte, error) {
	f, ok := <-t.in
	if !ok {
		return nil, io.EOF
	}
	return f, nil
}
func (t *chanTransport) WriteFrame(p []byte) error { t.out <- p; return nil }
func (t *chanTransport) Close() error              { return nil }

var errNoControlStatus = errors.New("no control-plane status source in test")

type noopControl struct{}

func (noopControl) ForwardInboundMessage(eth64.InboundMessage) {}
func (noopControl) GetStatus() (*eth64.StatusMessage, error) {
	return nil, errNoControlStatus
}

type noopProvider struct{}

func (noopProvider) GetStatusData() *eth64.StatusMessage {
	return &eth64.StatusMessage{ProtocolVersion: eth64.Version, NetworkID: 1}
}
func (noopProvider) ResolveBlockHeight(eth64.HashOrNumber) (uint64, error)  { return 0, nil }
func (noopProvider) GetBlockHeader(eth64.HashOrNumber) (rlp.RawValue, bool) { return nil, false }
func (noopProvider) GetBlockBodies(hashes []common.Hash) []rlp.RawValue {
	return make([]rlp.RawValue, len(hashes))
}

func testHello(name string) rlpx.HelloInfo {
	return rlpx.HelloInfo{ClientID: name, NodeID: []byte(name), Caps: rlpx.Capabilities{eth64.Capability()}}
}

func TestManagerAddPeerRegistersAfterHandshake(t *testing.T) {
	server := eth64.NewCapabilityServer(noopProvider{}, noopControl{}, 1, common.Hash{}, func(uint64) forkid.Filter {
		return func(forkid.ID) error { return nil }
	})
	server.RefreshStatusNow()
	manager := NewManager(server, testHello("sentry-under-test"))

	ta, tb := newTransportPair()
	remotePeer := make(chan *rlpx.PeerStream, 1)
	go func() {
		p, _ := rlpx.Handshake(tb, testHello("remote"))
		remotePeer <- p
	}()

	require.NoError(t, manager.AddPeer("remote", ta))
	require.NotNil(t, <-remotePeer, "remote handshake failed")

	assert.Contains(t, server.AllPeers(), eth64.PeerID("remote"))
}

func TestHTTPControlServerListsPeers(t *testing.T) {
	server := eth64.NewCapabilityServer(noopProvider{}, noopControl{}, 1, common.Hash{}, func(uint64) forkid.Filter {
		return func(forkid.ID) error { return nil }
	})
	server.OnPeerConnect("abc", nil)
	manager := NewManager(server, testHello("sentry-under-test"))

	srv := NewHTTPControlServer(manager)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/peers")
	require.NoError(t, err)
	defer resp.Body.Close()

	var peers []peerSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&peers))
	require.Len(t, peers, 1)
	assert.Equal(t, "abc", peers[0].ID)
	assert.False(t, peers[0].Valid)
}
