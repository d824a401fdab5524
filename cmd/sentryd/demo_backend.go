package main

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/forkid"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ethsentry/sentry/eth64"
)

// demoBackend is a minimal, entirely in-memory DataProvider and Control. A
// real deployment supplies a backend fronting an actual chain database and
// mempool; chain storage and execution are explicitly out of scope here,
// so this stands in for wiring and manual testing via the HTTP control
// surface's /control/inbound endpoint.
type demoBackend struct {
	mu      sync.RWMutex
	status  *eth64.StatusMessage
	genesis common.Hash
}

func newDemoBackend(networkID uint64, genesis common.Hash) *demoBackend {
	return &demoBackend{
		status: &eth64.StatusMessage{
			ProtocolVersion: eth64.Version,
			NetworkID:       networkID,
			Genesis:         genesis,
			Head:            genesis,
		},
		genesis: genesis,
	}
}

func (b *demoBackend) GetStatusData() *eth64.StatusMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := *b.status
	return &s
}

func (b *demoBackend) ResolveBlockHeight(origin eth64.HashOrNumber) (uint64, error) {
	if origin.Hash == b.genesis || origin.Hash == (common.Hash{}) {
		return 0, nil
	}
	return 0, eth64.ErrBlockNotFound
}

func (b *demoBackend) GetBlockHeader(eth64.HashOrNumber) (rlp.RawValue, bool) {
	return nil, false
}

func (b *demoBackend) GetBlockBodies(hashes []common.Hash) []rlp.RawValue {
	return make([]rlp.RawValue, len(hashes))
}

func (b *demoBackend) GetStatus() (*eth64.StatusMessage, error) {
	return b.GetStatusData(), nil
}

func (b *demoBackend) ForwardInboundMessage(msg eth64.InboundMessage) {
	// A real control sink would hand this to a sync manager or mempool.
	// The demo backend has nowhere to route it, so the message is
	// discarded.
}

func acceptAnyForkID(forkid.ID) error { return nil }
