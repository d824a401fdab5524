package eth64

import (
	"sync"

	mapset "github.com/deckarep/golang-set"
)

// PeerID identifies a connected peer for tracking and control-plane
// purposes. It is typically a hex node id, but this package treats it as an
// opaque comparable key.
type PeerID string

// BlockTracker maintains a bijective index between peers and the highest
// block number each has announced: blockByPeer gives O(1) lookup of a
// peer's height, peersByBlock gives O(1) lookup of every peer at exactly a
// given height (PeersWithMinBlock scans every bucket to find the peers at
// or above a height). Every mutation keeps both sides consistent,
// and a height bucket that drops to zero peers is pruned immediately so the
// map never accumulates empty entries.
type BlockTracker struct {
	mu           sync.RWMutex
	blockByPeer  map[PeerID]uint64
	peersByBlock map[uint64]mapset.Set
}

// NewBlockTracker returns an empty tracker.
func NewBlockTracker() *BlockTracker {
	return &BlockTracker{
		blockByPeer:  make(map[PeerID]uint64),
		peersByBlock: make(map[uint64]mapset.Set),
	}
}

// SetBlockNumber records that peer has announced number as its latest known
// block, replacing any previous entry for that peer.
func (t *BlockTracker) SetBlockNumber(peer PeerID, number uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.blockByPeer[peer]; ok {
		if old == number {
			return
		}
		t.removeFromBucketLocked(old, peer)
	}
	t.blockByPeer[peer] = number
	bucket, ok := t.peersByBlock[number]
	if !ok {
		bucket = mapset.NewSet()
		t.peersByBlock[number] = bucket
	}
	bucket.Add(peer)
}

// RemovePeer drops every trace of peer from the tracker.
func (t *BlockTracker) RemovePeer(peer PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	number, ok := t.blockByPeer[peer]
	if !ok {
		return
	}
	delete(t.blockByPeer, peer)
	t.removeFromBucketLocked(number, peer)
}

func (t *BlockTracker) removeFromBucketLocked(number uint64, peer PeerID) {
	bucket, ok := t.peersByBlock[number]
	if !ok {
		return
	}
	bucket.Remove(peer)
	if bucket.Cardinality() == 0 {
		delete(t.peersByBlock, number)
	}
}

// BlockNumber returns the last block number peer announced, if any.
func (t *BlockTracker) BlockNumber(peer PeerID) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.blockByPeer[peer]
	return n, ok
}

// PeersWithMinBlock returns every tracked peer whose announced block number
// is at least min, in no particular order.
func (t *BlockTracker) PeersWithMinBlock(min uint64) []PeerID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []PeerID
	for number, bucket := range t.peersByBlock {
		if number < min {
			continue
		}
		for _, p := range bucket.ToSlice() {
			out = append(out, p.(PeerID))
		}
	}
	return out
}

// Len returns the number of peers currently tracked.
func (t *BlockTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.blockByPeer)
}
