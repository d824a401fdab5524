package eth64

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru"
)

// ErrBlockNotFound is returned by ResolveBlockHeight when the origin is
// cleanly known not to exist locally (as opposed to some other lookup
// failure). Callers distinguish this from other errors: a not-found origin
// yields an empty reply, while any other error falls back to re-querying by
// the origin's own hash per spec §4.6.
var ErrBlockNotFound = errors.New("eth64: block not found")

// DataProvider is the chain backend this package plumbs requests to. It
// never executes a transaction or validates a header; it only answers "what
// do you have" questions so the server can serve GetBlockHeaders and
// GetBlockBodies and build outbound Status/NewBlock messages.
type DataProvider interface {
	// GetStatusData returns the StatusMessage to advertise, or nil if no
	// chain is pinned locally yet.
	GetStatusData() *StatusMessage

	// ResolveBlockHeight maps a HashOrNumber origin to a concrete block
	// number. It returns ErrBlockNotFound if the origin is cleanly known
	// not to exist; any other error indicates the lookup itself failed
	// (e.g. backend unavailable) and is distinct from not-found.
	ResolveBlockHeight(origin HashOrNumber) (number uint64, err error)

	// GetBlockHeader returns the RLP-encoded header identified by origin,
	// or ok=false if it is not known locally.
	GetBlockHeader(origin HashOrNumber) (header rlp.RawValue, ok bool)

	// GetBlockBodies returns one RLP-encoded body per entry in hashes, in
	// the same order and with the same length as hashes. A hash that is
	// not known locally is represented by a nil entry at that position,
	// rather than being omitted, so callers can always re-associate a
	// result with the hash that produced it.
	GetBlockBodies(hashes []common.Hash) []rlp.RawValue
}

// cacheSize bounds the header/body LRUs placed in front of a DataProvider.
const cacheSize = 4096

// cachingDataProvider decorates a DataProvider with small LRU caches for
// header and body lookups, so that re-serving the same recent range to
// several peers does not repeatedly hit the chain backend.
type cachingDataProvider struct {
	inner   DataProvider
	headers *lru.Cache
	bodies  *lru.Cache
}

// NewCachingDataProvider wraps inner with bounded header and body caches.
func NewCachingDataProvider(inner DataProvider) DataProvider {
	headers, _ := lru.New(cacheSize)
	bodies, _ := lru.New(cacheSize)
	return &cachingDataProvider{inner: inner, headers: headers, bodies: bodies}
}

func (c *cachingDataProvider) GetStatusData() *StatusMessage {
	return c.inner.GetStatusData()
}

func (c *cachingDataProvider) ResolveBlockHeight(origin HashOrNumber) (uint64, error) {
	return c.inner.ResolveBlockHeight(origin)
}

func (c *cachingDataProvider) GetBlockHeader(origin HashOrNumber) (rlp.RawValue, bool) {
	if v, ok := c.headers.Get(origin); ok {
		return v.(rlp.RawValue), true
	}
	header, ok := c.inner.GetBlockHeader(origin)
	if !ok {
		return nil, false
	}
	c.headers.Add(origin, header)
	return header, true
}

func (c *cachingDataProvider) GetBlockBodies(hashes []common.Hash) []rlp.RawValue {
	out := make([]rlp.RawValue, len(hashes))
	var miss []common.Hash
	missIdx := make([]int, 0, len(hashes))
	for i, h := range hashes {
		if v, ok := c.bodies.Get(h); ok {
			out[i] = v.(rlp.RawValue)
			continue
		}
		miss = append(miss, h)
		missIdx = append(missIdx, i)
	}
	if len(miss) == 0 {
		return out
	}
	resolved := c.inner.GetBlockBodies(miss)
	for i, h := range miss {
		if i >= len(resolved) || resolved[i] == nil {
			continue
		}
		out[missIdx[i]] = resolved[i]
		c.bodies.Add(h, resolved[i])
	}
	return out
}
