package rlpx

import "sort"

// CapabilityName is the short ASCII tag a subprotocol advertises itself
// under, e.g. "eth". It is RLP-encoded as a plain byte string and is
// ordered by byte value, same as any other Go string comparison.
type CapabilityName string

// CapabilityMessage is the wire shape of one entry in Hello's capability
// list: name and version only. The message-id range a capability consumes
// (its "length") is a protocol-layer convention, not part of the wire
// message - see CapabilityInfo.
type CapabilityMessage struct {
	Name    CapabilityName
	Version uint64
}

// CapabilityID identifies a capability by name and version, independent of
// how many message ids it reserves. It is comparable and usable as a map
// key.
type CapabilityID struct {
	Name    CapabilityName
	Version uint64
}

// CapabilityInfo is a capability together with the count of message ids it
// reserves. The length is never transmitted in Hello; both sides must
// already agree on it by convention (see eth64.Length).
type CapabilityInfo struct {
	Name    CapabilityName
	Version uint64
	Length  uint64
}

// ID returns the (name, version) identity of this capability.
func (c CapabilityInfo) ID() CapabilityID {
	return CapabilityID{Name: c.Name, Version: c.Version}
}

func (c CapabilityInfo) message() CapabilityMessage {
	return CapabilityMessage{Name: c.Name, Version: c.Version}
}

// Capabilities is a negotiated (or about-to-be-negotiated) capability list.
// Once sorted, it defines the id-partition used by PeerStream: capability k
// occupies wire ids [base_k, base_k+Length_k), with base_0 = 0x10 and
// base_{k+1} = base_k + Length_k.
type Capabilities []CapabilityInfo

// sortByName orders capabilities by name ascending, matching the wire
// convention used to assign message-id ranges after Hello.
func (c Capabilities) sortByName() {
	sort.Slice(c, func(i, j int) bool { return c[i].Name < c[j].Name })
}

// sharedCapabilities intersects local and remote by (name, version), then
// for every name that survives, keeps only the entry with the highest
// surviving version, and finally sorts the result by name. This is the
// exact negotiation rule of spec §4.2 step 3.
func sharedCapabilities(local Capabilities, remote []CapabilityMessage) Capabilities {
	remoteSet := make(map[CapabilityID]bool, len(remote))
	for _, m := range remote {
		remoteSet[CapabilityID{Name: m.Name, Version: m.Version}] = true
	}

	var shared Capabilities
	for _, c := range local {
		if remoteSet[c.ID()] {
			shared = append(shared, c)
		}
	}

	original := make(Capabilities, len(shared))
	copy(original, shared)
	filtered := shared[:0]
	for _, c := range shared {
		keep := true
		for _, other := range original {
			if other.Name == c.Name && other.Version > c.Version {
				keep = false
				break
			}
		}
		if keep {
			filtered = append(filtered, c)
		}
	}
	filtered.sortByName()
	return filtered
}

// baseID is the first wire id reserved for subprotocols, after the 16
// reserved control ids 0x00-0x0f.
const baseID = 0x10

// offsets returns, for each capability in order, the wire id its local id 0
// maps to. offsets[i] corresponds to c[i]; the id-partition invariant of
// spec §8 holds by construction: the ranges are contiguous, non-overlapping,
// and span exactly [0x10, 0x10+sum(Length)).
func (c Capabilities) offsets() []uint64 {
	out := make([]uint64, len(c))
	next := uint64(baseID)
	for i, cap := range c {
		out[i] = next
		next += cap.Length
	}
	return out
}

// resolve maps a wire id >= 0x10 to the capability that owns it and the
// subprotocol-local id within that capability. ok is false if the id falls
// outside every capability's range.
func (c Capabilities) resolve(wireID uint64) (cap CapabilityInfo, localID uint64, ok bool) {
	remainder := wireID - baseID
	for _, info := range c {
		if remainder < info.Length {
			return info, remainder, true
		}
		remainder -= info.Length
	}
	return CapabilityInfo{}, 0, false
}

// find locates a shared capability by name.
func (c Capabilities) find(name CapabilityName) (CapabilityInfo, bool) {
	for _, info := range c {
		if info.Name == name {
			return info, true
		}
	}
	return CapabilityInfo{}, false
}

// wireID computes the wire id for a (capability, local id) pair, assuming
// the capability is a member of c and localID < cap.Length. Callers must
// check membership and range themselves (see PeerStream.Send).
func (c Capabilities) wireID(name CapabilityName, localID uint64) uint64 {
	id := uint64(baseID)
	for _, cap := range c {
		if cap.Name == name {
			return id + localID
		}
		id += cap.Length
	}
	return 0
}
