// Package party defines party and participant identifiers shared across
// every protocol (DKG, DSG, quorum change) in this module.
package party

import (
	"sort"
)

// ID identifies a party within a single DKG/DSG/quorum-change run. It is a
// small byte-wide identifier in [0, n); it need not be contiguous with
// ParticipantIndex, especially across a quorum change where the set of
// holders changes.
type ID byte

// ParticipantIndex addresses a message sender/receiver inside a Setup. It
// ranges over [0, totalParticipants) and is the index used by the relay
// and message framing, independent of the cryptographic party id.
type ParticipantIndex uint32

// IDSlice is a sortable, deduplicated collection of party IDs.
type IDSlice []ID

// NewIDSlice returns a sorted copy of ids.
func NewIDSlice(ids []ID) IDSlice {
	out := make(IDSlice, len(ids))
	copy(out, ids)
	sort.Sort(out)
	return out
}

func (s IDSlice) Len() int           { return len(s) }
func (s IDSlice) Less(i, j int) bool { return s[i] < s[j] }
func (s IDSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Contains reports whether id is present in s.
func (s IDSlice) Contains(id ID) bool {
	for _, x := range s {
		if x == id {
			return true
		}
	}
	return false
}

// Valid reports whether s has no duplicate entries.
func (s IDSlice) Valid() bool {
	seen := make(map[ID]struct{}, len(s))
	for _, id := range s {
		if _, ok := seen[id]; ok {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}

// CoversRange reports whether s contains exactly {0, 1, ..., n-1} with no
// duplicates and no gaps, the invariant the DKG participant set must satisfy.
func (s IDSlice) CoversRange(n int) bool {
	if len(s) != n || !s.Valid() {
		return false
	}
	sorted := NewIDSlice(s)
	for i, id := range sorted {
		if int(id) != i {
			return false
		}
	}
	return true
}

// Other returns the slice of ids other than self, preserving order.
func (s IDSlice) Other(self ID) []ID {
	out := make([]ID, 0, len(s))
	for _, id := range s {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

// IndexOf returns the dense position of id within the sorted slice, or -1.
func (s IDSlice) IndexOf(id ID) int {
	for i, x := range s {
		if x == id {
			return i
		}
	}
	return -1
}

// OtherIndex maps a peer party id to a dense "other party" index, skipping
// self, as used by Keyshare.get_idx_from_id in spec.md §4.7.
func OtherIndex(self ID, all IDSlice, peer ID) int {
	idx := 0
	for _, id := range all {
		if id == self {
			continue
		}
		if id == peer {
			return idx
		}
		idx++
	}
	return -1
}
