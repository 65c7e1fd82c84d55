package ot

import (
	"errors"

	"github.com/silence-laboratories/dkls23/pkg/hash"
)

// treeDepth is the depth of the GGM tree expanded per base-OT seed. Each
// leaf yields one column block consumed by the SoftSpokenOT extension;
// 1<<treeDepth leaves amortize the 256 base OTs into the much larger
// pseudo-random matrix spec.md §4.2 describes ("a large pseudo-random
// matrix the sender holds in full and the receiver holds with exactly one
// blinded row missing per column block").
const treeDepth = 8

// LeavesPerTree is the number of leaves produced by expanding one base-OT
// seed through the GGM tree.
const LeavesPerTree = 1 << treeDepth

// BuildFullTree expands a single 32-byte seed into all 2^treeDepth leaves,
// the sender's view (it holds the seed, so it can reconstruct every leaf).
func BuildFullTree(seed [32]byte, sessionID []byte) [][32]byte {
	leaves := make([][32]byte, LeavesPerTree)
	nodes := make([][32]byte, 1)
	nodes[0] = seed
	for level := 0; level < treeDepth; level++ {
		next := make([][32]byte, len(nodes)*2)
		for i, n := range nodes {
			l, r := expandNode(n, sessionID, level)
			next[2*i] = l
			next[2*i+1] = r
		}
		nodes = next
	}
	copy(leaves, nodes)
	return leaves
}

// PunctureAt expands the tree exactly like BuildFullTree but withholds the
// single leaf at punctureIndex, instead returning the O(log n) co-path
// nodes needed to reconstruct every *other* leaf (the "all-but-one"
// property spec.md §4.2/GLOSSARY describes for the PPRF).
//
// The receiver, given these co-path nodes and the index it withheld
// (implied by its OT choice bit), can recompute every leaf except the one
// at punctureIndex, which is exactly the property SoftSpokenOT needs: the
// sender's two candidate messages per column differ only in the withheld
// leaf's contribution.
func PunctureAt(seed [32]byte, sessionID []byte, punctureIndex int) ([][32]byte, error) {
	if punctureIndex < 0 || punctureIndex >= LeavesPerTree {
		return nil, ErrPunctureIndex
	}
	copath := make([][32]byte, 0, treeDepth)
	nodes := [][32]byte{seed}
	// pathBit[level] is the bit of punctureIndex that selects left/right
	// at that level, most-significant first.
	for level := 0; level < treeDepth; level++ {
		next := make([][32]byte, len(nodes)*2)
		for i, n := range nodes {
			l, r := expandNode(n, sessionID, level)
			next[2*i] = l
			next[2*i+1] = r
		}
		shift := treeDepth - level - 1
		prefix := punctureIndex >> uint(shift+1)
		bit := (punctureIndex >> uint(shift)) & 1
		onPathIdx := 2*prefix + bit
		siblingIdx := 2*prefix + (1 - bit)
		copath = append(copath, next[siblingIdx])
		nodes = [][32]byte{next[onPathIdx]}
	}
	return copath, nil
}

// ReconstructAllButOne rebuilds every leaf of a punctured GGM tree except
// the one at punctureIndex, given the co-path returned by PunctureAt. This
// is the receiver's operation: it never learns the withheld leaf.
func ReconstructAllButOne(copath [][32]byte, sessionID []byte, punctureIndex int) ([][32]byte, error) {
	if len(copath) != treeDepth {
		return nil, ErrInvalidMessage
	}
	if punctureIndex < 0 || punctureIndex >= LeavesPerTree {
		return nil, ErrPunctureIndex
	}
	leaves := make([][32]byte, LeavesPerTree)
	known := make([]bool, LeavesPerTree)

	// copath[0] is the sibling of the root's path, covering half the
	// tree; expand it fully, then keep descending into the half that
	// contains punctureIndex using each subsequent co-path node.
	half := LeavesPerTree / 2
	siblingLo0 := half
	if punctureIndex >= half {
		siblingLo0 = 0
	}
	expandSubtree(copath[0], sessionID, 1, siblingLo0, half, leaves, known)

	// Now walk down the path to punctureIndex, expanding the sibling at
	// each remaining level from its co-path node.
	curLo, curHi := 0, LeavesPerTree
	if punctureIndex < half {
		curHi = half
	} else {
		curLo = half
	}
	for level := 1; level < treeDepth; level++ {
		width := curHi - curLo
		mid := curLo + width/2
		var siblingLo, siblingWidth int
		if punctureIndex < mid {
			siblingLo, siblingWidth = mid, width/2
			curHi = mid
		} else {
			siblingLo, siblingWidth = curLo, width/2
			curLo = mid
		}
		expandSubtree(copath[level], sessionID, level+1, siblingLo, siblingWidth, leaves, known)
	}
	// curLo == curHi-1 == punctureIndex now; it stays unknown.
	return leaves, nil
}

// expandSubtree expands node (known to be the value at tree depth
// `level`) into the `width` leaves starting at `lo`, filling leaves/known.
func expandSubtree(node [32]byte, sessionID []byte, level, lo, width int, leaves [][32]byte, known []bool) {
	if width == 1 {
		leaves[lo] = node
		known[lo] = true
		return
	}
	l, r := expandNode(node, sessionID, level)
	expandSubtree(l, sessionID, level+1, lo, width/2, leaves, known)
	expandSubtree(r, sessionID, level+1, lo+width/2, width/2, leaves, known)
}

func expandNode(n [32]byte, sessionID []byte, level int) (left, right [32]byte) {
	st := hash.New("SL-PPRF-EXPAND")
	st.WriteBytes(sessionID)
	st.WriteBytes(n[:])
	st.WriteBytes([]byte{byte(level)})
	sum := st.Sum64()
	copy(left[:], sum[:32])
	copy(right[:], sum[32:])
	return
}

// ErrPunctureIndex is returned for an out-of-range puncture index.
var ErrPunctureIndex = errors.New("ot: puncture index out of range")
