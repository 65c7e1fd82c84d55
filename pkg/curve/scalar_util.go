package curve

import (
	"github.com/cronokirby/saferith"
	"github.com/silence-laboratories/dkls23/pkg/party"
)

// ScalarFromBytesModQ reduces an arbitrary-length big-endian byte string
// modulo the group order q, for deriving scalars from hash digests that
// may be longer or shorter than 32 bytes (e.g. the message hash, or
// hash-derived gadget-vector entries).
func ScalarFromBytesModQ(b []byte) *Scalar {
	n := new(saferith.Nat).SetBytes(b)
	return ScalarFromNat(n)
}

// ScalarFromUint64 returns the scalar representation of an integer, used
// chiefly to turn a party.ID into its Shamir x-coordinate.
func ScalarFromUint64(x uint64) *Scalar {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(x >> (8 * i))
	}
	return ScalarFromBytesModQ(buf[:])
}

// XCoord returns the nonzero Shamir x-coordinate conventionally assigned to
// a party id: x_i = i + 1, as specified in spec.md §4.8 ("Tie-break /
// ordering").
func XCoord(id party.ID) *NonZeroScalar {
	s := ScalarFromUint64(uint64(id) + 1)
	return &NonZeroScalar{Scalar: *s}
}
