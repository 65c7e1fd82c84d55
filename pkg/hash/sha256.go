package hash

import (
	"crypto/sha256"
	"encoding/binary"
)

// sha256Concat hashes a sequence of length-framed byte strings with
// SHA-256, used wherever spec.md pins the hash function explicitly
// (MsgId, OT pairwise session ids) rather than leaving it to the
// transcript hash above.
func sha256Concat(parts ...[]byte) []byte {
	h := sha256.New()
	var lenBuf [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write(p)
	}
	return h.Sum(nil)
}
