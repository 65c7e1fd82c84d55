package setup

import (
	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/hash"
	"github.com/silence-laboratories/dkls23/pkg/party"
)

const keyIDLabel = "DKLS23-KEY-ID"

// deriveKeyID hashes the public key, root chain code, and the sorted new
// party-id set into a 32-byte key identifier, letting consumers
// distinguish generations of the same underlying secret across refreshes
// (spec.md §4.10 "derive_key_id").
func deriveKeyID(publicKey *curve.Point, rootChainCode []byte, ids party.IDSlice) [32]byte {
	h := hash.New(keyIDLabel)
	h.WriteBytes(publicKey.CompressedBytes())
	h.WriteBytes(rootChainCode)
	sorted := party.NewIDSlice(ids)
	for _, id := range sorted {
		h.WriteBytes([]byte{byte(id)})
	}
	var out [32]byte
	copy(out[:], h.Sum())
	return out
}
