package ot

import (
	"io"

	"github.com/silence-laboratories/dkls23/pkg/hash"
)

// SenderOTSeed is the sender-side compressed output of the SoftSpokenOT
// extension, stored inside a Keyshare (spec.md §3/§4.2) and consumed by
// the MtA gadget as the sender's correlated randomness for one ordered
// pair of parties.
type SenderOTSeed struct {
	// Seeds holds, per base-OT column (256 of them), the full pair of
	// GGM-tree seeds the sender can expand from.
	Seeds [256][2][32]byte
}

// ReceiverOTSeed is the receiver-side compressed output: one chosen seed
// per column plus the choice bits used, matching spec.md's pairwise
// "receiver OT seed".
type ReceiverOTSeed struct {
	Choices Choices
	Seeds   [256][32]byte
}

// DeriveSenderOTSeed compresses the sender's base-OT seed pairs into the
// softspoken representation. sessionID MUST be the pairwise OT session id
// derived per spec.md §4.2 ("Session ids for each pair are derived from
// finalSessionId, (min(id_a,id_b), max(id_a,id_b)) via SHA-256").
func DeriveSenderOTSeed(senderSeeds *SenderSeeds, sessionID []byte) *SenderOTSeed {
	out := &SenderOTSeed{}
	for i := 0; i < 256; i++ {
		out.Seeds[i][0] = compressColumn(senderSeeds.Seeds0[i], sessionID, i, 0)
		out.Seeds[i][1] = compressColumn(senderSeeds.Seeds1[i], sessionID, i, 1)
	}
	return out
}

// DeriveReceiverOTSeed compresses the receiver's chosen base-OT seeds.
func DeriveReceiverOTSeed(receiverSeeds *ReceiverSeeds, sessionID []byte) *ReceiverOTSeed {
	out := &ReceiverOTSeed{Choices: receiverSeeds.Choices}
	for i := 0; i < 256; i++ {
		out.Seeds[i] = compressColumn(receiverSeeds.Seeds[i], sessionID, i, receiverSeeds.Choices.Bit(i))
	}
	return out
}

func compressColumn(seed [32]byte, sessionID []byte, index int, branch byte) [32]byte {
	st := hash.New("SL-SOFTSPOKEN-COMPRESS")
	st.WriteBytes(sessionID)
	st.WriteBytes(seed[:])
	st.WriteBytes([]byte{byte(index), byte(index >> 8), branch})
	sum := st.Sum()
	var out [32]byte
	copy(out[:], sum)
	return out
}

// ExpandSender expands a column's two seeds into a pseudo-random matrix
// row pair of `cols` scalars worth of bytes, used by the MtA gadget (C3)
// to build the u/w'/v' matrices of spec.md §4.3.
func ExpandSender(seed [32]byte, label string, col int, outLen int) []byte {
	out := make([]byte, 0, outLen+64)
	counter := uint32(0)
	for len(out) < outLen {
		st := hash.New("SL-SOFTSPOKEN-EXPAND:" + label)
		st.WriteBytes(seed[:])
		st.WriteBytes([]byte{byte(col), byte(col >> 8), byte(counter), byte(counter >> 8), byte(counter >> 16), byte(counter >> 24)})
		out = append(out, st.Sum64()...)
		counter++
	}
	return out[:outLen]
}

// ExpandReceiver is the receiver's analogue of ExpandSender, over its
// single chosen seed per column.
func ExpandReceiver(seed [32]byte, label string, col int, outLen int) []byte {
	return ExpandSender(seed, label, col, outLen)
}

// NewLabelStream turns a 32-byte session id into a deterministic stream,
// for callers that need to derive several independent values from a
// single seed.
func NewLabelStream(seed []byte, label string) io.Reader {
	return &labelStream{seed: seed, label: label}
}

type labelStream struct {
	seed    []byte
	label   string
	counter uint32
	buf     []byte
}

func (l *labelStream) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(l.buf) == 0 {
			st := hash.New(l.label)
			st.WriteBytes(l.seed)
			st.WriteBytes([]byte{byte(l.counter), byte(l.counter >> 8), byte(l.counter >> 16), byte(l.counter >> 24)})
			l.counter++
			l.buf = st.Sum64()
		}
		c := copy(p[n:], l.buf)
		l.buf = l.buf[c:]
		n += c
	}
	return n, nil
}
