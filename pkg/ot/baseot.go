// Package ot implements the oblivious-transfer stack of spec.md §4.2: an
// endemic 1-of-2 base OT run 256 times, a GGM-style puncturable PRF built
// on top of it, and a SoftSpokenOT-style extension that compresses the
// PPRF output into the compact SenderOTSeed/ReceiverOTSeed pair stored in
// a Keyshare. There is no teacher package for this (the retrieved
// luxfi-threshold tree references no OT code at all — CMP/FROST use
// Paillier/Pedersen instead), so this is grounded directly on spec.md
// §4.2/§4.3/§9 and on original_source/examples/vsot.rs's "vsot" (verified
// simplest OT) naming: the base OT below is the Chou-Orlandi "Simplest
// OT" construction vsot implements, run over the module's own secp256k1
// group (pkg/curve) rather than Curve25519, since the blinding step needs
// point addition that golang.org/x/crypto/curve25519's Montgomery-ladder
// API doesn't expose.
package ot

import (
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/hash"
)

// ErrInvalidMessage is returned when a peer's OT message fails validation,
// surfaced per spec.md §7 as InvalidMessage.
var ErrInvalidMessage = errors.New("ot: invalid message")

// Choices is the 256-bit choice-bit vector the receiver uses to select one
// of each pair of base-OT seeds.
type Choices [32]byte

// Bit returns the i-th choice bit (0 or 1).
func (c Choices) Bit(i int) byte {
	return (c[i/8] >> uint(i%8)) & 1
}

// SenderSeeds holds, for each of the 256 base OTs, both candidate 32-byte
// seeds; only the receiver-chosen one is ever derivable by the receiver.
type SenderSeeds struct {
	Seeds0, Seeds1 [256][32]byte
}

// ReceiverSeeds holds, for each of the 256 base OTs, the single seed
// selected by the receiver's choice bit.
type ReceiverSeeds struct {
	Choices Choices
	Seeds   [256][32]byte
}

// SenderEphemeral is round-1 sender state: one secp256k1 ephemeral keypair
// a_i, A_i = a_i*G per base OT instance. A_i is the OT's only round-1
// message.
type SenderEphemeral struct {
	priv [256]*curve.Scalar
	pub  [256]*curve.Point
}

// SenderRound1 generates 256 ephemeral keypairs and returns the compressed
// public points to send to the receiver.
func SenderRound1(r io.Reader) (*SenderEphemeral, [256][33]byte, error) {
	se := &SenderEphemeral{}
	var pubs [256][33]byte
	for i := 0; i < 256; i++ {
		a, err := curve.RandomScalar(r)
		if err != nil {
			return nil, pubs, err
		}
		se.priv[i] = &a.Scalar
		se.pub[i] = se.priv[i].ActOnBase()
		copy(pubs[i][:], se.pub[i].CompressedBytes())
	}
	return se, pubs, nil
}

// ReceiverRound1 blinds its per-instance public point by the chosen branch
// before replying: B_i = b_i*G + A_i when the choice bit is 1, or just
// b_i*G when it is 0. Both cases are uniformly distributed over the group
// (shifting by A_i is a bijection), so B_i reveals nothing about the
// choice bit to the sender. The receiver's own shared point b_i*A_i
// matches exactly one of the sender's two candidate derivations
// (SenderDeriveSeeds), and computing the other requires a_i, which the
// receiver never learns — the Chou-Orlandi "Simplest OT" construction.
func ReceiverRound1(r io.Reader, senderPubs [256][33]byte, choices Choices) (*ReceiverSeeds, [256][33]byte, error) {
	out := &ReceiverSeeds{Choices: choices}
	var receiverPubs [256][33]byte

	for i := 0; i < 256; i++ {
		bigA, err := curve.DecodePoint(senderPubs[i][:], false)
		if err != nil {
			return nil, receiverPubs, ErrInvalidMessage
		}
		b, err := curve.RandomScalar(r)
		if err != nil {
			return nil, receiverPubs, err
		}
		bigB := b.Scalar.ActOnBase()
		if choices.Bit(i) == 1 {
			bigB = bigB.Add(bigA)
		}
		copy(receiverPubs[i][:], bigB.CompressedBytes())

		shared := b.Scalar.Act(bigA)
		out.Seeds[i] = seedFromSharedSecret(shared, i, choices.Bit(i))
	}
	return out, receiverPubs, nil
}

// SenderDeriveSeeds completes the sender's side once it has the
// receiver's (possibly blinded) public points: branch 0 is a_i*B_i,
// branch 1 is a_i*(B_i - A_i). Exactly one of these equals the receiver's
// b_i*A_i, depending on the receiver's choice bit; the other is an
// unrelated point neither side can relate back to the chosen one without
// a_i.
func (se *SenderEphemeral) SenderDeriveSeeds(receiverPubs [256][33]byte) (*SenderSeeds, error) {
	out := &SenderSeeds{}
	for i := 0; i < 256; i++ {
		bigB, err := curve.DecodePoint(receiverPubs[i][:], false)
		if err != nil {
			return nil, ErrInvalidMessage
		}
		shared0 := se.priv[i].Act(bigB)
		shared1 := se.priv[i].Act(bigB.Sub(se.pub[i]))
		out.Seeds0[i] = seedFromSharedSecret(shared0, i, 0)
		out.Seeds1[i] = seedFromSharedSecret(shared1, i, 1)
	}
	return out, nil
}

func seedFromSharedSecret(shared *curve.Point, index int, branch byte) [32]byte {
	st := hash.New("SL-BASE-OT-SEED")
	st.WriteBytes(shared.CompressedBytes())
	var idxBuf [3]byte
	idxBuf[0] = byte(index)
	idxBuf[1] = byte(index >> 8)
	idxBuf[2] = branch
	st.WriteBytes(idxBuf[:])
	sum := st.Sum()
	var out [32]byte
	copy(out[:], sum)
	return out
}

// aeadFromSeed derives a ChaCha20-Poly1305 AEAD from a 32-byte seed, used
// to protect the PPRF expansion metadata exchanged during softspoken setup
// (spec.md §4.4: "AEAD for OT payloads").
func aeadFromSeed(seed [32]byte) (chacha20poly1305.AEAD, error) {
	return chacha20poly1305.New(seed[:])
}

// RandomChoices draws a fresh 256-bit choice vector.
func RandomChoices(r io.Reader) (Choices, error) {
	var c Choices
	if _, err := io.ReadFull(r, c[:]); err != nil {
		return c, err
	}
	return c, nil
}
