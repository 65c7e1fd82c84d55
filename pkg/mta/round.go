package mta

import (
	"crypto/subtle"
	"errors"
	"io"

	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/hash"
	"github.com/silence-laboratories/dkls23/pkg/ot"
	"github.com/silence-laboratories/dkls23/pkg/sample"
)

// ErrConsistencyCheckFailed is returned by the receiver when the sender's
// consistency tag r does not match the locally recomputed value, per
// spec.md §4.3 ("Receiver recomputes r and aborts on mismatch").
var ErrConsistencyCheckFailed = errors.New("mta: consistency check failed")

// PadSet holds the three independent one-time-pad streams a party derives
// per MtA instance: U feeds the t0 = α1·β extraction, W feeds the
// t1 = α2·β extraction, and V feeds the sender-consistency check. Three
// independent streams (rather than reusing one) keep the check from
// leaking anything about the real outputs.
type PadSet struct {
	U [GadgetLen]*curve.Scalar
	W [GadgetLen]*curve.Scalar
	V [GadgetLen]*curve.Scalar
}

// ReceiverState is the receiver's private round-1 state, carried forward
// to share extraction once the sender's round-2 message arrives.
type ReceiverState struct {
	Beta *curve.Scalar
	Bits [GadgetLen]byte
	Pads PadSet
}

// Round1Message is the receiver's only message: its gadget-bit encoding of
// β, masked under three independent pad streams (spec.md's U, w_prime,
// v_prime matrices).
type Round1Message struct {
	U      [GadgetLen]*curve.Scalar
	Wprime [GadgetLen]*curve.Scalar
	Vprime [GadgetLen]*curve.Scalar
}

// Round2Message is the sender's response: the τ correction matrices for
// the U and W streams, the opened consistency scalar u, and the tag r the
// receiver must reproduce before trusting the extraction.
type Round2Message struct {
	TauU [GadgetLen]*curve.Scalar
	TauW [GadgetLen]*curve.Scalar
	TauV [GadgetLen]*curve.Scalar
	U    *curve.Scalar
	R    []byte
}

// ReceiverRound1 encodes β as a κ-bit vector padded with GadgetExtras
// random bits and derives the three masked pad streams from the receiver's
// OT seed, producing the message the sender needs for round 2.
func ReceiverRound1(beta *curve.Scalar, seeds *ot.ReceiverOTSeed, sessionID []byte, r io.Reader) (*ReceiverState, *Round1Message, error) {
	kbits := EncodeBits(beta)
	extra, err := PadExtraBits(r)
	if err != nil {
		return nil, nil, err
	}
	var bits [GadgetLen]byte
	copy(bits[:Kappa], kbits[:])
	copy(bits[Kappa:], extra[:])

	state := &ReceiverState{Beta: beta, Bits: bits}
	msg := &Round1Message{}
	for i := 0; i < GadgetLen; i++ {
		bitScalar := curve.ScalarFromUint64(uint64(bits[i]))

		padU := deriveReceiverRowScalar(seeds, i, sessionID, "U")
		padW := deriveReceiverRowScalar(seeds, i, sessionID, "W")
		padV := deriveReceiverRowScalar(seeds, i, sessionID, "V")

		state.Pads.U[i] = padU
		state.Pads.W[i] = padW
		state.Pads.V[i] = padV

		msg.U[i] = padU.Add(bitScalar)
		msg.Wprime[i] = padW.Add(bitScalar)
		msg.Vprime[i] = padV.Add(bitScalar)
	}
	return state, msg, nil
}

// SenderRound2 consumes the receiver's round-1 message together with the
// sender's own two secrets α1, α2 (the two values being converted against
// the same β in one pass, per spec.md's "bidirectional ... two [Scalar;2]
// share vectors per pair"), and returns the sender's own additive shares
// alongside the message to send back.
func SenderRound2(alpha1, alpha2 *curve.Scalar, seeds *ot.SenderOTSeed, sessionID []byte, msg1 *Round1Message, r io.Reader) (t0, t1 *curve.Scalar, out *Round2Message, err error) {
	aHat, err := sample.Scalar(r)
	if err != nil {
		return nil, nil, nil, err
	}
	chi0, chi1 := deriveChallenges(sessionID, msg1)
	u := alpha1.Add(chi0.Mul(alpha2)).Add(chi1.Mul(aHat))

	gadget := GadgetVector()
	out = &Round2Message{U: u}
	t0 = curve.NewScalar()
	t1 = curve.NewScalar()

	for i := 0; i < GadgetLen; i++ {
		padU0 := deriveSenderRowScalar(seeds, 0, i, sessionID, "U")
		padU1 := deriveSenderRowScalar(seeds, 1, i, sessionID, "U")
		padW0 := deriveSenderRowScalar(seeds, 0, i, sessionID, "W")
		padW1 := deriveSenderRowScalar(seeds, 1, i, sessionID, "W")
		padV0 := deriveSenderRowScalar(seeds, 0, i, sessionID, "V")
		padV1 := deriveSenderRowScalar(seeds, 1, i, sessionID, "V")

		out.TauU[i] = padU0.Sub(padU1).Add(alpha1)
		out.TauW[i] = padW0.Sub(padW1).Add(alpha2)
		out.TauV[i] = padV0.Sub(padV1).Add(u)

		// The sender's own additive share is the negated, gadget-weighted
		// sum of its branch-0 pads; combined with the receiver's
		// reconstruction this telescopes to α·β (see package doc).
		t0 = t0.Sub(gadget[i].Mul(padU0))
		t1 = t1.Sub(gadget[i].Mul(padW0))
	}
	out.R = computeConsistencyTag(sessionID, out.TauU, out.TauW, out.TauV, out.U, chi0, chi1)
	return t0, t1, out, nil
}

// ReceiverExtractShares verifies the sender's consistency tag and, if it
// matches, reconstructs the receiver's half of the two additive shares.
func ReceiverExtractShares(state *ReceiverState, msg1 *Round1Message, msg2 *Round2Message, sessionID []byte) (t0, t1 *curve.Scalar, err error) {
	chi0, chi1 := deriveChallenges(sessionID, msg1)
	want := computeConsistencyTag(sessionID, msg2.TauU, msg2.TauW, msg2.TauV, msg2.U, chi0, chi1)
	if subtle.ConstantTimeCompare(want, msg2.R) != 1 {
		return nil, nil, ErrConsistencyCheckFailed
	}

	gadget := GadgetVector()
	t0 = curve.NewScalar()
	t1 = curve.NewScalar()
	for i := 0; i < GadgetLen; i++ {
		bit := curve.ScalarFromUint64(uint64(state.Bits[i]))
		vU := state.Pads.U[i].Add(bit.Mul(msg2.TauU[i]))
		vW := state.Pads.W[i].Add(bit.Mul(msg2.TauW[i]))
		t0 = t0.Add(gadget[i].Mul(vU))
		t1 = t1.Add(gadget[i].Mul(vW))
	}
	return t0, t1, nil
}

// deriveChallenges derives the Fiat-Shamir challenges χ0, χ1 from the
// receiver's round-1 message, so neither party needs to transmit them:
// both sides hold msg1 and can recompute identically.
func deriveChallenges(sessionID []byte, msg1 *Round1Message) (chi0, chi1 *curve.Scalar) {
	st := hash.New("SL-MTA-CHALLENGE")
	st.WriteBytes(sessionID)
	for i := 0; i < GadgetLen; i++ {
		st.WriteBytes(msg1.U[i].Bytes())
		st.WriteBytes(msg1.Wprime[i].Bytes())
		st.WriteBytes(msg1.Vprime[i].Bytes())
	}
	chi0 = curve.ScalarFromBytesModQ(st.Sum())
	st.WriteBytes([]byte{0x01})
	chi1 = curve.ScalarFromBytesModQ(st.Sum())
	return chi0, chi1
}

func computeConsistencyTag(sessionID []byte, tauU, tauW, tauV [GadgetLen]*curve.Scalar, u, chi0, chi1 *curve.Scalar) []byte {
	st := hash.New("SL-MTA-TAG")
	st.WriteBytes(sessionID)
	for i := 0; i < GadgetLen; i++ {
		st.WriteBytes(tauU[i].Bytes())
		st.WriteBytes(tauW[i].Bytes())
		st.WriteBytes(tauV[i].Bytes())
	}
	st.WriteBytes(u.Bytes())
	st.WriteBytes(chi0.Bytes())
	st.WriteBytes(chi1.Bytes())
	return st.Sum()
}

// deriveSenderRowScalar and deriveReceiverRowScalar derive one of the
// GadgetLen "extended" OT row values from the 256 compressed softspoken
// columns, cyclically reusing column i%256 across rows while mixing the
// full row index and stream label into the hash so rows that share a
// column never collide.
func deriveSenderRowScalar(seeds *ot.SenderOTSeed, branch, row int, sessionID []byte, label string) *curve.Scalar {
	col := row % 256
	st := hash.New("SL-MTA-ROW:" + label)
	st.WriteBytes(sessionID)
	st.WriteBytes([]byte{byte(row), byte(row >> 8)})
	st.WriteBytes(seeds.Seeds[col][branch][:])
	return curve.ScalarFromBytesModQ(st.Sum())
}

func deriveReceiverRowScalar(seeds *ot.ReceiverOTSeed, row int, sessionID []byte, label string) *curve.Scalar {
	col := row % 256
	st := hash.New("SL-MTA-ROW:" + label)
	st.WriteBytes(sessionID)
	st.WriteBytes([]byte{byte(row), byte(row >> 8)})
	st.WriteBytes(seeds.Seeds[col][:])
	return curve.ScalarFromBytesModQ(st.Sum())
}
