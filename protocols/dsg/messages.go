// Package dsg implements the five-round distributed signature generation
// state machine of spec.md §4.9: a commit-reveal of each signer's
// ephemeral nonce point, a pairwise multiplicative-to-additive conversion
// of each signer's (x̂, k) against every other signer's φ (pkg/mta, fed by
// the base-OT seeds DKG precomputed), and a final aggregation into one
// ECDSA (r, s) pair. Structured the same pull-relay way as protocols/dkg
// (see that package's doc comment).
package dsg

import (
	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/mta"
)

// R1Payload is R1's broadcast: the session id, a hiding commitment to
// (sid, R_i, r1Mask), and the party's ephemeral X25519 encryption pubkey.
type R1Payload struct {
	Sid    [32]byte
	Commit [32]byte
	EncPub [32]byte
}

// R2P2P carries one signer's MtA round-1 message (acting as MtA receiver
// with β = φ_i) addressed to one specific peer.
type R2P2P struct {
	Msg1 *mta.Round1Message
}

// R3P2P is the MtA sender's response plus the decommit of R1Payload and
// the cross-check commitments spec.md §4.9 requires.
type R3P2P struct {
	Msg2       *mta.Round2Message
	R          *curve.Point
	Mask       [32]byte
	BigX       *curve.Point
	Gamma0     *curve.Point
	Gamma1     *curve.Point
}

// R4Payload is the final broadcast: the party's partial signature shares.
type R4Payload struct {
	S0 *curve.Scalar
	S1 *curve.Scalar
}
