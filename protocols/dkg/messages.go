// Package dkg implements the six-round distributed key generation state
// machine of spec.md §4.8, driven by the pull-based relay (pkg/relay)
// rather than the teacher's push-based round dispatcher: every round is a
// plain function that asks the relay for the messages it needs, builds and
// sends its own, and returns the accumulated per-peer state, in the same
// style established by pkg/mta/round.go. Grounded cryptographically on
// protocols/lss/keygen/round1-3.go's commit/reveal/Feldman structure,
// generalized to Birkhoff ranks and re-expressed for the real DKLS23
// additive-sharing construction (the teacher shares a CMP/Paillier secret,
// not an additive OT-based one).
package dkg

import (
	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/schnorr"
)

// R1Payload is R1's broadcast: a session id, the party's chosen
// x-coordinate and rank, a hiding commitment to its polynomial and reveal
// mask, and its ephemeral X25519 encryption public key.
type R1Payload struct {
	Sid         [32]byte
	X           *curve.Scalar
	Rank        int
	Commitment1 [32]byte
	EncPub      [32]byte
}

// R2Broadcast carries the revealed polynomial commitment vector, the
// reveal mask, and one Schnorr DLog proof per coefficient.
type R2Broadcast struct {
	Coeffs []*curve.Point
	R1     [32]byte
	Proofs []*schnorr.Proof
}

// R2P2P is the encrypted per-recipient derivative share and its
// commitment, sent alongside R2Broadcast.
type R2P2P struct {
	D           *curve.Scalar
	Commitment2 [32]byte
}

// R3Broadcast carries the party's additive share commitment S_i and a
// Schnorr proof of knowledge of s_i.
type R3Broadcast struct {
	S     *curve.Point
	Proof *schnorr.Proof
}

// OTSenderPubs is R5's message: this party's 256 base-OT sender ephemeral
// public keys, addressed to one specific peer (this party acting as OT
// sender toward that peer).
type OTSenderPubs struct {
	Pubs [256][33]byte
}

// OTReceiverPubs is R6's message: the response to a peer's R5 OTSenderPubs
// (this party acting as OT receiver toward that peer), plus this party's
// half of the pairwise zeta-seed exchange.
type OTReceiverPubs struct {
	Pubs     [256][33]byte
	ZetaHalf [32]byte
}
