// Package quorum implements spec.md §4.10's quorum change / refresh /
// import engine: old shareholders re-Shamir their additive contribution to
// a new (possibly larger, smaller, or re-ranked) party set while holding
// the joint public key and root chain code fixed. Refresh and import are
// both the same round driver under a different setup.QuorumChangeSetup
// (old == new for refresh; externally supplied ImportedShare for import).
// Structurally this mirrors protocols/dkg's pull-based round functions
// (pkg/relay, one function per round, accumulated peer state), generalized
// to a session where not every participant sends every round.
package quorum

import (
	"github.com/silence-laboratories/dkls23/pkg/curve"
)

// R0Payload is R0's broadcast, sent only by old parties: a session id
// contribution used to derive this run's quorum session id, per spec.md
// §4.10 "old parties broadcast their party id → canonical indexing agreed"
// (canonical indexing itself is already fixed by setup.QuorumChangeSetup's
// configured OldIDs/NewIDs; this round additionally binds a fresh session
// id the way DKG's R1 does).
type R0Payload struct {
	Sid [32]byte
}

// R1Payload is R1's broadcast, sent by every participant (old and new):
// every party exchanges its ephemeral X25519 encryption public key, and
// old parties additionally commit to the new polynomial carrying their
// additive contribution.
type R1Payload struct {
	EncPub          [32]byte
	HasContribution bool
	Commitment1     [32]byte
}

// P2P1Payload is P2P-1: an old party's hiding commitment to the evaluation
// it will reveal to one specific new party in P2P-2.
type P2P1Payload struct {
	Commitment2 [32]byte
}

// P2P2Payload is P2P-2: the old party's revealed per-recipient polynomial
// evaluation, its decommit mask, and the shared root chain code.
type P2P2Payload struct {
	Value         *curve.Scalar
	Mask          [32]byte
	RootChainCode [32]byte
}

// R2Payload is R2's broadcast: an old party's revealed polynomial
// commitment vector and its commitment1 reveal mask.
type R2Payload struct {
	Coeffs []*curve.Point
	R1Mask [32]byte
}

// OT1Payload and OT2Payload carry the pairwise base-OT handshake among the
// new party set, identical in shape to protocols/dkg's OTSenderPubs/
// OTReceiverPubs (spec.md §4.10 "exactly as in DKG R5/R6").
type OT1Payload struct {
	Pubs [256][33]byte
}

type OT2Payload struct {
	Pubs     [256][33]byte
	ZetaHalf [32]byte
}
