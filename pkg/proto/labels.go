// Package proto collects the transcript-hash domain labels every protocol
// round uses for commitments and Fiat-Shamir challenges, grounded on
// original_source/src/keygen/constants.rs and src/sign/constants.rs. The
// exact strings are part of the wire contract: two implementations must
// derive identical commitments/challenges from identical inputs.
package proto

const (
	DKGLabel        = "DKLS23-DKG"
	DLogProof1Label = "DKLS23-DLOG-PROOF-1"
	DLogProof2Label = "DKLS23-DLOG-PROOF-2"
	DSGLabel        = "DKLS23-DSG"
	CommitmentLabel = "DKLS23-COMMITMENT"
	DigestILabel    = "DKLS23-DIGEST-I"
	PairwiseMtALabel          = "DKLS23-PAIRWISE-MTA"
	PairwiseRandomizationLabel = "DKLS23-PAIRWISE-RANDOMIZATION"
	QuorumChangeLabel = "DKLS23-QUORUM-CHANGE"
	KeyExportLabel    = "DKLS23-KEY-EXPORT"
)
