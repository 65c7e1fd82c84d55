// Package message implements the wire framing of spec.md §4.4: a fixed
// header shared by two message kinds (signed and authenticated-encrypted),
// and the MsgId derivation that the relay (pkg/relay) uses to route them.
// It mirrors the original implementation's proto/tags.rs message-tag
// scheme, renamed to idiomatic Go constants.
package message

// Tag identifies what round/kind of message a frame carries. It is the
// 16-bit enum spec.md §4.4 describes, ranging over setup, abort, and every
// protocol round across DKG, DSG, quorum change/refresh/import/export.
type Tag uint16

const (
	// SetupTag carries the initial setup/parameters broadcast (spec.md
	// §4.6), grounded on original_source/src/setup.rs's SETUP_MESSAGE_TAG.
	SetupTag Tag = 0

	// AbortTag is the reserved tag for abort notifications (spec.md §4.5
	// "Abort semantics"), grounded on setup.rs's ABORT_MESSAGE_TAG.
	AbortTag Tag = 1

	// DKG round tags, grounded on keygen/constants.rs's DKG_MSG_R1..R6.
	DKGRound1 Tag = 10
	DKGRound2 Tag = 11
	DKGRound3 Tag = 12
	DKGRound4 Tag = 13
	DKGRound5 Tag = 14
	DKGRound6 Tag = 15

	// DSG round tags, grounded on sign/constants.rs's DSG_MSG_R1..R4.
	DSGRound1 Tag = 20
	DSGRound2 Tag = 21
	DSGRound3 Tag = 22
	DSGRound4 Tag = 23

	// Quorum-change round tags, grounded on
	// keygen/quorum_change.rs's QC_MSG_R0/R1/R2/P2P_1/P2P_2/OT1/OT2.
	QuorumRound0 Tag = 30
	QuorumRound1 Tag = 31
	QuorumRound2 Tag = 32
	QuorumP2P1   Tag = 33
	QuorumP2P2   Tag = 34
	QuorumOT1    Tag = 35
	QuorumOT2    Tag = 36

	// KeyExportTag carries the key-export/import payload, grounded on
	// key_export.rs's KEYSHARE_EXPORT_TAG.
	KeyExportTag Tag = 40

	// ReconciliationTag carries lost-share recovery/reconciliation
	// messages, a feature supplemented from original_source/ (see
	// SPEC_FULL.md "Supplemented features").
	ReconciliationTag Tag = 41
)

// String renders a tag's protocol-round name for logs, never the wire
// contract itself (which is the raw uint16).
func (t Tag) String() string {
	switch t {
	case SetupTag:
		return "setup"
	case AbortTag:
		return "abort"
	case DKGRound1:
		return "dkg-r1"
	case DKGRound2:
		return "dkg-r2"
	case DKGRound3:
		return "dkg-r3"
	case DKGRound4:
		return "dkg-r4"
	case DKGRound5:
		return "dkg-r5"
	case DKGRound6:
		return "dkg-r6"
	case DSGRound1:
		return "dsg-r1"
	case DSGRound2:
		return "dsg-r2"
	case DSGRound3:
		return "dsg-r3"
	case DSGRound4:
		return "dsg-r4"
	case QuorumRound0:
		return "quorum-r0"
	case QuorumRound1:
		return "quorum-r1"
	case QuorumRound2:
		return "quorum-r2"
	case QuorumP2P1:
		return "quorum-p2p-1"
	case QuorumP2P2:
		return "quorum-p2p-2"
	case QuorumOT1:
		return "quorum-ot-1"
	case QuorumOT2:
		return "quorum-ot-2"
	case KeyExportTag:
		return "key-export"
	case ReconciliationTag:
		return "reconciliation"
	default:
		return "unknown"
	}
}

// BroadcastSentinel is the receiverVK placeholder MsgId derivation uses
// for broadcast messages (no specific receiver), per spec.md §4.4.
var BroadcastSentinel = []byte("DKLS23-BROADCAST")
