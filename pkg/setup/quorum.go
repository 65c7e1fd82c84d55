package setup

import (
	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/keyshare"
	"github.com/silence-laboratories/dkls23/pkg/party"
)

// QuorumChangeSetup is the per-party configuration quorum
// change/refresh/import reads, per spec.md §4.6 / §4.10. Refresh is the
// special case OldIndices == NewIndices; import is the special case where
// every old party supplies its additive contribution from an externally
// fixed imported private key rather than an existing Keyshare.
type QuorumChangeSetup struct {
	Base

	OldIDs    party.IDSlice
	NewIDs    party.IDSlice
	NewThreshold int
	NewRankList  []int // indexed by position in NewIDs

	ExpectedPublicKey *curve.Point
	RootChainCode     [32]byte

	// OldKeyshare is non-nil for parties that hold an existing share (every
	// old party in a change/refresh; every party supplying imported
	// material in an import). nil for a new-but-not-old party that will
	// only learn a fresh share.
	OldKeyshare *keyshare.Keyshare

	// ImportedShare, if non-nil, overrides OldKeyshare.Si as this party's
	// additive contribution s_i_0 for a key-import run (spec.md §4.10
	// "Import ... additive contribution s_i_0 ... supplied externally").
	ImportedShare *curve.Scalar

	// AllIDs maps this session's dense ParticipantIndex space (what
	// Base.Self/VerifyingKeys are indexed by) to the party.ID space
	// spanning the union of OldIDs and NewIDs, since an old-but-not-new
	// party and a new-but-not-old party both participate in the same
	// relay session without both holding a post-run share.
	AllIDs party.IDSlice
}

// NewQuorumChangeSetup validates and constructs a QuorumChangeSetup.
// Exactly one of oldKeyshare/importedShare must be supplied: the former for
// a quorum change/refresh carried out by shareholders of an existing key,
// the latter for a key import.
func NewQuorumChangeSetup(base Base, oldIDs, newIDs party.IDSlice, newThreshold int, newRankList []int, expectedPublicKey *curve.Point, rootChainCode [32]byte, oldKeyshare *keyshare.Keyshare, importedShare *curve.Scalar, allIDs party.IDSlice) (*QuorumChangeSetup, error) {
	if newThreshold < 2 || newThreshold > len(newIDs) {
		return nil, ErrBadThreshold
	}
	if len(newRankList) != len(newIDs) {
		return nil, ErrBadPartyCount
	}
	if len(allIDs) != base.Total || !allIDs.Valid() {
		return nil, ErrBadPartyCount
	}
	if int(base.Self) >= len(allIDs) {
		return nil, ErrBadPartyCount
	}
	// Exactly one of oldKeyshare/importedShare is required from a party
	// that held a share before this run (it must supply an additive
	// contribution, from one source or the other); a new-but-not-old
	// party supplies neither, since it only receives.
	if selfID := allIDs[base.Self]; oldIDs.Contains(selfID) {
		if (oldKeyshare == nil) == (importedShare == nil) {
			return nil, ErrBadField
		}
	} else if oldKeyshare != nil || importedShare != nil {
		return nil, ErrBadField
	}
	if expectedPublicKey == nil || expectedPublicKey.IsIdentity() {
		return nil, ErrBadField
	}
	return &QuorumChangeSetup{
		Base:              base,
		OldIDs:            party.NewIDSlice(oldIDs),
		NewIDs:            party.NewIDSlice(newIDs),
		NewThreshold:      newThreshold,
		NewRankList:       newRankList,
		ExpectedPublicKey: expectedPublicKey,
		RootChainCode:     rootChainCode,
		OldKeyshare:       oldKeyshare,
		ImportedShare:     importedShare,
		AllIDs:            allIDs,
	}, nil
}

// SelfID returns this participant's party.ID.
func (s *QuorumChangeSetup) SelfID() party.ID { return s.AllIDs[s.Self] }

// IDAt maps a ParticipantIndex in this session to its party.ID.
func (s *QuorumChangeSetup) IDAt(idx party.ParticipantIndex) party.ID { return s.AllIDs[idx] }

// IndexOfID maps a party.ID to its ParticipantIndex in this session.
func (s *QuorumChangeSetup) IndexOfID(id party.ID) party.ParticipantIndex {
	for i, x := range s.AllIDs {
		if x == id {
			return party.ParticipantIndex(i)
		}
	}
	return party.ParticipantIndex(len(s.AllIDs))
}

// NewRank returns the rank id will hold after this run; id must be in
// NewIDs.
func (s *QuorumChangeSetup) NewRank(id party.ID) int {
	for i, x := range s.NewIDs {
		if x == id {
			return s.NewRankList[i]
		}
	}
	return 0
}

// IsImport reports whether this run is a key import: additive
// contributions are supplied externally rather than derived from an
// existing keyshare.
func (s *QuorumChangeSetup) IsImport() bool { return s.ImportedShare != nil }

// IsRefresh reports whether this run is a pure refresh (same participant
// set, same threshold and ranks). Always false for an import, which has no
// prior keyshare to compare against.
func (s *QuorumChangeSetup) IsRefresh() bool {
	if s.OldKeyshare == nil {
		return false
	}
	if s.NewThreshold != s.OldKeyshare.ThresholdInt() {
		return false
	}
	if len(s.OldIDs) != len(s.NewIDs) {
		return false
	}
	for i, id := range s.OldIDs {
		if s.NewIDs[i] != id {
			return false
		}
	}
	return true
}

// IsOld reports whether id held a share before this run.
func (s *QuorumChangeSetup) IsOld(id party.ID) bool { return s.OldIDs.Contains(id) }

// IsNew reports whether id will hold a share after this run.
func (s *QuorumChangeSetup) IsNew(id party.ID) bool { return s.NewIDs.Contains(id) }

// DeriveKeyID computes the new key identifier for this quorum-change run,
// per spec.md §4.10's "derive_key_id": distinct from the root chain code
// and public key, it lets consumers distinguish between keyshare
// generations sharing the same underlying secret across refreshes.
func (s *QuorumChangeSetup) DeriveKeyID() [32]byte {
	return deriveKeyID(s.ExpectedPublicKey, s.RootChainCode[:], s.NewIDs)
}
