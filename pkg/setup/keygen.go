package setup

import (
	"github.com/silence-laboratories/dkls23/pkg/party"
)

// KeygenSetup is the per-party configuration DKG reads, per spec.md §4.6
// / §4.8: the threshold to share against, every party's rank (0 for a
// plain Shamir share, >0 to support hierarchical/Birkhoff reconstruction
// after a lost-share recovery), grounded on
// original_source/src/setup/keygen.rs's KeygenSetupMessage.
type KeygenSetup struct {
	Base

	Threshold int
	RankList  []int // indexed by ParticipantIndex
}

// NewKeygenSetup validates and constructs a KeygenSetup.
func NewKeygenSetup(base Base, threshold int, rankList []int) (*KeygenSetup, error) {
	if threshold < 2 || threshold > base.Total {
		return nil, ErrBadThreshold
	}
	if len(rankList) != base.Total {
		return nil, ErrBadPartyCount
	}
	return &KeygenSetup{Base: base, Threshold: threshold, RankList: rankList}, nil
}

// Rank returns the rank assigned to the party at idx.
func (s *KeygenSetup) Rank(idx party.ParticipantIndex) int {
	return s.RankList[idx]
}

// ZeroRanks reports whether every participant has rank 0 (the common case:
// a plain (t, n) Shamir sharing with no hierarchical structure).
func (s *KeygenSetup) ZeroRanks() bool {
	for _, r := range s.RankList {
		if r != 0 {
			return false
		}
	}
	return true
}
