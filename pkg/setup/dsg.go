package setup

import (
	"github.com/silence-laboratories/dkls23/pkg/keyshare"
	"github.com/silence-laboratories/dkls23/pkg/party"
)

// HashAlgo identifies how the 32-byte message digest DSGSetup carries was
// produced, for on-disk setup messages (spec.md §6's "Setup message
// on-disk format"); DSG itself always signs a pre-hashed 32-byte digest
// regardless of this tag.
type HashAlgo uint8

const (
	HashU32  HashAlgo = 0
	Sha256   HashAlgo = 1
	Sha256D  HashAlgo = 2
)

// DSGSetup is the per-party configuration DSG reads, per spec.md §4.6 /
// §4.9: the Keyshare to sign with, the BIP32 chain path to derive before
// signing, and the message hash to sign. It carries no separate expected
// public key: signing uses Keyshare.PublicKey as stored in the keyshare.
type DSGSetup struct {
	Base

	Keyshare    *keyshare.Keyshare
	ChainPath   string
	MessageHash [32]byte
	HashAlgo    HashAlgo

	// SignerIDs maps this DSG session's dense ParticipantIndex space
	// (0..len(SignerIDs)-1, what Base.Self/VerifyingKeys are indexed by)
	// to the keyshare's party.ID space, since a signing quorum is usually
	// a strict t-sized subset of the n parties a Keyshare was produced
	// for.
	SignerIDs party.IDSlice
}

// NewDSGSetup validates and constructs a DSGSetup. signerIDs must have
// exactly base.Total entries (at least ks's threshold), one per
// ParticipantIndex in this session, each naming a distinct party.ID
// present in ks.
func NewDSGSetup(base Base, ks *keyshare.Keyshare, chainPath string, hash [32]byte, algo HashAlgo, signerIDs party.IDSlice) (*DSGSetup, error) {
	if err := ks.Validate(); err != nil {
		return nil, err
	}
	if chainPath == "" {
		chainPath = "m"
	}
	if algo > Sha256D {
		return nil, ErrBadHashAlgo
	}
	if len(signerIDs) != base.Total || len(signerIDs) < ks.ThresholdInt() {
		return nil, ErrBadPartyCount
	}
	if !signerIDs.Valid() {
		return nil, ErrBadField
	}
	for _, id := range signerIDs {
		if ks.PartyByID(id) == nil {
			return nil, ErrBadField
		}
	}
	return &DSGSetup{Base: base, Keyshare: ks, ChainPath: chainPath, MessageHash: hash, HashAlgo: algo, SignerIDs: signerIDs}, nil
}

// SelfID returns this participant's keyshare party.ID.
func (s *DSGSetup) SelfID() party.ID { return s.SignerIDs[s.Self] }

// IDAt maps a ParticipantIndex in this DSG session to its keyshare party.ID.
func (s *DSGSetup) IDAt(idx party.ParticipantIndex) party.ID { return s.SignerIDs[idx] }
