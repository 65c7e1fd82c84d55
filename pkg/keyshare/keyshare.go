// Package keyshare implements the fixed-layout, zero-copy keyshare
// container of spec.md §4.7/§3 ("Keyshare"), produced by DKG, refresh,
// quorum-change, and import, and consumed by DSG. There is no teacher
// package for this exact container (the retrieved luxfi-threshold tree
// keeps its CMP config in protocols/lss/config, a Go-struct-plus-CBOR
// design rather than a flat buffer); this follows the flat-buffer layout
// spec.md mandates directly, cross-checked against
// original_source/src/keygen/types.rs's Keyshare field order.
package keyshare

import (
	"encoding/binary"
	"errors"

	"github.com/silence-laboratories/dkls23/internal/zeroize"
	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/ot"
	"github.com/silence-laboratories/dkls23/pkg/party"
)

// Magic is the fixed 4-byte tag every valid keyshare buffer begins with.
const Magic uint32 = 0x00000001

// Errors surfaced per spec.md §7 as InvalidMessage for malformed input.
var (
	ErrBadMagic     = errors.New("keyshare: bad magic")
	ErrBadThreshold = errors.New("keyshare: threshold out of range")
	ErrBadLength    = errors.New("keyshare: buffer length does not match header")
	ErrBadField     = errors.New("keyshare: malformed field")
)

// PartyMaterial is every other-party-indexed field a Keyshare carries.
type PartyMaterial struct {
	ID    party.ID
	Rank  int
	X     *curve.NonZeroScalar
	BigS  *curve.Point
	Sender   *ot.SenderOTSeed   // nil for self
	Receiver *ot.ReceiverOTSeed // nil for self
	ZetaSeed [32]byte
}

// Keyshare is the immutable, per-party output of a successful DKG,
// refresh, quorum-change, or import. Every field here is held in memory
// decoded (not as a raw flat buffer) for ergonomic Go access; ToBytes/
// FromBytes marshal to and from the flat wire layout spec.md requires for
// on-disk storage, and Zeroize wipes every secret field.
type Keyshare struct {
	TotalParties uint32
	Threshold    uint32
	PartyID      party.ID

	FinalSessionID [32]byte
	KeyID          [32]byte
	RootChainCode  [32]byte
	PublicKey      *curve.Point

	Si *curve.Scalar

	Parties []PartyMaterial // includes self, ordered by party.ID
}

// ThresholdInt returns Threshold as an int, for callers that compare it
// against other int-typed counts (e.g. setup.QuorumChangeSetup.IsRefresh).
func (k *Keyshare) ThresholdInt() int { return int(k.Threshold) }

// SelfMaterial returns this keyshare holder's own entry in Parties.
func (k *Keyshare) SelfMaterial() *PartyMaterial {
	for i := range k.Parties {
		if k.Parties[i].ID == k.PartyID {
			return &k.Parties[i]
		}
	}
	return nil
}

// ZeroRanks reports whether every party's rank is 0, the condition under
// which signing uses plain Lagrange interpolation rather than Birkhoff
// (spec.md §4.7 "zero_ranks()").
func (k *Keyshare) ZeroRanks() bool {
	for _, p := range k.Parties {
		if p.Rank != 0 {
			return false
		}
	}
	return true
}

// PartyByID returns the PartyMaterial entry for id, or nil if id is not a
// party to this keyshare.
func (k *Keyshare) PartyByID(id party.ID) *PartyMaterial {
	for i := range k.Parties {
		if k.Parties[i].ID == id {
			return &k.Parties[i]
		}
	}
	return nil
}

// GetIdxFromID maps a peer party id to its dense "other party" index,
// skipping self, per spec.md §4.7.
func (k *Keyshare) GetIdxFromID(peer party.ID) int {
	ids := make(party.IDSlice, 0, len(k.Parties))
	for _, p := range k.Parties {
		ids = append(ids, p.ID)
	}
	return party.OtherIndex(k.PartyID, party.NewIDSlice(ids), peer)
}

// Validate checks the structural invariants spec.md §4.7 requires before
// a Keyshare is trusted: threshold bounds, every x_i nonzero/decodable
// (enforced by NonZeroScalar's construction), and a decodable public key.
func (k *Keyshare) Validate() error {
	if k.Threshold < 2 || k.Threshold > k.TotalParties {
		return ErrBadThreshold
	}
	if k.PublicKey == nil || k.PublicKey.IsIdentity() {
		return ErrBadField
	}
	if int(k.TotalParties) != len(k.Parties) {
		return ErrBadLength
	}
	for _, p := range k.Parties {
		if p.X == nil || p.X.IsZero() {
			return ErrBadField
		}
	}
	return nil
}

// Zeroize wipes every secret scalar and seed this keyshare holds. The
// caller MUST call this once the keyshare is no longer needed, matching
// spec.md's "serialized form MUST be zeroized on drop" (Go has no Drop,
// so this module makes the wipe an explicit, caller-invoked operation
// rather than relying on a finalizer).
func (k *Keyshare) Zeroize() {
	if k.Si != nil {
		k.Si.Set(curve.NewScalar())
	}
	zeroize.Bytes(k.FinalSessionID[:])
	zeroize.Bytes(k.KeyID[:])
	zeroize.Bytes(k.RootChainCode[:])
	for i := range k.Parties {
		zeroize.Bytes32(&k.Parties[i].ZetaSeed)
		if k.Parties[i].Sender != nil {
			for c := range k.Parties[i].Sender.Seeds {
				zeroize.Bytes32(&k.Parties[i].Sender.Seeds[c][0])
				zeroize.Bytes32(&k.Parties[i].Sender.Seeds[c][1])
			}
		}
		if k.Parties[i].Receiver != nil {
			for c := range k.Parties[i].Receiver.Seeds {
				zeroize.Bytes32(&k.Parties[i].Receiver.Seeds[c])
			}
		}
	}
}

// headerSize is the size of the fixed-length prefix: magic(4) +
// totalParties(4) + threshold(4) + partyID(1) + finalSessionId(32) +
// keyId(32) + rootChainCode(32) + publicKey(33) + s_i(32).
const headerSize = 4 + 4 + 4 + 1 + 32 + 32 + 32 + curve.PointBytes + curve.ScalarBytes

// perPartySize is the size of one PartyMaterial record: id(1) + rank(4) +
// x(32) + bigS(33) + zetaSeed(32) + senderSeeds(256*2*32) +
// receiverSeeds(256*32) + hasSender(1) + hasReceiver(1).
const perPartySize = 1 + 4 + curve.ScalarBytes + curve.PointBytes + 32 + 256*2*32 + 256*32 + 1 + 1

// Size returns the exact flat-buffer length for n parties, per spec.md's
// "buffer length equals the computed size for (n, extra)".
func Size(n int) int {
	return headerSize + n*perPartySize
}

// ToBytes serializes the keyshare into its flat on-disk layout.
func (k *Keyshare) ToBytes() []byte {
	buf := make([]byte, Size(len(k.Parties)))
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], Magic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], k.TotalParties)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], k.Threshold)
	off += 4
	buf[off] = byte(k.PartyID)
	off++
	off += copy(buf[off:], k.FinalSessionID[:])
	off += copy(buf[off:], k.KeyID[:])
	off += copy(buf[off:], k.RootChainCode[:])
	off += copy(buf[off:], k.PublicKey.CompressedBytes())
	off += copy(buf[off:], k.Si.Bytes())

	for _, p := range k.Parties {
		buf[off] = byte(p.ID)
		off++
		binary.LittleEndian.PutUint32(buf[off:], uint32(p.Rank))
		off += 4
		off += copy(buf[off:], p.X.Bytes())
		off += copy(buf[off:], p.BigS.CompressedBytes())
		off += copy(buf[off:], p.ZetaSeed[:])
		if p.Sender != nil {
			buf[off] = 1
			off++
			for _, col := range p.Sender.Seeds {
				off += copy(buf[off:], col[0][:])
				off += copy(buf[off:], col[1][:])
			}
		} else {
			buf[off] = 0
			off++
			off += 256 * 2 * 32
		}
		if p.Receiver != nil {
			buf[off] = 1
			off++
			for _, seed := range p.Receiver.Seeds {
				off += copy(buf[off:], seed[:])
			}
		} else {
			buf[off] = 0
			off++
			off += 256 * 32
		}
	}
	return buf
}

// FromBytes parses and validates a flat keyshare buffer, rejecting
// malformed input per spec.md §4.7.
func FromBytes(buf []byte) (*Keyshare, error) {
	if len(buf) < headerSize {
		return nil, ErrBadLength
	}
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != Magic {
		return nil, ErrBadMagic
	}
	k := &Keyshare{}
	k.TotalParties = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	k.Threshold = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if len(buf) != Size(int(k.TotalParties)) {
		return nil, ErrBadLength
	}
	k.PartyID = party.ID(buf[off])
	off++
	off += copy(k.FinalSessionID[:], buf[off:off+32])
	off += copy(k.KeyID[:], buf[off:off+32])
	off += copy(k.RootChainCode[:], buf[off:off+32])

	pk, err := curve.DecodePoint(buf[off:off+curve.PointBytes], false)
	if err != nil {
		return nil, ErrBadField
	}
	k.PublicKey = pk
	off += curve.PointBytes

	si, err := curve.DecodeScalar(buf[off : off+curve.ScalarBytes])
	if err != nil {
		return nil, ErrBadField
	}
	k.Si = si
	off += curve.ScalarBytes

	k.Parties = make([]PartyMaterial, k.TotalParties)
	for i := range k.Parties {
		p := &k.Parties[i]
		p.ID = party.ID(buf[off])
		off++
		p.Rank = int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4

		x, err := curve.DecodeScalar(buf[off : off+curve.ScalarBytes])
		if err != nil || x.IsZero() {
			return nil, ErrBadField
		}
		p.X = &curve.NonZeroScalar{Scalar: *x}
		off += curve.ScalarBytes

		bigS, err := curve.DecodePoint(buf[off:off+curve.PointBytes], true)
		if err != nil {
			return nil, ErrBadField
		}
		p.BigS = bigS
		off += curve.PointBytes

		off += copy(p.ZetaSeed[:], buf[off:off+32])

		hasSender := buf[off]
		off++
		if hasSender == 1 {
			p.Sender = &ot.SenderOTSeed{}
			for c := range p.Sender.Seeds {
				off += copy(p.Sender.Seeds[c][0][:], buf[off:off+32])
				off += copy(p.Sender.Seeds[c][1][:], buf[off:off+32])
			}
		} else {
			off += 256 * 2 * 32
		}

		hasReceiver := buf[off]
		off++
		if hasReceiver == 1 {
			p.Receiver = &ot.ReceiverOTSeed{}
			for c := range p.Receiver.Seeds {
				off += copy(p.Receiver.Seeds[c][:], buf[off:off+32])
			}
		} else {
			off += 256 * 32
		}
	}

	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}
