package keyshare

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/party"
)

// ForRefresh is the input a party supplies to the refresh/quorum-change
// protocol: either its existing additive share (for parties that still
// hold one) or just its party id (for a party recovering a lost share),
// grounded on original_source/src/keygen/key_refresh.rs's
// KeyshareForRefresh. Unlike Keyshare, this is a transient protocol input
// rather than a long-lived container, so it round-trips through CBOR
// rather than the flat buffer layout.
type ForRefresh struct {
	RankList             []int
	Threshold            int
	PublicKey            *curve.Point
	RootChainCode        [32]byte
	Si                   *curve.Scalar // nil if this party lost its share
	XList                []*curve.NonZeroScalar
	LostKeysharePartyIDs []party.ID
	PartyID              party.ID
}

// ToBytes serializes a ForRefresh value via CBOR.
func (f *ForRefresh) ToBytes() ([]byte, error) {
	return cbor.Marshal(f)
}

// FromRefreshBytes parses a CBOR-encoded ForRefresh value.
func FromRefreshBytes(b []byte) (*ForRefresh, error) {
	var f ForRefresh
	if err := cbor.Unmarshal(b, &f); err != nil {
		return nil, ErrBadField
	}
	return &f, nil
}
