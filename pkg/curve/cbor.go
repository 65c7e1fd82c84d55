package curve

import "github.com/fxamacker/cbor/v2"

// MarshalCBOR/UnmarshalCBOR give Scalar, NonZeroScalar and Point a compact
// canonical encoding (their fixed-size Bytes()/CompressedBytes() form)
// instead of cbor's default reflection over unexported fields, so these
// types can be embedded directly in any message payload or keyshare
// structure that round-trips through CBOR (pkg/message, pkg/keyshare).

func (s *Scalar) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(s.Bytes())
}

func (s *Scalar) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	decoded, err := DecodeScalar(b)
	if err != nil {
		return err
	}
	s.v = decoded.v
	return nil
}

func (p *Point) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(p.CompressedBytes())
}

func (p *Point) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	decoded, err := DecodePoint(b, true)
	if err != nil {
		return err
	}
	*p = *decoded
	return nil
}
