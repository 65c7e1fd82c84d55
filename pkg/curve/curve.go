// Package curve implements the secp256k1 scalar/point arithmetic that the
// rest of this module builds on: constant-time equality, canonical 32/33
// byte encodings, and the handful of derived operations (base-point
// multiplication, "Act" == scalar multiplication of an arbitrary point)
// that the DKLS23 rounds need. It wraps decred's constant-time secp256k1
// implementation and uses saferith for the modular scalar arithmetic that
// doesn't already live on secp256k1.ModNScalar (e.g. mod-q big.Int-free
// conversions used by Birkhoff/Lagrange coefficient computation).
package curve

import (
	"crypto/subtle"
	"errors"
	"io"

	"github.com/cronokirby/saferith"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ErrInvalidEncoding is returned when decoding a scalar or point fails
// because the input is the wrong length, non-canonical, or (where
// disallowed) the identity/zero element.
var ErrInvalidEncoding = errors.New("curve: invalid encoding")

// ScalarBytes is the canonical encoding length of a scalar.
const ScalarBytes = 32

// PointBytes is the canonical compressed encoding length of a point.
const PointBytes = 33

// Order returns the secp256k1 group order as a saferith.Modulus.
func Order() *saferith.Modulus {
	return orderModulus
}

var orderModulus = func() *saferith.Modulus {
	var orderBytes [32]byte
	order := new(secp256k1.ModNScalar)
	order.SetInt(0)
	// secp256k1 group order N, big-endian.
	n := [32]byte{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe,
		0xba, 0xae, 0xdc, 0xe6, 0xaf, 0x48, 0xa0, 0x3b,
		0xbf, 0xd2, 0x5e, 0x8c, 0xd0, 0x36, 0x41, 0x41,
	}
	copy(orderBytes[:], n[:])
	return saferith.ModulusFromBytes(orderBytes[:])
}()

// Scalar is an element of the secp256k1 scalar field Z_q.
type Scalar struct {
	v secp256k1.ModNScalar
}

// NewScalar returns the zero scalar.
func NewScalar() *Scalar {
	return &Scalar{}
}

// NonZeroScalar is a Scalar proved non-zero at construction time.
type NonZeroScalar struct {
	Scalar
}

// ScalarFromNat reduces a saferith.Nat modulo q.
func ScalarFromNat(n *saferith.Nat) *Scalar {
	var buf [32]byte
	reduced := new(saferith.Nat).Mod(n, orderModulus)
	reduced.FillBytes(buf[:])
	s := NewScalar()
	s.v.SetBytes(&buf)
	return s
}

// RandomScalar draws a uniform nonzero scalar from r (r MUST be a CSPRNG;
// spec.md §8 end-to-end scenarios use a seeded ChaCha20 stream for
// determinism, which satisfies this contract).
func RandomScalar(r io.Reader) (*NonZeroScalar, error) {
	for {
		var buf [32]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		s := NewScalar()
		overflow := s.v.SetBytes(&buf)
		if overflow != 0 || s.v.IsZero() {
			continue
		}
		return &NonZeroScalar{Scalar: *s}, nil
	}
}

// DecodeScalar decodes a canonical 32-byte scalar. Non-canonical (>= q)
// encodings are rejected.
func DecodeScalar(b []byte) (*Scalar, error) {
	if len(b) != ScalarBytes {
		return nil, ErrInvalidEncoding
	}
	var buf [32]byte
	copy(buf[:], b)
	s := NewScalar()
	if overflow := s.v.SetBytes(&buf); overflow != 0 {
		return nil, ErrInvalidEncoding
	}
	return s, nil
}

// Bytes returns the canonical 32-byte big-endian encoding.
func (s *Scalar) Bytes() []byte {
	b := s.v.Bytes()
	out := make([]byte, ScalarBytes)
	copy(out[:], b[:])
	return out
}

// IsZero reports whether s is the additive identity, in constant time.
func (s *Scalar) IsZero() bool { return s.v.IsZero() }

// Equal reports whether s == other in constant time.
func (s *Scalar) Equal(other *Scalar) bool {
	a, b := s.Bytes(), other.Bytes()
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Set copies other into s and returns s.
func (s *Scalar) Set(other *Scalar) *Scalar {
	s.v = other.v
	return s
}

// Add returns s + other as a new Scalar.
func (s *Scalar) Add(other *Scalar) *Scalar {
	out := NewScalar()
	out.v.Set(&s.v).Add(&other.v)
	return out
}

// Sub returns s - other as a new Scalar.
func (s *Scalar) Sub(other *Scalar) *Scalar {
	neg := NewScalar()
	neg.v.Set(&other.v).Negate()
	return s.Add(neg)
}

// IsHighS reports whether s is greater than q/2, the BIP-0062 condition
// under which an ECDSA signature's s component must be negated to its
// canonical low-S form.
func (s *Scalar) IsHighS() bool {
	return s.v.IsOverHalfOrder()
}

// Negate returns -s as a new Scalar.
func (s *Scalar) Negate() *Scalar {
	out := NewScalar()
	out.v.Set(&s.v).Negate()
	return out
}

// Mul returns s * other as a new Scalar.
func (s *Scalar) Mul(other *Scalar) *Scalar {
	out := NewScalar()
	out.v.Set(&s.v).Mul(&other.v)
	return out
}

// Inverse returns s^-1 as a new Scalar. Panics if s is zero.
func (s *Scalar) Inverse() *Scalar {
	if s.v.IsZero() {
		panic("curve: inverse of zero scalar")
	}
	out := NewScalar()
	out.v.Set(&s.v).InverseNonConst()
	return out
}

// ActOnBase returns s*G as a new Point.
func (s *Scalar) ActOnBase() *Point {
	var j secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s.v, &j)
	j.ToAffine()
	return &Point{x: j.X, y: j.Y, inf: j.X.IsZero() && j.Y.IsZero()}
}

// Act returns s*P as a new Point ("acts on" p, i.e. scalar multiplication).
func (s *Scalar) Act(p *Point) *Point {
	if p.inf {
		return NewIdentityPoint()
	}
	var pj, out secp256k1.JacobianPoint
	p.toJacobian(&pj)
	secp256k1.ScalarMultNonConst(&s.v, &pj, &out)
	out.ToAffine()
	return &Point{x: out.X, y: out.Y, inf: out.X.IsZero() && out.Y.IsZero()}
}

// Point is a point on the secp256k1 curve in affine coordinates.
type Point struct {
	x, y secp256k1.FieldVal
	inf  bool
}

// NewIdentityPoint returns the point at infinity.
func NewIdentityPoint() *Point { return &Point{inf: true} }

// NewPoint is an alias for NewIdentityPoint, matching the additive-identity
// constructor idiom used throughout the teacher's curve API.
func NewPoint() *Point { return NewIdentityPoint() }

// IsIdentity reports whether p is the point at infinity.
func (p *Point) IsIdentity() bool { return p.inf }

// Equal reports whether p == other in constant time for the finite-point
// case (identity comparison is not secret-dependent).
func (p *Point) Equal(other *Point) bool {
	if p.inf || other.inf {
		return p.inf == other.inf
	}
	return subtle.ConstantTimeCompare(p.x.Bytes()[:], other.x.Bytes()[:]) == 1 &&
		subtle.ConstantTimeCompare(p.y.Bytes()[:], other.y.Bytes()[:]) == 1
}

// Add returns p + other as a new Point.
func (p *Point) Add(other *Point) *Point {
	if p.inf {
		return other.clone()
	}
	if other.inf {
		return p.clone()
	}
	var pj, oj, sum secp256k1.JacobianPoint
	p.toJacobian(&pj)
	other.toJacobian(&oj)
	secp256k1.AddNonConst(&pj, &oj, &sum)
	sum.ToAffine()
	return &Point{x: sum.X, y: sum.Y, inf: sum.X.IsZero() && sum.Y.IsZero()}
}

// Sub returns p - other as a new Point.
func (p *Point) Sub(other *Point) *Point {
	return p.Add(other.Negate())
}

// XScalar returns the point's affine x-coordinate reduced mod the group
// order q, the `r` component of an ECDSA signature (spec.md §4.9 "r =
// R.x mod q").
func (p *Point) XScalar() *Scalar {
	x := p.x
	x.Normalize()
	return ScalarFromBytesModQ(x.Bytes()[:])
}

// YIsOdd reports whether the point's affine y-coordinate is odd, the only
// input to the ECDSA recovery id DSG computes (no x-overflow bit).
func (p *Point) YIsOdd() bool {
	y := p.y
	y.Normalize()
	return y.IsOdd()
}

// Negate returns -p as a new point.
func (p *Point) Negate() *Point {
	if p.inf {
		return NewIdentityPoint()
	}
	y := p.y
	y.Negate(1).Normalize()
	return &Point{x: p.x, y: y}
}

func (p *Point) clone() *Point {
	c := *p
	return &c
}

func (p *Point) toJacobian(j *secp256k1.JacobianPoint) {
	j.X = p.x
	j.Y = p.y
	j.Z.SetInt(1)
}

// CompressedBytes returns the canonical 33-byte SEC1 compressed encoding.
// The identity element encodes as 33 zero bytes, which decodes back to the
// identity iff allowIdentity is passed to DecodePoint.
func (p *Point) CompressedBytes() []byte {
	out := make([]byte, PointBytes)
	if p.inf {
		return out
	}
	x := p.x
	x.Normalize()
	y := p.y
	y.Normalize()
	if y.IsOdd() {
		out[0] = 0x03
	} else {
		out[0] = 0x02
	}
	xb := x.Bytes()
	copy(out[1:], xb[:])
	return out
}

// DecodePoint decodes a canonical 33-byte compressed point. Passing
// allowIdentity=false (the common case for public keys/verification
// shares) rejects the all-zero identity encoding.
func DecodePoint(b []byte, allowIdentity bool) (*Point, error) {
	if len(b) != PointBytes {
		return nil, ErrInvalidEncoding
	}
	allZero := true
	for _, c := range b {
		if c != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		if !allowIdentity {
			return nil, ErrInvalidEncoding
		}
		return NewIdentityPoint(), nil
	}
	var pub secp256k1.PublicKey
	parsed, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	pub = *parsed
	return &Point{x: *pub.X(), y: *pub.Y()}, nil
}

// ToSecp256k1 exposes the underlying public key, used by pkg/message for
// ECDSA signature verification against a verifying key point.
func (p *Point) ToSecp256k1() *secp256k1.PublicKey {
	x, y := p.x, p.y
	return secp256k1.NewPublicKey(&x, &y)
}
