// Package polynomial implements the scalar and group polynomials that back
// Shamir/Feldman/Birkhoff secret sharing (spec.md §3, §4.1).
package polynomial

import (
	"io"

	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/party"
)

// Polynomial is a degree-(t-1) scalar polynomial, coefficients low-to-high.
// The constant coefficient (index 0) holds the party's additive
// contribution to the joint secret and MUST be wiped by Zeroize when the
// polynomial is no longer needed (spec.md §3 lifecycle).
type Polynomial struct {
	coeffs []*curve.Scalar
}

// NewRandomPolynomial samples a degree-(t-1) polynomial with the given
// constant term, re-sampling any coefficient that lands on zero (spec.md
// §4.8 edge-case policy: "re-sample on the measure-zero event").
func NewRandomPolynomial(r io.Reader, degree int, constant *curve.Scalar) (*Polynomial, error) {
	coeffs := make([]*curve.Scalar, degree+1)
	coeffs[0] = constant
	for i := 1; i <= degree; i++ {
		s, err := curve.RandomScalar(r)
		if err != nil {
			return nil, err
		}
		coeffs[i] = &s.Scalar
	}
	return &Polynomial{coeffs: coeffs}, nil
}

// NewConstantPolynomial returns a degree-0 "polynomial" that is just the
// constant, used for additive contributions supplied externally (key
// import, spec.md §4.10).
func NewConstantPolynomial(constant *curve.Scalar) *Polynomial {
	return &Polynomial{coeffs: []*curve.Scalar{constant}}
}

// Degree returns the polynomial's degree.
func (p *Polynomial) Degree() int { return len(p.coeffs) - 1 }

// Constant returns the constant coefficient f(0).
func (p *Polynomial) Constant() *curve.Scalar { return p.coeffs[0] }

// Coefficients returns the raw coefficient vector, low-to-high degree.
func (p *Polynomial) Coefficients() []*curve.Scalar { return p.coeffs }

// Evaluate computes f(x).
func (p *Polynomial) Evaluate(x *curve.Scalar) *curve.Scalar {
	acc := curve.NewScalar()
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		acc = acc.Mul(x).Add(p.coeffs[i])
	}
	return acc
}

// DerivativeAt evaluates the rank-th formal derivative of p at x, divided
// by rank! so the result lands back in the scalar field (spec.md §4.1:
// "polynomial.derivative_at(rank, x)"). rank=0 is plain evaluation.
func (p *Polynomial) DerivativeAt(rank int, x *curve.Scalar) *curve.Scalar {
	if rank == 0 {
		return p.Evaluate(x)
	}
	// Horner evaluation of sum_{k=rank}^{deg} c_k * (k!/(k-rank)!) * x^{k-rank} / rank!
	acc := curve.NewScalar()
	for k := len(p.coeffs) - 1; k >= rank; k-- {
		coeff := p.coeffs[k].Mul(fallingFactorial(k, rank))
		acc = acc.Mul(x).Add(coeff)
	}
	invRankFact := inverseFactorial(rank)
	return acc.Mul(invRankFact)
}

// fallingFactorial returns k*(k-1)*...*(k-rank+1) as a Scalar.
func fallingFactorial(k, rank int) *curve.Scalar {
	acc := curve.ScalarFromUint64(1)
	for i := 0; i < rank; i++ {
		acc = acc.Mul(curve.ScalarFromUint64(uint64(k - i)))
	}
	return acc
}

// inverseFactorial returns (n!)^-1 mod q.
func inverseFactorial(n int) *curve.Scalar {
	acc := curve.ScalarFromUint64(1)
	for i := 2; i <= n; i++ {
		acc = acc.Mul(curve.ScalarFromUint64(uint64(i)))
	}
	if n == 0 {
		return acc
	}
	return acc.Inverse()
}

// Commit computes the GroupPolynomial p·G, i.e. commits to every
// coefficient under the base point.
func (p *Polynomial) Commit() *GroupPolynomial {
	commits := make([]*curve.Point, len(p.coeffs))
	for i, c := range p.coeffs {
		commits[i] = c.ActOnBase()
	}
	return &GroupPolynomial{coeffs: commits}
}

// Zeroize overwrites every coefficient, including the constant term
// (spec.md §3: "the constant coefficient ... MUST be wiped").
func (p *Polynomial) Zeroize() {
	zero := curve.NewScalar()
	for i := range p.coeffs {
		p.coeffs[i].Set(zero)
	}
	p.coeffs = nil
}

// GroupPolynomial is the coefficient vector of a Polynomial under G,
// i.e. commitments c_k = a_k * G.
type GroupPolynomial struct {
	coeffs []*curve.Point
}

// NewGroupPolynomial wraps an existing coefficient-commitment vector.
func NewGroupPolynomial(coeffs []*curve.Point) *GroupPolynomial {
	return &GroupPolynomial{coeffs: append([]*curve.Point(nil), coeffs...)}
}

// Coefficients returns the raw point vector.
func (g *GroupPolynomial) Coefficients() []*curve.Point { return g.coeffs }

// Constant returns c_0 = f(0)*G.
func (g *GroupPolynomial) Constant() *curve.Point { return g.coeffs[0] }

// Degree returns the represented polynomial's degree.
func (g *GroupPolynomial) Degree() int { return len(g.coeffs) - 1 }

// Evaluate computes f(x)*G from the coefficient commitments.
func (g *GroupPolynomial) Evaluate(x *curve.Scalar) *curve.Point {
	acc := curve.NewIdentityPoint()
	xPow := curve.ScalarFromUint64(1)
	for _, c := range g.coeffs {
		acc = acc.Add(xPow.Act(c))
		xPow = xPow.Mul(x)
	}
	return acc
}

// DerivativeCoefficients returns, for the rank-th formal derivative divided
// by rank!, the coefficient vector c'_k = ((k+rank)!/k!/rank!) * c_{k+rank}
// such that Σ c'_k x^k = f^(rank)(x)/rank! * G. Used by Feldman
// verification of a derivative share (spec.md §4.1 feldman_verify).
func (g *GroupPolynomial) DerivativeCoefficients(rank int) []*curve.Point {
	if rank == 0 {
		return g.coeffs
	}
	out := make([]*curve.Point, 0, len(g.coeffs)-rank)
	invRankFact := inverseFactorial(rank)
	for k := rank; k < len(g.coeffs); k++ {
		scale := fallingFactorial(k, rank).Mul(invRankFact)
		out = append(out, scale.Act(g.coeffs[k]))
	}
	return out
}

// Add returns the coefficient-wise sum of two group polynomials, padding
// the shorter with identity coefficients.
func (g *GroupPolynomial) Add(other *GroupPolynomial) *GroupPolynomial {
	n := len(g.coeffs)
	if len(other.coeffs) > n {
		n = len(other.coeffs)
	}
	out := make([]*curve.Point, n)
	for i := 0; i < n; i++ {
		acc := curve.NewIdentityPoint()
		if i < len(g.coeffs) {
			acc = acc.Add(g.coeffs[i])
		}
		if i < len(other.coeffs) {
			acc = acc.Add(other.coeffs[i])
		}
		out[i] = acc
	}
	return &GroupPolynomial{coeffs: out}
}

// FeldmanVerify returns true iff Σ coeffsOfDerivative[k]·x_i^k == f_i·G,
// spec.md §4.1's feldman_verify.
func FeldmanVerify(coeffsOfDerivative []*curve.Point, xi *curve.Scalar, fi *curve.Scalar) bool {
	acc := curve.NewIdentityPoint()
	xPow := curve.ScalarFromUint64(1)
	for _, c := range coeffsOfDerivative {
		acc = acc.Add(xPow.Act(c))
		xPow = xPow.Mul(xi)
	}
	return acc.Equal(fi.ActOnBase())
}

// RankedPoint associates a participating party's id with its Shamir
// x-coordinate and rank, the input to Birkhoff reconstruction.
type RankedPoint struct {
	ID   party.ID
	X    *curve.Scalar
	Rank int
}
