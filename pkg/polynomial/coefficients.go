package polynomial

import (
	"errors"

	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/party"
)

// LagrangeCoefficients returns the classical Lagrange reconstruction
// coefficients for the given set of x-coordinates, keyed by party id, such
// that Σ coeff[i] * f(x_i) == f(0). Mirrors the teacher's
// polynomial.Lagrange(group, ids) (pkg/math/polynomial/lagrange_test.go).
func LagrangeCoefficients(ids []party.ID, xs map[party.ID]*curve.Scalar) map[party.ID]*curve.Scalar {
	out := make(map[party.ID]*curve.Scalar, len(ids))
	for _, i := range ids {
		xi := xs[i]
		num := curve.ScalarFromUint64(1)
		den := curve.ScalarFromUint64(1)
		for _, j := range ids {
			if j == i {
				continue
			}
			xj := xs[j]
			num = num.Mul(xj.Negate())
			den = den.Mul(xi.Sub(xj))
		}
		out[i] = num.Mul(den.Inverse())
	}
	return out
}

// BirkhoffCoefficients generalizes Lagrange reconstruction to mixed-rank
// evaluation points (spec.md §4.1 "birkhoff_coeffs"). It solves for the
// coefficients c_i such that Σ c_i * f^(rank_i)(x_i)/rank_i! == f(0),
// by inverting the generalized Vandermonde (Birkhoff) matrix
// M[i][k] = falling_factorial(k, rank_i) / rank_i! * x_i^{k-rank_i}.
//
// If every rank is 0 this reduces to plain Lagrange, and callers SHOULD
// prefer LagrangeCoefficients in that case for clarity and speed, per
// spec.md §4.7 ("zero_ranks() iff every rank is 0 (selects Lagrange vs
// Birkhoff in signing)").
func BirkhoffCoefficients(points []RankedPoint) (map[party.ID]*curve.Scalar, error) {
	n := len(points)
	if n == 0 {
		return nil, errors.New("polynomial: empty point set")
	}

	// Build the n x n matrix M and solve M^T c = e_0 via Gaussian
	// elimination over the scalar field.
	m := make([][]*curve.Scalar, n)
	for i, p := range points {
		row := make([]*curve.Scalar, n)
		for k := 0; k < n; k++ {
			row[k] = derivativeCoeffOfXk(k, p.Rank, p.X)
		}
		m[i] = row
	}

	aug := make([][]*curve.Scalar, n)
	for k := 0; k < n; k++ {
		row := make([]*curve.Scalar, n+1)
		for i := 0; i < n; i++ {
			row[i] = m[i][k]
		}
		if k == 0 {
			row[n] = curve.ScalarFromUint64(1)
		} else {
			row[n] = curve.NewScalar()
		}
		aug[k] = row
	}

	solution, err := solveLinearSystem(aug)
	if err != nil {
		return nil, err
	}

	out := make(map[party.ID]*curve.Scalar, n)
	for i, p := range points {
		out[p.ID] = solution[i]
	}
	return out, nil
}

// derivativeCoeffOfXk returns the coefficient of x^k in x_i^(rank)/rank!
// i.e. falling_factorial(k,rank)/rank! * x^{k-rank} evaluated at x, or 0
// when k < rank.
func derivativeCoeffOfXk(k, rank int, x *curve.Scalar) *curve.Scalar {
	if k < rank {
		return curve.NewScalar()
	}
	coeff := fallingFactorial(k, rank).Mul(inverseFactorial(rank))
	for i := 0; i < k-rank; i++ {
		coeff = coeff.Mul(x)
	}
	return coeff
}

// solveLinearSystem performs Gaussian elimination with partial "pivot
// nonzero" selection (field arithmetic has no meaningful magnitude, so any
// nonzero pivot is acceptable) on an n x (n+1) augmented matrix.
func solveLinearSystem(aug [][]*curve.Scalar) ([]*curve.Scalar, error) {
	n := len(aug)
	for col := 0; col < n; col++ {
		pivot := -1
		for row := col; row < n; row++ {
			if !aug[row][col].IsZero() {
				pivot = row
				break
			}
		}
		if pivot == -1 {
			return nil, errors.New("polynomial: singular Birkhoff matrix (duplicate or degenerate evaluation points)")
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		inv := aug[col][col].Inverse()
		for k := col; k <= n; k++ {
			aug[col][k] = aug[col][k].Mul(inv)
		}
		for row := 0; row < n; row++ {
			if row == col {
				continue
			}
			factor := aug[row][col]
			if factor.IsZero() {
				continue
			}
			for k := col; k <= n; k++ {
				aug[row][k] = aug[row][k].Sub(factor.Mul(aug[col][k]))
			}
		}
	}
	out := make([]*curve.Scalar, n)
	for i := 0; i < n; i++ {
		out[i] = aug[i][n]
	}
	return out, nil
}

// ZeroRanks reports whether every value in ranks is 0, the condition under
// which callers should use Lagrange rather than Birkhoff reconstruction.
func ZeroRanks(ranks map[party.ID]int) bool {
	for _, r := range ranks {
		if r != 0 {
			return false
		}
	}
	return true
}
