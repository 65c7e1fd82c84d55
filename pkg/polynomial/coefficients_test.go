package polynomial_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/party"
	"github.com/silence-laboratories/dkls23/pkg/polynomial"
)

func TestLagrangeCoefficientsSumToOne(t *testing.T) {
	ids := []party.ID{0, 1, 2, 3, 4}
	xs := make(map[party.ID]*curve.Scalar, len(ids))
	for _, id := range ids {
		xs[id] = &curve.XCoord(id).Scalar
	}

	coeffs := polynomial.LagrangeCoefficients(ids, xs)

	sum := curve.NewScalar()
	for _, c := range coeffs {
		sum = sum.Add(c)
	}
	assert.True(t, sum.Equal(curve.ScalarFromUint64(1)))
}

func TestLagrangeReconstructsConstantTerm(t *testing.T) {
	ids := []party.ID{0, 1, 2, 3}
	secret, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)

	poly, err := polynomial.NewRandomPolynomial(rand.Reader, len(ids)-1, &secret.Scalar)
	require.NoError(t, err)

	xs := make(map[party.ID]*curve.Scalar, len(ids))
	shares := make(map[party.ID]*curve.Scalar, len(ids))
	for _, id := range ids {
		x := &curve.XCoord(id).Scalar
		xs[id] = x
		shares[id] = poly.Evaluate(x)
	}

	coeffs := polynomial.LagrangeCoefficients(ids, xs)
	reconstructed := curve.NewScalar()
	for _, id := range ids {
		reconstructed = reconstructed.Add(coeffs[id].Mul(shares[id]))
	}

	assert.True(t, reconstructed.Equal(&secret.Scalar))
}

func TestBirkhoffReducesToLagrangeWhenZeroRanks(t *testing.T) {
	ids := []party.ID{0, 1, 2}
	secret, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)

	poly, err := polynomial.NewRandomPolynomial(rand.Reader, len(ids)-1, &secret.Scalar)
	require.NoError(t, err)

	points := make([]polynomial.RankedPoint, len(ids))
	shares := make(map[party.ID]*curve.Scalar, len(ids))
	for i, id := range ids {
		x := &curve.XCoord(id).Scalar
		points[i] = polynomial.RankedPoint{ID: id, X: x, Rank: 0}
		shares[id] = poly.Evaluate(x)
	}

	coeffs, err := polynomial.BirkhoffCoefficients(points)
	require.NoError(t, err)

	reconstructed := curve.NewScalar()
	for _, id := range ids {
		reconstructed = reconstructed.Add(coeffs[id].Mul(shares[id]))
	}

	assert.True(t, reconstructed.Equal(&secret.Scalar))
}
