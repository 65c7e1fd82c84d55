package schnorr_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/schnorr"
)

func TestProveVerifyRoundTrip(t *testing.T) {
	x, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	point := x.ActOnBase()

	transcript := [][]byte{[]byte("session"), {0x02}}
	proof, err := schnorr.Prove(rand.Reader, "DKLS23-DLOG-1", transcript, &x.Scalar, point)
	require.NoError(t, err)

	assert.True(t, proof.Verify("DKLS23-DLOG-1", transcript, point))
}

func TestVerifyRejectsWrongPoint(t *testing.T) {
	x, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	point := x.ActOnBase()
	other, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)

	transcript := [][]byte{[]byte("session")}
	proof, err := schnorr.Prove(rand.Reader, "DKLS23-DLOG-1", transcript, &x.Scalar, point)
	require.NoError(t, err)

	assert.False(t, proof.Verify("DKLS23-DLOG-1", transcript, other.ActOnBase()))
}

func TestVerifyRejectsMismatchedLabel(t *testing.T) {
	x, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	point := x.ActOnBase()

	proof, err := schnorr.Prove(rand.Reader, "DKLS23-DLOG-1", nil, &x.Scalar, point)
	require.NoError(t, err)

	assert.False(t, proof.Verify("DKLS23-DLOG-2", nil, point))
}
