package mta_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/mta"
	"github.com/silence-laboratories/dkls23/pkg/ot"
)

// fakeOTSeeds builds a matched sender/receiver OT seed pair directly
// (bypassing the base-OT/PPRF handshake) purely so the MtA round-trip can
// be exercised against a consistent view of the same underlying columns.
func fakeOTSeeds(t *testing.T) (*ot.SenderOTSeed, *ot.ReceiverOTSeed) {
	t.Helper()
	sender := &ot.SenderOTSeed{}
	for i := 0; i < 256; i++ {
		_, err := rand.Read(sender.Seeds[i][0][:])
		require.NoError(t, err)
		_, err = rand.Read(sender.Seeds[i][1][:])
		require.NoError(t, err)
	}
	choices, err := ot.RandomChoices(rand.Reader)
	require.NoError(t, err)
	receiver := &ot.ReceiverOTSeed{Choices: choices}
	for i := 0; i < 256; i++ {
		receiver.Seeds[i] = sender.Seeds[i][choices.Bit(i)]
	}
	return sender, receiver
}

func TestMtARoundTrip(t *testing.T) {
	senderSeed, receiverSeed := fakeOTSeeds(t)
	sessionID := []byte("test-mta-session")

	alpha1, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	alpha2, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	betaNZ, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	beta := &betaNZ.Scalar

	state, msg1, err := mta.ReceiverRound1(beta, receiverSeed, sessionID, rand.Reader)
	require.NoError(t, err)

	senderT0, senderT1, msg2, err := mta.SenderRound2(&alpha1.Scalar, &alpha2.Scalar, senderSeed, sessionID, msg1, rand.Reader)
	require.NoError(t, err)

	receiverT0, receiverT1, err := mta.ReceiverExtractShares(state, msg1, msg2, sessionID)
	require.NoError(t, err)

	gotT0 := senderT0.Add(receiverT0)
	gotT1 := senderT1.Add(receiverT1)

	wantT0 := alpha1.Mul(beta)
	wantT1 := alpha2.Mul(beta)

	assert.True(t, gotT0.Equal(wantT0), "t0 = alpha1*beta mismatch")
	assert.True(t, gotT1.Equal(wantT1), "t1 = alpha2*beta mismatch")
}

func TestMtAConsistencyCheckRejectsTamperedTau(t *testing.T) {
	senderSeed, receiverSeed := fakeOTSeeds(t)
	sessionID := []byte("test-mta-session-tamper")

	alpha1, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	alpha2, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	betaNZ, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	beta := &betaNZ.Scalar

	state, msg1, err := mta.ReceiverRound1(beta, receiverSeed, sessionID, rand.Reader)
	require.NoError(t, err)

	_, _, msg2, err := mta.SenderRound2(&alpha1.Scalar, &alpha2.Scalar, senderSeed, sessionID, msg1, rand.Reader)
	require.NoError(t, err)

	msg2.TauU[0] = msg2.TauU[0].Add(curve.ScalarFromUint64(1))

	_, _, err = mta.ReceiverExtractShares(state, msg1, msg2, sessionID)
	assert.ErrorIs(t, err, mta.ErrConsistencyCheckFailed)
}
