package setup_test

import (
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/silence-laboratories/dkls23/pkg/message"
	"github.com/silence-laboratories/dkls23/pkg/party"
	"github.com/silence-laboratories/dkls23/pkg/setup"
)

func threeParties(t *testing.T) []setup.Base {
	t.Helper()
	keys := make([]*secp256k1.PrivateKey, 3)
	vks := make([]*secp256k1.PublicKey, 3)
	for i := range keys {
		k, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		keys[i] = k
		vks[i] = k.PubKey()
	}
	bases := make([]setup.Base, 3)
	for i := range bases {
		bases[i] = setup.Base{
			Total:         3,
			Self:          party.ParticipantIndex(i),
			VerifyingKeys: vks,
			SigningKey:    keys[i],
			Instance:      [32]byte{1, 2, 3},
			TTL:           time.Minute,
		}
	}
	return bases
}

// A message sender's own MsgID for a p2p message to receiver must equal
// the receiver's MsgIDFrom(sender, p2p=true, tag) for the same tag — this
// is exactly the identifier the relay's Expect/Recv pairing depends on.
func TestMsgIDMatchesMsgIDFrom_P2P(t *testing.T) {
	bases := threeParties(t)
	sender := bases[0]
	receiver := party.ParticipantIndex(1)

	got := sender.MsgID(&receiver, message.DKGRound1)
	want := bases[1].MsgIDFrom(party.ParticipantIndex(0), true, message.DKGRound1)

	require.Equal(t, want, got)
}

func TestMsgIDMatchesMsgIDFrom_Broadcast(t *testing.T) {
	bases := threeParties(t)
	sender := bases[0]

	got := sender.MsgID(nil, message.DKGRound1)
	want := bases[1].MsgIDFrom(party.ParticipantIndex(0), false, message.DKGRound1)

	require.Equal(t, want, got)
	// Every other party derives the same broadcast id independently.
	want2 := bases[2].MsgIDFrom(party.ParticipantIndex(0), false, message.DKGRound1)
	require.Equal(t, want, want2)
}

func TestAllOtherPartiesExcludesSelf(t *testing.T) {
	bases := threeParties(t)
	others := bases[1].AllOtherParties()
	require.ElementsMatch(t, []party.ParticipantIndex{0, 2}, others)
}
