package dkg_test

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/silence-laboratories/dkls23/internal/relaytest"
	"github.com/silence-laboratories/dkls23/pkg/keyshare"
	"github.com/silence-laboratories/dkls23/pkg/message"
	"github.com/silence-laboratories/dkls23/pkg/party"
	"github.com/silence-laboratories/dkls23/pkg/relay"
	"github.com/silence-laboratories/dkls23/pkg/setup"
	"github.com/silence-laboratories/dkls23/protocols/dkg"
)

// TestRunTwoOfThree runs a full 3-party, threshold-2 DKG over an
// in-memory relay hub and checks every party lands on the same public
// key, final session id and key id, per spec.md §8's "n=3,t=2 happy path".
func TestRunTwoOfThree(t *testing.T) {
	const n, threshold = 3, 2

	keys := make([]*secp256k1.PrivateKey, n)
	vks := make([]*secp256k1.PublicKey, n)
	for i := range keys {
		k, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		keys[i] = k
		vks[i] = k.PubKey()
	}

	instance := [32]byte{9, 9, 9}
	rankList := make([]int, n)

	hub := relaytest.NewHub(n)
	encKeys := make([]*message.SessionKey, n)
	for i := range encKeys {
		var seed [32]byte
		_, err := rand.Read(seed[:])
		require.NoError(t, err)
		encKeys[i] = message.NewSessionKey(seed)
	}

	type outcome struct {
		idx int
		ks  *keyshare.Keyshare
		err error
	}
	out := make(chan outcome, n)

	for i := 0; i < n; i++ {
		go func(i int) {
			base := setup.Base{
				Total:         n,
				Self:          party.ParticipantIndex(i),
				VerifyingKeys: vks,
				SigningKey:    keys[i],
				Instance:      instance,
				TTL:           time.Minute,
			}
			su, err := setup.NewKeygenSetup(base, threshold, rankList)
			if err != nil {
				out <- outcome{idx: i, err: err}
				return
			}
			rel := relay.NewFilteredRelay(hub.Transport(i))
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			ks, err := dkg.Run(ctx, su, rel, encKeys[i])
			out <- outcome{idx: i, ks: ks, err: err}
		}(i)
	}

	collected := make([]outcome, n)
	for i := 0; i < n; i++ {
		o := <-out
		collected[o.idx] = o
		require.NoError(t, o.err)
	}

	pub := collected[0].ks.PublicKey
	sid := collected[0].ks.FinalSessionID
	keyID := collected[0].ks.KeyID
	for i := 1; i < n; i++ {
		require.True(t, collected[i].ks.PublicKey.Equal(pub), "party %d public key mismatch", i)
		require.Equal(t, sid, collected[i].ks.FinalSessionID, "party %d session id mismatch", i)
		require.Equal(t, keyID, collected[i].ks.KeyID, "party %d key id mismatch", i)
		require.NoError(t, collected[i].ks.Validate())
	}
}
