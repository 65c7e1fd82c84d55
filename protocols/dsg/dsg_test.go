package dsg_test

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
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
	"github.com/silence-laboratories/dkls23/protocols/dsg"
)

// runDKG produces matching n-party, threshold-t keyshares over an in-memory
// hub, for dsg_test to sign with.
func runDKG(t *testing.T, n, threshold int) []*keyshare.Keyshare {
	t.Helper()

	keys := make([]*secp256k1.PrivateKey, n)
	vks := make([]*secp256k1.PublicKey, n)
	for i := range keys {
		k, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		keys[i] = k
		vks[i] = k.PubKey()
	}

	instance := [32]byte{4, 2}
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

	collected := make([]*keyshare.Keyshare, n)
	for i := 0; i < n; i++ {
		o := <-out
		require.NoError(t, o.err)
		collected[o.idx] = o.ks
	}
	return collected
}

// TestRunTwoOfThree signs with a 2-party quorum drawn from a 3-party,
// threshold-2 keyshare set, per spec.md §8's "t-of-n signing" scenario, and
// checks every signer lands on the same (r, s).
func TestRunTwoOfThree(t *testing.T) {
	const n, threshold = 3, 2
	keyshares := runDKG(t, n, threshold)

	signerShares := []*keyshare.Keyshare{keyshares[0], keyshares[1]}
	signerIDs := party.IDSlice{signerShares[0].PartyID, signerShares[1].PartyID}

	keys := make([]*secp256k1.PrivateKey, threshold)
	vks := make([]*secp256k1.PublicKey, threshold)
	for i := range keys {
		k, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		keys[i] = k
		vks[i] = k.PubKey()
	}

	instance := [32]byte{7, 7, 7}
	msgHash := sha256.Sum256([]byte("dkls23 dsg end-to-end test message"))

	hub := relaytest.NewHub(threshold)
	encKeys := make([]*message.SessionKey, threshold)
	for i := range encKeys {
		var seed [32]byte
		_, err := rand.Read(seed[:])
		require.NoError(t, err)
		encKeys[i] = message.NewSessionKey(seed)
	}

	type outcome struct {
		idx int
		sig *dsg.Signature
		err error
	}
	out := make(chan outcome, threshold)

	for i := 0; i < threshold; i++ {
		go func(i int) {
			base := setup.Base{
				Total:         threshold,
				Self:          party.ParticipantIndex(i),
				VerifyingKeys: vks,
				SigningKey:    keys[i],
				Instance:      instance,
				TTL:           time.Minute,
			}
			su, err := setup.NewDSGSetup(base, signerShares[i], "m", msgHash, setup.Sha256, signerIDs)
			if err != nil {
				out <- outcome{idx: i, err: err}
				return
			}
			rel := relay.NewFilteredRelay(hub.Transport(i))
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sig, err := dsg.Run(ctx, su, rel, encKeys[i])
			out <- outcome{idx: i, sig: sig, err: err}
		}(i)
	}

	collected := make([]outcome, threshold)
	for i := 0; i < threshold; i++ {
		o := <-out
		collected[o.idx] = o
		require.NoError(t, o.err)
	}

	r0 := collected[0].sig.R
	s0 := collected[0].sig.S
	for i := 1; i < threshold; i++ {
		require.True(t, collected[i].sig.R.Equal(r0), "party %d r mismatch", i)
		require.True(t, collected[i].sig.S.Equal(s0), "party %d s mismatch", i)
	}
}
