package quorum_test

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/silence-laboratories/dkls23/internal/relaytest"
	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/keyshare"
	"github.com/silence-laboratories/dkls23/pkg/message"
	"github.com/silence-laboratories/dkls23/pkg/party"
	"github.com/silence-laboratories/dkls23/pkg/relay"
	"github.com/silence-laboratories/dkls23/pkg/setup"
	"github.com/silence-laboratories/dkls23/protocols/dkg"
	"github.com/silence-laboratories/dkls23/protocols/dsg"
	"github.com/silence-laboratories/dkls23/protocols/quorum"
)

// parties bundles the per-run signing identity and relay wiring every
// scenario below needs, independent of the DKLS23 party.ID space a given
// run assigns.
type parties struct {
	keys []*secp256k1.PrivateKey
	vks  []*secp256k1.PublicKey
}

func newParties(t *testing.T, n int) *parties {
	t.Helper()
	p := &parties{keys: make([]*secp256k1.PrivateKey, n), vks: make([]*secp256k1.PublicKey, n)}
	for i := 0; i < n; i++ {
		k, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		p.keys[i] = k
		p.vks[i] = k.PubKey()
	}
	return p
}

func newSessionKeys(t *testing.T, n int) []*message.SessionKey {
	t.Helper()
	out := make([]*message.SessionKey, n)
	for i := range out {
		var seed [32]byte
		_, err := rand.Read(seed[:])
		require.NoError(t, err)
		out[i] = message.NewSessionKey(seed)
	}
	return out
}

// runDKG produces matching n-party, threshold-t keyshares (party.ID i ==
// ParticipantIndex i) over an in-memory hub, for the scenarios below to
// build a quorum-change run on top of.
func runDKG(t *testing.T, n, threshold int) []*keyshare.Keyshare {
	t.Helper()
	p := newParties(t, n)
	encKeys := newSessionKeys(t, n)
	instance := [32]byte{9, 9}
	rankList := make([]int, n)

	hub := relaytest.NewHub(n)
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
				VerifyingKeys: p.vks,
				SigningKey:    p.keys[i],
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

// runQuorumChange drives protocols/quorum.Run for every participant in the
// union of oldIDs and newIDs (ParticipantIndex i holds party.ID allIDs[i]),
// and returns the resulting Keyshare for every new party (nil for an old
// party that left the quorum).
func runQuorumChange(
	t *testing.T,
	allIDs party.IDSlice,
	oldIDs, newIDs party.IDSlice,
	newThreshold int,
	newRankList []int,
	expectedPublicKey *curve.Point,
	rootChainCode [32]byte,
	oldKeyshareByID map[party.ID]*keyshare.Keyshare,
	importedShareByID map[party.ID]*curve.Scalar,
) map[party.ID]*keyshare.Keyshare {
	t.Helper()
	n := len(allIDs)
	p := newParties(t, n)
	encKeys := newSessionKeys(t, n)
	instance := [32]byte{4, 1, 0}

	hub := relaytest.NewHub(n)
	type outcome struct {
		id  party.ID
		ks  *keyshare.Keyshare
		err error
	}
	out := make(chan outcome, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			id := allIDs[i]
			base := setup.Base{
				Total:         n,
				Self:          party.ParticipantIndex(i),
				VerifyingKeys: p.vks,
				SigningKey:    p.keys[i],
				Instance:      instance,
				TTL:           time.Minute,
			}
			su, err := setup.NewQuorumChangeSetup(base, oldIDs, newIDs, newThreshold, newRankList,
				expectedPublicKey, rootChainCode, oldKeyshareByID[id], importedShareByID[id], allIDs)
			if err != nil {
				out <- outcome{id: id, err: err}
				return
			}
			rel := relay.NewFilteredRelay(hub.Transport(i))
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			ks, err := quorum.Run(ctx, su, rel, encKeys[i])
			out <- outcome{id: id, ks: ks, err: err}
		}(i)
	}
	collected := make(map[party.ID]*keyshare.Keyshare, n)
	for i := 0; i < n; i++ {
		o := <-out
		require.NoError(t, o.err)
		collected[o.id] = o.ks
	}
	return collected
}

// signAndCheck runs DSG with the given signer subset and asserts every
// signer's (r, s) agree.
func signAndCheck(t *testing.T, signerShares []*keyshare.Keyshare) {
	t.Helper()
	threshold := len(signerShares)
	signerIDs := make(party.IDSlice, threshold)
	for i, ks := range signerShares {
		signerIDs[i] = ks.PartyID
	}
	p := newParties(t, threshold)
	encKeys := newSessionKeys(t, threshold)
	instance := [32]byte{7, 7, 7}
	msgHash := sha256.Sum256([]byte("dkls23 quorum end-to-end test message"))

	hub := relaytest.NewHub(threshold)
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
				VerifyingKeys: p.vks,
				SigningKey:    p.keys[i],
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
	r0, s0 := collected[0].sig.R, collected[0].sig.S
	for i := 1; i < threshold; i++ {
		require.True(t, collected[i].sig.R.Equal(r0), "party %d r mismatch", i)
		require.True(t, collected[i].sig.S.Equal(s0), "party %d s mismatch", i)
	}
}

// TestQuorumChangeGrowsQuorum covers spec.md §8 scenario 4: a (3, 2)
// keyshare set changes to a (4, 3) set with a new fourth party and
// non-trivial ranks, preserving the joint public key, and the result
// signs successfully under the new threshold.
func TestQuorumChangeGrowsQuorum(t *testing.T) {
	const oldN, oldT = 3, 2
	oldShares := runDKG(t, oldN, oldT)
	publicKey := oldShares[0].PublicKey
	rootChainCode := oldShares[0].RootChainCode

	allIDs := party.NewIDSlice(party.IDSlice{0, 1, 2, 3})
	oldIDs := party.NewIDSlice(party.IDSlice{0, 1, 2})
	newIDs := party.NewIDSlice(party.IDSlice{0, 1, 2, 3})
	newRankList := []int{0, 0, 1, 1}
	const newT = 3

	oldByID := make(map[party.ID]*keyshare.Keyshare, oldN)
	for _, ks := range oldShares {
		oldByID[ks.PartyID] = ks
	}

	newShares := runQuorumChange(t, allIDs, oldIDs, newIDs, newT, newRankList, publicKey, rootChainCode,
		oldByID, nil)

	require.Len(t, newShares, len(newIDs))
	for _, id := range newIDs {
		ks := newShares[id]
		require.NotNil(t, ks)
		require.True(t, ks.PublicKey.Equal(publicKey), "party %d public key mismatch", id)
		require.Equal(t, rootChainCode, ks.RootChainCode, "party %d root chain code mismatch", id)
		require.Equal(t, uint32(newT), ks.Threshold)
		require.Equal(t, uint32(len(newIDs)), ks.TotalParties)
	}

	signAndCheck(t, []*keyshare.Keyshare{newShares[0], newShares[2], newShares[3]})
}

// TestQuorumRefresh covers spec.md §8 scenario 3: refreshing a (3, 2)
// keyshare set in place (old == new participant set) rotates every share
// while preserving the joint public key, and the refreshed shares can
// still sign.
func TestQuorumRefresh(t *testing.T) {
	const n, threshold = 3, 2
	oldShares := runDKG(t, n, threshold)
	publicKey := oldShares[0].PublicKey
	rootChainCode := oldShares[0].RootChainCode

	allIDs := party.NewIDSlice(party.IDSlice{0, 1, 2})
	rankList := []int{0, 0, 0}

	oldByID := make(map[party.ID]*keyshare.Keyshare, n)
	for _, ks := range oldShares {
		oldByID[ks.PartyID] = ks
	}

	newShares := runQuorumChange(t, allIDs, allIDs, allIDs, threshold, rankList, publicKey, rootChainCode,
		oldByID, nil)

	for _, id := range allIDs {
		ks := newShares[id]
		require.NotNil(t, ks)
		require.True(t, ks.PublicKey.Equal(publicKey))
		require.False(t, ks.Si.Equal(oldByID[id].Si), "party %d share did not change on refresh", id)
	}

	signAndCheck(t, []*keyshare.Keyshare{newShares[0], newShares[1]})
}

// TestQuorumImport covers spec.md §8 scenario 6: a (3, 2) quorum is bootstrapped
// directly from externally supplied additive contributions summing to a
// chosen private key, rather than from a prior DKG run, and the resulting
// public key matches privKey*G.
func TestQuorumImport(t *testing.T) {
	privKey, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	publicKey := privKey.Scalar.ActOnBase()

	const n, threshold = 3, 2
	allIDs := party.NewIDSlice(party.IDSlice{0, 1, 2})
	rankList := []int{0, 0, 0}

	shareA, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	shareB, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	shareC := privKey.Scalar.Sub(shareA.Scalar.Add(&shareB.Scalar))

	imported := map[party.ID]*curve.Scalar{
		0: &shareA.Scalar,
		1: &shareB.Scalar,
		2: shareC,
	}

	var rootChainCode [32]byte
	_, err = rand.Read(rootChainCode[:])
	require.NoError(t, err)

	newShares := runQuorumChange(t, allIDs, allIDs, allIDs, threshold, rankList, publicKey, rootChainCode,
		nil, imported)

	for _, id := range allIDs {
		ks := newShares[id]
		require.NotNil(t, ks)
		require.True(t, ks.PublicKey.Equal(publicKey), "party %d public key mismatch", id)
	}

	signAndCheck(t, []*keyshare.Keyshare{newShares[0], newShares[1]})
}

// TestKeyExport covers spec.md §8 scenario 5: a threshold subset of a (5,
// 3) keyshare set encrypts its additive contribution to a fresh X25519
// recipient, which combines them via Lagrange reconstruction and checks
// the result against the joint public key and its out-of-band commitment.
func TestKeyExport(t *testing.T) {
	const n, threshold = 5, 3
	shares := runDKG(t, n, threshold)
	publicKey := shares[0].PublicKey

	exporterShares := []*keyshare.Keyshare{shares[0], shares[2], shares[4]}
	numExporters := len(exporterShares)
	total := numExporters + 1
	receiverIdx := party.ParticipantIndex(numExporters)

	p := newParties(t, total)
	instance := [32]byte{5, 5, 5}

	var recvSeed [32]byte
	_, err := rand.Read(recvSeed[:])
	require.NoError(t, err)
	recvKey := message.NewSessionKey(recvSeed)

	exporterEncKeys := newSessionKeys(t, numExporters)

	exporterIDs := make([]byte, numExporters)
	for i, ks := range exporterShares {
		exporterIDs[i] = byte(ks.PartyID)
	}

	hub := relaytest.NewHub(total)

	type outcome struct {
		idx int
		err error
	}
	out := make(chan outcome, numExporters)
	for i := 0; i < numExporters; i++ {
		go func(i int) {
			base := setup.Base{
				Total:         total,
				Self:          party.ParticipantIndex(i),
				VerifyingKeys: p.vks,
				SigningKey:    p.keys[i],
				Instance:      instance,
				TTL:           time.Minute,
			}
			su := &setup.KeyExporter{Base: base, Keyshare: exporterShares[i], RecipientPublicKey: recvKey.PublicKey()}
			rel := relay.NewFilteredRelay(hub.Transport(i))
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			out <- outcome{idx: i, err: quorum.Export(ctx, su, rel, exporterEncKeys[i])}
		}(i)
	}

	recvBase := setup.Base{
		Total:         total,
		Self:          receiverIdx,
		VerifyingKeys: p.vks,
		SigningKey:    p.keys[total-1],
		Instance:      instance,
		TTL:           time.Minute,
	}
	recvSetup := &setup.KeyReceiver{
		Base:                  recvBase,
		ExpectedPublicKeyHash: quorum.HashPublicKey(publicKey),
		Session:               *recvKey,
		ExporterIDs:           exporterIDs,
	}
	recvRel := relay.NewFilteredRelay(hub.Transport(int(receiverIdx)))
	recvCtx, recvCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer recvCancel()
	combined, recvErr := quorum.Receive(recvCtx, recvSetup, recvRel)

	for i := 0; i < numExporters; i++ {
		o := <-out
		require.NoError(t, o.err)
	}
	require.NoError(t, recvErr)
	require.True(t, combined.ActOnBase().Equal(publicKey))
}
