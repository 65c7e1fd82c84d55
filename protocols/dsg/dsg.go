package dsg

import (
	"context"
	"crypto/rand"
	"errors"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/silence-laboratories/dkls23/pkg/bip32"
	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/hash"
	"github.com/silence-laboratories/dkls23/pkg/keyshare"
	"github.com/silence-laboratories/dkls23/pkg/message"
	"github.com/silence-laboratories/dkls23/pkg/mta"
	"github.com/silence-laboratories/dkls23/pkg/party"
	"github.com/silence-laboratories/dkls23/pkg/polynomial"
	"github.com/silence-laboratories/dkls23/pkg/proto"
	"github.com/silence-laboratories/dkls23/pkg/relay"
	"github.com/silence-laboratories/dkls23/pkg/setup"
)

// ErrAborted is returned when a peer's contribution fails a cross-check,
// per spec.md §4.9 ("Any failure aborts").
var ErrAborted = errors.New("dsg: verification failed, aborting")

// Signature is the assembled, low-S-normalized ECDSA signature plus its
// recovery id (spec.md §4.9 "R5 (assembly)").
type Signature struct {
	R, S  *curve.Scalar
	RecID byte
}

// signerInfo is everything learned about a co-signer in R1, filled in
// further once its R3 decommit arrives.
type signerInfo struct {
	idx    party.ParticipantIndex
	id     party.ID
	sid    [32]byte
	commit [32]byte
	encPub [32]byte

	bigR *curve.Point // revealed in R3
	mask [32]byte     // revealed in R3
	bigX *curve.Point // revealed in R3

	sendCtr message.NonceCounter
}

// Run executes the five-round DSG for one signer and returns the
// assembled signature. su.SignerIDs names the signer subset (at least
// threshold-sized) this session's ParticipantIndex space maps to.
func Run(ctx context.Context, su *setup.DSGSetup, rel *relay.FilteredRelay, encKey *message.SessionKey) (*Signature, error) {
	ks := su.Keyshare
	selfID := su.SelfID()
	self := ks.PartyByID(selfID)
	if self == nil {
		return nil, errors.New("dsg: keyshare has no entry for this party")
	}

	kNZ, err := curve.RandomScalar(rand.Reader)
	if err != nil {
		return nil, err
	}
	k := &kNZ.Scalar
	phiNZ, err := curve.RandomScalar(rand.Reader)
	if err != nil {
		return nil, err
	}
	phi := &phiNZ.Scalar
	bigR := k.ActOnBase()

	var sid [32]byte
	if _, err := rand.Read(sid[:]); err != nil {
		return nil, err
	}
	var mask [32]byte
	if _, err := rand.Read(mask[:]); err != nil {
		return nil, err
	}
	commit := commitR(sid, bigR, mask)

	if err := broadcastSigned(ctx, rel, su, message.DSGRound1, R1Payload{Sid: sid, Commit: commit, EncPub: encKey.PublicKey()}); err != nil {
		return nil, err
	}

	peers, err := collectR1(ctx, rel, su)
	if err != nil {
		return nil, err
	}
	peers[selfID] = &signerInfo{idx: su.ParticipantIndex(), id: selfID, sid: sid, commit: commit, encPub: encKey.PublicKey()}

	sigID := deriveSigID(su.SignerIDs, peers)

	childOffset, childPub, err := bip32.DerivePath(ks.PublicKey, ks.RootChainCode, su.ChainPath)
	if err != nil {
		return nil, err
	}

	lambda, err := reconstructionCoefficient(ks, su.SignerIDs, selfID)
	if err != nil {
		return nil, err
	}
	mu := pairwiseRandomizationOffset(selfID, su.SignerIDs, ks, sigID)
	xHat := lambda.Mul(ks.Si).Add(mu)
	// The BIP32 child-key offset is a public scalar added once to the
	// private key; folding it into every signer's share would multiply it
	// by the signer count, so only the lowest-id signer folds it in.
	if selfID == lowestID(su.SignerIDs) {
		xHat = xHat.Add(childOffset.Scalar)
	}
	bigX := xHat.ActOnBase()

	// R2: initialize as MtA receiver (β = φ) toward every other signer.
	recvStates := make(map[party.ID]*mta.ReceiverState, len(peers)-1)
	sentMsg1 := make(map[party.ID]*mta.Round1Message, len(peers)-1)
	for _, peer := range peers {
		if peer.id == selfID {
			continue
		}
		seed := ks.PartyByID(peer.id).Receiver
		sessionID := mtaSessionID(sigID, peer.id, selfID)
		state, msg1, err := mta.ReceiverRound1(phi, seed, sessionID, rand.Reader)
		if err != nil {
			return nil, err
		}
		recvStates[peer.id] = state
		sentMsg1[peer.id] = msg1
		if err := sendP2P(ctx, rel, su, encKey, peer, message.DSGRound2, R2P2P{Msg1: msg1}); err != nil {
			return nil, err
		}
	}

	r2in, err := collectP2P[R2P2P](ctx, rel, su, encKey, peers, message.DSGRound2, len(peers)-1)
	if err != nil {
		return nil, err
	}

	// R3: for every inbound R2, act as MtA sender with (x̂, k).
	sumC0 := curve.NewScalar()
	sumC1 := curve.NewScalar()
	for id, in := range r2in {
		peer := peers[id]
		seed := ks.PartyByID(id).Sender
		sessionID := mtaSessionID(sigID, selfID, id)
		c0, c1, msg2, err := mta.SenderRound2(xHat, k, seed, sessionID, in.Msg1, rand.Reader)
		if err != nil {
			return nil, err
		}
		sumC0 = sumC0.Add(c0)
		sumC1 = sumC1.Add(c1)
		out := R3P2P{
			Msg2:   msg2,
			R:      bigR,
			Mask:   mask,
			BigX:   bigX,
			Gamma0: c0.ActOnBase(),
			Gamma1: c1.ActOnBase(),
		}
		if err := sendP2P(ctx, rel, su, encKey, peer, message.DSGRound3, out); err != nil {
			return nil, err
		}
	}

	r3in, err := collectP2P[R3P2P](ctx, rel, su, encKey, peers, message.DSGRound3, len(peers)-1)
	if err != nil {
		return nil, err
	}

	// R4: verify decommits, finalize MtA, aggregate, check consistency.
	sumT0 := curve.NewScalar()
	sumT1 := curve.NewScalar()
	sumGamma0 := curve.NewIdentityPoint()
	sumGamma1 := curve.NewIdentityPoint()
	sumBigX := bigX
	rStar := curve.NewIdentityPoint()

	for id, in := range r3in {
		peer := peers[id]
		if commitR(peer.sid, in.R, in.Mask) != peer.commit {
			return nil, ErrAborted
		}
		peer.bigR, peer.mask, peer.bigX = in.R, in.Mask, in.BigX

		sessionID := mtaSessionID(sigID, id, selfID)
		t0, t1, err := mta.ReceiverExtractShares(recvStates[id], sentMsg1[id], in.Msg2, sessionID)
		if err != nil {
			return nil, err
		}
		sumT0 = sumT0.Add(t0)
		sumT1 = sumT1.Add(t1)
		sumGamma0 = sumGamma0.Add(in.Gamma0)
		sumGamma1 = sumGamma1.Add(in.Gamma1)
		sumBigX = sumBigX.Add(in.BigX)
		rStar = rStar.Add(in.R)
	}

	if !sumBigX.Equal(childPub) {
		return nil, ErrAborted
	}

	want0 := phi.Act(sumBigX.Sub(bigX)).Sub(sumT0.ActOnBase())
	if !sumGamma0.Equal(want0) {
		return nil, ErrAborted
	}
	want1 := phi.Act(rStar).Sub(sumT1.ActOnBase())
	if !sumGamma1.Equal(want1) {
		return nil, ErrAborted
	}

	bigRTotal := rStar.Add(bigR)
	r := bigRTotal.XScalar()
	if r.IsZero() {
		return nil, ErrAborted
	}

	msgHash := curve.ScalarFromBytesModQ(su.MessageHash[:])
	s0 := msgHash.Mul(phi).Add(r.Mul(xHat.Mul(phi).Add(sumT0).Add(sumC0)))
	s1 := k.Mul(phi).Add(sumT1).Add(sumC1)

	if err := broadcastSigned(ctx, rel, su, message.DSGRound4, R4Payload{S0: s0, S1: s1}); err != nil {
		return nil, err
	}

	r4in, err := collectBroadcast[R4Payload](ctx, rel, su, message.DSGRound4, len(peers)-1)
	if err != nil {
		return nil, err
	}
	r4in[selfID] = &R4Payload{S0: s0, S1: s1}

	s0Total := curve.NewScalar()
	s1Total := curve.NewScalar()
	for _, p := range r4in {
		s0Total = s0Total.Add(p.S0)
		s1Total = s1Total.Add(p.S1)
	}
	sTotal := s0Total.Mul(s1Total.Inverse())

	recid := byte(0)
	if bigRTotal.YIsOdd() {
		recid = 1
	}
	sTotal, recid = curve.NormalizeS(sTotal, recid)

	var rModN, sModN secp256k1.ModNScalar
	rModN.SetByteSlice(r.Bytes())
	sModN.SetByteSlice(sTotal.Bytes())
	sig := ecdsa.NewSignature(&rModN, &sModN)
	if !sig.Verify(su.MessageHash[:], childPub.ToSecp256k1()) {
		return nil, ErrAborted
	}

	return &Signature{R: r, S: sTotal, RecID: recid}, nil
}

// lowestID returns the smallest party.ID in ids.
func lowestID(ids party.IDSlice) party.ID {
	lowest := ids[0]
	for _, id := range ids[1:] {
		if id < lowest {
			lowest = id
		}
	}
	return lowest
}

func commitR(sid [32]byte, bigR *curve.Point, mask [32]byte) [32]byte {
	h := hash.New(proto.CommitmentLabel)
	h.WriteBytes(sid[:])
	h.WriteBytes(bigR.CompressedBytes())
	h.WriteBytes(mask[:])
	var out [32]byte
	copy(out[:], h.Sum())
	return out
}

func deriveSigID(signers party.IDSlice, peers map[party.ID]*signerInfo) [32]byte {
	ids := append(party.IDSlice(nil), signers...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	h := hash.New(proto.DSGLabel)
	for _, id := range ids {
		h.WriteBytes(peers[id].sid[:])
	}
	var out [32]byte
	copy(out[:], h.Sum())
	return out
}

// mtaSessionID derives the per-signing-session MtA session id for the
// direction (senderID acting as PairwiseMtaSender, receiverID as
// PairwiseMtaReceiver), so both ends recompute an identical value without
// extra coordination. Unlike protocols/dkg's otSessionID it keeps the
// (sender, receiver) order and is keyed on this session's sigID.
func mtaSessionID(sigID [32]byte, senderID, receiverID party.ID) []byte {
	h := hash.New(proto.PairwiseMtALabel)
	h.WriteBytes(sigID[:])
	h.WriteBytes([]byte{byte(senderID), byte(receiverID)})
	return h.Sum()
}

// pairwiseRandomizationOffset computes μ_i = Σ_j ±H(sigID, pair, zetaSeed)
// over every other signer, signed by id ordering so the contributions
// telescope to zero once summed across every signer (spec.md §4.9's
// "symmetric zeta-offset contribution").
func pairwiseRandomizationOffset(selfID party.ID, signers party.IDSlice, ks *keyshare.Keyshare, sigID [32]byte) *curve.Scalar {
	acc := curve.NewScalar()
	for _, j := range signers {
		if j == selfID {
			continue
		}
		pm := ks.PartyByID(j)
		lo, hi := selfID, j
		if j < selfID {
			lo, hi = j, selfID
		}
		h := hash.New(proto.PairwiseRandomizationLabel)
		h.WriteBytes(sigID[:])
		h.WriteBytes([]byte{byte(lo), byte(hi)})
		h.WriteBytes(pm.ZetaSeed[:])
		contribution := curve.ScalarFromBytesModQ(h.Sum())
		if selfID < j {
			acc = acc.Add(contribution)
		} else {
			acc = acc.Sub(contribution)
		}
	}
	return acc
}

func reconstructionCoefficient(ks *keyshare.Keyshare, signers party.IDSlice, selfID party.ID) (*curve.Scalar, error) {
	if ks.ZeroRanks() {
		xs := make(map[party.ID]*curve.Scalar, len(signers))
		ids := make([]party.ID, 0, len(signers))
		for _, id := range signers {
			pm := ks.PartyByID(id)
			ids = append(ids, id)
			xs[id] = &pm.X.Scalar
		}
		coeffs := polynomial.LagrangeCoefficients(ids, xs)
		return coeffs[selfID], nil
	}
	points := make([]polynomial.RankedPoint, 0, len(signers))
	for _, id := range signers {
		pm := ks.PartyByID(id)
		points = append(points, polynomial.RankedPoint{ID: id, X: &pm.X.Scalar, Rank: pm.Rank})
	}
	coeffs, err := polynomial.BirkhoffCoefficients(points)
	if err != nil {
		return nil, err
	}
	return coeffs[selfID], nil
}

// --- relay plumbing -------------------------------------------------

func broadcastSigned[T any](ctx context.Context, rel *relay.FilteredRelay, su *setup.DSGSetup, tag message.Tag, payload T) error {
	id := su.MsgID(nil, tag)
	buf, err := message.BuildSigned(id, su.MessageTTLSeconds(), 0, payload, nil, su.Signer())
	if err != nil {
		return err
	}
	return rel.Send(ctx, buf)
}

func sendP2P[T any](ctx context.Context, rel *relay.FilteredRelay, su *setup.DSGSetup, encKey *message.SessionKey, peer *signerInfo, tag message.Tag, payload T) error {
	aead, err := encKey.SharedAEAD(peer.encPub)
	if err != nil {
		return err
	}
	id := su.MsgID(&peer.idx, tag)
	buf, err := message.EncryptMessage(id, su.MessageTTLSeconds(), 0, nil, payload, nil, aead, &peer.sendCtr)
	if err != nil {
		return err
	}
	return rel.Send(ctx, buf)
}

func collectR1(ctx context.Context, rel *relay.FilteredRelay, su *setup.DSGSetup) (map[party.ID]*signerInfo, error) {
	n := su.TotalParticipants()
	if _, err := rel.AskMessages(ctx, su, message.DSGRound1, false); err != nil {
		return nil, err
	}
	round := rel.NewRound(n-1, message.DSGRound1)
	out := make(map[party.ID]*signerInfo, n)
	for {
		body, sender, isAbort, ok, err := round.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if isAbort {
			return nil, ErrAborted
		}
		payload, err := message.VerifySignedVar[R1Payload](body, su.Verifier(sender))
		if err != nil {
			return nil, err
		}
		id := su.IDAt(sender)
		out[id] = &signerInfo{idx: sender, id: id, sid: payload.Sid, commit: payload.Commit, encPub: payload.EncPub}
	}
	return out, nil
}

func collectP2P[T any](ctx context.Context, rel *relay.FilteredRelay, su *setup.DSGSetup, encKey *message.SessionKey, peers map[party.ID]*signerInfo, tag message.Tag, count int) (map[party.ID]*T, error) {
	self := su.ParticipantIndex()
	others := make([]party.ParticipantIndex, 0, len(peers))
	for _, p := range peers {
		if p.idx != self {
			others = append(others, p.idx)
		}
	}
	if _, err := rel.AskMessagesFrom(ctx, su, tag, others, true); err != nil {
		return nil, err
	}
	round := rel.NewRound(count, tag)
	out := make(map[party.ID]*T, count)
	for {
		body, sender, isAbort, ok, err := round.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if isAbort {
			return nil, ErrAborted
		}
		id := su.IDAt(sender)
		aead, err := encKey.SharedAEAD(peers[id].encPub)
		if err != nil {
			return nil, err
		}
		payload, err := message.DecryptMessageVar[T](body, 0, aead)
		if err != nil {
			return nil, err
		}
		out[id] = &payload
	}
	return out, nil
}

func collectBroadcast[T any](ctx context.Context, rel *relay.FilteredRelay, su *setup.DSGSetup, tag message.Tag, count int) (map[party.ID]*T, error) {
	if _, err := rel.AskMessages(ctx, su, tag, false); err != nil {
		return nil, err
	}
	round := rel.NewRound(count, tag)
	out := make(map[party.ID]*T, count)
	for {
		body, sender, isAbort, ok, err := round.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if isAbort {
			return nil, ErrAborted
		}
		payload, err := message.VerifySignedVar[T](body, su.Verifier(sender))
		if err != nil {
			return nil, err
		}
		id := su.IDAt(sender)
		out[id] = &payload
	}
	return out, nil
}
