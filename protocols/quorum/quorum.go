package quorum

import (
	"context"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/hash"
	"github.com/silence-laboratories/dkls23/pkg/keyshare"
	"github.com/silence-laboratories/dkls23/pkg/message"
	"github.com/silence-laboratories/dkls23/pkg/ot"
	"github.com/silence-laboratories/dkls23/pkg/party"
	"github.com/silence-laboratories/dkls23/pkg/polynomial"
	"github.com/silence-laboratories/dkls23/pkg/proto"
	"github.com/silence-laboratories/dkls23/pkg/relay"
	"github.com/silence-laboratories/dkls23/pkg/setup"
)

// ErrAborted is returned when a peer's contribution fails verification,
// per spec.md §4.10 / §7's "cryptographic verification failure" taxonomy.
var ErrAborted = errors.New("quorum: verification failed, aborting")

// participantInfo is everything learned about a co-participant (old, new,
// or both) in R1.
type participantInfo struct {
	idx             party.ParticipantIndex
	id              party.ID
	encPub          [32]byte
	hasContribution bool
	commitment1     [32]byte
	sendCtr         message.NonceCounter
}

// Run executes the quorum change/refresh/import engine for one
// participant. It returns the participant's new Keyshare when su.IsNew
// holds for this party, or (nil, nil) for an old-but-not-new party that is
// leaving the quorum and has no further share to hold.
func Run(ctx context.Context, su *setup.QuorumChangeSetup, rel *relay.FilteredRelay, encKey *message.SessionKey) (*keyshare.Keyshare, error) {
	selfID := su.SelfID()
	isOld := su.IsOld(selfID)
	isNew := su.IsNew(selfID)
	if !isOld && !isNew {
		return nil, errors.New("quorum: this party is neither an old nor a new holder")
	}

	// R0: old parties contribute a session-id seed; every participant
	// collects all of them to derive a run-wide quorum session id.
	var sid [32]byte
	if isOld {
		if _, err := rand.Read(sid[:]); err != nil {
			return nil, err
		}
		if err := broadcastSigned(ctx, rel, su, message.QuorumRound0, R0Payload{Sid: sid}); err != nil {
			return nil, err
		}
	}
	oldSids, err := collectBroadcastFrom[R0Payload](ctx, rel, su, message.QuorumRound0, indicesOf(su, su.OldIDs, true))
	if err != nil {
		return nil, err
	}
	if isOld {
		oldSids[selfID] = &R0Payload{Sid: sid}
	}
	qsid := deriveQuorumSessionID(su.OldIDs, oldSids)

	// R1: every participant exchanges its encryption public key; old
	// parties additionally commit to their new re-sharing polynomial.
	var poly *polynomial.Polynomial
	var groupPoly *polynomial.GroupPolynomial
	var r1Mask [32]byte
	var commit1 [32]byte
	if isOld {
		contribution, err := additiveContribution(su, selfID)
		if err != nil {
			return nil, err
		}
		poly, err = polynomial.NewRandomPolynomial(rand.Reader, su.NewThreshold-1, contribution)
		if err != nil {
			return nil, err
		}
		groupPoly = poly.Commit()
		if _, err := rand.Read(r1Mask[:]); err != nil {
			return nil, err
		}
		commit1 = commitment1(qsid, selfID, groupPoly, r1Mask)
	}
	ownR1 := R1Payload{EncPub: encKey.PublicKey(), HasContribution: isOld, Commitment1: commit1}
	if err := broadcastSigned(ctx, rel, su, message.QuorumRound1, ownR1); err != nil {
		return nil, err
	}
	participants, err := collectBroadcastFrom[R1Payload](ctx, rel, su, message.QuorumRound1, allOtherIndices(su))
	if err != nil {
		return nil, err
	}
	infos := make(map[party.ID]*participantInfo, su.Total)
	infos[selfID] = &participantInfo{idx: su.ParticipantIndex(), id: selfID, encPub: ownR1.EncPub, hasContribution: isOld, commitment1: commit1}
	for id, p := range participants {
		infos[id] = &participantInfo{idx: su.IndexOfID(id), id: id, encPub: p.EncPub, hasContribution: p.HasContribution, commitment1: p.Commitment1}
	}
	encPubOf := make(map[party.ID][32]byte, len(infos))
	for id, info := range infos {
		encPubOf[id] = info.encPub
	}

	// P2P-1/P2P-2: every old party sends every *other* new party its
	// committed-then-revealed evaluation plus the shared root chain code.
	if isOld {
		for _, peerID := range su.NewIDs {
			if peerID == selfID {
				continue
			}
			peer := infos[peerID]
			rank := su.NewRank(peerID)
			x := &curve.XCoord(peerID).Scalar
			value := poly.DerivativeAt(rank, x)
			var mask [32]byte
			if _, err := rand.Read(mask[:]); err != nil {
				return nil, err
			}
			c2 := commitment2(value, mask)
			if err := sendP2P(ctx, rel, su, encKey, peer, message.QuorumP2P1, P2P1Payload{Commitment2: c2}); err != nil {
				return nil, err
			}
			if err := sendP2P(ctx, rel, su, encKey, peer, message.QuorumP2P2, P2P2Payload{Value: value, Mask: mask, RootChainCode: su.RootChainCode}); err != nil {
				return nil, err
			}
		}
	}

	oldFromIdx := indicesOf(su, su.OldIDs, true)
	var commit2ByOld map[party.ID]*P2P1Payload
	var revealByOld map[party.ID]*P2P2Payload
	if isNew {
		commit2ByOld, err = collectP2PFrom[P2P1Payload](ctx, rel, su, encKey, encPubOf, message.QuorumP2P1, oldFromIdx)
		if err != nil {
			return nil, err
		}
		revealByOld, err = collectP2PFrom[P2P2Payload](ctx, rel, su, encKey, encPubOf, message.QuorumP2P2, oldFromIdx)
		if err != nil {
			return nil, err
		}
		for id, got := range revealByOld {
			if commitment2(got.Value, got.Mask) != commit2ByOld[id].Commitment2 {
				return nil, ErrAborted
			}
		}
	}

	// R2: old parties reveal their polynomial commitment vector; every
	// participant verifies it against commitment1 and assembles bigP.
	if isOld {
		if err := broadcastSigned(ctx, rel, su, message.QuorumRound2, R2Payload{Coeffs: groupPoly.Coefficients(), R1Mask: r1Mask}); err != nil {
			return nil, err
		}
	}
	r2, err := collectBroadcastFrom[R2Payload](ctx, rel, su, message.QuorumRound2, indicesOf(su, su.OldIDs, true))
	if err != nil {
		return nil, err
	}
	if isOld {
		r2[selfID] = &R2Payload{Coeffs: groupPoly.Coefficients(), R1Mask: r1Mask}
	}

	oldPolys := make(map[party.ID]*polynomial.GroupPolynomial, len(su.OldIDs))
	bigP := polynomial.NewGroupPolynomial(nil)
	for _, id := range su.OldIDs {
		rb := r2[id]
		gp := polynomial.NewGroupPolynomial(rb.Coeffs)
		gotCommit1 := commitment1(qsid, id, gp, rb.R1Mask)
		if gotCommit1 != infos[id].commitment1 {
			return nil, ErrAborted
		}
		oldPolys[id] = gp
		bigP = bigP.Add(gp)
	}
	if !bigP.Constant().Equal(su.ExpectedPublicKey) {
		return nil, ErrAborted
	}

	bigSMap := make(map[party.ID]*curve.Point, len(su.NewIDs))
	for _, id := range su.NewIDs {
		rank := su.NewRank(id)
		x := &curve.XCoord(id).Scalar
		bigSMap[id] = polynomial.NewGroupPolynomial(bigP.DerivativeCoefficients(rank)).Evaluate(x)
	}

	if !isNew {
		return nil, nil
	}

	selfRank := su.NewRank(selfID)
	selfX := &curve.XCoord(selfID).Scalar
	p := curve.NewScalar()
	var rootChainCode [32]byte
	haveRootChainCode := false
	for _, id := range su.OldIDs {
		var value *curve.Scalar
		var gotRootChainCode [32]byte
		if id == selfID {
			value = poly.DerivativeAt(selfRank, selfX)
			gotRootChainCode = su.RootChainCode
		} else {
			derivCoeffs := oldPolys[id].DerivativeCoefficients(selfRank)
			got := revealByOld[id]
			if !polynomial.FeldmanVerify(derivCoeffs, selfX, got.Value) {
				return nil, ErrAborted
			}
			value = got.Value
			gotRootChainCode = got.RootChainCode
		}
		if !haveRootChainCode {
			rootChainCode = gotRootChainCode
			haveRootChainCode = true
		} else if rootChainCode != gotRootChainCode {
			return nil, ErrAborted
		}
		p = p.Add(value)
	}
	if !p.ActOnBase().Equal(bigSMap[selfID]) {
		return nil, ErrAborted
	}

	// OT1/OT2: the new party set rebuilds the pairwise OT-seed matrix
	// among themselves, exactly as DKG's R5/R6.
	newPeers := make(map[party.ID]*participantInfo, len(su.NewIDs))
	for _, id := range su.NewIDs {
		if id == selfID {
			continue
		}
		newPeers[id] = infos[id]
	}
	otMaterial, err := runOTSetup(ctx, rel, su, encKey, newPeers, qsid)
	if err != nil {
		return nil, err
	}

	ks := &keyshare.Keyshare{
		TotalParties:   uint32(len(su.NewIDs)),
		Threshold:      uint32(su.NewThreshold),
		PartyID:        selfID,
		FinalSessionID: qsid,
		KeyID:          su.DeriveKeyID(),
		RootChainCode:  rootChainCode,
		PublicKey:      su.ExpectedPublicKey,
		Si:             p,
	}
	for _, id := range party.NewIDSlice(su.NewIDs) {
		pm := keyshare.PartyMaterial{ID: id, Rank: su.NewRank(id), X: curve.XCoord(id), BigS: bigSMap[id]}
		if id != selfID {
			otm := otMaterial[id]
			pm.Sender = otm.Sender
			pm.Receiver = otm.Receiver
			pm.ZetaSeed = otm.ZetaSeed
		}
		ks.Parties = append(ks.Parties, pm)
	}
	if err := ks.Validate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// additiveContribution computes s_i_0 per spec.md §4.10: λ_i·s_i for a
// quorum change/refresh carried out by an existing shareholder, or the
// externally supplied ImportedShare for a key import.
func additiveContribution(su *setup.QuorumChangeSetup, selfID party.ID) (*curve.Scalar, error) {
	if su.ImportedShare != nil {
		return su.ImportedShare, nil
	}
	ks := su.OldKeyshare
	lambda, err := reconstructionCoefficient(ks, su.OldIDs, selfID)
	if err != nil {
		return nil, err
	}
	return lambda.Mul(ks.Si), nil
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

func deriveQuorumSessionID(oldIDs party.IDSlice, sids map[party.ID]*R0Payload) [32]byte {
	ids := party.NewIDSlice(oldIDs)
	h := hash.New(proto.QuorumChangeLabel)
	for _, id := range ids {
		h.WriteBytes(sids[id].Sid[:])
	}
	var out [32]byte
	copy(out[:], h.Sum())
	return out
}

func commitment1(qsid [32]byte, id party.ID, gp *polynomial.GroupPolynomial, mask [32]byte) [32]byte {
	h := hash.New(proto.CommitmentLabel)
	h.WriteBytes(qsid[:])
	h.WriteBytes([]byte{byte(id)})
	for _, c := range gp.Coefficients() {
		h.WriteBytes(c.CompressedBytes())
	}
	h.WriteBytes(mask[:])
	var out [32]byte
	copy(out[:], h.Sum())
	return out
}

func commitment2(value *curve.Scalar, mask [32]byte) [32]byte {
	h := hash.New(proto.CommitmentLabel)
	h.WriteBytes([]byte("commitment2"))
	h.WriteBytes(value.Bytes())
	h.WriteBytes(mask[:])
	var out [32]byte
	copy(out[:], h.Sum())
	return out
}

// indicesOf returns the ParticipantIndex for every id in ids, optionally
// excluding self.
func indicesOf(su *setup.QuorumChangeSetup, ids party.IDSlice, excludeSelf bool) []party.ParticipantIndex {
	self := su.ParticipantIndex()
	out := make([]party.ParticipantIndex, 0, len(ids))
	for _, id := range ids {
		idx := su.IndexOfID(id)
		if excludeSelf && idx == self {
			continue
		}
		out = append(out, idx)
	}
	return out
}

func allOtherIndices(su *setup.QuorumChangeSetup) []party.ParticipantIndex {
	self := su.ParticipantIndex()
	out := make([]party.ParticipantIndex, 0, su.Total-1)
	for i := 0; i < su.Total; i++ {
		idx := party.ParticipantIndex(i)
		if idx != self {
			out = append(out, idx)
		}
	}
	return out
}

// --- relay plumbing -------------------------------------------------

func broadcastSigned[T any](ctx context.Context, rel *relay.FilteredRelay, su *setup.QuorumChangeSetup, tag message.Tag, payload T) error {
	id := su.MsgID(nil, tag)
	buf, err := message.BuildSigned(id, su.MessageTTLSeconds(), 0, payload, nil, su.Signer())
	if err != nil {
		return err
	}
	return rel.Send(ctx, buf)
}

func sendP2P[T any](ctx context.Context, rel *relay.FilteredRelay, su *setup.QuorumChangeSetup, encKey *message.SessionKey, peer *participantInfo, tag message.Tag, payload T) error {
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

func collectBroadcastFrom[T any](ctx context.Context, rel *relay.FilteredRelay, su *setup.QuorumChangeSetup, tag message.Tag, fromIdx []party.ParticipantIndex) (map[party.ID]*T, error) {
	if _, err := rel.AskMessagesFrom(ctx, su, tag, fromIdx, false); err != nil {
		return nil, err
	}
	round := rel.NewRound(len(fromIdx), tag)
	out := make(map[party.ID]*T, len(fromIdx))
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
		out[su.IDAt(sender)] = &payload
	}
	return out, nil
}

func collectP2PFrom[T any](ctx context.Context, rel *relay.FilteredRelay, su *setup.QuorumChangeSetup, encKey *message.SessionKey, encPubOf map[party.ID][32]byte, tag message.Tag, fromIdx []party.ParticipantIndex) (map[party.ID]*T, error) {
	if _, err := rel.AskMessagesFrom(ctx, su, tag, fromIdx, true); err != nil {
		return nil, err
	}
	round := rel.NewRound(len(fromIdx), tag)
	out := make(map[party.ID]*T, len(fromIdx))
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
		aead, err := encKey.SharedAEAD(encPubOf[id])
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

// otPartyMaterial is the per-peer OT outcome runOTSetup hands back.
type otPartyMaterial struct {
	Sender   *ot.SenderOTSeed
	Receiver *ot.ReceiverOTSeed
	ZetaSeed [32]byte
}

// otSessionID mirrors protocols/dkg/ot_setup.go's session-id derivation,
// keyed on this run's quorum session id instead of DKG's final session id.
func otSessionID(qsid [32]byte, senderID, receiverID party.ID) []byte {
	lo, hi := senderID, receiverID
	if hi < lo {
		lo, hi = hi, lo
	}
	return hash.SHA256Label([]byte("DKLS23-OT-SESSION"), qsid[:], []byte{byte(lo), byte(hi)})
}

func combineZeta(idA, idB party.ID, halfA, halfB [32]byte) [32]byte {
	lo, hi := idA, idB
	loHalf, hiHalf := halfA, halfB
	if idB < idA {
		lo, hi = idB, idA
		loHalf, hiHalf = halfB, halfA
	}
	h := hash.New("DKLS23-ZETA-SEED")
	h.WriteBytes([]byte{byte(lo), byte(hi)})
	h.WriteBytes(loHalf[:])
	h.WriteBytes(hiHalf[:])
	var out [32]byte
	copy(out[:], h.Sum())
	return out
}

// runOTSetup implements spec.md §4.10's OT1/OT2: a full-duplex pairwise
// base OT between every unordered pair of new parties, exactly as DKG's
// R5/R6 (protocols/dkg/ot_setup.go), restricted to the new party set.
func runOTSetup(ctx context.Context, rel *relay.FilteredRelay, su *setup.QuorumChangeSetup, encKey *message.SessionKey, peers map[party.ID]*participantInfo, qsid [32]byte) (map[party.ID]*otPartyMaterial, error) {
	selfID := su.SelfID()
	count := len(peers)

	senderEphs := make(map[party.ID]*ot.SenderEphemeral, count)
	for id, peer := range peers {
		senderEph, pubs, err := ot.SenderRound1(rand.Reader)
		if err != nil {
			return nil, err
		}
		senderEphs[id] = senderEph
		if err := sendP2P(ctx, rel, su, encKey, peer, message.QuorumOT1, OT1Payload{Pubs: pubs}); err != nil {
			return nil, err
		}
	}

	recvSenderPubs := make(map[party.ID][256][33]byte, count)
	if err := collectP2PRound(ctx, rel, su, encKey, peers, message.QuorumOT1, count, func(id party.ID, body []byte, aead chacha20poly1305.AEAD) error {
		payload, err := message.DecryptMessageVar[OT1Payload](body, 0, aead)
		if err != nil {
			return err
		}
		recvSenderPubs[id] = payload.Pubs
		return nil
	}); err != nil {
		return nil, err
	}

	receiverOTSeeds := make(map[party.ID]*ot.ReceiverOTSeed, count)
	zetaHalves := make(map[party.ID][32]byte, count)
	for id, peer := range peers {
		choices, err := ot.RandomChoices(rand.Reader)
		if err != nil {
			return nil, err
		}
		receiverSeeds, receiverPubs, err := ot.ReceiverRound1(rand.Reader, recvSenderPubs[id], choices)
		if err != nil {
			return nil, err
		}
		sid := otSessionID(qsid, id, selfID)
		receiverOTSeeds[id] = ot.DeriveReceiverOTSeed(receiverSeeds, sid)

		var half [32]byte
		if _, err := rand.Read(half[:]); err != nil {
			return nil, err
		}
		zetaHalves[id] = half

		if err := sendP2P(ctx, rel, su, encKey, peer, message.QuorumOT2, OT2Payload{Pubs: receiverPubs, ZetaHalf: half}); err != nil {
			return nil, err
		}
	}

	out := make(map[party.ID]*otPartyMaterial, count)
	if err := collectP2PRound(ctx, rel, su, encKey, peers, message.QuorumOT2, count, func(id party.ID, body []byte, aead chacha20poly1305.AEAD) error {
		payload, err := message.DecryptMessageVar[OT2Payload](body, 0, aead)
		if err != nil {
			return err
		}
		senderSeeds, err := senderEphs[id].SenderDeriveSeeds(payload.Pubs)
		if err != nil {
			return err
		}
		sid := otSessionID(qsid, selfID, id)
		senderOTSeed := ot.DeriveSenderOTSeed(senderSeeds, sid)
		zeta := combineZeta(selfID, id, zetaHalves[id], payload.ZetaHalf)
		out[id] = &otPartyMaterial{Sender: senderOTSeed, Receiver: receiverOTSeeds[id], ZetaSeed: zeta}
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

func collectP2PRound(ctx context.Context, rel *relay.FilteredRelay, su *setup.QuorumChangeSetup, encKey *message.SessionKey, peers map[party.ID]*participantInfo, tag message.Tag, count int, handle func(id party.ID, body []byte, aead chacha20poly1305.AEAD) error) error {
	fromIdx := make([]party.ParticipantIndex, 0, count)
	for _, p := range peers {
		fromIdx = append(fromIdx, p.idx)
	}
	if _, err := rel.AskMessagesFrom(ctx, su, tag, fromIdx, true); err != nil {
		return err
	}
	round := rel.NewRound(count, tag)
	for {
		body, sender, isAbort, ok, err := round.Recv(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if isAbort {
			return ErrAborted
		}
		id := su.IDAt(sender)
		aead, err := encKey.SharedAEAD(peers[id].encPub)
		if err != nil {
			return err
		}
		if err := handle(id, body, aead); err != nil {
			return err
		}
	}
	return nil
}
