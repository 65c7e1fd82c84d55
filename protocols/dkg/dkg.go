package dkg

import (
	"context"
	"crypto/rand"
	"errors"
	"sort"

	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/hash"
	"github.com/silence-laboratories/dkls23/pkg/keyshare"
	"github.com/silence-laboratories/dkls23/pkg/message"
	"github.com/silence-laboratories/dkls23/pkg/ot"
	"github.com/silence-laboratories/dkls23/pkg/party"
	"github.com/silence-laboratories/dkls23/pkg/polynomial"
	"github.com/silence-laboratories/dkls23/pkg/proto"
	"github.com/silence-laboratories/dkls23/pkg/relay"
	"github.com/silence-laboratories/dkls23/pkg/schnorr"
	"github.com/silence-laboratories/dkls23/pkg/setup"
)

// ErrAborted is returned when a peer's contribution fails verification,
// per spec.md §4.8's "Any DLog/Feldman/commitment failure: send an abort
// ... and return KeygenError::Failed*".
var ErrAborted = errors.New("dkg: verification failed, aborting")

const (
	broadcastFlag uint16 = 0
	p2pFlag       uint16 = 1
)

// flagsOf is the discriminator DKG uses to mux broadcast and P2P messages
// sharing a single round tag into one relay.Round: spec.md leaves the
// mechanism open, so this reuses the frame header's Flags field already
// defined for exactly this purpose (pkg/message.Header.Flags) instead of
// introducing extra wire tags.
func flagsOf(body []byte) (uint16, error) {
	h, err := message.DecodeHeader(body)
	if err != nil {
		return 0, err
	}
	return h.Flags, nil
}

// peerInfo is everything learned about a peer in R1, kept for the rest of
// the run.
type peerInfo struct {
	idx       party.ParticipantIndex
	id        party.ID
	sid       [32]byte
	x         *curve.Scalar
	rank      int
	commit1   [32]byte
	encPub    [32]byte
	sendCtr   message.NonceCounter
}

// Run executes the full six-round DKG for one participant and returns its
// share of the resulting Keyshare. encKey is this run's ephemeral X25519
// encryption keypair (spec.md §4.4's per-session encryption key).
func Run(ctx context.Context, su *setup.KeygenSetup, rel *relay.FilteredRelay, encKey *message.SessionKey) (*keyshare.Keyshare, error) {
	selfIdx := su.ParticipantIndex()
	selfID := party.ID(selfIdx)
	n := su.TotalParticipants()
	t := su.Threshold
	rank := su.Rank(selfIdx)
	x := curve.XCoord(selfID)

	var sid [32]byte
	if _, err := rand.Read(sid[:]); err != nil {
		return nil, err
	}
	constant, err := curve.RandomScalar(rand.Reader)
	if err != nil {
		return nil, err
	}
	poly, err := polynomial.NewRandomPolynomial(rand.Reader, t-1, &constant.Scalar)
	if err != nil {
		return nil, err
	}
	groupPoly := poly.Commit()

	var r1Mask [32]byte
	if _, err := rand.Read(r1Mask[:]); err != nil {
		return nil, err
	}
	commit1 := commitment1(sid, selfIdx, rank, &x.Scalar, groupPoly, r1Mask)

	ownR1 := R1Payload{Sid: sid, X: &x.Scalar, Rank: rank, Commitment1: commit1, EncPub: encKey.PublicKey()}
	if err := broadcastSigned(ctx, rel, su, message.DKGRound1, ownR1); err != nil {
		return nil, err
	}

	peers, err := collectR1(ctx, rel, su)
	if err != nil {
		return nil, err
	}
	peers[selfID] = &peerInfo{idx: selfIdx, id: selfID, sid: sid, x: &x.Scalar, rank: rank, commit1: commit1, encPub: encKey.PublicKey()}

	finalSessionID := deriveFinalSessionID(peers)

	// R2: broadcast revealed coefficients + proofs; P2P derivative shares.
	proofs := make([]*schnorr.Proof, len(poly.Coefficients()))
	for k, c := range poly.Coefficients() {
		pr, err := schnorr.Prove(rand.Reader, proto.DLogProof1Label, r2Transcript(finalSessionID, selfIdx, k), c, groupPoly.Coefficients()[k])
		if err != nil {
			return nil, err
		}
		proofs[k] = pr
	}
	r2b := R2Broadcast{Coeffs: groupPoly.Coefficients(), R1: r1Mask, Proofs: proofs}
	if err := broadcastSigned(ctx, rel, su, message.DKGRound2, r2b); err != nil {
		return nil, err
	}
	for _, peer := range peers {
		if peer.id == selfID {
			continue
		}
		d := poly.DerivativeAt(peer.rank, peer.x)
		commit2 := hash.SHA256Label([]byte(proto.CommitmentLabel), []byte("commitment2"), d.Bytes())
		var c2 [32]byte
		copy(c2[:], commit2)
		p2p := R2P2P{D: d, Commitment2: c2}
		if err := sendP2P(ctx, rel, su, encKey, peer, message.DKGRound2, p2p); err != nil {
			return nil, err
		}
	}

	r2broadcasts, r2p2p, err := collectR2(ctx, rel, su, encKey, peers, n-1)
	if err != nil {
		return nil, err
	}
	r2broadcasts[selfID] = &r2b

	// Verify commitment1 against the revealed (coeffs, r1), and every DLog proof.
	bigF := groupPoly
	for _, peer := range peers {
		if peer.id == selfID {
			continue
		}
		rb := r2broadcasts[peer.id]
		gotCommit1 := commitment1(peer.sid, peer.idx, peer.rank, peer.x, polynomial.NewGroupPolynomial(rb.Coeffs), rb.R1)
		if gotCommit1 != peer.commit1 {
			return nil, ErrAborted
		}
		for k, c := range rb.Coeffs {
			if !rb.Proofs[k].Verify(proto.DLogProof1Label, r2Transcript(finalSessionID, peer.idx, k), c) {
				return nil, ErrAborted
			}
		}
		bigF = bigF.Add(polynomial.NewGroupPolynomial(rb.Coeffs))
	}

	// Feldman-verify each inbound derivative share and sum into s_i.
	si := curve.NewScalar()
	for _, peer := range peers {
		var d *curve.Scalar
		if peer.id == selfID {
			d = poly.DerivativeAt(rank, &x.Scalar)
		} else {
			got := r2p2p[peer.id]
			rb := r2broadcasts[peer.id]
			derivCoeffs := polynomial.NewGroupPolynomial(rb.Coeffs).DerivativeCoefficients(rank)
			if !polynomial.FeldmanVerify(derivCoeffs, &x.Scalar, got.D) {
				return nil, ErrAborted
			}
			d = got.D
		}
		si = si.Add(d)
	}
	bigS := si.ActOnBase()

	proofR3, err := schnorr.Prove(rand.Reader, proto.DLogProof2Label, r3Transcript(finalSessionID, selfIdx), si, bigS)
	if err != nil {
		return nil, err
	}
	if err := broadcastSigned(ctx, rel, su, message.DKGRound3, R3Broadcast{S: bigS, Proof: proofR3}); err != nil {
		return nil, err
	}

	r3, err := collectR3(ctx, rel, su, n-1)
	if err != nil {
		return nil, err
	}
	r3[selfID] = &R3Broadcast{S: bigS, Proof: proofR3}

	// R4: verify every S_j's proof and that it matches bigF's expected
	// evaluation at (x_j, rank_j); check the aggregate Birkhoff identity.
	rankedPoints := make([]polynomial.RankedPoint, 0, len(peers))
	bigSMap := make(map[party.ID]*curve.Point, len(peers))
	for _, peer := range peers {
		rb3 := r3[peer.id]
		if !rb3.Proof.Verify(proto.DLogProof2Label, r3Transcript(finalSessionID, peer.idx), rb3.S) {
			return nil, ErrAborted
		}
		expect := polynomial.NewGroupPolynomial(bigF.DerivativeCoefficients(peer.rank)).Evaluate(peer.x)
		if !expect.Equal(rb3.S) {
			return nil, ErrAborted
		}
		rankedPoints = append(rankedPoints, polynomial.RankedPoint{ID: peer.id, X: peer.x, Rank: peer.rank})
		bigSMap[peer.id] = rb3.S
	}
	publicKey := bigF.Constant()
	if err := verifyBirkhoffReconstruction(rankedPoints, bigSMap, publicKey); err != nil {
		return nil, err
	}

	// R5/R6: pairwise OT setup in both directions, plus zeta-seed exchange.
	partyMaterial, err := runOTSetup(ctx, rel, su, encKey, peers, finalSessionID)
	if err != nil {
		return nil, err
	}

	ks := &keyshare.Keyshare{
		TotalParties:   uint32(n),
		Threshold:      uint32(t),
		PartyID:        selfID,
		FinalSessionID: finalSessionID,
		KeyID:          deriveKeyID(publicKey, finalSessionID),
		PublicKey:      publicKey,
		Si:             si,
	}
	ids := make(party.IDSlice, 0, n)
	for id := range peers {
		ids = append(ids, id)
	}
	ids = party.NewIDSlice(ids)
	for _, id := range ids {
		peer := peers[id]
		pm := keyshare.PartyMaterial{ID: id, Rank: peer.rank, X: &curve.NonZeroScalar{Scalar: *peer.x}, BigS: bigSMap[id]}
		if id != selfID {
			otm := partyMaterial[id]
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

func commitment1(sid [32]byte, idx party.ParticipantIndex, rank int, x *curve.Scalar, gp *polynomial.GroupPolynomial, mask [32]byte) [32]byte {
	h := hash.New(proto.CommitmentLabel)
	h.WriteBytes(sid[:])
	h.WriteBytes([]byte{byte(idx), byte(idx >> 8), byte(idx >> 16), byte(idx >> 24)})
	h.WriteBytes([]byte{byte(rank)})
	h.WriteBytes(x.Bytes())
	for _, c := range gp.Coefficients() {
		h.WriteBytes(c.CompressedBytes())
	}
	h.WriteBytes(mask[:])
	var out [32]byte
	copy(out[:], h.Sum())
	return out
}

func deriveFinalSessionID(peers map[party.ID]*peerInfo) [32]byte {
	ids := make(party.IDSlice, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	ids = party.NewIDSlice(ids)
	h := hash.New(proto.DKGLabel)
	for _, id := range ids {
		h.WriteBytes(peers[id].sid[:])
	}
	var out [32]byte
	copy(out[:], h.Sum())
	return out
}

func deriveKeyID(publicKey *curve.Point, finalSessionID [32]byte) [32]byte {
	h := hash.New("DKLS23-KEY-ID")
	h.WriteBytes(publicKey.CompressedBytes())
	h.WriteBytes(finalSessionID[:])
	var out [32]byte
	copy(out[:], h.Sum())
	return out
}

func r2Transcript(finalSessionID [32]byte, idx party.ParticipantIndex, coeffIndex int) [][]byte {
	return [][]byte{finalSessionID[:], {byte(idx)}, {byte(coeffIndex), byte(coeffIndex >> 8)}}
}

func r3Transcript(finalSessionID [32]byte, idx party.ParticipantIndex) [][]byte {
	return [][]byte{finalSessionID[:], {byte(idx)}}
}

func verifyBirkhoffReconstruction(points []polynomial.RankedPoint, shares map[party.ID]*curve.Point, publicKey *curve.Point) error {
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })
	var coeffs map[party.ID]*curve.Scalar
	var err error
	if polynomial.ZeroRanks(ranksOf(points)) {
		xs := make(map[party.ID]*curve.Scalar, len(points))
		ids := make([]party.ID, len(points))
		for i, p := range points {
			ids[i] = p.ID
			xs[p.ID] = p.X
		}
		coeffs = polynomial.LagrangeCoefficients(ids, xs)
	} else {
		coeffs, err = polynomial.BirkhoffCoefficients(points)
		if err != nil {
			return err
		}
	}
	acc := curve.NewIdentityPoint()
	for id, c := range coeffs {
		acc = acc.Add(c.Act(shares[id]))
	}
	if !acc.Equal(publicKey) {
		return ErrAborted
	}
	return nil
}

func ranksOf(points []polynomial.RankedPoint) map[party.ID]int {
	out := make(map[party.ID]int, len(points))
	for _, p := range points {
		out[p.ID] = p.Rank
	}
	return out
}

// --- relay plumbing -------------------------------------------------

func broadcastSigned[T any](ctx context.Context, rel *relay.FilteredRelay, su *setup.KeygenSetup, tag message.Tag, payload T) error {
	id := su.MsgID(nil, tag)
	buf, err := message.BuildSigned(id, su.MessageTTLSeconds(), broadcastFlag, payload, nil, su.Signer())
	if err != nil {
		return err
	}
	return rel.Send(ctx, buf)
}

func sendP2P[T any](ctx context.Context, rel *relay.FilteredRelay, su *setup.KeygenSetup, encKey *message.SessionKey, peer *peerInfo, tag message.Tag, payload T) error {
	aead, err := encKey.SharedAEAD(peer.encPub)
	if err != nil {
		return err
	}
	id := su.MsgID(&peer.idx, tag)
	buf, err := message.EncryptMessage(id, su.MessageTTLSeconds(), p2pFlag, nil, payload, nil, aead, &peer.sendCtr)
	if err != nil {
		return err
	}
	return rel.Send(ctx, buf)
}

func collectR1(ctx context.Context, rel *relay.FilteredRelay, su *setup.KeygenSetup) (map[party.ID]*peerInfo, error) {
	n := su.TotalParticipants()
	if _, err := rel.AskMessages(ctx, su, message.DKGRound1, false); err != nil {
		return nil, err
	}
	round := rel.NewRound(n-1, message.DKGRound1)
	out := make(map[party.ID]*peerInfo, n)
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
		id := party.ID(sender)
		out[id] = &peerInfo{idx: sender, id: id, sid: payload.Sid, x: payload.X, rank: payload.Rank, commit1: payload.Commitment1, encPub: payload.EncPub}
	}
	return out, nil
}

func collectR2(ctx context.Context, rel *relay.FilteredRelay, su *setup.KeygenSetup, encKey *message.SessionKey, peers map[party.ID]*peerInfo, count int) (map[party.ID]*R2Broadcast, map[party.ID]*R2P2P, error) {
	self := su.ParticipantIndex()
	if _, err := rel.AskMessagesFrom(ctx, su, message.DKGRound2, otherIndices(peers, self), false); err != nil {
		return nil, nil, err
	}
	if _, err := rel.AskMessagesFrom(ctx, su, message.DKGRound2, otherIndices(peers, self), true); err != nil {
		return nil, nil, err
	}
	round := rel.NewRound(2*count, message.DKGRound2)
	broadcasts := make(map[party.ID]*R2Broadcast, count)
	p2ps := make(map[party.ID]*R2P2P, count)
	for {
		body, sender, isAbort, ok, err := round.Recv(ctx)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		if isAbort {
			return nil, nil, ErrAborted
		}
		flags, err := flagsOf(body)
		if err != nil {
			return nil, nil, err
		}
		id := party.ID(sender)
		if flags == broadcastFlag {
			payload, err := message.VerifySignedVar[R2Broadcast](body, su.Verifier(sender))
			if err != nil {
				return nil, nil, err
			}
			broadcasts[id] = &payload
		} else {
			aead, err := encKey.SharedAEAD(peers[id].encPub)
			if err != nil {
				return nil, nil, err
			}
			payload, err := message.DecryptMessageVar[R2P2P](body, 0, aead)
			if err != nil {
				return nil, nil, err
			}
			p2ps[id] = &payload
		}
	}
	return broadcasts, p2ps, nil
}

func collectR3(ctx context.Context, rel *relay.FilteredRelay, su *setup.KeygenSetup, count int) (map[party.ID]*R3Broadcast, error) {
	if _, err := rel.AskMessages(ctx, su, message.DKGRound3, false); err != nil {
		return nil, err
	}
	round := rel.NewRound(count, message.DKGRound3)
	out := make(map[party.ID]*R3Broadcast, count)
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
		payload, err := message.VerifySignedVar[R3Broadcast](body, su.Verifier(sender))
		if err != nil {
			return nil, err
		}
		out[party.ID(sender)] = &payload
	}
	return out, nil
}

func otherIndices(peers map[party.ID]*peerInfo, self party.ParticipantIndex) []party.ParticipantIndex {
	out := make([]party.ParticipantIndex, 0, len(peers))
	for _, p := range peers {
		if p.idx == self {
			continue
		}
		out = append(out, p.idx)
	}
	return out
}

// otPartyMaterial is the per-peer OT outcome runOTSetup hands back.
type otPartyMaterial struct {
	Sender   *ot.SenderOTSeed
	Receiver *ot.ReceiverOTSeed
	ZetaSeed [32]byte
}
