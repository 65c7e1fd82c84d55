package dkg

import (
	"context"
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/silence-laboratories/dkls23/pkg/hash"
	"github.com/silence-laboratories/dkls23/pkg/message"
	"github.com/silence-laboratories/dkls23/pkg/ot"
	"github.com/silence-laboratories/dkls23/pkg/party"
	"github.com/silence-laboratories/dkls23/pkg/relay"
	"github.com/silence-laboratories/dkls23/pkg/setup"
)

// otSessionID derives the session id a base OT instance binds its
// softspoken expansion to: SHA-256 over finalSessionID and the pair's ids
// in canonical (lower, higher) order, so both sides compute the same value
// whichever of them is acting as sender.
func otSessionID(finalSessionID [32]byte, senderID, receiverID party.ID) []byte {
	lo, hi := senderID, receiverID
	if hi < lo {
		lo, hi = hi, lo
	}
	return hash.SHA256Label([]byte("DKLS23-OT-SESSION"), finalSessionID[:], []byte{byte(lo), byte(hi)})
}

// combineZeta folds both parties' halves of a pairwise zeta seed into one
// value both sides compute identically, keyed by the sorted pair of ids so
// the result doesn't depend on which side is "self".
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

// runOTSetup implements spec.md §4.8's R5/R6: a full-duplex pairwise base
// OT between every unordered pair of parties, run in both directions so
// each side ends up with a SenderOTSeed toward the peer and a
// ReceiverOTSeed from the peer (pkg/mta's pairwise MtA needs both), plus a
// pairwise zeta-seed exchanged alongside R6.
func runOTSetup(ctx context.Context, rel *relay.FilteredRelay, su *setup.KeygenSetup, encKey *message.SessionKey, peers map[party.ID]*peerInfo, finalSessionID [32]byte) (map[party.ID]*otPartyMaterial, error) {
	selfID := party.ID(su.ParticipantIndex())
	count := len(peers) - 1

	// R5: each party acts as OT sender toward every peer.
	senderEphs := make(map[party.ID]*ot.SenderEphemeral, count)
	for id, peer := range peers {
		if id == selfID {
			continue
		}
		senderEph, pubs, err := ot.SenderRound1(rand.Reader)
		if err != nil {
			return nil, err
		}
		senderEphs[id] = senderEph
		if err := sendP2P(ctx, rel, su, encKey, peer, message.DKGRound5, OTSenderPubs{Pubs: pubs}); err != nil {
			return nil, err
		}
	}

	recvSenderPubs := make(map[party.ID][256][33]byte, count)
	if err := collectP2PRound(ctx, rel, su, encKey, peers, message.DKGRound5, count, func(id party.ID, body []byte, aead chacha20poly1305.AEAD) error {
		payload, err := message.DecryptMessageVar[OTSenderPubs](body, 0, aead)
		if err != nil {
			return err
		}
		recvSenderPubs[id] = payload.Pubs
		return nil
	}); err != nil {
		return nil, err
	}

	// R6: each party acts as OT receiver of the peer's R5 message, and
	// exchanges its zeta-seed half.
	receiverOTSeeds := make(map[party.ID]*ot.ReceiverOTSeed, count)
	zetaHalves := make(map[party.ID][32]byte, count)
	for id, peer := range peers {
		if id == selfID {
			continue
		}
		choices, err := ot.RandomChoices(rand.Reader)
		if err != nil {
			return nil, err
		}
		receiverSeeds, receiverPubs, err := ot.ReceiverRound1(rand.Reader, recvSenderPubs[id], choices)
		if err != nil {
			return nil, err
		}
		sid := otSessionID(finalSessionID, id, selfID)
		receiverOTSeeds[id] = ot.DeriveReceiverOTSeed(receiverSeeds, sid)

		var half [32]byte
		if _, err := rand.Read(half[:]); err != nil {
			return nil, err
		}
		zetaHalves[id] = half

		if err := sendP2P(ctx, rel, su, encKey, peer, message.DKGRound6, OTReceiverPubs{Pubs: receiverPubs, ZetaHalf: half}); err != nil {
			return nil, err
		}
	}

	out := make(map[party.ID]*otPartyMaterial, count)
	if err := collectP2PRound(ctx, rel, su, encKey, peers, message.DKGRound6, count, func(id party.ID, body []byte, aead chacha20poly1305.AEAD) error {
		payload, err := message.DecryptMessageVar[OTReceiverPubs](body, 0, aead)
		if err != nil {
			return err
		}
		senderSeeds, err := senderEphs[id].SenderDeriveSeeds(payload.Pubs)
		if err != nil {
			return err
		}
		sid := otSessionID(finalSessionID, selfID, id)
		senderOTSeed := ot.DeriveSenderOTSeed(senderSeeds, sid)
		zeta := combineZeta(selfID, id, zetaHalves[id], payload.ZetaHalf)
		out[id] = &otPartyMaterial{Sender: senderOTSeed, Receiver: receiverOTSeeds[id], ZetaSeed: zeta}
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// collectP2PRound drains count P2P messages tagged tag, dispatching each
// to handle with its sender's id and a ready-to-use AEAD bound to that
// peer's encryption public key (known since R1).
func collectP2PRound(ctx context.Context, rel *relay.FilteredRelay, su *setup.KeygenSetup, encKey *message.SessionKey, peers map[party.ID]*peerInfo, tag message.Tag, count int, handle func(id party.ID, body []byte, aead chacha20poly1305.AEAD) error) error {
	self := su.ParticipantIndex()
	others := otherIndices(peers, self)
	if _, err := rel.AskMessagesFrom(ctx, su, tag, others, true); err != nil {
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
		id := party.ID(sender)
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
