package quorum

import (
	"context"
	"errors"

	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/hash"
	"github.com/silence-laboratories/dkls23/pkg/message"
	"github.com/silence-laboratories/dkls23/pkg/party"
	"github.com/silence-laboratories/dkls23/pkg/polynomial"
	"github.com/silence-laboratories/dkls23/pkg/proto"
	"github.com/silence-laboratories/dkls23/pkg/relay"
	"github.com/silence-laboratories/dkls23/pkg/setup"
)

// ErrExporterMissingSelf is returned when an exporter's own Keyshare has no
// self material, which Keyshare.Validate already should have rejected.
var ErrExporterMissingSelf = errors.New("quorum: exporter keyshare missing self material")

// ExportShare is the payload an exporter P2P-sends to the key-export
// recipient: its additive contribution plus enough of its keyshare row
// (rank, x-coordinate) for the recipient to combine t of these via
// Lagrange/Birkhoff, per spec.md §4.10 "Key export".
type ExportShare struct {
	ID        party.ID
	Rank      int
	X         *curve.Scalar
	Si        *curve.Scalar
	PublicKey *curve.Point
}

// Export sends this exporter's additive share to the key-export recipient.
// Unlike the P2P messages inside Run, export has no prior round to
// exchange ephemeral X25519 keys: the recipient's static public key is
// already known (setup.KeyExporter.RecipientPublicKey), so the sender's
// own ephemeral public key rides along as cleartext associated data,
// letting the recipient derive the matching shared secret without a
// handshake round.
func Export(ctx context.Context, su *setup.KeyExporter, rel *relay.FilteredRelay, encKey *message.SessionKey) error {
	pm := su.Keyshare.SelfMaterial()
	if pm == nil {
		return ErrExporterMissingSelf
	}
	payload := ExportShare{
		ID:        su.Keyshare.PartyID,
		Rank:      pm.Rank,
		X:         &pm.X.Scalar,
		Si:        su.Keyshare.Si,
		PublicKey: su.Keyshare.PublicKey,
	}
	aead, err := encKey.SharedAEAD(su.RecipientPublicKey)
	if err != nil {
		return err
	}
	receiver := party.ParticipantIndex(su.Total - 1)
	id := su.MsgID(&receiver, message.KeyExportTag)
	senderPub := encKey.PublicKey()
	buf, err := message.EncryptMessage(id, su.MessageTTLSeconds(), 0, senderPub[:], payload, nil, aead, new(message.NonceCounter))
	if err != nil {
		return err
	}
	return rel.Send(ctx, buf)
}

// HashPublicKey derives the commitment setup.KeyReceiver.ExpectedPublicKeyHash
// carries, per spec.md §4.10: a domain-separated digest of the joint public
// key, agreed out-of-band (e.g. read off every exporter's existing
// Keyshare before the run starts) so a malicious relay cannot substitute a
// different key during export.
func HashPublicKey(publicKey *curve.Point) [32]byte {
	h := hash.New(proto.KeyExportLabel)
	h.WriteBytes(publicKey.CompressedBytes())
	var out [32]byte
	copy(out[:], h.Sum())
	return out
}

// Receive collects one encrypted share from every exporter named in
// setup.KeyReceiver.ExporterIDs, combines them via Lagrange (if every
// exporter's rank is 0) or Birkhoff reconstruction, checks the combined
// private key against the joint public key and its out-of-band hash
// commitment, and returns it, per spec.md §4.10 / §8 scenario 5.
func Receive(ctx context.Context, su *setup.KeyReceiver, rel *relay.FilteredRelay) (*curve.Scalar, error) {
	count := len(su.ExporterIDs)
	fromIdx := make([]party.ParticipantIndex, count)
	for i := range su.ExporterIDs {
		fromIdx[i] = party.ParticipantIndex(i)
	}
	if _, err := rel.AskMessagesFrom(ctx, su, message.KeyExportTag, fromIdx, true); err != nil {
		return nil, err
	}

	round := rel.NewRound(count, message.KeyExportTag)
	shares := make(map[party.ID]*ExportShare, count)
	var publicKey *curve.Point
	for {
		body, _, isAbort, ok, err := round.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if isAbort {
			return nil, ErrAborted
		}
		if len(body) < message.HeaderSize+32 {
			return nil, message.ErrBadLength
		}
		var senderPub [32]byte
		copy(senderPub[:], body[message.HeaderSize:message.HeaderSize+32])
		aead, err := su.Session.SharedAEAD(senderPub)
		if err != nil {
			return nil, err
		}
		payload, err := message.DecryptMessageVar[ExportShare](body, 32, aead)
		if err != nil {
			return nil, err
		}
		if publicKey == nil {
			publicKey = payload.PublicKey
		} else if !publicKey.Equal(payload.PublicKey) {
			return nil, ErrAborted
		}
		shares[payload.ID] = &payload
	}
	if publicKey == nil || len(shares) != count {
		return nil, ErrAborted
	}
	if HashPublicKey(publicKey) != su.ExpectedPublicKeyHash {
		return nil, ErrAborted
	}

	ids := make(party.IDSlice, 0, count)
	for id := range shares {
		ids = append(ids, id)
	}
	ids = party.NewIDSlice(ids)
	if len(ids) != count {
		return nil, ErrAborted
	}

	zeroRanks := true
	for _, s := range shares {
		if s.Rank != 0 {
			zeroRanks = false
			break
		}
	}

	combined := curve.NewScalar()
	if zeroRanks {
		xs := make(map[party.ID]*curve.Scalar, count)
		for _, id := range ids {
			xs[id] = shares[id].X
		}
		coeffs := polynomial.LagrangeCoefficients(ids, xs)
		for _, id := range ids {
			combined = combined.Add(coeffs[id].Mul(shares[id].Si))
		}
	} else {
		points := make([]polynomial.RankedPoint, 0, count)
		for _, id := range ids {
			points = append(points, polynomial.RankedPoint{ID: id, X: shares[id].X, Rank: shares[id].Rank})
		}
		coeffs, err := polynomial.BirkhoffCoefficients(points)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			combined = combined.Add(coeffs[id].Mul(shares[id].Si))
		}
	}

	if !combined.ActOnBase().Equal(publicKey) {
		return nil, ErrAborted
	}
	return combined, nil
}
