package setup

import (
	"github.com/silence-laboratories/dkls23/pkg/keyshare"
	"github.com/silence-laboratories/dkls23/pkg/message"
)

// KeyExporter is the configuration a threshold subset reads when sending
// their s_i to a single recipient, per spec.md §4.10 "Key export": each
// exporter encrypts its share under the recipient's X25519 public key.
type KeyExporter struct {
	Base

	Keyshare           *keyshare.Keyshare
	RecipientPublicKey [32]byte
}

// KeyReceiver is the configuration the recipient of a key export reads: it
// has no Keyshare of its own and instead collects t encrypted shares,
// combines them via Lagrange/Birkhoff, and checks the result against
// publicKey before accepting it. By convention the receiver is always the
// last ParticipantIndex in the session (Base.Total-1); every exporter
// occupies one of the indices 0..len(ExporterIDs)-1, positionally matched
// to ExporterIDs.
type KeyReceiver struct {
	Base

	ExpectedPublicKeyHash [32]byte // commitment the exporters independently agree on
	Session               message.SessionKey
	ExporterIDs           []byte // party.ID, one per exporter, positionally matched to ParticipantIndex 0..len-1
}
