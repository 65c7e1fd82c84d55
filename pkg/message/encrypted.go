package message

import (
	"encoding/binary"
	"errors"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/silence-laboratories/dkls23/pkg/hash"
)

// ErrNonceOverflow is returned when a sender's monotonic nonce counter
// would wrap, per spec.md §4.4 ("overflow is fatal"). A session must never
// reuse a nonce, so the only safe response is to abort.
var ErrNonceOverflow = errors.New("message: nonce counter overflow")

// ErrDecrypt is returned when AEAD decryption or authentication fails.
var ErrDecrypt = errors.New("message: decryption failed")

// SessionKey is the per-peer X25519 static keypair used to derive
// encryption keys, per spec.md §4.11 ("key derived per receiver").
type SessionKey struct {
	priv [32]byte
	pub  [32]byte
}

// NewSessionKey derives a SessionKey from a 32-byte seed (e.g. the
// party's long-term X25519 private scalar).
func NewSessionKey(priv [32]byte) *SessionKey {
	sk := &SessionKey{priv: priv}
	curve25519.ScalarBaseMult(&sk.pub, &priv)
	return sk
}

// PublicKey returns the X25519 public key to publish to peers.
func (sk *SessionKey) PublicKey() [32]byte { return sk.pub }

// SharedAEAD derives a ChaCha20-Poly1305 AEAD bound to the shared secret
// with a specific peer's public key.
func (sk *SessionKey) SharedAEAD(peerPublic [32]byte) (chacha20poly1305.AEAD, error) {
	shared, err := curve25519.X25519(sk.priv[:], peerPublic[:])
	if err != nil {
		return nil, err
	}
	key := hash.SHA256Label([]byte("SL-MESSAGE-AEAD-KEY"), shared)
	return chacha20poly1305.New(key)
}

// NonceCounter is a per-sender monotonically increasing 32-bit counter.
// Every encryption MUST use a fresh value; Next reports ErrNonceOverflow
// once it would wrap rather than silently reusing a nonce.
type NonceCounter struct {
	next uint64 // atomic; kept as uint64 so overflow of uint32 is detectable
}

// Next atomically reserves the next nonce value.
func (c *NonceCounter) Next() (uint32, error) {
	v := atomic.AddUint64(&c.next, 1) - 1
	if v > 0xFFFFFFFF {
		return 0, ErrNonceOverflow
	}
	return uint32(v), nil
}

// nonceBytes expands a 32-bit counter into the AEAD's required nonce size,
// zero-padding the high bytes (the low 32 bits carry all the entropy we
// need: a fresh counter per sender per session is sufficient uniqueness).
func nonceBytes(counter uint32, size int) []byte {
	n := make([]byte, size)
	binary.LittleEndian.PutUint32(n, counter)
	return n
}

// EncryptMessage builds an authenticated-encrypted frame: the header and
// associatedData are AAD, payload|trailer is the ciphertext, and the tag
// plus nonce are appended, per spec.md §4.4's
// "header | associatedData | payload | trailer | tag | nonce" layout.
func EncryptMessage[T any](id MsgId, ttl uint32, flags uint16, associatedData []byte, payload T, trailer []byte, aead chacha20poly1305.AEAD, counter *NonceCounter) ([]byte, error) {
	payloadBytes, err := cbor.Marshal(payload)
	if err != nil {
		return nil, err
	}

	h := Header{ID: id, TTL: ttl, Flags: flags}
	hdrBuf := make([]byte, HeaderSize)
	if err := h.Encode(hdrBuf); err != nil {
		return nil, err
	}

	ad := append(append([]byte{}, hdrBuf...), associatedData...)
	plaintext := append(append([]byte{}, payloadBytes...), trailer...)

	nonceCounter, err := counter.Next()
	if err != nil {
		return nil, err
	}
	nonce := nonceBytes(nonceCounter, aead.NonceSize())

	ciphertext := aead.Seal(nil, nonce, plaintext, ad)

	out := make([]byte, 0, len(ad)+len(ciphertext)+len(nonce))
	out = append(out, ad...)
	out = append(out, ciphertext...)
	out = append(out, nonce...)
	return out, nil
}

// DecryptMessage is the inverse of EncryptMessage. adLen is the length of
// the caller-supplied associatedData that followed the fixed header (0 if
// none), and payloadLen is the exact CBOR-encoded size of T.
func DecryptMessage[T any](buf []byte, adLen, payloadLen int, aead chacha20poly1305.AEAD) (T, []byte, error) {
	var zero T
	nonceSize := aead.NonceSize()
	if len(buf) < HeaderSize+adLen+nonceSize {
		return zero, nil, ErrBadLength
	}

	adEnd := HeaderSize + adLen
	ad := buf[:adEnd]
	nonce := buf[len(buf)-nonceSize:]
	ciphertext := buf[adEnd : len(buf)-nonceSize]

	plaintext, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return zero, nil, ErrDecrypt
	}
	if len(plaintext) < payloadLen {
		return zero, nil, ErrBadLength
	}

	var payload T
	if err := cbor.Unmarshal(plaintext[:payloadLen], &payload); err != nil {
		return zero, nil, ErrDecrypt
	}
	return payload, plaintext[payloadLen:], nil
}

// DecryptMessageVar is DecryptMessage for payloads whose CBOR-encoded
// length varies per message and that never carry a trailer: the whole
// decrypted plaintext is the payload.
func DecryptMessageVar[T any](buf []byte, adLen int, aead chacha20poly1305.AEAD) (T, error) {
	var zero T
	nonceSize := aead.NonceSize()
	if len(buf) < HeaderSize+adLen+nonceSize {
		return zero, ErrBadLength
	}
	adEnd := HeaderSize + adLen
	ad := buf[:adEnd]
	nonce := buf[len(buf)-nonceSize:]
	ciphertext := buf[adEnd : len(buf)-nonceSize]

	plaintext, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return zero, ErrDecrypt
	}
	var payload T
	if err := cbor.Unmarshal(plaintext, &payload); err != nil {
		return zero, ErrDecrypt
	}
	return payload, nil
}
