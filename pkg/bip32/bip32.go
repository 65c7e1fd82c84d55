// Package bip32 implements unhardened BIP32 derivation over the joint
// public key and root chain code of a threshold key (spec.md §4.1: "BIP32
// key derivation on the public group element and chain code; returns the
// additive offset that must be added to the private share to land on the
// derived key"). Ported from the teacher's referenced internal/bip32
// (used by protocols/cmp/keygen's Config.DeriveChild, see
// other_examples 0x19-multi-party-sig config.go) and generalized from a
// single hardcoded child index to the slash-separated chain-path strings
// spec.md's DSGSetup carries ("m", "m/0", "m/0/3", ...).
package bip32

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"strconv"
	"strings"

	"github.com/silence-laboratories/dkls23/pkg/curve"
)

// ErrHardened is returned when a chain path component requests hardened
// derivation (index >= 2^31), which is impossible without the private key
// and therefore unsupported by a threshold signer operating only on the
// public key and chain code.
var ErrHardened = errors.New("bip32: hardened derivation requires the private key")

const hardenedBit = uint32(1) << 31

// Offset is the accumulated (scalar, chainCode) result of deriving along a
// chain path: the child's public key is parentPublicKey + Scalar*G, and
// ChainCode feeds the next derivation step.
type Offset struct {
	Scalar    *curve.Scalar
	ChainCode []byte
}

// DerivePath walks a "m/i/j/k" style path (spec.md §4.1/§6 "chain path as
// string") starting from the root public key and chain code, returning the
// total scalar offset to add to the root private share and the final
// child's effective public key.
func DerivePath(rootPublicKey *curve.Point, rootChainCode []byte, path string) (*Offset, *curve.Point, error) {
	indices, err := parsePath(path)
	if err != nil {
		return nil, nil, err
	}

	offset := curve.NewScalar()
	pub := rootPublicKey
	chainCode := rootChainCode

	for _, i := range indices {
		childOffset, newChainCode, err := deriveScalar(pub, chainCode, i)
		if err != nil {
			return nil, nil, err
		}
		offset = offset.Add(childOffset)
		pub = pub.Add(childOffset.ActOnBase())
		chainCode = newChainCode
	}

	return &Offset{Scalar: offset, ChainCode: chainCode}, pub, nil
}

// parsePath splits a chain path string like "m", "m/0", "m/44/0/3" into
// non-hardened child indices.
func parsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "m" {
		return nil, nil
	}
	path = strings.TrimPrefix(path, "m/")
	parts := strings.Split(path, "/")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		if strings.HasSuffix(p, "'") || strings.HasSuffix(p, "h") || strings.HasSuffix(p, "H") {
			return nil, ErrHardened
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, errors.New("bip32: invalid chain path component " + p)
		}
		if uint32(n) >= hardenedBit {
			return nil, ErrHardened
		}
		out = append(out, uint32(n))
	}
	return out, nil
}

// deriveScalar implements the unhardened CKDpub step: I = HMAC-SHA512(
// chainCode, serP(pub) || ser32(index)); offset = IL mod n; childChainCode
// = IR. Retries with index+1-style domain separation are not needed in
// practice (probability ~2^-128), but a caught overflow returns an error
// rather than silently producing a degenerate key, per spec.md's "no
// panics on attacker-supplied input" discipline from §4.1.
func deriveScalar(pub *curve.Point, chainCode []byte, index uint32) (*curve.Scalar, []byte, error) {
	if index >= hardenedBit {
		return nil, nil, ErrHardened
	}
	mac := hmac.New(sha512.New, chainCode)
	mac.Write(pub.CompressedBytes())
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], index)
	mac.Write(idxBuf[:])
	i := mac.Sum(nil)

	il, ir := i[:32], i[32:]
	offset, err := curve.DecodeScalar(il)
	if err != nil {
		return nil, nil, errors.New("bip32: invalid derived key (retry with a different index)")
	}
	if offset.IsZero() {
		return nil, nil, errors.New("bip32: invalid derived key (retry with a different index)")
	}
	return offset, append([]byte(nil), ir...), nil
}
