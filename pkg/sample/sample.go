// Package sample provides randomness helpers threaded explicitly from a
// caller-supplied io.Reader, so that every protocol run (DKG, DSG, quorum
// change) can be made deterministic for testing by handing it a seeded
// stream cipher instead of crypto/rand (spec.md §8: "seed-deterministic
// using ChaCha20 from the given seed").
package sample

import (
	"io"

	"github.com/silence-laboratories/dkls23/pkg/curve"
)

// Scalar draws a uniform nonzero scalar from r.
func Scalar(r io.Reader) (*curve.Scalar, error) {
	s, err := curve.RandomScalar(r)
	if err != nil {
		return nil, err
	}
	return &s.Scalar, nil
}

// Bytes draws n uniform random bytes from r.
func Bytes(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Bit draws a single random bit from r.
func Bit(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0] & 1, nil
}
