// Package zeroize implements the wipe-on-drop discipline spec.md §9
// mandates for every type holding a scalar, polynomial, OT seed, or
// plaintext-after-decrypt: "MUST wipe its memory on drop".
package zeroize

// Bytes overwrites b in place with zeros. Go has no destructors, so callers
// must invoke this explicitly at the end of a secret's useful lifetime
// (e.g. Keyshare.Zeroize, Polynomial.Zeroize) rather than relying on GC.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Bytes32 overwrites a fixed 32-byte array in place.
func Bytes32(b *[32]byte) {
	for i := range b {
		b[i] = 0
	}
}
