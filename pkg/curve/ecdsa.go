package curve

// VerifyECDSA checks a raw (r, s) signature (both already reduced mod q)
// against a public key and a 32-byte message hash, using the standard
// ECDSA verification equation directly (not the DER-encoded wrapper).
func VerifyECDSA(pub *Point, hash []byte, r, s *Scalar) bool {
	if r.IsZero() || s.IsZero() {
		return false
	}
	sInv := s.Inverse()
	m := ScalarFromBytesModQ(hash)

	u1 := m.Mul(sInv)
	u2 := r.Mul(sInv)

	p1 := u1.ActOnBase()
	p2 := u2.Act(pub)
	sum := p1.Add(p2)
	if sum.IsIdentity() {
		return false
	}
	return sum.XScalar().Equal(r)
}

// NormalizeS flips s to q-s (and flips the recovery id's low bit) when s is
// in the upper half of the order, the canonical low-S form most verifiers
// require. Uses the constant-time Scalar.IsHighS rather than a manual
// byte comparison, since s is derived from the signing nonce/key and a
// data-dependent early-exit comparison would leak its magnitude through
// timing.
func NormalizeS(s *Scalar, recID byte) (*Scalar, byte) {
	if !s.IsHighS() {
		return s, recID
	}
	return s.Negate(), recID ^ 1
}
