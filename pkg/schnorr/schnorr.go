// Package schnorr implements a Fiat-Shamir Schnorr proof of knowledge of a
// discrete log, used by DKG R2/R3 to prove knowledge of each polynomial
// coefficient and of the final additive share (spec.md §4.8's
// "DLog proofs", DLOG_PROOF1_LABEL / DLOG_PROOF2_LABEL). Grounded on the
// simple Schnorr-proof-of-knowledge pattern in
// protocols/lss/jvss/jvss.go's share-proof construction, generalized from
// one fixed recipient-bound challenge to a domain-separated transcript
// label so it can be reused across both DKG labels.
package schnorr

import (
	"io"

	"github.com/silence-laboratories/dkls23/pkg/curve"
	"github.com/silence-laboratories/dkls23/pkg/hash"
)

// Proof is a non-interactive Schnorr proof that the prover knows x such
// that point = x*G.
type Proof struct {
	Commitment *curve.Point  // R = k*G
	Response   *curve.Scalar // s = k + challenge*x
}

// Prove constructs a proof of knowledge of x for point = x*G. transcript is
// additional domain-separating context folded into the Fiat-Shamir
// challenge (e.g. finalSessionId, the coefficient index, the proving
// party's id) so proofs for structurally similar statements never collide.
func Prove(r io.Reader, label string, transcript [][]byte, x *curve.Scalar, point *curve.Point) (*Proof, error) {
	k, err := curve.RandomScalar(r)
	if err != nil {
		return nil, err
	}
	commitment := k.ActOnBase()
	challenge := computeChallenge(label, transcript, point, commitment)
	response := challenge.Mul(x).Add(&k.Scalar)
	return &Proof{Commitment: commitment, Response: response}, nil
}

// Verify checks a Proof against the claimed point = x*G.
func (p *Proof) Verify(label string, transcript [][]byte, point *curve.Point) bool {
	challenge := computeChallenge(label, transcript, point, p.Commitment)
	// s*G == R + challenge*point
	lhs := p.Response.ActOnBase()
	rhs := p.Commitment.Add(challenge.Act(point))
	return lhs.Equal(rhs)
}

func computeChallenge(label string, transcript [][]byte, point, commitment *curve.Point) *curve.Scalar {
	h := hash.New(label)
	for _, t := range transcript {
		h.WriteBytes(t)
	}
	h.WriteBytes(point.CompressedBytes())
	h.WriteBytes(commitment.CompressedBytes())
	return curve.ScalarFromBytesModQ(h.Sum())
}
