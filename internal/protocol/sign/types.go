package sign

import (
	"math/big"

	"github.com/smallyu/go-fhe-ecdsa/internal/limb"
	"github.com/smallyu/go-fhe-ecdsa/internal/modarith"
)

// Request is the input of one signing run. Every ciphertext belongs to this
// request alone and must not be shared with a concurrent run.
//
// DegenerateInputAssumptionViolated: the caller guarantees that the nonce is
// non-zero and that neither r nor s of the resulting signature is zero. The
// signer cannot observe encrypted values and does not check these cases; a
// violation yields an invalid signature, not an error.
type Request struct {
	PrivateKey modarith.Element
	Nonce      modarith.Element

	// Digest is the message digest already reduced modulo N. It is ignored
	// when WideDigest is set.
	Digest modarith.Element

	// WideDigest holds a digest of up to 2*Count limbs, reduced modulo N
	// inside the pipeline.
	WideDigest []limb.Limb
}

// Signature is an encrypted ECDSA signature.
type Signature struct {
	R modarith.Element
	S modarith.Element
}

// PlainSignature is a decrypted signature.
type PlainSignature struct {
	R *big.Int
	S *big.Int
}
