package fhecdsa

import (
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Plaintext helpers for callers that own the inputs: key derivation, nonce
// generation and verification of a decrypted signature.

func scalarBytes(v *big.Int) []byte {
	var b [32]byte
	return new(big.Int).Mod(v, secp256k1.S256().Params().N).FillBytes(b[:])
}

// PublicKeyOf returns d*G in the clear.
func PublicKeyOf(d *big.Int) *secp256k1.PublicKey {
	return secp256k1.PrivKeyFromBytes(scalarBytes(d)).PubKey()
}

// NonceRFC6979 derives the deterministic nonce for d and hash.
func NonceRFC6979(d *big.Int, hash []byte) *big.Int {
	k := secp256k1.NonceRFC6979(scalarBytes(d), hash, nil, nil, 0)
	b := k.Bytes()
	return new(big.Int).SetBytes(b[:])
}

// Verify checks a decrypted signature against pub.
func Verify(pub *secp256k1.PublicKey, hash []byte, sig *PlainSignature) bool {
	if sig == nil || sig.R == nil || sig.S == nil {
		return false
	}
	var r, s secp256k1.ModNScalar
	if r.SetByteSlice(sig.R.Bytes()) || s.SetByteSlice(sig.S.Bytes()) {
		return false
	}
	return ecdsa.NewSignature(&r, &s).Verify(hash, pub)
}
