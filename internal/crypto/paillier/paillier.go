// Package paillier implements the Paillier cryptosystem and an interactive
// FHE backend built on it.
//
// Paillier is additively homomorphic only. The Backend in this package
// completes the capability set with a key holder that answers blinded
// multiplication and refresh queries, which makes it a two-party backend
// rather than a fully homomorphic one.
package paillier

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

var one = big.NewInt(1)

// MinBits is the smallest accepted modulus size.
const MinBits = 1024

// PublicKey is a Paillier public key.
type PublicKey struct {
	N  *big.Int // p*q
	N2 *big.Int // N^2
}

// PrivateKey is a Paillier private key.
type PrivateKey struct {
	PublicKey
	Lambda *big.Int // lcm(p-1, q-1)
	Mu     *big.Int // Lambda^-1 mod N
}

// GenerateKey generates a key pair whose modulus has the given bit length.
func GenerateKey(random io.Reader, bits int) (*PrivateKey, error) {
	if bits < MinBits {
		return nil, fhe.NewConfigurationError("paillier_bits", fmt.Sprintf("%d bits, at least %d required", bits, MinBits), nil)
	}
	if random == nil {
		random = rand.Reader
	}

	// 1. Two distinct primes
	p, err := rand.Prime(random, bits/2)
	if err != nil {
		return nil, err
	}
	q, err := rand.Prime(random, bits/2)
	if err != nil {
		return nil, err
	}
	for p.Cmp(q) == 0 {
		if q, err = rand.Prime(random, bits/2); err != nil {
			return nil, err
		}
	}

	// 2. N = p*q
	n := new(big.Int).Mul(p, q)
	n2 := new(big.Int).Mul(n, n)

	// 3. lambda = lcm(p-1, q-1)
	pMinus1 := new(big.Int).Sub(p, one)
	qMinus1 := new(big.Int).Sub(q, one)
	gcd := new(big.Int).GCD(nil, nil, pMinus1, qMinus1)
	lambda := new(big.Int).Mul(pMinus1, qMinus1)
	lambda.Div(lambda, gcd)

	// 4. mu = lambda^-1 mod N
	mu := new(big.Int).ModInverse(lambda, n)
	if mu == nil {
		return nil, errors.New("paillier: lambda is not invertible modulo n")
	}

	return &PrivateKey{
		PublicKey: PublicKey{N: n, N2: n2},
		Lambda:    lambda,
		Mu:        mu,
	}, nil
}

// Encrypt encrypts m in [0, N) with fresh randomness, which it returns.
func (pk *PublicKey) Encrypt(m *big.Int) (*big.Int, *big.Int, error) {
	r, err := rand.Int(rand.Reader, pk.N)
	if err != nil {
		return nil, nil, err
	}
	if r.Sign() == 0 {
		r.SetInt64(1)
	}
	c, err := pk.EncryptWithNonce(m, r)
	if err != nil {
		return nil, nil, err
	}
	return c, r, nil
}

// EncryptWithNonce encrypts m with the given nonce: (1 + N*m) * r^N mod N^2.
// A nonce of 1 gives the noiseless encoding of a public constant.
func (pk *PublicKey) EncryptWithNonce(m, r *big.Int) (*big.Int, error) {
	if m.Sign() < 0 || m.Cmp(pk.N) >= 0 {
		return nil, fmt.Errorf("paillier: message outside [0, n): %w", fhe.ErrOutOfRange)
	}

	// (1 + N*m) is already below N^2 for m < N
	gm := new(big.Int).Mul(pk.N, m)
	gm.Add(gm, one)

	c := new(big.Int).Exp(r, pk.N, pk.N2)
	c.Mul(c, gm)
	return c.Mod(c, pk.N2), nil
}

// Decrypt recovers m = L(c^Lambda mod N^2) * Mu mod N with L(x) = (x-1)/N.
func (priv *PrivateKey) Decrypt(c *big.Int) (*big.Int, error) {
	if err := priv.ValidateCiphertext(c); err != nil {
		return nil, err
	}
	u := new(big.Int).Exp(c, priv.Lambda, priv.N2)
	l := u.Sub(u, one)
	l.Div(l, priv.N)
	m := l.Mul(l, priv.Mu)
	return m.Mod(m, priv.N), nil
}

// Add returns an encryption of m1 + m2 mod N.
func (pk *PublicKey) Add(c1, c2 *big.Int) *big.Int {
	c := new(big.Int).Mul(c1, c2)
	return c.Mod(c, pk.N2)
}

// Mul returns an encryption of m * k mod N.
func (pk *PublicKey) Mul(c, k *big.Int) *big.Int {
	return new(big.Int).Exp(c, k, pk.N2)
}

// Neg returns an encryption of -m mod N.
func (pk *PublicKey) Neg(c *big.Int) *big.Int {
	return pk.Mul(c, new(big.Int).Sub(pk.N, one))
}

// ValidateCiphertext checks that c lies in [0, N^2).
func (pk *PublicKey) ValidateCiphertext(c *big.Int) error {
	if c == nil || c.Sign() < 0 || c.Cmp(pk.N2) >= 0 {
		return fmt.Errorf("paillier: ciphertext outside [0, n^2): %w", fhe.ErrOutOfRange)
	}
	return nil
}
