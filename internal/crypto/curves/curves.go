// Package curves holds the public domain parameters of secp256k1, the
// constants of its efficiently computable endomorphism, and plaintext
// reference arithmetic used to precompute constants and to check results.
package curves

import (
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"math/big"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Curve defines the plaintext operations the engine needs from a reference
// implementation.
type Curve interface {
	// Params returns the curve parameters (Order, etc.)
	Params() *elliptic.CurveParams

	// NewScalar generates a random scalar in [1, N-1]
	NewScalar(random io.Reader) (*big.Int, error)

	// ScalarBaseMult computes k * G (base point multiplication)
	ScalarBaseMult(k *big.Int) (*big.Int, *big.Int)

	// ScalarMult computes k * P
	ScalarMult(Px, Py, k *big.Int) (*big.Int, *big.Int)

	// Add combines two points
	Add(x1, y1, x2, y2 *big.Int) (*big.Int, *big.Int)
}

// Params are the domain parameters of a short Weierstrass curve
// y^2 = x^3 + B over F_P with a = 0, together with a GLV endomorphism
// phi(x, y) = (Beta*x, y) that acts as multiplication by Lambda.
//
// The lattice basis {(A1, B1), (A2, B2)} spans the kernel of
// (i, j) -> i + j*Lambda mod N. G1 and G2 are the rounded quotients
// round(2^Shift * B2 / N) and round(2^Shift * -B1 / N) used to split a
// scalar without division.
type Params struct {
	Name string

	P, N, B *big.Int
	Gx, Gy  *big.Int

	Beta, Lambda *big.Int

	A1, B1, A2, B2 *big.Int
	G1, G2         *big.Int
	Shift          uint
}

// SubScalarBits is the length of each half-scalar ladder. Split halves have
// magnitude below 2^128; one more bit keeps the ladder length independent of
// the operand.
const SubScalarBits = 129

func hexInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("curves: bad constant " + s)
	}
	return v
}

var (
	secp256k1Once   sync.Once
	secp256k1Params *Params
)

// Secp256k1 returns the secp256k1 parameters. The result is shared and must
// not be modified.
func Secp256k1() *Params {
	secp256k1Once.Do(func() {
		cp := secp256k1.S256().Params()
		p := &Params{
			Name:   "secp256k1",
			P:      new(big.Int).Set(cp.P),
			N:      new(big.Int).Set(cp.N),
			B:      new(big.Int).Set(cp.B),
			Gx:     new(big.Int).Set(cp.Gx),
			Gy:     new(big.Int).Set(cp.Gy),
			Beta:   hexInt("7ae96a2b657c07106e64479eac3434e99cf0497512f58995c1396c28719501ee"),
			Lambda: hexInt("5363ad4cc05c30e0a5261c028812645a122e22ea20816678df02967c1b23bd72"),
			A1:     hexInt("3086d221a7d46bcde86c90e49284eb15"),
			B1:     new(big.Int).Neg(hexInt("e4437ed6010e88286f547fa90abfe4c3")),
			A2:     hexInt("114ca50f7a8e2f3f657c1108d9d44cfd8"),
			B2:     hexInt("3086d221a7d46bcde86c90e49284eb15"),
			Shift:  384,
		}
		p.G1 = roundDiv(new(big.Int).Lsh(p.B2, p.Shift), p.N)
		p.G2 = roundDiv(new(big.Int).Lsh(new(big.Int).Neg(p.B1), p.Shift), p.N)
		secp256k1Params = p
	})
	return secp256k1Params
}

// roundDiv returns round(a / b) for a >= 0 and b > 0.
func roundDiv(a, b *big.Int) *big.Int {
	q := new(big.Int).Rsh(b, 1)
	q.Add(q, a)
	return q.Div(q, b)
}

// MinusB1 returns -B1 mod N.
func (p *Params) MinusB1() *big.Int {
	return new(big.Int).Mod(new(big.Int).Neg(p.B1), p.N)
}

// MinusB2 returns -B2 mod N.
func (p *Params) MinusB2() *big.Int {
	return new(big.Int).Mod(new(big.Int).Neg(p.B2), p.N)
}

// LambdaG returns phi(G) = (Beta*Gx mod P, Gy).
func (p *Params) LambdaG() (*big.Int, *big.Int) {
	x := new(big.Int).Mul(p.Beta, p.Gx)
	return x.Mod(x, p.P), new(big.Int).Set(p.Gy)
}

// Secp256k1Curve wraps the decred implementation as the plaintext reference.
type Secp256k1Curve struct{}

func (c *Secp256k1Curve) Params() *elliptic.CurveParams {
	return secp256k1.S256().Params()
}

func (c *Secp256k1Curve) NewScalar(random io.Reader) (*big.Int, error) {
	if random == nil {
		random = rand.Reader
	}
	params := c.Params()
	// Generate random integer in [1, N-1]
	nMinus1 := new(big.Int).Sub(params.N, big.NewInt(1))
	k, err := rand.Int(random, nMinus1)
	if err != nil {
		return nil, err
	}
	return k.Add(k, big.NewInt(1)), nil
}

func (c *Secp256k1Curve) ScalarBaseMult(k *big.Int) (*big.Int, *big.Int) {
	return secp256k1.S256().ScalarBaseMult(k.Bytes())
}

func (c *Secp256k1Curve) ScalarMult(Px, Py, k *big.Int) (*big.Int, *big.Int) {
	return secp256k1.S256().ScalarMult(Px, Py, k.Bytes())
}

func (c *Secp256k1Curve) Add(x1, y1, x2, y2 *big.Int) (*big.Int, *big.Int) {
	return secp256k1.S256().Add(x1, y1, x2, y2)
}

// NewSecp256k1 returns a new instance of the Secp256k1 curve wrapper
func NewSecp256k1() Curve {
	return &Secp256k1Curve{}
}
