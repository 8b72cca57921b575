package curves

import (
	"math/big"

	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// Validate checks the domain parameters before any ciphertext work starts.
// Every failure is a *fhe.ConfigurationError.
func (p *Params) Validate() error {
	for _, c := range []struct {
		name string
		v    *big.Int
	}{{"P", p.P}, {"N", p.N}, {"B", p.B}, {"Gx", p.Gx}, {"Gy", p.Gy}, {"Beta", p.Beta},
		{"Lambda", p.Lambda}, {"A1", p.A1}, {"B1", p.B1}, {"A2", p.A2}, {"B2", p.B2}, {"G1", p.G1}, {"G2", p.G2}} {
		if c.v == nil {
			return fhe.NewConfigurationError(c.name, "missing", nil)
		}
	}

	// 1. Moduli
	if !p.P.ProbablyPrime(20) {
		return fhe.NewConfigurationError("P", "field modulus is not prime", nil)
	}
	if !p.N.ProbablyPrime(20) {
		return fhe.NewConfigurationError("N", "group order is not prime", nil)
	}
	if new(big.Int).Lsh(p.N, 1).Cmp(p.P) <= 0 {
		return fhe.NewConfigurationError("P", "field modulus not below twice the group order", nil)
	}

	// 2. Generator
	if !p.IsOnCurve(p.Gx, p.Gy) {
		return fhe.NewConfigurationError("G", "generator is not on the curve", nil)
	}

	// 3. Endomorphism constants are non-trivial cube roots of unity
	if !isCubeRootOfUnity(p.Beta, p.P) {
		return fhe.NewConfigurationError("Beta", "not a non-trivial cube root of unity mod P", nil)
	}
	if !isCubeRootOfUnity(p.Lambda, p.N) {
		return fhe.NewConfigurationError("Lambda", "not a non-trivial cube root of unity mod N", nil)
	}
	lx, ly := p.affineMul(p.Gx, p.Gy, p.Lambda)
	bx, by := p.LambdaG()
	if lx == nil || lx.Cmp(bx) != 0 || ly.Cmp(by) != 0 {
		return fhe.NewConfigurationError("Lambda", "Lambda*G does not match (Beta*Gx, Gy)", nil)
	}

	// 4. Lattice basis lies in the kernel
	for _, v := range [][2]*big.Int{{p.A1, p.B1}, {p.A2, p.B2}} {
		t := new(big.Int).Mul(v[1], p.Lambda)
		t.Add(t, v[0])
		if t.Mod(t, p.N).Sign() != 0 {
			return fhe.NewConfigurationError("basis", "vector not in the kernel of i + j*Lambda", nil)
		}
	}

	// 5. Split constants
	if p.G1.Cmp(roundDiv(new(big.Int).Lsh(p.B2, p.Shift), p.N)) != 0 ||
		p.G2.Cmp(roundDiv(new(big.Int).Lsh(new(big.Int).Neg(p.B1), p.Shift), p.N)) != 0 {
		return fhe.NewConfigurationError("G1/G2", "split constants do not match the basis", nil)
	}
	return nil
}

func isCubeRootOfUnity(v, m *big.Int) bool {
	if v.Sign() <= 0 || v.Cmp(m) >= 0 || v.Cmp(one) == 0 {
		return false
	}
	c := new(big.Int).Exp(v, big.NewInt(3), m)
	return c.Cmp(one) == 0
}

// IsOnCurve reports whether (x, y) satisfies y^2 = x^3 + B mod P.
func (p *Params) IsOnCurve(x, y *big.Int) bool {
	if x.Sign() < 0 || x.Cmp(p.P) >= 0 || y.Sign() < 0 || y.Cmp(p.P) >= 0 {
		return false
	}
	lhs := new(big.Int).Mul(y, y)
	lhs.Mod(lhs, p.P)
	rhs := new(big.Int).Exp(x, big.NewInt(3), p.P)
	rhs.Add(rhs, p.B)
	rhs.Mod(rhs, p.P)
	return lhs.Cmp(rhs) == 0
}

// affineAdd adds two affine points on y^2 = x^3 + B. A nil x denotes the
// point at infinity. It works for any parameter set, which the decred
// implementation does not.
func (p *Params) affineAdd(x1, y1, x2, y2 *big.Int) (*big.Int, *big.Int) {
	if x1 == nil {
		return x2, y2
	}
	if x2 == nil {
		return x1, y1
	}
	var l *big.Int
	if x1.Cmp(x2) == 0 {
		s := new(big.Int).Add(y1, y2)
		if s.Mod(s, p.P).Sign() == 0 {
			return nil, nil
		}
		// l = 3x^2 / 2y
		num := new(big.Int).Mul(x1, x1)
		num.Mul(num, big.NewInt(3))
		den := new(big.Int).Mul(y1, two)
		l = num.Mul(num, den.ModInverse(den, p.P))
	} else {
		num := new(big.Int).Sub(y2, y1)
		den := new(big.Int).Sub(x2, x1)
		den.Mod(den, p.P)
		l = num.Mul(num, den.ModInverse(den, p.P))
	}
	l.Mod(l, p.P)
	x3 := new(big.Int).Mul(l, l)
	x3.Sub(x3, x1)
	x3.Sub(x3, x2)
	x3.Mod(x3, p.P)
	y3 := new(big.Int).Sub(x1, x3)
	y3.Mul(y3, l)
	y3.Sub(y3, y1)
	y3.Mod(y3, p.P)
	return x3, y3
}

// affineMul computes k*(x, y) by double-and-add. It is not constant time
// and only ever sees public values.
func (p *Params) affineMul(x, y, k *big.Int) (*big.Int, *big.Int) {
	var rx, ry *big.Int
	for i := k.BitLen() - 1; i >= 0; i-- {
		rx, ry = p.affineAdd(rx, ry, rx, ry)
		if k.Bit(i) == 1 {
			rx, ry = p.affineAdd(rx, ry, x, y)
		}
	}
	return rx, ry
}

// SplitScalar decomposes k into k1 + k2*Lambda mod N with |k1|, |k2| below
// 2^128, using the same rounded products as the encrypted split. The halves
// are returned as signed integers.
func (p *Params) SplitScalar(k *big.Int) (*big.Int, *big.Int) {
	c1 := roundShift(new(big.Int).Mul(k, p.G1), p.Shift)
	c2 := roundShift(new(big.Int).Mul(k, p.G2), p.Shift)

	k2 := new(big.Int).Mul(c1, p.MinusB1())
	k2.Add(k2, new(big.Int).Mul(c2, p.MinusB2()))
	k2.Mod(k2, p.N)

	k1 := new(big.Int).Mul(k2, p.Lambda)
	k1.Sub(k, k1)
	k1.Mod(k1, p.N)

	return p.signed(k1), p.signed(k2)
}

// roundShift returns round(x / 2^s) for x >= 0.
func roundShift(x *big.Int, s uint) *big.Int {
	r := new(big.Int).Rsh(x, s)
	if x.Bit(int(s)-1) == 1 {
		r.Add(r, one)
	}
	return r
}

// signed maps v in [0, N) to (-N/2, N/2].
func (p *Params) signed(v *big.Int) *big.Int {
	half := new(big.Int).Rsh(p.N, 1)
	if v.Cmp(half) > 0 {
		return new(big.Int).Sub(v, p.N)
	}
	return v
}
