// Package curve implements the secp256k1 group law on encrypted points.
//
// Every formula is complete in the circuit sense: the generic result, the
// doubling and the infinity cases are all computed, and encrypted case flags
// pick the right one with oblivious selects. The sequence of backend calls
// never depends on which case applies.
package curve

import (
	"context"
	"fmt"
	"math/big"

	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/curves"
	"github.com/smallyu/go-fhe-ecdsa/internal/limb"
	"github.com/smallyu/go-fhe-ecdsa/internal/modarith"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// Point is an encrypted affine point. Inf encrypts 1 for the point at
// infinity, in which case X and Y carry no meaning.
type Point struct {
	X, Y modarith.Element
	Inf  limb.Limb
}

// Jacobian is the working form (X/Z^2, Y/Z^3) used inside scalar
// multiplication so that only the final conversion needs an inversion.
type Jacobian struct {
	X, Y, Z modarith.Element
	Inf     limb.Limb
}

// Curve evaluates the group law over a field of coordinates modulo P.
type Curve struct {
	fp     *modarith.Field
	params *curves.Params
}

// New binds the group law to a coordinate field. The field modulus must be
// the curve's P.
func New(fp *modarith.Field, params *curves.Params) (*Curve, error) {
	if fp.Modulus().Cmp(params.P) != 0 {
		return nil, fhe.NewConfigurationError("P", fmt.Sprintf("coordinate field %s does not match %s", fp.Name(), params.Name), nil)
	}
	return &Curve{fp: fp, params: params}, nil
}

// Field returns the coordinate field.
func (c *Curve) Field() *modarith.Field { return c.fp }

// Params returns the domain parameters.
func (c *Curve) Params() *curves.Params { return c.params }

func (c *Curve) eval() *limb.Evaluator { return c.fp.Evaluator() }

// Const encodes a public affine point.
func (c *Curve) Const(x, y *big.Int) (Point, error) {
	px, err := c.fp.Const(x)
	if err != nil {
		return Point{}, err
	}
	py, err := c.fp.Const(y)
	if err != nil {
		return Point{}, err
	}
	inf, err := c.eval().Trivial(0)
	if err != nil {
		return Point{}, err
	}
	return Point{X: px, Y: py, Inf: inf}, nil
}

// Generator returns G as a noiseless constant.
func (c *Curve) Generator() (Point, error) {
	return c.Const(c.params.Gx, c.params.Gy)
}

// Infinity returns the point at infinity as a noiseless constant.
func (c *Curve) Infinity() (Point, error) {
	p, err := c.Const(new(big.Int), new(big.Int))
	if err != nil {
		return Point{}, err
	}
	if p.Inf, err = c.eval().Trivial(1); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Encrypt encrypts the affine point (x, y). A nil x encrypts the point at
// infinity. Points off the curve are rejected.
func (c *Curve) Encrypt(x, y *big.Int) (Point, error) {
	var inf uint64
	if x == nil {
		x, y, inf = new(big.Int), new(big.Int), 1
	} else if !c.params.IsOnCurve(x, y) {
		return Point{}, fmt.Errorf("encrypt point: not on %s: %w", c.params.Name, fhe.ErrOutOfRange)
	}
	px, err := c.fp.Encrypt(x)
	if err != nil {
		return Point{}, err
	}
	py, err := c.fp.Encrypt(y)
	if err != nil {
		return Point{}, err
	}
	flag, err := c.eval().Encrypt(inf, 1)
	if err != nil {
		return Point{}, err
	}
	return Point{X: px, Y: py, Inf: flag}, nil
}

// Decrypt recovers an affine point; a nil x denotes infinity. It is for
// tests and debugging.
func (c *Curve) Decrypt(dec fhe.Decryptor, p Point) (*big.Int, *big.Int, error) {
	inf, err := dec.Decrypt(p.Inf.Ciphertext())
	if err != nil {
		return nil, nil, err
	}
	if inf == 1 {
		return nil, nil, nil
	}
	x, err := c.fp.Decrypt(dec, p.X)
	if err != nil {
		return nil, nil, err
	}
	y, err := c.fp.Decrypt(dec, p.Y)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// FromAffine lifts p to Jacobian coordinates with Z = 1.
func (c *Curve) FromAffine(p Point) (Jacobian, error) {
	z, err := c.fp.Const(big.NewInt(1))
	if err != nil {
		return Jacobian{}, err
	}
	return Jacobian{X: p.X, Y: p.Y, Z: z, Inf: p.Inf}, nil
}

// ToAffine maps p back to affine coordinates with one field inversion.
func (c *Curve) ToAffine(ctx context.Context, p Jacobian) (Point, error) {
	zInv, err := c.fp.Inv(ctx, p.Z)
	if err != nil {
		return Point{}, err
	}
	zInv2, err := c.fp.Sqr(ctx, zInv)
	if err != nil {
		return Point{}, err
	}
	zInv3, err := c.fp.Mul(ctx, zInv2, zInv)
	if err != nil {
		return Point{}, err
	}
	x, err := c.fp.Mul(ctx, p.X, zInv2)
	if err != nil {
		return Point{}, err
	}
	y, err := c.fp.Mul(ctx, p.Y, zInv3)
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y, Inf: p.Inf}, nil
}

// Negate returns -p = (x, P - y).
func (c *Curve) Negate(ctx context.Context, p Point) (Point, error) {
	y, err := c.fp.Neg(ctx, p.Y)
	if err != nil {
		return Point{}, err
	}
	return Point{X: p.X, Y: y, Inf: p.Inf}, nil
}

// Endomorphism returns phi(p) = (Beta*x, y), which equals Lambda*p.
func (c *Curve) Endomorphism(ctx context.Context, p Point) (Point, error) {
	x, err := c.fp.MulConst(ctx, p.X, c.params.Beta)
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: p.Y, Inf: p.Inf}, nil
}

// Select returns a when cond encrypts 1 and b otherwise.
func (c *Curve) Select(ctx context.Context, cond limb.Limb, a, b Point) (Point, error) {
	x, err := c.fp.Select(ctx, cond, a.X, b.X)
	if err != nil {
		return Point{}, err
	}
	y, err := c.fp.Select(ctx, cond, a.Y, b.Y)
	if err != nil {
		return Point{}, err
	}
	inf, err := c.eval().Select(ctx, cond, a.Inf, b.Inf)
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y, Inf: inf}, nil
}

// SelectJacobian returns a when cond encrypts 1 and b otherwise.
func (c *Curve) SelectJacobian(ctx context.Context, cond limb.Limb, a, b Jacobian) (Jacobian, error) {
	x, err := c.fp.Select(ctx, cond, a.X, b.X)
	if err != nil {
		return Jacobian{}, err
	}
	y, err := c.fp.Select(ctx, cond, a.Y, b.Y)
	if err != nil {
		return Jacobian{}, err
	}
	z, err := c.fp.Select(ctx, cond, a.Z, b.Z)
	if err != nil {
		return Jacobian{}, err
	}
	inf, err := c.eval().Select(ctx, cond, a.Inf, b.Inf)
	if err != nil {
		return Jacobian{}, err
	}
	return Jacobian{X: x, Y: y, Z: z, Inf: inf}, nil
}

// PointAdd returns p + q in affine form.
func (c *Curve) PointAdd(ctx context.Context, p, q Point) (Point, error) {
	pj, err := c.FromAffine(p)
	if err != nil {
		return Point{}, err
	}
	r, err := c.AddMixed(ctx, pj, q)
	if err != nil {
		return Point{}, err
	}
	return c.ToAffine(ctx, r)
}

// PointDouble returns 2p in affine form.
func (c *Curve) PointDouble(ctx context.Context, p Point) (Point, error) {
	pj, err := c.FromAffine(p)
	if err != nil {
		return Point{}, err
	}
	r, err := c.Double(ctx, pj)
	if err != nil {
		return Point{}, err
	}
	return c.ToAffine(ctx, r)
}
