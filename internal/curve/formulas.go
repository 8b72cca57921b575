package curve

import (
	"context"

	"github.com/smallyu/go-fhe-ecdsa/internal/limb"
	"github.com/smallyu/go-fhe-ecdsa/internal/modarith"
)

// calc chains field operations and keeps the first error, so formulas read
// like their published form. Once an error is set every further call is a
// no-op.
type calc struct {
	ctx context.Context
	f   *modarith.Field
	err error
}

func (c *calc) do(fn func() (modarith.Element, error)) modarith.Element {
	if c.err != nil {
		return modarith.Element{}
	}
	r, err := fn()
	c.err = err
	return r
}

func (c *calc) add(a, b modarith.Element) modarith.Element {
	return c.do(func() (modarith.Element, error) { return c.f.Add(c.ctx, a, b) })
}

func (c *calc) sub(a, b modarith.Element) modarith.Element {
	return c.do(func() (modarith.Element, error) { return c.f.Sub(c.ctx, a, b) })
}

func (c *calc) mul(a, b modarith.Element) modarith.Element {
	return c.do(func() (modarith.Element, error) { return c.f.Mul(c.ctx, a, b) })
}

func (c *calc) sqr(a modarith.Element) modarith.Element {
	return c.do(func() (modarith.Element, error) { return c.f.Sqr(c.ctx, a) })
}

func (c *calc) dbl(a modarith.Element) modarith.Element {
	return c.add(a, a)
}

func (c *calc) isZero(a modarith.Element) limb.Limb {
	if c.err != nil {
		return limb.Limb{}
	}
	r, err := c.f.IsZero(c.ctx, a)
	c.err = err
	return r
}

// Double returns 2p using dbl-2009-l for a = 0. Small multiples are
// formed by additions.
func (c *Curve) Double(ctx context.Context, p Jacobian) (Jacobian, error) {
	k := &calc{ctx: ctx, f: c.fp}

	a := k.sqr(p.X)
	b := k.sqr(p.Y)
	cc := k.sqr(b)
	t := k.sqr(k.add(p.X, b))
	d := k.dbl(k.sub(k.sub(t, a), cc))
	e := k.add(k.dbl(a), a)
	f := k.sqr(e)
	x3 := k.sub(f, k.dbl(d))
	c8 := k.dbl(k.dbl(k.dbl(cc)))
	y3 := k.sub(k.mul(e, k.sub(d, x3)), c8)
	z3 := k.dbl(k.mul(p.Y, p.Z))
	if k.err != nil {
		return Jacobian{}, k.err
	}
	return Jacobian{X: x3, Y: y3, Z: z3, Inf: p.Inf}, nil
}

// AddMixed returns p + q for a Jacobian p and an affine q using
// madd-2007-bl. The equal-points case falls back to Double, opposite points
// give infinity, and an operand at infinity yields the other operand.
func (c *Curve) AddMixed(ctx context.Context, p Jacobian, q Point) (Jacobian, error) {
	k := &calc{ctx: ctx, f: c.fp}

	z1z1 := k.sqr(p.Z)
	u2 := k.mul(q.X, z1z1)
	s2 := k.mul(q.Y, k.mul(p.Z, z1z1))
	h := k.sub(u2, p.X)
	hh := k.sqr(h)
	i := k.dbl(k.dbl(hh))
	j := k.mul(h, i)
	sy := k.sub(s2, p.Y)
	r := k.dbl(sy)
	v := k.mul(p.X, i)
	x3 := k.sub(k.sub(k.sqr(r), j), k.dbl(v))
	y3 := k.sub(k.mul(r, k.sub(v, x3)), k.dbl(k.mul(p.Y, j)))
	z3 := k.sub(k.sub(k.sqr(k.add(p.Z, h)), z1z1), hh)
	hZero := k.isZero(h)
	rZero := k.isZero(sy)
	if k.err != nil {
		return Jacobian{}, k.err
	}

	qj, err := c.FromAffine(q)
	if err != nil {
		return Jacobian{}, err
	}
	return c.combine(ctx, p, qj, Jacobian{X: x3, Y: y3, Z: z3}, hZero, rZero)
}

// AddJacobian returns p + q for two Jacobian points using add-2007-bl, with
// the same case handling as AddMixed.
func (c *Curve) AddJacobian(ctx context.Context, p, q Jacobian) (Jacobian, error) {
	k := &calc{ctx: ctx, f: c.fp}

	z1z1 := k.sqr(p.Z)
	z2z2 := k.sqr(q.Z)
	u1 := k.mul(p.X, z2z2)
	u2 := k.mul(q.X, z1z1)
	s1 := k.mul(p.Y, k.mul(q.Z, z2z2))
	s2 := k.mul(q.Y, k.mul(p.Z, z1z1))
	h := k.sub(u2, u1)
	i := k.sqr(k.dbl(h))
	j := k.mul(h, i)
	sy := k.sub(s2, s1)
	r := k.dbl(sy)
	v := k.mul(u1, i)
	x3 := k.sub(k.sub(k.sqr(r), j), k.dbl(v))
	y3 := k.sub(k.mul(r, k.sub(v, x3)), k.dbl(k.mul(s1, j)))
	zs := k.sqr(k.add(p.Z, q.Z))
	z3 := k.mul(k.sub(k.sub(zs, z1z1), z2z2), h)
	hZero := k.isZero(h)
	rZero := k.isZero(sy)
	if k.err != nil {
		return Jacobian{}, k.err
	}
	return c.combine(ctx, p, q, Jacobian{X: x3, Y: y3, Z: z3}, hZero, rZero)
}

// combine resolves the special cases of an addition. generic holds the
// result of the addition formula, valid when neither operand is infinity and
// the points have distinct x. Its infinity flag is computed here.
func (c *Curve) combine(ctx context.Context, p, q, generic Jacobian, hZero, rZero limb.Limb) (Jacobian, error) {
	ev := c.eval()

	// 1. Same x: equal points double, opposite points cancel
	same, err := ev.And(ctx, hZero, rZero)
	if err != nil {
		return Jacobian{}, err
	}
	notR, err := ev.Not(ctx, rZero)
	if err != nil {
		return Jacobian{}, err
	}
	if generic.Inf, err = ev.And(ctx, hZero, notR); err != nil {
		return Jacobian{}, err
	}
	dbl, err := c.Double(ctx, p)
	if err != nil {
		return Jacobian{}, err
	}
	res, err := c.SelectJacobian(ctx, same, dbl, generic)
	if err != nil {
		return Jacobian{}, err
	}

	// 2. An operand at infinity yields the other one
	if res, err = c.SelectJacobian(ctx, q.Inf, p, res); err != nil {
		return Jacobian{}, err
	}
	return c.SelectJacobian(ctx, p.Inf, q, res)
}
