// Package ecmult computes encrypted scalar multiples with the secp256k1
// endomorphism: k*P = k1*P + k2*phi(P) where k1 and k2 are half-length.
package ecmult

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/curves"
	"github.com/smallyu/go-fhe-ecdsa/internal/curve"
	"github.com/smallyu/go-fhe-ecdsa/internal/limb"
	"github.com/smallyu/go-fhe-ecdsa/internal/modarith"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// Multiplier evaluates encrypted scalar multiplication.
type Multiplier struct {
	curve  *curve.Curve
	fn     *modarith.Field
	params *curves.Params

	g1, g2    []uint64 // split constants in limb digits
	base      curve.Point
	baseLG    curve.Point
	ladderLen int
}

// NewMultiplier prepares the public constants of the split and of the base
// point. fn must be the field modulo the group order.
func NewMultiplier(c *curve.Curve, fn *modarith.Field) (*Multiplier, error) {
	params := c.Params()
	if fn.Modulus().Cmp(params.N) != 0 {
		return nil, fhe.NewConfigurationError("N", "scalar field "+fn.Name()+" does not match the group order", nil)
	}
	if fn.Layout() != c.Field().Layout() {
		return nil, fhe.NewConfigurationError("layout", "scalar and coordinate fields use different limb layouts", nil)
	}
	lay := fn.Layout()
	if int(params.Shift) >= 2*lay.Bits() {
		return nil, fhe.NewConfigurationError("Shift", fmt.Sprintf("shift %d exceeds the product width", params.Shift), nil)
	}

	m := &Multiplier{curve: c, fn: fn, params: params, ladderLen: curves.SubScalarBits}
	var err error
	if m.g1, err = limb.Digits(params.G1, lay); err != nil {
		return nil, fhe.NewConfigurationError("G1", "does not fit the limb layout", err)
	}
	if m.g2, err = limb.Digits(params.G2, lay); err != nil {
		return nil, fhe.NewConfigurationError("G2", "does not fit the limb layout", err)
	}
	if m.base, err = c.Generator(); err != nil {
		return nil, err
	}
	lgx, lgy := params.LambdaG()
	if m.baseLG, err = c.Const(lgx, lgy); err != nil {
		return nil, err
	}
	return m, nil
}

// Curve returns the group law the multiplier runs on.
func (m *Multiplier) Curve() *curve.Curve { return m.curve }

// ScalarField returns the field modulo the group order.
func (m *Multiplier) ScalarField() *modarith.Field { return m.fn }

// Split is the decomposition k = s1*|k1| + s2*|k2|*Lambda mod N, with the
// signs s1, s2 encrypted as negation flags.
type Split struct {
	K1, K2     modarith.Element
	Neg1, Neg2 limb.Limb
	Abs1, Abs2 modarith.Element
}

// Split decomposes k with the fixed lattice basis. c1 and c2 are the rounded
// products k*G1/2^Shift and k*G2/2^Shift, from which
// k2 = c1*(-B1) + c2*(-B2) and k1 = k - k2*Lambda follow mod N.
func (m *Multiplier) Split(ctx context.Context, k modarith.Element) (Split, error) {
	ev := m.fn.Evaluator()
	lay := m.fn.Layout()

	round := func(ctx context.Context, g []uint64) (modarith.Element, error) {
		prod, err := ev.MulDigits(ctx, lay, k.Limbs, g, 2*lay.Count)
		if err != nil {
			return modarith.Element{}, err
		}
		c, err := ev.ShiftRightRound(ctx, lay, prod, int(m.params.Shift))
		if err != nil {
			return modarith.Element{}, err
		}
		// c is below 2^129, far under N, so zero extension makes it canonical
		if len(c) > lay.Count {
			return modarith.Element{}, fmt.Errorf("split: rounded product has %d limbs: %w", len(c), fhe.ErrDegreeOverflow)
		}
		pad, err := ev.Zeros(lay.Count - len(c))
		if err != nil {
			return modarith.Element{}, err
		}
		return modarith.Element{Limbs: append(c, pad...)}, nil
	}

	var c1, c2 modarith.Element
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { c1, err = round(gctx, m.g1); return })
	g.Go(func() (err error) { c2, err = round(gctx, m.g2); return })
	if err := g.Wait(); err != nil {
		return Split{}, err
	}

	t1, err := m.fn.MulConst(ctx, c1, m.params.MinusB1())
	if err != nil {
		return Split{}, err
	}
	t2, err := m.fn.MulConst(ctx, c2, m.params.MinusB2())
	if err != nil {
		return Split{}, err
	}
	k2, err := m.fn.Add(ctx, t1, t2)
	if err != nil {
		return Split{}, err
	}
	k2l, err := m.fn.MulConst(ctx, k2, m.params.Lambda)
	if err != nil {
		return Split{}, err
	}
	k1, err := m.fn.Sub(ctx, k, k2l)
	if err != nil {
		return Split{}, err
	}

	s := Split{K1: k1, K2: k2}
	if s.Neg1, err = m.fn.IsHigh(ctx, k1); err != nil {
		return Split{}, err
	}
	if s.Neg2, err = m.fn.IsHigh(ctx, k2); err != nil {
		return Split{}, err
	}
	if s.Abs1, err = m.fn.CondNeg(ctx, s.Neg1, k1); err != nil {
		return Split{}, err
	}
	if s.Abs2, err = m.fn.CondNeg(ctx, s.Neg2, k2); err != nil {
		return Split{}, err
	}
	return s, nil
}

// ScalarMult returns k*p.
func (m *Multiplier) ScalarMult(ctx context.Context, k modarith.Element, p curve.Point) (curve.Point, error) {
	lp, err := m.curve.Endomorphism(ctx, p)
	if err != nil {
		return curve.Point{}, err
	}
	return m.glv(ctx, k, p, lp)
}

// ScalarBaseMult returns k*G. G and phi(G) are public, so neither needs
// homomorphic work before the ladders.
func (m *Multiplier) ScalarBaseMult(ctx context.Context, k modarith.Element) (curve.Point, error) {
	return m.glv(ctx, k, m.base, m.baseLG)
}

func (m *Multiplier) glv(ctx context.Context, k modarith.Element, p, lp curve.Point) (curve.Point, error) {
	log := m.fn.Evaluator().Logger()

	s, err := m.Split(ctx, k)
	if err != nil {
		return curve.Point{}, fmt.Errorf("split scalar: %w", err)
	}
	log.Debug().Msg("scalar split")

	// Sign correction moves to the base point: (-k)*P = k*(-P).
	var r1, r2 curve.Jacobian
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		base, err := m.condNegate(gctx, s.Neg1, p)
		if err != nil {
			return err
		}
		r1, err = m.Ladder(gctx, s.Abs1, base)
		return err
	})
	g.Go(func() error {
		base, err := m.condNegate(gctx, s.Neg2, lp)
		if err != nil {
			return err
		}
		r2, err = m.Ladder(gctx, s.Abs2, base)
		return err
	})
	if err := g.Wait(); err != nil {
		return curve.Point{}, err
	}
	log.Debug().Int("steps", m.ladderLen).Msg("sub-ladders done")

	sum, err := m.curve.AddJacobian(ctx, r1, r2)
	if err != nil {
		return curve.Point{}, err
	}
	return m.curve.ToAffine(ctx, sum)
}

func (m *Multiplier) condNegate(ctx context.Context, neg limb.Limb, p curve.Point) (curve.Point, error) {
	np, err := m.curve.Negate(ctx, p)
	if err != nil {
		return curve.Point{}, err
	}
	return m.curve.Select(ctx, neg, np, p)
}
