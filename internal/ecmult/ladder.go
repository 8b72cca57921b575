package ecmult

import (
	"context"

	"github.com/smallyu/go-fhe-ecdsa/internal/curve"
	"github.com/smallyu/go-fhe-ecdsa/internal/modarith"
)

// Ladder returns k*p in Jacobian form for a k below 2^SubScalarBits. It runs
// a fixed number of double-and-add steps, most significant bit first; the
// addition is always computed and an encrypted bit decides whether it is
// kept. The context is checked between steps.
func (m *Multiplier) Ladder(ctx context.Context, k modarith.Element, p curve.Point) (curve.Jacobian, error) {
	return m.ladder(ctx, k, p, m.ladderLen)
}

func (m *Multiplier) ladder(ctx context.Context, k modarith.Element, p curve.Point, steps int) (curve.Jacobian, error) {
	ev := m.fn.Evaluator()
	bits, err := ev.Bits(ctx, m.fn.Layout(), k.Limbs, steps)
	if err != nil {
		return curve.Jacobian{}, err
	}
	inf, err := m.curve.Infinity()
	if err != nil {
		return curve.Jacobian{}, err
	}
	q, err := m.curve.FromAffine(inf)
	if err != nil {
		return curve.Jacobian{}, err
	}

	log := ev.Logger()
	for i := steps - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return curve.Jacobian{}, err
		}
		if q, err = m.curve.Double(ctx, q); err != nil {
			return curve.Jacobian{}, err
		}
		t, err := m.curve.AddMixed(ctx, q, p)
		if err != nil {
			return curve.Jacobian{}, err
		}
		if q, err = m.curve.SelectJacobian(ctx, bits[i], t, q); err != nil {
			return curve.Jacobian{}, err
		}
		if i%32 == 0 {
			log.Trace().Int("bit", i).Int64("bootstraps", ev.Bootstraps()).Msg("ladder step")
		}
	}
	return q, nil
}

// ReferenceScalarMult computes k*p with a plain 256-step ladder and no
// endomorphism. It costs about twice as much as ScalarMult and exists to
// cross-check it.
func (m *Multiplier) ReferenceScalarMult(ctx context.Context, k modarith.Element, p curve.Point) (curve.Point, error) {
	q, err := m.ladder(ctx, k, p, m.fn.Layout().Bits())
	if err != nil {
		return curve.Point{}, err
	}
	return m.curve.ToAffine(ctx, q)
}
