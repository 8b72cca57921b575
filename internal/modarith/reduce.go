package modarith

import (
	"context"
	"fmt"

	"github.com/smallyu/go-fhe-ecdsa/internal/limb"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// Reduce returns x mod m for up to 2*Count limbs using Barrett reduction
// (HAC 14.42) with base b = 2^w and k = Count. The quotient estimate is off
// by at most two, which two conditional subtractions absorb, so the number
// of backend calls depends only on the limb degrees. Reducing a canonical
// element returns an equal element.
func (f *Field) Reduce(ctx context.Context, x []limb.Limb) (Element, error) {
	k := f.layout.Count
	if len(x) > 2*k {
		return Element{}, fmt.Errorf("%s: reduce %d limbs, at most %d: %w", f.name, len(x), 2*k, fhe.ErrInvalidParameters)
	}

	xs := x
	for _, l := range x {
		if l.Degree() > f.layout.Mask() {
			var err error
			if xs, _, err = f.eval.Propagate(ctx, f.layout, x); err != nil {
				return Element{}, err
			}
			break
		}
	}
	if len(xs) < 2*k {
		pad, err := f.eval.Zeros(2*k - len(xs))
		if err != nil {
			return Element{}, err
		}
		xs = append(append([]limb.Limb(nil), xs...), pad...)
	}
	wide := limb.Layout{Width: f.layout.Width, Count: k + 1}

	// 1. q3 = floor(floor(x / b^(k-1)) * mu / b^(k+1))
	q1 := xs[k-1 : 2*k]
	q2, err := f.eval.MulDigits(ctx, f.layout, q1, f.mu, 2*k+2)
	if err != nil {
		return Element{}, err
	}
	q3 := q2[k+1 : 2*k+2]

	// 2. r = (x mod b^(k+1)) - (q3*m mod b^(k+1)), taken mod b^(k+1)
	r2, err := f.eval.MulDigits(ctx, f.layout, q3, f.mDigits, k+1)
	if err != nil {
		return Element{}, err
	}
	r, _, err := f.sub(ctx, wide, xs[:k+1], r2)
	if err != nil {
		return Element{}, err
	}

	// 3. r < 3m here; subtract m twice under encrypted conditions
	for i := 0; i < 2; i++ {
		t0, err := f.eval.AddConst(ctx, r, f.negMWide)
		if err != nil {
			return Element{}, err
		}
		t, geq, err := f.eval.Propagate(ctx, wide, t0)
		if err != nil {
			return Element{}, err
		}
		if r, err = f.eval.SelectVec(ctx, geq, t, r); err != nil {
			return Element{}, err
		}
	}
	return Element{Limbs: r[:k]}, nil
}

// Inv returns a^(m-2) mod m, the inverse of a when m is prime and a is not
// zero. The exponent is public and is consumed in fixed 4-bit windows. A zero
// input yields zero; detecting it is the caller's concern.
func (f *Field) Inv(ctx context.Context, a Element) (Element, error) {
	if err := f.check(a); err != nil {
		return Element{}, err
	}
	var table [16]Element
	table[1] = a
	for i := 2; i < 16; i++ {
		var err error
		if i%2 == 0 {
			table[i], err = f.Sqr(ctx, table[i/2])
		} else {
			table[i], err = f.Mul(ctx, table[i-1], a)
		}
		if err != nil {
			return Element{}, err
		}
	}

	r := table[f.invDigits[0]]
	for _, d := range f.invDigits[1:] {
		if err := ctx.Err(); err != nil {
			return Element{}, err
		}
		var err error
		for j := 0; j < 4; j++ {
			if r, err = f.Sqr(ctx, r); err != nil {
				return Element{}, err
			}
		}
		if d != 0 {
			if r, err = f.Mul(ctx, r, table[d]); err != nil {
				return Element{}, err
			}
		}
	}
	return r, nil
}
