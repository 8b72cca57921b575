package limb

import (
	"context"
	"fmt"

	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// Propagate ripples carries from the least significant limb upwards and
// returns clean limbs plus the carry out of the top limb. A limb whose public
// degree already fits one digit, and that receives no carry, is passed
// through without a bootstrap.
func (e *Evaluator) Propagate(ctx context.Context, lay Layout, x []Limb) ([]Limb, Limb, error) {
	mask := lay.Mask()
	out := make([]Limb, len(x))
	var (
		carry    Limb
		hasCarry bool
		err      error
	)
	for i, xi := range x {
		if hasCarry {
			if xi, err = e.Add(ctx, xi, carry); err != nil {
				return nil, Limb{}, err
			}
		}
		if xi.degree <= mask {
			out[i], hasCarry = xi, false
			continue
		}
		lo, hi, err := e.split(ctx, lay, xi)
		if err != nil {
			return nil, Limb{}, err
		}
		out[i], carry, hasCarry = lo, hi, true
	}
	if !hasCarry {
		if carry, err = e.Trivial(0); err != nil {
			return nil, Limb{}, err
		}
	}
	return out, carry, nil
}

// split returns the low digit and the high part of x.
func (e *Evaluator) split(ctx context.Context, lay Layout, x Limb) (Limb, Limb, error) {
	mask, w := lay.Mask(), lay.Width
	lo, err := e.Apply(ctx, x, func(v uint64) uint64 { return v & mask }, mask)
	if err != nil {
		return Limb{}, Limb{}, err
	}
	hi, err := e.Apply(ctx, x, func(v uint64) uint64 { return v >> w }, x.degree>>w)
	if err != nil {
		return Limb{}, Limb{}, err
	}
	return lo, hi, nil
}

// AddVec adds a and b limb by limb without propagating. The shorter operand
// is treated as zero-extended.
func (e *Evaluator) AddVec(ctx context.Context, a, b []Limb) ([]Limb, error) {
	if len(a) < len(b) {
		a, b = b, a
	}
	return e.Map(ctx, a, func(ctx context.Context, i int, x Limb) (Limb, error) {
		if i >= len(b) {
			return x, nil
		}
		return e.Add(ctx, x, b[i])
	})
}

// AddConst adds public digits limb by limb without propagating.
func (e *Evaluator) AddConst(ctx context.Context, x []Limb, digits []uint64) ([]Limb, error) {
	if len(digits) > len(x) {
		return nil, fmt.Errorf("add_const: %d digits for %d limbs: %w", len(digits), len(x), fhe.ErrInvalidParameters)
	}
	return e.Map(ctx, x, func(ctx context.Context, i int, xi Limb) (Limb, error) {
		if i >= len(digits) {
			return xi, nil
		}
		return e.AddPlain(ctx, xi, digits[i])
	})
}

// Complement returns the digit-wise complement mask - x[i] of clean limbs.
func (e *Evaluator) Complement(ctx context.Context, lay Layout, x []Limb) ([]Limb, error) {
	mask := lay.Mask()
	return e.Map(ctx, x, func(ctx context.Context, i int, xi Limb) (Limb, error) {
		if xi.degree > mask {
			return Limb{}, fmt.Errorf("complement limb %d: degree %d: %w", i, xi.degree, fhe.ErrDegreeOverflow)
		}
		m, err := e.Trivial(mask)
		if err != nil {
			return Limb{}, err
		}
		return e.Sub(ctx, m, xi)
	})
}

// Sum adds limbs as a balanced tree, which keeps the noise depth
// logarithmic in the number of terms.
func (e *Evaluator) Sum(ctx context.Context, terms []Limb) (Limb, error) {
	if len(terms) == 0 {
		return e.Trivial(0)
	}
	level := append([]Limb(nil), terms...)
	for len(level) > 1 {
		next := make([]Limb, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			s, err := e.Add(ctx, level[i], level[i+1])
			if err != nil {
				return Limb{}, err
			}
			next = append(next, s)
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0], nil
}

type term struct {
	i, j int
}

// schoolbook multiplies two digit vectors of lengths na and nb and returns
// the clean product truncated to n limbs. mul computes one digit product;
// pairs for which skip reports true contribute nothing.
func (e *Evaluator) schoolbook(ctx context.Context, lay Layout, na, nb, n int,
	skip func(i, j int) bool, mul func(ctx context.Context, i, j int) (Limb, error)) ([]Limb, error) {

	var pairs []term
	for i := 0; i < na; i++ {
		for j := 0; j < nb && i+j < n; j++ {
			if !skip(i, j) {
				pairs = append(pairs, term{i, j})
			}
		}
	}

	// 1. Digit products, each cut into a low digit and a high part
	lo := make([]Limb, len(pairs))
	hi := make([]Limb, len(pairs))
	hasHi := make([]bool, len(pairs))
	err := Parallel(ctx, len(pairs), e.workers, func(ctx context.Context, k int) error {
		p, err := mul(ctx, pairs[k].i, pairs[k].j)
		if err != nil {
			return err
		}
		if p.degree <= lay.Mask() {
			lo[k] = p
			return nil
		}
		if pairs[k].i+pairs[k].j+1 >= n {
			lo[k], err = e.Apply(ctx, p, func(v uint64) uint64 { return v & lay.Mask() }, lay.Mask())
			return err
		}
		lo[k], hi[k], err = e.split(ctx, lay, p)
		hasHi[k] = true
		return err
	})
	if err != nil {
		return nil, err
	}

	// 2. Column sums
	cols := make([][]Limb, n)
	for k, pr := range pairs {
		cols[pr.i+pr.j] = append(cols[pr.i+pr.j], lo[k])
		if hasHi[k] {
			cols[pr.i+pr.j+1] = append(cols[pr.i+pr.j+1], hi[k])
		}
	}
	sums := make([]Limb, n)
	err = Parallel(ctx, n, e.workers, func(ctx context.Context, c int) error {
		s, err := e.Sum(ctx, cols[c])
		if err != nil {
			return err
		}
		sums[c] = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 3. Carry propagation, dropping the carry out of limb n-1
	out, _, err := e.Propagate(ctx, lay, sums)
	return out, err
}

// MulLimbs returns a*b mod b^n for clean limb vectors.
func (e *Evaluator) MulLimbs(ctx context.Context, lay Layout, a, b []Limb, n int) ([]Limb, error) {
	return e.schoolbook(ctx, lay, len(a), len(b), n,
		func(i, j int) bool { return a[i].degree == 0 || b[j].degree == 0 },
		func(ctx context.Context, i, j int) (Limb, error) { return e.Mul(ctx, a[i], b[j]) })
}

// MulDigits returns a*c mod b^n where c is given by its public digits.
func (e *Evaluator) MulDigits(ctx context.Context, lay Layout, a []Limb, digits []uint64, n int) ([]Limb, error) {
	return e.schoolbook(ctx, lay, len(a), len(digits), n,
		func(i, j int) bool { return a[i].degree == 0 || digits[j] == 0 },
		func(ctx context.Context, i, j int) (Limb, error) { return e.MulPlain(ctx, a[i], digits[j]) })
}

// ShiftRightRound returns round(x / 2^shift) for clean limbs x, that is the
// quotient plus the last bit shifted out.
func (e *Evaluator) ShiftRightRound(ctx context.Context, lay Layout, x []Limb, shift int) ([]Limb, error) {
	w := int(lay.Width)
	mask := lay.Mask()
	q, s := shift/w, uint(shift%w)
	if shift < 1 || q >= len(x) {
		return nil, fmt.Errorf("shift %d of %d limbs: %w", shift, len(x), fhe.ErrInvalidParameters)
	}

	out, err := e.Map(ctx, x[q:], func(ctx context.Context, j int, xj Limb) (Limb, error) {
		if s == 0 {
			return xj, nil
		}
		low, err := e.Apply(ctx, xj, func(v uint64) uint64 { return v >> s }, mask>>s)
		if err != nil {
			return Limb{}, err
		}
		if q+j+1 >= len(x) {
			return low, nil
		}
		high, err := e.Apply(ctx, x[q+j+1], func(v uint64) uint64 { return (v << (uint(w) - s)) & mask }, mask&^(mask>>s))
		if err != nil {
			return Limb{}, err
		}
		return e.Add(ctx, low, high)
	})
	if err != nil {
		return nil, err
	}

	rb := uint(shift-1) % uint(w)
	round, err := e.Apply(ctx, x[(shift-1)/w], func(v uint64) uint64 { return (v >> rb) & 1 }, 1)
	if err != nil {
		return nil, err
	}
	if out[0], err = e.Add(ctx, out[0], round); err != nil {
		return nil, err
	}
	out, carry, err := e.Propagate(ctx, lay, out)
	if err != nil {
		return nil, err
	}
	if carry.degree > 0 {
		out = append(out, carry)
	}
	return out, nil
}
