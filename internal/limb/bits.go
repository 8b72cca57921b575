package limb

import (
	"context"
	"fmt"

	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// Bits extracts the n least significant bits of clean limbs, least
// significant first. Each bit is an encrypted 0 or 1 of degree 1.
func (e *Evaluator) Bits(ctx context.Context, lay Layout, x []Limb, n int) ([]Limb, error) {
	w := int(lay.Width)
	if n > w*len(x) {
		return nil, fmt.Errorf("bits: %d bits from %d limbs: %w", n, len(x), fhe.ErrInvalidParameters)
	}
	out := make([]Limb, n)
	err := Parallel(ctx, n, e.workers, func(ctx context.Context, j int) error {
		src := x[j/w]
		if src.degree == 0 {
			z, err := e.Trivial(0)
			out[j] = z
			return err
		}
		shift := uint(j % w)
		b, err := e.Apply(ctx, src, func(v uint64) uint64 { return (v >> shift) & 1 }, 1)
		out[j] = b
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SumIsZero returns an encrypted 1 when every limb is zero. The limbs are
// summed first, so their degrees must add up below the plaintext modulus.
func (e *Evaluator) SumIsZero(ctx context.Context, x []Limb) (Limb, error) {
	s, err := e.Sum(ctx, x)
	if err != nil {
		return Limb{}, err
	}
	return e.Apply(ctx, s, func(v uint64) uint64 {
		if v == 0 {
			return 1
		}
		return 0
	}, 1)
}

// And returns a AND b for encrypted bits.
func (e *Evaluator) And(ctx context.Context, a, b Limb) (Limb, error) {
	s, err := e.Add(ctx, a, b)
	if err != nil {
		return Limb{}, err
	}
	return e.Apply(ctx, s, func(v uint64) uint64 {
		if v == 2 {
			return 1
		}
		return 0
	}, 1)
}

// Or returns a OR b for encrypted bits.
func (e *Evaluator) Or(ctx context.Context, a, b Limb) (Limb, error) {
	s, err := e.Add(ctx, a, b)
	if err != nil {
		return Limb{}, err
	}
	return e.Apply(ctx, s, func(v uint64) uint64 {
		if v > 0 {
			return 1
		}
		return 0
	}, 1)
}

// Xor returns a XOR b for encrypted bits.
func (e *Evaluator) Xor(ctx context.Context, a, b Limb) (Limb, error) {
	s, err := e.Add(ctx, a, b)
	if err != nil {
		return Limb{}, err
	}
	return e.Apply(ctx, s, func(v uint64) uint64 { return v & 1 }, 1)
}

// Not returns 1 - a for an encrypted bit.
func (e *Evaluator) Not(ctx context.Context, a Limb) (Limb, error) {
	if a.degree > 1 {
		return Limb{}, fmt.Errorf("not: degree %d: %w", a.degree, fhe.ErrInvalidParameters)
	}
	one, err := e.Trivial(1)
	if err != nil {
		return Limb{}, err
	}
	return e.Sub(ctx, one, a)
}

// SelectVec selects limb vectors of equal length under one condition.
func (e *Evaluator) SelectVec(ctx context.Context, cond Limb, a, b []Limb) ([]Limb, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("select: lengths %d and %d: %w", len(a), len(b), fhe.ErrInvalidParameters)
	}
	if err := e.prepare(ctx, e.desc.Cost.Select, &cond); err != nil {
		return nil, err
	}
	return e.Map(ctx, a, func(ctx context.Context, i int, x Limb) (Limb, error) {
		return e.Select(ctx, cond, x, b[i])
	})
}
