// Package modarith implements arithmetic modulo a public prime on encrypted
// limb vectors.
//
// Every Element returned by a Field operation is canonical: it holds exactly
// Count clean limbs and represents an integer in [0, m). Corrections that
// plaintext code would do with a branch are done with an encrypted condition
// and an oblivious select, so the sequence of backend calls depends only on
// public data.
package modarith

import (
	"context"
	"fmt"
	"math/big"

	"github.com/smallyu/go-fhe-ecdsa/internal/limb"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// Element is an encrypted residue in limb form.
type Element struct {
	Limbs []limb.Limb
}

// Field is arithmetic modulo m over one evaluator. It is immutable after
// construction and safe for concurrent use.
type Field struct {
	name   string
	eval   *limb.Evaluator
	layout limb.Layout
	m      *big.Int

	mDigits   []uint64 // m
	negM      []uint64 // 2^(wL) - m
	mu        []uint64 // floor(b^(2L) / m)
	negMWide  []uint64 // b^(L+1) - m
	negHalf   []uint64 // 2^(wL) - (floor(m/2) + 1)
	invDigits []uint64 // m - 2 in base 16, most significant first
}

// NewField precomputes the public constants for arithmetic modulo m. The
// modulus must use the top limb of the layout, which Barrett reduction
// relies on.
func NewField(name string, eval *limb.Evaluator, m *big.Int, lay limb.Layout) (*Field, error) {
	if m.Sign() <= 0 || m.Bit(0) == 0 || m.Cmp(big.NewInt(3)) < 0 {
		return nil, fhe.NewConfigurationError(name, "modulus must be an odd integer above 2", nil)
	}
	if m.BitLen() > lay.Bits() || m.BitLen() <= lay.Bits()-int(lay.Width) {
		return nil, fhe.NewConfigurationError(name,
			fmt.Sprintf("%d-bit modulus does not fill %d limbs of %d bits", m.BitLen(), lay.Count, lay.Width), nil)
	}
	f := &Field{
		name:   name,
		eval:   eval,
		layout: lay,
		m:      new(big.Int).Set(m),
	}

	wide := limb.Layout{Width: lay.Width, Count: lay.Count + 1}
	full := new(big.Int).Lsh(big.NewInt(1), uint(lay.Bits()))
	bk1 := new(big.Int).Lsh(big.NewInt(1), uint(wide.Bits()))
	b2k := new(big.Int).Lsh(big.NewInt(1), uint(2*lay.Bits()))
	half := new(big.Int).Rsh(m, 1)
	half.Add(half, big.NewInt(1))

	var err error
	if f.mDigits, err = limb.Digits(m, lay); err != nil {
		return nil, err
	}
	if f.negM, err = limb.Digits(new(big.Int).Sub(full, m), lay); err != nil {
		return nil, err
	}
	if f.mu, err = limb.Digits(new(big.Int).Div(b2k, m), wide); err != nil {
		return nil, err
	}
	if f.negMWide, err = limb.Digits(new(big.Int).Sub(bk1, m), wide); err != nil {
		return nil, err
	}
	if f.negHalf, err = limb.Digits(new(big.Int).Sub(full, half), lay); err != nil {
		return nil, err
	}
	f.invDigits = nibbles(new(big.Int).Sub(m, big.NewInt(2)))
	return f, nil
}

// nibbles returns the base-16 digits of e, most significant first.
func nibbles(e *big.Int) []uint64 {
	var out []uint64
	for i := (e.BitLen()+3)/4 - 1; i >= 0; i-- {
		var d uint64
		for b := 3; b >= 0; b-- {
			d = d<<1 | uint64(e.Bit(4*i+b))
		}
		out = append(out, d)
	}
	return out
}

// Name returns the label given at construction.
func (f *Field) Name() string { return f.name }

// Modulus returns a copy of m.
func (f *Field) Modulus() *big.Int { return new(big.Int).Set(f.m) }

// Layout returns the limb layout.
func (f *Field) Layout() limb.Layout { return f.layout }

// Evaluator returns the evaluator the field runs on.
func (f *Field) Evaluator() *limb.Evaluator { return f.eval }

// Const encodes the public value v mod m as a noiseless element.
func (f *Field) Const(v *big.Int) (Element, error) {
	r := new(big.Int).Mod(v, f.m)
	limbs, err := f.eval.TrivialInt(r, f.layout)
	if err != nil {
		return Element{}, err
	}
	return Element{Limbs: limbs}, nil
}

// Encrypt encrypts v, which must lie in [0, m).
func (f *Field) Encrypt(v *big.Int) (Element, error) {
	if v.Sign() < 0 || v.Cmp(f.m) >= 0 {
		return Element{}, fmt.Errorf("%s: encrypt: %w", f.name, fhe.ErrOutOfRange)
	}
	limbs, err := f.eval.EncryptInt(v, f.layout)
	if err != nil {
		return Element{}, err
	}
	return Element{Limbs: limbs}, nil
}

// Decrypt recovers the integer behind a. It is for tests and debugging.
func (f *Field) Decrypt(dec fhe.Decryptor, a Element) (*big.Int, error) {
	return limb.Decode(dec, a.Limbs, f.layout)
}

// Select returns a when cond encrypts 1 and b otherwise.
func (f *Field) Select(ctx context.Context, cond limb.Limb, a, b Element) (Element, error) {
	limbs, err := f.eval.SelectVec(ctx, cond, a.Limbs, b.Limbs)
	if err != nil {
		return Element{}, err
	}
	return Element{Limbs: limbs}, nil
}

func (f *Field) check(a Element) error {
	if len(a.Limbs) != f.layout.Count {
		return fmt.Errorf("%s: element with %d limbs, want %d: %w", f.name, len(a.Limbs), f.layout.Count, fhe.ErrInvalidParameters)
	}
	return nil
}

// reduceOnce subtracts m from s + c*2^(wL) when that value is at least m.
// The input must be below 2m.
func (f *Field) reduceOnce(ctx context.Context, s []limb.Limb, c limb.Limb) (Element, error) {
	t0, err := f.eval.AddConst(ctx, s, f.negM)
	if err != nil {
		return Element{}, err
	}
	t, c2, err := f.eval.Propagate(ctx, f.layout, t0)
	if err != nil {
		return Element{}, err
	}
	cond := c2
	if c.Degree() > 0 {
		// s + c*2^(wL) >= m exactly when one of the two additions carried
		if cond, err = f.eval.Or(ctx, c, c2); err != nil {
			return Element{}, err
		}
	}
	out, err := f.eval.SelectVec(ctx, cond, t, s)
	if err != nil {
		return Element{}, err
	}
	return Element{Limbs: out}, nil
}

// Add returns a + b mod m.
func (f *Field) Add(ctx context.Context, a, b Element) (Element, error) {
	if err := f.check(a); err != nil {
		return Element{}, err
	}
	if err := f.check(b); err != nil {
		return Element{}, err
	}
	sum, err := f.eval.AddVec(ctx, a.Limbs, b.Limbs)
	if err != nil {
		return Element{}, err
	}
	s, c, err := f.eval.Propagate(ctx, f.layout, sum)
	if err != nil {
		return Element{}, err
	}
	return f.reduceOnce(ctx, s, c)
}

// sub returns the clean limbs of x - y + b^len and the borrow-free flag,
// an encrypted 1 when x >= y.
func (f *Field) sub(ctx context.Context, lay limb.Layout, x, y []limb.Limb) ([]limb.Limb, limb.Limb, error) {
	ny, err := f.eval.Complement(ctx, lay, y)
	if err != nil {
		return nil, limb.Limb{}, err
	}
	d0, err := f.eval.AddVec(ctx, x, ny)
	if err != nil {
		return nil, limb.Limb{}, err
	}
	if d0[0], err = f.eval.AddPlain(ctx, d0[0], 1); err != nil {
		return nil, limb.Limb{}, err
	}
	return f.eval.Propagate(ctx, lay, d0)
}

// Sub returns a - b mod m.
func (f *Field) Sub(ctx context.Context, a, b Element) (Element, error) {
	if err := f.check(a); err != nil {
		return Element{}, err
	}
	if err := f.check(b); err != nil {
		return Element{}, err
	}
	d, noBorrow, err := f.sub(ctx, f.layout, a.Limbs, b.Limbs)
	if err != nil {
		return Element{}, err
	}
	e0, err := f.eval.AddConst(ctx, d, f.mDigits)
	if err != nil {
		return Element{}, err
	}
	e, _, err := f.eval.Propagate(ctx, f.layout, e0)
	if err != nil {
		return Element{}, err
	}
	out, err := f.eval.SelectVec(ctx, noBorrow, d, e)
	if err != nil {
		return Element{}, err
	}
	return Element{Limbs: out}, nil
}

// Neg returns -a mod m.
func (f *Field) Neg(ctx context.Context, a Element) (Element, error) {
	zero, err := f.Const(new(big.Int))
	if err != nil {
		return Element{}, err
	}
	return f.Sub(ctx, zero, a)
}

// Double returns 2a mod m.
func (f *Field) Double(ctx context.Context, a Element) (Element, error) {
	return f.Add(ctx, a, a)
}

// Mul returns a * b mod m.
func (f *Field) Mul(ctx context.Context, a, b Element) (Element, error) {
	if err := f.check(a); err != nil {
		return Element{}, err
	}
	if err := f.check(b); err != nil {
		return Element{}, err
	}
	prod, err := f.eval.MulLimbs(ctx, f.layout, a.Limbs, b.Limbs, 2*f.layout.Count)
	if err != nil {
		return Element{}, err
	}
	return f.Reduce(ctx, prod)
}

// Sqr returns a^2 mod m.
func (f *Field) Sqr(ctx context.Context, a Element) (Element, error) {
	return f.Mul(ctx, a, a)
}

// MulConst returns a * c mod m for a public c.
func (f *Field) MulConst(ctx context.Context, a Element, c *big.Int) (Element, error) {
	if err := f.check(a); err != nil {
		return Element{}, err
	}
	digits, err := limb.Digits(new(big.Int).Mod(c, f.m), f.layout)
	if err != nil {
		return Element{}, err
	}
	prod, err := f.eval.MulDigits(ctx, f.layout, a.Limbs, digits, 2*f.layout.Count)
	if err != nil {
		return Element{}, err
	}
	return f.Reduce(ctx, prod)
}

// Equal returns an encrypted 1 when a = b.
func (f *Field) Equal(ctx context.Context, a, b Element) (limb.Limb, error) {
	d, err := f.Sub(ctx, a, b)
	if err != nil {
		return limb.Limb{}, err
	}
	return f.IsZero(ctx, d)
}

// IsZero returns an encrypted 1 when a = 0.
func (f *Field) IsZero(ctx context.Context, a Element) (limb.Limb, error) {
	if err := f.check(a); err != nil {
		return limb.Limb{}, err
	}
	return f.eval.SumIsZero(ctx, a.Limbs)
}

// IsHigh returns an encrypted 1 when a > floor(m/2).
func (f *Field) IsHigh(ctx context.Context, a Element) (limb.Limb, error) {
	if err := f.check(a); err != nil {
		return limb.Limb{}, err
	}
	t, err := f.eval.AddConst(ctx, a.Limbs, f.negHalf)
	if err != nil {
		return limb.Limb{}, err
	}
	_, c, err := f.eval.Propagate(ctx, f.layout, t)
	return c, err
}

// CondNeg returns -a when cond encrypts 1 and a otherwise.
func (f *Field) CondNeg(ctx context.Context, cond limb.Limb, a Element) (Element, error) {
	neg, err := f.Neg(ctx, a)
	if err != nil {
		return Element{}, err
	}
	return f.Select(ctx, cond, neg, a)
}

// Convert maps a canonical element of from into this field. The source
// modulus must be below twice this one, so one conditional subtraction
// suffices.
func (f *Field) Convert(ctx context.Context, a Element, from *Field) (Element, error) {
	if from.layout != f.layout {
		return Element{}, fhe.NewConfigurationError(f.name, "convert from "+from.name+" with a different layout", nil)
	}
	if new(big.Int).Lsh(f.m, 1).Cmp(from.m) <= 0 {
		return Element{}, fhe.NewConfigurationError(f.name, "convert from "+from.name+" needs more than one subtraction", nil)
	}
	if err := from.check(a); err != nil {
		return Element{}, err
	}
	if from.m.Cmp(f.m) <= 0 {
		return a, nil
	}
	zero, err := f.eval.Trivial(0)
	if err != nil {
		return Element{}, err
	}
	return f.reduceOnce(ctx, a.Limbs, zero)
}
