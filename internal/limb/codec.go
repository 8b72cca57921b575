package limb

import (
	"fmt"
	"math/big"

	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// Digits cuts a non-negative integer into count digits of width w.
func Digits(v *big.Int, l Layout) ([]uint64, error) {
	if v.Sign() < 0 || v.BitLen() > l.Bits() {
		return nil, fmt.Errorf("value of %d bits in %d-bit layout: %w", v.BitLen(), l.Bits(), fhe.ErrOutOfRange)
	}
	out := make([]uint64, l.Count)
	x := new(big.Int).Set(v)
	mask := new(big.Int).SetUint64(l.Mask())
	d := new(big.Int)
	for i := range out {
		out[i] = d.And(x, mask).Uint64()
		x.Rsh(x, l.Width)
	}
	return out, nil
}

// FromDigits reassembles little-endian digits of width w, which need not be
// clean.
func FromDigits(digits []uint64, w uint) *big.Int {
	v := new(big.Int)
	d := new(big.Int)
	for i := len(digits) - 1; i >= 0; i-- {
		v.Lsh(v, w)
		v.Add(v, d.SetUint64(digits[i]))
	}
	return v
}

// EncryptInt encodes v as freshly encrypted limbs. Every limb gets the full
// digit bound so the degrees reveal nothing about v.
func (e *Evaluator) EncryptInt(v *big.Int, l Layout) ([]Limb, error) {
	digits, err := Digits(v, l)
	if err != nil {
		return nil, err
	}
	out := make([]Limb, l.Count)
	for i, d := range digits {
		if out[i], err = e.Encrypt(d, l.Mask()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TrivialInt encodes a public integer as noiseless limbs.
func (e *Evaluator) TrivialInt(v *big.Int, l Layout) ([]Limb, error) {
	digits, err := Digits(v, l)
	if err != nil {
		return nil, err
	}
	return e.TrivialDigits(digits)
}

// TrivialDigits encodes public digits as noiseless limbs.
func (e *Evaluator) TrivialDigits(digits []uint64) ([]Limb, error) {
	out := make([]Limb, len(digits))
	var err error
	for i, d := range digits {
		if out[i], err = e.Trivial(d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Zeros returns n trivial zero limbs.
func (e *Evaluator) Zeros(n int) ([]Limb, error) {
	return e.TrivialDigits(make([]uint64, n))
}

// Decode decrypts limbs and reassembles the integer. It needs the decryption
// capability and is meant for tests and debugging.
func Decode(dec fhe.Decryptor, limbs []Limb, l Layout) (*big.Int, error) {
	digits := make([]uint64, len(limbs))
	for i, x := range limbs {
		v, err := dec.Decrypt(x.ct)
		if err != nil {
			return nil, fmt.Errorf("decode limb %d: %w", i, err)
		}
		digits[i] = v
	}
	return FromDigits(digits, l.Width), nil
}
