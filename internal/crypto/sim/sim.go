// Package sim provides a simulated FHE backend. Ciphertexts are cleartext
// words modulo the plaintext modulus together with a noise counter that
// follows the descriptor's cost model. A result whose noise exceeds the
// budget decrypts to a wrong value, so a missing refresh shows up as a wrong
// answer exactly as it would with a real scheme.
//
// The backend offers no confidentiality. It exists for tests and development.
package sim

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

type ciphertext struct {
	owner *Backend
	v     uint64
	noise int
}

// Stats counts backend calls.
type Stats struct {
	Encrypts   int64
	Ops        int64
	Bootstraps int64
	Corrupted  int64
}

// Backend evaluates the FHE capability set in the clear.
type Backend struct {
	desc fhe.Descriptor
	t    uint64

	encrypts   atomic.Int64
	ops        atomic.Int64
	bootstraps atomic.Int64
	corrupted  atomic.Int64
}

var (
	_ fhe.Backend   = (*Backend)(nil)
	_ fhe.Decryptor = (*Backend)(nil)
)

// New creates a simulated backend for the given parameter set.
func New(desc fhe.Descriptor) (*Backend, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &Backend{desc: desc, t: desc.PlaintextModulus()}, nil
}

// Descriptor implements fhe.Backend.
func (b *Backend) Descriptor() fhe.Descriptor { return b.desc }

// Stats returns a snapshot of the call counters.
func (b *Backend) Stats() Stats {
	return Stats{
		Encrypts:   b.encrypts.Load(),
		Ops:        b.ops.Load(),
		Bootstraps: b.bootstraps.Load(),
		Corrupted:  b.corrupted.Load(),
	}
}

func (b *Backend) Encrypt(m uint64) (fhe.Ciphertext, error) {
	if m >= b.t {
		return nil, fmt.Errorf("sim: encrypt %d: %w", m, fhe.ErrOutOfRange)
	}
	b.encrypts.Add(1)
	return &ciphertext{owner: b, v: m}, nil
}

func (b *Backend) Trivial(m uint64) (fhe.Ciphertext, error) {
	if m >= b.t {
		return nil, fmt.Errorf("sim: trivial %d: %w", m, fhe.ErrOutOfRange)
	}
	return &ciphertext{owner: b, v: m}, nil
}

func (b *Backend) Add(x, y fhe.Ciphertext) (fhe.Ciphertext, error) {
	cx, cy, err := b.pair(x, y)
	if err != nil {
		return nil, err
	}
	return b.result(cx.v+cy.v, max(cx.noise, cy.noise)+b.desc.Cost.Add), nil
}

func (b *Backend) Sub(x, y fhe.Ciphertext) (fhe.Ciphertext, error) {
	cx, cy, err := b.pair(x, y)
	if err != nil {
		return nil, err
	}
	return b.result(cx.v+b.t-cy.v, max(cx.noise, cy.noise)+b.desc.Cost.Add), nil
}

func (b *Backend) MulPlain(x fhe.Ciphertext, k uint64) (fhe.Ciphertext, error) {
	cx, err := b.own(x)
	if err != nil {
		return nil, err
	}
	return b.result(cx.v*(k%b.t), cx.noise+b.desc.Cost.MulPlain), nil
}

func (b *Backend) MulCipher(x, y fhe.Ciphertext) (fhe.Ciphertext, error) {
	cx, cy, err := b.pair(x, y)
	if err != nil {
		return nil, err
	}
	return b.result(cx.v*cy.v, max(cx.noise, cy.noise)+b.desc.Cost.MulCipher), nil
}

func (b *Backend) Select(cond, x, y fhe.Ciphertext) (fhe.Ciphertext, error) {
	cc, err := b.own(cond)
	if err != nil {
		return nil, err
	}
	cx, cy, err := b.pair(x, y)
	if err != nil {
		return nil, err
	}
	// y + cond*(x - y), computed the way an arithmetic scheme would
	v := cy.v + cc.v*((cx.v+b.t-cy.v)%b.t)
	return b.result(v, max(cc.noise, cx.noise, cy.noise)+b.desc.Cost.Select), nil
}

func (b *Backend) Bootstrap(ctx context.Context, x fhe.Ciphertext, lut fhe.LookupTable) (fhe.Ciphertext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cx, err := b.own(x)
	if err != nil {
		return nil, err
	}
	if lut == nil {
		lut = fhe.Identity
	}
	b.bootstraps.Add(1)
	return &ciphertext{owner: b, v: lut(cx.v) % b.t}, nil
}

// Decrypt implements fhe.Decryptor.
func (b *Backend) Decrypt(x fhe.Ciphertext) (uint64, error) {
	cx, err := b.own(x)
	if err != nil {
		return 0, err
	}
	return cx.v, nil
}

// Noise reports the noise carried by a ciphertext.
func (b *Backend) Noise(x fhe.Ciphertext) (int, error) {
	cx, err := b.own(x)
	if err != nil {
		return 0, err
	}
	return cx.noise, nil
}

func (b *Backend) result(v uint64, noise int) *ciphertext {
	b.ops.Add(1)
	v %= b.t
	if noise > b.desc.MaxNoise {
		b.corrupted.Add(1)
		v = corrupt(v, b.t)
	}
	return &ciphertext{owner: b, v: v, noise: noise}
}

// corrupt maps v to a different residue mod t. The offset is a fixed
// function of v so runs are reproducible.
func corrupt(v, t uint64) uint64 {
	h := v*0x9E3779B97F4A7C15 + 0x632BE59BD9B4E019
	off := 1 + h%(t-1)
	return (v + off) % t
}

func (b *Backend) own(x fhe.Ciphertext) (*ciphertext, error) {
	c, ok := x.(*ciphertext)
	if !ok || c == nil || c.owner != b {
		return nil, fmt.Errorf("sim: %T: %w", x, fhe.ErrForeignCiphertext)
	}
	return c, nil
}

func (b *Backend) pair(x, y fhe.Ciphertext) (*ciphertext, *ciphertext, error) {
	cx, err := b.own(x)
	if err != nil {
		return nil, nil, err
	}
	cy, err := b.own(y)
	if err != nil {
		return nil, nil, err
	}
	return cx, cy, nil
}
