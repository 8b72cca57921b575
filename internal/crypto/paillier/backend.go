package paillier

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// KeyHolder answers the queries that additive homomorphism cannot.
type KeyHolder interface {
	// Multiply returns a fresh encryption of the product mod N of the two
	// plaintexts. The backend only sends additively masked operands.
	Multiply(x, y *big.Int) (*big.Int, error)
	// Refresh returns a fresh encryption of lut applied to the plaintext
	// reduced modulo the plaintext modulus.
	Refresh(ctx context.Context, c *big.Int, lut fhe.LookupTable) (*big.Int, error)
}

// LocalKeyHolder is a KeyHolder running in the same process. It also
// decrypts, which tests and the CLI rely on.
type LocalKeyHolder struct {
	priv    *PrivateKey
	t       *big.Int
	queries atomic.Int64
}

// NewLocalKeyHolder wraps a private key for plaintext modulus desc.
func NewLocalKeyHolder(priv *PrivateKey, desc fhe.Descriptor) *LocalKeyHolder {
	return &LocalKeyHolder{priv: priv, t: new(big.Int).SetUint64(desc.PlaintextModulus())}
}

// Queries returns the number of Multiply and Refresh calls answered.
func (h *LocalKeyHolder) Queries() int64 { return h.queries.Load() }

func (h *LocalKeyHolder) Multiply(x, y *big.Int) (*big.Int, error) {
	h.queries.Add(1)
	mx, err := h.priv.Decrypt(x)
	if err != nil {
		return nil, err
	}
	my, err := h.priv.Decrypt(y)
	if err != nil {
		return nil, err
	}
	p := mx.Mul(mx, my)
	c, _, err := h.priv.Encrypt(p.Mod(p, h.priv.N))
	return c, err
}

func (h *LocalKeyHolder) Refresh(ctx context.Context, c *big.Int, lut fhe.LookupTable) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.queries.Add(1)
	m, err := h.priv.Decrypt(c)
	if err != nil {
		return nil, err
	}
	v := m.Mod(m, h.t).Uint64()
	if lut != nil {
		v = lut(v) % h.t.Uint64()
	}
	out, _, err := h.priv.Encrypt(new(big.Int).SetUint64(v))
	return out, err
}

// Decrypt implements fhe.Decryptor for ciphertexts of a Backend sharing
// this key.
func (h *LocalKeyHolder) Decrypt(x fhe.Ciphertext) (uint64, error) {
	cx, ok := x.(*ciphertext)
	if !ok || cx == nil {
		return 0, fmt.Errorf("paillier: %T: %w", x, fhe.ErrForeignCiphertext)
	}
	m, err := h.priv.Decrypt(cx.c)
	if err != nil {
		return 0, err
	}
	return m.Mod(m, h.t).Uint64(), nil
}

type ciphertext struct {
	owner *Backend
	c     *big.Int
}

// Stats counts backend activity.
type Stats struct {
	Encrypts       int64
	Multiplies     int64
	Bootstraps     int64
	HomomorphicOps int64
}

// Backend implements fhe.Backend over Paillier ciphertexts. Plaintexts are
// residues mod N; as long as the evaluator's degree bounds hold they equal
// the integer results, so reducing them mod T on decryption gives the
// arithmetic the descriptor promises.
type Backend struct {
	pk     *PublicKey
	holder KeyHolder
	desc   fhe.Descriptor
	t      *big.Int

	encrypts   atomic.Int64
	multiplies atomic.Int64
	bootstraps atomic.Int64
	ops        atomic.Int64
}

var _ fhe.Backend = (*Backend)(nil)

// NewBackend binds a public key and a key holder under desc. The modulus
// must exceed T^2 so a product of two digits never wraps.
func NewBackend(pk *PublicKey, holder KeyHolder, desc fhe.Descriptor) (*Backend, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	t := new(big.Int).SetUint64(desc.PlaintextModulus())
	if new(big.Int).Mul(t, t).Cmp(pk.N) >= 0 {
		return nil, fhe.NewCapabilityError(desc.Name, "paillier modulus too small for the plaintext space", fhe.ErrPlaintextSpace)
	}
	return &Backend{pk: pk, holder: holder, desc: desc, t: t}, nil
}

// Descriptor implements fhe.Backend.
func (b *Backend) Descriptor() fhe.Descriptor { return b.desc }

// Stats returns a snapshot of the counters.
func (b *Backend) Stats() Stats {
	return Stats{
		Encrypts:       b.encrypts.Load(),
		Multiplies:     b.multiplies.Load(),
		Bootstraps:     b.bootstraps.Load(),
		HomomorphicOps: b.ops.Load(),
	}
}

func (b *Backend) Encrypt(m uint64) (fhe.Ciphertext, error) {
	if m >= b.desc.PlaintextModulus() {
		return nil, fmt.Errorf("paillier: encrypt %d: %w", m, fhe.ErrOutOfRange)
	}
	c, _, err := b.pk.Encrypt(new(big.Int).SetUint64(m))
	if err != nil {
		return nil, err
	}
	b.encrypts.Add(1)
	return b.wrap(c), nil
}

func (b *Backend) Trivial(m uint64) (fhe.Ciphertext, error) {
	if m >= b.desc.PlaintextModulus() {
		return nil, fmt.Errorf("paillier: trivial %d: %w", m, fhe.ErrOutOfRange)
	}
	c, err := b.constant(new(big.Int).SetUint64(m))
	if err != nil {
		return nil, err
	}
	return b.wrap(c), nil
}

func (b *Backend) Add(x, y fhe.Ciphertext) (fhe.Ciphertext, error) {
	cx, cy, err := b.pair(x, y)
	if err != nil {
		return nil, err
	}
	b.ops.Add(1)
	return b.wrap(b.pk.Add(cx.c, cy.c)), nil
}

// Sub computes x + T - y. The offset keeps the residue non-negative, so it
// stays congruent to x - y mod T whenever the plaintext of y is at most T,
// which the evaluator's degree bound guarantees.
func (b *Backend) Sub(x, y fhe.Ciphertext) (fhe.Ciphertext, error) {
	cx, cy, err := b.pair(x, y)
	if err != nil {
		return nil, err
	}
	offset, err := b.constant(b.t)
	if err != nil {
		return nil, err
	}
	b.ops.Add(1)
	return b.wrap(b.pk.Add(b.pk.Add(cx.c, offset), b.pk.Neg(cy.c))), nil
}

func (b *Backend) MulPlain(x fhe.Ciphertext, k uint64) (fhe.Ciphertext, error) {
	cx, err := b.own(x)
	if err != nil {
		return nil, err
	}
	b.ops.Add(1)
	return b.wrap(b.pk.Mul(cx.c, new(big.Int).SetUint64(k))), nil
}

// MulCipher masks both operands, has the key holder multiply them and
// removes the mask terms: xy = (x+r)(y+s) - s*x - r*y - r*s.
func (b *Backend) MulCipher(x, y fhe.Ciphertext) (fhe.Ciphertext, error) {
	cx, cy, err := b.pair(x, y)
	if err != nil {
		return nil, err
	}
	c, err := b.mul(cx.c, cy.c)
	if err != nil {
		return nil, err
	}
	return b.wrap(c), nil
}

func (b *Backend) mul(x, y *big.Int) (*big.Int, error) {
	n := b.pk.N
	r, err := rand.Int(rand.Reader, n)
	if err != nil {
		return nil, err
	}
	s, err := rand.Int(rand.Reader, n)
	if err != nil {
		return nil, err
	}
	er, err := b.constant(r)
	if err != nil {
		return nil, err
	}
	es, err := b.constant(s)
	if err != nil {
		return nil, err
	}

	masked, err := b.holder.Multiply(b.pk.Add(x, er), b.pk.Add(y, es))
	if err != nil {
		return nil, fmt.Errorf("paillier: key holder multiply: %w", err)
	}
	if err := b.pk.ValidateCiphertext(masked); err != nil {
		return nil, err
	}
	b.multiplies.Add(1)

	negS := new(big.Int).Sub(n, s)
	negR := new(big.Int).Sub(n, r)
	negRS := new(big.Int).Mul(r, s)
	negRS.Sub(n, negRS.Mod(negRS, n))
	ers, err := b.constant(negRS.Mod(negRS, n))
	if err != nil {
		return nil, err
	}

	out := b.pk.Add(masked, b.pk.Mul(x, negS))
	out = b.pk.Add(out, b.pk.Mul(y, negR))
	return b.pk.Add(out, ers), nil
}

// Select computes y + cond*(x - y).
func (b *Backend) Select(cond, x, y fhe.Ciphertext) (fhe.Ciphertext, error) {
	cc, err := b.own(cond)
	if err != nil {
		return nil, err
	}
	cx, cy, err := b.pair(x, y)
	if err != nil {
		return nil, err
	}
	diff := b.pk.Add(cx.c, b.pk.Neg(cy.c))
	prod, err := b.mul(cc.c, diff)
	if err != nil {
		return nil, err
	}
	b.ops.Add(1)
	return b.wrap(b.pk.Add(cy.c, prod)), nil
}

// Bootstrap sends the ciphertext to the key holder, which evaluates lut in
// the clear and returns a fresh encryption.
func (b *Backend) Bootstrap(ctx context.Context, x fhe.Ciphertext, lut fhe.LookupTable) (fhe.Ciphertext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cx, err := b.own(x)
	if err != nil {
		return nil, err
	}
	c, err := b.holder.Refresh(ctx, cx.c, lut)
	if err != nil {
		return nil, fmt.Errorf("paillier: key holder refresh: %w", err)
	}
	if err := b.pk.ValidateCiphertext(c); err != nil {
		return nil, err
	}
	b.bootstraps.Add(1)
	return b.wrap(c), nil
}

func (b *Backend) constant(m *big.Int) (*big.Int, error) {
	return b.pk.EncryptWithNonce(m, one)
}

func (b *Backend) wrap(c *big.Int) *ciphertext {
	return &ciphertext{owner: b, c: c}
}

func (b *Backend) own(x fhe.Ciphertext) (*ciphertext, error) {
	c, ok := x.(*ciphertext)
	if !ok || c == nil || c.owner != b {
		return nil, fmt.Errorf("paillier: %T: %w", x, fhe.ErrForeignCiphertext)
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
