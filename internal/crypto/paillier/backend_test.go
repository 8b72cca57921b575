package paillier

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallyu/go-fhe-ecdsa/internal/limb"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

func newBackend(t *testing.T) (*Backend, *LocalKeyHolder) {
	t.Helper()
	priv := testKey(t)
	desc := fhe.ParamPaillierMessage16Carry16
	holder := NewLocalKeyHolder(priv, desc)
	b, err := NewBackend(&priv.PublicKey, holder, desc)
	require.NoError(t, err)
	return b, holder
}

func TestBackendArithmetic(t *testing.T) {
	b, h := newBackend(t)
	dec := func(c fhe.Ciphertext, err error) uint64 {
		t.Helper()
		require.NoError(t, err)
		v, err := h.Decrypt(c)
		require.NoError(t, err)
		return v
	}

	x, err := b.Encrypt(40000)
	require.NoError(t, err)
	y, err := b.Encrypt(70000)
	require.NoError(t, err)
	one, err := b.Trivial(1)
	require.NoError(t, err)
	zero, err := b.Encrypt(0)
	require.NoError(t, err)

	assert.Equal(t, uint64(110000), dec(b.Add(x, y)))
	assert.Equal(t, uint64(30000), dec(b.Sub(y, x)))
	assert.Equal(t, uint64(1<<32-30000), dec(b.Sub(x, y)), "negative difference wraps mod T")
	assert.Equal(t, uint64(0), dec(b.Sub(x, x)))
	assert.Equal(t, uint64(120000), dec(b.MulPlain(x, 3)))
	assert.Equal(t, uint64(40000*70000), dec(b.MulCipher(x, y)))
	assert.Equal(t, uint64(40000), dec(b.Select(one, x, y)))
	assert.Equal(t, uint64(70000), dec(b.Select(zero, x, y)))

	double := func(v uint64) uint64 { return 2 * v }
	assert.Equal(t, uint64(80000), dec(b.Bootstrap(context.Background(), x, double)))

	st := b.Stats()
	assert.Equal(t, int64(3), st.Encrypts)
	assert.Equal(t, int64(3), st.Multiplies)
	assert.Equal(t, int64(1), st.Bootstraps)
	assert.Equal(t, int64(4), h.Queries())
}

func TestBackendSubWrapsModT(t *testing.T) {
	b, h := newBackend(t)
	one, err := b.Encrypt(1)
	require.NoError(t, err)
	two, err := b.Trivial(2)
	require.NoError(t, err)

	d, err := b.Sub(one, two)
	require.NoError(t, err)
	v, err := h.Decrypt(d)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<32-1), v)

	// the key holder sees the same residue mod T
	r, err := b.Bootstrap(context.Background(), d, fhe.Identity)
	require.NoError(t, err)
	v, err = h.Decrypt(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<32-1), v)
}

func TestBackendErrors(t *testing.T) {
	b, h := newBackend(t)
	other, _ := newBackend(t)

	_, err := b.Encrypt(b.Descriptor().PlaintextModulus())
	assert.ErrorIs(t, err, fhe.ErrOutOfRange)

	x, err := b.Encrypt(1)
	require.NoError(t, err)
	y, err := other.Encrypt(1)
	require.NoError(t, err)
	_, err = b.Add(x, y)
	assert.ErrorIs(t, err, fhe.ErrForeignCiphertext)
	_, err = h.Decrypt(struct{}{})
	assert.ErrorIs(t, err, fhe.ErrForeignCiphertext)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Bootstrap(ctx, x, fhe.Identity)
	assert.ErrorIs(t, err, context.Canceled)

	// a modulus below T^2 cannot hold a digit product
	small := &PublicKey{N: big.NewInt(1 << 40), N2: big.NewInt(1 << 40)}
	_, err = NewBackend(small, h, fhe.ParamPaillierMessage16Carry16)
	var capErr *fhe.BackendCapabilityError
	assert.True(t, errors.As(err, &capErr), "got %v", err)
}

func TestBackendUnderEvaluator(t *testing.T) {
	b, h := newBackend(t)
	ev, err := limb.NewEvaluator(b, limb.WithWorkers(4))
	require.NoError(t, err)
	lay := limb.Layout{Width: 16, Count: 4}
	ctx := context.Background()

	a, _ := new(big.Int).SetString("d1f0c3a2b4e59687", 16)
	c, _ := new(big.Int).SetString("0123456789abcdef", 16)
	x, err := ev.EncryptInt(a, lay)
	require.NoError(t, err)
	y, err := ev.EncryptInt(c, lay)
	require.NoError(t, err)

	prod, err := ev.MulLimbs(ctx, lay, x, y, 2*lay.Count)
	require.NoError(t, err)
	got, err := limb.Decode(h, prod, lay)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(new(big.Int).Mul(a, c)), "got %x", got)
	assert.Zero(t, ev.Refreshes(), "zero-cost backend should never need a refresh")
}
