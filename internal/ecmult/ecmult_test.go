package ecmult

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/curves"
	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/sim"
	"github.com/smallyu/go-fhe-ecdsa/internal/curve"
	"github.com/smallyu/go-fhe-ecdsa/internal/limb"
	"github.com/smallyu/go-fhe-ecdsa/internal/modarith"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

type fixture struct {
	b      *sim.Backend
	m      *Multiplier
	fp, fn *modarith.Field
	params *curves.Params
	ref    curves.Curve
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b, err := sim.New(fhe.ParamSimMessage16Carry16)
	require.NoError(t, err)
	ev, err := limb.NewEvaluator(b, limb.WithWorkers(4))
	require.NoError(t, err)
	params := curves.Secp256k1()
	lay, err := limb.ChooseLayout(b.Descriptor(), params.P.BitLen())
	require.NoError(t, err)
	fp, err := modarith.NewField("p", ev, params.P, lay)
	require.NoError(t, err)
	fn, err := modarith.NewField("n", ev, params.N, lay)
	require.NoError(t, err)
	c, err := curve.New(fp, params)
	require.NoError(t, err)
	m, err := NewMultiplier(c, fn)
	require.NoError(t, err)
	return &fixture{b: b, m: m, fp: fp, fn: fn, params: params, ref: curves.NewSecp256k1()}
}

func (f *fixture) scalar(t *testing.T, k *big.Int) modarith.Element {
	t.Helper()
	e, err := f.fn.Encrypt(k)
	require.NoError(t, err)
	return e
}

func (f *fixture) value(t *testing.T, fd *modarith.Field, e modarith.Element) *big.Int {
	t.Helper()
	v, err := fd.Decrypt(f.b, e)
	require.NoError(t, err)
	return v
}

func (f *fixture) point(t *testing.T, p curve.Point) (*big.Int, *big.Int) {
	t.Helper()
	x, y, err := f.m.Curve().Decrypt(f.b, p)
	require.NoError(t, err)
	return x, y
}

func TestSplitMatchesPlaintext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	n := f.params.N
	bound := new(big.Int).Lsh(big.NewInt(1), curves.SubScalarBits-1)

	scalars := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		new(big.Int).Sub(n, big.NewInt(1)),
		new(big.Int).Rsh(n, 1),
		new(big.Int).Set(f.params.Lambda),
	}
	for i := 0; i < 4; i++ {
		k, err := rand.Int(rand.Reader, n)
		require.NoError(t, err)
		scalars = append(scalars, k)
	}

	for _, k := range scalars {
		s, err := f.m.Split(ctx, f.scalar(t, k))
		require.NoError(t, err)
		k1, k2 := f.params.SplitScalar(k)

		want1 := new(big.Int).Mod(k1, n)
		want2 := new(big.Int).Mod(k2, n)
		assert.Equal(t, 0, f.value(t, f.fn, s.K1).Cmp(want1), "k1 for %x", k)
		assert.Equal(t, 0, f.value(t, f.fn, s.K2).Cmp(want2), "k2 for %x", k)

		neg1, err := f.b.Decrypt(s.Neg1.Ciphertext())
		require.NoError(t, err)
		neg2, err := f.b.Decrypt(s.Neg2.Ciphertext())
		require.NoError(t, err)
		assert.Equal(t, k1.Sign() < 0, neg1 == 1, "sign of k1 for %x", k)
		assert.Equal(t, k2.Sign() < 0, neg2 == 1, "sign of k2 for %x", k)

		abs1 := f.value(t, f.fn, s.Abs1)
		abs2 := f.value(t, f.fn, s.Abs2)
		assert.Equal(t, 0, abs1.Cmp(new(big.Int).Abs(k1)))
		assert.Equal(t, 0, abs2.Cmp(new(big.Int).Abs(k2)))
		assert.True(t, abs1.Cmp(bound) < 0 && abs2.Cmp(bound) < 0, "halves exceed the ladder for %x", k)
	}
	assert.Zero(t, f.b.Stats().Corrupted)
}

func TestScalarBaseMult(t *testing.T) {
	if testing.Short() {
		t.Skip("full encrypted scalar multiplication")
	}
	ctx := context.Background()
	f := newFixture(t)
	n := f.params.N

	random, err := f.ref.NewScalar(rand.Reader)
	require.NoError(t, err)
	tests := []struct {
		name string
		k    *big.Int
	}{
		{"one", big.NewInt(1)},
		{"n minus one", new(big.Int).Sub(n, big.NewInt(1))},
		{"random", random},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := f.m.ScalarBaseMult(ctx, f.scalar(t, tt.k))
			require.NoError(t, err)
			x, y := f.point(t, r)
			wx, wy := f.ref.ScalarBaseMult(tt.k)
			require.NotNil(t, x)
			assert.Equal(t, 0, x.Cmp(wx), "x")
			assert.Equal(t, 0, y.Cmp(wy), "y")
		})
	}
	assert.Zero(t, f.b.Stats().Corrupted)
}

func TestScalarBaseMultZero(t *testing.T) {
	if testing.Short() {
		t.Skip("full encrypted scalar multiplication")
	}
	f := newFixture(t)
	r, err := f.m.ScalarBaseMult(context.Background(), f.scalar(t, big.NewInt(0)))
	require.NoError(t, err)
	x, _ := f.point(t, r)
	assert.Nil(t, x, "0*G should be the point at infinity")
}

func TestScalarMultAgainstReference(t *testing.T) {
	if testing.Short() {
		t.Skip("full encrypted scalar multiplication")
	}
	ctx := context.Background()
	f := newFixture(t)

	d, err := f.ref.NewScalar(rand.Reader)
	require.NoError(t, err)
	px, py := f.ref.ScalarBaseMult(d)
	p, err := f.m.Curve().Encrypt(px, py)
	require.NoError(t, err)
	k, err := f.ref.NewScalar(rand.Reader)
	require.NoError(t, err)
	ek := f.scalar(t, k)

	wx, wy := f.ref.ScalarMult(px, py, k)

	glv, err := f.m.ScalarMult(ctx, ek, p)
	require.NoError(t, err)
	x, y := f.point(t, glv)
	assert.Equal(t, 0, x.Cmp(wx), "endomorphism ladder x")
	assert.Equal(t, 0, y.Cmp(wy), "endomorphism ladder y")

	plain, err := f.m.ReferenceScalarMult(ctx, ek, p)
	require.NoError(t, err)
	x, y = f.point(t, plain)
	assert.Equal(t, 0, x.Cmp(wx), "reference ladder x")
	assert.Equal(t, 0, y.Cmp(wy), "reference ladder y")
	assert.Zero(t, f.b.Stats().Corrupted)
}

func TestLadderCancelled(t *testing.T) {
	f := newFixture(t)
	g, err := f.m.Curve().Generator()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.m.Ladder(ctx, f.scalar(t, big.NewInt(5)), g)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = f.m.ScalarBaseMult(ctx, f.scalar(t, big.NewInt(5)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMultiplierRejects(t *testing.T) {
	f := newFixture(t)
	_, err := NewMultiplier(f.m.Curve(), f.fp)
	var cfgErr *fhe.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)
}
