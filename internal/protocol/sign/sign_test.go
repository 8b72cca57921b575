package sign

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/curves"
	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/sim"
	"github.com/smallyu/go-fhe-ecdsa/internal/curve"
	"github.com/smallyu/go-fhe-ecdsa/internal/ecmult"
	"github.com/smallyu/go-fhe-ecdsa/internal/limb"
	"github.com/smallyu/go-fhe-ecdsa/internal/modarith"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// Published secp256k1 vector: private key 1, message "Satoshi Nakamoto",
// deterministic nonce from RFC 6979.
var (
	vectorNonce = hexInt("8F8A276C19F4149656B280621E358CCE24F5F52542772691EE69063B74F15D15")
	vectorR     = hexInt("934b1ea10a4b3c1757e2b0c017d0b6143ce3c9a7e6a4a49860d7a6ab210ee3d8")
	vectorS     = hexInt("dbbd3162d46e9f9bef7feb87c16dc13b4f6568a87f4e83f728e2443ba586675c")
	vectorLowS  = hexInt("2442ce9d2b916064108014783e923ec36b49743e2ffa1c4496f01a512aafd9e5")
)

func hexInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("bad hex " + s)
	}
	return v
}

type fixture struct {
	signer  *Signer
	backend *sim.Backend
	fn      *modarith.Field
}

func newFixture(t *testing.T, threshold int, opts ...Option) *fixture {
	t.Helper()
	b, err := sim.New(fhe.ParamSimMessage16Carry16)
	require.NoError(t, err)

	evOpts := []limb.Option{limb.WithWorkers(4)}
	if threshold > 0 {
		evOpts = append(evOpts, limb.WithNoiseThreshold(threshold))
	}
	ev, err := limb.NewEvaluator(b, evOpts...)
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
	m, err := ecmult.NewMultiplier(c, fn)
	require.NoError(t, err)
	s, err := NewSigner(m, opts...)
	require.NoError(t, err)
	return &fixture{signer: s, backend: b, fn: fn}
}

func (f *fixture) request(t *testing.T, d, k *big.Int, hash []byte) Request {
	t.Helper()
	pk, err := f.fn.Encrypt(d)
	require.NoError(t, err)
	nonce, err := f.fn.Encrypt(k)
	require.NoError(t, err)
	z := DigestToInt(hash, curves.Secp256k1().N)
	z.Mod(z, curves.Secp256k1().N)
	digest, err := f.fn.Encrypt(z)
	require.NoError(t, err)
	return Request{PrivateKey: pk, Nonce: nonce, Digest: digest}
}

func (f *fixture) sign(t *testing.T, req Request) *PlainSignature {
	t.Helper()
	sig, err := f.signer.Sign(context.Background(), req)
	require.NoError(t, err)
	plain, err := f.signer.Decrypt(f.backend, sig)
	require.NoError(t, err)
	return plain
}

func verify(t *testing.T, d *big.Int, hash []byte, sig *PlainSignature) bool {
	t.Helper()
	px, py := curves.NewSecp256k1().ScalarBaseMult(d)
	var fx, fy secp256k1.FieldVal
	fx.SetByteSlice(px.Bytes())
	fy.SetByteSlice(py.Bytes())
	pub := secp256k1.NewPublicKey(&fx, &fy)

	var r, s secp256k1.ModNScalar
	if r.SetByteSlice(sig.R.Bytes()) || s.SetByteSlice(sig.S.Bytes()) {
		return false
	}
	return ecdsa.NewSignature(&r, &s).Verify(hash, pub)
}

func TestSignPublishedVector(t *testing.T) {
	if testing.Short() {
		t.Skip("full encrypted signature")
	}
	f := newFixture(t, 0)
	hash := HashMessage([]byte("Satoshi Nakamoto"))

	sig := f.sign(t, f.request(t, big.NewInt(1), vectorNonce, hash))
	assert.Equal(t, 0, sig.R.Cmp(vectorR), "r = %x", sig.R)
	assert.Equal(t, 0, sig.S.Cmp(vectorS), "s = %x", sig.S)
	assert.True(t, verify(t, big.NewInt(1), hash, sig))
	assert.Zero(t, f.backend.Stats().Corrupted)
}

func TestSignLowS(t *testing.T) {
	if testing.Short() {
		t.Skip("full encrypted signature")
	}
	f := newFixture(t, 0, WithLowS(true))
	hash := HashMessage([]byte("Satoshi Nakamoto"))

	// the digest goes in as a full-width integer and is reduced in the pipeline
	z := DigestToInt(hash, curves.Secp256k1().N)
	wide, err := f.fn.Evaluator().EncryptInt(z, f.fn.Layout())
	require.NoError(t, err)
	req := f.request(t, big.NewInt(1), vectorNonce, hash)
	req.Digest = modarith.Element{}
	req.WideDigest = wide

	sig := f.sign(t, req)
	assert.Equal(t, 0, sig.R.Cmp(vectorR))
	assert.Equal(t, 0, sig.S.Cmp(vectorLowS), "s = %x", sig.S)
	assert.True(t, verify(t, big.NewInt(1), hash, sig))
}

func TestSignRandom(t *testing.T) {
	if testing.Short() {
		t.Skip("full encrypted signatures")
	}
	f := newFixture(t, 0)
	c := curves.NewSecp256k1()

	for i := 0; i < 2; i++ {
		d, err := c.NewScalar(rand.Reader)
		require.NoError(t, err)
		k, err := c.NewScalar(rand.Reader)
		require.NoError(t, err)
		msg := make([]byte, 40)
		_, err = rand.Read(msg)
		require.NoError(t, err)
		hash := HashMessage(msg)

		sig := f.sign(t, f.request(t, d, k, hash))
		if !verify(t, d, hash, sig) {
			t.Fatalf("trial %d: signature (%x, %x) does not verify", i, sig.R, sig.S)
		}
		t.Logf("trial %d ok, %d bootstraps so far", i, f.backend.Stats().Bootstraps)
	}
}

func TestSignDegradedScheduleDiverges(t *testing.T) {
	if testing.Short() {
		t.Skip("full encrypted signature")
	}
	f := newFixture(t, 1<<30)
	hash := HashMessage([]byte("Satoshi Nakamoto"))

	sig := f.sign(t, f.request(t, big.NewInt(1), vectorNonce, hash))
	assert.NotZero(t, f.backend.Stats().Corrupted)
	assert.False(t, sig.R.Cmp(vectorR) == 0 && sig.S.Cmp(vectorS) == 0,
		"signature survived a schedule that overruns the noise budget")
}

func TestSignCancelled(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sig, err := f.signer.Sign(ctx, f.request(t, big.NewInt(1), vectorNonce, HashMessage([]byte("x"))))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Nil(t, sig)
}

func TestSignRejectsForeignCiphertext(t *testing.T) {
	f := newFixture(t, 0)
	other := newFixture(t, 0)

	req := f.request(t, big.NewInt(1), vectorNonce, HashMessage([]byte("x")))
	req.WideDigest = other.request(t, big.NewInt(1), vectorNonce, HashMessage([]byte("x"))).Digest.Limbs

	// the wide digest is reduced first, before any long-running stage
	_, err := f.signer.Sign(context.Background(), req)
	assert.ErrorIs(t, err, fhe.ErrForeignCiphertext)
}
