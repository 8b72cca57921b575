package fhecdsa

import (
	"context"
	"errors"
	"math/big"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallyu/go-fhe-ecdsa/internal/config"
	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/sim"
	"github.com/smallyu/go-fhe-ecdsa/internal/protocol/sign"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

func hexInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("bad hex " + s)
	}
	return v
}

var (
	vectorNonce = hexInt("8F8A276C19F4149656B280621E358CCE24F5F52542772691EE69063B74F15D15")
	vectorR     = hexInt("934b1ea10a4b3c1757e2b0c017d0b6143ce3c9a7e6a4a49860d7a6ab210ee3d8")
	vectorS     = hexInt("dbbd3162d46e9f9bef7feb87c16dc13b4f6568a87f4e83f728e2443ba586675c")
	vectorLowS  = hexInt("2442ce9d2b916064108014783e923ec36b49743e2ffa1c4496f01a512aafd9e5")
)

// opaque hides the simulator's Decrypt method.
type opaque struct{ fhe.Backend }

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 2
	e, err := NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, fhe.ParamSimMessage16Carry16.Name, e.Descriptor().Name)
	assert.Equal(t, uint(16), e.Layout().Width)
	assert.Equal(t, 16, e.Layout().Count)

	v := big.NewInt(123456789)
	enc, err := e.EncryptScalar(v)
	require.NoError(t, err)
	got, err := e.DecryptScalar(enc)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(v))

	_, err = e.EncryptScalar(e.Params().N)
	assert.ErrorIs(t, err, fhe.ErrOutOfRange)
}

func TestNewFromConfigRejects(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "tfhe"
	_, err := NewFromConfig(cfg)
	var cfgErr *fhe.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)
}

func TestNewRejectsNarrowBackend(t *testing.T) {
	b, err := sim.New(fhe.ParamMessage2Carry2)
	require.NoError(t, err)
	_, err = New(b)
	var capErr *fhe.BackendCapabilityError
	assert.True(t, errors.As(err, &capErr), "got %v", err)
}

func TestDecryptNeedsCapability(t *testing.T) {
	b, err := sim.New(fhe.ParamSimMessage16Carry16)
	require.NoError(t, err)
	e, err := New(opaque{b})
	require.NoError(t, err)

	v, err := e.EncryptScalar(big.NewInt(3))
	require.NoError(t, err)
	_, err = e.DecryptScalar(v)
	assert.ErrorIs(t, err, fhe.ErrMissingCapability)
	_, err = e.Decrypt(&Signature{R: v, S: v})
	assert.ErrorIs(t, err, fhe.ErrMissingCapability)

	// an explicit decryptor restores it
	e, err = New(opaque{b}, WithDecryptor(b))
	require.NoError(t, err)
	got, err := e.DecryptScalar(v)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Int64())
}

func TestRegisterer(t *testing.T) {
	reg := prom.NewRegistry()
	b, err := sim.New(fhe.ParamSimMessage16Carry16)
	require.NoError(t, err)
	_, err = New(b, WithRegisterer(reg))
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["fhecdsa_backend_ops_total"])
	assert.True(t, names["fhecdsa_refreshes_total"])

	// a second engine cannot claim the same collectors
	_, err = New(b, WithRegisterer(reg))
	assert.Error(t, err)
}

func TestNewRequest(t *testing.T) {
	e, err := NewFromConfig(config.Default())
	require.NoError(t, err)
	hash := sign.HashMessage([]byte("Satoshi Nakamoto"))
	req, err := e.NewRequest(big.NewInt(1), vectorNonce, hash)
	require.NoError(t, err)
	assert.Len(t, req.WideDigest, e.Layout().Count)

	_, err = e.NewRequest(e.Params().N, vectorNonce, hash)
	assert.ErrorIs(t, err, fhe.ErrOutOfRange)
}

func TestSignPublishedVector(t *testing.T) {
	if testing.Short() {
		t.Skip("full encrypted signature")
	}
	hash := sign.HashMessage([]byte("Satoshi Nakamoto"))
	for _, lowS := range []bool{false, true} {
		e, err := NewFromConfig(config.Default(), WithLowS(lowS))
		require.NoError(t, err)
		req, err := e.NewRequest(big.NewInt(1), vectorNonce, hash)
		require.NoError(t, err)

		sig, err := e.Sign(context.Background(), req)
		require.NoError(t, err)
		plain, err := e.Decrypt(sig)
		require.NoError(t, err)

		want := vectorS
		if lowS {
			want = vectorLowS
		}
		assert.Equal(t, 0, plain.R.Cmp(vectorR), "r, low-s %v", lowS)
		assert.Equal(t, 0, plain.S.Cmp(want), "s, low-s %v", lowS)

		bootstraps, _ := e.Stats()
		assert.Positive(t, bootstraps)
	}
}

func TestPlaintextHelpers(t *testing.T) {
	hash := sign.HashMessage([]byte("Satoshi Nakamoto"))
	assert.Equal(t, 0, NonceRFC6979(big.NewInt(1), hash).Cmp(vectorNonce))

	pub := PublicKeyOf(big.NewInt(1))
	assert.True(t, Verify(pub, hash, &PlainSignature{R: vectorR, S: vectorS}))
	assert.True(t, Verify(pub, hash, &PlainSignature{R: vectorR, S: vectorLowS}))
	assert.False(t, Verify(pub, hash, &PlainSignature{R: vectorR, S: big.NewInt(1)}))
	assert.False(t, Verify(pub, hash, nil))
	assert.False(t, Verify(PublicKeyOf(big.NewInt(2)), hash, &PlainSignature{R: vectorR, S: vectorS}))
}

func TestZeroNoiseThreshold(t *testing.T) {
	add := func(e *Engine) int64 {
		x, err := e.eval.Encrypt(3, 3)
		require.NoError(t, err)
		y, err := e.eval.Encrypt(4, 4)
		require.NoError(t, err)
		_, err = e.eval.Add(context.Background(), x, y)
		require.NoError(t, err)
		_, refreshes := e.Stats()
		return refreshes
	}

	e, err := NewFromConfig(config.Default())
	require.NoError(t, err)
	assert.Zero(t, add(e), "default threshold absorbs one addition")

	zero := 0
	cfg := config.Default()
	cfg.NoiseThreshold = &zero
	e, err = NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Positive(t, add(e), "threshold 0 refreshes before every operation")

	b, err := sim.New(fhe.ParamSimMessage16Carry16)
	require.NoError(t, err)
	e, err = New(b, WithNoiseThreshold(0))
	require.NoError(t, err)
	assert.Positive(t, add(e))
}
