package e2e

import (
	"context"
	"crypto/rand"
	"math/big"
	"os"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/smallyu/go-fhe-ecdsa/internal/config"
	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/curves"
	"github.com/smallyu/go-fhe-ecdsa/internal/protocol/sign"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhecdsa"
)

// btcecVerify checks a decrypted signature with an independent library.
func btcecVerify(t *testing.T, d *big.Int, hash []byte, sig *fhecdsa.PlainSignature) bool {
	t.Helper()
	var buf [32]byte
	_, pub := btcec.PrivKeyFromBytes(d.FillBytes(buf[:]))

	var r, s btcec.ModNScalar
	if r.SetByteSlice(sig.R.Bytes()) || s.SetByteSlice(sig.S.Bytes()) {
		t.Fatalf("signature component overflows the group order")
	}
	return ecdsa.NewSignature(&r, &s).Verify(hash, pub)
}

func randomScalar(t *testing.T) *big.Int {
	t.Helper()
	k, err := curves.NewSecp256k1().NewScalar(rand.Reader)
	if err != nil {
		t.Fatalf("scalar: %v", err)
	}
	return k
}

func TestSignBatchVerifiesWithBtcec(t *testing.T) {
	if testing.Short() {
		t.Skip("full encrypted signatures")
	}
	cfg := config.Default()
	cfg.LowS = true
	e, err := fhecdsa.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("Engine failed: %v", err)
	}

	// 1. Two independent requests, random keys, RFC 6979 nonces
	messages := []string{"first message", "second message"}
	keys := make([]*big.Int, len(messages))
	hashes := make([][]byte, len(messages))
	reqs := make([]fhecdsa.Request, len(messages))
	for i, msg := range messages {
		keys[i] = randomScalar(t)
		hashes[i] = sign.HashMessage([]byte(msg))
		reqs[i], err = e.NewRequest(keys[i], fhecdsa.NonceRFC6979(keys[i], hashes[i]), hashes[i])
		if err != nil {
			t.Fatalf("Request %d failed: %v", i, err)
		}
	}

	// 2. Sign both concurrently
	sigs, err := e.SignBatch(context.Background(), reqs, 2)
	if err != nil {
		t.Fatalf("SignBatch failed: %v", err)
	}

	// 3. Decrypt and verify with btcec and with decred
	half := new(big.Int).Rsh(e.Params().N, 1)
	for i, sig := range sigs {
		plain, err := e.Decrypt(sig)
		if err != nil {
			t.Fatalf("Decrypt %d failed: %v", i, err)
		}
		if !btcecVerify(t, keys[i], hashes[i], plain) {
			t.Errorf("Signature %d rejected by btcec", i)
		}
		if !fhecdsa.Verify(fhecdsa.PublicKeyOf(keys[i]), hashes[i], plain) {
			t.Errorf("Signature %d rejected by decred", i)
		}
		if plain.S.Cmp(half) > 0 {
			t.Errorf("Signature %d is not low-s", i)
		}
	}
}

func TestPaillierBackendSigns(t *testing.T) {
	if testing.Short() || os.Getenv("FHECDSA_PAILLIER_E2E") == "" {
		t.Skip("set FHECDSA_PAILLIER_E2E to run a signature on the Paillier backend")
	}
	cfg := config.Default()
	cfg.Backend = config.BackendPaillier
	cfg.Params = "paillier_message_16_carry_16"
	cfg.PaillierBits = 1024
	e, err := fhecdsa.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("Engine failed: %v", err)
	}

	d := randomScalar(t)
	hash := sign.HashMessage([]byte("paillier"))
	req, err := e.NewRequest(d, fhecdsa.NonceRFC6979(d, hash), hash)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	sig, err := e.Sign(context.Background(), req)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	plain, err := e.Decrypt(sig)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !btcecVerify(t, d, hash, plain) {
		t.Errorf("Signature rejected by btcec")
	}
}

func TestPaillierEngineRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendPaillier
	cfg.Params = "paillier_message_16_carry_16"
	cfg.PaillierBits = 1024
	e, err := fhecdsa.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("Engine failed: %v", err)
	}

	v := randomScalar(t)
	enc, err := e.EncryptScalar(v)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	got, err := e.DecryptScalar(enc)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got.Cmp(v) != 0 {
		t.Errorf("Round trip mismatch. Got %x, want %x", got, v)
	}
}
