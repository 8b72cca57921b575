package paillier

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

var (
	keyOnce sync.Once
	key     *PrivateKey
	keyErr  error
)

// testKey shares one key across the package's tests; generating primes
// dominates their run time.
func testKey(t *testing.T) *PrivateKey {
	t.Helper()
	keyOnce.Do(func() { key, keyErr = GenerateKey(rand.Reader, MinBits) })
	if keyErr != nil {
		t.Fatalf("GenerateKey failed: %v", keyErr)
	}
	return key
}

func TestGenerateKey(t *testing.T) {
	priv := testKey(t)
	if priv.N.BitLen() < MinBits-1 {
		t.Errorf("Expected modulus bit length ~%d, got %d", MinBits, priv.N.BitLen())
	}
	if priv.N2.Cmp(new(big.Int).Mul(priv.N, priv.N)) != 0 {
		t.Errorf("N2 is not N*N")
	}

	_, err := GenerateKey(rand.Reader, 512)
	var cfgErr *fhe.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected a configuration error for a 512-bit key, got %v", err)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	priv := testKey(t)

	for _, msg := range []*big.Int{big.NewInt(0), big.NewInt(123456789), new(big.Int).Sub(priv.N, one)} {
		c, r, err := priv.Encrypt(msg)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		decrypted, err := priv.Decrypt(c)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if msg.Cmp(decrypted) != 0 {
			t.Errorf("Decryption failed. Expected %s, got %s", msg, decrypted)
		}

		again, err := priv.EncryptWithNonce(msg, r)
		if err != nil {
			t.Fatalf("EncryptWithNonce failed: %v", err)
		}
		if again.Cmp(c) != 0 {
			t.Errorf("Encryption with the returned nonce does not reproduce the ciphertext")
		}
	}

	if _, _, err := priv.Encrypt(priv.N); !errors.Is(err, fhe.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for m = N, got %v", err)
	}
	if _, err := priv.Decrypt(priv.N2); !errors.Is(err, fhe.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for c = N^2, got %v", err)
	}
}

func TestHomomorphicOps(t *testing.T) {
	priv := testKey(t)

	c1, _, _ := priv.Encrypt(big.NewInt(100))
	c2, _, _ := priv.Encrypt(big.NewInt(200))

	tests := []struct {
		name string
		c    *big.Int
		want *big.Int
	}{
		{"add", priv.Add(c1, c2), big.NewInt(300)},
		{"mul", priv.Mul(c1, big.NewInt(3)), big.NewInt(300)},
		{"neg", priv.Neg(c1), new(big.Int).Sub(priv.N, big.NewInt(100))},
		{"sub", priv.Add(c2, priv.Neg(c1)), big.NewInt(100)},
	}
	for _, tt := range tests {
		got, err := priv.Decrypt(tt.c)
		if err != nil {
			t.Fatalf("%s: Decrypt failed: %v", tt.name, err)
		}
		if got.Cmp(tt.want) != 0 {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestTrivialEncoding(t *testing.T) {
	priv := testKey(t)

	c, err := priv.EncryptWithNonce(big.NewInt(999), one)
	if err != nil {
		t.Fatalf("EncryptWithNonce failed: %v", err)
	}
	// with r = 1 the ciphertext is 1 + N*m
	want := new(big.Int).Mul(priv.N, big.NewInt(999))
	want.Add(want, one)
	if c.Cmp(want) != 0 {
		t.Errorf("Trivial encoding is not 1 + N*m")
	}
}
