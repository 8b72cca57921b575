package sign

import (
	"math/big"

	"github.com/minio/sha256-simd"
)

// HashMessage returns the SHA-256 digest of msg.
func HashMessage(msg []byte) []byte {
	h := sha256.Sum256(msg)
	return h[:]
}

// DigestToInt converts a hash to an integer using its leftmost bitlen(n)
// bits. The result is not reduced modulo n.
func DigestToInt(hash []byte, n *big.Int) *big.Int {
	orderBits := n.BitLen()
	orderBytes := (orderBits + 7) / 8
	if len(hash) > orderBytes {
		hash = hash[:orderBytes]
	}
	z := new(big.Int).SetBytes(hash)
	if excess := len(hash)*8 - orderBits; excess > 0 {
		z.Rsh(z, uint(excess))
	}
	return z
}
