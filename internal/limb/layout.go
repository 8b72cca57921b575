package limb

import (
	"fmt"

	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// Layout fixes how an integer is cut into limbs. Limbs are little-endian:
// index 0 holds the least significant Width bits.
type Layout struct {
	Width uint
	Count int
}

// Mask returns 2^Width - 1, the largest clean digit.
func (l Layout) Mask() uint64 { return 1<<l.Width - 1 }

// Base returns 2^Width.
func (l Layout) Base() uint64 { return 1 << l.Width }

// Bits returns the capacity Width*Count.
func (l Layout) Bits() int { return int(l.Width) * l.Count }

// ChooseLayout picks the widest limb such that a product of two digits fits
// the plaintext space and a schoolbook column of 2*Count+4 digits does too.
func ChooseLayout(desc fhe.Descriptor, modulusBits int) (Layout, error) {
	if modulusBits <= 0 {
		return Layout{}, fhe.NewConfigurationError("modulus", fmt.Sprintf("bit length %d", modulusBits), fhe.ErrInvalidParameters)
	}
	t := desc.PlaintextModulus()
	for w := uint(desc.PlaintextBits() / 2); w >= 2; w-- {
		count := (modulusBits + int(w) - 1) / int(w)
		if uint64(1)<<(2*w) > t {
			continue
		}
		if uint64(2*count+4)<<w > t {
			continue
		}
		return Layout{Width: w, Count: count}, nil
	}
	return Layout{}, fhe.NewCapabilityError(desc.Name,
		fmt.Sprintf("no limb width fits a %d-bit modulus in a %d-bit plaintext space", modulusBits, desc.PlaintextBits()),
		fhe.ErrPlaintextSpace)
}
