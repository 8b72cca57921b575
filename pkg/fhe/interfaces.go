// Package fhe defines the capability set the engine consumes from a fully
// homomorphic encryption backend.
//
// The engine never looks inside a ciphertext. It only asks the backend to
// combine ciphertexts and reads the backend's Descriptor to size limbs and to
// schedule refreshes.
package fhe

import (
	"context"
	"fmt"
	"math/bits"
)

// Ciphertext is an opaque handle produced by a Backend. It holds one small
// integer in [0, T) where T is the backend's plaintext modulus. Handles are
// never mutated in place; every operation returns a new one.
type Ciphertext interface{}

// LookupTable is the univariate function a programmable bootstrap evaluates
// on the plaintext while refreshing the ciphertext. Inputs lie in [0, T) and
// outputs are taken modulo T.
type LookupTable func(uint64) uint64

// Identity is the lookup table of a plain refresh.
func Identity(x uint64) uint64 { return x }

// Backend is the external FHE scheme. Arithmetic is modulo the plaintext
// modulus T = MessageModulus * CarryModulus.
type Backend interface {
	// Descriptor reports the plaintext space, the noise model and the
	// operations the backend supports.
	Descriptor() Descriptor

	// Encrypt encrypts m, which must be in [0, T).
	Encrypt(m uint64) (Ciphertext, error)

	// Trivial returns a noiseless encryption of a public constant.
	Trivial(m uint64) (Ciphertext, error)

	// Add returns an encryption of a + b mod T.
	Add(a, b Ciphertext) (Ciphertext, error)

	// Sub returns an encryption of a - b mod T.
	Sub(a, b Ciphertext) (Ciphertext, error)

	// MulPlain returns an encryption of a * k mod T.
	MulPlain(a Ciphertext, k uint64) (Ciphertext, error)

	// MulCipher returns an encryption of a * b mod T.
	MulCipher(a, b Ciphertext) (Ciphertext, error)

	// Select returns an encryption of a when cond encrypts 1 and of b when
	// cond encrypts 0, without revealing which.
	Select(cond, a, b Ciphertext) (Ciphertext, error)

	// Bootstrap refreshes a, resetting its noise, and applies lut to the
	// plaintext on the way. It is the only call expected to be slow.
	Bootstrap(ctx context.Context, a Ciphertext, lut LookupTable) (Ciphertext, error)
}

// Decryptor recovers plaintexts. The engine never uses it; it exists for
// tests, debugging and the process boundary.
type Decryptor interface {
	Decrypt(c Ciphertext) (uint64, error)
}

// Capability is a bit set of backend operations.
type Capability uint32

const (
	CapEncrypt Capability = 1 << iota
	CapAdd
	CapSub
	CapMulPlain
	CapMulCipher
	CapSelect
	CapBootstrap
)

// CapAll is the full capability set required by the engine.
const CapAll = CapEncrypt | CapAdd | CapSub | CapMulPlain | CapMulCipher | CapSelect | CapBootstrap

var capNames = []struct {
	c    Capability
	name string
}{
	{CapEncrypt, "encrypt"},
	{CapAdd, "add"},
	{CapSub, "sub"},
	{CapMulPlain, "mul_plain"},
	{CapMulCipher, "mul_cipher"},
	{CapSelect, "select"},
	{CapBootstrap, "bootstrap"},
}

func (c Capability) String() string {
	s := ""
	for _, n := range capNames {
		if c&n.c == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n.name
	}
	if s == "" {
		return "none"
	}
	return s
}

// NoiseCost is the noise an operation adds on top of its noisiest operand.
type NoiseCost struct {
	Add       int
	MulPlain  int
	MulCipher int
	Select    int
}

// Max returns the largest single-operation cost.
func (c NoiseCost) Max() int {
	return max(c.Add, c.MulPlain, c.MulCipher, c.Select)
}

// Descriptor describes a backend's plaintext space and noise model.
//
// Fresh, trivial and bootstrapped ciphertexts carry noise 0. An operation's
// result carries the maximum noise of its operands plus the operation's cost.
// A ciphertext whose noise exceeds MaxNoise is no longer guaranteed to
// decrypt correctly.
type Descriptor struct {
	Name           string
	MessageModulus uint64
	CarryModulus   uint64
	MaxNoise       int
	Cost           NoiseCost
	Capabilities   Capability
}

// PlaintextModulus returns T = MessageModulus * CarryModulus.
func (d Descriptor) PlaintextModulus() uint64 {
	return d.MessageModulus * d.CarryModulus
}

// PlaintextBits returns log2(T).
func (d Descriptor) PlaintextBits() int {
	return bits.TrailingZeros64(d.PlaintextModulus())
}

// Has reports whether every capability in c is supported.
func (d Descriptor) Has(c Capability) bool {
	return d.Capabilities&c == c
}

// Validate checks that the descriptor is usable by the engine.
func (d Descriptor) Validate() error {
	if d.MessageModulus < 2 || d.MessageModulus&(d.MessageModulus-1) != 0 {
		return NewCapabilityError(d.Name, fmt.Sprintf("message modulus %d is not a power of two", d.MessageModulus), ErrPlaintextSpace)
	}
	if d.CarryModulus < 1 || d.CarryModulus&(d.CarryModulus-1) != 0 {
		return NewCapabilityError(d.Name, fmt.Sprintf("carry modulus %d is not a power of two", d.CarryModulus), ErrPlaintextSpace)
	}
	if bits.Len64(d.MessageModulus)-1+bits.Len64(d.CarryModulus)-1 > 32 {
		return NewCapabilityError(d.Name, "plaintext space wider than 32 bits", ErrPlaintextSpace)
	}
	if missing := CapAll &^ d.Capabilities; missing != 0 {
		return NewCapabilityError(d.Name, "missing "+missing.String(), ErrMissingCapability)
	}
	if d.MaxNoise < 0 {
		return NewCapabilityError(d.Name, "negative noise budget", ErrNoiseBudget)
	}
	if c := d.Cost.Max(); c > d.MaxNoise {
		return NewCapabilityError(d.Name, fmt.Sprintf("a single operation costs %d but the budget is %d", c, d.MaxNoise), ErrNoiseBudget)
	}
	return nil
}
