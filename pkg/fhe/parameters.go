package fhe

import "sort"

// Parameter sets known to the engine. Names follow the TFHE shortint
// convention of spelling out the message and carry moduli in bits.
var (
	// ParamSimMessage16Carry16 is the default simulated parameter set. The
	// 32-bit plaintext space fits 16-bit limbs with room for column carries.
	ParamSimMessage16Carry16 = Descriptor{
		Name:           "sim_message_16_carry_16",
		MessageModulus: 1 << 16,
		CarryModulus:   1 << 16,
		MaxNoise:       12,
		Cost:           NoiseCost{Add: 1, MulPlain: 2, MulCipher: 4, Select: 4},
		Capabilities:   CapAll,
	}

	// ParamSimMessage8Carry8 yields narrow limbs and many more of them.
	ParamSimMessage8Carry8 = Descriptor{
		Name:           "sim_message_8_carry_8",
		MessageModulus: 1 << 8,
		CarryModulus:   1 << 8,
		MaxNoise:       12,
		Cost:           NoiseCost{Add: 1, MulPlain: 2, MulCipher: 4, Select: 4},
		Capabilities:   CapAll,
	}

	// ParamMessage2Carry2 is the shape of the common TFHE shortint default.
	// Its 4-bit plaintext space cannot hold a limb product plus carries.
	ParamMessage2Carry2 = Descriptor{
		Name:           "message_2_carry_2",
		MessageModulus: 1 << 2,
		CarryModulus:   1 << 2,
		MaxNoise:       5,
		Cost:           NoiseCost{Add: 1, MulPlain: 1, MulCipher: 3, Select: 3},
		Capabilities:   CapAll,
	}

	// ParamPaillierMessage16Carry16 frames the Paillier backend. Paillier
	// arithmetic is exact so operations cost nothing; the plaintext space is
	// still reduced modulo 2^32 by the key holder on every refresh.
	ParamPaillierMessage16Carry16 = Descriptor{
		Name:           "paillier_message_16_carry_16",
		MessageModulus: 1 << 16,
		CarryModulus:   1 << 16,
		MaxNoise:       1 << 20,
		Cost:           NoiseCost{},
		Capabilities:   CapAll,
	}
)

var knownParams = map[string]Descriptor{
	ParamSimMessage16Carry16.Name:      ParamSimMessage16Carry16,
	ParamSimMessage8Carry8.Name:        ParamSimMessage8Carry8,
	ParamMessage2Carry2.Name:           ParamMessage2Carry2,
	ParamPaillierMessage16Carry16.Name: ParamPaillierMessage16Carry16,
}

// ParametersByName returns the parameter set registered under name.
func ParametersByName(name string) (Descriptor, error) {
	d, ok := knownParams[name]
	if !ok {
		return Descriptor{}, NewConfigurationError("params", "unknown parameter set "+name, ErrInvalidParameters)
	}
	return d, nil
}

// ParameterNames lists the registered parameter sets in lexical order.
func ParameterNames() []string {
	names := make([]string, 0, len(knownParams))
	for n := range knownParams {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
