package qhash

import "encoding/binary"

const (
	// FractionBits is the number of fractional bits of the Q0.15 encoding
	FractionBits = 15

	// FixedSize is the serialized width of one fixed-point value
	FixedSize = 2

	fixedOne = 1 << FractionBits
)

// Fixed is a signed Q0.15 fixed-point value.
type Fixed int16

// ToFixed converts an expectation value to Q0.15.
//
// The value is scaled by 2^15, offset by half a step away from zero and
// truncated, then narrowed to 16 bits with two's-complement wrap. Inputs at or
// above 1-2^-16 (including +1.0) therefore land on the raw value -32768, the
// same grid point as -1.0. Nodes compute this step with an out-of-range
// double to int16 cast, which C++ leaves undefined; x86 truncation
// (cvttsd2si) yields -32768. This function reproduces the x86 result and is
// not derived from a portable guarantee.
func ToFixed(v float64) Fixed {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	scaled := float64(v * fixedOne)
	if v >= 0 {
		scaled += 0.5
	} else {
		scaled -= 0.5
	}
	return Fixed(int16(int32(scaled)))
}

// Float64 returns the real value of f.
func (f Fixed) Float64() float64 {
	return float64(f) / fixedOne
}

// AppendBytes appends the little-endian encoding of f to dst.
func (f Fixed) AppendBytes(dst []byte) []byte {
	return binary.LittleEndian.AppendUint16(dst, uint16(f))
}

// FixedFromBytes decodes a little-endian Q0.15 value.
func FixedFromBytes(b []byte) Fixed {
	return Fixed(int16(binary.LittleEndian.Uint16(b)))
}

// EncodeExpectations serializes every expectation in qubit order and counts
// the encoded bytes that are exactly zero.
func EncodeExpectations(exps []float64) (encoded []byte, zeroes int) {
	encoded = make([]byte, 0, len(exps)*FixedSize)
	for _, e := range exps {
		encoded = ToFixed(e).AppendBytes(encoded)
	}
	for _, b := range encoded {
		if b == 0 {
			zeroes++
		}
	}
	return encoded, zeroes
}
