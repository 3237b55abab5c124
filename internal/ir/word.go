package ir

import "math"

// Mask returns the low-bits mask for a width. Width 64 masks nothing.
func Mask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(bits)) - 1
}

// Trunc truncates a word to the type's width. For floats the word already
// holds an exact-width IEEE pattern, so truncation is still a pure mask.
func (t ScalarType) Trunc(w Word) Word {
	return Word(uint64(w) & Mask(t.Bits))
}

// SignExtend interprets the low type-width bits of w as a signed integer
// and returns its int64 value. Meaningful for KindSigned only.
func (t ScalarType) SignExtend(w Word) int64 {
	shift := uint(64 - t.Bits)
	return int64(uint64(w)<<shift) >> shift
}

// FloatValue decodes a float-typed word to float64. Width 32 patterns are
// stored in the low 32 bits.
func (t ScalarType) FloatValue(w Word) float64 {
	if t.Bits == 32 {
		return float64(math.Float32frombits(uint32(w)))
	}
	return math.Float64frombits(uint64(w))
}

// WordFromFloat encodes a float64 into a float-typed word, narrowing to
// the 32-bit pattern when the type is f32.
func (t ScalarType) WordFromFloat(f float64) Word {
	if t.Bits == 32 {
		return Word(math.Float32bits(float32(f)))
	}
	return Word(math.Float64bits(f))
}
