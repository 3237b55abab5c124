package cipher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hexveil/obscura/internal/ir"
)

func layer(level ir.Level, iters int, key ir.Word) ir.Layer {
	return ir.Layer{Level: level, Iterations: iters, Key: key}
}

func TestRoundTripExhaustive8Bit(t *testing.T) {
	// Every representable 8-bit value, both levels, several counts.
	types := []ir.ScalarType{
		{Kind: ir.KindSigned, Bits: 8},
		{Kind: ir.KindUnsigned, Bits: 8},
	}
	for _, typ := range types {
		for _, level := range []ir.Level{ir.LevelLite, ir.LevelDeep} {
			for _, iters := range []int{1, 2, 7} {
				l := layer(level, iters, 0xABCDEF12)
				for v := 0; v < 256; v++ {
					w := ir.Word(v)
					enc := Encode(typ, w, l)
					assert.Equal(t, w, Decode(typ, enc, l),
						"%s %s iters=%d v=%d", typ, level, iters, v)
				}
			}
		}
	}
}

func TestRoundTripBoundaryValues(t *testing.T) {
	testCases := []struct {
		typ   ir.ScalarType
		words []ir.Word
	}{
		{ir.ScalarType{Kind: ir.KindSigned, Bits: 16}, []ir.Word{0, 1, 0x7FFF, 0x8000, 0xFFFF}},
		{ir.ScalarType{Kind: ir.KindSigned, Bits: 32}, []ir.Word{0, 1, 0x7FFFFFFF, 0x80000000, 0xFFFFFFFF, 0xDEADBEEF}},
		{ir.ScalarType{Kind: ir.KindSigned, Bits: 64}, []ir.Word{0, 1, 0x7FFFFFFFFFFFFFFF, 0x8000000000000000, ir.Word(^uint64(0))}},
		{ir.ScalarType{Kind: ir.KindUnsigned, Bits: 32}, []ir.Word{0, 1, 0xFFFFFFFF}},
	}

	for _, tc := range testCases {
		for _, level := range []ir.Level{ir.LevelLite, ir.LevelDeep} {
			for _, iters := range []int{1, 3} {
				l := layer(level, iters, 0x1234567890ABCDEF)
				for _, w := range tc.words {
					enc := Encode(tc.typ, w, l)
					assert.Equal(t, w, Decode(tc.typ, enc, l),
						"%s %s iters=%d w=%#x", tc.typ, level, iters, uint64(w))
				}
			}
		}
	}
}

func TestRoundTripFloatPatterns(t *testing.T) {
	f32 := ir.ScalarType{Kind: ir.KindFloat, Bits: 32}
	f64 := ir.ScalarType{Kind: ir.KindFloat, Bits: 64}

	floats := []float64{0, -0.0, 1.5, -2.25, math.Pi, math.Inf(1), math.Inf(-1), math.NaN()}
	l := layer(ir.LevelDeep, 3, 0xCAFEBABE)

	for _, f := range floats {
		w64 := f64.WordFromFloat(f)
		assert.Equal(t, w64, Decode(f64, Encode(f64, w64, l), l), "f64 pattern %#x", uint64(w64))

		w32 := f32.WordFromFloat(f)
		assert.Equal(t, w32, Decode(f32, Encode(f32, w32, l), l), "f32 pattern %#x", uint64(w32))
	}
}

func TestEncodeChangesValue(t *testing.T) {
	// Obscuring that leaves the plaintext in place defeats the purpose.
	typ := ir.ScalarType{Kind: ir.KindSigned, Bits: 32}
	l := layer(ir.LevelLite, 1, 0xFEEDFACE)
	assert.NotEqual(t, ir.Word(0xDEADBEEF), Encode(typ, 0xDEADBEEF, l))
}

func TestEncodeDeterministic(t *testing.T) {
	typ := ir.ScalarType{Kind: ir.KindUnsigned, Bits: 64}
	l := layer(ir.LevelDeep, 5, 0x42)

	first := Encode(typ, 0x123456789ABCDEF0, l)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Encode(typ, 0x123456789ABCDEF0, l))
	}
}

func TestEncodeMasksToWidth(t *testing.T) {
	typ := ir.ScalarType{Kind: ir.KindUnsigned, Bits: 8}
	l := layer(ir.LevelDeep, 2, 0x99)

	enc := Encode(typ, 0x7F, l)
	assert.LessOrEqual(t, uint64(enc), ir.Mask(8), "encoded word must fit the type width")
}

func TestLayeredLiteThenDeep(t *testing.T) {
	typ := ir.ScalarType{Kind: ir.KindSigned, Bits: 32}
	layers := []ir.Layer{
		layer(ir.LevelLite, 1, 0x1111),
		layer(ir.LevelDeep, 4, 0x2222),
	}

	w := ir.Word(0xDEADBEEF)
	enc := EncodeLayers(typ, w, layers)
	assert.NotEqual(t, w, enc)
	assert.Equal(t, w, DecodeLayers(typ, enc, layers))

	// Decoding in the wrong order must not accidentally work.
	wrong := []ir.Layer{layers[1], layers[0]}
	assert.NotEqual(t, w, DecodeLayers(typ, enc, wrong))
}

func TestKeyDerivation(t *testing.T) {
	v := &ir.Variable{Name: "x", Type: ir.ScalarType{Kind: ir.KindSigned, Bits: 32}, Init: ir.Const{Words: []ir.Word{1}}}
	id := ir.VariableID("u", "", v)

	kLite := VariableKey(7, id, ir.LevelLite)
	kDeep := VariableKey(7, id, ir.LevelDeep)
	assert.NotEqual(t, kLite, kDeep, "levels derive distinct keys")
	assert.NotEqual(t, kLite, VariableKey(8, id, ir.LevelLite), "seed changes the key")
	assert.Equal(t, kLite, VariableKey(7, id, ir.LevelLite), "derivation is pure")

	t32 := ir.ScalarType{Kind: ir.KindSigned, Bits: 32}
	u32 := ir.ScalarType{Kind: ir.KindUnsigned, Bits: 32}
	assert.NotEqual(t, TypeKey(7, t32, ir.LevelDeep), TypeKey(7, u32, ir.LevelDeep))
	assert.Equal(t, TypeKey(7, t32, ir.LevelDeep), TypeKey(7, t32, ir.LevelDeep))
}

func TestModInverse(t *testing.T) {
	for _, m := range []uint64{1, 3, deepMultiplier, 0xFFFFFFFFFFFFFFFF} {
		inv := modInverse(m)
		assert.Equal(t, uint64(1), m*inv, "m * m^-1 must be 1 mod 2^64 (m=%#x)", m)
	}
}
