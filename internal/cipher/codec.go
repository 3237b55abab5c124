package cipher

import (
	"github.com/hexveil/obscura/internal/ir"
)

// deepMultiplier is the odd constant for the deep level's multiply step.
// Odd in every width, so the modular inverse exists mod 2^bits for all
// machine widths.
const deepMultiplier uint64 = 0x9E3779B97F4A7C15

// VariableKey derives the per-variable base key for a level from the
// policy seed and the variable's content-addressed identity.
func VariableKey(seed uint64, id string, level ir.Level) ir.Word {
	return ir.Word(ir.Mix64(seed ^ ir.IDWord(id) ^ levelSalt(level)))
}

// TypeKey derives the per-type-signature key used when deep decoding is
// routed through a shared routine: every variable of the type must share
// the key the routine embeds.
func TypeKey(seed uint64, t ir.ScalarType, level ir.Level) ir.Word {
	var kind uint64
	switch t.Kind {
	case ir.KindSigned:
		kind = 1
	case ir.KindUnsigned:
		kind = 2
	case ir.KindFloat:
		kind = 3
	}
	return ir.Word(ir.Mix64(seed ^ kind<<32 ^ uint64(t.Bits) ^ levelSalt(level)))
}

func levelSalt(level ir.Level) uint64 {
	if level == ir.LevelDeep {
		return 0xD1B54A32D192ED03
	}
	return 0x8BB84B93962EEFC9
}

// roundKey expands a base key into the key for one iteration.
func roundKey(key ir.Word, round int) uint64 {
	return ir.Mix64(uint64(key) + uint64(round)*0x632BE59BD9B4E019)
}

// rotl rotates the low `bits` bits of v left by n. n may exceed bits.
func rotl(v uint64, n, bits int) uint64 {
	mask := ir.Mask(bits)
	v &= mask
	n %= bits
	if n == 0 {
		return v
	}
	return ((v << uint(n)) | (v >> uint(bits-n))) & mask
}

// rotr rotates the low `bits` bits of v right by n.
func rotr(v uint64, n, bits int) uint64 {
	n %= bits
	return rotl(v, bits-n, bits)
}

// modInverse computes the multiplicative inverse of an odd m modulo 2^64
// by Newton iteration. Masking the result to a narrower width yields the
// inverse modulo 2^bits, since arithmetic mod 2^64 reduces cleanly.
func modInverse(m uint64) uint64 {
	inv := m // correct mod 2^3
	for i := 0; i < 5; i++ {
		inv *= 2 - m*inv // doubles the valid bit count each step
	}
	return inv
}

// Encode applies one encoding layer to a storage word. The word's value
// occupies the low t.Bits bits; higher bits are cleared on the way out.
func Encode(t ir.ScalarType, w ir.Word, layer ir.Layer) ir.Word {
	v := uint64(w) & ir.Mask(t.Bits)
	for i := 0; i < layer.Iterations; i++ {
		k := roundKey(layer.Key, i)
		switch layer.Level {
		case ir.LevelDeep:
			v = (v * deepMultiplier) & ir.Mask(t.Bits)
			v ^= k & ir.Mask(t.Bits)
			v = rotl(v, int(k>>58)+1, t.Bits)
		default: // lite
			v ^= k & ir.Mask(t.Bits)
			v = rotl(v, int(k>>58)+1, t.Bits)
		}
	}
	return ir.Word(v)
}

// Decode inverts Encode exactly: rounds run in reverse and each step's
// inverse applies in reverse order within the round.
func Decode(t ir.ScalarType, w ir.Word, layer ir.Layer) ir.Word {
	v := uint64(w) & ir.Mask(t.Bits)
	inv := modInverse(deepMultiplier)
	for i := layer.Iterations - 1; i >= 0; i-- {
		k := roundKey(layer.Key, i)
		switch layer.Level {
		case ir.LevelDeep:
			v = rotr(v, int(k>>58)+1, t.Bits)
			v ^= k & ir.Mask(t.Bits)
			v = (v * inv) & ir.Mask(t.Bits)
		default: // lite
			v = rotr(v, int(k>>58)+1, t.Bits)
			v ^= k & ir.Mask(t.Bits)
		}
	}
	return ir.Word(v)
}

// EncodeLayers applies layers in order: layers[0] first, exactly the
// order recorded in ir.Encoding.
func EncodeLayers(t ir.ScalarType, w ir.Word, layers []ir.Layer) ir.Word {
	for _, l := range layers {
		w = Encode(t, w, l)
	}
	return w
}

// DecodeLayers inverts EncodeLayers: layers are undone in reverse order.
func DecodeLayers(t ir.ScalarType, w ir.Word, layers []ir.Layer) ir.Word {
	for i := len(layers) - 1; i >= 0; i-- {
		w = Decode(t, w, layers[i])
	}
	return w
}
