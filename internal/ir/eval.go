package ir

import "fmt"

// EvalBin computes a binary operation over two storage words of type t.
//
// Integer ops work on the low type-width bits and mask the result back to
// width; "shr" is arithmetic for signed types and logical otherwise.
// Float ops operate on the decoded IEEE values and re-encode the result;
// shifts and bitwise ops on floats are rejected.
func EvalBin(op string, t ScalarType, l, r Word) (Word, error) {
	if t.Kind == KindFloat {
		return evalFloatBin(op, t, l, r)
	}

	a := uint64(l) & Mask(t.Bits)
	b := uint64(r) & Mask(t.Bits)
	var v uint64
	switch op {
	case "add":
		v = a + b
	case "sub":
		v = a - b
	case "mul":
		v = a * b
	case "xor":
		v = a ^ b
	case "and":
		v = a & b
	case "or":
		v = a | b
	case "shl":
		v = shiftLeft(a, b, t.Bits)
	case "shr":
		if t.Kind == KindSigned {
			v = shiftRightArith(a, b, t)
		} else {
			v = shiftRightLogical(a, b, t.Bits)
		}
	default:
		return 0, fmt.Errorf("eval: unknown op %q", op)
	}
	return Word(v & Mask(t.Bits)), nil
}

func evalFloatBin(op string, t ScalarType, l, r Word) (Word, error) {
	a := t.FloatValue(l)
	b := t.FloatValue(r)
	var v float64
	switch op {
	case "add":
		v = a + b
	case "sub":
		v = a - b
	case "mul":
		v = a * b
	default:
		return 0, fmt.Errorf("eval: op %q not defined for %s", op, t)
	}
	return t.WordFromFloat(v), nil
}

// Shift counts at or beyond the type width produce 0 (or the sign fill
// for arithmetic right shifts), matching a well-defined saturating
// reading rather than hardware-specific wraparound.

func shiftLeft(a, b uint64, bits int) uint64 {
	if b >= uint64(bits) {
		return 0
	}
	return a << b
}

func shiftRightLogical(a, b uint64, bits int) uint64 {
	if b >= uint64(bits) {
		return 0
	}
	return a >> b
}

func shiftRightArith(a, b uint64, t ScalarType) uint64 {
	s := t.SignExtend(Word(a))
	if b >= uint64(t.Bits) {
		b = uint64(t.Bits - 1)
	}
	return uint64(s>>b) & Mask(t.Bits)
}
