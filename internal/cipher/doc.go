// Package cipher implements the encryption engine: reversible keyed
// encodings over storage words and the rewriting of variable storage and
// use sites.
//
// Two levels exist. Lite is a cheap xor-rotate pass; deep is an iterated
// multiply-xor-rotate with the multiplier's exact modular inverse on the
// decode path. Both operate on the low type-width bits of a storage word,
// so integers and IEEE float patterns go through the same transform.
//
// The binding contract is exact reversibility:
//
//	Decode(t, Encode(t, w, layer), layer) == w
//
// for every representable word w and every iteration count >= 1. There is
// no nonce and no entropy: keys derive from the policy seed and stable
// content-addressed identity, so two runs over the same input produce
// byte-identical output.
package cipher
