package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainVariable = "obscura/variable/v1"
	DomainConst    = "obscura/const/v1"
	DomainUnit     = "obscura/unit/v1"
	DomainPolicy   = "obscura/policy/v1"
)

// HashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// VariableID computes the stable content-addressed identity of a variable.
//
// The identity covers the unit, enclosing function (empty for globals),
// name, type, and initializer bytes - everything that makes the variable
// "the same variable" across runs. It deliberately EXCLUDES scope,
// directives, decisions, and encodings: those are pipeline outputs, and
// a promoted variable must keep the identity it had as a local so that
// probabilistic promotion sampling is stable across runs.
func VariableID(unitName, funcName string, v *Variable) string {
	buf := make([]byte, 0, 64)
	buf = appendField(buf, unitName)
	buf = appendField(buf, funcName)
	buf = appendField(buf, v.Name)
	buf = appendField(buf, string(v.Type.Kind))
	buf = appendField(buf, strconv.Itoa(v.Type.Bits))
	if v.IsArray {
		buf = appendField(buf, strconv.Itoa(v.Len))
	}
	for _, w := range v.Init.Words {
		buf = binary.BigEndian.AppendUint64(buf, uint64(w))
	}
	return HashWithDomain(DomainVariable, buf)
}

// ConstKey computes the dedup key of a constant: identical type and
// identical value bytes produce identical keys.
func ConstKey(t ScalarType, c Const) string {
	buf := make([]byte, 0, 16+8*len(c.Words))
	buf = appendField(buf, string(t.Kind))
	buf = appendField(buf, strconv.Itoa(t.Bits))
	for _, w := range c.Words {
		buf = binary.BigEndian.AppendUint64(buf, uint64(w))
	}
	return HashWithDomain(DomainConst, buf)
}

// UnitHash computes the content hash of a whole unit's canonical form.
// Stored in run reports so determinism is auditable after the fact.
func UnitHash(u *Unit) (string, error) {
	data, err := MarshalCanonical(u)
	if err != nil {
		return "", fmt.Errorf("unit hash: %w", err)
	}
	return HashWithDomain(DomainUnit, data), nil
}

// IDWord folds a hex identity string into a 64-bit word, used to key the
// deterministic promotion sampler and per-variable key derivation.
// Panics on malformed input; identities always come from VariableID.
func IDWord(id string) uint64 {
	if len(id) < 16 {
		panic(fmt.Sprintf("ir: identity %q too short", id))
	}
	raw, err := hex.DecodeString(id[:16])
	if err != nil {
		panic(fmt.Sprintf("ir: identity %q not hex: %v", id, err))
	}
	return binary.BigEndian.Uint64(raw)
}

// Mix64 is the SplitMix64 finalizer: a bijective 64-bit mix. It is the
// deterministic entropy source for promotion sampling and key derivation -
// a pure function of its input, never of uncontrolled runtime state.
func Mix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

// appendField appends a length-prefixed string field, preventing boundary
// ambiguity between adjacent fields.
func appendField(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
