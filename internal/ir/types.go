package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a scalar type.
type Kind string

const (
	KindSigned   Kind = "sint"
	KindUnsigned Kind = "uint"
	KindFloat    Kind = "float"
)

// ValidKinds defines allowed type kinds.
var ValidKinds = map[Kind]bool{
	KindSigned:   true,
	KindUnsigned: true,
	KindFloat:    true,
}

// ScalarType is a machine scalar: kind plus bit width.
// Integers may be 8/16/32/64 bits; floats 32 or 64 only.
type ScalarType struct {
	Kind Kind `json:"kind"`
	Bits int  `json:"bits"`
}

// Valid reports whether the type is a representable machine scalar.
func (t ScalarType) Valid() bool {
	if !ValidKinds[t.Kind] {
		return false
	}
	if t.Kind == KindFloat {
		return t.Bits == 32 || t.Bits == 64
	}
	return t.Bits == 8 || t.Bits == 16 || t.Bits == 32 || t.Bits == 64
}

// String returns a short type spelling like "i32", "u8", or "f64".
func (t ScalarType) String() string {
	prefix := map[Kind]string{KindSigned: "i", KindUnsigned: "u", KindFloat: "f"}[t.Kind]
	if prefix == "" {
		prefix = "?"
	}
	return prefix + strconv.Itoa(t.Bits)
}

// Scope identifies where a variable's storage lives.
type Scope string

const (
	// ScopeGlobal is static global storage, eligible for encryption.
	ScopeGlobal Scope = "global_static"

	// ScopeLocalPromotable is a function-local constant binding that the
	// promotion pass may relocate into global storage.
	ScopeLocalPromotable Scope = "local_promotable"

	// ScopeLocalOrdinary is a function-local the pipeline never touches.
	ScopeLocalOrdinary Scope = "local_ordinary"
)

// ValidScopes defines allowed variable scopes.
var ValidScopes = map[Scope]bool{
	ScopeGlobal:          true,
	ScopeLocalPromotable: true,
	ScopeLocalOrdinary:   true,
}

// Decision is the resolved per-variable filtering outcome.
// A variable's decision is computed exactly once; later stages never
// revise it.
type Decision string

const (
	DecisionUnresolved Decision = ""
	DecisionExcluded   Decision = "excluded"
	DecisionLiteOnly   Decision = "lite"
	DecisionDeepOnly   Decision = "deep"
	DecisionLiteDeep   Decision = "lite_deep"
)

// Level names an encoding strength.
type Level string

const (
	// LevelLite is the cheap single-pass transform.
	LevelLite Level = "lite"

	// LevelDeep is the heavier iterated transform.
	LevelDeep Level = "deep"
)

// DirectiveSet holds the explicit per-variable overrides. Directives always
// take precedence over every global policy knob; see the resolve package
// for how the two physical encodings (global annotations, local markers)
// are normalized into this one form.
type DirectiveSet struct {
	NoEncrypt    bool `json:"no_encrypt,omitempty"`
	ForcePromote bool `json:"force_promote,omitempty"`
	NoPromote    bool `json:"no_promote,omitempty"`
}

// IsZero reports whether no directive is set.
func (d DirectiveSet) IsZero() bool {
	return !d.NoEncrypt && !d.ForcePromote && !d.NoPromote
}

// Union returns the set with every directive present in either operand.
func (d DirectiveSet) Union(o DirectiveSet) DirectiveSet {
	return DirectiveSet{
		NoEncrypt:    d.NoEncrypt || o.NoEncrypt,
		ForcePromote: d.ForcePromote || o.ForcePromote,
		NoPromote:    d.NoPromote || o.NoPromote,
	}
}

// Word is a 64-bit storage word. Integers are stored two's-complement in
// the low bits; floats are stored as their IEEE-754 bit pattern widened
// into the low bits. Words marshal as hex strings - a JSON number cannot
// carry 64 significant bits.
type Word uint64

// MarshalJSON implements json.Marshaler: lowercase 0x-prefixed hex.
func (w Word) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", "0x"+strconv.FormatUint(uint64(w), 16))), nil
}

// UnmarshalJSON accepts 0x-prefixed hex strings.
func (w *Word) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if !strings.HasPrefix(s, "0x") {
		return fmt.Errorf("word %q: missing 0x prefix", s)
	}
	v, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return fmt.Errorf("word %q: %w", s, err)
	}
	*w = Word(v)
	return nil
}

// Const is a compile-time initializer: one word per element, a single word
// for scalars. The element type lives on the owning Variable.
type Const struct {
	Words []Word `json:"words"`
}

// Scalar returns the single word of a scalar constant.
func (c Const) Scalar() Word {
	if len(c.Words) != 1 {
		return 0
	}
	return c.Words[0]
}

// Equal reports bit-exact equality of two constants.
func (c Const) Equal(o Const) bool {
	if len(c.Words) != len(o.Words) {
		return false
	}
	for i := range c.Words {
		if c.Words[i] != o.Words[i] {
			return false
		}
	}
	return true
}

// Layer records one applied encoding layer: level, iteration count, and
// the derived key. Decoding applies layers in reverse order of encoding.
type Layer struct {
	Level      Level `json:"level"`
	Iterations int   `json:"iterations"`
	Key        Word  `json:"key"`
}

// Encoding records the full applied encoding for a rewritten variable.
// Layers are listed in encode order; Layers[0] was applied first.
type Encoding struct {
	Layers []Layer `json:"layers"`
}

// Variable describes one storage location considered by the pipeline.
//
// Annotations carries the raw directive tokens attached to a global
// declaration by the front-end; local directives arrive as Func.Markers
// instead. The resolve package folds both into Directives. Decision and
// Enc are outputs: Decision is set by the filter engine, Enc by the
// encryption engine when the variable is rewritten.
type Variable struct {
	Name        string       `json:"name"`
	Scope       Scope        `json:"scope"`
	Type        ScalarType   `json:"type"`
	IsArray     bool         `json:"is_array,omitempty"`
	Len         int          `json:"len,omitempty"`
	Init        Const        `json:"init"`
	Annotations []string     `json:"annotations,omitempty"`
	Directives  DirectiveSet `json:"directives,omitzero"`
	Decision    Decision     `json:"decision,omitempty"`
	Enc         *Encoding    `json:"enc,omitempty"`
}

// ElementCount returns 1 for scalars and Len for arrays.
func (v *Variable) ElementCount() int {
	if v.IsArray {
		return v.Len
	}
	return 1
}

// Marker is an intrinsic-style directive attached to a local variable
// inside a function body, the local counterpart of a global annotation.
type Marker struct {
	Var   string `json:"var"`
	Token string `json:"token"`
}

// Func is one function: its local variables, local directive markers,
// and a body of statements whose loads the pipeline rewrites.
type Func struct {
	Name    string      `json:"name"`
	Locals  []*Variable `json:"locals,omitempty"`
	Markers []Marker    `json:"markers,omitempty"`
	Body    []Stmt      `json:"body,omitempty"`
}

// Local returns the named local variable, or nil.
func (f *Func) Local(name string) *Variable {
	for _, v := range f.Locals {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// DecoderSig is a shared decode routine emitted into the unit when policy
// routes deep decoding through one routine per type signature instead of
// inline expansion.
type DecoderSig struct {
	Name  string     `json:"name"`
	Type  ScalarType `json:"type"`
	Layer Layer      `json:"layer"`
}

// Unit is one program unit: the granularity of a pipeline run. Globals
// and Funcs are in declaration order, and that order is load-bearing -
// every pipeline stage iterates it as-is for deterministic output.
type Unit struct {
	Name     string       `json:"name"`
	Globals  []*Variable  `json:"globals"`
	Funcs    []*Func      `json:"funcs,omitempty"`
	Decoders []DecoderSig `json:"decoders,omitempty"`
}

// Global returns the named global variable, or nil.
func (u *Unit) Global(name string) *Variable {
	for _, v := range u.Globals {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// Decoder returns the named shared decode routine, or nil.
func (u *Unit) Decoder(name string) *DecoderSig {
	for i := range u.Decoders {
		if u.Decoders[i].Name == name {
			return &u.Decoders[i]
		}
	}
	return nil
}
