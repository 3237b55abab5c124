package ir

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical serialized form of a unit.
// CRITICAL: This is the ONLY serialization that should be used for
// content hashing and golden-file comparison.
//
// Canonical form properties:
//  1. All identifier strings are NFC normalized
//  2. No HTML escaping (< > & are NOT escaped)
//  3. All 64-bit words render as hex strings, never numbers
//  4. Field order is fixed by struct definition; the IR has no maps, so
//     encoding order is fully determined by declaration order
//
// Two pipeline runs over the same unit and policy must produce
// byte-identical canonical output.
func MarshalCanonical(u *Unit) ([]byte, error) {
	n := u.normalized()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // <, >, & must NOT be escaped
	if err := enc.Encode(n); err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}

	// json.Encoder adds a trailing newline, remove it
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	return out, nil
}

// normalized returns a deep copy of the unit with every identifier string
// NFC normalized. The copy leaves the receiver untouched - canonical
// marshaling must not mutate pipeline state.
func (u *Unit) normalized() *Unit {
	out := &Unit{
		Name:     norm.NFC.String(u.Name),
		Globals:  make([]*Variable, len(u.Globals)),
		Funcs:    make([]*Func, len(u.Funcs)),
		Decoders: make([]DecoderSig, len(u.Decoders)),
	}
	for i, v := range u.Globals {
		out.Globals[i] = v.normalized()
	}
	for i, f := range u.Funcs {
		out.Funcs[i] = f.normalized()
	}
	for i, d := range u.Decoders {
		d.Name = norm.NFC.String(d.Name)
		out.Decoders[i] = d
	}
	if len(out.Funcs) == 0 {
		out.Funcs = nil
	}
	if len(out.Decoders) == 0 {
		out.Decoders = nil
	}
	return out
}

func (v *Variable) normalized() *Variable {
	cp := *v
	cp.Name = norm.NFC.String(v.Name)
	if len(v.Annotations) > 0 {
		cp.Annotations = make([]string, len(v.Annotations))
		for i, a := range v.Annotations {
			cp.Annotations[i] = norm.NFC.String(a)
		}
	}
	cp.Init = Const{Words: append([]Word(nil), v.Init.Words...)}
	if v.Enc != nil {
		enc := Encoding{Layers: append([]Layer(nil), v.Enc.Layers...)}
		cp.Enc = &enc
	}
	return &cp
}

func (f *Func) normalized() *Func {
	cp := &Func{
		Name:    norm.NFC.String(f.Name),
		Locals:  make([]*Variable, len(f.Locals)),
		Markers: make([]Marker, len(f.Markers)),
		Body:    f.Body, // statements hold no mutable identifier state worth copying
	}
	for i, v := range f.Locals {
		cp.Locals[i] = v.normalized()
	}
	for i, m := range f.Markers {
		cp.Markers[i] = Marker{Var: norm.NFC.String(m.Var), Token: norm.NFC.String(m.Token)}
	}
	if len(cp.Locals) == 0 {
		cp.Locals = nil
	}
	if len(cp.Markers) == 0 {
		cp.Markers = nil
	}
	return cp
}
