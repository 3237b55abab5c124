package pipeline

import (
	"fmt"
	"strings"

	"github.com/hexveil/obscura/internal/cipher"
	"github.com/hexveil/obscura/internal/ir"
)

// VerifyError reports one way a transformed unit fails verification.
type VerifyError struct {
	Code     VerifyCode
	Variable string
	Message  string
}

// VerifyCode categorizes verification failures.
type VerifyCode string

const (
	// VerifyStorageMismatch: decoding a global's stored words did not
	// reproduce its pre-transformation value.
	VerifyStorageMismatch VerifyCode = "STORAGE_MISMATCH"

	// VerifyBareRead: a read site loads obscured storage without a
	// decode wrapper.
	VerifyBareRead VerifyCode = "BARE_READ"

	// VerifyWrongLayers: a read site's decode chain does not invert
	// the storage encoding.
	VerifyWrongLayers VerifyCode = "WRONG_LAYERS"

	// VerifyUnknownRoutine: a decode node references a shared routine
	// the unit does not declare.
	VerifyUnknownRoutine VerifyCode = "UNKNOWN_ROUTINE"
)

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Variable, e.Message)
}

// Verify checks a transformed unit against its pre-transformation
// original. Two properties are checked for every obscured global:
//
//  1. Storage: applying the recorded decode layers to the stored words
//     reproduces the original initializer, element by element.
//  2. Read sites: every load of obscured storage sits under a decode
//     chain that exactly inverts the recorded encoding. Lite steps may
//     appear inline and deep steps via a declared shared routine.
//
// Promoted globals have no original counterpart under their own name;
// their plaintext is looked up at the originating local binding.
// Operation-result promotions have no plaintext binding anywhere, so
// only the read-site property applies to them.
//
// The first failure is returned; nil means the unit verifies.
func Verify(original, transformed *ir.Unit) error {
	for _, g := range transformed.Globals {
		if err := verifyStorage(original, g); err != nil {
			return err
		}
	}
	for _, f := range transformed.Funcs {
		for _, s := range f.Body {
			if err := verifyStmt(transformed, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func verifyStorage(original *ir.Unit, g *ir.Variable) error {
	plain, ok := plaintextFor(original, g.Name)
	if !ok {
		return nil
	}
	if len(plain.Words) != len(g.Init.Words) {
		return &VerifyError{
			Code:     VerifyStorageMismatch,
			Variable: g.Name,
			Message:  fmt.Sprintf("element count changed: %d != %d", len(g.Init.Words), len(plain.Words)),
		}
	}
	for i, w := range g.Init.Words {
		if g.Enc != nil {
			w = cipher.DecodeLayers(g.Type, w, g.Enc.Layers)
		}
		if w != plain.Words[i] {
			return &VerifyError{
				Code:     VerifyStorageMismatch,
				Variable: g.Name,
				Message:  fmt.Sprintf("element %d decodes to %#x, want %#x", i, uint64(w), uint64(plain.Words[i])),
			}
		}
	}
	return nil
}

// plaintextFor finds the pre-transformation value for a global name.
// Declared globals match by name; promoted globals are traced back to
// the local binding encoded in their name.
func plaintextFor(original *ir.Unit, name string) (ir.Const, bool) {
	if g := original.Global(name); g != nil {
		return g.Init, true
	}
	rest, ok := strings.CutPrefix(name, "__l2g_")
	if !ok {
		return ir.Const{}, false
	}
	for _, f := range original.Funcs {
		local, ok := strings.CutPrefix(rest, f.Name+"_")
		if !ok {
			continue
		}
		if v := f.Local(local); v != nil {
			return v.Init, true
		}
	}
	return ir.Const{}, false
}

func verifyStmt(u *ir.Unit, s ir.Stmt) error {
	switch n := s.(type) {
	case *ir.Assign:
		if err := verifyExpr(u, n.Index); err != nil {
			return err
		}
		return verifyExpr(u, n.X)
	case *ir.Return:
		return verifyExpr(u, n.X)
	default:
		return nil
	}
}

func verifyExpr(u *ir.Unit, x ir.Expr) error {
	switch n := x.(type) {
	case nil:
		return nil
	case *ir.Decode:
		return verifyDecodeChain(u, n)
	case *ir.Load:
		if g := u.Global(n.Var); g != nil && g.Enc != nil {
			return &VerifyError{
				Code:     VerifyBareRead,
				Variable: n.Var,
				Message:  "obscured storage read without a decode wrapper",
			}
		}
		return verifyExpr(u, n.Index)
	case *ir.Bin:
		if err := verifyExpr(u, n.L); err != nil {
			return err
		}
		return verifyExpr(u, n.R)
	default:
		return nil
	}
}

// verifyDecodeChain walks a nested decode chain down to its load and
// checks that it inverts the storage encoding. Decode steps evaluate
// innermost first, undoing encode layers in reverse, so the chain read
// outermost first lines up with the encode layer list in order.
func verifyDecodeChain(u *ir.Unit, d *ir.Decode) error {
	var chain []ir.Layer
	x := ir.Expr(d)
	for {
		node, ok := x.(*ir.Decode)
		if !ok {
			break
		}
		if node.Routine != "" {
			sig := u.Decoder(node.Routine)
			if sig == nil {
				return &VerifyError{
					Code:     VerifyUnknownRoutine,
					Variable: node.Routine,
					Message:  "decode references an undeclared shared routine",
				}
			}
			chain = append(chain, sig.Layer)
		} else {
			chain = append(chain, node.Layers...)
		}
		x = node.X
	}

	load, ok := x.(*ir.Load)
	if !ok {
		// Decode of a non-load is not something the rewriter emits;
		// treat the inner expression as an ordinary read position.
		return verifyExpr(u, x)
	}
	g := u.Global(load.Var)
	if g == nil || g.Enc == nil {
		return &VerifyError{
			Code:     VerifyWrongLayers,
			Variable: load.Var,
			Message:  "decode wraps storage that carries no encoding",
		}
	}
	enc := g.Enc.Layers
	if len(chain) != len(enc) {
		return &VerifyError{
			Code:     VerifyWrongLayers,
			Variable: load.Var,
			Message:  fmt.Sprintf("decode chain has %d layers, storage has %d", len(chain), len(enc)),
		}
	}
	for i, l := range chain {
		if l != enc[i] {
			return &VerifyError{
				Code:     VerifyWrongLayers,
				Variable: load.Var,
				Message:  fmt.Sprintf("decode layer %d does not match encode layer %d", i, i),
			}
		}
	}
	return verifyExpr(u, load.Index)
}
