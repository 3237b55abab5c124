package cipher

import (
	"fmt"

	"github.com/hexveil/obscura/internal/ir"
	"github.com/hexveil/obscura/internal/policy"
)

// Engine rewrites variable storage and use sites for every variable whose
// resolved decision is not Excluded.
//
// State machine per variable: Unscanned -> Resolved(decision) ->
// Rewritten. There is no transition back from Rewritten: the engine
// tracks rewritten storage within a run and rejects re-entry with a
// diagnostic, preserving the first rewrite.
type Engine struct {
	cfg       *policy.Config
	rewritten map[string]bool // storage locations already rewritten this run
}

// NewEngine creates an engine for one unit's run. The rewrite-tracking
// set is scoped to this engine; engines never outlive a unit.
func NewEngine(cfg *policy.Config) *Engine {
	return &Engine{cfg: cfg, rewritten: make(map[string]bool)}
}

// Rewrite processes every resolved global in declaration order. It is the
// final pipeline stage: storage gets the obscured encoding, and every
// read site gains the inverse transform that restores the original value
// at evaluation time.
func (e *Engine) Rewrite(u *ir.Unit) []ir.Diag {
	var diags []ir.Diag
	for _, v := range u.Globals {
		switch v.Decision {
		case ir.DecisionUnresolved, ir.DecisionExcluded:
			continue
		}
		if e.rewritten[v.Name] || v.Enc != nil {
			diags = append(diags, ir.Diag{
				Stage:   ir.StageCipher,
				Code:    ir.DiagAlreadyRewritten,
				Subject: v.Name,
				Message: "storage already rewritten this run; re-entry rejected, first rewrite preserved",
			})
			continue
		}
		e.rewriteVariable(u, v)
		e.rewritten[v.Name] = true
	}
	return diags
}

// rewriteVariable encodes the initializer (element-wise for arrays) and
// wraps every read of the storage in the inverse transform.
func (e *Engine) rewriteVariable(u *ir.Unit, v *ir.Variable) {
	id := ir.VariableID(u.Name, "", v)
	layers := e.layersFor(u, v, id)

	for i, w := range v.Init.Words {
		v.Init.Words[i] = EncodeLayers(v.Type, w, layers)
	}
	v.Enc = &ir.Encoding{Layers: layers}

	wrap := e.decodeWrapper(u, v, layers)
	for _, f := range u.Funcs {
		for i, s := range f.Body {
			f.Body[i] = rewriteStmt(s, v.Name, wrap)
		}
	}
}

// layersFor builds the encode-order layer list for a decision. Deep keys
// are per-variable when deep decoding inlines, but per type signature
// when routed through a shared routine - every variable of the type must
// share the key that routine embeds.
func (e *Engine) layersFor(u *ir.Unit, v *ir.Variable, id string) []ir.Layer {
	var layers []ir.Layer
	lite := ir.Layer{Level: ir.LevelLite, Iterations: e.cfg.LiteIterations, Key: VariableKey(e.cfg.Seed, id, ir.LevelLite)}
	deepKey := VariableKey(e.cfg.Seed, id, ir.LevelDeep)
	if !e.cfg.DeepInline {
		deepKey = TypeKey(e.cfg.Seed, v.Type, ir.LevelDeep)
	}
	deep := ir.Layer{Level: ir.LevelDeep, Iterations: e.cfg.DeepIterations, Key: deepKey}

	switch v.Decision {
	case ir.DecisionLiteOnly:
		layers = []ir.Layer{lite}
	case ir.DecisionDeepOnly:
		layers = []ir.Layer{deep}
	case ir.DecisionLiteDeep:
		// Lite encodes first, deep on top; decoding inverts in reverse.
		layers = []ir.Layer{lite, deep}
	}
	return layers
}

// decodeWrapper returns the function that wraps one read site. Lite
// decoding always expands inline; deep decoding goes through a shared
// per-type routine unless policy forces inline expansion. The placement
// never changes observable behavior, only emitted size.
func (e *Engine) decodeWrapper(u *ir.Unit, v *ir.Variable, layers []ir.Layer) func(ir.Expr) ir.Expr {
	var deepRoutine string
	if !e.cfg.DeepInline {
		for _, l := range layers {
			if l.Level == ir.LevelDeep {
				deepRoutine = e.ensureDecoder(u, v.Type, l)
			}
		}
	}

	return func(read ir.Expr) ir.Expr {
		// Decode steps run in reverse encode order.
		out := read
		for i := len(layers) - 1; i >= 0; i-- {
			l := layers[i]
			if l.Level == ir.LevelDeep && deepRoutine != "" {
				out = &ir.Decode{Type: v.Type, Routine: deepRoutine, X: out}
				continue
			}
			out = &ir.Decode{Type: v.Type, Layers: []ir.Layer{l}, X: out}
		}
		return out
	}
}

// ensureDecoder registers the shared decode routine for a type signature,
// returning its name. Routines are appended in first-use order, which is
// deterministic because globals rewrite in declaration order.
func (e *Engine) ensureDecoder(u *ir.Unit, t ir.ScalarType, layer ir.Layer) string {
	name := fmt.Sprintf("__obscura_dec_deep_%s", t)
	if u.Decoder(name) == nil {
		u.Decoders = append(u.Decoders, ir.DecoderSig{Name: name, Type: t, Layer: layer})
	}
	return name
}

// rewriteStmt rewrites the read positions of a statement. Assignment
// targets are writes, not reads - only the index expression and the
// value expression are rewritten.
func rewriteStmt(s ir.Stmt, name string, wrap func(ir.Expr) ir.Expr) ir.Stmt {
	switch n := s.(type) {
	case *ir.Assign:
		return &ir.Assign{Var: n.Var, Index: rewriteExpr(n.Index, name, wrap), X: rewriteExpr(n.X, name, wrap)}
	case *ir.Return:
		return &ir.Return{X: rewriteExpr(n.X, name, wrap)}
	default:
		return s
	}
}

// rewriteExpr wraps every load of the named storage. Array loads decode
// per element at the indexed read; the index itself may also read
// rewritten storage and is processed first.
func rewriteExpr(x ir.Expr, name string, wrap func(ir.Expr) ir.Expr) ir.Expr {
	switch n := x.(type) {
	case nil:
		return nil
	case *ir.Load:
		load := &ir.Load{Var: n.Var, Index: rewriteExpr(n.Index, name, wrap)}
		if n.Var == name {
			return wrap(load)
		}
		return load
	case *ir.Bin:
		return &ir.Bin{Op: n.Op, L: rewriteExpr(n.L, name, wrap), R: rewriteExpr(n.R, name, wrap)}
	case *ir.Decode:
		return &ir.Decode{Type: n.Type, Layers: n.Layers, Routine: n.Routine, X: rewriteExpr(n.X, name, wrap)}
	default:
		return x
	}
}
