// Package promote implements the local-to-global promotion pass.
//
// Only global storage can carry a persistent obscured representation
// across calls, so qualifying local constants are relocated into static
// globals before filtering and encryption. A promoted local becomes an
// ordinary GlobalStatic variable; a rejected local stays exactly as it
// was and no later stage touches it.
//
// Decision order per local:
//
//  1. NoPromote directive - never promoted
//  2. ForcePromote directive - promoted unconditionally
//  3. Otherwise: pass enabled, type category enabled, size within the
//     configured cap, and the deterministic per-variable sample admits it
//
// Deduplication, when enabled, runs after promotion and before
// filtering: promoted candidates with identical type and identical value
// bytes collapse into the single global that was promoted first, so the
// shared constant is filtered and encrypted exactly once.
package promote

import (
	"fmt"

	"github.com/hexveil/obscura/internal/ir"
	"github.com/hexveil/obscura/internal/policy"
)

// candidate is the transient record for one successful promotion. The
// originating binding is gone by the time the encryption engine runs -
// downstream stages see only the ordinary global.
type candidate struct {
	global *ir.Variable
	id     string // identity computed before relocation
}

// Report summarizes one promotion pass for logging and run records.
type Report struct {
	// Promoted lists the global names created by this pass, in
	// creation order, after dedup has removed collapsed duplicates.
	Promoted []string

	// Deduped maps each removed duplicate to the canonical global
	// that absorbed it.
	Deduped map[string]string
}

// Run promotes qualifying locals (and, when enabled, constant operation
// results) across the unit, in declaration order. Promotion has no
// failure modes; the report is informational.
func Run(u *ir.Unit, cfg *policy.Config) *Report {
	p := &pass{
		unit:    u,
		cfg:     cfg,
		sampler: NewSampler(cfg.Seed, cfg.Promote.Probability),
	}

	for _, f := range u.Funcs {
		p.promoteLocals(f)
		if cfg.Promote.Ops {
			p.promoteOps(f)
		}
	}
	deduped := map[string]string{}
	if cfg.Promote.Dedup {
		deduped = p.dedup()
	}

	report := &Report{Deduped: deduped}
	for _, c := range p.promoted {
		if _, removed := deduped[c.global.Name]; !removed {
			report.Promoted = append(report.Promoted, c.global.Name)
		}
	}
	return report
}

type pass struct {
	unit      *ir.Unit
	cfg       *policy.Config
	sampler   *Sampler
	promoted  []candidate
	opCounter int
}

// promoteLocals evaluates every promotable local of one function.
func (p *pass) promoteLocals(f *ir.Func) {
	var kept []*ir.Variable
	for _, v := range f.Locals {
		if v.Scope != ir.ScopeLocalPromotable || !p.admits(f, v) {
			kept = append(kept, v)
			continue
		}
		p.relocate(f, v)
	}
	f.Locals = kept
}

// admits applies the decision order. ForcePromote bypasses the
// enablement, category, size, and probability checks entirely.
func (p *pass) admits(f *ir.Func, v *ir.Variable) bool {
	if v.Directives.NoPromote {
		return false
	}
	if v.Directives.ForcePromote {
		return true
	}
	if !p.cfg.Promote.Enabled {
		return false
	}
	if !p.categoryEnabled(v) {
		return false
	}
	if v.IsArray && p.cfg.Promote.MaxArray > 0 && v.Len > p.cfg.Promote.MaxArray {
		return false
	}
	return p.sampler.Admit(ir.VariableID(p.unit.Name, f.Name, v))
}

func (p *pass) categoryEnabled(v *ir.Variable) bool {
	isFloat := v.Type.Kind == ir.KindFloat
	switch {
	case v.IsArray && isFloat:
		return p.cfg.Promote.FloatArrays
	case v.IsArray:
		return p.cfg.Promote.IntArrays
	case isFloat:
		return p.cfg.Promote.Floats
	default:
		return p.cfg.Promote.Integers
	}
}

// relocate moves a local into global storage and relabels its loads.
// The identity used for sampling and dedup is the one the variable had
// as a local; the global gets a fresh collision-free name.
func (p *pass) relocate(f *ir.Func, v *ir.Variable) {
	id := ir.VariableID(p.unit.Name, f.Name, v)

	global := &ir.Variable{
		Name:       fmt.Sprintf("__l2g_%s_%s", f.Name, v.Name),
		Scope:      ir.ScopeGlobal,
		Type:       v.Type,
		IsArray:    v.IsArray,
		Len:        v.Len,
		Init:       ir.Const{Words: append([]ir.Word(nil), v.Init.Words...)},
		Directives: v.Directives, // NoEncrypt survives promotion
	}
	p.unit.Globals = append(p.unit.Globals, global)
	p.promoted = append(p.promoted, candidate{global: global, id: id})

	relabelLoads(f, v.Name, global.Name)
}

// promoteOps turns binary operations over constant literals into
// promotion candidates: the folded result becomes a global and the
// operation is replaced by a load of it.
func (p *pass) promoteOps(f *ir.Func) {
	for i, s := range f.Body {
		f.Body[i] = p.rewriteOpStmt(f, s)
	}
}

func (p *pass) rewriteOpStmt(f *ir.Func, s ir.Stmt) ir.Stmt {
	switch n := s.(type) {
	case *ir.Assign:
		return &ir.Assign{Var: n.Var, Index: p.rewriteOpExpr(f, n.Index), X: p.rewriteOpExpr(f, n.X)}
	case *ir.Return:
		return &ir.Return{X: p.rewriteOpExpr(f, n.X)}
	default:
		return s
	}
}

func (p *pass) rewriteOpExpr(f *ir.Func, x ir.Expr) ir.Expr {
	switch n := x.(type) {
	case nil:
		return nil
	case *ir.Bin:
		l := p.rewriteOpExpr(f, n.L)
		r := p.rewriteOpExpr(f, n.R)
		if lit, ok := p.foldConstOp(f, n.Op, l, r); ok {
			return lit
		}
		return &ir.Bin{Op: n.Op, L: l, R: r}
	case *ir.Load:
		return &ir.Load{Var: n.Var, Index: p.rewriteOpExpr(f, n.Index)}
	case *ir.Decode:
		return &ir.Decode{Type: n.Type, Layers: n.Layers, Routine: n.Routine, X: p.rewriteOpExpr(f, n.X)}
	default:
		return x
	}
}

// foldConstOp promotes one qualifying operation result. Both operands
// must be literals of the same scalar type; the folded value then goes
// through the same category/size/probability gates as a plain local.
func (p *pass) foldConstOp(f *ir.Func, op string, l, r ir.Expr) (ir.Expr, bool) {
	ll, lok := l.(*ir.Lit)
	rl, rok := r.(*ir.Lit)
	if !lok || !rok || ll.Type != rl.Type {
		return nil, false
	}
	word, err := ir.EvalBin(op, ll.Type, ll.Word, rl.Word)
	if err != nil {
		return nil, false
	}

	p.opCounter++
	v := &ir.Variable{
		Name:  fmt.Sprintf("op%d", p.opCounter),
		Scope: ir.ScopeLocalPromotable,
		Type:  ll.Type,
		Init:  ir.Const{Words: []ir.Word{word}},
	}
	if !p.admits(f, v) {
		p.opCounter--
		return nil, false
	}

	id := ir.VariableID(p.unit.Name, f.Name, v)
	global := &ir.Variable{
		Name:  fmt.Sprintf("__l2g_%s_%s", f.Name, v.Name),
		Scope: ir.ScopeGlobal,
		Type:  v.Type,
		Init:  v.Init,
	}
	p.unit.Globals = append(p.unit.Globals, global)
	p.promoted = append(p.promoted, candidate{global: global, id: id})
	return &ir.Load{Var: global.Name}, true
}

// dedup collapses promoted candidates with identical type and value into
// the first-promoted global. Directives merge by union, keeping the
// conservative reading (any NoEncrypt keeps the shared global plain).
func (p *pass) dedup() map[string]string {
	canonical := make(map[string]*ir.Variable)
	replaced := make(map[string]string)

	for _, c := range p.promoted {
		key := ir.ConstKey(c.global.Type, c.global.Init)
		first, ok := canonical[key]
		if !ok {
			canonical[key] = c.global
			continue
		}
		first.Directives = first.Directives.Union(c.global.Directives)
		replaced[c.global.Name] = first.Name
	}
	if len(replaced) == 0 {
		return replaced
	}

	var kept []*ir.Variable
	for _, g := range p.unit.Globals {
		if _, dup := replaced[g.Name]; !dup {
			kept = append(kept, g)
		}
	}
	p.unit.Globals = kept

	for _, f := range p.unit.Funcs {
		for dup, canon := range replaced {
			relabelLoads(f, dup, canon)
		}
	}
	return replaced
}

// relabelLoads rewrites every load of oldName in the function to newName.
func relabelLoads(f *ir.Func, oldName, newName string) {
	var walkExpr func(ir.Expr) ir.Expr
	walkExpr = func(x ir.Expr) ir.Expr {
		switch n := x.(type) {
		case nil:
			return nil
		case *ir.Load:
			name := n.Var
			if name == oldName {
				name = newName
			}
			return &ir.Load{Var: name, Index: walkExpr(n.Index)}
		case *ir.Bin:
			return &ir.Bin{Op: n.Op, L: walkExpr(n.L), R: walkExpr(n.R)}
		case *ir.Decode:
			return &ir.Decode{Type: n.Type, Layers: n.Layers, Routine: n.Routine, X: walkExpr(n.X)}
		default:
			return x
		}
	}

	for i, s := range f.Body {
		switch n := s.(type) {
		case *ir.Assign:
			v := n.Var
			if v == oldName {
				v = newName
			}
			f.Body[i] = &ir.Assign{Var: v, Index: walkExpr(n.Index), X: walkExpr(n.X)}
		case *ir.Return:
			f.Body[i] = &ir.Return{X: walkExpr(n.X)}
		}
	}
}
