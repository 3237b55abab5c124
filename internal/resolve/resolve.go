// Package resolve normalizes per-variable directives.
//
// Front-ends carry directives in two physically different encodings:
// globals get annotation strings attached to the declaration, locals get
// intrinsic-style markers recorded on the enclosing function. This
// package folds both into the one DirectiveSet every downstream stage
// reads, so no later stage knows or cares which encoding carried a
// directive.
package resolve

import (
	"fmt"

	"github.com/hexveil/obscura/internal/ir"
)

// Directive tokens as the front-end spells them.
const (
	TokenNoEncrypt = "no_encrypt"
	TokenPromote   = "l2g"
	TokenNoPromote = "no_l2g"
)

// Apply resolves directives for every variable in the unit: global
// annotations and local markers are unioned into Variable.Directives in
// whatever order they were attached.
//
// Unrecognized tokens are ignored with a diagnostic, never fatal. A
// declaration carrying both l2g and no_l2g resolves to NoPromote - the
// safer reading, closer to source-visible intent - with a diagnostic.
func Apply(u *ir.Unit) []ir.Diag {
	var diags []ir.Diag

	for _, v := range u.Globals {
		for _, tok := range v.Annotations {
			applyToken(v, tok, &diags)
		}
		diags = append(diags, settle(v)...)
	}

	for _, f := range u.Funcs {
		for _, m := range f.Markers {
			local := f.Local(m.Var)
			if local == nil {
				diags = append(diags, ir.Diag{
					Stage:   ir.StageResolve,
					Code:    ir.DiagUnknownDirective,
					Subject: m.Var,
					Message: fmt.Sprintf("marker %q names no local in %s, ignored", m.Token, f.Name),
				})
				continue
			}
			applyToken(local, m.Token, &diags)
		}
		for _, local := range f.Locals {
			diags = append(diags, settle(local)...)
		}
	}

	return diags
}

// applyToken unions one directive token into the variable's set.
func applyToken(v *ir.Variable, tok string, diags *[]ir.Diag) {
	switch tok {
	case TokenNoEncrypt:
		v.Directives.NoEncrypt = true
	case TokenPromote:
		v.Directives.ForcePromote = true
	case TokenNoPromote:
		v.Directives.NoPromote = true
	default:
		*diags = append(*diags, ir.Diag{
			Stage:   ir.StageResolve,
			Code:    ir.DiagUnknownDirective,
			Subject: v.Name,
			Message: fmt.Sprintf("unrecognized directive token %q, ignored", tok),
		})
	}
}

// settle resolves directive conflicts after all tokens are unioned, so
// attachment order never matters.
func settle(v *ir.Variable) []ir.Diag {
	if v.Directives.ForcePromote && v.Directives.NoPromote {
		v.Directives.ForcePromote = false
		return []ir.Diag{{
			Stage:   ir.StageResolve,
			Code:    ir.DiagDirectiveConflict,
			Subject: v.Name,
			Message: "both l2g and no_l2g attached; no_l2g wins",
		}}
	}
	return nil
}
