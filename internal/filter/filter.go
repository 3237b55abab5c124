// Package filter computes the resolved per-variable decision.
//
// Precedence is an ordered chain of independent predicates, evaluated in
// strict order so it stays auditable and testable in isolation:
//
//  1. NoEncrypt directive - explicit override always wins
//  2. Blacklist dimensions (name, bit width, type category) - ANY match excludes
//  3. Whitelist dimensions - if ANY is configured, a variable must match
//     at least one configured dimension to survive
//  4. Array policy - skip, or cap to the lite level
//  5. Enabled levels decide the final strength
//
// DOCUMENTED POLICY CHOICE: a variable matching both a blacklist and a
// whitelist dimension is excluded - the blacklist runs first and wins.
package filter

import (
	"slices"
	"strings"

	"github.com/hexveil/obscura/internal/ir"
	"github.com/hexveil/obscura/internal/policy"
)

// outcome is one predicate's contribution to the decision.
type outcome int

const (
	pass outcome = iota
	exclude
	capToLite
)

// predicate is one stage of the ordered chain.
type predicate struct {
	name string
	eval func(*ir.Variable, *policy.Config) outcome
}

// chain is evaluated in order; the order IS the precedence and never
// changes after process start.
var chain = []predicate{
	{"directive", evalDirective},
	{"blacklist", evalBlacklist},
	{"whitelist", evalWhitelist},
	{"arrays", evalArrays},
}

// Resolve computes the decision for one variable. Scope must already be
// settled: promotion runs before filtering, so every candidate arriving
// here is GlobalStatic.
func Resolve(v *ir.Variable, cfg *policy.Config) ir.Decision {
	capped := false
	for _, p := range chain {
		switch p.eval(v, cfg) {
		case exclude:
			return ir.DecisionExcluded
		case capToLite:
			capped = true
		}
	}
	return levelDecision(cfg, capped)
}

// Apply resolves every global in the unit, in declaration order. Each
// decision is computed exactly once; variables already resolved are left
// alone. If neither level is enabled this is not an error - every
// survivor resolves to Excluded and a single diagnostic notes why.
func Apply(u *ir.Unit, cfg *policy.Config) []ir.Diag {
	var diags []ir.Diag
	if !cfg.AnyLevel() {
		diags = append(diags, ir.Diag{
			Stage:   ir.StageFilter,
			Code:    ir.DiagLevelsDisabled,
			Message: "no encoding level enabled; all variables resolve to excluded",
		})
	}
	for _, v := range u.Globals {
		if v.Decision != ir.DecisionUnresolved {
			continue
		}
		v.Decision = Resolve(v, cfg)
	}
	return diags
}

func evalDirective(v *ir.Variable, _ *policy.Config) outcome {
	if v.Directives.NoEncrypt {
		return exclude
	}
	return pass
}

func evalBlacklist(v *ir.Variable, cfg *policy.Config) outcome {
	if matchName(v.Name, cfg.SkipNames) {
		return exclude
	}
	if slices.Contains(cfg.SkipBits, v.Type.Bits) {
		return exclude
	}
	if cfg.SkipFloats && v.Type.Kind == ir.KindFloat {
		return exclude
	}
	if cfg.SkipIntegers && v.Type.Kind != ir.KindFloat {
		return exclude
	}
	return pass
}

func evalWhitelist(v *ir.Variable, cfg *policy.Config) outcome {
	if !cfg.WhitelistConfigured() {
		return pass // whitelist is a no-op when nothing is configured
	}
	if matchName(v.Name, cfg.OnlyNames) {
		return pass
	}
	if slices.Contains(cfg.OnlyBits, v.Type.Bits) {
		return pass
	}
	if cfg.OnlyFloats && v.Type.Kind == ir.KindFloat {
		return pass
	}
	if cfg.OnlyIntegers && v.Type.Kind != ir.KindFloat {
		return pass
	}
	return exclude
}

func evalArrays(v *ir.Variable, cfg *policy.Config) outcome {
	if !v.IsArray {
		return pass
	}
	if cfg.SkipArrays {
		return exclude
	}
	if cfg.ArraysLiteOnly {
		return capToLite
	}
	return pass
}

// levelDecision maps the enabled levels to a decision. The lite cap
// applies regardless of level configuration: a capped variable under a
// deep-only policy still gets the lite encoding, it is never upgraded.
func levelDecision(cfg *policy.Config, capped bool) ir.Decision {
	switch {
	case !cfg.AnyLevel():
		return ir.DecisionExcluded
	case capped:
		return ir.DecisionLiteOnly
	case cfg.Lite && cfg.Deep:
		return ir.DecisionLiteDeep
	case cfg.Deep:
		return ir.DecisionDeepOnly
	default:
		return ir.DecisionLiteOnly
	}
}

// matchName reports whether the name matches any pattern in the list.
// Patterns match exactly or as substrings, mirroring the front-end's
// comma-separated ENC_SKIP_NAME semantics.
func matchName(name string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}
