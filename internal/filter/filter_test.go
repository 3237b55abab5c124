package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexveil/obscura/internal/ir"
	"github.com/hexveil/obscura/internal/policy"
)

func i32() ir.ScalarType { return ir.ScalarType{Kind: ir.KindSigned, Bits: 32} }
func f32() ir.ScalarType { return ir.ScalarType{Kind: ir.KindFloat, Bits: 32} }

func variable(name string, t ir.ScalarType) *ir.Variable {
	return &ir.Variable{Name: name, Scope: ir.ScopeGlobal, Type: t, Init: ir.Const{Words: []ir.Word{1}}}
}

func array(name string, t ir.ScalarType, n int) *ir.Variable {
	v := variable(name, t)
	v.IsArray = true
	v.Len = n
	v.Init = ir.Const{Words: make([]ir.Word, n)}
	return v
}

func fullConfig() *policy.Config {
	cfg := policy.Default()
	cfg.Lite = true
	cfg.Deep = true
	return cfg
}

func TestNoEncryptAlwaysWins(t *testing.T) {
	cfg := fullConfig()
	// A whitelist that would otherwise include the variable.
	cfg.OnlyNames = []string{"secret"}

	v := variable("secret_key", i32())
	v.Directives.NoEncrypt = true

	assert.Equal(t, ir.DecisionExcluded, Resolve(v, cfg))
}

func TestBlacklistDimensions(t *testing.T) {
	testCases := []struct {
		name string
		v    *ir.Variable
		tune func(*policy.Config)
		want ir.Decision
	}{
		{"name substring", variable("debug_level", i32()), func(c *policy.Config) { c.SkipNames = []string{"debug"} }, ir.DecisionExcluded},
		{"name exact", variable("version", i32()), func(c *policy.Config) { c.SkipNames = []string{"version"} }, ir.DecisionExcluded},
		{"name no match", variable("secret_key", i32()), func(c *policy.Config) { c.SkipNames = []string{"debug"} }, ir.DecisionLiteDeep},
		{"bit width", variable("x", i32()), func(c *policy.Config) { c.SkipBits = []int{32} }, ir.DecisionExcluded},
		{"other width passes", variable("x", ir.ScalarType{Kind: ir.KindSigned, Bits: 64}), func(c *policy.Config) { c.SkipBits = []int{32} }, ir.DecisionLiteDeep},
		{"skip floats", variable("ratio", f32()), func(c *policy.Config) { c.SkipFloats = true }, ir.DecisionExcluded},
		{"skip floats leaves ints", variable("x", i32()), func(c *policy.Config) { c.SkipFloats = true }, ir.DecisionLiteDeep},
		{"skip integers", variable("x", i32()), func(c *policy.Config) { c.SkipIntegers = true }, ir.DecisionExcluded},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := fullConfig()
			tc.tune(cfg)
			assert.Equal(t, tc.want, Resolve(tc.v, cfg))
		})
	}
}

func TestWhitelistRequiresMatch(t *testing.T) {
	cfg := fullConfig()
	cfg.OnlyNames = []string{"secret"}

	assert.Equal(t, ir.DecisionLiteDeep, Resolve(variable("secret_key", i32()), cfg))
	assert.Equal(t, ir.DecisionExcluded, Resolve(variable("api_token", i32()), cfg))
}

func TestWhitelistAnyDimensionSuffices(t *testing.T) {
	cfg := fullConfig()
	cfg.OnlyNames = []string{"secret"}
	cfg.OnlyFloats = true

	// Matches the float dimension despite missing the name dimension.
	assert.Equal(t, ir.DecisionLiteDeep, Resolve(variable("magic_ratio", f32()), cfg))
}

func TestWhitelistUnconfiguredIsNoOp(t *testing.T) {
	cfg := fullConfig()
	assert.Equal(t, ir.DecisionLiteDeep, Resolve(variable("anything", i32()), cfg))
}

func TestBlacklistBeatsWhitelist(t *testing.T) {
	// Same dimension configured both ways for the same variable:
	// blacklist wins.
	cfg := fullConfig()
	cfg.SkipNames = []string{"secret_key"}
	cfg.OnlyNames = []string{"secret_key"}

	assert.Equal(t, ir.DecisionExcluded, Resolve(variable("secret_key", i32()), cfg))
}

func TestSkipArrays(t *testing.T) {
	cfg := fullConfig()
	cfg.SkipArrays = true

	assert.Equal(t, ir.DecisionExcluded, Resolve(array("lookup_table", i32(), 8), cfg))
	assert.Equal(t, ir.DecisionLiteDeep, Resolve(variable("scalar", i32()), cfg), "scalars unaffected")
}

func TestArraysLiteOnlyCap(t *testing.T) {
	cfg := fullConfig()
	cfg.ArraysLiteOnly = true

	// Both levels enabled: the array is capped to LiteOnly, never
	// DeepOnly or LiteThenDeep.
	assert.Equal(t, ir.DecisionLiteOnly, Resolve(array("lookup_table", i32(), 8), cfg))
	assert.Equal(t, ir.DecisionLiteDeep, Resolve(variable("scalar", i32()), cfg))

	// Cap applies regardless of level configuration.
	deepOnly := policy.Default()
	deepOnly.Deep = true
	deepOnly.ArraysLiteOnly = true
	assert.Equal(t, ir.DecisionLiteOnly, Resolve(array("lookup_table", i32(), 8), deepOnly))
}

func TestLevelDecisions(t *testing.T) {
	v := variable("x", i32())

	lite := policy.Default()
	lite.Lite = true
	assert.Equal(t, ir.DecisionLiteOnly, Resolve(v, lite))

	deep := policy.Default()
	deep.Deep = true
	assert.Equal(t, ir.DecisionDeepOnly, Resolve(v, deep))

	assert.Equal(t, ir.DecisionLiteDeep, Resolve(v, fullConfig()))
}

func TestNoLevelsResolvesExcluded(t *testing.T) {
	cfg := policy.Default()
	assert.Equal(t, ir.DecisionExcluded, Resolve(variable("x", i32()), cfg))
}

func TestApplySetsDecisionsOnce(t *testing.T) {
	u := &ir.Unit{
		Name: "u",
		Globals: []*ir.Variable{
			variable("secret_key", i32()),
			variable("resolved", i32()),
		},
	}
	u.Globals[1].Decision = ir.DecisionExcluded // pre-resolved, must not be revised

	diags := Apply(u, fullConfig())
	assert.Empty(t, diags)
	assert.Equal(t, ir.DecisionLiteDeep, u.Globals[0].Decision)
	assert.Equal(t, ir.DecisionExcluded, u.Globals[1].Decision)
}

func TestApplyLevelsDisabledDiagnostic(t *testing.T) {
	u := &ir.Unit{Name: "u", Globals: []*ir.Variable{variable("x", i32())}}

	diags := Apply(u, policy.Default())
	require.Len(t, diags, 1)
	assert.Equal(t, ir.DiagLevelsDisabled, diags[0].Code)
	assert.Equal(t, ir.DecisionExcluded, u.Globals[0].Decision, "disabled engine is not an error")
}
