package promote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexveil/obscura/internal/ir"
	"github.com/hexveil/obscura/internal/policy"
)

func i32() ir.ScalarType { return ir.ScalarType{Kind: ir.KindSigned, Bits: 32} }
func f32() ir.ScalarType { return ir.ScalarType{Kind: ir.KindFloat, Bits: 32} }

func promoteAll() *policy.Config {
	cfg := policy.Default()
	cfg.Promote.Enabled = true
	cfg.Promote.Integers = true
	cfg.Promote.Floats = true
	cfg.Promote.IntArrays = true
	cfg.Promote.FloatArrays = true
	return cfg
}

func localVar(name string, t ir.ScalarType, w ir.Word) *ir.Variable {
	return &ir.Variable{Name: name, Scope: ir.ScopeLocalPromotable, Type: t, Init: ir.Const{Words: []ir.Word{w}}}
}

func unitWithLocal(v *ir.Variable) *ir.Unit {
	return &ir.Unit{
		Name:    "sample",
		Globals: []*ir.Variable{},
		Funcs: []*ir.Func{{
			Name:   "process",
			Locals: []*ir.Variable{v},
			Body:   []ir.Stmt{&ir.Return{X: &ir.Bin{Op: "mul", L: &ir.Load{Var: "input"}, R: &ir.Load{Var: v.Name}}}},
		}},
	}
}

func TestPromoteRelocatesLocal(t *testing.T) {
	u := unitWithLocal(localVar("multiplier", i32(), 0x9E3779B9))
	Run(u, promoteAll())

	// The local binding is gone; a global carries the constant now.
	assert.Empty(t, u.Funcs[0].Locals, "original local binding must no longer hold the plaintext constant")
	require.Len(t, u.Globals, 1)

	g := u.Globals[0]
	assert.Equal(t, "__l2g_process_multiplier", g.Name)
	assert.Equal(t, ir.ScopeGlobal, g.Scope)
	assert.Equal(t, ir.Word(0x9E3779B9), g.Init.Scalar())

	// Use sites now reference the global.
	ret := u.Funcs[0].Body[0].(*ir.Return)
	bin := ret.X.(*ir.Bin)
	assert.Equal(t, g.Name, bin.R.(*ir.Load).Var)
	assert.Equal(t, "input", bin.L.(*ir.Load).Var, "unrelated loads untouched")
}

func TestPromoteDisabledLeavesLocals(t *testing.T) {
	u := unitWithLocal(localVar("multiplier", i32(), 0x9E3779B9))
	Run(u, policy.Default())

	assert.Len(t, u.Funcs[0].Locals, 1)
	assert.Empty(t, u.Globals)
}

func TestNoPromoteDirectiveWins(t *testing.T) {
	v := localVar("loop_counter", i32(), 0)
	v.Directives.NoPromote = true
	u := unitWithLocal(v)
	Run(u, promoteAll())

	assert.Len(t, u.Funcs[0].Locals, 1, "NoPromote local stays an ordinary local")
	assert.Empty(t, u.Globals)
}

func TestForcePromoteBypassesGates(t *testing.T) {
	// Pass disabled, category disabled, probability zero: ForcePromote
	// still promotes.
	cfg := policy.Default()
	cfg.Promote.Probability = 0

	v := localVar("round_constant", i32(), 0xB7E15163)
	v.Directives.ForcePromote = true
	u := unitWithLocal(v)
	Run(u, cfg)

	assert.Empty(t, u.Funcs[0].Locals)
	require.Len(t, u.Globals, 1)
}

func TestForcePromoteKeepsNoEncrypt(t *testing.T) {
	v := localVar("shift_amount", i32(), 13)
	v.Directives.ForcePromote = true
	v.Directives.NoEncrypt = true
	u := unitWithLocal(v)
	Run(u, promoteAll())

	require.Len(t, u.Globals, 1)
	assert.True(t, u.Globals[0].Directives.NoEncrypt, "NoEncrypt survives promotion")
}

func TestCategoryGates(t *testing.T) {
	testCases := []struct {
		name     string
		v        *ir.Variable
		tune     func(*policy.Config)
		promoted bool
	}{
		{"int scalar allowed", localVar("a", i32(), 1), func(c *policy.Config) { c.Promote.Integers = true }, true},
		{"int scalar gated", localVar("a", i32(), 1), func(c *policy.Config) { c.Promote.Integers = false; c.Promote.Floats = true }, false},
		{"float scalar allowed", localVar("b", f32(), 1), func(c *policy.Config) { c.Promote.Floats = true }, true},
		{"float scalar gated", localVar("b", f32(), 1), func(c *policy.Config) { c.Promote.Integers = true }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := policy.Default()
			cfg.Promote.Enabled = true
			tc.tune(cfg)

			u := unitWithLocal(tc.v)
			Run(u, cfg)
			assert.Equal(t, tc.promoted, len(u.Globals) == 1)
		})
	}
}

func TestArrayCategoryAndSizeCap(t *testing.T) {
	arr := func(name string, t ir.ScalarType, n int) *ir.Variable {
		return &ir.Variable{Name: name, Scope: ir.ScopeLocalPromotable, Type: t, IsArray: true, Len: n,
			Init: ir.Const{Words: make([]ir.Word, n)}}
	}

	cfg := promoteAll()
	cfg.Promote.MaxArray = 8

	small := unitWithLocal(arr("small", i32(), 8))
	Run(small, cfg)
	assert.Len(t, small.Globals, 1, "array at the cap promotes")

	big := unitWithLocal(arr("big", i32(), 9))
	Run(big, cfg)
	assert.Empty(t, big.Globals, "array over the cap stays local")

	// Cap 0 means unlimited.
	unlimited := promoteAll()
	unlimited.Promote.MaxArray = 0
	huge := unitWithLocal(arr("huge", i32(), 100000))
	Run(huge, unlimited)
	assert.Len(t, huge.Globals, 1)
}

func TestLocalOrdinaryUntouched(t *testing.T) {
	v := localVar("x", i32(), 1)
	v.Scope = ir.ScopeLocalOrdinary
	u := unitWithLocal(v)
	Run(u, promoteAll())

	assert.Len(t, u.Funcs[0].Locals, 1)
	assert.Empty(t, u.Globals)
}

func TestPromotionDeterministic(t *testing.T) {
	build := func() *ir.Unit {
		return &ir.Unit{
			Name:    "sample",
			Globals: []*ir.Variable{},
			Funcs: []*ir.Func{{
				Name: "f",
				Locals: []*ir.Variable{
					localVar("a", i32(), 0x11), localVar("b", i32(), 0x22),
					localVar("c", i32(), 0x33), localVar("d", i32(), 0x44),
					localVar("e", i32(), 0x55), localVar("g", i32(), 0x66),
				},
			}},
		}
	}

	cfg := promoteAll()
	cfg.Promote.Probability = 50
	cfg.Seed = 1234

	first := build()
	Run(first, cfg)
	names := func(u *ir.Unit) []string {
		var out []string
		for _, g := range u.Globals {
			out = append(out, g.Name)
		}
		return out
	}
	want := names(first)

	for i := 0; i < 5; i++ {
		again := build()
		Run(again, cfg)
		assert.Equal(t, want, names(again), "fixed seed and probability must yield an identical promotion set")
	}
}

func TestPromotionSeedChangesSet(t *testing.T) {
	// With p=50 over enough variables, two seeds almost surely differ;
	// equality here would mean the sampler ignores the seed.
	build := func() *ir.Unit {
		var locals []*ir.Variable
		for i := 0; i < 16; i++ {
			locals = append(locals, localVar(string(rune('a'+i)), i32(), ir.Word(i+1)))
		}
		return &ir.Unit{Name: "u", Globals: []*ir.Variable{}, Funcs: []*ir.Func{{Name: "f", Locals: locals}}}
	}

	cfg1 := promoteAll()
	cfg1.Promote.Probability = 50
	cfg1.Seed = 1

	cfg2 := promoteAll()
	cfg2.Promote.Probability = 50
	cfg2.Seed = 2

	u1 := build()
	Run(u1, cfg1)
	u2 := build()
	Run(u2, cfg2)

	count := func(u *ir.Unit) int { return len(u.Globals) }
	remaining := func(u *ir.Unit) int { return len(u.Funcs[0].Locals) }
	assert.Equal(t, 16, count(u1)+remaining(u1))
	assert.Equal(t, 16, count(u2)+remaining(u2))
}

func TestDedupCollapsesIdenticalConstants(t *testing.T) {
	cfg := promoteAll()
	cfg.Promote.Dedup = true

	u := &ir.Unit{
		Name:    "sample",
		Globals: []*ir.Variable{},
		Funcs: []*ir.Func{
			{
				Name:   "first",
				Locals: []*ir.Variable{localVar("k", i32(), 0x9E3779B9)},
				Body:   []ir.Stmt{&ir.Return{X: &ir.Load{Var: "k"}}},
			},
			{
				Name:   "second",
				Locals: []*ir.Variable{localVar("k", i32(), 0x9E3779B9)},
				Body:   []ir.Stmt{&ir.Return{X: &ir.Load{Var: "k"}}},
			},
		},
	}

	Run(u, cfg)

	require.Len(t, u.Globals, 1, "identical promoted constants collapse into one shared global")
	shared := u.Globals[0].Name
	assert.Equal(t, "__l2g_first_k", shared, "first-promoted candidate is canonical")

	for _, f := range u.Funcs {
		ret := f.Body[0].(*ir.Return)
		assert.Equal(t, shared, ret.X.(*ir.Load).Var, "every original use site references the shared storage")
	}
}

func TestDedupDistinguishesTypeAndValue(t *testing.T) {
	cfg := promoteAll()
	cfg.Promote.Dedup = true

	u := &ir.Unit{
		Name:    "sample",
		Globals: []*ir.Variable{},
		Funcs: []*ir.Func{{
			Name: "f",
			Locals: []*ir.Variable{
				localVar("a", i32(), 0x11),
				localVar("b", i32(), 0x22),
				{Name: "c", Scope: ir.ScopeLocalPromotable, Type: ir.ScalarType{Kind: ir.KindUnsigned, Bits: 32}, Init: ir.Const{Words: []ir.Word{0x11}}},
			},
		}},
	}

	Run(u, cfg)
	assert.Len(t, u.Globals, 3, "different values or type kinds never collapse")
}

func TestOpResultPromotion(t *testing.T) {
	cfg := promoteAll()
	cfg.Promote.Ops = true

	u := &ir.Unit{
		Name:    "sample",
		Globals: []*ir.Variable{},
		Funcs: []*ir.Func{{
			Name: "f",
			Body: []ir.Stmt{&ir.Return{X: &ir.Bin{
				Op: "xor",
				L:  &ir.Lit{Type: i32(), Word: 0xFF00},
				R:  &ir.Lit{Type: i32(), Word: 0x00FF},
			}}},
		}},
	}

	Run(u, cfg)

	require.Len(t, u.Globals, 1)
	g := u.Globals[0]
	assert.Equal(t, ir.Word(0xFFFF), g.Init.Scalar(), "the folded result is what gets promoted")

	ret := u.Funcs[0].Body[0].(*ir.Return)
	load, ok := ret.X.(*ir.Load)
	require.True(t, ok, "the operation is replaced by a load of the promoted result")
	assert.Equal(t, g.Name, load.Var)
}

func TestOpResultPromotionOffByDefault(t *testing.T) {
	u := &ir.Unit{
		Name:    "sample",
		Globals: []*ir.Variable{},
		Funcs: []*ir.Func{{
			Name: "f",
			Body: []ir.Stmt{&ir.Return{X: &ir.Bin{
				Op: "add",
				L:  &ir.Lit{Type: i32(), Word: 1},
				R:  &ir.Lit{Type: i32(), Word: 2},
			}}},
		}},
	}

	Run(u, promoteAll())
	assert.Empty(t, u.Globals)

	ret := u.Funcs[0].Body[0].(*ir.Return)
	_, isBin := ret.X.(*ir.Bin)
	assert.True(t, isBin)
}

func TestSamplerDeterministic(t *testing.T) {
	s := NewSampler(42, 50)
	v := localVar("x", i32(), 7)
	id := ir.VariableID("u", "f", v)

	first := s.Admit(id)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Admit(id))
	}

	assert.True(t, NewSampler(42, 100).Admit(id))
	assert.False(t, NewSampler(42, 0).Admit(id))
}
