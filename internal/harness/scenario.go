package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hexveil/obscura/internal/ir"
	"github.com/hexveil/obscura/internal/policy"
)

// Scenario defines one conformance scenario: a unit, a policy, and the
// expectations checked after transformation. Scenarios live in YAML so
// golden fixtures can be reviewed next to the input that produced them.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy configures the run.
	Policy PolicySpec `yaml:"policy"`

	// Unit describes the input program.
	Unit UnitSpec `yaml:"unit"`

	// Expect lists outcomes checked on top of the golden snapshot.
	Expect ExpectSpec `yaml:"expect,omitempty"`
}

// ExpectSpec declares per-scenario assertions. Everything here is
// optional; a scenario without expectations is checked only against its
// golden file.
type ExpectSpec struct {
	// Decisions maps a variable name in the output to the decision it
	// must carry.
	Decisions map[string]string `yaml:"decisions,omitempty"`

	// Diags lists diagnostic codes that must appear, in any order.
	Diags []string `yaml:"diags,omitempty"`
}

// PolicySpec is the YAML form of a policy configuration. Only the knobs
// scenarios actually vary are exposed; everything else stays at the
// documented defaults.
type PolicySpec struct {
	Seed           uint64   `yaml:"seed"`
	Levels         string   `yaml:"levels"` // "lite", "deep", or "full"
	LiteIterations int      `yaml:"lite_iterations,omitempty"`
	DeepIterations int      `yaml:"deep_iterations,omitempty"`
	DeepInline     bool     `yaml:"deep_inline,omitempty"`
	SkipNames      []string `yaml:"skip_names,omitempty"`
	OnlyNames      []string `yaml:"only_names,omitempty"`
	SkipArrays     bool     `yaml:"skip_arrays,omitempty"`
	ArraysLiteOnly bool     `yaml:"arrays_lite_only,omitempty"`

	Promote PromoteSpec `yaml:"promote,omitempty"`
}

// PromoteSpec is the YAML form of the promotion knobs.
type PromoteSpec struct {
	Enabled     bool `yaml:"enabled"`
	Integers    bool `yaml:"integers"`
	Floats      bool `yaml:"floats"`
	IntArrays   bool `yaml:"int_arrays"`
	FloatArrays bool `yaml:"float_arrays"`
	Ops         bool `yaml:"ops"`
	Dedup       bool `yaml:"dedup"`
	Probability *int `yaml:"probability,omitempty"`
	MaxArray    *int `yaml:"max_array,omitempty"`
}

// UnitSpec describes the input unit.
type UnitSpec struct {
	Name    string     `yaml:"name"`
	Globals []VarSpec  `yaml:"globals,omitempty"`
	Funcs   []FuncSpec `yaml:"funcs,omitempty"`
}

// VarSpec describes one variable. Values are raw words: integers as-is,
// floats as IEEE-754 bit patterns.
type VarSpec struct {
	Name        string   `yaml:"name"`
	Kind        string   `yaml:"kind"` // "sint", "uint", "float"
	Bits        int      `yaml:"bits"`
	Array       bool     `yaml:"array,omitempty"`
	Values      []uint64 `yaml:"values"`
	Annotations []string `yaml:"annotations,omitempty"`
}

// FuncSpec describes one function: its promotable locals, directive
// markers, and the variables its body reads. Each read becomes one
// return of the named variable, which is the shape the rewriter cares
// about.
type FuncSpec struct {
	Name    string     `yaml:"name"`
	Locals  []VarSpec  `yaml:"locals,omitempty"`
	Markers []MarkSpec `yaml:"markers,omitempty"`
	Reads   []string   `yaml:"reads,omitempty"`
}

// MarkSpec attaches one directive token to one local.
type MarkSpec struct {
	Var   string `yaml:"var"`
	Token string `yaml:"token"`
}

// LoadScenario reads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadDir loads every .yaml scenario in a directory, sorted by file name
// so scenario order is stable across platforms.
func LoadDir(dir string) ([]*Scenario, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob scenarios: %w", err)
	}
	sort.Strings(matches)

	var out []*Scenario
	for _, path := range matches {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Validate checks structural requirements before a scenario runs.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if s.Unit.Name == "" {
		return fmt.Errorf("unit name is required")
	}
	switch s.Policy.Levels {
	case "", "lite", "deep", "full":
	default:
		return fmt.Errorf("unknown levels %q", s.Policy.Levels)
	}
	for _, v := range s.Unit.Globals {
		if err := v.validate(); err != nil {
			return fmt.Errorf("global %s: %w", v.Name, err)
		}
	}
	for _, f := range s.Unit.Funcs {
		locals := make(map[string]bool, len(f.Locals))
		for _, v := range f.Locals {
			if err := v.validate(); err != nil {
				return fmt.Errorf("func %s: local %s: %w", f.Name, v.Name, err)
			}
			locals[v.Name] = true
		}
		for _, m := range f.Markers {
			if !locals[m.Var] {
				return fmt.Errorf("func %s: marker names unknown local %q", f.Name, m.Var)
			}
		}
	}
	for name, d := range s.Expect.Decisions {
		switch ir.Decision(d) {
		case ir.DecisionExcluded, ir.DecisionLiteOnly, ir.DecisionDeepOnly, ir.DecisionLiteDeep:
		default:
			return fmt.Errorf("expect: unknown decision %q for %s", d, name)
		}
	}
	return nil
}

func (v *VarSpec) validate() error {
	t := ir.ScalarType{Kind: ir.Kind(v.Kind), Bits: v.Bits}
	if !t.Valid() {
		return fmt.Errorf("invalid type %s%d", v.Kind, v.Bits)
	}
	if len(v.Values) == 0 {
		return fmt.Errorf("at least one value is required")
	}
	if !v.Array && len(v.Values) != 1 {
		return fmt.Errorf("scalar carries %d values", len(v.Values))
	}
	return nil
}

// Config converts the YAML policy into the engine configuration.
func (p *PolicySpec) Config() *policy.Config {
	cfg := policy.Default()
	cfg.Seed = p.Seed
	switch p.Levels {
	case "lite":
		cfg.Lite = true
	case "deep":
		cfg.Deep = true
	case "full":
		cfg.Lite = true
		cfg.Deep = true
	}
	if p.LiteIterations > 0 {
		cfg.LiteIterations = p.LiteIterations
	}
	if p.DeepIterations > 0 {
		cfg.DeepIterations = p.DeepIterations
	}
	cfg.DeepInline = p.DeepInline
	cfg.SkipNames = p.SkipNames
	cfg.OnlyNames = p.OnlyNames
	cfg.SkipArrays = p.SkipArrays
	cfg.ArraysLiteOnly = p.ArraysLiteOnly

	cfg.Promote.Enabled = p.Promote.Enabled
	cfg.Promote.Integers = p.Promote.Integers
	cfg.Promote.Floats = p.Promote.Floats
	cfg.Promote.IntArrays = p.Promote.IntArrays
	cfg.Promote.FloatArrays = p.Promote.FloatArrays
	cfg.Promote.Ops = p.Promote.Ops
	cfg.Promote.Dedup = p.Promote.Dedup
	if p.Promote.Probability != nil {
		cfg.Promote.Probability = *p.Promote.Probability
	}
	if p.Promote.MaxArray != nil {
		cfg.Promote.MaxArray = *p.Promote.MaxArray
	}
	return cfg
}

// BuildUnit materializes the scenario unit as IR.
func (s *Scenario) BuildUnit() *ir.Unit {
	u := &ir.Unit{Name: s.Unit.Name}
	for _, v := range s.Unit.Globals {
		u.Globals = append(u.Globals, v.variable(ir.ScopeGlobal))
	}
	for _, f := range s.Unit.Funcs {
		fn := &ir.Func{Name: f.Name}
		for _, v := range f.Locals {
			fn.Locals = append(fn.Locals, v.variable(ir.ScopeLocalPromotable))
		}
		for _, m := range f.Markers {
			fn.Markers = append(fn.Markers, ir.Marker{Var: m.Var, Token: m.Token})
		}
		for _, name := range f.Reads {
			fn.Body = append(fn.Body, &ir.Return{X: &ir.Load{Var: name}})
		}
		u.Funcs = append(u.Funcs, fn)
	}
	return u
}

func (v *VarSpec) variable(scope ir.Scope) *ir.Variable {
	words := make([]ir.Word, len(v.Values))
	for i, w := range v.Values {
		words[i] = ir.Word(w)
	}
	out := &ir.Variable{
		Name:        v.Name,
		Scope:       scope,
		Type:        ir.ScalarType{Kind: ir.Kind(v.Kind), Bits: v.Bits},
		Init:        ir.Const{Words: words},
		Annotations: v.Annotations,
	}
	if v.Array {
		out.IsArray = true
		out.Len = len(words)
	}
	return out
}
