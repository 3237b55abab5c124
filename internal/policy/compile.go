package policy

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/hexveil/obscura/internal/ir"
)

// CompileError represents a structural error in a policy file.
// Only structural problems (unreadable file, CUE syntax error, missing
// policy struct) are errors; malformed option VALUES degrade to defaults
// with diagnostics instead.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: policy %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("policy %s: %s", e.Field, e.Message)
}

// CompileFile loads a CUE policy file and compiles the `policy` struct.
func CompileFile(path string) (*Config, []ir.Diag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read policy: %w", err)
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, nil, fmt.Errorf("compile policy: %w", err)
	}

	pol := v.LookupPath(cue.ParsePath("policy"))
	if !pol.Exists() {
		return nil, nil, &CompileError{Field: "policy", Message: "policy struct is required", Pos: v.Pos()}
	}
	return Compile(pol)
}

// Compile parses a CUE value into a Config.
//
// The CUE value should be the policy struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`policy: { levels: "full" }`)
//	cfg, diags, err := policy.Compile(v.LookupPath(cue.ParsePath("policy")))
//
// Every recognized option with an unusable value falls back to its
// default and contributes a diagnostic; Compile fails only on
// structurally broken CUE.
func Compile(v cue.Value) (*Config, []ir.Diag, error) {
	if err := v.Err(); err != nil {
		return nil, nil, fmt.Errorf("compile policy: %w", err)
	}

	cfg := Default()
	var diags []ir.Diag

	// Levels: "lite", "deep", or "full" (full = both).
	if lv := v.LookupPath(cue.ParsePath("levels")); lv.Exists() {
		s, err := lv.String()
		if err != nil {
			diags = append(diags, invalidOption("levels", "not a string, levels stay disabled"))
		} else {
			switch s {
			case "lite":
				cfg.Lite = true
			case "deep":
				cfg.Deep = true
			case "full":
				cfg.Lite, cfg.Deep = true, true
			default:
				diags = append(diags, invalidOption("levels",
					fmt.Sprintf("unknown level %q (want lite, deep, or full), levels stay disabled", s)))
			}
		}
	}

	// iterations sets both counts; the specific options override it.
	if n, ok := lookupInt(v, "iterations", &diags); ok {
		cfg.LiteIterations = n
		cfg.DeepIterations = n
	}
	if n, ok := lookupInt(v, "lite_iterations", &diags); ok {
		cfg.LiteIterations = n
	}
	if n, ok := lookupInt(v, "deep_iterations", &diags); ok {
		cfg.DeepIterations = n
	}

	cfg.DeepInline = lookupBool(v, "deep_inline", false, &diags)

	if n, ok := lookupInt(v, "seed", &diags); ok {
		cfg.Seed = uint64(n)
	}

	// Filters. Name and bit lists are comma-separated strings, matching
	// the front-end's -D option format.
	cfg.SkipNames = lookupNameList(v, "skip_names", &diags)
	cfg.SkipBits = lookupBitList(v, "skip_bits", &diags)
	cfg.SkipFloats = lookupBool(v, "skip_floats", false, &diags)
	cfg.SkipIntegers = lookupBool(v, "skip_integers", false, &diags)

	cfg.OnlyNames = lookupNameList(v, "only_names", &diags)
	cfg.OnlyBits = lookupBitList(v, "only_bits", &diags)
	cfg.OnlyFloats = lookupBool(v, "only_floats", false, &diags)
	cfg.OnlyIntegers = lookupBool(v, "only_integers", false, &diags)

	cfg.SkipArrays = lookupBool(v, "skip_arrays", false, &diags)
	cfg.ArraysLiteOnly = lookupBool(v, "arrays_lite_only", false, &diags)

	compilePromotion(v.LookupPath(cue.ParsePath("promote")), cfg, &diags)

	diags = append(diags, cfg.Normalize()...)
	return cfg, diags, nil
}

// compilePromotion fills cfg.Promote from the optional promote struct.
// Enabling promotion with no explicit categories gates integer scalars
// on; `all: true` is shorthand for all four categories.
func compilePromotion(v cue.Value, cfg *Config, diags *[]ir.Diag) {
	if !v.Exists() {
		return
	}

	p := &cfg.Promote
	p.Enabled = lookupBool(v, "enable", false, diags)
	if p.Enabled {
		p.Integers = true // default category
	}
	if lookupBool(v, "all", false, diags) {
		p.Integers, p.Floats, p.IntArrays, p.FloatArrays = true, true, true, true
	}

	// Explicit per-category settings override the defaults either way.
	if b, ok := lookupOptBool(v, "integers", diags); ok {
		p.Integers = b
	}
	if b, ok := lookupOptBool(v, "floats", diags); ok {
		p.Floats = b
	}
	if b, ok := lookupOptBool(v, "int_arrays", diags); ok {
		p.IntArrays = b
	}
	if b, ok := lookupOptBool(v, "float_arrays", diags); ok {
		p.FloatArrays = b
	}

	p.Ops = lookupBool(v, "ops", false, diags)
	p.Dedup = lookupBool(v, "dedup", false, diags)
	if n, ok := lookupInt(v, "probability", diags); ok {
		p.Probability = n
	}
	if n, ok := lookupInt(v, "max_array", diags); ok {
		p.MaxArray = n
	}
}

func lookupInt(v cue.Value, field string, diags *[]ir.Diag) (int, bool) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return 0, false
	}
	n, err := f.Int64()
	if err != nil {
		*diags = append(*diags, invalidOption(field, "not an integer, treated as unset"))
		return 0, false
	}
	return int(n), true
}

func lookupBool(v cue.Value, field string, def bool, diags *[]ir.Diag) bool {
	b, ok := lookupOptBool(v, field, diags)
	if !ok {
		return def
	}
	return b
}

func lookupOptBool(v cue.Value, field string, diags *[]ir.Diag) (bool, bool) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return false, false
	}
	b, err := f.Bool()
	if err != nil {
		*diags = append(*diags, invalidOption(field, "not a bool, treated as unset"))
		return false, false
	}
	return b, true
}

// lookupNameList parses a comma-separated name pattern list.
// Empty segments are dropped; surrounding whitespace is trimmed.
func lookupNameList(v cue.Value, field string, diags *[]ir.Diag) []string {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return nil
	}
	s, err := f.String()
	if err != nil {
		*diags = append(*diags, invalidOption(field, "not a string, treated as unset"))
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// lookupBitList parses a comma-separated bit width list like "8,16,32".
// Non-numeric tokens are dropped with a diagnostic; width validation
// happens later in Normalize.
func lookupBitList(v cue.Value, field string, diags *[]ir.Diag) []int {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return nil
	}
	s, err := f.String()
	if err != nil {
		*diags = append(*diags, invalidOption(field, "not a string, treated as unset"))
		return nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			*diags = append(*diags, invalidOption(field,
				fmt.Sprintf("bit width token %q is not numeric, dropped", part)))
			continue
		}
		out = append(out, n)
	}
	return out
}
