package policy

import (
	"encoding/json"
	"fmt"

	"github.com/hexveil/obscura/internal/ir"
)

// Default option values. These mirror the documented front-end defaults:
// one iteration per level, promotion probability 100, promotion array
// size cap 1024 (0 = unlimited).
const (
	DefaultIterations  = 1
	DefaultProbability = 100
	DefaultMaxArray    = 1024
)

// Promotion holds the local-to-global promotion knobs.
type Promotion struct {
	// Enabled turns on automatic promotion. Explicit ForcePromote
	// directives work even when this is off.
	Enabled bool `json:"enabled"`

	// Per-category gates. Enabling promotion with no explicit categories
	// gates integer scalars on and everything else off.
	Integers    bool `json:"integers"`
	Floats      bool `json:"floats"`
	IntArrays   bool `json:"int_arrays"`
	FloatArrays bool `json:"float_arrays"`

	// Ops also promotes results of binary operations on constants.
	Ops bool `json:"ops"`

	// Dedup collapses identical promoted constants into one global.
	Dedup bool `json:"dedup"`

	// Probability is the per-variable sampling threshold, 0-100.
	Probability int `json:"probability"`

	// MaxArray caps array promotion by element count. 0 = unlimited.
	MaxArray int `json:"max_array"`
}

// Config is the process-wide policy for one transformation run.
// Read-only after construction.
type Config struct {
	// Seed drives deterministic promotion sampling and key derivation.
	// Same unit + same Config (including Seed) => byte-identical output.
	Seed uint64 `json:"seed"`

	// Encoding levels.
	Lite           bool `json:"lite"`
	Deep           bool `json:"deep"`
	LiteIterations int  `json:"lite_iterations"`
	DeepIterations int  `json:"deep_iterations"`

	// DeepInline forces inline expansion of deep decoding instead of a
	// shared routine per type signature. Lite decoding is always inline.
	DeepInline bool `json:"deep_inline"`

	// Blacklist filters - matching variables are excluded.
	SkipNames    []string `json:"skip_names,omitempty"`
	SkipBits     []int    `json:"skip_bits,omitempty"`
	SkipFloats   bool     `json:"skip_floats"`
	SkipIntegers bool     `json:"skip_integers"`

	// Whitelist filters - if any dimension is configured, only matching
	// variables survive.
	OnlyNames    []string `json:"only_names,omitempty"`
	OnlyBits     []int    `json:"only_bits,omitempty"`
	OnlyFloats   bool     `json:"only_floats"`
	OnlyIntegers bool     `json:"only_integers"`

	// Array policy.
	SkipArrays     bool `json:"skip_arrays"`
	ArraysLiteOnly bool `json:"arrays_lite_only"`

	Promote Promotion `json:"promote"`
}

// Default returns the configuration used when no policy file is given:
// both levels off (the engine is effectively disabled), promotion off,
// documented numeric defaults everywhere else.
func Default() *Config {
	return &Config{
		LiteIterations: DefaultIterations,
		DeepIterations: DefaultIterations,
		Promote: Promotion{
			Probability: DefaultProbability,
			MaxArray:    DefaultMaxArray,
		},
	}
}

// AnyLevel reports whether at least one encoding level is enabled.
func (c *Config) AnyLevel() bool {
	return c.Lite || c.Deep
}

// WhitelistConfigured reports whether any whitelist dimension is set.
func (c *Config) WhitelistConfigured() bool {
	return len(c.OnlyNames) > 0 || len(c.OnlyBits) > 0 || c.OnlyFloats || c.OnlyIntegers
}

// Hash returns the content hash of the configuration, stored in run
// reports so "same policy" is auditable.
func (c *Config) Hash() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("policy hash: %w", err)
	}
	return ir.HashWithDomain(ir.DomainPolicy, data), nil
}

// Normalize applies the defined fallbacks for out-of-range numeric
// options and returns diagnostics for every correction. Invalid values
// are treated as unset, never as errors.
func (c *Config) Normalize() []ir.Diag {
	var diags []ir.Diag

	if c.LiteIterations < 1 {
		diags = append(diags, invalidOption("lite_iterations",
			fmt.Sprintf("iteration count %d < 1, using default %d", c.LiteIterations, DefaultIterations)))
		c.LiteIterations = DefaultIterations
	}
	if c.DeepIterations < 1 {
		diags = append(diags, invalidOption("deep_iterations",
			fmt.Sprintf("iteration count %d < 1, using default %d", c.DeepIterations, DefaultIterations)))
		c.DeepIterations = DefaultIterations
	}
	if c.Promote.Probability < 0 || c.Promote.Probability > 100 {
		diags = append(diags, invalidOption("promote.probability",
			fmt.Sprintf("probability %d outside 0-100, using default %d", c.Promote.Probability, DefaultProbability)))
		c.Promote.Probability = DefaultProbability
	}
	if c.Promote.MaxArray < 0 {
		diags = append(diags, invalidOption("promote.max_array",
			fmt.Sprintf("max array size %d < 0, using default %d", c.Promote.MaxArray, DefaultMaxArray)))
		c.Promote.MaxArray = DefaultMaxArray
	}

	c.SkipBits = filterBits("skip_bits", c.SkipBits, &diags)
	c.OnlyBits = filterBits("only_bits", c.OnlyBits, &diags)

	return diags
}

// filterBits drops widths that are not machine scalar widths.
func filterBits(option string, bits []int, diags *[]ir.Diag) []int {
	out := bits[:0]
	for _, b := range bits {
		switch b {
		case 8, 16, 32, 64:
			out = append(out, b)
		default:
			*diags = append(*diags, invalidOption(option,
				fmt.Sprintf("bit width %d is not a machine scalar width, dropped", b)))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func invalidOption(option, msg string) ir.Diag {
	return ir.Diag{Stage: ir.StagePolicy, Code: ir.DiagInvalidOption, Subject: option, Message: msg}
}
