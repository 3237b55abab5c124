// Package pipeline runs the transformation stages over one unit.
//
// Stage order is fixed: directive resolution, local-to-global promotion,
// filtering, encryption. Promotion runs before filtering so promoted
// globals flow through the same exclusion chain as declared globals, and
// filtering runs before encryption so the engine only ever sees settled
// decisions.
//
// Everything the pipeline does is a pure function of the input unit and
// the policy configuration. There is no wall-clock input, no map
// iteration feeding output order, and no randomness beyond the seeded
// sampler, so two runs over the same unit with the same policy produce
// byte-identical canonical output.
package pipeline

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/hexveil/obscura/internal/cipher"
	"github.com/hexveil/obscura/internal/filter"
	"github.com/hexveil/obscura/internal/ir"
	"github.com/hexveil/obscura/internal/policy"
	"github.com/hexveil/obscura/internal/promote"
	"github.com/hexveil/obscura/internal/resolve"
)

// Decision records the settled outcome for one global after a run.
type Decision struct {
	Variable string      `json:"variable"`
	Scope    ir.Scope    `json:"scope"`
	Decision ir.Decision `json:"decision"`
	Promoted bool        `json:"promoted"`
	Layers   int         `json:"layers"`
}

// Result is the full record of one pipeline run.
type Result struct {
	RunID      string `json:"run_id"`
	UnitName   string `json:"unit_name"`
	PolicyHash string `json:"policy_hash"`
	InputHash  string `json:"input_hash"`
	OutputHash string `json:"output_hash"`

	PipelineVersion string `json:"pipeline_version"`
	IRVersion       string `json:"ir_version"`

	// Unit is the transformed copy. The input unit is never mutated.
	Unit *ir.Unit `json:"-"`

	Decisions  []Decision      `json:"decisions"`
	Promotions *promote.Report `json:"promotions"`
	Diags      []ir.Diag       `json:"diags,omitempty"`
}

// Pipeline holds the per-run configuration. A Pipeline is cheap and
// carries no cross-run state; build one per policy.
type Pipeline struct {
	cfg   *policy.Config
	idGen RunIDGenerator
	log   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRunIDGenerator overrides run ID generation. Tests use
// NewFixedGenerator for reproducible run records.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(p *Pipeline) {
		p.idGen = g
	}
}

// WithLogger routes stage logging to l. Passing nil discards all
// pipeline output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l == nil {
			l = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		p.log = l
	}
}

// New creates a pipeline for one policy. The configuration is normalized
// first; normalization diagnostics surface on every subsequent Result.
func New(cfg *policy.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		idGen: UUIDv7Generator{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run transforms a copy of the unit and returns the run record. The
// input unit is left untouched so callers can verify the output against
// it afterwards.
func (p *Pipeline) Run(u *ir.Unit) (*Result, error) {
	runID := p.idGen.Generate()
	log := p.log.With("run_id", runID, "unit", u.Name)
	log.Info("pipeline starting",
		"globals", len(u.Globals),
		"funcs", len(u.Funcs),
	)

	diags := p.cfg.Normalize()

	policyHash, err := p.cfg.Hash()
	if err != nil {
		return nil, &Error{Code: ErrCodePolicyHash, Unit: u.Name, Err: err}
	}
	inputHash, err := ir.UnitHash(u)
	if err != nil {
		return nil, &Error{Code: ErrCodeCanonical, Unit: u.Name, Err: err}
	}

	work, err := cloneUnit(u)
	if err != nil {
		return nil, &Error{Code: ErrCodeCanonical, Unit: u.Name, Err: err}
	}

	stageDiags := resolve.Apply(work)
	diags = append(diags, stageDiags...)
	log.Debug("directives resolved", "diags", len(stageDiags))

	report := promote.Run(work, p.cfg)
	log.Debug("promotion complete",
		"promoted", len(report.Promoted),
		"deduped", len(report.Deduped),
	)

	stageDiags = filter.Apply(work, p.cfg)
	diags = append(diags, stageDiags...)
	log.Debug("filtering complete", "diags", len(stageDiags))

	stageDiags = cipher.NewEngine(p.cfg).Rewrite(work)
	diags = append(diags, stageDiags...)
	log.Debug("encryption complete", "diags", len(stageDiags))

	outputHash, err := ir.UnitHash(work)
	if err != nil {
		return nil, &Error{Code: ErrCodeCanonical, Unit: u.Name, Err: err}
	}

	res := &Result{
		RunID:           runID,
		UnitName:        u.Name,
		PolicyHash:      policyHash,
		InputHash:       inputHash,
		OutputHash:      outputHash,
		PipelineVersion: ir.PipelineVersion,
		IRVersion:       ir.IRVersion,
		Unit:            work,
		Promotions:      report,
		Diags:           diags,
	}
	promoted := make(map[string]bool, len(report.Promoted))
	for _, name := range report.Promoted {
		promoted[name] = true
	}
	for _, g := range work.Globals {
		d := Decision{
			Variable: g.Name,
			Scope:    g.Scope,
			Decision: g.Decision,
			Promoted: promoted[g.Name],
		}
		if g.Enc != nil {
			d.Layers = len(g.Enc.Layers)
		}
		res.Decisions = append(res.Decisions, d)
	}

	log.Info("pipeline complete",
		"input_hash", inputHash,
		"output_hash", outputHash,
		"decisions", len(res.Decisions),
		"diags", len(diags),
	)
	return res, nil
}

// cloneUnit deep-copies a unit through its canonical encoding. The copy
// is byte-equivalent to the normalized input, which is exactly the form
// the output hash is computed over.
func cloneUnit(u *ir.Unit) (*ir.Unit, error) {
	data, err := ir.MarshalCanonical(u)
	if err != nil {
		return nil, err
	}
	var out ir.Unit
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
