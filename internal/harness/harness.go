// Package harness runs conformance scenarios end to end: build the
// unit, run the pipeline, verify the output against the input, and
// capture a canonical snapshot for golden comparison.
//
// Every scenario runs with a fixed run ID generator, so two executions
// of the same scenario produce byte-identical snapshots. Golden files
// are the source of truth for expected transformation output; a diff in
// one means the transformation's observable behavior changed.
package harness

import (
	"encoding/json"
	"fmt"

	"github.com/hexveil/obscura/internal/ir"
	"github.com/hexveil/obscura/internal/pipeline"
)

// Result captures one scenario execution.
type Result struct {
	Scenario *Scenario
	Run      *pipeline.Result

	// Snapshot is the canonical serialized run: the transformed unit
	// plus the decisions and diagnostics, stable byte for byte.
	Snapshot []byte
}

// Run executes a scenario. The transformed unit is verified against the
// input before the result is returned; a verification failure is an
// error, not a snapshot difference.
func Run(scenario *Scenario) (*Result, error) {
	input := scenario.BuildUnit()
	cfg := scenario.Policy.Config()

	p := pipeline.New(cfg,
		pipeline.WithRunIDGenerator(scenarioRunIDs(scenario.Name)),
		pipeline.WithLogger(nil),
	)
	run, err := p.Run(input)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	if err := pipeline.Verify(scenario.BuildUnit(), run.Unit); err != nil {
		return nil, fmt.Errorf("scenario %s: verify: %w", scenario.Name, err)
	}

	if err := checkExpectations(scenario, run); err != nil {
		return nil, fmt.Errorf("scenario %s: expect: %w", scenario.Name, err)
	}

	snapshot, err := buildSnapshot(scenario, run)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: snapshot: %w", scenario.Name, err)
	}

	return &Result{Scenario: scenario, Run: run, Snapshot: snapshot}, nil
}

// checkExpectations compares the run's outcomes against the scenario's
// declared expectations.
func checkExpectations(s *Scenario, run *pipeline.Result) error {
	decisions := make(map[string]ir.Decision, len(run.Decisions))
	for _, d := range run.Decisions {
		decisions[d.Variable] = d.Decision
	}
	for name, want := range s.Expect.Decisions {
		got, ok := decisions[name]
		if !ok {
			return fmt.Errorf("no variable %s in the output", name)
		}
		if got != ir.Decision(want) {
			return fmt.Errorf("decision for %s is %s, want %s", name, got, want)
		}
	}
	for _, code := range s.Expect.Diags {
		if !hasDiag(run.Diags, ir.DiagCode(code)) {
			return fmt.Errorf("diagnostic %s never emitted", code)
		}
	}
	return nil
}

func hasDiag(diags []ir.Diag, code ir.DiagCode) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

// scenarioRunIDs returns a generator producing one predictable ID per
// scenario; the scenario name keeps IDs distinct across golden files.
func scenarioRunIDs(name string) pipeline.RunIDGenerator {
	return pipeline.NewFixedGenerator("run-" + name)
}

// snapshotDoc is the serialized form of one run. Field names are part of
// the golden format; renaming one invalidates every fixture.
type snapshotDoc struct {
	Scenario   string              `json:"scenario"`
	UnitCanon  json.RawMessage     `json:"unit"`
	InputHash  string              `json:"input_hash"`
	OutputHash string              `json:"output_hash"`
	PolicyHash string              `json:"policy_hash"`
	Decisions  []pipeline.Decision `json:"decisions"`
	Diags      []ir.Diag           `json:"diags,omitempty"`
}

func buildSnapshot(scenario *Scenario, run *pipeline.Result) ([]byte, error) {
	unitJSON, err := ir.MarshalCanonical(run.Unit)
	if err != nil {
		return nil, err
	}

	doc := snapshotDoc{
		Scenario:   scenario.Name,
		UnitCanon:  unitJSON,
		InputHash:  run.InputHash,
		OutputHash: run.OutputHash,
		PolicyHash: run.PolicyHash,
		Decisions:  run.Decisions,
		Diags:      run.Diags,
	}
	return json.MarshalIndent(&doc, "", "  ")
}
