package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hexveil/obscura/internal/ir"
	"github.com/hexveil/obscura/internal/pipeline"
)

// ErrRunNotFound is returned when no run exists for the requested ID.
var ErrRunNotFound = errors.New("run not found")

// ReadRun returns the stored report for one run ID, with decisions and
// diagnostics in their original order.
//
// The returned Result carries no Unit or Promotions; only the recorded
// report fields are stored.
func (s *Store) ReadRun(ctx context.Context, runID string) (*pipeline.Result, error) {
	res := &pipeline.Result{}
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, unit_name, policy_hash, input_hash, output_hash, pipeline_version, ir_version
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(
		&res.RunID,
		&res.UnitName,
		&res.PolicyHash,
		&res.InputHash,
		&res.OutputHash,
		&res.PipelineVersion,
		&res.IRVersion,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}

	res.Decisions, err = s.readDecisions(ctx, runID)
	if err != nil {
		return nil, err
	}
	res.Diags, err = s.readDiags(ctx, runID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListRuns returns the stored run IDs for a unit, oldest first. UUIDv7
// run IDs embed the creation timestamp, so binary ID order is creation
// order.
//
// Returns an empty slice (not nil) when nothing is stored for the unit.
func (s *Store) ListRuns(ctx context.Context, unitName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id
		FROM runs
		WHERE unit_name = ?
		ORDER BY run_id COLLATE BINARY ASC
	`, unitName)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return ids, nil
}

func (s *Store) readDecisions(ctx context.Context, runID string) ([]pipeline.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT variable, scope, decision, promoted, layers
		FROM decisions
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []pipeline.Decision
	for rows.Next() {
		var d pipeline.Decision
		var scope, decision string
		if err := rows.Scan(&d.Variable, &scope, &decision, &d.Promoted, &d.Layers); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Scope = ir.Scope(scope)
		d.Decision = ir.Decision(decision)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}

func (s *Store) readDiags(ctx context.Context, runID string) ([]ir.Diag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, code, subject, message
		FROM diags
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query diags: %w", err)
	}
	defer rows.Close()

	var out []ir.Diag
	for rows.Next() {
		var d ir.Diag
		var stage, code string
		if err := rows.Scan(&stage, &code, &d.Subject, &d.Message); err != nil {
			return nil, fmt.Errorf("scan diag: %w", err)
		}
		d.Stage = ir.Stage(stage)
		d.Code = ir.DiagCode(code)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diags: %w", err)
	}
	return out, nil
}
