package store

import (
	"context"
	"fmt"

	"github.com/hexveil/obscura/internal/pipeline"
)

// WriteRun inserts a complete run report in a single transaction: the
// run row, its decisions, and its diagnostics all land together or not
// at all, so a crash never leaves decisions without their run.
//
// Uses ON CONFLICT(run_id) DO NOTHING for idempotency - replaying a run
// record with an already stored ID is silently ignored.
func (s *Store) WriteRun(ctx context.Context, res *pipeline.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin: %w", err)
	}
	defer tx.Rollback()

	r, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, unit_name, policy_hash, input_hash, output_hash, pipeline_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		res.RunID,
		res.UnitName,
		res.PolicyHash,
		res.InputHash,
		res.OutputHash,
		res.PipelineVersion,
		res.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write run %s: %w", res.RunID, err)
	}
	if n, err := r.RowsAffected(); err == nil && n == 0 {
		// Already stored; keep the original record.
		return nil
	}

	for i, d := range res.Decisions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO decisions
			(run_id, position, variable, scope, decision, promoted, layers)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			res.RunID, i, d.Variable, string(d.Scope), string(d.Decision), d.Promoted, d.Layers,
		)
		if err != nil {
			return fmt.Errorf("write decision %s/%s: %w", res.RunID, d.Variable, err)
		}
	}

	for i, d := range res.Diags {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO diags
			(run_id, position, stage, code, subject, message)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			res.RunID, i, string(d.Stage), string(d.Code), d.Subject, d.Message,
		)
		if err != nil {
			return fmt.Errorf("write diag %s/%d: %w", res.RunID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run %s: commit: %w", res.RunID, err)
	}
	return nil
}
