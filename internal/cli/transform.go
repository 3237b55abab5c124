package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hexveil/obscura/internal/pipeline"
	"github.com/hexveil/obscura/internal/store"
)

// TransformOptions holds flags for the transform command.
type TransformOptions struct {
	*RootOptions
	Policy string // policy CUE file
	Output string // transformed unit output path
	Report string // optional run-report database
}

// TransformSummary is the data payload reported after a run.
type TransformSummary struct {
	RunID      string `json:"run_id"`
	Unit       string `json:"unit"`
	InputHash  string `json:"input_hash"`
	OutputHash string `json:"output_hash"`
	PolicyHash string `json:"policy_hash"`
	Decisions  int    `json:"decisions"`
	Promoted   int    `json:"promoted"`
	Diags      int    `json:"diags"`
	Output     string `json:"output,omitempty"`
}

// NewTransformCommand creates the transform command.
func NewTransformCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransformOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transform <unit.json>",
		Short: "Run the constant encryption pipeline over a unit",
		Long: `Transform a unit: resolve directives, promote qualifying locals,
filter by policy, and rewrite surviving constants with a reversible
encoding. The transformed unit is written in canonical JSON; two runs
with the same unit and policy produce byte-identical output.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransform(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Policy, "policy", "p", "", "policy CUE file (default: all levels off)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path (default: <unit>.enc.json)")
	cmd.Flags().StringVar(&opts.Report, "report", "", "SQLite database recording the run report")

	return cmd
}

func runTransform(opts *TransformOptions, unitPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	u, err := LoadUnit(unitPath)
	if err != nil {
		formatter.Error(ErrCodeBadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load unit", err)
	}

	cfg, policyDiags, err := LoadPolicy(opts.Policy)
	if err != nil {
		formatter.Error(ErrCodePolicy, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load policy", err)
	}
	for _, d := range policyDiags {
		formatter.VerboseLog("policy: %s", d)
	}

	res, err := pipeline.New(cfg).Run(u)
	if err != nil {
		formatter.Error(ErrCodePipeline, err.Error(), nil)
		return WrapExitError(ExitFailure, "transform", err)
	}
	for _, d := range res.Diags {
		formatter.VerboseLog("diag: %s", d)
	}

	output := opts.Output
	if output == "" {
		output = strings.TrimSuffix(unitPath, ".json") + ".enc.json"
	}
	if err := WriteUnit(output, res.Unit); err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "write output", err)
	}

	if opts.Report != "" {
		st, err := store.Open(opts.Report)
		if err != nil {
			formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "open report database", err)
		}
		defer st.Close()
		if err := st.WriteRun(cmd.Context(), res); err != nil {
			formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "write run report", err)
		}
	}

	summary := &TransformSummary{
		RunID:      res.RunID,
		Unit:       res.UnitName,
		InputHash:  res.InputHash,
		OutputHash: res.OutputHash,
		PolicyHash: res.PolicyHash,
		Decisions:  len(res.Decisions),
		Promoted:   len(res.Promotions.Promoted),
		Diags:      len(res.Diags),
		Output:     output,
	}
	text := fmt.Sprintf("run %s: unit %s -> %s\n  input  %s\n  output %s\n  decisions %d, promoted %d, diags %d",
		summary.RunID, summary.Unit, output,
		summary.InputHash, summary.OutputHash,
		summary.Decisions, summary.Promoted, summary.Diags)
	return formatter.SuccessText(text, summary)
}
