package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hexveil/obscura/internal/pipeline"
	"github.com/hexveil/obscura/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Unit string // list runs for this unit
	Run  string // show one run
}

// RunList is the data payload when listing runs.
type RunList struct {
	Unit string   `json:"unit"`
	Runs []string `json:"runs"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report <db>",
		Short: "Query stored run reports",
		Long: `Query the run-report database: list the runs recorded for a unit, or
show one run's decisions and diagnostics. Run IDs are UUIDv7, so listing
order is creation order.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Unit, "unit", "", "list runs recorded for this unit")
	cmd.Flags().StringVar(&opts.Run, "run", "", "show the report for one run ID")

	return cmd
}

func runReport(opts *ReportOptions, dbPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if (opts.Unit == "") == (opts.Run == "") {
		err := fmt.Errorf("exactly one of --unit or --run is required")
		formatter.Error(ErrCodeBadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "report", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open report database", err)
	}
	defer st.Close()

	if opts.Unit != "" {
		ids, err := st.ListRuns(cmd.Context(), opts.Unit)
		if err != nil {
			formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitFailure, "list runs", err)
		}
		list := &RunList{Unit: opts.Unit, Runs: ids}
		var b strings.Builder
		fmt.Fprintf(&b, "unit %s: %d run(s)", opts.Unit, len(ids))
		for _, id := range ids {
			b.WriteString("\n  " + id)
		}
		return formatter.SuccessText(b.String(), list)
	}

	res, err := st.ReadRun(cmd.Context(), opts.Run)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitFailure, "run not found", err)
		}
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "read run", err)
	}
	return formatter.SuccessText(formatRun(res), res)
}

func formatRun(res *pipeline.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: unit %s\n", res.RunID, res.UnitName)
	fmt.Fprintf(&b, "  policy %s\n  input  %s\n  output %s\n", res.PolicyHash, res.InputHash, res.OutputHash)
	fmt.Fprintf(&b, "  versions: pipeline %s, ir %s\n", res.PipelineVersion, res.IRVersion)
	for _, d := range res.Decisions {
		line := fmt.Sprintf("  %s: %s", d.Variable, d.Decision)
		if d.Promoted {
			line += " (promoted)"
		}
		if d.Layers > 0 {
			line += fmt.Sprintf(", %d layer(s)", d.Layers)
		}
		b.WriteString(line + "\n")
	}
	for _, d := range res.Diags {
		fmt.Fprintf(&b, "  diag: %s\n", d)
	}
	return strings.TrimRight(b.String(), "\n")
}
