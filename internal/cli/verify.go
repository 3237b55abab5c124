package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hexveil/obscura/internal/pipeline"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
}

// VerifySummary is the data payload for a verification.
type VerifySummary struct {
	Original    string `json:"original"`
	Transformed string `json:"transformed"`
	Verified    bool   `json:"verified"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <original.json> <transformed.json>",
		Short: "Check that a transformed unit decodes back to the original",
		Long: `Verify a transformation: every obscured global's storage must decode
to its original value, and every read site must carry the exact inverse
of the recorded encoding. Exit code 1 signals a verification failure.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runVerify(opts *VerifyOptions, originalPath, transformedPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	original, err := LoadUnit(originalPath)
	if err != nil {
		formatter.Error(ErrCodeBadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load original", err)
	}
	transformed, err := LoadUnit(transformedPath)
	if err != nil {
		formatter.Error(ErrCodeBadInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load transformed", err)
	}

	if err := pipeline.Verify(original, transformed); err != nil {
		formatter.Error(ErrCodeVerify, err.Error(), nil)
		return WrapExitError(ExitFailure, "verification failed", err)
	}

	summary := &VerifySummary{
		Original:    originalPath,
		Transformed: transformedPath,
		Verified:    true,
	}
	return formatter.SuccessText(fmt.Sprintf("verified: %s decodes to %s", transformedPath, originalPath), summary)
}
