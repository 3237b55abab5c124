package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hexveil/obscura/internal/filter"
	"github.com/hexveil/obscura/internal/ir"
	"github.com/hexveil/obscura/internal/resolve"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Policy string // preview decisions under this policy without rewriting
}

// UnitReport summarizes a unit for inspection output.
type UnitReport struct {
	Unit      string          `json:"unit"`
	Hash      string          `json:"hash"`
	Variables []VariableEntry `json:"variables"`
	Funcs     []FuncEntry     `json:"funcs"`
	Decoders  []string        `json:"decoders,omitempty"`
}

// VariableEntry describes one global.
type VariableEntry struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Array    bool   `json:"array,omitempty"`
	Len      int    `json:"len,omitempty"`
	Decision string `json:"decision,omitempty"`
	Layers   int    `json:"layers,omitempty"`
}

// FuncEntry describes one function.
type FuncEntry struct {
	Name   string `json:"name"`
	Locals int    `json:"locals"`
	Stmts  int    `json:"stmts"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "inspect <unit.json>",
		Short:         "Summarize a unit's variables, functions, and encodings",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Policy, "policy", "p", "",
		"preview the decisions this policy would make, without rewriting")

	return cmd
}

func runInspect(opts *InspectOptions, unitPath string, cmd *cobra.Command) error {
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

	hash, err := ir.UnitHash(u)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "hash unit", err)
	}

	// With a policy, show the decision each declared global would get.
	// Directives resolve first; promotion and rewriting never run here.
	if opts.Policy != "" {
		cfg, policyDiags, err := LoadPolicy(opts.Policy)
		if err != nil {
			formatter.Error(ErrCodePolicy, err.Error(), nil)
			return WrapExitError(ExitCommandError, "load policy", err)
		}
		for _, d := range policyDiags {
			formatter.VerboseLog("policy: %s", d)
		}
		for _, d := range resolve.Apply(u) {
			formatter.VerboseLog("resolve: %s", d)
		}
		for _, d := range filter.Apply(u, cfg) {
			formatter.VerboseLog("filter: %s", d)
		}
	}

	report := &UnitReport{Unit: u.Name, Hash: hash}
	for _, g := range u.Globals {
		entry := VariableEntry{
			Name:     g.Name,
			Type:     g.Type.String(),
			Array:    g.IsArray,
			Len:      g.Len,
			Decision: string(g.Decision),
		}
		if g.Enc != nil {
			entry.Layers = len(g.Enc.Layers)
		}
		report.Variables = append(report.Variables, entry)
	}
	for _, f := range u.Funcs {
		report.Funcs = append(report.Funcs, FuncEntry{
			Name:   f.Name,
			Locals: len(f.Locals),
			Stmts:  len(f.Body),
		})
	}
	for _, d := range u.Decoders {
		report.Decoders = append(report.Decoders, d.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "unit %s (%s)\n", report.Unit, report.Hash)
	for _, v := range report.Variables {
		line := fmt.Sprintf("  %s %s", v.Name, v.Type)
		if v.Array {
			line += fmt.Sprintf("[%d]", v.Len)
		}
		if v.Decision != "" {
			line += fmt.Sprintf(" decision=%s", v.Decision)
		}
		if v.Layers > 0 {
			line += fmt.Sprintf(" layers=%d", v.Layers)
		}
		b.WriteString(line + "\n")
	}
	for _, f := range report.Funcs {
		fmt.Fprintf(&b, "  func %s: %d locals, %d stmts\n", f.Name, f.Locals, f.Stmts)
	}
	if len(report.Decoders) > 0 {
		fmt.Fprintf(&b, "  decoders: %s\n", strings.Join(report.Decoders, ", "))
	}
	return formatter.SuccessText(strings.TrimRight(b.String(), "\n"), report)
}
