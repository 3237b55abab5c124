// Obscura obscures compile-time constants in a unit's intermediate
// representation. Constants are stored under a reversible encoding and
// decoded at their read sites; every run is deterministic and leaves an
// auditable report.
//
// Usage:
//
//	# Transform a unit with a policy
//	obscura transform unit.json --policy policy.cue -o unit.enc.json
//
//	# Record the run report
//	obscura transform unit.json --policy policy.cue --report runs.db
//
//	# Inspect a unit's variables and encodings
//	obscura inspect unit.enc.json
//
//	# Check a transformation decodes back to the original
//	obscura verify unit.json unit.enc.json
//
//	# Query stored run reports
//	obscura report runs.db --unit sample
//	obscura report runs.db --run 0190a9e2-...
package main

import (
	"fmt"
	"os"

	"github.com/hexveil/obscura/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
