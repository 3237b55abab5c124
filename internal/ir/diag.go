package ir

import "fmt"

// Stage names the pipeline stage that emitted a diagnostic.
type Stage string

const (
	StagePolicy  Stage = "policy"
	StageResolve Stage = "resolve"
	StagePromote Stage = "promote"
	StageFilter  Stage = "filter"
	StageCipher  Stage = "cipher"
)

// DiagCode categorizes diagnostics.
type DiagCode string

const (
	// DiagUnknownDirective - an unrecognized directive token was ignored.
	DiagUnknownDirective DiagCode = "UNKNOWN_DIRECTIVE"

	// DiagDirectiveConflict - ForcePromote and NoPromote on one declaration.
	DiagDirectiveConflict DiagCode = "DIRECTIVE_CONFLICT"

	// DiagInvalidOption - a policy option fell back to its default.
	DiagInvalidOption DiagCode = "INVALID_OPTION"

	// DiagLevelsDisabled - neither encoding level enabled, all variables excluded.
	DiagLevelsDisabled DiagCode = "LEVELS_DISABLED"

	// DiagAlreadyRewritten - re-entry into a rewritten descriptor was rejected.
	DiagAlreadyRewritten DiagCode = "ALREADY_REWRITTEN"
)

// Diag is one non-fatal finding from a pipeline stage. No diagnostic in
// this subsystem aborts a run; stages degrade to exclude/leave-unchanged
// and report what happened here.
type Diag struct {
	Stage Stage    `json:"stage"`
	Code  DiagCode `json:"code"`

	// Subject is the affected variable or option name, if any.
	Subject string `json:"subject,omitempty"`

	Message string `json:"message"`
}

// String renders the diagnostic in "STAGE/CODE subject: message" form.
func (d Diag) String() string {
	if d.Subject != "" {
		return fmt.Sprintf("%s/%s %s: %s", d.Stage, d.Code, d.Subject, d.Message)
	}
	return fmt.Sprintf("%s/%s: %s", d.Stage, d.Code, d.Message)
}
