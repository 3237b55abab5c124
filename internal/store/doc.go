// Package store persists run reports in SQLite.
//
// Each pipeline run produces one report: the run row with its content
// hashes, the per-variable decisions, and the diagnostics. Reports are
// write-once; replaying a run ID is a no-op. The store never holds unit
// payloads, only the audit trail needed to answer "what did run X decide
// and over which exact input".
package store
