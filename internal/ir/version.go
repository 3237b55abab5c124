package ir

// Version constants for IR schema and pipeline.
const (
	// IRVersion is the IR schema version.
	IRVersion = "1"

	// PipelineVersion is the obscura pipeline version.
	PipelineVersion = "0.1.0"
)
