package ir

// Version constants for the build model and the engine.
const (
	// ModelVersion is the build model schema version.
	ModelVersion = "1"

	// EngineVersion is the graphres engine version. Part of every
	// resolution context key so an engine upgrade never replays stale
	// entries.
	EngineVersion = "0.1.0"
)
