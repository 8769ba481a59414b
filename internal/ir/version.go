package ir

// Version constants for stored data and the binary.
const (
	// SchemaVersion is the persisted row encoding version.
	SchemaVersion = "1"

	// EngineVersion is the sheetrelay engine version.
	EngineVersion = "0.1.0"
)
