package protocol

// TelemetryRecord is one line of the run's telemetry stream: a persona
// transition (or a rejected attempt, with Error set) plus what it staged.
type TelemetryRecord struct {
	Schema  string         `json:"schema"`
	RunID   string         `json:"runId"`
	Tick    uint64         `json:"tick"`
	At      string         `json:"at"`
	Persona string         `json:"persona"`
	Event   string         `json:"event"`
	From    string         `json:"from"`
	To      string         `json:"to"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Actions []string       `json:"actions,omitempty"`
	Effects []string       `json:"effects,omitempty"`
}
