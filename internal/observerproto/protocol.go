package observerproto

// Version is the observer protocol version. Artifacts carry their own
// schemaVersion; the two move independently.
const Version = 1

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeWelcome   = "WELCOME"
)

// Client -> Server. First message on the telemetry WS connection. An empty
// Personas list subscribes to every persona.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion int      `json:"protocolVersion"`
	Personas        []string `json:"personas,omitempty"`
}

// Server -> Client. Sent once after a valid SUBSCRIBE.
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion int    `json:"protocolVersion"`
	RunID           string `json:"runId"`
	SessionID       string `json:"sessionId"`
}

// HTTP response for GET /v1/telemetry/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion int               `json:"protocolVersion"`
	RunID           string            `json:"runId"`
	Tick            uint64            `json:"tick"`
	States          map[string]string `json:"states"`
	Subscribers     int               `json:"subscribers"`
}
