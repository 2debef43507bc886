// Package persona holds the output records shared by the personas that do
// more than walk their transition table.
package persona

import "agentkernel.ai/internal/persona/fsm"

// Action is an instruction for a collaborator outside the persona (the
// simulation engine, another persona, the solver).
type Action struct {
	Kind    string         `json:"kind"`
	ID      string         `json:"id,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Effect records something that happened as a consequence of the transition.
type Effect struct {
	Kind string         `json:"kind"`
	Data map[string]any `json:"data,omitempty"`
}

type Telemetry struct {
	Persona string         `json:"persona"`
	Event   fsm.Event      `json:"event"`
	From    fsm.State      `json:"from"`
	To      fsm.State      `json:"to"`
	Data    map[string]any `json:"data,omitempty"`
}

type Output struct {
	Actions   []Action    `json:"actions"`
	Effects   []Effect    `json:"effects"`
	Telemetry []Telemetry `json:"telemetry"`
}

func NewOutput() Output {
	return Output{Actions: []Action{}, Effects: []Effect{}, Telemetry: []Telemetry{}}
}

// Transitioned builds the telemetry line every transition emits.
func Transitioned(name string, ev fsm.Event, from, to fsm.Snapshot, data map[string]any) Telemetry {
	return Telemetry{Persona: name, Event: ev, From: from.State, To: to.State, Data: data}
}
