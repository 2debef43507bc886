package protocol

import "encoding/json"

const SchemaVersion = 1

const schemaPrefix = "agent-kernel/"

// Artifact schema names.
const (
	SchemaBudget        = schemaPrefix + "BudgetArtifact"
	SchemaPriceList     = schemaPrefix + "PriceListInput"
	SchemaBudgetReceipt = schemaPrefix + "BudgetReceiptArtifact"
	SchemaBudgetLedger  = schemaPrefix + "BudgetLedgerArtifact"
	SchemaPoolCatalog   = schemaPrefix + "PoolCatalog"
	SchemaSummary       = schemaPrefix + "Summary"
	SchemaSelections    = schemaPrefix + "Selections"
	SchemaTelemetry     = schemaPrefix + "Telemetry"
)

// UnknownID marks references synthesized for artifacts that carried no id.
const UnknownID = "unknown"

type Meta struct {
	ID        string `json:"id,omitempty"`
	RunID     string `json:"runId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	Producer  string `json:"producer,omitempty"`
}

// Header is embedded at the top of every artifact.
type Header struct {
	Schema        string `json:"schema"`
	SchemaVersion int    `json:"schemaVersion"`
	Meta          Meta   `json:"meta"`
}

func NewHeader(schema string, meta Meta) Header {
	return Header{Schema: schema, SchemaVersion: SchemaVersion, Meta: meta}
}

// Ref points back at a source artifact.
type Ref struct {
	ID            string `json:"id"`
	Schema        string `json:"schema"`
	SchemaVersion int    `json:"schemaVersion"`
}

func (r Ref) IsZero() bool { return r.ID == "" && r.Schema == "" }

func UnknownRef(schema string) Ref {
	return Ref{ID: UnknownID, Schema: schema, SchemaVersion: SchemaVersion}
}

// RefOf builds a reference to an artifact from its header, falling back to
// UnknownRef when the header has no id.
func RefOf(h Header, fallbackSchema string) Ref {
	schema := h.Schema
	if schema == "" {
		schema = fallbackSchema
	}
	if h.Meta.ID == "" {
		return UnknownRef(schema)
	}
	v := h.SchemaVersion
	if v == 0 {
		v = SchemaVersion
	}
	return Ref{ID: h.Meta.ID, Schema: schema, SchemaVersion: v}
}

// DecodeHeader lets callers route unknown JSON artifacts by schema.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	err := json.Unmarshal(b, &h)
	return h, err
}
