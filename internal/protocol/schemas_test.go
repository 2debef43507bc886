package protocol_test

import (
	"encoding/json"
	"testing"

	"agentkernel.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	validate := func(name, doc string) {
		t.Helper()
		var v any
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			t.Fatalf("decode sample: %v", err)
		}
		if err := protocol.Validate(name, v); err != nil {
			t.Fatalf("validate %s: %v", name, err)
		}
	}

	validate(protocol.SchemaBudgetReceipt, `{
	  "schema":"agent-kernel/BudgetReceiptArtifact",
	  "schemaVersion":1,
	  "meta":{"id":"rcpt_1"},
	  "budgetRef":{"id":"budget_1","schema":"agent-kernel/BudgetArtifact","schemaVersion":1},
	  "lineItems":[{"id":"a","kind":"actor","unitCost":10,"status":"approved"}],
	  "remaining":100
	}`)
	validate(protocol.SchemaPoolCatalog, `{
	  "entries":[{"id":"bat_fire","type":"actor","subType":"bat","motivation":"attacking","affinity":"fire","cost":12}]
	}`)
	validate(protocol.SchemaSummary, `{
	  "dungeonTheme":"volcanic_forge",
	  "budgetTokens":400,
	  "rooms":[{"motivation":"stationary","affinity":"fire","count":2}],
	  "actors":[{"role":"attacking","count":1,"tokenHint":20}],
	  "missing":[]
	}`)
}

func TestSchemas_RejectBadLedger(t *testing.T) {
	ledger := protocol.BudgetLedgerArtifact{
		Header:    protocol.NewHeader(protocol.SchemaBudgetLedger, protocol.Meta{}),
		Remaining: 10,
		SpendEvents: []protocol.SpendEvent{
			{ID: "a", Kind: "actor", Quantity: 0, UnitCost: 1, TotalCost: 0},
		},
		BudgetRef:  protocol.UnknownRef(protocol.SchemaBudget),
		ReceiptRef: protocol.UnknownRef(protocol.SchemaBudgetReceipt),
	}
	if err := protocol.ValidateArtifact(protocol.SchemaBudgetLedger, ledger); err == nil {
		t.Fatalf("expected quantity 0 to fail ledger schema")
	}
	ledger.SpendEvents[0].Quantity = 1
	if err := protocol.ValidateArtifact(protocol.SchemaBudgetLedger, ledger); err != nil {
		t.Fatalf("expected valid ledger, got %v", err)
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	if protocol.HasSchema(protocol.SchemaTelemetry) {
		t.Fatalf("telemetry has no embedded schema")
	}
	if err := protocol.Validate(protocol.SchemaTelemetry, map[string]any{}); err == nil {
		t.Fatalf("expected error for unknown schema")
	}
}
