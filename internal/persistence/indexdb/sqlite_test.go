package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"agentkernel.ai/internal/catalog"
	"agentkernel.ai/internal/model"
	"agentkernel.ai/internal/protocol"
)

func TestSQLiteIndex_RecordsRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	cat := catalog.New([]model.CatalogEntry{{ID: "room_a", Type: model.KindRoom, Motivation: "stationary", Affinity: "fire", Cost: 5}})
	if err := idx.UpsertRun("run-1", cat, map[string]int{"tick_limit": 4}); err != nil {
		t.Fatalf("UpsertRun: %v", err)
	}
	for i := 0; i < 2; i++ {
		_ = idx.WriteTelemetry(protocol.TelemetryRecord{RunID: "run-1", Tick: uint64(i), Persona: "moderator", Event: "tick", From: "running", To: "running"})
	}
	idx.RecordPlan("run-1", "i#plan-1", 1, []model.Selection{
		{Kind: model.KindRoom, Source: "rooms[0]", Requested: model.Requested{Count: 3}, Applied: model.Applied{ID: "room_a", Cost: 5}, ApprovedCount: 2},
	})
	idx.RecordLedger("run-1", 2, protocol.BudgetLedgerArtifact{
		Header:      protocol.NewHeader(protocol.SchemaBudgetLedger, protocol.Meta{ID: "ledger-1"}),
		Remaining:   90,
		SpendEvents: []protocol.SpendEvent{{ID: "room_a", Kind: model.KindRoom, Quantity: 2, UnitCost: 5, TotalCost: 10}},
	})
	idx.RecordSnapshot("run-1", 2, "/abs/2.snap.zst")
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	count := func(q string) int {
		var n int
		if err := db.QueryRow(q).Scan(&n); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		return n
	}
	if n := count(`SELECT COUNT(*) FROM telemetry WHERE run_id='run-1'`); n != 2 {
		t.Fatalf("telemetry rows=%d want 2", n)
	}
	if n := count(`SELECT COUNT(*) FROM runs`); n != 1 {
		t.Fatalf("runs rows=%d want 1", n)
	}
	if n := count(`SELECT COUNT(*) FROM catalogs WHERE name='pool_catalog'`); n != 1 {
		t.Fatalf("catalog rows=%d want 1", n)
	}

	var approved, requested int
	if err := db.QueryRow(`SELECT requested,approved FROM selections WHERE plan_ref='i#plan-1'`).Scan(&requested, &approved); err != nil {
		t.Fatalf("selection: %v", err)
	}
	if requested != 3 || approved != 2 {
		t.Fatalf("selection mismatch: requested=%d approved=%d", requested, approved)
	}

	var total, remaining float64
	if err := db.QueryRow(`SELECT total_cost,remaining FROM spend_events WHERE ledger_id='ledger-1'`).Scan(&total, &remaining); err != nil {
		t.Fatalf("spend: %v", err)
	}
	if total != 10 || remaining != 90 {
		t.Fatalf("spend mismatch: total=%v remaining=%v", total, remaining)
	}

	var snap string
	if err := db.QueryRow(`SELECT path FROM snapshots WHERE run_id='run-1' AND tick=2`).Scan(&snap); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap != "/abs/2.snap.zst" {
		t.Fatalf("snapshot path=%q", snap)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTelemetry}

	_ = s.WriteTelemetry(protocol.TelemetryRecord{Tick: 2})
	s.RecordPlan("r", "p", 2, nil)
	s.RecordLedger("r", 2, protocol.BudgetLedgerArtifact{})
	s.RecordSnapshot("r", 2, "/tmp/2.snap.zst")

	st := s.Stats()
	if st.DropTelemetryTotal != 1 || st.DropPlanTotal != 1 || st.DropLedgerTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drop stats mismatch: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
