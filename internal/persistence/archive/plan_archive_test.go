package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"agentkernel.ai/internal/persistence/snapshot"
	"agentkernel.ai/internal/persona/director"
	"agentkernel.ai/internal/protocol"
)

func writeDummy(t *testing.T, runDir string) string {
	t.Helper()
	src := filepath.Join(runDir, "snapshots", "7.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	if err := os.WriteFile(src, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	return src
}

func TestArchivePlanSnapshot_CopiesFinalizedPlan(t *testing.T) {
	runDir := t.TempDir()
	src := writeDummy(t, runDir)

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, RunID: "run-1", Tick: 7},
		Ledger: &protocol.BudgetLedgerArtifact{Remaining: 25},
	}
	snap.Director.State = director.Ready
	snap.Director.PlanRef = "run-1/intent#plan-2"
	snap.Director.Revision = 2
	snap.Director.TotalApproved = 75

	dst, ok, err := ArchivePlanSnapshot(runDir, src, snap)
	if err != nil || !ok {
		t.Fatalf("archive: ok=%v err=%v", ok, err)
	}
	if filepath.Base(filepath.Dir(dst)) != "plan_002" {
		t.Fatalf("unexpected archive dir: %s", dst)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "dummy" {
		t.Fatalf("archived content mismatch: %q %v", got, err)
	}

	b, err := os.ReadFile(filepath.Join(filepath.Dir(dst), "meta.json"))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	var meta PlanArchiveMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if meta.PlanRef != "run-1/intent#plan-2" || meta.Tick != 7 || meta.Remaining != 25 || meta.TotalApproved != 75 {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestArchivePlanSnapshot_SkipsUnfinishedPlan(t *testing.T) {
	runDir := t.TempDir()
	src := writeDummy(t, runDir)

	snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, RunID: "run-1", Tick: 3}}
	snap.Director.State = director.Refining
	snap.Director.PlanRef = "run-1/intent#plan-1"

	if _, ok, err := ArchivePlanSnapshot(runDir, src, snap); err != nil || ok {
		t.Fatalf("expected no archive, got ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(runDir, "archives")); !os.IsNotExist(err) {
		t.Fatalf("expected no archives dir, stat err=%v", err)
	}
}
