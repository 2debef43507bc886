package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadLoadouts(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", `["patrolling", {"kind":"defending","intensity":7}]`)
	got, err := loadLoadouts(good)
	if err != nil {
		t.Fatalf("loadLoadouts: %v", err)
	}
	if len(got) != 2 || got[1].Kind != "defending" || got[1].Intensity != 7 {
		t.Fatalf("unexpected loadouts: %+v", got)
	}

	bad := writeFile(t, dir, "bad.json", `[{"kind":"dancing"}]`)
	if _, err := loadLoadouts(bad); err == nil {
		t.Fatalf("expected invalid kind to fail the load")
	}
	if got, err := loadLoadouts(""); err != nil || got != nil {
		t.Fatalf("expected no loadouts for empty path, got %v %v", got, err)
	}
}

func TestLoadReceipt(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "receipt.json", `{
		"schema": "agent-kernel/BudgetReceiptArtifact",
		"schemaVersion": 1,
		"meta": {"id": "rcpt-9"},
		"remaining": 500,
		"lineItems": [{"id": "room_fire", "kind": "room", "unitCost": 40, "status": "approved"}]
	}`)
	r, err := loadReceipt(p)
	if err != nil {
		t.Fatalf("loadReceipt: %v", err)
	}
	if r.Meta.ID != "rcpt-9" || r.Remaining != 500 || len(r.LineItems) != 1 || r.LineItems[0].UnitCost != 40 {
		t.Fatalf("unexpected receipt: %+v", r)
	}

	wrong := writeFile(t, dir, "wrong.json", `{"schema":"agent-kernel/BudgetLedgerArtifact","schemaVersion":1,"lineItems":[]}`)
	if _, err := loadReceipt(wrong); err == nil {
		t.Fatalf("expected schema mismatch to fail")
	}
	broken := writeFile(t, dir, "broken.json", `{`)
	if _, err := loadReceipt(broken); err == nil {
		t.Fatalf("expected malformed json to fail")
	}
}

func TestLoadResponseRequiresPath(t *testing.T) {
	if _, err := loadResponse(" "); err == nil {
		t.Fatalf("expected error for missing response path")
	}
	p := writeFile(t, t.TempDir(), "reply.txt", "```json\n{}\n```")
	got, err := loadResponse(p)
	if err != nil || got != "```json\n{}\n```" {
		t.Fatalf("unexpected response %q %v", got, err)
	}
}

func TestLatestSnapshot(t *testing.T) {
	runDir := t.TempDir()
	if got := latestSnapshot(runDir); got != "" {
		t.Fatalf("expected no snapshot, got %q", got)
	}
	writeFile(t, runDir, "snapshots/3.snap.zst", "x")
	writeFile(t, runDir, "snapshots/12.snap.zst", "x")
	writeFile(t, runDir, "snapshots/notes.txt", "x")
	writeFile(t, runDir, "snapshots/bad.snap.zst", "x")
	want := filepath.Join(runDir, "snapshots", "12.snap.zst")
	if got := latestSnapshot(runDir); got != want {
		t.Fatalf("latestSnapshot=%q want %q", got, want)
	}
}
