package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"agentkernel.ai/internal/persistence/snapshot"
	"agentkernel.ai/internal/persona/director"
)

type PlanArchiveMeta struct {
	RunID          string  `json:"run_id"`
	PlanRef        string  `json:"plan_ref"`
	IntentRef      string  `json:"intent_ref"`
	Revision       int     `json:"revision"`
	Tick           uint64  `json:"tick"`
	Selections     int     `json:"selections"`
	TotalRequested float64 `json:"total_requested"`
	TotalApproved  float64 `json:"total_approved"`
	Remaining      float64 `json:"remaining"`
	Snapshot       string  `json:"snapshot"`
	CreatedAt      string  `json:"created_at"`
}

// ArchivePlanSnapshot copies the snapshot of a finalized plan into
// `runDir/archives/plan_<NNN>/`. Snapshots taken before the director reached
// ready are not archived.
func ArchivePlanSnapshot(runDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	d := snap.Director
	if d.State != director.Ready || d.PlanRef == "" {
		return "", false, nil
	}

	archiveDir := filepath.Join(runDir, "archives", fmt.Sprintf("plan_%03d", d.Revision))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}
	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := PlanArchiveMeta{
		RunID:          snap.Header.RunID,
		PlanRef:        d.PlanRef,
		IntentRef:      d.IntentRef,
		Revision:       d.Revision,
		Tick:           snap.Header.Tick,
		Selections:     len(d.Selections),
		TotalRequested: d.TotalRequested,
		TotalApproved:  d.TotalApproved,
		Snapshot:       filepath.Base(dst),
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if snap.Ledger != nil {
		meta.Remaining = snap.Ledger.Remaining
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}
	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
