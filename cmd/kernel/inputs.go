package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"agentkernel.ai/internal/model"
	"agentkernel.ai/internal/motivation"
	"agentkernel.ai/internal/protocol"
)

func readJSON(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return v, nil
}

// loadLoadouts reads a motivation loadout file. Any invalid entry fails the load.
func loadLoadouts(path string) ([]model.Loadout, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := readJSON(path)
	if err != nil {
		return nil, err
	}
	res := motivation.Normalize(raw)
	if !res.OK {
		return nil, fmt.Errorf("loadouts: %s", protocol.Join(res.Errors))
	}
	return res.Value, nil
}

// loadReceipt reads and schema-checks a budget receipt artifact.
func loadReceipt(path string) (*protocol.BudgetReceiptArtifact, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := readJSON(path)
	if err != nil {
		return nil, err
	}
	if err := protocol.Validate(protocol.SchemaBudgetReceipt, raw); err != nil {
		return nil, fmt.Errorf("receipt: %w", err)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var r protocol.BudgetReceiptArtifact
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("receipt: %w", err)
	}
	return &r, nil
}

func loadResponse(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("a model response file is required (-response)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func latestSnapshot(runDir string) string {
	dir := filepath.Join(runDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
