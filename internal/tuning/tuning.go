package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"agentkernel.ai/internal/model"
)

type Tuning struct {
	TickLimit          int     `yaml:"tick_limit"`
	DirectorEveryTicks int     `yaml:"director_every_ticks"`
	BudgetTokens       float64 `yaml:"budget_tokens"`
	DefaultAffinity    string  `yaml:"default_affinity"`

	ActorVitals Vitals    `yaml:"actor_vitals"`
	Telemetry   Telemetry `yaml:"telemetry"`
}

type Stat struct {
	Current int `yaml:"current"`
	Max     int `yaml:"max"`
	Regen   int `yaml:"regen"`
}

type Vitals struct {
	Health  Stat `yaml:"health"`
	Mana    Stat `yaml:"mana"`
	Stamina Stat `yaml:"stamina"`
}

type Telemetry struct {
	// Dir receives the zstd JSONL logs, one subdirectory per run. Empty keeps
	// them in the run directory.
	Dir                string `yaml:"dir"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`
	BroadcastBuffer    int    `yaml:"broadcast_buffer"`
}

func Defaults() Tuning {
	return Tuning{
		TickLimit:          64,
		DirectorEveryTicks: 1,
		BudgetTokens:       1000,
		DefaultAffinity:    "earth",
		ActorVitals: Vitals{
			Health:  Stat{Current: 10, Max: 10, Regen: 0},
			Mana:    Stat{Current: 0, Max: 0, Regen: 0},
			Stamina: Stat{Current: 5, Max: 5, Regen: 1},
		},
		Telemetry: Telemetry{
			SnapshotEveryTicks: 0,
			BroadcastBuffer:    256,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("kernel.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("kernel.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	t.DefaultAffinity = strings.ToLower(strings.TrimSpace(t.DefaultAffinity))
	if t.DirectorEveryTicks <= 0 {
		t.DirectorEveryTicks = 1
	}
	if t.Telemetry.BroadcastBuffer <= 0 {
		t.Telemetry.BroadcastBuffer = 256
	}
	if t.Telemetry.SnapshotEveryTicks < 0 {
		t.Telemetry.SnapshotEveryTicks = 0
	}
	t.Telemetry.Dir = strings.TrimSpace(t.Telemetry.Dir)
}

func (t Tuning) Validate() error {
	t.Normalize()
	if t.TickLimit <= 0 {
		return fmt.Errorf("tick_limit must be > 0")
	}
	if t.BudgetTokens < 0 {
		return fmt.Errorf("budget_tokens must be >= 0")
	}
	if t.DefaultAffinity != "" && !model.IsAffinity(t.DefaultAffinity) {
		return fmt.Errorf("default_affinity %q is not one of %s", t.DefaultAffinity, strings.Join(model.Affinities, ", "))
	}
	for name, s := range map[string]Stat{"health": t.ActorVitals.Health, "mana": t.ActorVitals.Mana, "stamina": t.ActorVitals.Stamina} {
		if s.Current < 0 || s.Max < 0 || s.Regen < 0 {
			return fmt.Errorf("actor_vitals.%s must be non-negative", name)
		}
		if s.Current > s.Max {
			return fmt.Errorf("actor_vitals.%s current must be <= max", name)
		}
	}
	return nil
}

// Budget returns the default plan cap. Zero means uncapped.
func (t Tuning) Budget() *float64 {
	if t.BudgetTokens <= 0 {
		return nil
	}
	b := t.BudgetTokens
	return &b
}

func (t Tuning) Vitals() model.Vitals {
	conv := func(s Stat) model.Stat { return model.Stat{Current: s.Current, Max: s.Max, Regen: s.Regen} }
	return model.Vitals{
		Health:  conv(t.ActorVitals.Health),
		Mana:    conv(t.ActorVitals.Mana),
		Stamina: conv(t.ActorVitals.Stamina),
	}
}
