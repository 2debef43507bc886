package selection

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"agentkernel.ai/internal/catalog"
	"agentkernel.ai/internal/model"
)

var defaultVitals = model.Vitals{
	Health:  model.Stat{Current: 10, Max: 10, Regen: 0},
	Mana:    model.Stat{Current: 0, Max: 0, Regen: 0},
	Stamina: model.Stat{Current: 10, Max: 10, Regen: 1},
}

func sampleSummary() model.Summary {
	return model.Summary{
		DungeonTheme:    "volcanic_forge",
		DungeonAffinity: "fire",
		Rooms: []model.Pick{
			{Motivation: "stationary", Count: 2},
			{Motivation: "patrolling", Affinity: "water", Count: 1, TokenHint: 30},
		},
		Actors: []model.Actor{
			{Role: "attacking", Count: 3, Vitals: &model.Vitals{Health: model.Stat{Current: 20, Max: 20, Regen: 2}}},
		},
	}
}

func TestNormalizeSummaryPick(t *testing.T) {
	np := NormalizeSummaryPick(Pick{Role: "defending", Count: 2}, PickOptions{DungeonAffinity: "earth", Source: SourceActors})
	if np.Kind != model.KindActor || np.Motivation != "defending" || np.Affinity != "earth" {
		t.Fatalf("unexpected actor pick: %+v", np)
	}
	want := []model.AffinityStack{{Kind: "earth", Expression: "push", Stacks: 1}}
	if diff := cmp.Diff(want, np.Affinities); diff != "" {
		t.Fatalf("affinities mismatch (-want +got):\n%s", diff)
	}

	room := NormalizeSummaryPick(Pick{Motivation: "stationary", Affinity: "dark", Count: 1, Vitals: &model.Vitals{}}, PickOptions{DungeonAffinity: "earth", Source: SourceRooms})
	if room.Kind != model.KindRoom || room.Affinity != "dark" || room.Vitals != nil {
		t.Fatalf("unexpected room pick: %+v", room)
	}
}

func TestNormalizeSummaryPick_CapsCount(t *testing.T) {
	np := NormalizeSummaryPick(Pick{Motivation: "stationary", Count: 1 << 31}, PickOptions{DungeonAffinity: "fire", Source: SourceRooms})
	if np.Count != model.MaxPickCount {
		t.Fatalf("count=%d want %d", np.Count, model.MaxPickCount)
	}
	sels := BuildSelectionsFromSummary(model.Summary{Rooms: []model.Pick{{Motivation: "stationary", Count: 1 << 31}}}, Options{DefaultAffinity: "fire"})
	if len(sels) != 1 || len(sels[0].Instances) != model.MaxPickCount || sels[0].Requested.Count != model.MaxPickCount {
		t.Fatalf("unexpected selection: count=%d instances=%d", sels[0].Requested.Count, len(sels[0].Instances))
	}
}

func TestBuildSelectionsFromSummary(t *testing.T) {
	sels := BuildSelectionsFromSummary(sampleSummary(), Options{ActorVitals: defaultVitals})
	if len(sels) != 3 {
		t.Fatalf("expected 3 selections, got %d", len(sels))
	}

	r0 := sels[0]
	if r0.Kind != model.KindRoom || r0.Source != "rooms[0]" || r0.Requested.Affinity != "fire" || len(r0.Instances) != 2 {
		t.Fatalf("unexpected first room: %+v", r0)
	}
	for _, inst := range r0.Instances {
		if inst.Vitals != nil {
			t.Fatalf("room instances never carry vitals")
		}
	}
	if sels[1].Requested.Affinity != "water" || sels[1].Applied.Cost != 30 {
		t.Fatalf("expected pick affinity and token hint: %+v", sels[1])
	}

	actors := sels[2]
	if actors.Kind != model.KindActor || actors.Requested.Motivation != "attacking" || actors.ApprovedCount != 3 {
		t.Fatalf("unexpected actor selection: %+v", actors)
	}
	v := actors.Instances[0].Vitals
	if v == nil || v.Health.Max != 20 || v.Stamina != defaultVitals.Stamina {
		t.Fatalf("expected pick health over default stamina, got %+v", v)
	}

	// Instances are deep-independent.
	actors.Instances[0].Vitals.Health.Current = 1
	actors.Instances[0].Affinities[0].Stacks = 9
	if actors.Instances[1].Vitals.Health.Current != 20 || actors.Instances[1].Affinities[0].Stacks != 1 {
		t.Fatalf("instances share state")
	}
	if actors.Instances[0].ID == actors.Instances[1].ID {
		t.Fatalf("instance ids must be distinct")
	}
}

func TestBuildSelectionsFromSummary_Deterministic(t *testing.T) {
	a := BuildSelectionsFromSummary(sampleSummary(), Options{ActorVitals: defaultVitals})
	b := BuildSelectionsFromSummary(sampleSummary(), Options{ActorVitals: defaultVitals})
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("builder is not deterministic:\n%s", diff)
	}
}

func TestApplyCatalogAndLoadouts(t *testing.T) {
	cat := catalog.New([]model.CatalogEntry{
		{ID: "forge_hall", Type: "room", Motivation: "stationary", Affinity: "fire", Cost: 40},
		{ID: "imp", Type: "actor", Motivation: "attacking", Affinity: "fire", Cost: 12},
	})
	sels := BuildSelectionsFromSummary(sampleSummary(), Options{ActorVitals: defaultVitals})
	applied, missing := ApplyCatalog(sels, cat)
	if applied[0].Applied.ID != "forge_hall" || applied[0].Applied.Cost != 40 {
		t.Fatalf("expected forge_hall, got %+v", applied[0].Applied)
	}
	if applied[2].Applied.ID != "imp" {
		t.Fatalf("expected imp, got %+v", applied[2].Applied)
	}
	if diff := cmp.Diff([]string{"rooms[1]"}, missing); diff != "" {
		t.Fatalf("missing mismatch:\n%s", diff)
	}
	if sels[0].Applied.ID != "" {
		t.Fatalf("ApplyCatalog must not mutate its input")
	}

	withLoadouts := AttachLoadouts(applied, nil)
	l := withLoadouts[2].Instances[0].Loadout
	if l == nil || l.Kind != "attacking" || l.Pattern != "charge" {
		t.Fatalf("expected default attacking loadout, got %+v", l)
	}
	if withLoadouts[0].Instances[0].Loadout != nil {
		t.Fatalf("rooms do not get loadouts")
	}
}
