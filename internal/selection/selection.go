// Package selection turns a validated summary into concrete, instantiated
// selections.
package selection

import (
	"fmt"

	"github.com/google/uuid"

	"agentkernel.ai/internal/catalog"
	"agentkernel.ai/internal/model"
	"agentkernel.ai/internal/motivation"
	"agentkernel.ai/internal/protocol"
)

const (
	SourceRooms  = "rooms"
	SourceActors = "actors"
)

var instanceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://agentkernel.ai/instances"))

// Pick is the union of room and actor wishlist lines.
type Pick struct {
	Motivation string
	Role       string
	Affinity   string
	Count      int
	TokenHint  int
	Vitals     *model.Vitals
}

func FromRoom(p model.Pick) Pick {
	return Pick{Motivation: p.Motivation, Affinity: p.Affinity, Count: p.Count, TokenHint: p.TokenHint}
}

func FromActor(a model.Actor) Pick {
	return Pick{Role: a.Role, Affinity: a.Affinity, Count: a.Count, TokenHint: a.TokenHint, Vitals: a.Vitals}
}

type PickOptions struct {
	DungeonAffinity string
	Source          string
}

type NormalizedPick struct {
	Kind       string
	Source     string
	Motivation string
	Affinity   string
	Affinities []model.AffinityStack
	Count      int
	TokenHint  int
	Vitals     *model.Vitals
}

// NormalizeSummaryPick resolves motivation (role for actors), falls back to
// the dungeon affinity, and builds the default single-stack affinity list.
// Room picks never carry vitals.
func NormalizeSummaryPick(p Pick, opts PickOptions) NormalizedPick {
	out := NormalizedPick{
		Kind:       model.KindRoom,
		Source:     opts.Source,
		Motivation: p.Motivation,
		Affinity:   p.Affinity,
		Count:      p.Count,
		TokenHint:  p.TokenHint,
	}
	if opts.Source == SourceActors {
		out.Kind = model.KindActor
		if p.Role != "" {
			out.Motivation = p.Role
		}
		if p.Vitals != nil {
			v := *p.Vitals
			out.Vitals = &v
		}
	}
	if out.Affinity == "" {
		out.Affinity = opts.DungeonAffinity
	}
	if out.Count < 0 {
		out.Count = 0
	}
	if out.Count > model.MaxPickCount {
		out.Count = model.MaxPickCount
	}
	if out.Affinity != "" {
		out.Affinities = []model.AffinityStack{{Kind: out.Affinity, Expression: model.DefaultExpression, Stacks: 1}}
	} else {
		out.Affinities = []model.AffinityStack{}
	}
	return out
}

type Options struct {
	// DefaultAffinity applies when neither the pick nor the summary names one.
	DefaultAffinity string
	// ActorVitals fills any stat an actor pick leaves at zero.
	ActorVitals model.Vitals
}

// BuildSelectionsFromSummary expands every room and actor pick into a
// selection with Count independent instances. Rooms come first, then actors,
// each in summary order.
func BuildSelectionsFromSummary(s model.Summary, opts Options) []model.Selection {
	dungeonAffinity := s.DungeonAffinity
	if dungeonAffinity == "" {
		dungeonAffinity = opts.DefaultAffinity
	}
	out := make([]model.Selection, 0, len(s.Rooms)+len(s.Actors))
	for i, r := range s.Rooms {
		np := NormalizeSummaryPick(FromRoom(r), PickOptions{DungeonAffinity: dungeonAffinity, Source: SourceRooms})
		out = append(out, build(np, protocol.Field(SourceRooms, i, ""), nil))
	}
	for i, a := range s.Actors {
		np := NormalizeSummaryPick(FromActor(a), PickOptions{DungeonAffinity: dungeonAffinity, Source: SourceActors})
		v := MergeVitals(opts.ActorVitals, np.Vitals)
		out = append(out, build(np, protocol.Field(SourceActors, i, ""), &v))
	}
	return out
}

func build(np NormalizedPick, source string, vitals *model.Vitals) model.Selection {
	sel := model.Selection{
		Kind:   np.Kind,
		Source: source,
		Requested: model.Requested{
			Motivation: np.Motivation,
			Affinity:   np.Affinity,
			Affinities: append([]model.AffinityStack{}, np.Affinities...),
			Count:      np.Count,
		},
		Applied:       model.Applied{Cost: float64(np.TokenHint)},
		ApprovedCount: np.Count,
		Instances:     make([]model.Instance, 0, np.Count),
	}
	template := model.Instance{Affinities: np.Affinities}
	if vitals != nil {
		template.Vitals = vitals
	}
	for i := 0; i < np.Count; i++ {
		inst := template.Clone()
		inst.ID = InstanceID(source, np.Motivation, np.Affinity, i)
		sel.Instances = append(sel.Instances, inst)
	}
	return sel
}

// InstanceID is a name-based (v5) uuid, stable for identical inputs.
func InstanceID(source, motivation, affinity string, index int) string {
	name := fmt.Sprintf("%s/%s/%s/%d", source, motivation, affinity, index)
	return uuid.NewSHA1(instanceNamespace, []byte(name)).String()
}

// MergeVitals overlays every non-zero stat of pick onto base.
func MergeVitals(base model.Vitals, pick *model.Vitals) model.Vitals {
	if pick == nil {
		return base
	}
	out := base
	if pick.Health != (model.Stat{}) {
		out.Health = pick.Health
	}
	if pick.Mana != (model.Stat{}) {
		out.Mana = pick.Mana
	}
	if pick.Stamina != (model.Stat{}) {
		out.Stamina = pick.Stamina
	}
	return out
}

// ApplyCatalog resolves every selection against the pool catalog. Selections
// with no matching entry keep their token hint as cost and are reported in
// missing by source.
func ApplyCatalog(in []model.Selection, c *catalog.Catalog) ([]model.Selection, []string) {
	out := model.CloneSelections(in)
	missing := []string{}
	for i := range out {
		e, ok := c.Match(out[i].Kind, out[i].Requested.Motivation, out[i].Requested.Affinity)
		if !ok {
			missing = append(missing, out[i].Source)
			continue
		}
		out[i].Applied = model.Applied{ID: e.ID, Cost: e.Cost}
	}
	return out, missing
}

// AttachLoadouts gives every actor instance the loadout for its motivation.
func AttachLoadouts(in []model.Selection, loadouts []model.Loadout) []model.Selection {
	out := model.CloneSelections(in)
	for i := range out {
		if out[i].Kind != model.KindActor {
			continue
		}
		l, ok := motivation.ForKind(loadouts, out[i].Requested.Motivation)
		if !ok {
			continue
		}
		for j := range out[i].Instances {
			lc := l.Clone()
			out[i].Instances[j].Loadout = &lc
		}
	}
	return out
}
