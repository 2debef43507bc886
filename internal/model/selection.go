package model

type Stat struct {
	Current int `json:"current"`
	Max     int `json:"max"`
	Regen   int `json:"regen"`
}

type Vitals struct {
	Health  Stat `json:"health"`
	Mana    Stat `json:"mana"`
	Stamina Stat `json:"stamina"`
}

type AffinityStack struct {
	Kind       string `json:"kind"`
	Expression string `json:"expression"`
	Stacks     int    `json:"stacks"`
}

type Requested struct {
	Motivation string          `json:"motivation"`
	Affinity   string          `json:"affinity"`
	Affinities []AffinityStack `json:"affinities"`
	Count      int             `json:"count"`
}

// Applied is the catalog entry a selection resolved to.
type Applied struct {
	ID   string  `json:"id"`
	Cost float64 `json:"cost"`
}

type Instance struct {
	ID         string          `json:"id"`
	Vitals     *Vitals         `json:"vitals,omitempty"`
	Affinities []AffinityStack `json:"affinities"`
	Loadout    *Loadout        `json:"loadout,omitempty"`
}

type Selection struct {
	Kind          string     `json:"kind"`
	Source        string     `json:"source,omitempty"`
	Requested     Requested  `json:"requested"`
	Applied       Applied    `json:"applied"`
	ApprovedCount int        `json:"approvedCount"`
	Instances     []Instance `json:"instances"`
}

// Clone returns a copy sharing no memory with inst.
func (inst Instance) Clone() Instance {
	out := inst
	if inst.Vitals != nil {
		v := *inst.Vitals
		out.Vitals = &v
	}
	out.Affinities = append([]AffinityStack(nil), inst.Affinities...)
	if inst.Loadout != nil {
		l := inst.Loadout.Clone()
		out.Loadout = &l
	}
	return out
}

func (s Selection) Clone() Selection {
	out := s
	out.Requested.Affinities = append([]AffinityStack(nil), s.Requested.Affinities...)
	out.Instances = make([]Instance, len(s.Instances))
	for i, inst := range s.Instances {
		out.Instances[i] = inst.Clone()
	}
	return out
}

func CloneSelections(in []Selection) []Selection {
	if in == nil {
		return nil
	}
	out := make([]Selection, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// ItemID names the selection in actions and spend events: the applied
// catalog id, or the summary source when nothing was applied.
func (s Selection) ItemID() string {
	if s.Applied.ID != "" {
		return s.Applied.ID
	}
	return s.Source
}
