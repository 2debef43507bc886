package model

// CatalogEntry is one spawnable template in the pool catalog.
type CatalogEntry struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	SubType    string  `json:"subType,omitempty"`
	Motivation string  `json:"motivation"`
	Affinity   string  `json:"affinity"`
	Cost       float64 `json:"cost"`
}

// Loadout is a normalized behavior loadout.
type Loadout struct {
	Kind      string          `json:"kind"`
	Pattern   string          `json:"pattern"`
	Intensity int             `json:"intensity"`
	Flags     map[string]bool `json:"flags"`
}

func (l Loadout) Clone() Loadout {
	out := l
	out.Flags = make(map[string]bool, len(l.Flags))
	for k, v := range l.Flags {
		out.Flags[k] = v
	}
	return out
}
