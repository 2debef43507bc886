package model

// Summary is the validated high-level build wishlist.
type Summary struct {
	DungeonTheme    string   `json:"dungeonTheme"`
	DungeonAffinity string   `json:"dungeonAffinity,omitempty"`
	BudgetTokens    int      `json:"budgetTokens,omitempty"`
	Rooms           []Pick   `json:"rooms,omitempty"`
	Actors          []Actor  `json:"actors,omitempty"`
	Missing         []string `json:"missing,omitempty"`
}

// Pick is a room wishlist line.
type Pick struct {
	Motivation string `json:"motivation"`
	Affinity   string `json:"affinity,omitempty"`
	Count      int    `json:"count"`
	TokenHint  int    `json:"tokenHint,omitempty"`
}

// Actor is an actor wishlist line; Role plays the part of Motivation.
type Actor struct {
	Role      string  `json:"role"`
	Affinity  string  `json:"affinity,omitempty"`
	Count     int     `json:"count"`
	TokenHint int     `json:"tokenHint,omitempty"`
	Vitals    *Vitals `json:"vitals,omitempty"`
}
