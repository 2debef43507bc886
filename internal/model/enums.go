package model

// Affinities in canonical order. Prompt text embeds them in this order.
var Affinities = []string{
	"fire",
	"water",
	"earth",
	"wind",
	"life",
	"decay",
	"corrode",
	"dark",
}

var Expressions = []string{"push", "pull", "emit"}

const DefaultExpression = "push"

// Motivations shared by catalog entries, summary picks and loadout kinds.
var Motivations = []string{
	"random",
	"stationary",
	"exploring",
	"attacking",
	"defending",
	"patrolling",
}

var Themes = []string{
	"crystal_caves",
	"volcanic_forge",
	"sunken_ruins",
	"fungal_grotto",
	"frozen_vault",
}

const (
	KindRoom  = "room"
	KindActor = "actor"
)

var (
	affinitySet   = toSet(Affinities)
	expressionSet = toSet(Expressions)
	motivationSet = toSet(Motivations)
	themeSet      = toSet(Themes)
)

func IsAffinity(s string) bool   { return affinitySet[s] }
func IsExpression(s string) bool { return expressionSet[s] }
func IsMotivation(s string) bool { return motivationSet[s] }
func IsTheme(s string) bool      { return themeSet[s] }

func IsKind(s string) bool { return s == KindRoom || s == KindActor }

func toSet(xs []string) map[string]bool {
	out := make(map[string]bool, len(xs))
	for _, x := range xs {
		out[x] = true
	}
	return out
}

// MaxPickCount bounds the instances one summary pick may request.
const MaxPickCount = 64
