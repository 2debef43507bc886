// Package prompt builds the outbound menu prompt and validates the summary a
// language model sends back.
package prompt

import (
	"strconv"
	"strings"

	"agentkernel.ai/internal/model"
)

type Context struct {
	Goal         string
	BudgetTokens int
	Notes        []string
}

// BuildMenuPrompt renders the instruction text. The output depends only on
// ctx and the fixed enumerations.
func BuildMenuPrompt(ctx Context) string {
	var b strings.Builder
	b.WriteString("You are the dungeon director. Choose rooms and actors for the build below.\n")
	b.WriteString("Goal: ")
	b.WriteString(strings.TrimSpace(ctx.Goal))
	b.WriteString("\n")
	if ctx.BudgetTokens > 0 {
		b.WriteString("Budget tokens: ")
		b.WriteString(strconv.Itoa(ctx.BudgetTokens))
		b.WriteString("\n")
	}
	for _, n := range ctx.Notes {
		if n = strings.TrimSpace(n); n != "" {
			b.WriteString("Note: ")
			b.WriteString(n)
			b.WriteString("\n")
		}
	}
	b.WriteString("Allowed dungeonTheme values: ")
	b.WriteString(strings.Join(model.Themes, ", "))
	b.WriteString("\n")
	b.WriteString("Allowed affinities: ")
	b.WriteString(strings.Join(model.Affinities, ", "))
	b.WriteString("\n")
	b.WriteString("Allowed motivations (rooms use motivation, actors use role): ")
	b.WriteString(strings.Join(model.Motivations, ", "))
	b.WriteString("\n")
	b.WriteString("Counts are positive integers up to ")
	b.WriteString(strconv.Itoa(model.MaxPickCount))
	b.WriteString("; tokenHint is a positive integer. Omit affinity to inherit dungeonAffinity.\n")
	b.WriteString("List anything you wanted but could not express in missing.\n")
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"dungeonTheme":"...","dungeonAffinity":"...","budgetTokens":0,` +
		`"rooms":[{"motivation":"...","affinity":"...","count":1,"tokenHint":0}],` +
		`"actors":[{"role":"...","affinity":"...","count":1,"tokenHint":0,` +
		`"vitals":{"health":{"current":0,"max":0,"regen":0}}}],"missing":[]}`)
	b.WriteString("\n")
	return b.String()
}
