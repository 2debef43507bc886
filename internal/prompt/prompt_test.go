package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"agentkernel.ai/internal/model"
	"agentkernel.ai/internal/protocol"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestBuildMenuPrompt(t *testing.T) {
	ctx := Context{Goal: "  a lava keep  ", BudgetTokens: 400, Notes: []string{"no water", " "}}
	a := BuildMenuPrompt(ctx)
	if a != BuildMenuPrompt(ctx) {
		t.Fatalf("prompt must be deterministic")
	}
	for _, want := range []string{
		"Goal: a lava keep\n",
		"Budget tokens: 400\n",
		"Note: no water\n",
		"Allowed affinities: " + strings.Join(model.Affinities, ", "),
		"Allowed motivations (rooms use motivation, actors use role): " + strings.Join(model.Motivations, ", "),
		"Allowed dungeonTheme values: " + strings.Join(model.Themes, ", "),
		"Counts are positive integers up to 64;",
	} {
		if !strings.Contains(a, want) {
			t.Fatalf("prompt missing %q:\n%s", want, a)
		}
	}
	if strings.Contains(BuildMenuPrompt(Context{Goal: "x"}), "Budget tokens") {
		t.Fatalf("budget line should be omitted without a budget")
	}
}

func TestNormalizeSummary_Valid(t *testing.T) {
	res := NormalizeSummary(decode(t, `{
		"dungeonTheme":"volcanic_forge",
		"dungeonAffinity":"fire",
		"budgetTokens":400,
		"rooms":[{"motivation":"stationary","count":2}],
		"actors":[{"role":"attacking","affinity":"dark","count":1,"tokenHint":20,
			"vitals":{"health":{"current":5,"max":8,"regen":1}}}],
		"missing":["boss room", 3]
	}`))
	if !res.OK {
		t.Fatalf("expected ok, got %v", res.Errors)
	}
	want := model.Summary{
		DungeonTheme:    "volcanic_forge",
		DungeonAffinity: "fire",
		BudgetTokens:    400,
		Rooms:           []model.Pick{{Motivation: "stationary", Count: 2}},
		Actors: []model.Actor{{
			Role: "attacking", Affinity: "dark", Count: 1, TokenHint: 20,
			Vitals: &model.Vitals{Health: model.Stat{Current: 5, Max: 8, Regen: 1}},
		}},
		Missing: []string{"boss room"},
	}
	if diff := cmp.Diff(want, res.Value); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeSummary_ErrorsPerField(t *testing.T) {
	res := NormalizeSummary(decode(t, `{
		"dungeonTheme":"space_station",
		"budgetTokens":-1,
		"rooms":[
			{"motivation":"stationary","count":1},
			{"motivation":"sleeping","affinity":"plasma","count":0,"tokenHint":1.5},
			"room"
		],
		"actors":[
			{"role":"defending","count":2,"vitals":{"health":{"current":9,"max":3}}},
			{"motivation":"patrolling","count":1}
		]
	}`))
	if res.OK {
		t.Fatalf("expected errors")
	}
	want := []protocol.FieldError{
		{Field: "dungeonTheme", Code: protocol.CodeInvalidTheme},
		{Field: "budgetTokens", Code: protocol.CodeInvalidBudget},
		{Field: "rooms[1].motivation", Code: protocol.CodeInvalidMotivation},
		{Field: "rooms[1].affinity", Code: protocol.CodeInvalidAffinity},
		{Field: "rooms[1].count", Code: protocol.CodeInvalidCount},
		{Field: "rooms[1].tokenHint", Code: protocol.CodeInvalidTokenHint},
		{Field: "rooms[2]", Code: protocol.CodeInvalidPick},
		{Field: "actors[0].vitals", Code: protocol.CodeInvalidVitals},
	}
	if diff := cmp.Diff(want, res.Errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	if len(res.Value.Rooms) != 1 || res.Value.Rooms[0].Motivation != "stationary" {
		t.Fatalf("expected valid room to survive: %+v", res.Value.Rooms)
	}
	if len(res.Value.Actors) != 1 || res.Value.Actors[0].Role != "patrolling" {
		t.Fatalf("expected motivation alias on actor to survive: %+v", res.Value.Actors)
	}
}

func TestNormalizeSummary_RejectsOversizedCount(t *testing.T) {
	res := NormalizeSummary(decode(t, `{
		"rooms":[{"motivation":"stationary","count":2147483647},{"motivation":"exploring","count":64}],
		"actors":[{"role":"attacking","count":65}]
	}`))
	want := []protocol.FieldError{
		{Field: "rooms[0].count", Code: protocol.CodeInvalidCount},
		{Field: "actors[0].count", Code: protocol.CodeInvalidCount},
	}
	if diff := cmp.Diff(want, res.Errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
	if len(res.Value.Rooms) != 1 || res.Value.Rooms[0].Count != model.MaxPickCount {
		t.Fatalf("expected the in-range room to survive: %+v", res.Value.Rooms)
	}
}

func TestNormalizeSummary_NotAnObject(t *testing.T) {
	res := NormalizeSummary([]any{})
	if res.OK || len(res.Errors) != 1 || res.Errors[0].Code != protocol.CodeInvalidSummary {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCapturePromptResponse_ParseFailure(t *testing.T) {
	got := CapturePromptResponse(Capture{Prompt: "p", ResponseText: "I could not decide."})
	if got.Summary != nil {
		t.Fatalf("expected no summary, got %+v", got.Summary)
	}
	if len(got.Errors) != 1 || got.Errors[0] != (protocol.FieldError{Field: "responseText", Code: protocol.CodeInvalidJSON}) {
		t.Fatalf("unexpected errors: %v", got.Errors)
	}
}

func TestCapturePromptResponse_FencedAndWrapped(t *testing.T) {
	for _, text := range []string{
		"```json\n{\"dungeonTheme\":\"frozen_vault\"}\n```",
		"Here you go: {\"dungeonTheme\":\"frozen_vault\"} Enjoy!",
	} {
		got := CapturePromptResponse(Capture{ResponseText: text})
		if len(got.Errors) != 0 || got.Summary == nil || got.Summary.DungeonTheme != "frozen_vault" {
			t.Fatalf("%q: unexpected capture %+v", text, got)
		}
	}
}

func TestCapturePromptResponse_RoundTrip(t *testing.T) {
	accepted := NormalizeSummary(decode(t, `{
		"dungeonTheme":"sunken_ruins",
		"dungeonAffinity":"water",
		"budgetTokens":250,
		"rooms":[{"motivation":"exploring","affinity":"earth","count":3,"tokenHint":12}],
		"actors":[{"role":"patrolling","count":2,"vitals":{"stamina":{"current":4,"max":6,"regen":2}}}],
		"missing":["treasure vault"]
	}`))
	if !accepted.OK {
		t.Fatalf("fixture rejected: %v", accepted.Errors)
	}
	b, err := json.Marshal(accepted.Value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := protocol.Validate(protocol.SchemaSummary, generic); err != nil {
		t.Fatalf("serialized summary violates schema: %v", err)
	}

	got := CapturePromptResponse(Capture{Prompt: BuildMenuPrompt(Context{Goal: "ruins"}), ResponseText: string(b)})
	if len(got.Errors) != 0 {
		t.Fatalf("round trip produced errors: %v", got.Errors)
	}
	if diff := cmp.Diff(accepted.Value, *got.Summary); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
