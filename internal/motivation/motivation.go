// Package motivation validates requested behavior loadouts.
package motivation

import (
	"math"
	"strings"

	"agentkernel.ai/internal/model"
	"agentkernel.ai/internal/protocol"
)

const (
	MinIntensity     = 1
	MaxIntensity     = 10
	DefaultIntensity = 5
)

// Patterns lists the allowed patterns per kind; the first one is the default.
var Patterns = map[string][]string{
	"random":     {"wander", "drift"},
	"stationary": {"hold", "sentry"},
	"exploring":  {"sweep", "spiral"},
	"attacking":  {"charge", "flank", "ambush"},
	"defending":  {"hold_line", "guard"},
	"patrolling": {"loop", "ping_pong"},
}

func DefaultFlags() map[string]bool {
	return map[string]bool{
		"canMove":        true,
		"prefersStealth": false,
		"prefersCover":   false,
		"avoidsHazards":  true,
	}
}

type Result struct {
	OK     bool                  `json:"ok"`
	Errors []protocol.FieldError `json:"errors"`
	Value  []model.Loadout       `json:"value"`
}

// Normalize validates a decoded list of loadouts. Items may be a bare kind
// string or an object. Invalid items are dropped from Value; the rest are kept.
func Normalize(raw any) Result {
	res := Result{Errors: []protocol.FieldError{}, Value: []model.Loadout{}}
	items, ok := protocol.Array(raw)
	if !ok {
		if raw != nil {
			res.Errors = append(res.Errors, protocol.FieldError{Field: "motivations", Code: protocol.CodeInvalidKind})
		}
		res.OK = len(res.Errors) == 0
		return res
	}
	for i, item := range items {
		l, err := normalizeItem(i, item)
		if err != nil {
			res.Errors = append(res.Errors, *err)
			continue
		}
		res.Value = append(res.Value, l)
	}
	res.OK = len(res.Errors) == 0
	return res
}

func normalizeItem(i int, item any) (model.Loadout, *protocol.FieldError) {
	fail := func(field, code string) (model.Loadout, *protocol.FieldError) {
		return model.Loadout{}, &protocol.FieldError{Field: protocol.Field("motivations", i, field), Code: code}
	}

	obj, isObj := protocol.Object(item)
	if !isObj {
		s, ok := protocol.String(item)
		if !ok {
			return fail("kind", protocol.CodeInvalidKind)
		}
		obj = map[string]any{"kind": s}
	}

	kind, _ := protocol.String(obj["kind"])
	kind = strings.TrimSpace(kind)
	patterns, ok := Patterns[kind]
	if !ok {
		return fail("kind", protocol.CodeInvalidKind)
	}

	l := model.Loadout{
		Kind:      kind,
		Pattern:   patterns[0],
		Intensity: DefaultIntensity,
		Flags:     DefaultFlags(),
	}
	if v, present := obj["pattern"]; present && v != nil {
		p, ok := protocol.String(v)
		if !ok || !contains(patterns, p) {
			return fail("pattern", protocol.CodeUnknownPattern)
		}
		l.Pattern = p
	}
	if n, ok := protocol.Number(obj["intensity"]); ok {
		l.Intensity = ClampIntensity(n)
	}
	if flags, ok := protocol.Object(obj["flags"]); ok {
		for k, v := range flags {
			if b, ok := v.(bool); ok {
				l.Flags[k] = b
			}
		}
	}
	return l, nil
}

// ClampIntensity rounds to the nearest integer and clamps into [1, 10].
func ClampIntensity(n float64) int {
	r := math.Round(n)
	if math.IsNaN(r) || r <= MinIntensity {
		return MinIntensity
	}
	if r >= MaxIntensity {
		return MaxIntensity
	}
	return int(r)
}

// Default returns the default loadout for kind.
func Default(kind string) (model.Loadout, bool) {
	patterns, ok := Patterns[kind]
	if !ok {
		return model.Loadout{}, false
	}
	return model.Loadout{Kind: kind, Pattern: patterns[0], Intensity: DefaultIntensity, Flags: DefaultFlags()}, true
}

// ForKind picks the first loadout of the given kind, falling back to Default.
func ForKind(loadouts []model.Loadout, kind string) (model.Loadout, bool) {
	for _, l := range loadouts {
		if l.Kind == kind {
			return l.Clone(), true
		}
	}
	return Default(kind)
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
