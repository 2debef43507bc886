package prompt

import (
	"agentkernel.ai/internal/model"
	"agentkernel.ai/internal/protocol"
)

type Result struct {
	OK     bool                  `json:"ok"`
	Errors []protocol.FieldError `json:"errors"`
	Value  model.Summary         `json:"value"`
}

// NormalizeSummary validates a decoded summary. Every violated field yields
// one error; picks with errors are dropped and the valid ones are returned.
func NormalizeSummary(raw any) Result {
	res := Result{Errors: []protocol.FieldError{}}
	fail := func(field, code string) {
		res.Errors = append(res.Errors, protocol.FieldError{Field: field, Code: code})
	}

	obj, ok := protocol.Object(raw)
	if !ok {
		fail("summary", protocol.CodeInvalidSummary)
		return res
	}

	if s, ok := protocol.String(obj["dungeonTheme"]); ok && model.IsTheme(s) {
		res.Value.DungeonTheme = s
	} else {
		fail("dungeonTheme", protocol.CodeInvalidTheme)
	}
	if v, present := obj["dungeonAffinity"]; present && v != nil {
		if s, ok := protocol.String(v); ok && model.IsAffinity(s) {
			res.Value.DungeonAffinity = s
		} else {
			fail("dungeonAffinity", protocol.CodeInvalidAffinity)
		}
	}
	if v, present := obj["budgetTokens"]; present && v != nil {
		if n, ok := protocol.Integer(v); ok && n >= 1 {
			res.Value.BudgetTokens = n
		} else {
			fail("budgetTokens", protocol.CodeInvalidBudget)
		}
	}

	for i, item := range list(obj, "rooms", fail) {
		field := protocol.Field("rooms", i, "")
		p, errs := normalizeRoom(field, item)
		res.Errors = append(res.Errors, errs...)
		if len(errs) == 0 {
			res.Value.Rooms = append(res.Value.Rooms, p)
		}
	}
	for i, item := range list(obj, "actors", fail) {
		field := protocol.Field("actors", i, "")
		a, errs := normalizeActor(field, item)
		res.Errors = append(res.Errors, errs...)
		if len(errs) == 0 {
			res.Value.Actors = append(res.Value.Actors, a)
		}
	}
	if items, ok := protocol.Array(obj["missing"]); ok {
		for _, m := range items {
			if s, ok := protocol.String(m); ok && s != "" {
				res.Value.Missing = append(res.Value.Missing, s)
			}
		}
	}

	res.OK = len(res.Errors) == 0
	return res
}

func list(obj map[string]any, key string, fail func(field, code string)) []any {
	v, present := obj[key]
	if !present || v == nil {
		return nil
	}
	items, ok := protocol.Array(v)
	if !ok {
		fail(key, protocol.CodeInvalidPick)
		return nil
	}
	return items
}

type pickFields struct {
	motivation string
	affinity   string
	count      int
	tokenHint  int
}

// normalizePickFields checks the fields rooms and actors share. motivationKey
// is "motivation" for rooms and "role" for actors.
func normalizePickFields(field string, obj map[string]any, motivationKey string) (pickFields, []protocol.FieldError) {
	var (
		p    pickFields
		errs []protocol.FieldError
	)
	fail := func(name, code string) {
		errs = append(errs, protocol.FieldError{Field: field + "." + name, Code: code})
	}

	mv, present := obj[motivationKey]
	if !present && motivationKey == "role" {
		mv = obj["motivation"]
	}
	if s, ok := protocol.String(mv); ok && model.IsMotivation(s) {
		p.motivation = s
	} else {
		fail(motivationKey, protocol.CodeInvalidMotivation)
	}
	if v, present := obj["affinity"]; present && v != nil {
		if s, ok := protocol.String(v); ok && model.IsAffinity(s) {
			p.affinity = s
		} else {
			fail("affinity", protocol.CodeInvalidAffinity)
		}
	}
	if n, ok := protocol.Integer(obj["count"]); ok && n >= 1 && n <= model.MaxPickCount {
		p.count = n
	} else {
		fail("count", protocol.CodeInvalidCount)
	}
	if v, present := obj["tokenHint"]; present && v != nil {
		if n, ok := protocol.Integer(v); ok && n >= 1 {
			p.tokenHint = n
		} else {
			fail("tokenHint", protocol.CodeInvalidTokenHint)
		}
	}
	return p, errs
}

func normalizeRoom(field string, item any) (model.Pick, []protocol.FieldError) {
	obj, ok := protocol.Object(item)
	if !ok {
		return model.Pick{}, []protocol.FieldError{{Field: field, Code: protocol.CodeInvalidPick}}
	}
	f, errs := normalizePickFields(field, obj, "motivation")
	return model.Pick{Motivation: f.motivation, Affinity: f.affinity, Count: f.count, TokenHint: f.tokenHint}, errs
}

func normalizeActor(field string, item any) (model.Actor, []protocol.FieldError) {
	obj, ok := protocol.Object(item)
	if !ok {
		return model.Actor{}, []protocol.FieldError{{Field: field, Code: protocol.CodeInvalidPick}}
	}
	f, errs := normalizePickFields(field, obj, "role")
	a := model.Actor{Role: f.motivation, Affinity: f.affinity, Count: f.count, TokenHint: f.tokenHint}
	if v, present := obj["vitals"]; present && v != nil {
		vit, ok := normalizeVitals(v)
		if ok {
			a.Vitals = &vit
		} else {
			errs = append(errs, protocol.FieldError{Field: field + ".vitals", Code: protocol.CodeInvalidVitals})
		}
	}
	return a, errs
}

func normalizeVitals(v any) (model.Vitals, bool) {
	obj, ok := protocol.Object(v)
	if !ok {
		return model.Vitals{}, false
	}
	var out model.Vitals
	for name, dst := range map[string]*model.Stat{"health": &out.Health, "mana": &out.Mana, "stamina": &out.Stamina} {
		sv, present := obj[name]
		if !present || sv == nil {
			continue
		}
		s, ok := normalizeStat(sv)
		if !ok {
			return model.Vitals{}, false
		}
		*dst = s
	}
	return out, true
}

func normalizeStat(v any) (model.Stat, bool) {
	obj, ok := protocol.Object(v)
	if !ok {
		return model.Stat{}, false
	}
	var s model.Stat
	for name, dst := range map[string]*int{"current": &s.Current, "max": &s.Max, "regen": &s.Regen} {
		raw, present := obj[name]
		if !present || raw == nil {
			continue
		}
		n, ok := protocol.Integer(raw)
		if !ok || n < 0 {
			return model.Stat{}, false
		}
		*dst = n
	}
	if s.Current > s.Max {
		return model.Stat{}, false
	}
	return s, true
}
