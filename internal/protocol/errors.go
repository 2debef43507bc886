package protocol

import (
	"fmt"
	"strings"
)

// Validation codes reported in FieldError.Code.
const (
	CodeInvalidEntry      = "invalid_entry"
	CodeInvalidID         = "invalid_id"
	CodeDuplicateID       = "duplicate_id"
	CodeInvalidMotivation = "invalid_motivation"
	CodeInvalidAffinity   = "invalid_affinity"
	CodeInvalidCost       = "invalid_cost"

	CodeInvalidKind    = "invalid_kind"
	CodeUnknownPattern = "unknown_pattern"

	CodeInvalidSummary   = "invalid_summary"
	CodeInvalidTheme     = "invalid_theme"
	CodeInvalidBudget    = "invalid_budget"
	CodeInvalidPick      = "invalid_pick"
	CodeInvalidCount     = "invalid_count"
	CodeInvalidTokenHint = "invalid_token_hint"
	CodeInvalidVitals    = "invalid_vitals"
	CodeInvalidJSON      = "invalid_json"
)

var knownCodes = map[string]struct{}{
	CodeInvalidEntry:      {},
	CodeInvalidID:         {},
	CodeDuplicateID:       {},
	CodeInvalidMotivation: {},
	CodeInvalidAffinity:   {},
	CodeInvalidCost:       {},
	CodeInvalidKind:       {},
	CodeUnknownPattern:    {},
	CodeInvalidSummary:    {},
	CodeInvalidTheme:      {},
	CodeInvalidBudget:     {},
	CodeInvalidPick:       {},
	CodeInvalidCount:      {},
	CodeInvalidTokenHint:  {},
	CodeInvalidVitals:     {},
	CodeInvalidJSON:       {},
}

func IsKnownCode(code string) bool {
	_, ok := knownCodes[code]
	return ok
}

// FieldError is one structured validation failure. Field is a path such as
// "entries[2].cost".
type FieldError struct {
	Field string `json:"field"`
	Code  string `json:"code"`
}

func (e FieldError) String() string { return e.Field + ": " + e.Code }

func Field(prefix string, i int, name string) string {
	if name == "" {
		return fmt.Sprintf("%s[%d]", prefix, i)
	}
	return fmt.Sprintf("%s[%d].%s", prefix, i, name)
}

// Join renders a list of field errors for log lines and wrapped errors.
func Join(errs []FieldError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}
