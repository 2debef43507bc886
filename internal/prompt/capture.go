package prompt

import (
	"encoding/json"
	"strings"

	"agentkernel.ai/internal/model"
	"agentkernel.ai/internal/protocol"
)

type Capture struct {
	Prompt       string
	ResponseText string
}

type Captured struct {
	Prompt  string                `json:"prompt"`
	Summary *model.Summary        `json:"summary,omitempty"`
	Errors  []protocol.FieldError `json:"errors"`
}

// CapturePromptResponse parses the model's reply and validates it. A reply
// that is not JSON yields one invalid_json error and no summary.
func CapturePromptResponse(c Capture) Captured {
	out := Captured{Prompt: c.Prompt, Errors: []protocol.FieldError{}}
	raw, err := parseResponse(c.ResponseText)
	if err != nil {
		out.Errors = append(out.Errors, protocol.FieldError{Field: "responseText", Code: protocol.CodeInvalidJSON})
		return out
	}
	res := NormalizeSummary(raw)
	summary := res.Value
	out.Summary = &summary
	out.Errors = append(out.Errors, res.Errors...)
	return out
}

func parseResponse(text string) (any, error) {
	text = stripFence(strings.TrimSpace(text))
	var v any
	err := json.Unmarshal([]byte(text), &v)
	if err == nil {
		return v, nil
	}
	// Models sometimes wrap the object in prose.
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, err
	}
	if err2 := json.Unmarshal([]byte(text[start:end+1]), &v); err2 != nil {
		return nil, err
	}
	return v, nil
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSpace(text)
	return strings.TrimSpace(strings.TrimSuffix(text, "```"))
}
