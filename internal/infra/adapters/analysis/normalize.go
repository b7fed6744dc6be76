package analysis

import (
	"encoding/json"
	"strings"

	"trading-research-core/internal/domain/model"
)

// Normalize folds the execution service's loosely-typed response shapes
// into one tagged variant. The service answers with a bare string for
// simple analyses and a nested object with sections for composed reports;
// older deployments wrap either under "content". Anything else is kept
// verbatim as unrecognized so callers can still render or log it.
func Normalize(raw json.RawMessage) model.AnalysisResult {
	return normalize(raw, 0)
}

func normalize(raw json.RawMessage, depth int) model.AnalysisResult {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return model.AnalysisResult{Kind: model.ResultKindUnrecognized}
	}

	// Plain JSON string.
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return model.AnalysisResult{Kind: model.ResultKindText, Text: text}
	}

	var envelope struct {
		Text     string                `json:"text"`
		Sections []model.ResultSection `json:"sections"`
		Content  json.RawMessage       `json:"content"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		// Non-JSON body (keep-alive noise and the like).
		return model.AnalysisResult{Kind: model.ResultKindUnrecognized, Raw: raw}
	}

	if len(envelope.Sections) > 0 {
		return model.AnalysisResult{Kind: model.ResultKindStructured, Sections: envelope.Sections}
	}
	if envelope.Text != "" {
		return model.AnalysisResult{Kind: model.ResultKindText, Text: envelope.Text}
	}
	if len(envelope.Content) > 0 && depth == 0 {
		// One level of wrapping is the only recursion the service produces.
		inner := normalize(envelope.Content, depth+1)
		if inner.Kind != model.ResultKindUnrecognized {
			return inner
		}
	}

	return model.AnalysisResult{Kind: model.ResultKindUnrecognized, Raw: raw}
}
