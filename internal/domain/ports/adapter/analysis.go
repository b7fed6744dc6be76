package adapter

import (
	"context"
	"encoding/json"

	"trading-research-core/internal/domain/model"
)

// DispatchOutcome is what the execution service answered synchronously:
// either a bare acknowledgement (the result will be written to the job row
// out-of-band) or an immediate result for fast requests. Callers never
// assume which path occurs.
type DispatchOutcome struct {
	Accepted  bool
	Immediate *model.AnalysisResult
}

// AnalysisServiceAdapter is the port for the external execution service.
type AnalysisServiceAdapter interface {
	Dispatch(ctx context.Context, jobID string, feature model.Feature, payload json.RawMessage) (DispatchOutcome, error)
}
