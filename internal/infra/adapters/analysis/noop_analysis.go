package analysis

import (
	"context"
	"encoding/json"

	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/adapter"
)

var _ adapter.AnalysisServiceAdapter = (*NoopAdapter)(nil)

// NoopAdapter acknowledges every dispatch without calling anywhere. Used by
// the demo harness, which completes jobs through the store instead.
type NoopAdapter struct{}

func NewNoopAdapter() *NoopAdapter { return &NoopAdapter{} }

func (*NoopAdapter) Dispatch(ctx context.Context, jobID string, feature model.Feature, payload json.RawMessage) (adapter.DispatchOutcome, error) {
	return adapter.DispatchOutcome{Accepted: true}, nil
}
