package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/adapter"
)

var _ adapter.AnalysisServiceAdapter = (*HTTPAdapter)(nil)

// HTTPAdapter dispatches analysis requests to the external execution
// service. The service either answers with the finished result inline or
// acknowledges and completes the job out-of-band through the store.
type HTTPAdapter struct {
	base   string
	apiKey string
	client *http.Client
}

func NewHTTPAdapter(baseURL, apiKey string) (*HTTPAdapter, error) {
	if baseURL == "" {
		return nil, errors.New("analysis base url empty")
	}
	return &HTTPAdapter{
		base:   baseURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (a *HTTPAdapter) Dispatch(ctx context.Context, jobID string, feature model.Feature, payload json.RawMessage) (adapter.DispatchOutcome, error) {
	reqBody := struct {
		JobID   string          `json:"job_id"`
		Feature string          `json:"feature"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}{JobID: jobID, Feature: string(feature), Payload: payload}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/v1/analyses", bytes.NewReader(b))
	if err != nil {
		return adapter.DispatchOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return adapter.DispatchOutcome{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return adapter.DispatchOutcome{Accepted: true}, nil
	}
	if resp.StatusCode >= 300 {
		return adapter.DispatchOutcome{}, fmt.Errorf("analysis service http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return adapter.DispatchOutcome{}, err
	}

	// A 200 with an "accepted" envelope is still an ack; anything else is
	// an immediate result, whatever its shape.
	var ack struct {
		Accepted bool `json:"accepted"`
	}
	if json.Unmarshal(body, &ack) == nil && ack.Accepted {
		return adapter.DispatchOutcome{Accepted: true}, nil
	}

	res := Normalize(body)
	return adapter.DispatchOutcome{Immediate: &res}, nil
}
