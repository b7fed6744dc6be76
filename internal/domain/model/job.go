package model

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusError    JobStatus = "error"
	JobStatusTimedOut JobStatus = "timed_out"
)

// IsTerminal reports whether a job in this status will never change again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusDone, JobStatusError, JobStatusTimedOut:
		return true
	}
	return false
}

// Feature identifies one of the fixed analysis products a job can run.
type Feature string

const (
	FeatureChartAnalysis   Feature = "chart_analysis"
	FeaturePortfolioReview Feature = "portfolio_review"
	FeatureMarketReport    Feature = "market_report"
	FeatureBacktest        Feature = "strategy_backtest"
)

func (f Feature) Valid() bool {
	switch f {
	case FeatureChartAnalysis, FeaturePortfolioReview, FeatureMarketReport, FeatureBacktest:
		return true
	}
	return false
}

// Job is one unit of analysis work dispatched to the execution service.
// The service writes its result back into the job row out-of-band; the
// client only ever moves a job forward, never out of a terminal status.
type Job struct {
	ID              string
	UserID          string
	Feature         Feature
	Status          JobStatus
	RequestPayload  json.RawMessage
	ResponsePayload json.RawMessage
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewJob(id, userID string, feature Feature, payload json.RawMessage) *Job {
	now := time.Now()
	return &Job{
		ID:             id,
		UserID:         userID,
		Feature:        feature,
		Status:         JobStatusQueued,
		RequestPayload: payload,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (j *Job) Terminal() bool { return j.Status.IsTerminal() }

// JobPatch is a partial update applied to a job row. Nil fields are left
// untouched.
type JobPatch struct {
	Status          *JobStatus
	ResponsePayload json.RawMessage
	LastError       *string
}
