package model

import "encoding/json"

type ResultKind string

const (
	ResultKindText         ResultKind = "text"
	ResultKindStructured   ResultKind = "structured"
	ResultKindUnrecognized ResultKind = "unrecognized"
)

// ResultSection is one block of a structured analysis response.
type ResultSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// AnalysisResult is the normalized form of whatever the execution service
// returned. The service emits different nested shapes for plain-text and
// structured content; everything funnels through one normalization function
// so the rest of the core never branches on raw shapes.
type AnalysisResult struct {
	Kind     ResultKind      `json:"kind"`
	Text     string          `json:"text,omitempty"`
	Sections []ResultSection `json:"sections,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// DeliverySource identifies which channel produced a terminal result.
type DeliverySource string

const (
	SourcePush DeliverySource = "push"
	SourcePoll DeliverySource = "poll"
	// SourceSync marks a result the execution service answered inline on
	// dispatch, before either async channel ran.
	SourceSync DeliverySource = "sync"
)

// Delivery is what a registered handler receives, exactly once per job.
type Delivery struct {
	JobID  string
	Status JobStatus
	Result AnalysisResult
	Source DeliverySource
}
