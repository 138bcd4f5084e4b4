package model

import (
	"time"
)

// JobStatus is the coarse phase of a generation job. The pipeline alternates
// generating_content and generating_audio per pin; the persisted status only
// reflects the current phase of the batch, not per-pin state.
type JobStatus string

const (
	JobStatusPending           JobStatus = "pending"
	JobStatusGeneratingContent JobStatus = "generating_content"
	JobStatusGeneratingAudio   JobStatus = "generating_audio"
	JobStatusCompleted         JobStatus = "completed"
	JobStatusPartial           JobStatus = "partial"
	JobStatusFailed            JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusPartial || s == JobStatusFailed
}

// JobProgress is updated by the orchestrator after each pin and read
// concurrently by pollers.
type JobProgress struct {
	TotalPins     int    `json:"totalPins"`
	CompletedPins int    `json:"completedPins"`
	CurrentStep   string `json:"currentStep"`
}

// GenerationRequest is the validated, clamped echo of a tour-generation
// request. Radius and pin count are stored post-clamping.
type GenerationRequest struct {
	DeviceID       string   `json:"deviceId"`
	CenterLat      float64  `json:"centerLat"`
	CenterLng      float64  `json:"centerLng"`
	RadiusMeters   float64  `json:"radiusMeters"`
	PinCount       int      `json:"pinCount"`
	Categories     []string `json:"categories,omitempty"` // optional allow-list
	IdempotencyKey string   `json:"idempotencyKey,omitempty"`
}

// JobResult is present iff the job ended completed or partial.
type JobResult struct {
	TourID            string  `json:"tourId"`
	Pins              []Pin   `json:"pins"`
	EstimatedDuration int     `json:"estimatedDuration"` // seconds
	TotalDistance     float64 `json:"totalDistance"`     // meters
}

// JobError is present iff the job ended failed or partial.
type JobError struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Retryable  bool     `json:"retryable"`
	FailedPins []string `json:"failedPins,omitempty"` // labels like "pin 2 (Food)"
}

// CostReport is attached once a job reaches completed or partial.
type CostReport struct {
	Tokens           int     `json:"tokens"`     // estimated LLM tokens
	Characters       int     `json:"characters"` // billed TTS characters
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`
}

// Job is the tracked lifecycle of one tour-generation request. A job is
// mutated only by the single orchestrator worker that owns it; terminal
// states are write-once.
type Job struct {
	ID       string            `json:"id"`
	DeviceID string            `json:"deviceId"`
	Status   JobStatus         `json:"status"`
	Progress JobProgress       `json:"progress"`
	Request  GenerationRequest `json:"request"`
	Result   *JobResult        `json:"result,omitempty"`
	Error    *JobError         `json:"error,omitempty"`
	Costs    *CostReport       `json:"costs,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
