package store

import (
	"context"

	"github.com/Shaandjain/local-audio-pins/pkg/geo"
	"github.com/Shaandjain/local-audio-pins/pkg/model"
)

// JobStore handles generation job persistence. A job is owned end-to-end by
// a single orchestrator worker; terminal states are write-once.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus) error
	UpdateJobProgress(ctx context.Context, id string, patch ProgressPatch) error
	CompleteJob(ctx context.Context, id string, result *model.JobResult, costs *model.CostReport) error
	PartialCompleteJob(ctx context.Context, id string, result *model.JobResult, jobErr *model.JobError, costs *model.CostReport) error
	FailJob(ctx context.Context, id string, jobErr *model.JobError) error
}

// ProgressPatch is a partial progress update; nil fields are left unchanged.
type ProgressPatch struct {
	TotalPins     *int
	CompletedPins *int
	CurrentStep   *string
}

// TourStore handles tour persistence. Tours are append-only.
type TourStore interface {
	CreateTour(ctx context.Context, tour *model.Tour) error
	GetTour(ctx context.Context, id string) (*model.Tour, error)
	ListTours(ctx context.Context, deviceID string) ([]*model.Tour, error)
}

// CollectionStore handles the durable pin set per map region.
type CollectionStore interface {
	AppendPins(ctx context.Context, collectionID string, pins []model.Pin) error
	GetPins(ctx context.Context, collectionID string) ([]model.Pin, error)
	GetPinsInRadius(ctx context.Context, collectionID string, center geo.Point, radiusMeters float64) ([]model.Pin, error)
	GetPinsBatch(ctx context.Context, ids []string) (map[string]*model.Pin, error)
}

// PreferenceStore handles per-device preference profiles.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, deviceID string) (*model.PreferenceProfile, error)
	SavePreferences(ctx context.Context, profile *model.PreferenceProfile) error
}

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	JobStore
	TourStore
	CollectionStore
	PreferenceStore

	// Close closes the store connection.
	Close() error
}
