// Package tourgen is the tour-generation orchestrator: it validates
// generation requests, tracks them as jobs, and drives each job through the
// content and narration providers on a worker pool. Individual pin failures
// never abort a job; a job ends failed only when nothing was produced or an
// error escapes the per-pin scope.
package tourgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Shaandjain/local-audio-pins/pkg/category"
	"github.com/Shaandjain/local-audio-pins/pkg/config"
	"github.com/Shaandjain/local-audio-pins/pkg/geo"
	"github.com/Shaandjain/local-audio-pins/pkg/guide"
	"github.com/Shaandjain/local-audio-pins/pkg/model"
	"github.com/Shaandjain/local-audio-pins/pkg/prefs"
	"github.com/Shaandjain/local-audio-pins/pkg/store"
	"github.com/Shaandjain/local-audio-pins/pkg/tts"
)

// Cost model: LLM tokens at $0.005 per 1k, narration at $0.30 per 1k
// characters.
const (
	tokenCostPerThousand = 0.005
	charCostPerThousand  = 0.30
)

// ErrQueueFull is returned when the generation queue cannot accept another
// job. The pending job record is failed before this is returned.
var ErrQueueFull = errors.New("generation queue is full")

// ValidationError describes a rejected generation request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// ContentGenerator produces pin content for one slot of a tour.
type ContentGenerator interface {
	Generate(ctx context.Context, req guide.Request) (*guide.Content, error)
}

// Service owns the generation job lifecycle.
type Service struct {
	cfg      config.GenerationConfig
	audioDir string
	voice    string

	store    store.Store
	prefs    *prefs.Service
	selector *category.Selector
	content  ContentGenerator
	synth    tts.Provider

	queue chan queuedJob
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

type queuedJob struct {
	jobID string
	req   model.GenerationRequest
}

// NewService creates the orchestrator. Start must be called before
// StartGeneration will make progress.
func NewService(cfg config.GenerationConfig, audioDir, voice string, st store.Store, pf *prefs.Service, sel *category.Selector, content ContentGenerator, synth tts.Provider) *Service {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Service{
		cfg:      cfg,
		audioDir: audioDir,
		voice:    voice,
		store:    st,
		prefs:    pf,
		selector: sel,
		content:  content,
		synth:    synth,
		queue:    make(chan queuedJob, queueSize),
		quit:     make(chan struct{}),
	}
}

// Start launches the worker pool.
func (s *Service) Start() {
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	slog.Info("Tour generation workers started", "workers", workers, "queue_size", cap(s.queue))
}

// Stop signals the workers and waits for in-flight jobs to finish. Queued
// jobs that no worker picked up stay pending in the store.
func (s *Service) Stop() {
	s.once.Do(func() { close(s.quit) })
	s.wg.Wait()
	slog.Info("Tour generation workers stopped")
}

// StartGeneration validates and clamps the request, records a pending job,
// and enqueues it. Returns the job ID immediately.
func (s *Service) StartGeneration(ctx context.Context, req model.GenerationRequest) (string, error) {
	if err := s.normalize(&req); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:       model.NewJobID(),
		DeviceID: req.DeviceID,
		Status:   model.JobStatusPending,
		Progress: model.JobProgress{TotalPins: req.PinCount},
		Request:  req,

		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	select {
	case s.queue <- queuedJob{jobID: job.ID, req: req}:
	default:
		jobErr := &model.JobError{
			Code:      model.CodeRateLimited,
			Message:   "generation queue is full",
			Retryable: true,
		}
		if failErr := s.store.FailJob(ctx, job.ID, jobErr); failErr != nil {
			slog.Error("Failed to mark overflowed job", "job_id", job.ID, "error", failErr)
		}
		return "", ErrQueueFull
	}

	slog.Info("Tour generation queued", "job_id", job.ID, "device_id", req.DeviceID, "pins", req.PinCount)
	return job.ID, nil
}

// normalize validates the request and clamps radius and pin count into the
// configured bounds. Unrecognized categories are dropped from the allow-list.
func (s *Service) normalize(req *model.GenerationRequest) error {
	if strings.TrimSpace(req.DeviceID) == "" {
		return &ValidationError{Field: "deviceId", Message: "must not be empty"}
	}
	if !geo.ValidLatLng(req.CenterLat, req.CenterLng) {
		return &ValidationError{Field: "center", Message: "latitude or longitude out of range"}
	}

	minRadius := float64(s.cfg.MinRadius)
	maxRadius := float64(s.cfg.MaxRadius)
	switch {
	case req.RadiusMeters == 0:
		req.RadiusMeters = float64(s.cfg.DefaultRadius)
	case req.RadiusMeters < minRadius:
		req.RadiusMeters = minRadius
	case req.RadiusMeters > maxRadius:
		req.RadiusMeters = maxRadius
	}

	switch {
	case req.PinCount == 0:
		req.PinCount = s.cfg.DefaultPins
	case req.PinCount < s.cfg.MinPins:
		req.PinCount = s.cfg.MinPins
	case req.PinCount > s.cfg.MaxPins:
		req.PinCount = s.cfg.MaxPins
	}

	var recognized []string
	for _, c := range req.Categories {
		if model.IsValidCategory(c) {
			recognized = append(recognized, c)
		}
	}
	req.Categories = recognized

	return nil
}

func (s *Service) worker(n int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case qj := <-s.queue:
			// In-flight jobs run to completion even during shutdown; the
			// per-call timeouts bound how long that takes.
			s.run(context.Background(), qj)
		}
	}
}

// run drives one job through the pipeline. Errors that escape the per-pin
// scope fail the job with a classified code.
func (s *Service) run(ctx context.Context, qj queuedJob) {
	start := time.Now()
	if err := s.process(ctx, qj.jobID, qj.req); err != nil {
		slog.Error("Tour generation failed", "job_id", qj.jobID, "error", err)
		jobErr := &model.JobError{
			Code:      classifyError(err),
			Message:   err.Error(),
			Retryable: true,
		}
		if failErr := s.store.FailJob(ctx, qj.jobID, jobErr); failErr != nil {
			slog.Error("Failed to mark failed job", "job_id", qj.jobID, "error", failErr)
		}
		return
	}
	slog.Info("Tour generation finished", "job_id", qj.jobID, "duration", time.Since(start).Round(time.Millisecond))
}

func (s *Service) process(ctx context.Context, jobID string, req model.GenerationRequest) error {
	totalTokens := 0
	totalCharacters := 0
	var generated []model.Pin
	var failed []string

	if err := s.store.UpdateJobStatus(ctx, jobID, model.JobStatusGeneratingContent); err != nil {
		return err
	}
	if err := s.setStep(ctx, jobID, "Loading preferences"); err != nil {
		return err
	}

	profile, err := s.prefs.GetOrCreate(ctx, req.DeviceID)
	if err != nil {
		return err
	}

	center := geo.Point{Lat: req.CenterLat, Lng: req.CenterLng}
	areaName := fmt.Sprintf("Area near %.4f, %.4f", center.Lat, center.Lng)

	existing, err := s.store.GetPinsInRadius(ctx, s.cfg.CollectionID, center, req.RadiusMeters)
	if err != nil {
		return err
	}
	existingTitles := make([]string, 0, len(existing))
	for _, p := range existing {
		existingTitles = append(existingTitles, p.Title)
	}

	requested := make([]model.Category, len(req.Categories))
	for i, c := range req.Categories {
		requested[i] = model.Category(c)
	}
	categories := s.selector.Select(profile, requested, req.PinCount)
	topCategories := prefs.TopCategories(profile, 3)

	for i := 0; i < req.PinCount; i++ {
		cat := categories[i]

		if err := s.setProgress(ctx, jobID, i, fmt.Sprintf("Generating content for pin %d/%d (%s)", i+1, req.PinCount, cat)); err != nil {
			return err
		}

		titles := existingTitles
		for _, p := range generated {
			titles = append(titles, p.Title)
		}

		content, err := s.generateContent(ctx, guide.Request{
			Center:         center,
			AreaName:       areaName,
			Category:       cat,
			TopCategories:  topCategories,
			ExistingTitles: titles,
			PinIndex:       i,
			TotalPins:      req.PinCount,
		})
		if err != nil {
			slog.Error("Pin content generation failed", "job_id", jobID, "pin", i+1, "category", cat, "error", err)
			failed = append(failed, fmt.Sprintf("pin %d (%s)", i+1, cat))
			continue
		}

		// ~4 chars per token plus prompt overhead.
		totalTokens += int(math.Ceil(float64(len(content.Transcript)+len(content.Title)+len(content.Description))/4)) + 200

		if err := s.store.UpdateJobStatus(ctx, jobID, model.JobStatusGeneratingAudio); err != nil {
			return err
		}
		if err := s.setStep(ctx, jobID, fmt.Sprintf("Generating audio for %q", content.Title)); err != nil {
			return err
		}

		pinID := model.NewPinID()
		audioFile := pinID + ".mp3"
		audioResult, err := s.synthesize(ctx, content.Transcript, filepath.Join(s.audioDir, audioFile))
		if err != nil {
			slog.Error("Pin narration synthesis failed", "job_id", jobID, "pin", i+1, "category", cat, "error", err)
			failed = append(failed, fmt.Sprintf("pin %d (%s)", i+1, cat))
			continue
		}
		totalCharacters += audioResult.CharacterCount

		generated = append(generated, model.Pin{
			ID:             pinID,
			Lat:            content.Location.Lat,
			Lng:            content.Location.Lng,
			Title:          content.Title,
			Description:    content.Description,
			Transcript:     content.Transcript,
			AudioFile:      audioFile,
			Category:       content.Category,
			IsAIGenerated:  true,
			AIGenerationID: jobID,
			CreatedAt:      time.Now().UTC(),
		})
	}

	if len(generated) == 0 {
		jobErr := &model.JobError{
			Code:      model.CodePartialContentFailure,
			Message:   "failed to generate any pins",
			Retryable: true,
		}
		return s.store.FailJob(ctx, jobID, jobErr)
	}

	costs := &model.CostReport{
		Tokens:           totalTokens,
		Characters:       totalCharacters,
		EstimatedCostUSD: estimateCost(totalTokens, totalCharacters),
	}

	points := make([]geo.Point, len(generated))
	for i, p := range generated {
		points[i] = geo.Point{Lat: p.Lat, Lng: p.Lng}
	}
	totalDistance := geo.RouteDistance(points)
	estimatedDuration := s.cfg.PinDurationSeconds * len(generated)

	tour := &model.Tour{
		ID:                model.NewTourID(),
		DeviceID:          req.DeviceID,
		Name:              fmt.Sprintf("AI Tour: %s", areaName),
		Pins:              generated,
		CenterLat:         center.Lat,
		CenterLng:         center.Lng,
		GenerationJobID:   jobID,
		EstimatedDuration: estimatedDuration,
		TotalDistance:     totalDistance,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.store.CreateTour(ctx, tour); err != nil {
		return err
	}

	// Collection append is best-effort: the tour record already exists.
	if err := s.store.AppendPins(ctx, s.cfg.CollectionID, generated); err != nil {
		slog.Error("Failed to append pins to collection", "job_id", jobID, "collection_id", s.cfg.CollectionID, "error", err)
	}

	result := &model.JobResult{
		TourID:            tour.ID,
		Pins:              generated,
		EstimatedDuration: estimatedDuration,
		TotalDistance:     totalDistance,
	}

	if len(failed) > 0 {
		jobErr := &model.JobError{
			Code:       model.CodePartialAudioFailure,
			Message:    fmt.Sprintf("%d of %d pins failed", len(failed), req.PinCount),
			Retryable:  true,
			FailedPins: failed,
		}
		return s.store.PartialCompleteJob(ctx, jobID, result, jobErr, costs)
	}
	return s.store.CompleteJob(ctx, jobID, result, costs)
}

func (s *Service) generateContent(ctx context.Context, req guide.Request) (*guide.Content, error) {
	if timeout := time.Duration(s.cfg.ContentTimeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.content.Generate(ctx, req)
}

func (s *Service) synthesize(ctx context.Context, transcript, outputPath string) (*tts.Result, error) {
	if timeout := time.Duration(s.cfg.SynthesisTimeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.synth.Synthesize(ctx, transcript, s.voice, outputPath)
}

func (s *Service) setStep(ctx context.Context, jobID, step string) error {
	return s.store.UpdateJobProgress(ctx, jobID, store.ProgressPatch{CurrentStep: &step})
}

func (s *Service) setProgress(ctx context.Context, jobID string, completed int, step string) error {
	return s.store.UpdateJobProgress(ctx, jobID, store.ProgressPatch{
		CompletedPins: &completed,
		CurrentStep:   &step,
	})
}

func estimateCost(tokens, characters int) float64 {
	return float64(tokens)/1000*tokenCostPerThousand + float64(characters)/1000*charCostPerThousand
}

// classifyError maps an escaped pipeline error to a stable code by the
// provider named in its message.
func classifyError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "gemini"):
		return model.CodeContentProviderError
	case strings.Contains(msg, "elevenlabs"), strings.Contains(msg, "eleven labs"), strings.Contains(msg, "edge"):
		return model.CodeAudioProviderError
	default:
		return model.CodeStorageError
	}
}
