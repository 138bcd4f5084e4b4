package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/Shaandjain/local-audio-pins/pkg/admission"
	"github.com/Shaandjain/local-audio-pins/pkg/model"
	"github.com/Shaandjain/local-audio-pins/pkg/store"
	"github.com/Shaandjain/local-audio-pins/pkg/tourgen"
)

// TourHandler exposes tour generation and retrieval.
type TourHandler struct {
	svc     *tourgen.Service
	store   store.Store
	guard   *admission.IdempotencyGuard
	limiter *admission.RateLimiter

	// Per-pin wall-clock estimate reported to polling clients.
	pinEstimateSeconds int
}

// NewTourHandler creates a tour handler.
func NewTourHandler(svc *tourgen.Service, st store.Store, guard *admission.IdempotencyGuard, limiter *admission.RateLimiter, pinEstimateSeconds int) *TourHandler {
	return &TourHandler{
		svc:                svc,
		store:              st,
		guard:              guard,
		limiter:            limiter,
		pinEstimateSeconds: pinEstimateSeconds,
	}
}

type generateRequest struct {
	DeviceID string `json:"deviceId"`
	Center   struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"center"`
	RadiusMeters   float64  `json:"radiusMeters"`
	PinCount       int      `json:"pinCount"`
	Categories     []string `json:"categories"`
	IdempotencyKey string   `json:"idempotencyKey"`
}

type generateResponse struct {
	JobID                      string `json:"jobId"`
	Status                     string `json:"status"`
	EstimatedCompletionSeconds int    `json:"estimatedCompletionSeconds"`
	PollURL                    string `json:"pollUrl"`
}

// HandleGenerate handles POST /api/tours/generate.
func (h *TourHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, model.CodeInvalidRequest, "malformed JSON body")
		return
	}

	req := model.GenerationRequest{
		DeviceID:       body.DeviceID,
		CenterLat:      body.Center.Lat,
		CenterLng:      body.Center.Lng,
		RadiusMeters:   body.RadiusMeters,
		PinCount:       body.PinCount,
		Categories:     body.Categories,
		IdempotencyKey: body.IdempotencyKey,
	}

	// A replayed idempotency key returns the original job instead of
	// spawning a duplicate, and must not consume a rate-limit slot. The
	// key is claimed up front so a concurrent replay cannot slip past
	// while this request is still creating its job.
	if body.IdempotencyKey != "" {
		if jobID, duplicate := h.guard.Claim(body.IdempotencyKey); duplicate {
			status := "pending"
			if jobID != "" {
				if job, err := h.store.GetJob(r.Context(), jobID); err == nil && job != nil {
					status = string(job.Status)
				}
			}
			writeJSON(w, http.StatusConflict, errorBody{Error: errorDetail{
				Code:    model.CodeDuplicateRequest,
				Message: "a job for this idempotency key already exists",
				JobID:   jobID,
				Status:  status,
			}})
			return
		}
	}

	if ok, retryAfter := h.limiter.Allow(body.DeviceID); !ok {
		if body.IdempotencyKey != "" {
			h.guard.Release(body.IdempotencyKey)
		}
		seconds := int(math.Ceil(retryAfter.Seconds()))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
			Code:       model.CodeRateLimited,
			Message:    "too many generation requests for this device",
			RetryAfter: seconds,
		}})
		return
	}

	jobID, err := h.svc.StartGeneration(r.Context(), req)
	if err != nil {
		if body.IdempotencyKey != "" {
			h.guard.Release(body.IdempotencyKey)
		}
		var verr *tourgen.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, model.CodeInvalidRequest, verr.Error())
		case errors.Is(err, tourgen.ErrQueueFull):
			writeError(w, http.StatusTooManyRequests, model.CodeRateLimited, "generation queue is full")
		default:
			slog.Error("Failed to start generation", "error", err)
			writeError(w, http.StatusInternalServerError, model.CodeStorageError, "failed to create job")
		}
		return
	}

	if body.IdempotencyKey != "" {
		h.guard.Fulfill(body.IdempotencyKey, jobID)
	}

	// The request may have been clamped; read the stored echo for the
	// completion estimate.
	pinCount := req.PinCount
	if job, err := h.store.GetJob(r.Context(), jobID); err == nil && job != nil {
		pinCount = job.Request.PinCount
	}

	writeJSON(w, http.StatusAccepted, generateResponse{
		JobID:                      jobID,
		Status:                     string(model.JobStatusPending),
		EstimatedCompletionSeconds: h.pinEstimateSeconds * pinCount,
		PollURL:                    fmt.Sprintf("/api/tours/jobs/%s", jobID),
	})
}

type jobResponse struct {
	JobID                     string            `json:"jobId"`
	Status                    string            `json:"status"`
	Progress                  model.JobProgress `json:"progress"`
	EstimatedRemainingSeconds *int              `json:"estimatedRemainingSeconds,omitempty"`
	Result                    *model.JobResult  `json:"result,omitempty"`
	Costs                     *model.CostReport `json:"costs,omitempty"`
	Error                     *model.JobError   `json:"error,omitempty"`
}

// HandleJob handles GET /api/tours/jobs/{jobId}.
func (h *TourHandler) HandleJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		slog.Error("Failed to load job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, model.CodeStorageError, "failed to load job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, model.CodeNotFound, "job not found")
		return
	}

	resp := jobResponse{
		JobID:    job.ID,
		Status:   string(job.Status),
		Progress: job.Progress,
		Result:   job.Result,
		Costs:    job.Costs,
		Error:    job.Error,
	}

	if !job.Status.IsTerminal() {
		remaining := job.Progress.TotalPins - job.Progress.CompletedPins
		if remaining < 0 {
			remaining = 0
		}
		estimate := h.pinEstimateSeconds * remaining
		resp.EstimatedRemainingSeconds = &estimate
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleList handles GET /api/tours?deviceId=.
func (h *TourHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, model.CodeInvalidRequest, "deviceId query parameter is required")
		return
	}

	tours, err := h.store.ListTours(r.Context(), deviceID)
	if err != nil {
		slog.Error("Failed to list tours", "device_id", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, model.CodeStorageError, "failed to list tours")
		return
	}
	if tours == nil {
		tours = []*model.Tour{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"tours": tours})
}

// HandleGet handles GET /api/tours/{tourId}.
func (h *TourHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tourID := r.PathValue("tourId")

	tour, err := h.store.GetTour(r.Context(), tourID)
	if err != nil {
		slog.Error("Failed to load tour", "tour_id", tourID, "error", err)
		writeError(w, http.StatusInternalServerError, model.CodeStorageError, "failed to load tour")
		return
	}
	if tour == nil {
		writeError(w, http.StatusNotFound, model.CodeNotFound, "tour not found")
		return
	}

	writeJSON(w, http.StatusOK, tour)
}
