package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Shaandjain/local-audio-pins/pkg/db"
	"github.com/Shaandjain/local-audio-pins/pkg/geo"
	"github.com/Shaandjain/local-audio-pins/pkg/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewSQLiteStore(d)
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	testJobs(t, ctx, store)
	testTours(t, ctx, store)
	testCollections(t, ctx, store)
	testPreferences(t, ctx, store)
}

func testJobs(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Jobs", func(t *testing.T) {
		now := time.Now().UTC()
		job := &model.Job{
			ID:       "job_abc123def456",
			DeviceID: "dev1",
			Status:   model.JobStatusPending,
			Progress: model.JobProgress{TotalPins: 3},
			Request: model.GenerationRequest{
				DeviceID:     "dev1",
				CenterLat:    43.65,
				CenterLng:    -79.38,
				RadiusMeters: 500,
				PinCount:     3,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := store.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}

		loaded, err := store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if loaded == nil {
			t.Fatal("GetJob returned nil")
		}
		if loaded.Status != model.JobStatusPending {
			t.Errorf("status = %s", loaded.Status)
		}
		if loaded.Request.PinCount != 3 {
			t.Errorf("request pin count = %d", loaded.Request.PinCount)
		}
		if loaded.Result != nil || loaded.Error != nil || loaded.Costs != nil {
			t.Error("fresh job should have no result/error/costs")
		}

		if err := store.UpdateJobStatus(ctx, job.ID, model.JobStatusGeneratingContent); err != nil {
			t.Fatalf("UpdateJobStatus failed: %v", err)
		}

		completed := 2
		step := "Generating narration for pin 2 of 3"
		if err := store.UpdateJobProgress(ctx, job.ID, ProgressPatch{CompletedPins: &completed, CurrentStep: &step}); err != nil {
			t.Fatalf("UpdateJobProgress failed: %v", err)
		}

		loaded, err = store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatal(err)
		}
		// Patch merges: TotalPins untouched.
		if loaded.Progress.TotalPins != 3 || loaded.Progress.CompletedPins != 2 {
			t.Errorf("progress = %+v", loaded.Progress)
		}
		if loaded.Progress.CurrentStep != step {
			t.Errorf("step = %q", loaded.Progress.CurrentStep)
		}

		result := &model.JobResult{TourID: "tour_xyz", Pins: []model.Pin{{ID: "ai_pin_1"}}}
		costs := &model.CostReport{Tokens: 600, Characters: 1200, EstimatedCostUSD: 0.363}
		if err := store.CompleteJob(ctx, job.ID, result, costs); err != nil {
			t.Fatalf("CompleteJob failed: %v", err)
		}

		loaded, err = store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if loaded.Status != model.JobStatusCompleted {
			t.Errorf("status = %s", loaded.Status)
		}
		if loaded.Result == nil || loaded.Result.TourID != "tour_xyz" {
			t.Errorf("result = %+v", loaded.Result)
		}
		if loaded.Costs == nil || loaded.Costs.Characters != 1200 {
			t.Errorf("costs = %+v", loaded.Costs)
		}
		// Completion finalizes progress.
		if loaded.Progress.CompletedPins != 3 || loaded.Progress.CurrentStep != "Complete" {
			t.Errorf("terminal progress = %+v", loaded.Progress)
		}

		// Terminal states are write-once.
		err = store.FailJob(ctx, job.ID, &model.JobError{Code: model.CodeStorageError, Message: "boom"})
		if !errors.Is(err, ErrJobTerminal) {
			t.Errorf("expected ErrJobTerminal, got %v", err)
		}

		// Missing job reads as nil, nil.
		missing, err := store.GetJob(ctx, "job_nope")
		if err != nil || missing != nil {
			t.Errorf("GetJob(missing) = %v, %v", missing, err)
		}
	})

	t.Run("PartialJob", func(t *testing.T) {
		now := time.Now().UTC()
		job := &model.Job{
			ID: "job_partial0001", DeviceID: "dev1",
			Status: model.JobStatusPending, CreatedAt: now, UpdatedAt: now,
		}
		if err := store.CreateJob(ctx, job); err != nil {
			t.Fatal(err)
		}

		result := &model.JobResult{TourID: "tour_p", Pins: []model.Pin{{ID: "ai_pin_2"}}}
		jobErr := &model.JobError{
			Code: model.CodePartialAudioFailure, Message: "1 of 2 pins failed",
			Retryable: true, FailedPins: []string{"pin 2 (Food)"},
		}
		if err := store.PartialCompleteJob(ctx, job.ID, result, jobErr, &model.CostReport{Tokens: 300}); err != nil {
			t.Fatalf("PartialCompleteJob failed: %v", err)
		}

		loaded, err := store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if loaded.Status != model.JobStatusPartial {
			t.Errorf("status = %s", loaded.Status)
		}
		if loaded.Result == nil || loaded.Error == nil {
			t.Fatal("partial job must carry both result and error")
		}
		if len(loaded.Error.FailedPins) != 1 || loaded.Error.FailedPins[0] != "pin 2 (Food)" {
			t.Errorf("failed pins = %v", loaded.Error.FailedPins)
		}
	})

	t.Run("FailedJob", func(t *testing.T) {
		now := time.Now().UTC()
		job := &model.Job{
			ID: "job_failed000001", DeviceID: "dev1",
			Status:    model.JobStatusGeneratingContent,
			Progress:  model.JobProgress{TotalPins: 3, CompletedPins: 1, CurrentStep: "Generating content for pin 2/3 (Food)"},
			CreatedAt: now, UpdatedAt: now,
		}
		if err := store.CreateJob(ctx, job); err != nil {
			t.Fatal(err)
		}

		jobErr := &model.JobError{Code: model.CodePartialContentFailure, Message: "failed to generate any pins", Retryable: true}
		if err := store.FailJob(ctx, job.ID, jobErr); err != nil {
			t.Fatalf("FailJob failed: %v", err)
		}

		loaded, err := store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if loaded.Status != model.JobStatusFailed {
			t.Errorf("status = %s", loaded.Status)
		}
		// Failure stamps the step but keeps the completed count.
		if loaded.Progress.CurrentStep != "Failed" || loaded.Progress.CompletedPins != 1 {
			t.Errorf("failed progress = %+v", loaded.Progress)
		}
	})
}

func testTours(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Tours", func(t *testing.T) {
		tour := &model.Tour{
			ID:       "tour_abc123def",
			DeviceID: "dev1",
			Name:     "AI Tour: Area near 43.6500, -79.3800",
			Pins: []model.Pin{
				{ID: "ai_pin_a", Lat: 43.65, Lng: -79.38, Title: "First", Category: model.CategoryHistory},
				{ID: "ai_pin_b", Lat: 43.6502, Lng: -79.3801, Title: "Second", Category: model.CategoryFood},
			},
			CenterLat: 43.65, CenterLng: -79.38,
			GenerationJobID:   "job_abc123def456",
			EstimatedDuration: 34,
			TotalDistance:     24.5,
			CreatedAt:         time.Now().UTC(),
		}

		if err := store.CreateTour(ctx, tour); err != nil {
			t.Fatalf("CreateTour failed: %v", err)
		}

		loaded, err := store.GetTour(ctx, tour.ID)
		if err != nil {
			t.Fatalf("GetTour failed: %v", err)
		}
		if loaded == nil {
			t.Fatal("GetTour returned nil")
		}
		if len(loaded.Pins) != 2 || loaded.Pins[0].Title != "First" {
			t.Errorf("pins = %+v", loaded.Pins)
		}
		if loaded.EstimatedDuration != 34 {
			t.Errorf("estimated duration = %d", loaded.EstimatedDuration)
		}

		tours, err := store.ListTours(ctx, "dev1")
		if err != nil {
			t.Fatalf("ListTours failed: %v", err)
		}
		if len(tours) != 1 {
			t.Errorf("ListTours returned %d tours", len(tours))
		}

		none, err := store.ListTours(ctx, "other-device")
		if err != nil || len(none) != 0 {
			t.Errorf("ListTours(other) = %v, %v", none, err)
		}
	})
}

func testCollections(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Collections", func(t *testing.T) {
		center := geo.Point{Lat: 43.65, Lng: -79.38}
		near := geo.DestinationPoint(center, 200, 45)
		far := geo.DestinationPoint(center, 3000, 45)

		pins := []model.Pin{
			{ID: "ai_pin_near", Lat: near.Lat, Lng: near.Lng, Title: "Near", Category: model.CategoryNature, IsAIGenerated: true, AIGenerationID: "job_x", CreatedAt: time.Now().UTC()},
			{ID: "ai_pin_far", Lat: far.Lat, Lng: far.Lng, Title: "Far", Category: model.CategoryNature, IsAIGenerated: true, AIGenerationID: "job_x", CreatedAt: time.Now().UTC()},
		}
		if err := store.AppendPins(ctx, "default", pins); err != nil {
			t.Fatalf("AppendPins failed: %v", err)
		}

		all, err := store.GetPins(ctx, "default")
		if err != nil {
			t.Fatalf("GetPins failed: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("GetPins returned %d pins", len(all))
		}

		inRadius, err := store.GetPinsInRadius(ctx, "default", center, 500)
		if err != nil {
			t.Fatalf("GetPinsInRadius failed: %v", err)
		}
		if len(inRadius) != 1 || inRadius[0].ID != "ai_pin_near" {
			t.Errorf("in-radius pins = %+v", inRadius)
		}

		batch, err := store.GetPinsBatch(ctx, []string{"ai_pin_near", "ai_pin_missing"})
		if err != nil {
			t.Fatalf("GetPinsBatch failed: %v", err)
		}
		if len(batch) != 1 || batch["ai_pin_near"] == nil {
			t.Errorf("batch = %+v", batch)
		}

		empty, err := store.GetPinsBatch(ctx, nil)
		if err != nil || len(empty) != 0 {
			t.Errorf("empty batch = %v, %v", empty, err)
		}
	})
}

func testPreferences(t *testing.T, ctx context.Context, store *SQLiteStore) {
	t.Run("Preferences", func(t *testing.T) {
		missing, err := store.GetPreferences(ctx, "dev-unknown")
		if err != nil || missing != nil {
			t.Errorf("GetPreferences(missing) = %v, %v", missing, err)
		}

		now := time.Now().UTC()
		profile := &model.PreferenceProfile{
			DeviceID:        "dev1",
			FavoritePinIDs:  []string{"ai_pin_near"},
			CategoryWeights: model.DefaultWeights(),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := store.SavePreferences(ctx, profile); err != nil {
			t.Fatalf("SavePreferences failed: %v", err)
		}

		loaded, err := store.GetPreferences(ctx, "dev1")
		if err != nil {
			t.Fatalf("GetPreferences failed: %v", err)
		}
		if loaded == nil {
			t.Fatal("GetPreferences returned nil")
		}
		if len(loaded.FavoritePinIDs) != 1 {
			t.Errorf("favorites = %v", loaded.FavoritePinIDs)
		}
		if loaded.CategoryWeights[model.CategoryFood] != 0.167 {
			t.Errorf("weights = %v", loaded.CategoryWeights)
		}

		// Upsert path.
		profile.FavoritePinIDs = nil
		profile.CategoryWeights[model.CategoryFood] = 0.5
		if err := store.SavePreferences(ctx, profile); err != nil {
			t.Fatalf("SavePreferences upsert failed: %v", err)
		}
		loaded, err = store.GetPreferences(ctx, "dev1")
		if err != nil {
			t.Fatal(err)
		}
		if len(loaded.FavoritePinIDs) != 0 {
			t.Errorf("favorites after upsert = %v", loaded.FavoritePinIDs)
		}
		if loaded.CategoryWeights[model.CategoryFood] != 0.5 {
			t.Errorf("weights after upsert = %v", loaded.CategoryWeights)
		}
	})
}
