package tourgen

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shaandjain/local-audio-pins/pkg/category"
	"github.com/Shaandjain/local-audio-pins/pkg/config"
	"github.com/Shaandjain/local-audio-pins/pkg/db"
	"github.com/Shaandjain/local-audio-pins/pkg/guide"
	"github.com/Shaandjain/local-audio-pins/pkg/model"
	"github.com/Shaandjain/local-audio-pins/pkg/prefs"
	"github.com/Shaandjain/local-audio-pins/pkg/store"
	"github.com/Shaandjain/local-audio-pins/pkg/tts"
)

// mockContent returns canned content, failing the slots listed in failAt
// (zero-based) with the given error.
type mockContent struct {
	mu      sync.Mutex
	calls   int
	failAt  map[int]bool
	failErr error
}

func (m *mockContent) Generate(ctx context.Context, req guide.Request) (*guide.Content, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.failAt[req.PinIndex] {
		err := m.failErr
		if err == nil {
			err = fmt.Errorf("gemini content generation: request failed")
		}
		return nil, err
	}
	return &guide.Content{
		Title:       fmt.Sprintf("Stop %d", req.PinIndex+1),
		Description: "A quiet corner with a story.",
		Transcript:  "Welcome to this spot. It has seen three centuries of city life.",
		Category:    req.Category,
		Location:    req.Center,
	}, nil
}

// mockSynth reports a fixed character count, failing the slots in failAt.
type mockSynth struct {
	mu     sync.Mutex
	calls  int
	failAt map[int]bool
}

func (m *mockSynth) Synthesize(ctx context.Context, text, voice, outputPath string) (*tts.Result, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if m.failAt[call] {
		return nil, fmt.Errorf("eleven labs api error (status 500): upstream")
	}
	chars := len(text)
	return &tts.Result{
		Format:            "mp3",
		CharacterCount:    chars,
		EstimatedDuration: float64(chars) / tts.CharsPerSecond,
	}, nil
}

func (m *mockSynth) Voices(ctx context.Context) ([]tts.Voice, error) {
	return nil, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return store.NewSQLiteStore(d)
}

func newTestService(t *testing.T, st store.Store, content ContentGenerator, synth tts.Provider) *Service {
	t.Helper()
	cfg := config.DefaultConfig().Generation
	cfg.Workers = 1
	pf := prefs.NewService(st, st)
	sel := category.NewSelector(rand.New(rand.NewSource(1)))
	return NewService(cfg, t.TempDir(), "test-voice", st, pf, sel, content, synth)
}

func waitForTerminal(t *testing.T, st store.Store, jobID string) *model.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := st.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		require.NotNil(t, job)
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return nil
}

func validRequest() model.GenerationRequest {
	return model.GenerationRequest{
		DeviceID:     "device-1",
		CenterLat:    52.52,
		CenterLng:    13.405,
		RadiusMeters: 500,
		PinCount:     3,
	}
}

func TestGeneration_AllSuccess(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st, &mockContent{}, &mockSynth{})
	svc.Start()
	defer svc.Stop()

	ctx := context.Background()
	jobID, err := svc.StartGeneration(ctx, validRequest())
	require.NoError(t, err)

	job := waitForTerminal(t, st, jobID)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Len(t, job.Result.Pins, 3)
	assert.Nil(t, job.Error)

	require.NotNil(t, job.Costs)
	assert.Greater(t, job.Costs.Tokens, 0)
	assert.Greater(t, job.Costs.Characters, 0)
	assert.Greater(t, job.Costs.EstimatedCostUSD, 0.0)

	// Progress is finalized alongside the terminal status.
	assert.Equal(t, 3, job.Progress.TotalPins)
	assert.Equal(t, 3, job.Progress.CompletedPins)
	assert.Equal(t, "Complete", job.Progress.CurrentStep)

	// 17s per generated pin.
	assert.Equal(t, 3*17, job.Result.EstimatedDuration)

	// Tour and collection writes happened.
	tour, err := st.GetTour(ctx, job.Result.TourID)
	require.NoError(t, err)
	require.NotNil(t, tour)
	assert.Equal(t, "AI Tour: Area near 52.5200, 13.4050", tour.Name)
	assert.Len(t, tour.Pins, 3)

	pins, err := st.GetPins(ctx, "default")
	require.NoError(t, err)
	assert.Len(t, pins, 3)

	for _, p := range tour.Pins {
		assert.True(t, p.IsAIGenerated)
		assert.Equal(t, jobID, p.AIGenerationID)
		assert.Equal(t, p.ID+".mp3", p.AudioFile)
	}
}

func TestGeneration_PartialAudioFailure(t *testing.T) {
	st := newTestStore(t)
	synth := &mockSynth{failAt: map[int]bool{1: true}} // second synthesis call
	svc := newTestService(t, st, &mockContent{}, synth)
	svc.Start()
	defer svc.Stop()

	jobID, err := svc.StartGeneration(context.Background(), validRequest())
	require.NoError(t, err)

	job := waitForTerminal(t, st, jobID)
	assert.Equal(t, model.JobStatusPartial, job.Status)

	require.NotNil(t, job.Result)
	assert.Len(t, job.Result.Pins, 2)

	require.NotNil(t, job.Error)
	assert.Equal(t, model.CodePartialAudioFailure, job.Error.Code)
	assert.Equal(t, "1 of 3 pins failed", job.Error.Message)
	assert.True(t, job.Error.Retryable)
	require.Len(t, job.Error.FailedPins, 1)
	assert.Regexp(t, `^pin 2 \(\w+\)$`, job.Error.FailedPins[0])

	require.NotNil(t, job.Costs)
	assert.Greater(t, job.Costs.EstimatedCostUSD, 0.0)
}

func TestGeneration_AllFail(t *testing.T) {
	st := newTestStore(t)
	content := &mockContent{failAt: map[int]bool{0: true, 1: true, 2: true}}
	svc := newTestService(t, st, content, &mockSynth{})
	svc.Start()
	defer svc.Stop()

	ctx := context.Background()
	jobID, err := svc.StartGeneration(ctx, validRequest())
	require.NoError(t, err)

	job := waitForTerminal(t, st, jobID)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Nil(t, job.Result)
	assert.Nil(t, job.Costs)

	require.NotNil(t, job.Error)
	assert.Equal(t, model.CodePartialContentFailure, job.Error.Code)
	assert.Equal(t, "failed to generate any pins", job.Error.Message)
	assert.True(t, job.Error.Retryable)
	assert.Equal(t, "Failed", job.Progress.CurrentStep)

	// No tour or collection writes.
	tours, err := st.ListTours(ctx, "device-1")
	require.NoError(t, err)
	assert.Empty(t, tours)

	pins, err := st.GetPins(ctx, "default")
	require.NoError(t, err)
	assert.Empty(t, pins)
}

func TestGeneration_ExistingTitlesAvoided(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Seed a nearby pin whose title must reach the content generator.
	err := st.AppendPins(ctx, "default", []model.Pin{{
		ID: "pin-existing", Lat: 52.52, Lng: 13.405, Title: "Old Mill", Category: model.CategoryHistory,
	}})
	require.NoError(t, err)

	var got []string
	content := &capturingContent{titles: &got}
	svc := newTestService(t, st, content, &mockSynth{})
	svc.Start()
	defer svc.Stop()

	jobID, err := svc.StartGeneration(ctx, validRequest())
	require.NoError(t, err)
	waitForTerminal(t, st, jobID)

	assert.Contains(t, got, "Old Mill")
}

type capturingContent struct {
	mu     sync.Mutex
	titles *[]string
	inner  mockContent
}

func (c *capturingContent) Generate(ctx context.Context, req guide.Request) (*guide.Content, error) {
	c.mu.Lock()
	*c.titles = append(*c.titles, req.ExistingTitles...)
	c.mu.Unlock()
	return c.inner.Generate(ctx, req)
}

func TestStartGeneration_Validation(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st, &mockContent{}, &mockSynth{})

	ctx := context.Background()

	_, err := svc.StartGeneration(ctx, model.GenerationRequest{CenterLat: 52, CenterLng: 13})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "deviceId", verr.Field)

	_, err = svc.StartGeneration(ctx, model.GenerationRequest{DeviceID: "d", CenterLat: 95, CenterLng: 13})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "center", verr.Field)
}

func TestNormalize_Clamping(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st, &mockContent{}, &mockSynth{})

	req := model.GenerationRequest{DeviceID: "d", CenterLat: 52, CenterLng: 13}
	require.NoError(t, svc.normalize(&req))
	assert.Equal(t, 500.0, req.RadiusMeters)
	assert.Equal(t, 5, req.PinCount)

	req = model.GenerationRequest{DeviceID: "d", CenterLat: 52, CenterLng: 13, RadiusMeters: 50, PinCount: 99}
	require.NoError(t, svc.normalize(&req))
	assert.Equal(t, 100.0, req.RadiusMeters)
	assert.Equal(t, 10, req.PinCount)

	req = model.GenerationRequest{DeviceID: "d", CenterLat: 52, CenterLng: 13, RadiusMeters: 9999, PinCount: -1}
	require.NoError(t, svc.normalize(&req))
	assert.Equal(t, 2000.0, req.RadiusMeters)
	assert.Equal(t, 1, req.PinCount)

	req = model.GenerationRequest{DeviceID: "d", CenterLat: 52, CenterLng: 13,
		Categories: []string{"Food", "Shopping", "History"}}
	require.NoError(t, svc.normalize(&req))
	assert.Equal(t, []string{"Food", "History"}, req.Categories)
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, model.CodeContentProviderError, classifyError(fmt.Errorf("gemini content generation: boom")))
	assert.Equal(t, model.CodeAudioProviderError, classifyError(fmt.Errorf("eleven labs api error (status 500)")))
	assert.Equal(t, model.CodeAudioProviderError, classifyError(fmt.Errorf("ElevenLabs auth failed")))
	assert.Equal(t, model.CodeStorageError, classifyError(fmt.Errorf("database is locked")))
}

func TestEstimateCost(t *testing.T) {
	// 1000 tokens and 1000 characters.
	assert.InDelta(t, 0.005+0.30, estimateCost(1000, 1000), 1e-9)
	assert.Equal(t, 0.0, estimateCost(0, 0))
}
