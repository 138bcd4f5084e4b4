package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Shaandjain/local-audio-pins/pkg/config"
	"github.com/Shaandjain/local-audio-pins/pkg/request"
	"github.com/Shaandjain/local-audio-pins/pkg/tracker"
	"github.com/Shaandjain/local-audio-pins/pkg/tts"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// Provider implements tts.Provider for ElevenLabs. Synthesis streams the
// audio body straight to disk with its own retry loop; the voice catalog
// goes through the shared request client.
type Provider struct {
	apiKey  string
	voiceID string // Default voice ID
	modelID string // Model ID (e.g. "eleven_multilingual_v2")
	baseURL string
	client  *http.Client
	rc      *request.Client
	tracker *tracker.Tracker
}

// NewProvider creates a new ElevenLabs TTS provider. rc may be nil; Voices
// then returns only the configured voice.
func NewProvider(cfg config.ElevenLabsConfig, rc *request.Client, t *tracker.Tracker) *Provider {
	return &Provider{
		apiKey:  cfg.Key,
		voiceID: cfg.VoiceID,
		modelID: cfg.Model,
		baseURL: defaultBaseURL,
		client:  &http.Client{},
		rc:      rc,
		tracker: t,
	}
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// requestBody represents the JSON payload for ElevenLabs TTS.
type requestBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize generates speech from text using ElevenLabs and writes an MP3
// to outputPath. The billed character count and the duration estimate
// derived from it are returned alongside.
func (p *Provider) Synthesize(ctx context.Context, text, voiceID, outputPath string) (*tts.Result, error) {
	if p.apiKey == "" {
		return nil, tts.NewFatalError(http.StatusUnauthorized, "no API key configured for ElevenLabs")
	}

	vid := p.voiceID
	if voiceID != "" {
		vid = voiceID
	}
	if vid == "" {
		return nil, fmt.Errorf("no voice ID configured for ElevenLabs")
	}

	reqData := requestBody{
		Text:    text,
		ModelID: p.modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0.3,
			UseSpeakerBoost: true,
		},
	}

	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := p.executeWithRetry(ctx, vid, jsonData, text, outputPath); err != nil {
		return nil, err
	}

	chars := len(text)
	return &tts.Result{
		Format:            "mp3",
		CharacterCount:    chars,
		EstimatedDuration: float64(chars) / tts.CharsPerSecond,
	}, nil
}

func (p *Provider) executeWithRetry(ctx context.Context, voiceID string, jsonData []byte, text, outputPath string) error {
	maxRetries := 2 // Total 3 attempts
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Delay between retries
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
				tts.Log("ELEVENLABS", fmt.Sprintf("Retrying request (attempt %d/%d)...", attempt+1, maxRetries+1), 0, lastErr)
			}
		}

		retry, err := p.executeAttempt(ctx, voiceID, jsonData, text, outputPath)
		if err == nil {
			if p.tracker != nil {
				p.tracker.TrackAPISuccess("elevenlabs")
				p.tracker.TrackCharacters("elevenlabs", len(text))
			}
			return nil
		}

		if !retry {
			return err // Fatal error
		}

		lastErr = err
	}

	// All retries failed
	if p.tracker != nil {
		p.tracker.TrackAPIFailure("elevenlabs")
	}

	return tts.NewFatalError(500, fmt.Sprintf("ElevenLabs failed after %d attempts: %v", maxRetries+1, lastErr))
}

func (p *Provider) executeAttempt(ctx context.Context, voiceID string, jsonData []byte, text, outputPath string) (retry bool, err error) {
	url := fmt.Sprintf("%s/v1/text-to-speech/%s", p.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		tts.Log("ELEVENLABS", text, 0, err)
		return true, err // Retry on network error
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		tts.Log("ELEVENLABS", text, resp.StatusCode, nil)

		// Fast fail on auth errors
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return false, tts.NewFatalError(resp.StatusCode, fmt.Sprintf("ElevenLabs auth failed: %s", string(body)))
		}

		return true, fmt.Errorf("eleven labs api error (status %d): %s", resp.StatusCode, string(body))
	}

	filename := outputPath
	if filepath.Ext(filename) != ".mp3" {
		filename = filename + ".mp3"
	}

	f, err := os.Create(filename)
	if err != nil {
		resp.Body.Close()
		return false, fmt.Errorf("failed to create output file: %w", err)
	}

	written, err := io.Copy(f, resp.Body)
	resp.Body.Close()
	f.Close() // Close to flush

	if err != nil {
		tts.Log("ELEVENLABS", text, 200, err)
		os.Remove(filename)
		return true, fmt.Errorf("failed to write audio to file: %w", err)
	}

	if written == 0 {
		tts.Log("ELEVENLABS", "Received empty audio file (0 bytes)", 200, nil)
		os.Remove(filename)
		return true, fmt.Errorf("received empty audio from eleven labs")
	}

	tts.Log("ELEVENLABS", text, 200, nil)
	return false, nil
}

type catalogResponse struct {
	Voices []catalogVoice `json:"voices"`
}

type catalogVoice struct {
	VoiceID string            `json:"voice_id"`
	Name    string            `json:"name"`
	Labels  map[string]string `json:"labels"`
}

// Voices fetches the account's voice catalog. Without a request client or
// API key it falls back to the configured voice.
func (p *Provider) Voices(ctx context.Context) ([]tts.Voice, error) {
	fallback := []tts.Voice{
		{ID: p.voiceID, Name: "Configured ElevenLabs Voice", Language: "en-US", IsNeural: true},
	}
	if p.rc == nil || p.apiKey == "" {
		return fallback, nil
	}

	body, err := p.rc.Get(ctx, p.baseURL+"/v1/voices", map[string]string{"xi-api-key": p.apiKey})
	if err != nil {
		return nil, fmt.Errorf("eleven labs voice catalog: %w", err)
	}

	var catalog catalogResponse
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, fmt.Errorf("eleven labs voice catalog: %w", err)
	}

	voices := make([]tts.Voice, 0, len(catalog.Voices))
	for _, v := range catalog.Voices {
		lang := v.Labels["language"]
		if lang == "" {
			lang = "en-US"
		}
		voices = append(voices, tts.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Language: lang,
			IsNeural: true,
		})
	}
	if len(voices) == 0 {
		return fallback, nil
	}
	return voices, nil
}
