package tts

import (
	"context"
)

const (
	// MinAudioSize is the minimum size of a synthesized audio file (1KB).
	// Files smaller than this are likely failed synthesis attempts.
	MinAudioSize = 1024

	// CharsPerSecond is the speaking-rate estimate used to derive a duration
	// from billed characters (~150 words per minute at ~5 characters per
	// word).
	CharsPerSecond = 12.5
)

// Result describes a completed synthesis.
type Result struct {
	Format            string  // "mp3"
	CharacterCount    int     // billed characters
	EstimatedDuration float64 // seconds, CharacterCount / CharsPerSecond
}

// Provider defines the interface for Text-To-Speech engines.
type Provider interface {
	// Synthesize generates audio from text and writes it to outputPath.
	Synthesize(ctx context.Context, text, voice, outputPath string) (*Result, error)

	// Voices returns a list of available voices for the provider.
	Voices(ctx context.Context) ([]Voice, error)
}

// Voice represents an available TTS voice.
type Voice struct {
	ID       string
	Name     string
	Language string
	IsNeural bool
}

// FatalError represents a TTS error that should not be retried.
// Examples: auth failures (401/403), exhausted retries.
type FatalError struct {
	StatusCode int
	Message    string
}

func (e *FatalError) Error() string {
	return e.Message
}

// NewFatalError creates a new FatalError with the given status code and message.
func NewFatalError(statusCode int, message string) *FatalError {
	return &FatalError{StatusCode: statusCode, Message: message}
}

// IsFatalError checks if an error is a TTS fatal error.
func IsFatalError(err error) bool {
	_, ok := err.(*FatalError)
	return ok
}
