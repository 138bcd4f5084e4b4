package model

import (
	"time"
)

// Pin represents a single geo-located point of interest. User-recorded pins
// and AI-generated pins share the same shape; generated pins carry the
// originating job id and an AI flag.
type Pin struct {
	ID          string   `json:"id"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Transcript  string   `json:"transcript"` // narration script
	AudioFile   string   `json:"audioFile"`  // asset path relative to the audio dir
	Category    Category `json:"category"`

	IsAIGenerated  bool   `json:"isAiGenerated"`
	AIGenerationID string `json:"aiGenerationId,omitempty"` // source job id

	CreatedAt time.Time `json:"createdAt"`
}

// Tour is the durable artifact of a generation job that produced at least
// one pin. Tours are append-only: written exactly once, never mutated.
type Tour struct {
	ID              string  `json:"id"`
	DeviceID        string  `json:"deviceId"`
	Name            string  `json:"name"`
	Pins            []Pin   `json:"pins"` // generation order
	CenterLat       float64 `json:"centerLat"`
	CenterLng       float64 `json:"centerLng"`
	GenerationJobID string  `json:"generationJobId"`

	// EstimatedDuration is a coarse fixed-per-pin estimate in seconds. It is
	// deliberately not derived from the synthesizer's reported audio length.
	EstimatedDuration int `json:"estimatedDuration"`
	// TotalDistance sums consecutive great-circle distances over the pins in
	// generation order, in meters.
	TotalDistance float64 `json:"totalDistance"`

	CreatedAt time.Time `json:"createdAt"`
}

// PreferenceProfile holds a device's learned category weights and favorites.
// Weights are relative (they need not sum to 1 to be usable) but the
// recalculation keeps them normalized and strictly positive.
type PreferenceProfile struct {
	DeviceID        string               `json:"deviceId"`
	FavoritePinIDs  []string             `json:"favoritePinIds"`
	CategoryWeights map[Category]float64 `json:"categoryWeights"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// Collection is a durable set of pins for a logical map region, independent
// of which job created them.
type Collection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
