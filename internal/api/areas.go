package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Shaandjain/local-audio-pins/pkg/geo"
	"github.com/Shaandjain/local-audio-pins/pkg/model"
)

// Pin-density thresholds for area recommendations.
const (
	densitySufficient = 5 // 5+ pins in area = sufficient
	densityGenerate   = 1 // 0-1 pins = recommend a full tour
)

const (
	analyzeDefaultRadius = 500
	analyzeMinRadius     = 100
	analyzeMaxRadius     = 2000
)

type areaPin struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Category      string  `json:"category"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	IsAIGenerated bool    `json:"isAiGenerated"`
}

type areaAnalysis struct {
	Center struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"center"`
	RadiusMeters float64 `json:"radiusMeters"`
	ExistingPins struct {
		Count int       `json:"count"`
		Pins  []areaPin `json:"pins"`
	} `json:"existingPins"`
	Recommendation    string `json:"recommendation"`
	SuggestedPinCount int    `json:"suggestedPinCount"`
	CategoryAnalysis  struct {
		Distribution      map[string]int `json:"distribution"`
		MissingCategories []string       `json:"missingCategories"`
	} `json:"categoryAnalysis"`
}

// HandleAnalyzeArea handles GET /api/areas/analyze. It reports whether an
// area already has enough pins or would benefit from tour generation.
func (h *CollectionHandler) HandleAnalyzeArea(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		writeError(w, http.StatusBadRequest, model.CodeInvalidRequest, "lat and lng query parameters are required and must be numbers")
		return
	}
	if !geo.ValidLatLng(lat, lng) {
		writeError(w, http.StatusBadRequest, model.CodeInvalidRequest, "invalid coordinates")
		return
	}

	radius := float64(analyzeDefaultRadius)
	if q.Has("radiusMeters") {
		if v, err := strconv.ParseFloat(q.Get("radiusMeters"), 64); err == nil {
			radius = v
		}
	}
	switch {
	case radius < analyzeMinRadius:
		radius = analyzeMinRadius
	case radius > analyzeMaxRadius:
		radius = analyzeMaxRadius
	}

	collectionID := q.Get("collectionId")
	if collectionID == "" {
		collectionID = "default"
	}

	pins, err := h.store.GetPinsInRadius(r.Context(), collectionID, geo.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		slog.Error("Failed to analyze area", "collection_id", collectionID, "error", err)
		writeError(w, http.StatusInternalServerError, model.CodeStorageError, "failed to analyze area")
		return
	}

	var resp areaAnalysis
	resp.Center.Lat = lat
	resp.Center.Lng = lng
	resp.RadiusMeters = radius
	resp.ExistingPins.Count = len(pins)
	resp.ExistingPins.Pins = make([]areaPin, 0, len(pins))
	for _, p := range pins {
		resp.ExistingPins.Pins = append(resp.ExistingPins.Pins, areaPin{
			ID:            p.ID,
			Title:         p.Title,
			Category:      string(p.Category),
			Lat:           p.Lat,
			Lng:           p.Lng,
			IsAIGenerated: p.IsAIGenerated,
		})
	}

	switch {
	case len(pins) <= densityGenerate:
		resp.Recommendation = "generate"
		resp.SuggestedPinCount = densitySufficient
	case len(pins) < densitySufficient:
		resp.Recommendation = "enrich"
		resp.SuggestedPinCount = densitySufficient - len(pins)
	default:
		resp.Recommendation = "sufficient"
		resp.SuggestedPinCount = 0
	}

	distribution := make(map[string]int)
	for _, p := range pins {
		category := string(p.Category)
		if category == "" {
			category = string(model.CategoryGeneral)
		}
		distribution[category]++
	}
	missing := make([]string, 0)
	for _, c := range model.Categories {
		if distribution[string(c)] == 0 {
			missing = append(missing, string(c))
		}
	}
	resp.CategoryAnalysis.Distribution = distribution
	resp.CategoryAnalysis.MissingCategories = missing

	writeJSON(w, http.StatusOK, resp)
}
