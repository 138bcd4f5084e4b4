package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Shaandjain/local-audio-pins/pkg/model"
	"github.com/Shaandjain/local-audio-pins/pkg/prefs"
)

// PreferenceHandler exposes per-device preference profiles and favorites.
type PreferenceHandler struct {
	prefs *prefs.Service
}

// NewPreferenceHandler creates a preference handler.
func NewPreferenceHandler(p *prefs.Service) *PreferenceHandler {
	return &PreferenceHandler{prefs: p}
}

// HandleGet handles GET /api/preferences/{deviceId}. A device that has
// never been seen gets a fresh default profile.
func (h *PreferenceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceId")

	profile, err := h.prefs.GetOrCreate(r.Context(), deviceID)
	if err != nil {
		slog.Error("Failed to load preferences", "device_id", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, model.CodeStorageError, "failed to load preferences")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

type favoriteRequest struct {
	PinID string `json:"pinId"`
}

// HandleAddFavorite handles POST /api/preferences/{deviceId}/favorites.
func (h *PreferenceHandler) HandleAddFavorite(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceId")

	var body favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PinID == "" {
		writeError(w, http.StatusBadRequest, model.CodeInvalidRequest, "pinId is required")
		return
	}

	profile, err := h.prefs.AddFavorite(r.Context(), deviceID, body.PinID)
	if err != nil {
		if errors.Is(err, prefs.ErrNoProfile) {
			writeError(w, http.StatusNotFound, model.CodeNotFound, "preferences not found, create preferences first")
			return
		}
		slog.Error("Failed to add favorite", "device_id", deviceID, "pin_id", body.PinID, "error", err)
		writeError(w, http.StatusInternalServerError, model.CodeStorageError, "failed to add favorite")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":                true,
		"favoritePinIds":         profile.FavoritePinIDs,
		"updatedCategoryWeights": profile.CategoryWeights,
	})
}

// HandleListFavorites handles GET /api/preferences/{deviceId}/favorites.
func (h *PreferenceHandler) HandleListFavorites(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceId")

	profile, err := h.prefs.Get(r.Context(), deviceID)
	if err != nil {
		slog.Error("Failed to load preferences", "device_id", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, model.CodeStorageError, "failed to load preferences")
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, model.CodeNotFound, "preferences not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"favoritePinIds": profile.FavoritePinIDs,
		"count":          len(profile.FavoritePinIDs),
	})
}

// HandleRemoveFavorite handles DELETE /api/preferences/{deviceId}/favorites/{pinId}.
func (h *PreferenceHandler) HandleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceId")
	pinID := r.PathValue("pinId")

	profile, err := h.prefs.RemoveFavorite(r.Context(), deviceID, pinID)
	if err != nil {
		switch {
		case errors.Is(err, prefs.ErrNoProfile):
			writeError(w, http.StatusNotFound, model.CodeNotFound, "preferences not found")
		case errors.Is(err, prefs.ErrNotFavorite):
			writeError(w, http.StatusNotFound, model.CodeNotFound, "pin not in favorites")
		default:
			slog.Error("Failed to remove favorite", "device_id", deviceID, "pin_id", pinID, "error", err)
			writeError(w, http.StatusInternalServerError, model.CodeStorageError, "failed to remove favorite")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"favoritePinIds": profile.FavoritePinIDs,
	})
}
