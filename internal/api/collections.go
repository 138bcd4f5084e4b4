package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Shaandjain/local-audio-pins/pkg/geo"
	"github.com/Shaandjain/local-audio-pins/pkg/model"
	"github.com/Shaandjain/local-audio-pins/pkg/store"
)

// CollectionHandler exposes the durable pin sets.
type CollectionHandler struct {
	store store.CollectionStore
}

// NewCollectionHandler creates a collection handler.
func NewCollectionHandler(st store.CollectionStore) *CollectionHandler {
	return &CollectionHandler{store: st}
}

// HandlePins handles GET /api/collections/{id}/pins. With lat, lng, and
// radius query parameters the result is filtered to pins within the radius.
func (h *CollectionHandler) HandlePins(w http.ResponseWriter, r *http.Request) {
	collectionID := r.PathValue("id")
	q := r.URL.Query()

	var pins []model.Pin
	var err error

	if q.Has("lat") || q.Has("lng") || q.Has("radius") {
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
		radius, radErr := strconv.ParseFloat(q.Get("radius"), 64)
		if latErr != nil || lngErr != nil || radErr != nil || radius <= 0 || !geo.ValidLatLng(lat, lng) {
			writeError(w, http.StatusBadRequest, model.CodeInvalidRequest, "lat, lng, and radius must all be valid for a radius query")
			return
		}
		pins, err = h.store.GetPinsInRadius(r.Context(), collectionID, geo.Point{Lat: lat, Lng: lng}, radius)
	} else {
		pins, err = h.store.GetPins(r.Context(), collectionID)
	}

	if err != nil {
		slog.Error("Failed to load collection pins", "collection_id", collectionID, "error", err)
		writeError(w, http.StatusInternalServerError, model.CodeStorageError, "failed to load pins")
		return
	}
	if pins == nil {
		pins = []model.Pin{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pins":  pins,
		"count": len(pins),
	})
}
