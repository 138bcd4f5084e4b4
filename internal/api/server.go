package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Shaandjain/local-audio-pins/pkg/logging"
	"github.com/Shaandjain/local-audio-pins/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, tours *TourHandler, prefsH *PreferenceHandler, collections *CollectionHandler, stats *StatsHandler, audioDir string, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 3. Tour Generation Endpoints
	mux.HandleFunc("POST /api/tours/generate", tours.HandleGenerate)
	mux.HandleFunc("GET /api/tours/jobs/{jobId}", tours.HandleJob)
	mux.HandleFunc("GET /api/tours", tours.HandleList)
	mux.HandleFunc("GET /api/tours/{tourId}", tours.HandleGet)

	// 4. Preference Endpoints
	mux.HandleFunc("GET /api/preferences/{deviceId}", prefsH.HandleGet)
	mux.HandleFunc("GET /api/preferences/{deviceId}/favorites", prefsH.HandleListFavorites)
	mux.HandleFunc("POST /api/preferences/{deviceId}/favorites", prefsH.HandleAddFavorite)
	mux.HandleFunc("DELETE /api/preferences/{deviceId}/favorites/{pinId}", prefsH.HandleRemoveFavorite)

	// 5. Collection Endpoints
	mux.HandleFunc("GET /api/collections/{id}/pins", collections.HandlePins)
	mux.HandleFunc("GET /api/areas/analyze", collections.HandleAnalyzeArea)

	// 6. Stats Endpoint
	mux.Handle("GET /api/stats", stats)

	// 7. Narration Assets
	mux.Handle("GET /api/audio/", http.StripPrefix("/api/audio/", http.FileServer(http.Dir(audioDir))))

	// 8. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// loggingMiddleware writes one line per request to the request log.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		if logging.RequestLogger != nil {
			logging.RequestLogger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).Round(time.Microsecond),
				"remote", r.RemoteAddr,
			)
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
