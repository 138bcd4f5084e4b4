package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Shaandjain/local-audio-pins/internal/api"
	"github.com/Shaandjain/local-audio-pins/pkg/admission"
	"github.com/Shaandjain/local-audio-pins/pkg/category"
	"github.com/Shaandjain/local-audio-pins/pkg/config"
	"github.com/Shaandjain/local-audio-pins/pkg/db"
	"github.com/Shaandjain/local-audio-pins/pkg/guide"
	"github.com/Shaandjain/local-audio-pins/pkg/llm/gemini"
	"github.com/Shaandjain/local-audio-pins/pkg/logging"
	"github.com/Shaandjain/local-audio-pins/pkg/prefs"
	"github.com/Shaandjain/local-audio-pins/pkg/probe"
	"github.com/Shaandjain/local-audio-pins/pkg/request"
	"github.com/Shaandjain/local-audio-pins/pkg/store"
	"github.com/Shaandjain/local-audio-pins/pkg/tourgen"
	"github.com/Shaandjain/local-audio-pins/pkg/tracker"
	"github.com/Shaandjain/local-audio-pins/pkg/tts"
	"github.com/Shaandjain/local-audio-pins/pkg/tts/edgetts"
	"github.com/Shaandjain/local-audio-pins/pkg/tts/elevenlabs"
	"github.com/Shaandjain/local-audio-pins/pkg/version"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

const defaultConfigPath = "configs/pins.yaml"

func main() {
	flag.Parse()
	_ = godotenv.Load()

	if *initConfig {
		if err := config.GenerateDefault(defaultConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", defaultConfigPath)
		return
	}

	if err := run(context.Background(), defaultConfigPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	tts.SetLogPath(cfg.Log.TTS.Path)

	slog.Info("Audio Pins Started", "version", version.Version)

	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()
	st := store.NewSQLiteStore(dbConn)

	tr := tracker.New()
	reqClient := request.New(&cfg.Request, tr)

	llmProv, err := gemini.NewClient(cfg.LLM, cfg.Log.LLM.Path, tr)
	if err != nil {
		return fmt.Errorf("failed to initialize content provider: %w", err)
	}
	generator := guide.NewGenerator(llmProv)

	synth, voice := initSynthesizer(cfg, reqClient, tr)

	prefSvc := prefs.NewService(st, st)
	selector := category.NewSelector(nil)

	genSvc := tourgen.NewService(cfg.Generation, cfg.Audio.Dir, voice, st, prefSvc, selector, generator, synth)
	genSvc.Start()
	defer genSvc.Stop()

	guard := admission.NewIdempotencyGuard(time.Duration(cfg.Generation.IdempotencyTTL))
	limiter := admission.NewRateLimiter(cfg.Generation.RateLimit, time.Duration(cfg.Generation.RateWindow))

	// Startup Probes
	probes := []probe.Probe{
		probe.ContentProvider(llmProv),
		probe.Database(dbConn.DB),
		probe.AudioDir(cfg.Audio.Dir),
	}
	if cfg.TTS.Engine == "eleven-labs" {
		probes = append(probes, probe.SynthesisKey(cfg.TTS.ElevenLabs.Key))
	}
	results := probe.Run(ctx, probes)
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	return runServer(ctx, cfg, st, genSvc, prefSvc, guard, limiter, tr)
}

func initSynthesizer(cfg *config.Config, rc *request.Client, tr *tracker.Tracker) (tts.Provider, string) {
	if cfg.TTS.Engine == "edge-tts" {
		return edgetts.NewProvider(tr), cfg.TTS.EdgeTTS.VoiceID
	}
	return elevenlabs.NewProvider(cfg.TTS.ElevenLabs, rc, tr), cfg.TTS.ElevenLabs.VoiceID
}

func runServer(ctx context.Context, cfg *config.Config, st store.Store, genSvc *tourgen.Service, prefSvc *prefs.Service, guard *admission.IdempotencyGuard, limiter *admission.RateLimiter, tr *tracker.Tracker) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewTourHandler(genSvc, st, guard, limiter, cfg.Generation.PinEstimateSeconds),
		api.NewPreferenceHandler(prefSvc),
		api.NewCollectionHandler(st),
		api.NewStatsHandler(tr),
		cfg.Audio.Dir,
		shutdownFunc,
	)

	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
