package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	DB         DBConfig         `yaml:"db"`
	Log        LogConfig        `yaml:"log"`
	Request    RequestConfig    `yaml:"request"`
	LLM        LLMConfig        `yaml:"llm"`
	TTS        TTSConfig        `yaml:"tts"`
	Audio      AudioConfig      `yaml:"audio"`
	Generation GenerationConfig `yaml:"generation"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	LLM      LogSettings `yaml:"llm"`
	TTS      LogSettings `yaml:"tts"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// RequestConfig holds outbound HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// LLMConfig holds settings for the content-generation LLM provider.
type LLMConfig struct {
	Provider string            `yaml:"provider"` // "gemini", "mock"
	Model    string            `yaml:"model"`
	Key      string            `yaml:"key"`
	Profiles map[string]string `yaml:"profiles"` // Map of intent -> model
}

// ElevenLabsConfig holds settings for the ElevenLabs synthesizer.
type ElevenLabsConfig struct {
	Key     string `yaml:"key"`
	VoiceID string `yaml:"voice"`
	Model   string `yaml:"model"`
}

// EdgeTTSConfig holds settings for Edge TTS.
type EdgeTTSConfig struct {
	VoiceID string `yaml:"voice"`
}

// TTSConfig holds narration synthesis settings.
type TTSConfig struct {
	Engine     string           `yaml:"engine"`
	ElevenLabs ElevenLabsConfig `yaml:"eleven_labs"`
	EdgeTTS    EdgeTTSConfig    `yaml:"edge_tts"`
}

// AudioConfig holds settings for generated narration assets.
type AudioConfig struct {
	Dir string `yaml:"dir"`
}

// GenerationConfig holds settings for the tour generation pipeline.
type GenerationConfig struct {
	Workers          int      `yaml:"workers"`
	QueueSize        int      `yaml:"queue_size"`
	RateLimit        int      `yaml:"rate_limit"` // requests per window per device
	RateWindow       Duration `yaml:"rate_window"`
	IdempotencyTTL   Duration `yaml:"idempotency_ttl"`
	MinRadius        Distance `yaml:"min_radius"`
	MaxRadius        Distance `yaml:"max_radius"`
	DefaultRadius    Distance `yaml:"default_radius"`
	MinPins          int      `yaml:"min_pins"`
	MaxPins          int      `yaml:"max_pins"`
	DefaultPins      int      `yaml:"default_pins"`
	ContentTimeout   Duration `yaml:"content_timeout"`
	SynthesisTimeout Duration `yaml:"synthesis_timeout"`
	// Per-pin walking/listening estimate used for tour duration.
	// Kept as a fixed constant rather than derived from narration length.
	PinDurationSeconds int `yaml:"pin_duration_seconds"`
	// Per-pin wall-clock estimate reported to polling clients.
	PinEstimateSeconds int    `yaml:"pin_estimate_seconds"`
	CollectionID       string `yaml:"collection_id"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:2510",
		},
		DB: DBConfig{
			Path: "./data/pins.db",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			LLM: LogSettings{
				Path:  "./logs/llm.log",
				Level: "INFO",
			},
			TTS: LogSettings{
				Path:  "./logs/tts.log",
				Level: "INFO",
			},
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(120 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash-lite",
			Key:      "",
			Profiles: map[string]string{
				"pin_content": "gemini-2.5-flash-lite",
			},
		},
		TTS: TTSConfig{
			Engine: "eleven-labs",
			ElevenLabs: ElevenLabsConfig{
				VoiceID: "EXAVITQu4vr4xnSDxMaL", // "Sarah" - warm, friendly
				Model:   "eleven_multilingual_v2",
			},
			EdgeTTS: EdgeTTSConfig{
				VoiceID: "en-US-AvaMultilingualNeural",
			},
		},
		Audio: AudioConfig{
			Dir: "./data/audio",
		},
		Generation: GenerationConfig{
			Workers:            2,
			QueueSize:          32,
			RateLimit:          5,
			RateWindow:         Duration(1 * time.Hour),
			IdempotencyTTL:     Duration(24 * time.Hour),
			MinRadius:          Distance(100),
			MaxRadius:          Distance(2000),
			DefaultRadius:      Distance(500),
			MinPins:            1,
			MaxPins:            10,
			DefaultPins:        5,
			ContentTimeout:     Duration(30 * time.Second),
			SynthesisTimeout:   Duration(60 * time.Second),
			PinDurationSeconds: 17,
			PinEstimateSeconds: 10,
			CollectionID:       "default",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		applyEnvFallbacks(cfg)
		return cfg, nil
	}

	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnvFallbacks(cfg)
	return cfg, nil
}

// applyEnvFallbacks fills in API keys from the environment when the config
// file leaves them empty. Keys are never written back to disk.
func applyEnvFallbacks(cfg *Config) {
	if cfg.LLM.Key == "" {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			cfg.LLM.Key = key
		}
	}
	if cfg.TTS.ElevenLabs.Key == "" {
		if key := os.Getenv("ELEVEN_LABS_API_KEY"); key != "" {
			cfg.TTS.ElevenLabs.Key = key
		}
	}
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# local-audio-pins Configuration
# -------------------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers)

`)
	data = append(header, data...)

	// Inject comments for enum fields.
	reEngine := regexp.MustCompile(`(?m)^(\s+)engine:`)
	data = reEngine.ReplaceAll(data, []byte("${1}# Options: eleven-labs, edge-tts\n${1}engine:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
