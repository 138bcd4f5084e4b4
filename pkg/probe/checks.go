package probe

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Shaandjain/local-audio-pins/pkg/llm"
)

// ContentProvider checks that the content LLM is configured and reachable.
// Critical: without it every generation job would fail.
func ContentProvider(p llm.Provider) Probe {
	return Probe{
		Name:     "Content Provider",
		Critical: true,
		Check: func(ctx context.Context) error {
			return p.HealthCheck(ctx)
		},
	}
}

// Database checks that the SQLite connection answers.
func Database(db *sql.DB) Probe {
	return Probe{
		Name:     "Database",
		Critical: true,
		Check: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
	}
}

// AudioDir checks that the narration asset directory is writable.
func AudioDir(dir string) Probe {
	return Probe{
		Name:     "Audio Directory",
		Critical: true,
		Check: func(ctx context.Context) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("cannot create %s: %w", dir, err)
			}
			marker := filepath.Join(dir, ".write-test")
			if err := os.WriteFile(marker, []byte("ok"), 0o644); err != nil {
				return fmt.Errorf("cannot write to %s: %w", dir, err)
			}
			return os.Remove(marker)
		},
	}
}

// SynthesisKey warns when no ElevenLabs key is set; generation falls back
// to Edge TTS, so this is not critical.
func SynthesisKey(key string) Probe {
	return Probe{
		Name:     "Synthesis Key",
		Critical: false,
		Check: func(ctx context.Context) error {
			if key == "" {
				return fmt.Errorf("no ElevenLabs key configured, narration will use Edge TTS")
			}
			return nil
		},
	}
}
