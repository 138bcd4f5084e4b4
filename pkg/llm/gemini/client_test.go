package gemini

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Shaandjain/local-audio-pins/pkg/config"
)

func TestHealthCheck_NoKey(t *testing.T) {
	cfg := config.LLMConfig{
		Model: "gemini-2.5-flash-lite",
	}

	c, err := NewClient(cfg, "", nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck should fail without an API key")
	}

	// Generation calls fail fast without a configured client.
	if _, err := c.GenerateText(context.Background(), "pin_content", "hi"); err == nil {
		t.Error("GenerateText should fail without a configured client")
	}
	var target struct{}
	if err := c.GenerateJSON(context.Background(), "pin_content", "hi", &target); err == nil {
		t.Error("GenerateJSON should fail without a configured client")
	}
}

func TestResolveModel(t *testing.T) {
	c := &Client{
		modelName: "gemini-2.5-flash-lite",
		profiles: map[string]string{
			"pin_content": "gemini-2.5-flash",
			"empty":       "",
		},
	}

	if got := c.resolveModel("pin_content"); got != "gemini-2.5-flash" {
		t.Errorf("resolveModel(pin_content) = %q", got)
	}
	if got := c.resolveModel("empty"); got != "gemini-2.5-flash-lite" {
		t.Errorf("resolveModel(empty) = %q, want default", got)
	}
	if got := c.resolveModel("unknown"); got != "gemini-2.5-flash-lite" {
		t.Errorf("resolveModel(unknown) = %q, want default", got)
	}
}

func TestHasProfile(t *testing.T) {
	c := &Client{profiles: map[string]string{"pin_content": "gemini-2.5-flash", "empty": ""}}

	if !c.HasProfile("pin_content") {
		t.Error("expected pin_content profile")
	}
	if c.HasProfile("empty") {
		t.Error("empty profile should not count")
	}
	if c.HasProfile("missing") {
		t.Error("missing profile should not count")
	}
}

func TestLogPrompt(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "llm.log")
	c := &Client{logPath: logPath}

	c.logPrompt("pin_content", "the prompt", "the response")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "PROMPT: pin_content") || !strings.Contains(string(data), "the response") {
		t.Errorf("unexpected log contents: %s", data)
	}
}
