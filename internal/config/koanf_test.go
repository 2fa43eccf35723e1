package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const koanfTestYAML = `
default:
  processing:
    width: 1280
    height: 720
    fps: 25
  playlist:
    day_start: "00:00:00"
  storage:
    root: /var/lib/ffplayout/media
  output:
    mode: stream
  timeouts:
    probe: 10s
channels:
  studio1:
    processing:
      width: 1920
      height: 1080
`

func TestKoanfConfig_LoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Default.Processing.Width != 1280 {
		t.Errorf("Expected default width 1280, got %d", cfg.Default.Processing.Width)
	}
	if cfg.Default.Output.Mode != OutputStream {
		t.Errorf("Expected default output mode stream, got %s", cfg.Default.Output.Mode)
	}

	studio1, ok := cfg.Channels["studio1"]
	if !ok {
		t.Fatal("Expected studio1 channel config")
	}
	if studio1.Processing.Width != 1920 {
		t.Errorf("Expected studio1 width 1920, got %d", studio1.Processing.Width)
	}
}

func TestKoanfConfig_LoadWithEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("FFPLAYOUT_DEFAULT_PROCESSING_WIDTH", "640")
	t.Setenv("FFPLAYOUT_DEFAULT_OUTPUT_MODE", "null")

	kc, err := NewKoanfConfig(
		WithYAMLFile(configPath),
		WithEnvPrefix("FFPLAYOUT"),
	)
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Default.Processing.Width != 640 {
		t.Errorf("Expected width 640 (from env), got %d", cfg.Default.Processing.Width)
	}
	if cfg.Default.Output.Mode != OutputNull {
		t.Errorf("Expected output mode null (from env), got %s", cfg.Default.Output.Mode)
	}

	// Non-overridden value still comes from YAML.
	if cfg.Default.Processing.Height != 720 {
		t.Errorf("Expected height 720 (from YAML), got %d", cfg.Default.Processing.Height)
	}
}

func TestKoanfConfig_LoadChannelEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("FFPLAYOUT_CHANNELS_STUDIO1_PROCESSING_WIDTH", "3840")

	kc, err := NewKoanfConfig(
		WithYAMLFile(configPath),
		WithEnvPrefix("FFPLAYOUT"),
	)
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	studio1, ok := cfg.Channels["studio1"]
	if !ok {
		t.Fatal("Expected studio1 channel config")
	}
	if studio1.Processing.Width != 3840 {
		t.Errorf("Expected studio1 width 3840 (from env), got %d", studio1.Processing.Width)
	}
	if studio1.Processing.Height != 1080 {
		t.Errorf("Expected studio1 height 1080 (from YAML), got %d", studio1.Processing.Height)
	}
}

func TestKoanfConfig_Reload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Default.Processing.Width != 1280 {
		t.Fatalf("Expected initial width 1280, got %d", cfg.Default.Processing.Width)
	}

	updated := `
default:
  processing:
    width: 2560
    height: 720
    fps: 25
  playlist:
    day_start: "00:00:00"
  storage:
    root: /var/lib/ffplayout/media
  output:
    mode: stream
  timeouts:
    probe: 10s
`
	if err := os.WriteFile(configPath, []byte(updated), 0644); err != nil {
		t.Fatalf("Failed to update test config: %v", err)
	}

	if err := kc.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg, err = kc.Load()
	if err != nil {
		t.Fatalf("Load after reload failed: %v", err)
	}
	if cfg.Default.Processing.Width != 2560 {
		t.Errorf("Expected reloaded width 2560, got %d", cfg.Default.Processing.Width)
	}
}

func TestKoanfConfig_Watch(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	watchCalled := make(chan string, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		_ = kc.Watch(ctx, func(event string, err error) {
			if err != nil {
				watchCalled <- "error: " + err.Error()
				return
			}
			watchCalled <- event
		})
	}()

	time.Sleep(100 * time.Millisecond)

	updated := `
default:
  processing:
    width: 1920
    height: 720
    fps: 25
  playlist:
    day_start: "00:00:00"
  storage:
    root: /var/lib/ffplayout/media
  output:
    mode: stream
  timeouts:
    probe: 10s
`
	if err := os.WriteFile(configPath, []byte(updated), 0644); err != nil {
		t.Fatalf("Failed to update test config: %v", err)
	}

	select {
	case event := <-watchCalled:
		if event != "config reloaded" {
			t.Errorf("Expected event 'config reloaded', got %s", event)
		}
	case <-time.After(2 * time.Second):
		t.Error("Watch callback not called within timeout")
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load after watch reload failed: %v", err)
	}
	if cfg.Default.Processing.Width != 1920 {
		t.Errorf("Expected width 1920 after watch-triggered reload, got %d", cfg.Default.Processing.Width)
	}
}

func TestKoanfConfig_WatchRequiresFilePath(t *testing.T) {
	kc, err := NewKoanfConfig()
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := kc.Watch(ctx, func(string, error) {}); err == nil {
		t.Fatal("Watch() error = nil, want error when no YAML file configured")
	}
}

func TestKoanfConfig_Accessors(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	if got := kc.GetInt("default.processing.width"); got != 1280 {
		t.Errorf("GetInt(default.processing.width) = %d, want 1280", got)
	}
	if got := kc.GetString("default.output.mode"); got != "stream" {
		t.Errorf("GetString(default.output.mode) = %q, want stream", got)
	}
	if got := kc.GetDuration("default.timeouts.probe"); got != 10*time.Second {
		t.Errorf("GetDuration(default.timeouts.probe) = %v, want 10s", got)
	}
	if !kc.Exists("channels.studio1") {
		t.Error("Exists(channels.studio1) = false, want true")
	}
	if kc.All() == nil {
		t.Error("All() = nil, want populated map")
	}
}
