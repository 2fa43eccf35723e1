package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
default:
  processing:
    width: 1280
    height: 720
    fps: 25
    aspect: "16:9"
    audio_tracks: 1
    loudnorm:
      enable: true
      i: -23
      tp: -1
      lra: 7
  playlist:
    day_start: "06:00:00"
    length: "24:00:00"
    loop: true
    stop_threshold: 30
    tolerance: 2
    playlist_root: /var/lib/ffplayout/playlists
  storage:
    root: /var/lib/ffplayout/media
    filler: /var/lib/ffplayout/media/filler.mp4
    extensions: [".mp4", ".mkv"]
  output:
    mode: stream
    output_cmd: ["-c:v", "libx264", "-f", "flv", "rtmp://localhost/live/stream"]
  timeouts:
    probe: 10s
    ffmpeg_startup: 10s
    graceful_shutdown: 5s
channels:
  studio1:
    processing:
      width: 1920
      height: 1080
      fps: 30
    output:
      mode: hls
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ffplayout.yaml")
	if err := os.WriteFile(path, []byte(contents), 0640); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Default.Processing.Width != 1280 {
		t.Errorf("Default.Processing.Width = %d, want 1280", cfg.Default.Processing.Width)
	}
	if cfg.Default.Playlist.DayStart != "06:00:00" {
		t.Errorf("Default.Playlist.DayStart = %q, want 06:00:00", cfg.Default.Playlist.DayStart)
	}
	if cfg.Default.Timeouts.Probe != 10*time.Second {
		t.Errorf("Default.Timeouts.Probe = %v, want 10s", cfg.Default.Timeouts.Probe)
	}
	if cfg.Default.Output.Mode != OutputStream {
		t.Errorf("Default.Output.Mode = %q, want stream", cfg.Default.Output.Mode)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "not: [valid yaml")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() error = nil, want parse error")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadConfig() error = nil, want file-not-found error")
	}
}

func TestConfigChannelMerge(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	studio1 := cfg.Channel("studio1")
	if studio1.Processing.Width != 1920 {
		t.Errorf("studio1.Processing.Width = %d, want 1920 (override)", studio1.Processing.Width)
	}
	if studio1.Output.Mode != OutputHLS {
		t.Errorf("studio1.Output.Mode = %q, want hls (override)", studio1.Output.Mode)
	}
	if studio1.Playlist.DayStart != "06:00:00" {
		t.Errorf("studio1.Playlist.DayStart = %q, want 06:00:00 (inherited)", studio1.Playlist.DayStart)
	}
	if studio1.Storage.Root != "/var/lib/ffplayout/media" {
		t.Errorf("studio1.Storage.Root = %q, want inherited default", studio1.Storage.Root)
	}

	unknown := cfg.Channel("does-not-exist")
	if unknown.Processing.Width != cfg.Default.Processing.Width {
		t.Error("Channel() for unknown id should return the Default snapshot unchanged")
	}
}

func TestChannelCloneIsIndependent(t *testing.T) {
	orig := DefaultConfig().Default
	clone := orig.Clone()
	clone.Output.OutputCmd[0] = "mutated"

	if orig.Output.OutputCmd[0] == "mutated" {
		t.Fatal("Clone() shares backing array with the original slice")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on DefaultConfig() error = %v", err)
	}

	cfg.Default.Processing.Width = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want error for zero width")
	}
}

func TestChannelValidatePartialAllowsZeroValues(t *testing.T) {
	ch := Channel{}
	if err := ch.ValidatePartial(); err != nil {
		t.Fatalf("ValidatePartial() on empty override error = %v, want nil", err)
	}
}

func TestChannelValidatePartialRejectsBadOutputMode(t *testing.T) {
	ch := Channel{Output: Output{Mode: "bogus"}}
	if err := ch.ValidatePartial(); err == nil {
		t.Fatal("ValidatePartial() error = nil, want error for invalid output mode")
	}
}

func TestConfigSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels["studio1"] = Channel{Output: Output{Mode: OutputNull}}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0640 {
		t.Errorf("saved config mode = %v, want 0640", info.Mode().Perm())
	}

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() after Save() error = %v", err)
	}
	if reloaded.Channels["studio1"].Output.Mode != OutputNull {
		t.Errorf("reloaded studio1 output mode = %q, want null", reloaded.Channels["studio1"].Output.Mode)
	}
}

func TestConfigSaveMissingDirectory(t *testing.T) {
	cfg := DefaultConfig()
	badPath := filepath.Join(t.TempDir(), "missing-dir", "config.yaml")
	if err := cfg.Save(badPath); err == nil {
		t.Fatal("Save() error = nil, want error when parent directory is missing")
	}
}

func TestFiltersOverride(t *testing.T) {
	cases := []struct {
		name        string
		synthesized string
		configured  string
		want        string
	}{
		{"empty override keeps synthesized", "scale=1280:720", "", "scale=1280:720"},
		{"plain override replaces", "scale=1280:720", "scale=640:360", "scale=640:360"},
		{"plus-prefixed appends", "scale=1280:720", "+eq=contrast=1.1", "scale=1280:720,eq=contrast=1.1"},
		{"plus-prefixed with empty synthesized", "", "+eq=contrast=1.1", "eq=contrast=1.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Override(tc.synthesized, tc.configured)
			if got != tc.want {
				t.Errorf("Override(%q, %q) = %q, want %q", tc.synthesized, tc.configured, got, tc.want)
			}
		})
	}
}
