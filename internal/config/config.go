// SPDX-License-Identifier: MIT

// Package config implements ConfigSnapshot: the immutable, per-channel
// configuration every other component consumes. A Config is built once per
// run by LoadConfig (or hot-reloaded via KoanfConfig, see koanf.go) and
// handed out to components as Channel values, which are cloned rather than
// shared by pointer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFilePath is the default location for the configuration file.
const ConfigFilePath = "/etc/ffplayout/ffplayout.yaml"

// Config is the top-level, multi-channel configuration file.
type Config struct {
	// Channels holds per-channel configuration keyed by channel id.
	Channels map[string]Channel `yaml:"channels" koanf:"channels"`

	// Default is used to fill in fields a channel entry leaves unset.
	Default Channel `yaml:"default" koanf:"default"`
}

// Channel is the ConfigSnapshot handed to a running channel: Processing,
// Playlist, Storage, Output, Ingest, Text, Advanced and Task settings, per
// spec §3 "ChannelConfig (snapshot)".
type Channel struct {
	Processing Processing `yaml:"processing" koanf:"processing"`
	Playlist   Playlist   `yaml:"playlist" koanf:"playlist"`
	Storage    Storage    `yaml:"storage" koanf:"storage"`
	Output     Output     `yaml:"output" koanf:"output"`
	Ingest     Ingest     `yaml:"ingest" koanf:"ingest"`
	Text       Text       `yaml:"text" koanf:"text"`
	Advanced   Advanced   `yaml:"advanced" koanf:"advanced"`
	Task       Task       `yaml:"task" koanf:"task"`

	// Timeouts, per spec §5: probe 10s, ffmpeg startup 10s, graceful
	// shutdown 5s, all configurable.
	Timeouts Timeouts `yaml:"timeouts" koanf:"timeouts"`
}

// Processing controls the target encode and overlay parameters.
type Processing struct {
	Width       int      `yaml:"width" koanf:"width"`
	Height      int      `yaml:"height" koanf:"height"`
	FPS         float64  `yaml:"fps" koanf:"fps"`
	Aspect      string   `yaml:"aspect" koanf:"aspect"` // e.g. "16:9"
	AudioTracks int      `yaml:"audio_tracks" koanf:"audio_tracks"`
	Loudnorm    Loudnorm `yaml:"loudnorm" koanf:"loudnorm"`
	LogoPath    string   `yaml:"logo_path" koanf:"logo_path"`
	LogoFilter  string   `yaml:"logo_filter" koanf:"logo_filter"` // e.g. overlay position expression
	AudioOnly   bool     `yaml:"audio_only" koanf:"audio_only"`
}

// Loudnorm holds ffmpeg loudnorm filter parameters (EBU R128-style).
type Loudnorm struct {
	Enable bool    `yaml:"enable" koanf:"enable"`
	I      float64 `yaml:"i" koanf:"i"`   // integrated loudness target, LUFS
	TP     float64 `yaml:"tp" koanf:"tp"` // true peak, dBTP
	LRA    float64 `yaml:"lra" koanf:"lra"`
}

// Playlist controls day boundaries and loop behavior, per spec §4.3.
type Playlist struct {
	DayStart string `yaml:"day_start" koanf:"day_start"` // HH:MM:SS
	Length   string `yaml:"length" koanf:"length"`       // HH:MM:SS or "none"
	Loop     bool   `yaml:"loop" koanf:"loop"`
	Infinit  bool   `yaml:"infinit" koanf:"infinit"`

	// StopThreshold is the drift, in seconds, beyond which Playing refuses
	// to schedule and yields filler instead (spec §4.3 "Playing").
	StopThreshold float64 `yaml:"stop_threshold" koanf:"stop_threshold"`

	// Tolerance is the drift, in seconds, below which no correction is
	// applied at all (spec §4.3 "Playing").
	Tolerance float64 `yaml:"tolerance" koanf:"tolerance"`

	// DeltaRoundingFPS resolves the Open Question in spec §9: 0 means
	// second-precision rounding (the recommended default); a
	// positive value rounds delta correction to the nearest 1/fps frame.
	DeltaRoundingFPS int `yaml:"delta_rounding_fps" koanf:"delta_rounding_fps"`

	// PlaylistRoot is the directory playlists are read from, per spec §3
	// "path derived as <root>/<YYYY>/<MM>/<YYYY-MM-DD>.json".
	PlaylistRoot string `yaml:"playlist_root" koanf:"playlist_root"`
}

// Storage controls folder-mode and filler lookup.
type Storage struct {
	Root       string   `yaml:"root" koanf:"root"`
	Filler     string   `yaml:"filler" koanf:"filler"`
	Extensions []string `yaml:"extensions" koanf:"extensions"`
	Shuffle    bool     `yaml:"shuffle" koanf:"shuffle"`
}

// OutputMode enumerates the supported output topologies (spec §6 "--output").
type OutputMode string

const (
	OutputStream  OutputMode = "stream"
	OutputHLS     OutputMode = "hls"
	OutputDesktop OutputMode = "desktop"
	OutputNull    OutputMode = "null"
)

// Output controls the encoder's destination.
type Output struct {
	Mode      OutputMode `yaml:"mode" koanf:"mode"`
	OutputCmd []string   `yaml:"output_cmd" koanf:"output_cmd"`
}

// Ingest controls the optional live pre-empt listener.
type Ingest struct {
	Enable     bool     `yaml:"enable" koanf:"enable"`
	InputCmd   []string `yaml:"input_cmd" koanf:"input_cmd"`
	BindSocket string   `yaml:"bind_socket" koanf:"bind_socket"` // overlay text socket
	PreEmpt    bool     `yaml:"pre_empt" koanf:"pre_empt"`       // allow mid-item pre-emption

	// MediaServerAPI, when set, is polled to corroborate ingest liveness
	// (see internal/ingest.MediaServerClient); optional.
	MediaServerAPI string `yaml:"media_server_api" koanf:"media_server_api"`
	MediaServerPath string `yaml:"media_server_path" koanf:"media_server_path"`
}

// Text controls drawtext overlay behavior.
type Text struct {
	Enable         bool   `yaml:"enable" koanf:"enable"`
	FromFile       string `yaml:"from_file" koanf:"from_file"`     // static text file; used instead of the socket when both are set
	FromSocket     bool   `yaml:"from_socket" koanf:"from_socket"` // live overlay via internal/rpc socket
	Style          string `yaml:"style" koanf:"style"`             // raw drawtext style fragment (font, size, color...)
}

// Task is the optional external per-item hook script.
type Task struct {
	Path   string `yaml:"path" koanf:"path"`
	Enable bool   `yaml:"enable" koanf:"enable"`
}

// Timeouts holds the configurable durations named in spec §5.
type Timeouts struct {
	Probe            time.Duration `yaml:"probe" koanf:"probe"`
	FFmpegStartup    time.Duration `yaml:"ffmpeg_startup" koanf:"ffmpeg_startup"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown" koanf:"graceful_shutdown"`
}

// Clone returns a deep copy of the channel snapshot, per the
// "ConfigSnapshot is cloned into each component (value semantics)" rule.
func (c Channel) Clone() Channel {
	clone := c
	clone.Output.OutputCmd = append([]string(nil), c.Output.OutputCmd...)
	clone.Ingest.InputCmd = append([]string(nil), c.Ingest.InputCmd...)
	clone.Storage.Extensions = append([]string(nil), c.Storage.Extensions...)
	clone.Advanced = c.Advanced.clone()
	return clone
}

// LoadConfig reads and parses the configuration file, returning the
// validated top-level Config.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 - path is administrator-controlled (CLI flag / env var)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// atomicFile abstracts the file operations Save performs, for testability.
type atomicFile interface {
	Write([]byte) (int, error)
	Sync() error
	Chmod(os.FileMode) error
	Close() error
	Name() string
}

type atomicCreateTemp func(dir, pattern string) (atomicFile, error)

func defaultCreateTemp(dir, pattern string) (atomicFile, error) {
	return os.CreateTemp(dir, pattern) // #nosec G304
}

// Save writes the configuration to path via a temp-file-then-rename, so a
// crash mid-write never leaves a partially-written config on disk.
func (c *Config) Save(path string) error {
	return c.saveWith(path, defaultCreateTemp)
}

func (c *Config) saveWith(path string, createTemp atomicCreateTemp) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	tmpFile, err := createTemp(dir, ".ffplayout.*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp config file: %w", err)
	}
	// #nosec G302 - config may list overlay socket paths; owner+group only
	if err := tmpFile.Chmod(0640); err != nil {
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config file: %w", err)
	}

	success = true
	return nil
}

// Channel returns the named channel's configuration merged over Default,
// per-field, so a channel entry may omit anything it wants inherited.
func (c *Config) Channel(id string) Channel {
	result := c.Default
	ch, ok := c.Channels[id]
	if !ok {
		return result
	}

	if ch.Processing.Width != 0 {
		result.Processing = ch.Processing
	}
	if ch.Playlist.DayStart != "" {
		result.Playlist = ch.Playlist
	}
	if ch.Storage.Root != "" {
		result.Storage = ch.Storage
	}
	if ch.Output.Mode != "" {
		result.Output = ch.Output
	}
	if ch.Ingest.Enable {
		result.Ingest = ch.Ingest
	}
	if ch.Text.Enable {
		result.Text = ch.Text
	}
	if ch.Task.Path != "" {
		result.Task = ch.Task
	}
	result.Advanced = ch.Advanced.mergeOver(result.Advanced)
	if ch.Timeouts.Probe != 0 {
		result.Timeouts = ch.Timeouts
	}
	return result
}

// Validate checks the whole configuration for invalid values.
func (c *Config) Validate() error {
	if err := c.Default.Validate(); err != nil {
		return fmt.Errorf("default channel: %w", err)
	}
	for id, ch := range c.Channels {
		if err := ch.ValidatePartial(); err != nil {
			return fmt.Errorf("channel %q: %w", id, err)
		}
	}
	return nil
}

// Validate checks a fully-specified channel (the Default entry must pass
// this; per-channel overrides only need ValidatePartial).
func (c *Channel) Validate() error {
	if c.Processing.Width <= 0 || c.Processing.Height <= 0 {
		return fmt.Errorf("processing width/height must be positive")
	}
	if c.Processing.FPS <= 0 {
		return fmt.Errorf("processing fps must be positive")
	}
	switch c.Output.Mode {
	case OutputStream, OutputHLS, OutputDesktop, OutputNull:
	default:
		return fmt.Errorf("output mode must be one of stream, hls, desktop, null (got %q)", c.Output.Mode)
	}
	if c.Playlist.DayStart == "" {
		return fmt.Errorf("playlist day_start must be set")
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("storage root must be set")
	}
	return nil
}

// ValidatePartial checks a channel override, allowing zero-value fields
// that are meant to inherit from Default.
func (c *Channel) ValidatePartial() error {
	if c.Processing.Width < 0 || c.Processing.Height < 0 {
		return fmt.Errorf("processing width/height must not be negative")
	}
	if c.Output.Mode != "" {
		switch c.Output.Mode {
		case OutputStream, OutputHLS, OutputDesktop, OutputNull:
		default:
			return fmt.Errorf("output mode must be one of stream, hls, desktop, null (got %q)", c.Output.Mode)
		}
	}
	return nil
}

// DefaultConfig returns a configuration with sensible, broadcast-safe
// defaults, used when no config file exists yet (e.g. `ffplayout validate`
// on a fresh install) and as the base the setup wizard edits.
func DefaultConfig() *Config {
	return &Config{
		Channels: make(map[string]Channel),
		Default: Channel{
			Processing: Processing{
				Width: 1280, Height: 720, FPS: 25, Aspect: "16:9",
				AudioTracks: 1,
				Loudnorm:    Loudnorm{Enable: true, I: -23, TP: -1, LRA: 7},
			},
			Playlist: Playlist{
				DayStart:      "00:00:00",
				Length:        "24:00:00",
				Loop:          true,
				StopThreshold: 30,
				Tolerance:     2,
				PlaylistRoot:  "/var/lib/ffplayout/playlists",
			},
			Storage: Storage{
				Root:       "/var/lib/ffplayout/media",
				Filler:     "/var/lib/ffplayout/media/filler.mp4",
				Extensions: []string{".mp4", ".mkv", ".mov", ".ts", ".mp3", ".wav"},
			},
			Output: Output{
				Mode:      OutputStream,
				OutputCmd: []string{"-c:v", "libx264", "-c:a", "aac", "-f", "flv", "rtmp://localhost/live/stream"},
			},
			Timeouts: Timeouts{
				Probe:            10 * time.Second,
				FFmpegStartup:    10 * time.Second,
				GracefulShutdown: 5 * time.Second,
			},
		},
	}
}
