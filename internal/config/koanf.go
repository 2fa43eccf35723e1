// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// KoanfConfig layers configuration sources for a running daemon:
//
//   - Environment variables (FFPLAYOUT_*), highest precedence
//   - The YAML configuration file
//
// It has no built-in defaults layer: keys set by neither source are left
// at their zero value by Load.
//
// Reload and Watch re-read both sources and swap in the new layers without
// validating them; validation happens in Load, which returns an error for
// an invalid configuration.
type KoanfConfig struct {
	k         *koanf.Koanf
	mu        sync.RWMutex
	filePath  string
	envPrefix string
}

// Option configures a KoanfConfig.
type Option func(*KoanfConfig) error

// WithYAMLFile sets the YAML configuration file path.
func WithYAMLFile(path string) Option {
	return func(kc *KoanfConfig) error {
		kc.filePath = path
		return nil
	}
}

// WithEnvPrefix sets the environment variable prefix (default: "FFPLAYOUT").
func WithEnvPrefix(prefix string) Option {
	return func(kc *KoanfConfig) error {
		kc.envPrefix = prefix
		return nil
	}
}

// NewKoanfConfig creates a new koanf-based configuration loader and
// performs the initial load.
func NewKoanfConfig(opts ...Option) (*KoanfConfig, error) {
	kc := &KoanfConfig{
		k:         koanf.New("."),
		envPrefix: "FFPLAYOUT",
	}

	for _, opt := range opts {
		if err := opt(kc); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := kc.reload(); err != nil {
		return nil, err
	}

	return kc, nil
}

// Load unmarshals the current layered configuration into a Config struct
// and validates it.
func (kc *KoanfConfig) Load() (*Config, error) {
	var cfg Config

	kc.mu.RLock()
	k := kc.k
	kc.mu.RUnlock()

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Reload reloads configuration from all sources, the same reload Watch
// runs on every file change.
func (kc *KoanfConfig) Reload() error {
	return kc.reload()
}

func (kc *KoanfConfig) reload() error {
	newK := koanf.New(".")

	if kc.filePath != "" {
		if err := newK.Load(file.Provider(kc.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load YAML file: %w", err)
		}
	}

	// Load environment variables (override YAML).
	// Strategy: transform FFPLAYOUT_CHANNELS_STUDIO1_PROCESSING_WIDTH to
	// channels.studio1.processing.width by recognising the known
	// top-level key prefixes and lower-casing the rest. The env.Provider
	// Prefix option already strips FFPLAYOUT_ before the TransformFunc
	// runs, so the function receives the remainder only.
	envProvider := env.Provider(".", env.Opt{
		Prefix: kc.envPrefix + "_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.TrimPrefix(k, kc.envPrefix+"_")
			k = strings.ToLower(k)

			// CHANNELS_XXX -> channels.XXX (one more level: channel id)
			// DEFAULT_XXX  -> default.XXX
			topLevelKeys := []string{"channels_", "default_"}

			for _, prefix := range topLevelKeys {
				if strings.HasPrefix(k, prefix) {
					rest := strings.TrimPrefix(k, prefix)
					topLevel := strings.TrimSuffix(prefix, "_")

					if topLevel == "channels" {
						// "studio1_processing_width" -> "studio1" + "processing.width"
						parts := strings.SplitN(rest, "_", 2)
						if len(parts) == 2 {
							return topLevel + "." + parts[0] + "." + strings.ReplaceAll(parts[1], "_", "."), v
						}
						return topLevel + "." + rest, v
					}

					return topLevel + "." + strings.ReplaceAll(rest, "_", "."), v
				}
			}

			return strings.ReplaceAll(k, "_", "."), v
		},
	})

	if err := newK.Load(envProvider, nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	kc.mu.Lock()
	kc.k = newK
	kc.mu.Unlock()

	return nil
}

// Watch starts watching the configuration file for changes, reloading and
// invoking callback on every change.
//
// Known limitation: the underlying koanf file.Provider spawns an fsnotify
// goroutine internally. koanf v2 does not expose a Stop() method on
// file.Provider, so that goroutine cannot be stopped when ctx is
// cancelled; it is collected when the process exits. Each call to Watch
// therefore leaves one such goroutine running for the rest of the process.
func (kc *KoanfConfig) Watch(ctx context.Context, callback func(event string, err error)) error {
	if kc.filePath == "" {
		return fmt.Errorf("cannot watch: no file path specified")
	}

	fp := file.Provider(kc.filePath)

	watchErr := fp.Watch(func(event interface{}, err error) {
		if err != nil {
			callback("watch error", fmt.Errorf("file watch error: %w", err))
			return
		}

		if err := kc.reload(); err != nil {
			callback("reload error", fmt.Errorf("config reload failed: %w", err))
			return
		}

		callback("config reloaded", nil)
	})

	if watchErr != nil {
		return fmt.Errorf("failed to start watching: %w", watchErr)
	}

	<-ctx.Done()

	return nil
}

// GetString retrieves a string value from configuration.
func (kc *KoanfConfig) GetString(key string) string {
	kc.mu.RLock()
	k := kc.k
	kc.mu.RUnlock()
	return k.String(key)
}

// GetInt retrieves an integer value from configuration.
func (kc *KoanfConfig) GetInt(key string) int {
	kc.mu.RLock()
	k := kc.k
	kc.mu.RUnlock()
	return k.Int(key)
}

// GetBool retrieves a boolean value from configuration.
func (kc *KoanfConfig) GetBool(key string) bool {
	kc.mu.RLock()
	k := kc.k
	kc.mu.RUnlock()
	return k.Bool(key)
}

// GetDuration retrieves a duration value from configuration.
func (kc *KoanfConfig) GetDuration(key string) time.Duration {
	kc.mu.RLock()
	k := kc.k
	kc.mu.RUnlock()
	return k.Duration(key)
}

// Exists checks if a configuration key exists.
func (kc *KoanfConfig) Exists(key string) bool {
	kc.mu.RLock()
	k := kc.k
	kc.mu.RUnlock()
	return k.Exists(key)
}

// All returns the entire layered configuration as a map.
func (kc *KoanfConfig) All() map[string]interface{} {
	kc.mu.RLock()
	k := kc.k
	kc.mu.RUnlock()
	return k.All()
}
