// SPDX-License-Identifier: MIT

// Package task runs the optional external per-item hook script
// (Channel.Task) at the end of a Player loop iteration, mirroring
// spec §4.6 step 7.
package task

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"time"

	"github.com/ffplayout/ffplayout-sub002/internal/config"
	"github.com/ffplayout/ffplayout-sub002/internal/media"
	"github.com/ffplayout/ffplayout-sub002/internal/util"
)

// logWriter adapts a *slog.Logger to the io.Writer util.SafeGo expects
// for panic reports.
type logWriter struct{ logger *slog.Logger }

func (w logWriter) Write(p []byte) (int, error) {
	w.logger.Error(string(p))
	return len(p), nil
}

// DefaultTimeout bounds how long a task script may run before it is killed.
const DefaultTimeout = 20 * time.Second

// DataMap is the JSON payload passed to the task script as its sole
// argument, describing the item that just finished playing.
type DataMap struct {
	Channel  string  `json:"channel"`
	Source   string  `json:"source"`
	Category string  `json:"category"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// Run starts cfg.Path with the JSON-encoded data map as its single
// argument in a background goroutine and returns without waiting. That
// goroutine waits for the script (killing it after DefaultTimeout) and
// logs its failures; they are never returned, so a broken hook does not
// stall playout.
func Run(ctx context.Context, cfg config.Task, channel string, item media.Item, logger *slog.Logger) {
	if !cfg.Enable || cfg.Path == "" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	data := DataMap{
		Channel:  channel,
		Source:   item.Source,
		Category: string(item.Category),
		Title:    item.Title,
		Duration: item.Duration,
	}
	payload, err := json.Marshal(data)
	if err != nil {
		logger.Error("task: encode data map", "error", err)
		return
	}

	util.SafeGo("task-runner", logWriter{logger}, func() {
		runCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()

		// #nosec G204 - cfg.Path is operator-configured, not derived from item content
		cmd := exec.CommandContext(runCtx, cfg.Path, string(payload))
		if err := cmd.Run(); err != nil {
			logger.Error("task: script failed", "path", cfg.Path, "error", err)
		}
	}, nil)
}
