// SPDX-License-Identifier: MIT

// Package logging builds the fan-out slog.Handler used across ffplayout:
// every record is written to a shared console handler and, when the
// record carries a channel group, to that channel's rotating log file
// (spec §9's structured-logging requirement).
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ffplayout/ffplayout-sub002/internal/player"
)

// Sink is a minimal per-record write contract for code outside log/slog
// that does not want to build a slog.Record. No type in this module
// implements it; Handler does not.
type Sink interface {
	Write(level slog.Level, channel, message string, attrs ...slog.Attr)
}

// registry caches one RotatingWriter per channel id, shared across
// every Handler value produced by WithGroup/WithAttrs so file handles
// aren't reopened per log call.
type registry struct {
	mu      sync.Mutex
	logDir  string
	writers map[string]io.Writer
}

func (r *registry) writerFor(channel string) (io.Writer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.writers[channel]; ok {
		return w, nil
	}
	w, err := player.LogWriter(r.logDir, channel)
	if err != nil {
		return nil, fmt.Errorf("logging: open channel log for %s: %w", channel, err)
	}
	r.writers[channel] = w
	return w, nil
}

// Handler is a slog.Handler that always writes to a shared console
// handler and additionally routes to a per-channel rotating file once
// WithGroup(channelID) has been called, following a
// "channel_id carried as a slog group" convention.
type Handler struct {
	console slog.Handler
	reg     *registry
	level   slog.Leveler
	channel string
}

// New builds the root Handler. logDir is where per-channel rotated log
// files are created; console receives every record regardless of
// channel. Pass io.Discard as console in tests that only care about
// per-channel file output.
func New(console io.Writer, logDir string, level slog.Leveler) *Handler {
	return &Handler{
		console: slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
		reg:     &registry{logDir: logDir, writers: make(map[string]io.Writer)},
		level:   level,
	}
}

// NewLogger is a convenience wrapper returning slog.New(New(...)).
func NewLogger(console io.Writer, logDir string, level slog.Leveler) *slog.Logger {
	return slog.New(New(console, logDir, level))
}

// ForChannel returns a logger scoped to channel, so its records are
// also written to that channel's rotating log file.
func ForChannel(logger *slog.Logger, channel string) *slog.Logger {
	return logger.WithGroup(channel)
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.console.Handle(ctx, r); err != nil {
		return err
	}
	if h.channel == "" {
		return nil
	}
	w, err := h.reg.writerFor(h.channel)
	if err != nil {
		return err
	}
	fh := slog.NewTextHandler(w, &slog.HandlerOptions{Level: h.level})
	return fh.Handle(ctx, r.Clone())
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.console = h.console.WithAttrs(attrs)
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.console = h.console.WithGroup(name)
	if clone.channel == "" {
		clone.channel = name
	}
	return &clone
}
