// SPDX-License-Identifier: MIT

package player

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// Encoder runs the single long-lived ffmpeg invocation that reads the
// continuous filtered stream on stdin and writes it to the configured
// output (stream/HLS/desktop/null), per spec §4.6. Unlike the Decoder, one
// Encoder instance spans the whole channel run: only its stdin source
// changes, via the Player's selector, as items and ingest pre-empt each
// other.
type Encoder struct {
	*process
	binary string
	stdin  io.WriteCloser
}

// NewEncoder constructs an Encoder bound to the given ffmpeg binary.
func NewEncoder(cfg ProcessConfig) (*Encoder, error) {
	cfg.Name = "encoder"
	p, err := newProcess(cfg)
	if err != nil {
		return nil, err
	}
	return &Encoder{process: p, binary: cfg.Binary}, nil
}

// Start spawns the encoder with args (the fixed target-format encode args
// plus Channel.Output.OutputCmd / Channel.Advanced.Encoder, spec §3), and
// returns a writer the Player's selector goroutine writes filtered frames
// into.
func (e *Encoder) Start(ctx context.Context, args []string) (io.WriteCloser, error) {
	// #nosec G204 - args are assembled from validated channel config, not raw user input
	cmd := exec.CommandContext(ctx, e.binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder: stdin pipe: %w", err)
	}
	if err := e.process.start(ctx, cmd); err != nil {
		return nil, err
	}
	e.stdin = stdin
	e.log("encoder started")
	return stdin, nil
}

// Stop gracefully terminates the running encoder.
func (e *Encoder) Stop(timeout time.Duration) {
	if e.stdin != nil {
		_ = e.stdin.Close()
	}
	e.process.stop(timeout)
}
