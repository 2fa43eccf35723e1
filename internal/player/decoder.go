// SPDX-License-Identifier: MIT

package player

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/ffplayout/ffplayout-sub002/internal/media"
)

// Decoder runs one ffmpeg invocation that decodes a single media.Item
// (seeked/trimmed per the schedule) and filters it, writing the filtered
// stream to its stdout for the Player's selector to forward to the
// Encoder's stdin (spec §4.6 step 3-5).
type Decoder struct {
	*process
	binary string
}

// NewDecoder constructs a Decoder bound to the given ffmpeg binary.
func NewDecoder(cfg ProcessConfig) (*Decoder, error) {
	cfg.Name = "decoder"
	p, err := newProcess(cfg)
	if err != nil {
		return nil, err
	}
	return &Decoder{process: p, binary: cfg.Binary}, nil
}

// Start spawns ffmpeg with args, which the caller assembles for item (the
// input seek/duration flags, the filter_complex produced by internal/filter
// and Channel.Advanced.Decoder, spec §3 "Advanced"); item itself is only
// logged. It returns the child's stdout for the caller to read filtered
// frames from.
func (d *Decoder) Start(ctx context.Context, item media.Item, args []string) (io.ReadCloser, error) {
	// #nosec G204 - args are assembled from validated channel config + filter graph, not raw user input
	cmd := exec.CommandContext(ctx, d.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder: stdout pipe: %w", err)
	}
	if err := d.process.start(ctx, cmd); err != nil {
		return nil, err
	}
	d.log("decoder started", "source", item.Source, "seek", item.Seek, "out", item.Out)
	return stdout, nil
}

// Stop gracefully terminates the running decoder.
func (d *Decoder) Stop(timeout time.Duration) { d.process.stop(timeout) }
