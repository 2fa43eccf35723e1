// SPDX-License-Identifier: MIT

package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ffplayout/ffplayout-sub002/internal/xerrors"
)

// DefaultProbeTimeout matches spec §5's configurable probe timeout default.
const DefaultProbeTimeout = 10 * time.Second

// Prober wraps ffprobe, populating an Item's Probe field.
type Prober struct {
	binary  string
	timeout time.Duration
}

// NewProber returns a Prober invoking binary (defaults to "ffprobe" when
// empty) with the given probe timeout (defaults to DefaultProbeTimeout when
// zero or negative).
func NewProber(binary string, timeout time.Duration) *Prober {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{binary: bin, timeout: timeout}
}

// Probe runs ffprobe against a filesystem path or URL and returns the
// populated Probe value.
func (p *Prober) Probe(ctx context.Context, source string) (*Probe, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty source path", xerrors.ErrProbeFailure)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// #nosec G204 - source is an operator-configured playlist/folder entry
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-probesize", "50M",
		"-analyzeduration", "50M",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		source,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	probe, parseErr := parseProbeOutput(stdout.Bytes())
	if parseErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%w: %v", xerrors.ErrProbeFailure, runErr)
		}
		return nil, fmt.Errorf("%w: %s", xerrors.ErrProbeFailure, msg)
	}

	// ffprobe can exit non-zero for a partially-available source while
	// still emitting usable stream metadata; keep it when present.
	if runErr != nil && !probe.HasVideo && !probe.HasAudio {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%w: %v", xerrors.ErrProbeFailure, runErr)
		}
		return nil, fmt.Errorf("%w: %s", xerrors.ErrProbeFailure, msg)
	}

	return probe, nil
}

type probePayload struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

func parseProbeOutput(data []byte) (*Probe, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	probe := &Probe{}
	for _, s := range payload.Streams {
		switch s.CodecType {
		case "video":
			probe.HasVideo = true
			if s.Width > probe.Width {
				probe.Width = s.Width
			}
			if s.Height > probe.Height {
				probe.Height = s.Height
			}
			if fps := parseFrameRate(s.RFrameRate); fps > 0 {
				probe.FPS = fps
			}
		case "audio":
			probe.HasAudio = true
		}
	}

	if payload.Format.Duration != "" {
		if d, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil && d > 0 {
			probe.Duration = d
		}
	}

	return probe, nil
}

// parseFrameRate parses ffprobe's "30000/1001"-style rational frame rate.
func parseFrameRate(raw string) float64 {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(raw, 64)
		return v
	}
	num, errN := strconv.ParseFloat(parts[0], 64)
	den, errD := strconv.ParseFloat(parts[1], 64)
	if errN != nil || errD != nil || den == 0 {
		return 0
	}
	return num / den
}
