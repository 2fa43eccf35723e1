// SPDX-License-Identifier: MIT

package player

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ffplayout/ffplayout-sub002/internal/config"
	"github.com/ffplayout/ffplayout-sub002/internal/filter"
	"github.com/ffplayout/ffplayout-sub002/internal/media"
	"github.com/ffplayout/ffplayout-sub002/internal/util"
	"github.com/ffplayout/ffplayout-sub002/internal/xerrors"
)

// ItemSource is the minimal interface the Player needs from either
// playlist.Source or folder.Source to pull the next scheduled item.
type ItemSource interface {
	Next() (media.Item, error)
}

// Lease identifies who currently owns the Encoder's stdin.
type Lease int

const (
	LeaseDecoder Lease = iota
	LeaseIngest
)

// selector owns the Encoder's stdin and forwards bytes from exactly one
// upstream reader at a time, matching spec §4.6/§5's "short-lived
// exclusive lease" rule: the Decoder and the Ingest server never write to
// the Encoder concurrently.
type selector struct {
	mu     sync.Mutex
	dst    io.Writer
	lease  Lease
	cancel context.CancelFunc
}

func newSelector(dst io.Writer) *selector {
	return &selector{dst: dst, lease: LeaseDecoder}
}

// pump copies from src to the encoder while this call holds the lease;
// it stops early (without closing dst) if preempted via acquire().
func (s *selector) pump(ctx context.Context, lease Lease, src io.Reader) error {
	pctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.lease = lease
	s.cancel = cancel
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(s.dst, src)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-pctx.Done():
		return pctx.Err()
	}
}

// preempt cancels whoever currently holds the lease, letting the caller
// take over on its next pump() call.
func (s *selector) preempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Config bundles everything the Player needs to run one channel.
type Config struct {
	Channel     config.Channel
	ChannelName string
	FFmpegPath  string
	FFprobePath string
	Logger      *slog.Logger
}

// Player is the per-channel process orchestrator: it pulls items from an
// ItemSource, probes them if needed, builds the Decoder's filter-complex
// via internal/filter, runs Decoder->Encoder, and on ingest pre-empt
// switches the Encoder's input lease to the ingest feed (spec §4.6).
type Player struct {
	cfg    Config
	prober *media.Prober
	sel    *selector
	enc    *Encoder

	itemsTotal int // best-effort, used only for filter.Position
	itemIndex  int
}

// New constructs a Player. The caller starts the Encoder and passes it
// in, since the Encoder outlives any single item's Decoder.
func New(cfg Config, enc *Encoder, stdin io.Writer) *Player {
	return &Player{
		cfg:    cfg,
		prober: media.NewProber(cfg.FFprobePath, cfg.Channel.Timeouts.Probe),
		sel:    newSelector(stdin),
		enc:    enc,
	}
}

// RunItem executes one scheduled item end-to-end: probe (if missing),
// build its filter graph, spawn the Decoder, and pump its output through
// the Encoder until EOF or ctx cancellation. It implements spec §4.6
// steps 1-5 for a single item.
func (p *Player) RunItem(ctx context.Context, item media.Item) error {
	if item.Probe == nil {
		probe, err := p.prober.Probe(ctx, item.Source)
		if err != nil {
			p.log().Warn("probe failed, substituting filler semantics upstream", "source", item.Source, "error", err)
			return fmt.Errorf("%w: %s", xerrors.ErrProbeFailure, item.Source)
		}
		item.Probe = probe
		if item.Duration == 0 {
			item.Duration = probe.Duration
		}
	}

	graph, err := filter.Build(p.cfg.Channel, item, filter.Position{Index: p.itemIndex, Total: p.itemsTotal}, filter.ChainState{})
	if err != nil {
		return fmt.Errorf("build filter graph for %s: %w", item.Source, err)
	}
	p.itemIndex++

	args := decoderArgs(item, graph, p.cfg.Channel.Advanced.Decoder)

	dec, err := NewDecoder(ProcessConfig{
		Binary:      p.cfg.FFmpegPath,
		Logger:      p.cfg.Logger,
		StopTimeout: p.cfg.Channel.Timeouts.GracefulShutdown,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrDecoderSpawn, err)
	}

	startCtx, startCancel := context.WithTimeout(ctx, p.cfg.Channel.Timeouts.FFmpegStartup)
	stdout, err := dec.Start(startCtx, item, args)
	startCancel()
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrDecoderSpawn, err)
	}
	defer func() { _ = stdout.Close() }()

	err = p.sel.pump(ctx, LeaseDecoder, stdout)
	dec.Stop(p.cfg.Channel.Timeouts.GracefulShutdown)
	waitErr := dec.Wait()
	fatal := dec.FatalErrorSeen()
	_ = dec.Close()

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", xerrors.ErrPipeIO, err)
	}
	// spec §4.6 step 6: a non-zero exit carrying a recognisable fatal
	// pattern (Invalid data, Immediate exit requested) is reported as
	// ErrDecoderSpawn so the channel run loop can apply the retry/escalate
	// policy instead of its generic advance-and-warn handling.
	if fatal && waitErr != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", xerrors.ErrDecoderSpawn, waitErr)
	}
	return nil
}

// PreemptForIngest switches the Encoder's stdin lease to src (the ingest
// server's stdout) until ctx is cancelled or src reaches EOF (spec §4.5
// "pre_empt").
func (p *Player) PreemptForIngest(ctx context.Context, src io.Reader) error {
	p.sel.preempt()
	return p.sel.pump(ctx, LeaseIngest, src)
}

// ResumeFromIngest cancels any in-progress ingest pre-empt so the next
// scheduled item regains the Encoder's stdin lease.
func (p *Player) ResumeFromIngest() {
	p.sel.preempt()
}

func (p *Player) log() *slog.Logger {
	if p.cfg.Logger != nil {
		return p.cfg.Logger
	}
	return slog.Default()
}

// decoderArgs assembles the ffmpeg input/seek/filter_complex argument
// vector for one item, per spec §6 "Process pipes": seek before input for
// fast seeking, filter_complex applies the assembled graph, MPEG-TS output
// piped to stdout for the Encoder to consume. adv carries the operator's
// Channel.Advanced.Decoder overrides (spec §3 "Advanced"): InputParam is
// inserted alongside the other input-side flags, OutputParam alongside
// the output-side ones.
func decoderArgs(item media.Item, g filter.Graph, adv config.DecoderConfig) []string {
	args := []string{"-hide_banner", "-nostats", "-loglevel", "warning"}
	if item.Seek > 0 {
		args = append(args, "-ss", formatSeconds(item.Seek))
	}
	args = append(args, config.SplitArgv(adv.InputParam)...)
	args = append(args, "-i", item.Source)
	if item.Out > item.Seek {
		args = append(args, "-t", formatSeconds(item.Out-item.Seek))
	}
	if g.FilterComplex != "" {
		args = append(args, "-filter_complex", g.FilterComplex)
	}
	args = append(args, g.ExtraArgs...)
	args = append(args, config.SplitArgv(adv.OutputParam)...)
	args = append(args, "-f", "mpegts", "-")
	return args
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}

// sanitizeChannelName maps an operator-supplied channel identifier to a
// safe file-name component, falling back to "channel" when nothing is
// left. Only its tests call it; channel.New does its own sanitizing.
func sanitizeChannelName(name string) string {
	if s := util.SanitizeIdentifier(name); s != "" {
		return s
	}
	return "channel"
}
