// SPDX-License-Identifier: MIT

// Package ingest runs the optional live-input listener (spec §4.5) that
// lets an operator pre-empt the scheduled playlist with a live RTMP/SRT
// feed.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ffplayout/ffplayout-sub002/internal/config"
	"github.com/ffplayout/ffplayout-sub002/internal/xerrors"
)

// State mirrors the ingest listener's lifecycle: Idle (no child process),
// Live (connected input producing bytes), Teardown (stopping).
type State int

const (
	StateIdle State = iota
	StateLive
	StateTeardown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLive:
		return "live"
	case StateTeardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// Server runs Channel.Ingest.InputCmd as a child process and reports
// liveness over a single-producer/single-consumer bool channel: the
// channel is buffered 1 so the producer (the byte-pump goroutine) never
// blocks on a slow consumer, matching the buffered-channel preference
// internal/player's Backoff and ResourceMonitor already establish.
type Server struct {
	cmd          []string
	mediaServer  *MediaServerClient
	logger       *slog.Logger

	state   atomic.Value // State
	mu      sync.Mutex
	proc    *exec.Cmd
	stdout  io.ReadCloser

	aliveCh chan bool
}

// New constructs a Server from a channel's ingest configuration. inputParam
// is Channel.Advanced.Ingest.InputParam (spec §3 "Advanced"): its tokens are
// inserted right after the child binary, before the rest of InputCmd's
// arguments. Returns nil, nil if ingest is disabled so callers can skip
// spawning the goroutine entirely.
func New(cfg config.Ingest, inputParam string, logger *slog.Logger) (*Server, error) {
	if !cfg.Enable {
		return nil, nil
	}
	if len(cfg.InputCmd) == 0 {
		return nil, fmt.Errorf("%w: ingest enabled but input_cmd is empty", xerrors.ErrConfigInvalid)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var msc *MediaServerClient
	if cfg.MediaServerAPI != "" {
		msc = NewMediaServerClient(cfg.MediaServerAPI, cfg.MediaServerPath)
	}

	cmd := append([]string{cfg.InputCmd[0]}, config.SplitArgv(inputParam)...)
	cmd = append(cmd, cfg.InputCmd[1:]...)

	s := &Server{
		cmd:         cmd,
		mediaServer: msc,
		logger:      logger,
		aliveCh:     make(chan bool, 1),
	}
	s.state.Store(StateIdle)
	return s, nil
}

// Alive returns the channel on which liveness transitions are published.
// true means "first byte of connected input observed"; false means the
// child exited or the connection dropped.
func (s *Server) Alive() <-chan bool { return s.aliveCh }

// State returns the server's current lifecycle state.
func (s *Server) State() State { return s.state.Load().(State) }

// Run spawns the ingest child process and pumps its stdout until ctx is
// cancelled, publishing liveness transitions as bytes start/stop flowing.
// It does not itself feed bytes anywhere: the Player's stdin-hand-off
// selector reads Server.Stdout() when it holds the lease (spec §4.6).
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	// #nosec G204 - cmd is operator-configured via channel config, not user input
	cmd := exec.CommandContext(ctx, s.cmd[0], s.cmd[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: stdout pipe: %v", xerrors.ErrIngestFailure, err)
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: start: %v", xerrors.ErrIngestFailure, err)
	}
	s.proc = cmd
	s.stdout = stdout
	s.mu.Unlock()

	s.state.Store(StateIdle)

	reader := bufio.NewReaderSize(stdout, 64*1024)
	first := true
	for {
		buf := make([]byte, 32*1024)
		n, rerr := reader.Read(buf)
		if n > 0 {
			if first {
				first = false
				s.state.Store(StateLive)
				s.setLive(true)
				s.logger.Info("ingest input connected")
			}
		}
		if rerr != nil {
			break
		}
	}

	s.state.Store(StateTeardown)
	s.setLive(false)
	_ = cmd.Wait()
	s.state.Store(StateIdle)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (s *Server) setLive(alive bool) {
	select {
	case s.aliveCh <- alive:
	default:
		// Drain the stale value and replace it: the consumer only ever
		// cares about the most recent liveness transition.
		select {
		case <-s.aliveCh:
		default:
		}
		s.aliveCh <- alive
	}
}

// Stdout returns the ingest child's stdout, for the Player's stdin-hand-off
// selector to read from while the ingest lease is held. Valid only after
// Run has started the child process.
func (s *Server) Stdout() io.Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdout
}

// CorroborateLiveness optionally cross-checks the byte-pump's own liveness
// signal against an external media server's reported path readiness (spec
// §4.5); this is additive corroboration only, never the primary signal.
func (s *Server) CorroborateLiveness(ctx context.Context, path string) (bool, error) {
	if s.mediaServer == nil {
		return true, nil
	}
	return s.mediaServer.IsPathReady(ctx, path)
}

// PollInterval is how often CorroborateLiveness should reasonably be
// polled by a caller that wants periodic cross-checks rather than one-off
// calls.
const PollInterval = 5 * time.Second
