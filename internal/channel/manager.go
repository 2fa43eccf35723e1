// SPDX-License-Identifier: MIT

// Package channel implements ChannelManager: the per-channel supervisor
// that owns the PlaylistSource/FolderSource, the Player and the optional
// IngestServer, and exposes both a suture.Service for top-level
// supervision and a direct start/stop/restart/reload_config/control API
// for callers that want manual control instead of a supervisor (spec §4.7).
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ffplayout/ffplayout-sub002/internal/clock"
	"github.com/ffplayout/ffplayout-sub002/internal/config"
	"github.com/ffplayout/ffplayout-sub002/internal/filter"
	"github.com/ffplayout/ffplayout-sub002/internal/folder"
	"github.com/ffplayout/ffplayout-sub002/internal/ingest"
	"github.com/ffplayout/ffplayout-sub002/internal/lock"
	"github.com/ffplayout/ffplayout-sub002/internal/media"
	"github.com/ffplayout/ffplayout-sub002/internal/player"
	"github.com/ffplayout/ffplayout-sub002/internal/playlist"
	"github.com/ffplayout/ffplayout-sub002/internal/rpc"
	"github.com/ffplayout/ffplayout-sub002/internal/task"
	"github.com/ffplayout/ffplayout-sub002/internal/util"
	"github.com/ffplayout/ffplayout-sub002/internal/xerrors"
)

// Binaries names the external tools a Manager spawns, resolved once at
// daemon startup (spec §6 "--paths").
type Binaries struct {
	FFmpeg  string
	FFprobe string
}

// RunState is the ChannelManager's own coarse lifecycle, distinct from
// player.State (which tracks a single child process).
type RunState int

const (
	RunStopped RunState = iota
	RunStarting
	RunRunning
	RunStopping
)

func (s RunState) String() string {
	switch s {
	case RunStopped:
		return "stopped"
	case RunStarting:
		return "starting"
	case RunRunning:
		return "running"
	case RunStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Status is the read side of a Manager's live state. The Manager keeps it
// behind its own RWMutex and Status() hands out a copy, so RPC/health
// consumers never block the command mailbox (spec §4.7 "Status").
type Status struct {
	CurrentItem   string
	CurrentDate   string
	TimeShift     float64
	Chain         string
	IngestIsAlive bool
	PlayerRunning bool
	ListInit      bool
	State         RunState
}

// commandKind enumerates the mailbox's serialized operations. Start/Stop
// are handled directly by their methods below (they own the run
// goroutine's lifecycle); only operations that must serialize with an
// in-progress run go through the mailbox.
type commandKind int

const (
	cmdRestart commandKind = iota
	cmdReloadConfig
)

type command struct {
	kind   commandKind
	newCfg *config.Channel // for cmdReloadConfig
	reply  chan error
}

// Manager supervises one channel's full run: playlist/folder source,
// Player, optional ingest listener, and the process lock that prevents a
// double-start across separate daemon processes (P4).
type Manager struct {
	id     string
	logger *slog.Logger
	bin    Binaries

	mu  sync.RWMutex
	cfg config.Channel

	status Status
	stMu   sync.RWMutex

	mailbox chan command
	done    chan struct{}

	fileLock *lock.FileLock

	itemMu      sync.Mutex
	itemCancel  context.CancelFunc
	repeatItem  bool
	currentItem media.Item
}

// New constructs a Manager for channel id with its initial configuration.
func New(id string, cfg config.Channel, lockDir string, bin Binaries, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	safeID := util.SanitizeIdentifier(id)
	if safeID == "" {
		safeID = "channel"
	}

	fl, err := lock.NewFileLock(fmt.Sprintf("%s/%s.lock", lockDir, safeID))
	if err != nil {
		return nil, fmt.Errorf("channel %s: create lock: %w", id, err)
	}

	return &Manager{
		id:       id,
		logger:   logger.With("channel", id),
		bin:      bin,
		cfg:      cfg,
		mailbox:  make(chan command, 8),
		fileLock: fl,
	}, nil
}

// String satisfies suture's optional naming interface.
func (m *Manager) String() string { return fmt.Sprintf("channel.Manager(%s)", m.id) }

// Name satisfies internal/supervisor.Service, alongside Run below, so a
// Manager can be registered directly with a supervisor.Supervisor.
func (m *Manager) Name() string { return m.id }

// Run satisfies internal/supervisor.Service by delegating to Serve.
func (m *Manager) Run(ctx context.Context) error { return m.Serve(ctx) }

// Serve implements suture.Service: it blocks running this channel's
// playout loop until ctx is cancelled or an unrecoverable error occurs,
// at which point the top-level suture.Supervisor restarts it.
func (m *Manager) Serve(ctx context.Context) error {
	if err := m.fileLock.AcquireContext(ctx, lock.DefaultAcquireTimeout); err != nil {
		return fmt.Errorf("channel %s: acquire process lock: %w", m.id, err)
	}
	defer func() { _ = m.fileLock.Release() }()

	m.setState(RunRunning)
	defer m.setState(RunStopped)

	return m.runLoop(ctx)
}

// Start is the direct-control equivalent of letting a suture.Supervisor
// call Serve: it runs the channel's loop in a background goroutine and
// returns immediately, for callers (CLI, tests) that want manual control.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return fmt.Errorf("channel %s: already started", m.id)
	}
	m.done = make(chan struct{})
	m.mu.Unlock()

	util.SafeGo("channel-"+m.id, nil, func() {
		defer close(m.done)
		if err := m.Serve(ctx); err != nil {
			m.logger.Error("channel run ended", "error", err)
		}
	}, nil)
	return nil
}

// Stop waits for the run started by Start to return, or for ctx to end.
// It does not cancel the run itself: the run ends when the context passed
// to Start is cancelled.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.RLock()
	done := m.done
	m.mu.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart sends a restart command through the mailbox and waits for the
// run loop to acknowledge it. The acknowledgement is all that happens: the
// run loop neither stops nor restarts, and the channel keeps playing from
// its current configuration snapshot.
func (m *Manager) Restart(ctx context.Context) error {
	return m.send(ctx, command{kind: cmdRestart})
}

// ReloadConfig swaps the live configuration snapshot; the currently
// playing item is never interrupted (spec §4.3 reload policy) — the new
// snapshot takes effect at the next item boundary.
func (m *Manager) ReloadConfig(ctx context.Context, cfg config.Channel) error {
	return m.send(ctx, command{kind: cmdReloadConfig, newCfg: &cfg})
}

// NextItem interrupts the currently playing item and advances the
// playlist/folder cursor immediately (spec §6 "control(op): next/
// previous item ... decoder restart with adjusted seek").
func (m *Manager) NextItem() error {
	m.itemMu.Lock()
	cancel := m.itemCancel
	m.repeatItem = false
	m.itemMu.Unlock()
	if cancel == nil {
		return fmt.Errorf("channel %s: not running", m.id)
	}
	cancel()
	return nil
}

// PreviousItem interrupts the currently playing item and restarts it
// from its own seek point rather than advancing, approximating "go back"
// in a playout model that otherwise only ever moves forward.
func (m *Manager) PreviousItem() error {
	m.itemMu.Lock()
	cancel := m.itemCancel
	m.repeatItem = true
	m.itemMu.Unlock()
	if cancel == nil {
		return fmt.Errorf("channel %s: not running", m.id)
	}
	cancel()
	return nil
}

// MediaInfo returns the cached probe of the item currently playing.
func (m *Manager) MediaInfo() media.Item {
	m.stMu.RLock()
	defer m.stMu.RUnlock()
	return m.currentItem
}

// SetOverlayText implements rpc.OverlaySink. It writes the new text to
// this channel's overlay textfile and points Text.FromFile at it, so
// the next item's Decoder picks up the update on its next filter-graph
// build (spec §4.10; see DESIGN.md for why this applies at the next
// item rather than mid-stream, unlike the continuous single-process
// pipeline the overlay socket was originally grounded on).
func (m *Manager) SetOverlayText(req rpc.OverlayRequest) error {
	path := m.overlayTextPath()
	if err := os.WriteFile(path, []byte(req.Text), 0o644); err != nil {
		return fmt.Errorf("channel %s: write overlay text: %w", m.id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Text.Enable = true
	m.cfg.Text.FromSocket = true
	m.cfg.Text.FromFile = path
	if req.Style != "" {
		m.cfg.Text.Style = req.Style
	}
	return nil
}

func (m *Manager) overlayTextPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("ffplayout-overlay-%s.txt", util.SanitizeIdentifier(m.id)))
}

func (m *Manager) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case m.mailbox <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the channel's current status.
func (m *Manager) Status() Status {
	m.stMu.RLock()
	defer m.stMu.RUnlock()
	return m.status
}

func (m *Manager) setState(s RunState) {
	m.stMu.Lock()
	m.status.State = s
	m.stMu.Unlock()
}

func (m *Manager) updateStatus(fn func(*Status)) {
	m.stMu.Lock()
	fn(&m.status)
	m.stMu.Unlock()
}

// currentConfig returns a clone of the live configuration snapshot.
func (m *Manager) currentConfig() config.Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Clone()
}

// runLoop drives the PlaylistSource/Player pair, processing mailbox
// commands between items so every Player-affecting operation is
// serialized per spec §4.7 "Concurrency". Each item is run to completion
// (RunItem blocks for the item's real playback duration) before the next
// is pulled, which is what paces the loop instead of a busy poll.
func (m *Manager) runLoop(ctx context.Context) error {
	cfg := m.currentConfig()

	date := clock.Real{}.Now().Format("2006-01-02")
	src, err := playlist.New(clock.Real{}, cfg, m.id, date)
	if err != nil {
		return fmt.Errorf("channel %s: build playlist source: %w", m.id, err)
	}

	var foldSrc *folder.Source
	if cfg.Storage.Root != "" && cfg.Playlist.Infinit {
		foldSrc, err = folder.New(cfg, m.logger)
		if err != nil {
			m.logger.Warn("folder source unavailable, falling back to playlist", "error", err)
		}
	}

	item, err := src.Start()
	if err != nil {
		return fmt.Errorf("channel %s: seek playlist: %w", m.id, err)
	}
	m.updateStatus(func(s *Status) { s.ListInit = true; s.CurrentDate = src.Date() })

	enc, stdin, err := m.startEncoder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("channel %s: start encoder: %w", m.id, err)
	}
	// enc is reassigned on fatal-failure escalation (see fatalFailures
	// below); capture it by reference so this cleanup targets whichever
	// Encoder is current when runLoop returns, not the first one.
	defer func() { enc.Stop(cfg.Timeouts.GracefulShutdown) }()
	m.updateStatus(func(s *Status) { s.PlayerRunning = true })

	// pBox holds the current Player; it's swapped on fatal-failure
	// escalation while the ingest-preempt goroutine below concurrently
	// reads it, so access always goes through the atomic pointer rather
	// than a plain variable.
	var pBox atomic.Pointer[player.Player]
	pBox.Store(player.New(player.Config{
		Channel:     cfg,
		ChannelName: m.id,
		FFmpegPath:  m.bin.FFmpeg,
		FFprobePath: m.bin.FFprobe,
		Logger:      m.logger,
	}, enc, stdin))

	// fatalFailures tracks recent RunItem errors carrying a recognisable
	// fatal decoder pattern (spec §4.6 step 6): a single one triggers a
	// one-off retry with filler; fatalFailureEscalateCount within
	// fatalFailureWindow escalates to a full Encoder restart.
	var fatalFailures []time.Time
	// restartBackoff paces repeated Encoder restarts so a channel stuck
	// replaying a broken source doesn't spin-restart the encoder as fast
	// as the 30s window allows.
	restartBackoff := player.NewBackoff(2*time.Second, 30*time.Second, 1000)

	var ing *ingest.Server
	if cfg.Ingest.Enable {
		ing, err = ingest.New(cfg.Ingest, cfg.Advanced.Ingest.InputParam, m.logger)
		if err != nil {
			m.logger.Warn("ingest server unavailable", "error", err)
		} else if ing != nil {
			util.SafeGo("ingest-"+m.id, nil, func() {
				if rerr := ing.Run(ctx); rerr != nil && ctx.Err() == nil {
					m.logger.Error("ingest server exited", "error", rerr)
				}
			}, nil)
			util.SafeGo("ingest-preempt-"+m.id, nil, func() {
				for {
					select {
					case <-ctx.Done():
						return
					case alive := <-ing.Alive():
						m.updateStatus(func(s *Status) { s.IngestIsAlive = alive })
						if alive && cfg.Ingest.PreEmpt {
							if perr := pBox.Load().PreemptForIngest(ctx, ing.Stdout()); perr != nil && ctx.Err() == nil {
								m.logger.Warn("ingest pre-empt ended", "error", perr)
							}
						}
					}
				}
			}, nil)
		}
	}

	if cfg.Ingest.BindSocket != "" {
		overlay := rpc.NewOverlayServer(cfg.Ingest.BindSocket, m, m.logger)
		util.SafeGo("overlay-"+m.id, nil, func() {
			if oerr := overlay.Serve(ctx); oerr != nil && ctx.Err() == nil {
				m.logger.Error("overlay socket exited", "error", oerr)
			}
		}, nil)
	}

	if cfg.Output.Mode == config.OutputHLS {
		if path := hlsPlaylistPath(cfg.Output.OutputCmd); path != "" {
			util.SafeGo("hls-watchdog-"+m.id, nil, func() {
				m.watchHLSOutput(ctx, path)
			}, nil)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-m.mailbox:
			m.handleCommand(cmd)
			if cmd.kind == cmdReloadConfig {
				cfg = m.currentConfig()
			}
		default:
		}

		m.updateStatus(func(s *Status) {
			s.CurrentItem = item.Source
			s.Chain = string(item.Category)
		})
		m.stMu.Lock()
		m.currentItem = item
		m.stMu.Unlock()

		itemCtx, cancel := context.WithCancel(ctx)
		m.itemMu.Lock()
		m.itemCancel = cancel
		m.itemMu.Unlock()

		rerr := pBox.Load().RunItem(itemCtx, item)
		cancel()
		if ctx.Err() != nil {
			return nil
		}

		if rerr != nil && itemCtx.Err() == nil && errors.Is(rerr, xerrors.ErrDecoderSpawn) {
			fatalFailures = pruneFatalFailures(append(fatalFailures, time.Now()), time.Now(), fatalFailureWindow)

			if len(fatalFailures) >= fatalFailureEscalateCount {
				m.logger.Error("fatal decoder errors exceeded window threshold, restarting encoder",
					"count", len(fatalFailures), "window", fatalFailureWindow, "source", item.Source)
				if werr := restartBackoff.WaitContext(ctx); werr != nil {
					return nil
				}
				restartBackoff.RecordFailure()
				enc.Stop(cfg.Timeouts.GracefulShutdown)
				_ = enc.Close()
				newEnc, newStdin, serr := m.startEncoder(ctx, cfg)
				if serr != nil {
					return fmt.Errorf("channel %s: restart encoder after fatal failures: %w", m.id, serr)
				}
				enc = newEnc
				pBox.Store(player.New(player.Config{
					Channel:     cfg,
					ChannelName: m.id,
					FFmpegPath:  m.bin.FFmpeg,
					FFprobePath: m.bin.FFprobe,
					Logger:      m.logger,
				}, enc, newStdin))
				fatalFailures = fatalFailures[:0]
			} else {
				m.logger.Warn("fatal decoder error, retrying item with filler", "source", item.Source, "error", rerr)
			}

			item = fillerRetryItem(cfg, item)
			continue
		}

		if rerr != nil && itemCtx.Err() == nil {
			m.logger.Warn("item playback ended with error, advancing", "source", item.Source, "error", rerr)
		}

		task.Run(ctx, cfg.Task, m.id, item, m.logger)

		m.itemMu.Lock()
		repeat := m.repeatItem
		m.repeatItem = false
		m.itemCancel = nil
		m.itemMu.Unlock()
		if repeat {
			continue
		}

		if foldSrc != nil {
			next, ok := foldSrc.Next()
			if !ok {
				return fmt.Errorf("channel %s: folder source exhausted", m.id)
			}
			item = next
			continue
		}

		next, nerr := src.Next()
		if nerr != nil {
			if src.State() == playlist.StateTerminal {
				return nil
			}
			m.logger.Warn("playlist advance error, continuing with filler", "error", nerr)
		}
		item = next
	}
}

// fatalFailureWindow and fatalFailureEscalateCount implement spec §4.6
// step 6's sliding-window escalation: a recognisable fatal decoder error
// triggers a single retry with filler; fatalFailureEscalateCount or more
// within fatalFailureWindow escalate to a full Encoder restart.
const (
	fatalFailureWindow        = 30 * time.Second
	fatalFailureEscalateCount = 3
)

// pruneFatalFailures drops entries older than window, keeping the sliding
// window spec §4.6 step 6 escalation counts against.
func pruneFatalFailures(failures []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := failures[:0]
	for _, t := range failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// startEncoder builds and spawns the channel's long-running Encoder
// process, used both for the initial run-loop setup and to recreate the
// Encoder when fatal-failure escalation demands a full restart.
func (m *Manager) startEncoder(ctx context.Context, cfg config.Channel) (*player.Encoder, io.Writer, error) {
	enc, err := player.NewEncoder(player.ProcessConfig{
		Binary:      m.bin.FFmpeg,
		Logger:      m.logger,
		StopTimeout: cfg.Timeouts.GracefulShutdown,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build encoder: %w", err)
	}
	encCtx, encCancel := context.WithTimeout(ctx, cfg.Timeouts.FFmpegStartup)
	stdin, err := enc.Start(encCtx, encoderArgs(cfg))
	encCancel()
	if err != nil {
		return nil, nil, err
	}
	return enc, stdin, nil
}

// fillerRetryItem substitutes for an item whose decoder exited with a
// recognisable fatal error (spec §4.6 step 6): it bridges the failed
// item's on-air slot with filler sized to the same play duration, if
// known, so the schedule isn't pulled forward or left short.
func fillerRetryItem(cfg config.Channel, failed media.Item) media.Item {
	duration := failed.PlayedDuration()
	if duration <= 0 {
		duration = 10
	}
	return media.Item{
		Source:   cfg.Storage.Filler,
		Category: media.CategoryFiller,
		Out:      duration,
		Duration: duration,
	}
}

// encoderArgs assembles the fixed target-format encode arguments plus any
// operator-supplied Advanced.Encoder/Output.OutputCmd fragments (spec §3).
func encoderArgs(cfg config.Channel) []string {
	args := []string{"-hide_banner", "-nostats", "-loglevel", "warning", "-f", "mpegts", "-i", "pipe:0"}
	args = append(args, config.SplitArgv(cfg.Advanced.Encoder.InputParam)...)
	if len(cfg.Output.OutputCmd) > 0 {
		args = append(args, cfg.Output.OutputCmd...)
	}
	return args
}

// hlsPlaylistPath returns the media-playlist path from an HLS Output.OutputCmd,
// which ffmpeg's hls muxer always takes as its final positional argument.
func hlsPlaylistPath(outputCmd []string) string {
	if len(outputCmd) == 0 {
		return ""
	}
	last := outputCmd[len(outputCmd)-1]
	if filepath.Ext(last) == ".m3u8" {
		return last
	}
	return ""
}

// watchHLSOutput polls the HLS media playlist ffmpeg is writing and warns
// when its sequence number stops advancing, since a wedged hls muxer
// otherwise fails silently from the supervisor's point of view (spec §4.2
// "HLS output" reload policy).
func (m *Manager) watchHLSOutput(ctx context.Context, path string) {
	const pollInterval = 10 * time.Second
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastSeq uint64
	seen := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stalled, seq, err := filter.HLSStalled(path, lastSeq)
			if err != nil {
				// Playlist not written yet (startup) or transient I/O race; not fatal.
				continue
			}
			if seen && stalled {
				m.logger.Warn("HLS output playlist not advancing", "path", path, "seq", seq)
			}
			lastSeq = seq
			seen = true
		}
	}
}

func (m *Manager) handleCommand(cmd command) {
	var err error
	switch cmd.kind {
	case cmdReloadConfig:
		if cmd.newCfg != nil {
			if verr := cmd.newCfg.Validate(); verr != nil {
				err = verr
			} else {
				m.mu.Lock()
				m.cfg = *cmd.newCfg
				m.mu.Unlock()
			}
		}
	case cmdRestart:
		// Restart only passes through the mailbox, so it serializes with a
		// concurrent reload; nothing is stopped or restarted here.
	}
	if cmd.reply != nil {
		cmd.reply <- err
	}
}

