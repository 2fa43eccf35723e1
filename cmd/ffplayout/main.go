// SPDX-License-Identifier: MIT

// Package main implements ffplayout, the single binary combining the
// 24/7 channel-playout daemon with its operator CLI (spec §6 "CLI
// surface"): run with no subcommand to start the daemon for one or more
// configured channels, or with a subcommand for one-shot operations
// (setup, diagnose, update, validate, migrate, ...).
//
// Usage:
//
//	ffplayout [options]          Run the daemon
//	ffplayout <command> [args]   Run a one-shot operation
//
// Daemon options:
//
//	--config PATH       Path to the multi-channel config file
//	--channel ID        Only run the named channel (default: all configured)
//	--log PATH          Log directory (default: /var/log/ffplayout)
//	--level LEVEL       Log level: debug, info, warn, error (default: info)
//	--paths DIR[,DIR…]  Extra PATH entries to search for ffmpeg/ffprobe
//	--health-addr ADDR  Address for the /healthz and /metrics endpoints
//	--fake-time RFC3339 Debug-only: pin the clock for reproducible runs
//
// Commands:
//
//	generate, import, validate, status, channels, media-info, next,
//	setup, diagnose, update, install-mediamtx, migrate, test, menu,
//	version, help
//
// Exit codes: 0 success, 1 generic failure, 101 supervised child failure.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ffplayout/ffplayout-sub002/internal/channel"
	"github.com/ffplayout/ffplayout-sub002/internal/clock"
	"github.com/ffplayout/ffplayout-sub002/internal/config"
	"github.com/ffplayout/ffplayout-sub002/internal/diagnostics"
	"github.com/ffplayout/ffplayout-sub002/internal/health"
	"github.com/ffplayout/ffplayout-sub002/internal/logging"
	"github.com/ffplayout/ffplayout-sub002/internal/media"
	"github.com/ffplayout/ffplayout-sub002/internal/menu"
	"github.com/ffplayout/ffplayout-sub002/internal/mediamtx"
	"github.com/ffplayout/ffplayout-sub002/internal/playlist"
	"github.com/ffplayout/ffplayout-sub002/internal/supervisor"
	"github.com/ffplayout/ffplayout-sub002/internal/updater"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

const (
	exitSuccess = 0
	exitError   = 1
	// exitSupervisedChildFailure is returned when the daemon's supervisor
	// tree exits because every supervised channel failed, per spec §6.
	exitSupervisedChildFailure = 101

	defaultLockDir    = "/var/run/ffplayout"
	defaultHealthAddr = ":8787"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the entry point, extracted for testability. It returns a process
// exit code rather than calling os.Exit directly.
func run(args []string) int {
	if len(args) > 0 && !looksLikeFlag(args[0]) {
		if err := dispatch(args[0], args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
		return exitSuccess
	}
	return runDaemon(args)
}

// looksLikeFlag reports whether the first CLI token is a flag rather than
// a subcommand name, so `ffplayout --config=... ` still starts the daemon.
func looksLikeFlag(s string) bool {
	return strings.HasPrefix(s, "-")
}

func dispatch(command string, args []string) error {
	switch command {
	case "help", "--help", "-h":
		return runHelp()
	case "version", "--version", "-v":
		return runVersion()
	case "generate":
		return runGenerate(args)
	case "import":
		return runImport(args)
	case "validate":
		return runValidate(args)
	case "status":
		return runStatus(args)
	case "channels":
		return runChannels(args)
	case "media-info":
		return runMediaInfo(args)
	case "next":
		return runNext(args)
	case "setup":
		return runSetup(args)
	case "diagnose":
		return runDiagnose(args)
	case "update":
		return runUpdate(args)
	case "install-mediamtx":
		return runInstallMediaMTX(args)
	case "migrate":
		return runMigrate(args)
	case "test":
		return runTest(args)
	case "menu":
		return runMenu(args)
	default:
		return fmt.Errorf("unknown command: %s (run 'ffplayout help' for usage)", command)
	}
}

// runHelp displays usage information.
func runHelp() error {
	fmt.Printf(`ffplayout v%s

USAGE:
    ffplayout [OPTIONS]           Run the playout daemon
    ffplayout <COMMAND> [ARGS]    Run a one-shot operation

DAEMON OPTIONS:
    --config PATH       Path to the multi-channel config file (default: %s)
    --channel ID        Only run the named channel (default: all configured)
    --log PATH          Log directory (default: /var/log/ffplayout)
    --level LEVEL       Log level: debug, info, warn, error (default: info)
    --paths DIR[,DIR…]  Extra PATH entries to search for ffmpeg/ffprobe
    --health-addr ADDR  Address for /healthz and /metrics (default: %s)
    --fake-time RFC3339 Debug-only: pin the clock for reproducible runs

COMMANDS:
    help              Show this help message
    version           Show version information
    generate          Generate playlist(s) from storage for given date(s)
    import            Import an m3u/text file into a date's playlist
    validate          Validate a configuration file
    status            Show daemon/channel status (--json for scripting)
    channels           List configured channels
    media-info        Show the item scheduled "now" for a channel
    next              Advance a channel to its next playlist item
    setup             Open the interactive operator menu (same as menu)
    diagnose          Run system diagnostics
    update            Check for and install updates
    install-mediamtx  Check that an installed MediaMTX server is reachable
    migrate           Migrate a legacy configuration into YAML
    test              Validate configuration without starting the daemon
    menu              Launch the interactive management menu

EXAMPLES:
    # Run the daemon for all configured channels
    sudo ffplayout --config=/etc/ffplayout/ffplayout.yaml

    # Run a single channel in folder mode
    ffplayout --channel=1 --play-mode=folder

    # Generate tomorrow's playlist from storage
    ffplayout generate --channel=1 --date=2026-07-31

    # Show status as JSON
    ffplayout status --json

For more information, visit: https://github.com/ffplayout/ffplayout
`, Version, config.ConfigFilePath, defaultHealthAddr)
	return nil
}

func runVersion() error {
	fmt.Println("ffplayout")
	fmt.Printf("  Version:    %s\n", Version)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
	fmt.Printf("  Built:      %s\n", BuildDate)
	return nil
}

// ---------------------------------------------------------------------
// Daemon mode
// ---------------------------------------------------------------------

// daemonFlags mirrors spec §6's CLI surface. Flags that only matter for a
// single-channel one-shot run (--date, --folder, --play-mode, ...) are
// accepted here too; applyDaemonOverrides applies the ones that map onto
// a channel's config, so an operator can override it without editing the
// file.
type daemonFlags struct {
	channel    string
	config     string
	logDir     string
	level      string
	healthAddr string
	paths      string
	lockDir    string
	fakeTime   string

	date         string
	folder       bool
	playMode     string
	playlist     string
	start        string
	length       string
	infinit      bool
	output       string
	volume       float64
	template     string
	validateOnly bool
}

func parseDaemonFlags(args []string) (*daemonFlags, error) {
	fs := flag.NewFlagSet("ffplayout", flag.ContinueOnError)
	f := &daemonFlags{}
	fs.StringVar(&f.channel, "channel", "", "Only run the named channel")
	fs.StringVar(&f.config, "config", config.ConfigFilePath, "Path to configuration file")
	fs.StringVar(&f.logDir, "log", "/var/log/ffplayout", "Log directory")
	fs.StringVar(&f.level, "level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&f.healthAddr, "health-addr", defaultHealthAddr, "Address for /healthz and /metrics (empty disables)")
	fs.StringVar(&f.paths, "paths", "", "Comma-separated extra PATH entries for ffmpeg/ffprobe")
	fs.StringVar(&f.lockDir, "lock-dir", defaultLockDir, "Directory for channel lock files")
	fs.StringVar(&f.fakeTime, "fake-time", "", "Debug-only: pin the clock to this RFC3339 timestamp")
	fs.StringVar(&f.date, "date", "", "Date override (YYYY-MM-DD) for the selected channel")
	fs.BoolVar(&f.folder, "folder", false, "Force folder play mode for the selected channel")
	fs.StringVar(&f.playMode, "play-mode", "", "folder|playlist, overrides the selected channel's mode")
	fs.StringVar(&f.playlist, "playlist", "", "Playlist JSON path override for the selected channel")
	fs.StringVar(&f.start, "start", "", "Start time hh:mm:ss|now override")
	fs.StringVar(&f.length, "length", "", "Playlist length hh:mm:ss|none override")
	fs.BoolVar(&f.infinit, "infinit", false, "Force infinite looping for the selected channel")
	fs.StringVar(&f.output, "output", "", "desktop|hls|null|stream, overrides the selected channel's output mode")
	fs.Float64Var(&f.volume, "volume", 0, "Output volume multiplier override")
	fs.StringVar(&f.template, "template", "", "Template file for --generate")
	fs.BoolVar(&f.validateOnly, "validate", false, "Validate configuration and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// runDaemon starts the playout daemon: one channel.Manager per configured
// channel (or just --channel, if given), supervised by a single
// supervisor.Supervisor, with a health HTTP endpoint serving /healthz and
// /metrics.
func runDaemon(args []string) int {
	f, err := parseDaemonFlags(args)
	if err != nil {
		return exitError
	}

	if f.fakeTime != "" {
		if os.Getenv("FFPLAYOUT_ALLOW_FAKE_TIME") == "" {
			fmt.Fprintln(os.Stderr, "--fake-time requires FFPLAYOUT_ALLOW_FAKE_TIME=1 in the environment")
			return exitError
		}
		if err := clock.SetFakeOffset(f.fakeTime); err != nil {
			fmt.Fprintf(os.Stderr, "invalid --fake-time: %v\n", err)
			return exitError
		}
	}

	level := parseLevel(f.level)
	logger := logging.NewLogger(os.Stderr, f.logDir, level)

	cfg, err := loadConfiguration(f.config)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return exitError
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitError
	}
	if f.validateOnly {
		fmt.Println("configuration OK")
		return exitSuccess
	}

	if err := os.MkdirAll(f.lockDir, 0750); err != nil { //nolint:gosec // lock dir needs group read for service monitoring
		logger.Error("failed to create lock directory", "error", err)
		return exitError
	}

	bin := resolveBinaries(f.paths)
	logger.Info("using ffmpeg/ffprobe", "ffmpeg", bin.FFmpeg, "ffprobe", bin.FFprobe)

	ids := selectedChannels(cfg, f.channel)
	if len(ids) == 0 {
		logger.Error("no channels configured")
		return exitError
	}

	sup := supervisor.New(supervisor.Config{
		Name:            "ffplayout",
		ShutdownTimeout: 30 * time.Second,
		Logger:          logger,
	})

	managers := make(map[string]*channel.Manager, len(ids))
	for _, id := range ids {
		chCfg := cfg.Channel(id)
		if len(ids) == 1 {
			applyDaemonOverrides(&chCfg, f)
		}

		chLogger := logging.ForChannel(logger, id)
		mgr, err := channel.New(id, chCfg, f.lockDir, bin, chLogger)
		if err != nil {
			logger.Error("failed to create channel manager", "channel", id, "error", err)
			continue
		}
		if err := sup.Add(mgr); err != nil {
			logger.Error("failed to register channel", "channel", id, "error", err)
			continue
		}
		managers[id] = mgr
	}

	if sup.ServiceCount() == 0 {
		logger.Error("no channel managers could be started")
		return exitError
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if f.healthAddr != "" {
		handler := health.NewHandler(&supervisorStatusProvider{sup: sup, managers: managers}).
			WithSystemInfo(&diskNTPProvider{storageDir: cfg.Default.Storage.Root})
		go func() {
			if err := health.ListenAndServe(ctx, f.healthAddr, handler); err != nil {
				logger.Warn("health endpoint stopped", "error", err)
			}
		}()
		logger.Info("health endpoint listening", "addr", f.healthAddr)
	}

	logger.Info("starting daemon", "channels", len(ids))
	err = sup.Run(ctx)
	if err != nil && ctx.Err() == nil {
		logger.Error("supervisor exited with error", "error", err)
		return exitSupervisedChildFailure
	}
	logger.Info("shutdown complete")
	return exitSuccess
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfiguration loads the config file, falling back to defaults if it
// doesn't exist yet.
func loadConfiguration(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

// resolveBinaries locates ffmpeg/ffprobe, searching extraPaths (from
// --paths) before the common install locations and $PATH, generalizing
// the common install locations to cover ffprobe too.
func resolveBinaries(extraPaths string) channel.Binaries {
	var dirs []string
	if extraPaths != "" {
		dirs = strings.Split(extraPaths, ",")
	}
	return channel.Binaries{
		FFmpeg:  findBinary("ffmpeg", dirs),
		FFprobe: findBinary("ffprobe", dirs),
	}
}

func findBinary(name string, extraDirs []string) string {
	candidates := append([]string{}, extraDirs...)
	candidates = append(candidates,
		"/usr/bin", "/usr/local/bin", "/opt/homebrew/bin",
	)
	for _, dir := range candidates {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return name
}

func selectedChannels(cfg *config.Config, only string) []string {
	if only != "" {
		return []string{only}
	}
	ids := make([]string, 0, len(cfg.Channels))
	for id := range cfg.Channels {
		ids = append(ids, id)
	}
	return ids
}

// applyDaemonOverrides layers CLI flags onto a single selected channel's
// config: --folder, --play-mode=folder, --playlist, --length, --infinit
// and --output. --date, --start, --volume and --template are parsed but
// not applied. Only meaningful when exactly one channel is selected,
// since they'd otherwise apply identically to every channel.
func applyDaemonOverrides(ch *config.Channel, f *daemonFlags) {
	if f.folder || f.playMode == "folder" {
		ch.Playlist.Infinit = true
	}
	if f.playlist != "" {
		ch.Playlist.PlaylistRoot = filepath.Dir(f.playlist)
	}
	if f.length != "" {
		ch.Playlist.Length = f.length
	}
	if f.infinit {
		ch.Playlist.Infinit = true
	}
	if f.output != "" {
		ch.Output.Mode = config.OutputMode(f.output)
	}
}

// ---------------------------------------------------------------------
// health.StatusProvider / health.SystemInfoProvider adapters
// ---------------------------------------------------------------------

type supervisorStatusProvider struct {
	sup      *supervisor.Supervisor
	managers map[string]*channel.Manager
}

func (p *supervisorStatusProvider) Services() []health.ServiceInfo {
	statuses := p.sup.Status()
	infos := make([]health.ServiceInfo, 0, len(statuses))
	for _, st := range statuses {
		errMsg := ""
		if st.LastError != nil {
			errMsg = st.LastError.Error()
		}
		healthy := st.State == supervisor.ServiceStateRunning
		if mgr, ok := p.managers[st.Name]; ok {
			healthy = healthy && mgr.Status().PlayerRunning
		}
		infos = append(infos, health.ServiceInfo{
			Name:     st.Name,
			State:    st.State.String(),
			Uptime:   st.Uptime,
			Healthy:  healthy,
			Error:    errMsg,
			Restarts: st.Restarts,
		})
	}
	return infos
}

// diskNTPProvider implements health.SystemInfoProvider using the same
// syscall.Statfs disk check internal/diagnostics runs standalone. It runs
// no NTP check: NTPSynced is always reported as true.
type diskNTPProvider struct {
	storageDir string
}

func (p *diskNTPProvider) SystemInfo() health.SystemInfo {
	path := p.storageDir
	if path == "" {
		path = "/"
	}
	var stat syscall.Statfs_t
	info := health.SystemInfo{NTPSynced: true}
	if err := syscall.Statfs(path, &stat); err == nil {
		// #nosec G115 -- Bsize is always positive on Linux filesystems
		info.DiskFreeBytes = stat.Bavail * uint64(stat.Bsize)
		// #nosec G115 -- Bsize is always positive on Linux filesystems
		info.DiskTotalBytes = stat.Blocks * uint64(stat.Bsize)
		if info.DiskTotalBytes > 0 {
			usedPercent := 100.0 - (float64(info.DiskFreeBytes)/float64(info.DiskTotalBytes))*100.0
			info.DiskLowWarning = usedPercent > diagnostics.DiskUsageWarningPercent
		}
	}
	return info
}

// ---------------------------------------------------------------------
// One-shot operations
// ---------------------------------------------------------------------

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	configPath := fs.String("config", config.ConfigFilePath, "Path to configuration file")
	channelID := fs.String("channel", "", "Channel id")
	dates := fs.String("date", "", "Comma-separated YYYY-MM-DD dates to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *channelID == "" || *dates == "" {
		return fmt.Errorf("generate requires --channel and --date")
	}

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	chCfg := cfg.Channel(*channelID)

	prober := media.NewProber(findBinary("ffprobe", nil), chCfg.Timeouts.Probe)
	ctx := context.Background()

	for _, date := range strings.Split(*dates, ",") {
		date = strings.TrimSpace(date)
		if date == "" {
			continue
		}
		pl, err := generatePlaylist(ctx, prober, chCfg, *channelID, date)
		if err != nil {
			return fmt.Errorf("generate %s: %w", date, err)
		}
		fmt.Printf("wrote playlist for %s: %d item(s)\n", date, len(pl.Program))
	}
	return nil
}

// generatePlaylist builds a JSONPlaylist for date from every file under
// the channel's storage root, in directory order, probing each with
// ffprobe — the non-interactive counterpart to playlist.Import, grounded
// on the same probe-then-append shape (internal/playlist/m3u.go).
func generatePlaylist(ctx context.Context, prober *media.Prober, ch config.Channel, channelID, date string) (*playlist.JSONPlaylist, error) {
	entries, err := os.ReadDir(ch.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("read storage root: %w", err)
	}

	extensions := make(map[string]struct{}, len(ch.Storage.Extensions))
	for _, e := range ch.Storage.Extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		extensions[e] = struct{}{}
	}

	pl := &playlist.JSONPlaylist{Channel: channelID, Date: date}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := extensions[ext]; !ok {
			continue
		}
		src := filepath.Join(ch.Storage.Root, entry.Name())
		probe, err := prober.Probe(ctx, src)
		if err != nil || probe.Duration <= 0 {
			continue
		}
		pl.Program = append(pl.Program, playlist.Item{
			In:       0,
			Out:      probe.Duration,
			Duration: probe.Duration,
			Source:   src,
		})
	}

	path, err := playlist.Path(ch.Playlist.PlaylistRoot, date)
	if err != nil {
		return nil, err
	}
	if err := playlist.Save(path, pl); err != nil {
		return nil, fmt.Errorf("write playlist: %w", err)
	}
	return pl, nil
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	configPath := fs.String("config", config.ConfigFilePath, "Path to configuration file")
	channelID := fs.String("channel", "", "Channel id")
	date := fs.String("date", "", "Target date YYYY-MM-DD")
	file := fs.String("file", "", "m3u/text file to import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *channelID == "" || *date == "" || *file == "" {
		return fmt.Errorf("import requires --channel, --date and --file")
	}

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	chCfg := cfg.Channel(*channelID)
	prober := media.NewProber(findBinary("ffprobe", nil), chCfg.Timeouts.Probe)

	pl, err := playlist.Import(context.Background(), prober, chCfg.Playlist.PlaylistRoot, *channelID, *date, *file)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Printf("imported into %s: %d item(s) total\n", *date, len(pl.Program))
	return nil
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	configPath := fs.String("config", config.ConfigFilePath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := config.LoadConfig(*configPath); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Printf("configuration OK: %s\n", *configPath)
	return nil
}

// StatusOutput is the JSON-serializable shape of `ffplayout status`,
// sourced from the daemon's
// /healthz endpoint instead of lock files, since channel.Manager is
// in-process only.
type StatusOutput struct {
	Addr     string           `json:"addr"`
	Reached  bool             `json:"reached"`
	Error    string           `json:"error,omitempty"`
	Response *health.Response `json:"response,omitempty"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost"+defaultHealthAddr, "Base URL of a running daemon's health endpoint")
	jsonOutput := fs.Bool("json", false, "Print status as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	out := StatusOutput{Addr: *addr}
	resp, err := fetchHealth(*addr)
	if err != nil {
		out.Error = err.Error()
	} else {
		out.Reached = true
		out.Response = resp
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Println("ffplayout Status")
	fmt.Println("================")
	fmt.Println()
	if !out.Reached {
		fmt.Printf("Daemon:  unreachable at %s (%s)\n", *addr, out.Error)
		return nil
	}
	fmt.Printf("Daemon:  %s\n", resp.Status)
	for _, svc := range resp.Services {
		fmt.Printf("  %-12s state=%-10s healthy=%-5v uptime=%s restarts=%d\n",
			svc.Name, svc.State, svc.Healthy, svc.Uptime.Round(time.Second), svc.Restarts)
	}
	return nil
}

func fetchHealth(baseAddr string) (*health.Response, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimSuffix(baseAddr, "/") + "/healthz")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out health.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func runChannels(args []string) error {
	fs := flag.NewFlagSet("channels", flag.ContinueOnError)
	configPath := fs.String("config", config.ConfigFilePath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if len(cfg.Channels) == 0 {
		fmt.Println("no channels configured")
		return nil
	}
	for id, ch := range cfg.Channels {
		fmt.Printf("%s: mode=%s storage=%s\n", id, cfg.Channel(id).Output.Mode, ch.Storage.Root)
	}
	return nil
}

// runMediaInfo reports the item a channel's playlist schedules "now",
// computed directly from the saved JSON playlist rather than the live
// in-process Manager (which has no cross-process query surface, per
// internal/rpc's own doc comment).
func runMediaInfo(args []string) error {
	fs := flag.NewFlagSet("media-info", flag.ContinueOnError)
	configPath := fs.String("config", config.ConfigFilePath, "Path to configuration file")
	channelID := fs.String("channel", "", "Channel id")
	date := fs.String("date", "", "Date YYYY-MM-DD (default: today)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *channelID == "" {
		return fmt.Errorf("media-info requires --channel")
	}

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	chCfg := cfg.Channel(*channelID)

	d := *date
	if d == "" {
		d = clock.Real{}.Now().Format("2006-01-02")
	}
	path, err := playlist.Path(chCfg.Playlist.PlaylistRoot, d)
	if err != nil {
		return err
	}
	pl, err := playlist.Load(path)
	if err != nil {
		return fmt.Errorf("load playlist: %w", err)
	}

	secOfDay := clock.Real{}.SecOfDay()
	var elapsed float64
	for _, item := range pl.Program {
		dur := item.Out - item.In
		if secOfDay < elapsed+dur {
			fmt.Printf("source:   %s\n", item.Source)
			fmt.Printf("title:    %s\n", derefOr(item.Title, ""))
			fmt.Printf("category: %s\n", derefOr(item.Category, "normal"))
			fmt.Printf("in/out:   %.2f / %.2f\n", item.In, item.Out)
			return nil
		}
		elapsed += dur
	}
	fmt.Println("no item scheduled at the current time")
	return nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// runNext reports that live next-item control has no cross-process
// surface in this build, per internal/rpc's documented scope (text
// overlay only; next/previous-item control is a direct Go method call
// into a live channel.Manager, not a wire protocol).
func runNext(args []string) error {
	fs := flag.NewFlagSet("next", flag.ContinueOnError)
	channelID := fs.String("channel", "", "Channel id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *channelID == "" {
		return fmt.Errorf("next requires --channel")
	}
	return fmt.Errorf("next-item control requires in-process access to channel.Manager; not available across processes in this build")
}

func runSetup(args []string) error {
	m := menu.CreateMainMenu()
	return m.Display()
}

func runDiagnose(args []string) error {
	fs := flag.NewFlagSet("diagnose", flag.ContinueOnError)
	configPath := fs.String("config", config.ConfigFilePath, "Path to configuration file")
	quick := fs.Bool("quick", false, "Run only essential checks")
	jsonOutput := fs.Bool("json", false, "Print report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := diagnostics.DefaultOptions()
	opts.ConfigPath = *configPath
	if *quick {
		opts.Mode = diagnostics.ModeQuick
	}

	runner := diagnostics.NewRunner(opts)
	report, err := runner.Run(context.Background())
	if err != nil {
		return fmt.Errorf("diagnostics failed: %w", err)
	}

	if *jsonOutput {
		data, err := report.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	diagnostics.PrintReport(os.Stdout, report)
	if !report.Healthy {
		return fmt.Errorf("diagnostics found unhealthy conditions")
	}
	return nil
}

func runUpdate(args []string) error {
	checkOnly := false
	force := false
	for _, arg := range args {
		switch arg {
		case "--check":
			checkOnly = true
		case "--force":
			force = true
		}
	}

	fmt.Println("ffplayout Update")
	fmt.Println("================")
	fmt.Println()

	u := updater.New(
		updater.WithOwner(updater.DefaultOwner),
		updater.WithRepo(updater.DefaultRepo),
		updater.WithCurrentVersion(Version),
	)

	ctx := context.Background()
	fmt.Println("Checking for updates...")
	info, err := u.CheckForUpdates(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	fmt.Println(updater.FormatUpdateInfo(info))

	if !info.UpdateAvailable {
		return nil
	}
	if checkOnly {
		fmt.Println("\nRun 'ffplayout update' without --check to install the update.")
		return nil
	}

	if !force {
		fmt.Print("Download and install update? [y/N]: ")
		var response string
		_, _ = fmt.Scanln(&response)
		if strings.ToLower(response) != "y" {
			fmt.Println("Update cancelled.")
			return nil
		}
	}

	binaryPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to determine binary path: %w", err)
	}
	binaryPath, err = filepath.EvalSymlinks(binaryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve binary path: %w", err)
	}
	if strings.HasPrefix(binaryPath, "/usr/") && os.Geteuid() != 0 {
		return fmt.Errorf("update requires root privileges for %s (run with sudo)", binaryPath)
	}

	fmt.Println()
	fmt.Println("Downloading update...")
	lastPercent := 0
	progress := func(downloaded, total int64) {
		if total > 0 {
			percent := int(float64(downloaded) / float64(total) * 100)
			if percent > lastPercent+5 || percent == 100 {
				fmt.Printf("\rProgress: %d%%", percent)
				lastPercent = percent
			}
		}
	}

	if err := u.Update(ctx, info, binaryPath, progress); err != nil {
		fmt.Println()
		if u.HasBackup(binaryPath) {
			fmt.Println("Update failed. Rolling back...")
			if rbErr := u.Rollback(binaryPath); rbErr != nil {
				return fmt.Errorf("update failed (%w) and rollback failed (%w)", err, rbErr)
			}
			fmt.Println("Rolled back to previous version.")
		}
		return fmt.Errorf("update failed: %w", err)
	}

	fmt.Println()
	fmt.Printf("Successfully updated to %s!\n", info.LatestVersion)
	fmt.Println("Restart ffplayout to use the new version.")
	return nil
}

func runInstallMediaMTX(args []string) error {
	fs := flag.NewFlagSet("install-mediamtx", flag.ContinueOnError)
	apiAddr := fs.String("api", "http://localhost:9997", "MediaMTX control API address to verify after install")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("ffplayout: MediaMTX installation is a system-package operation")
	fmt.Println("(systemd unit + binary download); verifying reachability of an")
	fmt.Println("already-installed instance instead of performing the install here.")

	client := mediamtx.NewClient(*apiAddr)
	if err := client.Ping(context.Background()); err != nil {
		return fmt.Errorf("MediaMTX not reachable at %s: %w", *apiAddr, err)
	}
	fmt.Printf("MediaMTX reachable at %s\n", *apiAddr)
	return nil
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	from := fs.String("from", "", "Legacy config file to migrate")
	to := fs.String("to", config.ConfigFilePath, "Destination YAML config path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from == "" {
		return fmt.Errorf("migrate requires --from")
	}

	cfg, err := config.LoadConfig(*from)
	if err != nil {
		return fmt.Errorf("read legacy config %s as YAML: %w (only YAML-compatible sources are supported)", *from, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("legacy configuration invalid: %w", err)
	}
	if err := cfg.Save(*to); err != nil {
		return fmt.Errorf("write %s: %w", *to, err)
	}
	fmt.Printf("migrated %s -> %s\n", *from, *to)
	return nil
}

func runTest(args []string) error {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	configPath := fs.String("config", config.ConfigFilePath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	for id := range cfg.Channels {
		chCfg := cfg.Channel(id)
		if err := chCfg.Validate(); err != nil {
			return fmt.Errorf("channel %q: %w", id, err)
		}
	}
	fmt.Println("configuration OK, no changes made")
	return nil
}

func runMenu(args []string) error {
	return menu.CreateMainMenu().Display()
}
