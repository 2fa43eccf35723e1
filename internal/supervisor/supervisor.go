// Package supervisor provides a supervision tree for managing multiple
// channel managers (or any long-running Service), backed by
// github.com/thejerf/suture/v4 for the actual restart/backoff/graceful-
// shutdown scheduling. The public API (Service, Config, Add/Remove/
// Status/Run) is kept stable across that swap so callers that built
// against the hand-rolled version don't need to change.
//
// Example:
//
//	sup := supervisor.New(supervisor.Config{
//	    ShutdownTimeout: 10 * time.Second,
//	})
//
//	sup.Add(channelManager1)
//	sup.Add(channelManager2)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	if err := sup.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
)

// Service is the interface that supervised services must implement.
// Implementations should block until the context is cancelled or an
// error occurs. channel.Manager satisfies it directly: its Run delegates
// to Serve and its Name returns the channel id, so no adapter is needed.
type Service interface {
	// Run starts the service. It should block until ctx is cancelled or
	// the service encounters an unrecoverable error.
	Run(ctx context.Context) error

	// Name returns the service's identifier.
	Name() string
}

// ServiceState represents the current state of a supervised service.
type ServiceState int

const (
	ServiceStateIdle     ServiceState = iota // Not started
	ServiceStateRunning                      // Running normally
	ServiceStateStopping                     // Being stopped
	ServiceStateFailed                       // Failed, may restart
	ServiceStateStopped                      // Stopped, terminal
)

func (s ServiceState) String() string {
	switch s {
	case ServiceStateIdle:
		return "idle"
	case ServiceStateRunning:
		return "running"
	case ServiceStateStopping:
		return "stopping"
	case ServiceStateFailed:
		return "failed"
	case ServiceStateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ServiceStatus contains status information about a supervised service.
type ServiceStatus struct {
	Name      string
	State     ServiceState
	StartTime time.Time
	Uptime    time.Duration
	Restarts  int
	LastError error
}

// Config contains supervisor configuration.
type Config struct {
	// Name identifies this supervisor to suture's own event/logging
	// machinery; purely cosmetic.
	Name string

	// ShutdownTimeout is the maximum time to wait for services to stop
	// gracefully, passed through as suture.Spec.Timeout.
	ShutdownTimeout time.Duration

	// RestartDelay is the flat backoff suture waits after a service
	// exits with an error before restarting it (suture.Spec.FailureBackoff).
	RestartDelay time.Duration

	// MaxRestartDelay and RestartMultiplier describe the restart-backoff
	// ceiling and growth rate this supervisor is configured for. suture's
	// own backoff model (FailureDecay/FailureThreshold + a flat
	// FailureBackoff) doesn't expose a multiplicative series directly, so
	// these are accepted for API compatibility and operator-facing
	// config and are not currently translated into suture.Spec fields.
	MaxRestartDelay   time.Duration
	RestartMultiplier float64

	// Logger is optional; if set, supervisor events are logged here.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ShutdownTimeout:   10 * time.Second,
		RestartDelay:      1 * time.Second,
		MaxRestartDelay:   5 * time.Minute,
		RestartMultiplier: 2.0,
	}
}

// Supervisor manages a collection of services, restarting them on
// failure via an internal suture.Supervisor.
type Supervisor struct {
	cfg    Config
	suture *suture.Supervisor

	mu      sync.RWMutex
	entries map[string]*entry
	running bool
}

// entry tracks a single service's status-reporting state; the actual
// scheduling/restart decision belongs to suture.
type entry struct {
	name      string
	token     suture.ServiceToken
	state     ServiceState
	startTime time.Time
	restarts  int
	lastError error
}

// serviceAdapter bridges Service (Run/Name) to suture.Service
// (Serve/String) and updates the entry's status fields around each run.
type serviceAdapter struct {
	sup   *Supervisor
	entry *entry
	svc   Service
}

func (a *serviceAdapter) String() string { return a.entry.name }

func (a *serviceAdapter) Serve(ctx context.Context) error {
	a.sup.mu.Lock()
	a.entry.state = ServiceStateRunning
	a.entry.startTime = time.Now()
	a.sup.mu.Unlock()

	err := a.svc.Run(ctx)

	a.sup.mu.Lock()
	switch {
	case ctx.Err() != nil:
		a.entry.state = ServiceStateStopped
	case err != nil:
		a.entry.state = ServiceStateFailed
		a.entry.lastError = err
		a.entry.restarts++
		a.sup.logf("Service %s failed (restarts=%d): %v", a.entry.name, a.entry.restarts, err)
	default:
		a.entry.state = ServiceStateStopped
	}
	a.sup.mu.Unlock()

	return err
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 1 * time.Second
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = 5 * time.Minute
	}
	if cfg.RestartMultiplier == 0 {
		cfg.RestartMultiplier = 2.0
	}

	name := cfg.Name
	if name == "" {
		name = "ffplayout"
	}

	s := &Supervisor{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
	s.suture = suture.New(name, suture.Spec{
		Timeout:        cfg.ShutdownTimeout,
		FailureBackoff: cfg.RestartDelay,
	})
	return s
}

func (s *Supervisor) logf(format string, args ...interface{}) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Info(fmt.Sprintf(format, args...))
	}
}

// Add registers a service with the supervisor. If the supervisor is
// already running, suture starts it immediately. Returns an error if a
// service with the same name already exists.
func (s *Supervisor) Add(svc Service) error {
	name := svc.Name()

	s.mu.Lock()
	if _, exists := s.entries[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("service %q already registered", name)
	}
	e := &entry{name: name, state: ServiceStateIdle}
	s.entries[name] = e
	s.mu.Unlock()

	token := s.suture.Add(&serviceAdapter{sup: s, entry: e, svc: svc})

	s.mu.Lock()
	e.token = token
	s.mu.Unlock()

	s.logf("Added service: %s", name)
	return nil
}

// Remove unregisters and stops a service.
func (s *Supervisor) Remove(name string) error {
	s.mu.Lock()
	e, exists := s.entries[name]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("service %q not found", name)
	}
	delete(s.entries, name)
	s.mu.Unlock()

	s.logf("Removed service: %s", name)
	return s.suture.Remove(e.token)
}

// Status returns the current status of all services.
func (s *Supervisor) Status() []ServiceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ServiceStatus, 0, len(s.entries))
	now := time.Now()
	for name, e := range s.entries {
		var uptime time.Duration
		if e.state == ServiceStateRunning && !e.startTime.IsZero() {
			uptime = now.Sub(e.startTime)
		}
		result = append(result, ServiceStatus{
			Name:      name,
			State:     e.state,
			StartTime: e.startTime,
			Uptime:    uptime,
			Restarts:  e.restarts,
			LastError: e.lastError,
		})
	}
	return result
}

// ServiceCount returns the number of registered services.
func (s *Supervisor) ServiceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Run starts all registered services and blocks until ctx is cancelled,
// delegating the run loop, restart backoff, and graceful shutdown to
// the underlying suture.Supervisor.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("supervisor already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logf("Supervisor started with %d services", s.ServiceCount())

	err := s.suture.Serve(ctx)

	s.mu.Lock()
	s.running = false
	for _, e := range s.entries {
		if e.state == ServiceStateRunning {
			e.state = ServiceStateStopped
		}
	}
	s.mu.Unlock()

	s.logf("All services stopped")
	return err
}
