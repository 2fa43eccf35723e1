// SPDX-License-Identifier: MIT

// Package clock provides the wall-clock time source for the broadcast
// schedule: the playlist state machine, the channel manager's choice of
// playlist date and the media-info command read the current time through
// a Clock, so the schedule is deterministic given a Clock and a playlist,
// which is what makes the scheduler's state machine reproducible in
// tests. Timing outside the schedule (timeouts, retry windows, lock
// acquisition, health and backup timestamps) reads time.Now directly.
package clock

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Clock is the time source used by the scheduler, the playlist state
// machine and the player. A real deployment uses Real; tests and the
// debug "--fake-time" CLI flag use an offset applied on top of Real so
// that wall-clock-sensitive code can be exercised deterministically.
type Clock interface {
	// Now returns the current local wall-clock time.
	Now() time.Time

	// SecOfDay returns seconds since local midnight, including the
	// sub-second fraction, for the current Now().
	SecOfDay() float64
}

// Real is the production Clock: it reads the OS clock, adjusted by a
// process-wide fake-time offset when one has been set via SetFakeOffset.
type Real struct{}

// offset is nil when no fake-time override is active. Stored as a pointer
// to a time.Duration so the zero value (no override) is a plain nil load,
// matching the "no other mutable global state beyond a process-wide
// mock-clock offset" rule.
var offset atomic.Pointer[time.Duration]

// SetFakeOffset parses an RFC-3339 timestamp and records the difference
// between the real current time and that timestamp; every subsequent call
// to Now() subtracts this offset, making the program believe it is running
// at the given instant. Each call replaces the offset set by an earlier
// one. Intended for the debug --fake-time CLI flag
// only (see cmd/ffplayout), gated at the call site behind
// FFPLAYOUT_ALLOW_FAKE_TIME so that production deployments cannot
// accidentally enable it.
func SetFakeOffset(rfc3339 string) error {
	mock, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return fmt.Errorf("invalid --fake-time value %q, want RFC3339 (e.g. 2024-10-27T00:59:00+02:00): %w", rfc3339, err)
	}
	d := time.Now().Sub(mock)
	offset.Store(&d)
	return nil
}

// ClearFakeOffset removes any fake-time override. Used by tests that share
// a process with other tests exercising SetFakeOffset.
func ClearFakeOffset() {
	offset.Store(nil)
}

// Now returns the real wall-clock time, minus any active fake-time offset.
func (Real) Now() time.Time {
	if d := offset.Load(); d != nil {
		return time.Now().Add(-*d)
	}
	return time.Now()
}

// SecOfDay returns seconds since local midnight for Now(), including the
// sub-second fraction.
func (r Real) SecOfDay() float64 {
	return SecOfDay(r.Now())
}

// SecOfDay computes seconds since local midnight for an arbitrary instant.
// Exported so PlaylistSource can derive the same figure for a playlist's
// "modified" timestamps without going through a Clock value.
func SecOfDay(t time.Time) float64 {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return t.Sub(midnight).Seconds()
}

// Mock is a Clock with an explicit, test-controlled instant. Unlike Real's
// process-wide fake offset, Mock is a plain value usable concurrently by
// independent tests without interfering with each other.
type Mock struct {
	At time.Time
}

// NewMock returns a Mock fixed at the given instant.
func NewMock(at time.Time) *Mock { return &Mock{At: at} }

// Now returns the mock's fixed instant.
func (m *Mock) Now() time.Time { return m.At }

// SecOfDay returns seconds since local midnight for the mock's instant.
func (m *Mock) SecOfDay() float64 { return SecOfDay(m.At) }

// Advance moves the mock clock forward by d.
func (m *Mock) Advance(d time.Duration) { m.At = m.At.Add(d) }
