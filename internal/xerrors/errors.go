// SPDX-License-Identifier: MIT

// Package xerrors defines the sentinel error kinds the playout core reports,
// and their propagation policy. Every kind below corresponds to one row of
// the error-handling table: callers wrap a sentinel with fmt.Errorf("%w")
// and attach channel/date/source context as slog attributes rather than by
// string interpolation, so a single log line remains machine-parseable.
package xerrors

import "errors"

var (
	// ErrProbeFailure: ffprobe could not determine a media item's duration
	// or streams. Local: substitute filler, log at warn.
	ErrProbeFailure = errors.New("probe failure")

	// ErrDecoderSpawn: the decoder child process failed to start or exited
	// with a fatal pattern. Fatal to the current item: retry once with
	// filler, then escalate.
	ErrDecoderSpawn = errors.New("decoder spawn failure")

	// ErrEncoderSpawn: the encoder child process failed to start. Fatal to
	// the channel: the channel manager transitions to Stopped and surfaces
	// the error to the caller.
	ErrEncoderSpawn = errors.New("encoder spawn failure")

	// ErrPipeIO: an error occurred copying bytes between child processes.
	// Local: close the current decoder, advance to the next item.
	ErrPipeIO = errors.New("pipe io failure")

	// ErrPlaylistParse: the playlist JSON for a date could not be parsed.
	// Local: synthesize a filler-only playlist for the date, log at error.
	ErrPlaylistParse = errors.New("playlist parse failure")

	// ErrConfigInvalid: the channel configuration failed validation. Fatal
	// at start (surfaced to the caller); during reload, the reload is
	// rejected and the previous snapshot remains live.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrClockDrift: the computed delta between wall-clock and schedule
	// exceeded stop_threshold. Local: synthesize a filler window.
	ErrClockDrift = errors.New("clock drift exceeds stop threshold")

	// ErrIngestFailure: the live ingest feed failed or disconnected
	// unexpectedly. Local: mark ingest_is_alive false, resume the decoder.
	ErrIngestFailure = errors.New("ingest failure")
)
