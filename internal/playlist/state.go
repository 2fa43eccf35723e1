// SPDX-License-Identifier: MIT

package playlist

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ffplayout/ffplayout-sub002/internal/clock"
	"github.com/ffplayout/ffplayout-sub002/internal/config"
	"github.com/ffplayout/ffplayout-sub002/internal/media"
	"github.com/ffplayout/ffplayout-sub002/internal/xerrors"
)

// State is one of the five states of the PlaylistSource state machine
// (spec §4.3): Initial -> Seeking -> Playing -> Crossing -> Terminal.
type State int

const (
	StateInitial State = iota
	StateSeeking
	StatePlaying
	StateCrossing
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateSeeking:
		return "seeking"
	case StatePlaying:
		return "playing"
	case StateCrossing:
		return "crossing"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Source is the PlaylistSource iterator.
type Source struct {
	clock   clock.Clock
	cfg     config.Channel
	channel string

	state   State
	date    string
	daySec  float64 // day_start, seconds since midnight
	length  float64 // configured broadcast day length, seconds; 0 = "none" (unbounded)

	program []media.Item
	cursor  int
	mtime   time.Time
}

// New constructs a Source for channel, starting at date (YYYY-MM-DD).
func New(clk clock.Clock, cfg config.Channel, channel, date string) (*Source, error) {
	daySec, err := parseHMS(cfg.Playlist.DayStart)
	if err != nil {
		return nil, fmt.Errorf("%w: day_start: %v", xerrors.ErrConfigInvalid, err)
	}

	length := 0.0
	if cfg.Playlist.Length != "" && cfg.Playlist.Length != "none" {
		length, err = parseHMS(cfg.Playlist.Length)
		if err != nil {
			return nil, fmt.Errorf("%w: length: %v", xerrors.ErrConfigInvalid, err)
		}
	}

	return &Source{
		clock:  clk,
		cfg:    cfg,
		channel: channel,
		state:  StateInitial,
		date:   date,
		daySec: daySec,
		length: length,
	}, nil
}

func parseHMS(s string) (float64, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		return 0, err
	}
	return float64(h*3600 + m*60 + sec), nil
}

// State returns the source's current state.
func (s *Source) State() State { return s.state }

// Start performs the Initial and Seeking transitions: it loads (or
// synthesizes) today's playlist and positions the cursor at "now".
func (s *Source) Start() (media.Item, error) {
	if err := s.loadOrSynthesize(); err != nil {
		return media.Item{}, err
	}
	s.state = StateSeeking
	return s.seekToNow()
}

func (s *Source) playlistPath() (string, error) {
	return Path(s.cfg.Playlist.PlaylistRoot, s.date)
}

func (s *Source) loadOrSynthesize() error {
	path, err := s.playlistPath()
	if err != nil {
		return err
	}

	pl, err := Load(path)
	if err != nil {
		// Missing or unparseable playlist: synthesize a filler-only
		// playlist for the full length window (spec §4.3 "Initial",
		// §7 PlaylistParse policy).
		s.program = []media.Item{s.fillerItem(s.length)}
		s.cursor = 0
		return nil
	}

	if info, statErr := os.Stat(path); statErr == nil {
		s.mtime = info.ModTime()
	}

	items := make([]media.Item, 0, len(pl.Program))
	begin := 0.0
	for _, it := range pl.Program {
		m := it.ToMediaItem()
		m.Begin = begin
		items = append(items, m)
		begin += m.PlayedDuration()
	}
	if len(items) == 0 {
		items = []media.Item{s.fillerItem(s.length)}
	}
	s.program = items
	s.cursor = 0
	return nil
}

func (s *Source) fillerItem(duration float64) media.Item {
	if duration <= 0 {
		duration = 86400
	}
	return media.Item{
		Source:   s.cfg.Storage.Filler,
		Category: media.CategoryFiller,
		Seek:     0,
		Out:      duration,
		Duration: duration,
	}
}

// seekToNow implements the Seeking state: compute t = now_sec_of_day -
// day_start (mod length), walk items accumulating played duration until
// the active item is found, per spec §4.3.
func (s *Source) seekToNow() (media.Item, error) {
	t := s.clock.SecOfDay() - s.daySec
	if s.length > 0 {
		t = math.Mod(t+s.length, s.length)
	}
	if t < 0 {
		t = 0
	}

	acc := 0.0
	for i, item := range s.program {
		played := item.PlayedDuration()
		if t < acc+played {
			s.cursor = i
			offset := t - acc
			if offset < 0 {
				offset = 0
			}
			item.Seek += offset
			if item.Seek > item.Out {
				item.Seek = item.Out
			}
			s.program[i] = item
			s.state = StatePlaying
			return item, nil
		}
		acc += played
	}

	// t lies beyond the program's total accumulated duration: the
	// schedule doesn't cover "now" at all. Synthesize a filler sized to
	// the actual gap (spec §8 scenario 2) rather than defaulting to a
	// full day, and append it so Next() resumes the playlist from the
	// top (or tomorrow, per Infinit/Loop) once it plays out.
	s.program = append(s.program, s.fillerItem(t-acc))
	s.cursor = len(s.program) - 1
	s.state = StatePlaying
	return s.program[s.cursor], nil
}

// Current returns the item currently at the cursor.
func (s *Source) Current() (media.Item, bool) {
	if s.cursor < 0 || s.cursor >= len(s.program) {
		return media.Item{}, false
	}
	return s.program[s.cursor], true
}

// Next implements the Playing -> Playing/Crossing/Terminal transitions:
// it compares wall-clock to the expected begin time of the next item and
// applies the delta-correction rules from spec §4.3.
func (s *Source) Next() (media.Item, error) {
	if s.state == StateTerminal {
		return media.Item{}, fmt.Errorf("playlist source is terminal")
	}

	s.checkReload()

	nextIdx := s.cursor + 1
	if nextIdx >= len(s.program) {
		if s.cfg.Playlist.Infinit {
			s.cursor = 0
			return s.applyDelta(s.program[0])
		}
		if s.cfg.Playlist.Loop {
			s.state = StateCrossing
			if err := s.crossToNextDay(); err != nil {
				return media.Item{}, err
			}
			return s.seekToNow()
		}
		s.state = StateTerminal
		return media.Item{}, fmt.Errorf("playlist source reached its end")
	}

	s.cursor = nextIdx
	return s.applyDelta(s.program[nextIdx])
}

// applyDelta implements the delta-correction table from spec §4.3
// "Playing": tolerance, stop_threshold, trim, extend.
func (s *Source) applyDelta(item media.Item) (media.Item, error) {
	now := s.clock.SecOfDay() - s.daySec
	delta := now - item.Begin
	delta = roundDelta(delta, s.cfg.Playlist.DeltaRoundingFPS)

	tolerance := s.cfg.Playlist.Tolerance
	stopThreshold := s.cfg.Playlist.StopThreshold

	switch {
	case math.Abs(delta) < tolerance:
		// proceed unchanged
	case delta > stopThreshold:
		filler := s.fillerItem(delta)
		return filler, fmt.Errorf("%w: delta %.2fs exceeds stop_threshold %.2fs", xerrors.ErrClockDrift, delta, stopThreshold)
	case delta > 0:
		// late relative to schedule by a tolerable amount: trim.
		item.Out -= delta
		if item.Out < item.Seek {
			item.Out = item.Seek
		}
	case delta < 0:
		// ahead of schedule: extend, up to duration.
		extend := -delta
		newOut := item.Out + extend
		if item.Duration > 0 && newOut > item.Duration {
			newOut = item.Duration
		}
		item.Out = newOut
	}

	s.program[s.cursor] = item
	return item, nil
}

// roundDelta resolves the Open Question on delta-correction rounding
// (spec §9): fps <= 0 means second-precision rounding (the default);
// fps > 0 rounds to the nearest 1/fps frame boundary.
func roundDelta(delta float64, fps int) float64 {
	if fps <= 0 {
		return math.Round(delta)
	}
	frame := 1.0 / float64(fps)
	return math.Round(delta/frame) * frame
}

// crossToNextDay implements the Crossing state: re-reads tomorrow's
// playlist fresh and advances the date identifier exactly once.
func (s *Source) crossToNextDay() error {
	t, err := time.Parse("2006-01-02", s.date)
	if err != nil {
		return fmt.Errorf("%w: invalid current date %q", xerrors.ErrPlaylistParse, s.date)
	}
	s.date = t.AddDate(0, 0, 1).Format("2006-01-02")
	return s.loadOrSynthesize()
}

// checkReload implements the reload policy (spec §4.3): the playlist
// file's mtime is checked at each boundary crossing; a newer file
// replaces the in-memory sequence from the next non-playing item
// forward, never mutating the currently playing item.
func (s *Source) checkReload() {
	path, err := s.playlistPath()
	if err != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.ModTime().After(s.mtime) {
		return
	}

	pl, err := Load(path)
	if err != nil {
		return
	}

	current := s.program[:s.cursor+1]
	items := make([]media.Item, 0, len(pl.Program))
	begin := 0.0
	if s.cursor >= 0 && s.cursor < len(s.program) {
		begin = s.program[s.cursor].Begin + s.program[s.cursor].PlayedDuration()
	}
	for _, it := range pl.Program {
		m := it.ToMediaItem()
		m.Begin = begin
		items = append(items, m)
		begin += m.PlayedDuration()
	}

	s.program = append(append([]media.Item{}, current...), items...)
	s.mtime = info.ModTime()
}

// Date returns the date identifier (YYYY-MM-DD) of the playlist currently
// being served.
func (s *Source) Date() string { return s.date }
