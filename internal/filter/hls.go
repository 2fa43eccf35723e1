// SPDX-License-Identifier: MIT

package filter

import (
	"fmt"
	"os"

	"github.com/mogiioin/hls-m3u8/m3u8"
)

// HLSPlaylistStatus summarizes a written HLS media playlist for the
// reload-health check described in spec §4.2 ("HLS output"): ffmpeg's own
// hls muxer owns segment writing, and the channel manager polls the
// playlist to log a warning when the muxer has stopped advancing (stale
// sequence number); the encoder is not restarted on that signal.
type HLSPlaylistStatus struct {
	SegmentCount   int
	SeqNo          uint64
	LastSegIndex   uint64
	TargetDuration uint
}

// InspectHLSPlaylist decodes the media playlist ffmpeg's hls muxer writes to
// path and reports its current segment count and sequence number, grounded
// on mogiioin-hls-m3u8's reader (m3u8.DecodeFrom) — the only HLS-parsing
// library in the corpus.
func InspectHLSPlaylist(path string) (HLSPlaylistStatus, error) {
	f, err := os.Open(path) // #nosec G304 -- path is the channel's own configured HLS output directory
	if err != nil {
		return HLSPlaylistStatus{}, fmt.Errorf("open HLS playlist: %w", err)
	}
	defer func() { _ = f.Close() }()

	pl, listType, err := m3u8.DecodeFrom(f, false)
	if err != nil {
		return HLSPlaylistStatus{}, fmt.Errorf("decode HLS playlist: %w", err)
	}
	if listType != m3u8.MEDIA {
		return HLSPlaylistStatus{}, fmt.Errorf("expected HLS media playlist, got master playlist")
	}

	media, ok := pl.(*m3u8.MediaPlaylist)
	if !ok {
		return HLSPlaylistStatus{}, fmt.Errorf("unexpected playlist type %T", pl)
	}

	count := 0
	for _, seg := range media.Segments {
		if seg != nil {
			count++
		}
	}

	return HLSPlaylistStatus{
		SegmentCount:   count,
		SeqNo:          media.SeqNo,
		LastSegIndex:   media.LastSegIndex(),
		TargetDuration: media.TargetDuration,
	}, nil
}

// HLSStalled reports whether the playlist at path has not advanced past
// lastSeenSeq, indicating ffmpeg's hls muxer has stopped writing new
// segments even though the encoder process is still alive.
func HLSStalled(path string, lastSeenSeq uint64) (stalled bool, currentSeq uint64, err error) {
	status, err := InspectHLSPlaylist(path)
	if err != nil {
		return false, 0, err
	}
	return status.SeqNo <= lastSeenSeq && status.SegmentCount > 0, status.SeqNo, nil
}
