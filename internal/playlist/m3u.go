// SPDX-License-Identifier: MIT

package playlist

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ffplayout/ffplayout-sub002/internal/media"
)

// Import reads an m3u/text file (lines starting with "#" are comments,
// every other line is a source path or URL) and appends the probed
// entries to the target date's playlist, creating it if absent. Existing
// program entries are kept first, per spec §6 "Import".
//
// Grounded on original_source/engine/src/player/utils/import.rs: read,
// probe each line, drop zero-duration entries, concatenate existing-then-new.
func Import(ctx context.Context, prober *media.Prober, playlistRoot, channel, date, importPath string) (*JSONPlaylist, error) {
	// #nosec G304 - importPath is operator-supplied via CLI --import
	f, err := os.Open(importPath)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	imported := &JSONPlaylist{Channel: channel, Date: date}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		probe, err := prober.Probe(ctx, line)
		if err != nil || probe.Duration <= 0 {
			// A zero-duration (or unprobeable) entry is dropped, per
			// spec §6; probe failures here are local to the import,
			// not escalated.
			continue
		}

		imported.Program = append(imported.Program, Item{
			In:       0,
			Out:      probe.Duration,
			Duration: probe.Duration,
			Source:   line,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}

	path, err := Path(playlistRoot, date)
	if err != nil {
		return nil, err
	}

	existing, err := Load(path)
	if err == nil {
		// Existing program entries come first, per spec §6.
		imported.Program = append(existing.Program, imported.Program...)
	}

	if err := Save(path, imported); err != nil {
		return nil, fmt.Errorf("write imported playlist: %w", err)
	}

	return imported, nil
}
