// SPDX-License-Identifier: MIT

// Package playlist implements the dated-playlist JSON schema, the
// PlaylistSource state machine and m3u/text import, per spec §4.3 and §6.
package playlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// JSONPlaylist matches spec §6's Playlist JSON schema field-for-field.
type JSONPlaylist struct {
	Channel  string   `json:"channel"`
	Date     string   `json:"date"`
	Path     *string  `json:"path,omitempty"`
	StartSec *float64 `json:"start_sec,omitempty"`
	Length   *float64 `json:"length,omitempty"`
	Modified *string  `json:"modified,omitempty"`
	Program  []Item   `json:"program"`
}

// Item is one entry of a JSONPlaylist's program array. `In` corresponds to
// an Item's seek offset (spec §6: "`in` corresponds to `seek`").
type Item struct {
	In           float64 `json:"in"`
	Out          float64 `json:"out"`
	Duration     float64 `json:"duration"`
	Source       string  `json:"source"`
	Category     *string `json:"category,omitempty"`
	CustomFilter *string `json:"custom_filter,omitempty"`
	Title        *string `json:"title,omitempty"`
}

// Path returns the on-disk location of a dated playlist under root,
// matching spec §3: "<root>/<YYYY>/<MM>/<YYYY-MM-DD>.json".
func Path(root, date string) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("invalid playlist date %q: %w", date, err)
	}
	return filepath.Join(root, strconv.Itoa(t.Year()), fmt.Sprintf("%02d", t.Month()), date+".json"), nil
}

// Load reads and parses a dated playlist JSON file.
func Load(path string) (*JSONPlaylist, error) {
	// #nosec G304 - path is derived from channel config + date, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pl JSONPlaylist
	if err := json.Unmarshal(data, &pl); err != nil {
		return nil, err
	}
	return &pl, nil
}

// Save writes a dated playlist JSON file, creating parent directories as
// needed.
func Save(path string, pl *JSONPlaylist) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil { // #nosec G301
		return err
	}
	data, err := json.MarshalIndent(pl, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0640) // #nosec G306
}
