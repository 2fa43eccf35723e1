// SPDX-License-Identifier: MIT

package playlist

import "github.com/ffplayout/ffplayout-sub002/internal/media"

// ToMediaItem converts a playlist JSON Item into a media.Item, applying the
// defaults spec §6 implies for the optional fields.
func (it Item) ToMediaItem() media.Item {
	category := media.CategoryNormal
	if it.Category != nil {
		category = media.Category(*it.Category)
	}

	var customFilter, title string
	if it.CustomFilter != nil {
		customFilter = *it.CustomFilter
	}
	if it.Title != nil {
		title = *it.Title
	}

	return media.Item{
		Source:       it.Source,
		Category:     category,
		CustomFilter: customFilter,
		Title:        title,
		Seek:         it.In,
		Out:          it.Out,
		Duration:     it.Duration,
	}
}

// FromMediaItem converts a media.Item back into a playlist JSON Item,
// omitting optional fields that were never set so a round-trip preserves
// field presence (spec P6).
func FromMediaItem(m media.Item) Item {
	it := Item{
		In:       m.Seek,
		Out:      m.Out,
		Duration: m.Duration,
		Source:   m.Source,
	}
	if m.Category != "" && m.Category != media.CategoryNormal {
		cat := string(m.Category)
		it.Category = &cat
	}
	if m.CustomFilter != "" {
		cf := m.CustomFilter
		it.CustomFilter = &cf
	}
	if m.Title != "" {
		title := m.Title
		it.Title = &title
	}
	return it
}
