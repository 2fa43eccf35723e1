// SPDX-License-Identifier: MIT

// Package folder implements FolderSource: the storage-directory media
// iterator used in folder play mode (spec §4.4), as an alternative to the
// dated-playlist PlaylistSource.
package folder

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ffplayout/ffplayout-sub002/internal/config"
	"github.com/ffplayout/ffplayout-sub002/internal/media"
)

// Source iterates the files under a Channel's storage root, optionally
// shuffled, and watches the tree for additions/removals. Unlike
// playlist.Source it has no day-boundary or scheduled-begin concept: it is
// a plain infinite rotation, which is why folder mode always behaves as if
// `infinit: true` (spec §4.4, and Open Question decision #2).
type Source struct {
	mu        sync.Mutex
	root      string
	extensions map[string]struct{}
	shuffle   bool
	logger    *slog.Logger

	files  []string
	cursor int

	watcher *fsnotify.Watcher
}

// New indexes cfg.Storage.Root for files matching cfg.Storage.Extensions.
func New(cfg config.Channel, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ext := make(map[string]struct{}, len(cfg.Storage.Extensions))
	for _, e := range cfg.Storage.Extensions {
		ext[normalizeExt(e)] = struct{}{}
	}

	s := &Source{
		root:       cfg.Storage.Root,
		extensions: ext,
		shuffle:    cfg.Storage.Shuffle,
		logger:     logger,
	}
	if err := s.reindex(); err != nil {
		return nil, err
	}
	return s, nil
}

func normalizeExt(e string) string {
	e = strings.ToLower(e)
	if !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	return e
}

func (s *Source) reindex() error {
	var files []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := s.extensions[normalizeExt(filepath.Ext(path))]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index storage root %q: %w", s.root, err)
	}

	if s.shuffle {
		rand.Shuffle(len(files), func(i, j int) { files[i], files[j] = files[j], files[i] })
	} else {
		sort.Strings(files)
	}

	s.mu.Lock()
	s.files = files
	s.cursor = 0
	s.mu.Unlock()
	return nil
}

// Next returns the next media item in rotation, wrapping (and reshuffling,
// if shuffle is enabled) when the list is exhausted.
func (s *Source) Next() (media.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.files) == 0 {
		return media.Item{}, false
	}
	if s.cursor >= len(s.files) {
		s.cursor = 0
		if s.shuffle {
			rand.Shuffle(len(s.files), func(i, j int) { s.files[i], s.files[j] = s.files[j], s.files[i] })
		}
	}
	path := s.files[s.cursor]
	s.cursor++
	return media.Item{Source: path, Category: media.CategoryNormal}, true
}

// Watch starts a recursive fsnotify watch over root and reindexes on any
// create/remove/rename event; it blocks until ctx is cancelled. A rename is
// treated as delete+create: the tree is simply reindexed wholesale
// rather than patched incrementally, since folder media libraries are
// small enough that a full walk is cheap.
func (s *Source) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = w
	defer w.Close()

	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch storage root %q: %w", s.root, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0 {
				if err := s.reindex(); err != nil {
					s.logger.Error("folder reindex failed", "error", err, "root", s.root)
				}
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("folder watch error", "error", werr)
		}
	}
}

// Len reports the current number of indexed files.
func (s *Source) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}
