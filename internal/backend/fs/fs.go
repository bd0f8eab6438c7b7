// Package fs implements a filesystem-based library backend for cbz-edit.
// It treats every immediate subdirectory of the root as a series and every
// .cbz file inside it as a chapter, and keeps the result in memory.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/banux/cbz-edit/internal/catalog"
	"github.com/banux/cbz-edit/internal/filename"
)

// Backend is a filesystem-based library backend.
// It scans the root directory on creation (or on Refresh).
type Backend struct {
	root string
	log  zerolog.Logger

	mu        sync.RWMutex
	series    []catalog.Series
	byName    map[string]int // series name -> index in series
	scannedAt time.Time
}

// New creates a new filesystem backend rooted at dir and performs an initial scan.
func New(dir string, logger zerolog.Logger) (*Backend, error) {
	b := &Backend{
		root:   dir,
		log:    logger.With().Str("component", "fs").Logger(),
		byName: make(map[string]int),
	}
	if err := b.Refresh(); err != nil {
		return nil, err
	}
	return b, nil
}

// Root implements catalog.Library.
func (b *Backend) Root() string { return b.root }

// Series implements catalog.Library. The returned slice is a copy.
func (b *Backend) Series() ([]catalog.Series, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]catalog.Series, len(b.series))
	for i, s := range b.series {
		out[i] = copySeries(s)
	}
	return out, nil
}

// SeriesByName implements catalog.Library.
func (b *Backend) SeriesByName(name string) (*catalog.Series, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	i, ok := b.byName[name]
	if !ok {
		return nil, fmt.Errorf("series %q: %w", name, catalog.ErrNotFound)
	}
	s := copySeries(b.series[i])
	return &s, nil
}

// ScannedAt returns the time of the last successful scan.
func (b *Backend) ScannedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scannedAt
}

// Refresh re-scans the root directory and rebuilds the in-memory index.
func (b *Backend) Refresh() error {
	start := time.Now()
	series, err := Scan(b.root)
	if err != nil {
		return err
	}

	byName := make(map[string]int, len(series))
	chapters := 0
	for i, s := range series {
		byName[s.Name] = i
		chapters += len(s.Chapters)
	}

	b.mu.Lock()
	b.series = series
	b.byName = byName
	b.scannedAt = time.Now()
	b.mu.Unlock()

	b.log.Debug().
		Int("series", len(series)).
		Int("chapters", chapters).
		Dur("elapsed", time.Since(start)).
		Msg("library scanned")
	return nil
}

// Scan reads the library at root: each immediate subdirectory is a series
// and each .cbz file directly inside it a chapter. Hidden directories are
// skipped. Series are sorted by name, chapters by number then path.
func Scan(root string) ([]catalog.Series, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scanning directory %q: %w", root, err)
	}

	var series []catalog.Series
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		chapters, err := scanSeries(dir)
		if err != nil {
			return nil, err
		}
		series = append(series, catalog.Series{
			Name:     e.Name(),
			Path:     dir,
			Chapters: chapters,
		})
	}

	sort.Slice(series, func(i, j int) bool { return series[i].Name < series[j].Name })
	return series, nil
}

func scanSeries(dir string) ([]catalog.Chapter, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning series %q: %w", dir, err)
	}

	chapters := []catalog.Chapter{}
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), catalog.ArchiveExt) {
			continue
		}
		chapters = append(chapters, filename.Parse(filepath.Join(dir, e.Name()), e.Name()))
	}
	catalog.SortChapters(chapters)
	return chapters, nil
}

func copySeries(s catalog.Series) catalog.Series {
	chapters := make([]catalog.Chapter, len(s.Chapters))
	copy(chapters, s.Chapters)
	s.Chapters = chapters
	return s
}
