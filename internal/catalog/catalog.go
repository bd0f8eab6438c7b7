// Package catalog provides the comic library abstraction for cbz-edit.
// It defines the core data types and the Library interface that backends implement.
package catalog

import (
	"errors"
	"path/filepath"
	"sort"
	"time"
)

// ErrNotFound is returned by lookups for series or chapters that are not
// in the library.
var ErrNotFound = errors.New("not found")

// ArchiveExt is the file extension of a chapter archive.
const ArchiveExt = ".cbz"

// Chapter is a single chapter archive as recovered from its filename.
// It is rebuilt on every scan and never written back.
type Chapter struct {
	// Path is the filesystem path to the .cbz file.
	Path string `json:"path"`

	// Volume is the volume number, nil when the filename carries none.
	Volume *uint32 `json:"volume,omitempty"`

	// Number is the chapter number (10.5 for half chapters), nil when unknown.
	Number *float64 `json:"number,omitempty"`

	// Title is the free text left over after structural tokens are removed.
	// Empty means no title could be recovered.
	Title string `json:"title,omitempty"`

	// Translators lists scanlation groups in filename order.
	Translators []string `json:"translators"`
}

// DisplayTitle returns the chapter title, falling back to the file name.
func (c Chapter) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return filepath.Base(c.Path)
}

// Series is a directory of chapters directly under the library root.
type Series struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Chapters []Chapter `json:"chapters"`
}

// SortChapters orders chapters by number ascending, ties broken by path.
// Chapters without a number sort before numbered ones.
func SortChapters(chapters []Chapter) {
	sort.SliceStable(chapters, func(i, j int) bool {
		a, b := chapters[i], chapters[j]
		switch {
		case a.Number == nil && b.Number != nil:
			return true
		case a.Number != nil && b.Number == nil:
			return false
		case a.Number != nil && b.Number != nil && *a.Number != *b.Number:
			return *a.Number < *b.Number
		}
		return a.Path < b.Path
	})
}

// Library is the interface that backend implementations must satisfy.
type Library interface {
	// Root returns the library root directory.
	Root() string

	// Series returns every series sorted by name.
	Series() ([]Series, error)

	// SeriesByName returns a single series by its directory name.
	SeriesByName(name string) (*Series, error)

	// Refresh rescans the library root and rebuilds the index.
	Refresh() error
}

// Revision records one rewrite attempt against a chapter archive.
type Revision struct {
	ID      string        `json:"id"`
	BatchID string        `json:"batchId"`
	Path    string        `json:"path"`
	Policy  string        `json:"policy"`
	Record  []byte        `json:"record,omitempty"` // candidate ComicInfo markup
	Error   string        `json:"error,omitempty"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`
}

// Journal is an optional interface for backends that keep an edit history.
type Journal interface {
	// Record stores a revision.
	Record(rev Revision) error

	// History returns revisions for path, newest first. An empty path
	// returns the whole history.
	History(path string, limit int) ([]Revision, error)
}
