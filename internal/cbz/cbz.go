// Package cbz rewrites the ComicInfo.xml entry of CBZ archives. Every other
// entry is copied without being decompressed, so its bytes, compression
// method, permission bits and timestamps survive a rewrite unchanged.
//
// A rewrite builds the complete new archive in memory and only then replaces
// the original file. Nothing guards against two rewrites of the same path
// running at once; callers must serialize them.
package cbz

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"github.com/banux/cbz-edit/internal/comicinfo"
)

var (
	// ErrFilesystem wraps failures to read, write or rename archive files.
	ErrFilesystem = errors.New("cbz: filesystem error")

	// ErrArchiveFormat wraps failures caused by a corrupt or truncated archive.
	ErrArchiveFormat = errors.New("cbz: invalid archive")
)

// newEntryMode is the permission of a ComicInfo.xml entry added to an
// archive that had none.
const newEntryMode os.FileMode = 0o644

// Rewrite replaces the ComicInfo.xml entry of the archive at path with
// policy.Apply(existing, candidate), where existing is the decoded current
// entry or the empty record when there is none. The file is left untouched
// when any step fails.
func Rewrite(path string, candidate comicinfo.ComicInfo, policy comicinfo.Policy) error {
	return Rewriter{Logger: zerolog.Nop()}.Rewrite(path, candidate, policy)
}

// Rewriter is Rewrite with a logger. An existing record that cannot be
// decoded is replaced by the empty record and logged at debug level.
type Rewriter struct {
	Logger zerolog.Logger
}

// Rewrite works like the package-level Rewrite.
func (r Rewriter) Rewrite(path string, candidate comicinfo.ComicInfo, policy comicinfo.Policy) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %q: %w", ErrFilesystem, path, err)
	}

	log := r.Logger.With().Str("path", path).Logger()
	out, err := rewriteArchive(data, candidate, policy, time.Now(), log)
	if err != nil {
		return fmt.Errorf("rewrite %q: %w", path, err)
	}

	return replaceFile(path, out)
}

// rewriteArchive returns a copy of the archive in data with its metadata
// entry merged. Entries named ComicInfo.xml after the first are dropped.
func rewriteArchive(data []byte, candidate comicinfo.ComicInfo, policy comicinfo.Policy, now time.Time, log zerolog.Logger) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveFormat, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + 4096)
	zw := zip.NewWriter(&buf)

	found := false
	for _, f := range zr.File {
		if f.Name != comicinfo.EntryName {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("%w: copy entry %q: %w", ErrArchiveFormat, f.Name, err)
			}
			continue
		}
		if found {
			continue
		}
		found = true

		raw, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		existing, err := comicinfo.Unmarshal(raw)
		if err != nil {
			log.Debug().Err(err).Msg("existing ComicInfo.xml unreadable, starting from an empty record")
			existing = comicinfo.ComicInfo{}
		}
		merged := policy.Apply(existing, candidate)

		fh := &zip.FileHeader{
			Name:     f.Name,
			Comment:  f.Comment,
			Method:   writableMethod(f.Method),
			Modified: now,
		}
		fh.SetMode(f.Mode())
		if err := writeEntry(zw, fh, merged); err != nil {
			return nil, err
		}
	}

	if !found {
		fh := &zip.FileHeader{
			Name:     comicinfo.EntryName,
			Method:   zip.Deflate,
			Modified: now,
		}
		fh.SetMode(newEntryMode)
		if err := writeEntry(zw, fh, policy.Apply(comicinfo.ComicInfo{}, candidate)); err != nil {
			return nil, err
		}
	}

	if zr.Comment != "" {
		if err := zw.SetComment(zr.Comment); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArchiveFormat, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: finish archive: %w", ErrArchiveFormat, err)
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, fh *zip.FileHeader, record comicinfo.ComicInfo) error {
	body, err := comicinfo.Marshal(record)
	if err != nil {
		return err
	}
	body, err = comicinfo.WithProvenance(body)
	if err != nil {
		return err
	}

	w, err := zw.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("%w: create entry %q: %w", ErrArchiveFormat, fh.Name, err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("%w: write entry %q: %w", ErrArchiveFormat, fh.Name, err)
	}
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open entry %q: %w", ErrArchiveFormat, f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read entry %q: %w", ErrArchiveFormat, f.Name, err)
	}
	return data, nil
}

// writableMethod keeps Store and Deflate and falls back to Deflate for
// methods the writer has no compressor for.
func writableMethod(m uint16) uint16 {
	if m == zip.Store {
		return zip.Store
	}
	return zip.Deflate
}

// replaceFile writes data next to path and renames it over path, keeping
// the original file's permissions.
func replaceFile(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cbz-edit-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrFilesystem, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }() // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write temp file: %w", ErrFilesystem, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync temp file: %w", ErrFilesystem, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %w", ErrFilesystem, err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("%w: chmod temp file: %w", ErrFilesystem, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: replace %q: %w", ErrFilesystem, path, err)
	}
	return nil
}
