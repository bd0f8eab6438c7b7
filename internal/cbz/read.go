package cbz

import (
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/banux/cbz-edit/internal/comicinfo"
)

// ErrNoPages is returned by Cover for archives without image entries.
var ErrNoPages = errors.New("cbz: archive has no pages")

var pageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".avif": "image/avif",
	".jxl":  "image/jxl",
}

// ReadComicInfo returns the decoded ComicInfo.xml of the archive at p.
// found is false when the archive has no such entry; a malformed entry
// decodes to the empty record like it does during a rewrite.
func ReadComicInfo(p string) (info comicinfo.ComicInfo, found bool, err error) {
	zr, err := open(p)
	if err != nil {
		return comicinfo.ComicInfo{}, false, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != comicinfo.EntryName {
			continue
		}
		raw, err := readEntry(f)
		if err != nil {
			return comicinfo.ComicInfo{}, false, fmt.Errorf("%q: %w", p, err)
		}
		return comicinfo.Decode(raw), true, nil
	}
	return comicinfo.ComicInfo{}, false, nil
}

// Pages lists the image entries of the archive at p in reading order.
func Pages(p string) ([]string, error) {
	zr, err := open(p)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	return pageNames(&zr.Reader), nil
}

// Cover returns the first page of the archive at p and its MIME type.
func Cover(p string) ([]byte, string, error) {
	zr, err := open(p)
	if err != nil {
		return nil, "", err
	}
	defer zr.Close()

	names := pageNames(&zr.Reader)
	if len(names) == 0 {
		return nil, "", fmt.Errorf("%q: %w", p, ErrNoPages)
	}
	first := names[0]

	for _, f := range zr.File {
		if f.Name != first {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, "", fmt.Errorf("%q: %w", p, err)
		}
		return data, pageType(first), nil
	}
	return nil, "", fmt.Errorf("%q: %w", p, ErrNoPages)
}

func open(p string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(p)
	if err == nil {
		return zr, nil
	}
	// Open errors other than bad markers come from the filesystem.
	if errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrChecksum) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: open %q: %w", ErrArchiveFormat, p, err)
	}
	return nil, fmt.Errorf("%w: open %q: %w", ErrFilesystem, p, err)
}

func pageNames(zr *zip.Reader) []string {
	var names []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || isHidden(f.Name) {
			continue
		}
		if _, ok := pageExts[strings.ToLower(path.Ext(f.Name))]; ok {
			names = append(names, f.Name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })
	return names
}

// isHidden skips macOS resource forks and dot files packed by archivers.
func isHidden(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	return strings.HasPrefix(path.Base(name), ".")
}

func pageType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := pageExts[ext]; ok {
		return t
	}
	return "application/octet-stream"
}

// naturalLess orders names so that "page2.jpg" sorts before "page10.jpg".
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		da, db := digitRun(a), digitRun(b)
		if da > 0 && db > 0 {
			na := strings.TrimLeft(a[:da], "0")
			nb := strings.TrimLeft(b[:db], "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			a, b = a[da:], b[db:]
			continue
		}
		ca, cb := strings.ToLower(a[:1]), strings.ToLower(b[:1])
		if ca != cb {
			return ca < cb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func digitRun(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}
