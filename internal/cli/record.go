package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/banux/cbz-edit/internal/comicinfo"
)

// recordFlags are per-field overrides for a ComicInfo record. Only flags
// given on the command line are applied.
type recordFlags struct {
	file string

	title, series, summary           string
	writer, penciller, translator    string
	publisher, genre, tags, web      string
	language, manga, ageRating       string
	number, volume, count, pageCount string
}

func (r *recordFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&r.file, "file", "f", "", "Read the record from a ComicInfo .xml or .json file")
	fs.StringVar(&r.title, "title", "", "Title")
	fs.StringVar(&r.series, "series", "", "Series name")
	fs.StringVar(&r.number, "number", "", "Chapter number")
	fs.StringVar(&r.volume, "volume", "", "Volume number")
	fs.StringVar(&r.summary, "summary", "", "Summary")
	fs.StringVar(&r.writer, "writer", "", "Writers, comma separated")
	fs.StringVar(&r.penciller, "penciller", "", "Pencillers, comma separated")
	fs.StringVar(&r.translator, "translator", "", "Translators, comma separated")
	fs.StringVar(&r.publisher, "publisher", "", "Publisher")
	fs.StringVar(&r.genre, "genre", "", "Genres, comma separated")
	fs.StringVar(&r.tags, "tags", "", "Tags, comma separated")
	fs.StringVar(&r.web, "web", "", "Space separated URLs")
	fs.StringVar(&r.language, "language", "", "Language code (en, pt-BR, ...)")
	fs.StringVar(&r.manga, "manga", "", "Unknown, Yes, No or YesAndRightToLeft")
	fs.StringVar(&r.ageRating, "age-rating", "", "Age rating (Everyone, Teen, Mature 17+, ...)")
	fs.StringVar(&r.count, "count", "", "Total number of books in the series")
	fs.StringVar(&r.pageCount, "page-count", "", "Number of pages")
}

// build returns base, replaced by the --file record when given, with every
// changed field flag applied on top. An empty numeric flag clears the field.
func (r *recordFlags) build(fs *pflag.FlagSet, base comicinfo.ComicInfo) (comicinfo.ComicInfo, error) {
	info := base
	if r.file != "" {
		loaded, err := loadRecord(r.file)
		if err != nil {
			return info, err
		}
		info = loaded
	}

	strs := []struct {
		name string
		dst  *string
		val  string
	}{
		{"title", &info.Title, r.title},
		{"series", &info.Series, r.series},
		{"summary", &info.Summary, r.summary},
		{"writer", &info.Writer, r.writer},
		{"penciller", &info.Penciller, r.penciller},
		{"translator", &info.Translator, r.translator},
		{"publisher", &info.Publisher, r.publisher},
		{"genre", &info.Genre, r.genre},
		{"tags", &info.Tags, r.tags},
		{"web", &info.Web, r.web},
	}
	for _, s := range strs {
		if fs.Changed(s.name) {
			*s.dst = s.val
		}
	}

	if fs.Changed("language") {
		info.LanguageISO = comicinfo.NormalizeLanguage(r.language)
	}
	if fs.Changed("manga") {
		info.Manga = comicinfo.ParseManga(r.manga)
	}
	if fs.Changed("age-rating") {
		info.AgeRating = comicinfo.ParseAgeRating(r.ageRating)
	}

	var err error
	if fs.Changed("number") {
		if info.Number, err = parseOptFloat(r.number); err != nil {
			return info, fmt.Errorf("--number: %w", err)
		}
	}
	uints := []struct {
		name string
		dst  **uint32
		val  string
	}{
		{"volume", &info.Volume, r.volume},
		{"count", &info.Count, r.count},
		{"page-count", &info.PageCount, r.pageCount},
	}
	for _, u := range uints {
		if !fs.Changed(u.name) {
			continue
		}
		if *u.dst, err = parseOptUint(u.val); err != nil {
			return info, fmt.Errorf("--%s: %w", u.name, err)
		}
	}
	return info, nil
}

// loadRecord reads a record from an XML or JSON file, chosen by extension.
func loadRecord(path string) (comicinfo.ComicInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return comicinfo.ComicInfo{}, err
	}
	var info comicinfo.ComicInfo
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &info)
	} else {
		info, err = comicinfo.Unmarshal(data)
	}
	if err != nil {
		return comicinfo.ComicInfo{}, fmt.Errorf("read record %q: %w", path, err)
	}
	return info, nil
}

func parseOptFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func parseOptUint(s string) (*uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return nil, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return nil, err
	}
	v := uint32(n)
	return &v, nil
}
