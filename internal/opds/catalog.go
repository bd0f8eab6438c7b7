package opds

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banux/cbz-edit/internal/catalog"
	"github.com/banux/cbz-edit/internal/comicinfo"
)

// Paths served by the HTTP server that feeds link to.
const (
	RootPath     = "/opds"
	DownloadPath = "/opds/download"
	CoverPath    = "/api/cover"

	seriesPrefix = "/opds/series/"
	idPrefix     = "urn:cbz-edit:"
)

// SeriesPath returns the acquisition feed path of a series.
func SeriesPath(name string) string {
	return seriesPrefix + url.PathEscape(name)
}

// LibraryFeed is the start feed: one navigation entry per series.
func LibraryFeed(series []catalog.Series, updated time.Time) *Feed {
	f := NewNavigationFeed(idPrefix+"root", "cbz-edit library", updated)
	f.AddLink(RelSelf, RootPath, MIMENavigationFeed)
	f.AddLink(RelStart, RootPath, MIMENavigationFeed)

	for _, s := range series {
		n := len(s.Chapters)
		content := fmt.Sprintf("%d chapters", n)
		if n == 1 {
			content = "1 chapter"
		}
		f.AddEntry(Entry{
			ID:      idPrefix + "series:" + s.Name,
			Title:   Text{Value: s.Name},
			Updated: AtomDate{Time: updated},
			Content: &Text{Type: "text", Value: content},
			Links: []Link{{
				Rel:   RelCatalogNavigation,
				Href:  SeriesPath(s.Name),
				Type:  MIMEAcquisitionFeed,
				Count: n,
			}},
		})
	}
	return f
}

// SeriesFeed lists the chapters of s. records holds the stored ComicInfo of
// each chapter by archive path; recorded fields win over what the filename
// carries. Archive links are relative to root.
func SeriesFeed(root string, s catalog.Series, records map[string]comicinfo.ComicInfo, updated time.Time) *Feed {
	f := NewAcquisitionFeed(idPrefix+"series:"+s.Name, s.Name, updated)
	f.AddLink(RelSelf, SeriesPath(s.Name), MIMEAcquisitionFeed)
	f.AddLink(RelStart, RootPath, MIMENavigationFeed)
	f.AddLink(RelUp, RootPath, MIMENavigationFeed)

	for _, ch := range s.Chapters {
		f.AddEntry(chapterEntry(root, s.Name, ch, records[ch.Path], updated))
	}
	return f
}

func chapterEntry(root, series string, ch catalog.Chapter, info comicinfo.ComicInfo, updated time.Time) Entry {
	rel, err := filepath.Rel(root, ch.Path)
	if err != nil {
		rel = ch.Path
	}
	rel = filepath.ToSlash(rel)
	query := "?" + url.Values{"path": {rel}}.Encode()

	e := Entry{
		ID:        idPrefix + "chapter:" + rel,
		Title:     Text{Value: ch.DisplayTitle()},
		Updated:   AtomDate{Time: updated},
		Language:  info.LanguageISO,
		Publisher: info.Publisher,
		Issued:    issued(info),
		CalSeries: series,
		Links: []Link{
			{Rel: RelAcquisitionOpen, Href: DownloadPath + query, Type: MIMECBZ},
			{Rel: RelCover, Href: CoverPath + query},
			{Rel: RelThumbnail, Href: CoverPath + query},
		},
	}
	if info.Title != "" {
		e.Title.Value = info.Title
	}
	if info.Series != "" {
		e.CalSeries = info.Series
	}
	if info.Summary != "" {
		e.Summary = &Text{Type: "text", Value: info.Summary}
	}

	number := ch.Number
	if info.Number != nil {
		number = info.Number
	}
	if number != nil {
		e.CalSeriesIndex = strconv.FormatFloat(*number, 'f', -1, 64)
	}

	for _, name := range strings.Split(info.Writer, ",") {
		if name = strings.TrimSpace(name); name != "" {
			e.Authors = append(e.Authors, Author{Name: name})
		}
	}
	return e
}

// issued formats the release date as YYYY, YYYY-MM or YYYY-MM-DD.
func issued(info comicinfo.ComicInfo) string {
	if info.Year == nil {
		return ""
	}
	s := fmt.Sprintf("%04d", *info.Year)
	if info.Month == nil {
		return s
	}
	s += fmt.Sprintf("-%02d", *info.Month)
	if info.Day == nil {
		return s
	}
	return s + fmt.Sprintf("-%02d", *info.Day)
}
