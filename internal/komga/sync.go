package komga

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/banux/cbz-edit/internal/batch"
	"github.com/banux/cbz-edit/internal/catalog"
	"github.com/banux/cbz-edit/internal/comicinfo"
)

// ErrSeriesNotFound is returned when Komga has no series for a local path.
var ErrSeriesNotFound = errors.New("komga: series not found")

// FindSeries returns the Komga series whose URL is the local path p.
func FindSeries(all []Series, p string) (Series, bool) {
	want := cleanURL(p)
	for _, s := range all {
		if cleanURL(s.URL) == want {
			return s, true
		}
	}
	return Series{}, false
}

func cleanURL(u string) string {
	u = strings.TrimPrefix(u, "file://")
	u = strings.TrimPrefix(u, "file:")
	return filepath.Clean(u)
}

// SeriesInfo maps Komga series metadata, plus the first writer and
// penciller credited on any of its books, onto a candidate record for a
// MergeShared rewrite.
func SeriesInfo(s Series, books []Book) comicinfo.ComicInfo {
	m := s.Metadata
	info := comicinfo.ComicInfo{
		Series:      m.Title,
		Summary:     m.Summary,
		Publisher:   m.Publisher,
		Genre:       strings.Join(m.Genres, ", "),
		Tags:        strings.Join(m.Tags, ", "),
		LanguageISO: comicinfo.NormalizeLanguage(m.Language),
	}
	if info.Series == "" {
		info.Series = s.Name
	}
	if m.AgeRating != nil {
		info.AgeRating = comicinfo.AgeRatingFromAge(*m.AgeRating)
	}
	if m.TotalBookCount != nil {
		n := *m.TotalBookCount
		info.Count = &n
	}
	for _, b := range books {
		if info.Writer == "" {
			info.Writer = b.Metadata.Author("writer")
		}
		if info.Penciller == "" {
			info.Penciller = b.Metadata.Author("penciller")
		}
	}
	return info
}

// Syncer copies Komga series metadata into the local archives of a series.
type Syncer struct {
	Komga   *Client
	Komf    *Komf // optional; when set, series are identified first
	Applier *batch.Applier

	// OneshotsDir names the local directory whose chapters Komga treats as
	// separate one-book series.
	OneshotsDir string

	Logger zerolog.Logger
}

type target struct {
	komga    Series
	chapters []catalog.Chapter
}

// Sync rewrites every chapter of local with the metadata of its Komga
// series, then asks Komga to re-analyze it. Every target is attempted; the
// first error is returned.
func (s *Syncer) Sync(ctx context.Context, local catalog.Series) ([]batch.Report, error) {
	log := s.Logger.With().Str("component", "komga").Str("series", local.Name).Logger()

	all, err := s.Komga.ListSeries(ctx)
	if err != nil {
		return nil, err
	}
	targets, err := s.match(all, local)
	if err != nil {
		return nil, err
	}

	if s.Komf != nil {
		for _, t := range targets {
			if err := s.Komf.Identify(ctx, t.komga.LibraryID, t.komga.ID); err != nil {
				return nil, err
			}
			log.Info().Str("komga_id", t.komga.ID).Msg("identified with komf")
		}
		// Identification rewrote the metadata; fetch it again.
		if all, err = s.Komga.ListSeries(ctx); err != nil {
			return nil, err
		}
		if targets, err = s.match(all, local); err != nil {
			return nil, err
		}
	}

	var (
		reports  []batch.Report
		firstErr error
	)
	for _, t := range targets {
		rep, err := s.syncOne(ctx, t)
		if rep.ID != "" {
			reports = append(reports, rep)
		}
		if err != nil {
			log.Warn().Err(err).Str("komga_id", t.komga.ID).Msg("sync failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Info().Str("komga_id", t.komga.ID).Int("chapters", len(t.chapters)).Msg("synced from komga")
	}
	return reports, firstErr
}

func (s *Syncer) syncOne(ctx context.Context, t target) (batch.Report, error) {
	books, err := s.Komga.ListBooks(ctx, t.komga.ID)
	if err != nil {
		return batch.Report{}, err
	}

	rep, err := s.Applier.ApplySeries(t.chapters, SeriesInfo(t.komga, books))
	if aErr := s.Komga.AnalyzeSeries(ctx, t.komga.ID); aErr != nil && err == nil {
		err = aErr
	}
	return rep, err
}

// match pairs local chapters with Komga series. Chapters of the oneshots
// directory are matched one by one by their own path.
func (s *Syncer) match(all []Series, local catalog.Series) ([]target, error) {
	if s.OneshotsDir != "" && filepath.Base(local.Path) == s.OneshotsDir {
		var targets []target
		for _, ch := range local.Chapters {
			ks, ok := FindSeries(all, ch.Path)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrSeriesNotFound, ch.Path)
			}
			targets = append(targets, target{komga: ks, chapters: []catalog.Chapter{ch}})
		}
		return targets, nil
	}

	ks, ok := FindSeries(all, local.Path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSeriesNotFound, local.Path)
	}
	return []target{{komga: ks, chapters: local.Chapters}}, nil
}
