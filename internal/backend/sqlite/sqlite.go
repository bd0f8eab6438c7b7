// Package sqlite implements a SQLite-backed library backend for cbz-edit.
// It indexes the series and chapters found under the library root and keeps
// a journal of every archive rewrite in the same database.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/banux/cbz-edit/internal/backend/fs"
	"github.com/banux/cbz-edit/internal/catalog"
)

const dbFilename = ".cbz-edit.db"

// Backend is a SQLite-backed library backend. It implements catalog.Library
// and catalog.Journal.
type Backend struct {
	root string
	db   *sql.DB
	log  zerolog.Logger
}

// New opens (or creates) the database at {dir}/.cbz-edit.db, applies the
// schema, indexes the library and returns the Backend.
func New(dir string, logger zerolog.Logger) (*Backend, error) {
	return Open(dir, filepath.Join(dir, dbFilename), logger)
}

// Open is New with an explicit database path.
func Open(dir, dbPath string, logger zerolog.Logger) (*Backend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", dbPath, err)
	}
	// A single connection serializes journal writes from concurrent
	// rewrites instead of failing them with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	b := &Backend{
		root: dir,
		db:   db,
		log:  logger.With().Str("component", "sqlite").Logger(),
	}
	if err := b.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := b.Refresh(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initial scan: %w", err)
	}
	return b, nil
}

// Close releases database resources.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) createSchema() error {
	_, err := b.db.Exec(`
CREATE TABLE IF NOT EXISTS series (
    name TEXT PRIMARY KEY,
    path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chapters (
    path        TEXT PRIMARY KEY,
    series_name TEXT NOT NULL REFERENCES series(name) ON DELETE CASCADE,
    volume      INTEGER,
    number      REAL,
    title       TEXT NOT NULL DEFAULT '',
    translators TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS revisions (
    id         TEXT PRIMARY KEY,
    batch_id   TEXT NOT NULL DEFAULT '',
    path       TEXT NOT NULL,
    policy     TEXT NOT NULL,
    record     BLOB,
    error      TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL,
    elapsed_ns INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_chapters_series ON chapters(series_name);
CREATE INDEX IF NOT EXISTS idx_revisions_path ON revisions(path, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_revisions_started ON revisions(started_at DESC);
`)
	return err
}

// Root implements catalog.Library.
func (b *Backend) Root() string { return b.root }

// Refresh rescans the library root and replaces the series and chapter
// index in one transaction. The revision journal is kept.
func (b *Backend) Refresh() error {
	start := time.Now()
	series, err := fs.Scan(b.root)
	if err != nil {
		return err
	}

	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM chapters`); err != nil {
		return fmt.Errorf("clear chapters: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM series`); err != nil {
		return fmt.Errorf("clear series: %w", err)
	}

	insSeries, err := tx.Prepare(`INSERT INTO series (name, path) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer insSeries.Close()
	insChapter, err := tx.Prepare(`
INSERT INTO chapters (path, series_name, volume, number, title, translators)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insChapter.Close()

	chapters := 0
	for _, s := range series {
		if _, err := insSeries.Exec(s.Name, s.Path); err != nil {
			return fmt.Errorf("insert series %q: %w", s.Name, err)
		}
		for _, ch := range s.Chapters {
			translators, err := json.Marshal(ch.Translators)
			if err != nil {
				return err
			}
			if _, err := insChapter.Exec(ch.Path, s.Name, nullUint(ch.Volume), nullFloat(ch.Number), ch.Title, string(translators)); err != nil {
				return fmt.Errorf("insert chapter %q: %w", ch.Path, err)
			}
			chapters++
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	b.log.Debug().
		Int("series", len(series)).
		Int("chapters", chapters).
		Dur("elapsed", time.Since(start)).
		Msg("library indexed")
	return nil
}

// Series implements catalog.Library.
func (b *Backend) Series() ([]catalog.Series, error) {
	rows, err := b.db.Query(`SELECT name, path FROM series ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	var series []catalog.Series
	index := make(map[string]int)
	for rows.Next() {
		var s catalog.Series
		if err := rows.Scan(&s.Name, &s.Path); err != nil {
			rows.Close()
			return nil, err
		}
		s.Chapters = []catalog.Chapter{}
		index[s.Name] = len(series)
		series = append(series, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chapters, err := b.queryChapters(`SELECT series_name, path, volume, number, title, translators FROM chapters`)
	if err != nil {
		return nil, err
	}
	for name, chs := range chapters {
		if i, ok := index[name]; ok {
			series[i].Chapters = chs
		}
	}
	for i := range series {
		catalog.SortChapters(series[i].Chapters)
	}
	return series, nil
}

// SeriesByName implements catalog.Library.
func (b *Backend) SeriesByName(name string) (*catalog.Series, error) {
	s := catalog.Series{Name: name}
	err := b.db.QueryRow(`SELECT path FROM series WHERE name = ?`, name).Scan(&s.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("series %q: %w", name, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query series %q: %w", name, err)
	}

	chapters, err := b.queryChapters(`SELECT series_name, path, volume, number, title, translators FROM chapters WHERE series_name = ?`, name)
	if err != nil {
		return nil, err
	}
	s.Chapters = chapters[name]
	if s.Chapters == nil {
		s.Chapters = []catalog.Chapter{}
	}
	catalog.SortChapters(s.Chapters)
	return &s, nil
}

// queryChapters runs query and groups the chapters by series name.
func (b *Backend) queryChapters(query string, args ...any) (map[string][]catalog.Chapter, error) {
	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]catalog.Chapter)
	for rows.Next() {
		var (
			seriesName  string
			ch          catalog.Chapter
			volume      sql.NullInt64
			number      sql.NullFloat64
			translators string
		)
		if err := rows.Scan(&seriesName, &ch.Path, &volume, &number, &ch.Title, &translators); err != nil {
			return nil, err
		}
		if volume.Valid {
			v := uint32(volume.Int64)
			ch.Volume = &v
		}
		if number.Valid {
			n := number.Float64
			ch.Number = &n
		}
		if err := json.Unmarshal([]byte(translators), &ch.Translators); err != nil || ch.Translators == nil {
			ch.Translators = []string{}
		}
		out[seriesName] = append(out[seriesName], ch)
	}
	return out, rows.Err()
}

// Record implements catalog.Journal.
func (b *Backend) Record(rev catalog.Revision) error {
	_, err := b.db.Exec(`
INSERT INTO revisions (id, batch_id, path, policy, record, error, started_at, elapsed_ns)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rev.ID, rev.BatchID, rev.Path, rev.Policy, rev.Record, rev.Error,
		rev.Started.UnixNano(), int64(rev.Elapsed))
	if err != nil {
		return fmt.Errorf("insert revision %q: %w", rev.ID, err)
	}
	return nil
}

// History implements catalog.Journal. A limit of 0 or less returns every
// matching revision.
func (b *Backend) History(path string, limit int) ([]catalog.Revision, error) {
	query := `SELECT id, batch_id, path, policy, record, error, started_at, elapsed_ns FROM revisions`
	var args []any
	if path != "" {
		query += ` WHERE path = ?`
		args = append(args, path)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	revs := []catalog.Revision{}
	for rows.Next() {
		var (
			rev     catalog.Revision
			started int64
			elapsed int64
		)
		if err := rows.Scan(&rev.ID, &rev.BatchID, &rev.Path, &rev.Policy, &rev.Record, &rev.Error, &started, &elapsed); err != nil {
			return nil, err
		}
		rev.Started = time.Unix(0, started)
		rev.Elapsed = time.Duration(elapsed)
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

func nullUint(v *uint32) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
