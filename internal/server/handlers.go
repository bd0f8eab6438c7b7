package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/banux/cbz-edit/internal/batch"
	"github.com/banux/cbz-edit/internal/catalog"
	"github.com/banux/cbz-edit/internal/cbz"
	"github.com/banux/cbz-edit/internal/comicinfo"
	"github.com/banux/cbz-edit/internal/filename"
)

const (
	// maxBodySize bounds JSON request bodies.
	maxBodySize = 1 << 20

	defaultHistoryLimit = 50
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// rewriteStatus maps a rewrite failure to an HTTP status.
func rewriteStatus(err error) int {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, comicinfo.ErrEncode), errors.Is(err, cbz.ErrArchiveFormat):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// seriesJSON is the list view of a series.
type seriesJSON struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Chapters int    `json:"chapters"`
}

// handleSeriesList handles GET /api/series.
func (s *Server) handleSeriesList(w http.ResponseWriter, r *http.Request) {
	series, err := s.library.Series()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "library error: "+err.Error())
		return
	}
	out := make([]seriesJSON, len(series))
	for i, se := range series {
		out[i] = seriesJSON{Name: se.Name, Path: se.Path, Chapters: len(se.Chapters)}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSeries handles GET /api/series/{name} with the chapter list.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	se, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, se)
}

func (s *Server) lookupSeries(w http.ResponseWriter, r *http.Request) (*catalog.Series, bool) {
	name := mux.Vars(r)["name"]
	se, err := s.library.SeriesByName(name)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "series not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "library error: "+err.Error())
		return nil, false
	}
	return se, true
}

// resolveChapter turns the path query parameter into an archive path inside
// the library root. Relative paths are taken from the root. Symlinks are
// resolved before the check, so a link may not lead out of the library.
func (s *Server) resolveChapter(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, http.StatusBadRequest, "missing path")
		return "", false
	}
	root := filepath.Clean(s.library.Root())
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)

	if !within(root, p) {
		writeError(w, http.StatusForbidden, "path is outside the library")
		return "", false
	}
	if !strings.EqualFold(filepath.Ext(p), catalog.ArchiveExt) {
		writeError(w, http.StatusBadRequest, "not a .cbz archive")
		return "", false
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "library root: "+err.Error())
		return "", false
	}
	real, err := evalExisting(p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "resolve path: "+err.Error())
		return "", false
	}
	if !within(realRoot, real) {
		writeError(w, http.StatusForbidden, "path is outside the library")
		return "", false
	}
	return p, true
}

// within reports whether p lies strictly below root.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// evalExisting resolves the symlinks of p, or of its deepest existing
// parent when p does not exist yet.
func evalExisting(p string) (string, error) {
	real, err := filepath.EvalSymlinks(p)
	if err == nil {
		return real, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	parent := filepath.Dir(p)
	if parent == p {
		return p, nil
	}
	dir, err := evalExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(p)), nil
}

// comicInfoJSON is the response of the ComicInfo endpoints.
type comicInfoJSON struct {
	Path      string              `json:"path"`
	Found     bool                `json:"found"`
	ComicInfo comicinfo.ComicInfo `json:"comicInfo"`
}

// handleGetComicInfo handles GET /api/comicinfo?path=.
func (s *Server) handleGetComicInfo(w http.ResponseWriter, r *http.Request) {
	p, ok := s.resolveChapter(w, r)
	if !ok {
		return
	}
	info, found, err := cbz.ReadComicInfo(p)
	if err != nil {
		writeError(w, rewriteStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, comicInfoJSON{Path: p, Found: found, ComicInfo: info})
}

// handlePutComicInfo handles PUT /api/comicinfo?path=, replacing the whole
// record of one chapter.
func (s *Server) handlePutComicInfo(w http.ResponseWriter, r *http.Request) {
	p, ok := s.resolveChapter(w, r)
	if !ok {
		return
	}
	var info comicinfo.ComicInfo
	if !decodeBody(w, r, &info) {
		return
	}

	// Batches over the same series rewrite this archive too.
	release, err := s.jobs.hold(filepath.Base(filepath.Dir(p)))
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	defer release()

	ch := filename.Parse(p, filepath.Base(p))
	if err := s.applier.SaveChapter(ch, info); err != nil {
		writeError(w, rewriteStatus(err), err.Error())
		return
	}

	saved, found, err := cbz.ReadComicInfo(p)
	if err != nil {
		writeError(w, rewriteStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, comicInfoJSON{Path: p, Found: found, ComicInfo: saved})
}

// handleCover handles GET /api/cover?path= with the first page of a chapter.
func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	p, ok := s.resolveChapter(w, r)
	if !ok {
		return
	}
	data, contentType, err := cbz.Cover(p)
	switch {
	case errors.Is(err, cbz.ErrNoPages):
		writeError(w, http.StatusNotFound, "archive has no pages")
		return
	case err != nil:
		writeError(w, rewriteStatus(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(data)
}

// startJob answers 202 with the job, or 409 when the series is busy.
func (s *Server) startJob(w http.ResponseWriter, kind, series string, fn func() ([]batch.Report, error)) {
	j, err := s.jobs.start(kind, series, fn)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.log.Info().Str("job", j.ID).Str("kind", kind).Str("series", series).Msg("job started")
	w.Header().Set("Location", "/api/jobs/"+j.ID)
	writeJSON(w, http.StatusAccepted, j)
}

func single(rep batch.Report, err error) ([]batch.Report, error) {
	return []batch.Report{rep}, err
}

// handleApply handles POST /api/series/{name}/apply: the series-wide
// fields of the posted record are written to every chapter.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	se, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}
	var info comicinfo.ComicInfo
	if !decodeBody(w, r, &info) {
		return
	}
	s.startJob(w, comicinfo.MergeShared.String(), se.Name, func() ([]batch.Report, error) {
		return single(s.applier.ApplySeries(se.Chapters, info))
	})
}

// handleDerive handles POST /api/series/{name}/derive.
func (s *Server) handleDerive(w http.ResponseWriter, r *http.Request) {
	se, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}
	s.startJob(w, comicinfo.DeriveFromFilename.String(), se.Name, func() ([]batch.Report, error) {
		return single(s.applier.DeriveChapters(se.Chapters))
	})
}

type volumeRequest struct {
	Volume *uint32 `json:"volume"`
}

// handleVolume handles POST /api/series/{name}/volume. A null volume
// clears it.
func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	se, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}
	var req volumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.startJob(w, comicinfo.VolumeOnly.String(), se.Name, func() ([]batch.Report, error) {
		return single(s.applier.ApplyVolume(se.Chapters, req.Volume))
	})
}

// handleKomgaSync handles POST /api/series/{name}/komga.
func (s *Server) handleKomgaSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusNotImplemented, "komga is not configured")
		return
	}
	se, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}
	// The request context ends with the response; the sync outlives it.
	ctx := context.WithoutCancel(r.Context())
	s.startJob(w, "komga", se.Name, func() ([]batch.Report, error) {
		return s.syncer.Sync(ctx, *se)
	})
}

// handleJobs handles GET /api/jobs.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.list())
}

// handleJob handles GET /api/jobs/{id}.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.jobs.get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// handleRefresh handles POST /api/refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.library.Refresh(); err != nil {
		writeError(w, http.StatusInternalServerError, "refresh failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleHistory handles GET /api/history?path=&limit=. Returns 501 if the
// backend keeps no journal.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotImplemented, "history not supported by this backend")
		return
	}

	var p string
	if r.URL.Query().Get("path") != "" {
		var ok bool
		if p, ok = s.resolveChapter(w, r); !ok {
			return
		}
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	revs, err := s.journal.History(p, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, revs)
}

// handleStatus handles GET /api/status with the latest status message.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Latest())
}
