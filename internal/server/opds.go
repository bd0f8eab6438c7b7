package server

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/banux/cbz-edit/internal/cbz"
	"github.com/banux/cbz-edit/internal/comicinfo"
	"github.com/banux/cbz-edit/internal/opds"
)

func writeFeed(w http.ResponseWriter, feed *opds.Feed, contentType string) {
	data, err := feed.MarshalToXML()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "feed error: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType+";charset=utf-8")
	_, _ = w.Write(data)
}

// handleOPDSRoot handles GET /opds: the navigation feed of all series.
func (s *Server) handleOPDSRoot(w http.ResponseWriter, r *http.Request) {
	series, err := s.library.Series()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "library error: "+err.Error())
		return
	}
	writeFeed(w, opds.LibraryFeed(series, time.Now()), opds.MIMENavigationFeed)
}

// handleOPDSSeries handles GET /opds/series/{name}. Chapters whose record
// cannot be read are listed with their filename data only.
func (s *Server) handleOPDSSeries(w http.ResponseWriter, r *http.Request) {
	se, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}
	records := make(map[string]comicinfo.ComicInfo, len(se.Chapters))
	for _, ch := range se.Chapters {
		info, found, err := cbz.ReadComicInfo(ch.Path)
		if err != nil {
			s.log.Warn().Err(err).Str("path", ch.Path).Msg("read ComicInfo.xml for feed")
			continue
		}
		if found {
			records[ch.Path] = info
		}
	}
	writeFeed(w, opds.SeriesFeed(s.library.Root(), *se, records, time.Now()), opds.MIMEAcquisitionFeed)
}

// handleDownload handles GET /opds/download?path= with the archive itself.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	p, ok := s.resolveChapter(w, r)
	if !ok {
		return
	}
	f, err := os.Open(p)
	if err != nil {
		writeError(w, rewriteStatus(err), "open archive: "+err.Error())
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	name := filepath.Base(p)
	w.Header().Set("Content-Type", opds.MIMECBZ)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, st.ModTime(), f)
}
