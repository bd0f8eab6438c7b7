package server

import (
	"bytes"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banux/cbz-edit/internal/opds"
)

func TestOPDS_Feeds(t *testing.T) {
	srv := newTestServer(t, newLibrary(t), Options{})

	rr := do(t, srv, http.MethodGet, "/opds", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("root feed: expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, opds.MIMENavigationFeed) {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{`href="/opds/series/Akira"`, "2 chapters", "Berserk"} {
		if !strings.Contains(body, want) {
			t.Errorf("root feed missing %q:\n%s", want, body)
		}
	}

	rr = do(t, srv, http.MethodGet, "/opds/series/Akira", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("series feed: expected 200, got %d", rr.Code)
	}
	body = rr.Body.String()
	// The recorded title wins over the filename for the second chapter.
	for _, want := range []string{"<title>Tetsuo</title>", "<title>Old</title>", "Keep me", "/opds/download?path=Akira%2FVol.01"} {
		if !strings.Contains(body, want) {
			t.Errorf("series feed missing %q:\n%s", want, body)
		}
	}

	if rr := do(t, srv, http.MethodGet, "/opds/series/Nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing series: expected 404, got %d", rr.Code)
	}
}

func TestOPDS_Download(t *testing.T) {
	dir := newLibrary(t)
	srv := newTestServer(t, dir, Options{})
	p := filepath.Join(dir, "Akira", "Vol.01 Ch.0001 - Tetsuo (en) [Group].cbz")
	want, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}

	rr := do(t, srv, http.MethodGet, "/opds/download?path="+url.QueryEscape("Akira/"+filepath.Base(p)), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !bytes.Equal(rr.Body.Bytes(), want) {
		t.Error("downloaded archive differs from the file")
	}
	if ct := rr.Header().Get("Content-Type"); ct != opds.MIMECBZ {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	if rr := do(t, srv, http.MethodGet, "/opds/download?path=Akira/missing.cbz", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing archive: expected 404, got %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/opds/download?"+chapterQuery("../outside.cbz"), ""); rr.Code != http.StatusForbidden {
		t.Errorf("outside path: expected 403, got %d", rr.Code)
	}
}
