package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/pflag"

	"github.com/banux/cbz-edit/internal/cbz"
	"github.com/banux/cbz-edit/internal/comicinfo"
)

func writeCBZ(t *testing.T, path, record string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := map[string]string{"001.jpg": "page"}
	if record != "" {
		entries[comicinfo.EntryName] = record
	}
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

type testLib struct {
	dir   string
	first string
	last  string
}

func newTestLib(t *testing.T) testLib {
	t.Helper()
	// Keep user config files and environment out of the way.
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"CBZ_EDIT_CONFIG", "CBZ_LIBRARY_DIR", "CBZ_BACKEND", "CBZ_CONCURRENCY", "CBZ_LOG_LEVEL", "KOMGA_URL"} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	lib := testLib{
		dir:   dir,
		first: filepath.Join(dir, "Akira", "Vol.01 Ch.0001 - Tetsuo (en) [Group].cbz"),
		last:  filepath.Join(dir, "Akira", "Vol.01 Ch.0002 - Kaneda (en) [Group].cbz"),
	}
	writeCBZ(t, lib.first, "")
	writeCBZ(t, lib.last, `<ComicInfo><Title>Kept</Title><Series>Old</Series><Publisher>Old Pub</Publisher></ComicInfo>`)
	return lib
}

func run(t *testing.T, lib testLib, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--library", lib.dir, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func readInfo(t *testing.T, path string) comicinfo.ComicInfo {
	t.Helper()
	info, found, err := cbz.ReadComicInfo(path)
	if err != nil || !found {
		t.Fatalf("ReadComicInfo(%s) = %v, %v", filepath.Base(path), found, err)
	}
	return info
}

func TestScanAndShow(t *testing.T) {
	lib := newTestLib(t)

	out, err := run(t, lib, "scan")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out, "Akira") || !strings.Contains(out, "2") {
		t.Errorf("scan output:\n%s", out)
	}

	out, err = run(t, lib, "show", "Akira")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"Tetsuo", "Kaneda", "Group", "Kept"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, lib, "show", "Nope"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("show unknown series error = %v", err)
	}
}

func TestDeriveAndVolume(t *testing.T) {
	lib := newTestLib(t)

	out, err := run(t, lib, "derive", "Akira")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !strings.Contains(out, "Processing 1/2") || !strings.Contains(out, "All done~ processed 2 chapters in") {
		t.Errorf("derive output:\n%s", out)
	}
	info := readInfo(t, lib.first)
	if info.Title != "Tetsuo" || info.Translator != "Group" || info.Number == nil || *info.Number != 1 {
		t.Errorf("derived = %+v", info)
	}

	if _, err := run(t, lib, "volume", "Akira", "4"); err != nil {
		t.Fatalf("volume: %v", err)
	}
	info = readInfo(t, lib.last)
	if info.Volume == nil || *info.Volume != 4 || info.Publisher != "Old Pub" {
		t.Errorf("after volume = %+v", info)
	}

	if _, err := run(t, lib, "volume", "Akira", "none"); err != nil {
		t.Fatalf("volume none: %v", err)
	}
	if info := readInfo(t, lib.last); info.Volume != nil {
		t.Errorf("volume = %d, want cleared", *info.Volume)
	}

	if _, err := run(t, lib, "volume", "Akira", "-1"); err == nil {
		t.Error("expected error for negative volume")
	}
}

func TestSaveAndInfo(t *testing.T) {
	lib := newTestLib(t)

	if _, err := run(t, lib, "save", lib.last, "--title", "New title", "--number", "2.5", "--manga", "YesAndRightToLeft"); err != nil {
		t.Fatalf("save: %v", err)
	}
	info := readInfo(t, lib.last)
	if info.Title != "New title" || info.Number == nil || *info.Number != 2.5 || info.Manga != comicinfo.MangaYesAndRightToLeft {
		t.Errorf("saved = %+v", info)
	}
	// Fields without a flag come from the current record.
	if info.Publisher != "Old Pub" {
		t.Errorf("publisher = %q, want kept", info.Publisher)
	}

	out, err := run(t, lib, "info", lib.last)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if !strings.Contains(out, "<Title>New title</Title>") || !strings.Contains(out, "<Number>2.5</Number>") {
		t.Errorf("info output:\n%s", out)
	}

	out, err = run(t, lib, "info", "--json", lib.first)
	if err != nil {
		t.Fatalf("info --json: %v", err)
	}
	if !strings.Contains(out, `"title": ""`) {
		t.Errorf("info --json output:\n%s", out)
	}
}

func TestSaveFromFile(t *testing.T) {
	lib := newTestLib(t)
	record := filepath.Join(t.TempDir(), "record.json")
	if err := os.WriteFile(record, []byte(`{"title":"From file","series":"Akira","volume":9}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, lib, "save", lib.last, "--file", record, "--volume", ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	info := readInfo(t, lib.last)
	if info.Title != "From file" || info.Volume != nil || info.Publisher != "" {
		t.Errorf("saved = %+v", info)
	}
}

func TestApply(t *testing.T) {
	lib := newTestLib(t)

	if _, err := run(t, lib, "apply", "Akira", "--publisher", "Kodansha", "--genre", "Sci-Fi"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	for _, p := range []string{lib.first, lib.last} {
		info := readInfo(t, p)
		// The series name defaults from the first recorded chapter.
		if info.Publisher != "Kodansha" || info.Genre != "Sci-Fi" || info.Series != "Old" {
			t.Errorf("%s = %+v", filepath.Base(p), info)
		}
	}
	if info := readInfo(t, lib.last); info.Title != "Kept" {
		t.Errorf("title = %q, want per-chapter title kept", info.Title)
	}
}

func TestHistory(t *testing.T) {
	lib := newTestLib(t)

	if _, err := run(t, lib, "history"); err == nil || !strings.Contains(err.Error(), "sqlite") {
		t.Errorf("fs history error = %v", err)
	}

	if _, err := run(t, lib, "--backend", "sqlite", "derive", "Akira"); err != nil {
		t.Fatalf("derive: %v", err)
	}
	out, err := run(t, lib, "--backend", "sqlite", "history", lib.first)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "derive") || !strings.Contains(out, "Tetsuo") || strings.Contains(out, "Kaneda") {
		t.Errorf("history output:\n%s", out)
	}
}

func TestEditsRespectLock(t *testing.T) {
	lib := newTestLib(t)

	lock := flock.New(filepath.Join(lib.dir, lockFilename))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer lock.Unlock()

	if _, err := run(t, lib, "derive", "Akira"); !errors.Is(err, errLocked) {
		t.Errorf("derive while locked error = %v, want errLocked", err)
	}
	// Read-only commands do not need the lock.
	if _, err := run(t, lib, "scan"); err != nil {
		t.Errorf("scan while locked: %v", err)
	}
}

func TestKomgaSync_NotConfigured(t *testing.T) {
	lib := newTestLib(t)
	cfg := filepath.Join(t.TempDir(), "cbz-edit.yaml")
	if err := os.WriteFile(cfg, []byte("komga:\n  url: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, lib, "--config", cfg, "komga", "sync", "Akira"); err == nil || !strings.Contains(err.Error(), "komga.url") {
		t.Errorf("error = %v", err)
	}
}

func TestRecordFlags(t *testing.T) {
	var rf recordFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	rf.register(fs)
	if err := fs.Parse([]string{"--language", "EN_us", "--age-rating", "Teen", "--count", "12", "--writer", ""}); err != nil {
		t.Fatal(err)
	}

	base := comicinfo.ComicInfo{Title: "T", Writer: "Someone"}
	info, err := rf.build(fs, base)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if info.Title != "T" || info.Writer != "" || info.LanguageISO != "en-US" || info.AgeRating != comicinfo.AgeTeen {
		t.Errorf("built = %+v", info)
	}
	if info.Count == nil || *info.Count != 12 {
		t.Errorf("count = %v", info.Count)
	}

	bad := pflag.NewFlagSet("bad", pflag.ContinueOnError)
	var rf2 recordFlags
	rf2.register(bad)
	_ = bad.Parse([]string{"--number", "ten"})
	if _, err := rf2.build(bad, base); err == nil {
		t.Error("expected error for non-numeric --number")
	}
}
