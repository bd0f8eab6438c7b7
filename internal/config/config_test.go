package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banux/cbz-edit/internal/config"
)

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CBZ_LIBRARY_DIR", "LISTEN_ADDR", "CBZ_BACKEND", "CBZ_CONCURRENCY",
		"CBZ_API_KEY", "CBZ_LOG_LEVEL", "REFRESH_INTERVAL",
		"KOMGA_URL", "KOMGA_API_KEY", "KOMF_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefault_Values(t *testing.T) {
	cfg := config.Default()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr: got %q, want :8080", cfg.ListenAddr)
	}
	if cfg.Backend != "fs" {
		t.Errorf("Backend: got %q, want fs", cfg.Backend)
	}
	if !strings.HasSuffix(cfg.LibraryDir, "Mangas") {
		t.Errorf("LibraryDir: got %q, want .../Mangas", cfg.LibraryDir)
	}
	if cfg.Komga.URL != "http://127.0.0.1:25600" || cfg.Komga.OneshotsDir != "_oneshots" {
		t.Errorf("Komga: got %+v", cfg.Komga)
	}
	if cfg.Komf.URL != "http://127.0.0.1:8085" {
		t.Errorf("Komf: got %+v", cfg.Komf)
	}
	if cfg.APIKey != "" || cfg.Concurrency != 0 {
		t.Errorf("APIKey/Concurrency: got %q/%d, want empty/0", cfg.APIKey, cfg.Concurrency)
	}
}

func TestLoad_EmptyPath_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr: got %q, want :8080", cfg.ListenAddr)
	}
	if cfg.LibraryDir != config.Default().LibraryDir {
		t.Errorf("LibraryDir: got %q, want default", cfg.LibraryDir)
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	yaml := `
library_dir: "/srv/mangas"
listen_addr: ":9090"
backend: sqlite
concurrency: 3
api_key: "topsecret"
komga:
  url: "http://komga:25600"
  api_key: "komga-key"
komf:
  url: "http://komf:8085"
`
	path := writeTemp(t, "config.yaml", yaml)
	clearEnv(t)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LibraryDir != "/srv/mangas" {
		t.Errorf("LibraryDir: got %q, want /srv/mangas", cfg.LibraryDir)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr: got %q, want :9090", cfg.ListenAddr)
	}
	if cfg.Backend != "sqlite" || cfg.Concurrency != 3 || cfg.APIKey != "topsecret" {
		t.Errorf("got backend=%q concurrency=%d api_key=%q", cfg.Backend, cfg.Concurrency, cfg.APIKey)
	}
	if cfg.Komga.URL != "http://komga:25600" || cfg.Komga.APIKey != "komga-key" {
		t.Errorf("Komga: got %+v", cfg.Komga)
	}
	// Keys missing from the komga block keep their defaults.
	if cfg.Komga.OneshotsDir != "_oneshots" {
		t.Errorf("Komga.OneshotsDir: got %q, want _oneshots", cfg.Komga.OneshotsDir)
	}
	if cfg.Komf.URL != "http://komf:8085" {
		t.Errorf("Komf.URL: got %q", cfg.Komf.URL)
	}
}

func TestLoad_FromTOMLFile(t *testing.T) {
	toml := `
library_dir = "/srv/mangas"
log_level = "debug"

[komga]
url = "http://komga:25600"
api_key = "komga-key"
oneshots_dir = "Oneshots"
`
	path := writeTemp(t, "cbz-edit.toml", toml)
	clearEnv(t)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LibraryDir != "/srv/mangas" || cfg.LogLevel != "debug" {
		t.Errorf("got library_dir=%q log_level=%q", cfg.LibraryDir, cfg.LogLevel)
	}
	if cfg.Komga.OneshotsDir != "Oneshots" || cfg.Komga.APIKey != "komga-key" {
		t.Errorf("Komga: got %+v", cfg.Komga)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr: got %q, want default", cfg.ListenAddr)
	}
}

func TestLoad_PartialYAML_UsesDefaults(t *testing.T) {
	path := writeTemp(t, "partial.yaml", `listen_addr: ":7777"`)
	clearEnv(t)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("ListenAddr: got %q, want :7777", cfg.ListenAddr)
	}
	if cfg.Backend != "fs" {
		t.Errorf("Backend: got %q, want fs (default)", cfg.Backend)
	}
}

func TestLoad_EnvVarsOverrideFile(t *testing.T) {
	yaml := `
library_dir: "/file/mangas"
listen_addr: ":9090"
api_key: "filekey"
komga:
  url: "http://file:25600"
`
	path := writeTemp(t, "config.yaml", yaml)
	clearEnv(t)

	t.Setenv("CBZ_LIBRARY_DIR", "/env/mangas")
	t.Setenv("LISTEN_ADDR", ":5555")
	t.Setenv("CBZ_API_KEY", "envkey")
	t.Setenv("CBZ_CONCURRENCY", "2")
	t.Setenv("KOMGA_URL", "http://env:25600")
	t.Setenv("KOMGA_API_KEY", "envkomga")
	t.Setenv("KOMF_URL", "http://env:8085")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LibraryDir != "/env/mangas" {
		t.Errorf("LibraryDir: got %q, want /env/mangas (from env)", cfg.LibraryDir)
	}
	if cfg.ListenAddr != ":5555" {
		t.Errorf("ListenAddr: got %q, want :5555 (from env)", cfg.ListenAddr)
	}
	if cfg.APIKey != "envkey" || cfg.Concurrency != 2 {
		t.Errorf("APIKey/Concurrency: got %q/%d", cfg.APIKey, cfg.Concurrency)
	}
	if cfg.Komga.URL != "http://env:25600" || cfg.Komga.APIKey != "envkomga" || cfg.Komf.URL != "http://env:8085" {
		t.Errorf("Komga/Komf: got %+v %+v", cfg.Komga, cfg.Komf)
	}
}

func TestLoad_HomeExpansion(t *testing.T) {
	clearEnv(t)
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv("CBZ_LIBRARY_DIR", "~/comics")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if want := filepath.Join(home, "comics"); cfg.LibraryDir != want {
		t.Errorf("LibraryDir: got %q, want %q", cfg.LibraryDir, want)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		file string
		body string
		env  map[string]string
	}{
		{name: "invalid yaml", file: "bad.yaml", body: "{ invalid yaml: ["},
		{name: "invalid toml", file: "bad.toml", body: "library_dir = "},
		{name: "unknown backend", file: "b.yaml", body: "backend: postgres"},
		{name: "negative concurrency", file: "c.yaml", body: "concurrency: -1"},
		{name: "bad concurrency env", env: map[string]string{"CBZ_CONCURRENCY": "many"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := ""
			if tc.file != "" {
				path = writeTemp(t, tc.file, tc.body)
			}
			if _, err := config.Load(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_NonexistentFile_ReturnsError(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent config file, got nil")
	}
}

func TestFindConfigFile_EnvVar(t *testing.T) {
	path := writeTemp(t, "explicit.yaml", "listen_addr: \":1234\"")
	t.Setenv("CBZ_EDIT_CONFIG", path)

	found := config.FindConfigFile()
	if found != path {
		t.Errorf("FindConfigFile: got %q, want %q", found, path)
	}
}

func TestFindConfigFile_LocalTOML(t *testing.T) {
	t.Setenv("CBZ_EDIT_CONFIG", "")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cbz-edit.toml"), []byte(""), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	if found := config.FindConfigFile(); found != "cbz-edit.toml" {
		t.Errorf("FindConfigFile: got %q, want cbz-edit.toml", found)
	}
}

func TestFindConfigFile_NoFile(t *testing.T) {
	t.Setenv("CBZ_EDIT_CONFIG", "")
	t.Chdir(t.TempDir())

	found := config.FindConfigFile()
	// A ~/.config/cbz-edit config may exist on the test machine, so only
	// the local-file cases are checked.
	if found == "cbz-edit.yaml" || found == "cbz-edit.toml" {
		t.Errorf("FindConfigFile returned local file %q from an empty dir", found)
	}
}

// ---- refresh_interval config ----

func TestDefault_RefreshInterval(t *testing.T) {
	cfg := config.Default()
	if cfg.RefreshInterval != 5*time.Minute {
		t.Errorf("default RefreshInterval: got %v, want 5m", cfg.RefreshInterval)
	}
}

func TestLoad_RefreshInterval(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		env  string
		want time.Duration
	}{
		{name: "from yaml", yaml: `refresh_interval: "10m"`, want: 10 * time.Minute},
		{name: "disabled with zero", yaml: `refresh_interval: "0"`, want: 0},
		{name: "from env", env: "30s", want: 30 * time.Second},
		{name: "env disables", env: "0", want: 0},
		{name: "invalid keeps default", yaml: `refresh_interval: "not-a-duration"`, want: 5 * time.Minute},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("REFRESH_INTERVAL", tc.env)
			path := ""
			if tc.yaml != "" {
				path = writeTemp(t, "refresh.yaml", tc.yaml)
			}
			cfg, err := config.Load(path)
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if cfg.RefreshInterval != tc.want {
				t.Errorf("RefreshInterval: got %v, want %v", cfg.RefreshInterval, tc.want)
			}
		})
	}
}

// writeTemp creates a temporary file with the given content and returns its path.
func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writeTemp: %v", err)
	}
	return path
}
