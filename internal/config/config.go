// Package config handles loading application configuration from a YAML or
// TOML file with environment variable overrides.
//
// Config file format (cbz-edit.yaml):
//
//	library_dir: "~/Documents/Mangas"
//	listen_addr: ":8080"
//	concurrency: 4
//	komga:
//	  url: "http://127.0.0.1:25600"
//	  api_key: "secret"
//
// The same keys are accepted in TOML (cbz-edit.toml), with komga and komf
// as tables.
//
// Configuration sources, in increasing priority order:
//  1. Built-in defaults
//  2. Config file (located by FindConfigFile or explicit path)
//  3. Environment variables (CBZ_LIBRARY_DIR, LISTEN_ADDR, KOMGA_URL, ...)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// KomgaConfig locates the Komga server used by "komga sync".
type KomgaConfig struct {
	URL    string `yaml:"url" toml:"url"`
	APIKey string `yaml:"api_key" toml:"api_key"`

	// OneshotsDir is the library subdirectory Komga treats as a series of
	// standalone books.
	OneshotsDir string `yaml:"oneshots_dir" toml:"oneshots_dir"`
}

// KomfConfig locates the Komf metadata fetcher.
type KomfConfig struct {
	URL string `yaml:"url" toml:"url"`
}

// Config holds all application configuration.
type Config struct {
	// LibraryDir is the root directory; each subdirectory is a series.
	LibraryDir string `yaml:"library_dir" toml:"library_dir"`

	// ListenAddr is the TCP address for the HTTP server (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`

	// Backend selects the library index implementation.
	// "fs"     – in-memory index rebuilt from a directory walk (default)
	// "sqlite" – SQLite index with an edit journal, stored in .cbz-edit.db
	Backend string `yaml:"backend" toml:"backend"`

	// Concurrency bounds parallel archive rewrites. 0 uses every CPU.
	Concurrency int `yaml:"concurrency" toml:"concurrency"`

	// APIKey protects the HTTP API. Leave empty to disable authentication.
	APIKey string `yaml:"api_key" toml:"api_key"`

	LogLevel string `yaml:"log_level" toml:"log_level"`
	LogFile  string `yaml:"log_file" toml:"log_file"`

	// RefreshIntervalStr is how often the server rescans the library, as a
	// duration string ("5m", "30s"). "0" disables background refresh.
	// Parsed into RefreshInterval by Load().
	RefreshIntervalStr string `yaml:"refresh_interval" toml:"refresh_interval"`

	// RefreshInterval is the parsed form of RefreshIntervalStr.
	RefreshInterval time.Duration `yaml:"-" toml:"-"`

	Komga KomgaConfig `yaml:"komga" toml:"komga"`
	Komf  KomfConfig  `yaml:"komf" toml:"komf"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		LibraryDir:         defaultLibraryDir(),
		ListenAddr:         ":8080",
		Backend:            "fs",
		LogLevel:           "info",
		RefreshIntervalStr: "5m",
		RefreshInterval:    5 * time.Minute,
		Komga: KomgaConfig{
			URL:         "http://127.0.0.1:25600",
			OneshotsDir: "_oneshots",
		},
		Komf: KomfConfig{
			URL: "http://127.0.0.1:8085",
		},
	}
}

func defaultLibraryDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Documents", "Mangas")
	}
	return "./Mangas"
}

// Load reads configuration from the file at path (if non-empty), then
// applies environment variable overrides on top. Files ending in .toml are
// parsed as TOML, anything else as YAML.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			err = toml.Unmarshal(data, &cfg)
		} else {
			err = yaml.Unmarshal(data, &cfg)
		}
		if err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	// Environment variables always override file values so that Docker /
	// systemd overrides still work even when a config file is present.
	if v := os.Getenv("CBZ_LIBRARY_DIR"); v != "" {
		cfg.LibraryDir = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CBZ_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("CBZ_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("CBZ_CONCURRENCY: %w", err)
		}
		cfg.Concurrency = n
	}
	if v := os.Getenv("CBZ_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("CBZ_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		cfg.RefreshIntervalStr = v
	}
	if v := os.Getenv("KOMGA_URL"); v != "" {
		cfg.Komga.URL = v
	}
	if v := os.Getenv("KOMGA_API_KEY"); v != "" {
		cfg.Komga.APIKey = v
	}
	if v := os.Getenv("KOMF_URL"); v != "" {
		cfg.Komf.URL = v
	}

	cfg.LibraryDir = expandHome(cfg.LibraryDir)

	if cfg.RefreshIntervalStr != "" && cfg.RefreshIntervalStr != "0" {
		if d, err := time.ParseDuration(cfg.RefreshIntervalStr); err == nil {
			cfg.RefreshInterval = d
		}
		// Invalid strings are ignored; the default (5m) is preserved.
	} else {
		cfg.RefreshInterval = 0
	}

	return cfg, cfg.Validate()
}

// Validate reports settings no component can work with.
func (c Config) Validate() error {
	switch c.Backend {
	case "fs", "sqlite":
	default:
		return fmt.Errorf("unknown backend %q (want fs or sqlite)", c.Backend)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.LibraryDir == "" {
		return fmt.Errorf("library_dir is required")
	}
	return nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// FindConfigFile returns the path to the first config file found in the
// standard search order, or "" if none is found.
//
// Search order:
//  1. CBZ_EDIT_CONFIG environment variable (explicit override)
//  2. ./cbz-edit.yaml, ./cbz-edit.toml (current working directory)
//  3. ~/.config/cbz-edit/config.yaml, config.toml (XDG user config)
func FindConfigFile() string {
	if p := os.Getenv("CBZ_EDIT_CONFIG"); p != "" {
		return p
	}

	for _, name := range []string{"cbz-edit.yaml", "cbz-edit.toml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		for _, name := range []string{"config.yaml", "config.toml"} {
			p := filepath.Join(home, ".config", "cbz-edit", name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}

	return ""
}
