// Package cli implements the cbz-edit command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	fsbackend "github.com/banux/cbz-edit/internal/backend/fs"
	sqlitebackend "github.com/banux/cbz-edit/internal/backend/sqlite"
	"github.com/banux/cbz-edit/internal/batch"
	"github.com/banux/cbz-edit/internal/catalog"
	"github.com/banux/cbz-edit/internal/config"
	"github.com/banux/cbz-edit/internal/logx"
	"github.com/banux/cbz-edit/internal/progress"
)

const lockFilename = ".cbz-edit.lock"

// errLocked is returned when another process is editing the library.
var errLocked = errors.New("another cbz-edit process is editing this library")

// commandContext carries the global flags and the state built from them.
type commandContext struct {
	configFlag  string
	libraryFlag string
	backendFlag string
	logLevel    string

	cfg       config.Config
	log       zerolog.Logger
	logCloser io.Closer
}

// NewRootCommand builds the cbz-edit command tree.
func NewRootCommand() *cobra.Command {
	ctx := &commandContext{log: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:           "cbz-edit",
		Short:         "Edit ComicInfo metadata of CBZ chapter archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if ctx.logCloser != nil {
				return ctx.logCloser.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	flags.StringVarP(&ctx.libraryFlag, "library", "l", "", "Library directory (overrides config)")
	flags.StringVar(&ctx.backendFlag, "backend", "", "Library backend: fs or sqlite (overrides config)")
	flags.StringVar(&ctx.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newScanCommand(ctx),
		newShowCommand(ctx),
		newInfoCommand(ctx),
		newSaveCommand(ctx),
		newApplyCommand(ctx),
		newDeriveCommand(ctx),
		newVolumeCommand(ctx),
		newHistoryCommand(ctx),
		newKomgaCommand(ctx),
		newServeCommand(ctx),
	)
	return rootCmd
}

func (c *commandContext) setup(cmd *cobra.Command) error {
	path := strings.TrimSpace(c.configFlag)
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if c.libraryFlag != "" {
		cfg.LibraryDir = c.libraryFlag
	}
	if c.backendFlag != "" {
		cfg.Backend = c.backendFlag
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if abs, err := filepath.Abs(cfg.LibraryDir); err == nil {
		cfg.LibraryDir = abs
	}
	c.cfg = cfg

	logger, closer, err := logx.New(logx.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	c.log = logger
	c.logCloser = closer
	return nil
}

// openLibrary opens the configured backend. The returned close function
// is never nil.
func (c *commandContext) openLibrary() (catalog.Library, func() error, error) {
	switch c.cfg.Backend {
	case "sqlite":
		b, err := sqlitebackend.New(c.cfg.LibraryDir, c.log)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		b, err := fsbackend.New(c.cfg.LibraryDir, c.log)
		if err != nil {
			return nil, nil, err
		}
		return b, func() error { return nil }, nil
	}
}

// withLibrary runs fn with an open library.
func (c *commandContext) withLibrary(fn func(catalog.Library) error) error {
	lib, closeFn, err := c.openLibrary()
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(lib)
}

// lockLibrary takes the library edit lock so that two processes never
// rewrite the same archives at once.
func (c *commandContext) lockLibrary() (*flock.Flock, error) {
	lock := flock.New(filepath.Join(c.cfg.LibraryDir, lockFilename))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, errLocked
	}
	return lock, nil
}

// withEditor runs fn with a locked library and an Applier reporting to the
// command output.
func (c *commandContext) withEditor(cmd *cobra.Command, fn func(catalog.Library, *batch.Applier) error) error {
	lock, err := c.lockLibrary()
	if err != nil {
		return err
	}
	defer lock.Unlock() //nolint:errcheck

	return c.withLibrary(func(lib catalog.Library) error {
		return fn(lib, c.newApplier(lib, newConsoleSink(cmd.OutOrStdout())))
	})
}

func (c *commandContext) newApplier(lib catalog.Library, sink progress.Sink) *batch.Applier {
	opts := batch.Options{
		Limit:  c.cfg.Concurrency,
		Sink:   sink,
		Logger: c.log,
	}
	if j, ok := lib.(catalog.Journal); ok {
		opts.Journal = j
	}
	return batch.New(opts)
}

// seriesArg looks up the series named by the first argument.
func seriesArg(lib catalog.Library, name string) (*catalog.Series, error) {
	s, err := lib.SeriesByName(name)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("series %q not found in %s", name, lib.Root())
	}
	return s, err
}

// reportError turns a batch failure into a summary error.
func reportError(rep batch.Report, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%d of %d chapters failed, first error: %w", len(rep.Failed), rep.Total, err)
}
