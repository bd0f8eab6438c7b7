package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banux/cbz-edit/internal/batch"
	"github.com/banux/cbz-edit/internal/catalog"
	"github.com/banux/cbz-edit/internal/komga"
	"github.com/banux/cbz-edit/internal/progress"
	"github.com/banux/cbz-edit/internal/server"
	"github.com/banux/cbz-edit/web"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the editing API and web UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				ctx.cfg.ListenAddr = addr
			}
			return ctx.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "Listen address (overrides config)")
	return cmd
}

func (c *commandContext) serve(parent context.Context) error {
	lock, err := c.lockLibrary()
	if err != nil {
		return err
	}
	defer lock.Unlock() //nolint:errcheck

	lib, closeLib, err := c.openLibrary()
	if err != nil {
		return err
	}
	defer closeLib()

	if c.cfg.APIKey == "" {
		c.log.Warn().Msg("api_key is not set, authentication is disabled")
	}

	hub := progress.NewHub(32)
	applier := c.newApplier(lib, hub)
	srv := server.New(lib, server.Options{
		APIKey:   c.cfg.APIKey,
		StaticFS: web.FS,
		Progress: hub,
		Applier:  applier,
		Syncer:   c.newSyncer(applier, true),
		Logger:   c.log,
	})

	httpSrv := &http.Server{
		Addr:              c.cfg.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.cfg.RefreshInterval > 0 {
		go c.refreshLoop(ctx, lib, c.cfg.RefreshInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		c.log.Info().
			Str("addr", c.cfg.ListenAddr).
			Str("library", lib.Root()).
			Str("backend", c.cfg.Backend).
			Msg("cbz-edit listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	c.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = httpSrv.Shutdown(shutdownCtx)
	// Running batches finish so no archive is left half written.
	srv.Wait()
	return err
}

func (c *commandContext) refreshLoop(ctx context.Context, lib catalog.Library, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lib.Refresh(); err != nil {
				c.log.Warn().Err(err).Msg("library refresh failed")
			}
		}
	}
}

// newSyncer returns a Komga syncer, or nil when no Komga URL is set.
func (c *commandContext) newSyncer(applier *batch.Applier, useKomf bool) *komga.Syncer {
	if c.cfg.Komga.URL == "" {
		return nil
	}
	s := &komga.Syncer{
		Komga:       komga.NewClient(c.cfg.Komga.URL, c.cfg.Komga.APIKey, nil),
		Applier:     applier,
		OneshotsDir: c.cfg.Komga.OneshotsDir,
		Logger:      c.log,
	}
	if useKomf && c.cfg.Komf.URL != "" {
		s.Komf = komga.NewKomf(c.cfg.Komf.URL, nil)
	}
	return s
}
