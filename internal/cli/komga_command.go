package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banux/cbz-edit/internal/batch"
	"github.com/banux/cbz-edit/internal/catalog"
)

func newKomgaCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "komga",
		Short: "Exchange metadata with a Komga server",
	}
	cmd.AddCommand(newKomgaSyncCommand(ctx))
	return cmd
}

func newKomgaSyncCommand(ctx *commandContext) *cobra.Command {
	var noKomf bool
	cmd := &cobra.Command{
		Use:   "sync <series>",
		Short: "Write Komga series metadata into every chapter of a series",
		Long: `Write Komga series metadata into every chapter of a series.

When a Komf URL is configured the series is first identified with Komf,
then its metadata is read back from Komga, written to the archives, and
Komga is asked to analyze the series again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEditor(cmd, func(lib catalog.Library, a *batch.Applier) error {
				syncer := ctx.newSyncer(a, !noKomf)
				if syncer == nil {
					return errors.New("komga.url is not configured")
				}
				s, err := seriesArg(lib, args[0])
				if err != nil {
					return err
				}
				reports, err := syncer.Sync(cmd.Context(), *s)
				if err != nil {
					return err
				}
				total := 0
				for _, r := range reports {
					total += r.Total
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Synced %d chapters of %s from %s\n", total, s.Name, syncer.Komga)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noKomf, "no-komf", false, "Skip identification with Komf")
	return cmd
}
