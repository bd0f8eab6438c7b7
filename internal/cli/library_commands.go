package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/banux/cbz-edit/internal/catalog"
	"github.com/banux/cbz-edit/internal/cbz"
	"github.com/banux/cbz-edit/internal/comicinfo"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List the series of the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(func(lib catalog.Library) error {
				series, err := lib.Series()
				if err != nil {
					return err
				}
				if len(series) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No series in %s\n", lib.Root())
					return nil
				}
				rows := make([][]string, 0, len(series))
				for _, s := range series {
					rows = append(rows, []string{s.Name, strconv.Itoa(len(s.Chapters))})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Series", "Chapters"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <series>",
		Short: "List the chapters of a series with their recorded titles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(func(lib catalog.Library) error {
				s, err := seriesArg(lib, args[0])
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(s.Chapters))
				for _, ch := range s.Chapters {
					recorded := "-"
					info, found, err := cbz.ReadComicInfo(ch.Path)
					switch {
					case err != nil:
						recorded = "unreadable"
						ctx.log.Warn().Err(err).Str("path", ch.Path).Msg("read ComicInfo.xml")
					case found:
						recorded = info.Title
					}
					rows = append(rows, []string{
						filepath.Base(ch.Path),
						formatVolume(ch.Volume),
						formatNumber(ch.Number),
						ch.Title,
						strings.Join(ch.Translators, ", "),
						recorded,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"File", "Vol", "Ch", "Title", "Translators", "Recorded title"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info <chapter.cbz>",
		Short: "Print the ComicInfo.xml of a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, found, err := cbz.ReadComicInfo(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			if !found {
				fmt.Fprintf(out, "%s has no %s\n", filepath.Base(args[0]), comicinfo.EntryName)
				return nil
			}
			doc, err := comicinfo.Marshal(info)
			if err != nil {
				return err
			}
			_, err = out.Write(doc)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [chapter.cbz]",
		Short: "Show the rewrite journal (sqlite backend)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(func(lib catalog.Library) error {
				journal, ok := lib.(catalog.Journal)
				if !ok {
					return errors.New("history needs the sqlite backend (--backend sqlite)")
				}
				var path string
				if len(args) == 1 {
					abs, err := filepath.Abs(args[0])
					if err != nil {
						return err
					}
					path = abs
				}
				revs, err := journal.History(path, limit)
				if err != nil {
					return err
				}
				if len(revs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No revisions recorded")
					return nil
				}
				rows := make([][]string, 0, len(revs))
				for _, r := range revs {
					status := "ok"
					if r.Error != "" {
						status = r.Error
					}
					rows = append(rows, []string{
						r.Started.Local().Format(time.DateTime),
						r.Policy,
						filepath.Base(r.Path),
						r.Elapsed.Round(time.Millisecond).String(),
						status,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Started", "Policy", "File", "Took", "Result"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of revisions, 0 for all")
	return cmd
}
