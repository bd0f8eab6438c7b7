package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banux/cbz-edit/internal/batch"
	"github.com/banux/cbz-edit/internal/catalog"
	"github.com/banux/cbz-edit/internal/cbz"
	"github.com/banux/cbz-edit/internal/comicinfo"
	"github.com/banux/cbz-edit/internal/filename"
)

func newSaveCommand(ctx *commandContext) *cobra.Command {
	var rf recordFlags
	cmd := &cobra.Command{
		Use:   "save <chapter.cbz>",
		Short: "Replace the ComicInfo.xml of one chapter",
		Long: `Replace the ComicInfo.xml of one chapter.

The new record starts from --file when given, otherwise from the current
record of the archive, and every field flag is applied on top.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			current, _, err := cbz.ReadComicInfo(path)
			if err != nil {
				return err
			}
			info, err := rf.build(cmd.Flags(), current)
			if err != nil {
				return err
			}
			return ctx.withEditor(cmd, func(_ catalog.Library, a *batch.Applier) error {
				return a.SaveChapter(filename.Parse(path, filepath.Base(path)), info)
			})
		},
	}
	rf.register(cmd.Flags())
	return cmd
}

func newApplyCommand(ctx *commandContext) *cobra.Command {
	var rf recordFlags
	cmd := &cobra.Command{
		Use:   "apply <series>",
		Short: "Write series-wide fields to every chapter of a series",
		Long: `Write series-wide fields to every chapter of a series.

Series, summary, writer, penciller, publisher, genre, tags, web, language,
manga, age rating and count come from --file and the field flags; each
chapter keeps its own title, number, volume, translator, date and page count.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEditor(cmd, func(lib catalog.Library, a *batch.Applier) error {
				s, err := seriesArg(lib, args[0])
				if err != nil {
					return err
				}
				info, err := rf.build(cmd.Flags(), seriesDefaults(s))
				if err != nil {
					return err
				}
				return reportError(a.ApplySeries(s.Chapters, info))
			})
		},
	}
	rf.register(cmd.Flags())
	return cmd
}

func newDeriveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "derive <series>",
		Short: "Write each chapter's title, number, volume and translators from its filename",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEditor(cmd, func(lib catalog.Library, a *batch.Applier) error {
				s, err := seriesArg(lib, args[0])
				if err != nil {
					return err
				}
				return reportError(a.DeriveChapters(s.Chapters))
			})
		},
	}
}

func newVolumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "volume <series> <volume|none>",
		Short: "Set the volume of every chapter of a series",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			volume, err := parseOptUint(args[1])
			if err != nil {
				return fmt.Errorf("invalid volume %q: %w", args[1], err)
			}
			return ctx.withEditor(cmd, func(lib catalog.Library, a *batch.Applier) error {
				s, err := seriesArg(lib, args[0])
				if err != nil {
					return err
				}
				return reportError(a.ApplyVolume(s.Chapters, volume))
			})
		},
	}
}

// seriesDefaults is the starting record for "apply": the shared fields of
// the first chapter that has a record, with the directory name as series.
// Flags then only need to name what changes.
func seriesDefaults(s *catalog.Series) comicinfo.ComicInfo {
	for _, ch := range s.Chapters {
		if info, found, err := cbz.ReadComicInfo(ch.Path); err == nil && found {
			if info.Series == "" {
				info.Series = s.Name
			}
			return info
		}
	}
	return comicinfo.ComicInfo{Series: s.Name}
}
