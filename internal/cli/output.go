package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// consoleSink prints status messages, one per line, coloring them when the
// writer is a terminal.
type consoleSink struct {
	mu      sync.Mutex
	w       io.Writer
	working *color.Color
	done    *color.Color
}

func newConsoleSink(w io.Writer) *consoleSink {
	s := &consoleSink{
		w:       w,
		working: color.New(color.FgCyan),
		done:    color.New(color.Bold, color.FgGreen),
	}
	if shouldColorize(w) {
		s.working.EnableColor()
		s.done.EnableColor()
	} else {
		s.working.DisableColor()
		s.done.DisableColor()
	}
	return s
}

// Send implements progress.Sink.
func (s *consoleSink) Send(msg string) {
	c := s.working
	if strings.HasPrefix(msg, "All done") {
		c = s.done
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, c.Sprint(msg))
}

func formatVolume(v *uint32) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func formatNumber(n *float64) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprint(*n)
}
