package cleanup

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Render formats the report for a terminal.
func (r Report) Render() string {
	var b strings.Builder
	if len(r.Removed) == 0 {
		b.WriteString("Nothing to clean up\n")
	} else {
		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"Kind", "Path", "Size"})
		for _, it := range r.Removed {
			tw.AppendRow(table.Row{string(it.Kind), it.Path, humanize.Bytes(uint64(it.Size))})
		}
		tw.AppendFooter(table.Row{"", fmt.Sprintf("%d removed", r.Count()), humanize.Bytes(uint64(r.Bytes()))})
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
		})
		b.WriteString(tw.Render())
		b.WriteString("\n")
	}
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "failed: %s: %v\n", f.Path, f.Err)
	}
	if len(r.Remaining) > 0 {
		fmt.Fprintf(&b, "remaining temp directories: %s\n", strings.Join(r.Remaining, ", "))
	}
	return b.String()
}
