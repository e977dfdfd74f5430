package cli

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// plainRendition strips all borders, lines and separators, leaving only
// whitespace-aligned columns. Status and catalog output stays grep- and
// pipe-friendly that way.
var plainRendition = tw.Rendition{
	Borders: tw.BorderNone,
	Symbols: tw.NewSymbols(tw.StyleASCII),
	Settings: tw.Settings{
		Lines: tw.Lines{
			ShowHeaderLine: tw.Off,
			ShowFooterLine: tw.Off,
			ShowTop:        tw.Off,
			ShowBottom:     tw.Off,
		},
		Separators: tw.Separators{
			ShowHeader:     tw.Off,
			ShowFooter:     tw.Off,
			BetweenRows:    tw.Off,
			BetweenColumns: tw.Off,
		},
	},
}

// renderTable writes header and data as a left-aligned plain table. Cells are
// never wrapped; long values (store targets, error messages) are capped at 60
// columns instead.
func renderTable(header []string, data [][]string, w io.Writer) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(plainRendition)),
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Row: tw.CellConfig{
				Formatting:   tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:    tw.CellAlignment{Global: tw.AlignLeft},
				ColMaxWidths: tw.CellWidth{Global: 60},
			},
		}),
	)

	table.Header(header)
	if err := table.Bulk(data); err != nil {
		return err //nolint:wrapcheck // This is wrapped by the caller.
	}

	return table.Render() //nolint:wrapcheck // This is wrapped by the caller.
}
