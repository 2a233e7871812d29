package cli

import (
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// NewTableWriter returns a new table.Writer with the styles of the kite shell.
func NewTableWriter() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	tw.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	tw.Style().Color.Footer = text.Colors{text.FgCyan, text.Bold}

	return tw
}

// DimmedColor returns a dimmed *color.Color to print secondary information.
func DimmedColor() *color.Color {
	return color.RGB(128, 128, 128)
}

// ErrorColor is used for failed commands.
func ErrorColor() *color.Color {
	return color.New(color.FgRed)
}
