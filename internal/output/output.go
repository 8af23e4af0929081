// Package output renders CLI messages and tables for maint.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// UI writes prefixed, colored messages. Informational lines go to Out and
// warnings or errors to ErrOut so piped output stays clean.
type UI struct {
	Verbose bool
	DryRun  bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New returns a UI bound to the process's stdout and stderr.
func New() *UI {
	return &UI{Out: os.Stdout, ErrOut: os.Stderr}
}

var (
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
	blue   = color.New(color.FgHiBlue).SprintFunc()

	markInfo    = blue("i")
	markOK      = green("✓")
	markWarn    = yellow("⚠")
	markFail    = red("✗")
	markVerbose = blue("  →")
)

func Cyan(s string) string   { return cyan(s) }
func Green(s string) string  { return green(s) }
func Yellow(s string) string { return yellow(s) }
func Red(s string) string    { return red(s) }

func line(w io.Writer, mark, format string, a []any) {
	fmt.Fprintln(w, mark, fmt.Sprintf(format, a...))
}

func (u *UI) Info(format string, a ...any)    { line(u.Out, markInfo, format, a) }
func (u *UI) Success(format string, a ...any) { line(u.Out, markOK, format, a) }
func (u *UI) Warning(format string, a ...any) { line(u.ErrOut, markWarn, format, a) }
func (u *UI) Error(format string, a ...any)   { line(u.ErrOut, markFail, format, a) }

// VerboseLog prints only when --verbose is set.
func (u *UI) VerboseLog(format string, a ...any) {
	if !u.Verbose {
		return
	}
	line(u.Out, markVerbose, format, a)
}

// DryRunMsg describes a change that --dry-run suppressed.
func (u *UI) DryRunMsg(format string, a ...any) {
	if !u.DryRun {
		return
	}
	u.Warning("[DRY-RUN] "+format, a...)
}

// Table returns a borderless, left-aligned table with the given header row.
func (u *UI) Table(headers []string) *tablewriter.Table {
	t := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	t.Header(headers)
	return t
}
