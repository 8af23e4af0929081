package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/maint/internal/output"
	"github.com/joescharf/maint/internal/view"
)

var (
	calendarYear  int
	calendarMonth int
)

var calendarCmd = &cobra.Command{
	Use:     "calendar",
	Aliases: []string{"cal"},
	Short:   "Show the month's scheduled events as a grid",
	RunE: func(cmd *cobra.Command, args []string) error {
		return calendarRun(time.Now())
	},
}

func init() {
	calendarCmd.Flags().IntVar(&calendarYear, "year", 0, "Year (default: current)")
	calendarCmd.Flags().IntVar(&calendarMonth, "month", 0, "Month 1-12 (default: current)")
	rootCmd.AddCommand(calendarCmd)
}

func calendarRun(now time.Time) error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	now = now.In(t.Events.Location())

	year, month := now.Year(), now.Month()
	if calendarYear != 0 {
		year = calendarYear
	}
	if calendarMonth != 0 {
		if calendarMonth < 1 || calendarMonth > 12 {
			return fmt.Errorf("month must be 1-12, got %d", calendarMonth)
		}
		month = time.Month(calendarMonth)
	}

	events, err := t.Events.List(context.Background(), currentCaller())
	if err != nil {
		return err
	}
	renderGrid(view.BuildMonth(year, month, events, now))
	return nil
}

// renderGrid prints one table row per week; each cell lists the day number
// and that day's events.
func renderGrid(g view.Grid) {
	fmt.Fprintf(ui.Out, "%s %d\n\n", g.Month, g.Year)

	table := ui.Table([]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"})
	for _, week := range g.Rows() {
		row := make([]string, 7)
		for i, cell := range week {
			row[i] = cellText(cell)
		}
		_ = table.Append(row)
	}
	_ = table.Render()
}

func cellText(c view.Cell) string {
	if c.Empty() {
		return ""
	}
	day := fmt.Sprint(c.Date.Day())
	if c.Today {
		day = output.Green("[" + day + "]")
	}
	lines := []string{day}
	for _, ev := range c.Events {
		lines = append(lines, ev.ScheduledAt.Format("15:04")+" "+truncate(ev.Title, 14))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
