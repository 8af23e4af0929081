package view

import (
	"sort"
	"time"

	"github.com/joescharf/maint/internal/models"
)

// Cell is one square of the month grid. Leading cells before the 1st are
// empty and have a zero Date.
type Cell struct {
	Date   time.Time
	Events []*models.Event
	Today  bool
}

// Empty reports whether the cell is leading padding.
func (c Cell) Empty() bool { return c.Date.IsZero() }

// Grid is a calendar month laid out in Sunday-first weeks.
type Grid struct {
	Year    int
	Month   time.Month
	Leading int
	Cells   []Cell
}

// BuildMonth lays out year/month: one empty cell per weekday before the 1st,
// then one cell per day holding that day's events in time order. There is no
// trailing padding. Event dates are taken in each event's own location.
func BuildMonth(year int, month time.Month, events []*models.Event, today time.Time) Grid {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := DaysIn(year, month)
	leading := int(first.Weekday())

	byDay := make(map[int][]*models.Event)
	for _, ev := range events {
		y, m, d := ev.ScheduledAt.Date()
		if y == year && m == month {
			byDay[d] = append(byDay[d], ev)
		}
	}

	g := Grid{Year: year, Month: month, Leading: leading, Cells: make([]Cell, leading, leading+days)}
	ty, tmo, td := today.Date()
	for d := 1; d <= days; d++ {
		evs := byDay[d]
		sort.SliceStable(evs, func(i, j int) bool {
			return clock(evs[i].ScheduledAt) < clock(evs[j].ScheduledAt)
		})
		g.Cells = append(g.Cells, Cell{
			Date:   time.Date(year, month, d, 0, 0, 0, 0, time.UTC),
			Events: evs,
			Today:  !today.IsZero() && ty == year && tmo == month && td == d,
		})
	}
	return g
}

func clock(t time.Time) int {
	h, m, s := t.Clock()
	return h*3600 + m*60 + s
}

// Rows chunks the cells into weeks of seven; the last row may be short.
func (g Grid) Rows() [][]Cell {
	var rows [][]Cell
	for start := 0; start < len(g.Cells); start += 7 {
		end := start + 7
		if end > len(g.Cells) {
			end = len(g.Cells)
		}
		rows = append(rows, g.Cells[start:end])
	}
	return rows
}

// DaysIn returns the number of days in month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func NextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}

func PrevMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}
