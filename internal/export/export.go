// Package export writes issues and events to an Excel workbook.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joescharf/maint/internal/models"
)

const timeLayout = "2006-01-02 15:04"

// Sheet names.
const (
	IssuesSheet   = "Issues"
	CommentsSheet = "Comments"
	EventsSheet   = "Events"
)

var (
	IssuesHeader   = []string{"ID", "Title", "Description", "Urgency", "Status", "Location", "Reported By", "Reported At", "Scheduled For", "Images", "Comments"}
	CommentsHeader = []string{"Issue ID", "Issue Title", "Author", "Role", "Written At", "Text"}
	EventsHeader   = []string{"ID", "Title", "Description", "Scheduled At", "Location", "Related Issue", "Created By"}
)

var (
	issuesWidths   = []float64{28, 30, 45, 9, 12, 18, 18, 17, 17, 8, 10}
	commentsWidths = []float64{28, 30, 18, 13, 17, 60}
	eventsWidths   = []float64{28, 30, 45, 17, 18, 30, 18}
)

type sheet struct {
	name   string
	header []string
	widths []float64
	rows   [][]any
}

// Workbook renders issues, their comments and events into an xlsx file.
// Times are written in loc.
func Workbook(issues []*models.Issue, events []*models.Event, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.Local
	}
	stamp := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.In(loc).Format(timeLayout)
	}

	issueRows := make([][]any, 0, len(issues))
	var commentRows [][]any
	for _, i := range issues {
		scheduled := ""
		if i.ScheduledDate != nil {
			scheduled = stamp(*i.ScheduledDate)
		}
		issueRows = append(issueRows, []any{
			i.ID, i.Title, i.Description, i.Urgency, string(i.Status),
			location(i.LocationName, i.LocationID), i.CreatedBy.Name, stamp(i.CreatedAt),
			scheduled, len(i.Images), len(i.Comments),
		})
		for _, c := range i.Comments {
			commentRows = append(commentRows, []any{
				i.ID, i.Title, c.Author.Name, string(c.Author.Role), stamp(c.CreatedAt), c.Text,
			})
		}
	}

	eventRows := make([][]any, 0, len(events))
	for _, e := range events {
		related := ""
		if e.RelatedIssue != nil {
			related = strings.TrimSpace(e.RelatedIssue.Title + " (" + e.RelatedIssue.ID + ")")
		}
		eventRows = append(eventRows, []any{
			e.ID, e.Title, e.Description, stamp(e.ScheduledAt),
			location(e.LocationName, e.LocationID), related, e.CreatedBy.Name,
		})
	}

	return render([]sheet{
		{name: IssuesSheet, header: IssuesHeader, widths: issuesWidths, rows: issueRows},
		{name: CommentsSheet, header: CommentsHeader, widths: commentsWidths, rows: commentRows},
		{name: EventsSheet, header: EventsHeader, widths: eventsWidths, rows: eventRows},
	})
}

func location(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

func render(sheets []sheet) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for n, s := range sheets {
		index, err := f.NewSheet(s.name)
		if err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", s.name, err)
		}
		if n == 0 {
			f.SetActiveSheet(index)
		}
		if err := writeSheet(f, s, headerStyle); err != nil {
			return nil, fmt.Errorf("write sheet %s: %w", s.name, err)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, s sheet, headerStyle int) error {
	if err := f.SetSheetRow(s.name, "A1", &s.header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(s.header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(s.name, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, w := range s.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(s.name, col, col, w); err != nil {
			return err
		}
	}
	for r, row := range s.rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.name, cell, &row); err != nil {
			return err
		}
	}
	return f.SetPanes(s.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
