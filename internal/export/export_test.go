package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joescharf/maint/internal/models"
)

func TestWorkbook(t *testing.T) {
	created := time.Date(2024, 2, 1, 8, 30, 0, 0, time.UTC)
	scheduled := time.Date(2024, 2, 14, 10, 0, 0, 0, time.UTC)
	issues := []*models.Issue{
		{
			ID: "01A", Title: "Leaky tap", Urgency: 4, Status: models.IssueStatusScheduled,
			LocationID: "L1", LocationName: "Downtown", CreatedBy: models.Identity{ID: "s1", Name: "Sam"},
			CreatedAt: created, ScheduledDate: &scheduled,
			Comments: []models.Comment{
				{Text: "Parts ordered", CreatedAt: created.Add(time.Hour), Author: models.Author{Name: "Maya", Role: models.RoleMaintenance}},
			},
		},
		{ID: "01B", Title: "Door", Urgency: 1, Status: models.IssueStatusPending, LocationID: "L2", CreatedAt: created},
	}
	events := []*models.Event{
		{ID: "01E", Title: "Leaky tap", ScheduledAt: scheduled, LocationName: "Downtown", RelatedIssue: &models.IssueRef{ID: "01A", Title: "Leaky tap"}},
	}

	data, err := Workbook(issues, events, time.UTC)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{IssuesSheet, CommentsSheet, EventsSheet}, f.GetSheetList())

	rows, err := f.GetRows(IssuesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, IssuesHeader, rows[0])
	assert.Equal(t, []string{"01A", "Leaky tap", "", "4", "scheduled", "Downtown", "Sam", "2024-02-01 08:30", "2024-02-14 10:00", "0", "1"}, rows[1])
	assert.Equal(t, "L2", rows[2][5])
	assert.Equal(t, "", rows[2][8])

	rows, err = f.GetRows(CommentsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"01A", "Leaky tap", "Maya", "maintenance", "2024-02-01 09:30", "Parts ordered"}, rows[1])

	rows, err = f.GetRows(EventsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Leaky tap (01A)", rows[1][5])
}

func TestWorkbook_Empty(t *testing.T) {
	data, err := Workbook(nil, nil, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	for _, name := range []string{IssuesSheet, CommentsSheet, EventsSheet} {
		rows, err := f.GetRows(name)
		require.NoError(t, err)
		assert.Len(t, rows, 1, name)
	}
}
