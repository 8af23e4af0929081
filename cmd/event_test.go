package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joescharf/maint/internal/export"
	"github.com/joescharf/maint/internal/models"
	"github.com/joescharf/maint/internal/tracker"
)

func resetEventFlags() {
	eventTitle, eventDesc, eventDate, eventTime = "", "", "", tracker.DefaultTimeOfDay
	eventLocation, eventLocName = "", ""
	calendarYear, calendarMonth = 0, 0
	exportFormat, exportType, exportOut = "json", "issues", ""
}

func TestEventAdd_MaintenanceOnly(t *testing.T) {
	testEnv(t)
	resetEventFlags()
	eventTitle, eventDate = "Boiler service", "2024-02-14"

	actAs(models.RoleStaff, "L1")
	assert.ErrorIs(t, eventAddRun(), tracker.ErrForbidden)

	actAs(models.RoleMaintenance, "")
	eventLocation, eventLocName = "L1", "Downtown"
	require.NoError(t, eventAddRun())

	out := captureOutput(t)
	actAs(models.RoleStaff, "L1")
	require.NoError(t, eventListRun())
	assert.Contains(t, out.String(), "Boiler service")
	assert.Contains(t, out.String(), "Downtown")

	out.Reset()
	actAs(models.RoleStaff, "L2")
	require.NoError(t, eventListRun())
	assert.Contains(t, out.String(), "No events scheduled")
}

func TestEventAdd_BadDate(t *testing.T) {
	testEnv(t)
	resetEventFlags()
	actAs(models.RoleMaintenance, "")
	eventTitle, eventDate = "Boiler service", "14/02/2024"

	var verr *tracker.ValidationError
	assert.ErrorAs(t, eventAddRun(), &verr)
}

func TestEventRm_ByPrefix(t *testing.T) {
	testEnv(t)
	resetEventFlags()
	actAs(models.RoleMaintenance, "")
	eventTitle, eventDate = "Boiler service", "2024-02-14"
	require.NoError(t, eventAddRun())

	tr, err := getTracker()
	require.NoError(t, err)
	events, err := tr.Events.List(context.Background(), currentCaller())
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.NoError(t, eventRmRun(strings.ToLower(events[0].ID[:12])))
	events, err = tr.Events.List(context.Background(), currentCaller())
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.ErrorIs(t, eventRmRun("NOPE"), tracker.ErrNotFound)
}

func TestCalendarRun(t *testing.T) {
	testEnv(t)
	resetEventFlags()
	actAs(models.RoleMaintenance, "")
	eventTitle, eventDate, eventTime = "Boiler service", "2024-02-14", "10:00"
	require.NoError(t, eventAddRun())

	out := captureOutput(t)
	now := time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, calendarRun(now))
	assert.Contains(t, out.String(), "February 2024")
	assert.Contains(t, out.String(), "10:00 Boiler service")

	out.Reset()
	calendarMonth = 3
	require.NoError(t, calendarRun(now))
	assert.Contains(t, out.String(), "March 2024")
	assert.NotContains(t, out.String(), "Boiler service")

	calendarMonth = 13
	assert.Error(t, calendarRun(now))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 14))
	assert.Equal(t, "Replace the…", truncate("Replace the boiler", 12))
}

func TestExport_JSONAndCSV(t *testing.T) {
	testEnv(t)
	resetIssueFlags(t)
	resetEventFlags()
	addIssue(t, "L1", "Leaking sink", 4)

	out := captureOutput(t)
	require.NoError(t, exportRun())
	assert.Contains(t, out.String(), `"title": "Leaking sink"`)

	out.Reset()
	exportFormat = "csv"
	require.NoError(t, exportRun())
	assert.Contains(t, out.String(), "ID,Title,Urgency,Status,Location,Comments,Created")
	assert.Contains(t, out.String(), "Leaking sink,4,pending,L1,0")

	exportType = "projects"
	assert.Error(t, exportRun())
}

func TestExport_Workbook(t *testing.T) {
	dir := testEnv(t)
	resetIssueFlags(t)
	resetEventFlags()
	addIssue(t, "L1", "Leaking sink", 4)

	exportFormat = "xlsx"
	assert.Error(t, exportRun(), "xlsx needs --out")

	exportOut = filepath.Join(dir, "maint.xlsx")
	require.NoError(t, exportRun())

	f, err := excelize.OpenFile(exportOut)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{export.IssuesSheet, export.CommentsSheet, export.EventsSheet}, f.GetSheetList())
	title, err := f.GetCellValue(export.IssuesSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "Leaking sink", title)
}

func TestGetStore_UnknownDriver(t *testing.T) {
	testEnv(t)
	viper.Set("db.driver", "mongo")

	_, err := getStore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown db.driver")
}

func TestGetStore_OpenFailureClosesRedisClient(t *testing.T) {
	dir := testEnv(t)
	// A directory is not a database file.
	viper.Set("db.path", dir)
	viper.Set("redis.addr", "127.0.0.1:1")

	var client *redis.Client
	orig := newRedisClient
	newRedisClient = func(addr string) *redis.Client {
		client = orig(addr)
		return client
	}
	t.Cleanup(func() { newRedisClient = orig })

	_, err := getStore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open database")
	require.NotNil(t, client)
	assert.ErrorContains(t, client.Ping(context.Background()).Err(), "client is closed")
}

func TestCalendarLocation(t *testing.T) {
	testEnv(t)

	viper.Set("calendar.timezone", "Local")
	loc, err := calendarLocation()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	viper.Set("calendar.timezone", "Not/AZone")
	_, err = calendarLocation()
	assert.Error(t, err)
}
