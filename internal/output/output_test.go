package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/maint/internal/models"
)

func testUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &UI{Out: &out, ErrOut: &errOut}, &out, &errOut
}

func TestMessagesRouteToStreams(t *testing.T) {
	u, out, errOut := testUI()
	u.Info("reported %s", "tap")
	u.Success("scheduled %d", 2)
	u.Warning("photo %s skipped", "a.jpg")
	u.Error("issue %s not found", "x")

	assert.Contains(t, out.String(), "reported tap")
	assert.Contains(t, out.String(), "scheduled 2")
	assert.NotContains(t, out.String(), "skipped")
	assert.Contains(t, errOut.String(), "photo a.jpg skipped")
	assert.Contains(t, errOut.String(), "issue x not found")
}

func TestVerboseLog(t *testing.T) {
	u, out, _ := testUI()
	u.VerboseLog("hidden")
	assert.Empty(t, out.String())

	u.Verbose = true
	u.VerboseLog("loading %d issues", 3)
	assert.Contains(t, out.String(), "loading 3 issues")
}

func TestDryRunMsg(t *testing.T) {
	u, _, errOut := testUI()
	u.DryRunMsg("would delete %s", "evt")
	assert.Empty(t, errOut.String())

	u.DryRun = true
	u.DryRunMsg("would delete %s", "evt")
	assert.Contains(t, errOut.String(), "[DRY-RUN] would delete evt")
}

func TestStatusColor(t *testing.T) {
	for _, s := range models.IssueStatuses {
		assert.Contains(t, StatusColor(s), string(s))
	}
	assert.Equal(t, "open", StatusColor("open"))
}

func TestUrgencyColor(t *testing.T) {
	assert.Contains(t, UrgencyColor(5), "5/5")
	assert.Contains(t, UrgencyColor(3), "3/5")
	assert.Contains(t, UrgencyColor(1), "1/5")
}

func TestShortIDAndLocation(t *testing.T) {
	assert.Equal(t, "01HXYZABCDEF", ShortID("01HXYZABCDEFGHIJK"))
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "Main St", Location("Main St", "loc-1"))
	assert.Equal(t, "loc-1", Location("", "loc-1"))
}

func TestWhenAndAgo(t *testing.T) {
	at := time.Date(2026, time.March, 3, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "Tue Mar 3 2026 09:30", When(at))

	assert.Equal(t, "just now", Ago(at, at.Add(20*time.Second)))
	assert.Equal(t, "5m ago", Ago(at, at.Add(5*time.Minute)))
	assert.Equal(t, "2h ago", Ago(at, at.Add(150*time.Minute)))
	assert.Equal(t, "1d ago", Ago(at, at.Add(30*time.Hour)))
	assert.Equal(t, "9d ago", Ago(at, at.Add(9*24*time.Hour)))
}

func TestTable(t *testing.T) {
	u, out, _ := testUI()
	tbl := u.Table([]string{"Title", "Status"})
	require.NoError(t, tbl.Append([]string{"tap", "pending"}))
	require.NoError(t, tbl.Append([]string{"door", "scheduled"}))
	require.NoError(t, tbl.Render())

	assert.Contains(t, out.String(), "tap")
	assert.Contains(t, out.String(), "door")
}
