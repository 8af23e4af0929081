package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/maint/internal/docstore"
	"github.com/joescharf/maint/internal/models"
	"github.com/joescharf/maint/internal/view"
)

func TestSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue, err := env.tracker.Issues.Create(ctx, staffL1, NewIssue{Title: "Walk-in cooler"})
	require.NoError(t, err)

	ev, err := env.tracker.Coordinator.Schedule(ctx, maintCaller, issue.ID, "2024-02-14", "")
	require.NoError(t, err)
	require.NotNil(t, ev.RelatedIssue)
	assert.Equal(t, models.IssueRef{ID: issue.ID, Title: "Walk-in cooler"}, *ev.RelatedIssue)
	assert.Equal(t, "L1", ev.LocationID, "event belongs to the issue's location")
	assert.True(t, time.Date(2024, 2, 14, 9, 0, 0, 0, time.UTC).Equal(ev.ScheduledAt))

	got, err := env.tracker.Issues.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusScheduled, got.Status)
	require.NotNil(t, got.ScheduledDate)
	assert.True(t, ev.ScheduledAt.Equal(*got.ScheduledDate))

	assert.Contains(t, env.notifier.tags(), "event-"+ev.ID)

	// location staff see the event
	visible, err := env.tracker.Events.List(ctx, staffL1)
	require.NoError(t, err)
	assert.Len(t, visible, 1)
}

func TestSchedule_ShowsOnceInCalendarCell(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue, err := env.tracker.Issues.Create(ctx, staffL1, NewIssue{Title: "Fryer"})
	require.NoError(t, err)
	_, err = env.tracker.Coordinator.Schedule(ctx, maintCaller, issue.ID, "2024-02-29", "13:15")
	require.NoError(t, err)
	_, err = env.tracker.Events.Create(ctx, maintCaller, NewEvent{Title: "Unrelated", Date: "2024-02-29", Time: "08:00"})
	require.NoError(t, err)

	events, err := env.tracker.Events.List(ctx, maintCaller)
	require.NoError(t, err)
	grid := view.BuildMonth(2024, time.February, events, time.Time{})

	count := 0
	for _, cell := range grid.Cells {
		if cell.Empty() || cell.Date.Day() != 29 {
			continue
		}
		for _, ev := range cell.Events {
			if ev.Title == "Fryer" {
				count++
			}
		}
	}
	assert.Equal(t, 1, count)
}

func TestSchedule_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.tracker.Coordinator.Schedule(ctx, maintCaller, "missing", "2024-02-14", "")
	assert.ErrorIs(t, err, ErrNotFound)

	issue, err := env.tracker.Issues.Create(ctx, staffL1, NewIssue{Title: "x"})
	require.NoError(t, err)

	var verr *ValidationError
	_, err = env.tracker.Coordinator.Schedule(ctx, maintCaller, issue.ID, "", "")
	assert.ErrorAs(t, err, &verr)

	_, err = env.tracker.Coordinator.Schedule(ctx, maintCaller, issue.ID, "2024-02-14", "")
	require.NoError(t, err)
	_, err = env.tracker.Coordinator.Schedule(ctx, maintCaller, issue.ID, "2024-02-15", "")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSchedule_RefusesIssueWithLiveEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue, err := env.tracker.Issues.Create(ctx, staffL1, NewIssue{Title: "Walk-in cooler"})
	require.NoError(t, err)
	first, err := env.tracker.Coordinator.Schedule(ctx, maintCaller, issue.ID, "2024-03-05", "09:00")
	require.NoError(t, err)

	// Status moved off scheduled while the event is still on the calendar.
	require.NoError(t, env.tracker.Issues.SetStatus(ctx, issue.ID, models.IssueStatusCompleted))
	require.NoError(t, env.tracker.Issues.SetStatus(ctx, issue.ID, models.IssueStatusInProgress))

	_, err = env.tracker.Coordinator.Schedule(ctx, maintCaller, issue.ID, "2024-03-06", "09:00")
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), first.ID)

	events, err := env.tracker.Events.List(ctx, maintCaller)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// Once the event is gone the issue can be scheduled again.
	require.NoError(t, env.tracker.Coordinator.Unschedule(ctx, first.ID))
	_, err = env.tracker.Coordinator.Schedule(ctx, maintCaller, issue.ID, "2024-03-06", "09:00")
	require.NoError(t, err)
}

func TestSchedule_PartialFailure(t *testing.T) {
	boom := errors.New("write rejected")
	hooked := &hookStore{}
	env := newTestEnv(t, func(s docstore.Store) docstore.Store {
		hooked.Store = s
		return hooked
	})
	ctx := context.Background()

	issue, err := env.tracker.Issues.Create(ctx, staffL1, NewIssue{Title: "Hood vent"})
	require.NoError(t, err)

	hooked.beforeUpdate = func(collection, id string) error {
		if collection == IssuesCollection {
			return boom
		}
		return nil
	}

	ev, err := env.tracker.Coordinator.Schedule(ctx, maintCaller, issue.ID, "2024-02-14", "10:00")
	var perr *PartialFailureError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "schedule", perr.Op)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, ev)

	// the event stays, the issue does not move
	_, err = env.tracker.Events.Get(ctx, ev.ID)
	assert.NoError(t, err)
	got, err := env.tracker.Issues.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusPending, got.Status)
}

func TestUnschedule_ResetsRelatedIssue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue, err := env.tracker.Issues.Create(ctx, staffL1, NewIssue{Title: "Ice machine"})
	require.NoError(t, err)
	ev, err := env.tracker.Coordinator.Schedule(ctx, maintCaller, issue.ID, "2024-02-14", "")
	require.NoError(t, err)

	require.NoError(t, env.tracker.Coordinator.Unschedule(ctx, ev.ID))

	got, err := env.tracker.Issues.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusPending, got.Status)
	assert.Nil(t, got.ScheduledDate)

	_, err = env.tracker.Events.Get(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnschedule_UnrelatedEventLeavesIssues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue, err := env.tracker.Issues.Create(ctx, staffL1, NewIssue{Title: "x"})
	require.NoError(t, err)
	require.NoError(t, env.tracker.Issues.SetStatus(ctx, issue.ID, models.IssueStatusInProgress))
	before, err := env.tracker.Issues.Get(ctx, issue.ID)
	require.NoError(t, err)

	ev, err := env.tracker.Events.Create(ctx, maintCaller, NewEvent{Title: "Fire inspection", Date: "2024-03-01"})
	require.NoError(t, err)
	require.NoError(t, env.tracker.Coordinator.Unschedule(ctx, ev.ID))

	after, err := env.tracker.Issues.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUnschedule_IssueAlreadyDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue, err := env.tracker.Issues.Create(ctx, staffL1, NewIssue{Title: "x"})
	require.NoError(t, err)
	ev, err := env.tracker.Coordinator.Schedule(ctx, maintCaller, issue.ID, "2024-02-14", "")
	require.NoError(t, err)
	require.NoError(t, env.tracker.Coordinator.DeleteIssue(ctx, issue.ID))

	assert.NoError(t, env.tracker.Coordinator.Unschedule(ctx, ev.ID))
	assert.ErrorIs(t, env.tracker.Coordinator.Unschedule(ctx, ev.ID), ErrNotFound)
}

func TestUnschedule_PartialFailure(t *testing.T) {
	hooked := &hookStore{}
	env := newTestEnv(t, func(s docstore.Store) docstore.Store {
		hooked.Store = s
		return hooked
	})
	ctx := context.Background()

	issue, err := env.tracker.Issues.Create(ctx, staffL1, NewIssue{Title: "x"})
	require.NoError(t, err)
	ev, err := env.tracker.Coordinator.Schedule(ctx, maintCaller, issue.ID, "2024-02-14", "")
	require.NoError(t, err)

	hooked.beforeUpdate = func(string, string) error { return errors.New("offline") }
	err = env.tracker.Coordinator.Unschedule(ctx, ev.ID)
	var perr *PartialFailureError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "unschedule", perr.Op)
}

func TestDeleteIssue_RemovesImages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issue, err := env.tracker.Issues.Create(ctx, staffL1, NewIssue{
		Title:  "Cracked tile",
		Images: []Upload{pngUpload(t, "a.png"), pngUpload(t, "b.png")},
	})
	require.NoError(t, err)
	require.Len(t, issue.Images, 2)

	require.NoError(t, env.tracker.Coordinator.DeleteIssue(ctx, issue.ID))

	_, err = env.tracker.Issues.Get(ctx, issue.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, img := range issue.Images {
		exists, err := afero.Exists(env.fs, "/"+img.Path)
		require.NoError(t, err)
		assert.False(t, exists, img.Path)
	}

	assert.ErrorIs(t, env.tracker.Coordinator.DeleteIssue(ctx, issue.ID), ErrNotFound)
}
