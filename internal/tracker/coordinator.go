package tracker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/joescharf/maint/internal/docstore"
	"github.com/joescharf/maint/internal/models"
	"github.com/joescharf/maint/internal/notify"
	"github.com/joescharf/maint/internal/objstore"
)

// Coordinator keeps an issue's scheduled status and date in step with the
// event that names it. Each operation is two dependent writes with no
// transaction; a failed second write is reported as PartialFailureError and
// left for a person to reconcile.
type Coordinator struct {
	issues  *IssueRepository
	events  *EventRepository
	objects objstore.Storage
	opts    Options
}

func NewCoordinator(issues *IssueRepository, events *EventRepository, objects objstore.Storage, opts Options) *Coordinator {
	return &Coordinator{issues: issues, events: events, objects: objects, opts: opts.withDefaults()}
}

// Schedule creates an event for the issue, then marks the issue scheduled
// for the same date-time.
func (c *Coordinator) Schedule(ctx context.Context, caller models.Caller, issueID, date, timeOfDay string) (*models.Event, error) {
	at, err := ParseSchedule(date, timeOfDay, c.events.Location())
	if err != nil {
		return nil, err
	}
	issue, err := c.issues.Get(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if issue.Status == models.IssueStatusScheduled {
		return nil, fmt.Errorf("issue %s is already scheduled: %w", issueID, ErrConflict)
	}
	linked, err := c.events.forIssue(ctx, issue.ID)
	if err != nil {
		return nil, err
	}
	if len(linked) > 0 {
		return nil, fmt.Errorf("issue %s already has event %s: %w", issueID, linked[0].ID, ErrConflict)
	}

	ev, err := c.events.Create(ctx, caller, NewEvent{
		Title:        issue.Title,
		Description:  issue.Description,
		Date:         at.Format(DateLayout),
		Time:         at.Format(TimeLayout),
		RelatedIssue: &models.IssueRef{ID: issue.ID, Title: issue.Title},
		LocationID:   issue.LocationID,
		LocationName: issue.LocationName,
	})
	if err != nil {
		return nil, err
	}

	if err := c.issues.markScheduled(ctx, issue.ID, docstore.Timestamp{Time: ev.ScheduledAt}); err != nil {
		c.opts.Logger.Error("schedule left event without issue update",
			zap.String("event_id", ev.ID), zap.String("issue_id", issue.ID), zap.Error(err))
		return ev, &PartialFailureError{
			Op:        "schedule",
			Completed: "event " + ev.ID + " created",
			Failed:    "issue " + issue.ID + " was not marked scheduled",
			Err:       err,
		}
	}

	notifyBestEffort(ctx, c.opts.Notifier, c.opts.Logger, issue.LocationID, notify.Payload{
		Notification: notify.Notification{
			Title: "Maintenance scheduled",
			Body:  fmt.Sprintf("%s on %s", issue.Title, ev.ScheduledAt.Format("Mon Jan 2 at 15:04")),
			Tag:   "event-" + ev.ID,
		},
		Data: map[string]string{"issueId": issue.ID, "eventId": ev.ID, "locationId": issue.LocationID, "url": "/"},
	})
	return ev, nil
}

// Unschedule deletes the event, then resets its related issue to pending.
// An event without a related issue touches no issue.
func (c *Coordinator) Unschedule(ctx context.Context, eventID string) error {
	ev, err := c.events.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if err := c.events.Delete(ctx, eventID); err != nil {
		return err
	}
	if ev.RelatedIssue == nil {
		return nil
	}

	err = c.issues.markPending(ctx, ev.RelatedIssue.ID)
	if errors.Is(err, ErrNotFound) {
		c.opts.Logger.Info("related issue already deleted", zap.String("event_id", eventID), zap.String("issue_id", ev.RelatedIssue.ID))
		return nil
	}
	if err != nil {
		c.opts.Logger.Error("unschedule left issue marked scheduled",
			zap.String("event_id", eventID), zap.String("issue_id", ev.RelatedIssue.ID), zap.Error(err))
		return &PartialFailureError{
			Op:        "unschedule",
			Completed: "event " + eventID + " deleted",
			Failed:    "issue " + ev.RelatedIssue.ID + " was not reset to pending",
			Err:       err,
		}
	}
	return nil
}

// DeleteIssue removes the issue record and then its stored images. Image
// deletion failures are logged, not returned.
func (c *Coordinator) DeleteIssue(ctx context.Context, issueID string) error {
	issue, err := c.issues.Get(ctx, issueID)
	if err != nil {
		return err
	}
	if err := c.issues.Delete(ctx, issueID); err != nil {
		return err
	}
	for _, img := range issue.Images {
		if img.Path == "" {
			continue
		}
		if err := c.objects.Delete(ctx, img.Path); err != nil {
			c.opts.Logger.Warn("delete issue image", zap.String("issue_id", issueID), zap.String("path", img.Path), zap.Error(err))
		}
	}
	return nil
}
