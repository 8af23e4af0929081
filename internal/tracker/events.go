package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/maint/internal/docstore"
	"github.com/joescharf/maint/internal/models"
)

// Date and time-of-day layouts accepted for events.
const (
	DateLayout       = "2006-01-02"
	TimeLayout       = "15:04"
	DefaultTimeOfDay = "09:00"
)

// NewEvent holds the user-entered fields of an event.
type NewEvent struct {
	Title        string
	Description  string
	Date         string // YYYY-MM-DD
	Time         string // HH:MM, defaults to 09:00
	RelatedIssue *models.IssueRef

	// Owning location; the caller's location when empty.
	LocationID   string
	LocationName string
}

// ParseSchedule combines a date and an optional time of day in loc.
func ParseSchedule(date, timeOfDay string, loc *time.Location) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, invalid("date", "is required")
	}
	timeOfDay = strings.TrimSpace(timeOfDay)
	if timeOfDay == "" {
		timeOfDay = DefaultTimeOfDay
	}
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, invalid("date", "must be YYYY-MM-DD, got %q", date)
	}
	tod, err := time.Parse(TimeLayout, timeOfDay)
	if err != nil {
		return time.Time{}, invalid("time", "must be HH:MM, got %q", timeOfDay)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), tod.Hour(), tod.Minute(), 0, 0, loc), nil
}

// EventRepository is the live collection of scheduled maintenance events.
type EventRepository struct {
	store docstore.Store
	opts  Options
}

func NewEventRepository(store docstore.Store, opts Options) *EventRepository {
	return &EventRepository{store: store, opts: opts.withDefaults()}
}

// Location returns the calendar time zone.
func (r *EventRepository) Location() *time.Location { return r.opts.Location }

func eventQuery(c models.Caller) docstore.Query {
	q := docstore.NewQuery(EventsCollection).Sort("scheduledAt", false)
	if !c.Role.IsMaintenance() {
		q = q.Where("locationId", c.LocationID)
	}
	return q
}

func (r *EventRepository) eventsFromDocs(docs []docstore.Document) []*models.Event {
	out := make([]*models.Event, len(docs))
	for i, d := range docs {
		out[i] = r.inLocation(eventFromDoc(d))
	}
	return out
}

func (r *EventRepository) inLocation(ev *models.Event) *models.Event {
	ev.ScheduledAt = ev.ScheduledAt.In(r.opts.Location)
	return ev
}

// Subscribe delivers the caller's scoped events now and after every change,
// earliest first.
func (r *EventRepository) Subscribe(ctx context.Context, c models.Caller, onChange func([]*models.Event)) (docstore.Unsubscribe, error) {
	unsub, err := r.store.Subscribe(ctx, eventQuery(c), func(docs []docstore.Document) {
		onChange(r.eventsFromDocs(docs))
	})
	if err != nil {
		return nil, &StoreError{Op: "subscribe events", Err: err}
	}
	return unsub, nil
}

func (r *EventRepository) List(ctx context.Context, c models.Caller) ([]*models.Event, error) {
	docs, err := r.store.List(ctx, EventsCollection)
	if err != nil {
		return nil, &StoreError{Op: "list events", Err: err}
	}
	return r.eventsFromDocs(eventQuery(c).Apply(docs)), nil
}

// forIssue returns every event, in any location, that names issueID.
func (r *EventRepository) forIssue(ctx context.Context, issueID string) ([]*models.Event, error) {
	docs, err := r.store.List(ctx, EventsCollection)
	if err != nil {
		return nil, &StoreError{Op: "list events", Err: err}
	}
	var out []*models.Event
	for _, ev := range r.eventsFromDocs(docs) {
		if ev.RelatedIssue != nil && ev.RelatedIssue.ID == issueID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *EventRepository) Get(ctx context.Context, id string) (*models.Event, error) {
	doc, err := r.store.Get(ctx, EventsCollection, id)
	if err != nil {
		return nil, storeErr("get event", id, err)
	}
	return r.inLocation(eventFromDoc(*doc)), nil
}

// Resolve finds an event visible to c by full ID or by a unique ID prefix.
func (r *EventRepository) Resolve(ctx context.Context, c models.Caller, ref string) (*models.Event, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, invalid("id", "is required")
	}
	all, err := r.List(ctx, c)
	if err != nil {
		return nil, err
	}
	upper := strings.ToUpper(ref)
	var matches []*models.Event
	for _, ev := range all {
		if ev.ID == ref {
			return ev, nil
		}
		if strings.HasPrefix(ev.ID, upper) {
			matches = append(matches, ev)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("event %s: %w", ref, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, invalid("id", "ambiguous event ID %s matches %d events", ref, len(matches))
	}
}

// Create validates and writes an event.
func (r *EventRepository) Create(ctx context.Context, c models.Caller, in NewEvent) (*models.Event, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title", "is required")
	}
	at, err := ParseSchedule(in.Date, in.Time, r.opts.Location)
	if err != nil {
		return nil, err
	}

	locID, locName := in.LocationID, in.LocationName
	if locID == "" {
		locID, locName = c.LocationID, c.LocationName
	}
	fields := docstore.Fields{
		"title":        title,
		"description":  strings.TrimSpace(in.Description),
		"scheduledAt":  docstore.Timestamp{Time: at},
		"createdAt":    docstore.ServerTimestamp,
		"createdBy":    identityFields(c.Identity()),
		"locationId":   locID,
		"locationName": locName,
	}
	if in.RelatedIssue != nil {
		fields["relatedIssue"] = map[string]any{"id": in.RelatedIssue.ID, "title": in.RelatedIssue.Title}
	}

	id, err := r.store.Create(ctx, EventsCollection, fields)
	if err != nil {
		return nil, &StoreError{Op: "create event", Err: err}
	}
	r.opts.Logger.Info("event created",
		zap.String("event_id", id),
		zap.Time("scheduled_at", at),
		zap.String("location_id", locID))
	return r.Get(ctx, id)
}

func (r *EventRepository) Delete(ctx context.Context, eventID string) error {
	if err := r.store.Delete(ctx, EventsCollection, eventID); err != nil {
		return storeErr("delete event", eventID, err)
	}
	return nil
}
