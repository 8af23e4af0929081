// Package tracker holds the issue and event repositories, the coordinator
// that keeps an issue's scheduled state in step with its event, and the
// role policy applied by the user-facing surfaces.
package tracker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/maint/internal/docstore"
	"github.com/joescharf/maint/internal/notify"
	"github.com/joescharf/maint/internal/objstore"
)

// Limits caps per-issue growth.
type Limits struct {
	MaxImages     int
	MaxComments   int
	MaxImageBytes int64
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxImages: 10, MaxComments: 500, MaxImageBytes: 10 << 20}
}

// Triager suggests an urgency for an issue that was reported without one.
type Triager interface {
	SuggestUrgency(ctx context.Context, title, description string) (int, error)
}

// Options configures the repositories. Zero values select defaults.
type Options struct {
	Logger   *zap.Logger
	Notifier notify.Notifier
	Triager  Triager
	Limits   Limits
	Location *time.Location // calendar time zone for event dates
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Notifier == nil {
		o.Notifier = notify.Nop{}
	}
	d := DefaultLimits()
	if o.Limits.MaxImages <= 0 {
		o.Limits.MaxImages = d.MaxImages
	}
	if o.Limits.MaxComments <= 0 {
		o.Limits.MaxComments = d.MaxComments
	}
	if o.Limits.MaxImageBytes <= 0 {
		o.Limits.MaxImageBytes = d.MaxImageBytes
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Tracker bundles the repositories and the coordinator over one store.
type Tracker struct {
	Issues      *IssueRepository
	Events      *EventRepository
	Coordinator *Coordinator
}

// New wires the repositories and coordinator.
func New(store docstore.Store, objects objstore.Storage, opts Options) *Tracker {
	opts = opts.withDefaults()
	issues := NewIssueRepository(store, objects, opts)
	events := NewEventRepository(store, opts)
	return &Tracker{
		Issues:      issues,
		Events:      events,
		Coordinator: NewCoordinator(issues, events, objects, opts),
	}
}

// notifyBestEffort delivers p and logs failures.
func notifyBestEffort(ctx context.Context, n notify.Notifier, logger *zap.Logger, locationID string, p notify.Payload) {
	if err := n.Notify(ctx, locationID, p); err != nil {
		logger.Warn("notification delivery failed",
			zap.String("location_id", locationID),
			zap.String("tag", p.Notification.Tag),
			zap.Error(err))
	}
}
