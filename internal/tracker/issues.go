package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joescharf/maint/internal/docstore"
	"github.com/joescharf/maint/internal/images"
	"github.com/joescharf/maint/internal/models"
	"github.com/joescharf/maint/internal/notify"
	"github.com/joescharf/maint/internal/objstore"
)

// commentAttempts bounds the compare-and-swap retries of AppendComment.
const commentAttempts = 8

// Upload is an image attached to a new issue.
type Upload struct {
	Filename string
	Data     []byte
}

// NewIssue holds the user-entered fields of an issue report.
type NewIssue struct {
	Title       string
	Description string
	Urgency     int // 0 selects a suggestion or the default
	Images      []Upload
}

// IssueRepository is the live collection of maintenance issues.
type IssueRepository struct {
	store   docstore.Store
	objects objstore.Storage
	opts    Options
}

func NewIssueRepository(store docstore.Store, objects objstore.Storage, opts Options) *IssueRepository {
	return &IssueRepository{store: store, objects: objects, opts: opts.withDefaults()}
}

// issueQuery scopes to the caller's location unless they are maintenance,
// newest first.
func issueQuery(c models.Caller) docstore.Query {
	q := docstore.NewQuery(IssuesCollection).Sort("createdAt", true)
	if !c.Role.IsMaintenance() {
		q = q.Where("locationId", c.LocationID)
	}
	return q
}

func issuesFromDocs(docs []docstore.Document) []*models.Issue {
	out := make([]*models.Issue, len(docs))
	for i, d := range docs {
		out[i] = issueFromDoc(d)
	}
	return out
}

// Subscribe delivers the caller's scoped issue list now and after every
// change. onChange is never called concurrently with itself.
func (r *IssueRepository) Subscribe(ctx context.Context, c models.Caller, onChange func([]*models.Issue)) (docstore.Unsubscribe, error) {
	unsub, err := r.store.Subscribe(ctx, issueQuery(c), func(docs []docstore.Document) {
		onChange(issuesFromDocs(docs))
	})
	if err != nil {
		return nil, &StoreError{Op: "subscribe issues", Err: err}
	}
	return unsub, nil
}

// List returns a one-shot scoped snapshot in subscription order.
func (r *IssueRepository) List(ctx context.Context, c models.Caller) ([]*models.Issue, error) {
	docs, err := r.store.List(ctx, IssuesCollection)
	if err != nil {
		return nil, &StoreError{Op: "list issues", Err: err}
	}
	return issuesFromDocs(issueQuery(c).Apply(docs)), nil
}

func (r *IssueRepository) Get(ctx context.Context, id string) (*models.Issue, error) {
	doc, err := r.store.Get(ctx, IssuesCollection, id)
	if err != nil {
		return nil, storeErr("get issue", id, err)
	}
	return issueFromDoc(*doc), nil
}

// Create validates the report, uploads its images, then writes the record.
// Uploads are not rolled back if the write fails.
func (r *IssueRepository) Create(ctx context.Context, c models.Caller, in NewIssue) (*models.Issue, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title", "is required")
	}
	if len(in.Images) > r.opts.Limits.MaxImages {
		return nil, invalid("images", "at most %d images per issue", r.opts.Limits.MaxImages)
	}
	for _, img := range in.Images {
		if _, err := images.Validate(img.Data, r.opts.Limits.MaxImageBytes); err != nil {
			return nil, invalid("images", "%s: %v", objstore.SanitizeFilename(img.Filename), err)
		}
	}
	urgency, err := r.urgency(ctx, title, in)
	if err != nil {
		return nil, err
	}

	refs := make([]models.ImageRef, 0, len(in.Images))
	for _, img := range in.Images {
		path := objstore.UploadPath(objstore.CategoryIssues, c.LocationID, r.opts.Now(), img.Filename)
		h, err := r.objects.Put(ctx, path, bytes.NewReader(img.Data))
		if err != nil {
			r.logOrphans(refs)
			return nil, &StoreError{Op: "upload image", Err: err}
		}
		refs = append(refs, models.ImageRef{URL: r.objects.URL(h), Path: h.Path})
	}

	id, err := r.store.Create(ctx, IssuesCollection, docstore.Fields{
		"title":        title,
		"description":  strings.TrimSpace(in.Description),
		"urgency":      urgency,
		"images":       imageFields(refs),
		"status":       string(models.IssueStatusPending),
		"createdAt":    docstore.ServerTimestamp,
		"updatedAt":    docstore.ServerTimestamp,
		"createdBy":    identityFields(c.Identity()),
		"locationId":   c.LocationID,
		"locationName": c.LocationName,
		"comments":     []any{},
	})
	if err != nil {
		r.logOrphans(refs)
		return nil, &StoreError{Op: "create issue", Err: err}
	}

	issue, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.opts.Logger.Info("issue created",
		zap.String("issue_id", id),
		zap.String("location_id", c.LocationID),
		zap.Int("urgency", urgency),
		zap.Int("images", len(refs)))

	notifyBestEffort(ctx, r.opts.Notifier, r.opts.Logger, c.LocationID, notify.Payload{
		Notification: notify.Notification{
			Title: "New maintenance issue",
			Body:  fmt.Sprintf("%s (urgency %d) at %s", title, urgency, locationLabel(c.LocationName, c.LocationID)),
			Tag:   "issue-" + id,
		},
		Data: map[string]string{"issueId": id, "locationId": c.LocationID, "url": "/"},
	})
	return issue, nil
}

func (r *IssueRepository) urgency(ctx context.Context, title string, in NewIssue) (int, error) {
	if in.Urgency != 0 {
		if in.Urgency < models.MinUrgency || in.Urgency > models.MaxUrgency {
			return 0, invalid("urgency", "must be between %d and %d", models.MinUrgency, models.MaxUrgency)
		}
		return in.Urgency, nil
	}
	if r.opts.Triager == nil {
		return models.DefaultUrgency, nil
	}
	u, err := r.opts.Triager.SuggestUrgency(ctx, title, in.Description)
	if err != nil || u < models.MinUrgency || u > models.MaxUrgency {
		r.opts.Logger.Warn("urgency triage unavailable, using default", zap.Int("suggested", u), zap.Error(err))
		return models.DefaultUrgency, nil
	}
	return u, nil
}

func (r *IssueRepository) logOrphans(refs []models.ImageRef) {
	for _, ref := range refs {
		r.opts.Logger.Warn("orphaned image upload", zap.String("path", ref.Path))
	}
}

// Resolve finds an issue visible to c by full ID or by a unique ID prefix.
func (r *IssueRepository) Resolve(ctx context.Context, c models.Caller, ref string) (*models.Issue, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, invalid("id", "is required")
	}
	if issue, err := r.Get(ctx, ref); err == nil {
		if err := CanView(c, issue.LocationID).Error(); err != nil {
			return nil, err
		}
		return issue, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	all, err := r.List(ctx, c)
	if err != nil {
		return nil, err
	}
	upper := strings.ToUpper(ref)
	var matches []*models.Issue
	for _, issue := range all {
		if strings.HasPrefix(issue.ID, upper) {
			matches = append(matches, issue)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("issue %s: %w", ref, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, invalid("id", "ambiguous issue ID %s matches %d issues", ref, len(matches))
	}
}

// AppendComment re-reads the stored comment list, appends one comment and
// writes the list back conditionally on the version it read. A concurrent
// append makes the write fail and the whole read-append-write is retried,
// so no comment is lost.
func (r *IssueRepository) AppendComment(ctx context.Context, issueID, text string, author models.Author) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text", "comment cannot be empty")
	}

	comment := models.Comment{Text: text, CreatedAt: r.opts.Now().UTC(), Author: author}
	for attempt := 1; attempt <= commentAttempts; attempt++ {
		doc, err := r.store.Get(ctx, IssuesCollection, issueID)
		if err != nil {
			return nil, storeErr("append comment", issueID, err)
		}
		existing := list(doc.Fields["comments"])
		if len(existing) >= r.opts.Limits.MaxComments {
			return nil, invalid("comments", "issue already has %d comments", len(existing))
		}
		comments := make([]any, 0, len(existing)+1)
		comments = append(comments, existing...)
		comments = append(comments, commentFields(comment))

		err = r.store.UpdateIf(ctx, IssuesCollection, issueID, doc.Version, docstore.Fields{
			"comments":  comments,
			"updatedAt": docstore.ServerTimestamp,
		})
		if errors.Is(err, docstore.ErrConflict) {
			r.opts.Logger.Debug("comment append raced, retrying", zap.String("issue_id", issueID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, storeErr("append comment", issueID, err)
		}
		return &comment, nil
	}
	return nil, fmt.Errorf("append comment to %s: gave up after %d attempts: %w", issueID, commentAttempts, ErrConflict)
}

// SetStatus writes status unconditionally. Role checks belong to the caller.
// Any status other than scheduled clears the scheduled date.
func (r *IssueRepository) SetStatus(ctx context.Context, issueID string, status models.IssueStatus) error {
	if !status.Valid() {
		return invalid("status", "unknown status %q", status)
	}
	fields := docstore.Fields{
		"status":    string(status),
		"updatedAt": docstore.ServerTimestamp,
	}
	if status != models.IssueStatusScheduled {
		fields["scheduledDate"] = docstore.DeleteField
	}
	err := r.store.Update(ctx, IssuesCollection, issueID, fields)
	if err != nil {
		return storeErr("set status", issueID, err)
	}
	return nil
}

// Delete removes the record only. Stored images are left to the caller.
func (r *IssueRepository) Delete(ctx context.Context, issueID string) error {
	if err := r.store.Delete(ctx, IssuesCollection, issueID); err != nil {
		return storeErr("delete issue", issueID, err)
	}
	return nil
}

func (r *IssueRepository) markScheduled(ctx context.Context, issueID string, at docstore.Timestamp) error {
	err := r.store.Update(ctx, IssuesCollection, issueID, docstore.Fields{
		"status":        string(models.IssueStatusScheduled),
		"scheduledDate": at,
		"updatedAt":     docstore.ServerTimestamp,
	})
	if err != nil {
		return storeErr("mark scheduled", issueID, err)
	}
	return nil
}

func (r *IssueRepository) markPending(ctx context.Context, issueID string) error {
	err := r.store.Update(ctx, IssuesCollection, issueID, docstore.Fields{
		"status":        string(models.IssueStatusPending),
		"scheduledDate": docstore.DeleteField,
		"updatedAt":     docstore.ServerTimestamp,
	})
	if err != nil {
		return storeErr("reset status", issueID, err)
	}
	return nil
}

// storeErr maps a missing document to ErrNotFound and anything else to a
// StoreError.
func storeErr(op, id string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return &StoreError{Op: op + " " + id, Err: err}
}

func locationLabel(name, id string) string {
	if name != "" {
		return name
	}
	if id != "" {
		return id
	}
	return "unknown location"
}
