package tracker

import (
	"time"

	"github.com/joescharf/maint/internal/docstore"
	"github.com/joescharf/maint/internal/models"
)

// Collection names in the record store.
const (
	IssuesCollection = "issues"
	EventsCollection = "events"
)

func identityFields(id models.Identity) map[string]any {
	return map[string]any{"id": id.ID, "name": id.Name}
}

func imageFields(refs []models.ImageRef) []any {
	out := make([]any, len(refs))
	for i, r := range refs {
		out[i] = map[string]any{"url": r.URL, "path": r.Path}
	}
	return out
}

func commentFields(c models.Comment) map[string]any {
	return map[string]any{
		"text":      c.Text,
		"createdAt": docstore.Timestamp{Time: c.CreatedAt},
		"author": map[string]any{
			"id":   c.Author.ID,
			"name": c.Author.Name,
			"role": string(c.Author.Role),
		},
	}
}

func issueFromDoc(d docstore.Document) *models.Issue {
	f := d.Fields
	issue := &models.Issue{
		ID:           d.ID,
		Seq:          d.Seq,
		Title:        str(f, "title"),
		Description:  str(f, "description"),
		Urgency:      num(f, "urgency"),
		Status:       models.IssueStatus(str(f, "status")),
		CreatedAt:    tm(f, "createdAt"),
		UpdatedAt:    tm(f, "updatedAt"),
		CreatedBy:    identity(f["createdBy"]),
		LocationID:   str(f, "locationId"),
		LocationName: str(f, "locationName"),
		Images:       []models.ImageRef{},
		Comments:     []models.Comment{},
	}
	for _, raw := range list(f["images"]) {
		m, _ := raw.(map[string]any)
		issue.Images = append(issue.Images, models.ImageRef{URL: str(m, "url"), Path: str(m, "path")})
	}
	for _, raw := range list(f["comments"]) {
		m, _ := raw.(map[string]any)
		author, _ := m["author"].(map[string]any)
		issue.Comments = append(issue.Comments, models.Comment{
			Text:      str(m, "text"),
			CreatedAt: tm(m, "createdAt"),
			Author: models.Author{
				ID:   str(author, "id"),
				Name: str(author, "name"),
				Role: models.Role(str(author, "role")),
			},
		})
	}
	if t, ok := docstore.TimeOf(f["scheduledDate"]); ok {
		issue.ScheduledDate = &t
	}
	return issue
}

func eventFromDoc(d docstore.Document) *models.Event {
	f := d.Fields
	ev := &models.Event{
		ID:           d.ID,
		Seq:          d.Seq,
		Title:        str(f, "title"),
		Description:  str(f, "description"),
		ScheduledAt:  tm(f, "scheduledAt"),
		CreatedAt:    tm(f, "createdAt"),
		CreatedBy:    identity(f["createdBy"]),
		LocationID:   str(f, "locationId"),
		LocationName: str(f, "locationName"),
	}
	if rel, ok := f["relatedIssue"].(map[string]any); ok && str(rel, "id") != "" {
		ev.RelatedIssue = &models.IssueRef{ID: str(rel, "id"), Title: str(rel, "title")}
	}
	return ev
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func num(m map[string]any, key string) int {
	switch n := m[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

func tm(m map[string]any, key string) time.Time {
	t, _ := docstore.TimeOf(m[key])
	return t
}

func identity(v any) models.Identity {
	m, _ := v.(map[string]any)
	return models.Identity{ID: str(m, "id"), Name: str(m, "name")}
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}
