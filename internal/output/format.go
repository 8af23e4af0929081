package output

import (
	"fmt"
	"time"

	"github.com/joescharf/maint/internal/models"
)

// VisitLayout is how scheduled visits are printed.
const VisitLayout = "Mon Jan 2 2006 15:04"

// StatusColor colors an issue status from red (untouched) to green (done).
func StatusColor(s models.IssueStatus) string {
	switch s {
	case models.IssueStatusPending:
		return red(string(s))
	case models.IssueStatusInProgress:
		return yellow(string(s))
	case models.IssueStatusScheduled:
		return cyan(string(s))
	case models.IssueStatusCompleted:
		return green(string(s))
	}
	return string(s)
}

// UrgencyColor renders urgency as "n/5".
func UrgencyColor(urgency int) string {
	s := fmt.Sprintf("%d/5", urgency)
	if urgency >= 5 {
		return red(s)
	}
	if urgency >= 3 {
		return yellow(s)
	}
	return green(s)
}

// ShortID trims a document ID to its first 12 characters.
func ShortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

// Location prefers the display name and falls back to the ID.
func Location(name, id string) string {
	if name == "" {
		return id
	}
	return name
}

// When formats a visit time with VisitLayout.
func When(t time.Time) string { return t.Format(VisitLayout) }

// Ago is a coarse "time since" for list columns, relative to now.
func Ago(t, now time.Time) string {
	d := now.Sub(t)
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	}
	return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
}
