// Package view derives what the screens display from synchronized snapshots:
// the filtered issue list, the month grid and per-screen state.
package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joescharf/maint/internal/models"
)

// All disables a filter dimension.
const All = "all"

// Filter holds the user-entered criteria of the issue list. Zero values
// disable a dimension.
type Filter struct {
	Search  string
	Urgency int                // 0 = all
	Status  models.IssueStatus // "" = all
}

// ParseFilter builds a Filter from text inputs where "" and "all" disable a
// dimension.
func ParseFilter(search, urgency, status string) (Filter, error) {
	f := Filter{Search: strings.TrimSpace(search)}

	urgency = strings.TrimSpace(urgency)
	if urgency != "" && !strings.EqualFold(urgency, All) {
		u, err := strconv.Atoi(urgency)
		if err != nil || u < models.MinUrgency || u > models.MaxUrgency {
			return Filter{}, fmt.Errorf("urgency filter must be %d-%d or %q, got %q", models.MinUrgency, models.MaxUrgency, All, urgency)
		}
		f.Urgency = u
	}

	status = strings.TrimSpace(status)
	if status != "" && !strings.EqualFold(status, All) {
		s := models.IssueStatus(strings.ToLower(status))
		if !s.Valid() {
			return Filter{}, fmt.Errorf("unknown status filter %q", status)
		}
		f.Status = s
	}
	return f, nil
}

// Active reports whether any dimension is set.
func (f Filter) Active() bool {
	return f.Search != "" || f.Urgency != 0 || f.Status != ""
}

// Predicate selects issues.
type Predicate func(*models.Issue) bool

// MatchSearch matches a case-insensitive substring of title or description.
func MatchSearch(text string) Predicate {
	needle := strings.ToLower(strings.TrimSpace(text))
	return func(i *models.Issue) bool {
		if needle == "" {
			return true
		}
		return strings.Contains(strings.ToLower(i.Title), needle) ||
			strings.Contains(strings.ToLower(i.Description), needle)
	}
}

// MatchUrgency matches an exact urgency; 0 matches everything.
func MatchUrgency(u int) Predicate {
	return func(i *models.Issue) bool { return u == 0 || i.Urgency == u }
}

// MatchStatus matches an exact status; "" matches everything.
func MatchStatus(s models.IssueStatus) Predicate {
	return func(i *models.Issue) bool { return s == "" || s == All || i.Status == s }
}

// Predicates returns one independent predicate per dimension.
func (f Filter) Predicates() []Predicate {
	return []Predicate{MatchSearch(f.Search), MatchUrgency(f.Urgency), MatchStatus(f.Status)}
}

// Select keeps the issues matching every predicate, preserving input order.
func Select(issues []*models.Issue, preds ...Predicate) []*models.Issue {
	out := make([]*models.Issue, 0, len(issues))
next:
	for _, i := range issues {
		for _, p := range preds {
			if !p(i) {
				continue next
			}
		}
		out = append(out, i)
	}
	return out
}

// FilterIssues applies f to all. With no active filter the result equals all.
func FilterIssues(all []*models.Issue, f Filter) []*models.Issue {
	return Select(all, f.Predicates()...)
}
