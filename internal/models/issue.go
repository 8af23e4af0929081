package models

import "time"

// IssueStatus represents the state of a maintenance issue.
type IssueStatus string

const (
	IssueStatusPending    IssueStatus = "pending"
	IssueStatusInProgress IssueStatus = "in-progress"
	IssueStatusScheduled  IssueStatus = "scheduled"
	IssueStatusCompleted  IssueStatus = "completed"
)

// IssueStatuses lists every valid status in display order.
var IssueStatuses = []IssueStatus{
	IssueStatusPending,
	IssueStatusInProgress,
	IssueStatusScheduled,
	IssueStatusCompleted,
}

// Valid reports whether s is one of the known statuses.
func (s IssueStatus) Valid() bool {
	for _, st := range IssueStatuses {
		if s == st {
			return true
		}
	}
	return false
}

const (
	MinUrgency     = 1
	MaxUrgency     = 5
	DefaultUrgency = 3
)

// ImageRef points at an uploaded image: a retrievable URL plus the storage
// path needed to delete it later.
type ImageRef struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Issue is a reported maintenance problem.
type Issue struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Urgency       int         `json:"urgency"`
	Images        []ImageRef  `json:"images"`
	Status        IssueStatus `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	CreatedBy     Identity    `json:"createdBy"`
	LocationID    string      `json:"locationId"`
	LocationName  string      `json:"locationName"`
	Comments      []Comment   `json:"comments"`
	ScheduledDate *time.Time  `json:"scheduledDate,omitempty"`

	// Seq is the store-assigned insertion order, used to break CreatedAt ties.
	Seq int64 `json:"-"`
}
