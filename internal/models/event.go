package models

import "time"

// IssueRef is a snapshot of the issue an event was scheduled for. The title is
// captured at link time and is not refreshed if the issue is renamed.
type IssueRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Event is a scheduled maintenance visit.
type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ScheduledAt  time.Time `json:"scheduledAt"`
	CreatedAt    time.Time `json:"createdAt"`
	CreatedBy    Identity  `json:"createdBy"`
	LocationID   string    `json:"locationId"`
	LocationName string    `json:"locationName"`
	RelatedIssue *IssueRef `json:"relatedIssue,omitempty"`

	Seq int64 `json:"-"`
}
