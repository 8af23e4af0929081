package models

import "time"

// Author identifies who wrote a comment, including the role label shown
// next to the name.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Comment is owned by its parent issue and has no lifecycle of its own.
type Comment struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Author    `json:"author"`
}
