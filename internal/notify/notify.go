// Package notify delivers push payloads for new and scheduled issues.
package notify

import (
	"context"
	"errors"
)

// Notification is the part of a payload rendered by the receiving client.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
}

// Payload is the push message: {notification: {...}, data: {...}}.
type Payload struct {
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

// Notifier delivers a payload to subscribers of a location.
type Notifier interface {
	Notify(ctx context.Context, locationID string, p Payload) error
}

// Nop discards every payload.
type Nop struct{}

func (Nop) Notify(context.Context, string, Payload) error { return nil }

// Multi fans a payload out to several notifiers, joining their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, locationID string, p Payload) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, locationID, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
