package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookNotifier POSTs payloads as JSON to a fixed URL.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

type webhookBody struct {
	LocationID string `json:"locationId"`
	Payload
}

// NewWebhook returns a notifier posting to url, retrying failed deliveries
// up to retries times.
func NewWebhook(url string, retries int) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(retries).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &WebhookNotifier{client: client, url: url}
}

func (n *WebhookNotifier) Notify(ctx context.Context, locationID string, p Payload) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(webhookBody{LocationID: locationID, Payload: p}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("post webhook: status %d", resp.StatusCode())
	}
	return nil
}
