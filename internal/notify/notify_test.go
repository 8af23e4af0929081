package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePayload = Payload{
	Notification: Notification{Title: "New issue", Body: "Leaky tap", Tag: "issue-1"},
	Data:         map[string]string{"issueId": "1"},
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakePublisher struct {
	topic   string
	qos     byte
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.topic, f.qos = topic, qos
	f.payload, _ = payload.([]byte)
	return newFakeToken(f.err)
}

func TestMQTTNotifier_Notify(t *testing.T) {
	pub := &fakePublisher{}
	n := newMQTTNotifier(pub, "/maint/push/")

	require.NoError(t, n.Notify(context.Background(), "loc1", samplePayload))
	assert.Equal(t, "maint/push/loc1", pub.topic)
	assert.Equal(t, byte(1), pub.qos)

	var got Payload
	require.NoError(t, json.Unmarshal(pub.payload, &got))
	assert.Equal(t, samplePayload, got)
}

func TestMQTTNotifier_Errors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	n := newMQTTNotifier(pub, "")
	assert.Equal(t, DefaultTopicPrefix+"/all", n.Topic(""))

	err := n.Notify(context.Background(), "loc1", samplePayload)
	assert.ErrorContains(t, err, "broker gone")
}

func TestWebhookNotifier_Notify(t *testing.T) {
	var body webhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, 0)
	require.NoError(t, n.Notify(context.Background(), "loc9", samplePayload))
	assert.Equal(t, "loc9", body.LocationID)
	assert.Equal(t, samplePayload, body.Payload)
}

func TestWebhookNotifier_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, 2).Notify(context.Background(), "loc1", samplePayload)
	assert.ErrorContains(t, err, "status 400")
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(context.Context, string, Payload) error {
	c.calls++
	return c.err
}

func TestMulti(t *testing.T) {
	a := &countingNotifier{}
	b := &countingNotifier{err: errors.New("b failed")}
	c := &countingNotifier{}

	err := Multi{a, b, c, Nop{}}.Notify(context.Background(), "loc1", samplePayload)
	assert.ErrorContains(t, err, "b failed")
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, c.calls)

	assert.NoError(t, Multi{}.Notify(context.Background(), "", samplePayload))
}
