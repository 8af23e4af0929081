package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopicPrefix is used when MQTTConfig.TopicPrefix is empty.
const DefaultTopicPrefix = "maint/notifications"

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier publishes payloads to {prefix}/{locationID} with QoS 1.
type MQTTNotifier struct {
	client publisher
	prefix string
	conn   mqtt.Client
}

// NewMQTT connects to the broker and returns a notifier using it.
func NewMQTT(cfg MQTTConfig) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}

	n := newMQTTNotifier(client, cfg.TopicPrefix)
	n.conn = client
	return n, nil
}

func newMQTTNotifier(client publisher, prefix string) *MQTTNotifier {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTTNotifier{client: client, prefix: prefix}
}

// Topic returns the topic payloads for locationID are published on.
func (n *MQTTNotifier) Topic(locationID string) string {
	if locationID == "" {
		locationID = "all"
	}
	return n.prefix + "/" + locationID
}

func (n *MQTTNotifier) Notify(ctx context.Context, locationID string, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	topic := n.Topic(locationID)
	token := n.client.Publish(topic, 1, false, body)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	if n.conn != nil {
		n.conn.Disconnect(250)
	}
}
