package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gnsslog/internal/gps"
)

const (
	DefaultMQTTTopic    = "gnsslog/waypoint"
	DefaultMQTTClientID = "gnsslog"
	mqttTimeout         = 5 * time.Second
)

// mqttClient is the part of mqtt.Client the publisher needs.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTOptions configures DialMQTT.
type MQTTOptions struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string
	Session  string
}

// mqttPayload is the published message: the waypoint fields plus the session.
type mqttPayload struct {
	Session string `json:"session,omitempty"`
	gps.Waypoint
}

// MQTTPublisher publishes each waypoint as retained JSON on one topic, so a
// late subscriber immediately sees the latest fix.
type MQTTPublisher struct {
	client  mqttClient
	topic   string
	session string
	timeout time.Duration
}

// DialMQTT connects to the broker and returns a publisher.
func DialMQTT(o MQTTOptions) (*MQTTPublisher, error) {
	if strings.TrimSpace(o.Broker) == "" {
		return nil, fmt.Errorf("mqtt broker is empty")
	}
	if o.ClientID == "" {
		o.ClientID = DefaultMQTTClientID
	}
	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", o.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", o.Broker, err)
	}
	return newMQTTPublisher(client, o.Topic, o.Session), nil
}

func newMQTTPublisher(c mqttClient, topic, session string) *MQTTPublisher {
	if topic == "" {
		topic = DefaultMQTTTopic
	}
	return &MQTTPublisher{client: c, topic: topic, session: session, timeout: mqttTimeout}
}

func (p *MQTTPublisher) Topic() string { return p.topic }

func (p *MQTTPublisher) WriteWaypoint(ctx context.Context, wp gps.Waypoint) error {
	payload, err := json.Marshal(mqttPayload{Session: p.session, Waypoint: wp})
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("mqtt publish %s: timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", p.topic, err)
	}
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
