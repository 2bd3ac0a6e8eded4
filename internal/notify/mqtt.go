// Package notify announces finished ingestion runs on an MQTT topic.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

const (
	DefaultTopic   = "fleet/ingestion/runs"
	publishTimeout = 5 * time.Second
	qosAtLeastOnce = 1
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// publisher is the part of mqtt.Client the notifier uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Connect dials broker and waits for the connection.
func Connect(broker, clientID string) (mqtt.Client, error) {
	if clientID == "" {
		clientID = fmt.Sprintf("fleet-telemetry-%d", time.Now().UnixNano())
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return client, nil
}

// MQTTNotifier publishes each RunReport as JSON once the run has persisted.
type MQTTNotifier struct {
	client publisher
	topic  string
}

func NewMQTTNotifier(client publisher, topic string) *MQTTNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTNotifier{client: client, topic: topic}
}

// Name implements pipeline.Hook.
func (n *MQTTNotifier) Name() string { return "mqtt" }

// AfterRun implements pipeline.Hook.
func (n *MQTTNotifier) AfterRun(ctx context.Context, report *models.RunReport, _ []models.TelemetryPacket) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	tok := n.client.Publish(n.topic, qosAtLeastOnce, false, payload)
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return ErrPublishTimeout
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", n.topic, err)
	}
	return nil
}
