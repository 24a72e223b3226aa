package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig is the broker connection change events are mirrored over.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// NewMQTTClient connects to the broker with auto reconnect.
func NewMQTTClient(cfg MQTTConfig) (mqtt.Client, error) {
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

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// Broker is the part of mqtt.Client the publisher needs.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher publishes each change as JSON on
// <prefix>/<tenant_id>/<entity>/<op>, so subscribers can filter per tenant.
type MQTTPublisher struct {
	client  Broker
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *zap.Logger
}

func NewMQTTPublisher(client Broker, prefix string, qos byte, logger *zap.Logger) *MQTTPublisher {
	if prefix == "" {
		prefix = "portal"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTPublisher{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     qos,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

func (p *MQTTPublisher) Topic(c Change) string {
	return fmt.Sprintf("%s/%s/%s/%s", p.prefix, c.TenantID, c.Entity, c.Op)
}

func (p *MQTTPublisher) Publish(ctx context.Context, c Change) error {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}
	topic := p.Topic(c)
	token := p.client.Publish(topic, p.qos, false, payload)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish to topic %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("failed to publish change", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, c Change) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
