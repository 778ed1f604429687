package ingest

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/moto-data/yard.report/internal/monitoring"
)

const (
	defaultConnectTimeout       = 10 * time.Second
	defaultMaxReconnectInterval = time.Minute
	disconnectQuiesceMillis     = 250
)

// Consumer owns the broker subscription for the process's lifetime. It
// subscribes to the five telemetry topic filters under the configured prefix
// and feeds every message through the Handler.
type Consumer struct {
	brokerURL      string
	topicPrefix    string
	handler        *Handler
	connectTimeout time.Duration
	client         mqtt.Client
}

func NewConsumer(brokerURL, topicPrefix string, handler *Handler) *Consumer {
	return &Consumer{
		brokerURL:      brokerURL,
		topicPrefix:    topicPrefix,
		handler:        handler,
		connectTimeout: defaultConnectTimeout,
	}
}

// SetConnectTimeout overrides the initial connect deadline. Must be called
// before Run.
func (c *Consumer) SetConnectTimeout(d time.Duration) {
	if d > 0 {
		c.connectTimeout = d
	}
}

// topicFilters returns the five subscription filters keyed by QoS.
func (c *Consumer) topicFilters() map[string]byte {
	return map[string]byte{
		c.topicPrefix + "/uwb/+/position": 0,
		c.topicPrefix + "/uwb/+/ranging":  0,
		c.topicPrefix + "/motion/+":       0,
		c.topicPrefix + "/status/+":       0,
		c.topicPrefix + "/event/+":        0,
	}
}

// Run connects to the broker, subscribes, and blocks until ctx is cancelled.
// A failed initial connect is returned to the caller as a startup fault;
// reconnects after that are delegated to the client's auto-reconnect with a
// capped interval. On cancellation the consumer unsubscribes and disconnects
// cleanly, letting in-flight handler calls finish.
func (c *Consumer) Run(ctx context.Context) error {
	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		c.handler.HandleMessage(ctx, msg.Topic(), msg.Payload())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(c.brokerURL).
		SetClientID("yard-report-" + uuid.NewString()[:8]).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(defaultMaxReconnectInterval).
		SetConnectTimeout(c.connectTimeout).
		SetOnConnectHandler(func(client mqtt.Client) {
			monitoring.Logf("connected to MQTT broker %s", c.brokerURL)
			for filter, qos := range c.topicFilters() {
				if token := client.Subscribe(filter, qos, onMessage); token.Wait() && token.Error() != nil {
					monitoring.Logf("failed to subscribe to %s: %v", filter, token.Error())
				}
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Logf("lost MQTT connection: %v", err)
		})

	c.client = mqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(c.connectTimeout) {
		return fmt.Errorf("timed out connecting to MQTT broker %s", c.brokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", c.brokerURL, err)
	}

	<-ctx.Done()

	filters := make([]string, 0, 5)
	for filter := range c.topicFilters() {
		filters = append(filters, filter)
	}
	if token := c.client.Unsubscribe(filters...); token.WaitTimeout(time.Second) && token.Error() != nil {
		monitoring.Logf("failed to unsubscribe: %v", token.Error())
	}
	c.client.Disconnect(disconnectQuiesceMillis)
	monitoring.Logf("MQTT consumer stopped")
	return ctx.Err()
}

// IsConnected reports whether the broker connection is currently up. Used by
// health reporting.
func (c *Consumer) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}
