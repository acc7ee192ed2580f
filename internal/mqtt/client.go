// Package mqtt bridges dispatched events onto an MQTT broker so external
// systems can consume the pipeline without touching the device.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/visiongate/visiongate/internal/conf"
	"github.com/visiongate/visiongate/internal/dispatch"
	"github.com/visiongate/visiongate/internal/errors"
	"github.com/visiongate/visiongate/internal/logging"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Client publishes dispatch messages to the broker. It implements
// dispatch.Subscriber so it plugs straight into the dispatcher.
type Client struct {
	settings conf.MQTTSettings
	client   pahomqtt.Client
	log      *slog.Logger
}

// NewClient builds an unconnected client from settings.
func NewClient(settings conf.MQTTSettings) *Client {
	return &Client{
		settings: settings,
		log:      logging.ForService("mqtt"),
	}
}

// Connect dials the broker. Reconnects are handled by the underlying
// library once the first connection succeeds.
func (c *Client) Connect(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions().
		AddBroker(c.settings.Broker).
		SetClientID(fmt.Sprintf("visiongate-%d", time.Now().UnixNano())).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(connectTimeout)
	if c.settings.Username != "" {
		opts.SetUsername(c.settings.Username)
		opts.SetPassword(c.settings.Password)
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		c.log.Info("connected to mqtt broker", "broker", c.settings.Broker)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.log.Warn("mqtt connection lost", "broker", c.settings.Broker, "error", err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return errors.TimeoutError("mqtt connect", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTT).
			Context("broker", c.settings.Broker).
			Build()
	}
	return nil
}

// Disconnect closes the broker connection.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

// ID implements dispatch.Subscriber.
func (c *Client) ID() string { return "mqtt" }

// Deliver publishes one dispatched message under
// <base>/<topic>/<event>. Delivery while disconnected is an error the
// dispatcher logs and moves past.
func (c *Client) Deliver(msg dispatch.Message) error {
	if c.client == nil || !c.client.IsConnected() {
		return errors.Newf("not connected to broker").
			Component("mqtt").
			Category(errors.CategoryMQTT).
			Build()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTT).
			Context("topic", msg.Topic).
			Build()
	}

	topic := fmt.Sprintf("%s/%s/%s", c.settings.Topic, msg.Topic, msg.Event)
	token := c.client.Publish(topic, 0, c.settings.Retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.TimeoutError("mqtt publish", publishTimeout)
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTT).
			Context("topic", topic).
			Build()
	}
	return nil
}
