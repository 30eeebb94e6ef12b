//go:build !no_mqtt

// Package mqtt mirrors LampArray device state to an MQTT broker with Home
// Assistant discovery.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"lamparray-go/internal/device"
	"lamparray-go/internal/events"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	// Potentiometers is the number of potentiometer sensors to announce.
	Potentiometers int
}

// Bridge publishes device events to MQTT and accepts layer commands.
type Bridge struct {
	client pahomqtt.Client
	dev    *device.Device
	topics topics
	pots   int
	logger *slog.Logger
	unsub  func()
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(dev *device.Device, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		dev:    dev,
		topics: topics{prefix: strings.TrimSuffix(cfg.TopicPrefix, "/")},
		pots:   cfg.Potentiometers,
		logger: logger.With("component", "mqtt"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("lamparray-" + dev.DeviceID()).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(b.topics.availability(), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishAvailability("online")
			b.publishSnapshot()
			b.subscribeCommands()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start subscribes to device events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.dev.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.topics.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishAvailability("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event events.Event) {
	for _, msg := range eventMessages(b.topics, event) {
		b.publish(msg)
	}
}

func (b *Bridge) publishAvailability(state string) {
	b.publish(message{Topic: b.topics.availability(), Payload: []byte(state), Retained: true})
}

// publishSnapshot publishes the retained device description and current
// state, then the discovery documents.
func (b *Bridge) publishSnapshot() {
	attrs := b.dev.Attributes()
	b.publish(message{
		Topic:    b.topics.attributes(),
		Payload:  attributesPayload(attrs, b.dev.DeviceID(), b.dev.LayoutName()),
		Retained: true,
	})

	st := b.dev.State()
	for _, msg := range eventMessages(b.topics, events.Event{
		Type: events.EventMode, Data: events.ModeData{Autonomous: st.Autonomous},
	}) {
		b.publish(msg)
	}
	for _, msg := range eventMessages(b.topics, events.Event{
		Type: events.EventLayer, Data: events.LayerData{DefaultLayer: b.dev.DefaultLayer()},
	}) {
		b.publish(msg)
	}

	for _, msg := range buildDiscovery(b.topics, discoveryInfo{
		DeviceID: b.dev.DeviceID(),
		Name:     b.dev.LayoutName(),
		Kind:     attrs.Kind.String(),
		Layers:   b.dev.LayerCount(),
		Pots:     b.pots,
	}) {
		b.publish(msg)
	}
}

func (b *Bridge) subscribeCommands() {
	b.client.Subscribe(b.topics.layerSet(), 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleLayerCommand(msg.Payload())
	})
}

func (b *Bridge) handleLayerCommand(payload []byte) {
	layer, err := parseLayer(payload)
	if err != nil {
		b.logger.Warn("invalid layer command", "payload", string(payload), "err", err)
		return
	}
	if err := b.dev.SetDefaultLayer(layer); err != nil {
		b.logger.Warn("layer command failed", "layer", layer, "err", err)
	}
}

func (b *Bridge) publish(msg message) {
	token := b.client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", msg.Topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", msg.Topic, "err", err)
		}
	}()
}

// parseLayer accepts a bare number or a JSON object {"default_layer": n}.
func parseLayer(payload []byte) (uint8, error) {
	s := strings.TrimSpace(string(payload))
	if v, err := strconv.ParseUint(s, 10, 8); err == nil {
		return uint8(v), nil
	}
	var req struct {
		DefaultLayer *uint8 `json:"default_layer"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return 0, err
	}
	if req.DefaultLayer == nil {
		return 0, fmt.Errorf("missing default_layer")
	}
	return *req.DefaultLayer, nil
}
