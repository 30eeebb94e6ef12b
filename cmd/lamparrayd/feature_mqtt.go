//go:build !no_mqtt

package main

import (
	"log/slog"

	"lamparray-go/internal/device"
	mqttbridge "lamparray-go/internal/mqtt"
)

type mqttStopper struct {
	bridge *mqttbridge.Bridge
}

func (m *mqttStopper) Stop() {
	if m.bridge != nil {
		m.bridge.Stop()
	}
}

func initMQTT(dev *device.Device, cfg *Config, logger *slog.Logger) *mqttStopper {
	if !cfg.MQTT.Enabled {
		return &mqttStopper{}
	}
	pots := 0
	if cfg.Potentiometer.Enabled {
		pots = len(cfg.Potentiometer.Pins)
	}
	bridge, err := mqttbridge.NewBridge(dev, mqttbridge.Config{
		Broker:         cfg.MQTT.Broker,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		TopicPrefix:    cfg.MQTT.TopicPrefix,
		Potentiometers: pots,
	}, logger)
	if err != nil {
		logger.Error("mqtt bridge", "err", err)
		return &mqttStopper{}
	}
	bridge.Start()
	return &mqttStopper{bridge: bridge}
}
