//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"

	"lamparray-go/internal/events"
	"lamparray-go/internal/lamparray"
)

// message is one MQTT publish.
type message struct {
	Topic    string
	Payload  []byte // empty retained payload deletes
	QoS      byte
	Retained bool
}

// topics builds every topic below the configured prefix.
type topics struct {
	prefix string
}

func (t topics) availability() string { return t.prefix + "/availability" }
func (t topics) attributes() string { return t.prefix + "/attributes" }
func (t topics) mode() string { return t.prefix + "/mode" }
func (t topics) frame() string { return t.prefix + "/frame" }
func (t topics) layer() string { return t.prefix + "/layer" }
func (t topics) layerSet() string { return t.prefix + "/layer/set" }
func (t topics) pot(index uint8) string { return t.prefix + "/potentiometer/" + strconv.Itoa(int(index)) }

// Mode payloads.
const (
	ModeAutonomous = "autonomous"
	ModeHost       = "host"
)

type framePayload struct {
	Seq    uint64   `json:"seq"`
	Colors []string `json:"colors"`
}

// eventMessages maps a device event to the messages it publishes. Frames
// are high rate, so they go out at QoS 0 and are not retained.
func eventMessages(t topics, event events.Event) []message {
	switch data := event.Data.(type) {
	case events.ModeData:
		mode := ModeHost
		if data.Autonomous {
			mode = ModeAutonomous
		}
		return []message{{Topic: t.mode(), Payload: []byte(mode), QoS: 1, Retained: true}}

	case events.FrameData:
		colors := make([]string, len(data.Colors))
		for i, c := range data.Colors {
			colors[i] = fmt.Sprintf("#%06X", c)
		}
		return []message{{Topic: t.frame(), Payload: mustJSON(framePayload{Seq: data.Seq, Colors: colors})}}

	case events.PotentiometerData:
		return []message{{
			Topic:    t.pot(data.Index),
			Payload:  []byte(strconv.Itoa(int(data.Value))),
			QoS:      1,
			Retained: true,
		}}

	case events.LayerData:
		return []message{{
			Topic:    t.layer(),
			Payload:  []byte(strconv.Itoa(int(data.DefaultLayer))),
			QoS:      1,
			Retained: true,
		}}
	}
	return nil
}

type attributesDoc struct {
	lamparray.DeviceAttributes
	KindName string `json:"kind_name"`
	DeviceID string `json:"device_id"`
	Layout   string `json:"layout"`
}

func attributesPayload(attrs lamparray.DeviceAttributes, deviceID, layoutName string) []byte {
	return mustJSON(attributesDoc{
		DeviceAttributes: attrs,
		KindName:         attrs.Kind.String(),
		DeviceID:         deviceID,
		Layout:           layoutName,
	})
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	Min               *int     `json:"min,omitempty"`
	Max               *int     `json:"max,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	Device            haDevice `json:"device"`
}

// discoveryInfo is what discovery needs to know about the device.
type discoveryInfo struct {
	DeviceID string
	Name     string
	Kind     string
	Layers   int
	Pots     int
}

func nodeID(info discoveryInfo) string {
	return "lamparray_" + info.DeviceID
}

// buildDiscovery generates HA discovery messages: a binary sensor for host
// control, a number entity for the default layer and one sensor per
// potentiometer.
func buildDiscovery(t topics, info discoveryInfo) []message {
	node := nodeID(info)
	name := info.Name
	if name == "" {
		name = "LampArray"
	}
	dev := haDevice{
		Identifiers:  []string{node},
		Manufacturer: "lamparray-go",
		Model:        info.Kind,
		Name:         name,
	}
	avail := t.availability()

	msgs := []message{
		discovery("binary_sensor", node, "host_control", haDiscovery{
			Name:              name + " Host Control",
			StateTopic:        t.mode(),
			AvailabilityTopic: avail,
			PayloadOn:         ModeHost,
			PayloadOff:        ModeAutonomous,
			Icon:              "mdi:led-strip-variant",
			Device:            dev,
		}),
	}

	if info.Layers > 0 {
		lo, hi := 0, info.Layers-1
		msgs = append(msgs, discovery("number", node, "default_layer", haDiscovery{
			Name:              name + " Default Layer",
			StateTopic:        t.layer(),
			CommandTopic:      t.layerSet(),
			AvailabilityTopic: avail,
			Min:               &lo,
			Max:               &hi,
			Icon:              "mdi:layers",
			Device:            dev,
		}))
	}

	for i := 0; i < info.Pots; i++ {
		msgs = append(msgs, discovery("sensor", node, fmt.Sprintf("potentiometer_%d", i), haDiscovery{
			Name:              fmt.Sprintf("%s Potentiometer %d", name, i),
			StateTopic:        t.pot(uint8(i)),
			AvailabilityTopic: avail,
			StateClass:        "measurement",
			Icon:              "mdi:knob",
			Device:            dev,
		}))
	}
	return msgs
}

// discovery builds a retained Home Assistant discovery document.
func discovery(component, node, object string, payload haDiscovery) message {
	payload.UniqueID = node + "_" + object
	return message{
		Topic:    fmt.Sprintf("homeassistant/%s/%s/%s/config", component, node, object),
		Payload:  mustJSON(payload),
		QoS:      1,
		Retained: true,
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
