//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"testing"

	"lamparray-go/internal/events"
	"lamparray-go/internal/lamparray"
)

var testTopics = topics{prefix: "lamparray"}

func TestEventMessages(t *testing.T) {
	tests := []struct {
		name     string
		event    events.Event
		topic    string
		payload  string
		retained bool
	}{
		{"autonomous", events.Event{Type: events.EventMode, Data: events.ModeData{Autonomous: true}},
			"lamparray/mode", "autonomous", true},
		{"host", events.Event{Type: events.EventMode, Data: events.ModeData{Autonomous: false}},
			"lamparray/mode", "host", true},
		{"frame", events.Event{Type: events.EventFrame, Data: events.FrameData{Seq: 3, Colors: []uint32{0xFF0000, 0x00000A}}},
			"lamparray/frame", `{"seq":3,"colors":["#FF0000","#00000A"]}`, false},
		{"potentiometer", events.Event{Type: events.EventPotentiometer, Data: events.PotentiometerData{Index: 2, Value: 127}},
			"lamparray/potentiometer/2", "127", true},
		{"layer", events.Event{Type: events.EventLayer, Data: events.LayerData{DefaultLayer: 1}},
			"lamparray/layer", "1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := eventMessages(testTopics, tt.event)
			if len(msgs) != 1 {
				t.Fatalf("got %d messages, want 1", len(msgs))
			}
			m := msgs[0]
			if m.Topic != tt.topic {
				t.Errorf("topic = %q, want %q", m.Topic, tt.topic)
			}
			if string(m.Payload) != tt.payload {
				t.Errorf("payload = %s, want %s", m.Payload, tt.payload)
			}
			if m.Retained != tt.retained {
				t.Errorf("retained = %v, want %v", m.Retained, tt.retained)
			}
		})
	}
}

func TestEventMessagesUnknownPayload(t *testing.T) {
	if msgs := eventMessages(testTopics, events.Event{Type: "other", Data: 42}); len(msgs) != 0 {
		t.Errorf("got %d messages for unknown payload", len(msgs))
	}
}

func TestAttributesPayload(t *testing.T) {
	attrs := lamparray.DeviceAttributes{
		LampCount: 3,
		Bounds:    lamparray.Bounds{Width: 57150, Height: 19050, Depth: 30000},
		Kind:      lamparray.KindKeyboard,
	}
	var got map[string]any
	if err := json.Unmarshal(attributesPayload(attrs, "abc", "pad"), &got); err != nil {
		t.Fatal(err)
	}
	if got["lamp_count"] != float64(3) || got["kind_name"] != "keyboard" ||
		got["device_id"] != "abc" || got["layout"] != "pad" {
		t.Errorf("payload = %v", got)
	}
}

func TestBuildDiscovery(t *testing.T) {
	msgs := buildDiscovery(testTopics, discoveryInfo{
		DeviceID: "abc", Name: "pad", Kind: "keyboard", Layers: 2, Pots: 2,
	})
	byTopic := make(map[string]message)
	for _, m := range msgs {
		if !m.Retained {
			t.Errorf("%s not retained", m.Topic)
		}
		byTopic[m.Topic] = m
	}
	if len(byTopic) != 4 {
		t.Fatalf("got %d discovery topics, want 4", len(byTopic))
	}

	m, ok := byTopic["homeassistant/number/lamparray_abc/default_layer/config"]
	if !ok {
		t.Fatal("layer discovery missing")
	}
	var layer haDiscovery
	if err := json.Unmarshal(m.Payload, &layer); err != nil {
		t.Fatal(err)
	}
	if layer.CommandTopic != "lamparray/layer/set" || layer.StateTopic != "lamparray/layer" {
		t.Errorf("layer topics = %q %q", layer.StateTopic, layer.CommandTopic)
	}
	if layer.Min == nil || layer.Max == nil || *layer.Min != 0 || *layer.Max != 1 {
		t.Errorf("layer range = %v..%v", layer.Min, layer.Max)
	}
	if layer.UniqueID != "lamparray_abc_default_layer" {
		t.Errorf("unique_id = %q", layer.UniqueID)
	}
	if layer.AvailabilityTopic != "lamparray/availability" {
		t.Errorf("availability = %q", layer.AvailabilityTopic)
	}

	m = byTopic["homeassistant/binary_sensor/lamparray_abc/host_control/config"]
	var mode haDiscovery
	if err := json.Unmarshal(m.Payload, &mode); err != nil {
		t.Fatal(err)
	}
	if mode.PayloadOn != ModeHost || mode.PayloadOff != ModeAutonomous {
		t.Errorf("mode payloads = %q/%q", mode.PayloadOn, mode.PayloadOff)
	}

	if _, ok := byTopic["homeassistant/sensor/lamparray_abc/potentiometer_1/config"]; !ok {
		t.Error("potentiometer 1 discovery missing")
	}
}

func TestBuildDiscoveryNoLayers(t *testing.T) {
	msgs := buildDiscovery(testTopics, discoveryInfo{DeviceID: "abc"})
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want only host control", len(msgs))
	}
	var p haDiscovery
	if err := json.Unmarshal(msgs[0].Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Device.Name != "LampArray" {
		t.Errorf("fallback name = %q", p.Device.Name)
	}
}

func TestParseLayer(t *testing.T) {
	tests := []struct {
		payload string
		want    uint8
		wantErr bool
	}{
		{"2", 2, false},
		{" 3\n", 3, false},
		{`{"default_layer": 1}`, 1, false},
		{`{}`, 0, true},
		{"300", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLayer([]byte(tt.payload))
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLayer(%q) err = %v", tt.payload, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLayer(%q) = %d, want %d", tt.payload, got, tt.want)
		}
	}
}

func TestMustJSON(t *testing.T) {
	if got := string(mustJSON(map[string]string{"hello": "world"})); got != `{"hello":"world"}` {
		t.Errorf("mustJSON = %s", got)
	}
	if got := string(mustJSON(make(chan int))); got != "{}" {
		t.Errorf("mustJSON(chan) = %s", got)
	}
}
