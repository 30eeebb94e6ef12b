// Package lamparray implements the device side of the HID LampArray protocol:
// device and lamp attributes, the attribute enumeration cursor, the
// autonomous/host-controlled mode switch, and validated range and multi lamp
// updates written through a BackingStore.
package lamparray

import "fmt"

// Kind is the LampArrayKind of a device (HID Usage Tables 26.2.1).
type Kind uint32

const (
	KindUndefined      Kind = 0x00
	KindKeyboard       Kind = 0x01
	KindMouse          Kind = 0x02
	KindGameController Kind = 0x03
	KindPeripheral     Kind = 0x04
	KindScene          Kind = 0x05
	KindNotification   Kind = 0x06
	KindChassis        Kind = 0x07
	KindWearable       Kind = 0x08
	KindFurniture      Kind = 0x09
	KindArt            Kind = 0x0A
)

var kindNames = map[Kind]string{
	KindUndefined:      "undefined",
	KindKeyboard:       "keyboard",
	KindMouse:          "mouse",
	KindGameController: "gamecontroller",
	KindPeripheral:     "peripheral",
	KindScene:          "scene",
	KindNotification:   "notification",
	KindChassis:        "chassis",
	KindWearable:       "wearable",
	KindFurniture:      "furniture",
	KindArt:            "art",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", uint32(k))
}

// ParseKind maps a config name like "keyboard" to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUndefined, fmt.Errorf("unknown lamparray kind %q", s)
}

// Purpose is the LampPurposes bitset (HID Usage Tables 26.3.1).
type Purpose int32

const (
	PurposeControl      Purpose = 0x01
	PurposeAccent       Purpose = 0x02
	PurposeBranding     Purpose = 0x04
	PurposeStatus       Purpose = 0x08
	PurposeIllumination Purpose = 0x10
	PurposePresentation Purpose = 0x20
)

// UpdateFlags is the LampUpdateFlags bitset (HID Usage Tables 26.4.1).
type UpdateFlags uint8

// UpdateComplete marks the last report of a batch; the backing store is
// flushed after it has been applied.
const UpdateComplete UpdateFlags = 0x01

// Complete reports whether the batch-complete bit is set.
func (f UpdateFlags) Complete() bool {
	return f&UpdateComplete != 0
}

// MaxMultiUpdateLamps is the number of slots in a LampMultiUpdateReport.
const MaxMultiUpdateLamps = 8

// LampColor is one lamp state: a value per channel plus intensity.
type LampColor struct {
	Red       uint8 `json:"red"`
	Green     uint8 `json:"green"`
	Blue      uint8 `json:"blue"`
	Intensity uint8 `json:"intensity"`
}

// Bounds is the bounding box of the device in micrometers.
type Bounds struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
	Depth  uint32 `json:"depth"`
}

// Position is a lamp position inside Bounds in micrometers.
type Position struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

// DeviceAttributes is the content of the LampArrayAttributesReport.
type DeviceAttributes struct {
	LampCount      uint16 `json:"lamp_count"`
	Bounds         Bounds `json:"bounds"`
	Kind           Kind   `json:"kind"`
	UpdateInterval uint32 `json:"update_interval_us"`
}

// LampAttributes is the content of the LampAttributesResponseReport.
type LampAttributes struct {
	LampID         uint16    `json:"lamp_id"`
	Position       Position  `json:"position"`
	UpdateLatency  int32     `json:"update_latency_us"`
	Purposes       Purpose   `json:"purposes"`
	Levels         LampColor `json:"levels"`
	IsProgrammable bool      `json:"is_programmable"`
	InputBinding   uint8     `json:"input_binding"`
}

// RangeUpdate is a LampRangeUpdateReport: one color for the inclusive
// range [Start, End].
type RangeUpdate struct {
	Flags UpdateFlags
	Start uint16
	End   uint16
	Color LampColor
}

// MultiUpdate is a LampMultiUpdateReport. Only the first Count slots of IDs
// and Colors are meaningful.
type MultiUpdate struct {
	Count  uint8
	Flags  UpdateFlags
	IDs    [MaxMultiUpdateLamps]uint16
	Colors [MaxMultiUpdateLamps]LampColor
}
