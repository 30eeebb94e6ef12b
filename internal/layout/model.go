package layout

import (
	"log/slog"
	"time"

	"lamparray-go/internal/lamparray"
)

const (
	// KeyUnitMicrometers is the pitch of one key unit.
	KeyUnitMicrometers = 19050
	// DefaultDepth is the board depth when none is configured.
	DefaultDepth = 30000
	// DefaultUpdateLatency is reported for every lamp, in microseconds.
	DefaultUpdateLatency = 1000

	ledPointWidth  = 224
	ledPointHeight = 64

	// first mouse button usage on the Button page
	mouseButtonUsage = 1
)

// ModelConfig overrides derived device attributes. Zero values fall back to
// the layout estimate or the defaults above.
type ModelConfig struct {
	Kind           lamparray.Kind
	Width          uint32
	Height         uint32
	Depth          uint32
	UpdateInterval time.Duration
}

// InfoOverride can adjust a lamp's attributes after they are derived.
type InfoOverride interface {
	LampInfo(attrs lamparray.LampAttributes) lamparray.LampAttributes
}

// Model derives LampArray attributes from a Layout.
type Model struct {
	layout   *Layout
	layers   *LayerState
	device   lamparray.DeviceAttributes
	override InfoOverride
	logger   *slog.Logger
}

// NewModel computes device attributes once. layers may be nil, in which
// case bindings always come from layer 0.
func NewModel(l *Layout, cfg ModelConfig, layers *LayerState, logger *slog.Logger) *Model {
	if layers == nil {
		layers = NewLayerState(0)
	}
	width := cfg.Width
	if width == 0 {
		width = uint32(l.Width * KeyUnitMicrometers)
	}
	height := cfg.Height
	if height == 0 {
		height = uint32(l.Height * KeyUnitMicrometers)
	}
	depth := cfg.Depth
	if depth == 0 {
		depth = DefaultDepth
	}
	m := &Model{
		layout: l,
		layers: layers,
		logger: logger.With("component", "model"),
		device: lamparray.DeviceAttributes{
			LampCount:      l.LampCount(),
			Bounds:         lamparray.Bounds{Width: width, Height: height, Depth: depth},
			Kind:           cfg.Kind,
			UpdateInterval: uint32(cfg.UpdateInterval / time.Microsecond),
		},
	}
	m.logger.Debug("device attributes", "lamps", m.device.LampCount,
		"width", width, "height", height, "depth", depth, "kind", cfg.Kind)
	return m
}

// SetOverride installs o. Pass nil to remove it.
func (m *Model) SetOverride(o InfoOverride) {
	m.override = o
}

// Layers returns the layer state bindings are resolved against.
func (m *Model) Layers() *LayerState {
	return m.layers
}

// Layout returns the underlying layout.
func (m *Model) Layout() *Layout {
	return m.layout
}

func (m *Model) DeviceAttributes() lamparray.DeviceAttributes {
	return m.device
}

// LampAttributes derives the attributes of lamp id. The caller keeps id
// below the lamp count.
func (m *Model) LampAttributes(id uint16) lamparray.LampAttributes {
	led := m.layout.LEDs[id]
	b := m.device.Bounds

	attrs := lamparray.LampAttributes{
		LampID: id,
		Position: lamparray.Position{
			X: int32(b.Width/ledPointWidth) * int32(led.X),
			Y: int32(b.Height/ledPointHeight) * (ledPointHeight - int32(led.Y)),
		},
		UpdateLatency:  DefaultUpdateLatency,
		Purposes:       lamparray.PurposeControl,
		Levels:         lamparray.LampColor{Red: 255, Green: 255, Blue: 255, Intensity: 1},
		IsProgrammable: true,
		InputBinding:   m.binding(int(id)),
	}
	if led.Underglow() {
		attrs.Position.Z = int32(b.Depth)
		attrs.Purposes = lamparray.PurposeAccent
	}

	if m.override != nil {
		attrs = m.override.LampInfo(attrs)
		attrs.LampID = id
	}
	return attrs
}

// binding maps the key under an LED to a usage on the active default
// layer. Keyboards report basic keys and modifiers on the Keyboard page,
// mice report buttons on the Button page starting at 1. Mouse keycodes
// overlap Keyboard usages, so each kind only binds its own page and every
// other kind is unbound.
func (m *Model) binding(led int) uint8 {
	row, col, ok := m.layout.MatrixLocation(led)
	if !ok {
		return 0
	}
	kc := m.layout.KeycodeAt(int(m.layers.Highest()), row, col)
	switch m.device.Kind {
	case lamparray.KindKeyboard:
		if kc.IsBasic() || kc.IsModifier() {
			return uint8(kc)
		}
	case lamparray.KindMouse:
		if kc.IsMouseButton() {
			return uint8(kc-KC_MS_BTN1) + mouseButtonUsage
		}
	}
	return 0
}
