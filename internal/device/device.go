// Package device wires the layout model, LampArray engine, color overlay
// and persisted settings into one LampArray device.
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"lamparray-go/internal/backing"
	"lamparray-go/internal/events"
	"lamparray-go/internal/lamparray"
	"lamparray-go/internal/layout"
	"lamparray-go/internal/store"
)

var (
	ErrNoSuchLamp  = errors.New("no such lamp")
	ErrNoSuchLayer = errors.New("no such layer")
)

// State is the observable lamp state.
type State struct {
	Autonomous bool     `json:"autonomous"`
	Seq        uint64   `json:"seq"`
	Colors     []string `json:"colors"`
}

// Device owns every per-device component. Reports reach the engine only
// through Router; everything else reads immutable attributes or the
// overlay snapshot.
type Device struct {
	layout   *layout.Layout
	model    *layout.Model
	layers   *layout.LayerState
	overlay  *backing.Overlay
	engine   *lamparray.Engine
	router   *lamparray.Router
	store    store.Store
	events   *events.Bus
	deviceID string
	logger   *slog.Logger

	// layerMu keeps the persisted and live default layer in step.
	layerMu sync.Mutex
}

// New builds the device and restores the persisted default layer.
func New(l *layout.Layout, cfg layout.ModelConfig, renderer backing.Renderer, st store.Store, bus *events.Bus, logger *slog.Logger) (*Device, error) {
	settings, created, err := store.LoadOrInit(st)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info("new device id", "device_id", settings.DeviceID)
	}

	layer := settings.DefaultLayer
	if l.Layers() > 0 && int(layer) >= l.Layers() {
		logger.Warn("stored default layer out of range, using 0", "layer", layer, "layers", l.Layers())
		layer = 0
	}

	layers := layout.NewLayerState(layer)
	model := layout.NewModel(l, cfg, layers, logger)
	overlay := backing.NewOverlay(l.LampCount(), renderer, bus, logger)
	engine := lamparray.New(model, overlay, logger)

	d := &Device{
		layout:   l,
		model:    model,
		layers:   layers,
		overlay:  overlay,
		engine:   engine,
		router:   lamparray.NewRouter(engine, logger),
		store:    st,
		events:   bus,
		deviceID: settings.DeviceID,
		logger:   logger.With("component", "device"),
	}
	d.logger.Info("device ready", "lamps", l.LampCount(), "layout", l.Name,
		"kind", cfg.Kind, "default_layer", layer)
	return d, nil
}

// SetInfoOverride installs a lamp attribute override.
func (d *Device) SetInfoOverride(o layout.InfoOverride) {
	d.model.SetOverride(o)
}

// Router is the report entry point for the transport.
func (d *Device) Router() *lamparray.Router {
	return d.router
}

// Events returns the event bus.
func (d *Device) Events() *events.Bus {
	return d.events
}

// DeviceID returns the persisted device id.
func (d *Device) DeviceID() string {
	return d.deviceID
}

// LayoutName returns the board layout name.
func (d *Device) LayoutName() string {
	return d.layout.Name
}

func (d *Device) Attributes() lamparray.DeviceAttributes {
	return d.model.DeviceAttributes()
}

// Lamp returns the attributes of one lamp without moving the report cursor.
func (d *Device) Lamp(id uint16) (lamparray.LampAttributes, error) {
	if id >= d.model.DeviceAttributes().LampCount {
		return lamparray.LampAttributes{}, fmt.Errorf("lamp %d: %w", id, ErrNoSuchLamp)
	}
	return d.model.LampAttributes(id), nil
}

// Lamps returns the attributes of every lamp.
func (d *Device) Lamps() []lamparray.LampAttributes {
	n := d.model.DeviceAttributes().LampCount
	lamps := make([]lamparray.LampAttributes, n)
	for i := range lamps {
		lamps[i] = d.model.LampAttributes(uint16(i))
	}
	return lamps
}

// State returns the last committed frame.
func (d *Device) State() State {
	frame, enabled, seq := d.overlay.Snapshot()
	colors := make([]string, len(frame))
	for i, c := range frame {
		colors[i] = fmt.Sprintf("#%06X", c.Uint32())
	}
	return State{Autonomous: !enabled, Seq: seq, Colors: colors}
}

// DefaultLayer returns the layer bindings are resolved on.
func (d *Device) DefaultLayer() uint8 {
	return d.layers.Highest()
}

// LayerCount returns the number of keymap layers.
func (d *Device) LayerCount() int {
	return d.layout.Layers()
}

// SetDefaultLayer switches, persists and announces the default layer.
func (d *Device) SetDefaultLayer(layer uint8) error {
	if int(layer) >= d.layout.Layers() {
		return fmt.Errorf("layer %d: %w", layer, ErrNoSuchLayer)
	}
	d.layerMu.Lock()
	defer d.layerMu.Unlock()
	if err := d.store.UpdateSettings(func(s *store.Settings) error {
		s.DefaultLayer = layer
		return nil
	}); err != nil {
		return fmt.Errorf("persist default layer: %w", err)
	}
	d.layers.SetDefaultLayer(layer)
	d.logger.Info("default layer changed", "layer", layer)
	d.events.Emit(events.Event{Type: events.EventLayer, Data: events.LayerData{DefaultLayer: layer}})
	return nil
}

// Close releases the renderer.
func (d *Device) Close() error {
	return d.overlay.Close()
}
