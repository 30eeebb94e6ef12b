// Package backing holds host-written lamp colors and pushes committed frames
// to a renderer.
package backing

import (
	"log/slog"
	"sync"

	"lamparray-go/internal/events"
	"lamparray-go/internal/lamparray"
)

// RGB is a rendered lamp color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Uint32 packs the color as 0xRRGGBB.
func (c RGB) Uint32() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// FromLampColor converts a host color. Intensity 0 turns the lamp off, any
// other intensity passes the channels through unchanged.
func FromLampColor(c lamparray.LampColor) RGB {
	if c.Intensity == 0 {
		return RGB{}
	}
	return RGB{R: c.Red, G: c.Green, B: c.Blue}
}

// Renderer pushes a full frame to the LEDs.
type Renderer interface {
	Render(frame []RGB) error
	Close() error
}

// NopRenderer discards frames.
type NopRenderer struct{}

func (NopRenderer) Render([]RGB) error { return nil }
func (NopRenderer) Close() error       { return nil }

// Publisher receives frame and mode events.
type Publisher interface {
	Emit(events.Event)
}

// Overlay implements lamparray.BackingStore. SetItem stages colors, Flush
// commits them and renders while host control is enabled.
type Overlay struct {
	mu        sync.Mutex
	staged    []RGB
	committed []RGB
	enabled   bool
	seq       uint64
	renderer  Renderer
	pub       Publisher
	logger    *slog.Logger
}

// NewOverlay creates an overlay for count lamps. renderer and pub may be nil.
func NewOverlay(count uint16, renderer Renderer, pub Publisher, logger *slog.Logger) *Overlay {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	return &Overlay{
		staged:    make([]RGB, count),
		committed: make([]RGB, count),
		renderer:  renderer,
		pub:       pub,
		logger:    logger.With("component", "backing"),
	}
}

func (o *Overlay) Enable(on bool) {
	o.mu.Lock()
	changed := o.enabled != on
	o.enabled = on
	var frame []RGB
	if !on {
		clear(o.staged)
		clear(o.committed)
		frame = append([]RGB(nil), o.committed...)
	}
	o.mu.Unlock()

	if changed {
		o.logger.Info("host control", "enabled", on)
	}
	if frame != nil {
		o.render(frame)
	}
	o.emit(events.Event{Type: events.EventMode, Data: events.ModeData{Autonomous: !on}})
}

func (o *Overlay) SetItem(index uint16, color lamparray.LampColor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if int(index) >= len(o.staged) {
		return
	}
	o.staged[index] = FromLampColor(color)
}

func (o *Overlay) Flush() {
	o.mu.Lock()
	copy(o.committed, o.staged)
	o.seq++
	seq := o.seq
	enabled := o.enabled
	frame := append([]RGB(nil), o.committed...)
	o.mu.Unlock()

	if enabled {
		o.render(frame)
	}
	colors := make([]uint32, len(frame))
	for i, c := range frame {
		colors[i] = c.Uint32()
	}
	o.emit(events.Event{Type: events.EventFrame, Data: events.FrameData{Seq: seq, Colors: colors}})
}

// Snapshot returns a copy of the committed frame.
func (o *Overlay) Snapshot() (frame []RGB, enabled bool, seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]RGB(nil), o.committed...), o.enabled, o.seq
}

// Close closes the renderer.
func (o *Overlay) Close() error {
	return o.renderer.Close()
}

func (o *Overlay) render(frame []RGB) {
	if err := o.renderer.Render(frame); err != nil {
		o.logger.Warn("render failed", "err", err)
	}
}

func (o *Overlay) emit(e events.Event) {
	if o.pub != nil {
		o.pub.Emit(e)
	}
}
