package layout

import (
	"math/bits"
	"sync/atomic"
)

// LayerState holds the default layer bitmask. It is written by whoever
// switches layers (web API, MQTT, stored settings) and read by the
// attribute model whenever a lamp binding is resolved, so a binding can
// reflect a layer switch that happened after the host asked for it.
type LayerState struct {
	mask atomic.Uint32
}

// NewLayerState returns a state with only layer set.
func NewLayerState(layer uint8) *LayerState {
	s := &LayerState{}
	s.SetDefaultLayer(layer)
	return s
}

// SetDefaultLayer replaces the mask with a single layer bit.
func (s *LayerState) SetDefaultLayer(layer uint8) {
	if layer >= MaxLayers {
		layer = MaxLayers - 1
	}
	s.mask.Store(1 << layer)
}

// SetMask replaces the whole bitmask.
func (s *LayerState) SetMask(mask uint32) {
	s.mask.Store(mask)
}

// Mask returns the current bitmask.
func (s *LayerState) Mask() uint32 {
	return s.mask.Load()
}

// Highest returns the highest active layer, 0 when no bit is set.
func (s *LayerState) Highest() uint8 {
	m := s.mask.Load()
	if m == 0 {
		return 0
	}
	return uint8(bits.Len32(m) - 1)
}
