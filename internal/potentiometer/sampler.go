// Package potentiometer samples analog inputs, maps raw readings to an
// output range and reports changed values.
package potentiometer

import (
	"context"
	"log/slog"
	"time"
)

// unseen is the filter state before the first sample. ADC readings never
// reach it, so the first mapped value always counts as a change.
const unseen = 0xFFFF

// Config controls throttling and the linear map.
type Config struct {
	Throttle  time.Duration
	OutputMin uint16
	OutputMax uint16
	ADCMin    uint16
	ADCMax    uint16
}

// DefaultConfig maps a 10-bit ADC onto 0..127 with a 1ms throttle.
func DefaultConfig() Config {
	return Config{
		Throttle:  time.Millisecond,
		OutputMin: 0,
		OutputMax: 127,
		ADCMin:    0,
		ADCMax:    1 << 10,
	}
}

// ADC reads raw samples.
type ADC interface {
	Len() int
	Read(index int) (uint16, error)
}

// Mapper replaces the linear map. ok=false falls back to it.
type Mapper interface {
	MapPotentiometer(index uint8, raw uint16) (value uint16, ok bool)
}

// UpdateFunc receives changed values.
type UpdateFunc func(index uint8, value uint16)

// Sampler is not safe for concurrent use; drive it from one goroutine.
type Sampler struct {
	cfg      Config
	adc      ADC
	state    []uint16
	lastExec time.Time
	mapper   Mapper
	updates  []UpdateFunc
	logger   *slog.Logger
}

// NewSampler creates a sampler over every input of adc.
func NewSampler(adc ADC, cfg Config, logger *slog.Logger) *Sampler {
	state := make([]uint16, adc.Len())
	for i := range state {
		state[i] = unseen
	}
	return &Sampler{
		cfg:    cfg,
		adc:    adc,
		state:  state,
		logger: logger.With("component", "potentiometer"),
	}
}

// SetMapper installs m in front of the linear map.
func (s *Sampler) SetMapper(m Mapper) {
	s.mapper = m
}

// OnUpdate registers fn for changed values.
func (s *Sampler) OnUpdate(fn UpdateFunc) {
	s.updates = append(s.updates, fn)
}

// Map converts a raw reading. Raw values outside the ADC range are clamped.
func (s *Sampler) Map(index uint8, raw uint16) uint16 {
	if s.mapper != nil {
		if v, ok := s.mapper.MapPotentiometer(index, raw); ok {
			return v
		}
	}
	c := s.cfg
	if c.ADCMax <= c.ADCMin {
		return c.OutputMin
	}
	if raw < c.ADCMin {
		raw = c.ADCMin
	}
	if raw > c.ADCMax {
		raw = c.ADCMax
	}
	span := uint32(c.OutputMax) - uint32(c.OutputMin)
	return uint16(span*uint32(raw-c.ADCMin)/uint32(c.ADCMax-c.ADCMin)) + c.OutputMin
}

// Filter reports whether value differs from the last one seen on index and
// remembers it.
func (s *Sampler) Filter(index uint8, value uint16) bool {
	if int(index) >= len(s.state) || s.state[index] == value {
		return false
	}
	s.state[index] = value
	return true
}

// Task samples every input once unless throttled. It returns whether any
// value changed.
func (s *Sampler) Task(now time.Time) bool {
	if s.cfg.Throttle > 0 {
		if !s.lastExec.IsZero() && now.Sub(s.lastExec) < s.cfg.Throttle {
			return false
		}
		s.lastExec = now
	}

	changed := false
	for i := range s.state {
		index := uint8(i)
		raw, err := s.adc.Read(i)
		if err != nil {
			s.logger.Warn("adc read failed", "index", index, "err", err)
			continue
		}
		value := s.Map(index, raw)
		if !s.Filter(index, value) {
			continue
		}
		changed = true
		s.logger.Debug("potentiometer changed", "index", index, "raw", raw, "value", value)
		for _, fn := range s.updates {
			fn(index, value)
		}
	}
	return changed
}

// Run calls Task every interval until ctx is done.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Task(now)
		}
	}
}
