//go:build no_hooks

package hooks

import (
	"log/slog"

	"lamparray-go/internal/lamparray"
)

// Engine is a no-op stub when hooks are disabled.
type Engine struct{}

// Load returns a no-op engine when hooks are disabled.
func Load(_ string, _ *slog.Logger) (*Engine, error) { return &Engine{}, nil }

// LoadString returns a no-op engine when hooks are disabled.
func LoadString(_, _ string, _ *slog.Logger) (*Engine, error) { return &Engine{}, nil }

// Hooks returns nil.
func (e *Engine) Hooks() []string { return nil }

// Has returns false.
func (e *Engine) Has(_ string) bool { return false }

// Close is a no-op.
func (e *Engine) Close() {}

// LampInfo returns attrs unchanged.
func (e *Engine) LampInfo(attrs lamparray.LampAttributes) lamparray.LampAttributes { return attrs }

// MapPotentiometer reports no mapping.
func (e *Engine) MapPotentiometer(_ uint8, _ uint16) (uint16, bool) { return 0, false }

// PotentiometerUpdate is a no-op.
func (e *Engine) PotentiometerUpdate(_ uint8, _ uint16) {}
