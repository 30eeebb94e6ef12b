// Package hooks runs a board Lua script that can override lamp attributes
// and potentiometer behaviour.
package hooks

// Global function names a script may define.
const (
	HookLampInfo            = "lamp_info"
	HookPotentiometerMap    = "potentiometer_map"
	HookPotentiometerUpdate = "potentiometer_update"
)
