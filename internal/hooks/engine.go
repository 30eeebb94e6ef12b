//go:build !no_hooks

package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"lamparray-go/internal/lamparray"

	lua "github.com/yuin/gopher-lua"
)

// DefaultCallTimeout bounds a single hook call.
const DefaultCallTimeout = 50 * time.Millisecond

// Engine owns one Lua state. Calls are serialised.
type Engine struct {
	mu      sync.Mutex
	state   *lua.LState
	name    string
	hooks   map[string]*lua.LFunction
	timeout time.Duration
	logger  *slog.Logger
}

// Load reads and runs the script at path.
func Load(path string, logger *slog.Logger) (*Engine, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hooks script: %w", err)
	}
	return LoadString(string(code), path, logger)
}

// LoadString runs code and collects the hook functions it defines.
func LoadString(code, name string, logger *slog.Logger) (*Engine, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})

	// Sandbox
	for _, g := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(g, lua.LNil)
	}

	e := &Engine{
		state:   L,
		name:    name,
		hooks:   make(map[string]*lua.LFunction),
		timeout: DefaultCallTimeout,
		logger:  logger.With("component", "hooks"),
	}
	L.SetGlobal("log", L.NewFunction(e.luaLog))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	L.SetContext(ctx)
	err := L.DoString(code)
	L.RemoveContext()
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("run %s: %w", name, err)
	}

	for _, h := range []string{HookLampInfo, HookPotentiometerMap, HookPotentiometerUpdate} {
		if fn, ok := L.GetGlobal(h).(*lua.LFunction); ok {
			e.hooks[h] = fn
		}
	}
	e.logger.Info("hooks loaded", "script", name, "hooks", e.Hooks())
	return e, nil
}

// Hooks returns the names of the hooks the script defines.
func (e *Engine) Hooks() []string {
	var names []string
	for _, h := range []string{HookLampInfo, HookPotentiometerMap, HookPotentiometerUpdate} {
		if _, ok := e.hooks[h]; ok {
			names = append(names, h)
		}
	}
	return names
}

// Has reports whether the script defines hook.
func (e *Engine) Has(hook string) bool {
	_, ok := e.hooks[hook]
	return ok
}

// Close releases the Lua state.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Close()
}

func (e *Engine) luaLog(L *lua.LState) int {
	msg := L.CheckString(1)
	e.logger.Info("script log", "script", e.name, "msg", msg)
	return 0
}

// call runs hook with args and returns at most one result. Callers hold mu.
func (e *Engine) call(hook string, nret int, args ...lua.LValue) (lua.LValue, error) {
	fn, ok := e.hooks[hook]
	if !ok {
		return lua.LNil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	e.state.SetContext(ctx)
	defer e.state.RemoveContext()

	if err := e.state.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		return lua.LNil, fmt.Errorf("%s: %w", hook, err)
	}
	if nret == 0 {
		return lua.LNil, nil
	}
	ret := e.state.Get(-1)
	e.state.Pop(1)
	return ret, nil
}

// LampInfo lets lamp_info(id, info) adjust derived attributes. The hook
// receives a table with x, y, z, purposes, update_latency and
// input_binding and may return a table with any of them replaced.
func (e *Engine) LampInfo(attrs lamparray.LampAttributes) lamparray.LampAttributes {
	if !e.Has(HookLampInfo) {
		return attrs
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	L := e.state
	info := L.NewTable()
	info.RawSetString("x", lua.LNumber(attrs.Position.X))
	info.RawSetString("y", lua.LNumber(attrs.Position.Y))
	info.RawSetString("z", lua.LNumber(attrs.Position.Z))
	info.RawSetString("purposes", lua.LNumber(attrs.Purposes))
	info.RawSetString("update_latency", lua.LNumber(attrs.UpdateLatency))
	info.RawSetString("input_binding", lua.LNumber(attrs.InputBinding))

	ret, err := e.call(HookLampInfo, 1, lua.LNumber(attrs.LampID), info)
	if err != nil {
		e.logger.Warn("hook failed", "hook", HookLampInfo, "lamp", attrs.LampID, "err", err)
		return attrs
	}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return attrs
	}
	if v, ok := tbl.RawGetString("x").(lua.LNumber); ok {
		attrs.Position.X = int32(v)
	}
	if v, ok := tbl.RawGetString("y").(lua.LNumber); ok {
		attrs.Position.Y = int32(v)
	}
	if v, ok := tbl.RawGetString("z").(lua.LNumber); ok {
		attrs.Position.Z = int32(v)
	}
	if v, ok := tbl.RawGetString("purposes").(lua.LNumber); ok {
		attrs.Purposes = lamparray.Purpose(v)
	}
	if v, ok := tbl.RawGetString("update_latency").(lua.LNumber); ok {
		attrs.UpdateLatency = int32(v)
	}
	if v, ok := tbl.RawGetString("input_binding").(lua.LNumber); ok {
		attrs.InputBinding = uint8(v)
	}
	return attrs
}

// MapPotentiometer runs potentiometer_map(index, raw). ok is false when the
// hook is missing, fails, or returns a non-number.
func (e *Engine) MapPotentiometer(index uint8, raw uint16) (value uint16, ok bool) {
	if !e.Has(HookPotentiometerMap) {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ret, err := e.call(HookPotentiometerMap, 1, lua.LNumber(index), lua.LNumber(raw))
	if err != nil {
		e.logger.Warn("hook failed", "hook", HookPotentiometerMap, "index", index, "err", err)
		return 0, false
	}
	n, isNum := ret.(lua.LNumber)
	if !isNum || n < 0 {
		return 0, false
	}
	if n > 0xFFFF {
		n = 0xFFFF
	}
	return uint16(n), true
}

// PotentiometerUpdate runs potentiometer_update(index, value).
func (e *Engine) PotentiometerUpdate(index uint8, value uint16) {
	if !e.Has(HookPotentiometerUpdate) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.call(HookPotentiometerUpdate, 0, lua.LNumber(index), lua.LNumber(value)); err != nil {
		e.logger.Warn("hook failed", "hook", HookPotentiometerUpdate, "index", index, "err", err)
	}
}
