// Package flex classifies features with a user Lua script.
//
// A script defines a global classify(tags) function that returns either a
// class name from the style table ("highway.primary"), a class number, or
// nil for the default class. It may also define is_area(tags, closed) to
// override the area rules for closed ways.
//
//	function classify(tags)
//	  if tags.boundary == "protected_area" then
//	    return "boundary.protected_area"
//	  end
//	  return georender.class(tags.highway and "highway.*" or "place.other")
//	end
package flex

import (
	"fmt"
	"strings"
	"sync"

	"github.com/paulmach/osm"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wegman-software/georender-go/internal/style"
)

// Runtime wraps one Lua state
// gopher-lua states are not goroutine safe, so every call holds mu.
type Runtime struct {
	L        *lua.LState
	mu       sync.Mutex
	classes  *style.Classifier
	log      *zap.Logger
	classify lua.LValue
	isArea   lua.LValue
}

// NewRuntime creates a Lua runtime exposing the georender API
// classes resolves names returned by the script.
func NewRuntime(classes *style.Classifier, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runtime{
		L:       lua.NewState(),
		classes: classes,
		log:     log,
	}
	r.registerAPI()
	return r
}

// Close releases Lua resources
func (r *Runtime) Close() {
	r.L.Close()
}

func (r *Runtime) registerAPI() {
	api := r.L.NewTable()
	api.RawSetString("version", lua.LString("1.0.0"))
	r.L.SetField(api, "class", r.L.NewFunction(r.luaClass))
	r.L.SetGlobal("georender", api)

	RegisterTransforms(r.L)

	r.L.SetGlobal("print", r.L.NewFunction(r.luaPrint))
}

// LoadFile loads and executes a Lua style file
func (r *Runtime) LoadFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to load Lua file: %w", err)
	}
	return r.extractCallbacks()
}

// LoadString loads and executes Lua code from a string
func (r *Runtime) LoadString(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.L.DoString(code); err != nil {
		return fmt.Errorf("failed to load Lua code: %w", err)
	}
	return r.extractCallbacks()
}

func (r *Runtime) extractCallbacks() error {
	r.classify = r.L.GetGlobal("classify")
	if r.classify.Type() != lua.LTFunction {
		return fmt.Errorf("lua style does not define classify(tags)")
	}
	r.isArea = r.L.GetGlobal("is_area")
	return nil
}

// HasIsArea returns true if the script overrides area detection
func (r *Runtime) HasIsArea() bool {
	return r.isArea != nil && r.isArea.Type() == lua.LTFunction
}

// Class runs classify(tags)
// Script errors and unknown class names fall back to the default class
// and are logged.
func (r *Runtime) Class(tags osm.Tags) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ret, err := r.call(r.classify, r.tagsToLua(tags))
	if err != nil {
		r.log.Warn("Lua classify failed", zap.Error(err))
		return r.classes.Default()
	}

	switch v := ret.(type) {
	case lua.LNumber:
		if v < 0 {
			r.log.Warn("Lua classify returned a negative class", zap.Float64("class", float64(v)))
			return r.classes.Default()
		}
		return uint64(v)
	case lua.LString:
		class, ok := r.classes.Lookup(string(v))
		if !ok {
			r.log.Warn("Lua classify returned an unknown class", zap.String("class", string(v)))
			return r.classes.Default()
		}
		return class
	}
	return r.classes.Default()
}

// IsArea runs is_area(tags, closed); without the callback it reports ok=false
func (r *Runtime) IsArea(tags osm.Tags, closed bool) (area, ok bool) {
	if !r.HasIsArea() {
		return false, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ret, err := r.call(r.isArea, r.tagsToLua(tags), lua.LBool(closed))
	if err != nil {
		r.log.Warn("Lua is_area failed", zap.Error(err))
		return false, false
	}
	return lua.LVAsBool(ret), true
}

func (r *Runtime) call(fn lua.LValue, args ...lua.LValue) (lua.LValue, error) {
	if err := r.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		return lua.LNil, fmt.Errorf("lua callback error: %w", err)
	}
	ret := r.L.Get(-1)
	r.L.Pop(1)
	return ret, nil
}

func (r *Runtime) tagsToLua(tags osm.Tags) *lua.LTable {
	tbl := r.L.CreateTable(0, len(tags))
	for _, tag := range tags {
		tbl.RawSetString(tag.Key, lua.LString(tag.Value))
	}
	return tbl
}

// luaClass implements georender.class(name)
func (r *Runtime) luaClass(L *lua.LState) int {
	name := L.CheckString(1)
	if class, ok := r.classes.Lookup(name); ok {
		L.Push(lua.LNumber(class))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

func (r *Runtime) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	r.log.Info(strings.Join(parts, "\t"), zap.String("source", "lua"))
	return 0
}
