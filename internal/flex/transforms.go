package flex

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/osm"
	lua "github.com/yuin/gopher-lua"

	"github.com/wegman-software/georender-go/internal/areatag"
)

// Tag helper functions for Lua scripts

var whitespaceRegex = regexp.MustCompile(`\s+`)

// RegisterTransforms registers the tag helpers under georender.transforms
// The most common ones are also set as globals.
func RegisterTransforms(L *lua.LState) {
	transforms := L.NewTable()

	L.SetField(transforms, "trim", L.NewFunction(luaTrim))
	L.SetField(transforms, "lower", L.NewFunction(luaLower))
	L.SetField(transforms, "clean_spaces", L.NewFunction(luaCleanSpaces))
	L.SetField(transforms, "parse_int", L.NewFunction(luaParseInt))
	L.SetField(transforms, "parse_layer", L.NewFunction(luaParseLayer))
	L.SetField(transforms, "get_name", L.NewFunction(luaGetName))
	L.SetField(transforms, "get_name_localized", L.NewFunction(luaGetNameLocalized))
	L.SetField(transforms, "is_area", L.NewFunction(luaIsArea))

	api := L.GetGlobal("georender")
	if api == lua.LNil {
		api = L.NewTable()
		L.SetGlobal("georender", api)
	}
	L.SetField(api.(*lua.LTable), "transforms", transforms)

	L.SetGlobal("trim", L.NewFunction(luaTrim))
	L.SetGlobal("parse_int", L.NewFunction(luaParseInt))
	L.SetGlobal("get_name", L.NewFunction(luaGetName))
}

func luaTrim(L *lua.LState) int {
	L.Push(lua.LString(strings.TrimSpace(L.CheckString(1))))
	return 1
}

func luaLower(L *lua.LState) int {
	L.Push(lua.LString(strings.ToLower(L.CheckString(1))))
	return 1
}

// luaCleanSpaces collapses runs of whitespace and trims
func luaCleanSpaces(L *lua.LState) int {
	s := whitespaceRegex.ReplaceAllString(L.CheckString(1), " ")
	L.Push(lua.LString(strings.TrimSpace(s)))
	return 1
}

// luaParseInt parses a string to an integer with an optional default
func luaParseInt(L *lua.LState) int {
	s := strings.TrimSpace(L.CheckString(1))
	def := L.OptInt64(2, 0)

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		L.Push(lua.LNumber(v))
	} else if f, err := strconv.ParseFloat(s, 64); err == nil {
		L.Push(lua.LNumber(int64(f)))
	} else {
		L.Push(lua.LNumber(def))
	}
	return 1
}

// luaParseLayer parses the layer tag clamped to [-10, 10]
func luaParseLayer(L *lua.LState) int {
	layer, err := strconv.Atoi(strings.TrimSpace(L.OptString(1, "0")))
	if err != nil {
		layer = 0
	}
	layer = max(-10, min(10, layer))
	L.Push(lua.LNumber(layer))
	return 1
}

// luaGetName returns name, then int_name, then name:en
func luaGetName(L *lua.LState) int {
	tags := L.CheckTable(1)
	for _, key := range []string{"name", "int_name", "name:en"} {
		if s := lua.LVAsString(L.GetField(tags, key)); s != "" {
			L.Push(lua.LString(s))
			return 1
		}
	}
	L.Push(lua.LNil)
	return 1
}

// luaGetNameLocalized returns name:<lang>, falling back to name
func luaGetNameLocalized(L *lua.LState) int {
	tags := L.CheckTable(1)
	lang := L.CheckString(2)
	for _, key := range []string{"name:" + lang, "name"} {
		if s := lua.LVAsString(L.GetField(tags, key)); s != "" {
			L.Push(lua.LString(s))
			return 1
		}
	}
	L.Push(lua.LNil)
	return 1
}

// luaIsArea applies the default area rules: is_area(tags[, closed])
func luaIsArea(L *lua.LState) int {
	tags := luaToTags(L.CheckTable(1))
	closed := L.OptBool(2, true)

	// the rules look at tags only once the chain is closed
	refs := []int64{1, 2, 3, 1}
	if !closed {
		refs = []int64{1, 2, 3, 4}
	}
	L.Push(lua.LBool(areatag.IsArea(tags, refs)))
	return 1
}

// luaToTags converts a Lua tag table; key order follows Lua iteration
func luaToTags(tbl *lua.LTable) osm.Tags {
	var tags osm.Tags
	tbl.ForEach(func(k, v lua.LValue) {
		if k.Type() != lua.LTString {
			return
		}
		tags = append(tags, osm.Tag{Key: string(k.(lua.LString)), Value: lua.LVAsString(v)})
	})
	return tags
}
