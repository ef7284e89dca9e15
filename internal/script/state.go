// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package script runs sandboxed Lua phase functions for state graphs.
package script

import (
	"math"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// openers are the standard libraries phase scripts may use. os, io, debug,
// package and coroutine are never opened.
var openers = []struct {
	name string
	fn   lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// blockedGlobals are base functions that load code, touch the filesystem or
// reach past the read-only library tables.
var blockedGlobals = []string{
	"dofile", "loadfile", "loadstring", "load", "require", "collectgarbage",
	"rawset", "getmetatable", "getfenv", "setfenv",
}

// animHelpers is exposed to scripts as the global table "anim".
var animHelpers = map[string]lua.LGFunction{
	"wrap":       luaWrap,
	"clamp01":    luaClamp01,
	"lerp":       luaLerp,
	"smoothstep": luaSmoothstep,
}

// sandbox is a pooled Lua state. Globals assigned by a script land in a
// per-call environment; the libraries behind it are read-only.
type sandbox struct {
	L       *lua.LState
	envMeta *lua.LTable
}

// newSandbox creates a small Lua state with the safe libraries and the anim
// helper table.
func newSandbox() (*sandbox, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: 64,
		RegistrySize:  1024,
	})

	for _, lib := range openers {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, oops.Code(CodeSandbox).With("library", lib.name).Wrapf(err, "open lua library")
		}
	}
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("anim", L.SetFuncs(L.NewTable(), animHelpers))

	base := L.NewTable()
	L.G.Global.ForEach(func(k, v lua.LValue) {
		if tbl, ok := v.(*lua.LTable); ok && tbl != L.G.Global {
			v = readOnly(L, tbl)
		}
		base.RawSet(k, v)
	})
	frozen := readOnly(L, base)
	base.RawSetString("_G", frozen)

	envMeta := L.NewTable()
	envMeta.RawSetString("__index", frozen)
	envMeta.RawSetString("__metatable", lua.LString("locked"))
	return &sandbox{L: L, envMeta: envMeta}, nil
}

// env returns a fresh global environment for one call.
func (s *sandbox) env() *lua.LTable {
	env := s.L.NewTable()
	s.L.SetMetatable(env, s.envMeta)
	return env
}

// readOnly wraps tbl in a proxy whose fields cannot be assigned.
func readOnly(L *lua.LState, tbl *lua.LTable) *lua.LTable {
	proxy := L.NewTable()
	mt := L.NewTable()
	mt.RawSetString("__index", tbl)
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("attempt to modify read-only table field %q", L.CheckAny(2).String())
		return 0
	}))
	mt.RawSetString("__metatable", lua.LString("locked"))
	L.SetMetatable(proxy, mt)
	return proxy
}

// wrap(x) returns x folded into [0, 1).
func luaWrap(L *lua.LState) int {
	x := float64(L.CheckNumber(1))
	L.Push(lua.LNumber(x - math.Floor(x)))
	return 1
}

func luaClamp01(L *lua.LState) int {
	x := float64(L.CheckNumber(1))
	L.Push(lua.LNumber(min(max(x, 0), 1)))
	return 1
}

func luaLerp(L *lua.LState) int {
	a, b, t := L.CheckNumber(1), L.CheckNumber(2), L.CheckNumber(3)
	L.Push(a + (b-a)*t)
	return 1
}

func luaSmoothstep(L *lua.LState) int {
	t := min(max(float64(L.CheckNumber(1)), 0), 1)
	L.Push(lua.LNumber(t * t * (3 - 2*t)))
	return 1
}
