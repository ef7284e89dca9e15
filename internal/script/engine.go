// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/holomush/animstate/internal/animstate"
)

// Error codes returned by the engine.
const (
	CodeCompile = "SCRIPT_COMPILE"
	CodeRuntime = "SCRIPT_RUNTIME"
	CodeResult  = "SCRIPT_RESULT"
	CodeClosed  = "SCRIPT_ENGINE_CLOSED"
	CodeSandbox = "SCRIPT_SANDBOX"
)

// DefaultTimeout bounds a single phase function call.
const DefaultTimeout = 50 * time.Millisecond

// defaultMaxIdle is the number of idle Lua states kept for reuse.
const defaultMaxIdle = 8

// Options configures an Engine.
type Options struct {
	// Timeout bounds each call. Zero uses DefaultTimeout; negative disables it.
	Timeout time.Duration
	// MaxIdle is the number of idle states kept for reuse.
	MaxIdle int
	Logger  *slog.Logger
}

// Engine compiles scripts and runs them on pooled sandboxed states.
// It is safe for concurrent use.
type Engine struct {
	timeout time.Duration
	maxIdle int
	logger  *slog.Logger

	mu     sync.Mutex
	idle   []*sandbox
	closed bool
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		timeout: opts.Timeout,
		maxIdle: opts.MaxIdle,
		logger:  opts.Logger,
	}
	if e.timeout == 0 {
		e.timeout = DefaultTimeout
	}
	if e.maxIdle <= 0 {
		e.maxIdle = defaultMaxIdle
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Func is a compiled script. The chunk reads the global ctx table and returns a number.
type Func struct {
	engine *Engine
	name   string
	proto  *lua.FunctionProto
}

// Compile parses and compiles src. name identifies the script in errors.
func (e *Engine) Compile(name, src string) (*Func, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, oops.Code(CodeCompile).With("script", name).Wrapf(err, "parse script")
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, oops.Code(CodeCompile).With("script", name).Wrapf(err, "compile script")
	}
	return &Func{engine: e, name: name, proto: proto}, nil
}

// Name returns the script name.
func (f *Func) Name() string { return f.name }

// EvalPhase runs the script with ctx set from in. The result must be a finite
// number. Each call gets its own global environment, so nothing a script
// assigns is visible to later calls.
func (f *Func) EvalPhase(in animstate.PhaseFuncInput) (float32, error) {
	sb, err := f.engine.acquire()
	if err != nil {
		return 0, err
	}
	broken := false
	defer func() { f.engine.release(sb, broken) }()
	L := sb.L

	if f.engine.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), f.engine.timeout)
		defer cancel()
		L.SetContext(ctx)
		defer L.RemoveContext()
	}

	env := sb.env()
	env.RawSetString("ctx", inputTable(L, in))
	fn := L.NewFunctionFromProto(f.proto)
	fn.Env = env
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		broken = true
		return 0, oops.Code(CodeRuntime).With("script", f.name).With("state", in.StateName).Wrapf(err, "run script")
	}
	ret := L.Get(-1)
	L.Pop(1)
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, oops.Code(CodeResult).With("script", f.name).With("type", ret.Type().String()).
			Errorf("script returned %s, want number", ret.Type())
	}
	v := float64(n)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, oops.Code(CodeResult).With("script", f.name).Errorf("script returned %v", v)
	}
	return float32(v), nil
}

func inputTable(L *lua.LState, in animstate.PhaseFuncInput) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("state", lua.LString(in.StateName))
	t.RawSetString("phase", lua.LNumber(in.Phase))
	t.RawSetString("prev_phase", lua.LNumber(in.PrevPhase))
	t.RawSetString("dt", lua.LNumber(in.DeltaTime))
	t.RawSetString("rate", lua.LNumber(in.PhaseRate))
	info := L.NewTable()
	for _, k := range in.Info.Keys() {
		v, _ := in.Info.Get(k)
		info.RawSetString(k, lua.LNumber(v))
	}
	t.RawSetString("info", info)
	return t
}

func (e *Engine) acquire() (*sandbox, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, oops.Code(CodeClosed).Errorf("script engine is closed")
	}
	if n := len(e.idle); n > 0 {
		sb := e.idle[n-1]
		e.idle = e.idle[:n-1]
		e.mu.Unlock()
		return sb, nil
	}
	e.mu.Unlock()
	return newSandbox()
}

// release returns sb to the pool. States whose call failed are closed since
// their stack may be left in an unknown state.
func (e *Engine) release(sb *sandbox, broken bool) {
	sb.L.SetTop(0)
	e.mu.Lock()
	defer e.mu.Unlock()
	if broken || e.closed || len(e.idle) >= e.maxIdle {
		if broken {
			e.logger.Debug("discarding lua state after failed call")
		}
		sb.L.Close()
		return
	}
	e.idle = append(e.idle, sb)
}

// Close releases the idle states. Calls after Close fail with CodeClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sb := range e.idle {
		sb.L.Close()
	}
	e.idle = nil
	e.closed = true
}

var _ animstate.PhaseFunc = (*Func)(nil)
