// Package wasm runs an opaque simulation engine compiled to WebAssembly.
//
// The module must export memory plus alloc(len) ptr, dealloc(ptr, len),
// get_result_ptr() and get_result_len(). Each entry point takes one JSON
// argument as (ptr, len) and leaves its JSON reply in the result buffer.
package wasm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

const (
	FuncSolve = "solve"
	FuncTick  = "tick"
)

// Runtime owns a wazero runtime and one module instance. Calls are
// serialised because the module is single-threaded.
type Runtime struct {
	mu      sync.Mutex
	runtime wazero.Runtime
	module  api.Module
}

func NewRuntime(ctx context.Context, binary []byte) (*Runtime, error) {
	r := wazero.NewRuntime(ctx)
	mod, err := r.InstantiateWithConfig(ctx, binary, wazero.NewModuleConfig().WithName("engine"))
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("instantiate engine module: %w", err)
	}
	return &Runtime{runtime: r, module: mod}, nil
}

// Call invokes funcName with arg and returns the module's result buffer.
func (rt *Runtime) Call(ctx context.Context, funcName string, arg []byte) ([]byte, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	fn := rt.module.ExportedFunction(funcName)
	if fn == nil {
		return nil, fmt.Errorf("wasm function %q not found", funcName)
	}
	ptr, free, err := rt.write(ctx, arg)
	if err != nil {
		return nil, err
	}
	defer free()

	if _, err := fn.Call(ctx, uint64(ptr), uint64(len(arg))); err != nil {
		return nil, fmt.Errorf("wasm call %q: %w", funcName, err)
	}
	return rt.readResult(ctx)
}

func (rt *Runtime) Close(ctx context.Context) error {
	return rt.runtime.Close(ctx)
}

// write copies arg into module memory. Caller holds rt.mu.
func (rt *Runtime) write(ctx context.Context, arg []byte) (uint32, func(), error) {
	if len(arg) == 0 {
		return 0, func() {}, nil
	}
	allocFn := rt.module.ExportedFunction("alloc")
	if allocFn == nil {
		return 0, nil, fmt.Errorf("wasm function \"alloc\" not found")
	}
	mem := rt.module.Memory()
	if mem == nil {
		return 0, nil, fmt.Errorf("wasm module exports no memory")
	}
	results, err := allocFn.Call(ctx, uint64(len(arg)))
	if err != nil {
		return 0, nil, fmt.Errorf("wasm alloc(%d): %w", len(arg), err)
	}
	ptr := uint32(results[0])
	if !mem.Write(ptr, arg) {
		return 0, nil, fmt.Errorf("write %d bytes to wasm memory at offset %d", len(arg), ptr)
	}
	deallocFn := rt.module.ExportedFunction("dealloc")
	free := func() {
		if deallocFn != nil {
			_, _ = deallocFn.Call(ctx, uint64(ptr), uint64(len(arg)))
		}
	}
	return ptr, free, nil
}

// readResult copies the result buffer out of module memory. Caller holds rt.mu.
func (rt *Runtime) readResult(ctx context.Context) ([]byte, error) {
	getPtr := rt.module.ExportedFunction("get_result_ptr")
	getLen := rt.module.ExportedFunction("get_result_len")
	if getPtr == nil || getLen == nil {
		return nil, fmt.Errorf("wasm result functions not found")
	}
	p, err := getPtr.Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_result_ptr: %w", err)
	}
	n, err := getLen.Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_result_len: %w", err)
	}
	ptr, size := uint32(p[0]), uint32(n[0])
	if size == 0 {
		return nil, nil
	}
	b, ok := rt.module.Memory().Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("read %d bytes from wasm memory at offset %d", size, ptr)
	}
	// The next call may overwrite the buffer.
	out := make([]byte, size)
	copy(out, b)
	return out, nil
}

// Engine speaks JSON to the module's solve and tick entry points.
type Engine struct {
	rt *Runtime
}

func Load(ctx context.Context, path string) (*Engine, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(ctx, b)
}

func New(ctx context.Context, binary []byte) (*Engine, error) {
	rt, err := NewRuntime(ctx, binary)
	if err != nil {
		return nil, err
	}
	return &Engine{rt: rt}, nil
}

// Solve hands a plan to the engine and returns its decoded verdict.
func (e *Engine) Solve(ctx context.Context, req any) (any, error) {
	return e.call(ctx, FuncSolve, req)
}

// TickRequest is what the engine sees on every moderator tick.
type TickRequest struct {
	Tick    uint64 `json:"tick"`
	PlanRef string `json:"planRef,omitempty"`
}

func (e *Engine) Tick(ctx context.Context, tick uint64, planRef string) (any, error) {
	return e.call(ctx, FuncTick, TickRequest{Tick: tick, PlanRef: planRef})
}

func (e *Engine) Close(ctx context.Context) error { return e.rt.Close(ctx) }

func (e *Engine) call(ctx context.Context, fn string, req any) (any, error) {
	arg, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	out, err := e.rt.Call(ctx, fn, arg)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(out, &v); err != nil {
		return nil, fmt.Errorf("%s result: %w", fn, err)
	}
	return v, nil
}
