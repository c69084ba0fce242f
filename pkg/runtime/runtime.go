// Package runtime runs compiled programs on wazero against one long-lived
// linear memory, so that a recompiled program picks up where the previous
// one left off.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"livestack/pkg/compiler"
	"livestack/pkg/reconcile"
	"livestack/pkg/wasm"
)

// ErrNoProgram is returned when the runtime is asked to run before a
// program was applied.
var ErrNoProgram = errors.New("runtime: no program applied")

// Config configures a Runtime. The zero value is usable.
type Config struct {
	// Logger receives debug lines for every applied build. Nil discards.
	Logger *slog.Logger
}

// MemoryRef identifies the memory a program is bound to. Generation
// changes whenever the memory is replaced.
type MemoryRef struct {
	Generation int `json:"generation"`
	SizeBytes  int `json:"sizeBytes"`
}

// Runtime owns a wazero runtime, the shared memory module and the current
// program instance. It is not safe for concurrent use.
type Runtime struct {
	log    *slog.Logger
	engine wazero.Runtime

	host       api.Module
	mem        api.Memory
	pages      uint32
	generation int

	program  api.Module
	init     api.Function
	cycle    api.Function
	code     []byte
	instance int

	// Cycles counts cycle calls since the last reinit.
	Cycles uint64
}

// New creates a Runtime without memory or program.
func New(ctx context.Context, cfg Config) *Runtime {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Runtime{
		log:    log,
		engine: wazero.NewRuntime(ctx),
	}
}

// Apply binds a new build. The program is instantiated before the running
// one is closed, so a build that fails to instantiate leaves the old
// program running. A change of memory size replaces the memory and turns
// any plan into a reinit.
func (r *Runtime) Apply(ctx context.Context, res *compiler.Result, plan reconcile.Plan) error {
	if pages := wasm.PagesFor(res.MemorySizeBytes); r.mem == nil || pages != r.pages {
		if err := r.replaceMemory(ctx, pages); err != nil {
			return err
		}
		if plan.Action != reconcile.Reinit {
			plan = reconcile.Plan{Action: reconcile.Reinit, Reason: "memory replaced"}
		}
	}

	if err := r.instantiate(ctx, res.CodeBuffer); err != nil {
		return err
	}

	switch plan.Action {
	case reconcile.Patch:
		for _, w := range plan.Writes {
			if err := r.Write(w.Address, w.WordSize, w.Value, w.IsInteger); err != nil {
				return fmt.Errorf("patch: %w", err)
			}
		}
		r.log.Debug("build applied", "action", plan.Action, "writes", len(plan.Writes))
		return nil
	case reconcile.Reinit:
		r.log.Debug("build applied", "action", plan.Action, "reason", plan.Reason)
		return r.Reinit(ctx)
	}
	return fmt.Errorf("runtime: unknown action %q", plan.Action)
}

func (r *Runtime) replaceMemory(ctx context.Context, pages uint32) error {
	if r.program != nil {
		r.program.Close(ctx)
		r.program = nil
	}
	if r.host != nil {
		r.host.Close(ctx)
	}
	host, err := r.engine.InstantiateWithConfig(ctx,
		wasm.MemoryExporter(compiler.MemoryImportName, pages),
		wazero.NewModuleConfig().WithName(compiler.MemoryImportModule))
	if err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	r.host = host
	r.mem = host.ExportedMemory(compiler.MemoryImportName)
	r.pages = pages
	r.generation++
	r.log.Debug("memory replaced", "pages", pages, "generation", r.generation)
	return nil
}

func (r *Runtime) instantiate(ctx context.Context, code []byte) error {
	r.instance++
	name := fmt.Sprintf("program%d", r.instance)
	mod, err := r.engine.InstantiateWithConfig(ctx, code, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		r.log.Warn("instantiate failed", "err", err)
		return fmt.Errorf("instantiate: %w", err)
	}
	if r.program != nil {
		r.program.Close(ctx)
	}
	r.program = mod
	r.init = mod.ExportedFunction(compiler.InitExportName)
	r.cycle = mod.ExportedFunction(compiler.CycleExportName)
	r.code = code
	return nil
}

// Reinit zeroes memory and runs the program's init entry point.
func (r *Runtime) Reinit(ctx context.Context) error {
	if r.program == nil {
		return ErrNoProgram
	}
	r.mem.Write(0, make([]byte, r.mem.Size()))
	r.Cycles = 0
	if _, err := r.init.Call(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	return nil
}

// Cycle runs the cycle entry point once.
func (r *Runtime) Cycle(ctx context.Context) error {
	if r.program == nil {
		return ErrNoProgram
	}
	if _, err := r.cycle.Call(ctx); err != nil {
		return fmt.Errorf("cycle %d: %w", r.Cycles, err)
	}
	r.Cycles++
	return nil
}

// Run runs n cycles, stopping at the first trap.
func (r *Runtime) Run(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := r.Cycle(ctx); err != nil {
			return err
		}
	}
	return nil
}

// MemoryRef describes the current memory.
func (r *Runtime) MemoryRef() MemoryRef {
	if r.mem == nil {
		return MemoryRef{}
	}
	return MemoryRef{Generation: r.generation, SizeBytes: int(r.mem.Size())}
}

// Memory returns the live memory, or nil before the first Apply.
func (r *Runtime) Memory() api.Memory { return r.mem }

// Write stores v as one element of wordSize bytes at addr.
func (r *Runtime) Write(addr, wordSize int, v float64, isInteger bool) error {
	if r.mem == nil {
		return ErrNoProgram
	}
	a := uint32(addr)
	ok := false
	switch {
	case isInteger && wordSize == 1:
		ok = r.mem.WriteByte(a, byte(int64(v)))
	case isInteger && wordSize == 2:
		ok = r.mem.WriteUint16Le(a, uint16(int64(v)))
	case isInteger && wordSize == 4:
		ok = r.mem.WriteUint32Le(a, uint32(int64(v)))
	case !isInteger && wordSize == 4:
		ok = r.mem.WriteFloat32Le(a, float32(v))
	case !isInteger && wordSize == 8:
		ok = r.mem.WriteFloat64Le(a, v)
	default:
		return fmt.Errorf("runtime: no %d byte %s element", wordSize, kindName(isInteger))
	}
	if addr < 0 || !ok {
		return fmt.Errorf("runtime: write of %d bytes at %d out of range", wordSize, addr)
	}
	return nil
}

// Read loads one element of wordSize bytes at addr. Integers are sign
// extended unless unsigned is set.
func (r *Runtime) Read(addr, wordSize int, isInteger, unsigned bool) (float64, error) {
	if r.mem == nil {
		return 0, ErrNoProgram
	}
	a := uint32(addr)
	var (
		v  float64
		ok bool
	)
	switch {
	case isInteger && wordSize == 1:
		var b byte
		b, ok = r.mem.ReadByte(a)
		v = float64(int8(b))
		if unsigned {
			v = float64(b)
		}
	case isInteger && wordSize == 2:
		var h uint16
		h, ok = r.mem.ReadUint16Le(a)
		v = float64(int16(h))
		if unsigned {
			v = float64(h)
		}
	case isInteger && wordSize == 4:
		var w uint32
		w, ok = r.mem.ReadUint32Le(a)
		v = float64(int32(w))
	case !isInteger && wordSize == 4:
		var bits uint32
		bits, ok = r.mem.ReadUint32Le(a)
		v = float64(math.Float32frombits(bits))
	case !isInteger && wordSize == 8:
		v, ok = r.mem.ReadFloat64Le(a)
	default:
		return 0, fmt.Errorf("runtime: no %d byte %s element", wordSize, kindName(isInteger))
	}
	if addr < 0 || !ok {
		return 0, fmt.Errorf("runtime: read of %d bytes at %d out of range", wordSize, addr)
	}
	return v, nil
}

// ReadSymbol returns element index of sym.
func (r *Runtime) ReadSymbol(sym compiler.Symbol, index int) (float64, error) {
	if index < 0 || index >= sym.NumberOfElements {
		return 0, fmt.Errorf("runtime: index %d out of range for %q", index, sym.ID)
	}
	min, _ := sym.Type.Range()
	return r.Read(sym.ElementAddress(index), sym.ElementWordSize, sym.IsInteger, min == 0)
}

// WriteSymbol stores v into element index of sym.
func (r *Runtime) WriteSymbol(sym compiler.Symbol, index int, v float64) error {
	if index < 0 || index >= sym.NumberOfElements {
		return fmt.Errorf("runtime: index %d out of range for %q", index, sym.ID)
	}
	return r.Write(sym.ElementAddress(index), sym.ElementWordSize, v, sym.IsInteger)
}

// Close releases the program, the memory and the wazero runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.program, r.host, r.mem = nil, nil, nil
	return r.engine.Close(ctx)
}

func kindName(isInteger bool) string {
	if isInteger {
		return "integer"
	}
	return "float"
}
