// Package worker is the message boundary between an editor and the
// compiler. It turns recompile requests into builds, keeps the reconciler
// snapshot between them and, when it owns a runtime, applies each build.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"livestack/pkg/compiler"
	"livestack/pkg/reconcile"
	"livestack/pkg/runtime"
)

// RequestType names a request.
type RequestType string

const (
	Recompile RequestType = "recompile"
	Reset     RequestType = "reset"
)

// Request is one message from the editor. Payload is only read for
// recompile requests.
type Request struct {
	Type    RequestType      `json:"type"`
	Payload RecompilePayload `json:"payload"`
}

// RecompilePayload is the source of one build.
type RecompilePayload struct {
	Modules         []compiler.Module `json:"modules"`
	CompilerOptions compiler.Options  `json:"compilerOptions"`
}

// ResponseType names a response.
type ResponseType string

const (
	BuildOK    ResponseType = "buildOk"
	BuildError ResponseType = "buildError"
)

// Response answers one recompile request. Exactly one of Build and
// Failure is set, matching Type. It encodes as {type, buildId, payload}.
type Response struct {
	Type    ResponseType
	BuildID ulid.ULID
	Build   *BuildPayload
	Failure *ErrorPayload
}

// BuildPayload is the result of a successful build.
type BuildPayload struct {
	CodeBuffer          []byte                        `json:"codeBuffer"`
	CompiledModules     compiler.CompiledModuleLookup `json:"compiledModules"`
	AllocatedMemorySize int                           `json:"allocatedMemorySize"`
	MemoryRef           runtime.MemoryRef             `json:"memoryRef"`
	Action              reconcile.Action              `json:"action"`
	Reason              string                        `json:"reason,omitempty"`
	Writes              []reconcile.MemoryWrite       `json:"writes"`
}

// ErrorPayload describes a failed build.
type ErrorPayload struct {
	Message     string       `json:"message"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Diagnostic is one compile error located in the source.
type Diagnostic struct {
	Kind     string `json:"kind"`
	ModuleID string `json:"moduleId,omitempty"`
	Line     int    `json:"line,omitempty"`
	Message  string `json:"message"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	var payload any = r.Build
	if r.Type == BuildError {
		payload = r.Failure
	}
	return json.Marshal(struct {
		Type    ResponseType `json:"type"`
		BuildID ulid.ULID    `json:"buildId"`
		Payload any          `json:"payload"`
	}{r.Type, r.BuildID, payload})
}

// Config configures a Worker. The zero value compiles and reconciles
// without running anything.
type Config struct {
	Logger *slog.Logger
	// Runtime, if set, is handed every successful build.
	Runtime *runtime.Runtime
}

// Worker owns one reconciler and at most one runtime. Handle is not safe
// for concurrent use; Serve runs it on a single goroutine.
type Worker struct {
	log *slog.Logger
	rec *reconcile.Reconciler
	rt  *runtime.Runtime
}

// New returns a Worker.
func New(cfg Config) *Worker {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Worker{log: log, rec: reconcile.New(), rt: cfg.Runtime}
}

// Handle processes one request. Reset requests have no response and
// return false.
func (w *Worker) Handle(ctx context.Context, req Request) (Response, bool) {
	switch req.Type {
	case Reset:
		w.rec.Reset()
		w.log.Debug("reconciler reset")
		return Response{}, false
	case Recompile:
		return w.build(ctx, req.Payload), true
	}
	resp := Response{Type: BuildError, BuildID: ulid.Make(), Failure: &ErrorPayload{
		Message: "unknown request type " + string(req.Type),
	}}
	w.log.Warn("unknown request", "type", req.Type)
	return resp, true
}

func (w *Worker) build(ctx context.Context, p RecompilePayload) Response {
	id := ulid.Make()
	res, err := compiler.Compile(p.Modules, p.CompilerOptions)
	if err != nil {
		w.log.Warn("build failed", "build", id, "err", err)
		return Response{Type: BuildError, BuildID: id, Failure: failure(err)}
	}

	plan := w.rec.Reconcile(res.CompiledModules)
	if w.rt != nil {
		if err := w.rt.Apply(ctx, res, plan); err != nil {
			// The runtime did not take the build, so the next one starts over.
			w.rec.Reset()
			w.log.Warn("apply failed", "build", id, "err", err)
			return Response{Type: BuildError, BuildID: id, Failure: failure(err)}
		}
	}

	w.log.Debug("build ok", "build", id, "action", plan.Action, "writes", len(plan.Writes),
		"bytes", len(res.CodeBuffer), "memory", res.AllocatedMemorySize)
	b := &BuildPayload{
		CodeBuffer:          res.CodeBuffer,
		CompiledModules:     res.CompiledModules,
		AllocatedMemorySize: res.AllocatedMemorySize,
		Action:              plan.Action,
		Reason:              plan.Reason,
		Writes:              plan.Writes,
	}
	if w.rt != nil {
		b.MemoryRef = w.rt.MemoryRef()
	}
	return Response{Type: BuildOK, BuildID: id, Build: b}
}

func failure(err error) *ErrorPayload {
	p := &ErrorPayload{Message: err.Error()}
	var list compiler.ErrorList
	if errors.As(err, &list) {
		for _, e := range list {
			p.Diagnostics = append(p.Diagnostics, Diagnostic{
				Kind:     e.Kind.String(),
				ModuleID: e.ModuleID,
				Line:     e.Line,
				Message:  e.Msg,
			})
		}
	}
	return p
}

// Serve handles requests from in until in is closed or ctx is done.
// Requests that queue up while a build runs are coalesced: only the
// newest recompile is built and resets keep their place relative to it.
func (w *Worker) Serve(ctx context.Context, in <-chan Request, out chan<- Response) error {
	for {
		var first Request
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-in:
			if !ok {
				return nil
			}
			first = req
		}

		b := batch{}
		b.add(first)
		open := b.drain(in)
		if b.dropped > 0 {
			w.log.Debug("dropped stale requests", "count", b.dropped)
		}

		if b.resetBefore {
			w.Handle(ctx, Request{Type: Reset})
		}
		if b.latest != nil {
			if resp, ok := w.Handle(ctx, *b.latest); ok {
				select {
				case out <- resp:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if b.resetAfter {
			w.Handle(ctx, Request{Type: Reset})
		}
		if !open {
			return nil
		}
	}
}

// batch is the coalesced form of the requests waiting at one time.
type batch struct {
	latest      *Request
	resetBefore bool
	resetAfter  bool
	dropped     int
}

func (b *batch) add(req Request) {
	if req.Type == Reset {
		if b.latest == nil {
			b.resetBefore = true
		} else {
			b.resetAfter = true
		}
		return
	}
	if b.latest != nil {
		b.dropped++
	}
	if b.resetAfter {
		b.resetBefore, b.resetAfter = true, false
	}
	b.latest = &req
}

// drain adds every request already queued on in and reports whether in
// is still open.
func (b *batch) drain(in <-chan Request) bool {
	for {
		select {
		case req, ok := <-in:
			if !ok {
				return false
			}
			b.add(req)
		default:
			return true
		}
	}
}
