// Package reconcile decides how a running program moves to a new build:
// throw its memory away and run init again, or keep the memory and write
// only the defaults that changed.
package reconcile

import (
	"fmt"
	"sort"

	"livestack/pkg/compiler"
)

// Action is what the host does with its live memory.
type Action string

const (
	// Reinit zeroes memory and runs the init entry point.
	Reinit Action = "reinit"
	// Patch keeps memory and applies Plan.Writes.
	Patch Action = "patch"
)

// MemoryWrite sets one element of live memory.
type MemoryWrite struct {
	// Address is a byte address.
	Address int `json:"address"`
	// WordSize is the element size in bytes (1, 2, 4 or 8).
	WordSize  int     `json:"wordSize"`
	Value     float64 `json:"value"`
	IsInteger bool    `json:"isInteger"`
}

// Plan is the outcome of comparing two builds. Writes is never nil, so it
// always encodes as a list.
type Plan struct {
	Action Action        `json:"action"`
	Reason string        `json:"reason,omitempty"`
	Writes []MemoryWrite `json:"writes"`
}

func reinit(format string, args ...any) Plan {
	return Plan{Action: Reinit, Reason: fmt.Sprintf(format, args...), Writes: []MemoryWrite{}}
}

// Reconciler keeps the snapshot of the last build it saw. The zero value
// is ready to use and plans a reinit first.
type Reconciler struct {
	previous compiler.CompiledModuleLookup
}

// New returns an empty Reconciler.
func New() *Reconciler { return &Reconciler{} }

// Reconcile compares next with the retained snapshot and retains next.
// The caller must not mutate next afterwards.
func (r *Reconciler) Reconcile(next compiler.CompiledModuleLookup) Plan {
	plan := Diff(r.previous, next)
	r.previous = next
	return plan
}

// Reset forgets the retained snapshot, so the next plan is a reinit.
func (r *Reconciler) Reset() { r.previous = nil }

// Previous returns the retained snapshot, or nil.
func (r *Reconciler) Previous() compiler.CompiledModuleLookup { return r.previous }

// Diff plans the move from prev to next. It never fails: anything it
// cannot compare is a reinit.
func Diff(prev, next compiler.CompiledModuleLookup) Plan {
	if prev == nil {
		return reinit("no instance")
	}
	if !wellFormed(prev) {
		return reinit("previous snapshot is malformed")
	}
	if !wellFormed(next) {
		return reinit("snapshot is malformed")
	}
	if len(prev) != len(next) {
		return reinit("module set changed")
	}
	for id := range next {
		if _, ok := prev[id]; !ok {
			return reinit("module set changed")
		}
	}

	modules := next.Ordered()
	for _, n := range modules {
		if reason := structural(prev[n.ID], n); reason != "" {
			return reinit("%s: %s", n.ID, reason)
		}
	}

	plan := Plan{Action: Patch, Writes: []MemoryWrite{}}
	for _, n := range modules {
		p := prev[n.ID]
		for _, sym := range n.Symbols() {
			plan.Writes = appendWrites(plan.Writes, p.MemoryMap[sym.ID], sym)
		}
	}
	return plan
}

func wellFormed(l compiler.CompiledModuleLookup) bool {
	for id, m := range l {
		if m == nil || m.MemoryMap == nil || m.ID != id {
			return false
		}
	}
	return true
}

// structural returns why p and n cannot share memory, or "".
func structural(p, n *compiler.CompiledModule) string {
	switch {
	case len(p.LoopFunction) != len(n.LoopFunction):
		return "loop function changed length"
	case len(p.InitFunctionBody) != len(n.InitFunctionBody):
		return "init body changed length"
	case p.WordAlignedSize != n.WordAlignedSize:
		return "memory size changed"
	case p.WordAlignedAddress != n.WordAlignedAddress:
		return "memory moved"
	case p.InitOnly != n.InitOnly:
		return "init-only flag changed"
	case len(p.MemoryMap) != len(n.MemoryMap):
		return "memory layout changed"
	}
	for id, ns := range n.MemoryMap {
		ps, ok := p.MemoryMap[id]
		if !ok {
			return fmt.Sprintf("memory %q added", id)
		}
		if ps.ByteAddress != ns.ByteAddress || ps.Type != ns.Type || ps.NumberOfElements != ns.NumberOfElements {
			return fmt.Sprintf("memory %q changed layout", id)
		}
	}
	return ""
}

func appendWrites(w []MemoryWrite, p, n compiler.Symbol) []MemoryWrite {
	write := func(addr int, v float64) {
		w = append(w, MemoryWrite{Address: addr, WordSize: n.ElementWordSize, Value: v, IsInteger: n.IsInteger})
	}
	if !n.Type.IsArray() {
		if p.Default != n.Default {
			write(n.ByteAddress, n.Default)
		}
		return w
	}

	indexes := make([]int, 0, len(n.Defaults))
	for i := range n.Defaults {
		indexes = append(indexes, i)
	}
	for i := range p.Defaults {
		if _, ok := n.Defaults[i]; !ok {
			indexes = append(indexes, i)
		}
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		nv, inNext := n.Defaults[i]
		pv, inPrev := p.Defaults[i]
		if inNext == inPrev && nv == pv {
			continue
		}
		write(n.ElementAddress(i), nv)
	}
	return w
}
