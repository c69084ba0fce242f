package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// constant is a named compile-time value.
type constant struct {
	value     float64
	isInteger bool
}

// moduleScope holds the names one module can see: its own memory, its own
// constants and the constants it imported with use.
type moduleScope struct {
	id     string
	memory map[string]*Symbol
	// order lists memory in declaration (and so address) order.
	order []*Symbol
	// base is the word address of the module's memory window.
	base int

	consts     map[string]constant
	ownConsts  map[string]constant
	anonymous  int
	edgeCounts map[Instruction]int
}

func newModuleScope(id string) *moduleScope {
	return &moduleScope{
		id:         id,
		memory:     make(map[string]*Symbol),
		consts:     make(map[string]constant),
		ownConsts:  make(map[string]constant),
		edgeCounts: make(map[Instruction]int),
	}
}

// declare adds sym to the module. It returns false if the id is taken.
func (s *moduleScope) declare(sym *Symbol) bool {
	if _, exists := s.memory[sym.ID]; exists {
		return false
	}
	s.memory[sym.ID] = sym
	s.order = append(s.order, sym)
	return true
}

func (s *moduleScope) nextAnonymousID() string {
	id := fmt.Sprintf("__anonymous__%d", s.anonymous)
	s.anonymous++
	return id
}

func (s *moduleScope) nextEdgeID(in Instruction) string {
	n := s.edgeCounts[in]
	s.edgeCounts[in]++
	return fmt.Sprintf("__%s__%d", in, n)
}

func (s *moduleScope) wordSize() int {
	words := 0
	for _, sym := range s.order {
		words += sym.WordAlignedSize
	}
	return words
}

// functionSig is an entry of the function table.
type functionSig struct {
	id        string
	index     int
	signature Signature
	params    []string
}

// SymbolTable is the namespace of a whole compile: every module scope and
// the function table.
type SymbolTable struct {
	modules   map[string]*moduleScope
	functions map[string]*functionSig
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		modules:   make(map[string]*moduleScope),
		functions: make(map[string]*functionSig),
	}
}

func (t *SymbolTable) scope(id string) *moduleScope {
	s, ok := t.modules[id]
	if !ok {
		s = newModuleScope(id)
		t.modules[id] = s
	}
	return s
}

// LookupMemory resolves a possibly qualified name seen from module from.
func (t *SymbolTable) LookupMemory(from, name string) (*Symbol, bool) {
	mod, local, qualified := strings.Cut(name, ".")
	if !qualified {
		mod, local = from, name
	}
	s, ok := t.modules[mod]
	if !ok {
		return nil, false
	}
	sym, ok := s.memory[local]
	return sym, ok
}

// lookupConst resolves a constant visible from module from, either its
// own or one brought in by use.
func (t *SymbolTable) lookupConst(from, name string) (constant, bool) {
	s, ok := t.modules[from]
	if !ok {
		return constant{}, false
	}
	c, ok := s.consts[name]
	return c, ok
}

func (t *SymbolTable) LookupFunction(name string) (*functionSig, bool) {
	f, ok := t.functions[name]
	return f, ok
}

// String returns a deterministically ordered dump of the table.
func (t *SymbolTable) String() string {
	var sb strings.Builder
	ids := make([]string, 0, len(t.modules))
	for id := range t.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := t.modules[id]
		fmt.Fprintf(&sb, "module %s:\n", id)
		for _, sym := range s.order {
			fmt.Fprintf(&sb, "  %-24s %-9s @%d (words: %d)\n", sym.ID, sym.Type, sym.WordAlignedAddress, sym.WordAlignedSize)
		}
		names := make([]string, 0, len(s.consts))
		for name := range s.consts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "  const %-18s %v\n", name, s.consts[name].value)
		}
	}
	if len(t.functions) > 0 {
		names := make([]string, 0, len(t.functions))
		for name := range t.functions {
			names = append(names, name)
		}
		sort.Strings(names)
		sb.WriteString("functions:\n")
		for _, name := range names {
			f := t.functions[name]
			fmt.Fprintf(&sb, "  %-24s #%d %v -> %v\n", name, f.index, f.signature.Params, f.signature.Results)
		}
	}
	return sb.String()
}
