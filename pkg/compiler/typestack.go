package compiler

import "strings"

type frameKind int

const (
	frameFunction frameKind = iota
	frameBlock
	frameIf
	frameLoop
)

func (k frameKind) String() string {
	switch k {
	case frameBlock:
		return "block"
	case frameIf:
		return "if"
	case frameLoop:
		return "loop"
	}
	return "function"
}

// frame is one open control construct.
type frame struct {
	kind frameKind
	// height is the operand stack height when the frame was entered.
	height int
	// blockTypePos locates the block type byte to patch at the end.
	blockTypePos int
	line         int

	sawElse         bool
	thenTypes       []ValueType
	thenUnreachable bool

	// unreachable is set after an unconditional branch; operands popped
	// from an empty frame are then of any type.
	unreachable bool
	// branchedTo is set when a branch targets this frame's label.
	branchedTo bool
}

// typeStack mirrors the operand stack of the generated code so that
// overloaded mnemonics can pick their opcode.
type typeStack struct {
	items  []ValueType
	frames []frame
}

func newTypeStack() *typeStack {
	return &typeStack{frames: []frame{{kind: frameFunction}}}
}

func (s *typeStack) top() *frame { return &s.frames[len(s.frames)-1] }

// depth is the number of frames a branch may target.
func (s *typeStack) depth() int { return len(s.frames) - 1 }

func (s *typeStack) push(ts ...ValueType) {
	s.items = append(s.items, ts...)
}

// available is the number of operands visible in the current frame.
func (s *typeStack) available() int {
	return len(s.items) - s.top().height
}

// pop removes the top operand. ok is false on underflow in reachable code.
func (s *typeStack) pop() (t ValueType, ok bool) {
	f := s.top()
	if len(s.items) == f.height {
		return typeAny, f.unreachable
	}
	t = s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return t, true
}

// popN pops n operands and returns them bottom first.
func (s *typeStack) popN(n int) ([]ValueType, bool) {
	out := make([]ValueType, n)
	for i := n - 1; i >= 0; i-- {
		t, ok := s.pop()
		if !ok {
			return nil, false
		}
		out[i] = t
	}
	return out, true
}

// frameItems returns the operands of the current frame.
func (s *typeStack) frameItems() []ValueType {
	return s.items[s.top().height:]
}

func (s *typeStack) enter(kind frameKind, blockTypePos, line int) {
	s.frames = append(s.frames, frame{
		kind:         kind,
		height:       len(s.items),
		blockTypePos: blockTypePos,
		line:         line,
	})
}

// leave closes the current frame and pushes its results onto the parent.
func (s *typeStack) leave(results []ValueType) frame {
	f := *s.top()
	s.items = s.items[:f.height]
	s.frames = s.frames[:len(s.frames)-1]
	s.push(results...)
	return f
}

// setUnreachable drops the frame's operands after an unconditional branch.
func (s *typeStack) setUnreachable() {
	f := s.top()
	s.items = s.items[:f.height]
	f.unreachable = true
}

// matches reports whether the current frame holds exactly want.
func (s *typeStack) matches(want []ValueType) bool {
	return typesMatch(s.frameItems(), want, s.top().unreachable)
}

// typesMatch compares an operand list with the expected types. An
// unreachable frame may hold fewer operands than expected.
func typesMatch(have, want []ValueType, unreachable bool) bool {
	if len(have) > len(want) || (len(have) < len(want) && !unreachable) {
		return false
	}
	off := len(want) - len(have)
	for i, t := range have {
		if t != typeAny && t != want[off+i] {
			return false
		}
	}
	return true
}

func typeList(ts []ValueType) string {
	if len(ts) == 0 {
		return "[]"
	}
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
