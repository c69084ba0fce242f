package compiler

import "fmt"

// Instruction identifies what a source line does. The set is closed: every
// mnemonic the language knows maps to exactly one Instruction.
type Instruction int

const (
	INVALID Instruction = iota

	// Declarations and directives consumed by the planner
	MEMORY          // int, float, int[], float*, ... (type carried by the mnemonic)
	CONST           // const NAME value
	USE             // use module
	INIT            // init name[idx] value
	MODULE          // module id
	MODULE_END      // moduleEnd
	CONSTANTS       // constants id
	CONSTANTS_END   // constantsEnd
	FUNCTION        // function id
	FUNCTION_END    // functionEnd [types]
	PARAM           // param type name
	SKIP_EXECUTION  // #skipExecution
	INIT_ONLY       // #initOnly

	// Locals
	LOCAL     // local type name
	LOCAL_GET // localGet name
	LOCAL_SET // localSet name

	// Memory access
	PUSH
	STORE
	LOAD
	LOAD8S
	LOAD8U
	LOAD16S
	LOAD16U
	LOAD_FLOAT
	LOAD_FLOAT64

	// Arithmetic
	ADD
	SUB
	MUL
	DIV
	REMAINDER
	SQRT
	ABS

	// Bitwise (integer only)
	AND
	OR
	XOR
	SHIFT_LEFT
	SHIFT_RIGHT
	SHIFT_RIGHT_UNSIGNED

	// Comparison, result is always int
	EQUAL
	NOT_EQUAL
	GREATER_THAN
	GREATER_OR_EQUAL
	LESS_THAN
	LESS_OR_EQUAL
	EQUAL_TO_ZERO

	// Conversion
	CAST_TO_INT
	CAST_TO_FLOAT
	CAST_TO_FLOAT64

	// Stack shuffling
	DUP
	DROP
	SWAP
	CLEAR_STACK

	// Structured control
	IF
	ELSE
	IF_END
	BLOCK
	BLOCK_END
	LOOP
	LOOP_END
	BRANCH
	BRANCH_IF_TRUE

	CALL

	// Edge detection (each allocates a shadow memory cell)
	RISING_EDGE
	FALLING_EDGE
	HAS_CHANGED

	numInstructions
)

// instructionNames is indexed by Instruction. MEMORY has no single
// mnemonic; every memory type name maps to it instead.
var instructionNames = [...]string{
	INVALID:              "invalid",
	MEMORY:               "memory",
	CONST:                "const",
	USE:                  "use",
	INIT:                 "init",
	MODULE:               "module",
	MODULE_END:           "moduleEnd",
	CONSTANTS:            "constants",
	CONSTANTS_END:        "constantsEnd",
	FUNCTION:             "function",
	FUNCTION_END:         "functionEnd",
	PARAM:                "param",
	SKIP_EXECUTION:       "#skipExecution",
	INIT_ONLY:            "#initOnly",
	LOCAL:                "local",
	LOCAL_GET:            "localGet",
	LOCAL_SET:            "localSet",
	PUSH:                 "push",
	STORE:                "store",
	LOAD:                 "load",
	LOAD8S:               "load8s",
	LOAD8U:               "load8u",
	LOAD16S:              "load16s",
	LOAD16U:              "load16u",
	LOAD_FLOAT:           "loadFloat",
	LOAD_FLOAT64:         "loadFloat64",
	ADD:                  "add",
	SUB:                  "sub",
	MUL:                  "mul",
	DIV:                  "div",
	REMAINDER:            "remainder",
	SQRT:                 "sqrt",
	ABS:                  "abs",
	AND:                  "and",
	OR:                   "or",
	XOR:                  "xor",
	SHIFT_LEFT:           "shiftLeft",
	SHIFT_RIGHT:          "shiftRight",
	SHIFT_RIGHT_UNSIGNED: "shiftRightUnsigned",
	EQUAL:                "equal",
	NOT_EQUAL:            "notEqual",
	GREATER_THAN:         "greaterThan",
	GREATER_OR_EQUAL:     "greaterOrEqual",
	LESS_THAN:            "lessThan",
	LESS_OR_EQUAL:        "lessOrEqual",
	EQUAL_TO_ZERO:        "equalToZero",
	CAST_TO_INT:          "castToInt",
	CAST_TO_FLOAT:        "castToFloat",
	CAST_TO_FLOAT64:      "castToFloat64",
	DUP:                  "dup",
	DROP:                 "drop",
	SWAP:                 "swap",
	CLEAR_STACK:          "clearStack",
	IF:                   "if",
	ELSE:                 "else",
	IF_END:               "ifEnd",
	BLOCK:                "block",
	BLOCK_END:            "blockEnd",
	LOOP:                 "loop",
	LOOP_END:             "loopEnd",
	BRANCH:               "branch",
	BRANCH_IF_TRUE:       "branchIfTrue",
	CALL:                 "call",
	RISING_EDGE:          "risingEdge",
	FALLING_EDGE:         "fallingEdge",
	HAS_CHANGED:          "hasChanged",
}

// Fails to compile if a new Instruction is added without a name.
var _ = [1]struct{}{}[len(instructionNames)-int(numInstructions)]

var instructionsByName = func() map[string]Instruction {
	m := make(map[string]Instruction, len(instructionNames)+len(memoryTypes))
	for i, name := range instructionNames {
		if Instruction(i) == INVALID || Instruction(i) == MEMORY {
			continue
		}
		m[name] = Instruction(i)
	}
	for _, mt := range memoryTypes {
		m[string(mt)] = MEMORY
	}
	return m
}()

func (in Instruction) String() string {
	if in >= 0 && int(in) < len(instructionNames) {
		return instructionNames[in]
	}
	return fmt.Sprintf("Instruction(%d)", int(in))
}

// LookupInstruction maps a mnemonic (or directive) to its Instruction.
func LookupInstruction(name string) (Instruction, bool) {
	in, ok := instructionsByName[name]
	return in, ok
}

// declaresCode reports whether the instruction produces loop body code.
func (in Instruction) declaresCode() bool {
	switch in {
	case MEMORY, CONST, USE, INIT, MODULE, MODULE_END, CONSTANTS, CONSTANTS_END,
		FUNCTION, FUNCTION_END, PARAM, SKIP_EXECUTION, INIT_ONLY, LOCAL:
		return false
	}
	return in != INVALID
}
