package compiler

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ArgumentKind separates literal numbers from names.
type ArgumentKind int

const (
	ArgInvalid ArgumentKind = iota
	ArgLiteral
	ArgIdentifier
)

// Decoration is an address or value operator written around an
// identifier.
type Decoration int

const (
	Plain        Decoration = iota
	AddressOf               // &name
	EndAddress              // name&
	Dereference             // *name
	ElementCount            // $name
	ElementSize             // %name
	MaxValue                // ^name
	MinValue                // !name
)

var prefixDecorations = map[byte]Decoration{
	'&': AddressOf,
	'*': Dereference,
	'$': ElementCount,
	'%': ElementSize,
	'^': MaxValue,
	'!': MinValue,
}

// Argument is one classified token after the instruction.
type Argument struct {
	Raw  string
	Kind ArgumentKind

	// Literals
	Value     float64
	IsInteger bool

	// Identifiers. Name may be qualified as module.name.
	Name       string
	Decoration Decoration
	Index      int
	HasIndex   bool
}

// Module returns the module qualifier of a qualified name, or "".
func (a Argument) Module() string {
	if i := strings.IndexByte(a.Name, '.'); i >= 0 {
		return a.Name[:i]
	}
	return ""
}

// Local returns the name without its module qualifier.
func (a Argument) Local() string {
	if i := strings.IndexByte(a.Name, '.'); i >= 0 {
		return a.Name[i+1:]
	}
	return a.Name
}

// Line is one parsed source line.
type Line struct {
	Instruction string
	Args        []Argument
	// Directive is set for lines starting with '#'.
	Directive bool
}

// ParseLine splits one source line into an instruction and its arguments.
// ok is false for lines that are empty, whitespace or only a comment.
func ParseLine(raw string) (line Line, ok bool) {
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = raw[:i]
	}
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Line{}, false
	}

	line.Instruction = fields[0]
	line.Directive = strings.HasPrefix(fields[0], "#")
	if len(fields) > 1 {
		line.Args = make([]Argument, len(fields)-1)
		for i, tok := range fields[1:] {
			line.Args[i] = ParseArgument(tok)
		}
	}
	return line, true
}

// ParseArgument classifies a single token.
func ParseArgument(tok string) Argument {
	a := Argument{Raw: tok}
	if looksNumeric(tok) {
		return parseLiteral(a)
	}

	name := tok
	if d, ok := prefixDecorations[name[0]]; ok && len(name) > 1 {
		a.Decoration = d
		name = name[1:]
	} else if len(name) > 1 && name[len(name)-1] == '&' {
		a.Decoration = EndAddress
		name = name[:len(name)-1]
	}

	if open := strings.IndexByte(name, '['); open >= 0 {
		if !strings.HasSuffix(name, "]") {
			return a
		}
		idx, err := strconv.Atoi(name[open+1 : len(name)-1])
		if err != nil || idx < 0 {
			return a
		}
		a.Index, a.HasIndex = idx, true
		name = name[:open]
	}

	if !isQualifiedIdentifier(name) {
		return a
	}
	a.Kind = ArgIdentifier
	a.Name = name
	return a
}

func looksNumeric(tok string) bool {
	s := strings.TrimLeft(tok, "+-")
	if s == "" || len(tok)-len(s) > 1 {
		return false
	}
	if s[0] == '.' && len(s) > 1 {
		return s[1] >= '0' && s[1] <= '9'
	}
	return s[0] >= '0' && s[0] <= '9'
}

func parseLiteral(a Argument) Argument {
	if v, err := strconv.ParseInt(a.Raw, 0, 64); err == nil {
		switch {
		case v >= math.MinInt32 && v <= math.MaxInt32:
			a.Value = float64(v)
		case v > math.MaxInt32 && v <= math.MaxUint32:
			// Bit patterns such as 0xFFFFFFFF are two's complement ints.
			a.Value = float64(int32(uint32(v)))
		default:
			return a
		}
		a.Kind = ArgLiteral
		a.IsInteger = true
		return a
	}
	if v, err := strconv.ParseFloat(a.Raw, 64); err == nil && !math.IsInf(v, 0) {
		a.Kind = ArgLiteral
		a.Value = v
	}
	return a
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

func isQualifiedIdentifier(s string) bool {
	mod, name, qualified := strings.Cut(s, ".")
	if !qualified {
		return isIdentifier(s)
	}
	return isIdentifier(mod) && isIdentifier(name)
}

// isConstantName reports whether name follows the all-uppercase constant
// convention.
func isConstantName(name string) bool {
	hasLetter := false
	for i, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r == '_' || (i > 0 && r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return hasLetter
}
