package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies compile errors.
type ErrorKind int

const (
	SyntaxError ErrorKind = iota + 1
	UnresolvedSymbolError
	TypeMismatchError
	OutOfMemoryError
	DuplicateSymbolError
)

func (k ErrorKind) String() string {
	switch k {
	case SyntaxError:
		return "syntax error"
	case UnresolvedSymbolError:
		return "unresolved symbol"
	case TypeMismatchError:
		return "type mismatch"
	case OutOfMemoryError:
		return "out of memory"
	case DuplicateSymbolError:
		return "duplicate symbol"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is one problem found while compiling, located by module id and
// 1-based line number within that module. Line is 0 for problems that
// belong to no particular line.
type Error struct {
	Kind     ErrorKind
	ModuleID string
	Line     int
	Msg      string
}

func (e *Error) Error() string {
	switch {
	case e.ModuleID == "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Line == 0:
		return fmt.Sprintf("%s: %s: %s", e.ModuleID, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s: %s", e.ModuleID, e.Line, e.Kind, e.Msg)
}

// ErrorList collects every non-fatal error of one compile.
type ErrorList []*Error

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors:", len(l))
	for _, e := range l {
		sb.WriteString("\n\t")
		sb.WriteString(e.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (l ErrorList) Unwrap() []error {
	out := make([]error, len(l))
	for i, e := range l {
		out[i] = e
	}
	return out
}

// Err returns nil for an empty list and the list itself otherwise.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

func (l *ErrorList) add(kind ErrorKind, moduleID string, line int, format string, args ...any) {
	*l = append(*l, &Error{Kind: kind, ModuleID: moduleID, Line: line, Msg: fmt.Sprintf(format, args...)})
}

// HasKind reports whether err is, or contains, a compile error of kind.
func HasKind(err error, kind ErrorKind) bool {
	var list ErrorList
	if errors.As(err, &list) {
		for _, e := range list {
			if e.Kind == kind {
				return true
			}
		}
		return false
	}
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// lineError is raised by per-line handlers and located by the caller.
type lineError struct {
	kind ErrorKind
	msg  string
}

func (e *lineError) Error() string { return e.msg }

func errorf(kind ErrorKind, format string, args ...any) *lineError {
	return &lineError{kind: kind, msg: fmt.Sprintf(format, args...)}
}
