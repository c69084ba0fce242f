package compiler

import (
	"errors"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Kind: SyntaxError, ModuleID: "osc", Line: 3, Msg: "bad"}, "osc:3: syntax error: bad"},
		{&Error{Kind: DuplicateSymbolError, ModuleID: "osc", Msg: "twice"}, "osc: duplicate symbol: twice"},
		{&Error{Kind: OutOfMemoryError, Msg: "full"}, "out of memory: full"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q; want %q", got, tt.want)
		}
	}
}

func TestErrorListUnwraps(t *testing.T) {
	var list ErrorList
	if list.Err() != nil {
		t.Fatal("empty list must not be an error")
	}
	list.add(TypeMismatchError, "m", 2, "want %s", "int")
	list.add(SyntaxError, "m", 5, "oops")

	err := list.Err()
	var e *Error
	if !errors.As(err, &e) || e.Kind != TypeMismatchError {
		t.Errorf("errors.As found %v", e)
	}
	if !HasKind(err, SyntaxError) || HasKind(err, OutOfMemoryError) {
		t.Error("HasKind does not see the collected kinds")
	}
	if !HasKind(list[1], SyntaxError) {
		t.Error("HasKind does not accept a single *Error")
	}
	if got := err.Error(); got != "2 errors:\n\tm:2: type mismatch: want int\n\tm:5: syntax error: oops" {
		t.Errorf("Error() = %q", got)
	}
}
