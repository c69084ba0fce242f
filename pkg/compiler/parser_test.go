package compiler

import (
	"reflect"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
		want  Line
	}{
		{name: "Empty", input: "", ok: false},
		{name: "Whitespace", input: " \t  ", ok: false},
		{name: "Comment", input: "   ; a comment", ok: false},
		{
			name:  "Instruction",
			input: "  add  ",
			ok:    true,
			want:  Line{Instruction: "add"},
		},
		{
			name:  "Trailing comment",
			input: "push 1 ; one",
			ok:    true,
			want: Line{Instruction: "push", Args: []Argument{
				{Raw: "1", Kind: ArgLiteral, Value: 1, IsInteger: true},
			}},
		},
		{
			name:  "Directive",
			input: "#skipExecution",
			ok:    true,
			want:  Line{Instruction: "#skipExecution", Directive: true},
		},
		{
			name:  "Declaration",
			input: "float phase 0.25",
			ok:    true,
			want: Line{Instruction: "float", Args: []Argument{
				{Raw: "phase", Kind: ArgIdentifier, Name: "phase"},
				{Raw: "0.25", Kind: ArgLiteral, Value: 0.25},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLine(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseLine(%q) ok = %v; want %v", tt.input, ok, tt.ok)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseLine(%q) =\n%+v\nwant\n%+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseArgument(t *testing.T) {
	tests := []struct {
		input string
		want  Argument
	}{
		{"12", Argument{Kind: ArgLiteral, Value: 12, IsInteger: true}},
		{"-12", Argument{Kind: ArgLiteral, Value: -12, IsInteger: true}},
		{"0x1F", Argument{Kind: ArgLiteral, Value: 31, IsInteger: true}},
		{"0b101", Argument{Kind: ArgLiteral, Value: 5, IsInteger: true}},
		{"0xFFFFFFFF", Argument{Kind: ArgLiteral, Value: -1, IsInteger: true}},
		{"1.5", Argument{Kind: ArgLiteral, Value: 1.5}},
		{"-2e3", Argument{Kind: ArgLiteral, Value: -2000}},
		{".5", Argument{Kind: ArgLiteral, Value: 0.5}},
		{"count", Argument{Kind: ArgIdentifier, Name: "count"}},
		{"&count", Argument{Kind: ArgIdentifier, Name: "count", Decoration: AddressOf}},
		{"buf&", Argument{Kind: ArgIdentifier, Name: "buf", Decoration: EndAddress}},
		{"*p", Argument{Kind: ArgIdentifier, Name: "p", Decoration: Dereference}},
		{"$buf", Argument{Kind: ArgIdentifier, Name: "buf", Decoration: ElementCount}},
		{"%buf", Argument{Kind: ArgIdentifier, Name: "buf", Decoration: ElementSize}},
		{"^x", Argument{Kind: ArgIdentifier, Name: "x", Decoration: MaxValue}},
		{"!x", Argument{Kind: ArgIdentifier, Name: "x", Decoration: MinValue}},
		{"osc.phase", Argument{Kind: ArgIdentifier, Name: "osc.phase"}},
		{"&osc.phase", Argument{Kind: ArgIdentifier, Name: "osc.phase", Decoration: AddressOf}},
		{"buf[3]", Argument{Kind: ArgIdentifier, Name: "buf", Index: 3, HasIndex: true}},

		{"1x", Argument{Kind: ArgInvalid}},
		{"a-b", Argument{Kind: ArgInvalid}},
		{"--1", Argument{Kind: ArgInvalid}},
		{"1e999", Argument{Kind: ArgInvalid}},
		{"0x1FFFFFFFF", Argument{Kind: ArgInvalid}},
		{"buf[-1]", Argument{Kind: ArgInvalid}},
		{"buf[1", Argument{Kind: ArgInvalid}},
		{"&", Argument{Kind: ArgInvalid}},
		{"a.b.c", Argument{Kind: ArgInvalid}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseArgument(tt.input)
			tt.want.Raw = tt.input
			// Fields of rejected tokens are not part of the contract.
			if tt.want.Kind == ArgInvalid {
				if got.Kind != ArgInvalid {
					t.Errorf("ParseArgument(%q).Kind = %v; want ArgInvalid", tt.input, got.Kind)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseArgument(%q) = %+v; want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestArgumentQualifiedName(t *testing.T) {
	a := ParseArgument("&osc.phase")
	if a.Module() != "osc" || a.Local() != "phase" {
		t.Errorf("Module/Local = %q/%q; want osc/phase", a.Module(), a.Local())
	}
	b := ParseArgument("phase")
	if b.Module() != "" || b.Local() != "phase" {
		t.Errorf("Module/Local = %q/%q; want \"\"/phase", b.Module(), b.Local())
	}
}

func TestIsConstantName(t *testing.T) {
	tests := map[string]bool{
		"SIZE":     true,
		"MAX_2":    true,
		"_A":       true,
		"Size":     false,
		"size":     false,
		"2X":       false,
		"__":       false,
		"BUF_SIZE": true,
	}
	for name, want := range tests {
		if got := isConstantName(name); got != want {
			t.Errorf("isConstantName(%q) = %v; want %v", name, got, want)
		}
	}
}
