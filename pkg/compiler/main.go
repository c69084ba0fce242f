// Package compiler translates modules of the stack instruction language
// into a WebAssembly program and a description of its memory layout.
//
// Pipeline: lines → ParseLine → plan memory (Pass 1) → generate bodies
// (Pass 2) → link into one binary
//
// The binary imports a single memory (js.memory) and exports init, run
// once, and cycle, run on every tick. The compiled module lookup in
// Result is what pkg/reconcile compares across recompiles.
package compiler
