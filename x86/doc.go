// Package x86 implements the decoder, execution engine, and assembler for a
// small subset of the 8086 instruction set (the MOV, ADD, SUB, and CMP
// families plus the short conditional jumps).
//
// The decoder turns a raw binary instruction stream into structured
// Instruction records by matching the first byte against an ordered table of
// (pattern, mask) rules. The machine owns eight general-purpose word
// registers addressable as byte halves, a flat 1 MiB memory, and zero/sign
// condition flags recomputed on every arithmetic operation.
//
// The assembler provides a NASM-like syntax for the supported subset, with
// labels, equates, and compile-time expression evaluation.
package x86
