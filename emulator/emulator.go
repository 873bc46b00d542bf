// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package emulator

import (
	"fmt"
	"io"
	"iter"
	"maps"

	"github.com/ezrec/sim86/internal"
	"github.com/ezrec/sim86/x86"
)

const ENTRY = 0 // Byte offset where execution starts after a reset.

var _emulator_defines = map[string]string{
	"ENTRY": fmt.Sprintf("%v", ENTRY),
}

// Emulator state. Machine + assembled program listing.
type Emulator struct {
	Verbose      bool // If set, enables verbose logging.
	*x86.Machine      // Reference to the machine simulation.

	Program *x86.Program // Reference to the currently loaded program listing.

	stream []byte
}

// NewEmulator creates a new emulator.
func NewEmulator() (emu *Emulator) {
	emu = &Emulator{
		Machine: x86.NewMachine(),
		Program: &x86.Program{},
	}

	return
}

// Defines returns an iterator over all of the defines
func (emu *Emulator) Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(maps.All(_emulator_defines),
		emu.Machine.Defines(),
	)
}

// Assemble compiles source into the current program listing, with the
// emulator defines available as equates.
func (emu *Emulator) Assemble(input io.Reader) (err error) {
	asm := &x86.Assembler{Verbose: emu.Verbose}
	for attr, value := range emu.Defines() {
		asm.Predefine(attr, value)
	}

	prog, err := asm.Parse(input)
	if err != nil {
		return
	}

	emu.Program = prog
	return
}

// Reset the machine state and rewind to the program entry point.
func (emu *Emulator) Reset() {
	emu.Machine.Reset()
	emu.Regs.IP = ENTRY
	emu.stream = emu.Program.Binary()
}

// LineNo returns the current line number for the executing instruction.
func (emu *Emulator) LineNo() int {
	return emu.Program.LineAt(int(emu.Regs.IP))
}

// Tick performs a single step of the emulator.
func (emu *Emulator) Tick() (done bool, err error) {
	// Set machine verbosity
	emu.Machine.Verbose = emu.Verbose

	lineno := emu.LineNo()
	defer func() {
		if err != nil {
			err = &ErrRuntime{LineNo: lineno, Err: err}
		}
	}()

	done, err = emu.Machine.Step(emu.stream)
	return
}

// Run steps the emulator until the program ends or an instruction fails.
func (emu *Emulator) Run() (err error) {
	for {
		var done bool
		done, err = emu.Tick()
		if done || err != nil {
			return
		}
	}
}

// Disassemble writes an instruction stream as a NASM-compatible listing.
func Disassemble(w io.Writer, stream []byte) (err error) {
	_, err = fmt.Fprintln(w, "bits 16")
	if err != nil {
		return
	}

	offset := 0
	for offset < len(stream) {
		var inst x86.Instruction
		inst, err = x86.Decode(stream, offset)
		if err != nil {
			return
		}
		_, err = fmt.Fprintln(w, inst.String())
		if err != nil {
			return
		}
		offset += inst.Size
	}
	return
}

// Disassemble writes the current program as a NASM-compatible listing.
func (emu *Emulator) Disassemble(w io.Writer) error {
	return Disassemble(w, emu.Program.Binary())
}
