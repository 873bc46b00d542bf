package x86

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"maps"
)

var _machine_defines = map[string]string{
	"MEMORY_SIZE": fmt.Sprintf("%#x", MEMORY_SIZE),
}

// Machine is the execution engine: one register file and one exclusively
// owned memory, stepped sequentially over an instruction stream. Machines
// must not share state; simulate concurrent programs with separate machines.
type Machine struct {
	Verbose bool // Set to enable verbose logging.

	Regs RegisterFile // Register file, flags, and instruction pointer.
	Mem  *Memory      // Flat data memory.

	Ticks int // Executed instruction counter.
}

// NewMachine creates a machine with a zeroed register file and memory.
func NewMachine() (m *Machine) {
	m = &Machine{
		Mem: NewMemory(),
	}

	return
}

// Defines for the machine.
func (m *Machine) Defines() iter.Seq2[string, string] {
	return maps.All(_machine_defines)
}

// Reset clears the registers, flags, memory, and statistics counters.
func (m *Machine) Reset() {
	m.Regs.Reset()
	m.Mem.Reset()
	m.Ticks = 0
}

// String returns the current machine state as a string.
func (m *Machine) String() string {
	return m.Regs.String()
}

// EffectiveAddress computes the memory address of a memory operand from the
// current register state: the sum of the base register terms plus the
// displacement, truncated to 16 bits.
func (m *Machine) EffectiveAddress(mem MemOperand) uint32 {
	addr := uint16(mem.Disp)
	for _, reg := range mem.Base {
		addr += m.Regs.Word(reg)
	}
	return uint32(addr)
}

// loadOperand resolves an operand to its value.
func (m *Machine) loadOperand(src Operand, wide bool) (value uint16, err error) {
	switch op := src.(type) {
	case RegOperand:
		value = m.Regs.Get(op.Reg, op.Wide)
	case MemOperand:
		value = m.Mem.Get(m.EffectiveAddress(op), wide)
	case ImmOperand:
		value = op.Value
	default:
		err = ErrUnsupported
	}
	return
}

// storeOperand writes a value through an operand.
func (m *Machine) storeOperand(dst Operand, wide bool, value uint16) (err error) {
	switch op := dst.(type) {
	case RegOperand:
		m.Regs.Set(op.Reg, op.Wide, value)
	case MemOperand:
		m.Mem.Set(m.EffectiveAddress(op), wide, value)
	default:
		err = ErrUnsupported
	}
	return
}

// jumpIf applies a taken conditional jump to the already-advanced IP.
func (m *Machine) jumpIf(taken bool, inst Instruction) (err error) {
	rel, ok := inst.Dst.(RelOperand)
	if !ok {
		err = ErrUnsupported
		return
	}
	if taken {
		m.Regs.IP = uint16(int32(m.Regs.IP) + int32(rel.Offset))
	}
	return
}

// Execute applies a single decoded instruction to the machine state. The IP
// must already point past the instruction, since relative jumps are measured
// from the next instruction.
//
// Operations the decoder recognizes but the machine does not model (the
// jumps that need flags beyond zero/sign) fail with ErrUnsupported; they are
// never silently skipped.
func (m *Machine) Execute(inst Instruction) (err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrInstruction(inst), err)
		}
	}()

	m.Ticks += 1

	switch inst.Op {
	case OP_MOV:
		var value uint16
		value, err = m.loadOperand(inst.Src, inst.Wide)
		if err != nil {
			return
		}
		err = m.storeOperand(inst.Dst, inst.Wide, value)

	case OP_ADD, OP_SUB, OP_CMP:
		var dst, src uint16
		dst, err = m.loadOperand(inst.Dst, inst.Wide)
		if err != nil {
			return
		}
		src, err = m.loadOperand(inst.Src, inst.Wide)
		if err != nil {
			return
		}

		// Wider intermediate; the truncation is the defined behavior.
		wider := int32(dst) + int32(src)
		if inst.Op != OP_ADD {
			wider = int32(dst) - int32(src)
		}
		result := uint16(wider)
		if !inst.Wide {
			result &= 0xff
		}

		m.Regs.RecomputeFlags(result, inst.Wide)

		if inst.Op != OP_CMP {
			err = m.storeOperand(inst.Dst, inst.Wide, result)
		}

	case OP_JE:
		err = m.jumpIf(m.Regs.Zero, inst)
	case OP_JNE:
		err = m.jumpIf(!m.Regs.Zero, inst)
	case OP_JS:
		err = m.jumpIf(m.Regs.Sign, inst)
	case OP_JNS:
		err = m.jumpIf(!m.Regs.Sign, inst)
	case OP_JCXZ:
		err = m.jumpIf(m.Regs.Word(CX) == 0, inst)
	case OP_LOOP:
		count := m.Regs.Word(CX) - 1
		m.Regs.SetWord(CX, count)
		err = m.jumpIf(count != 0, inst)
	case OP_LOOPZ:
		count := m.Regs.Word(CX) - 1
		m.Regs.SetWord(CX, count)
		err = m.jumpIf(count != 0 && m.Regs.Zero, inst)
	case OP_LOOPNZ:
		count := m.Regs.Word(CX) - 1
		m.Regs.SetWord(CX, count)
		err = m.jumpIf(count != 0 && !m.Regs.Zero, inst)

	default:
		err = ErrUnsupported
	}

	return
}

// Step decodes and executes the single instruction at the current IP.
// done reports that the IP has reached or passed the end of the stream.
func (m *Machine) Step(stream []byte) (done bool, err error) {
	if int(m.Regs.IP) >= len(stream) {
		done = true
		return
	}

	inst, err := Decode(stream, int(m.Regs.IP))
	if err != nil {
		return
	}

	if m.Verbose {
		log.Printf("%04x: %v", m.Regs.IP, inst)
	}

	// Advance before the effects apply.
	m.Regs.IP += uint16(inst.Size)

	err = m.Execute(inst)
	return
}

// Run executes from the current IP until the IP leaves the stream or an
// instruction fails. Decode and execute failures both halt the run.
func (m *Machine) Run(stream []byte) (err error) {
	for {
		var done bool
		done, err = m.Step(stream)
		if done || err != nil {
			return
		}
	}
}
