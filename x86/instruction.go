package x86

import (
	"fmt"
)

// Op is an instruction operation.
type Op int

//go:generate go tool stringer -linecomment -type=Op
const (
	OP_MOV = Op(0) // mov
	OP_ADD = Op(1) // add
	OP_SUB = Op(2) // sub
	OP_CMP = Op(3) // cmp

	OP_JE     = Op(4)  // je
	OP_JNE    = Op(5)  // jne
	OP_JL     = Op(6)  // jl
	OP_JLE    = Op(7)  // jle
	OP_JB     = Op(8)  // jb
	OP_JBE    = Op(9)  // jbe
	OP_JP     = Op(10) // jp
	OP_JO     = Op(11) // jo
	OP_JS     = Op(12) // js
	OP_JNL    = Op(13) // jnl
	OP_JG     = Op(14) // jg
	OP_JNB    = Op(15) // jnb
	OP_JA     = Op(16) // ja
	OP_JNP    = Op(17) // jnp
	OP_JNO    = Op(18) // jno
	OP_JNS    = Op(19) // jns
	OP_LOOP   = Op(20) // loop
	OP_LOOPZ  = Op(21) // loopz
	OP_LOOPNZ = Op(22) // loopnz
	OP_JCXZ   = Op(23) // jcxz
)

// IsJump returns true for the relative control-flow operations.
func (op Op) IsJump() bool {
	return op >= OP_JE && op <= OP_JCXZ
}

// Reg is a 3-bit register field value. For word operands it selects one of
// the eight general-purpose registers; for byte operands 0-3 select the low
// halves of AX, CX, DX, BX and 4-7 the high halves.
type Reg int

const (
	AX = Reg(0)
	CX = Reg(1)
	DX = Reg(2)
	BX = Reg(3)
	SP = Reg(4)
	BP = Reg(5)
	SI = Reg(6)
	DI = Reg(7)
)

// regName maps a register field value to its name, indexed by width.
var regName = [2][8]string{
	{"al", "cl", "dl", "bl", "ah", "ch", "dh", "bh"},
	{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di"},
}

// RegisterName returns the width-qualified name of a register field value.
func RegisterName(reg Reg, wide bool) string {
	w := 0
	if wide {
		w = 1
	}
	return regName[w][reg&7]
}

// wordRegOf maps word register names to field values.
var wordRegOf = map[string]Reg{
	"ax": AX,
	"cx": CX,
	"dx": DX,
	"bx": BX,
	"sp": SP,
	"bp": BP,
	"si": SI,
	"di": DI,
}

// byteRegOf maps byte register names to field values.
var byteRegOf = map[string]Reg{
	"al": Reg(0),
	"cl": Reg(1),
	"dl": Reg(2),
	"bl": Reg(3),
	"ah": Reg(4),
	"ch": Reg(5),
	"dh": Reg(6),
	"bh": Reg(7),
}

// effBase lists the base register terms for each R/M field value in the
// memory addressing modes. Slot 6 is the reserved direct-address slot when
// the mode has no displacement; otherwise it is BP.
var effBase = [8][]Reg{
	{BX, SI},
	{BX, DI},
	{BP, SI},
	{BP, DI},
	{SI},
	{DI},
	{BP},
	{BX},
}

// Operand is one side of an instruction: a register, a memory reference,
// an immediate value, or a relative jump displacement.
type Operand interface {
	fmt.Stringer
	operand()
}

// RegOperand selects a register by its field value and width.
type RegOperand struct {
	Reg  Reg
	Wide bool
}

func (op RegOperand) operand() {}

func (op RegOperand) String() string {
	return RegisterName(op.Reg, op.Wide)
}

// MemOperand is an effective-address operand: the sum of zero, one, or two
// base register terms plus a displacement. A zero displacement is kept
// zero-valued; suppressing it is a display concern only.
type MemOperand struct {
	Base []Reg
	Disp int16
}

func (op MemOperand) operand() {}

// Direct reports whether the operand is a displacement-only absolute address.
func (op MemOperand) Direct() bool {
	return len(op.Base) == 0
}

func (op MemOperand) String() string {
	if op.Direct() {
		return fmt.Sprintf("[%d]", uint16(op.Disp))
	}

	text := ""
	for n, reg := range op.Base {
		if n > 0 {
			text += " + "
		}
		text += RegisterName(reg, true)
	}
	if op.Disp > 0 {
		text += fmt.Sprintf(" + %d", op.Disp)
	} else if op.Disp < 0 {
		text += fmt.Sprintf(" - %d", -int32(op.Disp))
	}
	return "[" + text + "]"
}

// ImmOperand is an immediate value.
type ImmOperand struct {
	Value uint16
	Wide  bool
}

func (op ImmOperand) operand() {}

func (op ImmOperand) String() string {
	return fmt.Sprintf("%d", op.Value)
}

// RelOperand is a signed 8-bit displacement relative to the next
// instruction, as carried by the conditional jumps.
type RelOperand struct {
	Offset int8
}

func (op RelOperand) operand() {}

func (op RelOperand) String() string {
	// NASM measures '$' from the start of the 2-byte jump itself.
	target := int(op.Offset) + 2
	if target < 0 {
		return fmt.Sprintf("$%d", target)
	}
	return fmt.Sprintf("$+%d", target)
}

// Instruction is one decoded unit. Immutable once produced; Size is the
// exact number of stream bytes the encoding consumed.
type Instruction struct {
	Op   Op
	Dst  Operand
	Src  Operand
	Wide bool
	Size int
}

// String returns the instruction as a NASM-compatible assembly line.
func (inst Instruction) String() string {
	if inst.Src == nil {
		return fmt.Sprintf("%v %v", inst.Op, inst.Dst)
	}

	dst := inst.Dst.String()
	if _, mem := inst.Dst.(MemOperand); mem {
		if _, imm := inst.Src.(ImmOperand); imm {
			// Neither operand names a register, so the width keyword
			// is the only thing carrying the operation size.
			if inst.Wide {
				dst = "word " + dst
			} else {
				dst = "byte " + dst
			}
		}
	}

	return fmt.Sprintf("%v %v, %v", inst.Op, dst, inst.Src)
}
