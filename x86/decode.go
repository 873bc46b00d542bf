package x86

import (
	"errors"
	"math/bits"
)

// form selects the field layout that follows a matched first byte.
type form int

const (
	FORM_REG_RM  = form(0) // mod/reg/rm byte follows, D and W bits in the first byte
	FORM_IMM_RM  = form(1) // mod/op/rm byte follows, immediate after any displacement
	FORM_IMM_REG = form(2) // W and REG packed into the first byte, immediate follows
	FORM_MEM_ACC = form(3) // 16-bit direct address into the accumulator
	FORM_ACC_MEM = form(4) // accumulator into a 16-bit direct address
	FORM_IMM_ACC = form(5) // immediate into the accumulator
	FORM_JUMP    = form(6) // signed 8-bit displacement
)

// encoding is one row of the opcode match table.
type encoding struct {
	pattern byte
	mask    byte
	op      Op
	form    form
	arith   bool // the operation comes from the REG field of the second byte
}

// encodings is the decode table. Rows are tried top to bottom against the
// masked first byte. Rows with more fixed bits come before rows with fewer,
// since several families share overlapping leading bits; this ordering is
// part of the decoder contract and is verified by tests.
var encodings = []encoding{
	{0x74, 0xff, OP_JE, FORM_JUMP, false},
	{0x75, 0xff, OP_JNE, FORM_JUMP, false},
	{0x7c, 0xff, OP_JL, FORM_JUMP, false},
	{0x7e, 0xff, OP_JLE, FORM_JUMP, false},
	{0x72, 0xff, OP_JB, FORM_JUMP, false},
	{0x76, 0xff, OP_JBE, FORM_JUMP, false},
	{0x7a, 0xff, OP_JP, FORM_JUMP, false},
	{0x70, 0xff, OP_JO, FORM_JUMP, false},
	{0x78, 0xff, OP_JS, FORM_JUMP, false},
	{0x7d, 0xff, OP_JNL, FORM_JUMP, false},
	{0x7f, 0xff, OP_JG, FORM_JUMP, false},
	{0x73, 0xff, OP_JNB, FORM_JUMP, false},
	{0x77, 0xff, OP_JA, FORM_JUMP, false},
	{0x7b, 0xff, OP_JNP, FORM_JUMP, false},
	{0x71, 0xff, OP_JNO, FORM_JUMP, false},
	{0x79, 0xff, OP_JNS, FORM_JUMP, false},
	{0xe2, 0xff, OP_LOOP, FORM_JUMP, false},
	{0xe1, 0xff, OP_LOOPZ, FORM_JUMP, false},
	{0xe0, 0xff, OP_LOOPNZ, FORM_JUMP, false},
	{0xe3, 0xff, OP_JCXZ, FORM_JUMP, false},

	{0xc6, 0xfe, OP_MOV, FORM_IMM_RM, false},
	{0xa0, 0xfe, OP_MOV, FORM_MEM_ACC, false},
	{0xa2, 0xfe, OP_MOV, FORM_ACC_MEM, false},
	{0x04, 0xfe, OP_ADD, FORM_IMM_ACC, false},
	{0x2c, 0xfe, OP_SUB, FORM_IMM_ACC, false},
	{0x3c, 0xfe, OP_CMP, FORM_IMM_ACC, false},

	// The op field of the shared arithmetic immediate family is a
	// placeholder; the REG field of the second byte selects it.
	{0x80, 0xfc, OP_ADD, FORM_IMM_RM, true},
	{0x88, 0xfc, OP_MOV, FORM_REG_RM, false},
	{0x00, 0xfc, OP_ADD, FORM_REG_RM, false},
	{0x28, 0xfc, OP_SUB, FORM_REG_RM, false},
	{0x38, 0xfc, OP_CMP, FORM_REG_RM, false},

	{0xb0, 0xf0, OP_MOV, FORM_IMM_REG, false},
}

// arithOp maps the REG field of the shared arithmetic immediate family to
// its operation.
var arithOp = map[byte]Op{
	0x0: OP_ADD,
	0x5: OP_SUB,
	0x7: OP_CMP,
}

// field extracts and right-justifies the bits selected by mask.
func field(value, mask byte) byte {
	return (value & mask) >> bits.TrailingZeros8(mask)
}

// reader walks the stream without ever reading past its end.
type reader struct {
	stream []byte
	cursor int
}

func (r *reader) next() (value byte, err error) {
	if r.cursor >= len(r.stream) {
		err = ErrTruncated
		return
	}
	value = r.stream[r.cursor]
	r.cursor += 1
	return
}

// word reads a 16-bit value, low byte first.
func (r *reader) word() (value uint16, err error) {
	lo, err := r.next()
	if err != nil {
		return
	}
	hi, err := r.next()
	if err != nil {
		return
	}
	value = uint16(lo) | uint16(hi)<<8
	return
}

// immediate reads an immediate value: one byte, two bytes low first, or one
// sign-extended byte for the S=1 arithmetic forms.
func (r *reader) immediate(wide bool, signExtend bool) (value uint16, err error) {
	if wide && !signExtend {
		return r.word()
	}
	b, err := r.next()
	if err != nil {
		return
	}
	value = uint16(b)
	if signExtend {
		value = uint16(int16(int8(b)))
	}
	return
}

// modOperand resolves the MOD and R/M fields into a register or memory
// operand, consuming displacement bytes as the mode requires.
func (r *reader) modOperand(mod byte, rm byte, wide bool) (op Operand, err error) {
	switch mod {
	case 0x0:
		if rm == 0x6 {
			// Reserved slot: 16-bit absolute address with no
			// base register contribution.
			var addr uint16
			addr, err = r.word()
			if err != nil {
				return
			}
			op = MemOperand{Disp: int16(addr)}
			return
		}
		op = MemOperand{Base: effBase[rm&7]}
	case 0x1:
		var disp byte
		disp, err = r.next()
		if err != nil {
			return
		}
		op = MemOperand{Base: effBase[rm&7], Disp: int16(int8(disp))}
	case 0x2:
		var disp uint16
		disp, err = r.word()
		if err != nil {
			return
		}
		op = MemOperand{Base: effBase[rm&7], Disp: int16(disp)}
	default:
		op = RegOperand{Reg: Reg(rm & 7), Wide: wide}
	}
	return
}

// Decode decodes the single instruction starting at offset. It reads at most
// six bytes, never past the end of the stream, and never mutates the stream;
// it is safe to call concurrently.
func Decode(stream []byte, offset int) (inst Instruction, err error) {
	r := &reader{stream: stream, cursor: offset}

	first, err := r.next()
	if err != nil {
		return
	}

	var match *encoding
	for n := range encodings {
		if first&encodings[n].mask == encodings[n].pattern {
			match = &encodings[n]
			break
		}
	}
	if match == nil {
		err = errors.Join(ErrUnknownOpcode, ErrBadByte{Offset: offset, Value: first})
		return
	}

	inst.Op = match.op

	switch match.form {
	case FORM_REG_RM:
		d := field(first, 0x02)
		inst.Wide = field(first, 0x01) == 1

		var second byte
		second, err = r.next()
		if err != nil {
			return
		}
		regOp := RegOperand{Reg: Reg(field(second, 0x38)), Wide: inst.Wide}
		var rmOp Operand
		rmOp, err = r.modOperand(field(second, 0xc0), field(second, 0x07), inst.Wide)
		if err != nil {
			return
		}

		if d == 1 {
			inst.Dst, inst.Src = regOp, rmOp
		} else {
			inst.Dst, inst.Src = rmOp, regOp
		}

	case FORM_IMM_RM:
		inst.Wide = field(first, 0x01) == 1
		signExtend := match.arith && field(first, 0x02) == 1

		var second byte
		second, err = r.next()
		if err != nil {
			return
		}
		if match.arith {
			op, ok := arithOp[field(second, 0x38)]
			if !ok {
				err = errors.Join(ErrUnknownOpcode, ErrBadByte{Offset: offset + 1, Value: second})
				return
			}
			inst.Op = op
		}
		inst.Dst, err = r.modOperand(field(second, 0xc0), field(second, 0x07), inst.Wide)
		if err != nil {
			return
		}
		var value uint16
		value, err = r.immediate(inst.Wide, signExtend)
		if err != nil {
			return
		}
		inst.Src = ImmOperand{Value: value, Wide: inst.Wide}

	case FORM_IMM_REG:
		inst.Wide = field(first, 0x08) == 1
		var value uint16
		value, err = r.immediate(inst.Wide, false)
		if err != nil {
			return
		}
		inst.Dst = RegOperand{Reg: Reg(field(first, 0x07)), Wide: inst.Wide}
		inst.Src = ImmOperand{Value: value, Wide: inst.Wide}

	case FORM_MEM_ACC, FORM_ACC_MEM:
		inst.Wide = field(first, 0x01) == 1
		var addr uint16
		addr, err = r.word()
		if err != nil {
			return
		}
		acc := RegOperand{Reg: AX, Wide: inst.Wide}
		mem := MemOperand{Disp: int16(addr)}
		if match.form == FORM_MEM_ACC {
			inst.Dst, inst.Src = acc, mem
		} else {
			inst.Dst, inst.Src = mem, acc
		}

	case FORM_IMM_ACC:
		inst.Wide = field(first, 0x01) == 1
		var value uint16
		value, err = r.immediate(inst.Wide, false)
		if err != nil {
			return
		}
		inst.Dst = RegOperand{Reg: AX, Wide: inst.Wide}
		inst.Src = ImmOperand{Value: value, Wide: inst.Wide}

	case FORM_JUMP:
		var disp byte
		disp, err = r.next()
		if err != nil {
			return
		}
		inst.Dst = RelOperand{Offset: int8(disp)}
	}

	inst.Size = r.cursor - offset
	return
}
