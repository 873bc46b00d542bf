package x86

import (
	"fmt"
)

// RegisterFile is the mutable processor state: eight general-purpose word
// registers addressable as byte halves, the zero/sign condition flags, and
// the instruction pointer.
type RegisterFile struct {
	word [8]uint16

	Zero bool // Result was zero.
	Sign bool // Result was negative as a signed value.

	IP uint16 // Instruction pointer, a byte offset into the stream.
}

// Word reads a full word register.
func (rf *RegisterFile) Word(reg Reg) uint16 {
	return rf.word[reg&7]
}

// SetWord writes a full word register.
func (rf *RegisterFile) SetWord(reg Reg, value uint16) {
	rf.word[reg&7] = value
}

// Byte reads a byte half. Field values 0-3 select the low halves of AX, CX,
// DX, BX; 4-7 select the high halves.
func (rf *RegisterFile) Byte(reg Reg) uint8 {
	word := rf.word[reg&3]
	if reg&4 != 0 {
		return uint8(word >> 8)
	}
	return uint8(word)
}

// SetByte writes a byte half without disturbing the other half.
func (rf *RegisterFile) SetByte(reg Reg, value uint8) {
	word := rf.word[reg&3]
	if reg&4 != 0 {
		word = (word & 0x00ff) | (uint16(value) << 8)
	} else {
		word = (word & 0xff00) | uint16(value)
	}
	rf.word[reg&3] = word
}

// Get reads a register at the given width. Byte reads return the value in
// the low 8 bits.
func (rf *RegisterFile) Get(reg Reg, wide bool) uint16 {
	if wide {
		return rf.Word(reg)
	}
	return uint16(rf.Byte(reg))
}

// Set writes a register at the given width. Byte writes take the low 8 bits.
func (rf *RegisterFile) Set(reg Reg, wide bool, value uint16) {
	if wide {
		rf.SetWord(reg, value)
	} else {
		rf.SetByte(reg, uint8(value))
	}
}

// RecomputeFlags rebuilds the zero and sign flags whole from a truncated
// arithmetic result. The flags are never updated incrementally.
func (rf *RegisterFile) RecomputeFlags(result uint16, wide bool) {
	if !wide {
		result &= 0xff
	}
	rf.Zero = result == 0
	if wide {
		rf.Sign = int16(result) < 0
	} else {
		rf.Sign = int8(result) < 0
	}
}

// Reset clears the registers, flags, and instruction pointer.
func (rf *RegisterFile) Reset() {
	clear(rf.word[:])
	rf.Zero = false
	rf.Sign = false
	rf.IP = 0
}

// String returns the current register state as a string.
func (rf *RegisterFile) String() (text string) {
	regs := []string{
		"ax", "bx", "cx", "dx",
		"sp", "bp", "si", "di",
		"ip",
		"flags",
	}
	for _, reg := range regs {
		var strval string
		switch reg {
		case "ip":
			strval = fmt.Sprintf("0x%04x", rf.IP)
		case "flags":
			if rf.Zero {
				strval += "Z"
			}
			if rf.Sign {
				strval += "S"
			}
		default:
			strval = fmt.Sprintf("0x%04x", rf.Word(wordRegOf[reg]))
		}
		text += fmt.Sprintf("% 6s: %v\n", reg, strval)
	}

	return
}
