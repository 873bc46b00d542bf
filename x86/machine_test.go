// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package x86

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveAddress(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	m.Regs.SetWord(BX, 0x0010)
	m.Regs.SetWord(SI, 0x0002)

	assert.Equal(uint32(0x0016), m.EffectiveAddress(MemOperand{Base: []Reg{BX, SI}, Disp: 4}))
	assert.Equal(uint32(0x0012), m.EffectiveAddress(MemOperand{Base: []Reg{BX, SI}}))
	assert.Equal(uint32(0x1000), m.EffectiveAddress(MemOperand{Disp: 0x1000}))
	assert.Equal(uint32(0x000e), m.EffectiveAddress(MemOperand{Base: []Reg{BX}, Disp: -2}))

	// The sum wraps at 16 bits before it becomes an address.
	m.Regs.SetWord(BP, 0xffff)
	assert.Equal(uint32(0x0001), m.EffectiveAddress(MemOperand{Base: []Reg{BP}, Disp: 2}))
}

// A copy never touches the flags.
func TestExecuteMov(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	m.Regs.Zero = true
	m.Regs.Sign = true

	err := m.Execute(Instruction{
		Op:   OP_MOV,
		Dst:  RegOperand{Reg: AX, Wide: true},
		Src:  ImmOperand{Value: 5, Wide: true},
		Wide: true,
		Size: 3,
	})
	assert.NoError(err)
	assert.Equal(uint16(5), m.Regs.Word(AX))
	assert.True(m.Regs.Zero)
	assert.True(m.Regs.Sign)
	assert.Equal(1, m.Ticks)
}

func TestExecuteArithmetic(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()

	// sub ax, ax
	m.Regs.SetWord(AX, 0x1234)
	err := m.Execute(Instruction{
		Op:   OP_SUB,
		Dst:  RegOperand{Reg: AX, Wide: true},
		Src:  RegOperand{Reg: AX, Wide: true},
		Wide: true,
	})
	assert.NoError(err)
	assert.Equal(uint16(0), m.Regs.Word(AX))
	assert.True(m.Regs.Zero)
	assert.False(m.Regs.Sign)

	// cmp ax, 8 leaves the destination alone.
	m.Regs.SetWord(AX, 5)
	err = m.Execute(Instruction{
		Op:   OP_CMP,
		Dst:  RegOperand{Reg: AX, Wide: true},
		Src:  ImmOperand{Value: 8, Wide: true},
		Wide: true,
	})
	assert.NoError(err)
	assert.Equal(uint16(5), m.Regs.Word(AX))
	assert.False(m.Regs.Zero)
	assert.True(m.Regs.Sign)

	// add al, 1 with al = 0xff truncates to a zero byte and keeps ah.
	m.Regs.SetWord(AX, 0x12ff)
	err = m.Execute(Instruction{
		Op:  OP_ADD,
		Dst: RegOperand{Reg: Reg(0)},
		Src: ImmOperand{Value: 1},
	})
	assert.NoError(err)
	assert.Equal(uint16(0x1200), m.Regs.Word(AX))
	assert.True(m.Regs.Zero)
	assert.False(m.Regs.Sign)
}

func TestExecuteMemoryOperands(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	m.Regs.SetWord(BX, 0x0100)
	m.Mem.SetWord(0x0102, 40)

	// add ax, [bx + 2]
	m.Regs.SetWord(AX, 2)
	err := m.Execute(Instruction{
		Op:   OP_ADD,
		Dst:  RegOperand{Reg: AX, Wide: true},
		Src:  MemOperand{Base: []Reg{BX}, Disp: 2},
		Wide: true,
	})
	assert.NoError(err)
	assert.Equal(uint16(42), m.Regs.Word(AX))

	// mov [16], ax
	err = m.Execute(Instruction{
		Op:   OP_MOV,
		Dst:  MemOperand{Disp: 16},
		Src:  RegOperand{Reg: AX, Wide: true},
		Wide: true,
	})
	assert.NoError(err)
	assert.Equal(uint16(42), m.Mem.Word(16))
}

// Decoded but unmodeled operations fail loudly instead of skipping.
func TestExecuteUnsupported(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()

	inst, err := Decode([]byte{0x7c, 0x02}, 0) // jl
	assert.NoError(err)

	err = m.Execute(inst)
	assert.ErrorIs(err, ErrUnsupported)
	assert.ErrorIs(err, ErrInstruction{})
	assert.Contains(err.Error(), "jl")
}

func TestStep(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	stream := []byte{0xb8, 0x05, 0x00} // mov ax, 5

	done, err := m.Step(stream)
	assert.NoError(err)
	assert.False(done)
	assert.Equal(uint16(3), m.Regs.IP)
	assert.Equal(uint16(5), m.Regs.Word(AX))

	done, err = m.Step(stream)
	assert.NoError(err)
	assert.True(done)
	assert.Equal(1, m.Ticks)
}

func TestRun(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	stream := []byte{
		0xb8, 0x05, 0x00, // mov ax, 5
		0xbb, 0x03, 0x00, // mov bx, 3
		0x01, 0xd8, // add ax, bx
		0x3d, 0x08, 0x00, // cmp ax, 8
		0x75, 0xfc, // jne $-2
	}

	err := m.Run(stream)
	assert.NoError(err)
	assert.Equal(uint16(8), m.Regs.Word(AX))
	assert.True(m.Regs.Zero)
	assert.Equal(uint16(13), m.Regs.IP)
	assert.Equal(5, m.Ticks)
}

func TestRunLoop(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	stream := []byte{
		0xb9, 0x03, 0x00, // mov cx, 3
		0xbb, 0x00, 0x00, // mov bx, 0
		0x81, 0xc3, 0x0a, 0x00, // add bx, 10
		0xe2, 0xfa, // loop $-4
	}

	err := m.Run(stream)
	assert.NoError(err)
	assert.Equal(uint16(30), m.Regs.Word(BX))
	assert.Equal(uint16(0), m.Regs.Word(CX))
	assert.Equal(uint16(12), m.Regs.IP)
	assert.Equal(8, m.Ticks)
}

func TestRunHaltsOnBadByte(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	stream := []byte{
		0xb8, 0x01, 0x00, // mov ax, 1
		0x0f,
	}

	err := m.Run(stream)
	assert.ErrorIs(err, ErrUnknownOpcode)
	assert.Equal(uint16(1), m.Regs.Word(AX))
	// The IP still points at the byte that failed to decode.
	assert.Equal(uint16(3), m.Regs.IP)
}

func TestMachineReset(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()
	err := m.Run([]byte{0xb8, 0x05, 0x00, 0xa3, 0x10, 0x00})
	assert.NoError(err)
	assert.Equal(uint16(5), m.Mem.Word(16))

	m.Reset()
	assert.Equal(uint16(0), m.Regs.Word(AX))
	assert.Equal(uint16(0), m.Mem.Word(16))
	assert.Equal(uint16(0), m.Regs.IP)
	assert.Equal(0, m.Ticks)
}

func TestMachineDefines(t *testing.T) {
	assert := assert.New(t)

	m := NewMachine()

	defines := map[string]string{}
	for attr, value := range m.Defines() {
		defines[attr] = value
	}
	assert.Equal("0x100000", defines["MEMORY_SIZE"])
}
