package emulator

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ezrec/sim86/x86"
)

func TestEmulator(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	assert.False(emu.Verbose)
	assert.NotNil(emu.Machine)
	assert.NotNil(emu.Program)
}

func doRun(emu *Emulator, program []string, t *testing.T) {
	assert := assert.New(t)

	err := emu.Assemble(strings.NewReader(strings.Join(program, "\n")))
	assert.NoError(err)
	if err != nil {
		t.Fatalf("%v", err)
	}

	emu.Reset()

	err = emu.Run()
	assert.NoError(err)
	if err != nil {
		t.Log(emu.String())
		t.Fatalf("%v", err)
	}
}

func TestEmulatorCompare(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	program := []string{
		"mov ax, 5",
		"mov bx, 3",
		"add ax, bx",
		"cmp ax, 8",
		"jne mismatch",
		"mov cx, 1",
		"mismatch:",
	}

	doRun(emu, program, t)

	assert.Equal(uint16(8), emu.Regs.Word(x86.AX))
	assert.Equal(uint16(1), emu.Regs.Word(x86.CX))
	assert.True(emu.Regs.Zero)
}

func TestEmulatorCountdown(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	program := []string{
		"mov cx, 5",
		"mov ax, 0",
		"again:",
		"add ax, 3",
		"loop again",
	}

	doRun(emu, program, t)

	assert.Equal(uint16(15), emu.Regs.Word(x86.AX))
	assert.Equal(uint16(0), emu.Regs.Word(x86.CX))
	assert.Equal(12, emu.Ticks)
}

func TestEmulatorMemory(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	program := []string{
		"mov bx, 0x100",
		"mov word [bx], 1234",
		"mov dx, [bx]",
		"mov byte [bx + 2], 56",
	}

	doRun(emu, program, t)

	assert.Equal(uint16(1234), emu.Regs.Word(x86.DX))
	assert.Equal(uint16(1234), emu.Mem.Word(0x100))
	assert.Equal(uint8(56), emu.Mem.Byte(0x102))
}

func TestEmulatorByteHalves(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	program := []string{
		"mov ax, 0x1234",
		"mov al, 0xff",
		"add ah, 1",
	}

	doRun(emu, program, t)

	assert.Equal(uint16(0x13ff), emu.Regs.Word(x86.AX))
}

// Runtime errors carry the source line of the failing instruction.
func TestEmulatorLineNo(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	program := []string{
		"mov ax, 1",
		"jl 2",
	}

	err := emu.Assemble(strings.NewReader(strings.Join(program, "\n")))
	assert.NoError(err)

	emu.Reset()
	err = emu.Run()
	assert.ErrorIs(err, x86.ErrUnsupported)

	var runtime *ErrRuntime
	assert.ErrorAs(err, &runtime)
	assert.Equal(2, runtime.LineNo)
}

func TestEmulatorDefines(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	defines := map[string]string{}
	for attr, value := range emu.Defines() {
		defines[attr] = value
	}
	assert.Equal("0", defines["ENTRY"])
	assert.Equal("0x100000", defines["MEMORY_SIZE"])

	program := []string{
		"mov ax, $(MEMORY_SIZE >> 16)",
		"mov bx, $(ENTRY)",
	}

	doRun(emu, program, t)

	assert.Equal(uint16(16), emu.Regs.Word(x86.AX))
	assert.Equal(uint16(0), emu.Regs.Word(x86.BX))
}

func TestEmulatorReset(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	program := []string{
		"mov ax, 7",
		"mov [16], ax",
	}

	doRun(emu, program, t)
	assert.Equal(uint16(7), emu.Mem.Word(16))
	assert.Equal(2, emu.Ticks)

	emu.Reset()
	assert.Equal(uint16(0), emu.Regs.Word(x86.AX))
	assert.Equal(uint16(0), emu.Mem.Word(16))
	assert.Equal(0, emu.Ticks)

	// The program survives a reset and runs again.
	err := emu.Run()
	assert.NoError(err)
	assert.Equal(uint16(7), emu.Mem.Word(16))
}

func TestEmulatorDisassemble(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	err := emu.Assemble(strings.NewReader("mov ax, 5\nadd ax, 3\n"))
	assert.NoError(err)

	buffer := &bytes.Buffer{}
	err = emu.Disassemble(buffer)
	assert.NoError(err)
	assert.Equal("bits 16\nmov ax, 5\nadd ax, 3\n", buffer.String())
}

func TestDisassembleStream(t *testing.T) {
	assert := assert.New(t)

	stream := []byte{0x89, 0xd9, 0x75, 0xfc}
	buffer := &bytes.Buffer{}
	err := Disassemble(buffer, stream)
	assert.NoError(err)
	assert.Equal("bits 16\nmov cx, bx\njne $-2\n", buffer.String())

	err = Disassemble(&bytes.Buffer{}, []byte{0x0f})
	assert.ErrorIs(err, x86.ErrUnknownOpcode)
}
