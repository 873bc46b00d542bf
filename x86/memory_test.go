package x86

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryWords(t *testing.T) {
	assert := assert.New(t)

	m := NewMemory()

	// Words are stored low byte first.
	m.SetWord(0x10, 0x1234)
	assert.Equal(uint8(0x34), m.Byte(0x10))
	assert.Equal(uint8(0x12), m.Byte(0x11))
	assert.Equal(uint16(0x1234), m.Word(0x10))

	m.SetByte(0x11, 0x56)
	assert.Equal(uint16(0x5634), m.Word(0x10))
}

func TestMemoryWrap(t *testing.T) {
	assert := assert.New(t)

	m := NewMemory()

	m.SetByte(MEMORY_SIZE+5, 0xaa)
	assert.Equal(uint8(0xaa), m.Byte(5))

	// A word at the top of memory wraps its high byte to address zero.
	m.SetWord(MEMORY_SIZE-1, 0x1234)
	assert.Equal(uint8(0x34), m.Byte(MEMORY_SIZE-1))
	assert.Equal(uint8(0x12), m.Byte(0))
	assert.Equal(uint16(0x1234), m.Word(MEMORY_SIZE-1))
}

func TestMemoryGetSet(t *testing.T) {
	assert := assert.New(t)

	m := NewMemory()

	m.Set(0x100, true, 0x1234)
	assert.Equal(uint16(0x1234), m.Get(0x100, true))
	assert.Equal(uint16(0x34), m.Get(0x100, false))

	// A byte write takes only the low 8 bits of the value.
	m.Set(0x200, false, 0xabcd)
	assert.Equal(uint8(0xcd), m.Byte(0x200))
	assert.Equal(uint8(0x00), m.Byte(0x201))
}

func TestMemoryReset(t *testing.T) {
	assert := assert.New(t)

	m := NewMemory()
	m.SetWord(0x10, 0x1234)

	m.Reset()
	assert.Equal(uint16(0), m.Word(0x10))
}
