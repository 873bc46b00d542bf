package x86

// MEMORY_SIZE matches the 8086's 20-bit address space.
const MEMORY_SIZE = 1 << 20

// Memory is a flat byte-addressable array. Word access combines two
// consecutive bytes low byte first, the same order the decoder uses when
// assembling displacements and immediates, so a written word always reads
// back identically.
type Memory struct {
	cell []byte
}

// NewMemory creates a zeroed memory.
func NewMemory() *Memory {
	return &Memory{cell: make([]byte, MEMORY_SIZE)}
}

// Reset zeroes the memory.
func (mem *Memory) Reset() {
	clear(mem.cell)
}

// Byte reads a single byte. Addresses wrap at MEMORY_SIZE.
func (mem *Memory) Byte(addr uint32) uint8 {
	return mem.cell[addr%MEMORY_SIZE]
}

// SetByte writes a single byte.
func (mem *Memory) SetByte(addr uint32, value uint8) {
	mem.cell[addr%MEMORY_SIZE] = value
}

// Word reads a 16-bit value, low byte at the lower address.
func (mem *Memory) Word(addr uint32) uint16 {
	return uint16(mem.Byte(addr)) | uint16(mem.Byte(addr+1))<<8
}

// SetWord writes a 16-bit value, low byte at the lower address.
func (mem *Memory) SetWord(addr uint32, value uint16) {
	mem.SetByte(addr, uint8(value))
	mem.SetByte(addr+1, uint8(value>>8))
}

// Get reads at the given width. Byte reads return the value in the low 8 bits.
func (mem *Memory) Get(addr uint32, wide bool) uint16 {
	if wide {
		return mem.Word(addr)
	}
	return uint16(mem.Byte(addr))
}

// Set writes at the given width. Byte writes take the low 8 bits.
func (mem *Memory) Set(addr uint32, wide bool, value uint16) {
	if wide {
		mem.SetWord(addr, value)
	} else {
		mem.SetByte(addr, uint8(value))
	}
}
