package x86

import (
	"iter"
)

// Line is one assembled source line with its encoded bytes.
type Line struct {
	LineNo int
	Offset int
	Source string
	Code   []byte
}

// Program is an assembled listing: the instruction stream plus the source
// line bookkeeping needed to attribute runtime errors.
type Program struct {
	Lines []Line
}

// Binary returns the flat instruction stream.
func (prog *Program) Binary() (stream []byte) {
	for _, line := range prog.Lines {
		stream = append(stream, line.Code...)
	}

	return
}

// LineAt returns the source line number covering a byte offset, or 0.
func (prog *Program) LineAt(offset int) int {
	for _, line := range prog.Lines {
		if offset >= line.Offset && offset < line.Offset+len(line.Code) {
			return line.LineNo
		}
	}

	return 0
}

// Instructions iterates the decoded instructions of the stream, keyed by
// byte offset. Iteration stops at the first byte that does not decode.
func (prog *Program) Instructions() iter.Seq2[int, Instruction] {
	return func(yield func(offset int, inst Instruction) bool) {
		stream := prog.Binary()
		offset := 0
		for offset < len(stream) {
			inst, err := Decode(stream, offset)
			if err != nil {
				return
			}
			if !yield(offset, inst) {
				return
			}
			offset += inst.Size
		}
	}
}
