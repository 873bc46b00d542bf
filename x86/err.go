package x86

import (
	"errors"

	"github.com/ezrec/sim86/translate"
)

var f = translate.From

var (
	// Decoder errors
	ErrUnknownOpcode = errors.New(f("unknown opcode"))
	ErrTruncated     = errors.New(f("truncated instruction"))

	// Execution errors
	ErrUnsupported = errors.New(f("operation not implemented"))

	// Assembler errors
	ErrEquateSyntax    = errors.New(f(".equ syntax"))
	ErrEquateDuplicate = errors.New(f(".equ duplicated"))
	ErrLabelDuplicate  = errors.New(f("label duplicated"))
	ErrOpcodeInvalid   = errors.New(f("opcode invalid"))
	ErrOperandCount    = errors.New(f("operand count"))
	ErrOperandInvalid  = errors.New(f("operand invalid"))
	ErrAddressInvalid  = errors.New(f("address expression invalid"))
	ErrWidthUnknown    = errors.New(f("operand width unknown"))
	ErrWidthMismatch   = errors.New(f("operand width mismatch"))
	ErrImmediateRange  = errors.New(f("immediate out of range"))
	ErrJumpRange       = errors.New(f("jump target out of range"))
	ErrEncoding        = errors.New(f("no encoding for operands"))
)

type ErrLabelMissing string

func (el ErrLabelMissing) Error() string {
	return f("label %v missing", string(el))
}

// ErrBadByte locates an unrecognized opcode byte in the stream.
type ErrBadByte struct {
	Offset int
	Value  byte
}

func (eb ErrBadByte) Error() string {
	return f("byte 0x%02x at offset %d", eb.Value, eb.Offset)
}

func (eb ErrBadByte) Is(err error) (ok bool) {
	_, ok = err.(ErrBadByte)
	return
}

// ErrInstruction wraps a decoded instruction into an execution error.
type ErrInstruction Instruction

func (ei ErrInstruction) Error() string {
	return f("instruction '%v'", Instruction(ei).String())
}

func (ei ErrInstruction) Is(err error) (ok bool) {
	_, ok = err.(ErrInstruction)
	return
}

type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err ErrSyntax) Error() string {
	return f("line %d '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err ErrSyntax) Unwrap() error {
	return err.Err
}

type ErrParseNumber string

func (err ErrParseNumber) Error() string {
	return f("'%v' is not a number", string(err))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}
