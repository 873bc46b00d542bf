// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package x86

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Predefined system equates
var sysEquate = map[string]string{
	"LINENO": "0",
}

// Assembler is a single pass assembler for the supported 8086 subset, with
// deferred patching of jump labels.
type Assembler struct {
	Verbose bool   // If set, verbosely logs the assembler actions.
	Lines   []Line // List of generated listing lines.

	predefine map[string]string // Predefines
	Label     map[string]int    // Map of jump labels to byte offsets.
	Equate    map[string]string // Map of equates.

	patch []patch // Jump displacements awaiting label resolution.
}

// patch records a jump displacement byte awaiting label resolution.
type patch struct {
	LineNo int
	Line   int // Index into Lines.
	Label  string
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// opOf maps mnemonics, including the common aliases, to operations.
var opOf = map[string]Op{
	"mov": OP_MOV,
	"add": OP_ADD,
	"sub": OP_SUB,
	"cmp": OP_CMP,

	"je":     OP_JE,
	"jz":     OP_JE,
	"jne":    OP_JNE,
	"jnz":    OP_JNE,
	"jl":     OP_JL,
	"jnge":   OP_JL,
	"jle":    OP_JLE,
	"jng":    OP_JLE,
	"jb":     OP_JB,
	"jnae":   OP_JB,
	"jbe":    OP_JBE,
	"jna":    OP_JBE,
	"jp":     OP_JP,
	"jpe":    OP_JP,
	"jo":     OP_JO,
	"js":     OP_JS,
	"jnl":    OP_JNL,
	"jge":    OP_JNL,
	"jg":     OP_JG,
	"jnle":   OP_JG,
	"jnb":    OP_JNB,
	"jae":    OP_JNB,
	"ja":     OP_JA,
	"jnbe":   OP_JA,
	"jnp":    OP_JNP,
	"jpo":    OP_JNP,
	"jno":    OP_JNO,
	"jns":    OP_JNS,
	"loop":   OP_LOOP,
	"loopz":  OP_LOOPZ,
	"loope":  OP_LOOPZ,
	"loopnz": OP_LOOPNZ,
	"loopne": OP_LOOPNZ,
	"jcxz":   OP_JCXZ,
}

// regRMBase is the register-with-register-or-memory opcode base per operation.
var regRMBase = map[Op]byte{
	OP_MOV: 0x88,
	OP_ADD: 0x00,
	OP_SUB: 0x28,
	OP_CMP: 0x38,
}

// accImmBase is the immediate-to-accumulator opcode base per arithmetic
// operation.
var accImmBase = map[Op]byte{
	OP_ADD: 0x04,
	OP_SUB: 0x2c,
	OP_CMP: 0x3c,
}

// arithField is the REG field selector of the shared arithmetic immediate
// family, the inverse of the decoder's arithOp table.
var arithField = map[Op]byte{
	OP_ADD: 0x0,
	OP_SUB: 0x5,
	OP_CMP: 0x7,
}

// jumpByte derives the opcode byte of each jump from the decode table, so
// the encoder can never disagree with the decoder.
var jumpByte = func() map[Op]byte {
	m := make(map[Op]byte)
	for _, enc := range encodings {
		if enc.form == FORM_JUMP {
			m[enc.op] = enc.pattern
		}
	}
	return m
}()

var parenRe = regexp.MustCompile(`\$\([^\$]*\)`)

// widthHint is the operand width implied by parsed syntax.
type widthHint int

const (
	WIDTH_ANY  = widthHint(0)
	WIDTH_BYTE = widthHint(1)
	WIDTH_WORD = widthHint(2)
)

// resolveWidth reconciles the width hints of both operands.
func resolveWidth(dw, sw widthHint) (wide bool, err error) {
	if dw == WIDTH_ANY {
		dw = sw
	}
	if sw == WIDTH_ANY {
		sw = dw
	}
	if dw != sw {
		err = ErrWidthMismatch
		return
	}
	if dw == WIDTH_ANY {
		err = ErrWidthUnknown
		return
	}
	wide = dw == WIDTH_WORD
	return
}

// valueOf returns the value of a numeric word.
func (asm *Assembler) valueOf(word string) (value int32, err error) {
	v64, err := strconv.ParseInt(word, 0, 32)
	if err != nil {
		err = ErrParseNumber(word)
		return
	}
	if v64 > 0xffff || v64 < -0x8000 {
		err = ErrImmediateRange
		return
	}
	value = int32(v64)
	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value int64, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, str := range asm.Equate {
		// Ignore non-integer equates. Values wider than an operand are
		// still usable inside expressions.
		v64, verr := strconv.ParseInt(str, 0, 64)
		if verr != nil {
			continue
		}
		pred[key] = starlark.MakeInt64(v64)
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value, ok = st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	return
}

// splitStatement tokenizes a statement, keeping punctuation as words.
func splitStatement(line string) (words []string) {
	for _, punct := range []string{"[", "]", ",", "+", "-"} {
		line = strings.ReplaceAll(line, punct, " "+punct+" ")
	}
	words = slices.DeleteFunc(strings.Split(line, " "), func(a string) bool { return len(a) == 0 })
	return
}

// splitGroups splits tokenized words into comma-separated operand groups.
func splitGroups(words []string) (groups [][]string) {
	var current []string
	for _, word := range words {
		if word == "," {
			groups = append(groups, current)
			current = nil
			continue
		}
		current = append(current, word)
	}
	groups = append(groups, current)
	return
}

// currentOffset is the byte offset where the next instruction lands.
func (asm *Assembler) currentOffset() int {
	if len(asm.Lines) == 0 {
		return 0
	}

	last := asm.Lines[len(asm.Lines)-1]

	return last.Offset + len(last.Code)
}

// rmOf finds the R/M field value encoding a set of base register terms,
// ignoring term order.
func rmOf(base []Reg) (rm byte, ok bool) {
	for n, terms := range effBase {
		if len(terms) != len(base) {
			continue
		}
		if len(terms) == 1 && terms[0] == base[0] {
			return byte(n), true
		}
		if len(terms) == 2 &&
			((terms[0] == base[0] && terms[1] == base[1]) ||
				(terms[0] == base[1] && terms[1] == base[0])) {
			return byte(n), true
		}
	}
	return 0, false
}

// modrm packs the MOD, REG, and R/M fields into the second instruction byte.
func modrm(mod, reg, rm byte) byte {
	return mod<<6 | reg<<3 | rm
}

// immBytes encodes an immediate at the given width, low byte first.
func immBytes(value uint16, wide bool) (code []byte, err error) {
	if wide {
		code = []byte{byte(value), byte(value >> 8)}
		return
	}
	if value > 0xff && value < 0xff80 {
		err = ErrImmediateRange
		return
	}
	code = []byte{byte(value)}
	return
}

// encodeMem encodes the mod/reg/rm byte and displacement for a memory
// operand. BP without displacement still needs an explicit zero byte, since
// its no-displacement slot is reserved for direct addresses.
func encodeMem(regField byte, mem MemOperand) (code []byte, err error) {
	if mem.Direct() {
		addr := uint16(mem.Disp)
		code = []byte{modrm(0x0, regField, 0x6), byte(addr), byte(addr >> 8)}
		return
	}

	rm, ok := rmOf(mem.Base)
	if !ok {
		err = ErrAddressInvalid
		return
	}

	switch {
	case mem.Disp == 0 && rm != 0x6:
		code = []byte{modrm(0x0, regField, rm)}
	case mem.Disp >= -128 && mem.Disp <= 127:
		code = []byte{modrm(0x1, regField, rm), byte(int8(mem.Disp))}
	default:
		disp := uint16(mem.Disp)
		code = []byte{modrm(0x2, regField, rm), byte(disp), byte(disp >> 8)}
	}
	return
}

// parseMemOperand parses a bracketed effective-address expression.
func (asm *Assembler) parseMemOperand(words []string) (op Operand, err error) {
	if len(words) < 3 || words[0] != "[" || words[len(words)-1] != "]" {
		err = ErrAddressInvalid
		return
	}

	var base []Reg
	var disp int32
	sign := int32(1)

	for _, word := range words[1 : len(words)-1] {
		switch word {
		case "+":
			sign = 1
			continue
		case "-":
			sign = -1
			continue
		}

		reg, ok := wordRegOf[word]
		if ok {
			if sign < 0 {
				err = ErrAddressInvalid
				return
			}
			base = append(base, reg)
			continue
		}

		var value int32
		value, err = asm.valueOf(word)
		if err != nil {
			return
		}
		disp += sign * value
		sign = 1
	}

	if len(base) == 0 {
		if disp < 0 || disp > 0xffff {
			err = ErrAddressInvalid
			return
		}
		op = MemOperand{Disp: int16(disp)}
		return
	}

	rm, ok := rmOf(base)
	if !ok {
		err = ErrAddressInvalid
		return
	}
	if disp < -0x8000 || disp > 0x7fff {
		err = ErrAddressInvalid
		return
	}
	op = MemOperand{Base: effBase[rm], Disp: int16(disp)}
	return
}

// parseOperand parses one operand: an optional width keyword followed by a
// register name, a bracketed address expression, or an immediate.
func (asm *Assembler) parseOperand(words []string) (op Operand, width widthHint, err error) {
	if len(words) != 0 {
		switch words[0] {
		case "byte":
			width = WIDTH_BYTE
			words = words[1:]
		case "word":
			width = WIDTH_WORD
			words = words[1:]
		}
	}
	if len(words) == 0 {
		err = ErrOperandInvalid
		return
	}

	if words[0] == "[" {
		op, err = asm.parseMemOperand(words)
		return
	}

	if words[0] == "-" && len(words) == 2 {
		words = []string{"-" + words[1]}
	}
	if len(words) != 1 {
		err = ErrOperandInvalid
		return
	}

	reg, ok := wordRegOf[words[0]]
	if ok {
		if width == WIDTH_BYTE {
			err = ErrWidthMismatch
			return
		}
		op = RegOperand{Reg: reg, Wide: true}
		width = WIDTH_WORD
		return
	}
	reg, ok = byteRegOf[words[0]]
	if ok {
		if width == WIDTH_WORD {
			err = ErrWidthMismatch
			return
		}
		op = RegOperand{Reg: reg}
		width = WIDTH_BYTE
		return
	}

	var value int32
	value, err = asm.valueOf(words[0])
	if err != nil {
		return
	}
	op = ImmOperand{Value: uint16(value)}
	return
}

// encodeJump encodes a relative jump. A numeric operand is the signed
// displacement itself; anything else is a label patched after the full
// stream is sized.
func (asm *Assembler) encodeJump(op Op, words []string) (code []byte, link string, err error) {
	if words[0] == "-" && len(words) == 2 {
		words = []string{"-" + words[1]}
	}
	if len(words) != 1 {
		err = ErrOperandCount
		return
	}

	first, ok := jumpByte[op]
	if !ok {
		err = ErrOpcodeInvalid
		return
	}

	value, verr := asm.valueOf(words[0])
	if verr == nil {
		if value < -128 || value > 127 {
			err = ErrJumpRange
			return
		}
		code = []byte{first, byte(int8(value))}
		return
	}

	code = []byte{first, 0x00}
	link = words[0]
	return
}

// encodeData encodes a two-operand data instruction, preferring the shorter
// accumulator and register-immediate forms where they apply.
func (asm *Assembler) encodeData(op Op, words []string) (code []byte, err error) {
	groups := splitGroups(words)
	if len(groups) != 2 {
		err = ErrOperandCount
		return
	}

	dstOp, dw, err := asm.parseOperand(groups[0])
	if err != nil {
		return
	}
	srcOp, sw, err := asm.parseOperand(groups[1])
	if err != nil {
		return
	}
	wide, err := resolveWidth(dw, sw)
	if err != nil {
		return
	}

	w := byte(0)
	if wide {
		w = 1
	}

	switch dst := dstOp.(type) {
	case RegOperand:
		switch src := srcOp.(type) {
		case RegOperand:
			base, ok := regRMBase[op]
			if !ok {
				err = ErrEncoding
				return
			}
			code = []byte{base | w, modrm(0x3, byte(src.Reg), byte(dst.Reg))}

		case MemOperand:
			if op == OP_MOV && src.Direct() && dst.Reg == AX {
				addr := uint16(src.Disp)
				code = []byte{0xa0 | w, byte(addr), byte(addr >> 8)}
				return
			}
			base, ok := regRMBase[op]
			if !ok {
				err = ErrEncoding
				return
			}
			var mm []byte
			mm, err = encodeMem(byte(dst.Reg), src)
			if err != nil {
				return
			}
			code = append([]byte{base | 0x2 | w}, mm...)

		case ImmOperand:
			var imm []byte
			imm, err = immBytes(src.Value, wide)
			if err != nil {
				return
			}
			base, acc := accImmBase[op]
			switch {
			case op == OP_MOV:
				code = append([]byte{0xb0 | w<<3 | byte(dst.Reg)}, imm...)
			case acc && dst.Reg == AX:
				code = append([]byte{base | w}, imm...)
			default:
				selector, ok := arithField[op]
				if !ok {
					err = ErrEncoding
					return
				}
				code = append([]byte{0x80 | w, modrm(0x3, selector, byte(dst.Reg))}, imm...)
			}

		default:
			err = ErrEncoding
		}

	case MemOperand:
		switch src := srcOp.(type) {
		case RegOperand:
			if op == OP_MOV && dst.Direct() && src.Reg == AX {
				addr := uint16(dst.Disp)
				code = []byte{0xa2 | w, byte(addr), byte(addr >> 8)}
				return
			}
			base, ok := regRMBase[op]
			if !ok {
				err = ErrEncoding
				return
			}
			var mm []byte
			mm, err = encodeMem(byte(src.Reg), dst)
			if err != nil {
				return
			}
			code = append([]byte{base | w}, mm...)

		case ImmOperand:
			first := byte(0xc6) | w
			selector := byte(0x0)
			if op != OP_MOV {
				var ok bool
				selector, ok = arithField[op]
				if !ok {
					err = ErrEncoding
					return
				}
				first = 0x80 | w
			}
			var mm, imm []byte
			mm, err = encodeMem(selector, dst)
			if err != nil {
				return
			}
			imm, err = immBytes(src.Value, wide)
			if err != nil {
				return
			}
			code = append(append([]byte{first}, mm...), imm...)

		default:
			err = ErrEncoding
		}

	default:
		err = ErrEncoding
	}

	return
}

// parseWords assembles the tokenized words of one statement.
func (asm *Assembler) parseWords(words []string, lineno int, source string) (err error) {
	if len(words) == 0 {
		return
	}

	op, ok := opOf[strings.ToLower(words[0])]
	if !ok {
		err = ErrOpcodeInvalid
		return
	}
	if len(words) < 2 {
		err = ErrOperandCount
		return
	}

	var code []byte
	var link string
	if op.IsJump() {
		code, link, err = asm.encodeJump(op, words[1:])
	} else {
		code, err = asm.encodeData(op, words[1:])
	}
	if err != nil {
		return
	}

	asm.Lines = append(asm.Lines, Line{
		LineNo: lineno,
		Offset: asm.currentOffset(),
		Source: source,
		Code:   code,
	})
	if len(link) != 0 {
		asm.patch = append(asm.patch, patch{LineNo: lineno, Line: len(asm.Lines) - 1, Label: link})
	}

	return
}

// parseLine parses a single source line.
func (asm *Assembler) parseLine(line string, lineno int) (err error) {
	// Set line number.
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	// Do $() evaluations
	line = parenRe.ReplaceAllStringFunc(line, func(str string) string {
		value, _err := asm.parenEval(str[2 : len(str)-1])
		if _err != nil {
			err = _err
		}
		return fmt.Sprintf("%v", value)
	})
	if err != nil {
		return
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	// .equ CONST VALUE
	if fields[0] == ".equ" {
		if len(fields) != 3 {
			err = ErrEquateSyntax
			return
		}
		_, ok := asm.Equate[fields[1]]
		if ok {
			err = ErrEquateDuplicate
			return
		}
		asm.Equate[fields[1]] = fields[2]
		return
	}

	for strings.HasSuffix(fields[0], ":") {
		label := fields[0][:len(fields[0])-1]
		_, ok := asm.Label[label]
		if ok {
			err = ErrLabelDuplicate
			return
		}

		if asm.Label == nil {
			asm.Label = make(map[string]int, 16)
		}
		asm.Label[label] = asm.currentOffset()
		fields = fields[1:]
		if len(fields) == 0 {
			return
		}
	}

	words := splitStatement(strings.Join(fields, " "))
	for n, word := range words {
		// Check for equate next
		equate, ok := asm.Equate[word]
		if ok {
			words[n] = equate
		}
	}

	return asm.parseWords(words, lineno, line)
}

// Parse parses an input stream into an assembled Program.
func (asm *Assembler) Parse(input io.Reader) (prog *Program, err error) {
	scanner := bufio.NewScanner(input)

	var line string
	var lineno int

	defer func() {
		if err != nil {
			err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	clear(asm.Label)
	asm.Lines = asm.Lines[:0]
	asm.patch = asm.patch[:0]
	asm.Equate = maps.Clone(sysEquate)
	for attr, val := range asm.predefine {
		asm.Equate[attr] = val
	}

	for scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		if asm.Verbose {
			log.Printf("%v: %v\n", lineno, text)
		}

		line = strings.TrimSpace(strings.Split(text, ";")[0])

		err = asm.parseLine(line, lineno)
		if err != nil {
			return
		}
	}

	// Final linking of jump labels.
	for _, p := range asm.patch {
		linked := &asm.Lines[p.Line]
		lineno = linked.LineNo
		line = linked.Source

		target, ok := asm.Label[p.Label]
		if !ok {
			err = ErrLabelMissing(p.Label)
			return
		}
		// Displacements are relative to the next instruction.
		rel := target - (linked.Offset + len(linked.Code))
		if rel < -128 || rel > 127 {
			err = ErrJumpRange
			return
		}
		linked.Code[len(linked.Code)-1] = byte(int8(rel))
	}

	prog = &Program{
		Lines: slices.Clone(asm.Lines),
	}

	return
}
