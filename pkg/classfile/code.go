package classfile

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// ErrBranchOverflow is returned when a relocated branch offset no longer
// fits its 16-bit encoding.
var ErrBranchOverflow = errors.New("branch offset overflow")

// Instruction is one decoded bytecode instruction.
//
// Offset is the instruction's position in the original code array and
// serves as its label: branch targets, exception ranges and debug tables
// refer to it. Synthesized instructions carry -1, except that a replacement
// may take over the Offset of the instruction it replaces.
type Instruction struct {
	Offset int
	Opcode uint8
	Wide   bool
	// Operand holds raw operand bytes for instructions without a symbolic
	// form (local indices, immediates, ldc, invokedynamic, multianewarray).
	Operand []byte
	// Ref is the member of a field or invoke instruction.
	Ref *MemberRef
	// Target is the label of a branch instruction.
	Target int
	Switch *Switch
	// Class is the operand of new, anewarray, checkcast and instanceof.
	Class string
	// Literal is a string constant loaded by a synthesized ldc.
	Literal string
}

// Switch holds the jump table of tableswitch and lookupswitch. Targets are
// labels.
type Switch struct {
	Default int
	Low     int32
	High    int32
	Keys    []int32
	Targets []int
}

// Insn creates a synthesized instruction without operands.
func Insn(op uint8) Instruction {
	return Instruction{Offset: -1, Opcode: op}
}

// VarInsn creates a synthesized local variable instruction.
func VarInsn(op uint8, index int) Instruction {
	if index > 0xFF {
		return Instruction{Offset: -1, Opcode: op, Wide: true, Operand: []byte{byte(index >> 8), byte(index)}}
	}
	return Instruction{Offset: -1, Opcode: op, Operand: []byte{byte(index)}}
}

// FieldInsn creates a synthesized field instruction.
func FieldInsn(op uint8, owner, name, descriptor string) Instruction {
	return Instruction{Offset: -1, Opcode: op, Ref: &MemberRef{Owner: owner, Name: name, Descriptor: descriptor}}
}

// MethodInsn creates a synthesized invoke instruction.
func MethodInsn(op uint8, owner, name, descriptor string, itf bool) Instruction {
	return Instruction{Offset: -1, Opcode: op, Ref: &MemberRef{Owner: owner, Name: name, Descriptor: descriptor, Interface: itf}}
}

// TypeInsn creates a synthesized class instruction.
func TypeInsn(op uint8, class string) Instruction {
	return Instruction{Offset: -1, Opcode: op, Class: class}
}

// LdcString creates a synthesized string constant load.
func LdcString(s string) Instruction {
	return Instruction{Offset: -1, Opcode: OpLdc, Literal: s}
}

// codeReader is a cursor over a code array.
type codeReader struct {
	code []byte
	pc   int
}

func (r *codeReader) need(n int) error {
	if r.pc+n > len(r.code) {
		return errors.Wrapf(ErrMalformed, "truncated instruction at pc=%d", r.pc)
	}
	return nil
}

func (r *codeReader) readU8() uint8 {
	val := r.code[r.pc]
	r.pc++
	return val
}

func (r *codeReader) readU16() uint16 {
	val := binary.BigEndian.Uint16(r.code[r.pc:])
	r.pc += 2
	return val
}

func (r *codeReader) readI16() int16 {
	return int16(r.readU16())
}

func (r *codeReader) readI32() int32 {
	val := int32(binary.BigEndian.Uint32(r.code[r.pc:]))
	r.pc += 4
	return val
}

func (r *codeReader) readBytes(n int) []byte {
	b := make([]byte, n)
	copy(b, r.code[r.pc:r.pc+n])
	r.pc += n
	return b
}

// DecodeInstructions decodes a code array into instructions. Member and
// class operands are resolved against the pool.
func DecodeInstructions(pool []ConstantPoolEntry, code []byte) ([]Instruction, error) {
	var insns []Instruction
	r := &codeReader{code: code}

	for r.pc < len(code) {
		start := r.pc
		op := r.readU8()
		insn := Instruction{Offset: start, Opcode: op}

		switch {
		case op == OpWide:
			if err := r.need(1); err != nil {
				return nil, err
			}
			insn.Opcode = r.readU8()
			insn.Wide = true
			n := 2
			if insn.Opcode == OpIinc {
				n = 4
			}
			if err := r.need(n); err != nil {
				return nil, err
			}
			insn.Operand = r.readBytes(n)

		case op == OpTableswitch || op == OpLookupswitch:
			r.pc += (4 - r.pc%4) % 4
			fixed := 8
			if op == OpTableswitch {
				fixed = 12
			}
			if err := r.need(fixed); err != nil {
				return nil, err
			}
			sw := &Switch{Default: start + int(r.readI32())}
			if op == OpTableswitch {
				sw.Low = r.readI32()
				sw.High = r.readI32()
				if sw.High < sw.Low {
					return nil, errors.Wrapf(ErrMalformed, "tableswitch at pc=%d has high < low", start)
				}
				n := int(int64(sw.High) - int64(sw.Low) + 1)
				if err := r.need(4 * n); err != nil {
					return nil, err
				}
				for i := 0; i < n; i++ {
					sw.Targets = append(sw.Targets, start+int(r.readI32()))
				}
			} else {
				n := int(r.readI32())
				if n < 0 {
					return nil, errors.Wrapf(ErrMalformed, "lookupswitch at pc=%d has negative npairs", start)
				}
				if err := r.need(8 * n); err != nil {
					return nil, err
				}
				for i := 0; i < n; i++ {
					sw.Keys = append(sw.Keys, r.readI32())
					sw.Targets = append(sw.Targets, start+int(r.readI32()))
				}
			}
			insn.Switch = sw

		default:
			size := operandSize[op]
			if size < 0 {
				return nil, errors.Wrapf(ErrMalformed, "unknown opcode 0x%02X at pc=%d", op, start)
			}
			if err := r.need(size); err != nil {
				return nil, err
			}
			switch {
			case IsFieldInsn(op) || IsInvokeInsn(op):
				ref, err := ResolveMemberref(pool, r.readU16())
				if err != nil {
					return nil, errors.Wrapf(err, "resolving operand at pc=%d", start)
				}
				insn.Ref = &ref
				r.pc += size - 2 // invokeinterface count and zero byte
			case IsClassInsn(op):
				name, err := GetClassName(pool, r.readU16())
				if err != nil {
					return nil, errors.Wrapf(err, "resolving class operand at pc=%d", start)
				}
				insn.Class = name
			case op == OpGotoW || op == OpJsrW:
				insn.Target = start + int(r.readI32())
			case IsJumpInsn(op):
				insn.Target = start + int(r.readI16())
			default:
				insn.Operand = r.readBytes(size)
			}
		}

		insns = append(insns, insn)
	}
	return insns, nil
}

// labels maps original offsets to encoded offsets.
type labels struct {
	pos     map[int]int
	length  int // original code length
	encoded int
	moved   bool
}

func (l *labels) resolve(off int) (int, error) {
	if off == l.length {
		return l.encoded, nil
	}
	p, ok := l.pos[off]
	if !ok {
		return 0, errors.Wrapf(ErrMalformed, "no instruction at offset %d", off)
	}
	return p, nil
}

// EncodeCode lays out instructions, interning symbolic operands into the
// pool, and relocates everything in the Code attribute that refers to code
// offsets. info.Length, the size of the original code array, is the end
// label of exception ranges and debug tables.
func EncodeCode(pool *Pool, info *CodeInfo, insns []Instruction) (*CodeAttribute, error) {
	// Intern first: ldc width depends on the index.
	indices := make([]uint16, len(insns))
	for i := range insns {
		insn := &insns[i]
		var err error
		switch {
		case insn.Ref != nil:
			indices[i], err = pool.Memberref(insn.Opcode, *insn.Ref)
		case insn.Class != "":
			indices[i], err = pool.Class(insn.Class)
		case insn.Literal != "" && insn.Operand == nil:
			indices[i], err = pool.String(insn.Literal)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "interning operand of instruction %d", i)
		}
	}

	// Layout
	l := &labels{pos: make(map[int]int), length: info.Length}
	offsets := make([]int, len(insns))
	pc := 0
	for i := range insns {
		insn := &insns[i]
		offsets[i] = pc
		if insn.Offset >= 0 {
			if _, ok := l.pos[insn.Offset]; !ok {
				l.pos[insn.Offset] = pc
				if insn.Offset != pc {
					l.moved = true
				}
			}
		}
		pc += insnSize(insn, indices[i], pc)
	}
	l.encoded = pc
	if pc != info.Length {
		l.moved = true
	}
	if pc > 0xFFFF {
		return nil, errors.Wrapf(ErrMalformed, "code length %d exceeds 65535", pc)
	}

	// Emit
	code := make([]byte, 0, pc)
	for i := range insns {
		var err error
		code, err = appendInsn(code, &insns[i], indices[i], offsets[i], l)
		if err != nil {
			return nil, err
		}
	}

	handlers := make([]ExceptionHandler, len(info.Handlers))
	for i, h := range info.Handlers {
		start, err := l.resolve(int(h.StartPC))
		if err != nil {
			return nil, errors.Wrap(err, "relocating exception handler start")
		}
		end, err := l.resolve(int(h.EndPC))
		if err != nil {
			return nil, errors.Wrap(err, "relocating exception handler end")
		}
		handler, err := l.resolve(int(h.HandlerPC))
		if err != nil {
			return nil, errors.Wrap(err, "relocating exception handler")
		}
		handlers[i] = ExceptionHandler{StartPC: uint16(start), EndPC: uint16(end), HandlerPC: uint16(handler), CatchType: h.CatchType}
	}

	attrs, err := relocateAttributes(info.Attributes, l)
	if err != nil {
		return nil, err
	}

	return &CodeAttribute{
		MaxStack:          info.MaxStack,
		MaxLocals:         info.MaxLocals,
		Code:              code,
		ExceptionHandlers: handlers,
		Attributes:        attrs,
	}, nil
}

func switchPadding(pc int) int {
	return (4 - (pc+1)%4) % 4
}

func insnSize(insn *Instruction, index uint16, pc int) int {
	switch {
	case insn.Wide:
		return 2 + len(insn.Operand)
	case insn.Switch != nil:
		if insn.Opcode == OpTableswitch {
			return 1 + switchPadding(pc) + 12 + 4*len(insn.Switch.Targets)
		}
		return 1 + switchPadding(pc) + 8 + 8*len(insn.Switch.Targets)
	case insn.Ref != nil:
		if insn.Opcode == OpInvokeinterface {
			return 5
		}
		return 3
	case insn.Class != "":
		return 3
	case insn.Literal != "" && insn.Operand == nil:
		if index > 0xFF {
			return 3
		}
		return 2
	case insn.Opcode == OpGotoW || insn.Opcode == OpJsrW:
		return 5
	case IsJumpInsn(insn.Opcode):
		return 3
	}
	return 1 + len(insn.Operand)
}

func appendU16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

func appendI32(b []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(v))
}

func appendInsn(code []byte, insn *Instruction, index uint16, pc int, l *labels) ([]byte, error) {
	switch {
	case insn.Wide:
		code = append(code, OpWide, insn.Opcode)
		return append(code, insn.Operand...), nil

	case insn.Switch != nil:
		code = append(code, insn.Opcode)
		for i := 0; i < switchPadding(pc); i++ {
			code = append(code, 0)
		}
		rel := func(target int) (int32, error) {
			p, err := l.resolve(target)
			if err != nil {
				return 0, errors.Wrapf(err, "relocating switch at pc=%d", pc)
			}
			return int32(p - pc), nil
		}
		def, err := rel(insn.Switch.Default)
		if err != nil {
			return nil, err
		}
		code = appendI32(code, def)
		if insn.Opcode == OpTableswitch {
			code = appendI32(code, insn.Switch.Low)
			code = appendI32(code, insn.Switch.High)
		} else {
			code = appendI32(code, int32(len(insn.Switch.Targets)))
		}
		for i, t := range insn.Switch.Targets {
			off, err := rel(t)
			if err != nil {
				return nil, err
			}
			if insn.Opcode == OpLookupswitch {
				code = appendI32(code, insn.Switch.Keys[i])
			}
			code = appendI32(code, off)
		}
		return code, nil

	case insn.Ref != nil:
		code = append(code, insn.Opcode)
		code = appendU16(code, index)
		if insn.Opcode == OpInvokeinterface {
			slots, err := ArgumentSlots(insn.Ref.Descriptor)
			if err != nil {
				return nil, errors.Wrapf(err, "sizing invokeinterface %s.%s", insn.Ref.Owner, insn.Ref.Name)
			}
			code = append(code, byte(slots+1), 0)
		}
		return code, nil

	case insn.Class != "":
		code = append(code, insn.Opcode)
		return appendU16(code, index), nil

	case insn.Literal != "" && insn.Operand == nil:
		if index > 0xFF {
			code = append(code, OpLdcW)
			return appendU16(code, index), nil
		}
		return append(code, OpLdc, byte(index)), nil

	case insn.Opcode == OpGotoW || insn.Opcode == OpJsrW:
		p, err := l.resolve(insn.Target)
		if err != nil {
			return nil, errors.Wrapf(err, "relocating branch at pc=%d", pc)
		}
		code = append(code, insn.Opcode)
		return appendI32(code, int32(p-pc)), nil

	case IsJumpInsn(insn.Opcode):
		p, err := l.resolve(insn.Target)
		if err != nil {
			return nil, errors.Wrapf(err, "relocating branch at pc=%d", pc)
		}
		rel := p - pc
		if rel < math.MinInt16 || rel > math.MaxInt16 {
			return nil, errors.Wrapf(ErrBranchOverflow, "opcode 0x%02X at pc=%d jumps %d bytes", insn.Opcode, pc, rel)
		}
		code = append(code, insn.Opcode)
		return appendU16(code, uint16(int16(rel))), nil
	}

	code = append(code, insn.Opcode)
	return append(code, insn.Operand...), nil
}
