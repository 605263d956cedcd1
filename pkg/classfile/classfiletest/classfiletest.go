// Package classfiletest builds and records class files for tests.
package classfiletest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FukkitMC/gloom/pkg/classfile"
)

// Class describes a class to assemble.
type Class struct {
	Access     uint16
	Name       string
	Super      string
	Interfaces []string
	Signature  string
	Fields     []classfile.Field
	Methods    []Method
}

// Method describes a method to assemble. A nil Code makes the method
// abstract or native.
type Method struct {
	Access     uint16
	Name       string
	Descriptor string
	MaxStack   uint16
	MaxLocals  uint16
	// Length is the end label of Handlers and debug tables in Attributes.
	Length     int
	Handlers   []classfile.ExceptionHandler
	Attributes []classfile.AttributeInfo
	Code       []classfile.Instruction
}

// Build assembles c into class file bytes.
func Build(t testing.TB, c Class) []byte {
	t.Helper()

	super := c.Super
	if super == "" {
		super = "java/lang/Object"
	}
	access := c.Access
	if access == 0 {
		access = classfile.AccPublic | classfile.AccSuper
	}

	b := classfile.NewBuilder(nil)
	require.NoError(t, b.VisitHeader(&classfile.Header{
		MajorVersion: classfile.Java8,
		Access:       access,
		Name:         c.Name,
		Super:        super,
		Interfaces:   c.Interfaces,
		Signature:    c.Signature,
	}))
	for i := range c.Fields {
		require.NoError(t, b.VisitField(&c.Fields[i]))
	}
	for _, m := range c.Methods {
		method := &classfile.Method{
			Access:     m.Access,
			Name:       m.Name,
			Descriptor: m.Descriptor,
		}
		if m.Code != nil {
			method.Code = &classfile.CodeInfo{
				MaxStack:   m.MaxStack,
				MaxLocals:  m.MaxLocals,
				Length:     m.Length,
				Handlers:   m.Handlers,
				Attributes: m.Attributes,
			}
		}
		require.NoError(t, classfile.EmitMethod(b, method, m.Code))
	}
	require.NoError(t, b.VisitEnd())

	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

// Parse parses class file bytes.
func Parse(t testing.TB, data []byte) *classfile.ClassFile {
	t.Helper()
	cf, err := classfile.ParseBytes(data)
	require.NoError(t, err)
	return cf
}

// Record parses data and replays it into a Recorder.
func Record(t testing.TB, data []byte) *Recorder {
	t.Helper()
	r := &Recorder{}
	require.NoError(t, classfile.Accept(Parse(t, data), r))
	return r
}

// Recorder is a ClassVisitor that keeps everything it receives.
type Recorder struct {
	Header  *classfile.Header
	Fields  []*classfile.Field
	Methods []*RecordedMethod
	Ended   bool
}

// RecordedMethod is a method declaration with its body.
type RecordedMethod struct {
	*classfile.Method
	Instructions []classfile.Instruction
	Ended        bool
}

var _ classfile.ClassVisitor = (*Recorder)(nil)

func (r *Recorder) VisitHeader(h *classfile.Header) error {
	r.Header = h
	return nil
}

func (r *Recorder) VisitField(f *classfile.Field) error {
	r.Fields = append(r.Fields, f)
	return nil
}

func (r *Recorder) VisitMethod(m *classfile.Method) (classfile.MethodVisitor, error) {
	rm := &RecordedMethod{Method: m}
	r.Methods = append(r.Methods, rm)
	return rm, nil
}

func (r *Recorder) VisitEnd() error {
	r.Ended = true
	return nil
}

func (m *RecordedMethod) VisitInstruction(insn classfile.Instruction) error {
	m.Instructions = append(m.Instructions, insn)
	return nil
}

func (m *RecordedMethod) VisitEnd() error {
	m.Ended = true
	return nil
}

// Field returns the recorded field with the given name, or nil.
func (r *Recorder) Field(name string) *classfile.Field {
	for _, f := range r.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Method returns the recorded method with the given name and descriptor,
// or nil.
func (r *Recorder) Method(name, descriptor string) *RecordedMethod {
	for _, m := range r.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

// Refs returns the member references of the method's field and invoke
// instructions, in order.
func (m *RecordedMethod) Refs() []classfile.MemberRef {
	var refs []classfile.MemberRef
	for _, insn := range m.Instructions {
		if insn.Ref != nil {
			refs = append(refs, *insn.Ref)
		}
	}
	return refs
}

// Opcodes returns the opcodes of the method body.
func (m *RecordedMethod) Opcodes() []uint8 {
	ops := make([]uint8, len(m.Instructions))
	for i, insn := range m.Instructions {
		ops[i] = insn.Opcode
	}
	return ops
}
