package classfile

import (
	"github.com/cockroachdb/errors"
)

// Builder is the terminal stage of a pipeline: it assembles the visited
// declarations into a ClassFile.
//
// Raw attributes and raw instruction operands carry constant pool indices,
// so a Builder for a rewritten class must be seeded with that class's pool.
type Builder struct {
	pool *Pool
	cf   ClassFile
}

var _ ClassVisitor = (*Builder)(nil)

// NewBuilder creates a builder on top of an existing constant pool, or a
// fresh pool when entries is nil.
func NewBuilder(entries []ConstantPoolEntry) *Builder {
	return &Builder{pool: NewPool(entries)}
}

// Pool exposes the builder's constant pool.
func (b *Builder) Pool() *Pool {
	return b.pool
}

func (b *Builder) VisitHeader(h *Header) error {
	this, err := b.pool.Class(h.Name)
	if err != nil {
		return err
	}
	var super uint16
	if h.Super != "" {
		if super, err = b.pool.Class(h.Super); err != nil {
			return err
		}
	}
	interfaces := make([]uint16, len(h.Interfaces))
	for i, name := range h.Interfaces {
		if interfaces[i], err = b.pool.Class(name); err != nil {
			return err
		}
	}

	attrs, err := b.memberAttributes(h.Signature, h.Attributes)
	if err != nil {
		return err
	}
	anns, err := annotationAttributes(b.pool, h.Annotations)
	if err != nil {
		return errors.Wrapf(err, "encoding annotations of %s", h.Name)
	}

	b.cf.MinorVersion = h.MinorVersion
	b.cf.MajorVersion = h.MajorVersion
	b.cf.AccessFlags = h.Access
	b.cf.ThisClass = this
	b.cf.SuperClass = super
	b.cf.Interfaces = interfaces
	b.cf.Attributes = append(attrs, anns...)
	return nil
}

// memberAttributes prepends a Signature attribute to raw attributes.
func (b *Builder) memberAttributes(signature string, raw []AttributeInfo) ([]AttributeInfo, error) {
	if signature == "" {
		return cloneAttributes(raw), nil
	}
	sig, err := b.pool.Utf8(signature)
	if err != nil {
		return nil, err
	}
	attrs := []AttributeInfo{{Name: "Signature", Data: appendU16(nil, sig)}}
	return append(attrs, raw...), nil
}

func (b *Builder) VisitField(f *Field) error {
	attrs, err := b.memberAttributes(f.Signature, f.Attributes)
	if err != nil {
		return err
	}
	anns, err := annotationAttributes(b.pool, f.Annotations)
	if err != nil {
		return errors.Wrapf(err, "encoding annotations of field %s", f.Name)
	}
	b.cf.Fields = append(b.cf.Fields, FieldInfo{
		AccessFlags: f.Access,
		Name:        f.Name,
		Descriptor:  f.Descriptor,
		Attributes:  append(attrs, anns...),
	})
	return nil
}

func (b *Builder) VisitMethod(m *Method) (MethodVisitor, error) {
	return &methodBuilder{b: b, m: m}, nil
}

func (b *Builder) VisitEnd() error {
	return nil
}

// ClassFile returns the assembled class.
func (b *Builder) ClassFile() *ClassFile {
	cf := b.cf
	cf.ConstantPool = b.pool.Entries()
	return &cf
}

// Bytes encodes the assembled class.
func (b *Builder) Bytes() ([]byte, error) {
	return Encode(b.ClassFile())
}

type methodBuilder struct {
	b     *Builder
	m     *Method
	insns []Instruction
}

func (mb *methodBuilder) VisitInstruction(insn Instruction) error {
	if mb.m.Code == nil {
		return errors.AssertionFailedf("instruction for method %s%s without code", mb.m.Name, mb.m.Descriptor)
	}
	mb.insns = append(mb.insns, insn)
	return nil
}

func (mb *methodBuilder) VisitEnd() error {
	m := mb.m
	attrs, err := mb.b.memberAttributes(m.Signature, m.Attributes)
	if err != nil {
		return err
	}
	anns, err := annotationAttributes(mb.b.pool, m.Annotations)
	if err != nil {
		return errors.Wrapf(err, "encoding annotations of method %s", m.Name)
	}
	info := MethodInfo{
		AccessFlags: m.Access,
		Name:        m.Name,
		Descriptor:  m.Descriptor,
		Attributes:  append(attrs, anns...),
	}
	if m.Code != nil {
		if info.Code, err = EncodeCode(mb.b.pool, m.Code, mb.insns); err != nil {
			return errors.Wrapf(err, "encoding code of %s%s", m.Name, m.Descriptor)
		}
	}
	mb.b.cf.Methods = append(mb.b.cf.Methods, info)
	return nil
}
