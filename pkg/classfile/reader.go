package classfile

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Accept drives v with the declaration stream of a parsed class: the
// header, every field, every method with its instructions, then the end.
func Accept(cf *ClassFile, v ClassVisitor) error {
	h, err := readHeader(cf)
	if err != nil {
		return err
	}
	if err := v.VisitHeader(h); err != nil {
		return err
	}

	for i := range cf.Fields {
		f := &cf.Fields[i]
		if err := v.VisitField(&Field{
			Access:     f.AccessFlags,
			Name:       f.Name,
			Descriptor: f.Descriptor,
			Attributes: cloneAttributes(f.Attributes),
		}); err != nil {
			return err
		}
	}

	for i := range cf.Methods {
		if err := acceptMethod(cf, &cf.Methods[i], v); err != nil {
			return errors.Wrapf(err, "method %s%s", cf.Methods[i].Name, cf.Methods[i].Descriptor)
		}
	}

	return v.VisitEnd()
}

func readHeader(cf *ClassFile) (*Header, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, errors.Wrap(err, "resolving this_class")
	}
	interfaces, err := cf.InterfaceNames()
	if err != nil {
		return nil, errors.Wrap(err, "resolving interfaces")
	}
	h := &Header{
		MinorVersion: cf.MinorVersion,
		MajorVersion: cf.MajorVersion,
		Access:       cf.AccessFlags,
		Name:         name,
		Super:        cf.SuperClassName(),
		Interfaces:   interfaces,
	}
	for _, attr := range cf.Attributes {
		if attr.Name == "Signature" && len(attr.Data) == 2 {
			if h.Signature, err = GetUtf8(cf.ConstantPool, binary.BigEndian.Uint16(attr.Data)); err != nil {
				return nil, errors.Wrap(err, "resolving class signature")
			}
			continue
		}
		h.Attributes = append(h.Attributes, attr)
	}
	return h, nil
}

func acceptMethod(cf *ClassFile, m *MethodInfo, v ClassVisitor) error {
	method := &Method{
		Access:     m.AccessFlags,
		Name:       m.Name,
		Descriptor: m.Descriptor,
	}
	for _, attr := range m.Attributes {
		if attr.Name != "Code" {
			method.Attributes = append(method.Attributes, attr)
		}
	}

	var insns []Instruction
	if m.Code != nil {
		var err error
		if insns, err = DecodeInstructions(cf.ConstantPool, m.Code.Code); err != nil {
			return err
		}
		method.Code = &CodeInfo{
			MaxStack:   m.Code.MaxStack,
			MaxLocals:  m.Code.MaxLocals,
			Length:     len(m.Code.Code),
			Handlers:   append([]ExceptionHandler(nil), m.Code.ExceptionHandlers...),
			Attributes: cloneAttributes(m.Code.Attributes),
		}
	}
	return EmitMethod(v, method, insns)
}

func cloneAttributes(attrs []AttributeInfo) []AttributeInfo {
	if attrs == nil {
		return nil
	}
	return append([]AttributeInfo(nil), attrs...)
}
