package classfile

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// Encode serializes a ClassFile. The body is written first because names of
// members and attributes are interned on the way; the constant pool goes
// out last, in front of it.
func Encode(cf *ClassFile) ([]byte, error) {
	pool := NewPool(cf.ConstantPool)

	body := appendU16(nil, cf.AccessFlags)
	body = appendU16(body, cf.ThisClass)
	body = appendU16(body, cf.SuperClass)
	body = appendU16(body, uint16(len(cf.Interfaces)))
	for _, idx := range cf.Interfaces {
		body = appendU16(body, idx)
	}

	var err error
	body = appendU16(body, uint16(len(cf.Fields)))
	for i := range cf.Fields {
		f := &cf.Fields[i]
		if body, err = appendMember(pool, body, f.AccessFlags, f.Name, f.Descriptor, f.Attributes, nil); err != nil {
			return nil, errors.Wrapf(err, "encoding field %s", f.Name)
		}
	}

	body = appendU16(body, uint16(len(cf.Methods)))
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if body, err = appendMember(pool, body, m.AccessFlags, m.Name, m.Descriptor, m.Attributes, m.Code); err != nil {
			return nil, errors.Wrapf(err, "encoding method %s%s", m.Name, m.Descriptor)
		}
	}

	if body, err = appendAttributes(pool, body, cf.Attributes); err != nil {
		return nil, errors.Wrap(err, "encoding class attributes")
	}

	out := binary.BigEndian.AppendUint32(nil, classMagic)
	out = appendU16(out, cf.MinorVersion)
	out = appendU16(out, cf.MajorVersion)
	if out, err = appendConstantPool(out, pool.Entries()); err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

func appendMember(pool *Pool, b []byte, access uint16, name, desc string, attrs []AttributeInfo, code *CodeAttribute) ([]byte, error) {
	n, err := pool.Utf8(name)
	if err != nil {
		return nil, err
	}
	d, err := pool.Utf8(desc)
	if err != nil {
		return nil, err
	}
	b = appendU16(b, access)
	b = appendU16(b, n)
	b = appendU16(b, d)

	// The Code attribute keeps its position when the raw list still has it.
	all := attrs
	if code != nil {
		data, err := encodeCodeAttribute(pool, code)
		if err != nil {
			return nil, err
		}
		all = make([]AttributeInfo, 0, len(attrs)+1)
		placed := false
		for _, a := range attrs {
			if a.Name == "Code" {
				if !placed {
					all = append(all, AttributeInfo{Name: "Code", Data: data})
					placed = true
				}
				continue
			}
			all = append(all, a)
		}
		if !placed {
			all = append([]AttributeInfo{{Name: "Code", Data: data}}, all...)
		}
	}
	return appendAttributes(pool, b, all)
}

func encodeCodeAttribute(pool *Pool, code *CodeAttribute) ([]byte, error) {
	b := appendU16(nil, code.MaxStack)
	b = appendU16(b, code.MaxLocals)
	b = appendI32(b, int32(len(code.Code)))
	b = append(b, code.Code...)
	b = appendU16(b, uint16(len(code.ExceptionHandlers)))
	for _, h := range code.ExceptionHandlers {
		b = appendU16(b, h.StartPC)
		b = appendU16(b, h.EndPC)
		b = appendU16(b, h.HandlerPC)
		b = appendU16(b, h.CatchType)
	}
	return appendAttributes(pool, b, code.Attributes)
}

func appendAttributes(pool *Pool, b []byte, attrs []AttributeInfo) ([]byte, error) {
	if len(attrs) > 0xFFFF {
		return nil, errors.Wrapf(ErrMalformed, "%d attributes", len(attrs))
	}
	b = appendU16(b, uint16(len(attrs)))
	for _, a := range attrs {
		n, err := pool.Utf8(a.Name)
		if err != nil {
			return nil, err
		}
		b = appendU16(b, n)
		b = appendI32(b, int32(len(a.Data)))
		b = append(b, a.Data...)
	}
	return b, nil
}

func appendConstantPool(b []byte, entries []ConstantPoolEntry) ([]byte, error) {
	if len(entries) > maxPoolSlots {
		return nil, errors.Wrapf(ErrPoolOverflow, "%d entries", len(entries))
	}
	b = appendU16(b, uint16(len(entries)))
	for i, e := range entries {
		if e == nil {
			continue // index 0 and the second slot of long/double
		}
		b = append(b, e.Tag())
		switch c := e.(type) {
		case *ConstantUtf8:
			data := encodeModifiedUTF8(c.Value)
			if len(data) > 0xFFFF {
				return nil, errors.Wrapf(ErrMalformed, "Utf8 constant %d is %d bytes long", i, len(data))
			}
			b = appendU16(b, uint16(len(data)))
			b = append(b, data...)
		case *ConstantInteger:
			b = appendI32(b, c.Value)
		case *ConstantFloat:
			b = appendI32(b, int32(math.Float32bits(c.Value)))
		case *ConstantLong:
			b = appendI32(b, int32(c.Value>>32))
			b = appendI32(b, int32(c.Value))
		case *ConstantDouble:
			bits := math.Float64bits(c.Value)
			b = appendI32(b, int32(bits>>32))
			b = appendI32(b, int32(bits))
		case *ConstantClass:
			b = appendU16(b, c.NameIndex)
		case *ConstantString:
			b = appendU16(b, c.StringIndex)
		case *ConstantFieldref:
			b = appendU16(appendU16(b, c.ClassIndex), c.NameAndTypeIndex)
		case *ConstantMethodref:
			b = appendU16(appendU16(b, c.ClassIndex), c.NameAndTypeIndex)
		case *ConstantInterfaceMethodref:
			b = appendU16(appendU16(b, c.ClassIndex), c.NameAndTypeIndex)
		case *ConstantNameAndType:
			b = appendU16(appendU16(b, c.NameIndex), c.DescriptorIndex)
		case *ConstantOpaque:
			b = append(b, c.Data...)
		default:
			return nil, errors.AssertionFailedf("unexpected constant %T at index %d", e, i)
		}
	}
	return b, nil
}
