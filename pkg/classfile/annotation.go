package classfile

import (
	"github.com/cockroachdb/errors"
)

// Annotation attribute names
const (
	AttrVisibleAnnotations   = "RuntimeVisibleAnnotations"
	AttrInvisibleAnnotations = "RuntimeInvisibleAnnotations"
)

// Annotation is one annotation on a class, field or method.
type Annotation struct {
	// Type is the annotation interface as a type descriptor.
	Type     string
	Elements []Element
	// Invisible annotations are recorded in RuntimeInvisibleAnnotations.
	Invisible bool
}

// Element is a name/value pair of an annotation.
type Element struct {
	Name  string
	Value ElementValue
}

// ElementValue is an annotation element value. Tag selects the populated
// field: 's' String, 'c' String (type descriptor), 'Z' Bool, 'B' 'C' 'I' 'S'
// Int, 'e' String (enum type) and Const, '[' Array, '@' Nested.
type ElementValue struct {
	Tag    byte
	String string
	Const  string
	Bool   bool
	Int    int32
	Array  []ElementValue
	Nested *Annotation
}

// StringValue is a string element value.
func StringValue(s string) ElementValue { return ElementValue{Tag: 's', String: s} }

// BoolValue is a boolean element value.
func BoolValue(b bool) ElementValue { return ElementValue{Tag: 'Z', Bool: b} }

// ClassValue is a class literal element value.
func ClassValue(desc string) ElementValue { return ElementValue{Tag: 'c', String: desc} }

// ArrayValue is an array element value.
func ArrayValue(values ...ElementValue) ElementValue {
	return ElementValue{Tag: '[', Array: values}
}

// Value returns the element with the given name.
func (a *Annotation) Value(name string) (ElementValue, bool) {
	for _, e := range a.Elements {
		if e.Name == name {
			return e.Value, true
		}
	}
	return ElementValue{}, false
}

// annotationAttributes encodes annotations into their visible and
// invisible attributes, omitting empty ones.
func annotationAttributes(pool *Pool, anns []Annotation) ([]AttributeInfo, error) {
	var visible, invisible []Annotation
	for _, a := range anns {
		if a.Invisible {
			invisible = append(invisible, a)
		} else {
			visible = append(visible, a)
		}
	}
	var attrs []AttributeInfo
	for _, group := range []struct {
		name string
		anns []Annotation
	}{{AttrVisibleAnnotations, visible}, {AttrInvisibleAnnotations, invisible}} {
		if len(group.anns) == 0 {
			continue
		}
		data := appendU16(nil, uint16(len(group.anns)))
		for i := range group.anns {
			var err error
			if data, err = appendAnnotation(pool, data, &group.anns[i]); err != nil {
				return nil, err
			}
		}
		attrs = append(attrs, AttributeInfo{Name: group.name, Data: data})
	}
	return attrs, nil
}

func appendAnnotation(pool *Pool, b []byte, a *Annotation) ([]byte, error) {
	typ, err := pool.Utf8(a.Type)
	if err != nil {
		return nil, err
	}
	b = appendU16(b, typ)
	b = appendU16(b, uint16(len(a.Elements)))
	for _, e := range a.Elements {
		name, err := pool.Utf8(e.Name)
		if err != nil {
			return nil, err
		}
		b = appendU16(b, name)
		if b, err = appendElementValue(pool, b, e.Value); err != nil {
			return nil, errors.Wrapf(err, "encoding %s.%s", a.Type, e.Name)
		}
	}
	return b, nil
}

func appendElementValue(pool *Pool, b []byte, v ElementValue) ([]byte, error) {
	b = append(b, v.Tag)
	var idx uint16
	var err error
	switch v.Tag {
	case 's', 'c':
		idx, err = pool.Utf8(v.String)
	case 'Z':
		var n int32
		if v.Bool {
			n = 1
		}
		idx, err = pool.Integer(n)
	case 'B', 'C', 'I', 'S':
		idx, err = pool.Integer(v.Int)
	case 'e':
		var c uint16
		if idx, err = pool.Utf8(v.String); err != nil {
			return nil, err
		}
		if c, err = pool.Utf8(v.Const); err != nil {
			return nil, err
		}
		return appendU16(appendU16(b, idx), c), nil
	case '[':
		b = appendU16(b, uint16(len(v.Array)))
		for _, e := range v.Array {
			if b, err = appendElementValue(pool, b, e); err != nil {
				return nil, err
			}
		}
		return b, nil
	case '@':
		if v.Nested == nil {
			return nil, errors.AssertionFailedf("nested annotation value without annotation")
		}
		return appendAnnotation(pool, b, v.Nested)
	default:
		return nil, errors.Newf("unsupported element value tag %q", v.Tag)
	}
	if err != nil {
		return nil, err
	}
	return appendU16(b, idx), nil
}

// DecodeAnnotations decodes a RuntimeVisibleAnnotations or
// RuntimeInvisibleAnnotations attribute.
func DecodeAnnotations(pool []ConstantPoolEntry, attr *AttributeInfo) ([]Annotation, error) {
	r := &byteReader{data: attr.Data}
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	anns := make([]Annotation, n)
	for i := range anns {
		if err := decodeAnnotation(pool, r, &anns[i]); err != nil {
			return nil, errors.Wrapf(err, "decoding annotation %d of %s", i, attr.Name)
		}
		anns[i].Invisible = attr.Name == AttrInvisibleAnnotations
	}
	return anns, nil
}

func decodeAnnotation(pool []ConstantPoolEntry, r *byteReader, a *Annotation) error {
	typ, err := r.u16()
	if err != nil {
		return err
	}
	if a.Type, err = GetUtf8(pool, typ); err != nil {
		return err
	}
	n, err := r.u16()
	if err != nil {
		return err
	}
	a.Elements = make([]Element, n)
	for i := range a.Elements {
		name, err := r.u16()
		if err != nil {
			return err
		}
		if a.Elements[i].Name, err = GetUtf8(pool, name); err != nil {
			return err
		}
		if a.Elements[i].Value, err = decodeElementValue(pool, r); err != nil {
			return err
		}
	}
	return nil
}

func decodeElementValue(pool []ConstantPoolEntry, r *byteReader) (ElementValue, error) {
	tag, err := r.u8()
	if err != nil {
		return ElementValue{}, err
	}
	v := ElementValue{Tag: tag}
	switch tag {
	case 's', 'c':
		idx, err := r.u16()
		if err != nil {
			return v, err
		}
		v.String, err = GetUtf8(pool, idx)
		return v, err
	case 'Z', 'B', 'C', 'I', 'S':
		idx, err := r.u16()
		if err != nil {
			return v, err
		}
		if int(idx) >= len(pool) {
			return v, errors.Wrapf(ErrMalformed, "invalid constant pool index %d", idx)
		}
		c, ok := pool[idx].(*ConstantInteger)
		if !ok {
			return v, errors.Wrapf(ErrMalformed, "element value %q does not reference an Integer", tag)
		}
		v.Int = c.Value
		v.Bool = c.Value != 0
		return v, nil
	case 'e':
		typ, err := r.u16()
		if err != nil {
			return v, err
		}
		c, err := r.u16()
		if err != nil {
			return v, err
		}
		if v.String, err = GetUtf8(pool, typ); err != nil {
			return v, err
		}
		v.Const, err = GetUtf8(pool, c)
		return v, err
	case '[':
		n, err := r.u16()
		if err != nil {
			return v, err
		}
		v.Array = make([]ElementValue, n)
		for i := range v.Array {
			if v.Array[i], err = decodeElementValue(pool, r); err != nil {
				return v, err
			}
		}
		return v, nil
	case '@':
		v.Nested = &Annotation{}
		return v, decodeAnnotation(pool, r, v.Nested)
	}
	return v, errors.Wrapf(ErrMalformed, "unsupported element value tag %q", tag)
}
