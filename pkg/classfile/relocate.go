package classfile

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// relocateAttributes rewrites the offset-bearing attributes nested in a Code
// attribute. Attributes are returned untouched when no label moved.
func relocateAttributes(attrs []AttributeInfo, l *labels) ([]AttributeInfo, error) {
	if !l.moved {
		return attrs, nil
	}
	out := make([]AttributeInfo, 0, len(attrs))
	for _, attr := range attrs {
		var data []byte
		var err error
		switch attr.Name {
		case "LineNumberTable":
			data, err = relocateLineNumbers(attr.Data, l)
		case "LocalVariableTable", "LocalVariableTypeTable":
			data, err = relocateLocalVariables(attr.Data, l)
		case "StackMapTable":
			data, err = relocateStackMap(attr.Data, l)
		case "RuntimeVisibleTypeAnnotations", "RuntimeInvisibleTypeAnnotations":
			// Targets inside code cannot be relocated without decoding every
			// target_info; drop them.
			continue
		default:
			data = attr.Data
		}
		if err != nil {
			return nil, errors.Wrapf(err, "relocating %s", attr.Name)
		}
		out = append(out, AttributeInfo{Name: attr.Name, Data: data})
	}
	return out, nil
}

func relocateLineNumbers(data []byte, l *labels) ([]byte, error) {
	if len(data) < 2 {
		return nil, errors.Wrap(ErrMalformed, "LineNumberTable too short")
	}
	n := int(binary.BigEndian.Uint16(data))
	if len(data) < 2+4*n {
		return nil, errors.Wrapf(ErrMalformed, "LineNumberTable truncated (%d entries)", n)
	}
	out := make([]byte, len(data))
	copy(out, data)
	for i := 0; i < n; i++ {
		p := 2 + 4*i
		start, err := l.resolve(int(binary.BigEndian.Uint16(data[p:])))
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint16(out[p:], uint16(start))
	}
	return out, nil
}

func relocateLocalVariables(data []byte, l *labels) ([]byte, error) {
	if len(data) < 2 {
		return nil, errors.Wrap(ErrMalformed, "local variable table too short")
	}
	n := int(binary.BigEndian.Uint16(data))
	if len(data) < 2+10*n {
		return nil, errors.Wrapf(ErrMalformed, "local variable table truncated (%d entries)", n)
	}
	out := make([]byte, len(data))
	copy(out, data)
	for i := 0; i < n; i++ {
		p := 2 + 10*i
		from := int(binary.BigEndian.Uint16(data[p:]))
		length := int(binary.BigEndian.Uint16(data[p+2:]))
		start, err := l.resolve(from)
		if err != nil {
			return nil, err
		}
		end, err := l.resolve(from + length)
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint16(out[p:], uint16(start))
		binary.BigEndian.PutUint16(out[p+2:], uint16(end-start))
	}
	return out, nil
}

// Stack map frame types
const (
	frameSameMax        = 63
	frameSameLocals1Max = 127
	frameSameLocals1Ext = 247
	frameChopMin        = 248
	frameChopMax        = 250
	frameSameExt        = 251
	frameAppendMin      = 252
	frameAppendMax      = 254
	frameFull           = 255

	verifyObject        = 7
	verifyUninitialized = 8
)

type verificationType struct {
	tag  uint8
	data uint16
}

type stackMapFrame struct {
	kind   uint8 // 0 same, 64 same_locals_1, chop/append/full as encoded
	offset int
	locals []verificationType
	stack  []verificationType
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) u8() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, errors.Wrap(ErrMalformed, "attribute truncated")
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) u16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, errors.Wrap(ErrMalformed, "attribute truncated")
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *byteReader) types(n int) ([]verificationType, error) {
	out := make([]verificationType, n)
	for i := range out {
		tag, err := r.u8()
		if err != nil {
			return nil, err
		}
		out[i].tag = tag
		if tag == verifyObject || tag == verifyUninitialized {
			if out[i].data, err = r.u16(); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func parseStackMap(data []byte) ([]stackMapFrame, error) {
	r := &byteReader{data: data}
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	frames := make([]stackMapFrame, count)
	offset := -1
	for i := range frames {
		typ, err := r.u8()
		if err != nil {
			return nil, err
		}
		f := &frames[i]
		var delta uint16
		switch {
		case typ <= frameSameMax:
			f.kind, delta = 0, uint16(typ)
		case typ <= frameSameLocals1Max:
			f.kind, delta = 64, uint16(typ-64)
			if f.stack, err = r.types(1); err != nil {
				return nil, err
			}
		case typ < frameSameLocals1Ext:
			return nil, errors.Wrapf(ErrMalformed, "reserved stack map frame type %d", typ)
		default:
			if delta, err = r.u16(); err != nil {
				return nil, err
			}
			switch {
			case typ == frameSameLocals1Ext:
				f.kind = 64
				if f.stack, err = r.types(1); err != nil {
					return nil, err
				}
			case typ == frameSameExt:
				f.kind = 0
			case typ <= frameChopMax:
				f.kind = typ
			case typ <= frameAppendMax:
				f.kind = typ
				if f.locals, err = r.types(int(typ) - frameSameExt); err != nil {
					return nil, err
				}
			default:
				f.kind = frameFull
				n, err := r.u16()
				if err != nil {
					return nil, err
				}
				if f.locals, err = r.types(int(n)); err != nil {
					return nil, err
				}
				if n, err = r.u16(); err != nil {
					return nil, err
				}
				if f.stack, err = r.types(int(n)); err != nil {
					return nil, err
				}
			}
		}
		offset += int(delta) + 1
		f.offset = offset
	}
	return frames, nil
}

func relocateStackMap(data []byte, l *labels) ([]byte, error) {
	frames, err := parseStackMap(data)
	if err != nil {
		return nil, err
	}

	remap := func(types []verificationType) error {
		for i := range types {
			if types[i].tag != verifyUninitialized {
				continue
			}
			p, err := l.resolve(int(types[i].data))
			if err != nil {
				return errors.Wrap(err, "relocating uninitialized type")
			}
			types[i].data = uint16(p)
		}
		return nil
	}
	appendTypes := func(out []byte, types []verificationType) []byte {
		for _, t := range types {
			out = append(out, t.tag)
			if t.tag == verifyObject || t.tag == verifyUninitialized {
				out = appendU16(out, t.data)
			}
		}
		return out
	}

	out := appendU16(make([]byte, 0, len(data)), uint16(len(frames)))
	prev := -1
	for _, f := range frames {
		p, err := l.resolve(f.offset)
		if err != nil {
			return nil, err
		}
		if err := remap(f.locals); err != nil {
			return nil, err
		}
		if err := remap(f.stack); err != nil {
			return nil, err
		}
		delta := p - prev - 1
		if delta < 0 || delta > 0xFFFF {
			return nil, errors.Wrapf(ErrMalformed, "stack map frame at %d out of order", f.offset)
		}
		prev = p

		switch {
		case f.kind == 0 && delta <= frameSameMax:
			out = append(out, byte(delta))
		case f.kind == 0:
			out = append(out, frameSameExt)
			out = appendU16(out, uint16(delta))
		case f.kind == 64 && delta <= frameSameLocals1Max-64:
			out = append(out, byte(64+delta))
			out = appendTypes(out, f.stack)
		case f.kind == 64:
			out = append(out, frameSameLocals1Ext)
			out = appendU16(out, uint16(delta))
			out = appendTypes(out, f.stack)
		case f.kind == frameFull:
			out = append(out, frameFull)
			out = appendU16(out, uint16(delta))
			out = appendU16(out, uint16(len(f.locals)))
			out = appendTypes(out, f.locals)
			out = appendU16(out, uint16(len(f.stack)))
			out = appendTypes(out, f.stack)
		default: // chop, append
			out = append(out, f.kind)
			out = appendU16(out, uint16(delta))
			out = appendTypes(out, f.locals)
		}
	}
	return out, nil
}
