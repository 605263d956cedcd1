package classfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

const classMagic = 0xCAFEBABE

// ErrMalformed is returned for class files that cannot be decoded.
var ErrMalformed = errors.New("malformed class file")

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// ParseBytes parses an in-memory class file.
func ParseBytes(data []byte) (*ClassFile, error) {
	return Parse(bytes.NewReader(data))
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(r io.Reader) (*ClassFile, error) {
	cf := &ClassFile{}

	// Magic number
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, errors.Wrap(err, "reading magic number")
	}
	if magic != classMagic {
		return nil, errors.Wrapf(ErrMalformed, "invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	// Version
	if err := binary.Read(r, binary.BigEndian, &cf.MinorVersion); err != nil {
		return nil, errors.Wrap(err, "reading minor version")
	}
	if err := binary.Read(r, binary.BigEndian, &cf.MajorVersion); err != nil {
		return nil, errors.Wrap(err, "reading major version")
	}

	// Constant pool
	var cpCount uint16
	if err := binary.Read(r, binary.BigEndian, &cpCount); err != nil {
		return nil, errors.Wrap(err, "reading constant pool count")
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, errors.Wrap(err, "parsing constant pool")
	}
	cf.ConstantPool = pool

	// Access flags, this_class, super_class
	if err := binary.Read(r, binary.BigEndian, &cf.AccessFlags); err != nil {
		return nil, errors.Wrap(err, "reading access flags")
	}
	if err := binary.Read(r, binary.BigEndian, &cf.ThisClass); err != nil {
		return nil, errors.Wrap(err, "reading this_class")
	}
	if err := binary.Read(r, binary.BigEndian, &cf.SuperClass); err != nil {
		return nil, errors.Wrap(err, "reading super_class")
	}

	// Interfaces
	var interfacesCount uint16
	if err := binary.Read(r, binary.BigEndian, &interfacesCount); err != nil {
		return nil, errors.Wrap(err, "reading interfaces count")
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := uint16(0); i < interfacesCount; i++ {
		if err := binary.Read(r, binary.BigEndian, &cf.Interfaces[i]); err != nil {
			return nil, errors.Wrapf(err, "reading interface %d", i)
		}
	}

	// Fields
	var fieldsCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldsCount); err != nil {
		return nil, errors.Wrap(err, "reading fields count")
	}
	cf.Fields, err = parseFields(r, cf.ConstantPool, fieldsCount)
	if err != nil {
		return nil, errors.Wrap(err, "parsing fields")
	}

	// Methods
	var methodsCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodsCount); err != nil {
		return nil, errors.Wrap(err, "reading methods count")
	}
	cf.Methods, err = parseMethods(r, cf.ConstantPool, methodsCount)
	if err != nil {
		return nil, errors.Wrap(err, "parsing methods")
	}

	// Class-level attributes are kept raw
	var attrCount uint16
	if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
		return nil, errors.Wrap(err, "reading class attributes count")
	}
	cf.Attributes, err = parseAttributeInfos(r, cf.ConstantPool, attrCount)
	if err != nil {
		return nil, errors.Wrap(err, "parsing class attributes")
	}

	return cf, nil
}

func parseMember(r io.Reader, pool []ConstantPoolEntry, kind string, i uint16) (uint16, string, string, []AttributeInfo, error) {
	var accessFlags, nameIndex, descIndex, attrCount uint16
	if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
		return 0, "", "", nil, errors.Wrapf(err, "reading %s %d access flags", kind, i)
	}
	if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
		return 0, "", "", nil, errors.Wrapf(err, "reading %s %d name index", kind, i)
	}
	if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
		return 0, "", "", nil, errors.Wrapf(err, "reading %s %d descriptor index", kind, i)
	}
	if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
		return 0, "", "", nil, errors.Wrapf(err, "reading %s %d attributes count", kind, i)
	}

	name, err := GetUtf8(pool, nameIndex)
	if err != nil {
		return 0, "", "", nil, errors.Wrapf(err, "resolving %s %d name", kind, i)
	}
	desc, err := GetUtf8(pool, descIndex)
	if err != nil {
		return 0, "", "", nil, errors.Wrapf(err, "resolving %s %d descriptor", kind, i)
	}

	attrs, err := parseAttributeInfos(r, pool, attrCount)
	if err != nil {
		return 0, "", "", nil, errors.Wrapf(err, "parsing %s %d attributes", kind, i)
	}
	return accessFlags, name, desc, attrs, nil
}

func parseFields(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]FieldInfo, error) {
	fields := make([]FieldInfo, count)
	for i := uint16(0); i < count; i++ {
		access, name, desc, attrs, err := parseMember(r, pool, "field", i)
		if err != nil {
			return nil, err
		}
		fields[i] = FieldInfo{
			AccessFlags: access,
			Name:        name,
			Descriptor:  desc,
			Attributes:  attrs,
		}
	}
	return fields, nil
}

func parseMethods(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]MethodInfo, error) {
	methods := make([]MethodInfo, count)
	for i := uint16(0); i < count; i++ {
		access, name, desc, attrs, err := parseMember(r, pool, "method", i)
		if err != nil {
			return nil, err
		}

		m := MethodInfo{
			AccessFlags: access,
			Name:        name,
			Descriptor:  desc,
			Attributes:  attrs,
		}

		// Extract Code attribute; the raw entry stays to keep its position
		for _, attr := range attrs {
			if attr.Name != "Code" {
				continue
			}
			code, err := parseCodeAttribute(pool, attr.Data)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing Code attribute for method %s%s", name, desc)
			}
			m.Code = code
			break
		}

		methods[i] = m
	}
	return methods, nil
}

func parseAttributeInfos(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]AttributeInfo, error) {
	attrs := make([]AttributeInfo, count)
	for i := uint16(0); i < count; i++ {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, errors.Wrapf(err, "reading attribute %d name index", i)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, errors.Wrapf(err, "reading attribute %d length", i)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, errors.Wrapf(err, "reading attribute %d data", i)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving attribute %d name", i)
		}

		attrs[i] = AttributeInfo{Name: name, Data: data}
	}
	return attrs, nil
}

func parseCodeAttribute(pool []ConstantPoolEntry, data []byte) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, errors.Wrapf(ErrMalformed, "Code attribute too short: %d bytes", len(data))
	}

	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLength := binary.BigEndian.Uint32(data[4:8])

	if len(data) < 8+int(codeLength)+2 {
		return nil, errors.Wrapf(ErrMalformed, "Code attribute data too short for code_length %d", codeLength)
	}

	code := make([]byte, codeLength)
	copy(code, data[8:8+codeLength])

	// Parse exception table
	offset := 8 + int(codeLength)
	exTableLen := binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2
	if offset+8*int(exTableLen)+2 > len(data) {
		return nil, errors.Wrapf(ErrMalformed, "exception table truncated (%d entries)", exTableLen)
	}
	handlers := make([]ExceptionHandler, exTableLen)
	for i := range handlers {
		handlers[i] = ExceptionHandler{
			StartPC:   binary.BigEndian.Uint16(data[offset : offset+2]),
			EndPC:     binary.BigEndian.Uint16(data[offset+2 : offset+4]),
			HandlerPC: binary.BigEndian.Uint16(data[offset+4 : offset+6]),
			CatchType: binary.BigEndian.Uint16(data[offset+6 : offset+8]),
		}
		offset += 8
	}

	attrCount := binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2
	attrs, err := parseAttributeInfos(bytes.NewReader(data[offset:]), pool, attrCount)
	if err != nil {
		return nil, errors.Wrap(err, "parsing Code attributes")
	}

	return &CodeAttribute{
		MaxStack:          maxStack,
		MaxLocals:         maxLocals,
		Code:              code,
		ExceptionHandlers: handlers,
		Attributes:        attrs,
	}, nil
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindField finds a field by name and descriptor.
func (cf *ClassFile) FindField(name, descriptor string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name && cf.Fields[i].Descriptor == descriptor {
			return &cf.Fields[i]
		}
	}
	return nil
}
