package classfile

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidDescriptor is returned for malformed type or method descriptors.
var ErrInvalidDescriptor = errors.New("invalid descriptor")

// fieldTypeEnd returns the index just past the field type starting at i,
// or -1 if there is none.
func fieldTypeEnd(desc string, i int) int {
	for i < len(desc) && desc[i] == '[' {
		i++
	}
	if i >= len(desc) {
		return -1
	}
	switch desc[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end <= 1 {
			return -1
		}
		name := desc[i+1 : i+end]
		if strings.ContainsAny(name, ".[") {
			return -1
		}
		return i + end + 1
	}
	return -1
}

// ValidFieldDescriptor reports whether desc is a single field type.
func ValidFieldDescriptor(desc string) bool {
	return fieldTypeEnd(desc, 0) == len(desc)
}

// ValidMethodDescriptor reports whether desc is a method descriptor.
func ValidMethodDescriptor(desc string) bool {
	_, _, err := ParseMethodDescriptor(desc)
	return err == nil
}

// ParseMethodDescriptor splits a method descriptor into its parameter types
// and return type.
func ParseMethodDescriptor(desc string) (params []string, ret string, err error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, "", errors.Wrapf(ErrInvalidDescriptor, "method descriptor %q", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		end := fieldTypeEnd(desc, i)
		if end < 0 {
			return nil, "", errors.Wrapf(ErrInvalidDescriptor, "method descriptor %q: bad parameter at %d", desc, i)
		}
		params = append(params, desc[i:end])
		i = end
	}
	if i >= len(desc) {
		return nil, "", errors.Wrapf(ErrInvalidDescriptor, "method descriptor %q: missing ')'", desc)
	}
	ret = desc[i+1:]
	if ret != "V" && !ValidFieldDescriptor(ret) {
		return nil, "", errors.Wrapf(ErrInvalidDescriptor, "method descriptor %q: bad return type", desc)
	}
	return params, ret, nil
}

// TypeSize returns the number of local/stack slots a value of the type
// occupies: 2 for long and double, 0 for void, 1 otherwise.
func TypeSize(t string) int {
	switch t {
	case "J", "D":
		return 2
	case "V":
		return 0
	}
	return 1
}

// ArgumentSlots returns the slots taken by the parameters of a method
// descriptor, without the receiver.
func ArgumentSlots(desc string) (int, error) {
	params, _, err := ParseMethodDescriptor(desc)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range params {
		n += TypeSize(p)
	}
	return n, nil
}

// kindOffset orders value kinds the way the typed opcode families do:
// int, long, float, double, reference.
func kindOffset(t string) int {
	switch t {
	case "Z", "B", "C", "S", "I":
		return 0
	case "J":
		return 1
	case "F":
		return 2
	case "D":
		return 3
	}
	return 4
}

// LoadOpcode returns the xload opcode for a value of type t.
func LoadOpcode(t string) uint8 {
	return uint8(OpIload + kindOffset(t))
}

// StoreOpcode returns the xstore opcode for a value of type t.
func StoreOpcode(t string) uint8 {
	return uint8(OpIstore + kindOffset(t))
}

// ReturnOpcode returns the xreturn opcode for a return type, or return for
// void.
func ReturnOpcode(t string) uint8 {
	if t == "V" {
		return OpReturn
	}
	return uint8(OpIreturn + kindOffset(t))
}

// ObjectDescriptor wraps an internal name as an object type descriptor.
func ObjectDescriptor(name string) string {
	return "L" + name + ";"
}

// InternalName unwraps an object type descriptor. Other strings are
// returned as they are.
func InternalName(desc string) string {
	if len(desc) > 2 && desc[0] == 'L' && desc[len(desc)-1] == ';' {
		return desc[1 : len(desc)-1]
	}
	return desc
}
