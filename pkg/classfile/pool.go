package classfile

import (
	"github.com/cockroachdb/errors"
)

// ErrPoolOverflow is returned when interning would exceed the 65535 slot
// limit of the constant pool.
var ErrPoolOverflow = errors.New("constant pool overflow")

const maxPoolSlots = 0xFFFF

type refKey struct {
	tag  uint8
	a, b uint16
}

// Pool interns constants on top of an existing constant pool. Existing
// entries are reused by value and new entries are appended, so every index
// of the original pool stays valid.
type Pool struct {
	entries  []ConstantPoolEntry
	utf8s    map[string]uint16
	refs     map[refKey]uint16
	integers map[int32]uint16
}

// NewPool wraps a 1-indexed constant pool. A nil or empty pool starts a
// fresh one.
func NewPool(entries []ConstantPoolEntry) *Pool {
	p := &Pool{
		utf8s:    make(map[string]uint16),
		refs:     make(map[refKey]uint16),
		integers: make(map[int32]uint16),
	}
	if len(entries) == 0 {
		p.entries = []ConstantPoolEntry{nil}
		return p
	}
	p.entries = make([]ConstantPoolEntry, len(entries))
	copy(p.entries, entries)

	for i, e := range p.entries {
		idx := uint16(i)
		switch c := e.(type) {
		case *ConstantUtf8:
			if _, ok := p.utf8s[c.Value]; !ok {
				p.utf8s[c.Value] = idx
			}
		case *ConstantInteger:
			if _, ok := p.integers[c.Value]; !ok {
				p.integers[c.Value] = idx
			}
		case *ConstantClass:
			p.remember(refKey{TagClass, c.NameIndex, 0}, idx)
		case *ConstantString:
			p.remember(refKey{TagString, c.StringIndex, 0}, idx)
		case *ConstantNameAndType:
			p.remember(refKey{TagNameAndType, c.NameIndex, c.DescriptorIndex}, idx)
		case *ConstantFieldref:
			p.remember(refKey{TagFieldref, c.ClassIndex, c.NameAndTypeIndex}, idx)
		case *ConstantMethodref:
			p.remember(refKey{TagMethodref, c.ClassIndex, c.NameAndTypeIndex}, idx)
		case *ConstantInterfaceMethodref:
			p.remember(refKey{TagInterfaceMethodref, c.ClassIndex, c.NameAndTypeIndex}, idx)
		}
	}
	return p
}

func (p *Pool) remember(k refKey, idx uint16) {
	if _, ok := p.refs[k]; !ok {
		p.refs[k] = idx
	}
}

// Entries returns the interned pool, 1-indexed.
func (p *Pool) Entries() []ConstantPoolEntry {
	return p.entries
}

// Len returns constant_pool_count for the current pool.
func (p *Pool) Len() int {
	return len(p.entries)
}

func (p *Pool) add(e ConstantPoolEntry) (uint16, error) {
	if len(p.entries) >= maxPoolSlots {
		return 0, errors.Wrapf(ErrPoolOverflow, "adding constant with tag %d", e.Tag())
	}
	p.entries = append(p.entries, e)
	return uint16(len(p.entries) - 1), nil
}

func (p *Pool) ref(k refKey, build func() ConstantPoolEntry) (uint16, error) {
	if idx, ok := p.refs[k]; ok {
		return idx, nil
	}
	idx, err := p.add(build())
	if err != nil {
		return 0, err
	}
	p.refs[k] = idx
	return idx, nil
}

// Utf8 interns a CONSTANT_Utf8.
func (p *Pool) Utf8(s string) (uint16, error) {
	if idx, ok := p.utf8s[s]; ok {
		return idx, nil
	}
	idx, err := p.add(&ConstantUtf8{Value: s})
	if err != nil {
		return 0, err
	}
	p.utf8s[s] = idx
	return idx, nil
}

// Integer interns a CONSTANT_Integer.
func (p *Pool) Integer(v int32) (uint16, error) {
	if idx, ok := p.integers[v]; ok {
		return idx, nil
	}
	idx, err := p.add(&ConstantInteger{Value: v})
	if err != nil {
		return 0, err
	}
	p.integers[v] = idx
	return idx, nil
}

// Class interns a CONSTANT_Class for an internal name.
func (p *Pool) Class(name string) (uint16, error) {
	n, err := p.Utf8(name)
	if err != nil {
		return 0, err
	}
	return p.ref(refKey{TagClass, n, 0}, func() ConstantPoolEntry {
		return &ConstantClass{NameIndex: n}
	})
}

// String interns a CONSTANT_String.
func (p *Pool) String(s string) (uint16, error) {
	n, err := p.Utf8(s)
	if err != nil {
		return 0, err
	}
	return p.ref(refKey{TagString, n, 0}, func() ConstantPoolEntry {
		return &ConstantString{StringIndex: n}
	})
}

// NameAndType interns a CONSTANT_NameAndType.
func (p *Pool) NameAndType(name, descriptor string) (uint16, error) {
	n, err := p.Utf8(name)
	if err != nil {
		return 0, err
	}
	d, err := p.Utf8(descriptor)
	if err != nil {
		return 0, err
	}
	return p.ref(refKey{TagNameAndType, n, d}, func() ConstantPoolEntry {
		return &ConstantNameAndType{NameIndex: n, DescriptorIndex: d}
	})
}

// Fieldref interns a CONSTANT_Fieldref.
func (p *Pool) Fieldref(owner, name, descriptor string) (uint16, error) {
	return p.memberref(TagFieldref, owner, name, descriptor)
}

// Methodref interns a CONSTANT_Methodref, or a CONSTANT_InterfaceMethodref
// when itf is set.
func (p *Pool) Methodref(owner, name, descriptor string, itf bool) (uint16, error) {
	if itf {
		return p.memberref(TagInterfaceMethodref, owner, name, descriptor)
	}
	return p.memberref(TagMethodref, owner, name, descriptor)
}

// Memberref interns the constant matching an instruction's reference.
func (p *Pool) Memberref(op uint8, ref MemberRef) (uint16, error) {
	if IsFieldInsn(op) {
		return p.Fieldref(ref.Owner, ref.Name, ref.Descriptor)
	}
	return p.Methodref(ref.Owner, ref.Name, ref.Descriptor, ref.Interface || op == OpInvokeinterface)
}

func (p *Pool) memberref(tag uint8, owner, name, descriptor string) (uint16, error) {
	c, err := p.Class(owner)
	if err != nil {
		return 0, err
	}
	nat, err := p.NameAndType(name, descriptor)
	if err != nil {
		return 0, err
	}
	return p.ref(refKey{tag, c, nat}, func() ConstantPoolEntry {
		switch tag {
		case TagFieldref:
			return &ConstantFieldref{ClassIndex: c, NameAndTypeIndex: nat}
		case TagMethodref:
			return &ConstantMethodref{ClassIndex: c, NameAndTypeIndex: nat}
		default:
			return &ConstantInterfaceMethodref{ClassIndex: c, NameAndTypeIndex: nat}
		}
	})
}
