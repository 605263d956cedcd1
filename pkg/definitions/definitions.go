// Package definitions holds the transformation descriptor model: which
// members of which classes are widened, made mutable, or added.
//
// A Definitions value is validated when it is built and is read-only
// afterwards, so it can be shared by any number of goroutines.
package definitions

import (
	"sort"

	"github.com/FukkitMC/gloom/pkg/classfile"
)

// Member identifies one field or method. Owner is an internal class name.
type Member struct {
	Owner      string
	Name       string
	Descriptor string
}

func (m Member) String() string {
	return m.Owner + "." + m.Name + ":" + m.Descriptor
}

// Accessor is the signature of a synthetic field's getter or setter. Type
// is the field type the accessor reads or writes.
type Accessor struct {
	Access    uint16
	Type      string
	Name      string
	Signature string
}

// IsStatic reports whether the accessor has the static bit.
func (a Accessor) IsStatic() bool {
	return a.Access&classfile.AccStatic != 0
}

// GetterDescriptor returns the method descriptor of a getter for Type.
func (a Accessor) GetterDescriptor() string {
	return "()" + a.Type
}

// SetterDescriptor returns the method descriptor of a setter for Type.
func (a Accessor) SetterDescriptor() string {
	return "(" + a.Type + ")V"
}

// SyntheticField is a field that only exists in the descriptor.
type SyntheticField struct {
	Name      string
	Type      string
	Access    uint16
	Signature string
	Getter    *Accessor
	Setter    *Accessor
}

// IsStatic reports whether the field has the static bit.
func (f SyntheticField) IsStatic() bool {
	return f.Access&classfile.AccStatic != 0
}

func (f SyntheticField) clone() SyntheticField {
	if f.Getter != nil {
		g := *f.Getter
		f.Getter = &g
	}
	if f.Setter != nil {
		s := *f.Setter
		f.Setter = &s
	}
	return f
}

// SyntheticMethod is a method that only exists in the descriptor. Calls to
// it go straight to Redirect using Opcode.
type SyntheticMethod struct {
	Opcode     uint8
	Name       string
	Descriptor string
	Access     uint16
	Signature  string
	Redirect   Member
	// Interface marks Redirect as an interface method. It is implied by
	// invokeinterface.
	Interface bool
}

// IsStatic reports whether the method has the static bit.
func (m SyntheticMethod) IsStatic() bool {
	return m.Access&classfile.AccStatic != 0
}

// RedirectInterface reports whether the redirect target must be referenced
// as an interface method.
func (m SyntheticMethod) RedirectInterface() bool {
	return m.Interface || m.Opcode == classfile.OpInvokeinterface
}

// ClassSpec is the plain form of a class definition, used to build one
// and to serialize it.
type ClassSpec struct {
	// Type is the internal name of the described class.
	Type              string
	InjectInterfaces  []string
	PublicizedFields  []Member
	PublicizedMethods []Member
	MutableFields     []Member
	SyntheticFields   []SyntheticField
	SyntheticMethods  []SyntheticMethod
}

type nameDesc struct {
	name, desc string
}

// ClassDefinition holds the transformation rules of one class.
type ClassDefinition struct {
	typ               string
	injectInterfaces  []string
	publicizedFields  map[Member]struct{}
	publicizedMethods map[Member]struct{}
	mutableFields     map[Member]struct{}
	syntheticFields   []SyntheticField
	syntheticMethods  []SyntheticMethod
	fieldsByName      map[string]int
	methodsByKey      map[nameDesc]int
}

// NewClassDefinition validates spec and builds a definition from it. Every
// failure wraps ErrInvalidDefinition.
func NewClassDefinition(spec ClassSpec) (*ClassDefinition, error) {
	if err := validateClass(&spec); err != nil {
		return nil, err
	}

	d := &ClassDefinition{
		typ:               spec.Type,
		injectInterfaces:  dedupe(spec.InjectInterfaces),
		publicizedFields:  memberSet(spec.PublicizedFields),
		publicizedMethods: memberSet(spec.PublicizedMethods),
		mutableFields:     memberSet(spec.MutableFields),
		fieldsByName:      make(map[string]int, len(spec.SyntheticFields)),
		methodsByKey:      make(map[nameDesc]int, len(spec.SyntheticMethods)),
	}

	for _, f := range spec.SyntheticFields {
		d.fieldsByName[f.Name] = len(d.syntheticFields)
		d.syntheticFields = append(d.syntheticFields, f.clone())
	}
	for _, m := range spec.SyntheticMethods {
		d.methodsByKey[nameDesc{m.Name, m.Descriptor}] = len(d.syntheticMethods)
		d.syntheticMethods = append(d.syntheticMethods, m)
	}
	return d, nil
}

func memberSet(members []Member) map[Member]struct{} {
	set := make(map[Member]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Type returns the internal name of the described class.
func (d *ClassDefinition) Type() string {
	return d.typ
}

// InjectInterfaces returns the interfaces to add to the class, in
// declaration order.
func (d *ClassDefinition) InjectInterfaces() []string {
	return append([]string(nil), d.injectInterfaces...)
}

// IsPublicizedField reports whether m is a publicized field.
func (d *ClassDefinition) IsPublicizedField(m Member) bool {
	_, ok := d.publicizedFields[m]
	return ok
}

// IsPublicizedMethod reports whether m is a publicized method.
func (d *ClassDefinition) IsPublicizedMethod(m Member) bool {
	_, ok := d.publicizedMethods[m]
	return ok
}

// IsMutableField reports whether m is a mutable field.
func (d *ClassDefinition) IsMutableField(m Member) bool {
	_, ok := d.mutableFields[m]
	return ok
}

// FieldAccess returns the access flags of field m after widening.
// Publicized fields become public; non-static mutable fields lose final.
// Static fields keep final, since callers may have inlined their values.
func (d *ClassDefinition) FieldAccess(m Member, flags uint16) uint16 {
	if d.IsPublicizedField(m) {
		flags = publicize(flags)
	}
	if flags&classfile.AccStatic == 0 && d.IsMutableField(m) {
		flags &^= classfile.AccFinal
	}
	return flags
}

// MethodAccess returns the access flags of method m after widening.
func (d *ClassDefinition) MethodAccess(m Member, flags uint16) uint16 {
	if d.IsPublicizedMethod(m) {
		flags = publicize(flags)
	}
	return flags
}

func publicize(flags uint16) uint16 {
	return flags&^(classfile.AccPrivate|classfile.AccProtected) | classfile.AccPublic
}

// SyntheticField returns the synthetic field with the given name and type.
func (d *ClassDefinition) SyntheticField(name, descriptor string) (SyntheticField, bool) {
	i, ok := d.fieldsByName[name]
	if !ok || d.syntheticFields[i].Type != descriptor {
		return SyntheticField{}, false
	}
	return d.syntheticFields[i].clone(), true
}

// SyntheticMethod returns the synthetic method with the given name and
// descriptor.
func (d *ClassDefinition) SyntheticMethod(name, descriptor string) (SyntheticMethod, bool) {
	i, ok := d.methodsByKey[nameDesc{name, descriptor}]
	if !ok {
		return SyntheticMethod{}, false
	}
	return d.syntheticMethods[i], true
}

// FindSyntheticGetter returns the synthetic field called name whose getter
// has the method descriptor descriptor.
func (d *ClassDefinition) FindSyntheticGetter(name, descriptor string) (SyntheticField, bool) {
	i, ok := d.fieldsByName[name]
	if !ok {
		return SyntheticField{}, false
	}
	f := d.syntheticFields[i]
	if f.Getter == nil || f.Getter.GetterDescriptor() != descriptor {
		return SyntheticField{}, false
	}
	return f.clone(), true
}

// FindSyntheticSetter returns the synthetic field called name whose setter
// has the method descriptor descriptor.
func (d *ClassDefinition) FindSyntheticSetter(name, descriptor string) (SyntheticField, bool) {
	i, ok := d.fieldsByName[name]
	if !ok {
		return SyntheticField{}, false
	}
	f := d.syntheticFields[i]
	if f.Setter == nil || f.Setter.SetterDescriptor() != descriptor {
		return SyntheticField{}, false
	}
	return f.clone(), true
}

// SyntheticFields returns the synthetic fields in declaration order.
func (d *ClassDefinition) SyntheticFields() []SyntheticField {
	out := make([]SyntheticField, len(d.syntheticFields))
	for i, f := range d.syntheticFields {
		out[i] = f.clone()
	}
	return out
}

// SyntheticMethods returns the synthetic methods in declaration order.
func (d *ClassDefinition) SyntheticMethods() []SyntheticMethod {
	return append([]SyntheticMethod(nil), d.syntheticMethods...)
}

// Spec returns a copy of the definition in plain form. Member sets are
// sorted; synthetic members keep declaration order.
func (d *ClassDefinition) Spec() ClassSpec {
	return ClassSpec{
		Type:              d.typ,
		InjectInterfaces:  d.InjectInterfaces(),
		PublicizedFields:  sortedMembers(d.publicizedFields),
		PublicizedMethods: sortedMembers(d.publicizedMethods),
		MutableFields:     sortedMembers(d.mutableFields),
		SyntheticFields:   d.SyntheticFields(),
		SyntheticMethods:  d.SyntheticMethods(),
	}
}

func sortedMembers(set map[Member]struct{}) []Member {
	if len(set) == 0 {
		return nil
	}
	out := make([]Member, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Descriptor < out[j].Descriptor
	})
	return out
}
