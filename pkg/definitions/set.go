package definitions

import (
	"sort"
)

// Definitions maps internal class names to their definitions. The zero
// value and nil are empty.
type Definitions struct {
	classes map[string]*ClassDefinition
}

// New builds a Definitions from a name-keyed map. Every key must equal the
// Type of its definition.
func New(classes map[string]*ClassDefinition) (*Definitions, error) {
	d := &Definitions{classes: make(map[string]*ClassDefinition, len(classes))}
	for name, def := range classes {
		if def == nil {
			return nil, invalid("class %s: missing definition", name)
		}
		if def.Type() != name {
			return nil, invalid("class %s: definition describes %s", name, def.Type())
		}
		d.classes[name] = def
	}
	return d, nil
}

// Of builds a Definitions from class specs. A class may appear only once.
func Of(specs ...ClassSpec) (*Definitions, error) {
	d := &Definitions{classes: make(map[string]*ClassDefinition, len(specs))}
	for _, spec := range specs {
		def, err := NewClassDefinition(spec)
		if err != nil {
			return nil, err
		}
		if _, dup := d.classes[def.Type()]; dup {
			return nil, invalid("class %s defined more than once", def.Type())
		}
		d.classes[def.Type()] = def
	}
	return d, nil
}

// Lookup returns the definition of the named class, or nil.
func (d *Definitions) Lookup(name string) *ClassDefinition {
	if d == nil {
		return nil
	}
	return d.classes[name]
}

// Len returns the number of defined classes.
func (d *Definitions) Len() int {
	if d == nil {
		return 0
	}
	return len(d.classes)
}

// Names returns the defined class names in sorted order.
func (d *Definitions) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.classes))
	for name := range d.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Classes returns the definitions sorted by class name.
func (d *Definitions) Classes() []*ClassDefinition {
	names := d.Names()
	out := make([]*ClassDefinition, len(names))
	for i, name := range names {
		out[i] = d.classes[name]
	}
	return out
}

// Merge returns a new Definitions holding d and every class of other. A
// class defined on both sides gets the union of both rule sets; the merged
// definition is validated again. Neither input changes.
func (d *Definitions) Merge(other *Definitions) (*Definitions, error) {
	merged := &Definitions{classes: make(map[string]*ClassDefinition, d.Len()+other.Len())}
	for _, def := range d.Classes() {
		merged.classes[def.Type()] = def
	}
	for _, def := range other.Classes() {
		existing, ok := merged.classes[def.Type()]
		if !ok {
			merged.classes[def.Type()] = def
			continue
		}
		union, err := NewClassDefinition(unionSpecs(existing.Spec(), def.Spec()))
		if err != nil {
			return nil, err
		}
		merged.classes[def.Type()] = union
	}
	return merged, nil
}

func unionSpecs(a, b ClassSpec) ClassSpec {
	a.InjectInterfaces = append(a.InjectInterfaces, b.InjectInterfaces...)
	a.PublicizedFields = append(a.PublicizedFields, b.PublicizedFields...)
	a.PublicizedMethods = append(a.PublicizedMethods, b.PublicizedMethods...)
	a.MutableFields = append(a.MutableFields, b.MutableFields...)

	for _, f := range b.SyntheticFields {
		if !containsField(a.SyntheticFields, f) {
			a.SyntheticFields = append(a.SyntheticFields, f)
		}
	}
	for _, m := range b.SyntheticMethods {
		if !containsMethod(a.SyntheticMethods, m) {
			a.SyntheticMethods = append(a.SyntheticMethods, m)
		}
	}
	return a
}

func containsField(fields []SyntheticField, f SyntheticField) bool {
	for _, g := range fields {
		if g.Name == f.Name && g.Type == f.Type && g.Access == f.Access &&
			g.Signature == f.Signature && equalAccessor(g.Getter, f.Getter) && equalAccessor(g.Setter, f.Setter) {
			return true
		}
	}
	return false
}

func equalAccessor(a, b *Accessor) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func containsMethod(methods []SyntheticMethod, m SyntheticMethod) bool {
	for _, n := range methods {
		if n == m {
			return true
		}
	}
	return false
}
