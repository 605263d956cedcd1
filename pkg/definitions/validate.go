package definitions

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/FukkitMC/gloom/pkg/classfile"
)

// ErrInvalidDefinition marks every descriptor validation failure.
var ErrInvalidDefinition = errors.New("invalid definition")

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidDefinition, format, args...)
}

// validInternalName reports whether name looks like a slash-separated
// class name.
func validInternalName(name string) bool {
	if name == "" || strings.ContainsAny(name, ".;[") {
		return false
	}
	return !strings.HasPrefix(name, "/") && !strings.HasSuffix(name, "/") && !strings.Contains(name, "//")
}

func validateClass(spec *ClassSpec) error {
	if !validInternalName(spec.Type) {
		return invalid("class name %q", spec.Type)
	}
	for _, itf := range spec.InjectInterfaces {
		if !validInternalName(itf) {
			return invalid("class %s: injected interface %q", spec.Type, itf)
		}
	}

	for _, f := range spec.PublicizedFields {
		if err := validateMember(spec.Type, "publicized field", f, classfile.ValidFieldDescriptor); err != nil {
			return err
		}
	}
	for _, m := range spec.PublicizedMethods {
		if err := validateMember(spec.Type, "publicized method", m, classfile.ValidMethodDescriptor); err != nil {
			return err
		}
		if m.Name == "<clinit>" {
			return invalid("class %s: static initializer cannot be publicized", spec.Type)
		}
	}
	for _, f := range spec.MutableFields {
		if err := validateMember(spec.Type, "mutable field", f, classfile.ValidFieldDescriptor); err != nil {
			return err
		}
	}

	names := make(map[string]bool, len(spec.SyntheticFields))
	for _, f := range spec.SyntheticFields {
		if err := validateSyntheticField(spec.Type, f); err != nil {
			return err
		}
		if names[f.Name] {
			return invalid("class %s: synthetic field %s declared more than once", spec.Type, f.Name)
		}
		names[f.Name] = true
	}

	methods := make(map[nameDesc]bool, len(spec.SyntheticMethods))
	for _, m := range spec.SyntheticMethods {
		if err := validateSyntheticMethod(spec.Type, m); err != nil {
			return err
		}
		key := nameDesc{m.Name, m.Descriptor}
		if methods[key] {
			return invalid("class %s: synthetic method %s%s declared more than once", spec.Type, m.Name, m.Descriptor)
		}
		methods[key] = true
	}
	return nil
}

func validateMember(owner, kind string, m Member, validDesc func(string) bool) error {
	if m.Owner != owner {
		return invalid("class %s: %s %s is owned by %s", owner, kind, m.Name, m.Owner)
	}
	if m.Name == "" {
		return invalid("class %s: %s without a name", owner, kind)
	}
	if !validDesc(m.Descriptor) {
		return invalid("class %s: %s %s has descriptor %q", owner, kind, m.Name, m.Descriptor)
	}
	return nil
}

func validateSyntheticField(owner string, f SyntheticField) error {
	if f.Name == "" {
		return invalid("class %s: synthetic field without a name", owner)
	}
	if !classfile.ValidFieldDescriptor(f.Type) {
		return invalid("class %s: synthetic field %s has type %q", owner, f.Name, f.Type)
	}

	if g := f.Getter; g != nil {
		if err := validateAccessor(owner, f, "getter", g); err != nil {
			return err
		}
	}
	if s := f.Setter; s != nil {
		if err := validateAccessor(owner, f, "setter", s); err != nil {
			return err
		}
		if f.Access&classfile.AccFinal != 0 {
			return invalid("class %s: final synthetic field %s cannot have a setter", owner, f.Name)
		}
		if s.Access&classfile.AccFinal != 0 {
			return invalid("class %s: setter %s of synthetic field %s is final", owner, s.Name, f.Name)
		}
	}
	return nil
}

func validateAccessor(owner string, f SyntheticField, kind string, a *Accessor) error {
	if a.Name == "" {
		return invalid("class %s: %s of synthetic field %s without a name", owner, kind, f.Name)
	}
	if !classfile.ValidFieldDescriptor(a.Type) {
		return invalid("class %s: %s %s has type %q", owner, kind, a.Name, a.Type)
	}
	if a.Type != f.Type {
		return invalid("class %s: %s %s has type %s but synthetic field %s is %s", owner, kind, a.Name, a.Type, f.Name, f.Type)
	}
	if a.IsStatic() != f.IsStatic() {
		return invalid("class %s: %s %s and synthetic field %s differ in static-ness", owner, kind, a.Name, f.Name)
	}
	return nil
}

func validateSyntheticMethod(owner string, m SyntheticMethod) error {
	if m.Name == "" {
		return invalid("class %s: synthetic method without a name", owner)
	}
	if m.Name == "<init>" || m.Name == "<clinit>" {
		return invalid("class %s: synthetic method cannot be named %s", owner, m.Name)
	}
	if !classfile.ValidMethodDescriptor(m.Descriptor) {
		return invalid("class %s: synthetic method %s has descriptor %q", owner, m.Name, m.Descriptor)
	}
	if !classfile.IsInvokeInsn(m.Opcode) {
		return invalid("class %s: synthetic method %s%s has invoke opcode %d", owner, m.Name, m.Descriptor, m.Opcode)
	}

	r := m.Redirect
	if !validInternalName(r.Owner) || r.Name == "" || !classfile.ValidMethodDescriptor(r.Descriptor) {
		return invalid("class %s: synthetic method %s%s redirects to %s", owner, m.Name, m.Descriptor, r)
	}
	return nil
}
