package inject

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/FukkitMC/gloom/pkg/classfile"
	"github.com/FukkitMC/gloom/pkg/definitions"
)

// injectField declares f and the bodies of its getter and setter.
func (v *Visitor) injectField(f definitions.SyntheticField) error {
	if err := v.next.VisitField(&classfile.Field{
		Access:     f.Access,
		Name:       f.Name,
		Descriptor: f.Type,
		Signature:  f.Signature,
	}); err != nil {
		return err
	}
	v.log.Debug("injected field", zap.String("name", f.Name), zap.String("descriptor", f.Type))

	if g := f.Getter; g != nil {
		if g.IsStatic() != f.IsStatic() {
			return errors.AssertionFailedf("getter %s of %s differs in static-ness", g.Name, f.Name)
		}
		if err := v.emit(g.Access, g.Name, g.GetterDescriptor(), g.Signature, getterBody(v.owner, f, g)); err != nil {
			return err
		}
	}
	if s := f.Setter; s != nil {
		if s.IsStatic() != f.IsStatic() {
			return errors.AssertionFailedf("setter %s of %s differs in static-ness", s.Name, f.Name)
		}
		if err := v.emit(s.Access, s.Name, s.SetterDescriptor(), s.Signature, setterBody(v.owner, f, s)); err != nil {
			return err
		}
	}
	return nil
}

type body struct {
	insns     []classfile.Instruction
	maxStack  int
	maxLocals int
}

// getterBody loads the field, through the receiver for instance fields,
// and returns it.
func getterBody(owner string, f definitions.SyntheticField, g *definitions.Accessor) body {
	size := classfile.TypeSize(f.Type)
	if f.IsStatic() {
		return body{
			insns: []classfile.Instruction{
				classfile.FieldInsn(classfile.OpGetstatic, owner, f.Name, f.Type),
				classfile.Insn(classfile.ReturnOpcode(g.Type)),
			},
			maxStack: size,
		}
	}
	return body{
		insns: []classfile.Instruction{
			classfile.VarInsn(classfile.OpAload, 0),
			classfile.FieldInsn(classfile.OpGetfield, owner, f.Name, f.Type),
			classfile.Insn(classfile.ReturnOpcode(g.Type)),
		},
		maxStack:  max(size, 1),
		maxLocals: 1,
	}
}

// setterBody stores the single parameter into the field.
func setterBody(owner string, f definitions.SyntheticField, s *definitions.Accessor) body {
	size := classfile.TypeSize(s.Type)
	if f.IsStatic() {
		return body{
			insns: []classfile.Instruction{
				classfile.VarInsn(classfile.LoadOpcode(s.Type), 0),
				classfile.FieldInsn(classfile.OpPutstatic, owner, f.Name, f.Type),
				classfile.Insn(classfile.OpReturn),
			},
			maxStack:  size,
			maxLocals: size,
		}
	}
	return body{
		insns: []classfile.Instruction{
			classfile.VarInsn(classfile.OpAload, 0),
			classfile.VarInsn(classfile.LoadOpcode(s.Type), 1),
			classfile.FieldInsn(classfile.OpPutfield, owner, f.Name, f.Type),
			classfile.Insn(classfile.OpReturn),
		},
		maxStack:  1 + size,
		maxLocals: 1 + size,
	}
}

// injectMethod declares m with a body forwarding the receiver and every
// parameter to its redirect target.
func (v *Visitor) injectMethod(m definitions.SyntheticMethod) error {
	params, ret, err := classfile.ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return errors.NewAssertionErrorWithWrappedErrf(err, "synthetic method %s", m.Name)
	}

	var b body
	slot := 0
	if !m.IsStatic() {
		b.insns = append(b.insns, classfile.VarInsn(classfile.OpAload, 0))
		slot = 1
	}
	for _, p := range params {
		b.insns = append(b.insns, classfile.VarInsn(classfile.LoadOpcode(p), slot))
		slot += classfile.TypeSize(p)
	}
	r := m.Redirect
	b.insns = append(b.insns,
		classfile.MethodInsn(m.Opcode, r.Owner, r.Name, r.Descriptor, m.RedirectInterface()),
		classfile.Insn(classfile.ReturnOpcode(ret)))
	b.maxStack = max(slot, classfile.TypeSize(ret))
	b.maxLocals = slot

	if err := v.emit(m.Access, m.Name, m.Descriptor, m.Signature, b); err != nil {
		return err
	}
	v.log.Debug("injected method",
		zap.String("name", m.Name),
		zap.String("descriptor", m.Descriptor),
		zap.Stringer("redirect", r))
	return nil
}

func (v *Visitor) emit(access uint16, name, descriptor, signature string, b body) error {
	m := &classfile.Method{
		Access:     access,
		Name:       name,
		Descriptor: descriptor,
		Signature:  signature,
	}
	if m.Access&(classfile.AccAbstract|classfile.AccNative) == 0 {
		m.Code = &classfile.CodeInfo{
			MaxStack:  uint16(b.maxStack),
			MaxLocals: uint16(b.maxLocals),
		}
	} else {
		b.insns = nil
	}
	return classfile.EmitMethod(v.next, m, b.insns)
}
