package illuminate

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/FukkitMC/gloom/pkg/classfile"
	"github.com/FukkitMC/gloom/pkg/definitions"
	"github.com/FukkitMC/gloom/pkg/emitter"
)

// stage holds what both method stages share.
type stage struct {
	v    *Visitor
	next classfile.MethodVisitor
	log  *zap.Logger
}

func (s *stage) VisitEnd() error {
	return s.next.VisitEnd()
}

// lookup resolves the declaring class of the member ref refers to and
// returns it with its definition, if it has one.
func (s *stage) lookup(ref *classfile.MemberRef, field bool) (string, *definitions.ClassDefinition, error) {
	resolve := s.v.il.resolver.ResolveMethod
	if field {
		resolve = s.v.il.resolver.ResolveField
	}
	owner, err := resolve(ref.Owner, ref.Name, ref.Descriptor)
	if err != nil {
		return "", nil, errors.Wrapf(err, "resolving %s.%s%s", ref.Owner, ref.Name, ref.Descriptor)
	}
	return owner, s.v.il.defs.Lookup(owner), nil
}

// call allocates a name in ns on the emitter of owner and forwards an
// invoke of it on surface in place of insn.
func (s *stage) call(insn classfile.Instruction, e emitter.Emitter, ns emitter.Namespace, key emitter.Key,
	op uint8, surface, descriptor string, itf bool) error {
	name, err := e.Allocate(ns, key)
	if err != nil {
		return errors.Wrapf(err, "allocating %s name for %s.%s%s", ns, e.Owner(), key.Name, key.Descriptor)
	}
	return s.redirect(insn, op, surface, name, descriptor, itf, ns.String())
}

func (s *stage) redirect(insn classfile.Instruction, op uint8, owner, name, descriptor string, itf bool, kind string) error {
	out := classfile.MethodInsn(op, owner, name, descriptor, itf)
	out.Offset = insn.Offset
	s.v.rewrites++
	s.log.Debug("rewrote reference",
		zap.String("owner", insn.Ref.Owner),
		zap.String("name", insn.Ref.Name),
		zap.String("descriptor", insn.Ref.Descriptor),
		zap.String("kind", kind),
		zap.String("surface", owner),
		zap.String("generated", name))
	return s.next.VisitInstruction(out)
}

// accessStage redirects references to publicized members through the
// accessor surface, and writes to mutable fields through the interface.
type accessStage struct {
	stage
}

func (s *accessStage) VisitInstruction(insn classfile.Instruction) error {
	switch {
	case insn.Ref == nil:
	case classfile.IsFieldInsn(insn.Opcode):
		return s.field(insn)
	case classfile.IsInvokeInsn(insn.Opcode) && insn.Ref.Name != "<init>":
		return s.method(insn)
	}
	return s.next.VisitInstruction(insn)
}

func (s *accessStage) field(insn classfile.Instruction) error {
	ref := insn.Ref
	owner, def, err := s.lookup(ref, true)
	if err != nil {
		return err
	}
	if def == nil {
		return s.next.VisitInstruction(insn)
	}

	static := classfile.IsStaticFieldInsn(insn.Opcode)
	put := classfile.IsPutInsn(insn.Opcode)
	member := definitions.Member{Owner: def.Type(), Name: ref.Name, Descriptor: ref.Descriptor}
	publicize := def.IsPublicizedField(member)
	mutate := put && !static && def.IsMutableField(member)
	if !publicize && !mutate {
		return s.next.VisitInstruction(insn)
	}

	e := s.v.il.source.Emitter(owner)
	key := emitter.Key{Name: ref.Name, Descriptor: ref.Descriptor}
	if mutate {
		return s.call(insn, e, emitter.InterfaceMutableSet, key,
			classfile.OpInvokeinterface, e.Interface(), setterDescriptor(ref.Descriptor), true)
	}

	descriptor := getterDescriptor(ref.Descriptor)
	if put {
		descriptor = setterDescriptor(ref.Descriptor)
	}
	switch {
	case static && put:
		return s.call(insn, e, emitter.StaticSet, key, classfile.OpInvokestatic, e.Accessor(), descriptor, true)
	case static:
		return s.call(insn, e, emitter.StaticGet, key, classfile.OpInvokestatic, e.Accessor(), descriptor, true)
	case put:
		return s.call(insn, e, emitter.InstanceSet, key, classfile.OpInvokeinterface, e.Accessor(), descriptor, true)
	default:
		return s.call(insn, e, emitter.InstanceGet, key, classfile.OpInvokeinterface, e.Accessor(), descriptor, true)
	}
}

func (s *accessStage) method(insn classfile.Instruction) error {
	ref := insn.Ref
	owner, def, err := s.lookup(ref, false)
	if err != nil {
		return err
	}
	if def == nil || !def.IsPublicizedMethod(definitions.Member{Owner: def.Type(), Name: ref.Name, Descriptor: ref.Descriptor}) {
		return s.next.VisitInstruction(insn)
	}

	e := s.v.il.source.Emitter(owner)
	key := emitter.Key{Name: ref.Name, Descriptor: ref.Descriptor}
	if insn.Opcode == classfile.OpInvokestatic {
		return s.call(insn, e, emitter.StaticInvoke, key, classfile.OpInvokestatic, e.Accessor(), ref.Descriptor, true)
	}
	return s.call(insn, e, emitter.InstanceInvoke, key, classfile.OpInvokeinterface, e.Accessor(), ref.Descriptor, true)
}

// syntheticStage redirects references to synthetic members. Fields go
// through the holder or interface surface; synthetic methods go straight
// to their redirect target.
type syntheticStage struct {
	stage
}

func (s *syntheticStage) VisitInstruction(insn classfile.Instruction) error {
	switch {
	case insn.Ref == nil:
	case classfile.IsFieldInsn(insn.Opcode):
		return s.field(insn)
	case classfile.IsInvokeInsn(insn.Opcode) && insn.Ref.Name != "<init>":
		return s.method(insn)
	}
	return s.next.VisitInstruction(insn)
}

func (s *syntheticStage) field(insn classfile.Instruction) error {
	ref := insn.Ref
	// Synthetic members are not declared yet, so the resolver cannot see
	// them. The literal owner is checked first.
	if done, err := s.fieldOn(insn, ref.Owner, s.v.il.defs.Lookup(ref.Owner)); done || err != nil {
		return err
	}
	owner, def, err := s.lookup(ref, true)
	if err != nil {
		return err
	}
	if owner != ref.Owner {
		if done, err := s.fieldOn(insn, owner, def); done || err != nil {
			return err
		}
	}
	return s.next.VisitInstruction(insn)
}

// fieldOn redirects insn when def of owner has the synthetic field it
// refers to, reporting whether it did.
func (s *syntheticStage) fieldOn(insn classfile.Instruction, owner string, def *definitions.ClassDefinition) (bool, error) {
	if def == nil {
		return false, nil
	}
	f, ok := def.SyntheticField(insn.Ref.Name, insn.Ref.Descriptor)
	if !ok {
		return false, nil
	}
	descriptor := getterDescriptor(f.Type)
	if classfile.IsPutInsn(insn.Opcode) {
		descriptor = setterDescriptor(f.Type)
	}
	return true, s.accessor(insn, owner, f, classfile.IsStaticFieldInsn(insn.Opcode), classfile.IsPutInsn(insn.Opcode), descriptor)
}

// accessor forwards a call to the generated getter or setter of f.
func (s *syntheticStage) accessor(insn classfile.Instruction, owner string, f definitions.SyntheticField,
	static, put bool, descriptor string) error {
	e := s.v.il.source.Emitter(owner)
	key := emitter.Key{Name: f.Name, Descriptor: f.Type}
	switch {
	case static && put:
		return s.call(insn, e, emitter.HolderSet, key, classfile.OpInvokestatic, e.Holder(), descriptor, false)
	case static:
		return s.call(insn, e, emitter.HolderGet, key, classfile.OpInvokestatic, e.Holder(), descriptor, false)
	case put:
		return s.call(insn, e, emitter.InterfaceSet, key, classfile.OpInvokeinterface, e.Interface(), descriptor, true)
	default:
		return s.call(insn, e, emitter.InterfaceGet, key, classfile.OpInvokeinterface, e.Interface(), descriptor, true)
	}
}

func (s *syntheticStage) method(insn classfile.Instruction) error {
	ref := insn.Ref
	if done, err := s.methodOn(insn, ref.Owner, s.v.il.defs.Lookup(ref.Owner)); done || err != nil {
		return err
	}
	owner, def, err := s.lookup(ref, false)
	if err != nil {
		return err
	}
	if owner != ref.Owner {
		if done, err := s.methodOn(insn, owner, def); done || err != nil {
			return err
		}
	}
	return s.next.VisitInstruction(insn)
}

// methodOn redirects insn when def of owner has a synthetic method or a
// synthetic field accessor matching it, reporting whether it did.
func (s *syntheticStage) methodOn(insn classfile.Instruction, owner string, def *definitions.ClassDefinition) (bool, error) {
	if def == nil {
		return false, nil
	}
	ref := insn.Ref
	if m, ok := def.SyntheticMethod(ref.Name, ref.Descriptor); ok {
		r := m.Redirect
		return true, s.redirect(insn, m.Opcode, r.Owner, r.Name, r.Descriptor, m.RedirectInterface(), "redirect")
	}

	params, ret, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return false, errors.Wrapf(err, "invocation of %s.%s", ref.Owner, ref.Name)
	}
	static := insn.Opcode == classfile.OpInvokestatic

	var (
		f   definitions.SyntheticField
		ok  bool
		put bool
	)
	switch {
	case len(params) == 1 && ret == "V":
		f, ok = def.FindSyntheticSetter(ref.Name, ref.Descriptor)
		put = true
	case len(params) == 0 && ret != "V":
		f, ok = def.FindSyntheticGetter(ref.Name, ref.Descriptor)
	}
	if !ok || f.IsStatic() != static {
		return false, nil
	}
	return true, s.accessor(insn, owner, f, static, put, ref.Descriptor)
}

func getterDescriptor(t string) string {
	return "()" + t
}

func setterDescriptor(t string) string {
	return "(" + t + ")V"
}
