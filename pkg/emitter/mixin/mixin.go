// Package mixin is an emitter backend for the SpongePowered Mixin
// framework. For every owner class it generates up to four classes: a
// holder for static synthetic fields, an interface for instance synthetic
// fields and mutable setters, a mixin implementing that interface on the
// owner, and an accessor mixin for publicized members.
package mixin

import (
	"strings"

	"github.com/FukkitMC/gloom/pkg/classfile"
	"github.com/FukkitMC/gloom/pkg/emitter"
)

// Annotation types understood by Mixin.
const (
	AnnotationMixin    = "Lorg/spongepowered/asm/mixin/Mixin;"
	AnnotationShadow   = "Lorg/spongepowered/asm/mixin/Shadow;"
	AnnotationMutable  = "Lorg/spongepowered/asm/mixin/Mutable;"
	AnnotationFinal    = "Lorg/spongepowered/asm/mixin/Final;"
	AnnotationAccessor = "Lorg/spongepowered/asm/mixin/gen/Accessor;"
	AnnotationInvoker  = "Lorg/spongepowered/asm/mixin/gen/Invoker;"
)

// Mapper renames what generated classes refer to on the owner. Use it
// when the owner is obfuscated at runtime.
type Mapper interface {
	// Field names the shadow field of a mutable setter.
	Field(name, descriptor string) string
	// FieldTarget is the @Accessor target of a field of owner.
	FieldTarget(owner string, field emitter.Key) string
	// MethodTarget is the @Invoker target of a method of owner.
	MethodTarget(owner string, method emitter.Key) string
}

// Identity maps every member to itself.
type Identity struct{}

func (Identity) Field(name, _ string) string { return name }

func (Identity) FieldTarget(owner string, f emitter.Key) string {
	return classfile.ObjectDescriptor(owner) + f.Name + ":" + f.Descriptor
}

func (Identity) MethodTarget(owner string, m emitter.Key) string {
	return classfile.ObjectDescriptor(owner) + m.Name + m.Descriptor
}

// Emitter generates the classes of one owner.
type Emitter struct {
	*emitter.Base
	mixin  string
	mapper Mapper
}

var _ emitter.Emitter = (*Emitter)(nil)

// NewEmitter returns an emitter for owner placing its classes under pkg,
// an internal package name.
func NewEmitter(pkg, owner string, mapper Mapper) *Emitter {
	base := strings.TrimSuffix(pkg, "/") + "/" + owner
	if mapper == nil {
		mapper = Identity{}
	}
	return &Emitter{
		Base:   emitter.NewBase(owner, base+"$Holder", base+"$Interface", base+"$Accessor"),
		mixin:  base + "$Mixin",
		mapper: mapper,
	}
}

// Mixin returns the name of the mixin implementing the interface.
func (e *Emitter) Mixin() string {
	return e.mixin
}

func (e *Emitter) ShouldEmitHolder() bool {
	return e.Count(emitter.HolderGet, emitter.HolderSet) > 0
}

func (e *Emitter) ShouldEmitInterface() bool {
	return e.Count(emitter.InterfaceGet, emitter.InterfaceSet, emitter.InterfaceMutableSet) > 0
}

func (e *Emitter) ShouldEmitMixin() bool {
	return e.ShouldEmitInterface()
}

func (e *Emitter) ShouldEmitAccessor() bool {
	return e.Count(emitter.InstanceGet, emitter.InstanceSet, emitter.InstanceInvoke,
		emitter.StaticGet, emitter.StaticSet, emitter.StaticInvoke) > 0
}

func mixinAnnotation(owner string) classfile.Annotation {
	return classfile.Annotation{
		Type: AnnotationMixin,
		Elements: []classfile.Element{
			{Name: "value", Value: classfile.ArrayValue(classfile.ClassValue(classfile.ObjectDescriptor(owner)))},
			{Name: "remap", Value: classfile.BoolValue(false)},
		},
		Invisible: true,
	}
}

func targetAnnotation(typ, target string) classfile.Annotation {
	return classfile.Annotation{
		Type: typ,
		Elements: []classfile.Element{
			{Name: "value", Value: classfile.StringValue(target)},
			{Name: "remap", Value: classfile.BoolValue(false)},
		},
	}
}

func header(access uint16, name string, interfaces []string, anns ...classfile.Annotation) *classfile.Header {
	return &classfile.Header{
		MajorVersion: classfile.Java8,
		Access:       access,
		Name:         name,
		Super:        "java/lang/Object",
		Interfaces:   interfaces,
		Annotations:  anns,
	}
}

func constructor(v classfile.ClassVisitor, access uint16) error {
	return classfile.EmitMethod(v, &classfile.Method{
		Access:     access,
		Name:       "<init>",
		Descriptor: "()V",
		Code:       &classfile.CodeInfo{MaxStack: 1, MaxLocals: 1},
	}, []classfile.Instruction{
		classfile.VarInsn(classfile.OpAload, 0),
		classfile.MethodInsn(classfile.OpInvokespecial, "java/lang/Object", "<init>", "()V", false),
		classfile.Insn(classfile.OpReturn),
	})
}

// unimplemented is the body of static accessor methods that Mixin
// replaces when it applies the accessor.
func unimplemented() []classfile.Instruction {
	return []classfile.Instruction{
		classfile.TypeInsn(classfile.OpNew, "java/lang/AssertionError"),
		classfile.Insn(classfile.OpDup),
		classfile.LdcString("Not implemented"),
		classfile.MethodInsn(classfile.OpInvokespecial, "java/lang/AssertionError", "<init>", "(Ljava/lang/String;)V", false),
		classfile.Insn(classfile.OpAthrow),
	}
}

func getter(t string) string { return "()" + t }
func setter(t string) string { return "(" + t + ")V" }

func abstract(v classfile.ClassVisitor, name, descriptor string, anns ...classfile.Annotation) error {
	return classfile.EmitMethod(v, &classfile.Method{
		Access:      classfile.AccPublic | classfile.AccAbstract,
		Name:        name,
		Descriptor:  descriptor,
		Annotations: anns,
	}, nil)
}

// EmitHolder sends the holder class to v: private static storage for the
// static synthetic fields and public static accessors for it.
func (e *Emitter) EmitHolder(v classfile.ClassVisitor) error {
	if err := v.VisitHeader(header(classfile.AccPublic|classfile.AccFinal|classfile.AccSuper, e.Holder(), nil)); err != nil {
		return err
	}
	if err := constructor(v, classfile.AccPrivate); err != nil {
		return err
	}

	var fields []emitter.Key
	for _, g := range e.Entries(emitter.HolderGet) {
		fields = appendKey(fields, g.Key)
		size := classfile.TypeSize(g.Descriptor)
		if err := classfile.EmitMethod(v, &classfile.Method{
			Access:     classfile.AccPublic | classfile.AccStatic,
			Name:       g.Generated,
			Descriptor: getter(g.Descriptor),
			Code:       &classfile.CodeInfo{MaxStack: uint16(size)},
		}, []classfile.Instruction{
			classfile.FieldInsn(classfile.OpGetstatic, e.Holder(), g.Name, g.Descriptor),
			classfile.Insn(classfile.ReturnOpcode(g.Descriptor)),
		}); err != nil {
			return err
		}
	}
	for _, s := range e.Entries(emitter.HolderSet) {
		fields = appendKey(fields, s.Key)
		size := classfile.TypeSize(s.Descriptor)
		if err := classfile.EmitMethod(v, &classfile.Method{
			Access:     classfile.AccPublic | classfile.AccStatic,
			Name:       s.Generated,
			Descriptor: setter(s.Descriptor),
			Code:       &classfile.CodeInfo{MaxStack: uint16(size), MaxLocals: uint16(size)},
		}, []classfile.Instruction{
			classfile.VarInsn(classfile.LoadOpcode(s.Descriptor), 0),
			classfile.FieldInsn(classfile.OpPutstatic, e.Holder(), s.Name, s.Descriptor),
			classfile.Insn(classfile.OpReturn),
		}); err != nil {
			return err
		}
	}

	for _, f := range fields {
		if err := v.VisitField(&classfile.Field{
			Access:     classfile.AccPrivate | classfile.AccStatic,
			Name:       f.Name,
			Descriptor: f.Descriptor,
		}); err != nil {
			return err
		}
	}
	return v.VisitEnd()
}

// EmitInterface sends the interface declaring the instance accessors and
// mutable setters to v.
func (e *Emitter) EmitInterface(v classfile.ClassVisitor) error {
	access := uint16(classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract)
	if err := v.VisitHeader(header(access, e.Interface(), nil)); err != nil {
		return err
	}
	for _, g := range e.Entries(emitter.InterfaceGet) {
		if err := abstract(v, g.Generated, getter(g.Descriptor)); err != nil {
			return err
		}
	}
	for _, ns := range []emitter.Namespace{emitter.InterfaceSet, emitter.InterfaceMutableSet} {
		for _, s := range e.Entries(ns) {
			if err := abstract(v, s.Generated, setter(s.Descriptor)); err != nil {
				return err
			}
		}
	}
	return v.VisitEnd()
}

// EmitMixin sends the mixin merging the synthetic instance fields and the
// interface implementation into the owner to v.
func (e *Emitter) EmitMixin(v classfile.ClassVisitor) error {
	var interfaces []string
	if e.ShouldEmitInterface() {
		interfaces = []string{e.Interface()}
	}
	if err := v.VisitHeader(header(classfile.AccPublic|classfile.AccSuper, e.mixin, interfaces, mixinAnnotation(e.Owner()))); err != nil {
		return err
	}
	if err := constructor(v, classfile.AccPublic); err != nil {
		return err
	}

	var fields []emitter.Key
	for _, g := range e.Entries(emitter.InterfaceGet) {
		fields = appendKey(fields, g.Key)
		size := classfile.TypeSize(g.Descriptor)
		if err := classfile.EmitMethod(v, &classfile.Method{
			Access:     classfile.AccPublic,
			Name:       g.Generated,
			Descriptor: getter(g.Descriptor),
			Code:       &classfile.CodeInfo{MaxStack: uint16(max(size, 1)), MaxLocals: 1},
		}, []classfile.Instruction{
			classfile.VarInsn(classfile.OpAload, 0),
			classfile.FieldInsn(classfile.OpGetfield, e.mixin, g.Name, g.Descriptor),
			classfile.Insn(classfile.ReturnOpcode(g.Descriptor)),
		}); err != nil {
			return err
		}
	}
	for _, s := range e.Entries(emitter.InterfaceSet) {
		fields = appendKey(fields, s.Key)
		if err := e.emitFieldSetter(v, s.Generated, s.Name, s.Descriptor); err != nil {
			return err
		}
	}
	for _, s := range e.Entries(emitter.InterfaceMutableSet) {
		mapped := e.mapper.Field(s.Name, s.Descriptor)
		if err := v.VisitField(&classfile.Field{
			Access:     classfile.AccPrivate,
			Name:       mapped,
			Descriptor: s.Descriptor,
			Annotations: []classfile.Annotation{
				{Type: AnnotationShadow},
				{Type: AnnotationMutable},
				{Type: AnnotationFinal},
			},
		}); err != nil {
			return err
		}
		if err := e.emitFieldSetter(v, s.Generated, mapped, s.Descriptor); err != nil {
			return err
		}
	}

	for _, f := range fields {
		if err := v.VisitField(&classfile.Field{
			Access:     classfile.AccPrivate,
			Name:       f.Name,
			Descriptor: f.Descriptor,
		}); err != nil {
			return err
		}
	}
	return v.VisitEnd()
}

func (e *Emitter) emitFieldSetter(v classfile.ClassVisitor, method, field, descriptor string) error {
	size := uint16(1 + classfile.TypeSize(descriptor))
	return classfile.EmitMethod(v, &classfile.Method{
		Access:     classfile.AccPublic,
		Name:       method,
		Descriptor: setter(descriptor),
		Code:       &classfile.CodeInfo{MaxStack: size, MaxLocals: size},
	}, []classfile.Instruction{
		classfile.VarInsn(classfile.OpAload, 0),
		classfile.VarInsn(classfile.LoadOpcode(descriptor), 1),
		classfile.FieldInsn(classfile.OpPutfield, e.mixin, field, descriptor),
		classfile.Insn(classfile.OpReturn),
	})
}

// EmitAccessor sends the accessor mixin to v. Instance accessors and
// invokers are abstract; static ones carry a placeholder body.
func (e *Emitter) EmitAccessor(v classfile.ClassVisitor) error {
	access := uint16(classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract)
	if err := v.VisitHeader(header(access, e.Accessor(), nil, mixinAnnotation(e.Owner()))); err != nil {
		return err
	}

	owner := e.Owner()
	for _, g := range e.Entries(emitter.InstanceGet) {
		ann := targetAnnotation(AnnotationAccessor, e.mapper.FieldTarget(owner, g.Key))
		if err := abstract(v, g.Generated, getter(g.Descriptor), ann); err != nil {
			return err
		}
	}
	for _, s := range e.Entries(emitter.InstanceSet) {
		ann := targetAnnotation(AnnotationAccessor, e.mapper.FieldTarget(owner, s.Key))
		if err := abstract(v, s.Generated, setter(s.Descriptor), ann); err != nil {
			return err
		}
	}
	for _, m := range e.Entries(emitter.InstanceInvoke) {
		ann := targetAnnotation(AnnotationInvoker, e.mapper.MethodTarget(owner, m.Key))
		if err := abstract(v, m.Generated, m.Descriptor, ann); err != nil {
			return err
		}
	}

	for _, g := range e.Entries(emitter.StaticGet) {
		ann := targetAnnotation(AnnotationAccessor, e.mapper.FieldTarget(owner, g.Key))
		if err := placeholder(v, g.Generated, getter(g.Descriptor), 0, ann); err != nil {
			return err
		}
	}
	for _, s := range e.Entries(emitter.StaticSet) {
		ann := targetAnnotation(AnnotationAccessor, e.mapper.FieldTarget(owner, s.Key))
		if err := placeholder(v, s.Generated, setter(s.Descriptor), classfile.TypeSize(s.Descriptor), ann); err != nil {
			return err
		}
	}
	for _, m := range e.Entries(emitter.StaticInvoke) {
		slots, err := classfile.ArgumentSlots(m.Descriptor)
		if err != nil {
			return err
		}
		ann := targetAnnotation(AnnotationInvoker, e.mapper.MethodTarget(owner, m.Key))
		if err := placeholder(v, m.Generated, m.Descriptor, slots, ann); err != nil {
			return err
		}
	}
	return v.VisitEnd()
}

func placeholder(v classfile.ClassVisitor, name, descriptor string, locals int, ann classfile.Annotation) error {
	return classfile.EmitMethod(v, &classfile.Method{
		Access:      classfile.AccPublic | classfile.AccStatic,
		Name:        name,
		Descriptor:  descriptor,
		Annotations: []classfile.Annotation{ann},
		Code:        &classfile.CodeInfo{MaxStack: 3, MaxLocals: uint16(locals)},
	}, unimplemented())
}

func appendKey(keys []emitter.Key, k emitter.Key) []emitter.Key {
	for _, existing := range keys {
		if existing == k {
			return keys
		}
	}
	return append(keys, k)
}
