// Package inject applies a class's own definition to its declarations:
// access flags are widened and synthetic members are added.
package inject

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/FukkitMC/gloom/pkg/classfile"
	"github.com/FukkitMC/gloom/pkg/definitions"
)

// Injector creates mutation stages sharing one descriptor model.
type Injector struct {
	defs *definitions.Definitions
	log  *zap.Logger
}

// Option configures an Injector.
type Option func(*Injector)

// WithLogger sets the logger for per-member debug output.
func WithLogger(log *zap.Logger) Option {
	return func(in *Injector) {
		if log != nil {
			in.log = log
		}
	}
}

// New returns an Injector for defs.
func New(defs *definitions.Definitions, opts ...Option) *Injector {
	in := &Injector{defs: defs, log: zap.NewNop()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Visitor returns a stage for one class that forwards to next.
func (in *Injector) Visitor(next classfile.ClassVisitor) *Visitor {
	return &Visitor{in: in, next: next}
}

// Visitor is the mutation stage of one class. A class without a
// definition passes through unchanged.
type Visitor struct {
	in    *Injector
	next  classfile.ClassVisitor
	owner string
	def   *definitions.ClassDefinition
	log   *zap.Logger
}

var _ classfile.ClassVisitor = (*Visitor)(nil)

// Changed reports whether the visited class had a definition.
func (v *Visitor) Changed() bool {
	return v.def != nil
}

func (v *Visitor) VisitHeader(h *classfile.Header) error {
	v.owner = h.Name
	v.def = v.in.defs.Lookup(h.Name)
	if v.def == nil {
		return v.next.VisitHeader(h)
	}
	v.log = v.in.log.With(zap.String("owner", h.Name))

	out := *h
	out.Interfaces = append([]string(nil), h.Interfaces...)
	for _, itf := range v.def.InjectInterfaces() {
		if contains(out.Interfaces, itf) {
			continue
		}
		out.Interfaces = append(out.Interfaces, itf)
		if out.Signature != "" {
			out.Signature += classfile.ObjectDescriptor(itf)
		}
		v.log.Debug("injected interface", zap.String("interface", itf))
	}
	return v.next.VisitHeader(&out)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (v *Visitor) VisitField(f *classfile.Field) error {
	if v.def == nil {
		return v.next.VisitField(f)
	}
	out := *f
	out.Access = v.def.FieldAccess(v.member(f.Name, f.Descriptor), f.Access)
	v.logAccess("field", f.Name, f.Descriptor, f.Access, out.Access)
	return v.next.VisitField(&out)
}

func (v *Visitor) VisitMethod(m *classfile.Method) (classfile.MethodVisitor, error) {
	if v.def == nil {
		return v.next.VisitMethod(m)
	}
	out := *m
	out.Access = v.def.MethodAccess(v.member(m.Name, m.Descriptor), m.Access)
	v.logAccess("method", m.Name, m.Descriptor, m.Access, out.Access)
	return v.next.VisitMethod(&out)
}

func (v *Visitor) member(name, descriptor string) definitions.Member {
	return definitions.Member{Owner: v.owner, Name: name, Descriptor: descriptor}
}

func (v *Visitor) logAccess(kind, name, descriptor string, from, to uint16) {
	if from == to {
		return
	}
	v.log.Debug("widened "+kind,
		zap.String("name", name),
		zap.String("descriptor", descriptor),
		zap.Uint16("from", from),
		zap.Uint16("to", to))
}

func (v *Visitor) VisitEnd() error {
	if v.def != nil {
		for _, f := range v.def.SyntheticFields() {
			if err := v.injectField(f); err != nil {
				return errors.Wrapf(err, "injecting synthetic field %s", f.Name)
			}
		}
		for _, m := range v.def.SyntheticMethods() {
			if err := v.injectMethod(m); err != nil {
				return errors.Wrapf(err, "injecting synthetic method %s%s", m.Name, m.Descriptor)
			}
		}
	}
	return v.next.VisitEnd()
}
