// Package illuminate rewrites call sites across the processed class set.
// Field accesses and invocations that refer to publicized or synthetic
// members of a defined class are redirected to the generated classes an
// emitter provides for that class.
package illuminate

import (
	"go.uber.org/zap"

	"github.com/FukkitMC/gloom/pkg/classfile"
	"github.com/FukkitMC/gloom/pkg/definitions"
	"github.com/FukkitMC/gloom/pkg/emitter"
)

// Resolver maps a member reference to the class declaring the member.
// Implementations return owner unchanged when the declaring class is not
// known.
type Resolver interface {
	ResolveField(owner, name, descriptor string) (string, error)
	ResolveMethod(owner, name, descriptor string) (string, error)
}

// Literal resolves every reference to its literal owner.
type Literal struct{}

func (Literal) ResolveField(owner, _, _ string) (string, error)  { return owner, nil }
func (Literal) ResolveMethod(owner, _, _ string) (string, error) { return owner, nil }

// Illuminator creates rewrite stages sharing one descriptor model and one
// emitter source.
type Illuminator struct {
	defs     *definitions.Definitions
	source   emitter.Source
	resolver Resolver
	log      *zap.Logger
}

// Option configures an Illuminator.
type Option func(*Illuminator)

// WithLogger sets the logger for per-rewrite debug output.
func WithLogger(log *zap.Logger) Option {
	return func(il *Illuminator) {
		if log != nil {
			il.log = log
		}
	}
}

// WithResolver resolves reference owners before definitions are consulted.
func WithResolver(r Resolver) Option {
	return func(il *Illuminator) {
		if r != nil {
			il.resolver = r
		}
	}
}

// New returns an Illuminator asking source for generated names.
func New(defs *definitions.Definitions, source emitter.Source, opts ...Option) *Illuminator {
	il := &Illuminator{
		defs:     defs,
		source:   source,
		resolver: Literal{},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(il)
	}
	return il
}

// Visitor returns a stage for one class that forwards to next.
func (il *Illuminator) Visitor(next classfile.ClassVisitor) *Visitor {
	return &Visitor{il: il, next: next, log: il.log}
}

// Visitor wraps the body of every method of one class with the access
// stage followed by the synthetic stage.
type Visitor struct {
	il       *Illuminator
	next     classfile.ClassVisitor
	log      *zap.Logger
	rewrites int
}

var _ classfile.ClassVisitor = (*Visitor)(nil)

// Rewrites returns the number of instructions replaced so far.
func (v *Visitor) Rewrites() int {
	return v.rewrites
}

func (v *Visitor) VisitHeader(h *classfile.Header) error {
	v.log = v.il.log.With(zap.String("class", h.Name))
	return v.next.VisitHeader(h)
}

func (v *Visitor) VisitField(f *classfile.Field) error {
	return v.next.VisitField(f)
}

func (v *Visitor) VisitMethod(m *classfile.Method) (classfile.MethodVisitor, error) {
	mv, err := v.next.VisitMethod(m)
	if err != nil || mv == nil {
		return mv, err
	}
	log := v.log.With(zap.String("method", m.Name+m.Descriptor))
	synthetic := &syntheticStage{stage: stage{v: v, next: mv, log: log}}
	return &accessStage{stage: stage{v: v, next: synthetic, log: log}}, nil
}

func (v *Visitor) VisitEnd() error {
	return v.next.VisitEnd()
}
