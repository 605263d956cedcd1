// Package emitter defines what a code-generation backend must provide to
// the call-site rewrite: the generated classes that stand in for an owner
// class, and stable names for the accessor methods on them.
package emitter

import (
	"sort"
	"sync"
)

// Emitter serves one owner class.
//
// Holder is the class keeping static synthetic fields and their accessors.
// Interface declares instance-scoped synthetic accessors and mutable
// setters. Accessor declares accessors and invokers for publicized members.
type Emitter interface {
	Owner() string
	Holder() string
	Interface() string
	Accessor() string
	// Allocate returns the generated method name for key in ns.
	Allocate(ns Namespace, key Key) (string, error)
}

// Base is an Emitter with fixed target names. Backends embed it.
type Base struct {
	*Allocator
	owner    string
	holder   string
	itf      string
	accessor string
}

var _ Emitter = (*Base)(nil)

// NewBase returns an emitter for owner with its own allocator.
func NewBase(owner, holder, itf, accessor string) *Base {
	return &Base{
		Allocator: NewAllocator(),
		owner:     owner,
		holder:    holder,
		itf:       itf,
		accessor:  accessor,
	}
}

// Suffixed returns an emitter whose targets are owner with $Holder,
// $Interface and $Accessor appended.
func Suffixed(owner string) *Base {
	return NewBase(owner, owner+"$Holder", owner+"$Interface", owner+"$Accessor")
}

func (b *Base) Owner() string     { return b.owner }
func (b *Base) Holder() string    { return b.holder }
func (b *Base) Interface() string { return b.itf }
func (b *Base) Accessor() string  { return b.accessor }

// Source hands out the emitter of an owner class.
type Source interface {
	Emitter(owner string) Emitter
}

// Provider creates one emitter per owner class on first request and
// returns the same one afterwards. It is safe for concurrent use.
type Provider[E Emitter] struct {
	mu       sync.Mutex
	factory  func(owner string) E
	emitters map[string]E
}

var _ Source = (*Provider[*Base])(nil)

// NewProvider returns a provider building emitters with factory.
func NewProvider[E Emitter](factory func(owner string) E) *Provider[E] {
	return &Provider[E]{factory: factory, emitters: make(map[string]E)}
}

// Get returns the emitter of owner, creating it if needed.
func (p *Provider[E]) Get(owner string) E {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.emitters[owner]
	if !ok {
		e = p.factory(owner)
		p.emitters[owner] = e
	}
	return e
}

// Emitter implements Source.
func (p *Provider[E]) Emitter(owner string) Emitter {
	return p.Get(owner)
}

// Emitters returns every emitter created so far, sorted by owner.
func (p *Provider[E]) Emitters() []E {
	p.mu.Lock()
	defer p.mu.Unlock()

	owners := make([]string, 0, len(p.emitters))
	for owner := range p.emitters {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	out := make([]E, len(owners))
	for i, owner := range owners {
		out[i] = p.emitters[owner]
	}
	return out
}
