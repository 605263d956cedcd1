// Package hierarchy finds the class that declares a referenced member,
// following field and method resolution of the JVM over the processed
// classes and any library classes.
package hierarchy

import (
	"sync"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/FukkitMC/gloom/pkg/classfile"
	"github.com/FukkitMC/gloom/pkg/classpath"
)

const (
	defaultCacheSize = 4096
	object           = "java/lang/Object"
)

type member struct {
	name, descriptor string
}

// Class is the part of a class declaration resolution looks at.
type Class struct {
	Name       string
	Super      string
	Interfaces []string
	Interface  bool
	fields     map[member]struct{}
	methods    map[member]struct{}
}

// NewClass extracts the declaration of cf.
func NewClass(cf *classfile.ClassFile) (*Class, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, errors.Wrap(err, "resolving this_class")
	}
	interfaces, err := cf.InterfaceNames()
	if err != nil {
		return nil, errors.Wrapf(err, "resolving interfaces of %s", name)
	}
	c := &Class{
		Name:       name,
		Super:      cf.SuperClassName(),
		Interfaces: interfaces,
		Interface:  cf.AccessFlags&classfile.AccInterface != 0,
		fields:     make(map[member]struct{}, len(cf.Fields)),
		methods:    make(map[member]struct{}, len(cf.Methods)),
	}
	for _, f := range cf.Fields {
		c.fields[member{f.Name, f.Descriptor}] = struct{}{}
	}
	for _, m := range cf.Methods {
		c.methods[member{m.Name, m.Descriptor}] = struct{}{}
	}
	return c, nil
}

// DeclaresField reports whether c itself declares the field.
func (c *Class) DeclaresField(name, descriptor string) bool {
	_, ok := c.fields[member{name, descriptor}]
	return ok
}

// DeclaresMethod reports whether c itself declares the method.
func (c *Class) DeclaresMethod(name, descriptor string) bool {
	_, ok := c.methods[member{name, descriptor}]
	return ok
}

// Index resolves member owners. Classes added directly take precedence
// over library classes, which are loaded on first use. An Index is safe
// for concurrent use.
type Index struct {
	mu        sync.RWMutex
	classes   map[string]*Class
	libraries classpath.ClassLoader
	cache     *lru.Cache[string, string]
	cacheSize int
}

// Option configures an Index.
type Option func(*Index)

// WithLibraries consults l for classes that were not added.
func WithLibraries(l classpath.ClassLoader) Option {
	return func(ix *Index) { ix.libraries = l }
}

// WithCacheSize bounds the number of remembered resolutions.
func WithCacheSize(n int) Option {
	return func(ix *Index) { ix.cacheSize = n }
}

// New returns an empty Index.
func New(opts ...Option) (*Index, error) {
	ix := &Index{classes: make(map[string]*Class), cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(ix)
	}
	cache, err := lru.New[string, string](ix.cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating resolution cache")
	}
	ix.cache = cache
	return ix, nil
}

// Add indexes a processed class.
func (ix *Index) Add(cf *classfile.ClassFile) error {
	c, err := NewClass(cf)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	ix.classes[c.Name] = c
	ix.mu.Unlock()
	ix.cache.Purge()
	return nil
}

// Len returns the number of known classes, including missing library
// lookups.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.classes)
}

// class returns the declaration of name, or nil if no one has it.
func (ix *Index) class(name string) (*Class, error) {
	ix.mu.RLock()
	c, ok := ix.classes[name]
	ix.mu.RUnlock()
	if ok || ix.libraries == nil {
		return c, nil
	}

	cf, err := ix.libraries.LoadClass(name)
	switch {
	case errors.Is(err, classpath.ErrClassNotFound):
		c = nil
	case err != nil:
		return nil, err
	default:
		if c, err = NewClass(cf); err != nil {
			return nil, err
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if existing, ok := ix.classes[name]; ok {
		return existing, nil
	}
	ix.classes[name] = c
	return c, nil
}

func (ix *Index) cached(kind, owner, name, descriptor string, resolve func() (string, error)) (string, error) {
	key := kind + owner + "." + name + ":" + descriptor
	if found, ok := ix.cache.Get(key); ok {
		return found, nil
	}
	found, err := resolve()
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s.%s%s", owner, name, descriptor)
	}
	if found == "" {
		found = owner
	}
	ix.cache.Add(key, found)
	return found, nil
}

// ResolveField returns the class declaring the field: owner itself, then
// its superinterfaces, then its superclass, recursively. It returns owner
// when the field is not found.
func (ix *Index) ResolveField(owner, name, descriptor string) (string, error) {
	return ix.cached("F", owner, name, descriptor, func() (string, error) {
		return ix.resolveField(owner, name, descriptor, make(map[string]bool))
	})
}

func (ix *Index) resolveField(owner, name, descriptor string, seen map[string]bool) (string, error) {
	if owner == "" || seen[owner] {
		return "", nil
	}
	seen[owner] = true

	c, err := ix.class(owner)
	if err != nil || c == nil {
		return "", err
	}
	if c.DeclaresField(name, descriptor) {
		return c.Name, nil
	}
	for _, itf := range c.Interfaces {
		if found, err := ix.resolveField(itf, name, descriptor, seen); err != nil || found != "" {
			return found, err
		}
	}
	return ix.resolveField(c.Super, name, descriptor, seen)
}

// ResolveMethod returns the class declaring the method. For classes the
// superclass chain is searched before superinterfaces. For interfaces the
// interface comes first, then java/lang/Object, then its superinterfaces.
// It returns owner when the method is not found.
func (ix *Index) ResolveMethod(owner, name, descriptor string) (string, error) {
	return ix.cached("M", owner, name, descriptor, func() (string, error) {
		c, err := ix.class(owner)
		if err != nil || c == nil {
			return "", err
		}
		if c.Interface {
			return ix.resolveInterfaceMethod(c, name, descriptor)
		}
		return ix.resolveClassMethod(c, name, descriptor)
	})
}

func (ix *Index) resolveClassMethod(c *Class, name, descriptor string) (string, error) {
	var chain []*Class
	seen := make(map[string]bool)
	for cur := c; cur != nil && !seen[cur.Name]; {
		seen[cur.Name] = true
		if cur.DeclaresMethod(name, descriptor) {
			return cur.Name, nil
		}
		chain = append(chain, cur)
		if cur.Super == "" {
			break
		}
		next, err := ix.class(cur.Super)
		if err != nil {
			return "", err
		}
		cur = next
	}

	visited := make(map[string]bool)
	for _, cur := range chain {
		for _, itf := range cur.Interfaces {
			if found, err := ix.searchInterfaces(itf, name, descriptor, visited); err != nil || found != "" {
				return found, err
			}
		}
	}
	return "", nil
}

func (ix *Index) resolveInterfaceMethod(c *Class, name, descriptor string) (string, error) {
	if c.DeclaresMethod(name, descriptor) {
		return c.Name, nil
	}
	obj, err := ix.class(object)
	if err != nil {
		return "", err
	}
	if obj != nil && obj.DeclaresMethod(name, descriptor) {
		return object, nil
	}
	visited := map[string]bool{c.Name: true}
	for _, itf := range c.Interfaces {
		if found, err := ix.searchInterfaces(itf, name, descriptor, visited); err != nil || found != "" {
			return found, err
		}
	}
	return "", nil
}

// searchInterfaces looks for the method in itf and its superinterfaces,
// depth first.
func (ix *Index) searchInterfaces(itf, name, descriptor string, visited map[string]bool) (string, error) {
	if visited[itf] {
		return "", nil
	}
	visited[itf] = true

	c, err := ix.class(itf)
	if err != nil || c == nil {
		return "", err
	}
	if c.DeclaresMethod(name, descriptor) {
		return c.Name, nil
	}
	for _, super := range c.Interfaces {
		if found, err := ix.searchInterfaces(super, name, descriptor, visited); err != nil || found != "" {
			return found, err
		}
	}
	return "", nil
}
