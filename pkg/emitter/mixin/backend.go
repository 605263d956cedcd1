package mixin

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/FukkitMC/gloom/pkg/classfile"
	"github.com/FukkitMC/gloom/pkg/classpath"
	"github.com/FukkitMC/gloom/pkg/emitter"
)

// DefaultConfigName is the entry name of the generated mixin config.
const DefaultConfigName = "gloom.mixins.json"

// Backend hands out one Emitter per owner and turns them into classes.
type Backend struct {
	*emitter.Provider[*Emitter]
	pkg        string
	mapper     Mapper
	minVersion string
}

var _ emitter.Source = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithMapper sets the mapper used by every emitter.
func WithMapper(m Mapper) Option {
	return func(b *Backend) {
		if m != nil {
			b.mapper = m
		}
	}
}

// WithMinVersion sets the minimum Mixin version the config asks for.
func WithMinVersion(v string) Option {
	return func(b *Backend) { b.minVersion = v }
}

// New returns a backend generating classes below pkg, an internal package
// name such as "gloom/generated".
func New(pkg string, opts ...Option) *Backend {
	b := &Backend{pkg: strings.Trim(pkg, "/"), mapper: Identity{}}
	for _, opt := range opts {
		opt(b)
	}
	b.Provider = emitter.NewProvider(func(owner string) *Emitter {
		return NewEmitter(b.pkg, owner, b.mapper)
	})
	return b
}

// Package returns the internal package name of generated classes.
func (b *Backend) Package() string {
	return b.pkg
}

// Generate returns the classes of every emitter, ordered by owner and then
// holder, interface, mixin and accessor.
func (b *Backend) Generate() ([]classpath.Entry, error) {
	var entries []classpath.Entry
	for _, e := range b.Emitters() {
		generated, err := e.Classes()
		if err != nil {
			return nil, errors.Wrapf(err, "generating classes for %s", e.Owner())
		}
		entries = append(entries, generated...)
	}
	return entries, nil
}

// Classes returns the classes this emitter needs.
func (e *Emitter) Classes() ([]classpath.Entry, error) {
	kinds := []struct {
		name string
		want bool
		emit func(classfile.ClassVisitor) error
	}{
		{e.Holder(), e.ShouldEmitHolder(), e.EmitHolder},
		{e.Interface(), e.ShouldEmitInterface(), e.EmitInterface},
		{e.mixin, e.ShouldEmitMixin(), e.EmitMixin},
		{e.Accessor(), e.ShouldEmitAccessor(), e.EmitAccessor},
	}

	var entries []classpath.Entry
	for _, k := range kinds {
		if !k.want {
			continue
		}
		b := classfile.NewBuilder(nil)
		if err := k.emit(b); err != nil {
			return nil, errors.Wrapf(err, "emitting %s", k.name)
		}
		data, err := b.Bytes()
		if err != nil {
			return nil, errors.Wrapf(err, "encoding %s", k.name)
		}
		entries = append(entries, classpath.Entry{Name: classpath.EntryName(k.name), Data: data})
	}
	return entries, nil
}

// Config is the mixin configuration listing the generated mixins.
type Config struct {
	Required           bool           `json:"required"`
	MinVersion         string         `json:"minVersion,omitempty"`
	Package            string         `json:"package"`
	CompatibilityLevel string         `json:"compatibilityLevel"`
	Mixins             []string       `json:"mixins"`
	Injectors          map[string]int `json:"injectors,omitempty"`
}

// Config returns the configuration for every mixin generated so far.
// Mixin names are relative to the package and dotted.
func (b *Backend) Config() Config {
	cfg := Config{
		Required:           true,
		MinVersion:         b.minVersion,
		Package:            strings.ReplaceAll(b.pkg, "/", "."),
		CompatibilityLevel: "JAVA_8",
		Mixins:             []string{},
		Injectors:          map[string]int{"defaultRequire": 1},
	}
	for _, e := range b.Emitters() {
		if e.ShouldEmitMixin() {
			cfg.Mixins = append(cfg.Mixins, b.relative(e.mixin))
		}
		if e.ShouldEmitAccessor() {
			cfg.Mixins = append(cfg.Mixins, b.relative(e.Accessor()))
		}
	}
	return cfg
}

func (b *Backend) relative(name string) string {
	return strings.ReplaceAll(strings.TrimPrefix(name, b.pkg+"/"), "/", ".")
}

// ConfigEntry encodes Config as JSON under name.
func (b *Backend) ConfigEntry(name string) (classpath.Entry, error) {
	data, err := json.MarshalIndent(b.Config(), "", "  ")
	if err != nil {
		return classpath.Entry{}, errors.Wrap(err, "encoding mixin config")
	}
	return classpath.Entry{Name: name, Data: append(data, '\n')}, nil
}
