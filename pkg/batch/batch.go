// Package batch runs the rewrite passes over a whole class set and writes
// the result together with the generated classes.
package batch

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FukkitMC/gloom/pkg/classfile"
	"github.com/FukkitMC/gloom/pkg/classpath"
	"github.com/FukkitMC/gloom/pkg/definitions"
	"github.com/FukkitMC/gloom/pkg/emitter/mixin"
	"github.com/FukkitMC/gloom/pkg/hierarchy"
	"github.com/FukkitMC/gloom/pkg/illuminate"
	"github.com/FukkitMC/gloom/pkg/inject"
)

// Report counts what a run did.
type Report struct {
	Classes    int // class entries transformed
	Copied     int // entries passed through untouched
	Rewritten  int // classes whose bytes changed
	References int // rewritten member references
	Generated  int // classes emitted by the backend
	Elapsed    time.Duration
}

// Run loads the configured definitions and input, transforms every class
// and writes the output. Nothing is written when any class fails.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	defs, err := definitions.Load(cfg.Definitions...)
	if err != nil {
		return nil, err
	}
	src, err := classpath.Open(cfg.Input)
	if err != nil {
		return nil, err
	}
	entries, err := src.Entries()
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", cfg.Input)
	}

	var opts []Option
	if len(cfg.Classpath) > 0 {
		libs, err := classpath.NewLoader(cfg.Classpath...)
		if err != nil {
			return nil, errors.Wrap(err, "opening classpath")
		}
		opts = append(opts, WithLibraries(libs))
	}
	p, err := NewPipeline(cfg, defs, opts...)
	if err != nil {
		return nil, err
	}
	out, report, err := p.Transform(ctx, entries)
	if err != nil {
		return nil, err
	}
	if err := classpath.Create(cfg.Output).Write(out); err != nil {
		return nil, errors.Wrapf(err, "writing %s", cfg.Output)
	}
	return report, nil
}

// Pipeline transforms class sets with one configuration.
type Pipeline struct {
	cfg       Config
	defs      *definitions.Definitions
	filter    *filter
	libraries classpath.ClassLoader
	mapper    mixin.Mapper
	log       *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLibraries resolves member owners against l in addition to the
// transformed classes.
func WithLibraries(l classpath.ClassLoader) Option {
	return func(p *Pipeline) { p.libraries = l }
}

// WithMapper sets the mapper of the mixin backend.
func WithMapper(m mixin.Mapper) Option {
	return func(p *Pipeline) { p.mapper = m }
}

// NewPipeline validates cfg and returns a pipeline applying defs.
func NewPipeline(cfg Config, defs *definitions.Definitions, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := newFilter(cfg.Include, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, defs: defs, filter: f, log: cfg.logger()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type job struct {
	index int
	entry classpath.Entry
	cf    *classfile.ClassFile
}

// Transform rewrites every selected class of entries and appends the
// generated classes. The result is sorted by entry name.
func (p *Pipeline) Transform(ctx context.Context, entries []classpath.Entry) ([]classpath.Entry, *Report, error) {
	start := time.Now()
	report := &Report{}
	out := make([]classpath.Entry, len(entries))
	seen := make(map[string]bool, len(entries))

	var jobs []job
	for i, e := range entries {
		seen[e.Name] = true
		if !e.IsClass() || !p.filter.match(e.Name) {
			out[i] = e
			report.Copied++
			continue
		}
		cf, err := classfile.ParseBytes(e.Data)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "parsing %s", e.Name)
		}
		jobs = append(jobs, job{index: i, entry: e, cf: cf})
	}
	report.Classes = len(jobs)
	p.log.Info("parsed input", zap.Int("classes", len(jobs)), zap.Int("copied", report.Copied))

	backend := mixin.New(p.cfg.MixinPackage, mixin.WithMapper(p.mapper), mixin.WithMinVersion(p.cfg.MixinMinVersion))
	var ill *illuminate.Illuminator
	if p.cfg.Illuminate {
		opts := []illuminate.Option{illuminate.WithLogger(p.log)}
		if p.cfg.resolve() || p.libraries != nil {
			ix, err := p.index(jobs)
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, illuminate.WithResolver(ix))
		}
		ill = illuminate.New(p.defs, backend, opts...)
	}
	var inj *inject.Injector
	if p.cfg.Inject {
		inj = inject.New(p.defs, inject.WithLogger(p.log))
	}

	workers := p.cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var rewritten, references atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, n, changed, err := transformClass(j.cf, j.entry.Data, ill, inj)
			if err != nil {
				return errors.Wrapf(err, "transforming %s", j.entry.Name)
			}
			if changed {
				rewritten.Add(1)
			}
			references.Add(int64(n))
			out[j.index] = classpath.Entry{Name: j.entry.Name, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	report.Rewritten = int(rewritten.Load())
	report.References = int(references.Load())

	if ill != nil {
		generated, err := backend.Generate()
		if err != nil {
			return nil, nil, err
		}
		if len(generated) > 0 {
			cfgEntry, err := backend.ConfigEntry(p.cfg.mixinConfig())
			if err != nil {
				return nil, nil, err
			}
			for _, e := range append(generated, cfgEntry) {
				if seen[e.Name] {
					return nil, nil, errors.Newf("generated entry %s collides with an input entry", e.Name)
				}
				out = append(out, e)
			}
		}
		report.Generated = len(generated)
	}

	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	report.Elapsed = time.Since(start)
	p.log.Info("transformed classes",
		zap.Int("classes", report.Classes),
		zap.Int("rewritten", report.Rewritten),
		zap.Int("references", report.References),
		zap.Int("generated", report.Generated),
		zap.Duration("elapsed", report.Elapsed))
	return out, report, nil
}

func (p *Pipeline) index(jobs []job) (*hierarchy.Index, error) {
	var opts []hierarchy.Option
	if p.libraries != nil {
		opts = append(opts, hierarchy.WithLibraries(p.libraries))
	}
	ix, err := hierarchy.New(opts...)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if err := ix.Add(j.cf); err != nil {
			return nil, errors.Wrapf(err, "indexing %s", j.entry.Name)
		}
	}
	p.log.Debug("indexed class hierarchy", zap.Int("classes", ix.Len()))
	return ix, nil
}

// transformClass runs one class through illuminate and inject. It returns
// the original bytes, unchanged, when neither pass touched the class.
func transformClass(cf *classfile.ClassFile, original []byte, ill *illuminate.Illuminator, inj *inject.Injector) ([]byte, int, bool, error) {
	b := classfile.NewBuilder(cf.ConstantPool)
	var v classfile.ClassVisitor = b

	var injected *inject.Visitor
	if inj != nil {
		injected = inj.Visitor(v)
		v = injected
	}
	var illuminated *illuminate.Visitor
	if ill != nil {
		illuminated = ill.Visitor(v)
		v = illuminated
	}
	if err := classfile.Accept(cf, v); err != nil {
		return nil, 0, false, err
	}

	rewrites := 0
	if illuminated != nil {
		rewrites = illuminated.Rewrites()
	}
	if rewrites == 0 && (injected == nil || !injected.Changed()) {
		return original, 0, false, nil
	}
	data, err := b.Bytes()
	if err != nil {
		return nil, 0, false, err
	}
	return data, rewrites, true, nil
}
