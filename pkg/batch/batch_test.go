package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/FukkitMC/gloom/pkg/classfile"
	"github.com/FukkitMC/gloom/pkg/classfile/classfiletest"
	"github.com/FukkitMC/gloom/pkg/classpath"
	"github.com/FukkitMC/gloom/pkg/definitions"
	"github.com/FukkitMC/gloom/pkg/emitter/mixin"
)

const (
	foo      = "com/example/Foo"
	bar      = "com/example/Bar"
	baz      = "com/example/Baz"
	child    = "com/example/Child"
	accessor = DefaultMixinPackage + "/" + foo + "$Accessor"
	// getValue is the first name the Foo allocator hands out for
	// instance reads.
	getValue = "getInstancefXDoD4"
)

func fooDefs(t *testing.T) *definitions.Definitions {
	t.Helper()
	defs, err := definitions.Of(definitions.ClassSpec{
		Type:             foo,
		PublicizedFields: []definitions.Member{{Owner: foo, Name: "value", Descriptor: "I"}},
	})
	require.NoError(t, err)
	return defs
}

// reader returns a class with one method reading owner.value.
func reader(t *testing.T, name, owner string) []byte {
	t.Helper()
	return classfiletest.Build(t, classfiletest.Class{
		Name: name,
		Methods: []classfiletest.Method{{
			Access:     classfile.AccPublic,
			Name:       "read",
			Descriptor: "(Lcom/example/Foo;)V",
			MaxStack:   1,
			MaxLocals:  2,
			Code: []classfile.Instruction{
				classfile.VarInsn(classfile.OpAload, 1),
				classfile.FieldInsn(classfile.OpGetfield, owner, "value", "I"),
				classfile.Insn(classfile.OpPop),
				classfile.Insn(classfile.OpReturn),
			},
		}},
	})
}

func input(t *testing.T) []classpath.Entry {
	t.Helper()
	return []classpath.Entry{
		{Name: "META-INF/MANIFEST.MF", Data: []byte("Manifest-Version: 1.0\n")},
		{Name: classpath.EntryName(foo), Data: classfiletest.Build(t, classfiletest.Class{
			Name:   foo,
			Fields: []classfile.Field{{Access: classfile.AccPrivate | classfile.AccFinal, Name: "value", Descriptor: "I"}},
		})},
		{Name: classpath.EntryName(bar), Data: reader(t, bar, foo)},
		{Name: classpath.EntryName(baz), Data: classfiletest.Build(t, classfiletest.Class{Name: baz})},
	}
}

func config(t *testing.T) Config {
	return Config{
		Inject:       true,
		Illuminate:   true,
		Workers:      2,
		MixinPackage: DefaultMixinPackage,
		Logger:       zaptest.NewLogger(t),
	}
}

func transform(t *testing.T, cfg Config, defs *definitions.Definitions, entries []classpath.Entry,
	opts ...Option) ([]classpath.Entry, *Report) {
	t.Helper()
	p, err := NewPipeline(cfg, defs, opts...)
	require.NoError(t, err)
	out, report, err := p.Transform(context.Background(), entries)
	require.NoError(t, err)
	return out, report
}

func byName(entries []classpath.Entry) map[string][]byte {
	m := make(map[string][]byte, len(entries))
	for _, e := range entries {
		m[e.Name] = e.Data
	}
	return m
}

func names(entries []classpath.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestTransform(t *testing.T) {
	in := input(t)
	out, report := transform(t, config(t), fooDefs(t), in)

	assert.Equal(t, []string{
		"META-INF/MANIFEST.MF",
		classpath.EntryName(bar),
		classpath.EntryName(baz),
		classpath.EntryName(foo),
		mixin.DefaultConfigName,
		classpath.EntryName(accessor),
	}, names(out))
	assert.Equal(t, 3, report.Classes)
	assert.Equal(t, 1, report.Copied)
	assert.Equal(t, 2, report.Rewritten)
	assert.Equal(t, 1, report.References)
	assert.Equal(t, 1, report.Generated)

	got := byName(out)
	assert.Equal(t, in[0].Data, got["META-INF/MANIFEST.MF"])
	assert.Equal(t, in[3].Data, got[classpath.EntryName(baz)], "untouched classes keep their bytes")

	fooRec := classfiletest.Record(t, got[classpath.EntryName(foo)])
	require.NotNil(t, fooRec.Field("value"))
	assert.Equal(t, uint16(classfile.AccPublic|classfile.AccFinal), fooRec.Field("value").Access)

	read := classfiletest.Record(t, got[classpath.EntryName(bar)]).Method("read", "(Lcom/example/Foo;)V")
	require.NotNil(t, read)
	assert.Equal(t, []uint8{classfile.OpAload, classfile.OpInvokeinterface, classfile.OpPop, classfile.OpReturn}, read.Opcodes())
	assert.Equal(t, []classfile.MemberRef{{Owner: accessor, Name: getValue, Descriptor: "()I", Interface: true}}, read.Refs())

	acc := classfiletest.Record(t, got[classpath.EntryName(accessor)])
	assert.NotNil(t, acc.Method(getValue, "()I"))
	assert.Contains(t, string(got[mixin.DefaultConfigName]), `"com.example.Foo$Accessor"`)
}

func TestInjectOnly(t *testing.T) {
	cfg := config(t)
	cfg.Illuminate = false
	in := input(t)
	out, report := transform(t, cfg, fooDefs(t), in)

	assert.Len(t, out, len(in))
	assert.Equal(t, 1, report.Rewritten)
	assert.Zero(t, report.References)
	assert.Zero(t, report.Generated)
	assert.Equal(t, in[2].Data, byName(out)[classpath.EntryName(bar)])
}

func TestFilters(t *testing.T) {
	cfg := config(t)
	cfg.Exclude = []string{"com/example/Ba*"}
	in := input(t)
	out, report := transform(t, cfg, fooDefs(t), in)

	assert.Equal(t, 1, report.Classes)
	assert.Equal(t, 3, report.Copied)
	assert.Zero(t, report.References)
	assert.Equal(t, in[2].Data, byName(out)[classpath.EntryName(bar)])

	cfg.Exclude = nil
	cfg.Include = []string{"com/example/Bar.class"}
	_, report = transform(t, cfg, fooDefs(t), in)
	assert.Equal(t, 1, report.Classes)
	assert.Equal(t, 1, report.References)
}

func TestInvalidPattern(t *testing.T) {
	cfg := config(t)
	cfg.Include = []string{"com/[example"}
	_, err := NewPipeline(cfg, fooDefs(t))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResolveFollowsHierarchy(t *testing.T) {
	in := append(input(t),
		classpath.Entry{Name: classpath.EntryName(child), Data: classfiletest.Build(t, classfiletest.Class{Name: child, Super: foo})},
		classpath.Entry{Name: classpath.EntryName("com/example/Qux"), Data: reader(t, "com/example/Qux", child)},
	)

	_, report := transform(t, config(t), fooDefs(t), in)
	assert.Equal(t, 1, report.References, "Child.value is left alone without resolution")

	cfg := config(t)
	cfg.Resolve = true
	out, report := transform(t, cfg, fooDefs(t), in)
	assert.Equal(t, 2, report.References)
	read := classfiletest.Record(t, byName(out)[classpath.EntryName("com/example/Qux")]).Method("read", "(Lcom/example/Foo;)V")
	require.NotNil(t, read)
	assert.Equal(t, accessor, read.Refs()[0].Owner)
	assert.Equal(t, getValue, read.Refs()[0].Name)
}

func TestLibrariesResolveOwners(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "lib.jar")
	require.NoError(t, classpath.JarSink(lib).Write([]classpath.Entry{
		{Name: classpath.EntryName(child), Data: classfiletest.Build(t, classfiletest.Class{Name: child, Super: foo})},
	}))
	loader, err := classpath.NewLoader(lib)
	require.NoError(t, err)

	in := append(input(t), classpath.Entry{
		Name: classpath.EntryName("com/example/Qux"), Data: reader(t, "com/example/Qux", child),
	})
	_, report := transform(t, config(t), fooDefs(t), in, WithLibraries(loader))
	assert.Equal(t, 2, report.References)
}

func TestMalformedClassAborts(t *testing.T) {
	in := append(input(t), classpath.Entry{Name: "com/example/Broken.class", Data: []byte("nope")})
	p, err := NewPipeline(config(t), fooDefs(t))
	require.NoError(t, err)
	_, _, err = p.Transform(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "com/example/Broken.class")
}

func TestCanceledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err := NewPipeline(config(t), fooDefs(t))
	require.NoError(t, err)
	_, _, err = p.Transform(ctx, input(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGeneratedEntryCollision(t *testing.T) {
	in := append(input(t), classpath.Entry{Name: mixin.DefaultConfigName, Data: []byte("{}")})
	p, err := NewPipeline(config(t), fooDefs(t))
	require.NoError(t, err)
	_, _, err = p.Transform(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collides")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"inject only without package", func(c *Config) { c.Illuminate = false; c.MixinPackage = "" }, true},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false},
		{"nothing to do", func(c *Config) { c.Inject = false; c.Illuminate = false }, false},
		{"illuminate without package", func(c *Config) { c.MixinPackage = "" }, false},
		{"min version", func(c *Config) { c.MixinMinVersion = "0.8" }, true},
		{"bad min version", func(c *Config) { c.MixinMinVersion = "eight" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config(t)
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
			}
		})
	}
}

func writeDefinitions(t *testing.T, dir string) string {
	t.Helper()
	data, err := definitions.Marshal(fooDefs(t), definitions.FormatJSON)
	require.NoError(t, err)
	path := filepath.Join(dir, "gloom.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "classes")
	require.NoError(t, classpath.DirSink(src).Write(input(t)))

	cfg := config(t)
	cfg.Definitions = []string{writeDefinitions(t, dir)}
	cfg.Input = src
	cfg.Output = filepath.Join(dir, "out.jar")
	report, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Generated)

	entries, err := classpath.Jar(cfg.Output).Entries()
	require.NoError(t, err)
	assert.Contains(t, names(entries), classpath.EntryName(accessor))
	assert.Contains(t, names(entries), mixin.DefaultConfigName)
}

func TestRunWritesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "classes")
	in := append(input(t), classpath.Entry{Name: "com/example/Broken.class", Data: []byte{0xCA, 0xFE}})
	require.NoError(t, classpath.DirSink(src).Write(in))

	cfg := config(t)
	cfg.Definitions = []string{writeDefinitions(t, dir)}
	cfg.Input = src
	cfg.Output = filepath.Join(dir, "out")
	_, err := Run(context.Background(), cfg)
	require.Error(t, err)

	_, err = os.Stat(cfg.Output)
	assert.True(t, os.IsNotExist(err))
}
