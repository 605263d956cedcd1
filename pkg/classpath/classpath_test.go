package classpath

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FukkitMC/gloom/pkg/classfile/classfiletest"
)

func sampleEntries(t *testing.T) []Entry {
	t.Helper()
	return []Entry{
		{Name: "com/example/Foo.class", Data: classfiletest.Build(t, classfiletest.Class{Name: "com/example/Foo"})},
		{Name: "META-INF/MANIFEST.MF", Data: []byte("Manifest-Version: 1.0\n")},
		{Name: "com/example/Bar.class", Data: classfiletest.Build(t, classfiletest.Class{Name: "com/example/Bar"})},
	}
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestEntry(t *testing.T) {
	assert.True(t, Entry{Name: "a/B.class"}.IsClass())
	assert.False(t, Entry{Name: "a/B.txt"}.IsClass())
	assert.False(t, Entry{Name: "META-INF/versions/9/a/B.class"}.IsClass())
	assert.Equal(t, "a/B", Entry{Name: "a/B.class"}.ClassName())
	assert.Equal(t, "a/B.class", EntryName("a/B"))
}

func TestSinksAndSources(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"directory", "out"},
		{"jar", "out.jar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), tt.path)
			entries := sampleEntries(t)
			require.NoError(t, Create(p).Write(entries))

			src, err := Open(p)
			require.NoError(t, err)
			got, err := src.Entries()
			require.NoError(t, err)
			assert.Equal(t, []string{"META-INF/MANIFEST.MF", "com/example/Bar.class", "com/example/Foo.class"}, names(got))
			assert.Equal(t, entries[0].Data, got[2].Data)

			cf, err := src.(ClassLoader).LoadClass("com/example/Bar")
			require.NoError(t, err)
			name, err := cf.ClassName()
			require.NoError(t, err)
			assert.Equal(t, "com/example/Bar", name)

			_, err = src.(ClassLoader).LoadClass("com/example/Missing")
			assert.ErrorIs(t, err, ErrClassNotFound)
		})
	}
}

func TestArchiveCachesClasses(t *testing.T) {
	p := filepath.Join(t.TempDir(), "lib.jar")
	require.NoError(t, JarSink(p).Write(sampleEntries(t)))

	jar := Jar(p)
	first, err := jar.LoadClass("com/example/Foo")
	require.NoError(t, err)
	second, err := jar.LoadClass("com/example/Foo")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestJmod(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(jmodMagic)
	zw := zip.NewWriter(&buf)
	for _, e := range []Entry{
		{Name: "classes/java/lang/Thing.class", Data: classfiletest.Build(t, classfiletest.Class{Name: "java/lang/Thing"})},
		{Name: "conf/security.properties", Data: []byte("x=y")},
	} {
		w, err := zw.Create(e.Name)
		require.NoError(t, err)
		_, err = w.Write(e.Data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	p := filepath.Join(t.TempDir(), "java.base.jmod")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))

	src, err := Open(p)
	require.NoError(t, err)
	entries, err := src.Entries()
	require.NoError(t, err)
	assert.Equal(t, []string{"java/lang/Thing.class"}, names(entries))

	_, err = src.(ClassLoader).LoadClass("java/lang/Thing")
	assert.NoError(t, err)
}

func TestJmodRejectsPlainZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fake.jmod")
	require.NoError(t, JarSink(p).Write(sampleEntries(t)))

	_, err := Jmod(p).Entries()
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a")
	second := filepath.Join(dir, "b.jar")
	require.NoError(t, DirSink(first).Write(sampleEntries(t)[:1]))
	require.NoError(t, JarSink(second).Write(sampleEntries(t)[2:]))

	loader, err := NewLoader(first, second)
	require.NoError(t, err)

	_, err = loader.LoadClass("com/example/Foo")
	assert.NoError(t, err)
	_, err = loader.LoadClass("com/example/Bar")
	assert.NoError(t, err)
	_, err = loader.LoadClass("com/example/Baz")
	assert.ErrorIs(t, err, ErrClassNotFound)

	_, err = NewLoader(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestUnsafeEntryNames(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "evil.jar")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../escape.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("gotcha"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(jar, buf.Bytes(), 0o644))

	_, err = Jar(jar).Entries()
	assert.ErrorIs(t, err, ErrUnsafeEntry)

	out := filepath.Join(dir, "out")
	for _, name := range []string{"../escape.txt", "/abs/escape.txt", "a/../../escape.txt", ""} {
		err := DirSink(out).Write([]Entry{{Name: "ok.txt"}, {Name: name, Data: []byte("gotcha")}})
		assert.ErrorIs(t, err, ErrUnsafeEntry, name)
	}
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
	assert.NoDirExists(t, out, "nothing is written when any name is unsafe")
}
