// Package classpath reads and writes class sets: directories of class
// files, jar archives and JDK jmod files.
package classpath

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/FukkitMC/gloom/pkg/classfile"
)

// ErrClassNotFound is returned by loaders that do not have a class.
var ErrClassNotFound = errors.New("class not found")

// ErrUnsafeEntry is returned for entry names that are absolute or leave
// the class set root.
var ErrUnsafeEntry = errors.New("unsafe entry name")

const classSuffix = ".class"

// Entry is one file of a class set. Name is slash separated and relative
// to the root of the set.
type Entry struct {
	Name string
	Data []byte
}

// IsClass reports whether the entry is a class file.
func (e Entry) IsClass() bool {
	return strings.HasSuffix(e.Name, classSuffix) && !strings.HasPrefix(e.Name, "META-INF/")
}

// ClassName returns the internal name of the class the entry holds.
func (e Entry) ClassName() string {
	return strings.TrimSuffix(e.Name, classSuffix)
}

// EntryName returns the entry name of the class with internal name name.
func EntryName(name string) string {
	return name + classSuffix
}

func checkEntryName(name string) error {
	if name == "" || strings.Contains(name, "\\") || !filepath.IsLocal(filepath.FromSlash(name)) {
		return errors.Wrapf(ErrUnsafeEntry, "%q", name)
	}
	return nil
}

// Source yields every entry of a class set.
type Source interface {
	Entries() ([]Entry, error)
}

// Sink stores a class set.
type Sink interface {
	Write(entries []Entry) error
}

// ClassLoader loads classes by internal name.
type ClassLoader interface {
	LoadClass(name string) (*classfile.ClassFile, error)
}

// Open returns a source for path: a directory, a jmod file or a jar.
func Open(p string) (Source, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", p)
	}
	if info.IsDir() {
		return Dir(p), nil
	}
	if strings.HasSuffix(p, ".jmod") {
		return Jmod(p), nil
	}
	return Jar(p), nil
}

// Create returns a sink for path. Paths ending in .jar or .zip become
// archives; anything else is a directory.
func Create(p string) Sink {
	switch path.Ext(p) {
	case ".jar", ".zip":
		return JarSink(p)
	}
	return DirSink(p)
}

// NewLoader returns a loader searching each path in turn.
func NewLoader(paths ...string) (ClassLoader, error) {
	loaders := make(Chain, 0, len(paths))
	for _, p := range paths {
		src, err := Open(p)
		if err != nil {
			return nil, err
		}
		loaders = append(loaders, src.(ClassLoader))
	}
	return loaders, nil
}

// Chain delegates to each loader in order and returns the first hit.
type Chain []ClassLoader

func (c Chain) LoadClass(name string) (*classfile.ClassFile, error) {
	for _, l := range c {
		cf, err := l.LoadClass(name)
		if err == nil {
			return cf, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(ErrClassNotFound, "%s", name)
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
}
