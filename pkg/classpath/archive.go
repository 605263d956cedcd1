package classpath

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/FukkitMC/gloom/pkg/classfile"
)

// jmodMagic precedes the zip data of a jmod file.
var jmodMagic = []byte("JM\x01\x00")

// Archive is a zip-based class set. It is read on first use and is safe
// for concurrent use.
type Archive struct {
	Path string
	// prefix is stripped from entry names; entries outside it are skipped.
	prefix string
	skip   int

	once  sync.Once
	err   error
	files map[string]*zip.File
	names []string

	mu    sync.Mutex
	cache map[string]*classfile.ClassFile
}

// Jar returns the archive at path.
func Jar(path string) *Archive {
	return &Archive{Path: path}
}

// Jmod returns the JDK module file at path. Only its classes/ tree is
// visible.
func Jmod(path string) *Archive {
	return &Archive{Path: path, prefix: "classes/", skip: len(jmodMagic)}
}

func (a *Archive) open() error {
	a.once.Do(func() {
		data, err := os.ReadFile(a.Path)
		if err != nil {
			a.err = errors.Wrapf(err, "reading %s", a.Path)
			return
		}
		if a.skip > 0 {
			if !bytes.HasPrefix(data, jmodMagic) {
				a.err = errors.Newf("%s: not a jmod file", a.Path)
				return
			}
			data = data[a.skip:]
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			a.err = errors.Wrapf(err, "opening zip %s", a.Path)
			return
		}

		a.files = make(map[string]*zip.File, len(zr.File))
		for _, f := range zr.File {
			if f.FileInfo().IsDir() || !strings.HasPrefix(f.Name, a.prefix) {
				continue
			}
			name := strings.TrimPrefix(f.Name, a.prefix)
			if err := checkEntryName(name); err != nil {
				a.err = errors.Wrapf(err, "%s", a.Path)
				return
			}
			if _, dup := a.files[name]; dup {
				continue
			}
			a.files[name] = f
			a.names = append(a.names, name)
		}
		a.cache = make(map[string]*classfile.ClassFile)
	})
	return a.err
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Entries returns every file of the archive in name order.
func (a *Archive) Entries() ([]Entry, error) {
	if err := a.open(); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(a.names))
	for _, name := range a.names {
		data, err := readZipFile(a.files[name])
		if err != nil {
			return nil, errors.Wrapf(err, "%s: reading %s", a.Path, name)
		}
		entries = append(entries, Entry{Name: name, Data: data})
	}
	sortEntries(entries)
	return entries, nil
}

// LoadClass parses the class with internal name name. Parsed classes are
// cached.
func (a *Archive) LoadClass(name string) (*classfile.ClassFile, error) {
	if err := a.open(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if cf, ok := a.cache[name]; ok {
		return cf, nil
	}

	f, ok := a.files[EntryName(name)]
	if !ok {
		return nil, errors.Wrapf(ErrClassNotFound, "%s in %s", name, a.Path)
	}
	data, err := readZipFile(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: reading %s", a.Path, f.Name)
	}
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: parsing %s", a.Path, name)
	}
	a.cache[name] = cf
	return cf, nil
}

// JarSink writes entries into a new zip archive at the path.
type JarSink string

func (s JarSink) Write(entries []Entry) (err error) {
	f, err := os.Create(string(s))
	if err != nil {
		return errors.Wrapf(err, "creating %s", s)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "closing %s", s)
		}
	}()

	sorted := append([]Entry(nil), entries...)
	sortEntries(sorted)

	zw := zip.NewWriter(f)
	for _, e := range sorted {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zip.Deflate})
		if err != nil {
			return errors.Wrapf(err, "%s: adding %s", s, e.Name)
		}
		if _, err := w.Write(e.Data); err != nil {
			return errors.Wrapf(err, "%s: writing %s", s, e.Name)
		}
	}
	return errors.Wrapf(zw.Close(), "finishing %s", s)
}
