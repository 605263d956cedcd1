package classpath

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/FukkitMC/gloom/pkg/classfile"
)

// Dir is a class set rooted at a directory.
type Dir string

// Entries returns every regular file below the directory in name order.
func (d Dir) Entries() ([]Entry, error) {
	root := string(d)
	var entries []Entry
	err := filepath.WalkDir(root, func(p string, de fs.DirEntry, err error) error {
		if err != nil || de.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Name: filepath.ToSlash(rel), Data: data})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", root)
	}
	sortEntries(entries)
	return entries, nil
}

// LoadClass parses the class file for internal name name.
func (d Dir) LoadClass(name string) (*classfile.ClassFile, error) {
	p := filepath.Join(string(d), filepath.FromSlash(EntryName(name)))
	cf, err := classfile.ParseFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrapf(ErrClassNotFound, "%s in %s", name, d)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", name)
	}
	return cf, nil
}

// DirSink writes entries below a directory, creating it as needed.
type DirSink string

func (s DirSink) Write(entries []Entry) error {
	for _, e := range entries {
		if err := checkEntryName(e.Name); err != nil {
			return errors.Wrapf(err, "writing below %s", s)
		}
	}
	for _, e := range entries {
		p := filepath.Join(string(s), filepath.FromSlash(e.Name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return errors.Wrapf(err, "creating directory for %s", e.Name)
		}
		if err := os.WriteFile(p, e.Data, 0o644); err != nil {
			return errors.Wrapf(err, "writing %s", e.Name)
		}
	}
	return nil
}
