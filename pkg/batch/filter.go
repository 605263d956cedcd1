package batch

import (
	"github.com/cockroachdb/errors"
	"github.com/gobwas/glob"
)

// filter selects the class entries a run transforms.
type filter struct {
	include []glob.Glob
	exclude []glob.Glob
}

func compile(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "invalid pattern %q: %v", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func newFilter(include, exclude []string) (*filter, error) {
	in, err := compile(include)
	if err != nil {
		return nil, err
	}
	ex, err := compile(exclude)
	if err != nil {
		return nil, err
	}
	return &filter{include: in, exclude: ex}, nil
}

func (f *filter) match(name string) bool {
	for _, g := range f.exclude {
		if g.Match(name) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, g := range f.include {
		if g.Match(name) {
			return true
		}
	}
	return false
}
