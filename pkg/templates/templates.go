// Package templates locates and caches mockup background templates.
//
// Templates live in a single directory and are named
// "{mockup}_{variant}.{ext}", for example "Tee_white.png".
package templates

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sort"
	"sync"

	"github.com/menta2k/mockup-forge/pkg/types"
)

// ErrNotFound is returned when no template matches a mockup and variant
var ErrNotFound = errors.New("template not found")

// Loader decodes a template file
type Loader interface {
	LoadImage(path string) (image.Image, error)
}

// Store resolves templates within a directory
type Store struct {
	dir    string
	loader Loader

	cache sync.Map // path -> func() (image.Image, error)
}

// NewStore creates a Store rooted at dir
func NewStore(dir string, loader Loader) *Store {
	return &Store{dir: dir, loader: loader}
}

// Dir returns the template directory
func (s *Store) Dir() string {
	return s.dir
}

// Find returns the path of the template for name and variant. When several
// files match, the lexically first one wins.
func (s *Store) Find(name string, variant types.Variant) (string, error) {
	pattern := filepath.Join(s.dir, escape(name)+"_"+string(variant)+".*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("template glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s_%s in %s", ErrNotFound, name, variant, s.dir)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// Load finds and decodes the template for name and variant. Each file is
// decoded at most once per Store; concurrent callers share the result.
func (s *Store) Load(name string, variant types.Variant) (image.Image, string, error) {
	path, err := s.Find(name, variant)
	if err != nil {
		return nil, "", err
	}

	load, _ := s.cache.LoadOrStore(path, sync.OnceValues(func() (image.Image, error) {
		return s.loader.LoadImage(path)
	}))
	img, err := load.(func() (image.Image, error))()
	if err != nil {
		return nil, path, fmt.Errorf("load template %s: %w", path, err)
	}
	return img, path, nil
}

// escape quotes glob metacharacters in a mockup name
func escape(name string) string {
	var b []byte
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '*', '?', '[', '\\':
			b = append(b, '\\')
		}
		b = append(b, name[i])
	}
	return string(b)
}
