package loader

import (
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"stylepipe/common"
)

// Options is a free-form option bag as it comes from configuration.
type Options map[string]any

// Decode fills structure pointed to by v from options using yaml field tags.
func (o Options) Decode(v any) error {
	if len(o) == 0 {
		return nil
	}
	data, err := yaml.Marshal(map[string]any(o))
	if err != nil {
		return fmt.Errorf("unable to encode loader options: %w", err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unable to decode loader options: %w", err)
	}
	return nil
}

// EncodeOptions converts structure with yaml field tags into options.
func EncodeOptions(v any) (Options, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unable to encode loader options: %w", err)
	}
	var o Options
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unable to encode loader options: %w", err)
	}
	return o, nil
}

// Merge returns new options with values from other overriding ours.
func (o Options) Merge(other Options) Options {
	out := make(Options, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Context is per-file per-run configuration handed to every loader.
type Context struct {
	// ID is absolute path of the file being processed.
	ID string
	// Root is the directory emitted map sources are made relative to.
	Root      string
	Options   Options
	SourceMap common.SourceMapMode
	// Dependencies collects every resolved import.
	Dependencies *DependencySet
	Warn         func(msg string)
	Log          *zap.Logger
	// Scoped, when set, replaces ID for applicability tests.
	Scoped string
}

// Target returns what applicability predicates are tested against.
func (c *Context) Target() string {
	if len(c.Scoped) > 0 {
		return c.Scoped
	}
	return c.ID
}

// AddDependency registers resolved import.
func (c *Context) AddDependency(path string) {
	if c.Dependencies != nil {
		c.Dependencies.Add(path)
	}
}

// Warnf reports non-fatal diagnostic.
func (c *Context) Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.Warn != nil {
		c.Warn(msg)
	}
	c.Logger().Warn(msg, zap.String("id", c.ID))
}

// Logger never returns nil.
func (c *Context) Logger() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

// RootDir returns Root or current working directory when Root is not set.
func (c *Context) RootDir() string {
	if len(c.Root) > 0 {
		return c.Root
	}
	if wd, err := filepath.Abs("."); err == nil {
		return wd
	}
	return ""
}

func (c *Context) derive(name string, opts Options, deps *DependencySet) *Context {
	lc := *c
	lc.Options = opts
	lc.Dependencies = deps
	lc.Log = c.Logger().Named(name)
	return &lc
}

// DependencySet is ordered set of paths, safe for concurrent use.
type DependencySet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	paths []string
}

// NewDependencySet returns empty set.
func NewDependencySet() *DependencySet {
	return &DependencySet{seen: make(map[string]struct{})}
}

// Add inserts path unless it is already present.
func (s *DependencySet) Add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[path]; ok {
		return
	}
	s.seen[path] = struct{}{}
	s.paths = append(s.paths, path)
}

// Merge adds all paths from other.
func (s *DependencySet) Merge(other *DependencySet) {
	for _, p := range other.List() {
		s.Add(p)
	}
}

// Has reports whether path is in the set.
func (s *DependencySet) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.seen[path]
	return ok
}

// List returns paths in insertion order.
func (s *DependencySet) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.paths...)
}

// Len returns number of paths.
func (s *DependencySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.paths)
}
