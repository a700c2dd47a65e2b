// Package loader defines the contract every style-sheet loader satisfies, the
// registry keeping loaders by name and the pipeline running a declared chain
// of loaders over a single file.
package loader

import (
	"context"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"stylepipe/sourcemap"
)

// Unit is the value passed between pipeline stages. Map, when present,
// describes exactly Code.
type Unit struct {
	Code string
	Map  *sourcemap.Map
}

// Asset is extracted style output of a single module. It is never modified
// after creation.
type Asset struct {
	ID   string
	Code string
	Map  *sourcemap.Map
}

// Result is what a loader returns from a single invocation.
type Result struct {
	Unit
	Extracted *Asset
}

// Output is final result of the pipeline for one file.
type Output struct {
	Unit
	Extracted    *Asset
	Dependencies []string
}

// Loader converts one style-sheet dialect (or performs one pass) into base CSS.
type Loader interface {
	Name() string
	Applies() Applicability
	Process(ctx context.Context, in Unit, lc *Context) (Result, error)
}

// Resetter is implemented by loaders caching anything between builds.
type Resetter interface {
	Reset()
}

// Predicate tests file path (or scoped override).
type Predicate func(path string) bool

// ApplyKind discriminates Applicability variants.
type ApplyKind int

const (
	// ApplyAlways loaders run on every processed file.
	ApplyAlways ApplyKind = iota
	// ApplyMatching loaders run only when their predicate matches.
	ApplyMatching
)

// Applicability is a tagged variant: either Always or Matching(predicate).
// For Always loaders Test is optional and is only consulted by
// Registry.IsSupported.
type Applicability struct {
	Kind ApplyKind
	Test Predicate
}

// Always returns applicability of the loader which must run on every file.
// support may be nil, when set it tells which files loader is able to
// handle on its own.
func Always(support Predicate) Applicability {
	return Applicability{Kind: ApplyAlways, Test: support}
}

// Matching returns applicability of the loader running only on matching files.
func Matching(test Predicate) Applicability {
	return Applicability{Kind: ApplyMatching, Test: test}
}

// Runs reports whether loader has to be invoked for target.
func (a Applicability) Runs(target string) bool {
	switch a.Kind {
	case ApplyAlways:
		return true
	case ApplyMatching:
		return a.Test != nil && a.Test(target)
	default:
		panic("unknown applicability kind")
	}
}

// Supports reports whether loader can handle target by itself.
func (a Applicability) Supports(target string) bool {
	switch a.Kind {
	case ApplyAlways, ApplyMatching:
		return a.Test != nil && a.Test(target)
	default:
		panic("unknown applicability kind")
	}
}

// ByExtension matches paths with any of the extensions (case insensitive,
// leading dot optional).
func ByExtension(exts ...string) Predicate {
	list := make([]string, 0, len(exts))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		list = append(list, strings.ToLower(e))
	}
	return func(path string) bool {
		return slices.Contains(list, strings.ToLower(filepath.Ext(path)))
	}
}

// ByRegexp matches paths against regular expression.
func ByRegexp(re *regexp.Regexp) Predicate {
	return re.MatchString
}
