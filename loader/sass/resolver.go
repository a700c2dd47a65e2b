package sass

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bep/godartsass/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"stylepipe/sourcemap"
)

var extensions = []string{".scss", ".sass", ".css"}

// resolver implements godartsass.ImportResolver for a single compilation.
// Module imports ("~name/path") prefer partials and never fail: when nothing
// is found the reference is left for Dart Sass to handle.
type resolver struct {
	dir          string
	includePaths []string
	cache        *lru.Cache[string, string]
	loaded       func(path string)
}

func (r *resolver) CanonicalizeURL(url string) (string, error) {
	key := r.dir + "\x00" + url
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			if _, err := os.Stat(sourcemap.FileURLToPath(v)); err == nil {
				return v, nil
			}
			// renamed or removed since it was resolved
			r.cache.Remove(key)
		}
	}

	path := r.resolve(url)
	if len(path) == 0 {
		return "", nil
	}
	canonical := sourcemap.PathToFileURL(path)
	if r.cache != nil {
		r.cache.Add(key, canonical)
	}
	return canonical, nil
}

func (r *resolver) Load(canonicalizedURL string) (godartsass.Import, error) {
	path := sourcemap.FileURLToPath(canonicalizedURL)
	data, err := os.ReadFile(path)
	if err != nil {
		return godartsass.Import{}, fmt.Errorf("unable to load %s: %w", path, err)
	}
	if r.loaded != nil {
		r.loaded(path)
	}
	return godartsass.Import{Content: string(data), SourceSyntax: syntaxOf(path)}, nil
}

func (r *resolver) resolve(url string) string {
	if strings.HasPrefix(url, "file://") {
		p := sourcemap.FileURLToPath(url)
		slashed := filepath.ToSlash(p)
		if i := strings.Index(slashed, "/~"); i >= 0 {
			return r.resolveModule(filepath.FromSlash(slashed[:i]), slashed[i+2:])
		}
		return firstExisting(candidates(p))
	}
	if strings.Contains(url, "://") {
		return ""
	}
	if mod, ok := strings.CutPrefix(url, "~"); ok {
		return r.resolveModule(r.dir, mod)
	}
	if filepath.IsAbs(url) {
		return firstExisting(candidates(url))
	}
	for _, base := range append([]string{r.dir}, r.includePaths...) {
		if p := firstExisting(candidates(filepath.Join(base, filepath.FromSlash(url)))); len(p) > 0 {
			return p
		}
	}
	return ""
}

// resolveModule looks for module under node_modules walking up from dir and
// under include paths. Partial variant is tried before the literal path.
func (r *resolver) resolveModule(dir, mod string) string {
	mod = filepath.FromSlash(strings.TrimPrefix(mod, "/"))
	if len(mod) == 0 {
		return ""
	}

	var roots []string
	for d := dir; ; {
		roots = append(roots, filepath.Join(d, "node_modules"))
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	for _, inc := range r.includePaths {
		roots = append(roots, inc, filepath.Join(inc, "node_modules"))
	}

	for _, root := range roots {
		target := filepath.Join(root, mod)
		if p := firstExisting(partialCandidates(target)); len(p) > 0 {
			return p
		}
		if p := firstExisting(literalCandidates(target)); len(p) > 0 {
			return p
		}
	}
	return ""
}

func partialCandidates(p string) []string {
	dir, base := filepath.Split(p)
	if strings.HasPrefix(base, "_") {
		return nil
	}
	return literalCandidates(filepath.Join(dir, "_"+base))
}

func literalCandidates(p string) []string {
	if hasKnownExt(p) {
		return []string{p}
	}
	out := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		out = append(out, p+ext)
	}
	return out
}

// candidates lists Sass lookup order for a path: partial, literal, index.
func candidates(p string) []string {
	out := append(partialCandidates(p), literalCandidates(p)...)
	if !hasKnownExt(p) {
		for _, ext := range extensions {
			out = append(out, filepath.Join(p, "_index"+ext), filepath.Join(p, "index"+ext))
		}
	}
	return out
}

func hasKnownExt(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func syntaxOf(path string) godartsass.SourceSyntax {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sass":
		return godartsass.SourceSyntaxSASS
	case ".css":
		return godartsass.SourceSyntaxCSS
	default:
		return godartsass.SourceSyntaxSCSS
	}
}
