// Package postcss implements the base loader every stylesheet goes through
// last: it understands plain CSS, applies CSS modules and turns the result
// into a JavaScript module or an extracted asset.
package postcss

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"stylepipe/common"
	"stylepipe/loader"
	"stylepipe/minify"
	"stylepipe/sourcemap"
)

// DefaultExtensions are handled by the base loader alone.
var DefaultExtensions = []string{".css", ".sss", ".pcss"}

// Loader is the base CSS loader.
type Loader struct {
	extensions []string
	minifier   minify.Minifier
}

// New creates base loader. Empty extensions means DefaultExtensions, nil
// minifier means esbuild.
func New(extensions []string, m minify.Minifier) *Loader {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if m == nil {
		m = minify.Esbuild{}
	}
	return &Loader{extensions: extensions, minifier: m}
}

func (l *Loader) Name() string {
	return common.LoaderKindPostcss.String()
}

func (l *Loader) Applies() loader.Applicability {
	return loader.Always(loader.ByExtension(l.extensions...))
}

func (l *Loader) Process(ctx context.Context, in loader.Unit, lc *loader.Context) (loader.Result, error) {
	var opts Options
	if err := lc.Options.Decode(&opts); err != nil {
		return loader.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return loader.Result{}, err
	}

	root := lc.RootDir()
	rel := sourcemap.Humanize(root, lc.ID)

	code, prev, err := sourcemap.ExtractInline(in.Code)
	if err != nil {
		return loader.Result{}, err
	}
	if prev == nil {
		prev = in.Map
	}

	toks, err := tokenize(code)
	if err != nil {
		return loader.Result{}, fmt.Errorf("%s:%w", rel, err)
	}

	var (
		s        *scope
		css      = code
		rewrites []sourcemap.Mapping
	)
	if opts.Modules.Enable || (opts.autoModules() && isModuleFile(lc.ID)) {
		s = newScope(scopedNamer(opts.scopedName(), lc.ID, rel))
		css, rewrites = rewriteModules(toks, s)
	}
	collectImports(css, lc.ID, lc.AddDependency)

	var m *sourcemap.Map
	if lc.SourceMap.Enabled() {
		switch {
		case s != nil:
			// renamed identifiers shift columns, map has to follow them
			m = rewriteMap(rel, code, rewrites)
			if prev != nil {
				if m, err = sourcemap.Compose(m, prev.NormalizeSources(root)); err != nil {
					return loader.Result{}, fmt.Errorf("%s: %w", rel, err)
				}
			}
		case prev == nil:
			m = sourcemap.Identity(rel, code)
		default:
			m = prev.NormalizeSources(root)
		}
		m.File = filepath.Base(lc.ID)
	}

	var out strings.Builder
	ex := newExports(s)
	if opts.NamedExports {
		ex.named(&out, rel, func(msg string) { lc.Warnf("%s", msg) })
	}

	if opts.Extract {
		out.WriteString("export default " + ex.object() + ";")
		lc.Logger().Debug("Extracted", zap.String("id", rel), zap.Int("classes", len(ex.keys)))
		return loader.Result{
			Unit:      loader.Unit{Code: out.String()},
			Extracted: &loader.Asset{ID: lc.ID, Code: css, Map: m},
		}, nil
	}

	if opts.Minimize {
		minifier := l.minifier
		if len(opts.Target) > 0 {
			minifier = minify.Esbuild{Target: opts.Target}
		}
		if css, m, err = minifier.Minify(css, rel, m); err != nil {
			return loader.Result{}, err
		}
	}
	if m != nil && lc.SourceMap == common.SourceMapModeInline {
		comment, err := sourcemap.InlineComment(m)
		if err != nil {
			return loader.Result{}, err
		}
		css += "\n" + comment
	}

	literal := jsString(css)
	def := "css"
	if s != nil {
		def = ex.object()
	}
	out.WriteString("var css = " + literal + ";\nexport default " + def + ";\nexport const stylesheet=" + literal + ";")

	inject, err := injectCode(&opts, css, rel)
	if err != nil {
		return loader.Result{}, err
	}
	out.WriteString(inject)
	return loader.Result{Unit: loader.Unit{Code: out.String()}}, nil
}
