// Package plugin connects stylesheet pipeline to esbuild builds.
package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"stylepipe/common"
	"stylepipe/extract"
	"stylepipe/loader"
	"stylepipe/loader/less"
	"stylepipe/loader/postcss"
	"stylepipe/loader/sass"
	"stylepipe/loader/stylus"
	"stylepipe/minify"
	"stylepipe/sourcemap"
)

// Options configure pipeline for a build.
type Options struct {
	// Root is the directory module ids and map sources are relative to,
	// current directory when empty.
	Root string
	// Include and Exclude are doublestar patterns matched against paths
	// relative to Root. Empty Include means everything.
	Include []string
	Exclude []string
	// Extensions handled by the base loader.
	Extensions []string
	// Use is declared chain, DefaultChain when empty. Base loader is added
	// automatically.
	Use loader.UseChain
	// Loaders are custom loaders registered in addition to (or instead of)
	// builtin ones.
	Loaders []loader.Loader
	// Base are options of the base loader.
	Base postcss.Options

	// Extract turns extraction on, ExtractPath names single bundle.
	Extract     bool
	ExtractPath string
	SourceMap   common.SourceMapMode
	Minimize    bool
	Target      []string

	Sass   sass.Config
	Less   less.Config
	Stylus stylus.Config

	OnImport  func(id string)
	OnExtract func(*extract.Bundle) bool
	// Emitter overrides default artifact destination.
	Emitter extract.Emitter
}

func (o *Options) root() string {
	if len(o.Root) > 0 {
		return o.Root
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// Engine owns loaders, compiled pipeline and accumulator of current build.
type Engine struct {
	opts     Options
	root     string
	log      *zap.Logger
	registry *loader.Registry
	pipeline *loader.Pipeline

	mu  sync.Mutex
	acc *extract.Accumulator
}

// NewEngine registers builtin and custom loaders and compiles the chain.
// Unknown loader names fail here rather than on first file.
func NewEngine(opts Options, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, p := range append(append([]string(nil), opts.Include...), opts.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, &loader.ConfigError{Err: fmt.Errorf("bad filter pattern %q", p)}
		}
	}

	var minifier minify.Minifier = minify.Esbuild{Target: opts.Target}
	registry := loader.NewRegistry(
		postcss.New(opts.Extensions, minifier),
		sass.New(opts.Sass, log.Named("loader")),
		stylus.New(opts.Stylus, nil),
		less.New(opts.Less, nil),
	)
	for _, l := range opts.Loaders {
		registry.Register(l)
	}

	chain := opts.Use
	if len(chain) == 0 {
		chain = loader.DefaultChain()
	}
	base, err := baseOptions(&opts)
	if err != nil {
		return nil, err
	}
	chain = withBase(chain, base)

	pipeline, err := registry.Compile(chain)
	if err != nil {
		return nil, err
	}
	log.Debug("Pipeline compiled", zap.Strings("order", pipeline.Order()))

	return &Engine{
		opts:     opts,
		root:     opts.root(),
		log:      log,
		registry: registry,
		pipeline: pipeline,
		acc:      extract.NewAccumulator(),
	}, nil
}

// baseOptions folds build level settings into base loader options.
func baseOptions(opts *Options) (loader.Options, error) {
	b := opts.Base
	b.Extract = opts.Extract
	b.Minimize = b.Minimize || opts.Minimize
	if len(b.Target) == 0 {
		b.Target = opts.Target
	}
	return loader.EncodeOptions(b)
}

// withBase adds base loader, when chain already has it build level options
// are applied underneath declared ones.
func withBase(chain loader.UseChain, base loader.Options) loader.UseChain {
	name := common.LoaderKindPostcss.String()
	out := make(loader.UseChain, 0, len(chain)+1)
	for _, u := range chain {
		if u.Name == name {
			u.Options = base.Merge(u.Options)
		}
		out = append(out, u)
	}
	return out.WithBase(base)
}

// Start begins new build with empty accumulator.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.acc = extract.NewAccumulator()
	e.registry.Reset()
}

// Accumulator returns accumulator of the current build.
func (e *Engine) Accumulator() *extract.Accumulator {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.acc
}

// Root returns base directory.
func (e *Engine) Root() string {
	return e.root
}

// Filter reports whether file should be transformed.
func (e *Engine) Filter(id string) bool {
	if !e.registry.IsSupported(id) {
		return false
	}
	rel := sourcemap.Humanize(e.root, id)
	if len(e.opts.Include) > 0 && !matchAny(e.opts.Include, rel) {
		return false
	}
	return !matchAny(e.opts.Exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Transform reads file and runs it through the pipeline. Extracted
// stylesheet goes to the accumulator of the current build.
func (e *Engine) Transform(ctx context.Context, id string, warn func(string)) (loader.Output, error) {
	if e.opts.OnImport != nil {
		e.opts.OnImport(id)
	}

	data, err := os.ReadFile(id)
	if err != nil {
		return loader.Output{}, fmt.Errorf("unable to read %s: %w", id, err)
	}
	code, err := loader.DecodeSource(data)
	if err != nil {
		return loader.Output{}, fmt.Errorf("unable to decode %s: %w", id, err)
	}

	lc := &loader.Context{
		ID:           filepath.Clean(id),
		Root:         e.root,
		SourceMap:    e.opts.SourceMap,
		Dependencies: loader.NewDependencySet(),
		Warn:         warn,
		Log:          e.log.Named("loader"),
	}
	out, err := e.pipeline.Run(ctx, loader.Unit{Code: code}, lc)
	if err != nil {
		return loader.Output{}, err
	}
	if out.Extracted != nil {
		e.Accumulator().Record(*out.Extracted)
	}
	return out, nil
}

// Bundles linearizes accumulated assets along module graph and concatenates
// them. fileName maps entry module to bundle name when no explicit path is
// configured.
func (e *Engine) Bundles(g extract.ModuleGraph, outDir string, output func(entry string) string) ([]*extract.Bundle, *extract.Bundler, error) {
	bundler := extract.NewBundler(extract.Options{
		SourceMap: e.opts.SourceMap,
		Minimize:  e.opts.Minimize,
		Minifier:  minify.Esbuild{Target: e.opts.Target},
		Root:      e.root,
		OutDir:    outDir,
		OnExtract: e.opts.OnExtract,
	}, e.log)

	acc := e.Accumulator()
	if acc.Len() == 0 {
		return nil, bundler, nil
	}
	groups := extract.Plan(acc, g, func(entry string) string {
		return extract.FileName(e.opts.ExtractPath, output(entry), e.root, outDir)
	})

	bundles := make([]*extract.Bundle, 0, len(groups))
	for _, grp := range groups {
		b, err := bundler.Bundle(grp.FileName, grp.Assets)
		if err != nil {
			return nil, nil, err
		}
		bundles = append(bundles, b)
	}
	return bundles, bundler, nil
}

// Close releases loaders holding compiler processes.
func (e *Engine) Close() error {
	return e.registry.Close()
}
