package plugin

import (
	"context"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"stylepipe/extract"
	"stylepipe/loader/postcss"
)

// Name of the esbuild plugin.
const Name = "stylepipe"

var builtinExtensions = []string{".scss", ".sass", ".less", ".styl", ".stylus"}

// New creates esbuild plugin running stylesheets through the pipeline.
func New(opts Options, log *zap.Logger) (api.Plugin, error) {
	e, err := NewEngine(opts, log)
	if err != nil {
		return api.Plugin{}, err
	}
	return e.Plugin(), nil
}

// Plugin returns esbuild plugin backed by engine.
func (e *Engine) Plugin() api.Plugin {
	return api.Plugin{Name: Name, Setup: e.setup}
}

// loadFilter selects paths esbuild hands to the plugin. Custom loaders may
// accept anything so they get every file.
func (e *Engine) loadFilter() string {
	if len(e.opts.Loaders) > 0 {
		return `.*`
	}
	exts := slices.Clone(e.opts.Extensions)
	if len(exts) == 0 {
		exts = slices.Clone(postcss.DefaultExtensions)
	}
	exts = append(exts, builtinExtensions...)
	quoted := make([]string, 0, len(exts))
	for _, ext := range exts {
		quoted = append(quoted, regexp.QuoteMeta(strings.TrimPrefix(strings.ToLower(ext), ".")))
	}
	slices.Sort(quoted)
	return `(?i)\.(` + strings.Join(slices.Compact(quoted), "|") + `)$`
}

func (e *Engine) setup(build api.PluginBuild) {
	opts := build.InitialOptions
	opts.Metafile = true

	workdir := opts.AbsWorkingDir
	if len(workdir) == 0 {
		workdir = e.root
	}
	outDir := opts.Outdir
	if len(outDir) == 0 && len(opts.Outfile) > 0 {
		outDir = filepath.Dir(opts.Outfile)
	}
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(workdir, outDir)
	}
	write := opts.Write

	ctx, cancel := context.WithCancel(context.Background())
	log := e.log.Named("plugin")

	build.OnStart(func() (api.OnStartResult, error) {
		e.Start()
		return api.OnStartResult{}, nil
	})

	build.OnLoad(api.OnLoadOptions{Filter: e.loadFilter(), Namespace: "file"},
		func(args api.OnLoadArgs) (api.OnLoadResult, error) {
			return e.onLoad(ctx, args), nil
		})

	build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
		if len(result.Errors) > 0 || !e.opts.Extract {
			return api.OnEndResult{}, nil
		}
		var emitter extract.Emitter = e.opts.Emitter
		if emitter == nil {
			if write {
				emitter = extract.DiskEmitter{Dir: outDir}
			} else {
				emitter = &outputFiles{result: result, dir: outDir}
			}
		}
		if err := e.finish(result.Metafile, workdir, outDir, emitter); err != nil {
			log.Error("Unable to extract stylesheets", zap.Error(err))
			return api.OnEndResult{Errors: []api.Message{{PluginName: Name, Text: err.Error()}}}, nil
		}
		return api.OnEndResult{}, nil
	})

	build.OnDispose(func() {
		cancel()
		if err := e.Close(); err != nil {
			log.Warn("Unable to release loaders", zap.Error(err))
		}
	})
}

func (e *Engine) onLoad(ctx context.Context, args api.OnLoadArgs) api.OnLoadResult {
	if !e.Filter(args.Path) {
		return api.OnLoadResult{}
	}

	var (
		mu       sync.Mutex
		warnings []api.Message
	)
	warn := func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, api.Message{PluginName: Name, Text: msg, Location: &api.Location{File: args.Path}})
	}

	out, err := e.Transform(ctx, args.Path, warn)
	if err != nil {
		return api.OnLoadResult{
			PluginName: Name,
			Errors:     []api.Message{{PluginName: Name, Text: err.Error(), Location: &api.Location{File: args.Path}}},
			Warnings:   warnings,
		}
	}

	contents := out.Code
	return api.OnLoadResult{
		PluginName: Name,
		Contents:   &contents,
		Loader:     api.LoaderJS,
		ResolveDir: filepath.Dir(args.Path),
		WatchFiles: out.Dependencies,
		Warnings:   warnings,
	}
}

// finish bundles everything extracted during the build.
func (e *Engine) finish(metafile, workdir, outDir string, emitter extract.Emitter) error {
	if e.Accumulator().Len() == 0 {
		return nil
	}
	g, err := ParseMetafile(metafile, workdir)
	if err != nil {
		return err
	}
	bundles, bundler, err := e.Bundles(g, outDir, g.Output)
	if err != nil {
		return err
	}
	for _, b := range bundles {
		if _, emitErr := bundler.Emit(emitter, b); emitErr != nil {
			err = multierr.Append(err, emitErr)
		}
	}
	return err
}

// outputFiles adds artifacts to build result when esbuild does not write
// files itself.
type outputFiles struct {
	result *api.BuildResult
	dir    string
}

func (o *outputFiles) Emit(fileName string, data []byte) error {
	o.result.OutputFiles = append(o.result.OutputFiles, api.OutputFile{
		Path:     filepath.Join(o.dir, filepath.FromSlash(fileName)),
		Contents: data,
	})
	return nil
}
