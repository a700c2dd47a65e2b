// Package stylus compiles Stylus with stylus command line compiler.
package stylus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"stylepipe/common"
	"stylepipe/loader"
	"stylepipe/sourcemap"
)

// Config is loader-wide configuration.
type Config struct {
	// Binary is stylus executable, "stylus" from PATH when empty.
	Binary       string
	IncludePaths []string
}

// Options are per-chain-entry options.
type Options struct {
	IncludePaths []string `yaml:"include_paths"`
	// Use lists stylus plugins passed with --use.
	Use []string `yaml:"use"`
	// ResolveURL makes stylus rewrite url() relative to the entry file.
	ResolveURL bool `yaml:"resolve_url"`
}

// Loader is the Stylus loader.
type Loader struct {
	cfg    Config
	runner loader.Runner

	once    sync.Once
	bin     string
	lookErr error
}

// New creates Stylus loader, nil runner means real processes.
func New(cfg Config, runner loader.Runner) *Loader {
	if runner == nil {
		runner = loader.ExecRunner{}
	}
	return &Loader{cfg: cfg, runner: runner}
}

func (l *Loader) Name() string {
	return common.LoaderKindStylus.String()
}

func (l *Loader) Applies() loader.Applicability {
	return loader.Matching(loader.ByExtension(".styl", ".stylus"))
}

func (l *Loader) stylus() (string, error) {
	l.once.Do(func() {
		l.bin, l.lookErr = loader.LookupTool(l.Name(), "stylus", l.cfg.Binary, "stylus")
	})
	return l.bin, l.lookErr
}

func (l *Loader) Process(ctx context.Context, in loader.Unit, lc *loader.Context) (loader.Result, error) {
	var opts Options
	if err := lc.Options.Decode(&opts); err != nil {
		return loader.Result{}, err
	}
	bin, err := l.stylus()
	if err != nil {
		return loader.Result{}, err
	}

	tmp, err := os.MkdirTemp("", "stylepipe-stylus-")
	if err != nil {
		return loader.Result{}, fmt.Errorf("unable to create temporary directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	input := filepath.Join(tmp, filepath.Base(lc.ID))
	if err := os.WriteFile(input, []byte(in.Code), 0o600); err != nil {
		return loader.Result{}, fmt.Errorf("unable to write stylus input: %w", err)
	}

	var shared []string
	for _, inc := range append(append([]string{filepath.Dir(lc.ID)}, l.cfg.IncludePaths...), opts.IncludePaths...) {
		shared = append(shared, "--include", inc)
	}
	for _, u := range opts.Use {
		shared = append(shared, "--use", u)
	}

	args := append([]string{"--print"}, shared...)
	if opts.ResolveURL {
		args = append(args, "--resolve-url")
	}
	if lc.SourceMap.Enabled() {
		args = append(args, "--sourcemap-inline")
	}
	args = append(args, input)

	out, err := l.runner.Run(ctx, tmp, "", bin, args...)
	if err != nil {
		return loader.Result{}, errors.New(strings.ReplaceAll(err.Error(), input, lc.ID))
	}

	code, m, err := sourcemap.ExtractInline(strings.TrimRight(out, "\n"))
	if err != nil {
		return loader.Result{}, err
	}
	res := loader.Result{Unit: loader.Unit{Code: code}}
	if m != nil && lc.SourceMap.Enabled() {
		m = m.RewriteSources(func(s string) string {
			if p := absolute(tmp, s); p != input {
				return p
			}
			return lc.ID
		})
		m.File = filepath.Base(lc.ID)
		res.Map = m.NormalizeSources(lc.RootDir())
	}

	deps, err := l.runner.Run(ctx, tmp, "", bin, append(append([]string{"--deps"}, shared...), input)...)
	if err != nil {
		return loader.Result{}, fmt.Errorf("unable to list stylus dependencies: %w", err)
	}
	sc := bufio.NewScanner(strings.NewReader(deps))
	for sc.Scan() {
		if p := strings.TrimSpace(sc.Text()); len(p) > 0 {
			lc.AddDependency(absolute(tmp, p))
		}
	}

	lc.Logger().Debug("Compiled", zap.String("id", lc.ID), zap.Int("bytes", len(code)))
	return res, nil
}

func absolute(base, p string) string {
	if strings.HasPrefix(p, "file://") {
		p = sourcemap.FileURLToPath(p)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, filepath.FromSlash(p))
	}
	return p
}
