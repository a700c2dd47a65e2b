// Package less compiles Less with lessc command line compiler.
package less

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"stylepipe/common"
	"stylepipe/loader"
	"stylepipe/sourcemap"
)

// Config is loader-wide configuration.
type Config struct {
	// Binary is lessc executable, "lessc" from PATH when empty.
	Binary       string
	IncludePaths []string
	// Args are appended to every invocation.
	Args []string
}

// Options are per-chain-entry options.
type Options struct {
	IncludePaths []string          `yaml:"include_paths"`
	GlobalVars   map[string]string `yaml:"global_vars"`
	ModifyVars   map[string]string `yaml:"modify_vars"`
	Math         string            `yaml:"math"`
}

// Loader is the Less loader.
type Loader struct {
	cfg    Config
	runner loader.Runner

	once    sync.Once
	bin     string
	lookErr error
}

// New creates Less loader, nil runner means real processes.
func New(cfg Config, runner loader.Runner) *Loader {
	if runner == nil {
		runner = loader.ExecRunner{}
	}
	return &Loader{cfg: cfg, runner: runner}
}

func (l *Loader) Name() string {
	return common.LoaderKindLess.String()
}

func (l *Loader) Applies() loader.Applicability {
	return loader.Matching(loader.ByExtension(".less"))
}

func (l *Loader) lessc() (string, error) {
	l.once.Do(func() {
		l.bin, l.lookErr = loader.LookupTool(l.Name(), "less", l.cfg.Binary, "lessc")
	})
	return l.bin, l.lookErr
}

var annotation = regexp.MustCompile(`\n?/\*# sourceMappingURL=[^*]*\*/\s*$`)

func (l *Loader) Process(ctx context.Context, in loader.Unit, lc *loader.Context) (loader.Result, error) {
	var opts Options
	if err := lc.Options.Decode(&opts); err != nil {
		return loader.Result{}, err
	}
	bin, err := l.lessc()
	if err != nil {
		return loader.Result{}, err
	}

	tmp, err := os.MkdirTemp("", "stylepipe-less-")
	if err != nil {
		return loader.Result{}, fmt.Errorf("unable to create temporary directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	// compiled copy lives in temporary directory, imports relative to the
	// original file are found through include path
	dir := filepath.Dir(lc.ID)
	input := filepath.Join(tmp, filepath.Base(lc.ID))
	output := input + ".css"
	if err := os.WriteFile(input, []byte(in.Code), 0o600); err != nil {
		return loader.Result{}, fmt.Errorf("unable to write less input: %w", err)
	}

	includes := append(append([]string{dir}, l.cfg.IncludePaths...), opts.IncludePaths...)
	args := []string{
		"--no-color",
		"--include-path=" + strings.Join(includes, string(os.PathListSeparator)),
		"--source-map=" + output + ".map",
		"--source-map-include-source",
	}
	if len(opts.Math) > 0 {
		args = append(args, "--math="+opts.Math)
	}
	args = append(args, varArgs("--global-var", opts.GlobalVars)...)
	args = append(args, varArgs("--modify-var", opts.ModifyVars)...)
	args = append(args, l.cfg.Args...)
	args = append(args, input, output)

	if _, err := l.runner.Run(ctx, dir, "", bin, args...); err != nil {
		return loader.Result{}, errors.New(strings.ReplaceAll(err.Error(), input, lc.ID))
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return loader.Result{}, fmt.Errorf("unable to read lessc output: %w", err)
	}
	out := loader.Unit{Code: annotation.ReplaceAllString(string(data), "")}

	m, err := readMap(output + ".map")
	if err != nil {
		return loader.Result{}, err
	}
	if m != nil {
		// sources are relative to the map file
		m = m.RewriteSources(func(s string) string {
			p := s
			if strings.HasPrefix(p, "file://") {
				p = sourcemap.FileURLToPath(p)
			}
			if !filepath.IsAbs(p) {
				p = filepath.Join(tmp, filepath.FromSlash(p))
			}
			if p == input {
				return lc.ID
			}
			return p
		})
		for _, s := range m.Sources {
			if s != lc.ID {
				lc.AddDependency(s)
			}
		}
		if lc.SourceMap.Enabled() {
			m.File = filepath.Base(lc.ID)
			out.Map = m.NormalizeSources(lc.RootDir())
		}
	}
	lc.Logger().Debug("Compiled", zap.String("id", lc.ID), zap.Int("bytes", len(out.Code)))
	return loader.Result{Unit: out}, nil
}

func readMap(path string) (*sourcemap.Map, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read lessc source map: %w", err)
	}
	return sourcemap.Parse(data)
}

// varArgs renders variables as repeated "flag=name=value" arguments in
// stable order.
func varArgs(flag string, vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		out = append(out, flag+"="+strings.TrimPrefix(k, "@")+"="+vars[k])
	}
	return out
}
