package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stylepipe/common"
	"stylepipe/extract"
	"stylepipe/plugin"
	"stylepipe/state"
)

// Compile runs stylesheets found under SOURCE through the pipeline and writes
// single extracted bundle to DESTINATION.
func Compile(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("compile")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	opts, err := env.PipelineOptions()
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, &opts, log); err != nil {
		return err
	}
	// there is no JavaScript to inline into
	opts.Extract = true
	if len(opts.Root) == 0 {
		opts.Root = src
		if fi, err := os.Stat(src); err == nil && !fi.IsDir() {
			opts.Root = filepath.Dir(src)
		}
	}

	env.Overwrite = cmd.Bool("overwrite")

	if env.Rpt != nil {
		if err := env.Rpt.StoreCopy("source/"+filepath.Base(src), src); err != nil {
			log.Warn("Unable to store source in debug report", zap.Error(err))
		}
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return compile(ctx, src, dst, bundleName(cmd.String("out"), src), opts, env.Overwrite, log)
}

// bundleName derives bundle name from source when none was requested.
func bundleName(requested, src string) string {
	if len(requested) > 0 {
		return requested
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	if name := slug.Make(base); len(name) > 0 {
		return name + ".css"
	}
	return "bundle.css"
}

// compile handles the core logic independently of CLI framework.
func compile(ctx context.Context, src, dst, name string, opts plugin.Options, overwrite bool, log *zap.Logger) error {
	engine, err := plugin.NewEngine(opts, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn("Unable to release loaders", zap.Error(err))
		}
	}()

	ids, err := collect(ctx, src, dst, engine, log)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		log.Warn("Nothing to process", zap.String("source", src))
		return nil
	}

	engine.Start()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, id := range ids {
		g.Go(func() error {
			rel := filepath.ToSlash(mustRel(engine.Root(), id))
			_, err := engine.Transform(gctx, id, func(msg string) {
				log.Warn("Stylesheet warning", zap.String("file", rel), zap.String("warning", msg))
			})
			if err != nil {
				return fmt.Errorf("unable to process %s: %w", rel, err)
			}
			log.Debug("Stylesheet processed", zap.String("file", rel))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	graph := extract.OrderedGraph{Entry: src, Order: ids}
	bundles, bundler, err := engine.Bundles(graph, dst, func(string) string { return name })
	if err != nil {
		return err
	}
	emitter := guardedEmitter{DiskEmitter: extract.DiskEmitter{Dir: dst}, overwrite: overwrite}
	for _, b := range bundles {
		if _, err := bundler.Emit(emitter, b); err != nil {
			return err
		}
	}
	return nil
}

// collect returns stylesheets under src in natural order. Partials (names
// starting with underscore) are only compiled through imports. Output
// directory is never scanned.
func collect(ctx context.Context, src, dst string, engine *plugin.Engine, log *zap.Logger) ([]string, error) {
	fi, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("input source was not found: %w", err)
	}
	if !fi.IsDir() {
		if !engine.Filter(src) {
			return nil, fmt.Errorf("input is not a supported stylesheet (%s)", src)
		}
		return []string{src}, nil
	}

	var ids []string
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			if path != src && (d.Name() == "node_modules" || path == dst) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), "_") {
			return nil
		}
		if !engine.Filter(path) {
			log.Debug("Skipping file, no loader or filtered out", zap.String("file", path))
			return nil
		}
		ids = append(ids, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Sort(natural.StringSlice(ids))
	return ids, nil
}

func mustRel(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil {
		return rel
	}
	return p
}

// guardedEmitter refuses to replace existing files unless asked to.
type guardedEmitter struct {
	extract.DiskEmitter
	overwrite bool
}

func (e guardedEmitter) Emit(fileName string, data []byte) error {
	p := filepath.Join(e.Dir, filepath.FromSlash(fileName))
	if _, err := os.Stat(p); err == nil && !e.overwrite {
		return fmt.Errorf("output file already exists: %s", p)
	}
	return e.DiskEmitter.Emit(fileName, data)
}

// applyFlags overrides configured pipeline settings with command line.
func applyFlags(cmd *cli.Command, opts *plugin.Options, log *zap.Logger) error {
	if cmd.IsSet("sourcemap") {
		mode, err := common.ParseSourceMapMode(cmd.String("sourcemap"))
		if err != nil {
			return fmt.Errorf("bad source map mode: %w", err)
		}
		opts.SourceMap = mode
	}
	if cmd.IsSet("minify") {
		opts.Minimize = cmd.Bool("minify")
	}
	if cmd.IsSet("extract") {
		opts.Extract = cmd.Bool("extract")
	}
	if cmd.IsSet("extract-path") {
		opts.ExtractPath = cmd.String("extract-path")
		opts.Extract = true
	}
	if cmd.IsSet("root") {
		root, err := filepath.Abs(cmd.String("root"))
		if err != nil {
			return err
		}
		opts.Root = root
	}
	log.Debug("Pipeline options",
		zap.Stringer("sourcemap", opts.SourceMap),
		zap.Bool("extract", opts.Extract),
		zap.String("extract-path", opts.ExtractPath),
		zap.Bool("minify", opts.Minimize),
		zap.Strings("use", opts.Use.Names()))
	return nil
}

// Flags are pipeline overrides shared by subcommands.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "root", Usage: "resolve module ids and source map paths relative to `DIR`"},
		&cli.StringFlag{Name: "sourcemap", Aliases: []string{"sm"},
			Usage: "source map `MODE` (supported modes: " + strings.Join(common.SourceMapModeNames(), ", ") + ")"},
		&cli.BoolFlag{Name: "minify", Aliases: []string{"m"}, Usage: "minify produced stylesheets"},
		&cli.BoolFlag{Name: "extract", Aliases: []string{"x"}, Usage: "extract stylesheets into separate CSS file(s)"},
		&cli.StringFlag{Name: "extract-path", Usage: "write extracted stylesheets into single bundle at `PATH` (relative to root directory)"},
	}
}
