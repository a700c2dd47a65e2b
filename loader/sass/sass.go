// Package sass compiles Sass and SCSS with Dart Sass through its embedded
// protocol.
package sass

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/godartsass/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"stylepipe/common"
	"stylepipe/loader"
	"stylepipe/sourcemap"
)

// Transpiler is the part of godartsass.Transpiler the loader needs.
type Transpiler interface {
	Execute(args godartsass.Args) (godartsass.Result, error)
	Close() error
}

// Starter launches transpiler, it is called at most once per loader.
type Starter func(opts godartsass.Options) (Transpiler, error)

// Config is loader-wide configuration.
type Config struct {
	// Binary is Dart Sass executable, "sass" from PATH when empty.
	Binary       string
	IncludePaths []string
	// ThreadPoolSize is I/O pool size the compilation queue is derived from,
	// 0 means environment or default.
	ThreadPoolSize int
	Timeout        time.Duration
	CacheSize      int
}

// Options are per-chain-entry options.
type Options struct {
	Data         string   `yaml:"data"`
	IncludePaths []string `yaml:"include_paths"`
	OutputStyle  string   `yaml:"output_style"`
}

// Loader is the Sass loader.
type Loader struct {
	cfg   Config
	log   *zap.Logger
	start Starter
	queue *Queue
	cache *lru.Cache[string, string]

	once     sync.Once
	tr       Transpiler
	startErr error

	// compilations in flight by entry URL, to route compiler log events
	active sync.Map
}

// Option customizes loader.
type Option func(*Loader)

// WithStarter replaces the function launching Dart Sass.
func WithStarter(s Starter) Option {
	return func(l *Loader) {
		l.start = s
	}
}

// WithQueue shares compilation queue.
func WithQueue(q *Queue) Option {
	return func(l *Loader) {
		l.queue = q
	}
}

// New creates Sass loader. Dart Sass is not started until first file.
func New(cfg Config, log *zap.Logger, opts ...Option) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, _ := lru.New[string, string](size)

	l := &Loader{cfg: cfg, log: log.Named("sass"), cache: cache}
	l.start = l.startDartSass
	for _, o := range opts {
		o(l)
	}
	if l.queue == nil {
		l.queue = NewQueue(QueueSize(cfg.ThreadPoolSize))
	}
	return l
}

func (l *Loader) Name() string {
	return common.LoaderKindSass.String()
}

func (l *Loader) Applies() loader.Applicability {
	return loader.Matching(loader.ByExtension(".scss", ".sass"))
}

func (l *Loader) startDartSass(opts godartsass.Options) (Transpiler, error) {
	path, err := loader.LookupTool(l.Name(), "dart-sass", l.cfg.Binary, "sass")
	if err != nil {
		return nil, err
	}
	opts.DartSassEmbeddedFilename = path
	tr, err := godartsass.Start(opts)
	if err != nil {
		return nil, fmt.Errorf("unable to start dart sass: %w", err)
	}
	return tr, nil
}

func (l *Loader) transpiler() (Transpiler, error) {
	l.once.Do(func() {
		l.tr, l.startErr = l.start(godartsass.Options{
			Timeout:         l.cfg.Timeout,
			LogEventHandler: l.logEvent,
		})
		if l.startErr == nil {
			l.log.Debug("Dart Sass started", zap.Int("queue", l.queue.Size()))
		}
	})
	return l.tr, l.startErr
}

// logEvent routes compiler diagnostics to the compilation they belong to.
// Messages with span start with URL of the file, when it is not an entry
// point and there is only one compilation running it still goes there.
func (l *Loader) logEvent(e godartsass.LogEvent) {
	var (
		target *loader.Context
		single *loader.Context
		count  int
	)
	l.active.Range(func(key, value any) bool {
		count++
		single = value.(*loader.Context)
		if strings.HasPrefix(e.Message, key.(string)) {
			target = single
			return false
		}
		return true
	})
	if target == nil && count == 1 {
		target = single
	}

	msg := strings.TrimSpace(e.Message)
	if e.Type == godartsass.LogEventTypeDebug {
		l.log.Debug(msg)
		return
	}
	if target != nil {
		target.Warnf("%s", msg)
		return
	}
	l.log.Warn(msg)
}

// Reset forgets import resolutions, files may have been added or renamed
// between builds.
func (l *Loader) Reset() {
	l.cache.Purge()
}

// Close stops Dart Sass if it was started.
func (l *Loader) Close() error {
	if l.tr == nil {
		return nil
	}
	if err := l.tr.Close(); err != nil && !errors.Is(err, godartsass.ErrShutdown) {
		return fmt.Errorf("unable to stop dart sass: %w", err)
	}
	return nil
}

func (l *Loader) Process(ctx context.Context, in loader.Unit, lc *loader.Context) (loader.Result, error) {
	var opts Options
	if err := lc.Options.Decode(&opts); err != nil {
		return loader.Result{}, err
	}

	tr, err := l.transpiler()
	if err != nil {
		return loader.Result{}, err
	}

	style := godartsass.OutputStyleExpanded
	if len(opts.OutputStyle) > 0 {
		s, err := common.ParseSassOutputStyle(strings.ToLower(opts.OutputStyle))
		if err != nil {
			return loader.Result{}, err
		}
		if s == common.SassOutputStyleCompressed {
			style = godartsass.OutputStyleCompressed
		}
	}

	dir := filepath.Dir(lc.ID)
	includes := append(append([]string{dir}, l.cfg.IncludePaths...), opts.IncludePaths...)
	entryURL := sourcemap.PathToFileURL(lc.ID)

	args := godartsass.Args{
		Source:                  opts.Data + in.Code,
		URL:                     entryURL,
		SourceSyntax:            syntaxOf(lc.ID),
		OutputStyle:             style,
		EnableSourceMap:         lc.SourceMap.Enabled(),
		SourceMapIncludeSources: true,
		IncludePaths:            includes,
		ImportResolver: &resolver{
			dir:          dir,
			includePaths: includes[1:],
			cache:        l.cache,
			loaded:       lc.AddDependency,
		},
	}

	l.active.Store(entryURL, lc)
	defer l.active.Delete(entryURL)

	var res godartsass.Result
	err = l.queue.Add(ctx, func() error {
		var err error
		res, err = tr.Execute(args)
		return err
	})
	if err != nil {
		return loader.Result{}, err
	}

	out := loader.Unit{Code: res.CSS}
	if lc.SourceMap.Enabled() && len(res.SourceMap) > 0 {
		m, err := sourcemap.Parse(res.SourceMap)
		if err != nil {
			return loader.Result{}, err
		}
		out.Map = m.NormalizeSources(lc.RootDir())
	}
	lc.Logger().Debug("Compiled", zap.String("id", lc.ID), zap.Int("bytes", len(res.CSS)))
	return loader.Result{Unit: out}, nil
}
