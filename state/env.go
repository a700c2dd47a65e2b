// Package state defines shared program state.
package state

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stylepipe/config"
	"stylepipe/extract"
	"stylepipe/loader/less"
	"stylepipe/loader/sass"
	"stylepipe/loader/stylus"
	"stylepipe/plugin"
)

type envKey struct{}

// LocalEnv keeps everything program needs in a single place.
type LocalEnv struct {
	Cfg *config.Config
	Rpt *config.Report
	Log *zap.Logger

	// used by build and compile subcommands
	Overwrite bool

	start         time.Time
	restoreStdLog func()
}

func EnvFromContext(ctx context.Context) *LocalEnv {
	if env, ok := ctx.Value(envKey{}).(*LocalEnv); ok {
		return env
	}
	// this should never happen
	panic("localenv not found in context")
}

func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, &LocalEnv{start: time.Now()})
}

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

func (e *LocalEnv) RedirectStdLog() {
	if e.Log == nil {
		return
	}
	e.restoreStdLog = zap.RedirectStdLog(e.Log)
}

func (e *LocalEnv) RestoreStdLog() {
	if e.Log != nil {
		_ = e.Log.Sync()
	}
	if e.restoreStdLog != nil {
		e.restoreStdLog()
	}
}

// PipelineOptions translates loaded configuration into pipeline options.
// Every emitted stylesheet is stored in the debug report when one is
// requested.
func (e *LocalEnv) PipelineOptions() (plugin.Options, error) {
	p := &e.Cfg.Pipeline
	chain, err := p.Chain()
	if err != nil {
		return plugin.Options{}, err
	}

	opts := plugin.Options{
		Root:        p.Root,
		Include:     p.Include,
		Exclude:     p.Exclude,
		Extensions:  p.Extensions,
		Use:         chain,
		Base:        p.Base(),
		Extract:     p.Extract,
		ExtractPath: p.ExtractPath,
		SourceMap:   p.SourceMap,
		Minimize:    p.Minimize,
		Target:      p.Target,
		Sass: sass.Config{
			Binary:         e.Cfg.Loaders.Sass.Binary,
			IncludePaths:   e.Cfg.Loaders.Sass.IncludePaths,
			ThreadPoolSize: e.Cfg.Loaders.Sass.ThreadPoolSize,
			Timeout:        e.Cfg.Loaders.Sass.Timeout,
			CacheSize:      e.Cfg.Loaders.Sass.CacheSize,
		},
		Less: less.Config{
			Binary:       e.Cfg.Loaders.Less.Binary,
			IncludePaths: e.Cfg.Loaders.Less.IncludePaths,
			Args:         e.Cfg.Loaders.Less.Args,
		},
		Stylus: stylus.Config{
			Binary:       e.Cfg.Loaders.Stylus.Binary,
			IncludePaths: e.Cfg.Loaders.Stylus.IncludePaths,
		},
	}
	if e.Rpt != nil {
		opts.OnExtract = func(b *extract.Bundle) bool {
			artifacts, err := b.Artifacts()
			if err != nil {
				// emission reports the same problem
				return true
			}
			for _, a := range artifacts {
				e.Rpt.StoreData("bundles/"+a.Name, a.Data)
			}
			return true
		}
	}
	return opts, nil
}
