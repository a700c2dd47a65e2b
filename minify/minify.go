// Package minify compresses CSS with esbuild and keeps source maps chained.
package minify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/multierr"

	"stylepipe/sourcemap"
)

// Minifier compresses CSS. When prev is not nil returned map is prev
// composed with minifier own map, otherwise returned map is nil.
type Minifier interface {
	Minify(code, sourcefile string, prev *sourcemap.Map) (string, *sourcemap.Map, error)
}

// Esbuild minifies using esbuild transform API.
type Esbuild struct {
	// Target browsers, esbuild syntax ("chrome58", "safari11"), empty for esnext.
	Target []string
}

func (e Esbuild) Minify(code, sourcefile string, prev *sourcemap.Map) (string, *sourcemap.Map, error) {
	opts := api.TransformOptions{
		Loader:           api.LoaderCSS,
		Sourcefile:       sourcefile,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		LegalComments:    api.LegalCommentsNone,
		LogLevel:         api.LogLevelSilent,
		Engines:          engines(e.Target),
		Sourcemap:        api.SourceMapNone,
		SourcesContent:   api.SourcesContentExclude,
	}
	if prev != nil {
		opts.Sourcemap = api.SourceMapExternal
	}

	res := api.Transform(code, opts)
	if len(res.Errors) > 0 {
		return "", nil, messagesError(res.Errors)
	}
	out := strings.TrimSuffix(string(res.Code), "\n")
	if prev == nil {
		return out, nil, nil
	}

	m, err := sourcemap.Parse(res.Map)
	if err != nil {
		return "", nil, fmt.Errorf("unable to read minifier source map: %w", err)
	}
	m, err = sourcemap.Compose(m, prev)
	if err != nil {
		return "", nil, fmt.Errorf("unable to chain minifier source map: %w", err)
	}
	m.File = prev.File
	return out, m, nil
}

func engines(targets []string) []api.Engine {
	var out []api.Engine
	for _, t := range targets {
		name, version := splitTarget(t)
		switch name {
		case "chrome":
			out = append(out, api.Engine{Name: api.EngineChrome, Version: version})
		case "edge":
			out = append(out, api.Engine{Name: api.EngineEdge, Version: version})
		case "firefox":
			out = append(out, api.Engine{Name: api.EngineFirefox, Version: version})
		case "ios":
			out = append(out, api.Engine{Name: api.EngineIOS, Version: version})
		case "opera":
			out = append(out, api.Engine{Name: api.EngineOpera, Version: version})
		case "safari":
			out = append(out, api.Engine{Name: api.EngineSafari, Version: version})
		}
	}
	return out
}

func splitTarget(t string) (string, string) {
	t = strings.ToLower(strings.TrimSpace(t))
	i := strings.IndexFunc(t, func(r rune) bool { return r >= '0' && r <= '9' })
	if i < 0 {
		return t, ""
	}
	return t[:i], t[i:]
}

func messagesError(msgs []api.Message) error {
	var errs []error
	for _, m := range msgs {
		if m.Location != nil {
			errs = append(errs, fmt.Errorf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		errs = append(errs, errors.New(m.Text))
	}
	return multierr.Combine(errs...)
}
