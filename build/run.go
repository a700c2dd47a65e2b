// Package build implements program subcommands driving the stylesheet
// pipeline.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"stylepipe/common"
	"stylepipe/plugin"
	"stylepipe/state"
)

// Run bundles JavaScript entry points with esbuild, stylesheets imported by
// them go through the pipeline.
func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("build")

	entries := cmd.Args().Slice()
	if len(entries) == 0 {
		return errors.New("no entry points have been specified")
	}

	opts, err := env.PipelineOptions()
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, &opts, log); err != nil {
		return err
	}
	if len(opts.Root) == 0 {
		if opts.Root, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}

	format, err := parseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	p, err := plugin.New(opts, env.Log)
	if err != nil {
		return err
	}

	bo := api.BuildOptions{
		EntryPoints:   entries,
		AbsWorkingDir: opts.Root,
		Bundle:        true,
		Write:         true,
		Format:        format,
		LogLevel:      api.LogLevelSilent,
		Plugins:       []api.Plugin{p},
	}
	if out := cmd.String("outfile"); len(out) > 0 {
		bo.Outfile = out
	} else {
		bo.Outdir = cmd.String("outdir")
	}
	if opts.Minimize {
		bo.MinifyWhitespace, bo.MinifyIdentifiers, bo.MinifySyntax = true, true, true
	}
	switch opts.SourceMap {
	case common.SourceMapModeFile:
		bo.Sourcemap = api.SourceMapLinked
	case common.SourceMapModeInline:
		bo.Sourcemap = api.SourceMapInline
	}

	log.Info("Build starting", zap.Strings("entries", entries), zap.String("root", opts.Root))
	defer func(start time.Time) {
		log.Info("Build completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	result := api.Build(bo)
	for _, m := range result.Warnings {
		log.Warn("Build warning", zap.String("message", describe(m)))
	}
	for _, m := range result.Errors {
		log.Error("Build error", zap.String("message", describe(m)))
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("build failed with %d error(s)", len(result.Errors))
	}
	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(opts.Root, f.Path)
		if err != nil {
			rel = f.Path
		}
		log.Debug("Output written", zap.String("file", filepath.ToSlash(rel)), zap.Int("bytes", len(f.Contents)))
	}
	return nil
}

func parseFormat(name string) (api.Format, error) {
	switch name {
	case "", "esm":
		return api.FormatESModule, nil
	case "iife":
		return api.FormatIIFE, nil
	case "cjs":
		return api.FormatCommonJS, nil
	}
	return api.FormatDefault, fmt.Errorf("unknown output format %q", name)
}

// describe formats message the way compilers do: "file:line:col: text".
func describe(m api.Message) string {
	text := m.Text
	if len(m.PluginName) > 0 {
		text = "[" + m.PluginName + "] " + text
	}
	if m.Location == nil || len(m.Location.File) == 0 {
		return text
	}
	if m.Location.Line == 0 {
		return m.Location.File + ": " + text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, text)
}
