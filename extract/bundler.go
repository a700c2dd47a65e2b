package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"stylepipe/common"
	"stylepipe/loader"
	"stylepipe/minify"
	"stylepipe/sourcemap"
)

// HashPlaceholder in bundle file name is replaced with content hash.
const HashPlaceholder = "[hash]"

// Options control how bundles are produced.
type Options struct {
	SourceMap common.SourceMapMode
	Minimize  bool
	// Minifier defaults to esbuild.
	Minifier minify.Minifier
	// Root is the directory asset map sources are relative to.
	Root string
	// OutDir is the directory bundles are written to, bundle map sources
	// are made relative to it.
	OutDir string
	// OnExtract is called with every bundle before emission, returning false
	// skips it.
	OnExtract func(*Bundle) bool
}

// Bundle is concatenated stylesheet ready for emission.
type Bundle struct {
	// FileName is relative to output directory, forward slashes.
	FileName string
	Code     string
	// Map is set only when map goes into separate file.
	Map         *sourcemap.Map
	MapFileName string
}

// Artifact is a single file to emit.
type Artifact struct {
	Name string
	Data []byte
}

// Artifacts returns bundle files: stylesheet and, when present, its map.
func (b *Bundle) Artifacts() ([]Artifact, error) {
	out := []Artifact{{Name: b.FileName, Data: []byte(b.Code)}}
	if b.Map != nil {
		data, err := b.Map.JSON()
		if err != nil {
			return nil, fmt.Errorf("unable to encode source map for %s: %w", b.FileName, err)
		}
		out = append(out, Artifact{Name: b.MapFileName, Data: data})
	}
	return out, nil
}

// Bundler concatenates extracted assets.
type Bundler struct {
	opts Options
	log  *zap.Logger
}

func NewBundler(opts Options, log *zap.Logger) *Bundler {
	if opts.Minifier == nil {
		opts.Minifier = minify.Esbuild{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bundler{opts: opts, log: log.Named("extract")}
}

// Bundle joins assets with new line in given order, minifies result once and
// attaches map according to source map mode: inline mode embeds it into the
// stylesheet, file mode produces separate map file referenced by comment.
func (b *Bundler) Bundle(fileName string, assets []loader.Asset) (*Bundle, error) {
	withMaps := b.opts.SourceMap.Enabled()

	concat := sourcemap.NewConcat(path.Base(fileName), "\n", withMaps)
	for _, a := range assets {
		m := a.Map
		if withMaps && m != nil {
			m = m.RewriteSources(b.rebase)
		}
		if err := concat.Add(b.rebase(a.ID), a.Code, m); err != nil {
			return nil, err
		}
	}

	code, m := concat.Content(), concat.Map()
	if b.opts.Minimize {
		var err error
		if code, m, err = b.opts.Minifier.Minify(code, fileName, m); err != nil {
			return nil, fmt.Errorf("unable to minify %s: %w", fileName, err)
		}
	}

	if strings.Contains(fileName, HashPlaceholder) {
		sum := sha256.Sum256([]byte(code))
		fileName = strings.ReplaceAll(fileName, HashPlaceholder, hex.EncodeToString(sum[:])[:8])
	}
	bundle := &Bundle{FileName: fileName}
	if m != nil {
		m.File = path.Base(fileName)
	}

	switch b.opts.SourceMap {
	case common.SourceMapModeInline:
		comment, err := sourcemap.InlineComment(m)
		if err != nil {
			return nil, err
		}
		code += "\n" + comment
	case common.SourceMapModeFile:
		bundle.Map = m
		bundle.MapFileName = fileName + ".map"
		code += "\n" + sourcemap.FileComment(path.Base(bundle.MapFileName))
	}
	bundle.Code = code

	b.log.Debug("Bundled", zap.String("file", fileName), zap.Int("assets", len(assets)), zap.Int("bytes", len(code)))
	return bundle, nil
}

// rebase turns path relative to root, or absolute, into path relative to
// output directory.
func (b *Bundler) rebase(p string) string {
	if strings.Contains(p, "://") && !strings.HasPrefix(p, "file://") {
		return p
	}
	if strings.HasPrefix(p, "file://") {
		p = sourcemap.FileURLToPath(p)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(b.opts.Root, filepath.FromSlash(p))
	}
	dir := b.opts.OutDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(b.opts.Root, dir)
	}
	return sourcemap.Humanize(dir, p)
}

// Emit hands bundle artifacts to emitter unless OnExtract hook vetoes it.
// Reports whether bundle was emitted.
func (b *Bundler) Emit(e Emitter, bundle *Bundle) (bool, error) {
	if b.opts.OnExtract != nil && !b.opts.OnExtract(bundle) {
		b.log.Debug("Emission skipped", zap.String("file", bundle.FileName))
		return false, nil
	}
	artifacts, err := bundle.Artifacts()
	if err != nil {
		return false, err
	}
	for _, a := range artifacts {
		if err := e.Emit(a.Name, a.Data); err != nil {
			return false, fmt.Errorf("unable to emit %s: %w", a.Name, err)
		}
	}
	b.log.Info("Stylesheet emitted", zap.String("file", bundle.FileName), zap.Bool("map", bundle.Map != nil))
	return true, nil
}
