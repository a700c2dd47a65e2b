package sass

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bep/godartsass/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap/zaptest"

	"stylepipe/common"
	"stylepipe/loader"
)

var importRe = regexp.MustCompile(`@import\s+"([^"]+)";`)

// fakeTranspiler inlines @import statements through the resolver the way
// Dart Sass would, enough to exercise the loader without the binary.
type fakeTranspiler struct {
	onExecute func(args godartsass.Args)
	closed    bool
}

func (f *fakeTranspiler) Execute(args godartsass.Args) (godartsass.Result, error) {
	if f.onExecute != nil {
		f.onExecute(args)
	}
	sources := []string{args.URL}
	var failed error
	css := importRe.ReplaceAllStringFunc(args.Source, func(m string) string {
		url := importRe.FindStringSubmatch(m)[1]
		canonical, err := args.ImportResolver.CanonicalizeURL(url)
		if err != nil || len(canonical) == 0 {
			failed = godartsass.SassError{Message: "Can't find stylesheet to import."}
			return ""
		}
		imp, err := args.ImportResolver.Load(canonical)
		if err != nil {
			failed = err
			return ""
		}
		sources = append(sources, canonical)
		return strings.TrimSpace(imp.Content)
	})
	if failed != nil {
		return godartsass.Result{}, failed
	}
	res := godartsass.Result{CSS: strings.TrimSpace(css)}
	if args.EnableSourceMap {
		data, _ := json.Marshal(map[string]any{
			"version":  3,
			"sources":  sources,
			"names":    []string{},
			"mappings": "AAAA",
		})
		res.SourceMap = string(data)
	}
	return res, nil
}

func (f *fakeTranspiler) Close() error {
	f.closed = true
	return nil
}

func fakeStarter(tr *fakeTranspiler) Option {
	return WithStarter(func(godartsass.Options) (Transpiler, error) {
		return tr, nil
	})
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newContext(t *testing.T, root, id string, opts loader.Options) *loader.Context {
	t.Helper()
	return &loader.Context{
		ID:           id,
		Root:         root,
		Options:      opts,
		SourceMap:    common.SourceMapModeInline,
		Dependencies: loader.NewDependencySet(),
		Log:          zaptest.NewLogger(t),
	}
}

func TestProcessResolvesModuleImport(t *testing.T) {
	root := t.TempDir()
	partial := writeFile(t, filepath.Join(root, "node_modules", "lib", "_vars.scss"), "a{color:red}")
	writeFile(t, filepath.Join(root, "node_modules", "lib", "vars.scss"), "a{color:blue}")
	id := writeFile(t, filepath.Join(root, "src", "main.scss"), `@import "~lib/vars";`)

	tr := &fakeTranspiler{}
	l := New(Config{}, zaptest.NewLogger(t), fakeStarter(tr))
	lc := newContext(t, root, id, nil)

	res, err := l.Process(context.Background(), loader.Unit{Code: `@import "~lib/vars";`}, lc)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if res.Code != "a{color:red}" {
		t.Errorf("Code = %q, partial must win over literal path", res.Code)
	}
	if !lc.Dependencies.Has(partial) {
		t.Errorf("dependencies %v do not include %s", lc.Dependencies.List(), partial)
	}
	if res.Map == nil {
		t.Fatal("expected source map")
	}
	want := []string{"src/main.scss", "node_modules/lib/_vars.scss"}
	if !slices.Equal(res.Map.Sources, want) {
		t.Errorf("Sources = %v, want %v", res.Map.Sources, want)
	}

	if err := l.Close(); err != nil || !tr.closed {
		t.Errorf("Close() = %v, closed = %v", err, tr.closed)
	}
}

func TestProcessOptions(t *testing.T) {
	root := t.TempDir()
	id := writeFile(t, filepath.Join(root, "a.sass"), "")
	inc := filepath.Join(root, "shared")

	var got godartsass.Args
	tr := &fakeTranspiler{onExecute: func(args godartsass.Args) { got = args }}
	l := New(Config{IncludePaths: []string{"/cfg"}}, zaptest.NewLogger(t), fakeStarter(tr))
	lc := newContext(t, root, id, loader.Options{
		"data":          "$x: 1;\n",
		"include_paths": []any{inc},
		"output_style":  "compressed",
	})
	lc.SourceMap = common.SourceMapModeNone

	res, err := l.Process(context.Background(), loader.Unit{Code: "a{b:$x}"}, lc)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if res.Map != nil {
		t.Error("map produced with source maps off")
	}
	if got.Source != "$x: 1;\na{b:$x}" {
		t.Errorf("Source = %q, data must be prepended", got.Source)
	}
	if got.SourceSyntax != godartsass.SourceSyntaxSASS {
		t.Errorf("SourceSyntax = %v", got.SourceSyntax)
	}
	if got.OutputStyle != godartsass.OutputStyleCompressed {
		t.Errorf("OutputStyle = %v", got.OutputStyle)
	}
	if want := []string{root, "/cfg", inc}; !slices.Equal(got.IncludePaths, want) {
		t.Errorf("IncludePaths = %v, want %v", got.IncludePaths, want)
	}
}

func TestProcessBadOutputStyle(t *testing.T) {
	l := New(Config{}, zaptest.NewLogger(t), fakeStarter(&fakeTranspiler{}))
	lc := newContext(t, "", "/x/a.scss", loader.Options{"output_style": "nested"})
	if _, err := l.Process(context.Background(), loader.Unit{}, lc); err == nil {
		t.Fatal("expected error for unknown output style")
	}
}

func TestProcessCompileError(t *testing.T) {
	root := t.TempDir()
	id := writeFile(t, filepath.Join(root, "a.scss"), "")
	l := New(Config{}, zaptest.NewLogger(t), fakeStarter(&fakeTranspiler{}))

	_, err := l.Process(context.Background(), loader.Unit{Code: `@import "nope";`}, newContext(t, root, id, nil))
	var serr godartsass.SassError
	if !errors.As(err, &serr) {
		t.Fatalf("Process() error = %v, want SassError", err)
	}
}

func TestMissingCompiler(t *testing.T) {
	l := New(Config{Binary: filepath.Join(t.TempDir(), "no-such-sass")}, zaptest.NewLogger(t))
	_, err := l.Process(context.Background(), loader.Unit{Code: "a{}"}, newContext(t, "", "/x/a.scss", nil))
	if !errors.Is(err, loader.ErrMissingCompiler) {
		t.Fatalf("Process() error = %v, want ErrMissingCompiler", err)
	}
	if !strings.Contains(err.Error(), `"dart-sass"`) {
		t.Errorf("error %q does not name package", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() on never started loader = %v", err)
	}
}

func TestStartedOnce(t *testing.T) {
	var starts atomic.Int32
	tr := &fakeTranspiler{}
	l := New(Config{}, zaptest.NewLogger(t), WithStarter(func(godartsass.Options) (Transpiler, error) {
		starts.Add(1)
		return tr, nil
	}))

	root := t.TempDir()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			id := filepath.Join(root, "f"+string(rune('a'+i))+".scss")
			if _, err := l.Process(context.Background(), loader.Unit{Code: "a{}"}, newContext(t, root, id, nil)); err != nil {
				t.Error(err)
			}
		})
	}
	wg.Wait()
	if n := starts.Load(); n != 1 {
		t.Errorf("transpiler started %d times", n)
	}
}

func TestLogEventRouting(t *testing.T) {
	var handler func(godartsass.LogEvent)
	tr := &fakeTranspiler{}
	tr.onExecute = func(args godartsass.Args) {
		handler(godartsass.LogEvent{Type: godartsass.LogEventTypeDeprecated, Message: args.URL + ":1:1: old syntax"})
	}
	l := New(Config{}, zaptest.NewLogger(t), WithStarter(func(opts godartsass.Options) (Transpiler, error) {
		handler = opts.LogEventHandler
		return tr, nil
	}))

	var warnings []string
	lc := newContext(t, "", "/x/a.scss", nil)
	lc.Warn = func(msg string) { warnings = append(warnings, msg) }
	if _, err := l.Process(context.Background(), loader.Unit{Code: "a{}"}, lc); err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 || !strings.HasSuffix(warnings[0], "old syntax") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestResolver(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	literal := writeFile(t, filepath.Join(root, "node_modules", "only", "literal.scss"), "")
	partial := writeFile(t, filepath.Join(root, "node_modules", "both", "_x.scss"), "")
	writeFile(t, filepath.Join(root, "node_modules", "both", "x.scss"), "")
	local := writeFile(t, filepath.Join(src, "_local.scss"), "")
	inc := writeFile(t, filepath.Join(root, "shared", "mixins.scss"), "")
	index := writeFile(t, filepath.Join(src, "theme", "_index.scss"), "")

	cache, _ := lru.New[string, string](16)
	r := &resolver{dir: src, includePaths: []string{filepath.Join(root, "shared")}, cache: cache}

	tests := []struct {
		url  string
		want string
	}{
		{"~only/literal", literal},
		{"~both/x", partial},
		{"file://" + filepath.ToSlash(src) + "/~both/x", partial},
		{"local", local},
		{"mixins", inc},
		{"theme", index},
		{"~missing/thing", ""},
		{"https://example.com/a.css", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := r.CanonicalizeURL(tt.url)
			if err != nil {
				t.Fatalf("CanonicalizeURL() error: %v", err)
			}
			want := ""
			if len(tt.want) > 0 {
				want = "file://" + filepath.ToSlash(tt.want)
			}
			if got != want {
				t.Errorf("CanonicalizeURL(%q) = %q, want %q", tt.url, got, want)
			}
		})
	}
}

func TestResolverCacheRenamedFile(t *testing.T) {
	root := t.TempDir()
	literal := writeFile(t, filepath.Join(root, "theme.scss"), "a{}")

	cache, _ := lru.New[string, string](16)
	first := &resolver{dir: root, cache: cache}
	got, err := first.CanonicalizeURL("theme")
	if err != nil || got != "file://"+filepath.ToSlash(literal) {
		t.Fatalf("CanonicalizeURL() = %q, %v", got, err)
	}

	partial := filepath.Join(root, "_theme.scss")
	if err := os.Rename(literal, partial); err != nil {
		t.Fatal(err)
	}

	second := &resolver{dir: root, cache: cache}
	got, err = second.CanonicalizeURL("theme")
	if err != nil {
		t.Fatal(err)
	}
	if want := "file://" + filepath.ToSlash(partial); got != want {
		t.Fatalf("CanonicalizeURL() after rename = %q, want %q", got, want)
	}
	if _, err := second.Load(got); err != nil {
		t.Errorf("Load() error: %v", err)
	}
}

func TestResetForgetsResolutions(t *testing.T) {
	root := t.TempDir()
	literal := writeFile(t, filepath.Join(root, "node_modules", "kit", "x.scss"), "")

	l := New(Config{}, zaptest.NewLogger(t))
	r := &resolver{dir: root, cache: l.cache}
	if got, _ := r.CanonicalizeURL("~kit/x"); got != "file://"+filepath.ToSlash(literal) {
		t.Fatalf("CanonicalizeURL() = %q", got)
	}

	// partial appearing later takes precedence once the build starts over
	partial := writeFile(t, filepath.Join(root, "node_modules", "kit", "_x.scss"), "")
	if got, _ := r.CanonicalizeURL("~kit/x"); got != "file://"+filepath.ToSlash(literal) {
		t.Fatalf("cached CanonicalizeURL() = %q", got)
	}
	l.Reset()
	if got, _ := r.CanonicalizeURL("~kit/x"); got != "file://"+filepath.ToSlash(partial) {
		t.Errorf("CanonicalizeURL() after Reset = %q, want partial", got)
	}
}

func TestResolverLoad(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, filepath.Join(root, "_a.sass"), "a\n  b: c")

	var loaded []string
	r := &resolver{dir: root, loaded: func(p string) { loaded = append(loaded, p) }}
	imp, err := r.Load("file://" + filepath.ToSlash(path))
	if err != nil {
		t.Fatal(err)
	}
	if imp.SourceSyntax != godartsass.SourceSyntaxSASS || imp.Content != "a\n  b: c" {
		t.Errorf("Load() = %+v", imp)
	}
	if !slices.Equal(loaded, []string{path}) {
		t.Errorf("loaded = %v", loaded)
	}
	if _, err := r.Load("file://" + filepath.ToSlash(filepath.Join(root, "missing.scss"))); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestQueueSize(t *testing.T) {
	t.Setenv(ThreadPoolEnv, "")
	if got := QueueSize(0); got != 3 {
		t.Errorf("QueueSize(0) = %d, want 3", got)
	}
	t.Setenv(ThreadPoolEnv, "9")
	if got := QueueSize(0); got != 8 {
		t.Errorf("QueueSize(0) with env = %d, want 8", got)
	}
	if got := QueueSize(1); got != 1 {
		t.Errorf("QueueSize(1) = %d, want 1", got)
	}
	if got := QueueSize(6); got != 5 {
		t.Errorf("QueueSize(6) = %d, want 5", got)
	}
}

func TestQueueLimitsConcurrency(t *testing.T) {
	q := NewQueue(2)
	var running, peak atomic.Int32

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			_ = q.Add(context.Background(), func() error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		})
	}
	wg.Wait()
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency %d exceeds queue size", p)
	}
}

func TestQueueCancelled(t *testing.T) {
	q := NewQueue(1)
	started, release := make(chan struct{}), make(chan struct{})
	go func() {
		_ = q.Add(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Add(ctx, func() error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Add() with cancelled context = %v", err)
	}
	close(release)
}
