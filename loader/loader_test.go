package loader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"stylepipe/common"
)

type testLoader struct {
	name    string
	applies Applicability
	calls   *[]string
	process func(in Unit, lc *Context) (Result, error)
	closed  bool
	resets  int
}

func (l *testLoader) Name() string           { return l.name }
func (l *testLoader) Applies() Applicability { return l.applies }

func (l *testLoader) Process(_ context.Context, in Unit, lc *Context) (Result, error) {
	if l.calls != nil {
		*l.calls = append(*l.calls, l.name)
	}
	if l.process != nil {
		return l.process(in, lc)
	}
	return Result{Unit: Unit{Code: in.Code + "|" + l.name}}, nil
}

func (l *testLoader) Reset() {
	l.resets++
}

func (l *testLoader) Close() error {
	l.closed = true
	return nil
}

func newContext(t *testing.T, id string) *Context {
	t.Helper()
	return &Context{
		ID:           id,
		Dependencies: NewDependencySet(),
		Log:          zaptest.NewLogger(t),
	}
}

func TestChainOrdering(t *testing.T) {
	var calls []string
	all := Matching(func(string) bool { return true })
	reg := NewRegistry(
		&testLoader{name: "A", applies: all, calls: &calls},
		&testLoader{name: "B", applies: all, calls: &calls},
		&testLoader{name: "C", applies: all, calls: &calls},
	)

	p, err := reg.Compile(UseChain{{Name: "A"}, {Name: "B"}, {Name: "C"}})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if got := p.Order(); !slices.Equal(got, []string{"C", "B", "A"}) {
		t.Errorf("Order() = %v", got)
	}

	out, err := p.Run(context.Background(), Unit{Code: "x"}, newContext(t, "/src/a.css"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !slices.Equal(calls, []string{"C", "B", "A"}) {
		t.Errorf("invocation order = %v, want [C B A]", calls)
	}
	if out.Code != "x|C|B|A" {
		t.Errorf("Code = %q", out.Code)
	}
}

func TestAlwaysRunsDespiteTest(t *testing.T) {
	var calls []string
	reg := NewRegistry(
		&testLoader{name: "postcss", applies: Always(ByExtension(".css")), calls: &calls},
		&testLoader{name: "sass", applies: Matching(ByExtension(".scss")), calls: &calls},
		&testLoader{name: "less", applies: Matching(ByExtension(".less")), calls: &calls},
	)
	p, err := reg.Compile(UseChain{{Name: "sass"}, {Name: "less"}}.WithBase(nil))
	if err != nil {
		t.Fatal(err)
	}

	out, err := p.Run(context.Background(), Unit{Code: "x"}, newContext(t, "/src/a.scss"))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(calls, []string{"sass", "postcss"}) {
		t.Errorf("invocation order = %v", calls)
	}
	if out.Code != "x|sass|postcss" {
		t.Errorf("Code = %q", out.Code)
	}
}

func TestScopedOverride(t *testing.T) {
	var calls []string
	reg := NewRegistry(&testLoader{name: "sass", applies: Matching(ByExtension(".scss")), calls: &calls})
	p, err := reg.Compile(UseChain{{Name: "sass"}})
	if err != nil {
		t.Fatal(err)
	}
	lc := newContext(t, "/src/App.vue")
	lc.Scoped = "style.scss"
	if _, err := p.Run(context.Background(), Unit{}, lc); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 {
		t.Errorf("loader was not invoked for scoped override")
	}
}

func TestReRegistration(t *testing.T) {
	reg := NewRegistry(
		&testLoader{name: "X", applies: Always(nil)},
		&testLoader{name: "Y", applies: Always(nil)},
	)
	reg.Register(&testLoader{name: "X", applies: Always(nil), process: func(in Unit, _ *Context) (Result, error) {
		return Result{Unit: Unit{Code: "second"}}, nil
	}})

	if got := reg.Names(); !slices.Equal(got, []string{"X", "Y"}) {
		t.Fatalf("Names() = %v", got)
	}
	p, err := reg.Compile(UseChain{{Name: "X"}})
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Run(context.Background(), Unit{Code: "first"}, newContext(t, "/a.css"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Code != "second" {
		t.Errorf("second registration is not in effect, Code = %q", out.Code)
	}
}

func TestReplaceAndRemove(t *testing.T) {
	reg := NewRegistry(&testLoader{name: "X", applies: Always(nil)})

	if err := reg.Replace(&testLoader{name: "Z", applies: Always(nil)}); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Replace(unknown) error = %v, want ErrNotRegistered", err)
	}
	if err := reg.Replace(&testLoader{name: "X", applies: Always(nil)}); err != nil {
		t.Errorf("Replace(X) error = %v", err)
	}

	if _, ok := reg.Remove("X"); !ok {
		t.Fatal("Remove(X) reported missing loader")
	}
	if _, ok := reg.Remove("X"); ok {
		t.Fatal("second Remove(X) succeeded")
	}

	_, err := reg.Compile(UseChain{{Name: "X"}})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || !errors.Is(err, ErrUnknownLoader) {
		t.Fatalf("Compile() error = %v, want ConfigError wrapping ErrUnknownLoader", err)
	}
	if cfgErr.Loader != "X" {
		t.Errorf("ConfigError.Loader = %q", cfgErr.Loader)
	}
}

func TestIsSupported(t *testing.T) {
	reg := NewRegistry(
		&testLoader{name: "postcss", applies: Always(ByExtension("css", "pcss"))},
		&testLoader{name: "sass", applies: Matching(ByExtension(".scss", ".sass"))},
		&testLoader{name: "noop", applies: Always(nil)},
	)
	tests := map[string]bool{
		"/a/b.css":   true,
		"/a/b.PCSS":  true,
		"/a/b.scss":  true,
		"/a/b.sass":  true,
		"/a/b.less":  false,
		"/a/b.js":    false,
		"/a/noext":   false,
		"/a/b.css.x": false,
	}
	for path, want := range tests {
		if got := reg.IsSupported(path); got != want {
			t.Errorf("IsSupported(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestFailureDiscardsDependencies(t *testing.T) {
	all := Always(nil)
	reg := NewRegistry(
		&testLoader{name: "ok", applies: all, process: func(in Unit, lc *Context) (Result, error) {
			lc.AddDependency("/dep/one.scss")
			return Result{Unit: in}, nil
		}},
		&testLoader{name: "bad", applies: all, process: func(Unit, *Context) (Result, error) {
			return Result{}, errors.New("syntax error")
		}},
	)
	// "ok" runs first, "bad" second
	p, err := reg.Compile(UseChain{{Name: "bad"}, {Name: "ok"}})
	if err != nil {
		t.Fatal(err)
	}

	lc := newContext(t, "/src/a.scss")
	out, err := p.Run(context.Background(), Unit{Code: "a{}"}, lc)
	var te *TransformError
	if !errors.As(err, &te) {
		t.Fatalf("Run() error = %v, want TransformError", err)
	}
	if te.Loader != "bad" || te.ID != "/src/a.scss" {
		t.Errorf("TransformError = %+v", te)
	}
	if out.Code != "" || out.Dependencies != nil {
		t.Errorf("partial result surfaced: %+v", out)
	}
	if lc.Dependencies.Len() != 0 {
		t.Errorf("dependencies leaked: %v", lc.Dependencies.List())
	}
}

func TestDependenciesPropagate(t *testing.T) {
	reg := NewRegistry(&testLoader{name: "sass", applies: Always(nil), process: func(in Unit, lc *Context) (Result, error) {
		lc.AddDependency("/src/_a.scss")
		lc.AddDependency("/src/_b.scss")
		lc.AddDependency("/src/_a.scss")
		return Result{Unit: in, Extracted: &Asset{ID: lc.ID, Code: in.Code}}, nil
	}})
	p, err := reg.Compile(UseChain{{Name: "sass", Options: Options{"k": "v"}}})
	if err != nil {
		t.Fatal(err)
	}
	lc := newContext(t, "/src/main.scss")
	out, err := p.Run(context.Background(), Unit{Code: "a{}"}, lc)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/src/_a.scss", "/src/_b.scss"}
	if !slices.Equal(out.Dependencies, want) {
		t.Errorf("Dependencies = %v, want %v", out.Dependencies, want)
	}
	if !slices.Equal(lc.Dependencies.List(), want) {
		t.Errorf("caller dependencies = %v, want %v", lc.Dependencies.List(), want)
	}
	if out.Extracted == nil || out.Extracted.ID != "/src/main.scss" {
		t.Errorf("Extracted = %+v", out.Extracted)
	}
}

func TestStageOptions(t *testing.T) {
	var seen []string
	reg := NewRegistry(&testLoader{name: "x", applies: Always(nil), process: func(in Unit, lc *Context) (Result, error) {
		var opts struct {
			Style string `yaml:"style"`
		}
		if err := lc.Options.Decode(&opts); err != nil {
			return Result{}, err
		}
		seen = append(seen, opts.Style)
		return Result{Unit: in}, nil
	}})
	p, err := reg.Compile(UseChain{{Name: "x", Options: Options{"style": "first"}}, {Name: "x", Options: Options{"style": "second"}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), Unit{}, newContext(t, "/a.css")); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(seen, []string{"second", "first"}) {
		t.Errorf("options seen = %v", seen)
	}
}

func TestCancelledRun(t *testing.T) {
	reg := NewRegistry(&testLoader{name: "x", applies: Always(nil)})
	p, err := reg.Compile(UseChain{{Name: "x"}})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Run(ctx, Unit{}, newContext(t, "/a.css")); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestParseUseChain(t *testing.T) {
	chain, err := ParseUseChain([]any{
		"sass",
		[]any{"less", map[string]any{"math": "always"}},
		[]any{"stylus"},
	})
	if err != nil {
		t.Fatalf("ParseUseChain() error: %v", err)
	}
	if got := chain.Names(); !slices.Equal(got, []string{"sass", "less", "stylus"}) {
		t.Errorf("Names() = %v", got)
	}
	if chain[1].Options["math"] != "always" {
		t.Errorf("options not carried: %v", chain[1].Options)
	}

	bad := [][]any{
		{42},
		{""},
		{[]any{}},
		{[]any{1, map[string]any{}}},
		{[]any{"sass", "not a map"}},
		{[]any{"sass", map[string]any{}, "extra"}},
	}
	for _, entries := range bad {
		if _, err := ParseUseChain(entries); !errors.Is(err, ErrMalformedUse) {
			t.Errorf("ParseUseChain(%v) error = %v, want ErrMalformedUse", entries, err)
		}
	}
}

func TestWithBase(t *testing.T) {
	chain := DefaultChain().WithBase(Options{"modules": true})
	if got := chain.Names(); !slices.Equal(got, []string{"postcss", "sass", "stylus", "less"}) {
		t.Errorf("Names() = %v", got)
	}
	again := chain.WithBase(nil)
	if len(again) != len(chain) {
		t.Errorf("base loader added twice: %v", again.Names())
	}
}

func TestMissingCompilerError(t *testing.T) {
	_, err := LookupTool(common.LoaderKindLess.String(), "less", "", "definitely-not-a-real-binary-name")
	if !errors.Is(err, ErrMissingCompiler) {
		t.Fatalf("LookupTool() error = %v, want ErrMissingCompiler", err)
	}
	var mc *MissingCompilerError
	if !errors.As(err, &mc) || mc.Package != "less" {
		t.Fatalf("error does not name package: %v", err)
	}
	if !strings.Contains(err.Error(), `requires "less" to be installed`) {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestRegistryClose(t *testing.T) {
	a := &testLoader{name: "a", applies: Always(nil)}
	b := &testLoader{name: "b", applies: Always(nil)}
	if err := NewRegistry(a, b).Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !b.closed {
		t.Error("not every loader was closed")
	}
}

func TestRegistryReset(t *testing.T) {
	a := &testLoader{name: "a", applies: Always(nil)}
	reg := NewRegistry(a)
	reg.Reset()
	reg.Reset()
	if a.resets != 2 {
		t.Errorf("resets = %d, want 2", a.resets)
	}
}

func TestDecodeSource(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"plain", []byte("a{}"), "a{}"},
		{"utf8 bom", []byte("\xef\xbb\xbfa{}"), "a{}"},
		{"utf16le bom", []byte("\xff\xfea\x00{\x00}\x00"), "a{}"},
		{"charset", []byte("@charset \"windows-1251\";\na{content:\"\xcf\"}"), "@charset \"UTF-8\";\na{content:\"П\"}"},
		{"unknown charset", []byte("@charset \"no-such\";a{}"), "@charset \"no-such\";a{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSource(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DecodeSource() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDependencySetConcurrent(t *testing.T) {
	s := NewDependencySet()
	done := make(chan struct{})
	for i := range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := range 100 {
				s.Add(fmt.Sprintf("/f/%d", (i*100+j)%50))
			}
		}()
	}
	for range 8 {
		<-done
	}
	if s.Len() != 50 {
		t.Errorf("Len() = %d, want 50", s.Len())
	}
}
