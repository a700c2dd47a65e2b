package postcss

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"stylepipe/common"
	"stylepipe/loader"
	"stylepipe/sourcemap"
)

type recordingMinifier struct {
	calls int
}

func (m *recordingMinifier) Minify(code, _ string, prev *sourcemap.Map) (string, *sourcemap.Map, error) {
	m.calls++
	return strings.ReplaceAll(code, " ", ""), prev, nil
}

func newContext(t *testing.T, root, id string, opts loader.Options) (*loader.Context, *[]string) {
	t.Helper()
	var warnings []string
	return &loader.Context{
		ID:           id,
		Root:         root,
		Options:      opts,
		Dependencies: loader.NewDependencySet(),
		Warn:         func(msg string) { warnings = append(warnings, msg) },
		Log:          zaptest.NewLogger(t),
	}, &warnings
}

func process(t *testing.T, l *Loader, lc *loader.Context, code string) loader.Result {
	t.Helper()
	res, err := l.Process(context.Background(), loader.Unit{Code: code}, lc)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	return res
}

func TestInlineVerbatim(t *testing.T) {
	lc, _ := newContext(t, "/p", "/p/a.css", nil)
	res := process(t, New(nil, nil), lc, "body{color:red}")

	want := "var css = \"body{color:red}\";\nexport default css;\nexport const stylesheet=\"body{color:red}\";"
	if res.Code != want {
		t.Errorf("Code = %q, want %q", res.Code, want)
	}
	if res.Extracted != nil || res.Map != nil {
		t.Errorf("unexpected extracted asset or map: %+v", res)
	}
}

func TestApplies(t *testing.T) {
	l := New(nil, nil)
	a := l.Applies()
	if !a.Runs("/x/a.scss") {
		t.Error("base loader must run for any file")
	}
	if !a.Supports("/x/a.pcss") || a.Supports("/x/a.scss") {
		t.Error("unexpected Supports() result")
	}
	if l.Name() != "postcss" {
		t.Errorf("Name() = %q", l.Name())
	}
}

func TestModulesRewrite(t *testing.T) {
	code := ".btn{color:red}\n.btn:hover, #main .icon{}\n@keyframes spin{from{}}\n.a{animation: spin 1s}\n:global(.keep){}"
	lc, _ := newContext(t, "/p", "/p/button.module.css", loader.Options{
		"modules": map[string]any{"generate_scoped_name": "[name]_[local]"},
	})
	res := process(t, New(nil, nil), lc, code)

	wantCSS := ".button_btn{color:red}\n.button_btn:hover, #button_main .button_icon{}\n@keyframes button_spin{from{}}\n.button_a{animation: button_spin 1s}\n.keep{}"
	wantJSON := `{"btn":"button_btn","main":"button_main","icon":"button_icon","spin":"button_spin","a":"button_a"}`
	if !strings.Contains(res.Code, "var css = "+jsString(wantCSS)+";") {
		t.Errorf("Code = %q, want css %q", res.Code, wantCSS)
	}
	if !strings.Contains(res.Code, "export default "+wantJSON+";") {
		t.Errorf("Code = %q, want default export %s", res.Code, wantJSON)
	}
}

func TestModulesNestedRule(t *testing.T) {
	lc, _ := newContext(t, "/p", "/p/a.module.css", loader.Options{
		"modules": map[string]any{"generate_scoped_name": "[local]_x"},
	})
	res := process(t, New(nil, nil), lc, ".a{color:red;.b{color:blue}&:hover .c{}--v:{x};}")

	wantCSS := ".a_x{color:red;.b_x{color:blue}&:hover .c_x{}--v:{x};}"
	if !strings.Contains(res.Code, "var css = "+jsString(wantCSS)+";") {
		t.Errorf("Code = %q, want css %q", res.Code, wantCSS)
	}
	if !strings.Contains(res.Code, `export default {"a":"a_x","b":"b_x","c":"c_x"};`) {
		t.Errorf("Code = %q, nested classes missing from exports", res.Code)
	}
}

func TestModulesMapFollowsRewrite(t *testing.T) {
	root := t.TempDir()
	id := filepath.Join(root, "a.module.scss")
	code := ".a{color:red}.b{color:blue}"
	opts := loader.Options{
		"extract": true,
		"modules": map[string]any{"generate_scoped_name": "[local]_scoped"},
	}
	// compiled .b rule starts at column 13 and came from line 5 column 2
	prev := &sourcemap.Map{
		Version: 3,
		Sources: []string{sourcemap.PathToFileURL(filepath.Join(root, "a.module.scss"))},
		Names:   []string{},
		Mappings: sourcemap.EncodeMappings([]sourcemap.Mapping{
			{GeneratedColumn: 0, HasSource: true, OriginalLine: 2},
			{GeneratedColumn: 13, HasSource: true, OriginalLine: 5, OriginalColumn: 2},
		}),
	}

	tests := []struct {
		name       string
		in         *sourcemap.Map
		line, col  int
		wantSource string
	}{
		{"incoming map", prev, 5, 2, "a.module.scss"},
		{"no incoming map", nil, 0, 13, "a.module.scss"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc, _ := newContext(t, root, id, opts)
			lc.SourceMap = common.SourceMapModeFile
			res, err := New(nil, nil).Process(context.Background(), loader.Unit{Code: code, Map: tt.in}, lc)
			if err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			if res.Extracted == nil || res.Extracted.Map == nil {
				t.Fatal("no extracted map")
			}
			css := res.Extracted.Code
			col := strings.Index(css, ".b_scoped")
			if col != 20 {
				t.Fatalf("extracted css = %q", css)
			}
			mappings, err := res.Extracted.Map.Decode()
			if err != nil {
				t.Fatal(err)
			}
			m := sourcemap.Find(mappings, 0, col)
			if m == nil || m.GeneratedColumn != col {
				t.Fatalf("no segment at generated column %d: %+v", col, mappings)
			}
			if m.OriginalLine != tt.line || m.OriginalColumn != tt.col {
				t.Errorf(".b maps to %d:%d, want %d:%d", m.OriginalLine, m.OriginalColumn, tt.line, tt.col)
			}
			if src := res.Extracted.Map.Sources[m.SourceIndex]; src != tt.wantSource {
				t.Errorf("source = %q, want %q", src, tt.wantSource)
			}
		})
	}
}

func TestAutoModules(t *testing.T) {
	code := ".btn{}"
	tests := []struct {
		id   string
		opts loader.Options
		want bool
	}{
		{"/p/a.module.css", nil, true},
		{"/p/a.module.css", loader.Options{"auto_modules": false}, false},
		{"/p/a.css", nil, false},
		{"/p/a.css", loader.Options{"modules": true}, true},
	}
	for _, tt := range tests {
		lc, _ := newContext(t, "/p", tt.id, tt.opts)
		res := process(t, New(nil, nil), lc, code)
		scoped := !strings.Contains(res.Code, `".btn{}"`)
		if scoped != tt.want {
			t.Errorf("%s %v: scoped = %v, want %v (%q)", tt.id, tt.opts, scoped, tt.want, res.Code)
		}
	}
}

func TestDefaultScopedName(t *testing.T) {
	gen := scopedNamer(DefaultScopedName, "/p/Card.module.scss", "Card.module.scss")
	got := gen("title")
	if !strings.HasPrefix(got, "card_title__") || len(got) != len("card_title__")+5 {
		t.Errorf("scoped name = %q", got)
	}
	if gen("title") != got {
		t.Error("scoped name is not stable")
	}
	if gen("body") == got {
		t.Error("different locals share scoped name")
	}
	if n := scopedNamer("[local]", "/p/a.css", "a.css")("1st"); n != "_1st" {
		t.Errorf("leading digit not guarded: %q", n)
	}
}

func TestNamedExports(t *testing.T) {
	lc, warnings := newContext(t, "/p", "/p/src/a.css", loader.Options{
		"modules":       map[string]any{"generate_scoped_name": "[local]_x"},
		"named_exports": true,
	})
	res := process(t, New(nil, nil), lc, ".foo--bar{}\n.class{}\n.ok{}")

	for _, want := range []string{
		"export var foo$__$bar = \"foo--bar_x\";\n",
		"export var $class$ = \"class_x\";\n",
		"export var ok = \"ok_x\";\n",
		`export default {"foo--bar":"foo--bar_x","class":"class_x","ok":"ok_x","foo$__$bar":"foo--bar_x","$class$":"class_x"};`,
	} {
		if !strings.Contains(res.Code, want) {
			t.Errorf("Code = %q, missing %q", res.Code, want)
		}
	}
	want := []string{
		`Exported "foo--bar" as "foo$__$bar" in src/a.css`,
		`Exported "class" as "$class$" in src/a.css`,
	}
	if !slices.Equal(*warnings, want) {
		t.Errorf("warnings = %q, want %q", *warnings, want)
	}
}

func TestExportName(t *testing.T) {
	tests := map[string]string{
		"plain":   "plain",
		"a-b":     "a$_$b",
		"a---b-c": "a$___$b$_$c",
		"default": "$default$",
		"new":     "$new$",
	}
	for in, want := range tests {
		if got := exportName(in); got != want {
			t.Errorf("exportName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtract(t *testing.T) {
	root := t.TempDir()
	id := filepath.Join(root, "a.css")
	lc, _ := newContext(t, root, id, loader.Options{"extract": true, "minimize": true})
	lc.SourceMap = common.SourceMapModeFile

	m := &recordingMinifier{}
	res := process(t, New(nil, m), lc, "a { color: blue }")

	if res.Code != "export default {};" {
		t.Errorf("Code = %q", res.Code)
	}
	if m.calls != 0 {
		t.Error("extracted css must not be minified per module")
	}
	if res.Extracted == nil {
		t.Fatal("no extracted asset")
	}
	if res.Extracted.ID != id || res.Extracted.Code != "a { color: blue }" {
		t.Errorf("Extracted = %+v", res.Extracted)
	}
	if res.Extracted.Map == nil || !slices.Equal(res.Extracted.Map.Sources, []string{"a.css"}) {
		t.Errorf("Extracted.Map = %+v", res.Extracted.Map)
	}
}

func TestIncomingInlineMap(t *testing.T) {
	root := t.TempDir()
	id := filepath.Join(root, "src", "a.scss")
	prev := &sourcemap.Map{Version: 3, Sources: []string{sourcemap.PathToFileURL(id)}, Mappings: "AAAA"}
	comment, err := sourcemap.InlineComment(prev)
	if err != nil {
		t.Fatal(err)
	}

	lc, _ := newContext(t, root, id, loader.Options{"extract": true})
	lc.SourceMap = common.SourceMapModeFile
	res := process(t, New(nil, nil), lc, "a{color:red}\n"+comment)

	if res.Extracted.Code != "a{color:red}" {
		t.Errorf("inline map comment not stripped: %q", res.Extracted.Code)
	}
	if got := res.Extracted.Map.Sources; !slices.Equal(got, []string{"src/a.scss"}) {
		t.Errorf("Sources = %v", got)
	}
}

func TestInlineSourceMap(t *testing.T) {
	lc, _ := newContext(t, "/p", "/p/a.css", nil)
	lc.SourceMap = common.SourceMapModeInline
	res := process(t, New(nil, nil), lc, "a{}")

	if !strings.Contains(res.Code, `a{}\n/*# sourceMappingURL=data:application/json;base64,`) {
		t.Errorf("Code = %q, want inline map comment in css", res.Code)
	}
	if res.Map != nil {
		t.Error("inline path must not return separate map")
	}
}

func TestMinimizeInline(t *testing.T) {
	lc, _ := newContext(t, "/p", "/p/a.css", loader.Options{"minimize": true})
	m := &recordingMinifier{}
	res := process(t, New(nil, m), lc, "a { color: red }")

	if m.calls != 1 {
		t.Errorf("minifier called %d times", m.calls)
	}
	if !strings.HasPrefix(res.Code, `var css = "a{color:red}";`) {
		t.Errorf("Code = %q", res.Code)
	}
}

func TestInject(t *testing.T) {
	tests := []struct {
		name string
		opts loader.Options
		want string
	}{
		{
			name: "runtime",
			opts: loader.Options{"inject": "runtime"},
			want: "\nimport styleInject from \"style-inject\";\nstyleInject(css);",
		},
		{
			name: "runtime options",
			opts: loader.Options{"inject": "runtime", "inject_module": "my-inject", "inject_options": map[string]any{"insertAt": "top"}},
			want: "\nimport styleInject from \"my-inject\";\nstyleInject(css,{\"insertAt\":\"top\"});",
		},
		{
			name: "template",
			opts: loader.Options{"inject": "template", "inject_template": "window.add({{id}}, {{css}});"},
			want: "\nwindow.add(\"a.css\", \"a{}\");",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc, _ := newContext(t, "/p", "/p/a.css", tt.opts)
			res := process(t, New(nil, nil), lc, "a{}")
			if !strings.HasSuffix(res.Code, tt.want) {
				t.Errorf("Code = %q, want suffix %q", res.Code, tt.want)
			}
		})
	}

	lc, _ := newContext(t, "/p", "/p/a.css", loader.Options{"inject": "runtime", "extract": true})
	if res := process(t, New(nil, nil), lc, "a{}"); strings.Contains(res.Code, "styleInject") {
		t.Error("extracted module must not inject")
	}
}

func TestSyntaxError(t *testing.T) {
	lc, _ := newContext(t, "/p", "/p/a.css", nil)
	_, err := New(nil, nil).Process(context.Background(), loader.Unit{Code: "a{color:red"}, lc)
	if err == nil {
		t.Fatal("expected error for unclosed block")
	}
	if !strings.HasPrefix(err.Error(), "a.css:1:") {
		t.Errorf("error %q does not carry position", err)
	}

	lc, _ = newContext(t, "/p", "/p/a.css", nil)
	if _, err := New(nil, nil).Process(context.Background(), loader.Unit{Code: "a{color:red}}"}, lc); err == nil {
		t.Error("expected error for unexpected brace")
	}
}

func TestImportDependencies(t *testing.T) {
	dir := t.TempDir()
	dep := filepath.Join(dir, "b.css")
	if err := os.WriteFile(dep, []byte("b{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	id := filepath.Join(dir, "a.css")
	code := "@import \"b.css\";\n@import url(https://cdn.example.com/x.css);\n@import 'missing.css';\na{}"

	lc, _ := newContext(t, dir, id, nil)
	process(t, New(nil, nil), lc, code)
	if got := lc.Dependencies.List(); !slices.Equal(got, []string{dep}) {
		t.Errorf("dependencies = %v, want [%s]", got, dep)
	}
}
