package minify

import (
	"testing"

	"stylepipe/sourcemap"
)

func TestMinify(t *testing.T) {
	code := "a {\n  color: red;\n}\n\nb {\n  color: #ffffff;\n}\n"

	out, m, err := Esbuild{}.Minify(code, "bundle.css", nil)
	if err != nil {
		t.Fatalf("Minify() error: %v", err)
	}
	if out != "a{color:red}b{color:#fff}" {
		t.Errorf("Minify() = %q", out)
	}
	if m != nil {
		t.Error("map returned without previous map")
	}
}

func TestMinifyChainsMap(t *testing.T) {
	code := "a {\n  color: red;\n}\nb {\n  color: #0000ff;\n}"
	prev := sourcemap.Identity("src/a.scss", code)
	prev.File = "bundle.css"

	out, m, err := Esbuild{}.Minify(code, "bundle.css", prev)
	if err != nil {
		t.Fatalf("Minify() error: %v", err)
	}
	if out != "a{color:red}b{color:#00f}" {
		t.Errorf("Minify() = %q", out)
	}
	if m == nil {
		t.Fatal("map is missing")
	}
	if len(m.Sources) != 1 || m.Sources[0] != "src/a.scss" {
		t.Errorf("Sources = %v", m.Sources)
	}
	if m.File != "bundle.css" {
		t.Errorf("File = %q", m.File)
	}
	mappings, err := m.Decode()
	if err != nil {
		t.Fatal(err)
	}
	var lines []int
	for _, mp := range mappings {
		if mp.GeneratedLine != 0 {
			t.Errorf("minified output has mapping on line %d", mp.GeneratedLine)
		}
		lines = append(lines, mp.OriginalLine)
	}
	if len(lines) == 0 || lines[0] != 0 || lines[len(lines)-1] < 3 {
		t.Errorf("original lines = %v", lines)
	}
}

func TestSplitTarget(t *testing.T) {
	name, version := splitTarget(" Chrome58 ")
	if name != "chrome" || version != "58" {
		t.Errorf("splitTarget() = %q, %q", name, version)
	}
	if got := engines([]string{"safari11", "unknown1"}); len(got) != 1 {
		t.Errorf("engines() = %v", got)
	}
}
