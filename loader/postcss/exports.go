package postcss

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"stylepipe/common"
)

var dashes = regexp.MustCompile(`-+`)

// reserved lists words which cannot be used as JavaScript binding names.
var reserved = map[string]bool{
	"abstract": true, "arguments": true, "await": true, "boolean": true, "break": true,
	"byte": true, "case": true, "catch": true, "char": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true, "do": true,
	"double": true, "else": true, "enum": true, "eval": true, "export": true, "extends": true,
	"false": true, "final": true, "finally": true, "float": true, "for": true, "function": true,
	"goto": true, "if": true, "implements": true, "import": true, "in": true, "instanceof": true,
	"int": true, "interface": true, "let": true, "long": true, "native": true, "new": true,
	"null": true, "package": true, "private": true, "protected": true, "public": true,
	"return": true, "short": true, "static": true, "super": true, "switch": true,
	"synchronized": true, "this": true, "throw": true, "throws": true, "transient": true,
	"true": true, "try": true, "typeof": true, "var": true, "void": true, "volatile": true,
	"while": true, "with": true, "yield": true,
}

// exportName turns class name into valid identifier: every run of dashes
// becomes "$___$" and reserved words are wrapped into "$".
func exportName(name string) string {
	name = dashes.ReplaceAllStringFunc(name, func(m string) string {
		return "$" + strings.Repeat("_", len(m)) + "$"
	})
	if reserved[name] {
		name = "$" + name + "$"
	}
	return name
}

// jsString returns JavaScript string literal.
func jsString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// jsObject renders local to scoped mapping keeping key order.
func jsObject(keys []string, values map[string]string) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(jsString(k))
		sb.WriteByte(':')
		sb.WriteString(jsString(values[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}

// exports is what CSS module makes visible to JavaScript.
type exports struct {
	keys   []string
	values map[string]string
}

func newExports(s *scope) *exports {
	e := &exports{values: make(map[string]string)}
	if s == nil {
		return e
	}
	for _, local := range s.order {
		e.keys = append(e.keys, local)
		e.values[local] = s.names[local]
	}
	return e
}

// named writes "export var" statements. Every renamed class is reported
// through warn and is also added to the default export under its new name
// unless such key already exists.
func (e *exports) named(sb *strings.Builder, rel string, warn func(string)) {
	for _, name := range append([]string(nil), e.keys...) {
		ident := exportName(name)
		if ident != name {
			warn(fmt.Sprintf("Exported %q as %q in %s", name, ident, rel))
			if _, ok := e.values[ident]; !ok {
				e.keys = append(e.keys, ident)
				e.values[ident] = e.values[name]
			}
		}
		fmt.Fprintf(sb, "export var %s = %s;\n", ident, jsString(e.values[name]))
	}
}

func (e *exports) object() string {
	return jsObject(e.keys, e.values)
}

// injectCode returns statements appended to the inline module to put
// stylesheet into document.
func injectCode(o *Options, css, rel string) (string, error) {
	switch o.Inject {
	case common.InjectModeRuntime:
		code := "\nimport styleInject from " + jsString(o.injectModule()) + ";\nstyleInject(css"
		if len(o.InjectOptions) > 0 {
			data, err := json.Marshal(o.InjectOptions)
			if err != nil {
				return "", fmt.Errorf("unable to encode inject options: %w", err)
			}
			code += "," + string(data)
		}
		return code + ");", nil
	case common.InjectModeTemplate:
		if len(o.InjectTemplate) == 0 {
			return "", errors.New("inject template is empty")
		}
		r := strings.NewReplacer("{{css}}", jsString(css), "{{id}}", jsString(rel))
		return "\n" + r.Replace(o.InjectTemplate), nil
	}
	return "", nil
}
