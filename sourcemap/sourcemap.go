// Package sourcemap implements source map (revision 3) wire format used
// between pipeline stages and merging of maps for concatenated output.
package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Map is the JSON structure of a source map.
type Map struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

// Mapping is a single decoded segment. All positions are 0-based, columns are
// counted in UTF-16 code units.
type Mapping struct {
	GeneratedLine   int
	GeneratedColumn int

	HasSource      bool
	SourceIndex    int
	OriginalLine   int
	OriginalColumn int

	HasName   bool
	NameIndex int
}

// Parse accepts source map in any form loaders are allowed to return: nil,
// *Map, Map, JSON string or bytes. Empty input results in nil map.
func Parse(v any) (*Map, error) {
	var data []byte
	switch m := v.(type) {
	case nil:
		return nil, nil
	case *Map:
		return m, nil
	case Map:
		return &m, nil
	case string:
		data = []byte(m)
	case []byte:
		data = m
	case json.RawMessage:
		data = m
	default:
		return nil, fmt.Errorf("unsupported source map type %T", v)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	m := &Map{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("unable to decode source map: %w", err)
	}
	if m.Version != 0 && m.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", m.Version)
	}
	m.Version = 3
	return m, nil
}

// JSON serializes map.
func (m *Map) JSON() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil source map")
	}
	out := *m
	out.Version = 3
	if out.Sources == nil {
		out.Sources = []string{}
	}
	if out.Names == nil {
		out.Names = []string{}
	}
	return json.Marshal(out)
}

// String returns JSON representation of the map, empty string for nil map or
// when map cannot be serialized.
func (m *Map) String() string {
	if m == nil {
		return ""
	}
	data, err := m.JSON()
	if err != nil {
		return ""
	}
	return string(data)
}

// Clone returns deep copy of the map. Maps handed between stages are treated
// as immutable, anybody who wants to change one has to clone it first.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	out := *m
	out.Sources = append([]string(nil), m.Sources...)
	out.Names = append([]string(nil), m.Names...)
	if m.SourcesContent != nil {
		out.SourcesContent = append([]*string(nil), m.SourcesContent...)
	}
	return &out
}

// Decode returns decoded mappings.
func (m *Map) Decode() ([]Mapping, error) {
	if m == nil {
		return nil, nil
	}
	return DecodeMappings(m.Mappings)
}

// ResolvedSources returns sources with sourceRoot applied.
func (m *Map) ResolvedSources() []string {
	out := make([]string, len(m.Sources))
	for i, s := range m.Sources {
		if len(m.SourceRoot) > 0 && !isAbsoluteRef(s) {
			s = path.Join(m.SourceRoot, s)
		}
		out[i] = s
	}
	return out
}

// RewriteSources returns a copy of the map with every source replaced by
// fn(source). sourceRoot is folded into sources beforehand.
func (m *Map) RewriteSources(fn func(string) string) *Map {
	if m == nil {
		return nil
	}
	out := m.Clone()
	for i, s := range m.ResolvedSources() {
		out.Sources[i] = fn(s)
	}
	out.SourceRoot = ""
	return out
}

// NormalizeSources rewrites sources to forward-slash paths relative to root,
// independent of host operating system. "file://" URLs are converted to paths.
func (m *Map) NormalizeSources(root string) *Map {
	return m.RewriteSources(func(s string) string {
		return Humanize(root, s)
	})
}

// NormalizePath converts all (possibly repeating) back slashes to forward
// slashes.
func NormalizePath(p string) string {
	return backslashes.ReplaceAllString(p, "/")
}

var backslashes = regexp.MustCompile(`\\+`)

// Humanize turns absolute path or file URL into forward-slash path relative to
// root. Anything which is not a local path is returned normalized but
// otherwise unchanged.
func Humanize(root, p string) string {
	if strings.HasPrefix(p, "file://") {
		p = FileURLToPath(p)
	}
	if len(root) > 0 && filepath.IsAbs(p) {
		if rel, err := filepath.Rel(root, p); err == nil {
			p = rel
		}
	}
	return NormalizePath(p)
}

// FileURLToPath converts "file://" URL to local path.
func FileURLToPath(u string) string {
	p := strings.TrimPrefix(u, "file://")
	// file:///C:/dir on windows
	if len(p) > 2 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p)
}

// PathToFileURL converts local absolute path to "file://" URL.
func PathToFileURL(p string) string {
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}

func isAbsoluteRef(s string) bool {
	return strings.HasPrefix(s, "/") || strings.Contains(s, "://") || filepath.IsAbs(s)
}

// Identity produces map describing code as unchanged copy of source: every
// line is mapped to the same line of source starting at column 0.
func Identity(source, code string) *Map {
	lines := strings.Count(code, "\n") + 1
	mappings := make([]Mapping, 0, lines)
	for i := range lines {
		mappings = append(mappings, Mapping{GeneratedLine: i, HasSource: true, OriginalLine: i})
	}
	content := code
	return &Map{
		Version:        3,
		Sources:        []string{source},
		SourcesContent: []*string{&content},
		Names:          []string{},
		Mappings:       EncodeMappings(mappings),
	}
}

// Find returns mapping covering generated position or nil. Mappings must be
// sorted by generated position. Search stays on the same generated line.
func Find(mappings []Mapping, line, column int) *Mapping {
	index := sort.Search(len(mappings), func(i int) bool {
		m := mappings[i]
		return m.GeneratedLine > line || (m.GeneratedLine == line && m.GeneratedColumn > column)
	})
	if index > 0 {
		if m := &mappings[index-1]; m.GeneratedLine == line {
			return m
		}
	}
	return nil
}

const dataURLPrefix = "data:application/json;base64,"

// DataURL returns base64 encoded data URL with map JSON.
func DataURL(m *Map) (string, error) {
	data, err := m.JSON()
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// InlineComment returns CSS comment embedding the whole map.
func InlineComment(m *Map) (string, error) {
	u, err := DataURL(m)
	if err != nil {
		return "", err
	}
	return "/*# sourceMappingURL=" + u + " */", nil
}

// FileComment returns CSS comment referencing external map file.
func FileComment(name string) string {
	return "/*# sourceMappingURL=" + name + " */"
}

var inlineCommentRe = regexp.MustCompile(`\n?/\*# sourceMappingURL=data:application/json;(?:charset=[^;,]+;)?base64,([A-Za-z0-9+/=]+)\s*\*/\s*$`)

// ExtractInline removes trailing inline source map comment from CSS code and
// returns code without it together with decoded map. When there is no such
// comment code is returned unchanged and map is nil.
func ExtractInline(code string) (string, *Map, error) {
	loc := inlineCommentRe.FindStringSubmatchIndex(code)
	if loc == nil {
		return code, nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(code[loc[2]:loc[3]])
	if err != nil {
		return code, nil, fmt.Errorf("unable to decode inline source map: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return code, nil, err
	}
	return code[:loc[0]], m, nil
}
