package sourcemap

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Concat accumulates code chunks into a single buffer and merges their maps
// into one combined map with positions shifted to post-concatenation values.
type Concat struct {
	file      string
	separator string
	withMaps  bool

	sb     strings.Builder
	chunks int
	line   int
	column int

	sources     []string
	contents    []*string
	sourceIndex map[string]int
	names       []string
	nameIndex   map[string]int
	mappings    []Mapping
}

// NewConcat creates empty concatenation. When withMaps is false no map
// related work is done at all and Map always returns nil.
func NewConcat(file, separator string, withMaps bool) *Concat {
	return &Concat{
		file:        file,
		separator:   separator,
		withMaps:    withMaps,
		sourceIndex: make(map[string]int),
		nameIndex:   make(map[string]int),
	}
}

// Add appends chunk. Chunk without map is described by identity mapping to
// source. Sources of the chunk map are used as is.
func (c *Concat) Add(source, code string, m *Map) error {
	if c.chunks > 0 && len(c.separator) > 0 {
		c.write(c.separator)
	}
	c.chunks++

	if c.withMaps {
		if m == nil {
			m = Identity(source, code)
		}
		if err := c.merge(m); err != nil {
			return fmt.Errorf("unable to merge source map for %s: %w", source, err)
		}
	}
	c.write(code)
	return nil
}

func (c *Concat) merge(m *Map) error {
	mappings, err := m.Decode()
	if err != nil {
		return err
	}

	sources := m.ResolvedSources()
	remapSource := make([]int, len(sources))
	for i, s := range sources {
		var content *string
		if i < len(m.SourcesContent) {
			content = m.SourcesContent[i]
		}
		remapSource[i] = c.addSource(s, content)
	}
	remapName := make([]int, len(m.Names))
	for i, n := range m.Names {
		remapName[i] = c.addName(n)
	}

	for _, mp := range mappings {
		if mp.GeneratedLine == 0 {
			mp.GeneratedColumn += c.column
		}
		mp.GeneratedLine += c.line
		if mp.HasSource {
			if mp.SourceIndex < 0 || mp.SourceIndex >= len(remapSource) {
				return fmt.Errorf("source index %d out of range", mp.SourceIndex)
			}
			mp.SourceIndex = remapSource[mp.SourceIndex]
		}
		if mp.HasName {
			if mp.NameIndex < 0 || mp.NameIndex >= len(remapName) {
				mp.HasName = false
			} else {
				mp.NameIndex = remapName[mp.NameIndex]
			}
		}
		c.mappings = append(c.mappings, mp)
	}
	return nil
}

func (c *Concat) addSource(s string, content *string) int {
	if i, ok := c.sourceIndex[s]; ok {
		if c.contents[i] == nil {
			c.contents[i] = content
		}
		return i
	}
	i := len(c.sources)
	c.sourceIndex[s] = i
	c.sources = append(c.sources, s)
	c.contents = append(c.contents, content)
	return i
}

func (c *Concat) addName(n string) int {
	if i, ok := c.nameIndex[n]; ok {
		return i
	}
	i := len(c.names)
	c.nameIndex[n] = i
	c.names = append(c.names, n)
	return i
}

func (c *Concat) write(s string) {
	c.sb.WriteString(s)
	if !c.withMaps {
		return
	}
	lines, column := Advance(s)
	if lines > 0 {
		c.line += lines
		c.column = column
	} else {
		c.column += column
	}
}

// Lines returns number of complete lines written so far.
func (c *Concat) Lines() int {
	return c.line
}

// Content returns concatenated code.
func (c *Concat) Content() string {
	return c.sb.String()
}

// Map returns combined map or nil when maps are off.
func (c *Concat) Map() *Map {
	if !c.withMaps {
		return nil
	}
	m := &Map{
		Version:  3,
		File:     c.file,
		Sources:  append([]string{}, c.sources...),
		Names:    append([]string{}, c.names...),
		Mappings: EncodeMappings(c.mappings),
	}
	for _, content := range c.contents {
		if content != nil {
			m.SourcesContent = append([]*string(nil), c.contents...)
			break
		}
	}
	return m
}

// Advance returns number of line breaks in s and the column (in UTF-16 units)
// after the last line break.
func Advance(s string) (lines, column int) {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch r {
		case '\r':
			if i < len(s) && s[i] == '\n' {
				i++
			}
			fallthrough
		case '\n':
			lines++
			column = 0
		default:
			if r >= 0x10000 {
				column += 2
			} else {
				column++
			}
		}
	}
	return lines, column
}
