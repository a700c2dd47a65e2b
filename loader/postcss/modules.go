package postcss

import (
	"strings"

	"github.com/tdewolff/parse/v2/css"

	"stylepipe/sourcemap"
)

type blockKind int

const (
	blockRules blockKind = iota
	blockDecls
	blockKeyframes
)

// at-rules whose blocks contain rules rather than declarations
var nestedRules = map[string]bool{
	"media":          true,
	"supports":       true,
	"layer":          true,
	"container":      true,
	"document":       true,
	"scope":          true,
	"starting-style": true,
}

func isKeyframes(name string) bool {
	return strings.HasSuffix(name, "keyframes")
}

func isAnimation(prop string) bool {
	return strings.HasSuffix(prop, "animation") || strings.HasSuffix(prop, "animation-name")
}

// scope keeps local to scoped name mapping in order of first appearance.
type scope struct {
	generate  func(string) string
	names     map[string]string
	order     []string
	keyframes map[string]bool
}

func newScope(generate func(string) string) *scope {
	return &scope{generate: generate, names: make(map[string]string), keyframes: make(map[string]bool)}
}

func (s *scope) get(local string) string {
	if v, ok := s.names[local]; ok {
		return v
	}
	v := s.generate(local)
	s.names[local] = v
	s.order = append(s.order, local)
	return v
}

// position is 0-based line and UTF-16 column.
type position struct {
	line, column int
}

func (p position) after(s string) position {
	lines, column := sourcemap.Advance(s)
	if lines > 0 {
		return position{p.line + lines, column}
	}
	return position{p.line, p.column + column}
}

// rewriter renames local class, id and keyframes identifiers in place. Only
// identifier text changes, so line structure of the sheet is preserved. Every
// token written gets a segment pointing back to where it started in the
// input.
type rewriter struct {
	toks     []token
	starts   []position
	pos      int
	out      strings.Builder
	gen      position
	mappings []sourcemap.Mapping
	scope    *scope
	stack    []blockKind
}

func rewriteModules(toks []token, s *scope) (string, []sourcemap.Mapping) {
	collectKeyframes(toks, s)
	r := &rewriter{toks: toks, scope: s, stack: []blockKind{blockRules}}
	r.starts = make([]position, len(toks))
	var p position
	for i, t := range toks {
		r.starts[i] = p
		p = p.after(t.data)
	}
	for r.pos < len(r.toks) {
		if r.top() == blockDecls {
			r.declaration()
		} else {
			r.prelude()
		}
	}
	return r.out.String(), r.mappings
}

// rewriteMap describes rewritten code in terms of the code it came from.
func rewriteMap(source, code string, mappings []sourcemap.Mapping) *sourcemap.Map {
	return &sourcemap.Map{
		Version:        3,
		Sources:        []string{source},
		SourcesContent: []*string{&code},
		Names:          []string{},
		Mappings:       sourcemap.EncodeMappings(mappings),
	}
}

// write outputs text produced from token at index i.
func (r *rewriter) write(text string, i int) {
	if tt := r.toks[i].tt; tt != css.WhitespaceToken && tt != css.CommentToken {
		r.mappings = append(r.mappings, sourcemap.Mapping{
			GeneratedLine:   r.gen.line,
			GeneratedColumn: r.gen.column,
			HasSource:       true,
			OriginalLine:    r.starts[i].line,
			OriginalColumn:  r.starts[i].column,
		})
	}
	r.out.WriteString(text)
	r.gen = r.gen.after(text)
}

func collectKeyframes(toks []token, s *scope) {
	for i := 0; i < len(toks); i++ {
		if toks[i].tt != css.AtKeywordToken || !isKeyframes(toks[i].name()) {
			continue
		}
		j := skipBlank(toks, i+1)
		if j < len(toks) && toks[j].tt == css.IdentToken {
			s.keyframes[toks[j].data] = true
		}
	}
}

func skipBlank(toks []token, i int) int {
	for i < len(toks) && (toks[i].tt == css.WhitespaceToken || toks[i].tt == css.CommentToken) {
		i++
	}
	return i
}

func (r *rewriter) top() blockKind {
	return r.stack[len(r.stack)-1]
}

func (r *rewriter) push(k blockKind) {
	r.stack = append(r.stack, k)
}

func (r *rewriter) pop() {
	if len(r.stack) > 1 {
		r.stack = r.stack[:len(r.stack)-1]
	}
}

func (r *rewriter) emit() {
	r.write(r.toks[r.pos].data, r.pos)
	r.pos++
}

func (r *rewriter) peekAt(offset int) (token, bool) {
	if r.pos+offset < len(r.toks) {
		return r.toks[r.pos+offset], true
	}
	return token{}, false
}

func (r *rewriter) prelude() {
	t := r.toks[r.pos]
	switch t.tt {
	case css.WhitespaceToken, css.CommentToken, css.CDOToken, css.CDCToken, css.SemicolonToken:
		r.emit()
	case css.RightBraceToken:
		r.emit()
		r.pop()
	case css.AtKeywordToken:
		r.atRule()
	default:
		if r.top() == blockKeyframes {
			r.plain(blockDecls)
		} else {
			r.selector()
		}
	}
}

// plain copies prelude tokens up to the block start.
func (r *rewriter) plain(kind blockKind) {
	for r.pos < len(r.toks) {
		switch r.toks[r.pos].tt {
		case css.LeftBraceToken:
			r.emit()
			r.push(kind)
			return
		case css.SemicolonToken:
			r.emit()
			return
		case css.RightBraceToken:
			return
		}
		r.emit()
	}
}

func (r *rewriter) atRule() {
	name := r.toks[r.pos].name()
	r.emit()

	if !isKeyframes(name) {
		kind := blockDecls
		if nestedRules[name] {
			kind = blockRules
		}
		r.plain(kind)
		return
	}

	for r.pos < len(r.toks) && (r.toks[r.pos].tt == css.WhitespaceToken || r.toks[r.pos].tt == css.CommentToken) {
		r.emit()
	}
	if t, ok := r.peekAt(0); ok {
		switch {
		case t.tt == css.IdentToken:
			r.write(r.scope.get(t.data), r.pos)
			r.pos++
		case t.tt == css.ColonToken:
			if fn, ok := r.peekAt(1); ok && fn.tt == css.FunctionToken && strings.EqualFold(fn.data, "global(") {
				r.pos += 2
				r.group(false)
			}
		}
	}
	r.plain(blockKeyframes)
}

func (r *rewriter) selector() {
	local := true
	for r.pos < len(r.toks) {
		t := r.toks[r.pos]
		switch t.tt {
		case css.LeftBraceToken:
			r.emit()
			r.push(blockDecls)
			return
		case css.RightBraceToken:
			return
		case css.SemicolonToken:
			r.emit()
			return
		case css.CommaToken:
			local = true
			r.emit()
		case css.ColonToken:
			next, ok := r.peekAt(1)
			switch {
			case ok && next.tt == css.FunctionToken && (strings.EqualFold(next.data, "global(") || strings.EqualFold(next.data, "local(")):
				r.pos += 2
				r.group(strings.EqualFold(next.data, "local("))
			case ok && next.tt == css.IdentToken && (strings.EqualFold(next.data, "global") || strings.EqualFold(next.data, "local")):
				local = strings.EqualFold(next.data, "local")
				r.pos += 2
			default:
				r.emit()
			}
		default:
			r.name(local)
		}
	}
}

// nestedRule reports whether tokens from current position open a block
// before the declaration ends, which makes them a nested selector. Custom
// properties may hold braces in their values and are never selectors.
func (r *rewriter) nestedRule() bool {
	if t := r.toks[r.pos]; t.tt == css.IdentToken && strings.HasPrefix(t.data, "--") {
		return false
	}
	depth := 0
	for i := r.pos; i < len(r.toks); i++ {
		switch r.toks[i].tt {
		case css.LeftParenthesisToken, css.FunctionToken, css.LeftBracketToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			depth--
		case css.LeftBraceToken:
			return depth == 0
		case css.SemicolonToken, css.RightBraceToken:
			if depth == 0 {
				return false
			}
		}
	}
	return false
}

// group processes contents of :global(...) or :local(...) dropping the wrapper.
func (r *rewriter) group(local bool) {
	depth := 1
	for r.pos < len(r.toks) {
		t := r.toks[r.pos]
		switch t.tt {
		case css.LeftBraceToken:
			return
		case css.LeftParenthesisToken, css.FunctionToken:
			depth++
			r.emit()
		case css.RightParenthesisToken:
			depth--
			if depth == 0 {
				r.pos++
				return
			}
			r.emit()
		default:
			r.name(local)
		}
	}
}

// name emits current token renaming class or id selector when local.
func (r *rewriter) name(local bool) {
	t := r.toks[r.pos]
	switch {
	case local && t.tt == css.DelimToken && t.data == ".":
		if next, ok := r.peekAt(1); ok && next.tt == css.IdentToken {
			r.write("."+r.scope.get(next.data), r.pos)
			r.pos += 2
			return
		}
	case local && t.tt == css.HashToken:
		r.write("#"+r.scope.get(t.data[1:]), r.pos)
		r.pos++
		return
	}
	r.emit()
}

func (r *rewriter) declaration() {
	t := r.toks[r.pos]
	switch t.tt {
	case css.RightBraceToken:
		r.emit()
		r.pop()
		return
	case css.AtKeywordToken:
		r.atRule()
		return
	case css.WhitespaceToken, css.CommentToken, css.SemicolonToken:
		r.emit()
		return
	}
	if r.nestedRule() {
		r.selector()
		return
	}
	if t.tt != css.IdentToken {
		r.emit()
		return
	}

	prop := strings.ToLower(t.data)
	r.emit()
	for r.pos < len(r.toks) && (r.toks[r.pos].tt == css.WhitespaceToken || r.toks[r.pos].tt == css.CommentToken) {
		r.emit()
	}
	if r.pos >= len(r.toks) || r.toks[r.pos].tt != css.ColonToken {
		return
	}
	r.emit()

	animated := isAnimation(prop)
	depth := 0
	for r.pos < len(r.toks) {
		v := r.toks[r.pos]
		switch v.tt {
		case css.SemicolonToken, css.RightBraceToken:
			if depth == 0 {
				return
			}
			if v.tt == css.RightBraceToken {
				depth--
			}
		case css.LeftBraceToken:
			depth++
		case css.IdentToken:
			if animated && r.scope.keyframes[v.data] {
				r.write(r.scope.get(v.data), r.pos)
				r.pos++
				continue
			}
		}
		r.emit()
	}
}
