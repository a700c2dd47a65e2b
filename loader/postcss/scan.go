package postcss

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

type token struct {
	tt   css.TokenType
	data string
}

// name returns lowercased at-rule name without leading "@".
func (t token) name() string {
	return strings.ToLower(strings.TrimPrefix(t.data, "@"))
}

// tokenize splits code into lossless token stream and verifies that braces
// and parentheses are balanced.
func tokenize(code string) ([]token, error) {
	var (
		toks   []token
		stack  []byte
		offset int
		lexer  = css.NewLexer(parse.NewInputString(code))
	)
	for {
		tt, data := lexer.Next()
		if tt == css.ErrorToken {
			if err := lexer.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, positionError(code, offset, err.Error())
			}
			break
		}

		switch tt {
		case css.LeftBraceToken:
			stack = append(stack, '}')
		case css.LeftParenthesisToken, css.FunctionToken:
			stack = append(stack, ')')
		case css.RightBraceToken, css.RightParenthesisToken:
			want := byte('}')
			if tt == css.RightParenthesisToken {
				want = ')'
			}
			if len(stack) == 0 || stack[len(stack)-1] != want {
				return nil, positionError(code, offset, fmt.Sprintf("unexpected %q", data))
			}
			stack = stack[:len(stack)-1]
		case css.BadStringToken:
			return nil, positionError(code, offset, "unclosed string")
		}

		toks = append(toks, token{tt: tt, data: string(data)})
		offset += len(data)
	}
	if len(stack) > 0 {
		return nil, positionError(code, offset, fmt.Sprintf("unclosed block, missing %q", stack[len(stack)-1]))
	}
	return toks, nil
}

func positionError(code string, offset int, msg string) error {
	line, col, _ := parse.Position(strings.NewReader(code), offset)
	return fmt.Errorf("%d:%d: %s", line, col, msg)
}

// collectImports registers local @import targets which exist on disk.
func collectImports(code, id string, add func(string)) {
	parser := css.NewParser(parse.NewInput(bytes.NewReader([]byte(code))), false)
	for {
		gt, _, data := parser.Next()
		if gt == css.ErrorGrammar {
			return
		}
		if gt != css.AtRuleGrammar || !strings.EqualFold(string(data), "@import") {
			continue
		}
		url := extractImportURL(parser.Values())
		if len(url) == 0 || isRemote(url) {
			continue
		}
		path := url
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(id), filepath.FromSlash(url))
		}
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			add(path)
		}
	}
}

func isRemote(url string) bool {
	lower := strings.ToLower(url)
	return strings.HasPrefix(lower, "http:") || strings.HasPrefix(lower, "https:") ||
		strings.HasPrefix(lower, "//") || strings.HasPrefix(lower, "data:")
}

// extractImportURL handles: @import "url"; @import url("url"); @import url(url);
func extractImportURL(tokens []css.Token) string {
	for _, t := range tokens {
		switch t.TokenType {
		case css.StringToken:
			return unquote(string(t.Data))
		case css.URLToken:
			s := string(t.Data)
			s = strings.TrimPrefix(s, "url(")
			s = strings.TrimSuffix(s, ")")
			return unquote(strings.TrimSpace(s))
		}
	}
	return ""
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
