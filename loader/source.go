package loader

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var charsetRule = regexp.MustCompile(`^@charset\s+"([^"]+)"\s*;`)

// DecodeSource converts raw style-sheet bytes to UTF-8 text. Byte order mark
// wins, otherwise leading @charset rule is honored. Missing or unknown charset
// means UTF-8.
func DecodeSource(data []byte) (string, error) {
	var (
		enc       encoding.Encoding = unicode.UTF8
		converted bool
	)
	if m := charsetRule.FindSubmatch(data); m != nil {
		name := strings.ToLower(string(m[1]))
		if name != "utf-8" {
			if e, err := ianaindex.IANA.Encoding(name); err == nil && e != nil {
				enc, converted = e, true
			}
		}
	}

	dec := unicode.BOMOverride(enc.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return "", fmt.Errorf("unable to decode source: %w", err)
	}
	text := string(out)
	if converted {
		text = charsetRule.ReplaceAllLiteralString(text, `@charset "UTF-8";`)
	}
	return text, nil
}
