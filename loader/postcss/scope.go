package postcss

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
)

var (
	placeholder = regexp.MustCompile(`\[(name|local|hash)(?::(base64|hex))?(?::(\d+))?\]`)
	invalidRune = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	moduleFile  = regexp.MustCompile(`\.module\.[a-z]{2,6}$`)
)

// isModuleFile reports whether file follows "name.module.ext" convention.
func isModuleFile(id string) bool {
	return moduleFile.MatchString(id)
}

// scopedNamer produces scoped identifiers for file from pattern.
func scopedNamer(pattern, id, rel string) func(local string) string {
	base := filepath.Base(id)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimSuffix(base, ".module")
	name := slug.Make(base)

	return func(local string) string {
		out := placeholder.ReplaceAllStringFunc(pattern, func(ph string) string {
			m := placeholder.FindStringSubmatch(ph)
			switch m[1] {
			case "name":
				return name
			case "local":
				return local
			}
			sum := sha256.Sum256([]byte(rel + ":" + local))
			var h string
			if m[2] == "hex" || (len(m[2]) == 0 && len(m[3]) == 0) {
				h = hex.EncodeToString(sum[:])
				if len(m[3]) == 0 {
					return h[:8]
				}
			} else {
				h = base64.RawURLEncoding.EncodeToString(sum[:])
			}
			if n, err := strconv.Atoi(m[3]); err == nil && n > 0 && n < len(h) {
				h = h[:n]
			}
			return h
		})
		out = invalidRune.ReplaceAllString(out, "_")
		if len(out) == 0 || (out[0] >= '0' && out[0] <= '9') || strings.HasPrefix(out, "--") {
			out = "_" + out
		}
		return out
	}
}
