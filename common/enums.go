// Package common holds enums shared between configuration, loaders and the
// build driver, so that loader packages do not have to depend on config.
package common

//go:generate go tool go-enum --marshal --names --mustparse

// Source map generation mode. "file" produces separate map artifact, "inline"
// embeds map into the code as data URL comment.
// ENUM(none, file, inline)
type SourceMapMode int

// Enabled reports whether any source map work has to be done.
func (m SourceMapMode) Enabled() bool {
	return m == SourceMapModeFile || m == SourceMapModeInline
}

// Built-in loader kinds. Loaders with any other name are custom ones.
// ENUM(postcss, sass, less, stylus)
type LoaderKind int

// IsBuiltin reports whether name is one of built-in loader kinds.
func IsBuiltin(name string) bool {
	_, err := ParseLoaderKind(name)
	return err == nil
}

// How inlined styles are attached to the page at runtime.
// ENUM(none, runtime, template)
type InjectMode int

// Output style of compiled Sass.
// ENUM(expanded, compressed)
type SassOutputStyle int
