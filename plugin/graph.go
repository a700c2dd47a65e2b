package plugin

import (
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

// Metafile is the part of esbuild metafile module graph is built from.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
}

type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

type MetafileOutput struct {
	Bytes      int    `json:"bytes"`
	EntryPoint string `json:"entryPoint,omitempty"`
}

// MetafileGraph answers module graph queries from esbuild metafile. Module
// ids are absolute paths, metafile keys are relative to working directory.
type MetafileGraph struct {
	root    string
	meta    Metafile
	entries []string
	outputs map[string]string
}

// ParseMetafile decodes metafile produced by build running in root.
func ParseMetafile(data, root string) (*MetafileGraph, error) {
	g := &MetafileGraph{root: root, outputs: make(map[string]string)}
	if err := json.Unmarshal([]byte(data), &g.meta); err != nil {
		return nil, fmt.Errorf("unable to decode metafile: %w", err)
	}

	// outputs are sorted so entries come in stable order
	for _, out := range slices.Sorted(maps.Keys(g.meta.Outputs)) {
		ep := g.meta.Outputs[out].EntryPoint
		if len(ep) == 0 || strings.HasSuffix(out, ".map") {
			continue
		}
		id := g.id(ep)
		if _, ok := g.outputs[id]; ok {
			continue
		}
		g.outputs[id] = out
		g.entries = append(g.entries, id)
	}
	return g, nil
}

// id converts metafile path to module id. Paths in namespaces other than
// "file" are returned as is.
func (g *MetafileGraph) id(p string) string {
	if ns, rest, ok := strings.Cut(p, ":"); ok && len(ns) > 1 && !strings.Contains(ns, "/") {
		if ns != "file" {
			return p
		}
		p = rest
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(g.root, filepath.FromSlash(p))
}

func (g *MetafileGraph) Entries() []string {
	return slices.Clone(g.entries)
}

func (g *MetafileGraph) IsEntry(id string) bool {
	_, ok := g.outputs[id]
	return ok
}

// Output returns output file produced for entry.
func (g *MetafileGraph) Output(entry string) string {
	return g.outputs[entry]
}

// ImportOrder walks imports depth first from entry and lists modules after
// all of their imports, which is the order they execute in.
func (g *MetafileGraph) ImportOrder(entry string) []string {
	keys := make(map[string]string, len(g.meta.Inputs))
	for k := range g.meta.Inputs {
		keys[g.id(k)] = k
	}

	var (
		order   []string
		visited = make(map[string]bool)
		visit   func(key string)
	)
	visit = func(key string) {
		if visited[key] {
			return
		}
		visited[key] = true
		for _, imp := range g.meta.Inputs[key].Imports {
			if imp.External {
				continue
			}
			if _, ok := g.meta.Inputs[imp.Path]; ok {
				visit(imp.Path)
			}
		}
		order = append(order, g.id(key))
	}
	if key, ok := keys[entry]; ok {
		visit(key)
	}
	return order
}
