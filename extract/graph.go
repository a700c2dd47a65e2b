package extract

import (
	"path/filepath"
	"slices"
	"strings"

	"stylepipe/loader"
	"stylepipe/sourcemap"
)

// ModuleGraph is what bundling needs to know about host module graph.
type ModuleGraph interface {
	// Entries lists entry modules in stable order.
	Entries() []string
	// ImportOrder returns modules reachable from entry in execution order,
	// dependencies before dependents, each module once.
	ImportOrder(entry string) []string
	IsEntry(id string) bool
}

// OrderedGraph is a graph with single entry whose import order is known
// upfront.
type OrderedGraph struct {
	Entry string
	Order []string
}

func (g OrderedGraph) Entries() []string {
	return []string{g.Entry}
}

func (g OrderedGraph) ImportOrder(entry string) []string {
	if entry != g.Entry {
		return nil
	}
	return g.Order
}

func (g OrderedGraph) IsEntry(id string) bool {
	return id == g.Entry
}

// Group is a set of assets going into a single bundle.
type Group struct {
	FileName string
	Assets   []loader.Asset
}

// Plan splits accumulated assets into bundles. Every entry contributes its
// import order to the bundle named by fileName(entry), entries resolving to
// the same name share a bundle. Assets not reachable from any entry are
// appended to the first bundle. Bundles without assets are dropped.
func Plan(acc *Accumulator, g ModuleGraph, fileName func(entry string) string) []Group {
	var (
		names  []string
		orders = make(map[string][]string)
		seen   = make(map[string]map[string]bool)
	)
	for _, entry := range g.Entries() {
		name := fileName(entry)
		if _, ok := orders[name]; !ok {
			names = append(names, name)
			orders[name] = nil
			seen[name] = make(map[string]bool)
		}
		for _, id := range g.ImportOrder(entry) {
			if !seen[name][id] {
				seen[name][id] = true
				orders[name] = append(orders[name], id)
			}
		}
	}
	if len(names) == 0 {
		names = append(names, fileName(""))
	}

	groups := make([]Group, 0, len(names))
	for i, name := range names {
		var assets []loader.Asset
		if i == 0 {
			for _, a := range acc.Finalize(orders[name]) {
				if !claimedElsewhere(a.ID, name, names, seen) {
					assets = append(assets, a)
				}
			}
		} else {
			assets = acc.Select(orders[name])
		}
		if len(assets) > 0 {
			groups = append(groups, Group{FileName: name, Assets: assets})
		}
	}
	return groups
}

func claimedElsewhere(id, name string, names []string, seen map[string]map[string]bool) bool {
	if seen[name][id] {
		return false
	}
	return slices.ContainsFunc(names, func(n string) bool {
		return n != name && seen[n][id]
	})
}

// FileName returns name of the bundle relative to outDir. When extract is
// empty bundle is named after output with ".css" extension, otherwise
// extract (relative to root unless absolute) is made relative to outDir.
func FileName(extract, output, root, outDir string) string {
	if len(extract) == 0 {
		base := filepath.Base(output)
		if output == "" {
			base = "bundle"
		}
		return strings.TrimSuffix(base, filepath.Ext(base)) + ".css"
	}
	p := extract
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	dir := outDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	if rel, err := filepath.Rel(dir, p); err == nil {
		p = rel
	}
	return sourcemap.NormalizePath(p)
}
