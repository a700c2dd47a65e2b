// Package extract collects stylesheets extracted from individual modules
// during a build and turns them into bundles in module graph order.
package extract

import (
	"sync"

	"stylepipe/loader"
)

// Accumulator stores extracted assets by module id. One accumulator lives
// for exactly one build, it is safe for concurrent use.
type Accumulator struct {
	mu     sync.Mutex
	assets map[string]loader.Asset
	order  []string
}

// NewAccumulator returns empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{assets: make(map[string]loader.Asset)}
}

// Record stores asset overwriting previous one with the same id. Position
// of the id in insertion order is kept from the first time it was seen.
func (a *Accumulator) Record(asset loader.Asset) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.assets[asset.ID]; !ok {
		a.order = append(a.order, asset.ID)
	}
	a.assets[asset.ID] = asset
}

// Get returns asset recorded for id.
func (a *Accumulator) Get(id string) (loader.Asset, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	asset, ok := a.assets[id]
	return asset, ok
}

// Len returns number of recorded assets.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.assets)
}

// Entries returns all assets in insertion order.
func (a *Accumulator) Entries() []loader.Asset {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]loader.Asset, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.assets[id])
	}
	return out
}

// Finalize returns assets ordered by importOrder. Assets which do not appear
// in importOrder follow in insertion order. Ids in importOrder without asset
// are ignored.
func (a *Accumulator) Finalize(importOrder []string) []loader.Asset {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]loader.Asset, 0, len(a.order))
	taken := make(map[string]bool, len(a.order))
	for _, id := range importOrder {
		if asset, ok := a.assets[id]; ok && !taken[id] {
			taken[id] = true
			out = append(out, asset)
		}
	}
	for _, id := range a.order {
		if !taken[id] {
			out = append(out, a.assets[id])
		}
	}
	return out
}

// Select returns only assets listed in order, in that order.
func (a *Accumulator) Select(order []string) []loader.Asset {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []loader.Asset
	taken := make(map[string]bool, len(order))
	for _, id := range order {
		if asset, ok := a.assets[id]; ok && !taken[id] {
			taken[id] = true
			out = append(out, asset)
		}
	}
	return out
}
