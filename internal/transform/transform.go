// Package transform holds the per-platform config-pack transform registry
// (SPEC_FULL.md §4.G). A transform runs once per pack, just before
// deploy, and may mutate the pack's content in place.
package transform

import "github.com/doubleverify/ananke/internal/model"

// Func mutates a pack for a specific platform's quirks and returns it.
type Func func(pack *model.ConfigPack) *model.ConfigPack

var registry = map[string]Func{}

// Register associates a platform or service id with a transform. Called
// from each transform's init, mirroring the original's dynamically
// imported transform modules but resolved statically at build time.
func Register(platformID string, fn Func) {
	registry[platformID] = fn
}

// Lookup returns the transform registered for platformID, if any.
func Lookup(platformID string) (Func, bool) {
	fn, ok := registry[platformID]
	return fn, ok
}

// Apply runs the registered transform for platformID against every pack,
// in place. Targets with no registered transform pass through untouched.
func Apply(platformID string, packs []*model.ConfigPack) {
	fn, ok := Lookup(platformID)
	if !ok {
		return
	}
	for i, pack := range packs {
		packs[i] = fn(pack)
	}
}
