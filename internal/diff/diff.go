// Package diff renders unified diffs between a NetworkConfig document's
// on-disk content and its pending edits, previewed by the ananke config
// command before a commit (SPEC_FULL.md §4.K).
package diff

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffGenerator renders a unified or context diff between two file
// revisions identified by FromFile/ToFile.
type DiffGenerator struct {
	FromFile string
	ToFile   string
	Context  int
}

// NewDiffGenerator builds a DiffGenerator for the given revision labels.
func NewDiffGenerator(fromFile, toFile string, context int) *DiffGenerator {
	return &DiffGenerator{
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  context,
	}
}

// GenerateUnifiedDiff renders a "diff -u" style comparison of a and b.
func (d *DiffGenerator) GenerateUnifiedDiff(a, b []string) (string, error) {
	if len(a) == 0 && len(b) == 0 {
		return fmt.Sprintf("--- %s\n+++ %s\n", d.FromFile, d.ToFile), nil
	}

	diff := difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: d.FromFile,
		ToFile:   d.ToFile,
		Context:  d.Context,
	}
	return difflib.GetUnifiedDiffString(diff)
}

// GenerateContextDiff renders a context-style comparison of a and b.
func (d *DiffGenerator) GenerateContextDiff(a, b []string) (string, error) {
	if len(a) == 0 && len(b) == 0 {
		return fmt.Sprintf("*** %s\n--- %s\n", d.FromFile, d.ToFile), nil
	}

	diff := difflib.ContextDiff{
		A:        a,
		B:        b,
		FromFile: d.FromFile,
		ToFile:   d.ToFile,
		Context:  d.Context,
	}
	return difflib.GetContextDiffString(diff)
}
