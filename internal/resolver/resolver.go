// Package resolver expands user-supplied host/role/service tokens into a
// concrete set of targets, each tagged with its requested config sections
// (SPEC_FULL.md §4.B, ported from struct/dispatch.py's parse_targets).
package resolver

import (
	"github.com/doubleverify/ananke/internal/logging"
	"github.com/doubleverify/ananke/internal/model"
)

// SectionSet is a set of user-supplied section tokens (file names or path
// substrings).
type SectionSet map[string]struct{}

// NewSectionSet builds a SectionSet from a slice, de-duplicating.
func NewSectionSet(sections []string) SectionSet {
	set := make(SectionSet, len(sections))
	for _, s := range sections {
		set[s] = struct{}{}
	}
	return set
}

// Union merges other into set in place.
func (set SectionSet) Union(other SectionSet) {
	for s := range other {
		set[s] = struct{}{}
	}
}

// Slice returns the section set as a plain slice, in no particular order.
func (set SectionSet) Slice() []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// Resolve expands tokens (host id, role name, "all", or "" for every known
// target) into target id -> requested sections, applying domainName as a
// suffix when set. Tokens matching neither a device nor a role are logged
// as a warning and skipped, never failed.
//
// vars holds every known target's variables, keyed by its bare id (as
// loaded by internal/vartree).
func Resolve(tokens map[string]SectionSet, vars map[string]model.Variables, domainName string) map[string]SectionSet {
	roles := rolesOf(vars)
	resolved := make(map[string]SectionSet)

	// Rule 1: the null token ("") expands to every known target.
	if sections, ok := tokens[""]; ok {
		for id := range vars {
			addSections(resolved, withDomain(id, domainName), sections)
		}
	}

	// Rule 2: "all" expands to every device (not service), with its
	// sections carried to each.
	if sections, ok := tokens["all"]; ok {
		for id, v := range vars {
			if v.IsService() {
				continue
			}
			addSections(resolved, withDomain(id, domainName), sections)
		}
	}

	// Rule 4 runs before rule 3 below: direct target matches are applied
	// last and replace (rather than union with) whatever a role/all/null
	// expansion already contributed for that same target, matching the
	// original resolver's dict-merge precedence.
	for token, sections := range tokens {
		if token == "" || token == "all" || hasTarget(vars, token) {
			continue
		}
		if roles[token] {
			// Rule 4: role match, expand to every target carrying it.
			for id, v := range vars {
				for _, r := range v.Roles() {
					if r == token {
						addSections(resolved, withDomain(id, domainName), sections)
						break
					}
				}
			}
			continue
		}
		// Rule 5: unresolvable token, warn and skip.
		if logging.Sugar != nil {
			logging.Sugar.Warnf("%q does not appear to be a device or role, skipping", token)
		}
	}

	for token, sections := range tokens {
		if token == "" || token == "all" || !hasTarget(vars, token) {
			continue
		}
		// Rule 3: direct target match, taken verbatim, overriding any
		// sections the same target inherited from a role/all/null match.
		resolved[withDomain(token, domainName)] = sections
	}

	return resolved
}

func hasTarget(vars map[string]model.Variables, id string) bool {
	_, ok := vars[id]
	return ok
}

func rolesOf(vars map[string]model.Variables) map[string]bool {
	roles := map[string]bool{}
	for _, v := range vars {
		for _, r := range v.Roles() {
			roles[r] = true
		}
	}
	return roles
}

func withDomain(id, domainName string) string {
	if domainName == "" {
		return id
	}
	return id + "." + domainName
}

func addSections(into map[string]SectionSet, id string, sections SectionSet) {
	existing, ok := into[id]
	if !ok {
		existing = SectionSet{}
		into[id] = existing
	}
	existing.Union(sections)
}
