package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doubleverify/ananke/internal/model"
	"github.com/doubleverify/ananke/internal/resolver"
)

func fixtureVars() map[string]model.Variables {
	return map[string]model.Variables{
		"router1": {"roles": []any{"edge"}},
		"router2": {"roles": []any{"edge", "core"}},
		"router3": {"roles": []any{"core"}},
		"svc1":    {"service-id": "packetfabric"},
	}
}

func TestResolve_DirectTarget(t *testing.T) {
	tokens := map[string]resolver.SectionSet{
		"router1": resolver.NewSectionSet([]string{"interfaces.yaml.j2"}),
	}
	got := resolver.Resolve(tokens, fixtureVars(), "")
	assert.Equal(t, map[string]resolver.SectionSet{
		"router1": resolver.NewSectionSet([]string{"interfaces.yaml.j2"}),
	}, got)
}

func TestResolve_RoleExpandsToEveryMember(t *testing.T) {
	tokens := map[string]resolver.SectionSet{
		"core": resolver.NewSectionSet([]string{"bgp.yaml.j2"}),
	}
	got := resolver.Resolve(tokens, fixtureVars(), "")
	assert.ElementsMatch(t, []string{"router2", "router3"}, keys(got))
}

func TestResolve_NullTokenExpandsToEveryTarget(t *testing.T) {
	// The null token is not filtered to devices: it means "everything
	// known", services included.
	tokens := map[string]resolver.SectionSet{
		"": resolver.NewSectionSet(nil),
	}
	got := resolver.Resolve(tokens, fixtureVars(), "")
	assert.ElementsMatch(t, []string{"router1", "router2", "router3", "svc1"}, keys(got))
}

func TestResolve_AllTokenExcludesServices(t *testing.T) {
	tokens := map[string]resolver.SectionSet{
		"all": resolver.NewSectionSet([]string{"interfaces.yaml.j2"}),
	}
	got := resolver.Resolve(tokens, fixtureVars(), "")
	assert.ElementsMatch(t, []string{"router1", "router2", "router3"}, keys(got))
	assert.NotContains(t, got, "svc1")
}

func TestResolve_DirectTargetOverridesRoleExpansion(t *testing.T) {
	// router2 is reachable both via the "core" role and directly; the
	// direct entry must win outright, not merge with the role's sections.
	tokens := map[string]resolver.SectionSet{
		"core":    resolver.NewSectionSet([]string{"bgp.yaml.j2"}),
		"router2": resolver.NewSectionSet([]string{"interfaces.yaml.j2"}),
	}
	got := resolver.Resolve(tokens, fixtureVars(), "")
	assert.Equal(t, resolver.NewSectionSet([]string{"interfaces.yaml.j2"}), got["router2"])
	assert.Equal(t, resolver.NewSectionSet([]string{"bgp.yaml.j2"}), got["router3"])
}

func TestResolve_DomainSuffixApplied(t *testing.T) {
	tokens := map[string]resolver.SectionSet{"router1": resolver.NewSectionSet(nil)}
	got := resolver.Resolve(tokens, fixtureVars(), "example.com")
	assert.Contains(t, got, "router1.example.com")
}

func TestResolve_UnknownTokenSkippedNotFailed(t *testing.T) {
	tokens := map[string]resolver.SectionSet{"no-such-host": resolver.NewSectionSet(nil)}
	got := resolver.Resolve(tokens, fixtureVars(), "")
	assert.Empty(t, got)
}

func keys(m map[string]resolver.SectionSet) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
