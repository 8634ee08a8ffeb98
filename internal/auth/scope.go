package auth

import (
	"slices"

	"github.com/yndnr/routemesh-go/internal/server/httpserver"
)

// Scope selects the resources that need credentials. A resource needs
// them when it falls under a restricted prefix and under no permitted
// prefix. Both lists use the dispatcher's segment-boundary prefix rule.
type Scope struct {
	restrict []string
	permit   []string
}

// NewScope builds a scope. An empty restrict list restricts nothing.
func NewScope(restrict, permit []string) Scope {
	return Scope{restrict: normalize(restrict), permit: normalize(permit)}
}

func normalize(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, httpserver.StripTrailingSlash(p))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Requires reports whether resource needs credentials.
func (s Scope) Requires(resource string) bool {
	return matchesAny(resource, s.restrict) && !matchesAny(resource, s.permit)
}

// Restricted returns the restricted prefixes in sorted order.
func (s Scope) Restricted() []string { return slices.Clone(s.restrict) }

// Permitted returns the permitted prefixes in sorted order.
func (s Scope) Permitted() []string { return slices.Clone(s.permit) }

func matchesAny(resource string, prefixes []string) bool {
	for _, p := range prefixes {
		if httpserver.MatchesResource(resource, p) {
			return true
		}
	}
	return false
}
