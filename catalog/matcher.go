package catalog

import "strings"

// Match reports whether an event type name matches a subscription pattern.
//
// Supported patterns:
//
//	"solicitacao.created"  → exact match
//	"solicitacao.*"        → matches the whole namespace, segment-wise
//	"*"                    → matches everything
//
// Matching is per segment: "solicitacao.*" matches "solicitacao.created"
// but not "solicitacaoextra.created".
func Match(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}

	if pattern == eventType {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	eventParts := strings.Split(eventType, ".")

	if len(patternParts) != len(eventParts) {
		return false
	}

	for i, pp := range patternParts {
		if pp == "*" {
			continue
		}
		if pp != eventParts[i] {
			return false
		}
	}

	return true
}

// ValidPattern reports whether p is a well-formed subscription pattern:
// "*", an exact type name, or a namespace wildcard like "domain.*".
func ValidPattern(p string) bool {
	if p == "" {
		return false
	}
	if p == "*" {
		return true
	}
	for _, seg := range strings.Split(p, ".") {
		if seg == "" {
			return false
		}
		if seg != "*" && strings.Contains(seg, "*") {
			return false
		}
	}
	return true
}
