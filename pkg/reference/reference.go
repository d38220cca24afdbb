// Package reference validates the syntax and target kind of FHIR references.
package reference

import (
	"regexp"
	"strings"

	"github.com/gofhir/schemacheck/pkg/fault"
	"github.com/gofhir/schemacheck/pkg/schema"
)

// localRefPattern is the shape of a local "Kind/id" reference.
var localRefPattern = regexp.MustCompile(`^[A-Za-z]+/[A-Za-z0-9_.\-]+$`)

// Prefixes that make a reference valid without any target check: internal
// fragments, URNs and absolute URLs.
var opaquePrefixes = []string{"#", "urn:", "http://", "https://"}

// Catalog lists the resource kinds the "any resource" sentinel expands to.
type Catalog interface {
	IsResourceKind(kind string) bool
	ResourceKinds() []string
}

// IsOpaque reports whether ref is a fragment, URN or absolute URL.
func IsOpaque(ref string) bool {
	for _, p := range opaquePrefixes {
		if strings.HasPrefix(ref, p) {
			return true
		}
	}
	return false
}

// Kind returns the kind token of a local reference, or "" when ref is not one.
func Kind(ref string) string {
	if !localRefPattern.MatchString(ref) {
		return ""
	}
	return ref[:strings.IndexByte(ref, '/')]
}

// Check validates ref found at path.
//
// Opaque references pass without a target check. Anything else must be a
// local Kind/id reference, and when targets is set its Kind must be allowed:
// either listed explicitly or, for schema.AnyResource, present in catalog.
func Check(ref string, targets schema.Targets, catalog Catalog, path string) error {
	if IsOpaque(ref) {
		return nil
	}

	kind := Kind(ref)
	if kind == "" {
		return fault.MalformedReference(path, ref)
	}

	if !targets.IsSet() {
		return nil
	}

	if targets.IsAny() {
		if catalog != nil && catalog.IsResourceKind(kind) {
			return nil
		}
		var allowed []string
		if catalog != nil {
			allowed = catalog.ResourceKinds()
		}
		return fault.DisallowedReference(path, kind, allowed)
	}

	if !targets.Has(kind) {
		return fault.DisallowedReference(path, kind, targets.List())
	}
	return nil
}
