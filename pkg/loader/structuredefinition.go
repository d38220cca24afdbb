package loader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/schemacheck/pkg/constraint"
	"github.com/gofhir/schemacheck/pkg/logger"
	"github.com/gofhir/schemacheck/pkg/primitive"
	"github.com/gofhir/schemacheck/pkg/schema"
)

// Fields every tier supplies itself; snapshot copies of them are skipped.
var tierOwned = map[schema.Tier]map[string]bool{
	schema.TierElement:  {"id": true, "extension": true},
	schema.TierBackbone: {"id": true, "extension": true, "modifierExtension": true},
	schema.TierResource: {
		"id": true, "meta": true, "implicitRules": true, "language": true, "text": true,
		"contained": true, "extension": true, "modifierExtension": true,
	},
}

// Constraints that are enforced elsewhere or hold for every element.
var skippedConstraints = map[string]bool{"ele-1": true}

// FromStructureDefinition flattens the snapshot of sd into schemas.
//
// The root becomes a kind named after sd.Type, and every BackboneElement
// becomes a kind named by its path (e.g. "Patient.contact"). Cardinality maps
// to the required and array flags, Reference target profiles to targets, and
// required bindings to enum sets when the bound ValueSet is supplied.
// Error-severity invariants on the root or a backbone element become FHIRPath
// hooks; ones that do not compile are logged and skipped.
func FromStructureDefinition(sd *r4.StructureDefinition, valueSets ...*r4.ValueSet) (*Definitions, error) {
	if sd == nil {
		return nil, fmt.Errorf("nil StructureDefinition")
	}
	if sd.Snapshot == nil || len(sd.Snapshot.Element) == 0 {
		return nil, fmt.Errorf("StructureDefinition %s has no snapshot", deref(sd.Url))
	}

	root := deref(sd.Type)
	if root == "" {
		root = deref(sd.Snapshot.Element[0].Path)
	}

	rootTier := schema.TierElement
	if sd.Kind != nil && string(*sd.Kind) == string(r4.StructureDefinitionKindResource) {
		rootTier = schema.TierResource
	}

	codes := enumSets(valueSets)

	// Group direct children under their parent path, keeping snapshot order.
	tiers := map[string]schema.Tier{root: rootTier}
	order := []string{root}
	children := make(map[string][]schema.Attribute)
	defs := newDefinitions()

	for i := range sd.Snapshot.Element {
		ed := &sd.Snapshot.Element[i]
		path := deref(ed.Path)
		if path == "" || ed.SliceName != nil {
			continue
		}
		if path == root {
			addConstraints(defs, path, ed.Constraint)
		}

		dot := strings.LastIndexByte(path, '.')
		if dot < 0 {
			continue
		}
		parent, name := path[:dot], path[dot+1:]
		parentTier, known := tiers[parent]
		if !known || tierOwned[parentTier][name] {
			continue
		}
		if deref(ed.Max) == "0" {
			continue
		}

		if isBackbone(ed) {
			tiers[path] = schema.TierBackbone
			order = append(order, path)
			addConstraints(defs, path, ed.Constraint)
		}

		attrs, err := attributes(ed, path, name, codes)
		if err != nil {
			return nil, err
		}
		children[parent] = append(children[parent], attrs...)
	}

	for _, kind := range order {
		fields := schema.WithSiblings(primitive.IsPrimitive, children[kind]...)
		defs.Schemas = append(defs.Schemas, schema.New(kind, tiers[kind], fields...))
	}
	if rootTier == schema.TierResource {
		defs.Resources = append(defs.Resources, root)
	}

	logger.Debug("Imported %s: %d kinds, invariants on %v", root, len(defs.Schemas), sortedKeys(defs.Hooks))
	return defs, nil
}

func isBackbone(ed *r4.ElementDefinition) bool {
	if len(ed.Type) != 1 {
		return false
	}
	code := deref(ed.Type[0].Code)
	return code == "BackboneElement" || code == "Element"
}

// attributes builds the attribute(s) for one snapshot element. A choice
// element "value[x]" yields one attribute per allowed type.
func attributes(ed *r4.ElementDefinition, path, name string, codes map[string][]string) ([]schema.Attribute, error) {
	required := ed.Min != nil && *ed.Min > 0
	array := deref(ed.Max) != "1"

	finish := func(a schema.Attribute) schema.Attribute {
		if required {
			a = a.Required()
		}
		if array {
			a = a.Array()
		}
		return a
	}

	if ref := deref(ed.ContentReference); ref != "" {
		return []schema.Attribute{finish(schema.Field(name, strings.TrimPrefix(ref, "#")))}, nil
	}
	if len(ed.Type) == 0 {
		return nil, fmt.Errorf("element %s declares no type", path)
	}

	if isBackbone(ed) {
		return []schema.Attribute{finish(schema.Field(name, path))}, nil
	}

	if strings.HasSuffix(name, "[x]") {
		base := strings.TrimSuffix(name, "[x]")
		attrs := make([]schema.Attribute, 0, len(ed.Type))
		for i := range ed.Type {
			t := &ed.Type[i]
			code := typeCode(t)
			a := schema.Field(base+upperFirst(code), code)
			if code == schema.TagReference {
				a = a.Targets(targets(t.TargetProfile))
			}
			// A choice is satisfied by any one variant, so none is individually required.
			if array {
				a = a.Array()
			}
			attrs = append(attrs, a)
		}
		return attrs, nil
	}

	t := &ed.Type[0]
	code := typeCode(t)
	a := schema.Field(name, code)
	if code == schema.TagReference {
		a = a.Targets(targets(t.TargetProfile))
	}
	if ed.Binding != nil && ed.Binding.Strength != nil && string(*ed.Binding.Strength) == "required" && primitive.IsPrimitive(code) {
		if values, ok := codes[canonicalURL(deref(ed.Binding.ValueSet))]; ok {
			a = a.Enum(values...)
		}
	}
	return []schema.Attribute{finish(a)}, nil
}

// typeCode maps FHIRPath system types, used by id and value elements, to
// their FHIR primitive.
func typeCode(t *r4.ElementDefinitionType) string {
	code := deref(t.Code)
	if !strings.HasPrefix(code, "http://hl7.org/fhirpath/System.") {
		return code
	}
	switch strings.TrimPrefix(code, "http://hl7.org/fhirpath/System.") {
	case "Boolean":
		return primitive.TypeBoolean
	case "Integer":
		return primitive.TypeInteger
	case "Decimal":
		return primitive.TypeDecimal
	case "Date":
		return primitive.TypeDate
	case "DateTime":
		return primitive.TypeDateTime
	case "Time":
		return primitive.TypeTime
	default:
		return primitive.TypeString
	}
}

// targets turns Reference target profiles into kind names. The base Resource
// profile, or no profile at all, allows any resource.
func targets(profiles []string) schema.Targets {
	if len(profiles) == 0 {
		return schema.AnyResource()
	}
	kinds := make([]string, 0, len(profiles))
	for _, p := range profiles {
		kind := p[strings.LastIndexByte(p, '/')+1:]
		if kind == "Resource" || kind == "DomainResource" {
			return schema.AnyResource()
		}
		kinds = append(kinds, kind)
	}
	return schema.Kinds(kinds...)
}

func addConstraints(defs *Definitions, kind string, constraints []r4.ElementDefinitionConstraint) {
	for i := range constraints {
		c := &constraints[i]
		key, expr := deref(c.Key), deref(c.Expression)
		if expr == "" || skippedConstraints[key] {
			continue
		}
		if c.Severity != nil && string(*c.Severity) != "error" {
			continue
		}
		hook, err := constraint.FHIRPath(key, deref(c.Human), expr)
		if err != nil {
			logger.Warn("Skipping constraint %s on %s: %v", key, kind, err)
			continue
		}
		defs.Hooks[kind] = append(defs.Hooks[kind], hook)
	}
}

// enumSets collects the codes of each ValueSet, keyed by canonical URL.
// The expansion is used when present, otherwise the enumerated compose concepts.
func enumSets(valueSets []*r4.ValueSet) map[string][]string {
	sets := make(map[string][]string, len(valueSets))
	for _, vs := range valueSets {
		if vs == nil || vs.Url == nil {
			continue
		}
		var codes []string
		if vs.Expansion != nil {
			codes = expansionCodes(vs.Expansion.Contains, codes)
		} else if vs.Compose != nil {
			for _, inc := range vs.Compose.Include {
				for _, c := range inc.Concept {
					if c.Code != nil {
						codes = append(codes, *c.Code)
					}
				}
			}
		}
		if len(codes) > 0 {
			sets[canonicalURL(*vs.Url)] = codes
		}
	}
	return sets
}

func expansionCodes(contains []r4.ValueSetExpansionContains, codes []string) []string {
	for i := range contains {
		if contains[i].Code != nil {
			codes = append(codes, *contains[i].Code)
		}
		codes = expansionCodes(contains[i].Contains, codes)
	}
	return codes
}

// canonicalURL drops a "|version" suffix.
func canonicalURL(url string) string {
	if i := strings.IndexByte(url, '|'); i >= 0 {
		return url[:i]
	}
	return url
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// sortedKeys is used for stable log output.
func sortedKeys(m map[string][]constraint.Hook) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
