// Package schema declares the attribute model records are validated against.
//
// A Schema is the flat, ordered field list of one kind. Inherited fields are
// resolved at construction by appending a fixed tier (element, backbone element
// or resource) after the kind-specific fields, so no inheritance is needed at
// validation time. Schemas and attributes are immutable once built.
package schema

import "sort"

// Special type tags understood by the dispatch table in addition to primitive
// and composite kind names.
const (
	// TagReference marks a cross-entity reference (string or Reference object).
	TagReference = "Reference"
	// TagResource marks an inline resource resolved through its resourceType.
	TagResource = "Resource"
	// TagElement is the kind of a primitive's "_field" extension sibling.
	TagElement = "Element"
	// TagExtension is the kind of extension and modifierExtension entries.
	TagExtension = "Extension"
)

// Targets is the set of kinds a reference may point to.
//
// The zero value skips the target check entirely. AnyResource allows every kind
// in the registry's resource catalog.
type Targets struct {
	any   bool
	kinds map[string]struct{}
	list  []string
}

// AnyResource allows any registered resource kind.
func AnyResource() Targets {
	return Targets{any: true}
}

// Kinds allows exactly the named kinds.
func Kinds(names ...string) Targets {
	t := Targets{kinds: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if _, dup := t.kinds[n]; dup {
			continue
		}
		t.kinds[n] = struct{}{}
		t.list = append(t.list, n)
	}
	sort.Strings(t.list)
	return t
}

// IsSet reports whether a target check applies.
func (t Targets) IsSet() bool {
	return t.any || t.kinds != nil
}

// IsAny reports whether the targets are the "any resource" sentinel.
func (t Targets) IsAny() bool {
	return t.any
}

// Has reports whether kind is in an explicit target set.
// It is always false for the AnyResource sentinel; resolve that against a catalog.
func (t Targets) Has(kind string) bool {
	_, ok := t.kinds[kind]
	return ok
}

// List returns the explicit target kinds in sorted order.
func (t Targets) List() []string {
	return append([]string(nil), t.list...)
}

// Attribute declares one field of a kind.
type Attribute struct {
	name     string
	typeTag  string
	required bool
	array    bool
	enum     map[string]struct{}
	enumList []string
	targets  Targets
}

// Field declares an optional scalar attribute. Use the modifier methods to
// refine it; each returns a new Attribute and leaves the receiver untouched.
func Field(name, typeTag string) Attribute {
	return Attribute{name: name, typeTag: typeTag}
}

// Required returns a copy of a flagged as mandatory.
func (a Attribute) Required() Attribute {
	a.required = true
	return a
}

// Array returns a copy of a flagged as array-valued.
func (a Attribute) Array() Attribute {
	a.array = true
	return a
}

// Enum returns a copy of a restricted to a closed set of codes.
func (a Attribute) Enum(values ...string) Attribute {
	a.enum = make(map[string]struct{}, len(values))
	a.enumList = nil
	for _, v := range values {
		if _, dup := a.enum[v]; dup {
			continue
		}
		a.enum[v] = struct{}{}
		a.enumList = append(a.enumList, v)
	}
	return a
}

// Targets returns a copy of a with the allowed reference targets set.
func (a Attribute) Targets(t Targets) Attribute {
	a.targets = t
	return a
}

// Name returns the field name.
func (a Attribute) Name() string { return a.name }

// TypeTag returns the primitive or composite kind the field holds.
func (a Attribute) TypeTag() string { return a.typeTag }

// IsRequired reports whether the field is mandatory.
func (a Attribute) IsRequired() bool { return a.required }

// IsArray reports whether the field holds an array.
func (a Attribute) IsArray() bool { return a.array }

// HasEnum reports whether the field is bound to a closed code set.
func (a Attribute) HasEnum() bool { return a.enum != nil }

// InEnum reports whether value is a member of the field's code set.
func (a Attribute) InEnum(value string) bool {
	_, ok := a.enum[value]
	return ok
}

// EnumValues returns the code set in declaration order.
func (a Attribute) EnumValues() []string {
	return append([]string(nil), a.enumList...)
}

// ReferenceTargets returns the allowed reference targets.
func (a Attribute) ReferenceTargets() Targets { return a.targets }

// Tier selects the inherited fields appended to a kind.
type Tier int

const (
	// TierNone appends nothing. Used for kinds that declare their own base fields.
	TierNone Tier = iota
	// TierElement appends id and extension.
	TierElement
	// TierBackbone appends id, extension and modifierExtension.
	TierBackbone
	// TierResource appends the resource base fields.
	TierResource
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierElement:
		return "element"
	case TierBackbone:
		return "backbone"
	case TierResource:
		return "resource"
	default:
		return "none"
	}
}

func tierFields(kind string, tier Tier) []Attribute {
	switch tier {
	case TierElement:
		return []Attribute{
			Field("id", "string"),
			Field("extension", TagExtension).Array(),
		}
	case TierBackbone:
		return []Attribute{
			Field("id", "string"),
			Field("extension", TagExtension).Array(),
			Field("modifierExtension", TagExtension).Array(),
		}
	case TierResource:
		return []Attribute{
			Field("id", "id"),
			Field("meta", "Meta"),
			Field("implicitRules", "uri"),
			Field("language", "code"),
			Field("text", "Narrative"),
			Field("contained", TagResource).Array(),
			Field("extension", TagExtension).Array(),
			Field("modifierExtension", TagExtension).Array(),
			Field("_implicitRules", TagElement),
			Field("_language", TagElement),
			Field("resourceType", "code").Enum(kind),
		}
	default:
		return nil
	}
}

// Schema is the ordered field list of one kind.
type Schema struct {
	kind   string
	tier   Tier
	attrs  []Attribute
	byName map[string]int
}

// New builds the schema of kind from its own fields followed by the fields of
// tier. A tier field whose name the kind already declares is skipped, so a kind
// may narrow an inherited field (e.g. make id required).
func New(kind string, tier Tier, fields ...Attribute) *Schema {
	s := &Schema{
		kind:   kind,
		tier:   tier,
		byName: make(map[string]int, len(fields)+11),
	}
	add := func(a Attribute) {
		if _, dup := s.byName[a.name]; dup {
			return
		}
		s.byName[a.name] = len(s.attrs)
		s.attrs = append(s.attrs, a)
	}
	for _, f := range fields {
		add(f)
	}
	for _, f := range tierFields(kind, tier) {
		add(f)
	}
	return s
}

// Kind returns the kind name.
func (s *Schema) Kind() string { return s.kind }

// Tier returns the tier the schema was built with.
func (s *Schema) Tier() Tier { return s.tier }

// Len returns the number of attributes.
func (s *Schema) Len() int { return len(s.attrs) }

// Lookup returns the attribute named name.
func (s *Schema) Lookup(name string) (Attribute, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Attribute{}, false
	}
	return s.attrs[i], true
}

// Each calls fn for every attribute in declaration order until fn returns false.
func (s *Schema) Each(fn func(Attribute) bool) {
	for _, a := range s.attrs {
		if !fn(a) {
			return
		}
	}
}

// Attributes returns a copy of the attribute list.
func (s *Schema) Attributes() []Attribute {
	return append([]Attribute(nil), s.attrs...)
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.attrs))
	for i, a := range s.attrs {
		names[i] = a.name
	}
	return names
}

// WithSiblings returns fields followed by an optional "_name" Element sibling
// for every primitive field, an array of Element when the field is an array.
// Sibling lengths are not tied to the primitive array they annotate.
func WithSiblings(isPrimitive func(tag string) bool, fields ...Attribute) []Attribute {
	out := append([]Attribute(nil), fields...)
	for _, f := range fields {
		if !isPrimitive(f.typeTag) {
			continue
		}
		sibling := Field("_"+f.name, TagElement)
		if f.array {
			sibling = sibling.Array()
		}
		out = append(out, sibling)
	}
	return out
}

// IsPresent reports whether a field value counts as present: defined and not
// an empty string, array or object.
func IsPresent(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case []map[string]any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
