// Package structural walks a record against its schema and stops at the first
// failure.
//
// For each record it checks, in order: unknown fields (all reported together),
// required fields, then every present field in schema order (reference syntax,
// enum membership, array cardinality, and finally recursion into composites or
// a primitive format check). Constraint hooks, when enabled, run for a record
// once its whole subtree is structurally valid.
package structural

import (
	"fmt"

	"github.com/gofhir/schemacheck/pkg/fault"
	"github.com/gofhir/schemacheck/pkg/reference"
	"github.com/gofhir/schemacheck/pkg/registry"
	"github.com/gofhir/schemacheck/pkg/schema"
)

// DefaultMaxDepth bounds composite nesting unless overridden.
const DefaultMaxDepth = 64

// Validator performs structural validation of records.
// It holds no per-call state and is safe for concurrent use.
type Validator struct {
	registry    *registry.Registry
	maxDepth    int
	constraints bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxDepth limits composite nesting depth. Zero disables the limit.
func WithMaxDepth(depth int) Option {
	return func(v *Validator) {
		v.maxDepth = depth
	}
}

// WithConstraints makes the traversal run each kind's constraint hooks.
func WithConstraints(enabled bool) Option {
	return func(v *Validator) {
		v.constraints = enabled
	}
}

// New creates a structural Validator over a frozen registry.
func New(reg *registry.Registry, opts ...Option) *Validator {
	v := &Validator{
		registry: reg,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateStructure validates data, a record or an array of records, against s.
// Array elements are reported as path[i].
func (v *Validator) ValidateStructure(data any, s *schema.Schema, path string) error {
	return v.validate(data, s, path, 0)
}

// ValidateKind looks up the schema of kind and validates data against it.
func (v *Validator) ValidateKind(data any, kind, path string) error {
	s, err := v.registry.SchemaFor(kind)
	if err != nil {
		return err
	}
	if path == "" {
		path = kind
	}
	return v.validate(data, s, path, 0)
}

func (v *Validator) validate(data any, s *schema.Schema, path string, depth int) error {
	if v.maxDepth > 0 && depth > v.maxDepth {
		return fault.Structure(path, fmt.Sprintf("Maximum nesting depth %d exceeded", v.maxDepth))
	}

	switch d := data.(type) {
	case nil:
		return nil
	case []any:
		for i, item := range d {
			if err := v.validateRecord(item, s, index(path, i), depth); err != nil {
				return err
			}
		}
		return nil
	case []map[string]any:
		for i, item := range d {
			if err := v.validateRecord(item, s, index(path, i), depth); err != nil {
				return err
			}
		}
		return nil
	default:
		return v.validateRecord(d, s, path, depth)
	}
}

func (v *Validator) validateRecord(item any, s *schema.Schema, path string, depth int) error {
	if item == nil {
		return nil
	}
	raw, ok := item.(map[string]any)
	if !ok {
		return fault.Structure(path, fmt.Sprintf("Expected an object of type %s but found %s", s.Kind(), jsonTypeName(item)))
	}

	rec := normalize(raw)
	if len(rec) == 0 {
		return nil
	}

	var unknown []string
	for key := range rec {
		if _, ok := s.Lookup(key); !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		return fault.InvalidFields(path, unknown)
	}

	var err error
	s.Each(func(a schema.Attribute) bool {
		if a.IsRequired() && !schema.IsPresent(rec[a.Name()]) {
			err = fault.Required(path + "." + a.Name())
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	s.Each(func(a schema.Attribute) bool {
		value, ok := rec[a.Name()]
		if !ok {
			return true
		}
		err = v.validateField(value, a, path+"."+a.Name(), depth)
		return err == nil
	})
	if err != nil {
		return err
	}

	if v.constraints {
		for _, hook := range v.registry.Hooks(s.Kind()) {
			if err := hook(rec, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Validator) validateField(value any, a schema.Attribute, path string, depth int) error {
	if a.TypeTag() == schema.TagReference {
		if err := v.checkCardinality(value, a, path); err != nil {
			return err
		}
		return v.validateReferences(value, a, path, depth)
	}

	if err := v.checkCardinality(value, a, path); err != nil {
		return err
	}

	if a.HasEnum() && !a.IsArray() {
		if err := checkEnum(value, a, path); err != nil {
			return err
		}
	}

	h, err := v.registry.Handler(a.TypeTag())
	if err != nil {
		return &fault.ConfigurationError{Tag: a.TypeTag(), Path: path}
	}

	switch h.Kind {
	case registry.HandlerPrimitive:
		return each(value, path, func(item any, p string) error {
			if item == nil {
				return nil
			}
			return h.Primitive(item, p)
		})
	case registry.HandlerComposite:
		return v.validate(value, h.Schema, path, depth+1)
	case registry.HandlerResource:
		return each(value, path, func(item any, p string) error {
			return v.validateResource(item, p, depth+1)
		})
	default:
		return v.validateReferences(value, a, path, depth)
	}
}

func (v *Validator) checkCardinality(value any, a schema.Attribute, path string) error {
	if a.IsArray() != isArray(value) {
		if a.IsArray() {
			return fault.ArrayCardinality(path)
		}
		return fault.ScalarCardinality(path)
	}
	return nil
}

// validateReferences accepts a reference string or a Reference object, scalar
// or array, and checks each reference string against the field's targets.
func (v *Validator) validateReferences(value any, a schema.Attribute, path string, depth int) error {
	return each(value, path, func(item any, p string) error {
		switch ref := item.(type) {
		case nil:
			return nil
		case string:
			return reference.Check(ref, a.ReferenceTargets(), v.registry, p)
		case map[string]any:
			s, err := v.registry.SchemaFor(schema.TagReference)
			if err != nil {
				return &fault.ConfigurationError{Tag: schema.TagReference, Path: p}
			}
			if err := v.validate(ref, s, p, depth+1); err != nil {
				return err
			}
			if str, ok := ref["reference"].(string); ok && str != "" {
				return reference.Check(str, a.ReferenceTargets(), v.registry, p+".reference")
			}
			return nil
		default:
			return fault.MalformedReference(p, fmt.Sprintf("%v", item))
		}
	})
}

// validateResource resolves an inline resource by its resourceType.
func (v *Validator) validateResource(item any, path string, depth int) error {
	if item == nil {
		return nil
	}
	rec, ok := item.(map[string]any)
	if !ok {
		return fault.Structure(path, fmt.Sprintf("Expected a resource object but found %s", jsonTypeName(item)))
	}
	rt, _ := rec["resourceType"].(string)
	if rt == "" {
		return fault.Structure(path, "Missing 'resourceType' property")
	}
	if !v.registry.IsResourceKind(rt) {
		return fault.Structure(path, fmt.Sprintf("Unknown resourceType '%s'", rt))
	}
	s, err := v.registry.SchemaFor(rt)
	if err != nil {
		return fault.Structure(path, fmt.Sprintf("Unsupported resourceType '%s'", rt))
	}
	return v.validate(rec, s, path, depth)
}

func checkEnum(value any, a schema.Attribute, path string) error {
	s, ok := value.(string)
	if !ok {
		return fault.Enum(path, fmt.Sprintf("%v", value), a.EnumValues())
	}
	if !a.InEnum(s) {
		return fault.Enum(path, s, a.EnumValues())
	}
	return nil
}

// each applies fn to every element of an array value, or to a scalar value itself.
func each(value any, path string, fn func(item any, path string) error) error {
	switch arr := value.(type) {
	case []any:
		for i, item := range arr {
			if err := fn(item, index(path, i)); err != nil {
				return err
			}
		}
		return nil
	case []map[string]any:
		for i, item := range arr {
			if err := fn(item, index(path, i)); err != nil {
				return err
			}
		}
		return nil
	case []string:
		for i, item := range arr {
			if err := fn(item, index(path, i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fn(value, path)
	}
}

// normalize drops keys whose value is absent. It copies only when needed and
// never mutates the caller's record.
func normalize(rec map[string]any) map[string]any {
	for _, v := range rec {
		if v == nil {
			out := make(map[string]any, len(rec))
			for k, val := range rec {
				if val != nil {
					out[k] = val
				}
			}
			return out
		}
	}
	return rec
}

func isArray(v any) bool {
	switch v.(type) {
	case []any, []map[string]any, []string:
		return true
	default:
		return false
	}
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any, []map[string]any, []string:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "number"
	}
}
