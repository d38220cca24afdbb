// Package registry holds the frozen kind catalog and the type-tag dispatch table.
//
// A Registry is assembled once with a Builder and is read-only afterwards, so
// any number of validations may share it without locking.
package registry

import (
	"sort"

	"github.com/gofhir/schemacheck/pkg/constraint"
	"github.com/gofhir/schemacheck/pkg/fault"
	"github.com/gofhir/schemacheck/pkg/logger"
	"github.com/gofhir/schemacheck/pkg/primitive"
	"github.com/gofhir/schemacheck/pkg/schema"
)

// HandlerKind says how a type tag is validated.
type HandlerKind int

// Handler kinds.
const (
	// HandlerPrimitive checks a scalar with a format validator.
	HandlerPrimitive HandlerKind = iota
	// HandlerComposite recurses into the record with the tag's schema.
	HandlerComposite
	// HandlerReference runs the reference format validator.
	HandlerReference
	// HandlerResource resolves the schema from the record's resourceType.
	HandlerResource
)

// Handler is one entry of the dispatch table.
type Handler struct {
	Kind HandlerKind
	// Primitive is set for HandlerPrimitive.
	Primitive primitive.Func
	// Schema is set for HandlerComposite, and for HandlerReference when the
	// Reference object kind is registered.
	Schema *schema.Schema
}

// Registry is the frozen catalog of schemas, primitives, hooks and resource kinds.
type Registry struct {
	schemas    map[string]*schema.Schema
	primitives map[string]primitive.Func
	hooks      map[string][]constraint.Hook
	resources  map[string]struct{}
	resList    []string
}

// SchemaFor returns the schema registered for kind.
func (r *Registry) SchemaFor(kind string) (*schema.Schema, error) {
	s, ok := r.schemas[kind]
	if !ok {
		return nil, &fault.ConfigurationError{Tag: kind}
	}
	return s, nil
}

// Handler resolves a type tag to its validator.
func (r *Registry) Handler(tag string) (Handler, error) {
	switch tag {
	case schema.TagReference:
		return Handler{Kind: HandlerReference, Schema: r.schemas[schema.TagReference]}, nil
	case schema.TagResource:
		return Handler{Kind: HandlerResource}, nil
	}
	if fn, ok := r.primitives[tag]; ok {
		return Handler{Kind: HandlerPrimitive, Primitive: fn}, nil
	}
	if s, ok := r.schemas[tag]; ok {
		return Handler{Kind: HandlerComposite, Schema: s}, nil
	}
	return Handler{}, &fault.ConfigurationError{Tag: tag}
}

// Hooks returns the constraint hooks registered for kind.
func (r *Registry) Hooks(kind string) []constraint.Hook {
	return r.hooks[kind]
}

// IsResourceKind reports whether kind is in the resource catalog.
func (r *Registry) IsResourceKind(kind string) bool {
	_, ok := r.resources[kind]
	return ok
}

// ResourceKinds returns the resource catalog in sorted order.
func (r *Registry) ResourceKinds() []string {
	return append([]string(nil), r.resList...)
}

// Kinds returns every registered schema kind in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Count returns the number of registered schemas.
func (r *Registry) Count() int {
	return len(r.schemas)
}

// Builder assembles a Registry. It is not safe for concurrent use.
type Builder struct {
	schemas    map[string]*schema.Schema
	primitives map[string]primitive.Func
	hooks      map[string][]constraint.Hook
	resources  map[string]struct{}
}

// NewBuilder returns a builder preloaded with every primitive validator.
func NewBuilder() *Builder {
	b := &Builder{
		schemas:    make(map[string]*schema.Schema),
		primitives: make(map[string]primitive.Func),
		hooks:      make(map[string][]constraint.Hook),
		resources:  make(map[string]struct{}),
	}
	for _, tag := range primitive.Tags() {
		fn, _ := primitive.Lookup(tag)
		b.primitives[tag] = fn
	}
	return b
}

// AddSchema registers s, replacing any schema of the same kind.
// Resource-tier schemas are added to the resource catalog.
func (b *Builder) AddSchema(schemas ...*schema.Schema) *Builder {
	for _, s := range schemas {
		b.schemas[s.Kind()] = s
		if s.Tier() == schema.TierResource {
			b.resources[s.Kind()] = struct{}{}
		}
	}
	return b
}

// AddHook appends constraint hooks for kind.
func (b *Builder) AddHook(kind string, hooks ...constraint.Hook) *Builder {
	b.hooks[kind] = append(b.hooks[kind], hooks...)
	return b
}

// AddPrimitive registers or replaces the format validator for a primitive tag.
func (b *Builder) AddPrimitive(tag string, fn primitive.Func) *Builder {
	b.primitives[tag] = fn
	return b
}

// AddResourceKinds extends the catalog the "any resource" reference target expands to.
func (b *Builder) AddResourceKinds(kinds ...string) *Builder {
	for _, k := range kinds {
		b.resources[k] = struct{}{}
	}
	return b
}

// Build checks that every declared type tag and every hooked kind resolves,
// then freezes the registry. It returns a *fault.ConfigurationError otherwise.
func (b *Builder) Build() (*Registry, error) {
	r := &Registry{
		schemas:    make(map[string]*schema.Schema, len(b.schemas)),
		primitives: make(map[string]primitive.Func, len(b.primitives)),
		hooks:      make(map[string][]constraint.Hook, len(b.hooks)),
		resources:  make(map[string]struct{}, len(b.resources)),
	}
	for k, s := range b.schemas {
		r.schemas[k] = s
	}
	for k, fn := range b.primitives {
		r.primitives[k] = fn
	}
	for k, hs := range b.hooks {
		r.hooks[k] = append([]constraint.Hook(nil), hs...)
	}
	for k := range b.resources {
		r.resources[k] = struct{}{}
		r.resList = append(r.resList, k)
	}
	sort.Strings(r.resList)

	for _, kind := range r.Kinds() {
		var err error
		r.schemas[kind].Each(func(a schema.Attribute) bool {
			if _, herr := r.Handler(a.TypeTag()); herr != nil {
				err = &fault.ConfigurationError{Tag: a.TypeTag(), Path: kind + "." + a.Name()}
				return false
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	for kind := range r.hooks {
		if _, ok := r.schemas[kind]; !ok {
			return nil, &fault.ConfigurationError{Tag: kind}
		}
	}

	logger.Debug("Registry frozen: %d kinds, %d primitives, %d resource kinds",
		len(r.schemas), len(r.primitives), len(r.resList))
	return r, nil
}
