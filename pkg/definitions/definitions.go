// Package definitions holds the compiled-in R4 kind tables: the supported
// datatypes, backbone elements and resources, their invariants, and the full
// R4 resource-name catalog used by "any resource" reference targets.
package definitions

import (
	"sync"

	"github.com/gofhir/schemacheck/pkg/constraint"
	"github.com/gofhir/schemacheck/pkg/registry"
	"github.com/gofhir/schemacheck/pkg/schema"
)

// Schemas returns freshly built schemas for every compiled-in kind.
func Schemas() []*schema.Schema {
	var out []*schema.Schema
	out = append(out, datatypes()...)
	out = append(out, patient()...)
	out = append(out, observation()...)
	out = append(out, organization()...)
	return out
}

// Resources lists the compiled-in resource kinds.
var Resources = []string{"Patient", "Observation", "Organization"}

// dom2 forbids nested contained resources on every resource kind.
var dom2 = constraint.MustFHIRPath("dom-2",
	"If the resource is contained in another resource, it SHALL NOT contain nested Resources",
	"contained.contained.empty()")

// NewBuilder returns a registry builder loaded with every compiled-in kind,
// hook and the R4 resource catalog. Callers may add to it before Build.
func NewBuilder() *registry.Builder {
	b := registry.NewBuilder()
	b.AddSchema(Schemas()...)
	b.AddResourceKinds(ResourceCatalog...)

	b.AddHook("Period", constraint.PeriodOrder)
	b.AddHook("Attachment", constraint.AttachmentContentType)
	b.AddHook("ContactPoint", constraint.ContactPointSystem)
	b.AddHook("Quantity", constraint.QuantitySystem)
	b.AddHook(schema.TagExtension, constraint.ExtensionValue)
	b.AddHook("Patient.contact", constraint.PatientContactDetails)
	b.AddHook("Observation", constraint.ObservationDataAbsent)
	for _, kind := range Resources {
		b.AddHook(kind, dom2)
	}
	return b
}

var (
	defaultOnce     sync.Once
	defaultRegistry *registry.Registry
	defaultErr      error
)

// Registry returns the shared frozen registry of compiled-in kinds.
func Registry() (*registry.Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = NewBuilder().Build()
	})
	return defaultRegistry, defaultErr
}

// MustRegistry is like Registry but panics if the compiled-in tables are inconsistent.
func MustRegistry() *registry.Registry {
	r, err := Registry()
	if err != nil {
		panic(err)
	}
	return r
}
