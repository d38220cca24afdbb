// Package loader imports kind declarations from outside the binary: R4
// StructureDefinition and ValueSet resources, and YAML declaration files.
//
// Everything it produces is collected in a Definitions value that is applied
// to a registry.Builder before the registry is frozen.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/schemacheck/pkg/constraint"
	"github.com/gofhir/schemacheck/pkg/logger"
	"github.com/gofhir/schemacheck/pkg/registry"
	"github.com/gofhir/schemacheck/pkg/schema"
)

// Definitions is a set of imported kinds with their hooks.
type Definitions struct {
	Schemas   []*schema.Schema
	Hooks     map[string][]constraint.Hook
	Resources []string
}

func newDefinitions() *Definitions {
	return &Definitions{Hooks: make(map[string][]constraint.Hook)}
}

// Merge appends other into d.
func (d *Definitions) Merge(other *Definitions) {
	if other == nil {
		return
	}
	d.Schemas = append(d.Schemas, other.Schemas...)
	d.Resources = append(d.Resources, other.Resources...)
	for kind, hooks := range other.Hooks {
		d.Hooks[kind] = append(d.Hooks[kind], hooks...)
	}
}

// Kinds returns the imported kind names in sorted order.
func (d *Definitions) Kinds() []string {
	kinds := make([]string, 0, len(d.Schemas))
	for _, s := range d.Schemas {
		kinds = append(kinds, s.Kind())
	}
	sort.Strings(kinds)
	return kinds
}

// Apply registers every schema, hook and resource kind with b.
func (d *Definitions) Apply(b *registry.Builder) *registry.Builder {
	b.AddSchema(d.Schemas...)
	b.AddResourceKinds(d.Resources...)
	for kind, hooks := range d.Hooks {
		b.AddHook(kind, hooks...)
	}
	logger.Debug("Applied %d imported kinds", len(d.Schemas))
	return b
}

// ReadStructureDefinition reads an R4 StructureDefinition from a JSON file.
func ReadStructureDefinition(path string) (*r4.StructureDefinition, error) {
	var sd r4.StructureDefinition
	if err := readJSON(path, &sd); err != nil {
		return nil, fmt.Errorf("read StructureDefinition %s: %w", path, err)
	}
	return &sd, nil
}

// ReadValueSet reads an R4 ValueSet from a JSON file.
func ReadValueSet(path string) (*r4.ValueSet, error) {
	var vs r4.ValueSet
	if err := readJSON(path, &vs); err != nil {
		return nil, fmt.Errorf("read ValueSet %s: %w", path, err)
	}
	return &vs, nil
}

// ReadDeclarations reads a YAML declaration file.
func ReadDeclarations(path string) (*Definitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	defs, err := LoadDeclarations(f)
	if err != nil {
		return nil, fmt.Errorf("read declarations %s: %w", path, err)
	}
	return defs, nil
}

// ReadAll imports every listed file. ValueSets are read first so that any
// StructureDefinition can bind to them.
func ReadAll(structureDefinitions, valueSets, declarations []string) (*Definitions, error) {
	sets := make([]*r4.ValueSet, 0, len(valueSets))
	for _, path := range valueSets {
		vs, err := ReadValueSet(path)
		if err != nil {
			return nil, err
		}
		sets = append(sets, vs)
	}

	defs := newDefinitions()
	for _, path := range structureDefinitions {
		sd, err := ReadStructureDefinition(path)
		if err != nil {
			return nil, err
		}
		imported, err := FromStructureDefinition(sd, sets...)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", path, err)
		}
		defs.Merge(imported)
	}
	for _, path := range declarations {
		declared, err := ReadDeclarations(path)
		if err != nil {
			return nil, err
		}
		defs.Merge(declared)
	}

	if len(defs.Schemas) > 0 {
		logger.Info("Imported %d kinds from %d files", len(defs.Schemas),
			len(structureDefinitions)+len(declarations))
	}
	return defs, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
