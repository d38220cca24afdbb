package loader

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/gofhir/schemacheck/pkg/constraint"
	"github.com/gofhir/schemacheck/pkg/primitive"
	"github.com/gofhir/schemacheck/pkg/schema"
)

// AllTargets is the targets entry that allows any resource kind.
const AllTargets = "all"

// DeclarationFile is the YAML layout of a declaration file:
//
//	resources: [Spaceship]
//	kinds:
//	  - name: Spaceship
//	    tier: resource
//	    fields:
//	      - {name: status, type: code, required: true, enum: [docked, flying]}
//	      - {name: crew, type: Reference, array: true, targets: [Patient]}
//	    constraints:
//	      - {key: shp-1, human: "A flying ship has crew", expression: "status = 'docked' or crew.exists()"}
type DeclarationFile struct {
	Resources []string          `yaml:"resources"`
	Kinds     []KindDeclaration `yaml:"kinds"`
}

// KindDeclaration declares one kind.
type KindDeclaration struct {
	Name        string                  `yaml:"name"`
	Tier        string                  `yaml:"tier"`
	Fields      []FieldDeclaration      `yaml:"fields"`
	Constraints []ConstraintDeclaration `yaml:"constraints"`
}

// FieldDeclaration declares one attribute.
type FieldDeclaration struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Required bool     `yaml:"required"`
	Array    bool     `yaml:"array"`
	Enum     []string `yaml:"enum"`
	Targets  []string `yaml:"targets"`
}

// ConstraintDeclaration declares a FHIRPath invariant on the kind.
type ConstraintDeclaration struct {
	Key        string `yaml:"key"`
	Human      string `yaml:"human"`
	Expression string `yaml:"expression"`
}

var tierNames = map[string]schema.Tier{
	"":         schema.TierElement,
	"none":     schema.TierNone,
	"element":  schema.TierElement,
	"backbone": schema.TierBackbone,
	"resource": schema.TierResource,
}

// LoadDeclarations decodes a YAML declaration file. Every primitive field gets
// its "_field" sibling, as compiled-in kinds do.
func LoadDeclarations(r io.Reader) (*Definitions, error) {
	var file DeclarationFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return newDefinitions(), nil
		}
		return nil, fmt.Errorf("decode declarations: %w", err)
	}

	defs := newDefinitions()
	defs.Resources = append(defs.Resources, file.Resources...)

	for _, kd := range file.Kinds {
		if kd.Name == "" {
			return nil, fmt.Errorf("kind declaration without a name")
		}
		tier, ok := tierNames[kd.Tier]
		if !ok {
			return nil, fmt.Errorf("kind %s: unknown tier %q", kd.Name, kd.Tier)
		}

		fields := make([]schema.Attribute, 0, len(kd.Fields))
		for _, fd := range kd.Fields {
			a, err := fd.attribute()
			if err != nil {
				return nil, fmt.Errorf("kind %s: %w", kd.Name, err)
			}
			fields = append(fields, a)
		}
		defs.Schemas = append(defs.Schemas,
			schema.New(kd.Name, tier, schema.WithSiblings(primitive.IsPrimitive, fields...)...))

		for _, cd := range kd.Constraints {
			hook, err := constraint.FHIRPath(cd.Key, cd.Human, cd.Expression)
			if err != nil {
				return nil, fmt.Errorf("kind %s: %w", kd.Name, err)
			}
			defs.Hooks[kd.Name] = append(defs.Hooks[kd.Name], hook)
		}
	}
	return defs, nil
}

func (fd FieldDeclaration) attribute() (schema.Attribute, error) {
	if fd.Name == "" || fd.Type == "" {
		return schema.Attribute{}, fmt.Errorf("field %q needs a name and a type", fd.Name)
	}
	a := schema.Field(fd.Name, fd.Type)
	if fd.Required {
		a = a.Required()
	}
	if fd.Array {
		a = a.Array()
	}
	if len(fd.Enum) > 0 {
		a = a.Enum(fd.Enum...)
	}
	if len(fd.Targets) > 0 {
		if fd.Type != schema.TagReference {
			return schema.Attribute{}, fmt.Errorf("field %s: targets only apply to Reference fields", fd.Name)
		}
		if len(fd.Targets) == 1 && fd.Targets[0] == AllTargets {
			a = a.Targets(schema.AnyResource())
		} else {
			a = a.Targets(schema.Kinds(fd.Targets...))
		}
	}
	return a, nil
}
