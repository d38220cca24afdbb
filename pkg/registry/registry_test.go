package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofhir/schemacheck/pkg/constraint"
	"github.com/gofhir/schemacheck/pkg/fault"
	"github.com/gofhir/schemacheck/pkg/schema"
)

func testBuilder() *Builder {
	return NewBuilder().
		AddSchema(
			schema.New(schema.TagElement, schema.TierElement),
			schema.New(schema.TagExtension, schema.TierElement, schema.Field("url", "uri").Required()),
			schema.New("Meta", schema.TierElement, schema.Field("versionId", "id")),
			schema.New("Narrative", schema.TierElement, schema.Field("div", "xhtml").Required()),
			schema.New("Period", schema.TierElement, schema.Field("start", "dateTime"), schema.Field("end", "dateTime")),
			schema.New(schema.TagReference, schema.TierElement, schema.Field("reference", "string")),
			schema.New("Patient", schema.TierResource, schema.Field("period", "Period")),
		).
		AddHook("Period", constraint.PeriodOrder)
}

func TestBuild(t *testing.T) {
	reg, err := testBuilder().Build()
	require.NoError(t, err)

	assert.Equal(t, 7, reg.Count())
	assert.True(t, reg.IsResourceKind("Patient"))
	assert.False(t, reg.IsResourceKind("Period"))
	assert.Equal(t, []string{"Patient"}, reg.ResourceKinds())
	assert.Len(t, reg.Hooks("Period"), 1)
	assert.Empty(t, reg.Hooks("Patient"))
	assert.IsNonDecreasing(t, reg.Kinds())
}

func TestHandler(t *testing.T) {
	reg, err := testBuilder().Build()
	require.NoError(t, err)

	tests := []struct {
		tag  string
		kind HandlerKind
	}{
		{"date", HandlerPrimitive},
		{"Period", HandlerComposite},
		{schema.TagReference, HandlerReference},
		{schema.TagResource, HandlerResource},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			h, err := reg.Handler(tt.tag)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, h.Kind)
		})
	}

	h, _ := reg.Handler("Period")
	assert.Equal(t, "Period", h.Schema.Kind())
	h, _ = reg.Handler("date")
	assert.NotNil(t, h.Primitive)

	_, err = reg.Handler("Spaceship")
	assert.True(t, fault.IsConfiguration(err))
}

func TestSchemaForUnknownKind(t *testing.T) {
	reg, err := testBuilder().Build()
	require.NoError(t, err)

	_, err = reg.SchemaFor("Spaceship")
	require.Error(t, err)
	assert.True(t, fault.IsConfiguration(err))

	s, err := reg.SchemaFor("Patient")
	require.NoError(t, err)
	assert.Equal(t, "Patient", s.Kind())
}

func TestBuildRejectsUnresolvedTags(t *testing.T) {
	_, err := testBuilder().
		AddSchema(schema.New("Ship", schema.TierNone, schema.Field("engine", "Engine"))).
		Build()
	require.Error(t, err)

	var ce *fault.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Engine", ce.Tag)
	assert.Equal(t, "Ship.engine", ce.Path)
}

func TestBuildRejectsHookWithoutSchema(t *testing.T) {
	_, err := testBuilder().AddHook("Quantity", constraint.QuantitySystem).Build()
	assert.True(t, fault.IsConfiguration(err))
}

func TestBuilderIsolation(t *testing.T) {
	b := testBuilder()
	reg, err := b.Build()
	require.NoError(t, err)

	b.AddResourceKinds("Observation")
	b.AddSchema(schema.New("Organization", schema.TierResource))

	assert.False(t, reg.IsResourceKind("Observation"))
	_, err = reg.SchemaFor("Organization")
	assert.Error(t, err)
}

func TestAddPrimitive(t *testing.T) {
	called := false
	reg, err := testBuilder().
		AddPrimitive("date", func(any, string) error { called = true; return nil }).
		Build()
	require.NoError(t, err)

	h, err := reg.Handler("date")
	require.NoError(t, err)
	require.NoError(t, h.Primitive("x", "p"))
	assert.True(t, called)
}
