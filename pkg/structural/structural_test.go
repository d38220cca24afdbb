package structural

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofhir/schemacheck/pkg/definitions"
	"github.com/gofhir/schemacheck/pkg/fault"
	"github.com/gofhir/schemacheck/pkg/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := definitions.Registry()
	require.NoError(t, err)
	return reg
}

func validPatient() map[string]any {
	return map[string]any{
		"resourceType": "Patient",
		"id":           "p1",
		"active":       true,
		"name":         []any{map[string]any{"family": "Doe", "given": []any{"Jane"}}},
		"gender":       "female",
		"birthDate":    "1980-04-01",
	}
}

func requireKind(t *testing.T, err error, kind error) *fault.Error {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, kind), "got %v", err)
	fe, ok := fault.As(err)
	require.True(t, ok)
	return fe
}

func TestValidInstances(t *testing.T) {
	v := New(testRegistry(t), WithConstraints(true))

	tests := []struct {
		name string
		kind string
		data any
	}{
		{"patient", "Patient", validPatient()},
		{"empty record", "Patient", map[string]any{}},
		{"nil values only", "Patient", map[string]any{"id": nil}},
		{"observation", "Observation", map[string]any{
			"resourceType": "Observation",
			"status":       "final",
			"code":         map[string]any{"coding": []any{map[string]any{"system": "http://loinc.org", "code": "8867-4"}}},
			"subject":      map[string]any{"reference": "Patient/p1", "display": "Jane"},
			"valueQuantity": map[string]any{
				"value": 72.0, "unit": "beats/min", "system": "http://unitsofmeasure.org", "code": "/min",
			},
		}},
		{"link", "Patient.link", map[string]any{"other": "Patient/p2", "type": "seealso"}},
		{"primitive extension sibling", "Patient", map[string]any{
			"birthDate":  "1980-04-01",
			"_birthDate": map[string]any{"extension": []any{map[string]any{"url": "http://x", "valueDateTime": "1980-04-01T10:00:00Z"}}},
		}},
		{"sibling length independent", "HumanName", map[string]any{
			"given":  []any{"A", "B", "C"},
			"_given": []any{nil, map[string]any{"id": "g2"}},
		}},
		{"contained", "Patient", map[string]any{
			"contained":            []any{map[string]any{"resourceType": "Organization", "id": "o1", "name": "Acme"}},
			"managingOrganization": "#o1",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, v.ValidateKind(tt.data, tt.kind, ""))
		})
	}
}

func TestRequiredField(t *testing.T) {
	v := New(testRegistry(t))

	err := v.ValidateKind(map[string]any{"type": "seealso"}, "Patient.link", "")
	fe := requireKind(t, err, fault.ErrRequired)
	assert.Equal(t, "Patient.link.other", fe.Path)

	for _, empty := range []any{"", []any{}, map[string]any{}} {
		err = v.ValidateKind(map[string]any{"other": "Patient/1", "type": empty}, "Patient.link", "")
		fe = requireKind(t, err, fault.ErrRequired)
		assert.Equal(t, "Patient.link.type", fe.Path)
	}
}

func TestEveryRequiredFieldIsEnforced(t *testing.T) {
	reg := testRegistry(t)
	v := New(reg)

	minimal := map[string]map[string]any{
		"Observation": {
			"status": "final",
			"code":   map[string]any{"text": "x"},
		},
		"Patient.link":          {"other": "Patient/1", "type": "refer"},
		"Patient.communication": {"language": map[string]any{"text": "en"}, "preferred": true},
		"Narrative":             {"status": "generated", "div": "<div>x</div>"},
		"Extension":             {"url": "http://x", "valueString": "y"},
	}
	for kind, rec := range minimal {
		require.NoError(t, v.ValidateKind(rec, kind, ""), kind)

		s, err := reg.SchemaFor(kind)
		require.NoError(t, err)
		for _, a := range s.Attributes() {
			if !a.IsRequired() {
				continue
			}
			t.Run(kind+"."+a.Name(), func(t *testing.T) {
				without := make(map[string]any, len(rec))
				for k, val := range rec {
					if k != a.Name() {
						without[k] = val
					}
				}
				fe := requireKind(t, v.ValidateKind(without, kind, ""), fault.ErrRequired)
				assert.Equal(t, kind+"."+a.Name(), fe.Path)
			})
		}
	}
}

func TestUnknownFieldsAreBatched(t *testing.T) {
	v := New(testRegistry(t))

	rec := validPatient()
	rec["foo"] = 1
	rec["bar"] = "x"

	fe := requireKind(t, v.ValidateKind(rec, "Patient", ""), fault.ErrInvalidField)
	assert.Equal(t, []string{"bar", "foo"}, fe.Fields)
	assert.Equal(t, "Patient", fe.Path)
}

func TestUnknownFieldsBeforeRequired(t *testing.T) {
	v := New(testRegistry(t))
	fe := requireKind(t, v.ValidateKind(map[string]any{"typo": 1}, "Patient.link", ""), fault.ErrInvalidField)
	assert.Equal(t, []string{"typo"}, fe.Fields)
}

func TestEnum(t *testing.T) {
	v := New(testRegistry(t))

	rec := validPatient()
	rec["gender"] = "robot"
	fe := requireKind(t, v.ValidateKind(rec, "Patient", ""), fault.ErrEnum)
	assert.Equal(t, "Patient.gender", fe.Path)
	assert.Equal(t, []string{"male", "female", "other", "unknown"}, fe.Allowed)

	rec["gender"] = "other"
	assert.NoError(t, v.ValidateKind(rec, "Patient", ""))

	rec["resourceType"] = "Observation"
	requireKind(t, v.ValidateKind(rec, "Patient", ""), fault.ErrEnum)
}

func TestCardinality(t *testing.T) {
	v := New(testRegistry(t))

	rec := validPatient()
	rec["name"] = map[string]any{"family": "Doe"}
	fe := requireKind(t, v.ValidateKind(rec, "Patient", ""), fault.ErrArrayCardinality)
	assert.Equal(t, "Patient.name", fe.Path)

	rec = validPatient()
	rec["birthDate"] = []any{"1980-04-01"}
	fe = requireKind(t, v.ValidateKind(rec, "Patient", ""), fault.ErrArrayCardinality)
	assert.Contains(t, fe.Message, "must not be an array")
}

func TestEnumFieldGivenArray(t *testing.T) {
	v := New(testRegistry(t))

	rec := validPatient()
	rec["gender"] = []any{"male"}
	fe := requireKind(t, v.ValidateKind(rec, "Patient", ""), fault.ErrArrayCardinality)
	assert.Equal(t, "Patient.gender", fe.Path)
	assert.Contains(t, fe.Message, "must not be an array")
}

func TestEmptyRecordsAreVacuouslyValid(t *testing.T) {
	v := New(testRegistry(t))

	for name, data := range map[string]any{
		"empty object":      map[string]any{},
		"array of empty":    []any{map[string]any{}},
		"only absent value": map[string]any{"status": nil},
	} {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, v.ValidateKind(data, "Observation", ""))
		})
	}
}

func TestPrimitiveFormat(t *testing.T) {
	v := New(testRegistry(t))

	rec := validPatient()
	rec["name"] = []any{map[string]any{"given": []any{"Jane", 12.0}}}
	fe := requireKind(t, v.ValidateKind(rec, "Patient", ""), fault.ErrFormat)
	assert.Equal(t, "Patient.name[0].given[1]", fe.Path)

	rec = validPatient()
	rec["birthDate"] = "01/04/1980"
	fe = requireKind(t, v.ValidateKind(rec, "Patient", ""), fault.ErrFormat)
	assert.Equal(t, "Patient.birthDate", fe.Path)
}

func TestArrayIndexInPath(t *testing.T) {
	v := New(testRegistry(t))

	comms := make([]any, 5)
	for i := range comms {
		comms[i] = map[string]any{"language": map[string]any{"text": "en"}}
	}
	comms[3] = map[string]any{"preferred": true}

	rec := validPatient()
	rec["communication"] = comms
	fe := requireKind(t, v.ValidateKind(rec, "Patient", ""), fault.ErrRequired)
	assert.Equal(t, "Patient.communication[3].language", fe.Path)
	assert.Contains(t, fe.Message, "[3]")
}

func TestTopLevelArray(t *testing.T) {
	reg := testRegistry(t)
	v := New(reg)
	s, err := reg.SchemaFor("Patient.link")
	require.NoError(t, err)

	data := []any{
		map[string]any{"other": "Patient/1", "type": "refer"},
		map[string]any{"other": "Patient/2"},
	}
	fe := requireKind(t, v.ValidateStructure(data, s, "Patient.link"), fault.ErrRequired)
	assert.Equal(t, "Patient.link[1].type", fe.Path)
}

func TestReferences(t *testing.T) {
	v := New(testRegistry(t))

	tests := []struct {
		name  string
		value any
		err   error
		path  string
	}{
		{"allowed string", "Patient/123", nil, ""},
		{"disallowed string", "Observation/123", fault.ErrReference, "Patient.link.other"},
		{"urn", "urn:uuid:1234", nil, ""},
		{"malformed", "not a reference", fault.ErrReference, "Patient.link.other"},
		{"object allowed", map[string]any{"reference": "RelatedPerson/r1"}, nil, ""},
		{"object disallowed", map[string]any{"reference": "Device/d1"}, fault.ErrReference, "Patient.link.other.reference"},
		{"object display only", map[string]any{"display": "someone"}, nil, ""},
		{"object unknown field", map[string]any{"ref": "Patient/1"}, fault.ErrInvalidField, "Patient.link.other"},
		{"number", 12.0, fault.ErrReference, "Patient.link.other"},
		{"array on scalar", []any{"Patient/1"}, fault.ErrArrayCardinality, "Patient.link.other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateKind(map[string]any{"other": tt.value, "type": "refer"}, "Patient.link", "")
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			fe := requireKind(t, err, tt.err)
			assert.Equal(t, tt.path, fe.Path)
		})
	}
}

func TestReferenceArrayAnyResource(t *testing.T) {
	v := New(testRegistry(t))
	rec := map[string]any{
		"status": "final",
		"code":   map[string]any{"text": "x"},
		"focus":  []any{"Specimen/s1", "Spaceship/x"},
	}
	fe := requireKind(t, v.ValidateKind(rec, "Observation", ""), fault.ErrReference)
	assert.Equal(t, "Observation.focus[1]", fe.Path)
	assert.Equal(t, "Spaceship", fe.Value)
}

func TestContainedResources(t *testing.T) {
	v := New(testRegistry(t))

	tests := []struct {
		name      string
		contained any
		err       error
		path      string
	}{
		{"missing resourceType", map[string]any{"id": "x"}, fault.ErrFormat, "Patient.contained[0]"},
		{"unknown resourceType", map[string]any{"resourceType": "Spaceship"}, fault.ErrFormat, "Patient.contained[0]"},
		{"catalog kind without schema", map[string]any{"resourceType": "Device"}, fault.ErrFormat, "Patient.contained[0]"},
		{"invalid content", map[string]any{"resourceType": "Organization", "nickname": "x"}, fault.ErrInvalidField, "Patient.contained[0]"},
		{"not an object", "Organization/1", fault.ErrFormat, "Patient.contained[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateKind(map[string]any{"contained": []any{tt.contained}}, "Patient", "")
			fe := requireKind(t, err, tt.err)
			assert.Equal(t, tt.path, fe.Path)
		})
	}
}

func TestCompositeTypeMismatch(t *testing.T) {
	v := New(testRegistry(t))
	rec := validPatient()
	rec["maritalStatus"] = "married"
	fe := requireKind(t, v.ValidateKind(rec, "Patient", ""), fault.ErrFormat)
	assert.Equal(t, "Patient.maritalStatus", fe.Path)
}

func TestConstraintsRunOnlyWhenEnabled(t *testing.T) {
	reg := testRegistry(t)
	rec := map[string]any{
		"contact": []any{map[string]any{
			"name":   map[string]any{"family": "Roe"},
			"period": map[string]any{"start": "2020-02-01", "end": "2020-01-01"},
		}},
	}

	assert.NoError(t, New(reg).ValidateKind(rec, "Patient", ""))

	fe := requireKind(t, New(reg, WithConstraints(true)).ValidateKind(rec, "Patient", ""), fault.ErrConstraint)
	assert.Equal(t, "per-1", fe.Key)
	assert.Equal(t, "Patient.contact[0].period", fe.Path)
}

func TestConstraintsRunAfterStructure(t *testing.T) {
	v := New(testRegistry(t), WithConstraints(true))
	// The contact violates pat-1, but the bad period format is found first.
	rec := map[string]any{
		"contact": []any{map[string]any{"period": map[string]any{"start": "yesterday"}}},
	}
	requireKind(t, v.ValidateKind(rec, "Patient", ""), fault.ErrFormat)

	rec = map[string]any{"contact": []any{map[string]any{"gender": "male"}}}
	fe := requireKind(t, v.ValidateKind(rec, "Patient", ""), fault.ErrConstraint)
	assert.Equal(t, "pat-1", fe.Key)
}

func nestedExtensions(depth int) map[string]any {
	ext := map[string]any{"url": "http://x", "valueString": "leaf"}
	for i := 0; i < depth; i++ {
		ext = map[string]any{"url": "http://x", "extension": []any{ext}}
	}
	return ext
}

func TestDepthGuard(t *testing.T) {
	reg := testRegistry(t)
	deep := map[string]any{"extension": []any{nestedExtensions(80)}}

	fe := requireKind(t, New(reg).ValidateKind(deep, "Period", ""), fault.ErrFormat)
	assert.Contains(t, fe.Message, "depth")

	assert.NoError(t, New(reg, WithMaxDepth(0)).ValidateKind(deep, "Period", ""))
	assert.NoError(t, New(reg).ValidateKind(map[string]any{"extension": []any{nestedExtensions(10)}}, "Period", ""))
}

func TestUnknownKindIsConfigurationError(t *testing.T) {
	v := New(testRegistry(t))
	err := v.ValidateKind(map[string]any{}, "Spaceship", "")
	require.Error(t, err)
	assert.True(t, fault.IsConfiguration(err))
}

func TestDoesNotMutateInput(t *testing.T) {
	v := New(testRegistry(t))
	rec := validPatient()
	rec["deceasedBoolean"] = nil
	require.NoError(t, v.ValidateKind(rec, "Patient", ""))
	assert.Contains(t, rec, "deceasedBoolean")
}

func TestCustomPath(t *testing.T) {
	v := New(testRegistry(t))
	fe := requireKind(t, v.ValidateKind(map[string]any{"type": "refer"}, "Patient.link", "Bundle.entry[2].resource.link[0]"), fault.ErrRequired)
	assert.Equal(t, "Bundle.entry[2].resource.link[0].other", fe.Path)
}
