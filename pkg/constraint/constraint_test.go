package constraint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofhir/schemacheck/pkg/fault"
)

func TestHooks(t *testing.T) {
	tests := []struct {
		name   string
		hook   Hook
		record map[string]any
		key    string // empty when the record satisfies the hook
	}{
		{"period reversed", PeriodOrder, map[string]any{"start": "2020-02-01", "end": "2020-01-01"}, "per-1"},
		{"period ordered", PeriodOrder, map[string]any{"start": "2020-01-01", "end": "2020-02-01"}, ""},
		{"period start only", PeriodOrder, map[string]any{"start": "2020-02-01"}, ""},
		{"period end only", PeriodOrder, map[string]any{"end": "2020-01-01"}, ""},
		{"period equal", PeriodOrder, map[string]any{"start": "2020-01-01", "end": "2020-01-01"}, ""},
		{"period mixed precision", PeriodOrder, map[string]any{"start": "2020-01-01T10:00:00Z", "end": "2019"}, "per-1"},
		{"period start inside end month", PeriodOrder, map[string]any{"start": "2020-01-15", "end": "2020-01"}, ""},
		{"period start inside end year", PeriodOrder, map[string]any{"start": "2020-06-01", "end": "2020"}, ""},
		{"period start inside end day", PeriodOrder, map[string]any{"start": "2020-01-01T10:00:00Z", "end": "2020-01-01"}, ""},
		{"period start after end month", PeriodOrder, map[string]any{"start": "2020-02-01", "end": "2020-01"}, "per-1"},
		{"period start after end day", PeriodOrder, map[string]any{"start": "2020-01-02T00:00:00Z", "end": "2020-01-01"}, "per-1"},
		{"attachment data without type", AttachmentContentType, map[string]any{"data": "aGVsbG8="}, "att-1"},
		{"attachment data with type", AttachmentContentType, map[string]any{"data": "aGVsbG8=", "contentType": "text/plain"}, ""},
		{"attachment empty typed data", AttachmentContentType, map[string]any{"data": []string{}}, ""},
		{"attachment url only", AttachmentContentType, map[string]any{"url": "http://x"}, ""},
		{"contact point value without system", ContactPointSystem, map[string]any{"value": "555"}, "cpt-2"},
		{"contact point complete", ContactPointSystem, map[string]any{"value": "555", "system": "phone"}, ""},
		{"quantity code without system", QuantitySystem, map[string]any{"code": "mg"}, "qty-3"},
		{"quantity system without code", QuantitySystem, map[string]any{"system": "http://unitsofmeasure.org"}, ""},
		{"quantity neither", QuantitySystem, map[string]any{"value": 1.0}, ""},
		{"extension value", ExtensionValue, map[string]any{"url": "u", "valueString": "x"}, ""},
		{"extension nested", ExtensionValue, map[string]any{"url": "u", "extension": []any{map[string]any{}}}, ""},
		{"extension both", ExtensionValue, map[string]any{"url": "u", "valueString": "x", "extension": []any{map[string]any{"url": "v"}}}, "ext-1"},
		{"extension two values", ExtensionValue, map[string]any{"url": "u", "valueString": "x", "valueBoolean": true}, "ext-1"},
		{"extension empty typed nested", ExtensionValue, map[string]any{"url": "u", "extension": []map[string]any{}}, "ext-1"},
		{"extension empty", ExtensionValue, map[string]any{"url": "u"}, "ext-1"},
		{"contact with name", PatientContactDetails, map[string]any{"name": map[string]any{"family": "Doe"}}, ""},
		{"contact with organization", PatientContactDetails, map[string]any{"organization": "Organization/1"}, ""},
		{"contact empty typed telecom", PatientContactDetails, map[string]any{"telecom": []map[string]any{}}, "pat-1"},
		{"contact typed telecom", PatientContactDetails, map[string]any{"telecom": []map[string]any{{"value": "555"}}}, ""},
		{"contact empty", PatientContactDetails, map[string]any{"gender": "male"}, "pat-1"},
		{"observation value and absent reason", ObservationDataAbsent, map[string]any{"valueString": "x", "dataAbsentReason": map[string]any{"text": "n/a"}}, "obs-6"},
		{"observation absent reason only", ObservationDataAbsent, map[string]any{"dataAbsentReason": map[string]any{"text": "n/a"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.hook(tt.record, "X")
			if tt.key == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, fault.ErrConstraint))
			fe, _ := fault.As(err)
			assert.Equal(t, tt.key, fe.Key)
			assert.Equal(t, "X", fe.Path)
			assert.Regexp(t, `^\[X\] `, err.Error())
		})
	}
}

func TestFHIRPathCompileError(t *testing.T) {
	_, err := FHIRPath("bad-1", "never", "name.where(")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad-1")
	assert.Panics(t, func() { MustFHIRPath("bad-1", "never", "name.where(") })
}

func TestFHIRPathHook(t *testing.T) {
	hook, err := FHIRPath("dom-2", "no nested contained", "contained.contained.empty()")
	require.NoError(t, err)

	flat := map[string]any{
		"resourceType": "Patient",
		"contained":    []any{map[string]any{"resourceType": "Organization", "id": "o1"}},
	}
	assert.NoError(t, hook(flat, "Patient"))

	nested := map[string]any{
		"resourceType": "Patient",
		"contained": []any{map[string]any{
			"resourceType": "Organization",
			"contained":    []any{map[string]any{"resourceType": "Organization", "id": "o2"}},
		}},
	}
	err = hook(nested, "Patient")
	require.Error(t, err)
	assert.Equal(t, "[Patient] no nested contained", err.Error())
}
