// Package constraint provides the cross-field invariants checked after a
// record has passed structural validation.
package constraint

import (
	"time"

	"github.com/gofhir/schemacheck/pkg/fault"
	"github.com/gofhir/schemacheck/pkg/schema"
)

// Hook checks one invariant on a structurally valid record found at path.
// It returns a *fault.Error of kind fault.KindConstraint on violation.
type Hook func(record map[string]any, path string) error

// PeriodOrder enforces per-1: start must not be after end when both are present.
// Partial dates cover an interval, so the earliest instant of start is compared
// with the latest instant of end.
func PeriodOrder(record map[string]any, path string) error {
	start, okStart := record["start"].(string)
	end, okEnd := record["end"].(string)
	if !okStart || !okEnd {
		return nil
	}
	s, _, err := parseDateTime(start)
	if err != nil {
		return nil
	}
	_, e, err := parseDateTime(end)
	if err != nil {
		return nil
	}
	if s.After(e) {
		return fault.Constraint(path, "per-1", "If present, start SHALL have a lower value than end")
	}
	return nil
}

// AttachmentContentType enforces att-1: data requires contentType.
func AttachmentContentType(record map[string]any, path string) error {
	if schema.IsPresent(record["data"]) && !schema.IsPresent(record["contentType"]) {
		return fault.Constraint(path, "att-1", "If the Attachment has data, it SHALL have a contentType")
	}
	return nil
}

// ContactPointSystem enforces cpt-2: a value requires a system.
func ContactPointSystem(record map[string]any, path string) error {
	if schema.IsPresent(record["value"]) && !schema.IsPresent(record["system"]) {
		return fault.Constraint(path, "cpt-2", "A system is required if a value is provided.")
	}
	return nil
}

// QuantitySystem enforces qty-3: a coded unit requires a system.
func QuantitySystem(record map[string]any, path string) error {
	if schema.IsPresent(record["code"]) && !schema.IsPresent(record["system"]) {
		return fault.Constraint(path, "qty-3", "If a code for the unit is present, the system SHALL also be present")
	}
	return nil
}

// ExtensionValue enforces ext-1: an extension has nested extensions or a
// single value[x], never both and never neither.
func ExtensionValue(record map[string]any, path string) error {
	values := 0
	for key, v := range record {
		if isValueChoice(key) && schema.IsPresent(v) {
			values++
		}
	}
	nested := schema.IsPresent(record["extension"])

	switch {
	case nested && values > 0:
		return fault.Constraint(path, "ext-1", "Must have either extensions or value[x], not both")
	case values > 1:
		return fault.Constraint(path, "ext-1", "Must have exactly one value[x]")
	case !nested && values == 0:
		return fault.Constraint(path, "ext-1", "Must have either extensions or value[x]")
	}
	return nil
}

// PatientContactDetails enforces pat-1: a contact carries at least one of
// name, telecom, address or organization.
func PatientContactDetails(record map[string]any, path string) error {
	for _, key := range []string{"name", "telecom", "address", "organization"} {
		if schema.IsPresent(record[key]) {
			return nil
		}
	}
	return fault.Constraint(path, "pat-1", "SHALL at least contain a contact's details or a reference to an organization")
}

// ObservationDataAbsent enforces obs-6: dataAbsentReason only when there is no value[x].
func ObservationDataAbsent(record map[string]any, path string) error {
	if !schema.IsPresent(record["dataAbsentReason"]) {
		return nil
	}
	for key, v := range record {
		if isValueChoice(key) && schema.IsPresent(v) {
			return fault.Constraint(path, "obs-6", "dataAbsentReason SHALL only be present if Observation.value[x] is not present")
		}
	}
	return nil
}

// isValueChoice reports whether key is a value[x] variant such as valueString.
func isValueChoice(key string) bool {
	if len(key) <= len("value") || key[:5] != "value" {
		return false
	}
	c := key[5]
	return c >= 'A' && c <= 'Z'
}

// dateTimeLayouts covers every precision the dateTime grammar allows, with the
// length of the interval a value of that precision spans.
var dateTimeLayouts = []struct {
	layout string
	span   func(time.Time) time.Time
}{
	{time.RFC3339Nano, func(t time.Time) time.Time { return t }},
	{"2006-01-02", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
	{"2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
	{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
}

// parseDateTime parses a FHIR date or dateTime into the first and last
// instants of the interval its precision covers.
func parseDateTime(s string) (first, last time.Time, err error) {
	for _, l := range dateTimeLayouts {
		if first, err = time.Parse(l.layout, s); err == nil {
			next := l.span(first)
			if next.Equal(first) {
				return first, first, nil
			}
			return first, next.Add(-time.Nanosecond), nil
		}
	}
	return time.Time{}, time.Time{}, err
}
