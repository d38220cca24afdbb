package issue

import (
	"fmt"
	"strings"

	"github.com/gofhir/schemacheck/pkg/fault"
)

// DiagnosticID identifies a specific diagnostic message.
type DiagnosticID string

// Diagnostic IDs for structural failures.
const (
	DiagStructureUnknownElement DiagnosticID = "STRUCTURE_UNKNOWN_ELEMENT"
	DiagStructureInvalidJSON    DiagnosticID = "STRUCTURE_INVALID_JSON"
	DiagStructureNoResourceType DiagnosticID = "STRUCTURE_NO_RESOURCE_TYPE"
	DiagStructureCardinality    DiagnosticID = "STRUCTURE_CARDINALITY"
	DiagCardinalityMin          DiagnosticID = "CARDINALITY_MIN"
)

// Diagnostic IDs for value failures.
const (
	DiagTypeInvalid            DiagnosticID = "TYPE_INVALID"
	DiagBindingRequired        DiagnosticID = "BINDING_REQUIRED"
	DiagReferenceInvalidFormat DiagnosticID = "REFERENCE_INVALID_FORMAT"
	DiagReferenceInvalidTarget DiagnosticID = "REFERENCE_INVALID_TARGET"
	DiagConstraintFailed       DiagnosticID = "CONSTRAINT_FAILED"
)

// DiagnosticTemplate holds the outcome classification of a diagnostic.
type DiagnosticTemplate struct {
	ID       DiagnosticID
	Severity Severity
	Code     Code
	Template string
}

// diagnosticTemplates maps diagnostic IDs to their templates.
// Templates use {placeholder} syntax for variable substitution.
var diagnosticTemplates = map[DiagnosticID]DiagnosticTemplate{
	DiagStructureUnknownElement: {Severity: SeverityError, Code: CodeStructure, Template: "Invalid field(s) at {path}: {fields}"},
	DiagStructureInvalidJSON:    {Severity: SeverityError, Code: CodeStructure, Template: "Invalid JSON: {error}"},
	DiagStructureNoResourceType: {Severity: SeverityError, Code: CodeStructure, Template: "Missing 'resourceType' property"},
	DiagStructureCardinality:    {Severity: SeverityError, Code: CodeStructure, Template: "Array cardinality mismatch at {path}"},
	DiagCardinalityMin:          {Severity: SeverityError, Code: CodeRequired, Template: "Missing required field: {path}"},
	DiagTypeInvalid:             {Severity: SeverityError, Code: CodeValue, Template: "Invalid value at {path}"},
	DiagBindingRequired:         {Severity: SeverityError, Code: CodeCodeInvalid, Template: "Invalid value '{value}' at {path}"},
	DiagReferenceInvalidFormat:  {Severity: SeverityError, Code: CodeValue, Template: "Invalid reference format '{value}' at {path}"},
	DiagReferenceInvalidTarget:  {Severity: SeverityError, Code: CodeInvalid, Template: "Invalid reference type '{value}' at {path}"},
	DiagConstraintFailed:        {Severity: SeverityError, Code: CodeInvariant, Template: "[{path}] {key}"},
}

// faultDiagnostics classifies each validation failure kind.
var faultDiagnostics = map[fault.Kind]DiagnosticID{
	fault.KindFormat:           DiagTypeInvalid,
	fault.KindRequired:         DiagCardinalityMin,
	fault.KindInvalidField:     DiagStructureUnknownElement,
	fault.KindEnum:             DiagBindingRequired,
	fault.KindArrayCardinality: DiagStructureCardinality,
	fault.KindReference:        DiagReferenceInvalidFormat,
	fault.KindConstraint:       DiagConstraintFailed,
}

// FormatDiagnostic formats a diagnostic message with the given parameters.
func FormatDiagnostic(id DiagnosticID, params map[string]any) string {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		return string(id)
	}
	return formatTemplate(tmpl.Template, params)
}

// GetDiagnosticTemplate returns the template for a diagnostic ID.
func GetDiagnosticTemplate(id DiagnosticID) (DiagnosticTemplate, bool) {
	tmpl, ok := diagnosticTemplates[id]
	if ok {
		tmpl.ID = id
	}
	return tmpl, ok
}

// formatTemplate replaces {placeholder} with values from params.
func formatTemplate(template string, params map[string]any) string {
	result := template
	for key, value := range params {
		placeholder := "{" + key + "}"
		result = strings.ReplaceAll(result, placeholder, fmt.Sprint(value))
	}
	return result
}

// AddErrorWithID adds an error using a diagnostic template.
func (r *Result) AddErrorWithID(id DiagnosticID, params map[string]any, expression ...string) {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		r.AddError(CodeProcessing, string(id), expression...)
		return
	}

	r.Issues = append(r.Issues, Issue{
		Severity:    tmpl.Severity,
		Code:        tmpl.Code,
		Diagnostics: formatTemplate(tmpl.Template, params),
		Expression:  expression,
		MessageID:   string(id),
	})
}

// FromFault converts a validation failure into an issue. The fault's own
// message is kept as the diagnostics text.
func FromFault(e *fault.Error) Issue {
	id, ok := faultDiagnostics[e.Kind]
	if !ok {
		return Issue{Severity: SeverityError, Code: CodeException, Diagnostics: e.Message, Expression: expression(e.Path)}
	}
	if e.Kind == fault.KindReference && e.Target != "" {
		id = DiagReferenceInvalidTarget
	}
	tmpl := diagnosticTemplates[id]
	return Issue{
		Severity:    tmpl.Severity,
		Code:        tmpl.Code,
		Diagnostics: e.Message,
		Expression:  expression(e.Path),
		Source:      string(e.Kind),
		MessageID:   string(id),
	}
}

func expression(path string) []string {
	if path == "" {
		return nil
	}
	return []string{path}
}
