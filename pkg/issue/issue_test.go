package issue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofhir/schemacheck/pkg/fault"
)

func TestNewResult(t *testing.T) {
	r := NewResult()
	require.NotNil(t, r)
	assert.Empty(t, r.Issues)
	assert.False(t, r.HasErrors())
}

func TestResultAddError(t *testing.T) {
	r := NewResult()
	r.AddError(CodeStructure, "Unknown element 'foo'", "Patient.foo")

	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityError, r.Issues[0].Severity)
	assert.Equal(t, CodeStructure, r.Issues[0].Code)
	assert.Equal(t, []string{"Patient.foo"}, r.Issues[0].Expression)
	assert.True(t, r.HasErrors())
	assert.Equal(t, 1, r.ErrorCount())
}

func TestResultWarningsAreNotErrors(t *testing.T) {
	r := NewResult()
	r.AddWarning(CodeInformational, "Optional element missing", "Patient.photo")
	r.AddIssue(Issue{Severity: SeverityFatal, Code: CodeException})

	assert.Equal(t, 1, r.ErrorCount())
}

func TestOperationOutcome(t *testing.T) {
	t.Run("with issues", func(t *testing.T) {
		r := NewResult()
		r.AddError(CodeRequired, "Missing required field: Patient.link[0].type", "Patient.link[0].type")

		oo := r.OperationOutcome()
		assert.Equal(t, "OperationOutcome", oo["resourceType"])
		issues, ok := oo["issue"].([]any)
		require.True(t, ok)
		require.Len(t, issues, 1)

		entry := issues[0].(map[string]any)
		assert.Equal(t, "error", entry["severity"])
		assert.Equal(t, "required", entry["code"])
		assert.Equal(t, []any{"Patient.link[0].type"}, entry["expression"])
		assert.NotContains(t, entry, "extension")
	})

	t.Run("with source position", func(t *testing.T) {
		r := NewResult()
		r.AddIssue(Issue{Severity: SeverityError, Code: CodeValue, Expression: []string{"Patient.gender"}, Line: 4, Column: 13})

		entry := r.OperationOutcome()["issue"].([]any)[0].(map[string]any)
		ext := entry["extension"].([]any)
		require.Len(t, ext, 2)
		assert.Equal(t, 4, ext[0].(map[string]any)["valueInteger"])
		assert.Equal(t, 13, ext[1].(map[string]any)["valueInteger"])
	})

	t.Run("empty", func(t *testing.T) {
		oo := NewResult().OperationOutcome()
		issues := oo["issue"].([]any)
		require.Len(t, issues, 1)
		assert.Equal(t, "information", issues[0].(map[string]any)["severity"])
	})
}

func TestFromFault(t *testing.T) {
	tests := []struct {
		name string
		err  *fault.Error
		code Code
		id   DiagnosticID
	}{
		{"format", fault.Format("Patient.birthDate", "x", "date", ""), CodeValue, DiagTypeInvalid},
		{"required", fault.Required("Patient.link[0].other"), CodeRequired, DiagCardinalityMin},
		{"invalid field", fault.InvalidFields("Patient", []string{"foo"}), CodeStructure, DiagStructureUnknownElement},
		{"enum", fault.Enum("Patient.gender", "x", []string{"male"}), CodeCodeInvalid, DiagBindingRequired},
		{"array", fault.ArrayCardinality("Patient.name"), CodeStructure, DiagStructureCardinality},
		{"malformed reference", fault.MalformedReference("Patient.managingOrganization", "bad"), CodeValue, DiagReferenceInvalidFormat},
		{"disallowed reference", fault.DisallowedReference("Patient.managingOrganization", "Patient", []string{"Organization"}), CodeInvalid, DiagReferenceInvalidTarget},
		{"disallowed reference without catalog", fault.DisallowedReference("Patient.link[0].other", "Spaceship", nil), CodeInvalid, DiagReferenceInvalidTarget},
		{"constraint", fault.Constraint("Period", "per-1", "bad"), CodeInvariant, DiagConstraintFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := FromFault(tt.err)
			assert.Equal(t, SeverityError, is.Severity)
			assert.Equal(t, tt.code, is.Code)
			assert.Equal(t, string(tt.id), is.MessageID)
			assert.Equal(t, tt.err.Message, is.Diagnostics)
			assert.Equal(t, []string{tt.err.Path}, is.Expression)
		})
	}
}

func TestFormatDiagnostic(t *testing.T) {
	msg := FormatDiagnostic(DiagStructureInvalidJSON, map[string]any{"error": "unexpected EOF"})
	assert.Equal(t, "Invalid JSON: unexpected EOF", msg)
	assert.Equal(t, "NOPE", FormatDiagnostic("NOPE", nil))

	tmpl, ok := GetDiagnosticTemplate(DiagConstraintFailed)
	require.True(t, ok)
	assert.Equal(t, CodeInvariant, tmpl.Code)
	assert.Equal(t, DiagConstraintFailed, tmpl.ID)
}
