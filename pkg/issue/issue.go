// Package issue defines validation issues aligned with FHIR OperationOutcome.
package issue

// Severity represents the severity of a validation issue.
type Severity string

// Severity constants aligned with FHIR IssueSeverity.
const (
	SeverityFatal       Severity = "fatal"
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// Code represents the type of validation issue (IssueType).
type Code string

// Code constants aligned with FHIR IssueType.
const (
	CodeInvalid       Code = "invalid"
	CodeStructure     Code = "structure"
	CodeRequired      Code = "required"
	CodeValue         Code = "value"
	CodeInvariant     Code = "invariant"
	CodeProcessing    Code = "processing"
	CodeNotSupported  Code = "not-supported"
	CodeCodeInvalid   Code = "code-invalid"
	CodeException     Code = "exception"
	CodeInformational Code = "informational"
)

// Issue represents a single validation issue.
type Issue struct {
	// Severity indicates the severity level (error, warning, etc.)
	Severity Severity

	// Code indicates the type of issue
	Code Code

	// Diagnostics is the human-readable description of the issue
	Diagnostics string

	// Expression contains the dotted/bracketed path of the offending node
	Expression []string

	// Source identifies the component that raised the issue
	Source string

	// MessageID is the identifier from the diagnostic catalog
	MessageID string

	// Line and Column locate the offending value in JSON input (1-based, 0 if unknown)
	Line   int
	Column int
}

// Stats contains validation statistics.
type Stats struct {
	// ResourceType is the kind validated
	ResourceType string
	// ResourceSize is the size of the input in bytes, when it came as JSON
	ResourceSize int
	// Duration is the total validation time
	Duration int64 // nanoseconds
}

// DurationMs returns the duration in milliseconds.
func (s *Stats) DurationMs() float64 {
	return float64(s.Duration) / 1e6
}

// Result holds the collection of issues from validation.
type Result struct {
	Issues []Issue
	Stats  *Stats
}

// NewResult creates a new empty Result.
func NewResult() *Result {
	return &Result{}
}

// AddIssue adds an issue to the result.
func (r *Result) AddIssue(issue Issue) {
	r.Issues = append(r.Issues, issue)
}

// AddError adds an error-level issue.
func (r *Result) AddError(code Code, diagnostics string, expression ...string) {
	r.Issues = append(r.Issues, Issue{
		Severity:    SeverityError,
		Code:        code,
		Diagnostics: diagnostics,
		Expression:  expression,
	})
}

// AddWarning adds a warning-level issue.
func (r *Result) AddWarning(code Code, diagnostics string, expression ...string) {
	r.Issues = append(r.Issues, Issue{
		Severity:    SeverityWarning,
		Code:        code,
		Diagnostics: diagnostics,
		Expression:  expression,
	})
}

// HasErrors returns true if there are any error-level issues.
func (r *Result) HasErrors() bool {
	return r.ErrorCount() > 0
}

// ErrorCount returns the number of error-level issues.
func (r *Result) ErrorCount() int {
	count := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError || issue.Severity == SeverityFatal {
			count++
		}
	}
	return count
}

// Standard OperationOutcome issue extensions for source positions.
const (
	extLine = "http://hl7.org/fhir/StructureDefinition/operationoutcome-issue-line"
	extCol  = "http://hl7.org/fhir/StructureDefinition/operationoutcome-issue-col"
)

// OperationOutcome renders the result as a FHIR OperationOutcome JSON object.
// A result without issues renders a single informational "All OK" issue.
func (r *Result) OperationOutcome() map[string]any {
	issues := make([]any, 0, len(r.Issues))
	for _, is := range r.Issues {
		entry := map[string]any{
			"severity": string(is.Severity),
			"code":     string(is.Code),
		}
		if is.Diagnostics != "" {
			entry["diagnostics"] = is.Diagnostics
		}
		if len(is.Expression) > 0 {
			expr := make([]any, len(is.Expression))
			for i, e := range is.Expression {
				expr[i] = e
			}
			entry["expression"] = expr
		}
		if is.Line > 0 {
			entry["extension"] = []any{
				map[string]any{"url": extLine, "valueInteger": is.Line},
				map[string]any{"url": extCol, "valueInteger": is.Column},
			}
		}
		issues = append(issues, entry)
	}
	if len(issues) == 0 {
		issues = append(issues, map[string]any{
			"severity":    string(SeverityInformation),
			"code":        string(CodeInformational),
			"diagnostics": "All OK",
		})
	}
	return map[string]any{
		"resourceType": "OperationOutcome",
		"issue":        issues,
	}
}
