package constraint

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofhir/fhirpath"

	"github.com/gofhir/schemacheck/pkg/fault"
	"github.com/gofhir/schemacheck/pkg/logger"
)

// exprCache holds compiled FHIRPath expressions shared by every hook.
var exprCache sync.Map // map[string]*fhirpath.Expression

// compile returns a cached compiled expression or compiles a new one.
func compile(expr string) (*fhirpath.Expression, error) {
	if cached, ok := exprCache.Load(expr); ok {
		return cached.(*fhirpath.Expression), nil
	}
	compiled, err := fhirpath.Compile(expr)
	if err != nil {
		return nil, err
	}
	actual, _ := exprCache.LoadOrStore(expr, compiled)
	return actual.(*fhirpath.Expression), nil
}

// FHIRPath builds a hook that evaluates an invariant expression against the
// record. An empty result counts as satisfied, as does a result that is not
// boolean. Evaluation errors are logged and do not fail the record.
func FHIRPath(key, human, expression string) (Hook, error) {
	compiled, err := compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile constraint %s: %w", key, err)
	}

	return func(record map[string]any, path string) error {
		data, err := json.Marshal(record)
		if err != nil {
			logger.Warn("Constraint %s at %s: cannot encode record: %v", key, path, err)
			return nil
		}
		result, err := compiled.Evaluate(data)
		if err != nil {
			logger.Warn("Constraint %s at %s: evaluation failed: %v", key, path, err)
			return nil
		}
		if passed(result) {
			return nil
		}
		return fault.Constraint(path, key, human)
	}, nil
}

// MustFHIRPath is like FHIRPath but panics when the expression does not
// compile. It is meant for compiled-in invariant tables.
func MustFHIRPath(key, human, expression string) Hook {
	hook, err := FHIRPath(key, human, expression)
	if err != nil {
		panic(err)
	}
	return hook
}

// passed reports whether a FHIRPath result satisfies the invariant.
func passed(result fhirpath.Collection) bool {
	if result.Empty() {
		return true
	}
	b, err := result.ToBoolean()
	if err != nil {
		return true
	}
	return b
}
