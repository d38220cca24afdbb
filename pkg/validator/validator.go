// Package validator is the validation facade. It runs structural validation
// and constraint hooks over a record and turns the first failure into an
// OperationOutcome-style result.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/gofhir/fhirpath/funcs"
	"golang.org/x/sync/errgroup"

	"github.com/gofhir/schemacheck/pkg/definitions"
	"github.com/gofhir/schemacheck/pkg/fault"
	"github.com/gofhir/schemacheck/pkg/issue"
	"github.com/gofhir/schemacheck/pkg/location"
	"github.com/gofhir/schemacheck/pkg/logger"
	"github.com/gofhir/schemacheck/pkg/metrics"
	"github.com/gofhir/schemacheck/pkg/registry"
	"github.com/gofhir/schemacheck/pkg/structural"
)

func init() {
	// Keep FHIRPath trace() output out of validation runs.
	funcs.SetTraceLogger(funcs.NullTraceLogger{})
}

// Validator validates records against a frozen registry.
// It is safe for concurrent use.
type Validator struct {
	registry   *registry.Registry
	structural *structural.Validator
	config     *Config
	metrics    *metrics.Metrics
}

// Config holds the validator configuration.
type Config struct {
	Registry    *registry.Registry // Kinds to validate against; nil selects the compiled-in R4 tables
	MaxDepth    int                // Composite nesting limit; 0 disables it
	Constraints bool               // Run constraint hooks after structural checks
	BatchLimit  int                // Concurrent validations in ValidateBatch
}

// Option is a functional option for configuring the validator.
type Option func(*Config)

// WithRegistry validates against reg instead of the compiled-in tables.
func WithRegistry(reg *registry.Registry) Option {
	return func(c *Config) {
		c.Registry = reg
	}
}

// WithMaxDepth sets the composite nesting limit. Zero disables it.
func WithMaxDepth(depth int) Option {
	return func(c *Config) {
		c.MaxDepth = depth
	}
}

// WithConstraints enables or disables constraint hooks.
func WithConstraints(enabled bool) Option {
	return func(c *Config) {
		c.Constraints = enabled
	}
}

// WithBatchLimit bounds how many records ValidateBatch checks at once.
func WithBatchLimit(n int) Option {
	return func(c *Config) {
		c.BatchLimit = n
	}
}

// validateConfig holds per-call validation options.
type validateConfig struct {
	path string
}

// ValidateOption configures a single Validate call.
type ValidateOption func(*validateConfig)

// WithPath sets the diagnostic path prefix. It defaults to the kind name.
func WithPath(path string) ValidateOption {
	return func(c *validateConfig) {
		c.path = path
	}
}

// New creates a Validator with the given options.
func New(opts ...Option) (*Validator, error) {
	config := &Config{
		MaxDepth:    structural.DefaultMaxDepth,
		Constraints: true,
		BatchLimit:  runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.MaxDepth < 0 {
		return nil, fmt.Errorf("max depth must not be negative, got %d", config.MaxDepth)
	}
	if config.BatchLimit < 1 {
		config.BatchLimit = 1
	}

	reg := config.Registry
	if reg == nil {
		var err error
		if reg, err = definitions.Registry(); err != nil {
			return nil, fmt.Errorf("build compiled-in registry: %w", err)
		}
	}

	logger.Debug("Validator ready: %d kinds, max depth %d, constraints %t",
		reg.Count(), config.MaxDepth, config.Constraints)

	return &Validator{
		registry: reg,
		structural: structural.New(reg,
			structural.WithMaxDepth(config.MaxDepth),
			structural.WithConstraints(config.Constraints),
		),
		config:  config,
		metrics: metrics.New(),
	}, nil
}

// Result is the outcome of one validation.
type Result struct {
	IsValid bool
	Outcome *issue.Result
}

// Validate checks data, a record or an array of records, as an instance of kind.
//
// The first failure becomes the single issue of the outcome. A
// *fault.ConfigurationError is returned as the error instead, because it
// describes the registry rather than the input.
func (v *Validator) Validate(kind string, data any, opts ...ValidateOption) (*Result, error) {
	startTime := time.Now()

	vc := validateConfig{path: kind}
	for _, opt := range opts {
		opt(&vc)
	}

	outcome := issue.NewResult()
	outcome.Stats = &issue.Stats{ResourceType: kind}

	err := v.structural.ValidateKind(data, kind, vc.path)
	elapsed := time.Since(startTime)
	outcome.Stats.Duration = elapsed.Nanoseconds()
	var failureKind string
	if err != nil {
		if fault.IsConfiguration(err) {
			return nil, err
		}
		if fe, ok := fault.As(err); ok {
			outcome.AddIssue(issue.FromFault(fe))
			failureKind = string(fe.Kind)
		} else {
			outcome.AddError(issue.CodeException, err.Error(), vc.path)
			failureKind = string(issue.CodeException)
		}
	}
	v.metrics.RecordValidation(elapsed, err == nil, failureKind)

	logger.Debug("Validated %s in %.3fms: %d errors", kind, outcome.Stats.DurationMs(), outcome.ErrorCount())

	return &Result{IsValid: err == nil, Outcome: outcome}, nil
}

// ValidateJSON validates a single JSON resource. The kind comes from its
// resourceType. Malformed JSON and unknown resource types are reported in the
// outcome, not as errors. Issues under the resource's own path carry the line
// and column of the offending value.
func (v *Validator) ValidateJSON(ctx context.Context, resource []byte, opts ...ValidateOption) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := decode(resource)
	if err != nil {
		return invalid(issue.DiagStructureInvalidJSON, map[string]any{"error": err}, len(resource)), nil
	}
	rec, ok := data.(map[string]any)
	if !ok {
		return invalid(issue.DiagStructureInvalidJSON, map[string]any{"error": "top-level value is not an object"}, len(resource)), nil
	}
	resourceType, _ := rec["resourceType"].(string)
	if resourceType == "" {
		return invalid(issue.DiagStructureNoResourceType, nil, len(resource)), nil
	}
	if _, err := v.registry.SchemaFor(resourceType); err != nil || !v.registry.IsResourceKind(resourceType) {
		result := invalid("", nil, len(resource))
		result.Outcome.AddError(issue.CodeNotSupported, fmt.Sprintf("Unknown resourceType '%s'", resourceType), resourceType)
		return result, nil
	}

	logger.Debug("Validating %s (%s)", resourceType, formatBytes(uint64(len(resource))))
	result, err := v.Validate(resourceType, rec, opts...)
	if err != nil {
		return nil, err
	}
	result.Outcome.Stats.ResourceSize = len(resource)
	if !result.IsValid {
		location.Annotate(resource, resourceType, result.Outcome.Issues)
	}
	return result, nil
}

// ValidateModel validates a generated model value, such as an *r4.Patient,
// by encoding it to JSON and checking the resulting record as kind.
// An empty kind is taken from the encoded resourceType.
func (v *Validator) ValidateModel(ctx context.Context, kind string, model any, opts ...ValidateOption) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	if kind == "" {
		return v.ValidateJSON(ctx, raw, opts...)
	}
	data, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return v.Validate(kind, data, opts...)
}

// Input is one record of a batch. When JSON is set it is validated with
// ValidateJSON and Kind and Data are ignored.
type Input struct {
	Kind string
	Data any
	JSON []byte
	Path string
}

// ValidateBatch validates independent inputs concurrently. Results line up
// with inputs. A configuration error from any input aborts the batch.
func (v *Validator) ValidateBatch(ctx context.Context, inputs []Input) ([]*Result, error) {
	results := make([]*Result, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.config.BatchLimit)

	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var opts []ValidateOption
			if in.Path != "" {
				opts = append(opts, WithPath(in.Path))
			}

			var (
				r   *Result
				err error
			)
			if in.JSON != nil {
				r, err = v.ValidateJSON(gctx, in.JSON, opts...)
			} else {
				r, err = v.Validate(in.Kind, in.Data, opts...)
			}
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("Validated batch of %d inputs", len(inputs))
	return results, nil
}

// Registry returns the underlying registry for advanced use cases.
func (v *Validator) Registry() *registry.Registry {
	return v.registry
}

// Metrics returns the counters of validations run through Validate.
func (v *Validator) Metrics() *metrics.Metrics {
	return v.metrics
}

// Config returns the validator configuration.
func (v *Validator) Config() *Config {
	return v.config
}

// decode parses JSON keeping numbers as json.Number, so integer range checks
// see the literal text.
func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return data, nil
}

// invalid builds a failed result for input rejected before validation.
func invalid(id issue.DiagnosticID, params map[string]any, size int) *Result {
	outcome := issue.NewResult()
	outcome.Stats = &issue.Stats{ResourceSize: size}
	if id != "" {
		outcome.AddErrorWithID(id, params)
	}
	return &Result{IsValid: false, Outcome: outcome}
}

// formatBytes formats bytes as human-readable string.
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
