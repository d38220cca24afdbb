// Package main implements the schemacheck CLI tool.
// It validates FHIR R4 JSON resources against the compiled-in kinds plus any
// kinds imported from StructureDefinitions or declaration files.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofhir/schemacheck/internal/config"
	"github.com/gofhir/schemacheck/pkg/definitions"
	"github.com/gofhir/schemacheck/pkg/fault"
	"github.com/gofhir/schemacheck/pkg/issue"
	"github.com/gofhir/schemacheck/pkg/loader"
	"github.com/gofhir/schemacheck/pkg/logger"
	"github.com/gofhir/schemacheck/pkg/metrics"
	"github.com/gofhir/schemacheck/pkg/registry"
	"github.com/gofhir/schemacheck/pkg/validator"
)

const (
	version = "0.1.0"
	usage   = `schemacheck - FHIR R4 structural validator

Usage:
  schemacheck [options] <file>...
  schemacheck [options] -           (read from stdin)
  cat resource.json | schemacheck - (pipe input)

Examples:
  schemacheck patient.json
  schemacheck -output json observations/*.json
  schemacheck -sd device.json -vs device-status.json device-1.json
  schemacheck -decl starship.yaml -no-constraints ship.json

Options:
`
)

// Exit codes.
const (
	exitValid   = 0
	exitInvalid = 1
	exitUsage   = 2
)

// Options holds the parsed command line.
type Options struct {
	ConfigFile    string
	Output        string
	LogLevel      string
	MaxDepth      int
	NoConstraints bool
	SDs           string
	ValueSets     string
	Declarations  string
	Quiet         bool
	Stats         bool
	ShowVersion   bool
	Files         []string

	set map[string]bool
}

// ValidationOutput represents the JSON output structure
type ValidationOutput struct {
	Resource string        `json:"resource"`
	Valid    bool          `json:"valid"`
	Errors   int           `json:"errors"`
	Issues   []IssueOutput `json:"issues,omitempty"`
	Duration string        `json:"duration,omitempty"`
}

// IssueOutput represents a single issue in JSON output
type IssueOutput struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics"`
	Expression  []string `json:"expression,omitempty"`
	Line        int      `json:"line,omitempty"`
	Column      int      `json:"column,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*Options, error) {
	opts := &Options{}
	fs := flag.NewFlagSet("schemacheck", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.ConfigFile, "config", "", "Config file (default: ./schemacheck.yaml if present)")
	fs.StringVar(&opts.Output, "output", "text", "Output format: text, json")
	fs.StringVar(&opts.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error, none")
	fs.IntVar(&opts.MaxDepth, "max-depth", 0, "Maximum nesting depth (0 disables the limit)")
	fs.BoolVar(&opts.NoConstraints, "no-constraints", false, "Skip constraint checks")
	fs.StringVar(&opts.SDs, "sd", "", "StructureDefinition JSON file(s) to import (comma-separated)")
	fs.StringVar(&opts.ValueSets, "vs", "", "ValueSet JSON file(s) for required bindings (comma-separated)")
	fs.StringVar(&opts.Declarations, "decl", "", "YAML kind declaration file(s) to import (comma-separated)")
	fs.BoolVar(&opts.Quiet, "quiet", false, "Only print invalid resources")
	fs.BoolVar(&opts.Stats, "stats", false, "Print a validation summary to stderr")
	fs.BoolVar(&opts.ShowVersion, "v", false, "Show version")

	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	opts.Files = fs.Args()
	return opts, nil
}

// apply lets explicitly given flags override the loaded configuration.
func (o *Options) apply(cfg *config.Config) {
	if o.set["output"] {
		cfg.Output = strings.ToLower(o.Output)
	}
	if o.set["log-level"] {
		cfg.Log.Level = o.LogLevel
	}
	if o.set["max-depth"] {
		cfg.Validation.MaxDepth = o.MaxDepth
	}
	if o.NoConstraints {
		cfg.Validation.Constraints = false
	}
	cfg.Schemas.StructureDefinitions = append(cfg.Schemas.StructureDefinitions, splitList(o.SDs)...)
	cfg.Schemas.ValueSets = append(cfg.Schemas.ValueSets, splitList(o.ValueSets)...)
	cfg.Schemas.Declarations = append(cfg.Schemas.Declarations, splitList(o.Declarations)...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return exitUsage
	}
	if opts.ShowVersion {
		fmt.Fprintf(stdout, "schemacheck v%s\n", version)
		return exitValid
	}
	if len(opts.Files) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	log := logger.NewWithConfig(cfg.LoggerConfig())
	if cfg.Log.File == "" {
		log.SetOutput(stderr)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	reg, err := buildRegistry(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: Failed to load definitions: %v\n", err)
		return exitUsage
	}

	v, err := validator.New(
		validator.WithRegistry(reg),
		validator.WithMaxDepth(cfg.Validation.MaxDepth),
		validator.WithConstraints(cfg.Validation.Constraints),
		validator.WithBatchLimit(cfg.Validation.BatchLimit),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: Failed to initialize validator: %v\n", err)
		return exitUsage
	}

	names, inputs, readFailures := collectInputs(opts.Files, stdin, stderr)
	logger.Info("Validating %d resource(s) against %d kinds", len(inputs), reg.Count())

	startTime := time.Now()
	results, err := v.ValidateBatch(context.Background(), inputs)
	if err != nil {
		if fault.IsConfiguration(err) {
			fmt.Fprintf(stderr, "Error: definitions are inconsistent: %v\n", err)
			return exitUsage
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitInvalid
	}
	logger.Debug("Batch finished in %s", time.Since(startTime).Round(time.Microsecond))

	outputs := make([]ValidationOutput, 0, len(results)+len(readFailures))
	outputs = append(outputs, readFailures...)
	hasErrors := len(readFailures) > 0
	for i, r := range results {
		out := toOutput(names[i], r)
		outputs = append(outputs, out)
		if !out.Valid {
			hasErrors = true
		}
		if cfg.Output == "text" {
			printTextResult(stdout, names[i], r, opts.Quiet)
		}
	}

	if cfg.Output == "json" {
		jsonOutput, _ := json.MarshalIndent(outputs, "", "  ")
		fmt.Fprintln(stdout, string(jsonOutput))
	}

	if opts.Stats {
		printStats(stderr, v.Metrics().Snapshot())
	}

	if hasErrors {
		return exitInvalid
	}
	return exitValid
}

func printStats(w io.Writer, s metrics.Snapshot) {
	fmt.Fprintf(w, "Validated: %d (valid %d, invalid %d)\n", s.Total, s.Valid, s.Total-s.Valid)
	fmt.Fprintf(w, "Time: avg %s, min %s, max %s\n",
		s.Average.Round(time.Microsecond), s.Min.Round(time.Microsecond), s.Max.Round(time.Microsecond))
	for _, kind := range s.FailureKinds() {
		fmt.Fprintf(w, "  %-18s %d\n", kind, s.Failures[kind])
	}
}

// buildRegistry extends the compiled-in kinds with the configured imports.
func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	s := cfg.Schemas
	if len(s.StructureDefinitions)+len(s.Declarations) == 0 {
		return definitions.Registry()
	}
	defs, err := loader.ReadAll(s.StructureDefinitions, s.ValueSets, s.Declarations)
	if err != nil {
		return nil, err
	}
	return defs.Apply(definitions.NewBuilder()).Build()
}

// collectInputs expands glob patterns and reads every input. Files that cannot
// be read are reported as failed outputs instead of inputs.
func collectInputs(patterns []string, stdin io.Reader, stderr io.Writer) ([]string, []validator.Input, []ValidationOutput) {
	var (
		names    []string
		inputs   []validator.Input
		failures []ValidationOutput
	)
	fail := func(name string, err error) {
		fmt.Fprintf(stderr, "Error reading %s: %v\n", name, err)
		failures = append(failures, ValidationOutput{
			Resource: name,
			Errors:   1,
			Issues: []IssueOutput{{
				Severity:    string(issue.SeverityError),
				Code:        string(issue.CodeException),
				Diagnostics: fmt.Sprintf("Failed to read input: %v", err),
			}},
		})
	}

	for _, pattern := range patterns {
		if pattern == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				fail("stdin", err)
				continue
			}
			names = append(names, "stdin")
			inputs = append(inputs, validator.Input{JSON: data})
			continue
		}

		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			if err == nil {
				err = fmt.Errorf("no files match pattern")
			}
			fail(pattern, err)
			continue
		}
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				fail(path, err)
				continue
			}
			names = append(names, path)
			inputs = append(inputs, validator.Input{JSON: data})
		}
	}
	return names, inputs, failures
}

func toOutput(name string, r *validator.Result) ValidationOutput {
	out := ValidationOutput{
		Resource: name,
		Valid:    r.IsValid,
		Errors:   r.Outcome.ErrorCount(),
	}
	if r.Outcome.Stats != nil {
		out.Duration = time.Duration(r.Outcome.Stats.Duration).Round(time.Microsecond).String()
	}
	for _, iss := range r.Outcome.Issues {
		out.Issues = append(out.Issues, IssueOutput{
			Severity:    string(iss.Severity),
			Code:        string(iss.Code),
			Diagnostics: iss.Diagnostics,
			Expression:  iss.Expression,
			Line:        iss.Line,
			Column:      iss.Column,
		})
	}
	return out
}

func printTextResult(w io.Writer, name string, r *validator.Result, quiet bool) {
	if quiet && r.IsValid {
		return
	}
	status := "VALID"
	if !r.IsValid {
		status = "INVALID"
	}

	fmt.Fprintf(w, "== %s ==\n", name)
	fmt.Fprintf(w, "Status: %s\n", status)
	if r.Outcome.Stats != nil && r.Outcome.Stats.ResourceType != "" {
		fmt.Fprintf(w, "Kind: %s\n", r.Outcome.Stats.ResourceType)
	}

	for _, iss := range r.Outcome.Issues {
		location := ""
		if len(iss.Expression) > 0 {
			location = fmt.Sprintf(" @ %s", strings.Join(iss.Expression, ", "))
		}
		if iss.Line > 0 {
			location += fmt.Sprintf(" (line %d, col %d)", iss.Line, iss.Column)
		}
		fmt.Fprintf(w, "  %s [%s] %s%s\n", getSeverityIcon(iss.Severity), iss.Code, iss.Diagnostics, location)
	}
	fmt.Fprintln(w)
}

func getSeverityIcon(severity issue.Severity) string {
	switch severity {
	case issue.SeverityError, issue.SeverityFatal:
		return "ERROR"
	case issue.SeverityWarning:
		return "WARN "
	case issue.SeverityInformation:
		return "INFO "
	default:
		return "     "
	}
}
