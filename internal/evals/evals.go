// Package evals measures the NL-to-SQL pipeline against a fixed case suite:
// does generated SQL stay inside the schema, does it contain the structures
// the question implies, and is generation stable across repeated runs.
package evals

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/guillermoBallester/causeway/internal/core/domain"
	"github.com/guillermoBallester/causeway/internal/core/port"
)

// Case is one eval scenario: a question plus the SQL fragments the answer is
// expected to contain.
type Case struct {
	ID               string   `yaml:"id"`
	Query            string   `yaml:"query"`
	ExpectedPatterns []string `yaml:"expected_patterns,omitempty"`
}

type suite struct {
	Cases []Case `yaml:"cases"`
}

// LoadCases reads an eval case suite from a YAML file.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cases file: %w", err)
	}
	var s suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing cases YAML: %w", err)
	}
	if len(s.Cases) == 0 {
		return nil, fmt.Errorf("no cases in %s", path)
	}
	return s.Cases, nil
}

// CaseResult records one case's outcome.
type CaseResult struct {
	ID     string   `json:"id"`
	Passed bool     `json:"passed"`
	SQL    string   `json:"sql,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// Report aggregates one eval's results.
type Report struct {
	Name    string       `json:"name"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Results []CaseResult `json:"results"`
}

func (r *Report) add(res CaseResult) {
	if res.Passed {
		r.Passed++
	} else {
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

// Runner drives a generator through the case suite. Execution is never
// involved; evals judge the text the generator produces.
type Runner struct {
	generator port.SQLGenerator
	schema    *domain.SchemaDefinition
	grammar   string
}

func NewRunner(generator port.SQLGenerator, schema *domain.SchemaDefinition) *Runner {
	return &Runner{
		generator: generator,
		schema:    schema,
		grammar:   domain.CompileGrammar(schema),
	}
}

func (r *Runner) generate(ctx context.Context, question string) (string, error) {
	return r.generator.GenerateSQL(ctx, question, r.grammar, r.schema.PromptContext())
}

// SchemaCorrectness checks that generated SQL passes the validator: only the
// allowed table, whitelisted columns, and a single SELECT.
func (r *Runner) SchemaCorrectness(ctx context.Context, cases []Case) Report {
	report := Report{Name: "schema_correctness"}
	for _, c := range cases {
		sql, err := r.generate(ctx, c.Query)
		if err != nil {
			report.add(CaseResult{ID: c.ID, Errors: []string{err.Error()}})
			continue
		}
		valid, violations := domain.ValidateSQL(sql, r.schema)
		report.add(CaseResult{ID: c.ID, Passed: valid, SQL: sql, Errors: violations})
	}
	return report
}

// IntentChecks verifies the generated SQL contains each expected structural
// pattern, compared case-insensitively.
func (r *Runner) IntentChecks(ctx context.Context, cases []Case) Report {
	report := Report{Name: "intent_checks"}
	for _, c := range cases {
		sql, err := r.generate(ctx, c.Query)
		if err != nil {
			report.add(CaseResult{ID: c.ID, Errors: []string{err.Error()}})
			continue
		}
		upper := strings.ToUpper(sql)
		var missing []string
		for _, pattern := range c.ExpectedPatterns {
			if !strings.Contains(upper, strings.ToUpper(pattern)) {
				missing = append(missing, "missing pattern: "+pattern)
			}
		}
		report.add(CaseResult{ID: c.ID, Passed: len(missing) == 0, SQL: sql, Errors: missing})
	}
	return report
}

// Determinism generates each case's SQL `runs` times and requires every run
// to produce identical text.
func (r *Runner) Determinism(ctx context.Context, cases []Case, runs int) Report {
	report := Report{Name: "determinism"}
	if runs < 2 {
		runs = 2
	}
	for _, c := range cases {
		first, err := r.generate(ctx, c.Query)
		if err != nil {
			report.add(CaseResult{ID: c.ID, Errors: []string{err.Error()}})
			continue
		}
		result := CaseResult{ID: c.ID, Passed: true, SQL: first}
		for i := 1; i < runs; i++ {
			next, err := r.generate(ctx, c.Query)
			if err != nil {
				result.Passed = false
				result.Errors = append(result.Errors, err.Error())
				break
			}
			if next != first {
				result.Passed = false
				result.Errors = append(result.Errors, fmt.Sprintf("run %d diverged: %s", i+1, next))
				break
			}
		}
		report.add(result)
	}
	return report
}

// RunAll runs every eval over the suite.
func (r *Runner) RunAll(ctx context.Context, cases []Case) []Report {
	return []Report{
		r.SchemaCorrectness(ctx, cases),
		r.IntentChecks(ctx, cases),
		r.Determinism(ctx, cases, 2),
	}
}
