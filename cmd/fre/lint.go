package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/fre/pkg/cli"
	"mercator-hq/fre/pkg/engine/source"
	"mercator-hq/fre/pkg/rule"
	rsErrors "mercator-hq/fre/pkg/ruleset/errors"
	"mercator-hq/fre/pkg/ruleset/parser"
	"mercator-hq/fre/pkg/ruleset/validator"
)

var lintFlags struct {
	strict bool
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint [path...]",
	Short: "Validate rule files",
	Long: `Validate rule files for syntax and semantic errors.

Each path is a rule file or a directory searched recursively. Without paths
the rules.paths of the configuration are used. Files are parsed one by one
and then validated together, so rule id conflicts across files are found:
  - YAML syntax and expression syntax
  - Rule structure (missing or unknown fields, bad modification kinds)
  - Semantics (duplicate ids, type misuse, unknown fact references,
    output event cycles)

Examples:
  # Lint a directory
  fre lint rules/

  # Strict mode (warnings as errors)
  fre lint rules/ --strict

  # JSON output for CI/CD
  fre lint rules/ --format json`,
	RunE: lintRules,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "treat warnings as errors")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json")
}

// ValidationResult represents the validation result for a single rule file.
type ValidationResult struct {
	File     string            `json:"file"`
	Valid    bool              `json:"valid"`
	Rules    int               `json:"rules"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// ValidationError represents a single validation error or warning.
type ValidationError struct {
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	Type       string `json:"type,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func lintRules(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(lintFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths := args
	if len(paths) == 0 {
		paths = cfg.Rules.Paths
	}

	files, err := source.NewFileSource(paths, nil).WithExtensions(cfg.Rules.Extensions...).Files()
	if err != nil {
		return cli.NewCommandError("lint", err)
	}
	if len(files) == 0 {
		return cli.NewCommandError("lint", errors.New("no rule files found"))
	}

	v := newValidator(cfg.Engine)
	results := lintFiles(files, v)

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		if err := cli.NewFormatter(format).FormatTo(out, results); err != nil {
			return err
		}
	} else {
		printLint(out, results, lintFlags.strict)
	}

	for _, r := range results {
		if len(r.Errors) > 0 || (lintFlags.strict && len(r.Warnings) > 0) {
			return cli.NewCommandError("lint", cli.ErrValidationFailed)
		}
	}
	return nil
}

// lintFiles parses each file and validates the parsed sets together.
// Problems are attributed to the file named in their location.
func lintFiles(files []string, v *validator.Validator) []*ValidationResult {
	p := parser.NewParser()
	results := make([]*ValidationResult, 0, len(files))
	byFile := make(map[string]*ValidationResult, len(files))
	var sets []*rule.Set

	for _, file := range files {
		res := &ValidationResult{File: file, Valid: true}
		results = append(results, res)
		byFile[file] = res

		set, err := p.Parse(file)
		if err != nil {
			for _, e := range problems(err) {
				res.add(e)
			}
			continue
		}
		res.Rules = len(set.Rules)
		sets = append(sets, set)
	}

	if len(sets) > 0 {
		for _, e := range v.Check(sets...).Errors {
			res, ok := byFile[e.Location.File]
			if !ok {
				res = results[0]
			}
			res.add(e)
		}
	}
	return results
}

func (r *ValidationResult) add(e *rsErrors.Error) {
	ve := ValidationError{
		Line:       e.Location.Line,
		Column:     e.Location.Column,
		Message:    e.Message,
		Severity:   "error",
		Type:       string(e.Type),
		Suggestion: e.Suggestion,
	}
	if e.Type == rsErrors.ErrorTypeWarning {
		ve.Severity = "warning"
		r.Warnings = append(r.Warnings, ve)
		return
	}
	r.Valid = false
	r.Errors = append(r.Errors, ve)
}

// problems flattens a parser error into its entries.
func problems(err error) []*rsErrors.Error {
	var list *rsErrors.ErrorList
	if errors.As(err, &list) {
		return list.Errors
	}
	var one *rsErrors.Error
	if errors.As(err, &one) {
		return []*rsErrors.Error{one}
	}
	return []*rsErrors.Error{{Type: rsErrors.ErrorTypeIO, Message: err.Error()}}
}

func printLint(w io.Writer, results []*ValidationResult, strict bool) {
	totalErrors := 0
	totalWarnings := 0

	for _, result := range results {
		fmt.Fprintf(w, "Validating %s...\n", result.File)
		if len(result.Errors) == 0 && len(result.Warnings) == 0 {
			fmt.Fprintf(w, "✓ %d rules valid\n", result.Rules)
		}
		for _, e := range result.Errors {
			fmt.Fprintf(w, "✗ Error: %s%s [%s]\n", e.Message, position(e), e.Type)
			if e.Suggestion != "" {
				fmt.Fprintf(w, "  suggestion: %s\n", e.Suggestion)
			}
			totalErrors++
		}
		for _, e := range result.Warnings {
			fmt.Fprintf(w, "⚠  Warning: %s%s\n", e.Message, position(e))
			totalWarnings++
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  %d error(s), %d warning(s)\n", totalErrors, totalWarnings)
	if strict && totalWarnings > 0 {
		fmt.Fprintln(w, "  Strict mode enabled: treating warnings as errors")
	}
}

func position(e ValidationError) string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf(" (line %d, col %d)", e.Line, e.Column)
	case e.Line > 0:
		return fmt.Sprintf(" (line %d)", e.Line)
	}
	return ""
}
