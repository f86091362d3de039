package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"mercator-hq/fre/pkg/rule"
	rsErrors "mercator-hq/fre/pkg/ruleset/errors"
)

// Parser parses YAML rule files into rule sets.
type Parser struct {
	maxFileSize  int64 // default 10MB
	maxDepth     int   // maximum condition nesting depth
	contextLines int   // source lines shown around an error
}

// NewParser creates a parser with default limits.
func NewParser() *Parser {
	return &Parser{
		maxFileSize:  10 * 1024 * 1024,
		maxDepth:     32,
		contextLines: 2,
	}
}

// WithMaxFileSize sets the maximum file size limit.
func (p *Parser) WithMaxFileSize(size int64) *Parser {
	p.maxFileSize = size
	return p
}

// WithMaxDepth sets the maximum condition nesting depth.
func (p *Parser) WithMaxDepth(depth int) *Parser {
	p.maxDepth = depth
	return p
}

// WithContextLines sets how many source lines surround a reported error.
func (p *Parser) WithContextLines(n int) *Parser {
	p.contextLines = n
	return p
}

// Parse reads and parses the rule file at path.
func (p *Parser) Parse(path string) (*rule.Set, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &rsErrors.Error{
			Type:     rsErrors.ErrorTypeIO,
			Message:  fmt.Sprintf("Failed to access file: %v", err),
			Location: rule.Location{File: path},
		}
	}
	if info.Size() > p.maxFileSize {
		return nil, &rsErrors.Error{
			Type:     rsErrors.ErrorTypeIO,
			Message:  fmt.Sprintf("File size %d exceeds maximum %d bytes", info.Size(), p.maxFileSize),
			Location: rule.Location{File: path},
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &rsErrors.Error{
			Type:     rsErrors.ErrorTypeIO,
			Message:  fmt.Sprintf("Failed to read file: %v", err),
			Location: rule.Location{File: path},
		}
	}
	return p.ParseBytes(data, path)
}

// ParseBytes parses rule YAML from memory. sourcePath is used in locations.
func (p *Parser) ParseBytes(data []byte, sourcePath string) (*rule.Set, error) {
	if int64(len(data)) > p.maxFileSize {
		return nil, &rsErrors.Error{
			Type:     rsErrors.ErrorTypeIO,
			Message:  fmt.Sprintf("Data size %d exceeds maximum %d bytes", len(data), p.maxFileSize),
			Location: rule.Location{File: sourcePath},
		}
	}

	ys, err := parseYAMLBytes(data)
	if err != nil {
		return nil, &rsErrors.Error{
			Type:       rsErrors.ErrorTypeSyntax,
			Message:    fmt.Sprintf("YAML parsing failed: %v", err),
			Location:   rule.Location{File: sourcePath, Line: 1, Column: 1},
			Suggestion: "Check YAML syntax (indentation, colons, quotes)",
		}
	}

	b := newBuilder(sourcePath, p.maxDepth)
	set, err := b.buildSet(ys)
	if err != nil {
		for i, e := range b.errors.Errors {
			b.errors.Errors[i] = rsErrors.WithContext(e, data, p.contextLines)
		}
		return nil, err
	}
	return set, nil
}

// ParseMulti parses several files, keeping each as its own set so scopes and
// duplicate policies stay per file. All files are attempted; the returned
// error lists every failure.
func (p *Parser) ParseMulti(paths []string) ([]*rule.Set, error) {
	if len(paths) == 0 {
		return nil, &rsErrors.Error{
			Type:    rsErrors.ErrorTypeIO,
			Message: "No rule files provided",
		}
	}

	all := rsErrors.NewErrorList()
	sets := make([]*rule.Set, 0, len(paths))
	for _, path := range paths {
		set, err := p.Parse(path)
		if err != nil {
			collect(all, err)
			continue
		}
		sets = append(sets, set)
	}
	if all.HasErrors() {
		return nil, all
	}
	return sets, nil
}

// ParseDir parses every .yaml and .yml file directly inside dir, in name order.
func (p *Parser) ParseDir(dir string) ([]*rule.Set, error) {
	paths, err := RuleFiles(dir)
	if err != nil {
		return nil, err
	}
	return p.ParseMulti(paths)
}

// RuleFiles lists the rule files directly inside dir, sorted by name.
func RuleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &rsErrors.Error{
			Type:     rsErrors.ErrorTypeIO,
			Message:  fmt.Sprintf("Failed to read directory: %v", err),
			Location: rule.Location{File: dir},
		}
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsRuleFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

// IsRuleFile reports whether name has a rule file extension.
func IsRuleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func collect(list *rsErrors.ErrorList, err error) {
	switch e := err.(type) {
	case *rsErrors.ErrorList:
		list.Merge(e)
	case *rsErrors.Error:
		list.Add(e)
	default:
		list.AddError(rsErrors.ErrorTypeIO, err.Error(), rule.Location{})
	}
}
