package ruleset

import (
	"mercator-hq/fre/pkg/rule"
	"mercator-hq/fre/pkg/ruleset/parser"
	"mercator-hq/fre/pkg/ruleset/validator"
)

// ParseAndValidate parses and validates a single rule file.
func ParseAndValidate(path string) (*rule.Set, error) {
	set, err := parser.NewParser().Parse(path)
	if err != nil {
		return nil, err
	}
	if err := validator.NewValidator().Validate(set); err != nil {
		return nil, err
	}
	return set, nil
}

// ParseAndValidateBytes parses and validates rule YAML from memory.
func ParseAndValidateBytes(data []byte, sourcePath string) (*rule.Set, error) {
	set, err := parser.NewParser().ParseBytes(data, sourcePath)
	if err != nil {
		return nil, err
	}
	if err := validator.NewValidator().Validate(set); err != nil {
		return nil, err
	}
	return set, nil
}

// Load parses paths and validates the sets together, so cross-file id
// conflicts are reported.
func Load(paths []string, opts ...Option) ([]*rule.Set, error) {
	o := newOptions(opts)
	sets, err := o.parser.ParseMulti(paths)
	if err != nil {
		return nil, err
	}
	if err := o.validator.Validate(sets...); err != nil {
		return nil, err
	}
	return sets, nil
}

// LoadDir loads every rule file directly inside dir.
func LoadDir(dir string, opts ...Option) ([]*rule.Set, error) {
	paths, err := parser.RuleFiles(dir)
	if err != nil {
		return nil, err
	}
	return Load(paths, opts...)
}

// Option configures Load and LoadDir.
type Option func(*options)

type options struct {
	parser    *parser.Parser
	validator *validator.Validator
}

func newOptions(opts []Option) *options {
	o := &options{parser: parser.NewParser(), validator: validator.NewValidator()}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// WithParser replaces the default parser.
func WithParser(p *parser.Parser) Option {
	return func(o *options) { o.parser = p }
}

// WithValidator replaces the default validator.
func WithValidator(v *validator.Validator) Option {
	return func(o *options) { o.validator = v }
}
