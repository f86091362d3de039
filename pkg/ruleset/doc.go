// Package ruleset loads rule files and checks them before an engine uses
// them.
//
// # Architecture
//
// The package is organized into subpackages:
//
// - parser: YAML parsing into rule.Set values
// - validator: structural and semantic checks across sets
// - errors: located errors with source context and suggestions
//
// # Basic Usage
//
//	sets, err := ruleset.LoadDir("rules/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reg, err := rule.BuildRegistry(sets, rule.DuplicateError)
package ruleset
