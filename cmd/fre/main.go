// Fre runs fact/rule/event engines from YAML rule files.
//
// Usage:
//
//	# Run the engine with rule hot reload and an interactive prompt
//	fre run --config fre.yaml
//
//	# Validate rule files
//	fre lint --dir rules/
//
//	# Run the scenarios embedded in rule files
//	fre test --dir rules/
//
//	# Show recent journal records
//	fre journal query --rule death --limit 20
//
//	# Show version information
//	fre version
package main

import "os"

func main() {
	os.Exit(Execute())
}
