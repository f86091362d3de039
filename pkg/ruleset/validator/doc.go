// Package validator checks loaded rule sets before they reach an engine.
//
// The structural pass verifies that each rule, condition, modification and
// scenario is complete. The semantic pass looks across all sets for id
// conflicts, constant expressions that always fail, fact references that
// nothing declares or writes, output cycles and dangling scenario
// references. Semantic findings are errors or warnings; warnings fail
// validation only in strict mode.
package validator
