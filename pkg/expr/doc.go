// Package expr implements the restricted expression language used in rule
// conditions and modification operands.
//
// The grammar covers literals, fact references, arithmetic, comparison and
// boolean logic. Nothing else: there are no function calls, assignments or
// loops.
//
//	expr       = or
//	or         = and { ("or" | "||") and }
//	and        = not { ("and" | "&&") not }
//	not        = ("not" | "!") not | comparison
//	comparison = additive [ ("<" | "<=" | ">" | ">=" | "==" | "!=") additive ]
//	additive   = term { ("+" | "-") term }
//	term       = unary { ("*" | "/" | "%") unary }
//	unary      = "-" unary | primary
//	primary    = INT | FLOAT | STRING | "true" | "false" | IDENT | "(" expr ")"
//
// Comparisons require operands of the same kind; Int and Float mix only in
// arithmetic, where the result is a Float. Int arithmetic that leaves the
// 64-bit range fails instead of wrapping.
//
// Identifiers name facts. They may contain letters, digits, '_', '.' and ':'
// and may be written with a leading '$' ($player.health). Strings use single
// or double quotes.
//
// Expressions are parsed once, when a rule file is loaded, and evaluated many
// times against a fact.Reader. Parse reports malformed input as a
// *SyntaxError; evaluation only ever fails with the fact package's runtime
// errors (unknown fact, type mismatch, division by zero).
package expr
