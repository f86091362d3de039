// Package fact provides the typed key-value store that rules read and mutate.
//
// A fact is a named Value. Value is a closed sum type with six variants:
// Int, Float, Bool, String, IntList and StringList. Typed accessors never
// coerce between variants; the only coercion in the system is the int to
// float promotion performed by arithmetic in package expr.
//
// # Stores
//
// Database is a flat map from key to Value. LayeredDatabase stacks one global
// layer under a stack of local layers:
//
//	db := fact.NewLayeredDatabase()
//	db.SetGlobal("player_health", fact.Int(100))
//	db.Set("in_dialogue", fact.Bool(true)) // top local layer
//	db.PushScope()                          // nested context
//	...
//	if err := db.PopScope(); err != nil {   // ErrInvalidScopePop on the base layer
//	    ...
//	}
//
// Reads resolve from the innermost local layer outwards and fall back to the
// global layer. Writes always name their layer: bare Set writes the innermost
// local layer and SetGlobal writes the global one.
//
// Neither store is safe for concurrent use. The engine owns its database and
// serializes access.
package fact
