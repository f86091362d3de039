package fact

import (
	"maps"
	"slices"
)

// Layer selects the write target of a LayeredDatabase operation.
type Layer uint8

const (
	// LayerLocal is the innermost local layer.
	LayerLocal Layer = iota
	// LayerGlobal is the persistent global layer.
	LayerGlobal
)

// String returns "local" or "global".
func (l Layer) String() string {
	if l == LayerGlobal {
		return "global"
	}
	return "local"
}

// ParseLayer accepts "local", "global" and the empty string (local).
func ParseLayer(s string) (Layer, bool) {
	switch s {
	case "", "local":
		return LayerLocal, true
	case "global":
		return LayerGlobal, true
	}
	return LayerLocal, false
}

// LayeredDatabase is a global layer under a stack of local layers. The base
// local layer always exists; PushScope and PopScope manage the layers above it.
type LayeredDatabase struct {
	global *Database
	locals []*Database
}

// NewLayeredDatabase returns a database with an empty global layer and an
// empty base local layer.
func NewLayeredDatabase() *LayeredDatabase {
	return &LayeredDatabase{
		global: NewDatabase(),
		locals: []*Database{NewDatabase()},
	}
}

// NewLayeredDatabaseFrom seeds the global layer with initial.
func NewLayeredDatabaseFrom(initial map[string]Value) *LayeredDatabase {
	return &LayeredDatabase{
		global: NewDatabaseFrom(initial),
		locals: []*Database{NewDatabase()},
	}
}

func (db *LayeredDatabase) top() *Database {
	return db.locals[len(db.locals)-1]
}

func (db *LayeredDatabase) layer(l Layer) *Database {
	if l == LayerGlobal {
		return db.global
	}
	return db.top()
}

// Get resolves key from the innermost local layer outwards, then the global layer.
func (db *LayeredDatabase) Get(key string) (Value, bool) {
	for i := len(db.locals) - 1; i >= 0; i-- {
		if v, ok := db.locals[i].Get(key); ok {
			return v, true
		}
	}
	return db.global.Get(key)
}

// GetInt resolves key and narrows it to Int.
func (db *LayeredDatabase) GetInt(key string) (int64, bool) { return getInt(db, key) }

// GetFloat resolves key and narrows it to Float.
func (db *LayeredDatabase) GetFloat(key string) (float64, bool) { return getFloat(db, key) }

// GetBool resolves key and narrows it to Bool.
func (db *LayeredDatabase) GetBool(key string) (bool, bool) { return getBool(db, key) }

// GetString resolves key and narrows it to String.
func (db *LayeredDatabase) GetString(key string) (string, bool) { return getString(db, key) }

// GetIntList resolves key and narrows it to IntList.
func (db *LayeredDatabase) GetIntList(key string) ([]int64, bool) { return getIntList(db, key) }

// GetStringList resolves key and narrows it to StringList.
func (db *LayeredDatabase) GetStringList(key string) ([]string, bool) {
	return getStringList(db, key)
}

// GetIn reads key from exactly one layer without falling through.
func (db *LayeredDatabase) GetIn(l Layer, key string) (Value, bool) {
	return db.layer(l).Get(key)
}

// Set writes the innermost local layer.
func (db *LayeredDatabase) Set(key string, v Value) { db.top().Set(key, v) }

// SetLocal is Set.
func (db *LayeredDatabase) SetLocal(key string, v Value) { db.top().Set(key, v) }

// SetGlobal writes the global layer.
func (db *LayeredDatabase) SetGlobal(key string, v Value) { db.global.Set(key, v) }

// SetIn writes the chosen layer.
func (db *LayeredDatabase) SetIn(l Layer, key string, v Value) { db.layer(l).Set(key, v) }

// SetIfChanged writes the innermost local layer if v differs from the value
// that layer holds, and reports whether it wrote.
func (db *LayeredDatabase) SetIfChanged(key string, v Value) bool {
	return db.top().SetIfChanged(key, v)
}

// SetGlobalIfChanged is SetIfChanged against the global layer.
func (db *LayeredDatabase) SetGlobalIfChanged(key string, v Value) bool {
	return db.global.SetIfChanged(key, v)
}

// SetIfChangedIn is SetIfChanged against the chosen layer.
func (db *LayeredDatabase) SetIfChangedIn(l Layer, key string, v Value) bool {
	return db.layer(l).SetIfChanged(key, v)
}

// Remove deletes key from the innermost local layer.
func (db *LayeredDatabase) Remove(key string) (Value, bool) { return db.top().Remove(key) }

// RemoveGlobal deletes key from the global layer.
func (db *LayeredDatabase) RemoveGlobal(key string) (Value, bool) { return db.global.Remove(key) }

// RemoveIn deletes key from the chosen layer.
func (db *LayeredDatabase) RemoveIn(l Layer, key string) (Value, bool) {
	return db.layer(l).Remove(key)
}

// ClearLocal empties the innermost local layer. The global layer is untouched.
func (db *LayeredDatabase) ClearLocal() { db.top().Clear() }

// ClearGlobal empties the global layer.
func (db *LayeredDatabase) ClearGlobal() { db.global.Clear() }

// ClearAll empties every layer and drops pushed scopes.
func (db *LayeredDatabase) ClearAll() {
	db.global.Clear()
	db.locals = []*Database{NewDatabase()}
}

// PushScope adds an empty local layer on top of the stack.
func (db *LayeredDatabase) PushScope() {
	db.locals = append(db.locals, NewDatabase())
}

// PopScope discards the innermost local layer. The base local layer cannot
// be popped.
func (db *LayeredDatabase) PopScope() error {
	if len(db.locals) <= 1 {
		return ErrInvalidScopePop
	}
	db.locals[len(db.locals)-1] = nil
	db.locals = db.locals[:len(db.locals)-1]
	return nil
}

// Depth returns the number of local layers, including the base layer.
func (db *LayeredDatabase) Depth() int { return len(db.locals) }

// PromoteToGlobal moves key from the innermost local layer to the global layer.
func (db *LayeredDatabase) PromoteToGlobal(key string) bool {
	v, ok := db.top().Remove(key)
	if !ok {
		return false
	}
	db.global.Set(key, v)
	return true
}

// CopyToGlobal copies key from the innermost local layer to the global layer.
func (db *LayeredDatabase) CopyToGlobal(key string) bool {
	v, ok := db.top().Get(key)
	if !ok {
		return false
	}
	db.global.Set(key, v)
	return true
}

// DemoteToLocal moves key from the global layer to the innermost local layer.
func (db *LayeredDatabase) DemoteToLocal(key string) bool {
	v, ok := db.global.Remove(key)
	if !ok {
		return false
	}
	db.top().Set(key, v)
	return true
}

// Contains reports whether key resolves in any layer.
func (db *LayeredDatabase) Contains(key string) bool {
	_, ok := db.Get(key)
	return ok
}

// ContainsLocal reports whether any local layer holds key.
func (db *LayeredDatabase) ContainsLocal(key string) bool {
	for _, l := range db.locals {
		if l.Contains(key) {
			return true
		}
	}
	return false
}

// ContainsGlobal reports whether the global layer holds key.
func (db *LayeredDatabase) ContainsGlobal(key string) bool { return db.global.Contains(key) }

// LocalLen returns the number of facts in the innermost local layer.
func (db *LayeredDatabase) LocalLen() int { return db.top().Len() }

// GlobalLen returns the number of facts in the global layer.
func (db *LayeredDatabase) GlobalLen() int { return db.global.Len() }

// Keys returns every resolvable key in sorted order.
func (db *LayeredDatabase) Keys() []string {
	return slices.Sorted(maps.Keys(db.Snapshot()))
}

// Snapshot flattens the layers into one map using read-through precedence.
func (db *LayeredDatabase) Snapshot() map[string]Value {
	out := db.global.Snapshot()
	for _, l := range db.locals {
		maps.Copy(out, l.facts)
	}
	return out
}

// GlobalSnapshot returns a copy of the global layer.
func (db *LayeredDatabase) GlobalSnapshot() map[string]Value { return db.global.Snapshot() }

// LocalSnapshot returns a copy of the innermost local layer.
func (db *LayeredDatabase) LocalSnapshot() map[string]Value { return db.top().Snapshot() }
