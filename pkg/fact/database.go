package fact

import (
	"maps"
	"slices"
)

// Reader is the read capability expressions and action handlers receive.
type Reader interface {
	Get(key string) (Value, bool)
}

// MapReader adapts a plain map to Reader.
type MapReader map[string]Value

// Get returns the value stored at key.
func (m MapReader) Get(key string) (Value, bool) {
	v, ok := m[key]
	return v, ok
}

// Database is a flat mapping from key to Value.
type Database struct {
	facts map[string]Value
}

// NewDatabase returns an empty database.
func NewDatabase() *Database {
	return &Database{facts: make(map[string]Value)}
}

// NewDatabaseFrom returns a database seeded with initial. Invalid values are skipped.
func NewDatabaseFrom(initial map[string]Value) *Database {
	db := &Database{facts: make(map[string]Value, len(initial))}
	for k, v := range initial {
		if v.IsValid() {
			db.facts[k] = v
		}
	}
	return db
}

// Get returns the value at key.
func (db *Database) Get(key string) (Value, bool) {
	v, ok := db.facts[key]
	return v, ok
}

// GetInt returns the Int at key; false if absent or another variant.
func (db *Database) GetInt(key string) (int64, bool) { return getInt(db, key) }

// GetFloat returns the Float at key; false if absent or another variant.
func (db *Database) GetFloat(key string) (float64, bool) { return getFloat(db, key) }

// GetBool returns the Bool at key; false if absent or another variant.
func (db *Database) GetBool(key string) (bool, bool) { return getBool(db, key) }

// GetString returns the String at key; false if absent or another variant.
func (db *Database) GetString(key string) (string, bool) { return getString(db, key) }

// GetIntList returns the IntList at key; false if absent or another variant.
func (db *Database) GetIntList(key string) ([]int64, bool) { return getIntList(db, key) }

// GetStringList returns the StringList at key; false if absent or another variant.
func (db *Database) GetStringList(key string) ([]string, bool) { return getStringList(db, key) }

// GetIntOr returns the Int at key or def.
func (db *Database) GetIntOr(key string, def int64) int64 {
	if n, ok := db.GetInt(key); ok {
		return n
	}
	return def
}

// Set overwrites key with v. Setting an invalid Value removes the key.
func (db *Database) Set(key string, v Value) {
	if !v.IsValid() {
		delete(db.facts, key)
		return
	}
	db.facts[key] = v
}

// SetIfChanged writes v only when it differs structurally from the stored
// value, and reports whether a write happened.
func (db *Database) SetIfChanged(key string, v Value) bool {
	if old, ok := db.facts[key]; ok && old.Equal(v) {
		return false
	}
	if !v.IsValid() {
		return false
	}
	db.facts[key] = v
	return true
}

// Increment adds n to the Int at key, treating an absent key as 0.
func (db *Database) Increment(key string, n int64) (int64, error) {
	cur, ok := db.facts[key]
	if !ok {
		db.facts[key] = Int(n)
		return n, nil
	}
	i, ok := cur.AsInt()
	if !ok {
		return 0, Mismatch("increment", cur)
	}
	db.facts[key] = Int(i + n)
	return i + n, nil
}

// Remove deletes key and returns the value it held.
func (db *Database) Remove(key string) (Value, bool) {
	v, ok := db.facts[key]
	delete(db.facts, key)
	return v, ok
}

// Clear removes every key.
func (db *Database) Clear() {
	clear(db.facts)
}

// Contains reports whether key is present.
func (db *Database) Contains(key string) bool {
	_, ok := db.facts[key]
	return ok
}

// Len returns the number of facts.
func (db *Database) Len() int { return len(db.facts) }

// Keys returns all keys in sorted order.
func (db *Database) Keys() []string {
	return slices.Sorted(maps.Keys(db.facts))
}

// Range calls fn for each fact in key order until fn returns false.
func (db *Database) Range(fn func(key string, v Value) bool) {
	for _, k := range db.Keys() {
		if !fn(k, db.facts[k]) {
			return
		}
	}
}

// Clone returns an independent copy. Values are immutable, so sharing them is safe.
func (db *Database) Clone() *Database {
	return &Database{facts: maps.Clone(db.facts)}
}

// Snapshot returns a copy of the facts as a plain map.
func (db *Database) Snapshot() map[string]Value {
	return maps.Clone(db.facts)
}

func getInt(r Reader, key string) (int64, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

func getFloat(r Reader, key string) (float64, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	return v.AsFloat()
}

func getBool(r Reader, key string) (bool, bool) {
	v, ok := r.Get(key)
	if !ok {
		return false, false
	}
	return v.AsBool()
}

func getString(r Reader, key string) (string, bool) {
	v, ok := r.Get(key)
	if !ok {
		return "", false
	}
	return v.AsString()
}

func getIntList(r Reader, key string) ([]int64, bool) {
	v, ok := r.Get(key)
	if !ok {
		return nil, false
	}
	return v.AsIntList()
}

func getStringList(r Reader, key string) ([]string, bool) {
	v, ok := r.Get(key)
	if !ok {
		return nil, false
	}
	return v.AsStringList()
}
