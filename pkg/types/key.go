// Package types defines the key and payload types shared by every tree
// variant in this module.
package types

// Key is the ordered key used by every tree variant. The original
// benchmark suite this module is grounded on also carried a
// string-keyed variant; only the integer-keyed family is implemented
// here.
type Key = int32

// Value is the payload a tree associates with a Key. The tree never
// interprets it — it is handed back unchanged from Lookup/Insert and
// never compared or hashed.
type Value = any
