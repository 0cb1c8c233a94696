// Package core provides core types used throughout zqlite.
//
// The package defines the dynamically typed Value, the schema types Table
// and Column, and the engine error taxonomy.
//
// # Values
//
// A column's runtime type can vary row by row, so every cell is a tagged
// Value holding exactly one of Integer, Real, Text, Blob or Null:
//
//	v := core.Integer(42)
//	v.Type() // core.TypeInteger
//
// Values order as Null < numeric < Text < Blob; integers and reals compare
// numerically with each other.
//
// # Errors
//
// Engine errors are (kind, message) pairs. Kinds form a closed set and are
// mapped to the numeric codes of the C surface only at the external
// boundary:
//
//	err := core.Errorf(core.KindSyntax, "unexpected token %q", tok)
//	core.KindOf(err).Number() // 1
package core
