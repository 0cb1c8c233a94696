// Package jsonpath reads and rewrites values inside JSON documents
// addressed by a path.
//
// A path is an optional $ root followed by .field and [index] steps:
//
//	$.user.emails[0]
//	items[2].id
//
// Extract returns the addressed value, Set rewrites it (creating the
// missing containers along the way), TypeOf names it. Malformed
// documents report a syntax error; a path that addresses nothing
// reports not found.
package jsonpath
