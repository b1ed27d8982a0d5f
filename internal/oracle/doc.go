// Package oracle compares two program graphs.
//
// An Oracle reports a DiffResult: matched node and edge pairs with per-pair
// difference bits, the candidate-only ("new") and baseline-only ("missing")
// ids, and an overall Relation. Results must be deterministic for identical
// inputs, and every id of either graph appears exactly once in the result.
//
// Structural is the built-in oracle. It matches vertices by id, falling back
// to type and title for vertices the editor re-created, then matches
// transitions through the vertex mapping.
//
// ActionComparator refines pairs whose action lists differ into argument,
// order and count differences.
package oracle
