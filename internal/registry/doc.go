// Package registry owns the program graphs of one analysis run.
//
// A Registry loads and caches baseline programs per unit type and version
// tag, resolves artifact references to player programs, and deduplicates
// player programs by content hash into Unique Programs.
//
// The dedup table is write-once per hash: the first observation becomes the
// representative and later observations only add to the usage count and the
// contributor sets. All methods are safe for concurrent use.
package registry
