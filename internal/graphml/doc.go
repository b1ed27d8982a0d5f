// Package graphml reads program graphs stored as CyberiadaML (GraphML with
// the Cyberiada state machine keys) into ir.Graph values.
//
// Only the state machine structure is read: vertices, their names and action
// text, nesting, pseudostate kinds and transitions. Geometry, comments and
// metadata nodes are ignored, so two files that differ only in layout decode
// to the same graph.
package graphml
