// Package report derives human-facing summaries from a pipeline result.
//
// Aggregate builds run-wide statistics, PlayerPrograms builds a player's
// program table, and Inspect explains how one program differs from its
// baseline. Each has a text writer; the JSON forms are the structs
// themselves.
package report
