// Package session reconstructs play sessions from one player's activity
// records.
//
// The Engine walks records in (creation index, metrics id, timestamp) order.
// Core records (wave results, unit deployments, tradition choices) drive the
// continuation test: a record continues the open session when it is on the
// same level and does not go back in waves. Anything else closes the session
// and opens a new one seeded by the record. Side-channel records (placement,
// game and editor timings, program saves) never open or close sessions; they
// are buffered and flushed into the session that is open when it closes.
//
// Reconstruction is a pure function of its input. Sessions are identified
// only by their position in the result.
package session
