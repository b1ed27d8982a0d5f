// Package harness runs reconstruction scenarios: hand-written activity
// records and program graphs go in, sessions and classified programs come
// out, and assertions check the result.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	options:
//	  max_session_hours: 6
//	  resave_policy: collapse
//	baselines:
//	  "1.6":
//	    Stapler: { name: Stapler, nodes: [...], edges: [...] }
//	artifacts:
//	  art-1: { name: mine, nodes: [...], edges: [...] }
//	broken: [art-2]
//	records:
//	  - { player: alice, kind: unit, level: "1", wave: 1, unit: Stapler, artifact: art-1, damage: 4 }
//	  - { player: alice, kind: final, level: "1", wave: 1, try: 1 }
//	assertions:
//	  - type: session_count
//	    player: alice
//	    count: 1
//	  - type: session
//	    player: alice
//	    index: 0
//	    expect: { tries: 1, total_units: 1 }
//	  - type: final_state
//	    table: sessions
//	    where: { player: alice, seq: 0 }
//	    expect: { level: "1" }
//
// Records may omit their ordering fields. The harness then hands out
// creation indices from 1 and timestamps ten seconds apart, so a list of
// records is already in order; "wait" adds extra seconds before a record.
//
// # Assertion Types
//
//   - session_count: number of sessions, of one player or of the run
//   - session: subset match against one session's JSON form
//   - skipped: subset match against the run's skip counters
//   - program: subset match against the flags of the unique program an
//     artifact was folded into, optionally checking that it is broken
//   - program_count: number of unique programs
//   - unresolved: an artifact of a player was not resolved, for a reason
//   - final_state: query a table of the exported run and match one row
//
// A scenario may instead set expect_error; the run must then fail with an
// error containing that text.
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory SQLite export with a fixed
// run id, and the snapshot written for golden comparison is canonical JSON
// with floats rendered as strings, so identical scenarios produce
// byte-identical snapshots.
package harness
