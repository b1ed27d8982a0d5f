// Package classify turns a structural diff between a baseline program and a
// player program into named feature flags.
//
// Dense keys are always present: structural features of the diff, naming
// heuristics and the four action markers. Module keys are sparse: they are
// present only for modules actually detected, and consumers treat an absent
// module key as "not detected".
//
// Keyword dictionaries sit behind the Matcher interface so they can be
// replaced from configuration.
package classify
