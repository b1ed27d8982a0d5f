// Package pipeline runs one analysis batch end to end.
//
// A run has two fan-out stages separated by a join:
//
// Stage 1, per player: reconstruct sessions from the player's records and
// resolve every artifact the player deployed. Players are independent.
//
// Join: resolved programs are canonicalized into the registry one player at a
// time, in player order, so the representative of each hash class and the
// per-player timelines do not depend on scheduling.
//
// Stage 2, per unique program: load the baseline for the program's unit type
// and version tag and classify the program against it. A program whose
// baseline or comparison fails is marked broken; the run continues.
//
// Fatal input errors from stage 1 cancel the run. Both stages are bounded by
// Options.Workers.
package pipeline
