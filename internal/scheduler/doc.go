// Package scheduler runs the background lanes on a fixed tick.
//
// Each lane has an explicit Idle/Running guard flipped with an atomic
// compare-and-swap, so at most one run per lane is in flight. The guard is
// held through a lane-specific cool-down after the run finishes. The guard
// is in memory only; a restart always starts Idle.
//
// Every run goes through the audit recorder, which logs one entry per run
// and turns panics into errors. Stop cancels the context handed to running
// lanes and waits for them to return; it never kills a run.
package scheduler
