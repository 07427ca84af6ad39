// Package daemon coordinates the long-running subline process.
//
// It wires configuration, the topic store, media storage, the provider client,
// the transcoder, the three background lanes, and the HTTP API into a single
// lifecycle with flock-based locking to prevent multiple instances. On start
// it returns conversions interrupted by a previous process to Pending before
// the scheduler's first tick.
//
// Keep orchestration logic here: lane behavior lives in the lane packages and
// operator actions in lifecycle, while the daemon focuses on startup, shutdown,
// and status aggregation.
package daemon
