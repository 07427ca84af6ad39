// Package preflight provides readiness checks for the provider and the
// filesystem paths subline depends on.
//
// The daemon runs them at start and logs failures without refusing to start,
// since lanes retry on later ticks. The status surfaces (API and CLI) report
// the same results so an operator can see why work is not progressing.
package preflight
