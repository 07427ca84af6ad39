// Package subtitle parses, renders, and derives timed subtitle cues.
//
// Derive groups provider word segments into cues, breaking at sentence
// boundaries and word limits and snapping cue edges to the frame grid.
// FromText covers providers that only return plain text.
package subtitle
