// Package logs reads the daemon log file for the `subline logs` command.
//
// Tail returns the last N lines together with the byte offset it stopped at;
// Follow resumes from such an offset and polls for appended lines until the
// context ends.
package logs
