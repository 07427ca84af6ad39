// Package topic persists Topics, their Media sub-record, subtitle lines,
// transcripts, transcode benchmarks, and audit entries in SQLite.
//
// Every status change goes through a compare-and-set transition that checks
// the current value inside a transaction, so lanes and lifecycle operations
// racing on the same topic never lose updates. A transition whose expected
// state no longer holds returns ErrStaleState and writes nothing.
package topic
