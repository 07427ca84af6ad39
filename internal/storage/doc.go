// Package storage manages raw uploads and converted streams on the local
// filesystem. Raw media lives under raw_dir as flat object files; each
// topic's stream output lives in its own directory under stream_dir.
//
// Every I/O failure is tagged with services.ErrStorage so lanes abort the
// current unit without touching persisted state. Deletes are idempotent.
package storage
