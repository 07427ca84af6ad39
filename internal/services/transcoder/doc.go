// Package transcoder runs the external ffmpeg-style process that converts a
// topic's raw media into a streaming layout, and probes media length with
// ffprobe.
//
// Each run gets its own process group so cancellation kills the whole tree.
package transcoder
