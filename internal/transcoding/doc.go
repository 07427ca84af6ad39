// Package transcoding implements the lane that converts a topic's raw media
// into a streaming layout with the local transcoder.
//
// A run claims the oldest Normal topic whose convert branch is Pending by
// moving it to Converting, invokes the transcoder, then records the stream
// size and media length. Every run stamps a benchmark record.
package transcoding
