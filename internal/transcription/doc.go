// Package transcription implements the lane that submits pending topics to
// the speech-to-text provider, polls in-flight tasks, and ingests finished
// transcripts as subtitle lines.
//
// Each RunOnce handles at most one topic. Polling takes priority over
// submission so finished work lands before new work is queued. The status
// compare-and-set is the exclusivity token: a topic that changed underneath
// a run is left alone and the run ends quietly.
package transcription
