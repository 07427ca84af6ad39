// Package asr wraps the remote speech-to-text provider's REST API.
//
// Failures are classified with the services error markers: network errors,
// 429, and 5xx responses are transient, other 4xx responses and malformed
// payloads are permanent.
package asr
