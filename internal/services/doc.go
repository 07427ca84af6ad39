// Package services defines shared utilities consumed by the lanes, the
// lifecycle service, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp topic IDs, lane names, audited actions, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the taxonomy lanes act on (transient vs permanent vs storage).
//
// Provider and transcoder clients live in subpackages.
package services
