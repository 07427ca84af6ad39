// Package retention implements the lane that reclaims storage for topics that
// have left the active lifecycle.
//
// Removed topics become eligible once untouched for removed_grace_hours and
// Archived topics once untouched for archived_grace_hours. When the archived
// footprint exceeds archived_quota_gib, the oldest Archived topics that are
// past the removed grace are reclaimed early until the footprint fits.
//
// Each step checks current state first, so an interrupted pass is safe to
// repeat.
package retention
