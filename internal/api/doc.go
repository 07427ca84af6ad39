// Package api defines the HTTP surface of the daemon and the transport types it
// shares with the CLI.
//
// # Key Types
//
// Topic: transport representation of a topic with its media branches and,
// when requested, its current subtitle lines.
//
// DaemonStatus: running state, lane status, dependency availability, topic
// counts, and storage usage.
//
// ActionResult: per-id outcome of a batch lifecycle operation.
//
// # Converters
//
// FromTopic, FromLaneStatuses, FromDependencies, FromHealth, and FromUsage
// translate internal models into DTOs with deterministic ordering.
//
// # Routes
//
// NewRouter builds the gin engine:
//
//	GET  /api/status
//	GET  /api/topics?sort=&desc=&status=&name=&limit=
//	GET  /api/topics/:id
//	POST /api/topics/:op              {"ids": [...]}
//	POST /api/topics/:id/reload       {"path": "..."}
//
// Batch operations are pause, resume, re-execute, set-normal, archive, remove,
// recover, reproduce, and configure.
//
// A configured bearer token is required on every route; the token maps to the
// admin principal. Without a token the API runs as the system principal.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Enum values are exposed as lowercase strings.
// Timestamps use RFC3339 with milliseconds. Errors are mapped to status codes
// by their services marker.
package api
