// Command subline runs the subtitle pipeline daemon and offers operator
// commands for ingesting media, inspecting topics, and driving their lifecycle.
//
// Topic commands open the topic database directly, so they work whether or not
// the daemon is running. The status command asks a running daemon over its HTTP
// API and falls back to the database when the daemon cannot be reached.
package main
