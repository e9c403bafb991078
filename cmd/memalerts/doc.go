// Command memalerts is the operator CLI for the moderation backlog.
//
// Most subcommands open the backlog database directly; the lease protocol
// makes that safe while the daemon is running. The status subcommand queries
// a running daemon over its HTTP API instead.
package main
