// Package notifications delivers moderation events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set.
// Individual event kinds can be switched off in the notifications section.
// Callers treat every notification as best effort.
package notifications
