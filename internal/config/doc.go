// Package config loads, normalizes, and validates memalerts configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MEMALERTS_PIPELINE_API_KEY. The Config type centralizes the lease, retry,
// watchdog, and approval knobs the daemon and CLI share.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
