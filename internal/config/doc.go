// Package config loads, normalizes, and validates overlaycast configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours OVERLAYCAST_* environment
// overrides for the director endpoint, credentials, and logging. The Config
// type centralizes the overlay instance list and every timing window the
// state machines use, so the daemon and CLI discover them in one pass.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical log formats, and clear validation errors.
package config
